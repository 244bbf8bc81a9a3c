package ingest

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// UserAgents is the browser User-Agent list rotated across connections and catalog requests.
var UserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:109.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.230 Mobile Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 Edg/119.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36 OPR/104.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Android 14; Mobile; rv:109.0) Gecko/121.0 Firefox/121.0",
	"Mozilla/5.0 (iPad; CPU OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Windows NT 11.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Linux; Android 13; SM-G998B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.230 Mobile Safari/537.36",
}

// Rotator hands out items from a fixed list in round-robin order.
type Rotator[T any] struct {
	mu    sync.Mutex
	items []T
	next  int
}

// NewRotator creates a rotator over items. The slice is copied.
func NewRotator[T any](items []T) *Rotator[T] {
	return &Rotator[T]{items: append([]T(nil), items...)}
}

// Next returns the next item, or false when the list is empty.
func (r *Rotator[T]) Next() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if len(r.items) == 0 {
		return zero, false
	}
	item := r.items[r.next]
	r.next = (r.next + 1) % len(r.items)
	return item, true
}

// Len returns the number of items.
func (r *Rotator[T]) Len() int {
	return len(r.items)
}

// NormalizeProxy converts host:port:user:pass lines into proxy URLs.
// Lines already carrying an http or socks scheme are returned as-is.
func NormalizeProxy(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false
	}
	if strings.HasPrefix(line, "http") || strings.HasPrefix(line, "socks") {
		return line, true
	}
	parts := strings.Split(line, ":")
	switch len(parts) {
	case 4:
		return fmt.Sprintf("http://%s:%s@%s:%s", parts[2], parts[3], parts[0], parts[1]), true
	case 2:
		return "http://" + line, true
	default:
		return "", false
	}
}

// LoadProxies reads one proxy per line from path. A missing path yields no proxies.
func LoadProxies(path string) ([]*url.URL, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open proxies file: %w", err)
	}
	defer f.Close()

	var proxies []*url.URL
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		raw, ok := NormalizeProxy(scanner.Text())
		if !ok {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			slog.Warn("proxy_invalid", "error", err)
			continue
		}
		proxies = append(proxies, u)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read proxies file: %w", err)
	}
	return proxies, nil
}

// ProxyPool rotates proxies and probes each one before handing it out.
type ProxyPool struct {
	rot      *Rotator[*url.URL]
	probeURL string
	timeout  time.Duration
}

// NewProxyPool creates a pool over proxies that health-checks against probeURL.
func NewProxyPool(proxies []*url.URL, probeURL string) *ProxyPool {
	return &ProxyPool{
		rot:      NewRotator(proxies),
		probeURL: probeURL,
		timeout:  5 * time.Second,
	}
}

// Len returns the number of configured proxies.
func (p *ProxyPool) Len() int {
	if p == nil {
		return 0
	}
	return p.rot.Len()
}

// Pick returns the next proxy that passes the probe, or nil for a direct connection.
func (p *ProxyPool) Pick(ctx context.Context) *url.URL {
	if p.Len() == 0 {
		return nil
	}
	proxy, _ := p.rot.Next()
	if err := p.probe(ctx, proxy); err != nil {
		slog.Warn("proxy_probe_failed", "proxy", proxy.Host, "error", err)
		return nil
	}
	return proxy
}

// probe issues a lightweight GET through proxy.
func (p *ProxyPool) probe(ctx context.Context, proxy *url.URL) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(proxy)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.probeURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe status %d", resp.StatusCode)
	}
	return nil
}

// HTTPClients builds one client per proxy, or a single direct client when there are none.
func HTTPClients(proxies []*url.URL, timeout time.Duration) []*http.Client {
	if len(proxies) == 0 {
		return []*http.Client{{Timeout: timeout}}
	}
	clients := make([]*http.Client, 0, len(proxies))
	for _, proxy := range proxies {
		clients = append(clients, &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{Proxy: http.ProxyURL(proxy)},
		})
	}
	return clients
}
