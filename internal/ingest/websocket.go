package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/polyinsider/spikewatch/internal/store"
)

const (
	// PongWait is the grace period after a ping before the read deadline expires
	PongWait = 10 * time.Second

	// WriteTimeout bounds every frame write
	WriteTimeout = 10 * time.Second

	handshakeTimeout = 10 * time.Second
)

var (
	// ErrNotConnected is returned by writes attempted without a live connection.
	ErrNotConnected = errors.New("websocket not connected")

	// ErrWorkerStopped is returned by AddAssets once Stop has been called.
	ErrWorkerStopped = errors.New("worker stopped")
)

// State is a connection worker lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateStreaming
	StateError
	StateClosed
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// EventQueue receives parsed trade events. Push must not block.
type EventQueue interface {
	Push(ev store.TradeEvent) bool
}

// WorkerConfig holds the settings shared by all connection workers.
type WorkerConfig struct {
	URL           string
	ReconnectBase time.Duration
	CapExponent   int
	PingInterval  time.Duration

	// UserAgents rotates the User-Agent header per connection attempt
	UserAgents *Rotator[string]

	// Proxies is consulted only when UseProxy is set
	Proxies  *ProxyPool
	UseProxy bool

	Clock  func() time.Time
	Logger *slog.Logger
}

// WorkerStatus is a point-in-time view of one worker.
type WorkerStatus struct {
	ID             int
	State          State
	Assets         int
	Attempts       int
	ConnectedSince time.Time
	Messages       int64
	Events         int64
}

// subscribeMessage is the market channel subscription payload.
type subscribeMessage struct {
	AssetsIDs []string `json:"assets_ids"`
	Type      string   `json:"type"`
}

// Worker owns one websocket connection subscribed to a chunk of instruments.
type Worker struct {
	id  int
	cfg WorkerConfig
	out EventQueue
	log *slog.Logger

	assetsMu sync.Mutex
	assets   []string
	known    map[string]struct{}

	connMu  sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	state       atomic.Int32
	attempts    atomic.Int32
	connectedAt atomic.Int64
	messages    atomic.Int64
	events      atomic.Int64

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  bool // guarded by assetsMu
}

// NewWorker creates a worker for chunk that pushes events to out.
func NewWorker(id int, chunk []string, out EventQueue, cfg WorkerConfig) *Worker {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}

	w := &Worker{
		id:    id,
		cfg:   cfg,
		out:   out,
		log:   cfg.Logger.With("worker_id", id),
		known: make(map[string]struct{}, len(chunk)),
	}
	for _, asset := range chunk {
		if _, dup := w.known[asset]; dup {
			continue
		}
		w.known[asset] = struct{}{}
		w.assets = append(w.assets, asset)
	}
	return w
}

// ID returns the worker id.
func (w *Worker) ID() int { return w.id }

// Len returns the number of subscribed instruments.
func (w *Worker) Len() int {
	w.assetsMu.Lock()
	defer w.assetsMu.Unlock()
	return len(w.assets)
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Start runs the connect/read/reconnect loop in the background.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.runLoop(ctx)
}

// Stop terminates the worker and waits for its goroutines.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.assetsMu.Lock()
		w.stopped = true
		w.assetsMu.Unlock()

		if w.cancel != nil {
			w.cancel()
		}
		w.closeConnection()
		w.wg.Wait()
		w.setState(StateStopped)
		w.log.Info("ws_worker_stopped")
	})
}

// AddAssets extends the chunk with ids not already present. When connected,
// only the new ids are subscribed; otherwise the next full subscribe picks them up.
// A stopped worker rejects the ids with ErrWorkerStopped.
func (w *Worker) AddAssets(ids []string) error {
	w.assetsMu.Lock()
	if w.stopped {
		w.assetsMu.Unlock()
		return ErrWorkerStopped
	}
	var fresh []string
	for _, id := range ids {
		if _, dup := w.known[id]; dup {
			continue
		}
		w.known[id] = struct{}{}
		fresh = append(fresh, id)
	}
	w.assets = append(w.assets, fresh...)
	w.assetsMu.Unlock()

	if len(fresh) == 0 {
		return nil
	}

	err := w.writeJSON(subscribeMessage{AssetsIDs: fresh, Type: "market"})
	if errors.Is(err, ErrNotConnected) {
		w.log.Debug("ws_assets_queued", "count", len(fresh))
		return nil
	}
	if err != nil {
		return fmt.Errorf("subscribe additional assets: %w", err)
	}
	w.log.Info("ws_subscribed_additional", "count", len(fresh))
	return nil
}

// Status returns a snapshot for telemetry.
func (w *Worker) Status() WorkerStatus {
	st := WorkerStatus{
		ID:       w.id,
		State:    w.State(),
		Assets:   w.Len(),
		Attempts: int(w.attempts.Load()),
		Messages: w.messages.Load(),
		Events:   w.events.Load(),
	}
	if ns := w.connectedAt.Load(); ns != 0 {
		st.ConnectedSince = time.Unix(0, ns)
	}
	return st
}

// runLoop handles connection, reading, and reconnection.
func (w *Worker) runLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		w.setState(StateConnecting)
		conn, err := w.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("ws_connect_failed", "error", err, "attempt", w.attempts.Load())
			w.setState(StateError)
			if !w.waitBackoff(ctx) {
				return
			}
			continue
		}

		err = w.readLoop(ctx, conn)
		w.closeConnection()

		if ctx.Err() != nil {
			return
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			w.log.Info("ws_closed", "reason", err)
			w.setState(StateClosed)
		} else {
			w.log.Warn("ws_read_error", "error", err)
			w.setState(StateError)
		}

		if !w.waitBackoff(ctx) {
			return
		}
	}
}

// connect dials the market channel and sends the full subscription.
func (w *Worker) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	headers := http.Header{}
	headers.Set("Origin", "https://polymarket.com")
	if w.cfg.UserAgents != nil {
		if ua, ok := w.cfg.UserAgents.Next(); ok {
			headers.Set("User-Agent", ua)
		}
	}

	if w.cfg.UseProxy {
		if proxy := w.cfg.Proxies.Pick(ctx); proxy != nil {
			dialer.Proxy = http.ProxyURL(proxy)
			w.log.Debug("ws_using_proxy", "proxy", proxy.Host)
		} else {
			w.log.Debug("ws_direct_connection")
		}
	}

	// Ensure URL has /market path for the market channel
	url := w.cfg.URL
	if !strings.HasSuffix(url, "/market") {
		url = strings.TrimSuffix(url, "/") + "/market"
	}

	conn, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	// Stop cancels before it closes, so checking under connMu means either
	// this conn is dropped here or Stop's closeConnection sees it.
	w.connMu.Lock()
	if err := ctx.Err(); err != nil {
		w.connMu.Unlock()
		conn.Close()
		return nil, err
	}
	w.conn = conn
	w.connMu.Unlock()

	w.assetsMu.Lock()
	chunk := append([]string(nil), w.assets...)
	w.assetsMu.Unlock()

	if err := w.writeJSON(subscribeMessage{AssetsIDs: chunk, Type: "market"}); err != nil {
		w.closeConnection()
		return nil, fmt.Errorf("subscribe failed: %w", err)
	}

	w.connectedAt.Store(w.cfg.Clock().UnixNano())
	w.setState(StateSubscribed)
	w.log.Info("ws_subscribed", "asset_count", len(chunk))
	return conn, nil
}

// readLoop reads frames until the connection fails or ctx ends.
// The first inbound frame moves the worker to Streaming.
func (w *Worker) readLoop(ctx context.Context, conn *websocket.Conn) error {
	readTimeout := w.cfg.PingInterval + PongWait
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// Unblock ReadMessage when ctx ends, even if the server keeps streaming
	stopClose := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopClose()

	pingDone := make(chan struct{})
	defer close(pingDone)
	w.wg.Add(1)
	go w.keepalive(ctx, pingDone)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		if w.State() != StateStreaming {
			w.setState(StateStreaming)
			w.attempts.Store(0)
			w.log.Info("ws_streaming")
		}

		w.messages.Add(1)
		w.handleMessage(message)
	}
}

// handleMessage parses a frame and pushes accepted events.
func (w *Worker) handleMessage(data []byte) {
	events := ParseMessage(data)
	if len(events) == 0 {
		return
	}

	now := w.cfg.Clock()
	for _, ev := range events {
		ev.ObservedAt = now
		ev.WorkerID = w.id
		w.out.Push(ev)
	}
	w.events.Add(int64(len(events)))
}

// keepalive pings on PingInterval; a failed ping tears the connection down.
func (w *Worker) keepalive(ctx context.Context, done <-chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := w.writeControl(websocket.PingMessage); err != nil {
				w.log.Warn("ws_ping_failed", "error", err)
				w.closeConnection()
				return
			}
		}
	}
}

// waitBackoff sleeps ReconnectDelay and bumps the attempt counter.
// Returns false if ctx ended first.
func (w *Worker) waitBackoff(ctx context.Context) bool {
	w.setState(StateReconnecting)
	attempts := int(w.attempts.Load())
	delay := ReconnectDelay(w.cfg.ReconnectBase, attempts, w.cfg.CapExponent)
	w.attempts.Add(1)

	w.log.Info("ws_reconnecting", "delay", delay, "attempt", attempts+1)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// writeJSON serializes a write against the read loop and keepalive.
func (w *Worker) writeJSON(v any) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.connMu.RLock()
	conn := w.conn
	w.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	return conn.WriteJSON(v)
}

func (w *Worker) writeControl(messageType int) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.connMu.RLock()
	conn := w.conn
	w.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	return conn.WriteControl(messageType, nil, time.Now().Add(WriteTimeout))
}

// closeConnection safely closes the websocket connection.
func (w *Worker) closeConnection() {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
		w.connectedAt.Store(0)
		w.log.Info("ws_disconnected")
	}
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}
