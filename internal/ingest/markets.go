package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/polyinsider/spikewatch/internal/store"
)

// ErrNoMarkets is returned when the catalog yields no markets at all.
var ErrNoMarkets = errors.New("catalog returned no markets")

// Market is one binary or multi-outcome market from the Gamma events feed.
type Market struct {
	ID          string
	ConditionID string
	Question    string
	Slug        string
	EventSlug   string
	Outcomes    []string
	Prices      []float64
	AssetIDs    []string
	EndDate     string
}

// gammaEvent is one record of the Gamma /events response.
type gammaEvent struct {
	Slug    string        `json:"slug"`
	Markets []gammaMarket `json:"markets"`
}

// gammaMarket carries list fields as JSON-encoded strings.
type gammaMarket struct {
	ID            string `json:"id"`
	Question      string `json:"question"`
	Slug          string `json:"slug"`
	ConditionID   string `json:"conditionId"`
	Outcomes      string `json:"outcomes"`
	OutcomePrices string `json:"outcomePrices"`
	ClobTokenIDs  string `json:"clobTokenIds"` // JSON array as string
	EndDate       string `json:"endDate"`
}

// CatalogConfig controls catalog pagination.
type CatalogConfig struct {
	URL         string
	PageSize    int
	Concurrency int
	MaxPages    int
	MaxRetries  int
}

// Catalog fetches the open-market catalog from the Gamma API.
type Catalog struct {
	cfg     CatalogConfig
	clients *Rotator[*http.Client]
	agents  *Rotator[string]
	log     *slog.Logger

	// sleep waits between page retries; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCatalog creates a catalog client. Requests round-robin over clients.
func NewCatalog(cfg CatalogConfig, clients []*http.Client, agents *Rotator[string], logger *slog.Logger) *Catalog {
	if len(clients) == 0 {
		clients = []*http.Client{{Timeout: 15 * time.Second}}
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = 100
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if agents == nil {
		agents = NewRotator(UserAgents)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		cfg:     cfg,
		clients: NewRotator(clients),
		agents:  agents,
		log:     logger,
		sleep:   sleepCtx,
	}
}

// FetchMarkets pages through the catalog concurrently until an empty page or MaxPages.
// Pages that fail after all retries are skipped.
func (c *Catalog) FetchMarkets(ctx context.Context) ([]Market, error) {
	start := time.Now()

	var (
		mu      sync.Mutex
		pages   = make(map[int][]Market)
		stop    atomic.Bool
		failed  atomic.Int32
		skipped atomic.Int32
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for page := 0; page < c.cfg.MaxPages; page++ {
		if stop.Load() || gctx.Err() != nil {
			break
		}
		page := page
		g.Go(func() error {
			if stop.Load() {
				return nil
			}
			events, err := c.fetchPage(gctx, page*c.cfg.PageSize)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				c.log.Error("catalog_page_failed", "offset", page*c.cfg.PageSize, "error", err)
				return nil
			}
			if len(events) == 0 {
				stop.Store(true)
				return nil
			}

			markets, bad := convertEvents(events)
			skipped.Add(int32(bad))
			mu.Lock()
			pages[page] = markets
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}

	var markets []Market
	for page := 0; page < c.cfg.MaxPages; page++ {
		markets = append(markets, pages[page]...)
	}

	c.log.Info("catalog_fetched",
		"markets", len(markets),
		"pages", len(pages),
		"failed_pages", failed.Load(),
		"malformed_markets", skipped.Load(),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	if len(markets) == 0 {
		return nil, ErrNoMarkets
	}
	return markets, nil
}

// fetchPage retrieves one page with retry and backoff.
func (c *Catalog) fetchPage(ctx context.Context, offset int) ([]gammaEvent, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.cfg.PageSize))
	q.Set("offset", strconv.Itoa(offset))
	q.Set("closed", "false")
	endpoint := c.cfg.URL + "?" + q.Encode()

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		events, err := c.get(ctx, endpoint)
		if err == nil {
			return events, nil
		}
		lastErr = err

		if attempt < c.cfg.MaxRetries-1 {
			if err := c.sleep(ctx, catalogBackoff(attempt)); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", c.cfg.MaxRetries, lastErr)
}

func (c *Catalog) get(ctx context.Context, endpoint string) ([]gammaEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if ua, ok := c.agents.Next(); ok {
		req.Header.Set("User-Agent", ua)
	}
	req.Header.Set("Accept", "application/json")

	client, _ := c.clients.Next()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var events []gammaEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return events, nil
}

// convertEvents flattens events into markets, skipping malformed ones.
func convertEvents(events []gammaEvent) ([]Market, int) {
	var (
		markets []Market
		bad     int
	)
	for _, ev := range events {
		for _, gm := range ev.Markets {
			m, err := convertMarket(ev.Slug, gm)
			if err != nil {
				slog.Debug("catalog_market_skipped", "market", gm.Slug, "error", err)
				bad++
				continue
			}
			markets = append(markets, m)
		}
	}
	return markets, bad
}

func convertMarket(eventSlug string, gm gammaMarket) (Market, error) {
	m := Market{
		ID:          gm.ID,
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
		Slug:        gm.Slug,
		EventSlug:   eventSlug,
		EndDate:     gm.EndDate,
	}

	if err := decodeList(gm.Outcomes, &m.Outcomes); err != nil {
		return Market{}, fmt.Errorf("outcomes: %w", err)
	}
	if err := decodeList(gm.ClobTokenIDs, &m.AssetIDs); err != nil {
		return Market{}, fmt.Errorf("clobTokenIds: %w", err)
	}

	var rawPrices []string
	if err := decodeList(gm.OutcomePrices, &rawPrices); err != nil {
		return Market{}, fmt.Errorf("outcomePrices: %w", err)
	}
	m.Prices = make([]float64, 0, len(rawPrices))
	for _, p := range rawPrices {
		d, err := decimal.NewFromString(p)
		if err != nil {
			return Market{}, fmt.Errorf("outcomePrices: %w", err)
		}
		f, _ := d.Float64()
		m.Prices = append(m.Prices, f)
	}

	return m, nil
}

// decodeList parses a JSON-encoded string list; empty means an empty list.
func decodeList(s string, out *[]string) error {
	if s == "" {
		*out = nil
		return nil
	}
	return json.Unmarshal([]byte(s), out)
}

// MarketKey is the identity used to diff catalog loads: the condition id, or the Gamma id when absent.
func (m Market) MarketKey() string {
	if m.ConditionID != "" {
		return m.ConditionID
	}
	return m.ID
}

// Filter keeps markets with exactly two outcomes, every price below minPrice
// and no excluded word in the question.
func Filter(markets []Market, minPrice float64, excluded []string) []Market {
	var kept []Market
	for _, m := range markets {
		if len(m.Prices) != 2 {
			continue
		}
		if maxPrice(m.Prices) >= minPrice {
			continue
		}
		if containsAny(m.Question, excluded) {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}

func maxPrice(prices []float64) float64 {
	best := prices[0]
	for _, p := range prices[1:] {
		if p > best {
			best = p
		}
	}
	return best
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// BuildInstruments maps every asset id of markets to its InstrumentRecord.
func BuildInstruments(markets []Market) map[string]store.InstrumentRecord {
	recs := make(map[string]store.InstrumentRecord)
	for _, m := range markets {
		for i, assetID := range m.AssetIDs {
			recs[assetID] = store.InstrumentRecord{
				InstrumentID: assetID,
				MarketID:     m.MarketKey(),
				Question:     m.Question,
				Slug:         m.Slug,
				EventSlug:    m.EventSlug,
				Outcomes:     m.Outcomes,
				Prices:       m.Prices,
				OutcomeIndex: i,
			}
		}
	}
	return recs
}

// AssetIDs extracts all token ids from markets, deduplicated in first-seen order.
func AssetIDs(markets []Market) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, m := range markets {
		for _, id := range m.AssetIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
