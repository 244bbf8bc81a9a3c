// Package pipeline wires the catalog, connection pool, event queue, spike
// engine and alert dispatcher together and runs the status and refresh loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/polyinsider/spikewatch/internal/alert"
	"github.com/polyinsider/spikewatch/internal/config"
	"github.com/polyinsider/spikewatch/internal/detector"
	"github.com/polyinsider/spikewatch/internal/ingest"
	"github.com/polyinsider/spikewatch/internal/metrics"
	"github.com/polyinsider/spikewatch/internal/queue"
	"github.com/polyinsider/spikewatch/internal/store"
)

// Catalog lists currently open markets.
type Catalog interface {
	FetchMarkets(ctx context.Context) ([]ingest.Market, error)
}

// Pipeline owns every long-lived component of the spike engine.
type Pipeline struct {
	cfg         *config.Config
	catalog     Catalog
	queue       *queue.Queue[store.TradeEvent]
	instruments *store.Instruments
	pool        *ingest.Pool
	engine      *detector.Engine
	dispatcher  *alert.Dispatcher
	tracker     *metrics.MetricsTracker
	log         *slog.Logger
	now         func() time.Time

	// Touched only by the Run goroutine
	tracked     map[string]struct{}
	subscribed  map[string]struct{}
	lastRefresh time.Time
}

// New builds a pipeline. Workers created by factory must push into q.
func New(
	cfg *config.Config,
	catalog Catalog,
	q *queue.Queue[store.TradeEvent],
	factory ingest.Factory,
	dispatcher *alert.Dispatcher,
	tracker *metrics.MetricsTracker,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if tracker == nil {
		tracker = metrics.NewMetricsTracker()
	}

	instruments := store.NewInstruments(nil)
	return &Pipeline{
		cfg:         cfg,
		catalog:     catalog,
		queue:       q,
		instruments: instruments,
		pool:        ingest.NewPool(factory, cfg.ChunkSize, cfg.SpawnStagger, logger),
		engine: detector.NewEngine(cfg, instruments, q, dispatcher, tracker,
			detector.WithLogger(logger)),
		dispatcher: dispatcher,
		tracker:    tracker,
		log:        logger,
		now:        time.Now,
		tracked:    make(map[string]struct{}),
		subscribed: make(map[string]struct{}),
	}
}

// Run loads the catalog, starts every component and blocks until ctx ends.
// Only a failed initial load is returned as an error.
func (p *Pipeline) Run(ctx context.Context) error {
	ids, err := p.bootstrap(ctx)
	if err != nil {
		return err
	}

	p.dispatcher.Start()

	engineCtx, stopEngine := context.WithCancel(context.Background())
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		p.engine.Run(engineCtx)
	}()

	p.log.Info("pool_starting", "instruments", len(ids), "chunk_size", p.cfg.ChunkSize)
	workers := p.pool.Start(ctx, ids)
	p.log.Info("pipeline_started", "workers", workers, "instruments", p.instruments.Len())

	ticker := time.NewTicker(p.cfg.StatusInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			p.statusTick(ctx)
		}
	}

	p.log.Info("pipeline_stopping")
	stopEngine()
	<-engineDone
	p.pool.Stop()
	p.dispatcher.Close()
	p.queue.Close()
	p.log.Info("pipeline_stopped", "queue_left", p.queue.Len())
	return nil
}

// statusTick refreshes the catalog when due and reports telemetry.
// A failed refresh stays due, so it is retried on the next tick.
func (p *Pipeline) statusTick(ctx context.Context) {
	if p.now().Sub(p.lastRefresh) >= p.cfg.RefreshInterval {
		p.Refresh(ctx) //nolint:errcheck // logged inside
	}
	p.reportStatus()
}

// bootstrap performs the initial catalog load and fills the registry.
func (p *Pipeline) bootstrap(ctx context.Context) ([]string, error) {
	markets, err := p.loadMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial catalog load: %w", err)
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("initial catalog load: %w", ingest.ErrNoMarkets)
	}

	recs := ingest.BuildInstruments(markets)
	p.instruments.Add(recs)
	for _, m := range markets {
		p.tracked[m.MarketKey()] = struct{}{}
	}
	ids := ingest.AssetIDs(markets)
	for _, id := range ids {
		p.subscribed[id] = struct{}{}
	}

	p.lastRefresh = p.now()
	p.tracker.SetInstruments(p.instruments.Len())
	p.tracker.SetLastRefresh(p.lastRefresh)
	p.log.Info("catalog_loaded", "markets", len(markets), "instruments", len(recs))
	return ids, nil
}

// RefreshResult summarizes one catalog refresh.
type RefreshResult struct {
	NewMarkets     int
	NewInstruments int
	Rebalance      ingest.RebalanceResult
}

// Refresh fetches the catalog and subscribes instruments of markets not seen
// before. Records are registered before subscribing so the first events
// resolve. On failure nothing changes and the refresh stays due; the error
// is logged and returned.
func (p *Pipeline) Refresh(ctx context.Context) (RefreshResult, error) {
	var res RefreshResult

	markets, err := p.loadMarkets(ctx)
	if err != nil && !errors.Is(err, ingest.ErrNoMarkets) {
		p.log.Warn("catalog_refresh_failed", "error", err)
		return res, err
	}
	p.lastRefresh = p.now()

	var fresh []ingest.Market
	for _, m := range markets {
		if _, ok := p.tracked[m.MarketKey()]; ok {
			continue
		}
		fresh = append(fresh, m)
	}
	p.tracker.SetLastRefresh(p.lastRefresh)
	if len(fresh) == 0 {
		p.log.Info("catalog_refreshed", "markets", len(markets), "new_markets", 0)
		return res, nil
	}

	var newIDs []string
	for _, id := range ingest.AssetIDs(fresh) {
		if _, ok := p.subscribed[id]; ok {
			continue
		}
		p.subscribed[id] = struct{}{}
		newIDs = append(newIDs, id)
	}

	res.NewMarkets = len(fresh)
	res.NewInstruments = p.instruments.Add(ingest.BuildInstruments(fresh))
	for _, m := range fresh {
		p.tracked[m.MarketKey()] = struct{}{}
	}
	res.Rebalance = p.pool.Rebalance(ctx, newIDs)
	p.tracker.SetInstruments(p.instruments.Len())

	p.log.Info("catalog_refreshed",
		"markets", len(markets),
		"new_markets", res.NewMarkets,
		"new_instruments", res.NewInstruments,
		"assigned", res.Rebalance.Assigned,
		"spawned", res.Rebalance.Spawned,
	)
	return res, nil
}

func (p *Pipeline) loadMarkets(ctx context.Context) ([]ingest.Market, error) {
	all, err := p.catalog.FetchMarkets(ctx)
	if err != nil {
		return nil, err
	}
	kept := ingest.Filter(all, p.cfg.MinPrice, p.cfg.ExcludedWords)
	p.log.Debug("markets_filtered", "fetched", len(all), "kept", len(kept))
	return kept, nil
}

// reportStatus pushes queue and worker state into the tracker and logs a summary.
func (p *Pipeline) reportStatus() {
	statuses := p.pool.Statuses()
	workers := make([]metrics.WorkerInfo, 0, len(statuses))
	for _, st := range statuses {
		workers = append(workers, metrics.WorkerInfo{
			ID:             st.ID,
			State:          st.State.String(),
			Assets:         st.Assets,
			Attempts:       st.Attempts,
			ConnectedSince: st.ConnectedSince,
			Messages:       st.Messages,
		})
	}

	p.tracker.SetWorkers(workers)
	p.tracker.SetQueue(p.queue.Len(), p.queue.Cap(), p.queue.Dropped())
	p.tracker.SetInstruments(p.instruments.Len())
	p.tracker.Cleanup()

	snap := p.tracker.Snapshot()
	p.log.Info("status",
		"queue", snap.QueueLen,
		"queue_cap", snap.QueueCap,
		"dropped", snap.QueueDropped,
		"events_per_sec", fmt.Sprintf("%.1f", snap.EventRate),
		"active_counters", snap.ActiveCounters,
		"workers_connected", snap.WorkersConnected,
		"workers", len(workers),
		"alerts", snap.Alerts,
	)
}

// Health summarizes pipeline state for the HTTP health endpoint.
func (p *Pipeline) Health() map[string]any {
	snap := p.tracker.Snapshot()
	return map[string]any{
		"instruments":       snap.Instruments,
		"workers":           len(snap.Workers),
		"workers_connected": snap.WorkersConnected,
		"queue":             snap.QueueLen,
		"queue_dropped":     snap.QueueDropped,
		"alerts":            snap.Alerts,
		"uptime_seconds":    int64(snap.Uptime.Seconds()),
	}
}

// Tracker returns the shared metrics tracker.
func (p *Pipeline) Tracker() *metrics.MetricsTracker {
	return p.tracker
}
