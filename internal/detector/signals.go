// Package detector implements volume-spike detection over the trade event stream.
package detector

import (
	"context"
	"log/slog"
	"time"

	"github.com/polyinsider/spikewatch/internal/config"
	"github.com/polyinsider/spikewatch/internal/metrics"
	"github.com/polyinsider/spikewatch/internal/store"
)

// DefaultSweepInterval is how often idle counters are collected.
const DefaultSweepInterval = time.Minute

// Source yields queued trade events without blocking.
type Source interface {
	TryPop() (store.TradeEvent, bool)
}

// Publisher accepts alerts. Publish must not block.
type Publisher interface {
	Publish(alert store.SpikeAlert)
}

// Lookup resolves instrument ids to records.
type Lookup interface {
	Lookup(id string) (store.InstrumentRecord, bool)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithSweepInterval sets how often Run collects stale counters.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) { e.sweepEvery = d }
}

// Engine is the single consumer of the event queue. It owns every AssetCounter.
type Engine struct {
	cfg         *config.Config
	instruments Lookup
	src         Source
	pub         Publisher
	tracker     *metrics.MetricsTracker
	log         *slog.Logger
	now         func() time.Time
	sweepEvery  time.Duration

	counters map[string]*AssetCounter
}

// NewEngine creates an engine reading from src and publishing to pub.
func NewEngine(cfg *config.Config, instruments Lookup, src Source, pub Publisher, tracker *metrics.MetricsTracker, opts ...Option) *Engine {
	e := &Engine{
		cfg:         cfg,
		instruments: instruments,
		src:         src,
		pub:         pub,
		tracker:     tracker,
		log:         slog.Default(),
		now:         time.Now,
		sweepEvery:  DefaultSweepInterval,
		counters:    make(map[string]*AssetCounter),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracker == nil {
		e.tracker = metrics.NewMetricsTracker()
	}
	return e
}

// Run drains the source until ctx ends, sleeping IdlePollInterval when it is empty.
func (e *Engine) Run(ctx context.Context) {
	sweep := time.NewTicker(e.sweepEvery)
	defer sweep.Stop()

	e.log.Info("engine_started",
		"threshold", e.cfg.SpikeThreshold,
		"window", e.cfg.TimeWindow,
		"min_buy_usd", e.cfg.MinBuyUSD,
	)

	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine_stopped", "counters", len(e.counters))
			return
		case <-sweep.C:
			if removed := e.Sweep(e.now()); removed > 0 {
				e.log.Debug("counters_swept", "removed", removed, "active", len(e.counters))
			}
		default:
		}

		ev, ok := e.src.TryPop()
		if !ok {
			select {
			case <-ctx.Done():
				e.log.Info("engine_stopped", "counters", len(e.counters))
				return
			case <-time.After(e.cfg.IdlePollInterval):
			}
			continue
		}

		e.Process(ev)
	}
}

// Process resolves the event's instrument and runs spike detection on it.
func (e *Engine) Process(ev store.TradeEvent) {
	e.tracker.IncrementEvents()

	rec, ok := e.instruments.Lookup(ev.InstrumentID)
	if !ok {
		e.tracker.IncrementUnknown()
		e.log.Warn("unknown_instrument", "asset_id", truncateID(ev.InstrumentID), "worker_id", ev.WorkerID)
		return
	}

	alert, fired := e.HandleTrade(rec, ev)
	if fired {
		e.pub.Publish(*alert)
		e.tracker.IncrementAlert(rec.InstrumentID)
	}
}

// HandleTrade applies one trade to its instrument's counter and returns an
// alert when the window crosses a new multiple of the threshold.
func (e *Engine) HandleTrade(rec store.InstrumentRecord, ev store.TradeEvent) (*store.SpikeAlert, bool) {
	usd := ev.USDValue()
	if ev.Side != store.SideBuy || usd < e.cfg.MinBuyUSD {
		return nil, false
	}

	now := e.now()
	c, exists := e.counters[rec.InstrumentID]
	if !exists {
		c = &AssetCounter{}
		e.counters[rec.InstrumentID] = c
		e.tracker.SetActiveCounters(len(e.counters))
	}

	c.Record(ev.ObservedAt, usd, ev.Price, now)
	c.Prune(now, e.cfg.TimeWindow, e.cfg.SpikeThreshold)

	e.tracker.RecordQualifyingBuy(metrics.LargeBuy{
		InstrumentID: rec.InstrumentID,
		Question:     rec.Question,
		Outcome:      rec.Outcome(),
		Price:        ev.Price,
		USDValue:     usd,
		WorkerID:     ev.WorkerID,
		Timestamp:    ev.ObservedAt,
	}, c.Count(), c.AmountUSD())

	if !c.CheckSpike(e.cfg.SpikeThreshold) {
		return nil, false
	}

	price := c.LastPrice()
	amount := c.AmountUSD()
	if price > e.cfg.MaxSignalPrice {
		e.tracker.IncrementSuppressed()
		e.log.Info("spike_suppressed",
			"question", rec.Question,
			"outcome", rec.Outcome(),
			"price", price,
			"max_price", e.cfg.MaxSignalPrice,
		)
		return nil, false
	}

	alert := store.NewSpikeAlert(rec, price, c.Count(), amount, now)
	e.log.Info("spike_alert",
		"question", rec.Question,
		"outcome", alert.Outcome,
		"count", alert.Count,
		"amount_usd", int64(amount),
		"price", price,
	)
	return &alert, true
}

// Sweep prunes every counter and deletes those that are empty and idle past
// CounterStale. Returns the number removed.
func (e *Engine) Sweep(now time.Time) int {
	removed := 0
	for id, c := range e.counters {
		c.Prune(now, e.cfg.TimeWindow, e.cfg.SpikeThreshold)
		if c.Stale(now, e.cfg.CounterStale) {
			delete(e.counters, id)
			removed++
		}
	}
	e.tracker.SetActiveCounters(len(e.counters))
	return removed
}

// ActiveCounters returns the number of live counters. Only safe from the engine goroutine or after Run returns.
func (e *Engine) ActiveCounters() int {
	return len(e.counters)
}

// truncateID shortens a token id for logging.
func truncateID(id string) string {
	if len(id) > 16 {
		return id[:16] + "..."
	}
	return id
}
