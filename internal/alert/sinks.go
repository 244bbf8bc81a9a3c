package alert

import (
	"context"
	"log/slog"

	"github.com/polyinsider/spikewatch/internal/store"
)

type storeSink struct {
	store store.SignalStore
}

// NewStoreSink persists alerts to s.
func NewStoreSink(s store.SignalStore) Sink {
	return &storeSink{store: s}
}

func (s *storeSink) Name() string { return "store" }

func (s *storeSink) Deliver(ctx context.Context, alert store.SpikeAlert) error {
	return s.store.AddSpike(ctx, alert)
}

type logSink struct {
	log *slog.Logger
}

// NewLogSink writes every alert as a structured log line. It is the only sink
// when nothing else is configured.
func NewLogSink(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &logSink{log: logger}
}

func (s *logSink) Name() string { return "log" }

func (s *logSink) Deliver(_ context.Context, a store.SpikeAlert) error {
	s.log.Info("signal",
		"id", a.ID,
		"market_id", a.MarketID,
		"question", a.Question,
		"outcome", a.Outcome,
		"price", a.Price,
		"count", a.Count,
		"amount_usd", int64(a.AmountUSD),
	)
	return nil
}
