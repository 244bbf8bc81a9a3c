package store

import (
	"context"
	"fmt"
	"time"

	"github.com/polyinsider/spikewatch/internal/config"
)

// SignalStore persists spike alerts for the HTTP API.
type SignalStore interface {
	// AddSpike stores an alert and applies retention.
	AddSpike(ctx context.Context, alert SpikeAlert) error

	// RecentSpikes returns up to limit spikes inside the retention window, newest first.
	RecentSpikes(ctx context.Context, limit int) ([]SpikeAlert, error)

	Close() error
}

// Retention bounds what a SignalStore keeps.
type Retention struct {
	// Keep is the number of newest spikes kept regardless of age
	Keep int

	// MaxAge expires spikes older than this
	MaxAge time.Duration
}

// Open returns the Postgres store when DATABASE_URL is a postgres URL and the
// SQLite store at DBPath otherwise.
func Open(ctx context.Context, cfg *config.Config) (SignalStore, error) {
	ret := Retention{Keep: cfg.SpikeKeep, MaxAge: cfg.SpikeRetention}
	if cfg.UsePostgres() {
		s, err := NewPostgresStore(ctx, cfg.DatabaseURL, ret)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	}
	s, err := NewSQLiteStore(cfg.DBPath, ret)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return s, nil
}
