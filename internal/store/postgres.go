package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps spikes in Postgres through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	ret  Retention
	now  func() time.Time
}

// NewPostgresStore connects to connStr, pings it and creates the spikes table.
func NewPostgresStore(ctx context.Context, connStr string, ret Retention) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolCfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{pool: pool, ret: ret, now: time.Now}
	if err := s.createTables(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS spikes (
			id          TEXT PRIMARY KEY,
			market_id   TEXT NOT NULL,
			question    TEXT NOT NULL,
			outcome     TEXT NOT NULL,
			price       DOUBLE PRECISION NOT NULL,
			asset_id    TEXT NOT NULL,
			event_slug  TEXT,
			count       INTEGER NOT NULL,
			amount_usd  DOUBLE PRECISION NOT NULL,
			type        TEXT NOT NULL,
			detected_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spikes_detected_at ON spikes(detected_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// AddSpike inserts alert and applies retention in one transaction.
func (s *PostgresStore) AddSpike(ctx context.Context, alert SpikeAlert) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO spikes
			(id, market_id, question, outcome, price, asset_id, event_slug,
			 count, amount_usd, type, detected_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO NOTHING`,
		alert.ID, alert.MarketID, alert.Question, alert.Outcome, alert.Price,
		alert.InstrumentID, alert.EventSlug, alert.Count, alert.AmountUSD,
		alert.Type, alert.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert spike: %w", err)
	}

	if s.ret.Keep > 0 {
		if _, err = tx.Exec(ctx, `
			DELETE FROM spikes WHERE id NOT IN (
				SELECT id FROM spikes ORDER BY detected_at DESC LIMIT $1
			)`, s.ret.Keep); err != nil {
			return fmt.Errorf("enforce spike cap: %w", err)
		}
	}
	if s.ret.MaxAge > 0 {
		if _, err = tx.Exec(ctx, `DELETE FROM spikes WHERE detected_at < $1`,
			s.now().Add(-s.ret.MaxAge)); err != nil {
			return fmt.Errorf("expire spikes: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// RecentSpikes returns up to limit spikes within MaxAge, newest first.
func (s *PostgresStore) RecentSpikes(ctx context.Context, limit int) ([]SpikeAlert, error) {
	cutoff := time.Unix(0, 0)
	if s.ret.MaxAge > 0 {
		cutoff = s.now().Add(-s.ret.MaxAge)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, market_id, question, outcome, price, asset_id,
		       COALESCE(event_slug, ''), count, amount_usd, type, detected_at
		FROM spikes WHERE detected_at >= $1
		ORDER BY detected_at DESC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query spikes: %w", err)
	}

	spikes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SpikeAlert, error) {
		var a SpikeAlert
		err := row.Scan(&a.ID, &a.MarketID, &a.Question, &a.Outcome, &a.Price,
			&a.InstrumentID, &a.EventSlug, &a.Count, &a.AmountUSD, &a.Type, &a.Timestamp)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan spikes: %w", err)
	}
	return spikes, nil
}
