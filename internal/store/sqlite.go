package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps spikes in a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	ret Retention
	now func() time.Time
}

// NewSQLiteStore opens or creates the database at dbPath. ":memory:" is accepted.
func NewSQLiteStore(dbPath string, ret Retention) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, ret: ret, now: time.Now}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS spikes (
			id          TEXT PRIMARY KEY,
			market_id   TEXT NOT NULL,
			question    TEXT NOT NULL,
			outcome     TEXT NOT NULL,
			price       REAL NOT NULL,
			asset_id    TEXT NOT NULL,
			event_slug  TEXT,
			count       INTEGER NOT NULL,
			amount_usd  REAL NOT NULL,
			type        TEXT NOT NULL,
			detected_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spikes_detected_at ON spikes(detected_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AddSpike inserts alert, then deletes spikes beyond Keep and older than MaxAge.
func (s *SQLiteStore) AddSpike(ctx context.Context, alert SpikeAlert) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO spikes
			(id, market_id, question, outcome, price, asset_id, event_slug,
			 count, amount_usd, type, detected_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		alert.ID, alert.MarketID, alert.Question, alert.Outcome, alert.Price,
		alert.InstrumentID, alert.EventSlug, alert.Count, alert.AmountUSD,
		alert.Type, alert.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert spike: %w", err)
	}

	if s.ret.Keep > 0 {
		if _, err = tx.ExecContext(ctx, `
			DELETE FROM spikes WHERE id NOT IN (
				SELECT id FROM spikes ORDER BY detected_at DESC LIMIT ?
			)`, s.ret.Keep); err != nil {
			return fmt.Errorf("failed to enforce spike cap: %w", err)
		}
	}
	if s.ret.MaxAge > 0 {
		cutoff := s.now().Add(-s.ret.MaxAge).UnixNano()
		if _, err = tx.ExecContext(ctx, `DELETE FROM spikes WHERE detected_at < ?`, cutoff); err != nil {
			return fmt.Errorf("failed to expire spikes: %w", err)
		}
	}

	return tx.Commit()
}

// RecentSpikes returns up to limit spikes within MaxAge, newest first.
func (s *SQLiteStore) RecentSpikes(ctx context.Context, limit int) ([]SpikeAlert, error) {
	var cutoff int64
	if s.ret.MaxAge > 0 {
		cutoff = s.now().Add(-s.ret.MaxAge).UnixNano()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, market_id, question, outcome, price, asset_id, event_slug,
		       count, amount_usd, type, detected_at
		FROM spikes WHERE detected_at >= ?
		ORDER BY detected_at DESC LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query spikes: %w", err)
	}
	defer rows.Close()

	spikes := []SpikeAlert{}
	for rows.Next() {
		var a SpikeAlert
		var slug sql.NullString
		var detected int64
		if err := rows.Scan(&a.ID, &a.MarketID, &a.Question, &a.Outcome, &a.Price,
			&a.InstrumentID, &slug, &a.Count, &a.AmountUSD, &a.Type, &detected); err != nil {
			return nil, fmt.Errorf("failed to scan spike: %w", err)
		}
		a.EventSlug = slug.String
		a.Timestamp = time.Unix(0, detected).UTC()
		spikes = append(spikes, a)
	}
	return spikes, rows.Err()
}
