// Package sqlite implements the historical-data collaborator and indicator
// result persistence on a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math"
	"time"

	"indicator-enginev1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// Store wraps the SQLite handle. Single writer connection, WAL mode.
type Store struct {
	db *sql.DB

	// OnCommit is an optional metrics hook invoked with each batch latency.
	OnCommit func(d time.Duration)
}

var (
	_ model.HistoryReader = (*Store)(nil)
	_ model.ResultWriter  = (*Store)(nil)
)

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Open creates the store, initializing WAL mode and the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", path)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS closes (
			exchange TEXT    NOT NULL,
			symbol   TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			close    REAL    NOT NULL,
			PRIMARY KEY (exchange, symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS indicator_values (
			name     TEXT    NOT NULL,
			exchange TEXT    NOT NULL,
			symbol   TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			value    REAL,
			ready    INTEGER NOT NULL,
			PRIMARY KEY (name, exchange, symbol, ts)
		);
	`)
	return err
}

// ReadCloses returns up to limit historical closing values for an
// instrument, oldest → newest. Implements model.HistoryReader.
func (s *Store) ReadCloses(ctx context.Context, inst model.Instrument, limit int) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT close FROM (
			SELECT close, ts FROM closes
			WHERE exchange = ? AND symbol = ?
			ORDER BY ts DESC LIMIT ?
		) ORDER BY ts ASC`,
		inst.Exchange, inst.Symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite read closes: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("sqlite scan close: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// WriteClose records one closing value (used to grow the history the next
// run can pre-warm from).
func (s *Store) WriteClose(ctx context.Context, inst model.Instrument, ts time.Time, close float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO closes (exchange, symbol, ts, close) VALUES (?, ?, ?, ?)`,
		inst.Exchange, inst.Symbol, ts.UnixMilli(), close)
	if err != nil {
		return fmt.Errorf("sqlite write close: %w", err)
	}
	return nil
}

// Run reads indicator results from resultCh and inserts them in batched
// transactions, flushing every defaultBatchSize results or defaultFlushDelay,
// whichever comes first. Implements model.ResultWriter.
func (s *Store) Run(ctx context.Context, resultCh <-chan model.IndicatorResult) {
	batch := make([]model.IndicatorResult, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := s.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else if s.OnCommit != nil {
			s.OnCommit(time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case r, ok := <-resultCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, r)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

func (s *Store) insertBatch(results []model.IndicatorResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO indicator_values (name, exchange, symbol, ts, value, ready)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		// SQLite has no NaN; warm-up values persist as NULL.
		var value any
		if !math.IsNaN(r.Value) {
			value = r.Value
		}
		if _, err := stmt.Exec(r.Name, r.Exchange, r.Symbol, r.TS.UnixMilli(), value, r.Ready); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert: %w", err)
		}
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
