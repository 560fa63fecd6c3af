package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // Postgres driver
)

// Entry is one finished job. Digest identifies the batch content so repeated
// submissions of the same icons can be found.
type Entry struct {
	JobID     string
	Job       string
	Files     int
	Digest    string
	Outcome   string
	Fallback  bool
	StartedAt time.Time
	Duration  time.Duration
}

// Recorder records finished jobs
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Nop drops every entry
type Nop struct{}

// Record implements Recorder
func (Nop) Record(context.Context, Entry) error { return nil }

// Ledger keeps an audit trail of jobs in Postgres
type Ledger struct {
	db *sql.DB
}

// Open connects to databaseURL and ensures the ledger table exists
func Open(ctx context.Context, databaseURL string) (*Ledger, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to ledger database: %w", err)
	}

	l, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// New wraps an open database and ensures the ledger table exists
func New(ctx context.Context, db *sql.DB) (*Ledger, error) {
	l := &Ledger{db: db}

	if err := l.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure job ledger table: %w", err)
	}

	return l, nil
}

// ensureTable creates the job_ledger table if it doesn't exist
func (l *Ledger) ensureTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS job_ledger (
			job_id TEXT PRIMARY KEY,
			job TEXT NOT NULL,
			file_count INTEGER NOT NULL,
			batch_digest TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			fallback BOOLEAN NOT NULL DEFAULT FALSE,
			started_at TIMESTAMPTZ NOT NULL,
			duration_ms BIGINT NOT NULL,
			recorded_at TIMESTAMPTZ DEFAULT NOW()
		)
	`

	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create job_ledger table: %w", err)
	}

	migrate := `ALTER TABLE job_ledger ADD COLUMN IF NOT EXISTS batch_digest TEXT NOT NULL DEFAULT ''`
	if _, err := l.db.ExecContext(ctx, migrate); err != nil {
		return fmt.Errorf("failed to add batch_digest column: %w", err)
	}

	slog.Info("✓ job_ledger table ready")
	return nil
}

// Record stores e. Recording the same job twice keeps the latest outcome.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	query := `
		INSERT INTO job_ledger (job_id, job, file_count, batch_digest, outcome, fallback, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id) DO UPDATE
		SET outcome = EXCLUDED.outcome,
		    fallback = EXCLUDED.fallback,
		    file_count = EXCLUDED.file_count,
		    batch_digest = EXCLUDED.batch_digest,
		    duration_ms = EXCLUDED.duration_ms,
		    recorded_at = NOW()
	`

	_, err := l.db.ExecContext(ctx, query,
		e.JobID, e.Job, e.Files, e.Digest, e.Outcome, e.Fallback, e.StartedAt, e.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record job %s: %w", e.JobID, err)
	}
	return nil
}

// Close closes the database
func (l *Ledger) Close() error {
	return l.db.Close()
}
