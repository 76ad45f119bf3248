package recorder

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the events table. Safe to apply repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS subscription_events (
	event_id        UUID PRIMARY KEY,
	subscription    TEXT NOT NULL,
	subscription_id TEXT NOT NULL,
	received_at     BIGINT NOT NULL,
	payload         JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS subscription_events_name_time_idx
	ON subscription_events (subscription, received_at);
`

const insertEvent = `
	INSERT INTO subscription_events (event_id, subscription, subscription_id, received_at, payload)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (event_id) DO NOTHING
`

// BatchSender sends queued statements in one round trip. *pgxpool.Pool
// satisfies it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Execer runs a single statement. *pgxpool.Pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Config contains configuration for the recorder.
type Config struct {
	// BatchSize is the number of events to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: 2 * time.Second,
	}
}

// Metrics holds recorder counters.
type Metrics struct {
	Received  int64
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db Execer) error {
	_, err := db.Exec(ctx, Schema)
	return err
}
