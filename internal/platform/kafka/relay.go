package kafka

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const pingTimeout = 5 * time.Second

// Publisher is the downstream half of the relay, satisfied by Producer.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// RelayOption configures the Relay.
type RelayOption func(*Relay)

// RelayWithLogger sets the structured logger.
func RelayWithLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) { r.logger = logger }
}

// RelayWithInterval sets the outbox poll interval.
func RelayWithInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// RelayWithBatchSize caps how many rows one drain pass claims.
func RelayWithBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// Relay moves rows from the outbox table to Kafka. Rows are claimed with
// FOR UPDATE SKIP LOCKED so multiple replicas can drain concurrently, and
// deleted only after the publish succeeds, giving at-least-once delivery.
type Relay struct {
	db        *sql.DB
	publisher Publisher

	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewRelay creates an outbox relay.
func NewRelay(db *sql.DB, publisher Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		db:        db,
		publisher: publisher,
		interval:  2 * time.Second,
		batchSize: 100,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains the outbox until the context ends.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := r.Drain(ctx); err != nil {
				r.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			} else if n > 0 {
				r.logger.DebugContext(ctx, "outbox drained", "published", n)
			}
		}
	}
}

// Drain claims one batch, publishes it, and deletes the published rows.
// Returns how many rows were published.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox drain: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, payload
		FROM outbox
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("claim outbox rows: %w", err)
	}

	type entry struct {
		id      uuid.UUID
		key     string
		payload []byte
	}
	var batch []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.key, &e.payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate outbox rows: %w", err)
	}
	rows.Close()

	if len(batch) == 0 {
		return 0, nil
	}

	published := make([]uuid.UUID, 0, len(batch))
	for _, e := range batch {
		if err := r.publisher.Publish(ctx, e.key, e.payload); err != nil {
			// Stop at the first failure; unpublished rows stay claimed until
			// the transaction ends and are retried next pass.
			break
		}
		published = append(published, e.id)
	}
	if len(published) == 0 {
		return 0, fmt.Errorf("publish outbox batch: no rows delivered")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM outbox WHERE id = ANY($1)`, pq.Array(published)); err != nil {
		return 0, fmt.Errorf("delete published outbox rows: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox drain: %w", err)
	}
	return len(published), nil
}
