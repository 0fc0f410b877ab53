// Package events tracks provider-delivered webhook events that were already
// handled, so at-least-once delivery becomes exactly-once-effective.
package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ProcessedStore is the append-only idempotency ledger. A row's existence
// means the event must not be reprocessed, regardless of whether processing
// actually mutated anything.
type ProcessedStore struct {
	pool execer
}

// NewProcessedStore creates a ledger backed by pgx pool.
func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{pool: pool}
}

func newProcessedStoreWithExec(exec execer) *ProcessedStore {
	if exec == nil {
		panic("events: exec required")
	}
	return &ProcessedStore{pool: exec}
}

// MarkProcessed durably claims an event id, returning false if it was
// already claimed. Two concurrent deliveries of the same event race on the
// primary key and exactly one sees true. Callers must claim before applying
// any mutation attributable to the event.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, eventID, eventType string) (bool, error) {
	if eventType == "" {
		eventType = "unknown"
	}
	query := `
		INSERT INTO webhook_events (provider, event_id, type)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, provider, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
