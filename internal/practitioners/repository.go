package practitioners

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads practitioners from the relational database.
type Repository struct {
	pool rowQuerier
}

// NewRepository initializes a repo backed by pgxpool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("practitioners: pgx pool required")
	}
	return &Repository{pool: pool}
}

func newRepositoryWithQuerier(q rowQuerier) *Repository {
	if q == nil {
		panic("practitioners: querier required")
	}
	return &Repository{pool: q}
}

// GetByID fetches a practitioner by id.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Practitioner, error) {
	query := `
		SELECT id, name, title, specialty, description, event_type_id, base_price_pence, created_at
		FROM practitioners
		WHERE id = $1
	`
	var p Practitioner
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Title,
		&p.Specialty,
		&p.Description,
		&p.EventTypeID,
		&p.BasePricePence,
		&p.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("practitioners: select failed: %w", err)
	}
	return &p, nil
}
