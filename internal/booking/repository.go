package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists bookings in the relational database.
type Repository struct {
	pool querier
}

// NewRepository initializes a repo backed by pgxpool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("booking: pgx pool required")
	}
	return &Repository{pool: pool}
}

func newRepositoryWithQuerier(q querier) *Repository {
	if q == nil {
		panic("booking: querier required")
	}
	return &Repository{pool: q}
}

const bookingColumns = `id, practitioner_id, slot, name, email, phone, status, COALESCE(payment_session_id, ''), created_at, updated_at`

// Create inserts a new pending booking row.
func (r *Repository) Create(ctx context.Context, req *CreateRequest) (*Booking, error) {
	query := `
		INSERT INTO bookings (practitioner_id, slot, name, email, phone, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + bookingColumns
	row := r.pool.QueryRow(ctx, query,
		req.PractitionerID,
		req.Slot.UTC(),
		req.Name,
		req.Email,
		req.Phone,
		string(StatusPending),
	)
	b, err := scanBooking(row)
	if err != nil {
		return nil, fmt.Errorf("booking: insert failed: %w", err)
	}
	return b, nil
}

// GetByID fetches a booking by id.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	b, err := scanBooking(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("booking: select failed: %w", err)
	}
	return b, nil
}

// FindByPaymentSession fetches a booking by its stored checkout session id.
// This is the fallback correlation path for webhook events whose metadata is
// missing or stale.
func (r *Repository) FindByPaymentSession(ctx context.Context, sessionID string) (*Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE payment_session_id = $1`
	b, err := scanBooking(r.pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("booking: select by session failed: %w", err)
	}
	return b, nil
}

// SetPaymentSession writes the checkout session id back onto the booking.
// The column carries a uniqueness constraint; once set it never changes.
func (r *Repository) SetPaymentSession(ctx context.Context, id int64, sessionID string) error {
	query := `
		UPDATE bookings
		SET payment_session_id = $2, updated_at = now()
		WHERE id = $1 AND payment_session_id IS NULL
	`
	ct, err := r.pool.Exec(ctx, query, id, sessionID)
	if err != nil {
		return fmt.Errorf("booking: set payment session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("booking: payment session already set for booking %d", id)
	}
	return nil
}

// Transition applies a status change as a single atomic conditional write.
// The predicate is derived from the transition table, so a stale confirmation
// can never overwrite a cancelled booking regardless of delivery order.
// Returns false when no row matched, meaning the booking is absent or already
// in a state the transition table does not allow as a source.
func (r *Repository) Transition(ctx context.Context, id int64, to Status) (bool, error) {
	sources := SourcesFor(to)
	if len(sources) == 0 {
		return false, fmt.Errorf("booking: no transition reaches %q: %w", to, ErrInvalidTransition)
	}
	query := `
		UPDATE bookings
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)
	`
	ct, err := r.pool.Exec(ctx, query, id, string(to), sources)
	if err != nil {
		return false, fmt.Errorf("booking: transition to %s: %w", to, err)
	}
	return ct.RowsAffected() > 0, nil
}

// GetDetail fetches a booking joined with its practitioner display fields.
func (r *Repository) GetDetail(ctx context.Context, id int64) (*Detail, error) {
	query := `
		SELECT b.id, b.practitioner_id, b.slot, b.name, b.email, b.phone, b.status,
		       COALESCE(b.payment_session_id, ''), b.created_at, b.updated_at,
		       p.id, p.name, p.title
		FROM bookings b
		JOIN practitioners p ON p.id = b.practitioner_id
		WHERE b.id = $1
	`
	var d Detail
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&d.ID,
		&d.PractitionerID,
		&d.Slot,
		&d.Name,
		&d.Email,
		&d.Phone,
		&status,
		&d.PaymentSessionID,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.Practitioner.ID,
		&d.Practitioner.Name,
		&d.Practitioner.Title,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("booking: select detail failed: %w", err)
	}
	d.Status = Status(status)
	return &d, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var status string
	if err := row.Scan(
		&b.ID,
		&b.PractitionerID,
		&b.Slot,
		&b.Name,
		&b.Email,
		&b.Phone,
		&status,
		&b.PaymentSessionID,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.Status = Status(status)
	return &b, nil
}
