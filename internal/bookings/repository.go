package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInvalidBooking is returned when a booking lacks its event id or start.
var ErrInvalidBooking = errors.New("bookings: invalid booking")

// Booking is the durable record of an appointment the assistant created.
type Booking struct {
	ID               uuid.UUID
	EventID          string
	SubscriberID     string
	Provider         string
	PatientName      string
	Email            string
	Phone            string
	CPF              string
	BirthDate        string
	Address          string
	Procedure        string
	Referral         string
	Modality         string
	PaymentConfirmed bool
	StartsAt         time.Time
	CreatedAt        time.Time
}

// Validate checks the fields every booking must carry.
func (b Booking) Validate() error {
	if strings.TrimSpace(b.EventID) == "" {
		return fmt.Errorf("%w: event id required", ErrInvalidBooking)
	}
	if b.StartsAt.IsZero() {
		return fmt.Errorf("%w: start time required", ErrInvalidBooking)
	}
	return nil
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository persists bookings in Postgres.
type Repository struct {
	db rowQuerier
}

// NewRepository creates a repository backed by pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &Repository{db: pool}
}

func newRepositoryWithQuerier(q rowQuerier) *Repository {
	if q == nil {
		panic("bookings: querier required")
	}
	return &Repository{db: q}
}

const insertBooking = `
	INSERT INTO bookings (
		id, event_id, subscriber_id, provider, patient_name, email, phone, cpf,
		birth_date, address, procedure, referral, modality, payment_confirmed, starts_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (event_id) DO NOTHING
	RETURNING created_at
`

// Insert stores b, assigning an id when missing. Re-recording the same
// calendar event is a no-op.
func (r *Repository) Insert(ctx context.Context, b *Booking) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	var createdAt pgtype.Timestamptz
	err := r.db.QueryRow(ctx, insertBooking,
		toPGUUID(b.ID), b.EventID, b.SubscriberID, b.Provider, b.PatientName, b.Email, b.Phone, b.CPF,
		b.BirthDate, b.Address, b.Procedure, b.Referral, b.Modality, b.PaymentConfirmed, toPGTime(b.StartsAt),
	).Scan(&createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("bookings: insert: %w", err)
	}
	if createdAt.Valid {
		b.CreatedAt = createdAt.Time
	}
	return nil
}

const listForSubscriber = `
	SELECT id, event_id, subscriber_id, provider, patient_name, email, phone, procedure, modality, starts_at, created_at
	FROM bookings
	WHERE subscriber_id = $1
	ORDER BY starts_at DESC
	LIMIT $2
`

// ListForSubscriber returns the subscriber's most recent bookings.
func (r *Repository) ListForSubscriber(ctx context.Context, subscriberID string, limit int) ([]Booking, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, listForSubscriber, subscriberID, limit)
	if err != nil {
		return nil, fmt.Errorf("bookings: list for subscriber: %w", err)
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		var (
			b         Booking
			id        pgtype.UUID
			startsAt  pgtype.Timestamptz
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &b.EventID, &b.SubscriberID, &b.Provider, &b.PatientName, &b.Email, &b.Phone, &b.Procedure, &b.Modality, &startsAt, &createdAt); err != nil {
			return nil, fmt.Errorf("bookings: scan: %w", err)
		}
		if id.Valid {
			b.ID = uuid.UUID(id.Bytes)
		}
		b.StartsAt = startsAt.Time
		b.CreatedAt = createdAt.Time
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: iterate: %w", err)
	}
	return out, nil
}

func toPGUUID(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{
		Bytes: [16]byte(id),
		Valid: true,
	}
}

func toPGTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{
		Time:  t,
		Valid: true,
	}
}
