package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/karangupta982/smart-event-booking-system/entity"
)

// lockWaitTimeout bounds how long an allocation waits for a contended event
// row before failing with entity.ErrStoreUnavailable.
const lockWaitTimeout = "5s"

type txContextKey struct{}

// TxFromContext returns the transaction opened by AllocationStore.WithTx.
// Components that must write in the same atomic unit as the seat decrement
// (the booking insert, the outbox publish) use it.
func TxFromContext(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*sqlx.Tx)
	return tx, ok
}

// AllocationStore runs the allocation critical section against postgres.
// WithTx opens the unit of work and carries the transaction in the context;
// GetEventForUpdate takes the row lock that serialises allocators for the
// same event while leaving other events untouched.
type AllocationStore struct {
	db *sqlx.DB
}

func NewAllocationStore(db *sqlx.DB) AllocationStore {
	return AllocationStore{
		db: db,
	}
}

func (s AllocationStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storeError("beginning transaction", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%s'", lockWaitTimeout)); err != nil {
		_ = tx.Rollback()
		return storeError("setting lock timeout", err)
	}

	if err := fn(context.WithValue(ctx, txContextKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return storeError("rolling back transaction", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return storeError("committing transaction", err)
	}

	return nil
}

func (s AllocationStore) GetEventForUpdate(ctx context.Context, eventID string) (entity.Event, error) {
	tx, ok := TxFromContext(ctx)
	if !ok {
		return entity.Event{}, errors.New("getting event for update: no transaction in context")
	}

	var e entity.Event
	err := tx.GetContext(ctx, &e, `SELECT event_id, title, location, date,
		total_seats, remaining_seats, unit_price_cents
		FROM events WHERE event_id = $1 FOR UPDATE`, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidUUID(err) {
			return entity.Event{}, entity.ErrEventNotFound
		}
		return entity.Event{}, storeError("locking event row", err)
	}

	return e, nil
}

func (s AllocationStore) UpdateRemainingSeats(ctx context.Context, eventID string, remaining int) error {
	tx, ok := TxFromContext(ctx)
	if !ok {
		return errors.New("updating remaining seats: no transaction in context")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE events SET remaining_seats = $2 WHERE event_id = $1`,
		eventID, remaining); err != nil {
		return storeError("updating remaining seats", err)
	}

	return nil
}

func (s AllocationStore) UpdateEvent(ctx context.Context, e entity.Event) error {
	tx, ok := TxFromContext(ctx)
	if !ok {
		return errors.New("updating event: no transaction in context")
	}

	if _, err := tx.ExecContext(ctx, `UPDATE events
		SET title = $2, location = $3, date = $4, total_seats = $5,
			remaining_seats = $6, unit_price_cents = $7
		WHERE event_id = $1`,
		e.ID, e.Title, e.Location, e.Date, e.TotalSeats, e.RemainingSeats, e.UnitPriceCents); err != nil {
		return storeError("updating event", err)
	}

	return nil
}

func (s AllocationStore) AddBooking(ctx context.Context, b entity.Booking) error {
	tx, ok := TxFromContext(ctx)
	if !ok {
		return errors.New("adding booking: no transaction in context")
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO bookings
		(booking_id, event_id, name, email, contact, quantity, total_amount_cents, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`,
		b.ID, b.EventID, b.Name, b.Email, b.Contact, b.Quantity, b.TotalAmountCents, b.Status, b.CreatedAt); err != nil {
		return storeError("inserting booking", err)
	}

	return nil
}

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(entity.ErrStoreUnavailable, err))
}

// 22P02: invalid_text_representation, raised when a request carries a
// malformed UUID. Treated as not-found rather than a store failure.
func isInvalidUUID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "22P02"
}
