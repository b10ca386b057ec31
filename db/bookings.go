package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/karangupta982/smart-event-booking-system/entity"
)

// BookingRepo is the read side of the booking ledger. Inserts happen only
// inside the allocation transaction, see AllocationStore.AddBooking.
type BookingRepo struct {
	db *sqlx.DB
}

func NewBookingRepo(db *sqlx.DB) BookingRepo {
	return BookingRepo{
		db: db,
	}
}

func (r BookingRepo) Get(ctx context.Context, bookingID string) (entity.Booking, error) {
	var b entity.Booking
	err := r.db.GetContext(ctx, &b, `SELECT booking_id, event_id, name, email,
		contact, quantity, total_amount_cents, status, created_at
		FROM bookings WHERE booking_id = $1`, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidUUID(err) {
			return entity.Booking{}, entity.ErrBookingNotFound
		}
		return entity.Booking{}, fmt.Errorf("querying booking: %w", err)
	}

	return b, nil
}

func (r BookingRepo) ListByEvent(ctx context.Context, eventID string) ([]entity.Booking, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT booking_id, event_id, name, email,
		contact, quantity, total_amount_cents, status, created_at
		FROM bookings WHERE event_id = $1 ORDER BY created_at ASC`, eventID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, entity.ErrEventNotFound
		}
		return nil, fmt.Errorf("querying bookings: %w", err)
	}
	defer rows.Close()

	var bookings []entity.Booking
	for rows.Next() {
		var b entity.Booking
		if err := rows.StructScan(&b); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		bookings = append(bookings, b)
	}

	return bookings, rows.Err()
}
