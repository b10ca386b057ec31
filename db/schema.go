package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func CreateEventsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS events (
		event_id UUID PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		location VARCHAR(255) NOT NULL,
		date TIMESTAMP WITH TIME ZONE NOT NULL,
		total_seats INTEGER NOT NULL,
		remaining_seats INTEGER NOT NULL,
		unit_price_cents BIGINT NOT NULL,
		CHECK (remaining_seats >= 0 AND remaining_seats <= total_seats)
	);`)
	return err
}

func CreateBookingsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS bookings (
		booking_id UUID PRIMARY KEY,
		event_id UUID NOT NULL,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL,
		contact VARCHAR(255) NOT NULL,
		quantity INTEGER NOT NULL,
		total_amount_cents BIGINT NOT NULL,
		status VARCHAR(32) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);`)
	return err
}

func InitialiseDB(ctx context.Context, db *sqlx.DB) error {
	if err := CreateEventsTable(ctx, db); err != nil {
		return fmt.Errorf("creating events table: %w", err)
	}

	if err := CreateBookingsTable(ctx, db); err != nil {
		return fmt.Errorf("creating bookings table: %w", err)
	}

	return nil
}
