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

type EventRepo struct {
	db *sqlx.DB
}

func NewEventRepo(db *sqlx.DB) EventRepo {
	return EventRepo{
		db: db,
	}
}

func (r EventRepo) Add(ctx context.Context, e entity.Event) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO events
		(event_id, title, location, date, total_seats, remaining_seats, unit_price_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7);`,
		e.ID, e.Title, e.Location, e.Date, e.TotalSeats, e.RemainingSeats, e.UnitPriceCents)
	return err
}

func (r EventRepo) Get(ctx context.Context, eventID string) (entity.Event, error) {
	var e entity.Event
	err := r.db.GetContext(ctx, &e, `SELECT event_id, title, location, date,
		total_seats, remaining_seats, unit_price_cents
		FROM events WHERE event_id = $1`, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidUUID(err) {
			return entity.Event{}, entity.ErrEventNotFound
		}
		return entity.Event{}, fmt.Errorf("querying event: %w", err)
	}

	return e, nil
}

func (r EventRepo) List(ctx context.Context) ([]entity.Event, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT event_id, title, location, date,
		total_seats, remaining_seats, unit_price_cents
		FROM events ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []entity.Event
	for rows.Next() {
		var e entity.Event
		if err := rows.StructScan(&e); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		events = append(events, e)
	}

	return events, rows.Err()
}
