package entity

import "time"

const StatusConfirmed = "confirmed"

type Event struct {
	ID             string    `json:"event_id" db:"event_id"`
	Title          string    `json:"title" db:"title"`
	Location       string    `json:"location" db:"location"`
	Date           time.Time `json:"date" db:"date"`
	TotalSeats     int       `json:"total_seats" db:"total_seats"`
	RemainingSeats int       `json:"remaining_seats" db:"remaining_seats"`
	UnitPriceCents int64     `json:"unit_price_cents" db:"unit_price_cents"`
}

type Booking struct {
	ID               string    `json:"booking_id" db:"booking_id"`
	EventID          string    `json:"event_id" db:"event_id"`
	Name             string    `json:"name" db:"name"`
	Email            string    `json:"email" db:"email"`
	Contact          string    `json:"contact" db:"contact"`
	Quantity         int       `json:"quantity" db:"quantity"`
	TotalAmountCents int64     `json:"total_amount_cents" db:"total_amount_cents"`
	Status           string    `json:"status" db:"status"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
