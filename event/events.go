package event

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
)

type header struct {
	ID          string    `json:"id"`
	PublishedAt time.Time `json:"published_at"`
}

func newHeader() header {
	return header{
		ID:          watermill.NewUUID(),
		PublishedAt: time.Now().UTC(),
	}
}

// AvailabilityChanged is emitted whenever an event's remaining seat count
// changes. For a single event, consumers see these in commit order.
type AvailabilityChanged struct {
	Header         header `json:"header"`
	EventID        string `json:"event_id"`
	RemainingSeats int    `json:"remaining_seats"`
}

func NewAvailabilityChanged(eventID string, remainingSeats int) AvailabilityChanged {
	return AvailabilityChanged{
		Header:         newHeader(),
		EventID:        eventID,
		RemainingSeats: remainingSeats,
	}
}
