// Package allocation implements the seat allocation engine: the only code
// path allowed to decrement an event's remaining seat count. Validation,
// decrement, booking insert and the availability publish happen in one
// atomic unit of work, so bookings can never oversell an event no matter
// how many requests race for it.
package allocation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/karangupta982/smart-event-booking-system/entity"
	"github.com/karangupta982/smart-event-booking-system/event"
)

// Store is the inventory and ledger persistence contract. WithTx opens a
// serializable unit of work and carries it in the context passed to fn; the
// other methods only operate inside that context. GetEventForUpdate blocks
// concurrent allocators for the same event until the transaction ends.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEventForUpdate(ctx context.Context, eventID string) (entity.Event, error)
	UpdateRemainingSeats(ctx context.Context, eventID string, remaining int) error
	UpdateEvent(ctx context.Context, e entity.Event) error
	AddBooking(ctx context.Context, booking entity.Booking) error
}

// Broadcaster publishes the post-allocation seat count. The production
// implementation writes to the transactional outbox, so the publish commits
// or rolls back together with the allocation and is delivered to
// subscribers in commit order.
type Broadcaster interface {
	PublishAvailabilityChanged(ctx context.Context, e event.AvailabilityChanged) error
}

type Request struct {
	EventID  string
	Name     string
	Email    string
	Contact  string
	Quantity int
}

func (r Request) validate() error {
	if r.Quantity <= 0 {
		return entity.ErrInvalidQuantity
	}
	if r.EventID == "" {
		return fmt.Errorf("event_id: %w", entity.ErrMissingField)
	}
	if r.Name == "" {
		return fmt.Errorf("name: %w", entity.ErrMissingField)
	}
	if r.Email == "" {
		return fmt.Errorf("email: %w", entity.ErrMissingField)
	}
	return nil
}

type Allocator struct {
	store       Store
	broadcaster Broadcaster
}

func NewAllocator(store Store, broadcaster Broadcaster) Allocator {
	return Allocator{
		store:       store,
		broadcaster: broadcaster,
	}
}

// Allocate reserves req.Quantity seats on req.EventID and records the
// booking. On success it returns the booking and the new remaining seat
// count. On failure the event's state is exactly as it was before the call
// and no booking exists.
func (a Allocator) Allocate(ctx context.Context, req Request) (entity.Booking, int, error) {
	if err := req.validate(); err != nil {
		return entity.Booking{}, 0, err
	}

	var (
		booking   entity.Booking
		remaining int
	)
	err := a.store.WithTx(ctx, func(ctx context.Context) error {
		e, err := a.store.GetEventForUpdate(ctx, req.EventID)
		if err != nil {
			return err
		}

		if req.Quantity > e.RemainingSeats || req.Quantity > e.TotalSeats {
			return entity.ErrInsufficientSeats
		}

		remaining = e.RemainingSeats - req.Quantity
		if err := a.store.UpdateRemainingSeats(ctx, e.ID, remaining); err != nil {
			return fmt.Errorf("decrementing seats: %w", err)
		}

		booking = entity.Booking{
			ID:               uuid.NewString(),
			EventID:          e.ID,
			Name:             req.Name,
			Email:            req.Email,
			Contact:          req.Contact,
			Quantity:         req.Quantity,
			TotalAmountCents: int64(req.Quantity) * e.UnitPriceCents,
			Status:           entity.StatusConfirmed,
			CreatedAt:        time.Now().UTC(),
		}
		if err := a.store.AddBooking(ctx, booking); err != nil {
			return fmt.Errorf("recording booking: %w", err)
		}

		ac := event.NewAvailabilityChanged(e.ID, remaining)
		if err := a.broadcaster.PublishAvailabilityChanged(ctx, ac); err != nil {
			return fmt.Errorf("publishing availability change: %w", err)
		}

		return nil
	})
	if err != nil {
		return entity.Booking{}, 0, err
	}

	return booking, remaining, nil
}

// UpdateRequest carries an administrative event edit. A nil RemainingSeats
// keeps the current count, clamped to the new total.
type UpdateRequest struct {
	EventID        string
	Title          string
	Location       string
	Date           time.Time
	TotalSeats     int
	RemainingSeats *int
	UnitPriceCents int64
}

func (r UpdateRequest) validate() error {
	if r.EventID == "" {
		return fmt.Errorf("event_id: %w", entity.ErrMissingField)
	}
	if r.TotalSeats <= 0 {
		return fmt.Errorf("total_seats: %w", entity.ErrInvalidQuantity)
	}
	return nil
}

// UpdateEvent applies an administrative edit to an event. Seat counts only
// ever change inside the engine's locked transaction, so edits serialise
// with allocations on the same row lock and their availability publish
// rides the same outbox: subscribers observe edits and allocations in
// commit order.
func (a Allocator) UpdateEvent(ctx context.Context, req UpdateRequest) (entity.Event, error) {
	if err := req.validate(); err != nil {
		return entity.Event{}, err
	}

	var updated entity.Event
	err := a.store.WithTx(ctx, func(ctx context.Context) error {
		e, err := a.store.GetEventForUpdate(ctx, req.EventID)
		if err != nil {
			return err
		}

		remaining := e.RemainingSeats
		if req.RemainingSeats != nil {
			remaining = *req.RemainingSeats
		}
		if remaining > req.TotalSeats {
			remaining = req.TotalSeats
		}
		if remaining < 0 {
			remaining = 0
		}

		updated = entity.Event{
			ID:             e.ID,
			Title:          req.Title,
			Location:       req.Location,
			Date:           req.Date,
			TotalSeats:     req.TotalSeats,
			RemainingSeats: remaining,
			UnitPriceCents: req.UnitPriceCents,
		}
		if err := a.store.UpdateEvent(ctx, updated); err != nil {
			return fmt.Errorf("updating event: %w", err)
		}

		if remaining != e.RemainingSeats {
			ac := event.NewAvailabilityChanged(e.ID, remaining)
			if err := a.broadcaster.PublishAvailabilityChanged(ctx, ac); err != nil {
				return fmt.Errorf("publishing availability change: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return entity.Event{}, err
	}

	return updated, nil
}
