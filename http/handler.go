package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/karangupta982/smart-event-booking-system/allocation"
	"github.com/karangupta982/smart-event-booking-system/entity"
)

type handler struct {
	allocator   Allocator
	bookingRepo BookingRepo
	eventRepo   EventRepo
	registry    Registry
}

type createBookingRequest struct {
	EventID  string `json:"event_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Contact  string `json:"contact"`
	Quantity int    `json:"quantity"`
}

type createBookingResponse struct {
	Booking        entity.Booking `json:"booking"`
	RemainingSeats int            `json:"remaining_seats"`
}

func (h handler) CreateBooking(c echo.Context) error {
	var request createBookingRequest
	if err := c.Bind(&request); err != nil {
		return &echo.HTTPError{
			Code:     http.StatusBadRequest,
			Message:  "failed to parse request",
			Internal: fmt.Errorf("failed to bind request: %w", err),
		}
	}

	booking, remaining, err := h.allocator.Allocate(c.Request().Context(), allocation.Request{
		EventID:  request.EventID,
		Name:     request.Name,
		Email:    request.Email,
		Contact:  request.Contact,
		Quantity: request.Quantity,
	})
	if err != nil {
		return allocationError(err)
	}

	return c.JSON(http.StatusCreated, createBookingResponse{
		Booking:        booking,
		RemainingSeats: remaining,
	})
}

func (h handler) GetBooking(c echo.Context) error {
	booking, err := h.bookingRepo.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, entity.ErrBookingNotFound) {
			return &echo.HTTPError{Code: http.StatusNotFound, Message: "booking not found"}
		}
		return internalError(fmt.Errorf("getting booking: %w", err))
	}

	return c.JSON(http.StatusOK, booking)
}

type eventRequest struct {
	Title          string    `json:"title"`
	Location       string    `json:"location"`
	Date           time.Time `json:"date"`
	TotalSeats     int       `json:"total_seats"`
	RemainingSeats *int      `json:"remaining_seats,omitempty"`
	UnitPriceCents int64     `json:"unit_price_cents"`
}

func (r eventRequest) validate() error {
	if r.Title == "" || r.Location == "" || r.Date.IsZero() {
		return errors.New("title, location and date are required")
	}
	if r.TotalSeats <= 0 {
		return errors.New("total_seats must be a positive integer")
	}
	if r.UnitPriceCents < 0 {
		return errors.New("unit_price_cents must not be negative")
	}
	return nil
}

func (h handler) CreateEvent(c echo.Context) error {
	var request eventRequest
	if err := c.Bind(&request); err != nil {
		return &echo.HTTPError{
			Code:     http.StatusBadRequest,
			Message:  "failed to parse request",
			Internal: fmt.Errorf("failed to bind request: %w", err),
		}
	}
	if err := request.validate(); err != nil {
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: err.Error()}
	}

	e := entity.Event{
		ID:             uuid.NewString(),
		Title:          request.Title,
		Location:       request.Location,
		Date:           request.Date,
		TotalSeats:     request.TotalSeats,
		RemainingSeats: request.TotalSeats,
		UnitPriceCents: request.UnitPriceCents,
	}
	if err := h.eventRepo.Add(c.Request().Context(), e); err != nil {
		return internalError(fmt.Errorf("adding event: %w", err))
	}

	return c.JSON(http.StatusCreated, e)
}

func (h handler) ListEvents(c echo.Context) error {
	events, err := h.eventRepo.List(c.Request().Context())
	if err != nil {
		return internalError(fmt.Errorf("listing events: %w", err))
	}

	return c.JSON(http.StatusOK, events)
}

func (h handler) GetEvent(c echo.Context) error {
	e, err := h.eventRepo.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, entity.ErrEventNotFound) {
			return &echo.HTTPError{Code: http.StatusNotFound, Message: "event not found"}
		}
		return internalError(fmt.Errorf("getting event: %w", err))
	}

	return c.JSON(http.StatusOK, e)
}

func (h handler) UpdateEvent(c echo.Context) error {
	var request eventRequest
	if err := c.Bind(&request); err != nil {
		return &echo.HTTPError{
			Code:     http.StatusBadRequest,
			Message:  "failed to parse request",
			Internal: fmt.Errorf("failed to bind request: %w", err),
		}
	}
	if err := request.validate(); err != nil {
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: err.Error()}
	}

	// Seat edits go through the allocation engine so they serialise with
	// bookings and reach subscribers through the same outbox, in commit
	// order.
	updated, err := h.allocator.UpdateEvent(c.Request().Context(), allocation.UpdateRequest{
		EventID:        c.Param("id"),
		Title:          request.Title,
		Location:       request.Location,
		Date:           request.Date,
		TotalSeats:     request.TotalSeats,
		RemainingSeats: request.RemainingSeats,
		UnitPriceCents: request.UnitPriceCents,
	})
	if err != nil {
		return allocationError(err)
	}

	return c.JSON(http.StatusOK, updated)
}

func (h handler) ListEventBookings(c echo.Context) error {
	bookings, err := h.bookingRepo.ListByEvent(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, entity.ErrEventNotFound) {
			return &echo.HTTPError{Code: http.StatusNotFound, Message: "event not found"}
		}
		return internalError(fmt.Errorf("listing bookings: %w", err))
	}

	return c.JSON(http.StatusOK, bookings)
}

func allocationError(err error) error {
	switch {
	case errors.Is(err, entity.ErrInvalidQuantity), errors.Is(err, entity.ErrMissingField):
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, entity.ErrEventNotFound):
		return &echo.HTTPError{Code: http.StatusNotFound, Message: "event not found"}
	case errors.Is(err, entity.ErrInsufficientSeats):
		return &echo.HTTPError{Code: http.StatusConflict, Message: "not enough seats available"}
	case errors.Is(err, entity.ErrStoreUnavailable):
		return &echo.HTTPError{
			Code:     http.StatusServiceUnavailable,
			Message:  "temporarily unavailable, please retry",
			Internal: err,
		}
	default:
		return internalError(err)
	}
}

func internalError(err error) error {
	return &echo.HTTPError{
		Code:     http.StatusInternalServerError,
		Message:  http.StatusText(http.StatusInternalServerError),
		Internal: err,
	}
}
