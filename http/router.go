package http

import (
	"context"
	"net/http"

	commonHTTP "github.com/ThreeDotsLabs/go-event-driven/common/http"
	"github.com/labstack/echo/v4"

	"github.com/karangupta982/smart-event-booking-system/allocation"
	"github.com/karangupta982/smart-event-booking-system/entity"
	"github.com/karangupta982/smart-event-booking-system/subscription"
)

var ErrServerClosed = http.ErrServerClosed

// Allocator is the only collaborator allowed to change seat counts:
// bookings and administrative edits both run through it, so every change
// is serialised on the event row and broadcast in commit order.
type Allocator interface {
	Allocate(ctx context.Context, req allocation.Request) (entity.Booking, int, error)
	UpdateEvent(ctx context.Context, req allocation.UpdateRequest) (entity.Event, error)
}

type EventRepo interface {
	Add(ctx context.Context, e entity.Event) error
	Get(ctx context.Context, eventID string) (entity.Event, error)
	List(ctx context.Context) ([]entity.Event, error)
}

type BookingRepo interface {
	Get(ctx context.Context, bookingID string) (entity.Booking, error)
	ListByEvent(ctx context.Context, eventID string) ([]entity.Booking, error)
}

type Registry interface {
	Register(connID string) (<-chan subscription.Update, error)
	Unregister(connID string)
	Join(connID, eventID string) error
	Leave(connID, eventID string)
}

type RouterDeps struct {
	Allocator   Allocator
	BookingRepo BookingRepo
	EventRepo   EventRepo
	Registry    Registry
}

func NewRouter(deps RouterDeps) *echo.Echo {
	server := commonHTTP.NewEcho()

	server.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	h := handler{
		allocator:   deps.Allocator,
		bookingRepo: deps.BookingRepo,
		eventRepo:   deps.EventRepo,
		registry:    deps.Registry,
	}

	server.POST("/bookings", h.CreateBooking)
	server.GET("/bookings/:id", h.GetBooking)
	server.POST("/events", h.CreateEvent)
	server.GET("/events", h.ListEvents)
	server.GET("/events/:id", h.GetEvent)
	server.PUT("/events/:id", h.UpdateEvent)
	server.GET("/events/:id/bookings", h.ListEventBookings)
	server.GET("/availability/stream", h.StreamAvailability)
	server.POST("/availability/connections/:id/events/:event_id", h.JoinEventChannel)
	server.DELETE("/availability/connections/:id/events/:event_id", h.LeaveEventChannel)

	return server
}
