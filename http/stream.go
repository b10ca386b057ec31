package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v3"
)

// StreamAvailability serves availability updates over server-sent events.
// The connection is registered for the lifetime of the request and joined
// to every event_id query parameter; it always receives the global feed.
// The first frame announces the connection id so the client can join or
// leave event channels mid-stream via the connection endpoints. Teardown
// on disconnect removes the connection from all event channels.
func (h handler) StreamAvailability(c echo.Context) error {
	connID := "conn_" + shortuuid.New()

	updates, err := h.registry.Register(connID)
	if err != nil {
		return internalError(fmt.Errorf("registering connection: %w", err))
	}
	defer h.registry.Unregister(connID)

	for _, eventID := range c.QueryParams()["event_id"] {
		if err := h.registry.Join(connID, eventID); err != nil {
			return internalError(fmt.Errorf("joining event channel: %w", err))
		}
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	greeting, err := json.Marshal(struct {
		ConnectionID string `json:"connection_id"`
	}{ConnectionID: connID})
	if err != nil {
		return fmt.Errorf("marshalling greeting: %w", err)
	}
	if _, err := fmt.Fprintf(resp, "event: connected\ndata: %s\n\n", greeting); err != nil {
		return nil
	}
	resp.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}

			payload, err := json.Marshal(u)
			if err != nil {
				return fmt.Errorf("marshalling update: %w", err)
			}

			if _, err := fmt.Fprintf(resp, "data: %s\n\n", payload); err != nil {
				// client went away
				return nil
			}
			resp.Flush()
		}
	}
}

// JoinEventChannel subscribes a live connection to an event's scoped feed.
// The connection id comes from the stream's connected frame.
func (h handler) JoinEventChannel(c echo.Context) error {
	if err := h.registry.Join(c.Param("id"), c.Param("event_id")); err != nil {
		return &echo.HTTPError{Code: http.StatusNotFound, Message: "connection not registered"}
	}

	return c.NoContent(http.StatusNoContent)
}

// LeaveEventChannel removes a live connection from an event's scoped feed.
// Leaving a channel the connection never joined is a no-op.
func (h handler) LeaveEventChannel(c echo.Context) error {
	h.registry.Leave(c.Param("id"), c.Param("event_id"))

	return c.NoContent(http.StatusNoContent)
}
