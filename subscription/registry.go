// Package subscription tracks which live connections want availability
// updates for which events. The registry is rebuilt from nothing on every
// process start; reconnecting clients re-subscribe.
package subscription

import (
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
)

type Scope string

const (
	// ScopeEvent marks an update delivered because the connection joined
	// the event's channel.
	ScopeEvent Scope = "event"
	// ScopeGlobal marks the feed every connection receives regardless of
	// its joins.
	ScopeGlobal Scope = "global"
)

type Update struct {
	Scope          Scope  `json:"scope"`
	EventID        string `json:"event_id"`
	RemainingSeats int    `json:"remaining_seats"`
}

// updateBuffer bounds how far a slow connection may fall behind before
// updates are dropped for it. Drops never delay other connections and never
// reorder what the connection does receive.
const updateBuffer = 32

type conn struct {
	updates chan Update
	events  map[string]struct{}
}

type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*conn
	logger watermill.LoggerAdapter
}

func NewRegistry(logger watermill.LoggerAdapter) *Registry {
	return &Registry{
		conns:  make(map[string]*conn),
		logger: logger,
	}
}

// Register adds a connection and returns its ordered update channel. The
// channel is closed by Unregister.
func (r *Registry) Register(connID string) (<-chan Update, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; ok {
		return nil, fmt.Errorf("connection %q already registered", connID)
	}

	c := &conn{
		updates: make(chan Update, updateBuffer),
		events:  make(map[string]struct{}),
	}
	r.conns[connID] = c

	return c.updates, nil
}

// Unregister removes the connection from every event channel and closes its
// update channel. Safe to call for unknown connections.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return
	}

	delete(r.conns, connID)
	close(c.updates)
}

func (r *Registry) Join(connID, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return fmt.Errorf("connection %q not registered", connID)
	}

	c.events[eventID] = struct{}{}

	return nil
}

func (r *Registry) Leave(connID, eventID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return
	}

	delete(c.events, eventID)
}

// Dispatch fans an availability change out to every connection. All
// connections receive the global feed; connections joined to the event
// additionally receive the event-scoped update. Sends never block: a full
// buffer drops the update for that connection only.
func (r *Registry) Dispatch(eventID string, remainingSeats int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for connID, c := range r.conns {
		r.send(connID, c, Update{
			Scope:          ScopeGlobal,
			EventID:        eventID,
			RemainingSeats: remainingSeats,
		})

		if _, joined := c.events[eventID]; joined {
			r.send(connID, c, Update{
				Scope:          ScopeEvent,
				EventID:        eventID,
				RemainingSeats: remainingSeats,
			})
		}
	}
}

func (r *Registry) send(connID string, c *conn, u Update) {
	select {
	case c.updates <- u:
	default:
		r.logger.Info("Dropping availability update for slow connection", watermill.LogFields{
			"conn_id":  connID,
			"event_id": u.EventID,
			"scope":    string(u.Scope),
		})
	}
}
