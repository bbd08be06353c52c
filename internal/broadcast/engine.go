// Package broadcast fans events out to the live connections of a room.
package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"veranda/internal/models"
)

// Outlet is the sending side of one live connection.
type Outlet interface {
	// Deliver queues a serialized frame. It must not block.
	Deliver(frame []byte) error
	// Close tears the connection down. It must not block.
	Close(reason error)
}

// Directory resolves the connections currently present in a room.
type Directory interface {
	ConnectionsInRoom(roomID string) []string
}

type Engine struct {
	rooms   Directory
	outlets map[string]Outlet

	mu sync.RWMutex
}

func New(rooms Directory) *Engine {
	return &Engine{
		rooms:   rooms,
		outlets: make(map[string]Outlet),
	}
}

func (e *Engine) Attach(connID string, o Outlet) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outlets[connID] = o
}

func (e *Engine) Detach(connID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.outlets, connID)
}

func (e *Engine) outlet(connID string) (Outlet, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.outlets[connID]
	return o, ok
}

// Send delivers an event to a single connection.
func (e *Engine) Send(connID string, event models.ServerEvent) error {
	frame, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}
	o, ok := e.outlet(connID)
	if !ok {
		return fmt.Errorf("%w: connection %s is gone", models.ErrDeliveryFailure, connID)
	}
	return e.deliver(connID, o, frame)
}

// Publish delivers event to every connection in the room except exclude and
// returns how many accepted it. A failing connection is torn down and does
// not affect the others.
//
// Callers publishing to the same room must be serialized with each other
// for the per-connection ordering to match publish order.
func (e *Engine) Publish(roomID string, event models.ServerEvent, exclude string) int {
	frame, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to encode event", "type", event.Type, "room_id", roomID, "error", err)
		return 0
	}

	delivered := 0
	for _, connID := range e.rooms.ConnectionsInRoom(roomID) {
		if connID == exclude {
			continue
		}
		o, ok := e.outlet(connID)
		if !ok {
			continue
		}
		if err := e.deliver(connID, o, frame); err != nil {
			continue
		}
		delivered++
	}
	return delivered
}

func (e *Engine) deliver(connID string, o Outlet, frame []byte) error {
	if err := o.Deliver(frame); err != nil {
		err = fmt.Errorf("%w: connection %s: %w", models.ErrDeliveryFailure, connID, err)
		slog.Warn("delivery failed, closing connection", "conn_id", connID, "error", err)
		o.Close(err)
		return err
	}
	return nil
}
