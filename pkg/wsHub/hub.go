package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/campus-transit/bustrack/pkg/logger"
	wrap "github.com/campus-transit/bustrack/pkg/logger/wrapper"
	"github.com/campus-transit/bustrack/pkg/uuid"
)

var (
	ErrEmptyConn      = errors.New("connection is empty")
	ErrConnIsNotFound = errors.New("connection not found")
)

// ConnectionHub keeps every live WebSocket connection, drivers and
// observers alike, keyed by the ephemeral connection ID.
type ConnectionHub struct {
	clients map[uuid.UUID]*Conn
	l       logger.Logger
	mu      sync.Mutex
}

func NewConnHub(l logger.Logger) *ConnectionHub {
	return &ConnectionHub{
		clients: make(map[uuid.UUID]*Conn),
		l:       l,
	}
}

// Add registers a new connection in the hub.
func (h *ConnectionHub) Add(newConn *Conn) error {
	if newConn == nil {
		return ErrEmptyConn
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[newConn.id] = newConn

	return nil
}

// Delete removes and closes the connection with the given ID.
func (h *ConnectionHub) Delete(id uuid.UUID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := wrap.WithAction(context.Background(), "ws_connection_delete")

	conn, ok := h.clients[id]
	if !ok {
		return ErrConnIsNotFound
	}

	if err := conn.Close(); err != nil {
		h.l.Warn(ctx,
			"failed to close conn",
			"connection_id", conn.id,
			"err", err.Error(),
		)
	}

	delete(h.clients, id)

	return nil
}

// GetConn returns the connection with the given ID.
func (h *ConnectionHub) GetConn(id uuid.UUID) (*Conn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.clients[id]
	if !ok {
		return nil, ErrConnIsNotFound
	}
	return conn, nil
}

// Len returns the number of live connections.
func (h *ConnectionHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast delivers an event to every connection except the one
// identified by exclude. Best effort: frames are queued per receiver,
// and a receiver that cannot keep up has its frame dropped and logged.
// Broadcast never blocks on a receiver.
func (h *ConnectionHub) Broadcast(ctx context.Context, event string, data any, exclude uuid.UUID) {
	h.mu.Lock()
	targets := make([]*Conn, 0, len(h.clients))
	for id, conn := range h.clients {
		if id == exclude {
			continue
		}
		targets = append(targets, conn)
	}
	h.mu.Unlock()

	ctx = wrap.WithAction(ctx, "ws_broadcast")

	for _, conn := range targets {
		if err := conn.Send(event, data); err != nil {
			h.l.Warn(ctx,
				"failed to deliver broadcast",
				"event", event,
				"connection_id", conn.id,
				"err", err.Error(),
			)
		}
	}
}

// CloseAll closes every connection. Used on shutdown.
func (h *ConnectionHub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, conn := range h.clients {
		_ = conn.Close()
		delete(h.clients, id)
	}
}
