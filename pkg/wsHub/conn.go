package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/campus-transit/bustrack/pkg/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout  = 5 * time.Second
	sendQueueSize = 64
)

var (
	// ErrSendQueueFull reports a receiver that cannot keep up. The frame
	// is dropped; delivery is best effort.
	ErrSendQueueFull = errors.New("send queue full")

	// ErrMalformedFrame reports an inbound frame that is not valid JSON.
	// The connection itself is still healthy and the caller may skip the
	// frame and keep reading.
	ErrMalformedFrame = errors.New("malformed frame")
)

// Envelope is the wire frame for every message in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outEnvelope carries an arbitrary payload outbound; same shape as Envelope.
type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type Conn struct {
	conn    *websocket.Conn
	id      uuid.UUID
	out     chan outEnvelope
	doneCtx context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
}

func NewConn(ctx context.Context, id uuid.UUID, conn *websocket.Conn) *Conn {
	ctx, cancel := context.WithCancel(ctx)

	c := &Conn{
		conn:    conn,
		id:      id,
		out:     make(chan outEnvelope, sendQueueSize),
		doneCtx: ctx,
		cancel:  cancel,
	}
	go c.writeLoop()

	return c
}

// ID returns the ephemeral identifier assigned at accept time.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

// Send queues one event frame for delivery. It never blocks on the
// receiver: when the outbound queue is full the frame is dropped and
// ErrSendQueueFull is returned.
func (c *Conn) Send(event string, data any) error {
	if c.conn == nil {
		return errors.New("connection is nil")
	}

	select {
	case <-c.doneCtx.Done():
		return errors.New("connection closed")
	default:
	}

	select {
	case c.out <- outEnvelope{Event: event, Data: data}:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// writeLoop is the only writer on the underlying connection. It drains
// the outbound queue in order; a failed or timed-out write marks the
// connection dead so the read loop tears it down.
func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.doneCtx.Done():
			return
		case env := <-c.out:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.cancel()
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				c.cancel()
				return
			}
		}
	}
}

// ReadEnvelope blocks until the next inbound frame arrives. A frame that
// is not valid JSON is reported as ErrMalformedFrame without closing the
// connection.
func (c *Conn) ReadEnvelope() (Envelope, error) {
	var env Envelope

	select {
	case <-c.doneCtx.Done():
		return env, errors.New("read stopped: connection closed")
	default:
	}

	if err := c.conn.ReadJSON(&env); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return env, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return env, fmt.Errorf("read failed: %w", err)
	}
	return env, nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
