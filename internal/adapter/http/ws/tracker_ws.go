package wshandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/campus-transit/bustrack/internal/adapter/http/ws/dto"
	"github.com/campus-transit/bustrack/internal/domain/models"
	"github.com/campus-transit/bustrack/internal/domain/types"
	"github.com/campus-transit/bustrack/pkg/logger"
	wrap "github.com/campus-transit/bustrack/pkg/logger/wrapper"
	"github.com/campus-transit/bustrack/pkg/metrics"
	"github.com/campus-transit/bustrack/pkg/uuid"
	"github.com/campus-transit/bustrack/pkg/validator"
	ws "github.com/campus-transit/bustrack/pkg/wsHub"
	"github.com/gorilla/websocket"
)

const serviceName = "tracker"

// EventRouter handles one decoded event from a connection.
type EventRouter interface {
	LocationUpdate(ctx context.Context, connID uuid.UUID, upd models.LocationUpdate) models.LocationAck
	TripStarted(ctx context.Context, connID uuid.UUID, event models.TripEvent)
	TripEnded(ctx context.Context, connID uuid.UUID, event models.TripEvent)
	Disconnect(ctx context.Context, connID uuid.UUID)
}

type TrackerHub struct {
	connections *ws.ConnectionHub
	router      EventRouter
	upgrader    websocket.Upgrader
	l           logger.Logger
}

func NewTrackerHub(connHub *ws.ConnectionHub, router EventRouter, l logger.Logger) *TrackerHub {
	return &TrackerHub{
		connections: connHub,
		router:      router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Driver apps and observer pages connect from arbitrary origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		l: l,
	}
}

// HandleWS upgrades the request and serves the connection until it closes.
// Drivers and observers share the endpoint: a connection becomes a driver
// connection the moment it sends a vehicle event.
func (h *TrackerHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "ws_connect")

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to upgrade connection", err)
		return
	}

	connID, err := uuid.New()
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to generate connection id", err)
		wsConn.Close()
		return
	}

	conn := ws.NewConn(r.Context(), connID, wsConn)
	if err := h.connections.Add(conn); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to register connection", err)
		conn.Close()
		return
	}

	metrics.WebSocketConnectionsGauge.WithLabelValues(serviceName).Inc()
	ctx = wrap.WithConnectionID(ctx, connID.String())
	h.l.Info(ctx, "client connected", "remote_addr", r.RemoteAddr)

	h.serve(ctx, conn)
}

// serve runs the read loop. Cleanup happens exactly once, on the way out,
// whatever ended the loop.
func (h *TrackerHub) serve(ctx context.Context, conn *ws.Conn) {
	defer func() {
		h.router.Disconnect(ctx, conn.ID())

		if err := h.connections.Delete(conn.ID()); err != nil {
			h.l.Warn(ctx, "failed to remove connection from hub", "err", err.Error())
		}
		metrics.WebSocketConnectionsGauge.WithLabelValues(serviceName).Dec()

		h.l.Info(wrap.WithAction(ctx, types.ActionConnectionClosed), "client disconnected")
	}()

	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			if errors.Is(err, ws.ErrMalformedFrame) {
				h.l.Warn(ctx, "dropping malformed frame", "err", err.Error())
				continue
			}
			h.l.Debug(ctx, "read loop ended", "err", err.Error())
			return
		}
		h.dispatch(ctx, conn, env)
	}
}

func (h *TrackerHub) dispatch(ctx context.Context, conn *ws.Conn, env ws.Envelope) {
	switch env.Event {
	case types.EventLocationUpdate:
		h.handleLocationUpdate(ctx, conn, env.Data)
	case types.EventTripStarted:
		h.handleTripEvent(ctx, conn, env.Data, true)
	case types.EventTripEnded:
		h.handleTripEvent(ctx, conn, env.Data, false)
	default:
		h.l.Debug(ctx, "ignoring unknown event", "event", env.Event)
	}
}

func (h *TrackerHub) handleLocationUpdate(ctx context.Context, conn *ws.Conn, data json.RawMessage) {
	ctx = wrap.WithAction(ctx, types.ActionLocationUpdate)

	var req dto.LocationUpdateReq
	if err := json.Unmarshal(data, &req); err != nil {
		h.l.Warn(ctx, "malformed location payload", "err", err.Error())
		h.sendAck(ctx, conn, models.LocationAck{Success: false, Error: "malformed payload"})
		return
	}

	v := validator.New()
	req.Validate(v)
	if !v.Valid() {
		h.l.Warn(ctx, "invalid location payload", "bus_id", req.BusID, "errors", v.Errors)
		h.sendAck(ctx, conn, models.LocationAck{
			Success: false,
			BusID:   req.BusID,
			Error:   validationMessage(v.Errors),
		})
		return
	}

	ack := h.router.LocationUpdate(ctx, conn.ID(), req.ToModel())
	h.sendAck(ctx, conn, ack)
}

// handleTripEvent routes tripStarted / tripEnded. These are fire-and-forget
// on the wire: a bad payload is logged, never acknowledged.
func (h *TrackerHub) handleTripEvent(ctx context.Context, conn *ws.Conn, data json.RawMessage, started bool) {
	action := types.ActionTripEnded
	if started {
		action = types.ActionTripStarted
	}
	ctx = wrap.WithAction(ctx, action)

	var req dto.TripEventReq
	if err := json.Unmarshal(data, &req); err != nil {
		h.l.Warn(ctx, "malformed trip payload", "err", err.Error())
		return
	}

	v := validator.New()
	req.Validate(v)
	if !v.Valid() {
		h.l.Warn(ctx, "invalid trip payload", "bus_id", req.BusID, "errors", v.Errors)
		return
	}

	if started {
		h.router.TripStarted(ctx, conn.ID(), req.ToModel())
	} else {
		h.router.TripEnded(ctx, conn.ID(), req.ToModel())
	}
}

func (h *TrackerHub) sendAck(ctx context.Context, conn *ws.Conn, ack models.LocationAck) {
	if err := conn.Send(types.EventLocationSaved, ack); err != nil {
		h.l.Warn(ctx, "failed to deliver ack", "err", err.Error())
	}
}

func validationMessage(errs map[string]string) string {
	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+errs[field])
	}
	return strings.Join(parts, "; ")
}
