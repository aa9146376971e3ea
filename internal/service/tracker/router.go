package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/campus-transit/bustrack/internal/domain/models"
	"github.com/campus-transit/bustrack/internal/domain/types"
	"github.com/campus-transit/bustrack/pkg/logger"
	wrap "github.com/campus-transit/bustrack/pkg/logger/wrapper"
	"github.com/campus-transit/bustrack/pkg/metrics"
	"github.com/campus-transit/bustrack/pkg/trm"
	"github.com/campus-transit/bustrack/pkg/uuid"
)

// Router is the event state machine. It validates inbound events
// against the registry, drives status and location store transitions,
// decides fan-out, and reconciles disconnects. Only the Router mutates
// the stores.
//
// Status mutations for one vehicle are serialized through a per-vehicle
// mutex; events for different vehicles run concurrently.
type Router struct {
	registry *Registry
	sessions *SessionTracker
	tx       trm.TxManager
	fanout   Broadcaster
	feed     EventFeed // optional, may be nil

	vehicleLocks map[string]*sync.Mutex

	log logger.Logger
}

func NewRouter(
	registry *Registry,
	sessions *SessionTracker,
	tx trm.TxManager,
	fanout Broadcaster,
	feed EventFeed,
	log logger.Logger,
) *Router {
	locks := make(map[string]*sync.Mutex, len(registry.IDs()))
	for _, id := range registry.IDs() {
		locks[id] = &sync.Mutex{}
	}

	return &Router{
		registry:     registry,
		sessions:     sessions,
		tx:           tx,
		fanout:       fanout,
		feed:         feed,
		vehicleLocks: locks,
		log:          log,
	}
}

// InitStatuses guarantees every registry vehicle has a status row,
// default offline, before the first event is processed.
func (r *Router) InitStatuses(ctx context.Context) error {
	ctx = wrap.WithAction(ctx, types.ActionStatusInitialized)

	for _, busID := range r.registry.IDs() {
		pair, err := r.registry.Resolve(busID)
		if err != nil {
			return err
		}
		if err := pair.Status.Init(ctx); err != nil {
			return err
		}
	}

	r.log.Info(ctx, "bus statuses initialized", "buses", r.registry.IDs())
	return nil
}

// LocationUpdate handles one busLocationUpdate event. The sender always
// gets a locationSaved ack back: success with the server timestamp, or
// a structured failure with the underlying error. A failed save is
// never broadcast.
//
// An update for a bus with no started trip still forces the status to
// active and claims ownership; drivers that reconnect mid-trip resume
// reporting without re-sending tripStarted.
func (r *Router) LocationUpdate(ctx context.Context, connID uuid.UUID, upd models.LocationUpdate) models.LocationAck {
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action:       types.ActionLocationUpdate,
		BusID:        upd.BusID,
		ConnectionID: connID.String(),
	})

	pair, err := r.registry.Resolve(upd.BusID)
	if err != nil {
		r.log.Warn(ctx, "location update for unknown bus", "err", err.Error())
		metrics.LocationUpdatesTotal.WithLabelValues(upd.BusID, "rejected").Inc()
		return models.LocationAck{Success: false, BusID: upd.BusID, Error: err.Error()}
	}

	unlock := r.lockVehicle(upd.BusID)
	defer unlock()

	receivedAt := time.Now().UTC()
	sample := models.NewLocationSample(upd, receivedAt)

	owner := connID.String()
	state := types.StateActive
	patch := models.StatusPatch{
		State:                &state,
		LastLocationUpdateAt: &receivedAt,
		OwningConnectionID:   &owner,
	}

	// Sample append and status upsert commit or roll back together.
	err = r.tx.Do(ctx, func(ctx context.Context) error {
		if err := pair.Locations.Append(ctx, sample); err != nil {
			return err
		}
		return pair.Status.Upsert(ctx, patch)
	})
	if err != nil {
		r.log.Error(wrap.ErrorCtx(ctx, err), "failed to save location", err)
		metrics.LocationUpdatesTotal.WithLabelValues(upd.BusID, "failed").Inc()
		return models.LocationAck{Success: false, BusID: upd.BusID, Error: err.Error()}
	}

	r.sessions.Claim(connID, upd.BusID)

	metrics.LocationUpdatesTotal.WithLabelValues(upd.BusID, "saved").Inc()
	metrics.ActiveTripsGauge.WithLabelValues(upd.BusID).Set(1)

	r.broadcast(ctx, types.EventLocationUpdate, upd, connID)
	r.publishLocation(ctx, upd)

	return models.LocationAck{Success: true, BusID: upd.BusID, Timestamp: &receivedAt}
}

// TripStarted handles one tripStarted event. Unknown buses are logged
// and dropped; there is no acknowledgment for trip events (the driver
// app treats them as fire-and-forget), and persistence failures are
// logged only.
func (r *Router) TripStarted(ctx context.Context, connID uuid.UUID, trip models.TripEvent) {
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action:       types.ActionTripStarted,
		BusID:        trip.BusID,
		ConnectionID: connID.String(),
	})

	pair, err := r.registry.Resolve(trip.BusID)
	if err != nil {
		r.log.Warn(ctx, "trip started for unknown bus", "err", err.Error())
		return
	}

	unlock := r.lockVehicle(trip.BusID)
	defer unlock()

	now := time.Now().UTC()
	owner := connID.String()
	state := types.StateActive
	patch := models.StatusPatch{
		State:              &state,
		TripStartedAt:      &now,
		ClearTripEnded:     true,
		OwningConnectionID: &owner,
	}

	if err := pair.Status.Upsert(ctx, patch); err != nil {
		r.log.Error(wrap.ErrorCtx(ctx, err), "failed to start trip", err)
		return
	}

	r.sessions.Claim(connID, trip.BusID)

	metrics.TripEventsTotal.WithLabelValues(trip.BusID, "started").Inc()
	metrics.ActiveTripsGauge.WithLabelValues(trip.BusID).Set(1)

	r.log.Info(ctx, "trip started")

	r.broadcast(ctx, types.EventTripStarted, trip, connID)
	r.publishTrip(ctx, types.EventTripStarted, trip)
}

// TripEnded handles one tripEnded event. The owning connection is kept
// on the record: the driver is still connected and may start the next
// trip, only the disconnect path clears ownership.
func (r *Router) TripEnded(ctx context.Context, connID uuid.UUID, trip models.TripEvent) {
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action:       types.ActionTripEnded,
		BusID:        trip.BusID,
		ConnectionID: connID.String(),
	})

	pair, err := r.registry.Resolve(trip.BusID)
	if err != nil {
		r.log.Warn(ctx, "trip ended for unknown bus", "err", err.Error())
		return
	}

	unlock := r.lockVehicle(trip.BusID)
	defer unlock()

	now := time.Now().UTC()
	state := types.StateInactive
	patch := models.StatusPatch{
		State:       &state,
		TripEndedAt: &now,
	}

	if err := pair.Status.Upsert(ctx, patch); err != nil {
		r.log.Error(wrap.ErrorCtx(ctx, err), "failed to end trip", err)
		return
	}

	metrics.TripEventsTotal.WithLabelValues(trip.BusID, "ended").Inc()
	metrics.ActiveTripsGauge.WithLabelValues(trip.BusID).Set(0)

	r.log.Info(ctx, "trip ended")

	r.broadcast(ctx, types.EventTripEnded, trip, connID)
	r.publishTrip(ctx, types.EventTripEnded, trip)
}

// Disconnect runs the cleanup path for a closed connection: every bus
// owned by it is forced offline and its ownership cleared. The clear is
// conditional on ownership in the store, so running it twice for the
// same connection leaves the same end state.
func (r *Router) Disconnect(ctx context.Context, connID uuid.UUID) {
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action:       types.ActionConnectionClosed,
		ConnectionID: connID.String(),
	})

	owned := r.sessions.Release(connID)

	// Scan the whole fleet rather than trusting the session set alone;
	// the conditional update makes the sweep exact.
	for _, busID := range r.registry.IDs() {
		pair, err := r.registry.Resolve(busID)
		if err != nil {
			continue
		}

		unlock := r.lockVehicle(busID)
		if err := pair.Status.ClearOwner(ctx, connID.String()); err != nil {
			r.log.Error(wrap.ErrorCtx(ctx, err), "failed to clear bus owner on disconnect", err, "bus_id", busID)
		}
		unlock()
	}

	for _, busID := range owned {
		metrics.ActiveTripsGauge.WithLabelValues(busID).Set(0)
	}

	if len(owned) > 0 {
		r.log.Info(ctx, "buses forced offline after disconnect", "buses", owned)
	}
}

func (r *Router) lockVehicle(busID string) func() {
	mu, ok := r.vehicleLocks[busID]
	if !ok {
		return func() {}
	}
	mu.Lock()
	return mu.Unlock
}

func (r *Router) broadcast(ctx context.Context, event string, data any, exclude uuid.UUID) {
	r.fanout.Broadcast(ctx, event, data, exclude)
	metrics.BroadcastsTotal.WithLabelValues(event).Inc()
}

func (r *Router) publishLocation(ctx context.Context, upd models.LocationUpdate) {
	if r.feed == nil {
		return
	}
	if err := r.feed.PublishLocation(ctx, upd); err != nil {
		r.log.Warn(ctx, "failed to publish location to feed", "err", err.Error())
	}
}

func (r *Router) publishTrip(ctx context.Context, event string, trip models.TripEvent) {
	if r.feed == nil {
		return
	}
	if err := r.feed.PublishTrip(ctx, event, trip); err != nil {
		r.log.Warn(ctx, "failed to publish trip event to feed", "err", err.Error())
	}
}
