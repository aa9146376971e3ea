package tracker

import (
	"context"
	"errors"
	"testing"

	"github.com/campus-transit/bustrack/internal/domain/models"
	"github.com/campus-transit/bustrack/internal/domain/types"
	"github.com/campus-transit/bustrack/pkg/logger"
	"github.com/campus-transit/bustrack/pkg/uuid"
)

// --- fakes ---

type fakeLocationStore struct {
	samples   []models.LocationSample
	appendErr error
}

func (f *fakeLocationStore) Append(_ context.Context, sample models.LocationSample) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.samples = append(f.samples, sample)
	return nil
}

func (f *fakeLocationStore) Recent(_ context.Context, limit int) ([]models.LocationSample, error) {
	out := make([]models.LocationSample, 0, limit)
	for i := len(f.samples) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.samples[i])
	}
	return out, nil
}

func (f *fakeLocationStore) Latest(_ context.Context) (models.LocationSample, error) {
	if len(f.samples) == 0 {
		return models.LocationSample{}, types.ErrNoLocations
	}
	return f.samples[len(f.samples)-1], nil
}

type fakeStatusStore struct {
	busID     string
	st        models.VehicleStatus
	upsertErr error
}

func newFakeStatusStore(busID string) *fakeStatusStore {
	return &fakeStatusStore{busID: busID, st: models.DefaultStatus(busID)}
}

func (f *fakeStatusStore) Init(context.Context) error { return nil }

func (f *fakeStatusStore) Upsert(_ context.Context, p models.StatusPatch) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if p.State != nil {
		f.st.State = *p.State
	}
	if p.TripStartedAt != nil {
		f.st.TripStartedAt = p.TripStartedAt
	}
	if p.ClearTripEnded {
		f.st.TripEndedAt = nil
	} else if p.TripEndedAt != nil {
		f.st.TripEndedAt = p.TripEndedAt
	}
	if p.LastLocationUpdateAt != nil {
		f.st.LastLocationUpdateAt = p.LastLocationUpdateAt
	}
	if p.ClearOwner {
		f.st.OwningConnectionID = nil
	} else if p.OwningConnectionID != nil {
		f.st.OwningConnectionID = p.OwningConnectionID
	}
	return nil
}

func (f *fakeStatusStore) Get(context.Context) (models.VehicleStatus, error) {
	return f.st, nil
}

func (f *fakeStatusStore) ClearOwner(_ context.Context, connID string) error {
	if f.st.OwningConnectionID != nil && *f.st.OwningConnectionID == connID {
		f.st.State = types.StateOffline
		f.st.OwningConnectionID = nil
	}
	return nil
}

type broadcastCall struct {
	event   string
	data    any
	exclude uuid.UUID
}

type fakeFanout struct {
	calls []broadcastCall
}

func (f *fakeFanout) Broadcast(_ context.Context, event string, data any, exclude uuid.UUID) {
	f.calls = append(f.calls, broadcastCall{event: event, data: data, exclude: exclude})
}

type fakeFeed struct {
	locations []models.LocationUpdate
	trips     []string
}

func (f *fakeFeed) PublishLocation(_ context.Context, upd models.LocationUpdate) error {
	f.locations = append(f.locations, upd)
	return nil
}

func (f *fakeFeed) PublishTrip(_ context.Context, event string, _ models.TripEvent) error {
	f.trips = append(f.trips, event)
	return nil
}

// passthroughTx runs the function without a real transaction.
type passthroughTx struct{}

func (passthroughTx) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- fixture ---

type fixture struct {
	router *Router
	fanout *fakeFanout
	feed   *fakeFeed

	locations map[string]*fakeLocationStore
	statuses  map[string]*fakeStatusStore
}

func newFixture(t *testing.T, busIDs ...string) *fixture {
	t.Helper()

	locations := make(map[string]*fakeLocationStore)
	statuses := make(map[string]*fakeStatusStore)
	pairs := make(map[string]StorePair)
	for _, id := range busIDs {
		loc := &fakeLocationStore{}
		st := newFakeStatusStore(id)
		locations[id] = loc
		statuses[id] = st
		pairs[id] = StorePair{Locations: loc, Status: st}
	}

	fanout := &fakeFanout{}
	feed := &fakeFeed{}
	log := logger.InitLogger("tracker-test", logger.LevelError)

	router := NewRouter(NewRegistry(pairs), NewSessionTracker(), passthroughTx{}, fanout, feed, log)

	return &fixture{
		router:    router,
		fanout:    fanout,
		feed:      feed,
		locations: locations,
		statuses:  statuses,
	}
}

func f(v float64) *float64 { return &v }

func validUpdate(busID string) models.LocationUpdate {
	return models.LocationUpdate{
		BusID:     busID,
		Latitude:  f(26.4719876543),
		Longitude: f(73.1139991234),
		Speed:     f(10),
		Heading:   f(90),
		Accuracy:  f(5),
	}
}

// --- tests ---

func TestRouter_LocationUpdate_Success(t *testing.T) {
	fx := newFixture(t, "BUS_01", "BUS_02")
	conn := uuid.MustNew()

	ack := fx.router.LocationUpdate(context.Background(), conn, validUpdate("BUS_01"))

	if !ack.Success {
		t.Fatalf("expected success ack, got error %q", ack.Error)
	}
	if ack.BusID != "BUS_01" {
		t.Errorf("ack bus id = %q", ack.BusID)
	}
	if ack.Timestamp == nil {
		t.Errorf("expected server timestamp in ack")
	}

	// exactly one normalized sample appended
	samples := fx.locations["BUS_01"].samples
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(samples))
	}
	if samples[0].Latitude != 26.471987 || samples[0].Longitude != 73.113999 {
		t.Errorf("coordinates not truncated: %v, %v", samples[0].Latitude, samples[0].Longitude)
	}
	if samples[0].SpeedKph != 36 {
		t.Errorf("speed = %d, want 36", samples[0].SpeedKph)
	}

	// status transitioned to active and claimed by the sender
	st := fx.statuses["BUS_01"].st
	if st.State != types.StateActive {
		t.Errorf("state = %s, want active", st.State)
	}
	if st.LastLocationUpdateAt == nil {
		t.Errorf("lastLocationUpdateAt not set")
	}
	if st.OwningConnectionID == nil || *st.OwningConnectionID != conn.String() {
		t.Errorf("owning connection not set to sender")
	}

	// broadcast once, excluding the sender
	if len(fx.fanout.calls) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(fx.fanout.calls))
	}
	call := fx.fanout.calls[0]
	if call.event != types.EventLocationUpdate {
		t.Errorf("broadcast event = %q", call.event)
	}
	if call.exclude != conn {
		t.Errorf("broadcast does not exclude the sender")
	}

	// mirrored onto the feed
	if len(fx.feed.locations) != 1 {
		t.Errorf("expected 1 feed publish, got %d", len(fx.feed.locations))
	}

	// other buses untouched
	if len(fx.locations["BUS_02"].samples) != 0 {
		t.Errorf("unrelated bus received a sample")
	}
}

func TestRouter_LocationUpdate_UnknownBus(t *testing.T) {
	fx := newFixture(t, "BUS_01")
	conn := uuid.MustNew()

	ack := fx.router.LocationUpdate(context.Background(), conn, validUpdate("GHOST_BUS"))

	if ack.Success {
		t.Fatalf("expected failure ack")
	}
	if ack.BusID != "GHOST_BUS" {
		t.Errorf("ack bus id = %q", ack.BusID)
	}
	if ack.Error == "" {
		t.Errorf("expected error message in ack")
	}
	if len(fx.locations["BUS_01"].samples) != 0 {
		t.Errorf("store written for unknown bus")
	}
	if len(fx.fanout.calls) != 0 {
		t.Errorf("broadcast sent for unknown bus")
	}
}

func TestRouter_LocationUpdate_PersistFailure(t *testing.T) {
	fx := newFixture(t, "BUS_01")
	fx.locations["BUS_01"].appendErr = errors.New("disk full")
	conn := uuid.MustNew()

	ack := fx.router.LocationUpdate(context.Background(), conn, validUpdate("BUS_01"))

	if ack.Success {
		t.Fatalf("expected failure ack")
	}
	if ack.Error == "" || ack.BusID != "BUS_01" {
		t.Errorf("ack = %+v, want bus id and error message", ack)
	}
	// a failed save must not broadcast
	if len(fx.fanout.calls) != 0 {
		t.Errorf("broadcast sent after failed save")
	}
	if len(fx.feed.locations) != 0 {
		t.Errorf("feed publish after failed save")
	}
}

func TestRouter_TripStarted(t *testing.T) {
	fx := newFixture(t, "BUS_01")
	conn := uuid.MustNew()

	fx.router.TripStarted(context.Background(), conn, models.TripEvent{BusID: "BUS_01"})

	st := fx.statuses["BUS_01"].st
	if st.State != types.StateActive {
		t.Errorf("state = %s, want active", st.State)
	}
	if st.TripStartedAt == nil {
		t.Errorf("tripStartedAt not set")
	}
	if st.TripEndedAt != nil {
		t.Errorf("tripEndedAt not cleared on start")
	}
	if st.OwningConnectionID == nil || *st.OwningConnectionID != conn.String() {
		t.Errorf("owner not set to sender")
	}
	if len(fx.fanout.calls) != 1 || fx.fanout.calls[0].event != types.EventTripStarted {
		t.Errorf("expected one tripStarted broadcast")
	}
}

func TestRouter_TripStarted_UnknownBus(t *testing.T) {
	fx := newFixture(t, "BUS_01")

	fx.router.TripStarted(context.Background(), uuid.MustNew(), models.TripEvent{BusID: "GHOST_BUS"})

	if len(fx.fanout.calls) != 0 {
		t.Errorf("broadcast sent for unknown bus")
	}
	if fx.statuses["BUS_01"].st.State != types.StateOffline {
		t.Errorf("unrelated bus status changed")
	}
}

func TestRouter_TripEnded_KeepsOwner(t *testing.T) {
	fx := newFixture(t, "BUS_01")
	conn := uuid.MustNew()

	fx.router.TripStarted(context.Background(), conn, models.TripEvent{BusID: "BUS_01"})
	fx.router.TripEnded(context.Background(), conn, models.TripEvent{BusID: "BUS_01"})

	st := fx.statuses["BUS_01"].st
	if st.State != types.StateInactive {
		t.Errorf("state = %s, want inactive", st.State)
	}
	if st.TripEndedAt == nil {
		t.Errorf("tripEndedAt not set")
	}
	// ending a trip keeps the connection claim: the driver may start
	// the next trip without reconnecting
	if st.OwningConnectionID == nil {
		t.Errorf("owner cleared by tripEnded")
	}
}

func TestRouter_OutOfOrderEvents(t *testing.T) {
	fx := newFixture(t, "BUS_01")
	conn := uuid.MustNew()
	ctx := context.Background()

	fx.router.TripStarted(ctx, conn, models.TripEvent{BusID: "BUS_01"})
	fx.router.TripEnded(ctx, conn, models.TripEvent{BusID: "BUS_01"})
	ack := fx.router.LocationUpdate(ctx, conn, validUpdate("BUS_01"))

	if !ack.Success {
		t.Fatalf("location update after tripEnded failed: %s", ack.Error)
	}
	// an update with no open trip still forces the bus active
	if fx.statuses["BUS_01"].st.State != types.StateActive {
		t.Errorf("state = %s, want active", fx.statuses["BUS_01"].st.State)
	}
}

func TestRouter_Disconnect(t *testing.T) {
	fx := newFixture(t, "BUS_01", "BUS_02")
	driver := uuid.MustNew()
	other := uuid.MustNew()
	ctx := context.Background()

	fx.router.TripStarted(ctx, driver, models.TripEvent{BusID: "BUS_01"})
	fx.router.TripStarted(ctx, other, models.TripEvent{BusID: "BUS_02"})

	fx.router.Disconnect(ctx, driver)

	st := fx.statuses["BUS_01"].st
	if st.State != types.StateOffline {
		t.Errorf("owned bus state = %s, want offline", st.State)
	}
	if st.OwningConnectionID != nil {
		t.Errorf("owner not cleared on disconnect")
	}

	// the other driver's bus is unaffected
	st2 := fx.statuses["BUS_02"].st
	if st2.State != types.StateActive {
		t.Errorf("unrelated bus state = %s, want active", st2.State)
	}
	if st2.OwningConnectionID == nil || *st2.OwningConnectionID != other.String() {
		t.Errorf("unrelated bus lost its owner")
	}
}

func TestRouter_Disconnect_Idempotent(t *testing.T) {
	fx := newFixture(t, "BUS_01", "BUS_02")
	driver := uuid.MustNew()
	other := uuid.MustNew()
	ctx := context.Background()

	fx.router.TripStarted(ctx, driver, models.TripEvent{BusID: "BUS_01"})
	fx.router.TripStarted(ctx, other, models.TripEvent{BusID: "BUS_02"})

	fx.router.Disconnect(ctx, driver)
	first := fx.statuses["BUS_01"].st

	fx.router.Disconnect(ctx, driver)
	second := fx.statuses["BUS_01"].st

	if first.State != second.State || (second.OwningConnectionID != nil) {
		t.Errorf("second disconnect changed the end state: %+v vs %+v", first, second)
	}
	if fx.statuses["BUS_02"].st.State != types.StateActive {
		t.Errorf("double disconnect cleared an unrelated record")
	}
}

func TestRouter_InitStatuses(t *testing.T) {
	fx := newFixture(t, "BUS_01", "BUS_02")

	if err := fx.router.InitStatuses(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for id, st := range fx.statuses {
		if st.st.State != types.StateOffline {
			t.Errorf("%s initialized to %s, want offline", id, st.st.State)
		}
	}
}
