package wshandler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/campus-transit/bustrack/internal/domain/models"
	"github.com/campus-transit/bustrack/internal/domain/types"
	"github.com/campus-transit/bustrack/pkg/logger"
	"github.com/campus-transit/bustrack/pkg/uuid"
	ws "github.com/campus-transit/bustrack/pkg/wsHub"
	"github.com/gorilla/websocket"
)

type fakeRouter struct {
	mu          sync.Mutex
	updates     []models.LocationUpdate
	started     []models.TripEvent
	ended       []models.TripEvent
	disconnects int
}

func (f *fakeRouter) LocationUpdate(ctx context.Context, connID uuid.UUID, upd models.LocationUpdate) models.LocationAck {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, upd)

	now := time.Now().UTC()
	return models.LocationAck{Success: true, BusID: upd.BusID, Timestamp: &now}
}

func (f *fakeRouter) TripStarted(ctx context.Context, connID uuid.UUID, event models.TripEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, event)
}

func (f *fakeRouter) TripEnded(ctx context.Context, connID uuid.UUID, event models.TripEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, event)
}

func (f *fakeRouter) Disconnect(ctx context.Context, connID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeRouter) counts() (updates, started, ended, disconnects int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates), len(f.started), len(f.ended), f.disconnects
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeRouter, *ws.ConnectionHub) {
	t.Helper()

	log := logger.InitLogger("ws-test", logger.LevelError)
	hub := ws.NewConnHub(log)
	router := &fakeRouter{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", NewTrackerHub(hub, router, log).HandleWS)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, router, hub
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := strings.Replace(srv.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := conn.WriteJSON(ws.Envelope{Event: event, Data: payload}); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) ws.Envelope {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env ws.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func f64(v float64) *float64 { return &v }

func TestTrackerHub_LocationUpdateAck(t *testing.T) {
	srv, router, _ := newTestServer(t)
	conn := dial(t, srv)

	sendEvent(t, conn, types.EventLocationUpdate, models.LocationUpdate{
		BusID:     "BUS_01",
		Latitude:  f64(26.4719876543),
		Longitude: f64(73.113),
		Speed:     f64(10),
	})

	env := readEvent(t, conn)
	if env.Event != types.EventLocationSaved {
		t.Fatalf("event = %q, want locationSaved", env.Event)
	}

	var ack models.LocationAck
	if err := json.Unmarshal(env.Data, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if !ack.Success || ack.BusID != "BUS_01" {
		t.Errorf("ack = %+v, want success for BUS_01", ack)
	}
	if ack.Timestamp == nil {
		t.Errorf("ack carries no server timestamp")
	}

	if updates, _, _, _ := router.counts(); updates != 1 {
		t.Errorf("router saw %d updates, want 1", updates)
	}
}

func TestTrackerHub_InvalidLocationRejected(t *testing.T) {
	srv, router, _ := newTestServer(t)
	conn := dial(t, srv)

	// no coordinates at all
	sendEvent(t, conn, types.EventLocationUpdate, models.LocationUpdate{BusID: "BUS_01"})

	env := readEvent(t, conn)
	if env.Event != types.EventLocationSaved {
		t.Fatalf("event = %q, want locationSaved", env.Event)
	}

	var ack models.LocationAck
	if err := json.Unmarshal(env.Data, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Success {
		t.Errorf("expected a failure ack: %+v", ack)
	}
	if ack.Error == "" {
		t.Errorf("failure ack carries no reason")
	}

	// the event never reached the router
	if updates, _, _, _ := router.counts(); updates != 0 {
		t.Errorf("router saw %d updates, want 0", updates)
	}
}

func TestTrackerHub_TripEventsAreFireAndForget(t *testing.T) {
	srv, router, _ := newTestServer(t)
	conn := dial(t, srv)

	sendEvent(t, conn, types.EventTripStarted, models.TripEvent{BusID: "BUS_01"})
	sendEvent(t, conn, types.EventTripEnded, models.TripEvent{BusID: "BUS_01"})

	// a location update right after: the next inbound frame must be its
	// ack, proving the trip events produced no reply of their own
	sendEvent(t, conn, types.EventLocationUpdate, models.LocationUpdate{
		BusID:     "BUS_01",
		Latitude:  f64(26.47),
		Longitude: f64(73.11),
	})

	env := readEvent(t, conn)
	if env.Event != types.EventLocationSaved {
		t.Fatalf("event = %q, want locationSaved as the only reply", env.Event)
	}

	_, started, ended, _ := router.counts()
	if started != 1 || ended != 1 {
		t.Errorf("router saw started=%d ended=%d, want 1/1", started, ended)
	}
}

func TestTrackerHub_UnknownEventIgnored(t *testing.T) {
	srv, router, _ := newTestServer(t)
	conn := dial(t, srv)

	sendEvent(t, conn, "somethingElse", map[string]string{"busId": "BUS_01"})

	// connection stays usable
	sendEvent(t, conn, types.EventLocationUpdate, models.LocationUpdate{
		BusID:     "BUS_01",
		Latitude:  f64(26.47),
		Longitude: f64(73.11),
	})
	env := readEvent(t, conn)
	if env.Event != types.EventLocationSaved {
		t.Fatalf("event = %q, want locationSaved", env.Event)
	}

	if updates, started, ended, _ := router.counts(); updates != 1 || started != 0 || ended != 0 {
		t.Errorf("unexpected router calls: updates=%d started=%d ended=%d", updates, started, ended)
	}
}

func TestTrackerHub_MalformedFrameSkipped(t *testing.T) {
	srv, router, _ := newTestServer(t)
	conn := dial(t, srv)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	// the connection survives the bad frame
	sendEvent(t, conn, types.EventLocationUpdate, models.LocationUpdate{
		BusID:     "BUS_01",
		Latitude:  f64(26.47),
		Longitude: f64(73.11),
	})
	env := readEvent(t, conn)
	if env.Event != types.EventLocationSaved {
		t.Fatalf("event = %q, want locationSaved", env.Event)
	}

	if updates, _, _, _ := router.counts(); updates != 1 {
		t.Errorf("router saw %d updates, want 1", updates)
	}
}

func TestTrackerHub_DisconnectCleanup(t *testing.T) {
	srv, router, hub := newTestServer(t)
	conn := dial(t, srv)

	sendEvent(t, conn, types.EventLocationUpdate, models.LocationUpdate{
		BusID:     "BUS_01",
		Latitude:  f64(26.47),
		Longitude: f64(73.11),
	})
	readEvent(t, conn) // wait until the server has the connection registered

	if hub.Len() != 1 {
		t.Fatalf("hub has %d connections, want 1", hub.Len())
	}

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, _, _, disconnects := router.counts()
		if disconnects == 1 && hub.Len() == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cleanup did not run: disconnects=%d hub=%d", disconnects, hub.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
