package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campus-transit/bustrack/internal/domain/types"
	"github.com/campus-transit/bustrack/pkg/logger"
	"github.com/campus-transit/bustrack/pkg/uuid"
)

func newReadsFixture(t *testing.T) (*Reads, *fixture) {
	t.Helper()
	fx := newFixture(t, "BUS_01", "BUS_02")
	reads := NewReads(fx.router.registry, logger.InitLogger("tracker-test", logger.LevelError))
	return reads, fx
}

func TestReads_RecentLocations_NewestFirst(t *testing.T) {
	reads, fx := newReadsFixture(t)
	ctx := context.Background()
	conn := uuid.MustNew()

	base := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		upd := validUpdate("BUS_01")
		ts := base.Add(time.Duration(i) * time.Minute)
		upd.Timestamp = &ts
		if ack := fx.router.LocationUpdate(ctx, conn, upd); !ack.Success {
			t.Fatalf("seed update %d failed: %s", i, ack.Error)
		}
	}

	got, err := reads.RecentLocations(ctx, "BUS_01", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d samples, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CapturedAt.After(got[i-1].CapturedAt) {
			t.Errorf("samples not newest-first at index %d", i)
		}
	}
	if !got[0].CapturedAt.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("first sample = %v, want the newest", got[0].CapturedAt)
	}
}

func TestReads_RecentLocations_UnknownBus(t *testing.T) {
	reads, _ := newReadsFixture(t)

	_, err := reads.RecentLocations(context.Background(), "GHOST_BUS", 10)
	if !errors.Is(err, types.ErrUnknownVehicle) {
		t.Fatalf("err = %v, want ErrUnknownVehicle", err)
	}
}

func TestReads_FleetStatus_Defaults(t *testing.T) {
	reads, _ := newReadsFixture(t)

	statuses, err := reads.FleetStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}
	for id, st := range statuses {
		if st.State != types.StateOffline {
			t.Errorf("%s = %s, want offline before any event", id, st.State)
		}
	}
}

func TestReads_Latest_NoHistory(t *testing.T) {
	reads, _ := newReadsFixture(t)

	sample, status, err := reads.Latest(context.Background(), "BUS_01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sample != nil {
		t.Errorf("expected nil sample with no history")
	}
	if status.State != types.StateOffline {
		t.Errorf("status = %s, want offline", status.State)
	}
}

func TestReads_Latest_WithHistory(t *testing.T) {
	reads, fx := newReadsFixture(t)
	ctx := context.Background()

	if ack := fx.router.LocationUpdate(ctx, uuid.MustNew(), validUpdate("BUS_01")); !ack.Success {
		t.Fatalf("seed update failed: %s", ack.Error)
	}

	sample, status, err := reads.Latest(ctx, "BUS_01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sample == nil {
		t.Fatalf("expected a sample")
	}
	if status.State != types.StateActive {
		t.Errorf("status = %s, want active", status.State)
	}
}

func TestReads_LimitClamping(t *testing.T) {
	reads, _ := newReadsFixture(t)
	ctx := context.Background()

	// neither default nor cap should error on an empty store
	if _, err := reads.RecentLocations(ctx, "BUS_01", 0); err != nil {
		t.Errorf("default limit: %v", err)
	}
	if _, err := reads.RecentLocations(ctx, "BUS_01", MaxRecentLimit+1000); err != nil {
		t.Errorf("capped limit: %v", err)
	}
}
