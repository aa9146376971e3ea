package tracker

import (
	"context"

	"github.com/campus-transit/bustrack/internal/domain/models"
	"github.com/campus-transit/bustrack/pkg/uuid"
)

type (
	// LocationStore is the append-only location history of one bus.
	LocationStore interface {
		Append(ctx context.Context, sample models.LocationSample) error
		Recent(ctx context.Context, limit int) ([]models.LocationSample, error)
		Latest(ctx context.Context) (models.LocationSample, error)
	}

	// StatusStore is the single current-status record of one bus.
	StatusStore interface {
		Init(ctx context.Context) error
		Upsert(ctx context.Context, patch models.StatusPatch) error
		Get(ctx context.Context) (models.VehicleStatus, error)
		ClearOwner(ctx context.Context, connID string) error
	}

	// Broadcaster fans an accepted event out to every connection except
	// the originator. Best effort, no delivery confirmation.
	Broadcaster interface {
		Broadcast(ctx context.Context, event string, data any, exclude uuid.UUID)
	}

	// EventFeed mirrors accepted events onto the message bus for
	// consumers outside the WebSocket fan-out.
	EventFeed interface {
		PublishLocation(ctx context.Context, upd models.LocationUpdate) error
		PublishTrip(ctx context.Context, event string, trip models.TripEvent) error
	}
)
