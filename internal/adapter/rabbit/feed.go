package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/campus-transit/bustrack/internal/domain/models"
	"github.com/campus-transit/bustrack/internal/domain/types"
	wrap "github.com/campus-transit/bustrack/pkg/logger/wrapper"
	"github.com/campus-transit/bustrack/pkg/rabbit"
	"github.com/rabbitmq/amqp091-go"
)

const exchangeName = "bus.events"

// FeedProducer publishes every accepted event to a topic exchange so
// external consumers (archivers, notification services) can follow the
// fleet without holding a WebSocket open. Best effort: the driver path
// never waits on or fails because of the feed.
type FeedProducer struct {
	client *rabbit.RabbitMQ
}

func NewFeedProducer(client *rabbit.RabbitMQ) (*FeedProducer, error) {
	if err := client.Channel.ExchangeDeclare(
		exchangeName,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchangeName, err)
	}

	return &FeedProducer{client: client}, nil
}

// PublishLocation publishes an accepted location update under
// location.update.<busId>.
func (p *FeedProducer) PublishLocation(ctx context.Context, upd models.LocationUpdate) error {
	key := fmt.Sprintf("location.update.%s", upd.BusID)
	return p.publish(ctx, key, upd)
}

// PublishTrip publishes a trip lifecycle event under
// trip.started.<busId> or trip.ended.<busId>.
func (p *FeedProducer) PublishTrip(ctx context.Context, event string, trip models.TripEvent) error {
	var key string
	switch event {
	case types.EventTripStarted:
		key = fmt.Sprintf("trip.started.%s", trip.BusID)
	case types.EventTripEnded:
		key = fmt.Sprintf("trip.ended.%s", trip.BusID)
	default:
		return fmt.Errorf("unknown trip event: %s", event)
	}
	return p.publish(ctx, key, trip)
}

func (p *FeedProducer) publish(ctx context.Context, key string, payload any) error {
	const op = "FeedProducer.publish"

	body, err := json.Marshal(payload)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: failed to marshal message: %w", op, err))
	}

	if err := p.client.Channel.PublishWithContext(
		ctx,
		exchangeName, // exchange
		key,          // routing key
		false,        // mandatory
		false,        // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   time.Now(),
		},
	); err != nil {
		ctx = wrap.WithAction(ctx, types.ActionFeedPublishFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: failed to publish with context: %w", op, err))
	}

	return nil
}
