package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/projecthub/projecthub/internal/telemetry"
)

// Event is a room event on its way to every process that may hold members of
// the room. Exclude is a connection id that must not receive it.
type Event struct {
	Name    string
	Data    json.RawMessage
	Exclude string
}

// Broker carries room events to the hubs that deliver them. Publish is a
// single attempt; there is no retry and no redelivery.
type Broker interface {
	Publish(ctx context.Context, projectID int64, ev Event) error
	Ping(ctx context.Context) error
}

// LocalBroker delivers straight into this process's hub. It is used when
// only one server process runs.
type LocalBroker struct {
	hub *Hub
}

// NewLocalBroker creates a broker bound to hub.
func NewLocalBroker(hub *Hub) *LocalBroker {
	return &LocalBroker{hub: hub}
}

// Publish delivers ev to the room.
func (b *LocalBroker) Publish(_ context.Context, projectID int64, ev Event) error {
	frame, err := encodeFrame(ev.Name, "", ev.Data)
	if err != nil {
		return err
	}
	b.hub.Deliver(projectID, frame, ev.Exclude)
	return nil
}

// Ping always succeeds.
func (b *LocalBroker) Ping(context.Context) error { return nil }

// Fanout adapts a Broker to services.Publisher. Failures are logged and
// counted, never returned to the sender.
type Fanout struct {
	broker Broker
}

// NewFanout creates a Fanout over broker.
func NewFanout(broker Broker) *Fanout {
	return &Fanout{broker: broker}
}

// Publish implements services.Publisher.
func (f *Fanout) Publish(ctx context.Context, projectID int64, event string, data interface{}) {
	f.publish(ctx, projectID, event, data, "")
}

func (f *Fanout) publish(ctx context.Context, projectID int64, event string, data interface{}, exclude string) {
	raw, err := json.Marshal(data)
	if err != nil {
		slog.Error("failed to encode room event", "event", event, "project_id", projectID, "error", err)
		return
	}
	if err := f.broker.Publish(ctx, projectID, Event{Name: event, Data: raw, Exclude: exclude}); err != nil {
		telemetry.ChatFanoutDeliveriesTotal.WithLabelValues("publish_error").Inc()
		slog.Warn("room event publish failed", "event", event, "project_id", projectID, "error", fmt.Errorf("publish: %w", err))
	}
}
