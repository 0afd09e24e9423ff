package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/projecthub/projecthub/internal/config"
)

// Subscriber retry backoff bounds.
const (
	subscribeRetryMin = 250 * time.Millisecond
	subscribeRetryMax = 15 * time.Second
)

// ErrSubscriberDown is returned by RedisBroker.Ping while the subscriber is
// not receiving from the channel.
var ErrSubscriberDown = errors.New("room event subscriber is not subscribed")

// envelope is the wire format on the Redis channel.
type envelope struct {
	ProjectID int64           `json:"project_id"`
	Exclude   string          `json:"exclude,omitempty"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// RedisBroker publishes room events to a Redis pub/sub channel shared by all
// server processes. Each process runs one subscriber (Run) that delivers the
// events it receives into its own hub, including the ones it published.
type RedisBroker struct {
	client  *redis.Client
	channel string
	hub     *Hub

	retryMin   time.Duration
	retryMax   time.Duration
	subscribed atomic.Bool
	attempts   atomic.Int64
}

// NewRedisClient builds a go-redis client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// NewRedisBroker creates a broker publishing on channel and delivering into hub.
func NewRedisBroker(client *redis.Client, channel string, hub *Hub) *RedisBroker {
	return &RedisBroker{
		client:   client,
		channel:  channel,
		hub:      hub,
		retryMin: subscribeRetryMin,
		retryMax: subscribeRetryMax,
	}
}

// Publish sends ev to every subscribed process.
func (b *RedisBroker) Publish(ctx context.Context, projectID int64, ev Event) error {
	payload, err := json.Marshal(envelope{
		ProjectID: projectID,
		Exclude:   ev.Exclude,
		Event:     ev.Name,
		Data:      ev.Data,
	})
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", b.channel, err)
	}
	return nil
}

// Ping checks the Redis connection and that the subscriber is receiving.
func (b *RedisBroker) Ping(ctx context.Context) error {
	if !b.subscribed.Load() {
		return ErrSubscriberDown
	}
	return b.client.Ping(ctx).Err()
}

// Run subscribes to the channel and delivers events until ctx is cancelled.
// A failed or dropped subscription is retried with exponential backoff; in
// Redis mode this process delivers nothing until it is subscribed.
func (b *RedisBroker) Run(ctx context.Context) error {
	backoff := b.retryMin
	for {
		err := b.subscribe(ctx)
		b.subscribed.Store(false)
		if ctx.Err() != nil {
			slog.Info("room event subscriber stopped", "channel", b.channel)
			return nil
		}
		if err == nil {
			// The subscription ran and ended; start over from the short delay.
			backoff = b.retryMin
		} else {
			slog.Warn("room event subscriber failed; retrying",
				"channel", b.channel, "error", err, "retry_in", backoff.String())
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("room event subscriber stopped", "channel", b.channel)
			return nil
		case <-timer.C:
		}
		if err != nil {
			backoff = min(backoff*2, b.retryMax)
		}
	}
}

// subscribe runs one subscription until ctx is cancelled or the channel closes.
func (b *RedisBroker) subscribe(ctx context.Context) error {
	b.attempts.Add(1)
	sub := b.client.Subscribe(ctx, b.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	b.subscribed.Store(true)
	slog.Info("room event subscriber started", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(msg.Payload)
		}
	}
}

// handle decodes one envelope and delivers it locally.
func (b *RedisBroker) handle(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		slog.Warn("dropping malformed room event", "channel", b.channel, "error", err)
		return
	}
	frame, err := encodeFrame(env.Event, "", env.Data)
	if err != nil {
		slog.Warn("dropping unencodable room event", "event", env.Event, "error", err)
		return
	}
	b.hub.Deliver(env.ProjectID, frame, env.Exclude)
}
