package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ioms/backend/internal/model"
)

// DefaultChannel is the Redis pub/sub channel shared by all instances.
const DefaultChannel = "ioms:realtime"

// Broadcaster publishes an event to every connected client that should see it.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev model.BusEvent) error
}

// Local broadcasts to the sessions of this process only.
type Local struct {
	Bus *Bus
}

func (l Local) Broadcast(_ context.Context, ev model.BusEvent) error {
	l.Bus.Deliver(ev)
	return nil
}

type envelope struct {
	Origin string         `json:"origin"`
	Event  model.BusEvent `json:"event"`
}

// Relay delivers events locally and forwards them to other instances over
// Redis pub/sub. Messages published by this instance are not delivered twice.
type Relay struct {
	bus     *Bus
	client  *redis.Client
	channel string
	origin  string
	logger  *slog.Logger
}

// ConnectRedis accepts either a redis:// URL or a host:port address.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func NewRelay(bus *Bus, client *redis.Client, channel string, logger *slog.Logger) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		bus:     bus,
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger.With(slog.String("op", "realtime.Relay")),
	}
}

func (r *Relay) Broadcast(ctx context.Context, ev model.BusEvent) error {
	r.bus.Deliver(ev)
	payload, err := json.Marshal(envelope{Origin: r.origin, Event: ev})
	if err != nil {
		return fmt.Errorf("marshal realtime event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish realtime event: %w", err)
	}
	return nil
}

// Run consumes events published by other instances until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("realtime relay subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *Relay) handle(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Warn("discarding malformed realtime message", "error", err)
		return
	}
	if env.Origin == r.origin {
		return
	}
	r.bus.Deliver(env.Event)
}
