package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jadapache/raices-vivas/core"
)

const subscribeTimeout = 5 * time.Second

var _ core.AuthEventBus = (*EventBus)(nil)

// EventBus publishes auth events on one Redis channel per session, so a
// sign-out on any instance reaches the streams held by every other one.
type EventBus struct {
	client *redis.Client
	logger *slog.Logger
}

func NewEventBus(client *redis.Client, logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{client: client, logger: logger.With("component", "redis-events")}
}

func (b *EventBus) Publish(ctx context.Context, event core.AuthEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, eventChannel(event.SessionID), data).Err()
}

func (b *EventBus) Scope(sessionID string) core.AuthEventSource {
	return scoped{bus: b, sessionID: sessionID}
}

type scoped struct {
	bus       *EventBus
	sessionID string
}

// Subscribe returns once Redis has confirmed the subscription, so an event
// published after it returns is not missed. If Redis cannot be reached the
// failure is logged and no events are delivered.
func (s scoped) Subscribe(fn func(core.AuthEvent)) func() {
	logger := s.bus.logger.With("session_id", s.sessionID)
	pubsub := s.bus.client.Subscribe(context.Background(), eventChannel(s.sessionID))

	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	_, err := pubsub.Receive(ctx)
	cancel()
	if err != nil {
		logger.Error("auth event subscription failed", "error", err)
		_ = pubsub.Close()
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range pubsub.Channel() {
			var event core.AuthEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Warn("dropping malformed auth event", "error", err)
				continue
			}
			if !event.Kind.Valid() {
				logger.Warn("dropping auth event of unknown kind", "kind", event.Kind)
				continue
			}
			fn(event)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = pubsub.Close()
			<-done
		})
	}
}
