// Package events is the in-process auth event bus. Each connected client
// subscribes to the events of its own session.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jadapache/raices-vivas/core"
)

var _ core.AuthEventBus = (*Broker)(nil)

type Broker struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]func(core.AuthEvent)
	logger *slog.Logger
}

func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subs:   make(map[string]map[uint64]func(core.AuthEvent)),
		logger: logger,
	}
}

// Publish delivers the event to every current subscriber of its session,
// in the caller's goroutine. Subscribers must not block.
func (b *Broker) Publish(_ context.Context, event core.AuthEvent) error {
	b.mu.RLock()
	listeners := make([]func(core.AuthEvent), 0, len(b.subs[event.SessionID]))
	for _, fn := range b.subs[event.SessionID] {
		listeners = append(listeners, fn)
	}
	b.mu.RUnlock()

	b.logger.Debug("auth event published",
		"kind", event.Kind,
		"session_id", event.SessionID,
		"listeners", len(listeners),
	)

	for _, fn := range listeners {
		fn(event)
	}
	return nil
}

// Scope returns a source that only sees events for sessionID.
func (b *Broker) Scope(sessionID string) core.AuthEventSource {
	return scoped{broker: b, sessionID: sessionID}
}

// Subscribers reports how many listeners watch a session.
func (b *Broker) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

func (b *Broker) subscribe(sessionID string, fn func(core.AuthEvent)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[uint64]func(core.AuthEvent))
	}
	b.subs[sessionID][id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[sessionID], id)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
		})
	}
}

type scoped struct {
	broker    *Broker
	sessionID string
}

func (s scoped) Subscribe(fn func(core.AuthEvent)) func() {
	return s.broker.subscribe(s.sessionID, fn)
}
