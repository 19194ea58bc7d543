// Package visibility relays "client is visible again" pings to the session
// stores that asked to hear about them.
package visibility

import (
	"sync"

	"github.com/jadapache/raices-vivas/core"
)

var _ core.VisibilityHub = (*Hub)(nil)

type Hub struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[string]map[uint64]func()
}

func NewHub() *Hub {
	return &Hub{listeners: make(map[string]map[uint64]func())}
}

// Listen registers fn under key until cancel is called.
func (h *Hub) Listen(key string, fn func()) (cancel func()) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.listeners[key] == nil {
		h.listeners[key] = make(map[uint64]func())
	}
	h.listeners[key][id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.listeners[key], id)
			if len(h.listeners[key]) == 0 {
				delete(h.listeners, key)
			}
		})
	}
}

// Notify calls every listener under key and returns how many were called.
func (h *Hub) Notify(key string) int {
	h.mu.RLock()
	fns := make([]func(), 0, len(h.listeners[key]))
	for _, fn := range h.listeners[key] {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

// Source binds the hub to one key.
func (h *Hub) Source(key string) core.VisibilitySource {
	return source{hub: h, key: key}
}

type source struct {
	hub *Hub
	key string
}

func (s source) OnVisible(fn func()) func() { return s.hub.Listen(s.key, fn) }
