package fiber

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/jadapache/raices-vivas/core"
	"github.com/jadapache/raices-vivas/router"
	"github.com/jadapache/raices-vivas/services"
	"github.com/jadapache/raices-vivas/sessionstore"
)

const DefaultHeartbeat = 15 * time.Second

// WithHeartbeat sets how often an idle dashboard stream is pinged.
func WithHeartbeat(d time.Duration) Option {
	return func(a *Adapter) { a.heartbeat = d }
}

// Shutdown ends every open dashboard stream. It is safe to call more than once.
func (a *Adapter) Shutdown() {
	a.stopOnce.Do(func() { close(a.done) })
}

// dashboard mounts a session store for one request, routes once and
// unmounts it.
func (a *Adapter) dashboard(c fiber.Ctx) error {
	data := a.resolve(c)
	if data == nil {
		return a.render(c, a.router.Route(sessionstore.AuthState{}))
	}

	store, err := a.storeFor(data.Session.ID)
	if err != nil {
		return handleAuthError(c, err)
	}
	defer store.Close()

	st := store.Reconcile(c.Context(), data)
	return a.render(c, a.router.Route(st))
}

// dashboardStream keeps a session store mounted for the connection and sends
// one "decision" event per change. The stream ends once the client is
// signed out.
func (a *Adapter) dashboardStream(c fiber.Ctx) error {
	data := a.resolve(c)
	if data == nil {
		return a.render(c, a.router.Route(sessionstore.AuthState{}))
	}

	store, err := a.storeFor(data.Session.ID)
	if err != nil {
		return handleAuthError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		a.stream(w, store, data.Session.ID)
	})
}

func (a *Adapter) stream(w *bufio.Writer, store *sessionstore.Store, sessionID string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer store.Close()

	q := newDecisionQueue()
	unsubscribe := store.Subscribe(func(st sessionstore.AuthState) {
		q.push(a.router.Route(st))
	})
	defer unsubscribe()

	if err := store.Start(ctx); err != nil {
		a.logger.Error("failed to start session store", "session_id", sessionID, "error", err)
		return
	}
	if a.metrics != nil {
		a.metrics.StreamOpened()
		defer a.metrics.StreamClosed()
	}

	heartbeat := time.NewTicker(a.heartbeat)
	defer heartbeat.Stop()

	var last *router.Decision
	for {
		select {
		case <-a.done:
			return
		case <-q.ready:
			for _, d := range q.drain() {
				if last != nil && reflect.DeepEqual(*last, d) {
					continue
				}
				last = &d
				a.observe(d)
				if err := writeEvent(w, "decision", d); err != nil {
					a.logger.Debug("dashboard stream closed by client", "session_id", sessionID, "error", err)
					return
				}
				if d.View == router.ViewLogin {
					return
				}
			}
		case <-heartbeat.C:
			if _, err := w.WriteString(": ping\n\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}

func (a *Adapter) visibility(c fiber.Ctx) error {
	n := 0
	if a.backend.Visibility != nil {
		n = a.backend.Visibility.Notify(currentSession(c).ID)
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"listeners": n})
}

// resolve returns the caller's session, or nil for an anonymous caller or
// a credential that no longer works.
func (a *Adapter) resolve(c fiber.Ctx) *core.SessionData {
	token := extractToken(c)
	if token == "" {
		return nil
	}
	data, err := a.backend.Auth.Authenticate(c.Context(), token)
	if err != nil {
		if mapErrorToStatus(err) != http.StatusUnauthorized {
			a.logger.Error("failed to resolve dashboard caller", "error", err)
		}
		return nil
	}
	return data
}

func (a *Adapter) storeFor(sessionID string) (*sessionstore.Store, error) {
	ports := services.PortsForSession(a.backend.Auth, sessionID)
	cfg := sessionstore.Config{
		Events:                silentEvents{},
		Sessions:              ports.Sessions,
		Profiles:              ports.Profiles,
		SignOut:               ports.SignOut,
		ProfileTimeout:        a.backend.ProfileTimeout,
		ClearProfileOnRecheck: a.backend.ClearProfileOnRecheck,
		Logger:                a.logger.With("session_id", sessionID),
		Metrics:               a.backend.Metrics,
	}
	if a.backend.Events != nil {
		cfg.Events = a.backend.Events.Scope(sessionID)
	}
	if a.backend.Visibility != nil {
		cfg.Visibility = a.backend.Visibility.Source(sessionID)
	}
	return sessionstore.New(cfg)
}

func (a *Adapter) render(c fiber.Ctx, d router.Decision) error {
	a.observe(d)
	switch d.View {
	case router.ViewLogin:
		location := d.RedirectTo
		if d.Message != "" {
			location += "?reason=" + url.QueryEscape(d.Message)
		}
		return c.Redirect().Status(http.StatusSeeOther).To(location)
	case router.ViewDashboard:
		return c.Status(http.StatusOK).JSON(d)
	case router.ViewLoading:
		return c.Status(http.StatusAccepted).JSON(d)
	default:
		return c.Status(http.StatusForbidden).JSON(d)
	}
}

func (a *Adapter) observe(d router.Decision) {
	if a.metrics != nil {
		a.metrics.RouteDecision(string(d.View))
	}
}

func writeEvent(w *bufio.Writer, name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, b); err != nil {
		return err
	}
	return w.Flush()
}

// decisionQueue hands decisions from the store's writer to the stream loop
// without ever blocking the writer.
type decisionQueue struct {
	mu    sync.Mutex
	items []router.Decision
	ready chan struct{}
}

func newDecisionQueue() *decisionQueue {
	return &decisionQueue{ready: make(chan struct{}, 1)}
}

func (q *decisionQueue) push(d router.Decision) {
	q.mu.Lock()
	q.items = append(q.items, d)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *decisionQueue) drain() []router.Decision {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// silentEvents is used when no event bus is configured.
type silentEvents struct{}

func (silentEvents) Subscribe(func(core.AuthEvent)) func() { return func() {} }
