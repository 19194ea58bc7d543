// Package fiber mounts the auth backend and the dashboard routes on a Fiber app.
package fiber

import (
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jadapache/raices-vivas/core"
	"github.com/jadapache/raices-vivas/router"
	"github.com/jadapache/raices-vivas/services"
)

const (
	DefaultBasePath = "/api/auth"
	AuthCookie      = "auth_token"
)

// RouteMetrics observes dashboard traffic. *metrics.Metrics implements it.
type RouteMetrics interface {
	RouteDecision(view string)
	StreamOpened()
	StreamClosed()
}

type Adapter struct {
	app      *fiber.App
	backend  *core.App
	router   *router.Router
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	metrics  RouteMetrics
	openapi  *openapi3.T
	version  string

	heartbeat time.Duration
	done      chan struct{}
	stopOnce  sync.Once
}

var _ core.HTTPAdapter = (*Adapter)(nil)

type Option func(*Adapter)

// WithGatherer serves the gatherer's metrics on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *Adapter) { a.gatherer = g }
}

func WithRouteMetrics(m RouteMetrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// WithVersion sets the version reported in the OpenAPI document.
func WithVersion(v string) Option {
	return func(a *Adapter) { a.version = v }
}

func New(app *fiber.App, opts ...Option) *Adapter {
	a := &Adapter{app: app, version: "dev", heartbeat: DefaultHeartbeat, done: make(chan struct{})}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) RegisterRoutes(backend *core.App) error {
	if backend == nil || backend.Auth == nil {
		return fmt.Errorf("fiber adapter: %w", core.ErrDBAdapterRequired)
	}
	a.backend = backend
	a.router = router.New(backend.LoginPath)
	a.logger = backend.Logger
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With("component", "http")

	basePath := backend.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}

	doc, err := services.BuildOpenAPI("raices-vivas", a.version, basePath, services.BaseEndpoints())
	if err != nil {
		return err
	}
	a.openapi = doc

	api := a.app.Group(basePath)

	// Public routes
	api.Post("/sign-up", a.signup)
	api.Post("/sign-in", a.signin)
	api.Get("/openapi.json", a.openAPI)

	// Protected routes
	api.Post("/sign-out", a.requireAuth, a.signout)
	api.Get("/session", a.requireAuth, a.session)
	api.Post("/refresh", a.requireAuth, a.refresh)
	api.Post("/change-password", a.requireAuth, a.changePassword)
	api.Get("/profile", a.requireAuth, a.profile)
	api.Patch("/profile", a.requireAuth, a.updateProfile)
	api.Post("/visibility", a.requireAuth, a.visibility)

	// Dashboard routes resolve the caller themselves so that an anonymous
	// visitor is redirected rather than rejected.
	a.app.Get("/dashboard", a.dashboard)
	a.app.Get(path.Join("/dashboard", "stream"), a.dashboardStream)

	if a.gatherer != nil {
		a.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))
	}

	return nil
}

func (a *Adapter) openAPI(c fiber.Ctx) error {
	return c.JSON(a.openapi)
}
