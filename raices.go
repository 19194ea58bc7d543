// Package raices assembles the auth backend of the marketplace: storage,
// sessions, auth events and the HTTP adapter that serves them.
package raices

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jadapache/raices-vivas/core"
	"github.com/jadapache/raices-vivas/pkg/cache"
	"github.com/jadapache/raices-vivas/pkg/crypto"
	"github.com/jadapache/raices-vivas/pkg/events"
	"github.com/jadapache/raices-vivas/pkg/metrics"
	"github.com/jadapache/raices-vivas/pkg/visibility"
	"github.com/jadapache/raices-vivas/services"
)

type (
	User        = core.User
	Profile     = core.Profile
	Session     = core.Session
	SessionData = core.SessionData
	Role        = core.Role
)

const (
	defaultBasePath  = "/api/auth"
	defaultSecretLen = 32
)

var (
	ErrDBAdapterRequired   = core.ErrDBAdapterRequired
	ErrHTTPAdapterRequired = core.ErrHTTPAdapterRequired
	ErrSecretRequired      = core.ErrSecretRequired
	ErrSecretTooShort      = core.ErrSecretTooShort
)

type Config struct {
	// Secret signs access tokens. At least 32 characters.
	Secret   string
	Database core.StorageAdapter
	HTTP     core.HTTPAdapter

	CacheAdapter   core.Cache
	DisableCache   bool
	SessionConfig  *core.SessionConfig
	PasswordHasher crypto.PasswordHandler
	AccessTokenTTL time.Duration

	// Events defaults to an in-process broker. Use a shared bus when more
	// than one server instance serves the same sessions.
	Events     core.AuthEventBus
	Visibility core.VisibilityHub

	BasePath              string
	LoginPath             string
	ProfileTimeout        time.Duration
	ClearProfileOnRecheck bool

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Raices is a wired backend. App is what the HTTP adapter was given.
type Raices struct {
	App      *core.App
	Auth     *services.AuthService
	Sessions *services.SessionManager
}

func New(config Config) (*Raices, error) {
	if config.Secret == "" {
		return nil, ErrSecretRequired
	}
	if len(config.Secret) < defaultSecretLen {
		return nil, fmt.Errorf("%w - minimum of %d characters", ErrSecretTooShort, defaultSecretLen)
	}
	if config.Database == nil {
		return nil, ErrDBAdapterRequired
	}
	if config.HTTP == nil {
		return nil, ErrHTTPAdapterRequired
	}

	// Set Defaults

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cacheAdapter := config.CacheAdapter
	if cacheAdapter == nil && !config.DisableCache {
		cacheAdapter = cache.NewInMemoryCache(core.CacheConfig{
			TTL:     5 * time.Minute,
			MaxSize: 500,
		})
	}
	if config.DisableCache {
		cacheAdapter = nil
	}

	sessionConfig := core.DefaultSessionConfig()
	if config.SessionConfig != nil {
		sessionConfig = *config.SessionConfig
	}

	passwordHasher := config.PasswordHasher
	if passwordHasher == nil {
		passwordHasher = crypto.NewArgon2()
	}

	bus := config.Events
	if bus == nil {
		bus = events.NewBroker(logger)
	}
	hub := config.Visibility
	if hub == nil {
		hub = visibility.NewHub()
	}

	basePath := config.BasePath
	if basePath == "" {
		basePath = defaultBasePath
	}

	sessionManager := services.NewSessionManager(sessionConfig, config.Database, cacheAdapter,
		services.WithSessionLogger(logger.With("component", "sessions")))
	auth := services.NewAuthService(config.Database, sessionManager, passwordHasher,
		services.WithEvents(bus),
		services.WithAccessTokens(crypto.NewAccessTokenIssuer(config.Secret, config.AccessTokenTTL, "")),
		services.WithLogger(logger.With("component", "auth")),
		services.WithMetrics(config.Metrics),
	)

	app := &core.App{
		Auth:                  auth,
		Events:                bus,
		Visibility:            hub,
		BasePath:              basePath,
		LoginPath:             config.LoginPath,
		ProfileTimeout:        config.ProfileTimeout,
		ClearProfileOnRecheck: config.ClearProfileOnRecheck,
		Logger:                logger,
	}
	if config.Metrics != nil {
		app.Metrics = config.Metrics
	}

	if err := config.HTTP.RegisterRoutes(app); err != nil {
		return nil, err
	}

	return &Raices{App: app, Auth: auth, Sessions: sessionManager}, nil
}
