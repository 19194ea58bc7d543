package core

import (
	"log/slog"
	"time"
)

// SessionConfig controls server session lifetime.
type SessionConfig struct {
	MaxAge time.Duration
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{MaxAge: 24 * time.Hour}
}

// App is the assembled backend handed to HTTP adapters.
type App struct {
	Auth       AuthHandler
	Events     AuthEventBus
	Visibility VisibilityHub

	BasePath  string
	LoginPath string

	// ProfileTimeout bounds each profile lookup made by a session store.
	ProfileTimeout time.Duration
	// ClearProfileOnRecheck drops the visible profile while a same-user
	// recheck is in flight instead of keeping it.
	ClearProfileOnRecheck bool

	Logger  *slog.Logger
	Metrics StoreMetrics
}

// VisibilityHub routes "client became visible" pings to the stores that
// listen for them, keyed by session id.
type VisibilityHub interface {
	Source(key string) VisibilitySource
	Notify(key string) int
}

// StoreMetrics receives session store outcomes. Implementations must be
// safe for concurrent use.
type StoreMetrics interface {
	ReconcileOutcome(outcome string)
	ForcedSignOut(reason string)
	ProfileLookupDuration(d time.Duration)
}
