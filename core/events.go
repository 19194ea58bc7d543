package core

import "context"

// AuthEventKind names an auth state change emitted by the backend.
type AuthEventKind string

const (
	EventSignedIn       AuthEventKind = "SIGNED_IN"
	EventSignedOut      AuthEventKind = "SIGNED_OUT"
	EventTokenRefreshed AuthEventKind = "TOKEN_REFRESHED"
	EventInitialSession AuthEventKind = "INITIAL_SESSION"
)

func (k AuthEventKind) Valid() bool {
	switch k {
	case EventSignedIn, EventSignedOut, EventTokenRefreshed, EventInitialSession:
		return true
	}
	return false
}

// AuthEvent is one notification on the auth stream. Session is nil for
// SIGNED_OUT and for an INITIAL_SESSION without a signed-in user.
type AuthEvent struct {
	Kind      AuthEventKind `json:"kind"`
	SessionID string        `json:"sessionId"`
	Session   *SessionData  `json:"session,omitempty"`
}

// AuthEventSource delivers auth events to a single callback until
// unsubscribe is called.
type AuthEventSource interface {
	Subscribe(fn func(AuthEvent)) (unsubscribe func())
}

// AuthEventPublisher fans an event out to every client watching its session.
type AuthEventPublisher interface {
	Publish(ctx context.Context, event AuthEvent) error
}

// AuthEventBus is both ends of the auth stream. Scope narrows the stream to
// the events of one session.
type AuthEventBus interface {
	AuthEventPublisher
	Scope(sessionID string) AuthEventSource
}
