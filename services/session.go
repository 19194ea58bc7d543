package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jadapache/raices-vivas/core"
	"github.com/jadapache/raices-vivas/pkg/crypto"
)

// SessionManager owns opaque session tokens. Storage is the source of truth;
// the optional cache maps a token hash to its session and is always
// confirmed against storage, so a missed invalidation never keeps a
// destroyed session alive.
type SessionManager struct {
	config  core.SessionConfig
	storage core.SessionStorage
	cache   core.Cache // optional, can be nil if caching is disabled
	logger  *slog.Logger
	now     func() time.Time
}

type SessionOption func(*SessionManager)

// WithSessionLogger receives cache invalidation failures.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(sm *SessionManager) { sm.logger = l }
}

func NewSessionManager(config core.SessionConfig, storage core.SessionStorage, cache core.Cache, opts ...SessionOption) *SessionManager {
	if config.MaxAge <= 0 {
		config.MaxAge = core.DefaultSessionConfig().MaxAge
	}
	sm := &SessionManager{config: config, storage: storage, cache: cache, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

func (sm *SessionManager) Create(ctx context.Context, userID, ip, userAgent string) (*core.CreateSessionResult, error) {
	pair, err := crypto.NewSessionToken()
	if err != nil {
		return nil, err
	}

	sessionID, err := crypto.NewSessionID()
	if err != nil {
		return nil, err
	}

	now := sm.now()
	session := &core.Session{
		ID:        sessionID,
		UserID:    userID,
		TokenHash: pair.Hash,
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(sm.config.MaxAge),
	}

	if err := sm.storage.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	// We don't fail the request if caching fails
	if sm.cache != nil {
		_ = sm.cache.Set(ctx, pair.Hash, session)
	}

	return &core.CreateSessionResult{Session: session, Token: pair.Token}, nil
}

func (sm *SessionManager) Verify(ctx context.Context, token string) (*core.Session, error) {
	if token == "" {
		return nil, core.ErrInvalidToken
	}

	tokenHash := crypto.HashToken(token)

	if sm.cache != nil {
		if cached, err := sm.cache.Get(ctx, tokenHash); err == nil {
			return sm.confirmCached(ctx, token, tokenHash, cached)
		}
	}

	session, err := sm.storage.GetSessionByHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if session == nil || !crypto.TokenMatchesHash(token, session.TokenHash) {
		return nil, core.ErrSessionNotFound
	}

	if sm.now().After(session.ExpiresAt) {
		return nil, core.ErrSessionExpired
	}

	if sm.cache != nil {
		if err := sm.cache.Set(ctx, tokenHash, session); err != nil {
			sm.logger.Debug("failed to cache session", "session_id", session.ID, "error", err)
		}
	}

	return session, nil
}

// confirmCached re-reads a cache hit from storage. The entry is evicted when
// the row is gone, was rotated to another token or has expired.
func (sm *SessionManager) confirmCached(ctx context.Context, token, tokenHash string, cached *core.Session) (*core.Session, error) {
	if sm.now().After(cached.ExpiresAt) {
		sm.evict(ctx, cached.ID, tokenHash)
		return nil, core.ErrSessionExpired
	}

	session, err := sm.storage.GetSessionByID(ctx, cached.ID)
	if err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		return nil, err
	}
	if session == nil || !crypto.TokenMatchesHash(token, session.TokenHash) {
		sm.evict(ctx, cached.ID, tokenHash)
		return nil, core.ErrSessionNotFound
	}
	if sm.now().After(session.ExpiresAt) {
		sm.evict(ctx, session.ID, tokenHash)
		return nil, core.ErrSessionExpired
	}
	return session, nil
}

// evict drops a cache entry after its storage row changed. A failure only
// costs a storage read on the next Verify, so it is logged.
func (sm *SessionManager) evict(ctx context.Context, sessionID, tokenHash string) {
	if sm.cache == nil {
		return
	}
	if err := sm.cache.Delete(ctx, tokenHash); err != nil {
		sm.logger.Warn("failed to invalidate cached session", "session_id", sessionID, "error", err)
	}
}

// Get loads a session by id. Expired sessions are reported as such and
// never returned.
func (sm *SessionManager) Get(ctx context.Context, sessionID string) (*core.Session, error) {
	if sessionID == "" {
		return nil, core.ErrSessionNotFound
	}
	session, err := sm.storage.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, core.ErrSessionNotFound
	}
	if sm.now().After(session.ExpiresAt) {
		return nil, core.ErrSessionExpired
	}
	return session, nil
}

// Refresh rotates the token of a live session and extends its expiry. The
// session id stays the same so that clients watching it keep their stream.
func (sm *SessionManager) Refresh(ctx context.Context, token string) (*core.CreateSessionResult, error) {
	session, err := sm.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	oldHash := session.TokenHash

	pair, err := crypto.NewSessionToken()
	if err != nil {
		return nil, err
	}

	now := sm.now()
	rotated := *session
	rotated.TokenHash = pair.Hash
	rotated.UpdatedAt = now
	rotated.ExpiresAt = now.Add(sm.config.MaxAge)

	if err := sm.storage.UpdateSession(ctx, &rotated); err != nil {
		return nil, err
	}

	sm.evict(ctx, rotated.ID, oldHash)
	if sm.cache != nil {
		if err := sm.cache.Set(ctx, pair.Hash, &rotated); err != nil {
			sm.logger.Debug("failed to cache session", "session_id", rotated.ID, "error", err)
		}
	}

	return &core.CreateSessionResult{Session: &rotated, Token: pair.Token}, nil
}

// Destroy deletes the session behind token and returns it.
func (sm *SessionManager) Destroy(ctx context.Context, token string) (*core.Session, error) {
	if token == "" {
		return nil, core.ErrInvalidToken
	}

	tokenHash := crypto.HashToken(token)
	session, err := sm.storage.GetSessionByHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}

	if err := sm.storage.DeleteSessionByHash(ctx, tokenHash); err != nil {
		return nil, err
	}
	sm.evict(ctx, session.ID, tokenHash)

	return session, nil
}

// DestroyBySessionID deletes the storage row before touching the cache, so a
// concurrent Verify can never re-cache a session that is being destroyed.
func (sm *SessionManager) DestroyBySessionID(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return core.ErrSessionNotFound
	}

	var tokenHash string
	if sm.cache != nil {
		if session, err := sm.storage.GetSessionByID(ctx, sessionID); err == nil && session != nil {
			tokenHash = session.TokenHash
		}
	}

	if err := sm.storage.DeleteSessionByID(ctx, sessionID); err != nil {
		return err
	}
	if tokenHash != "" {
		sm.evict(ctx, sessionID, tokenHash)
	}
	return nil
}

// DestroyAllUserSessions returns the ids of the sessions it removed.
func (sm *SessionManager) DestroyAllUserSessions(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, core.ErrUserNotFound
	}

	sessions, err := sm.storage.GetUserSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	if _, err := sm.storage.DeleteUserSessions(ctx, userID); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
		sm.evict(ctx, s.ID, s.TokenHash)
	}
	return ids, nil
}

// Sweep removes expired sessions from storage.
func (sm *SessionManager) Sweep(ctx context.Context) (int, error) {
	return sm.storage.DeleteExpiredSessions(ctx)
}
