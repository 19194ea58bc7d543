package core

import (
	"context"
	"time"
)

// Ports define interfaces for external dependencies

// ============================================
// STORAGE PORTS (Database operations)
// ============================================

// SessionStorage defines session-related database operations
type SessionStorage interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSessionByHash(ctx context.Context, tokenHash string) (*Session, error)
	GetSessionByID(ctx context.Context, id string) (*Session, error)
	GetUserSessions(ctx context.Context, userID string) ([]*Session, error)
	UpdateSession(ctx context.Context, session *Session) error
	DeleteSessionByID(ctx context.Context, id string) error
	DeleteSessionByHash(ctx context.Context, tokenHash string) error
	DeleteUserSessions(ctx context.Context, userID string) (int, error)
	DeleteExpiredSessions(ctx context.Context) (int, error)
}

// UserStorage defines user-related database operations
type UserStorage interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id string) error
}

// AccountStorage defines account-related database operations
type AccountStorage interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccountByID(ctx context.Context, id string) (*Account, error)
	GetAccountByUserAndProvider(ctx context.Context, userID, providerID string) ([]*Account, error)
	UpdateAccount(ctx context.Context, a *Account) error
	DeleteAccount(ctx context.Context, id string) error
}

// ProfileStorage defines profile-related database operations.
// GetProfileByID returns ErrProfileNotFound when no row exists.
type ProfileStorage interface {
	CreateProfile(ctx context.Context, p *Profile) error
	GetProfileByID(ctx context.Context, id string) (*Profile, error)
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*Profile, error)
}

type StorageAdapter interface {
	UserStorage
	AccountStorage
	SessionStorage
	ProfileStorage
}

// ============================================
// CACHE PORT
// ============================================

// Cache defines session caching operations
type Cache interface {
	Get(ctx context.Context, tokenHash string) (*Session, error)
	Set(ctx context.Context, tokenHash string, session *Session) error
	Delete(ctx context.Context, tokenHash string) error
	Clear(ctx context.Context) error
}

// CacheWithStats extends Cache with statistics tracking
type CacheWithStats interface {
	Cache
	Stats() CacheStats
}

// CacheConfig configures cache behavior
type CacheConfig struct {
	TTL     time.Duration
	MaxSize int
}

// CacheStats tracks cache performance metrics
type CacheStats struct {
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Sets      int64         `json:"sets"`
	Deletes   int64         `json:"deletes"`
	Evictions int64         `json:"evictions"`
	Size      int           `json:"size"`
	TTL       time.Duration `json:"ttl"`
}

// ============================================
// AUTH HANDLER (for HTTP adapters)
// ============================================

// AuthHandler provides authentication operations for HTTP adapters
type AuthHandler interface {
	SignUp(ctx context.Context, input SignUpInput, ipAddress, userAgent string) (*SignUpResult, error)
	SignIn(ctx context.Context, input SignInInput, ipAddress, userAgent string) (*SignInResult, error)
	SignOut(ctx context.Context, token string) error
	SignOutSession(ctx context.Context, sessionID string) error
	GetSession(ctx context.Context, token string) (*SessionData, error)
	GetSessionByID(ctx context.Context, sessionID string) (*SessionData, error)
	Authenticate(ctx context.Context, credential string) (*SessionData, error)
	Refresh(ctx context.Context, token string) (*RefreshResult, error)
	ChangePassword(ctx context.Context, userID string, input ChangePasswordInput) error
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*Profile, error)
}

// ============================================
// HTTP PORT
// ============================================

type HTTPAdapter interface {
	RegisterRoutes(app *App) error
}

// ============================================
// SESSION STORE PORTS
// ============================================

// SessionGetter returns the current session for one client, or nil when
// signed out. A nil session with a nil error means "no session".
type SessionGetter interface {
	CurrentSession(ctx context.Context) (*SessionData, error)
}

// SessionGetterFunc adapts a function to SessionGetter.
type SessionGetterFunc func(ctx context.Context) (*SessionData, error)

func (f SessionGetterFunc) CurrentSession(ctx context.Context) (*SessionData, error) {
	return f(ctx)
}

// ProfileLookup resolves a profile by user id. A missing row must be
// reported as ErrProfileNotFound.
type ProfileLookup interface {
	GetProfileByID(ctx context.Context, id string) (*Profile, error)
}

// SignOuter ends the backend session for one client. It must be idempotent.
type SignOuter interface {
	SignOut(ctx context.Context) error
}

// SignOutFunc adapts a function to SignOuter.
type SignOutFunc func(ctx context.Context) error

func (f SignOutFunc) SignOut(ctx context.Context) error {
	return f(ctx)
}

// VisibilitySource notifies when the client becomes visible again.
type VisibilitySource interface {
	OnVisible(fn func()) (cancel func())
}
