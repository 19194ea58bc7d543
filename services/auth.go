package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jadapache/raices-vivas/core"
	"github.com/jadapache/raices-vivas/pkg/crypto"
	"github.com/jadapache/raices-vivas/pkg/validate"
)

// OperationMetrics records the result of each auth operation.
type OperationMetrics interface {
	AuthOperation(operation string, err error)
}

type AuthService struct {
	db             core.StorageAdapter
	passwordHasher crypto.PasswordHandler
	sessionManager *SessionManager

	events       core.AuthEventPublisher
	accessTokens *crypto.AccessTokenIssuer
	logger       *slog.Logger
	metrics      OperationMetrics
	now          func() time.Time
}

// Ensure AuthService implements AuthHandler
var _ core.AuthHandler = (*AuthService)(nil)

type AuthOption func(*AuthService)

// WithEvents publishes SIGNED_IN, SIGNED_OUT and TOKEN_REFRESHED.
func WithEvents(p core.AuthEventPublisher) AuthOption {
	return func(s *AuthService) { s.events = p }
}

// WithAccessTokens issues a JWT next to every opaque session token and
// accepts it wherever a token is expected.
func WithAccessTokens(issuer *crypto.AccessTokenIssuer) AuthOption {
	return func(s *AuthService) { s.accessTokens = issuer }
}

func WithLogger(l *slog.Logger) AuthOption {
	return func(s *AuthService) { s.logger = l }
}

func WithMetrics(m OperationMetrics) AuthOption {
	return func(s *AuthService) { s.metrics = m }
}

func NewAuthService(db core.StorageAdapter, sessionManager *SessionManager, passwordHasher crypto.PasswordHandler, opts ...AuthOption) *AuthService {
	s := &AuthService{
		db:             db,
		passwordHasher: passwordHasher,
		sessionManager: sessionManager,
		logger:         slog.Default(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignUp registers a user with email and password and creates the
// marketplace profile for the chosen role.
func (s *AuthService) SignUp(ctx context.Context, input core.SignUpInput, ipAddress, userAgent string) (result *core.SignUpResult, err error) {
	defer func() { s.observe("sign_up", err) }()

	email, err := validate.Email(input.Email)
	if err != nil {
		return nil, err
	}
	if err := validate.NewPassword(input.Password); err != nil {
		return nil, err
	}
	fullName := strings.TrimSpace(input.FullName)
	if fullName == "" {
		return nil, core.ErrFullNameRequired
	}
	role, err := core.ParseRole(input.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidRole, err)
	}

	// Step 1: Check if user already exists
	existing, err := s.db.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, core.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, core.ErrUserExists
	}

	// Step 2: Hash the password
	hashedPassword, err := s.passwordHasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// Step 3: Create the user, its credential account and its profile
	now := s.now()
	user := &core.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      fullName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	account := &core.Account{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		ProviderID: core.CredentialProvider,
		AccountID:  user.ID, // For credential provider, account ID = user ID
		Password:   &hashedPassword,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.CreateAccount(ctx, account); err != nil {
		s.rollbackUser(ctx, user.ID)
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	profile := &core.Profile{
		ID:            user.ID,
		Email:         email,
		FullName:      fullName,
		Role:          role.String(),
		CommunityName: trimmed(input.CommunityName),
		Phone:         trimmed(input.Phone),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.CreateProfile(ctx, profile); err != nil {
		s.rollbackUser(ctx, user.ID)
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	// Step 4: Create a session for the new user
	result, err = s.startSession(ctx, user, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}
	result.Profile = profile

	s.logger.Info("user signed up", "user_id", user.ID, "role", profile.Role)
	return result, nil
}

// SignIn authenticates a user with email and password
func (s *AuthService) SignIn(ctx context.Context, input core.SignInInput, ipAddress, userAgent string) (result *core.SignInResult, err error) {
	defer func() { s.observe("sign_in", err) }()

	if strings.TrimSpace(input.Email) == "" {
		return nil, core.ErrEmailRequired
	}
	if input.Password == "" {
		return nil, core.ErrPasswordRequired
	}

	// Step 1: Find the user by email
	user, err := s.db.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(input.Email)))
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return nil, core.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	// Step 2: Verify the password against the credential account
	account, err := s.verifyPassword(ctx, user.ID, input.Password)
	if err != nil {
		return nil, err
	}
	s.upgradePasswordHash(ctx, account, input.Password)

	// Step 3: Create a new session
	result, err = s.startSession(ctx, user, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}

	profile, err := s.db.GetProfileByID(ctx, user.ID)
	switch {
	case err == nil:
		result.Profile = profile
	case errors.Is(err, core.ErrProfileNotFound):
		// the client's session store resolves this and signs out
		s.logger.Warn("signed in without a profile", "user_id", user.ID)
	default:
		s.logger.Error("failed to load profile at sign-in", "user_id", user.ID, "error", err)
	}

	return result, nil
}

// SignOut invalidates the session behind token, which may be an opaque
// session token or an access token.
func (s *AuthService) SignOut(ctx context.Context, token string) (err error) {
	defer func() { s.observe("sign_out", err) }()

	if token == "" {
		return core.ErrInvalidToken
	}
	if s.accessTokens != nil && crypto.LooksLikeJWT(token) {
		claims, err := s.accessTokens.Parse(token)
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
		}
		return s.signOutSession(ctx, claims.SessionID)
	}

	session, err := s.sessionManager.Destroy(ctx, token)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return core.ErrInvalidToken
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.publish(ctx, core.AuthEvent{Kind: core.EventSignedOut, SessionID: session.ID})
	return nil
}

// SignOutSession ends a session by id. Ending a session that no longer
// exists is not an error.
func (s *AuthService) SignOutSession(ctx context.Context, sessionID string) (err error) {
	defer func() { s.observe("sign_out_session", err) }()
	return s.signOutSession(ctx, sessionID)
}

func (s *AuthService) signOutSession(ctx context.Context, sessionID string) error {
	err := s.sessionManager.DestroyBySessionID(ctx, sessionID)
	if err != nil && !errors.Is(err, core.ErrSessionNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.publish(ctx, core.AuthEvent{Kind: core.EventSignedOut, SessionID: sessionID})
	return nil
}

// GetSession retrieves session data by opaque token
func (s *AuthService) GetSession(ctx context.Context, token string) (*core.SessionData, error) {
	session, err := s.sessionManager.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return nil, core.ErrInvalidToken
		}
		if errors.Is(err, core.ErrSessionExpired) || errors.Is(err, core.ErrInvalidToken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s.withUser(ctx, session)
}

// GetSessionByID is what a per-client session store polls on a recheck.
func (s *AuthService) GetSessionByID(ctx context.Context, sessionID string) (*core.SessionData, error) {
	session, err := s.sessionManager.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.withUser(ctx, session)
}

// Authenticate accepts either an access token or an opaque session token.
func (s *AuthService) Authenticate(ctx context.Context, credential string) (*core.SessionData, error) {
	if credential == "" {
		return nil, core.ErrMissingAuthHeader
	}
	if s.accessTokens == nil || !crypto.LooksLikeJWT(credential) {
		return s.GetSession(ctx, credential)
	}

	claims, err := s.accessTokens.Parse(credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidToken, err)
	}
	data, err := s.GetSessionByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return nil, core.ErrInvalidToken
		}
		return nil, err
	}
	if data.User.ID != claims.Subject {
		return nil, core.ErrInvalidToken
	}
	return data, nil
}

// Refresh rotates an opaque session token. Access tokens cannot be used to
// refresh.
func (s *AuthService) Refresh(ctx context.Context, token string) (result *core.RefreshResult, err error) {
	defer func() { s.observe("refresh", err) }()

	if token == "" || crypto.LooksLikeJWT(token) {
		return nil, core.ErrInvalidToken
	}

	rotated, err := s.sessionManager.Refresh(ctx, token)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return nil, core.ErrInvalidToken
		}
		if errors.Is(err, core.ErrSessionExpired) || errors.Is(err, core.ErrInvalidToken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}

	result = &core.RefreshResult{Session: rotated.Session, Token: rotated.Token}
	if result.AccessToken, err = s.issueAccessToken(rotated.Session); err != nil {
		return nil, err
	}

	if data, err := s.withUser(ctx, rotated.Session); err == nil {
		s.publish(ctx, core.AuthEvent{Kind: core.EventTokenRefreshed, SessionID: rotated.Session.ID, Session: data})
	}
	return result, nil
}

// ChangePassword replaces the credential password after checking the
// current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, input core.ChangePasswordInput) (err error) {
	defer func() { s.observe("change_password", err) }()

	if input.CurrentPassword == "" {
		return core.ErrPasswordRequired
	}
	if err := validate.NewPassword(input.NewPassword); err != nil {
		return err
	}

	account, err := s.verifyPassword(ctx, userID, input.CurrentPassword)
	if err != nil {
		return err
	}

	hashed, err := s.passwordHasher.Hash(input.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	account.Password = &hashed
	account.UpdatedAt = s.now()
	if err := s.db.UpdateAccount(ctx, account); err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	s.logger.Info("password changed", "user_id", userID)
	return nil
}

func (s *AuthService) GetProfile(ctx context.Context, userID string) (*core.Profile, error) {
	profile, err := s.db.GetProfileByID(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrProfileNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

// UpdateProfile applies the editable fields. Empty optional fields are
// cleared; the full name may not be blanked.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, update core.ProfileUpdate) (profile *core.Profile, err error) {
	defer func() { s.observe("update_profile", err) }()

	if update.FullName != nil {
		name := strings.TrimSpace(*update.FullName)
		if name == "" {
			return nil, core.ErrFullNameRequired
		}
		update.FullName = &name
	}
	update.Phone = trimmedKeepEmpty(update.Phone)
	update.CommunityName = trimmedKeepEmpty(update.CommunityName)
	update.AvatarURL = trimmedKeepEmpty(update.AvatarURL)

	profile, err = s.db.UpdateProfile(ctx, userID, update)
	if err != nil {
		if errors.Is(err, core.ErrProfileNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return profile, nil
}

func (s *AuthService) startSession(ctx context.Context, user *core.User, ipAddress, userAgent string) (*core.AuthResult, error) {
	created, err := s.sessionManager.Create(ctx, user.ID, ipAddress, userAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	accessToken, err := s.issueAccessToken(created.Session)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, core.AuthEvent{
		Kind:      core.EventSignedIn,
		SessionID: created.Session.ID,
		Session:   &core.SessionData{User: user, Session: created.Session},
	})

	return &core.AuthResult{
		User:        user,
		Session:     created.Session,
		Token:       created.Token,
		AccessToken: accessToken,
	}, nil
}

func (s *AuthService) issueAccessToken(session *core.Session) (string, error) {
	if s.accessTokens == nil {
		return "", nil
	}
	token, err := s.accessTokens.Issue(session.UserID, session.ID, session.ExpiresAt)
	if err != nil {
		return "", fmt.Errorf("failed to issue access token: %w", err)
	}
	return token, nil
}

func (s *AuthService) verifyPassword(ctx context.Context, userID, password string) (*core.Account, error) {
	accounts, err := s.db.GetAccountByUserAndProvider(ctx, userID, core.CredentialProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if len(accounts) == 0 || accounts[0].Password == nil {
		return nil, core.ErrInvalidCredentials
	}

	account := accounts[0]
	valid, err := s.passwordHasher.Verify(password, *account.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		return nil, core.ErrInvalidCredentials
	}
	return account, nil
}

// upgradePasswordHash re-hashes a verified password stored with weaker
// parameters. Failures leave the old hash in place.
func (s *AuthService) upgradePasswordHash(ctx context.Context, account *core.Account, password string) {
	if !s.passwordHasher.NeedsRehash(*account.Password) {
		return
	}
	hashed, err := s.passwordHasher.Hash(password)
	if err != nil {
		s.logger.Warn("failed to rehash password", "user_id", account.UserID, "error", err)
		return
	}
	account.Password = &hashed
	account.UpdatedAt = s.now()
	if err := s.db.UpdateAccount(ctx, account); err != nil {
		s.logger.Warn("failed to store rehashed password", "user_id", account.UserID, "error", err)
		return
	}
	s.logger.Info("password hash upgraded", "user_id", account.UserID)
}

func (s *AuthService) withUser(ctx context.Context, session *core.Session) (*core.SessionData, error) {
	user, err := s.db.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return nil, core.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &core.SessionData{User: user, Session: session}, nil
}

// publish never fails the operation that triggered it.
func (s *AuthService) publish(ctx context.Context, event core.AuthEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish auth event", "kind", event.Kind, "session_id", event.SessionID, "error", err)
	}
}

func (s *AuthService) rollbackUser(ctx context.Context, userID string) {
	if err := s.db.DeleteUser(context.WithoutCancel(ctx), userID); err != nil {
		s.logger.Error("failed to roll back partial sign-up", "user_id", userID, "error", err)
	}
}

func (s *AuthService) observe(operation string, err error) {
	if s.metrics != nil {
		s.metrics.AuthOperation(operation, err)
	}
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func trimmedKeepEmpty(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
