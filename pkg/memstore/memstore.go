// Package memstore is a process-local StorageAdapter used for development
// and tests. Nothing survives a restart.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jadapache/raices-vivas/core"
)

var _ core.StorageAdapter = (*Store)(nil)

type Store struct {
	mu       sync.RWMutex
	users    map[string]*core.User
	accounts map[string]*core.Account
	sessions map[string]*core.Session // keyed by token hash
	profiles map[string]*core.Profile
	now      func() time.Time
}

func New() *Store {
	return &Store{
		users:    make(map[string]*core.User),
		accounts: make(map[string]*core.Account),
		sessions: make(map[string]*core.Session),
		profiles: make(map[string]*core.Profile),
		now:      time.Now,
	}
}

// Rows are copied in and out so callers never share memory with the store.
func cloneUser(u *core.User) *core.User          { c := *u; return &c }
func cloneAccount(a *core.Account) *core.Account { c := *a; return &c }
func cloneSession(s *core.Session) *core.Session { c := *s; return &c }
func cloneProfile(p *core.Profile) *core.Profile { c := *p; return &c }

// ============================================
// Users
// ============================================

func (s *Store) CreateUser(_ context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email {
			return core.ErrUserExists
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, exists := s.users[u.ID]; exists {
		return core.ErrUserExists
	}
	now := s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		return cloneUser(u), nil
	}
	return nil, core.ErrUserNotFound
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, core.ErrUserNotFound
}

func (s *Store) UpdateUser(_ context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[u.ID]; !exists {
		return core.ErrUserNotFound
	}
	u.UpdatedAt = s.now()
	s.users[u.ID] = cloneUser(u)
	return nil
}

// DeleteUser cascades to accounts, sessions and the profile.
func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[id]; !exists {
		return core.ErrUserNotFound
	}
	delete(s.users, id)
	delete(s.profiles, id)
	for k, a := range s.accounts {
		if a.UserID == id {
			delete(s.accounts, k)
		}
	}
	for k, sess := range s.sessions {
		if sess.UserID == id {
			delete(s.sessions, k)
		}
	}
	return nil
}

// ============================================
// Accounts
// ============================================

func (s *Store) CreateAccount(_ context.Context, a *core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	s.accounts[a.ID] = cloneAccount(a)
	return nil
}

func (s *Store) GetAccountByID(_ context.Context, id string) (*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.accounts[id]; ok {
		return cloneAccount(a), nil
	}
	return nil, core.ErrUserNotFound
}

func (s *Store) GetAccountByUserAndProvider(_ context.Context, userID, providerID string) ([]*core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var accounts []*core.Account
	for _, a := range s.accounts {
		if a.UserID == userID && a.ProviderID == providerID {
			accounts = append(accounts, cloneAccount(a))
		}
	}
	return accounts, nil
}

func (s *Store) UpdateAccount(_ context.Context, a *core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; !ok {
		return core.ErrUserNotFound
	}
	a.UpdatedAt = s.now()
	s.accounts[a.ID] = cloneAccount(a)
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
	return nil
}

// ============================================
// Sessions
// ============================================

func (s *Store) CreateSession(_ context.Context, sess *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.TokenHash] = cloneSession(sess)
	return nil
}

func (s *Store) GetSessionByHash(_ context.Context, tokenHash string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[tokenHash]; ok {
		return cloneSession(sess), nil
	}
	return nil, core.ErrSessionNotFound
}

func (s *Store) GetSessionByID(_ context.Context, id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.ID == id {
			return cloneSession(sess), nil
		}
	}
	return nil, core.ErrSessionNotFound
}

func (s *Store) GetUserSessions(_ context.Context, userID string) ([]*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sessions []*core.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			sessions = append(sessions, cloneSession(sess))
		}
	}
	return sessions, nil
}

// UpdateSession matches by id; the token hash may have been rotated.
func (s *Store) UpdateSession(_ context.Context, sess *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, existing := range s.sessions {
		if existing.ID == sess.ID {
			delete(s.sessions, k)
			s.sessions[sess.TokenHash] = cloneSession(sess)
			return nil
		}
	}
	return core.ErrSessionNotFound
}

func (s *Store) DeleteSessionByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, sess := range s.sessions {
		if sess.ID == id {
			delete(s.sessions, k)
			return nil
		}
	}
	return core.ErrSessionNotFound
}

func (s *Store) DeleteSessionByHash(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[tokenHash]; !ok {
		return core.ErrSessionNotFound
	}
	delete(s.sessions, tokenHash)
	return nil
}

func (s *Store) DeleteUserSessions(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for k, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, k)
			count++
		}
	}
	return count, nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	count := 0
	for k, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, k)
			count++
		}
	}
	return count, nil
}

// ============================================
// Profiles
// ============================================

func (s *Store) CreateProfile(_ context.Context, p *core.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.profiles[p.ID]; exists {
		return core.ErrUserExists
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.profiles[p.ID] = cloneProfile(p)
	return nil
}

func (s *Store) GetProfileByID(_ context.Context, id string) (*core.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[id]; ok {
		return cloneProfile(p), nil
	}
	return nil, core.ErrProfileNotFound
}

func (s *Store) UpdateProfile(_ context.Context, id string, update core.ProfileUpdate) (*core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, core.ErrProfileNotFound
	}
	if update.FullName != nil {
		p.FullName = *update.FullName
	}
	if update.Phone != nil {
		p.Phone = nilIfEmpty(update.Phone)
	}
	if update.CommunityName != nil {
		p.CommunityName = nilIfEmpty(update.CommunityName)
	}
	if update.AvatarURL != nil {
		p.AvatarURL = nilIfEmpty(update.AvatarURL)
	}
	p.UpdatedAt = s.now()
	return cloneProfile(p), nil
}

func nilIfEmpty(v *string) *string {
	if *v == "" {
		return nil
	}
	c := *v
	return &c
}

// PutProfile stores a profile row as-is, including roles the application
// would never write itself. Seeding and tests use it.
func (s *Store) PutProfile(p *core.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = cloneProfile(p)
}

// RemoveProfile drops a profile row, leaving the user in place.
func (s *Store) RemoveProfile(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, id)
}
