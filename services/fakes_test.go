package services

import (
	"context"
	"errors"
	"sync"

	"github.com/jadapache/raices-vivas/core"
	"github.com/jadapache/raices-vivas/pkg/memstore"
)

// FakeStorage is the in-memory adapter with error fields for behavior
// injection.
type FakeStorage struct {
	*memstore.Store

	mu               sync.Mutex
	createSessionErr error
	getSessionErr    error
	updateSessionErr error
	deleteSessionErr error
	createProfileErr error
	getProfileErr    error
	getAccountErr    error

	// beforeDelete runs ahead of every session delete, outside the lock.
	beforeDelete func()
}

func NewFakeStorage() *FakeStorage {
	return &FakeStorage{Store: memstore.New()}
}

func (f *FakeStorage) fail(field *error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *field
}

func (f *FakeStorage) set(field *error, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*field = err
}

func (f *FakeStorage) CreateSession(ctx context.Context, s *core.Session) error {
	if err := f.fail(&f.createSessionErr); err != nil {
		return err
	}
	return f.Store.CreateSession(ctx, s)
}

func (f *FakeStorage) GetSessionByHash(ctx context.Context, hash string) (*core.Session, error) {
	if err := f.fail(&f.getSessionErr); err != nil {
		return nil, err
	}
	return f.Store.GetSessionByHash(ctx, hash)
}

func (f *FakeStorage) GetSessionByID(ctx context.Context, id string) (*core.Session, error) {
	if err := f.fail(&f.getSessionErr); err != nil {
		return nil, err
	}
	return f.Store.GetSessionByID(ctx, id)
}

func (f *FakeStorage) UpdateSession(ctx context.Context, s *core.Session) error {
	if err := f.fail(&f.updateSessionErr); err != nil {
		return err
	}
	return f.Store.UpdateSession(ctx, s)
}

func (f *FakeStorage) DeleteSessionByHash(ctx context.Context, hash string) error {
	if f.beforeDelete != nil {
		f.beforeDelete()
	}
	if err := f.fail(&f.deleteSessionErr); err != nil {
		return err
	}
	return f.Store.DeleteSessionByHash(ctx, hash)
}

func (f *FakeStorage) DeleteSessionByID(ctx context.Context, id string) error {
	if f.beforeDelete != nil {
		f.beforeDelete()
	}
	if err := f.fail(&f.deleteSessionErr); err != nil {
		return err
	}
	return f.Store.DeleteSessionByID(ctx, id)
}

func (f *FakeStorage) CreateProfile(ctx context.Context, p *core.Profile) error {
	if err := f.fail(&f.createProfileErr); err != nil {
		return err
	}
	return f.Store.CreateProfile(ctx, p)
}

func (f *FakeStorage) GetProfileByID(ctx context.Context, id string) (*core.Profile, error) {
	if err := f.fail(&f.getProfileErr); err != nil {
		return nil, err
	}
	return f.Store.GetProfileByID(ctx, id)
}

func (f *FakeStorage) GetAccountByUserAndProvider(ctx context.Context, userID, providerID string) ([]*core.Account, error) {
	if err := f.fail(&f.getAccountErr); err != nil {
		return nil, err
	}
	return f.Store.GetAccountByUserAndProvider(ctx, userID, providerID)
}

// FakeCache is a test-only fake implementing core.Cache.
type FakeCache struct {
	mu     sync.RWMutex
	cache  map[string]*core.Session
	getErr error
	setErr error
	delErr error
	hits   int
	misses int
}

func NewFakeCache() *FakeCache {
	return &FakeCache{cache: make(map[string]*core.Session)}
}

func (f *FakeCache) Get(_ context.Context, tokenHash string) (*core.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.cache[tokenHash]
	if !ok {
		f.misses++
		return nil, core.ErrCacheNotFound
	}
	f.hits++
	return s, nil
}

func (f *FakeCache) Set(_ context.Context, tokenHash string, session *core.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.cache[tokenHash] = session
	return nil
}

func (f *FakeCache) Delete(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.cache, tokenHash)
	return nil
}

func (f *FakeCache) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = make(map[string]*core.Session)
	return nil
}

func (f *FakeCache) Has(tokenHash string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.cache[tokenHash]
	return ok
}

func (f *FakeCache) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.cache)
}

// fakeFailingCache fails every operation.
type fakeFailingCache struct{}

func (fakeFailingCache) Get(context.Context, string) (*core.Session, error) {
	return nil, core.ErrCacheNotFound
}
func (fakeFailingCache) Set(context.Context, string, *core.Session) error {
	return errors.New("cache set failed")
}
func (fakeFailingCache) Delete(context.Context, string) error {
	return errors.New("cache delete failed")
}
func (fakeFailingCache) Clear(context.Context) error {
	return errors.New("cache clear failed")
}

// FakePublisher records published events.
type FakePublisher struct {
	mu     sync.Mutex
	events []core.AuthEvent
	err    error
}

func (f *FakePublisher) Publish(_ context.Context, e core.AuthEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return f.err
}

func (f *FakePublisher) Kinds() []core.AuthEventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]core.AuthEventKind, 0, len(f.events))
	for _, e := range f.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (f *FakePublisher) Last() core.AuthEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return core.AuthEvent{}
	}
	return f.events[len(f.events)-1]
}

// fakeMetrics counts operations by name and result.
type fakeMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *fakeMetrics) AuthOperation(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	f.counts[op+":"+result]++
}

func (f *fakeMetrics) Count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[key]
}
