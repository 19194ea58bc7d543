package sessionstore

import (
	"context"
	"sync"

	"github.com/jadapache/raices-vivas/core"
)

// fakeEvents is an auth event source driven by the test.
type fakeEvents struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(core.AuthEvent)
	opened int
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{subs: make(map[int]func(core.AuthEvent))}
}

func (f *fakeEvents) Subscribe(fn func(core.AuthEvent)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.subs[id] = fn
	f.opened++
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeEvents) Emit(kind core.AuthEventKind, session *core.SessionData) {
	f.mu.Lock()
	fns := make([]func(core.AuthEvent), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(core.AuthEvent{Kind: kind, Session: session})
	}
}

func (f *fakeEvents) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// fakeGetter returns a fixed session.
type fakeGetter struct {
	mu      sync.Mutex
	session *core.SessionData
	err     error
	calls   int
}

func (f *fakeGetter) CurrentSession(context.Context) (*core.SessionData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.session, f.err
}

func (f *fakeGetter) Set(session *core.SessionData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = session
}

// fakeProfiles answers profile lookups from maps. A gate blocks lookups for
// that user until it is closed or the lookup context ends.
type fakeProfiles struct {
	mu        sync.Mutex
	rows      map[string]*core.Profile
	errs      map[string]error
	gates     map[string]chan struct{}
	entered   chan string
	ignoreCtx bool
	calls     int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		rows:  make(map[string]*core.Profile),
		errs:  make(map[string]error),
		gates: make(map[string]chan struct{}),
	}
}

func (f *fakeProfiles) Put(id, role string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[id] = &core.Profile{ID: id, FullName: "Name " + id, Role: role}
}

func (f *fakeProfiles) Fail(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[id] = err
}

func (f *fakeProfiles) Gate(id string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := make(chan struct{})
	f.gates[id] = g
	return g
}

func (f *fakeProfiles) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProfiles) GetProfileByID(ctx context.Context, id string) (*core.Profile, error) {
	f.mu.Lock()
	f.calls++
	gate, entered, ignoreCtx := f.gates[id], f.entered, f.ignoreCtx
	f.mu.Unlock()

	if entered != nil {
		entered <- id
	}
	if gate != nil {
		if ignoreCtx {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	row := f.rows[id]
	if row == nil {
		return nil, core.ErrProfileNotFound
	}
	c := *row
	return &c, nil
}

// fakeSignOut counts calls and can run a hook, e.g. to echo SIGNED_OUT.
type fakeSignOut struct {
	mu    sync.Mutex
	calls int
	err   error
	hook  func()
}

func (f *fakeSignOut) SignOut(context.Context) error {
	f.mu.Lock()
	f.calls++
	hook, err := f.hook, f.err
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeSignOut) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeVisibility lets the test fire visibility changes.
type fakeVisibility struct {
	mu        sync.Mutex
	listeners map[int]func()
	nextID    int
}

func (f *fakeVisibility) OnVisible(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listeners == nil {
		f.listeners = make(map[int]func())
	}
	f.nextID++
	id := f.nextID
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeVisibility) Fire() {
	f.mu.Lock()
	fns := make([]func(), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeVisibility) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

type harness struct {
	events     *fakeEvents
	getter     *fakeGetter
	profiles   *fakeProfiles
	signOut    *fakeSignOut
	visibility *fakeVisibility
}

func newHarness() *harness {
	return &harness{
		events:     newFakeEvents(),
		getter:     &fakeGetter{},
		profiles:   newFakeProfiles(),
		signOut:    &fakeSignOut{},
		visibility: &fakeVisibility{},
	}
}

func (h *harness) config() Config {
	return Config{
		Events:     h.events,
		Sessions:   h.getter,
		Profiles:   h.profiles,
		SignOut:    h.signOut,
		Visibility: h.visibility,
	}
}

func sessionFor(userID string) *core.SessionData {
	return &core.SessionData{
		User:    &core.User{ID: userID, Email: userID + "@example.com"},
		Session: &core.Session{ID: "sess-" + userID, UserID: userID},
	}
}

// recorder keeps every state a subscriber was given.
type recorder struct {
	mu     sync.Mutex
	states []AuthState
}

func (r *recorder) record(s AuthState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) all() []AuthState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AuthState(nil), r.states...)
}
