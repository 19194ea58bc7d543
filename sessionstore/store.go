// Package sessionstore keeps one client's view of who is signed in and
// which profile they have. It reconciles three triggers: auth events, the
// initial session check and visibility rechecks.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/jadapache/raices-vivas/core"
)

const (
	DefaultProfileTimeout = 10 * time.Second
	DefaultSignOutTimeout = 5 * time.Second
)

var ErrAlreadyStarted = errors.New("session store already started")

// User-facing messages stored in AuthState.Error.
const (
	MsgProfileNotFound = "no profile was found for this account, please sign in again"
	MsgProfileFailed   = "your profile could not be loaded, please sign in again"
	MsgProfileTimeout  = "loading your profile took too long, please sign in again"
)

type Config struct {
	Events   core.AuthEventSource
	Sessions core.SessionGetter
	Profiles core.ProfileLookup
	SignOut  core.SignOuter
	// Visibility is optional. Without it there are no rechecks.
	Visibility core.VisibilitySource

	ProfileTimeout        time.Duration
	SignOutTimeout        time.Duration
	ClearProfileOnRecheck bool

	Logger  *slog.Logger
	Metrics core.StoreMetrics
}

// Store is the single writer of an AuthState.
//
// Every trigger takes a ticket from a generation counter when it fires.
// A write is applied only while its ticket is the newest one issued and the
// store is open, so superseded lookups and lookups that finish after Close
// are dropped without effect.
type Store struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	state    AuthState
	gen      uint64
	version  uint64
	closed   bool
	started  bool
	inflight context.CancelFunc

	emitMu  sync.Mutex
	nextSub uint64
	subs    map[uint64]*subscriber

	ctx    context.Context
	cancel context.CancelFunc

	unsubscribe   func()
	cancelVisible func()
	stopParent    func() bool
	closeOnce     sync.Once
	wg            sync.WaitGroup
}

type subscriber struct {
	fn   func(AuthState)
	seen uint64
}

func New(cfg Config) (*Store, error) {
	switch {
	case cfg.Events == nil:
		return nil, core.ErrEventSourceRequired
	case cfg.Sessions == nil:
		return nil, core.ErrSessionGetterRequired
	case cfg.Profiles == nil:
		return nil, core.ErrProfileLookupRequired
	case cfg.SignOut == nil:
		return nil, core.ErrSignOuterRequired
	}
	if cfg.ProfileTimeout <= 0 {
		cfg.ProfileTimeout = DefaultProfileTimeout
	}
	if cfg.SignOutTimeout <= 0 {
		cfg.SignOutTimeout = DefaultSignOutTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		cfg:    cfg,
		logger: logger.With("component", "sessionstore"),
		state:  AuthState{Loading: true},
		subs:   make(map[uint64]*subscriber),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start opens the event subscription and the visibility listener, then runs
// the initial session check in the background. Cancelling ctx closes the
// store.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	unsubscribe := s.cfg.Events.Subscribe(s.onEvent)
	var cancelVisible func()
	if s.cfg.Visibility != nil {
		cancelVisible = s.cfg.Visibility.OnVisible(func() { s.recheck("visibility") })
	}

	s.mu.Lock()
	s.unsubscribe, s.cancelVisible = unsubscribe, cancelVisible
	closed := s.closed
	s.mu.Unlock()
	if closed {
		// Close ran between the two locks and saw nothing to release.
		unsubscribe()
		if cancelVisible != nil {
			cancelVisible()
		}
		return nil
	}

	stop := context.AfterFunc(ctx, s.Close)
	s.mu.Lock()
	closed = s.closed
	if !closed {
		s.stopParent = stop
	}
	s.mu.Unlock()
	if closed {
		stop()
		return nil
	}

	s.recheck("initial")
	return nil
}

// Close releases the subscription and the listener and discards every
// result still in flight. It is safe to call more than once.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.gen++
		if s.inflight != nil {
			s.inflight()
			s.inflight = nil
		}
		unsubscribe, cancelVisible, stopParent := s.unsubscribe, s.cancelVisible, s.stopParent
		s.unsubscribe, s.cancelVisible, s.stopParent = nil, nil, nil
		s.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
		if cancelVisible != nil {
			cancelVisible()
		}
		if stopParent != nil {
			stopParent()
		}
		s.cancel()
	})
}

// Wait blocks until every triggered reconciliation has returned.
func (s *Store) Wait() { s.wg.Wait() }

// State returns the current snapshot. Callers must not modify the User or
// Profile it points to.
func (s *Store) State() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe calls fn with the current state, then with every later state in
// commit order. fn runs on the writer's goroutine: it must not block and
// must not call Reconcile.
func (s *Store) Subscribe(fn func(AuthState)) (cancel func()) {
	s.emitMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.mu.Lock()
	snap, v := s.state, s.version
	s.mu.Unlock()
	sub := &subscriber{fn: fn, seen: v}
	s.subs[id] = sub
	fn(snap)
	s.emitMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.emitMu.Lock()
			delete(s.subs, id)
			s.emitMu.Unlock()
		})
	}
}

// Reconcile recomputes the state from session, which may be nil. It returns
// the state as it stands when this call is done with it.
func (s *Store) Reconcile(ctx context.Context, session *core.SessionData) AuthState {
	ticket, ok := s.issue()
	if !ok {
		return s.State()
	}
	return s.reconcile(ctx, ticket, session)
}

func (s *Store) onEvent(e core.AuthEvent) {
	session := e.Session
	if e.Kind == core.EventSignedOut {
		session = nil
	}
	s.logger.Debug("auth event", "kind", e.Kind, "session_id", e.SessionID)
	s.trigger(func(ctx context.Context, ticket uint64) {
		s.reconcile(ctx, ticket, session)
	})
}

func (s *Store) recheck(reason string) {
	s.trigger(func(ctx context.Context, ticket uint64) {
		session, err := s.cfg.Sessions.CurrentSession(ctx)
		if err != nil {
			s.logger.Warn("session check failed, treating as signed out", "reason", reason, "error", err)
			session = nil
		}
		s.reconcile(ctx, ticket, session)
	})
}

// trigger takes the ticket synchronously so that triggers keep the order in
// which they fired, whatever order their goroutines run in.
func (s *Store) trigger(fn func(ctx context.Context, ticket uint64)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	ticket := s.issueLocked()
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		fn(s.ctx, ticket)
	}()
}

func (s *Store) issue() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false
	}
	return s.issueLocked(), true
}

func (s *Store) issueLocked() uint64 {
	s.gen++
	if s.inflight != nil {
		s.inflight()
		s.inflight = nil
	}
	return s.gen
}

func (s *Store) reconcile(ctx context.Context, ticket uint64, session *core.SessionData) AuthState {
	if session != nil && session.User == nil {
		session = nil
	}

	if session == nil {
		s.commitNil(ticket)
		return s.State()
	}

	user := session.User
	lookupCtx, quiet, ok := s.begin(ctx, ticket, user)
	if !ok {
		s.cfg.metricsOutcome("stale")
		return s.State()
	}
	if quiet {
		s.logger.Debug("recheck kept current profile", "user_id", user.ID)
	}

	start := time.Now()
	profile, err := s.lookup(lookupCtx, user.ID)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ProfileLookupDuration(time.Since(start))
	}
	timedOut := errors.Is(lookupCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	s.endLookup(ticket)

	switch {
	case err == nil && profile == nil:
		err = core.ErrProfileNotFound
	case err == nil && profile.ID != user.ID:
		err = fmt.Errorf("%w: row %q for user %q", core.ErrProfileNotFound, profile.ID, user.ID)
	case err != nil && timedOut:
		err = fmt.Errorf("%w after %s: %v", core.ErrProfileLookupTimeout, s.cfg.ProfileTimeout, err)
	}

	if err == nil {
		if !s.commit(ticket, AuthState{User: user, Profile: profile}) {
			s.cfg.metricsOutcome("stale")
			return s.State()
		}
		if _, roleErr := core.ParseRole(profile.Role); roleErr != nil {
			s.logger.Warn("profile has an unknown role", "user_id", user.ID, "role", profile.Role)
			s.cfg.metricsOutcome("unknown_role")
		} else {
			s.cfg.metricsOutcome("authenticated")
		}
		return s.State()
	}

	return s.failClosed(ctx, ticket, user, err)
}

// begin applies the loading step. quiet means the same user is being
// rechecked and the current profile stays visible meanwhile.
func (s *Store) begin(ctx context.Context, ticket uint64, user *core.User) (lookupCtx context.Context, quiet, ok bool) {
	s.mu.Lock()
	if s.closed || ticket != s.gen {
		s.mu.Unlock()
		return nil, false, false
	}

	cur := s.state
	quiet = !s.cfg.ClearProfileOnRecheck &&
		cur.User != nil && cur.User.ID == user.ID &&
		cur.Profile != nil && !cur.Loading

	changed := true
	if quiet {
		changed = *cur.User != *user
		s.state.User = user
	} else {
		s.state = AuthState{User: user, Loading: true}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.ProfileTimeout)
	stop := context.AfterFunc(s.ctx, cancel)
	s.inflight = func() { stop(); cancel() }

	var snap AuthState
	var v uint64
	if changed {
		s.version++
		snap, v = s.state, s.version
	}
	s.mu.Unlock()

	if changed {
		s.emit(snap, v)
	}
	return lookupCtx, quiet, true
}

type lookupResult struct {
	profile *core.Profile
	err     error
}

// lookup returns when ctx is done even if the backend call does not.
func (s *Store) lookup(ctx context.Context, userID string) (*core.Profile, error) {
	ch := make(chan lookupResult, 1)
	go func() {
		p, err := s.cfg.Profiles.GetProfileByID(ctx, userID)
		ch <- lookupResult{p, err}
	}()
	select {
	case r := <-ch:
		return r.profile, r.err
	case <-ctx.Done():
		select {
		case r := <-ch:
			return r.profile, r.err
		default:
			return nil, ctx.Err()
		}
	}
}

func (s *Store) endLookup(ticket uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket == s.gen && s.inflight != nil {
		s.inflight()
		s.inflight = nil
	}
}

// commitNil moves to the signed-out state. An already signed-out store keeps
// its error so the reason for a forced sign-out stays visible.
func (s *Store) commitNil(ticket uint64) {
	s.mu.Lock()
	if s.closed || ticket != s.gen {
		s.mu.Unlock()
		s.cfg.metricsOutcome("stale")
		return
	}
	if s.state.SignedOut() {
		s.mu.Unlock()
		s.cfg.metricsOutcome("noop")
		return
	}
	s.state = AuthState{}
	s.version++
	snap, v := s.state, s.version
	s.mu.Unlock()

	s.emit(snap, v)
	s.cfg.metricsOutcome("signed_out")
}

// commit applies next states in order if ticket is still current.
func (s *Store) commit(ticket uint64, next ...AuthState) bool {
	s.mu.Lock()
	if s.closed || ticket != s.gen {
		s.mu.Unlock()
		return false
	}
	type pending struct {
		state AuthState
		v     uint64
	}
	var out []pending
	for _, st := range next {
		if reflect.DeepEqual(s.state, st) {
			continue
		}
		s.state = st
		s.version++
		out = append(out, pending{st, s.version})
	}
	s.mu.Unlock()

	for _, p := range out {
		s.emit(p.state, p.v)
	}
	return true
}

// failClosed surfaces the error with the user still attached, then drops to
// signed out and ends the backend session. Nothing happens for a stale
// ticket.
func (s *Store) failClosed(ctx context.Context, ticket uint64, user *core.User, err error) AuthState {
	msg, reason := MsgProfileFailed, "lookup_error"
	switch {
	case errors.Is(err, core.ErrProfileNotFound):
		msg, reason = MsgProfileNotFound, "not_found"
		s.logger.Warn("profile missing for authenticated user", "user_id", user.ID, "error", err)
	case errors.Is(err, core.ErrProfileLookupTimeout):
		msg, reason = MsgProfileTimeout, "timeout"
		s.logger.Error("profile lookup timed out", "user_id", user.ID, "error", err)
	default:
		s.logger.Error("profile lookup failed", "user_id", user.ID, "error", err)
	}

	if !s.commit(ticket,
		AuthState{User: user, Error: msg},
		AuthState{Error: msg},
	) {
		s.cfg.metricsOutcome("stale")
		return s.State()
	}
	s.cfg.metricsOutcome("profile_" + reason)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ForcedSignOut(reason)
	}

	signOutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SignOutTimeout)
	defer cancel()
	if soErr := s.cfg.SignOut.SignOut(signOutCtx); soErr != nil {
		s.logger.Error("forced sign-out failed", "user_id", user.ID, "error", soErr)
	} else {
		s.logger.Info("forced sign-out", "user_id", user.ID, "reason", reason)
	}
	return s.State()
}

// emit hands a committed snapshot to every subscriber that has not yet
// seen it or anything newer.
func (s *Store) emit(snap AuthState, v uint64) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	for _, sub := range s.subs {
		if v > sub.seen {
			sub.seen = v
			sub.fn(snap)
		}
	}
}

func (c Config) metricsOutcome(outcome string) {
	if c.Metrics != nil {
		c.Metrics.ReconcileOutcome(outcome)
	}
}
