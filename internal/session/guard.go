// Package session tracks whether the user is signed in.
//
// The state is a client-trusted timer: a successful login records the
// current time under LoginTimeKey, and the session is considered valid until
// Expiry has elapsed. Nothing is validated against the catalog server.
package session

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/simp-lee/dogmatch/internal/domain"
)

const (
	// LoginTimeKey is the store key holding the login time in Unix milliseconds.
	LoginTimeKey = "loginTime"
	// Expiry is how long a login stays valid.
	Expiry = time.Hour
)

// Clock returns the current time.
type Clock func() time.Time

// Option configures a Guard.
type Option func(*Guard)

// WithClock overrides time.Now.
func WithClock(c Clock) Option {
	return func(g *Guard) {
		if c != nil {
			g.now = c
		}
	}
}

// WithLogger sets the logger used for state transitions.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.log = l
		}
	}
}

// Guard owns the SessionState of one user.
type Guard struct {
	store Store
	now   Clock
	log   *slog.Logger

	mu    sync.Mutex
	state domain.SessionState
}

// NewGuard returns an unauthenticated Guard over store. Call Check to pick
// up a login recorded by an earlier run.
func NewGuard(store Store, opts ...Option) *Guard {
	g := &Guard{
		store: store,
		now:   time.Now,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Establish records a successful login at the current time.
func (g *Guard) Establish(ctx context.Context) (domain.SessionState, error) {
	ms := g.now().UnixMilli()
	if err := g.store.Set(ctx, LoginTimeKey, strconv.FormatInt(ms, 10)); err != nil {
		return g.State(), err
	}

	st := domain.SessionState{Authenticated: true, EstablishedAt: time.UnixMilli(ms)}
	g.mu.Lock()
	g.state = st
	g.mu.Unlock()

	g.log.InfoContext(ctx, "session established", slog.Time("established_at", st.EstablishedAt))
	return st, nil
}

// Check re-reads the stored login time. An expired or unreadable timestamp
// demotes the session and is removed from the store. A store read error
// demotes without touching the stored value.
func (g *Guard) Check(ctx context.Context) domain.SessionState {
	raw, ok, err := g.store.Get(ctx, LoginTimeKey)
	if err != nil {
		g.log.WarnContext(ctx, "session store unavailable", slog.Any("error", err))
		return g.demote(ctx, "store error")
	}
	if !ok {
		return g.demote(ctx, "no login")
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		g.discard(ctx)
		return g.demote(ctx, "corrupt login time")
	}

	established := time.UnixMilli(ms)
	if g.now().Sub(established) > Expiry {
		g.discard(ctx)
		return g.demote(ctx, "expired")
	}

	st := domain.SessionState{Authenticated: true, EstablishedAt: established}
	g.mu.Lock()
	g.state = st
	g.mu.Unlock()
	return st
}

// Logout demotes the session immediately and removes the stored login time.
func (g *Guard) Logout(ctx context.Context) error {
	err := g.store.Delete(ctx, LoginTimeKey)
	g.demote(ctx, "logout")
	return err
}

// State returns the state observed by the last Establish, Check or Logout.
func (g *Guard) State() domain.SessionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// ExpiresAt returns when the current session lapses, or the zero time when
// unauthenticated.
func (g *Guard) ExpiresAt() time.Time {
	st := g.State()
	if !st.Authenticated {
		return time.Time{}
	}
	return st.EstablishedAt.Add(Expiry)
}

func (g *Guard) discard(ctx context.Context) {
	if err := g.store.Delete(ctx, LoginTimeKey); err != nil {
		g.log.WarnContext(ctx, "discard login time", slog.Any("error", err))
	}
}

func (g *Guard) demote(ctx context.Context, reason string) domain.SessionState {
	g.mu.Lock()
	was := g.state.Authenticated
	g.state = domain.SessionState{}
	g.mu.Unlock()

	level := slog.LevelDebug
	if was {
		level = slog.LevelInfo
	}
	g.log.Log(ctx, level, "session unauthenticated", slog.String("reason", reason))
	return domain.SessionState{}
}
