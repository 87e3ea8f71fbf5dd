package workspace

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	shardedcache "github.com/simp-lee/cache"
	"github.com/simp-lee/jwt"

	"github.com/simp-lee/dogmatch/internal/domain"
	"github.com/simp-lee/dogmatch/internal/session"
)

// StoreFactory returns the session store for a workspace id.
type StoreFactory func(id string) session.Store

// MemoryStores gives every workspace its own in-memory store.
func MemoryStores() StoreFactory {
	return func(string) session.Store { return session.NewMemoryStore() }
}

// Registry creates workspaces and resolves tokens back to them. Workspaces
// live in memory for the token lifetime; a valid token whose workspace was
// evicted (or lost in a restart) gets it rebuilt from its store.
type Registry struct {
	tokens jwt.Service
	stores StoreFactory
	ttl    time.Duration
	opts   Options
	log    *slog.Logger
	cache  shardedcache.CacheInterface
}

// NewRegistry returns a Registry that signs workspace ids with tokens.
func NewRegistry(tokens jwt.Service, stores StoreFactory, ttl time.Duration, opts Options) *Registry {
	opts.defaults()
	if stores == nil {
		stores = MemoryStores()
	}
	cache := shardedcache.NewCache(shardedcache.Options{
		DefaultExpiration: ttl,
		CleanupInterval:   time.Minute,
		ShardCount:        16,
	})
	cache.OnEvicted(func(_ string, v any) {
		if ws, ok := v.(*Workspace); ok {
			ws.Close()
		}
	})
	return &Registry{
		tokens: tokens,
		stores: stores,
		ttl:    ttl,
		opts:   opts,
		log:    opts.Logger.With(slog.String("component", "workspace")),
		cache:  cache,
	}
}

// Ticket is a newly issued workspace token.
type Ticket struct {
	Token     string
	ExpiresAt time.Time
}

// Create opens a fresh workspace and issues its token.
func (r *Registry) Create(ctx context.Context) (*Workspace, Ticket, error) {
	id := uuid.NewString()
	ws, err := Open(ctx, id, r.stores(id), r.opts)
	if err != nil {
		return nil, Ticket{}, domain.NewAppError(domain.CodeInternal, "failed to open workspace", err)
	}

	token, err := r.tokens.GenerateToken(id, nil, r.ttl)
	if err != nil {
		ws.Close()
		return nil, Ticket{}, domain.NewAppError(domain.CodeInternal, "failed to generate token", err)
	}
	parsed, err := r.tokens.ParseToken(token)
	if err != nil {
		ws.Close()
		return nil, Ticket{}, domain.NewAppError(domain.CodeInternal, "failed to parse generated token", err)
	}

	r.cache.SetWithExpiration(id, ws, time.Until(parsed.ExpiresAt))
	r.log.DebugContext(ctx, "workspace created", slog.String("id", id))
	return ws, Ticket{Token: token, ExpiresAt: parsed.ExpiresAt}, nil
}

// Resolve validates token and returns its workspace.
func (r *Registry) Resolve(ctx context.Context, token string) (*Workspace, error) {
	parsed, err := r.tokens.ValidateToken(token)
	if err != nil {
		return nil, domain.NewAppError(domain.CodeUnauthorized, "invalid workspace token", err)
	}
	return r.Lookup(ctx, parsed.UserID, parsed.ExpiresAt)
}

// Lookup returns the workspace id, reopening it from its store when it is
// no longer cached. expiresAt bounds how long a reopened workspace is kept.
func (r *Registry) Lookup(ctx context.Context, id string, expiresAt time.Time) (*Workspace, error) {
	if ws, ok := shardedcache.GetTyped[*Workspace](r.cache, id); ok {
		return ws, nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.NewAppError(domain.CodeUnauthorized, "invalid workspace id", err)
	}

	ws, err := Open(ctx, id, r.stores(id), r.opts)
	if err != nil {
		return nil, domain.NewAppError(domain.CodeInternal, "failed to reopen workspace", err)
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 || ttl > r.ttl {
		ttl = r.ttl
	}
	existing := r.cache.GetOrSetFuncWithExpiration(id, func() any { return ws }, ttl)
	if cached, ok := existing.(*Workspace); ok && cached != ws {
		// Lost a race with a concurrent reopen.
		ws.Close()
		return cached, nil
	}
	r.log.DebugContext(ctx, "workspace reopened", slog.String("id", id))
	return ws, nil
}

// Revoke invalidates token and drops its workspace.
func (r *Registry) Revoke(ctx context.Context, token string) error {
	parsed, err := r.tokens.ParseToken(token)
	if err != nil {
		return domain.NewAppError(domain.CodeUnauthorized, "invalid workspace token", err)
	}
	if err := r.tokens.RevokeToken(token); err != nil {
		r.log.WarnContext(ctx, "token revocation failed", slog.Any("error", err))
	}
	r.cache.Delete(parsed.UserID)
	return nil
}

// Len returns the number of cached workspaces.
func (r *Registry) Len() int {
	return r.cache.Count()
}

// Close stops every cached workspace and the cache itself.
func (r *Registry) Close() {
	r.cache.Clear()
	r.cache.Close()
}
