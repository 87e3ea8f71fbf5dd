// Package workspace bundles the per-user pieces of the application: a
// catalog client with its own cookie jar, the session guard and the search
// controller. A Registry hands out workspaces behind signed tokens.
package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/simp-lee/dogmatch/internal/catalog"
	"github.com/simp-lee/dogmatch/internal/search"
	"github.com/simp-lee/dogmatch/internal/session"
)

// CookiesKey is the store key holding the upstream catalog cookies, so a
// reopened workspace can keep talking to the catalog without a new login.
const CookiesKey = "catalogCookies"

// Options configures how workspaces are built.
type Options struct {
	CatalogBaseURL string
	CatalogTimeout time.Duration
	// PageSize and ChunkSize are passed to the search controller.
	PageSize  int
	ChunkSize int
	// HTTPClient overrides the catalog transport (tests).
	HTTPClient *http.Client
	Clock      session.Clock
	Logger     *slog.Logger
	// Context is the parent of background catalog calls.
	Context context.Context
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Context == nil {
		o.Context = context.Background()
	}
}

// Workspace is one user's catalog session and search state.
type Workspace struct {
	ID      string
	Catalog *catalog.Client
	Guard   *session.Guard
	Search  *search.Controller

	store session.Store
	log   *slog.Logger
}

// Open builds the workspace id over store. Saved catalog cookies are
// restored and the stored login time is re-checked.
func Open(ctx context.Context, id string, store session.Store, opts Options) (*Workspace, error) {
	opts.defaults()
	log := opts.Logger.With(slog.String("workspace", id))

	cat, err := catalog.New(catalog.Options{
		BaseURL:    opts.CatalogBaseURL,
		Timeout:    opts.CatalogTimeout,
		HTTPClient: opts.HTTPClient,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}

	guardOpts := []session.Option{session.WithLogger(log)}
	if opts.Clock != nil {
		guardOpts = append(guardOpts, session.WithClock(opts.Clock))
	}

	ws := &Workspace{
		ID:      id,
		Catalog: cat,
		Guard:   session.NewGuard(store, guardOpts...),
		Search: search.New(cat, search.Options{
			Logger:    log,
			PageSize:  opts.PageSize,
			ChunkSize: opts.ChunkSize,
			Context:   opts.Context,
		}),
		store: store,
		log:   log,
	}
	if err := ws.restoreCookies(ctx); err != nil {
		log.WarnContext(ctx, "saved catalog cookies ignored", slog.Any("error", err))
	}
	ws.Guard.Check(ctx)
	return ws, nil
}

// Login signs in to the catalog, records the session and starts loading
// the first page of results.
func (w *Workspace) Login(ctx context.Context, name, email string) error {
	if err := w.Catalog.Login(ctx, name, email); err != nil {
		return err
	}
	if _, err := w.Guard.Establish(ctx); err != nil {
		return err
	}
	if err := w.saveCookies(ctx); err != nil {
		w.log.WarnContext(ctx, "catalog cookies not saved", slog.Any("error", err))
	}
	w.Search.Refresh()
	return nil
}

// Logout ends the session locally even when the catalog logout fails; the
// catalog error is returned for logging.
func (w *Workspace) Logout(ctx context.Context) error {
	upstreamErr := w.Catalog.Logout(ctx)
	if err := w.Guard.Logout(ctx); err != nil {
		return err
	}
	if err := w.store.Delete(ctx, CookiesKey); err != nil {
		return err
	}
	return upstreamErr
}

// Authenticated re-checks the session timer.
func (w *Workspace) Authenticated(ctx context.Context) bool {
	return w.Guard.Check(ctx).Authenticated
}

// Close stops background work. The stored session is left in place.
func (w *Workspace) Close() {
	w.Search.Close()
}

type savedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Expires time.Time `json:"expires,omitzero"`
}

func (w *Workspace) saveCookies(ctx context.Context) error {
	cookies := w.Catalog.Cookies()
	saved := make([]savedCookie, 0, len(cookies))
	for _, c := range cookies {
		saved = append(saved, savedCookie{Name: c.Name, Value: c.Value, Expires: c.Expires})
	}
	data, err := json.Marshal(saved)
	if err != nil {
		return err
	}
	return w.store.Set(ctx, CookiesKey, string(data))
}

func (w *Workspace) restoreCookies(ctx context.Context) error {
	raw, ok, err := w.store.Get(ctx, CookiesKey)
	if err != nil || !ok {
		return err
	}
	var saved []savedCookie
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		_ = w.store.Delete(ctx, CookiesKey)
		return fmt.Errorf("decode saved cookies: %w", err)
	}
	cookies := make([]*http.Cookie, 0, len(saved))
	for _, s := range saved {
		cookies = append(cookies, &http.Cookie{Name: s.Name, Value: s.Value, Expires: s.Expires})
	}
	w.Catalog.SetCookies(cookies)
	return nil
}
