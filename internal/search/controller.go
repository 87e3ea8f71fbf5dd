// Package search holds the state behind the dog search screen: staged and
// effective filters, the current page and its cursors, favorites, the match
// and the ZIP to location map for the visible dogs.
//
// Mutations happen synchronously under one mutex. Catalog calls for page
// loads and location enrichment run in background goroutines; each captures
// a generation number when it starts and its result is applied only if no
// newer load of the same kind started in the meantime. Stale responses are
// dropped, not aborted.
package search

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/simp-lee/dogmatch/internal/catalog"
	"github.com/simp-lee/dogmatch/internal/domain"
)

// Catalog is the subset of the catalog client the controller needs.
type Catalog interface {
	ListBreeds(ctx context.Context) ([]string, error)
	Search(ctx context.Context, criteria domain.FilterCriteria, size int, cursor string) (domain.SearchResult, error)
	FetchRecords(ctx context.Context, ids []string) ([]domain.Dog, error)
	FetchLocations(ctx context.Context, zipCodes []string) ([]domain.Location, error)
	SearchLocations(ctx context.Context, q domain.LocationQuery) (domain.LocationPage, error)
	GenerateMatch(ctx context.Context, favoriteIDs []string) (*domain.Match, error)
}

const (
	// DefaultPageSize is the number of dogs per page.
	DefaultPageSize = 25
	// DefaultChunkSize is the most ZIP codes sent in one location lookup.
	DefaultChunkSize = 100
)

// Options configures a Controller.
type Options struct {
	Logger    *slog.Logger
	PageSize  int
	ChunkSize int
	// Context is the parent of every background catalog call. Close cancels it.
	Context context.Context
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Context == nil {
		o.Context = context.Background()
	}
}

// Controller owns the search state of one user.
type Controller struct {
	cat       Catalog
	log       *slog.Logger
	pageSize  int
	chunkSize int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	staged      StagedFilters
	criteria    domain.FilterCriteria
	cursor      string
	shownCursor string // the cursor dogs was loaded with
	dogs        []domain.Dog
	locations   map[string]domain.Location
	total       int
	next        string
	prev        string
	favorites   []string
	match       string
	loading     bool
	loaded      bool
	err         error

	loadGen   uint64
	enrichGen uint64
	applyGen  uint64
	matchGen  uint64

	breeds       []string
	breedsLoaded bool
}

// New returns a Controller with default filters and an empty page. Nothing
// is fetched until Refresh or Apply.
func New(cat Catalog, opts Options) *Controller {
	opts.defaults()
	ctx, cancel := context.WithCancel(opts.Context)
	return &Controller{
		cat:       cat,
		log:       opts.Logger.With(slog.String("component", "search")),
		pageSize:  opts.PageSize,
		chunkSize: opts.ChunkSize,
		ctx:       ctx,
		cancel:    cancel,
		criteria:  StagedFilters{}.criteria([]string{}),
		dogs:      []domain.Dog{},
		locations: map[string]domain.Location{},
		favorites: []string{},
	}
}

// Close cancels the base context so in-flight and future background calls
// fail fast. It does not wait for them; see Wait.
func (c *Controller) Close() {
	c.cancel()
}

// Wait blocks until every background load and enrichment started so far
// has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// PageSize returns the number of dogs requested per page.
func (c *Controller) PageSize() int {
	return c.pageSize
}

// Refresh reloads the current page with the effective filters and cursor.
func (c *Controller) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startLoadLocked()
}

// Breeds returns the catalog's breed list. The list is fetched once; a
// failed fetch is not cached and is retried on the next call.
func (c *Controller) Breeds(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	if c.breedsLoaded {
		b := slices.Clone(c.breeds)
		c.mu.Unlock()
		return b, nil
	}
	c.mu.Unlock()

	breeds, err := c.cat.ListBreeds(ctx)
	if err != nil {
		return breeds, err
	}

	c.mu.Lock()
	c.breeds = slices.Clone(breeds)
	c.breedsLoaded = true
	c.mu.Unlock()
	return breeds, nil
}

// Snapshot is a point-in-time copy of the controller state.
type Snapshot struct {
	Staged    StagedFilters
	Criteria  domain.FilterCriteria
	Cursor    string
	// NextCursor and PrevCursor are the cursors of the adjacent pages, or "".
	NextCursor string
	PrevCursor string
	Dogs      []domain.Dog
	Locations map[string]domain.Location
	Total     int
	HasNext   bool
	HasPrev   bool
	Favorites []string
	Match     string
	Loading   bool
	// Loaded is false until the first page load completed.
	Loaded bool
	// Err is the error of the last apply or page load, if any. A failed
	// search still yields an empty page; Err tells it apart from no matches.
	Err              error
	LoadGeneration   uint64
	EnrichGeneration uint64
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	staged := c.staged
	staged.AgeMin = cloneInt(staged.AgeMin)
	staged.AgeMax = cloneInt(staged.AgeMax)
	return Snapshot{
		Staged:           staged,
		Criteria:         cloneCriteria(c.criteria),
		Cursor:           c.cursor,
		NextCursor:       catalog.CursorFrom(c.next),
		PrevCursor:       catalog.CursorFrom(c.prev),
		Dogs:             slices.Clone(c.dogs),
		Locations:        maps.Clone(c.locations),
		Total:            c.total,
		HasNext:          c.next != "",
		HasPrev:          c.prev != "",
		Favorites:        slices.Clone(c.favorites),
		Match:            c.match,
		Loading:          c.loading,
		Loaded:           c.loaded,
		Err:              c.err,
		LoadGeneration:   c.loadGen,
		EnrichGeneration: c.enrichGen,
	}
}

// IsFavorite reports whether id is in the snapshot's favorites.
func (s Snapshot) IsFavorite(id string) bool {
	return slices.Contains(s.Favorites, id)
}

// LocationLabel renders "City, ST" for zip, or "Location not found" when the
// ZIP code has no enrichment entry.
func (s Snapshot) LocationLabel(zip string) string {
	loc, ok := s.Locations[zip]
	if !ok {
		return "Location not found"
	}
	return loc.City + ", " + loc.State
}

func cloneCriteria(f domain.FilterCriteria) domain.FilterCriteria {
	f.Breeds = slices.Clone(f.Breeds)
	f.ZipCodes = slices.Clone(f.ZipCodes)
	f.AgeMin = cloneInt(f.AgeMin)
	f.AgeMax = cloneInt(f.AgeMax)
	return f
}
