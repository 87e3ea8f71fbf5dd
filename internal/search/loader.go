package search

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/simp-lee/dogmatch/internal/catalog"
	"github.com/simp-lee/dogmatch/internal/domain"
)

// Stage replaces the staged filters. Effective filters are untouched; a
// change to City or States re-runs location enrichment for the current page.
func (c *Controller) Stage(f StagedFilters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.staged
	c.staged = f
	c.staged.AgeMin = cloneInt(f.AgeMin)
	c.staged.AgeMax = cloneInt(f.AgeMax)
	if f.locationChanged(prev) {
		c.startEnrichLocked()
	}
}

// Staged returns the staged filters.
func (c *Controller) Staged() StagedFilters {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.staged
	s.AgeMin = cloneInt(s.AgeMin)
	s.AgeMax = cloneInt(s.AgeMax)
	return s
}

// Apply commits the staged filters and reloads from the first page.
//
// A staged city or state list is resolved to ZIP codes first; those ZIP
// codes replace any directly entered ZIP code, which is used only when the
// lookup finds none. If that lookup fails the error is returned and kept as
// Err; filters, cursor, favorites and the visible page stay as they were.
// Otherwise the cursor, favorites, match and visible dogs are reset and a
// new page load starts.
// If a later Apply commits first, this one is dropped.
func (c *Controller) Apply(ctx context.Context) error {
	c.mu.Lock()
	c.applyGen++
	gen := c.applyGen
	staged := c.staged
	c.mu.Unlock()

	zips := []string{}
	typed := strings.TrimSpace(staged.ZipCode)
	if q := staged.LocationQuery(); !q.IsZero() {
		page, err := c.cat.SearchLocations(ctx, q)
		if err != nil {
			c.mu.Lock()
			if gen == c.applyGen {
				c.err = err
			}
			c.mu.Unlock()
			return err
		}
		for _, loc := range page.Results {
			zips = append(zips, loc.ZipCode)
		}
	}
	if len(zips) == 0 && typed != "" {
		zips = []string{typed}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.applyGen {
		c.log.DebugContext(ctx, "apply superseded", slog.Uint64("apply_generation", gen))
		return nil
	}
	c.criteria = staged.criteria(zips)
	c.cursor = ""
	c.favorites = []string{}
	c.match = ""
	c.matchGen++
	c.dogs = []domain.Dog{}
	c.shownCursor = ""
	c.total = 0
	c.next, c.prev = "", ""
	c.err = nil
	c.startEnrichLocked()
	c.startLoadLocked()

	c.log.DebugContext(ctx, "filters applied",
		slog.Any("breeds", c.criteria.Breeds),
		slog.Int("zip_codes", len(c.criteria.ZipCodes)),
		slog.String("sort", c.criteria.SortSpec()),
	)
	return nil
}

// NextPage moves to the page after the current one. It reports false, and
// does nothing, when there is no next page.
func (c *Controller) NextPage() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveLocked(c.next)
}

// PrevPage moves to the page before the current one. It reports false, and
// does nothing, when there is no previous page.
func (c *Controller) PrevPage() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveLocked(c.prev)
}

func (c *Controller) moveLocked(link string) bool {
	cursor := catalog.CursorFrom(link)
	if cursor == "" {
		return false
	}
	c.cursor = cursor
	c.startLoadLocked()
	return true
}

// startLoadLocked bumps the load generation and fetches the page for the
// current criteria and cursor in the background. c.mu must be held.
func (c *Controller) startLoadLocked() {
	c.loadGen++
	gen := c.loadGen
	criteria := cloneCriteria(c.criteria)
	cursor := c.cursor
	c.loading = true

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.load(gen, criteria, cursor)
	}()
}

func (c *Controller) load(gen uint64, criteria domain.FilterCriteria, cursor string) {
	res, err := c.cat.Search(c.ctx, criteria, c.pageSize, cursor)
	dogs := []domain.Dog{}
	var recordsErr error
	if err == nil && len(res.IDs) > 0 {
		// Records keep the search order, which encodes the requested sort.
		dogs, recordsErr = c.cat.FetchRecords(c.ctx, res.IDs)
		if dogs == nil {
			dogs = []domain.Dog{}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.loadGen {
		c.log.Debug("stale page discarded",
			slog.Uint64("generation", gen), slog.Uint64("current", c.loadGen))
		return
	}
	if recordsErr != nil {
		// The page on screen, its cursor and links stay.
		c.log.Warn("page records unavailable, keeping the previous page",
			slog.String("cursor", cursor), slog.Any("error", recordsErr))
		c.cursor = c.shownCursor
		c.loading = false
		c.err = recordsErr
		return
	}
	c.dogs = dogs
	c.shownCursor = cursor
	c.total = res.Total
	c.next, c.prev = res.Next, res.Prev
	c.loading = false
	c.loaded = true
	c.err = err
	c.startEnrichLocked()
}

// startEnrichLocked bumps the enrichment generation and resolves the ZIP
// codes of the visible dogs in the background. c.mu must be held.
func (c *Controller) startEnrichLocked() {
	c.enrichGen++
	gen := c.enrichGen
	zips := uniqueZips(c.dogs)
	if len(zips) == 0 {
		c.locations = map[string]domain.Location{}
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.enrich(gen, zips)
	}()
}

func (c *Controller) enrich(gen uint64, zips []string) {
	chunks := slices.Collect(slices.Chunk(zips, c.chunkSize))
	results := make([][]domain.Location, len(chunks))

	// A failed chunk contributes nothing; the others still merge.
	var g errgroup.Group
	for i, chunk := range chunks {
		g.Go(func() error {
			locs, err := c.cat.FetchLocations(c.ctx, chunk)
			results[i] = locs
			return err
		})
	}
	if err := g.Wait(); err != nil {
		c.log.Warn("location enrichment incomplete", slog.Any("error", err))
	}

	merged := make(map[string]domain.Location, len(zips))
	for _, locs := range results {
		for _, loc := range locs {
			merged[loc.ZipCode] = loc
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.enrichGen {
		c.log.Debug("stale locations discarded",
			slog.Uint64("generation", gen), slog.Uint64("current", c.enrichGen))
		return
	}
	c.locations = merged
}

// uniqueZips returns the distinct ZIP codes of dogs in first-seen order.
func uniqueZips(dogs []domain.Dog) []string {
	seen := make(map[string]struct{}, len(dogs))
	zips := make([]string, 0, len(dogs))
	for _, d := range dogs {
		if d.ZipCode == "" {
			continue
		}
		if _, ok := seen[d.ZipCode]; ok {
			continue
		}
		seen[d.ZipCode] = struct{}{}
		zips = append(zips, d.ZipCode)
	}
	return zips
}
