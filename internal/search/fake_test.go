package search

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/simp-lee/dogmatch/internal/domain"
)

type searchCall struct {
	Criteria domain.FilterCriteria
	Size     int
	Cursor   string
}

// fakeCatalog implements Catalog. Hooks left nil fall back to canned data.
type fakeCatalog struct {
	mu sync.Mutex

	breeds      []string
	breedsErr   error
	breedsCalls int

	searchFn func(ctx context.Context, call searchCall) (domain.SearchResult, error)
	searches []searchCall

	records     map[string]domain.Dog
	recordsErr  error
	recordCalls [][]string

	locations    map[string]domain.Location
	locationsErr func(chunk []string) error
	locCalls     [][]string

	locPage    domain.LocationPage
	locPageErr error
	locQueries []domain.LocationQuery

	match     *domain.Match
	matchErr  error
	matchGate chan struct{}
	matchIDs  [][]string
}

func (f *fakeCatalog) ListBreeds(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.breedsCalls++
	if f.breedsErr != nil {
		return []string{}, f.breedsErr
	}
	return slices.Clone(f.breeds), nil
}

func (f *fakeCatalog) Search(ctx context.Context, criteria domain.FilterCriteria, size int, cursor string) (domain.SearchResult, error) {
	call := searchCall{Criteria: criteria, Size: size, Cursor: cursor}
	f.mu.Lock()
	f.searches = append(f.searches, call)
	fn := f.searchFn
	f.mu.Unlock()
	if fn == nil {
		return domain.SearchResult{IDs: []string{}}, nil
	}
	return fn(ctx, call)
}

func (f *fakeCatalog) FetchRecords(_ context.Context, ids []string) ([]domain.Dog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordCalls = append(f.recordCalls, slices.Clone(ids))
	if f.recordsErr != nil {
		return []domain.Dog{}, f.recordsErr
	}
	out := make([]domain.Dog, 0, len(ids))
	for _, id := range ids {
		if d, ok := f.records[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeCatalog) FetchLocations(_ context.Context, zips []string) ([]domain.Location, error) {
	f.mu.Lock()
	f.locCalls = append(f.locCalls, slices.Clone(zips))
	errFn := f.locationsErr
	f.mu.Unlock()
	if errFn != nil {
		if err := errFn(zips); err != nil {
			return []domain.Location{}, err
		}
	}
	out := make([]domain.Location, 0, len(zips))
	for _, z := range zips {
		if loc, ok := f.locations[z]; ok {
			out = append(out, loc)
		} else {
			out = append(out, domain.Location{ZipCode: z, City: "City " + z, State: "ST"})
		}
	}
	return out, nil
}

func (f *fakeCatalog) SearchLocations(_ context.Context, q domain.LocationQuery) (domain.LocationPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locQueries = append(f.locQueries, q)
	if f.locPageErr != nil {
		return domain.LocationPage{Results: []domain.Location{}}, f.locPageErr
	}
	return f.locPage, nil
}

func (f *fakeCatalog) GenerateMatch(ctx context.Context, ids []string) (*domain.Match, error) {
	f.mu.Lock()
	f.matchIDs = append(f.matchIDs, slices.Clone(ids))
	gate := f.matchGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.matchErr != nil {
		return nil, f.matchErr
	}
	return f.match, nil
}

func (f *fakeCatalog) lastSearch(t *testing.T) searchCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.searches) == 0 {
		t.Fatal("no search issued")
	}
	return f.searches[len(f.searches)-1]
}

func (f *fakeCatalog) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

func (f *fakeCatalog) matchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.matchIDs)
}

// pages returns a searchFn that serves ids for every call.
func pages(ids []string, next, prev string) func(context.Context, searchCall) (domain.SearchResult, error) {
	return func(context.Context, searchCall) (domain.SearchResult, error) {
		return domain.SearchResult{IDs: slices.Clone(ids), Total: len(ids), Next: next, Prev: prev}, nil
	}
}

func dogs(list ...domain.Dog) map[string]domain.Dog {
	m := make(map[string]domain.Dog, len(list))
	for _, d := range list {
		m[d.ID] = d
	}
	return m
}

func newTestController(t *testing.T, cat *fakeCatalog, opts Options) *Controller {
	t.Helper()
	c := New(cat, opts)
	t.Cleanup(func() {
		c.Close()
		c.Wait()
	})
	return c
}

// waitFor polls cond until it holds or fails the test after two seconds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func intPtr(v int) *int { return &v }

// logRecorder is a slog.Handler that keeps every message.
type logRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *logRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *logRecorder) Handle(_ context.Context, rec slog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, rec.Message)
	return nil
}

func (r *logRecorder) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r *logRecorder) WithGroup(string) slog.Handler      { return r }

func (r *logRecorder) has(msg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.msgs, msg)
}

func dogIDs(list []domain.Dog) []string {
	out := make([]string, 0, len(list))
	for _, d := range list {
		out = append(out, d.ID)
	}
	return out
}
