package search

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/simp-lee/dogmatch/internal/domain"
)

var (
	// ErrNoFavorites is returned by GenerateMatch when nothing is favorited.
	ErrNoFavorites = &domain.AppError{Code: domain.CodeValidation, Message: "Please add some favorite dogs first!"}
	// ErrNoMatch is returned by GenerateMatch when the catalog picked nothing
	// or the call failed.
	ErrNoMatch = &domain.AppError{Code: domain.CodeNotFound, Message: "No match found!"}
	// ErrMatchSuperseded is returned by GenerateMatch when Apply or
	// ResetMatch ran while the catalog was choosing.
	ErrMatchSuperseded = &domain.AppError{Code: domain.CodeAlreadyExists, Message: "The search changed before a match came back."}
)

// ToggleFavorite adds id to the favorites if absent and removes it if
// present. It reports whether id is a favorite afterwards.
func (c *Controller) ToggleFavorite(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := slices.Index(c.favorites, id); i >= 0 {
		c.favorites = slices.Delete(c.favorites, i, i+1)
		return false
	}
	c.favorites = append(c.favorites, id)
	return true
}

// Favorites returns the favorite ids in the order they were added.
func (c *Controller) Favorites() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.favorites)
}

// IsFavorite reports whether id is a favorite.
func (c *Controller) IsFavorite(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Contains(c.favorites, id)
}

// Match returns the current match, or "" when there is none.
func (c *Controller) Match() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.match
}

// GenerateMatch asks the catalog to pick one of the favorites.
//
// The favorites and any previous match are cleared before the catalog
// answers, so they are gone even when no match comes back. If Apply or
// ResetMatch ran while the call was in flight the result is dropped and
// ErrMatchSuperseded is returned.
func (c *Controller) GenerateMatch(ctx context.Context) (string, error) {
	c.mu.Lock()
	if len(c.favorites) == 0 {
		c.mu.Unlock()
		c.log.WarnContext(ctx, "match requested without favorites")
		return "", ErrNoFavorites
	}
	ids := slices.Clone(c.favorites)
	c.favorites = []string{}
	c.match = ""
	c.matchGen++
	gen := c.matchGen
	c.mu.Unlock()

	m, err := c.cat.GenerateMatch(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoMatch, err)
	}
	if m == nil {
		c.log.InfoContext(ctx, "catalog returned no match", slog.Int("favorites", len(ids)))
		return "", ErrNoMatch
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.matchGen {
		c.log.DebugContext(ctx, "stale match discarded", slog.String("match", m.Match))
		return "", ErrMatchSuperseded
	}
	c.match = m.Match
	return m.Match, nil
}

// ResetMatch clears the match and the favorites.
func (c *Controller) ResetMatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.favorites = []string{}
	c.match = ""
	c.matchGen++
}
