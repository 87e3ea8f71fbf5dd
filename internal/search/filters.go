package search

import (
	"strings"

	"github.com/simp-lee/dogmatch/internal/domain"
)

// StagedFilters are the filter inputs as the user is editing them. None of
// them affect results until Apply commits them.
type StagedFilters struct {
	// Breed is the single selected breed; empty means all breeds.
	Breed   string           `json:"breed" form:"breed" binding:"max=128"`
	ZipCode string           `json:"zip_code" form:"zip_code" binding:"max=16"`
	AgeMin  *int             `json:"age_min" form:"age_min" binding:"omitempty,min=0"`
	AgeMax  *int             `json:"age_max" form:"age_max" binding:"omitempty,min=0"`
	Sort    domain.SortField `json:"sort" form:"sort" binding:"omitempty,oneof=breed name age"`
	Order   domain.SortOrder `json:"order" form:"order" binding:"omitempty,oneof=asc desc"`
	City    string           `json:"city" form:"city" binding:"max=128"`
	// States is the raw comma separated input, e.g. "TX, CA".
	States string `json:"states" form:"states" binding:"max=256"`
}

// LocationQuery returns the city/state part of the staged filters.
func (f StagedFilters) LocationQuery() domain.LocationQuery {
	return domain.LocationQuery{
		City:   strings.TrimSpace(f.City),
		States: SplitStates(f.States),
	}
}

// criteria builds the effective criteria for zips. Ages are copied so later
// edits to the staged filters never leak into effect.
func (f StagedFilters) criteria(zips []string) domain.FilterCriteria {
	c := domain.FilterCriteria{
		Breeds:   []string{},
		ZipCodes: zips,
		AgeMin:   cloneInt(f.AgeMin),
		AgeMax:   cloneInt(f.AgeMax),
		Sort:     f.Sort,
		Order:    f.Order,
	}
	if b := strings.TrimSpace(f.Breed); b != "" {
		c.Breeds = []string{b}
	}
	if !c.Sort.Valid() {
		c.Sort = domain.SortByBreed
	}
	if !c.Order.Valid() {
		c.Order = domain.Ascending
	}
	return c
}

func (f StagedFilters) locationChanged(other StagedFilters) bool {
	return f.City != other.City || f.States != other.States
}

// SplitStates splits a comma separated state list, trimming each entry and
// dropping blanks.
func SplitStates(raw string) []string {
	out := []string{}
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
