package domain

import (
	"strings"
	"time"
)

// SortField is a catalog field results can be ordered by.
type SortField string

const (
	SortByBreed SortField = "breed"
	SortByName  SortField = "name"
	SortByAge   SortField = "age"
)

// Valid reports whether f is one of the supported sort fields.
func (f SortField) Valid() bool {
	switch f {
	case SortByBreed, SortByName, SortByAge:
		return true
	}
	return false
}

// SortOrder is the direction of a sort.
type SortOrder string

const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

// Valid reports whether o is asc or desc.
func (o SortOrder) Valid() bool {
	return o == Ascending || o == Descending
}

// FilterCriteria is the set of filters that drives a catalog search.
// An empty Breeds or ZipCodes slice means no filter on that field.
// AgeMin <= AgeMax is not enforced.
type FilterCriteria struct {
	Breeds   []string  `json:"breeds"`
	ZipCodes []string  `json:"zip_codes"`
	AgeMin   *int      `json:"age_min,omitempty"`
	AgeMax   *int      `json:"age_max,omitempty"`
	Sort     SortField `json:"sort"`
	Order    SortOrder `json:"order"`
}

// SortSpec renders the "field:order" sort parameter, defaulting to breed:asc.
func (f FilterCriteria) SortSpec() string {
	field, order := f.Sort, f.Order
	if !field.Valid() {
		field = SortByBreed
	}
	if !order.Valid() {
		order = Ascending
	}
	return string(field) + ":" + string(order)
}

// LocationQuery narrows a location search by city and/or states.
type LocationQuery struct {
	City   string   `json:"city,omitempty"`
	States []string `json:"states,omitempty"`
}

// IsZero reports whether the query has neither a city nor any state.
func (q LocationQuery) IsZero() bool {
	return strings.TrimSpace(q.City) == "" && len(q.States) == 0
}

// SearchResult is one page of dog ids returned by the catalog search.
// Next and Prev are URL-shaped links carrying the cursor in their "from"
// query parameter; empty when there is no adjacent page.
type SearchResult struct {
	IDs   []string `json:"resultIds"`
	Total int      `json:"total"`
	Next  string   `json:"next,omitempty"`
	Prev  string   `json:"prev,omitempty"`
}

// Dog is a catalog record. Records are immutable once fetched.
type Dog struct {
	ID      string `json:"id"`
	Img     string `json:"img"`
	Name    string `json:"name"`
	Age     int    `json:"age"`
	ZipCode string `json:"zip_code"`
	Breed   string `json:"breed"`
}

// Location describes a ZIP code. Many dogs may share one location.
type Location struct {
	ZipCode   string  `json:"zip_code"`
	City      string  `json:"city"`
	State     string  `json:"state"`
	County    string  `json:"county"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationPage is the result of a location search.
type LocationPage struct {
	Results []Location `json:"results"`
	Total   int        `json:"total"`
}

// Match is the dog chosen by the catalog among a set of favorites.
type Match struct {
	Match string `json:"match"`
}

// SessionState is the client-trusted login state.
type SessionState struct {
	Authenticated bool      `json:"authenticated"`
	EstablishedAt time.Time `json:"established_at"`
}
