package search

import (
	"github.com/simp-lee/pagination"

	"github.com/simp-lee/dogmatch/internal/domain"
	"github.com/simp-lee/dogmatch/internal/pkg"
	dogsearch "github.com/simp-lee/dogmatch/internal/search"
)

// DogView is a dog as listed on the search page.
type DogView struct {
	domain.Dog
	Location string `json:"location"`
	Favorite bool   `json:"favorite"`
	Matched  bool   `json:"matched"`
}

// ResultsResponse is the search state returned by the JSON API.
type ResultsResponse struct {
	Page      *pagination.CursorPagination[DogView] `json:"page"`
	Total     int                                   `json:"total"`
	Loading   bool                                  `json:"loading"`
	Loaded    bool                                  `json:"loaded"`
	Filters   dogsearch.StagedFilters               `json:"filters"`
	Criteria  domain.FilterCriteria                 `json:"criteria"`
	Favorites []string                              `json:"favorites"`
	Match     string                                `json:"match,omitempty"`
	Error     string                                `json:"error,omitempty"`
}

// FavoriteResponse reports a favorite toggle.
type FavoriteResponse struct {
	ID        string   `json:"id"`
	Favorite  bool     `json:"favorite"`
	Favorites []string `json:"favorites"`
}

// MatchResponse is the dog picked among the favorites. Dog is set when the
// match is on the current page.
type MatchResponse struct {
	Match string      `json:"match"`
	Dog   *domain.Dog `json:"dog,omitempty"`
}

// dogViews decorates the dogs of snap for display.
func dogViews(snap dogsearch.Snapshot) []DogView {
	views := make([]DogView, 0, len(snap.Dogs))
	for _, d := range snap.Dogs {
		views = append(views, DogView{
			Dog:      d,
			Location: snap.LocationLabel(d.ZipCode),
			Favorite: snap.IsFavorite(d.ID),
			Matched:  snap.Match != "" && snap.Match == d.ID,
		})
	}
	return views
}

func newResultsResponse(snap dogsearch.Snapshot, pageSize int) ResultsResponse {
	resp := ResultsResponse{
		Page:      pkg.CursorPage(dogViews(snap), pageSize, snap.NextCursor, snap.PrevCursor),
		Total:     snap.Total,
		Loading:   snap.Loading,
		Loaded:    snap.Loaded,
		Filters:   snap.Staged,
		Criteria:  snap.Criteria,
		Favorites: snap.Favorites,
		Match:     snap.Match,
	}
	if snap.Err != nil {
		resp.Error = pkg.SafeMessage(snap.Err, searchFailedMessage)
	}
	return resp
}

func findDog(snap dogsearch.Snapshot, id string) *domain.Dog {
	for i := range snap.Dogs {
		if snap.Dogs[i].ID == id {
			d := snap.Dogs[i]
			return &d
		}
	}
	return nil
}
