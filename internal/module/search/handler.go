package search

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/dogmatch/internal/domain"
	"github.com/simp-lee/dogmatch/internal/middleware"
	"github.com/simp-lee/dogmatch/internal/pkg"
	dogsearch "github.com/simp-lee/dogmatch/internal/search"
)

const (
	searchFailedMessage = "Search failed. Please try again."
	maxDogIDLength      = 64
)

var errNoNextPage = domain.NewAppError(domain.CodeNotFound, "no next page", nil)
var errNoPrevPage = domain.NewAppError(domain.CodeNotFound, "no previous page", nil)

// SearchHandler handles REST API requests for the dog search. Every route
// runs behind the bearer workspace chain.
type SearchHandler struct{}

// NewHandler creates a new SearchHandler.
func NewHandler() *SearchHandler {
	return &SearchHandler{}
}

// Breeds handles GET /api/v1/breeds.
func (h *SearchHandler) Breeds(c *gin.Context) {
	ctrl, ok := controller(c)
	if !ok {
		return
	}
	breeds, err := ctrl.Breeds(c.Request.Context())
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, breeds)
}

// Results handles GET /api/v1/search.
func (h *SearchHandler) Results(c *gin.Context) {
	ctrl, ok := controller(c)
	if !ok {
		return
	}
	h.respond(c, ctrl)
}

// Stage handles PUT /api/v1/search/filters. Staged filters take effect on
// the next apply.
func (h *SearchHandler) Stage(c *gin.Context) {
	ctrl, ok := controller(c)
	if !ok {
		return
	}
	var req dogsearch.StagedFilters
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	ctrl.Stage(req)
	pkg.Success(c, ctrl.Staged())
}

// Apply handles POST /api/v1/search/apply.
func (h *SearchHandler) Apply(c *gin.Context) {
	ctrl, ok := controller(c)
	if !ok {
		return
	}
	if err := ctrl.Apply(c.Request.Context()); err != nil {
		pkg.Error(c, err)
		return
	}
	h.respond(c, ctrl)
}

// Next handles POST /api/v1/search/next.
func (h *SearchHandler) Next(c *gin.Context) {
	ctrl, ok := controller(c)
	if !ok {
		return
	}
	if !ctrl.NextPage() {
		pkg.Error(c, errNoNextPage)
		return
	}
	h.respond(c, ctrl)
}

// Prev handles POST /api/v1/search/prev.
func (h *SearchHandler) Prev(c *gin.Context) {
	ctrl, ok := controller(c)
	if !ok {
		return
	}
	if !ctrl.PrevPage() {
		pkg.Error(c, errNoPrevPage)
		return
	}
	h.respond(c, ctrl)
}

// ToggleFavorite handles POST /api/v1/search/favorites/:id.
func (h *SearchHandler) ToggleFavorite(c *gin.Context) {
	ctrl, ok := controller(c)
	if !ok {
		return
	}
	id, err := parseDogID(c)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	fav := ctrl.ToggleFavorite(id)
	pkg.Success(c, FavoriteResponse{ID: id, Favorite: fav, Favorites: ctrl.Favorites()})
}

// Match handles POST /api/v1/search/match.
func (h *SearchHandler) Match(c *gin.Context) {
	ctrl, ok := controller(c)
	if !ok {
		return
	}
	id, err := ctrl.GenerateMatch(c.Request.Context())
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, MatchResponse{Match: id, Dog: findDog(ctrl.Snapshot(), id)})
}

// ResetMatch handles DELETE /api/v1/search/match.
func (h *SearchHandler) ResetMatch(c *gin.Context) {
	ctrl, ok := controller(c)
	if !ok {
		return
	}
	ctrl.ResetMatch()
	pkg.Success(c, nil)
}

// respond writes the current results. With ?wait=true it first waits for
// background loads to settle.
func (h *SearchHandler) respond(c *gin.Context, ctrl *dogsearch.Controller) {
	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		ctrl.Wait()
	}
	pkg.List(c, newResultsResponse(ctrl.Snapshot(), ctrl.PageSize()))
}

// controller returns the search controller of the request's workspace, or
// writes a 401 and reports false.
func controller(c *gin.Context) (*dogsearch.Controller, bool) {
	ws := middleware.GetWorkspace(c)
	if ws == nil {
		pkg.Error(c, domain.ErrUnauthorized)
		return nil, false
	}
	return ws.Search, true
}

func parseDogID(c *gin.Context) (string, error) {
	id := c.Param("id")
	if id == "" || len(id) > maxDogIDLength {
		return "", domain.NewAppError(domain.CodeValidation, "invalid dog id", nil)
	}
	return id, nil
}
