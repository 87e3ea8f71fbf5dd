package search

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/dogmatch/internal/middleware"
	"github.com/simp-lee/dogmatch/internal/pkg"
	dogsearch "github.com/simp-lee/dogmatch/internal/search"
)

const (
	searchPath           = "/search"
	filtersInvalidMsg    = "Please check the filter values."
	locationFailedMsg    = "Location search failed. Please try again."
	matchFailedMsg       = "Match failed. Please try again."
	matchFoundMsg        = "You have a match!"
	refreshIntervalMilli = 1000
)

// SearchPageHandler renders the search page and handles its htmx actions.
// Plain form posts redirect back to the page with a flash message; htmx
// posts get the results fragment and a toast.
type SearchPageHandler struct{}

// NewPageHandler creates a new SearchPageHandler.
func NewPageHandler() *SearchPageHandler {
	return &SearchPageHandler{}
}

// Page renders the search page.
// GET /search
func (h *SearchPageHandler) Page(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	c.HTML(http.StatusOK, "search/index.html", h.pageData(c, ctrl, pkg.TakeFlash(c)))
}

// Results renders the results fragment, polled by htmx while loading.
// GET /search/results
func (h *SearchPageHandler) Results(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	c.HTML(http.StatusOK, "search/results.html", h.pageData(c, ctrl, ""))
}

// Apply stages the submitted filters and commits them.
// POST /search/apply
func (h *SearchPageHandler) Apply(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	var req dogsearch.StagedFilters
	if err := c.ShouldBind(&req); err != nil {
		slog.DebugContext(c.Request.Context(), "apply filters: bind error", slog.Any("error", err))
		h.done(c, ctrl, filtersInvalidMsg, "error")
		return
	}
	ctrl.Stage(req)
	if err := ctrl.Apply(c.Request.Context()); err != nil {
		h.done(c, ctrl, pkg.SafeMessage(err, locationFailedMsg), "error")
		return
	}
	h.done(c, ctrl, "", "")
}

// ToggleFavorite adds or removes a dog from the favorites.
// POST /search/favorites/:id
func (h *SearchPageHandler) ToggleFavorite(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	id, err := parseDogID(c)
	if err != nil {
		h.done(c, ctrl, pkg.SafeMessage(err, "Invalid dog."), "error")
		return
	}
	ctrl.ToggleFavorite(id)
	h.done(c, ctrl, "", "")
}

// Match asks the catalog to pick one of the favorites.
// POST /search/match
func (h *SearchPageHandler) Match(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	if _, err := ctrl.GenerateMatch(c.Request.Context()); err != nil {
		h.done(c, ctrl, pkg.SafeMessage(err, matchFailedMsg), "error")
		return
	}
	h.done(c, ctrl, matchFoundMsg, "success")
}

// ResetMatch clears the match and the favorites.
// POST /search/match/reset
func (h *SearchPageHandler) ResetMatch(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	ctrl.ResetMatch()
	h.done(c, ctrl, "", "")
}

// Next moves to the next page.
// POST /search/next
func (h *SearchPageHandler) Next(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	ctrl.NextPage()
	h.done(c, ctrl, "", "")
}

// Prev moves to the previous page.
// POST /search/prev
func (h *SearchPageHandler) Prev(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	ctrl.PrevPage()
	h.done(c, ctrl, "", "")
}

// done finishes a form action.
func (h *SearchPageHandler) done(c *gin.Context, ctrl *dogsearch.Controller, message, toastType string) {
	if pkg.IsHTMX(c) {
		if message != "" {
			pkg.Toast(c, message, toastType)
		}
		c.HTML(http.StatusOK, "search/results.html", h.pageData(c, ctrl, ""))
		return
	}
	if message != "" {
		pkg.SetFlash(c, message)
	}
	c.Redirect(http.StatusSeeOther, searchPath)
}

func (h *SearchPageHandler) pageData(c *gin.Context, ctrl *dogsearch.Controller, flash string) gin.H {
	snap := ctrl.Snapshot()
	breeds, err := ctrl.Breeds(c.Request.Context())
	if err != nil {
		slog.WarnContext(c.Request.Context(), "breed list unavailable", slog.Any("error", err))
	}

	data := gin.H{
		"Title":     "Find a dog",
		"Snapshot":  snap,
		"Dogs":      dogViews(snap),
		"Breeds":    breeds,
		"Filters":   snap.Staged,
		"Flash":     flash,
		"CSRFToken": middleware.GetCSRFToken(c),
	}
	if snap.Loading {
		data["RefreshMillis"] = refreshIntervalMilli
	}
	if snap.Err != nil {
		data["Error"] = pkg.SafeMessage(snap.Err, searchFailedMessage)
	}
	if snap.Match != "" {
		data["MatchDog"] = findDog(snap, snap.Match)
	}
	return data
}

func (h *SearchPageHandler) controller(c *gin.Context) (*dogsearch.Controller, bool) {
	ws := middleware.GetWorkspace(c)
	if ws == nil {
		c.HTML(http.StatusInternalServerError, "errors/500.html", gin.H{})
		return nil, false
	}
	return ws.Search, true
}
