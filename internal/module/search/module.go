package search

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/dogmatch/internal/middleware"
)

// SearchModule implements the app.Module interface for the dog search.
type SearchModule struct {
	handler     *SearchHandler
	pageHandler *SearchPageHandler
	loginPath   string
}

// NewModule creates a new SearchModule with the given handlers. Search
// routes send signed-out users to loginPath.
// Panics if h or ph is nil.
func NewModule(h *SearchHandler, ph *SearchPageHandler, loginPath string) *SearchModule {
	if h == nil {
		panic("search.NewModule: handler must not be nil")
	}
	if ph == nil {
		panic("search.NewModule: pageHandler must not be nil")
	}
	if loginPath == "" {
		loginPath = "/"
	}
	return &SearchModule{handler: h, pageHandler: ph, loginPath: loginPath}
}

// RegisterRoutes registers search API and page routes.
func (m *SearchModule) RegisterRoutes(api *gin.RouterGroup, pages *gin.RouterGroup) {
	requireLogin := middleware.RequireLogin(m.loginPath)

	// API routes
	a := api.Group("", requireLogin)
	a.GET("/breeds", m.handler.Breeds)
	a.GET("/search", m.handler.Results)
	a.PUT("/search/filters", m.handler.Stage)
	a.POST("/search/apply", m.handler.Apply)
	a.POST("/search/next", m.handler.Next)
	a.POST("/search/prev", m.handler.Prev)
	a.POST("/search/favorites/:id", m.handler.ToggleFavorite)
	a.POST("/search/match", m.handler.Match)
	a.DELETE("/search/match", m.handler.ResetMatch)

	// Page routes
	p := pages.Group("/search", requireLogin)
	p.GET("", m.pageHandler.Page)
	p.GET("/results", m.pageHandler.Results)
	p.POST("/apply", m.pageHandler.Apply)
	p.POST("/favorites/:id", m.pageHandler.ToggleFavorite)
	p.POST("/match", m.pageHandler.Match)
	p.POST("/match/reset", m.pageHandler.ResetMatch)
	p.POST("/next", m.pageHandler.Next)
	p.POST("/prev", m.pageHandler.Prev)
}
