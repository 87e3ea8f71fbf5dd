package auth

import "github.com/gin-gonic/gin"

// AuthModule implements the app.Module interface for the catalog session.
type AuthModule struct {
	handler     *AuthHandler
	pageHandler *AuthPageHandler
}

// NewModule creates a new AuthModule with the given handlers.
// Panics if h or ph is nil.
func NewModule(h *AuthHandler, ph *AuthPageHandler) *AuthModule {
	if h == nil {
		panic("auth.NewModule: handler must not be nil")
	}
	if ph == nil {
		panic("auth.NewModule: pageHandler must not be nil")
	}
	return &AuthModule{handler: h, pageHandler: ph}
}

// RegisterRoutes registers auth API and page routes.
func (m *AuthModule) RegisterRoutes(api *gin.RouterGroup, pages *gin.RouterGroup) {
	auth := api.Group("/auth")
	auth.POST("/login", m.handler.Login)
	auth.POST("/logout", m.handler.Logout)
	auth.GET("/session", m.handler.Session)

	pages.GET("/", m.pageHandler.LoginPage)
	pages.POST("/login", m.pageHandler.Login)
	pages.POST("/logout", m.pageHandler.Logout)
}
