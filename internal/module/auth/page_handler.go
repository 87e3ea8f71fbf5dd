package auth

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/dogmatch/internal/middleware"
	"github.com/simp-lee/dogmatch/internal/pkg"
)

const (
	loginFailedMessage = "Login failed. Please check your details."
	searchPath         = "/search"
	loginPath          = "/"
)

// AuthPageHandler renders the login page and handles the login and logout
// forms.
type AuthPageHandler struct {
	svc Service
}

// NewPageHandler creates a new AuthPageHandler with the given service.
func NewPageHandler(svc Service) *AuthPageHandler {
	return &AuthPageHandler{svc: svc}
}

// LoginPage renders the login form, or sends a signed-in user to the search.
// GET /
func (h *AuthPageHandler) LoginPage(c *gin.Context) {
	ws := middleware.GetWorkspace(c)
	if ws != nil && ws.Authenticated(c.Request.Context()) {
		c.Redirect(http.StatusSeeOther, searchPath)
		return
	}
	h.renderLogin(c, http.StatusOK, LoginRequest{}, "")
}

// Login signs the browser's workspace in to the catalog.
// POST /login
func (h *AuthPageHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		slog.DebugContext(c.Request.Context(), "login: bind error", slog.Any("error", err))
		h.renderLogin(c, http.StatusOK, req, loginFailedMessage)
		return
	}

	if err := h.svc.SignIn(c.Request.Context(), middleware.GetWorkspace(c), req.Name, req.Email); err != nil {
		h.renderLogin(c, http.StatusOK, req, loginFailedMessage)
		return
	}

	pkg.Redirect(c, searchPath)
}

// Logout ends the catalog session and returns to the login page.
// POST /logout
func (h *AuthPageHandler) Logout(c *gin.Context) {
	if err := h.svc.SignOut(c.Request.Context(), middleware.GetWorkspace(c)); err != nil {
		slog.ErrorContext(c.Request.Context(), "logout failed", slog.Any("error", err))
		c.HTML(http.StatusInternalServerError, "errors/500.html", gin.H{})
		return
	}
	pkg.Redirect(c, loginPath)
}

func (h *AuthPageHandler) renderLogin(c *gin.Context, status int, form LoginRequest, errMsg string) {
	c.HTML(status, "auth/login.html", gin.H{
		"Title":     "Log in",
		"Form":      form,
		"Error":     errMsg,
		"CSRFToken": middleware.GetCSRFToken(c),
	})
}
