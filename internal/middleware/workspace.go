package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/ginx"
	"github.com/simp-lee/logger"

	"github.com/simp-lee/dogmatch/internal/domain"
	"github.com/simp-lee/dogmatch/internal/workspace"
)

const workspaceContextKey = "workspace"

// Workspaces is the part of workspace.Registry the middleware uses.
type Workspaces interface {
	Create(ctx context.Context) (*workspace.Workspace, workspace.Ticket, error)
	Resolve(ctx context.Context, token string) (*workspace.Workspace, error)
	Lookup(ctx context.Context, id string, expiresAt time.Time) (*workspace.Workspace, error)
}

// SessionCookie describes the browser cookie carrying the workspace token.
type SessionCookie struct {
	Name   string
	Secure bool
}

// Set writes token as the session cookie.
func (sc SessionCookie) Set(c *gin.Context, token string, expiresAt time.Time) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     sc.Name,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   sc.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie.
func (sc SessionCookie) Clear(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     sc.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   sc.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// PageWorkspace attaches the browser's workspace to the request. A missing,
// expired or forged cookie gets a fresh workspace and a new cookie.
func PageWorkspace(ws Workspaces, cookie SessionCookie, log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if token, err := c.Cookie(cookie.Name); err == nil && token != "" {
			w, err := ws.Resolve(ctx, token)
			if err == nil {
				setWorkspace(c, w)
				c.Next()
				return
			}
			if !domain.IsUnauthorized(err) {
				log.WarnContext(ctx, "workspace resolve failed", slog.Any("error", err))
			}
		}

		w, ticket, err := ws.Create(ctx)
		if err != nil {
			log.ErrorContext(ctx, "workspace create failed", slog.Any("error", err))
			abortInternal(c)
			return
		}
		cookie.Set(c, ticket.Token, ticket.ExpiresAt)
		setWorkspace(c, w)
		c.Next()
	}
}

// APIWorkspace resolves the workspace for a request already authenticated
// by ginx.Auth. It belongs in the same ginx chain, after Auth.
func APIWorkspace(ws Workspaces) ginx.Middleware {
	return func(next gin.HandlerFunc) gin.HandlerFunc {
		return func(c *gin.Context) {
			id, ok := ginx.GetUserID(c)
			if !ok {
				ginx.AbortWithError(c, http.StatusUnauthorized, "missing token")
				return
			}
			expiresAt, _ := ginx.GetTokenExpiresAt(c)
			w, err := ws.Lookup(c.Request.Context(), id, expiresAt)
			if err != nil {
				ginx.AbortWithError(c, domain.HTTPStatusCode(err), "workspace unavailable")
				return
			}
			setWorkspace(c, w)
			next(c)
		}
	}
}

// RequireLogin stops requests whose workspace has no live catalog session.
// Pages are sent to loginPath; htmx requests get an HX-Redirect; API calls
// get a 401.
func RequireLogin(loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		w := GetWorkspace(c)
		if w != nil && w.Authenticated(c.Request.Context()) {
			c.Next()
			return
		}
		switch {
		case c.GetHeader("HX-Request") == "true":
			c.Header("HX-Redirect", loginPath)
			c.AbortWithStatus(http.StatusUnauthorized)
		case acceptsHTML(c):
			c.Redirect(http.StatusSeeOther, loginPath)
			c.Abort()
		default:
			ginx.AbortWithError(c, http.StatusUnauthorized, "session expired")
		}
	}
}

// GetWorkspace returns the workspace attached by PageWorkspace or
// APIWorkspace, or nil.
func GetWorkspace(c *gin.Context) *workspace.Workspace {
	if v, ok := c.Get(workspaceContextKey); ok {
		if w, ok := v.(*workspace.Workspace); ok {
			return w
		}
	}
	return nil
}

func setWorkspace(c *gin.Context, w *workspace.Workspace) {
	c.Set(workspaceContextKey, w)
	ctx := logger.WithContextAttrs(c.Request.Context(), slog.String("workspace", w.ID))
	c.Request = c.Request.WithContext(ctx)
}
