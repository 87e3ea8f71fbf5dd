package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/ginx"
	"github.com/simp-lee/jwt"
	"gorm.io/gorm"

	"github.com/simp-lee/dogmatch/internal/middleware"
	"github.com/simp-lee/dogmatch/internal/pkg"
	"github.com/simp-lee/dogmatch/web"
)

const (
	apiRoot      = "/api/"
	apiPrefix    = "/api/v1"
	apiLoginPath = apiPrefix + "/auth/login"
)

// RouteDeps holds all dependencies needed to register routes.
type RouteDeps struct {
	Modules    []Module
	Workspaces middleware.Workspaces
	// Tokens verifies the Bearer workspace token on API routes.
	Tokens     jwt.Service
	Cookie     middleware.SessionCookie
	DB         *gorm.DB // nil unless sessions live in a database
	Mode       string   // "debug", "release" or "test"
	CSRFSecret string
	Logger     *slog.Logger
}

// RegisterRoutes registers all application routes on the given gin.Engine.
//
// Pages get the browser's workspace from the session cookie and CSRF
// protection. API routes take the workspace token as a Bearer token; only
// the login endpoint is open.
func RegisterRoutes(r *gin.Engine, deps *RouteDeps) error {
	if r == nil {
		return errors.New("router is nil")
	}
	if deps == nil {
		return errors.New("route dependencies are nil")
	}
	if len(deps.Modules) == 0 {
		return errors.New("at least one module is required")
	}
	if strings.TrimSpace(deps.CSRFSecret) == "" {
		return errors.New("csrf secret is required")
	}
	if deps.Workspaces == nil {
		return errors.New("workspaces are required")
	}
	if deps.Tokens == nil {
		return errors.New("token service is required")
	}
	if deps.Cookie.Name == "" {
		deps.Cookie.Name = defaultCookieName
	}

	if err := registerStatic(r, deps.Mode); err != nil {
		return fmt.Errorf("register static routes: %w", err)
	}

	r.GET("/health", healthHandler(deps.DB))

	// Bearer token, no CSRF.
	api := r.Group(apiPrefix)
	api.Use(ginx.NewChain().
		WithErrorFormat(pkg.ErrorFormat).
		Unless(ginx.PathIs(apiLoginPath), ginx.Auth(deps.Tokens)).
		Unless(ginx.PathIs(apiLoginPath), middleware.APIWorkspace(deps.Workspaces)).
		Build())

	// Session cookie workspace, with CSRF.
	pages := r.Group("/")
	pages.Use(
		middleware.PageWorkspace(deps.Workspaces, deps.Cookie, deps.Logger),
		middleware.CSRF(deps.CSRFSecret),
	)

	for i, m := range deps.Modules {
		if m == nil {
			return fmt.Errorf("module at index %d is nil", i)
		}
		m.RegisterRoutes(api, pages)
	}

	r.NoRoute(noRouteHandler())

	return nil
}

// healthHandler reports liveness. When sessions live in a database the
// database is pinged, within the request's deadline and at most a second.
func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()
		if err := pingDB(ctx, db); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":     "degraded",
				"components": gin.H{"database": "error"},
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"components": gin.H{"database": "ok"},
		})
	}
}

func pingDB(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// noRouteHandler answers unknown paths: JSON under /api/, otherwise
// whatever the Accept header asks for.
func noRouteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, apiRoot) {
			c.JSON(http.StatusNotFound, pkg.Response{Code: http.StatusNotFound, Message: "not found"})
			return
		}
		renderError(c, http.StatusNotFound, "not found")
	}
}

// registerStatic serves /static. Debug mode reads web/static from the
// source tree so asset edits need no rebuild; other modes serve the
// embedded copy with a day of caching.
func registerStatic(r *gin.Engine, mode string) error {
	var assets fs.FS
	var err error
	if mode == gin.DebugMode {
		assets, err = sourceStaticDir()
	} else {
		assets, err = fs.Sub(web.EmbeddedFS, "static")
	}
	if err != nil {
		return err
	}

	handler := staticHandler(http.FS(assets))
	if mode != gin.DebugMode {
		handler = cachedStatic(handler)
	}
	r.GET("/static/*filepath", handler)
	return nil
}

func sourceStaticDir() (fs.FS, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return nil, errors.New("locate source directory")
	}
	dir := filepath.Join(filepath.Dir(file), "..", "..", "web", "static")
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("static directory: %w", err)
	}
	return os.DirFS(dir), nil
}

func staticHandler(fsys http.FileSystem) gin.HandlerFunc {
	files := http.StripPrefix("/static", http.FileServer(fsys))
	return func(c *gin.Context) {
		files.ServeHTTP(c.Writer, c.Request)
	}
}

func cachedStatic(next gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "public, max-age=86400")
		next(c)
	}
}
