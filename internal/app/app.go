package app

import (
	"cmp"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/ginx"
	"github.com/simp-lee/jwt"
	"github.com/simp-lee/logger"
	"gorm.io/gorm"

	"github.com/simp-lee/dogmatch/internal/config"
	"github.com/simp-lee/dogmatch/internal/middleware"
	"github.com/simp-lee/dogmatch/internal/module/auth"
	"github.com/simp-lee/dogmatch/internal/module/proxy"
	"github.com/simp-lee/dogmatch/internal/module/search"
	"github.com/simp-lee/dogmatch/internal/pkg"
	"github.com/simp-lee/dogmatch/internal/session"
	"github.com/simp-lee/dogmatch/internal/workspace"
	"github.com/simp-lee/dogmatch/web"
)

const defaultCookieName = "dogmatch_session"

// App holds the core application dependencies and the HTTP servers.
type App struct {
	engine   *gin.Engine
	proxy    *gin.Engine
	registry *workspace.Registry
	tokens   jwt.Service
	db       *gorm.DB
	logger   *logger.Logger
	cfg      *config.Config
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

var newHTTPServer = func(addr string, handler http.Handler) httpServer {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

var notifyContext = func(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// New creates and wires a fully configured App from the given Config.
//
// It sets up logging, the optional session database, the workspace
// registry, handlers, middleware, template rendering, routes and the
// catalog proxy.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	success := false

	// 1. Setup logger.
	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	if cfg.Server.Mode == gin.DebugMode && cfg.Server.Host == "0.0.0.0" {
		log.Warn("insecure server config: debug mode on 0.0.0.0 may expose debug behavior and permissive CORS")
	}
	defer func() {
		if success {
			return
		}
		if err := log.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}()

	if err := validateGinMode(cfg.Server.Mode); err != nil {
		return nil, err
	}
	gin.SetMode(cfg.Server.Mode)

	// 2. Resolve secrets.
	csrfSecret, err := resolveSecret("csrf_secret", cfg.Server.CSRFSecret, cfg.Server.Mode, log.Logger)
	if err != nil {
		return nil, err
	}
	cookieSecret, err := resolveSecret("session.cookie_secret", cfg.Session.CookieSecret, cfg.Server.Mode, log.Logger)
	if err != nil {
		return nil, err
	}

	// 3. Session database, only for the database store.
	var db *gorm.DB
	if cfg.Session.Store == config.StoreDatabase {
		db, err = config.SetupDatabase(&cfg.Database, log.Logger)
		if err != nil {
			return nil, fmt.Errorf("setup database: %w", err)
		}
		defer func() {
			if success {
				return
			}
			if err := config.CloseDatabase(db); err != nil {
				slog.Error("database close error", slog.Any("error", err))
			}
		}()
		if err := session.Migrate(db); err != nil {
			return nil, fmt.Errorf("migrate session store: %w", err)
		}
	}

	stores, err := storeFactory(cfg, db)
	if err != nil {
		return nil, err
	}

	// 4. Workspace tokens and registry.
	ttl := cfg.CookieTTL()
	tokens, err := jwt.New(cookieSecret, jwt.WithMaxTokenLifetime(ttl))
	if err != nil {
		return nil, fmt.Errorf("setup workspace tokens: %w", err)
	}
	registry := workspace.NewRegistry(tokens, stores, ttl, workspace.Options{
		CatalogBaseURL: cfg.Catalog.BaseURL,
		CatalogTimeout: cfg.CatalogTimeout(),
		PageSize:       cfg.Catalog.PageSize,
		ChunkSize:      cfg.Catalog.ChunkSize,
		Logger:         log.Logger,
	})
	defer func() {
		if success {
			return
		}
		registry.Close()
		tokens.Close()
	}()

	// 5. Manual dependency injection: registry → service → handler.
	authSvc := auth.NewService(registry, log.Logger)
	modules := []Module{
		auth.NewModule(auth.NewHandler(authSvc), auth.NewPageHandler(authSvc)),
		search.NewModule(search.NewHandler(), search.NewPageHandler(), "/"),
	}

	// 6. Create Gin engine with custom middleware (not gin.Default()).
	engine := gin.New()
	engine.Use(
		middleware.Recovery(log.Logger),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			TrustUpstream: false,
		}),
		middleware.Logger(log.Logger, "/health"),
		buildMiddlewareChain(cfg),
	)

	// 7. Determine filesystem mode and set up template renderer.
	var fsys fs.FS
	if cfg.Server.Mode == gin.DebugMode {
		fsys, err = resolveDebugWebFS()
		if err != nil {
			return nil, fmt.Errorf("resolve debug template fs: %w", err)
		}
	} else {
		fsys = web.EmbeddedFS
	}

	renderer, err := NewTemplateRenderer(fsys, cfg.Server.Mode == gin.DebugMode)
	if err != nil {
		return nil, fmt.Errorf("setup template renderer: %w", err)
	}
	engine.HTMLRender = renderer

	// 8. Register all routes.
	if err := RegisterRoutes(engine, &RouteDeps{
		Modules:    modules,
		Workspaces: registry,
		Tokens:     tokens,
		Cookie: middleware.SessionCookie{
			Name:   cmp.Or(cfg.Session.CookieName, defaultCookieName),
			Secure: cfg.Server.Mode == gin.ReleaseMode,
		},
		DB:         db,
		Mode:       cfg.Server.Mode,
		CSRFSecret: csrfSecret,
		Logger:     log.Logger,
	}); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	// 9. Catalog proxy on its own listener.
	var proxyEngine *gin.Engine
	if cfg.Proxy.Enabled {
		opts := proxy.Options{
			Target:     cfg.Proxy.Target,
			PathPrefix: cfg.Proxy.PathPrefix,
			CORS:       resolveCORSOptions(cfg.Server.Mode, &cfg.Proxy.CORS),
			Logger:     log.Logger,
		}
		if rl := cfg.Server.RateLimit; rl.Enabled {
			opts.RPS = effectiveRateLimitRPS(rl.RPS)
			opts.Burst = rl.Burst
		}
		proxyEngine, err = proxy.New(opts)
		if err != nil {
			return nil, fmt.Errorf("setup proxy: %w", err)
		}
	}

	success = true
	return &App{
		engine:   engine,
		proxy:    proxyEngine,
		registry: registry,
		tokens:   tokens,
		db:       db,
		logger:   log,
		cfg:      cfg,
	}, nil
}

// buildMiddlewareChain composes CORS, the optional request timeout and the
// optional per-IP rate limit. Middleware errors use the pkg.Response
// envelope.
func buildMiddlewareChain(cfg *config.Config) gin.HandlerFunc {
	chain := ginx.NewChain().
		WithErrorFormat(pkg.ErrorFormat).
		Use(ginx.CORS(resolveCORSOptions(cfg.Server.Mode, &cfg.Server.CORS)...))

	if timeout := cfg.ServerTimeout(); timeout > 0 {
		chain = chain.Use(ginx.Timeout(ginx.WithTimeout(timeout)))
	}

	if rl := cfg.Server.RateLimit; rl.Enabled {
		chain = chain.Use(ginx.RateLimit(
			effectiveRateLimitRPS(rl.RPS),
			max(rl.Burst, 1),
			ginx.WithIP(),
			ginx.WithSkipFunc(func(c *gin.Context) bool {
				path := c.Request.URL.Path
				return path == "/health" || strings.HasPrefix(path, "/static/")
			}),
		))
	}
	return chain.Build()
}

// effectiveRateLimitRPS rounds a fractional rate up to the whole number of
// tokens per second the limiter works with.
func effectiveRateLimitRPS(rps float64) int {
	return max(int(math.Ceil(rps)), 1)
}

// resolveCORSOptions maps a CORS section to ginx options. Without an
// allowlist, debug mode allows any origin and release mode denies
// cross-origin requests.
func resolveCORSOptions(mode string, cors *config.CORSConfig) []ginx.Option[ginx.CORSConfig] {
	var opts []ginx.Option[ginx.CORSConfig]
	if cors == nil {
		cors = &config.CORSConfig{}
	}

	switch {
	case len(cors.AllowOrigins) > 0:
		opts = append(opts, ginx.WithAllowOrigins(cors.AllowOrigins...))
	case mode == gin.DebugMode:
		opts = append(opts, ginx.WithAllowOrigins("*"))
	}
	if len(cors.AllowMethods) > 0 {
		opts = append(opts, ginx.WithAllowMethods(cors.AllowMethods...))
	}
	if len(cors.AllowHeaders) > 0 {
		opts = append(opts, ginx.WithAllowHeaders(cors.AllowHeaders...))
	}
	if cors.AllowCredentials {
		opts = append(opts, ginx.WithAllowCredentials(true))
	}
	if d, err := time.ParseDuration(cors.MaxAge); err == nil && d > 0 {
		opts = append(opts, ginx.WithMaxAge(d))
	}
	return opts
}

// resolveSecret returns value, or a random secret outside release mode when
// value is a placeholder. Release mode requires a strong configured secret.
func resolveSecret(name, value, mode string, log *slog.Logger) (string, error) {
	value = strings.TrimSpace(value)
	if config.IsPlaceholderSecret(value) {
		if mode == gin.ReleaseMode {
			return "", fmt.Errorf("%s must be a non-placeholder value in release mode", name)
		}
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("generate %s: %w", name, err)
		}
		log.Warn("no " + name + " configured, using random secret in non-release mode (will change on restart)")
		return hex.EncodeToString(b), nil
	}

	if mode == gin.ReleaseMode {
		if len(value) < 32 {
			return "", fmt.Errorf("%s must be at least 32 characters in release mode", name)
		}
		if config.CountSecretClasses(value) < 3 {
			return "", fmt.Errorf("%s must include at least 3 character classes (lowercase, uppercase, digit, symbol) in release mode", name)
		}
	}
	return value, nil
}

// storeFactory picks where each workspace keeps its login time and
// upstream cookies.
func storeFactory(cfg *config.Config, db *gorm.DB) (workspace.StoreFactory, error) {
	switch cfg.Session.Store {
	case "", config.StoreMemory:
		return workspace.MemoryStores(), nil
	case config.StoreFile:
		if cfg.Session.FilePath == "" {
			return nil, errors.New("session.file_path is required for the file store")
		}
		return func(id string) session.Store {
			return session.NewFileStore(workspaceFilePath(cfg.Session.FilePath, id))
		}, nil
	case config.StoreDatabase:
		if db == nil {
			return nil, errors.New("session database is not configured")
		}
		return func(id string) session.Store {
			return session.NewDBStore(db, session.ScopeFor(id))
		}, nil
	default:
		return nil, fmt.Errorf("invalid session.store %q", cfg.Session.Store)
	}
}

// workspaceFilePath derives a per-workspace file next to path:
// data/session.json becomes data/session-<id>.json.
func workspaceFilePath(path, id string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".json"
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + "-" + id + ext
}

func validateGinMode(mode string) error {
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		return nil
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}
}

func resolveDebugWebFS() (fs.FS, error) {
	if _, file, _, ok := runtime.Caller(0); ok {
		webDir := filepath.Clean(filepath.Join(filepath.Dir(file), "..", "..", "web"))
		if stat, err := os.Stat(webDir); err == nil && stat.IsDir() {
			return os.DirFS(webDir), nil
		}
	}

	exePath, err := os.Executable()
	if err == nil {
		webDir := filepath.Join(filepath.Dir(exePath), "web")
		if stat, err := os.Stat(webDir); err == nil && stat.IsDir() {
			return os.DirFS(webDir), nil
		}
	}

	return nil, errors.New("debug web directory not found")
}

type listener struct {
	name string
	addr string
	srv  httpServer
}

// Run starts the HTTP servers and blocks until a shutdown signal is
// received or a server fails. It performs graceful shutdown with a
// 5-second timeout and releases workspaces, tokens and the database.
func (a *App) Run() error {
	if a == nil {
		return errors.New("app is nil")
	}
	if a.cfg == nil {
		return errors.New("app config is nil")
	}
	if a.engine == nil {
		return errors.New("app engine is nil")
	}
	log := slog.Default()
	if a.logger != nil {
		log = a.logger.Logger
	}

	listeners := []listener{{
		name: "app",
		addr: fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port),
	}}
	listeners[0].srv = newHTTPServer(listeners[0].addr, a.engine)
	if a.proxy != nil {
		addr := fmt.Sprintf("%s:%d", a.cfg.Proxy.Host, a.cfg.Proxy.Port)
		listeners = append(listeners, listener{name: "proxy", addr: addr, srv: newHTTPServer(addr, a.proxy)})
	}

	// Listen for SIGINT / SIGTERM.
	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, len(listeners))
	for _, l := range listeners {
		go func() {
			log.Info("server started", slog.String("server", l.name), slog.String("addr", l.addr))
			if err := l.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s: %w", l.name, err)
			}
		}()
	}

	var runErr error

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown with 5-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, l := range listeners {
		if err := l.srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", slog.String("server", l.name), slog.Any("error", err))
		}
	}

	ginx.CleanupRateLimiters()
	if a.registry != nil {
		a.registry.Close()
	}
	if a.tokens != nil {
		a.tokens.Close()
	}

	if a.db != nil {
		if err := config.CloseDatabase(a.db); err != nil {
			log.Error("database close error", slog.Any("error", err))
		} else {
			log.Info("database connection closed")
		}
	}

	log.Info("server stopped")
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}

	return runErr
}
