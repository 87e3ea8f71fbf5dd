package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Session store kinds.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreDatabase = "database"
)

// MaxCookieTTL bounds session.cookie_ttl; workspace tokens cannot outlive the
// signer's revocation window.
const MaxCookieTTL = 30 * 24 * time.Hour

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Proxy    ProxyConfig    `koanf:"proxy"`
	Catalog  CatalogConfig  `koanf:"catalog"`
	Session  SessionConfig  `koanf:"session"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host       string          `koanf:"host"`
	Port       int             `koanf:"port"`
	Mode       string          `koanf:"mode"`
	CSRFSecret string          `koanf:"csrf_secret"`
	Timeout    string          `koanf:"timeout"`
	CORS       CORSConfig      `koanf:"cors"`
	RateLimit  RateLimitConfig `koanf:"rate_limit"`
}

// CORSConfig holds CORS middleware settings.
type CORSConfig struct {
	AllowOrigins     []string `koanf:"allow_origins"`
	AllowMethods     []string `koanf:"allow_methods"`
	AllowHeaders     []string `koanf:"allow_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           string   `koanf:"max_age"`
}

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	Enabled bool    `koanf:"enabled"`
	RPS     float64 `koanf:"rps"`
	Burst   int     `koanf:"burst"`
}

// ProxyConfig holds the catalog forwarding proxy settings.
type ProxyConfig struct {
	Enabled    bool       `koanf:"enabled"`
	Host       string     `koanf:"host"`
	Port       int        `koanf:"port"`
	Target     string     `koanf:"target"`
	PathPrefix string     `koanf:"path_prefix"`
	CORS       CORSConfig `koanf:"cors"`
}

// CatalogConfig holds the upstream catalog client settings.
type CatalogConfig struct {
	BaseURL   string `koanf:"base_url"`
	Timeout   string `koanf:"timeout"`
	PageSize  int    `koanf:"page_size"`
	ChunkSize int    `koanf:"chunk_size"`
}

// SessionConfig holds the session guard and workspace cookie settings.
type SessionConfig struct {
	Store        string `koanf:"store"`
	FilePath     string `koanf:"file_path"`
	CookieName   string `koanf:"cookie_name"`
	CookieSecret string `koanf:"cookie_secret"`
	CookieTTL    string `koanf:"cookie_ttl"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `koanf:"driver"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`
	Pool     PoolConfig     `koanf:"pool"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"dbname"`
	SSLMode  string `koanf:"sslmode"`
}

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	ConnMaxLifetime string `koanf:"conn_max_lifetime"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level           string `koanf:"level"`
	Format          string `koanf:"format"`
	Color           *bool  `koanf:"color"`
	FilePath        string `koanf:"file_path"`
	MaxSizeMB       int    `koanf:"max_size_mb"`
	RetentionDays   int    `koanf:"retention_days"`
	MaxBackups      int    `koanf:"max_backups"`
	CompressRotated *bool  `koanf:"compress_rotated"`
}

// Load reads configuration from a YAML file and overlays environment variables.
// Environment variables use the prefix "APP__" and double-underscore as the
// hierarchy separator. Single underscores are preserved as part of the key name.
// For example, APP__PROXY__PORT=5001 overrides proxy.port and
// APP__SESSION__COOKIE_TTL=2h overrides session.cookie_ttl.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}

	if err := k.Load(env.Provider("APP__", ".", func(s string) string {
		key := strings.TrimPrefix(s, "APP__")
		key = strings.ToLower(key)
		key = strings.ReplaceAll(key, "__", ".")
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints and supported values. Optional
// fields are normalized in place.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateProxy(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	if c.Session.Store == StoreDatabase {
		if err := c.validateDatabase(); err != nil {
			return err
		}
	}
	return c.validateLog()
}

func (c *Config) validateServer() error {
	mode := strings.TrimSpace(c.Server.Mode)
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		c.Server.Mode = mode
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", c.Server.Mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", c.Server.Port)
	}

	host := strings.TrimSpace(c.Server.Host)
	if host == "" {
		return fmt.Errorf("server.host is required")
	}
	c.Server.Host = host

	c.Server.Timeout = strings.TrimSpace(c.Server.Timeout)
	if _, err := optionalDuration("server.timeout", c.Server.Timeout); err != nil {
		return err
	}
	if err := validateCORS("server.cors", &c.Server.CORS); err != nil {
		return err
	}

	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.RPS <= 0 {
			return fmt.Errorf("invalid server.rate_limit.rps %v: must be positive when rate limiting is enabled", c.Server.RateLimit.RPS)
		}
		if c.Server.RateLimit.Burst <= 0 {
			return fmt.Errorf("invalid server.rate_limit.burst %d: must be positive when rate limiting is enabled", c.Server.RateLimit.Burst)
		}
	}
	return nil
}

func (c *Config) validateProxy() error {
	if !c.Proxy.Enabled {
		return nil
	}
	if c.Proxy.Port < 1 || c.Proxy.Port > 65535 {
		return fmt.Errorf("invalid proxy.port %d: must be between 1 and 65535", c.Proxy.Port)
	}
	if c.Proxy.Port == c.Server.Port {
		return fmt.Errorf("proxy.port %d must differ from server.port", c.Proxy.Port)
	}
	c.Proxy.Host = strings.TrimSpace(c.Proxy.Host)
	if c.Proxy.Host == "" {
		c.Proxy.Host = c.Server.Host
	}

	target, err := absoluteHTTPURL("proxy.target", c.Proxy.Target)
	if err != nil {
		return err
	}
	c.Proxy.Target = target

	prefix := strings.TrimSpace(c.Proxy.PathPrefix)
	if prefix == "" {
		prefix = "/api"
	}
	if !strings.HasPrefix(prefix, "/") {
		return fmt.Errorf("invalid proxy.path_prefix %q: must start with '/'", c.Proxy.PathPrefix)
	}
	if prefix != "/" {
		prefix = strings.TrimRight(prefix, "/")
	}
	c.Proxy.PathPrefix = prefix

	return validateCORS("proxy.cors", &c.Proxy.CORS)
}

func (c *Config) validateCatalog() error {
	base, err := absoluteHTTPURL("catalog.base_url", c.Catalog.BaseURL)
	if err != nil {
		return err
	}
	c.Catalog.BaseURL = base

	c.Catalog.Timeout = strings.TrimSpace(c.Catalog.Timeout)
	if _, err := optionalDuration("catalog.timeout", c.Catalog.Timeout); err != nil {
		return err
	}
	if c.Catalog.PageSize < 0 || c.Catalog.PageSize > 100 {
		return fmt.Errorf("invalid catalog.page_size %d: must be between 1 and 100", c.Catalog.PageSize)
	}
	if c.Catalog.ChunkSize < 0 || c.Catalog.ChunkSize > 100 {
		return fmt.Errorf("invalid catalog.chunk_size %d: must be between 1 and 100", c.Catalog.ChunkSize)
	}
	return nil
}

func (c *Config) validateSession() error {
	store := strings.ToLower(strings.TrimSpace(c.Session.Store))
	if store == "" {
		store = StoreMemory
	}
	switch store {
	case StoreMemory, StoreFile, StoreDatabase:
		c.Session.Store = store
	default:
		return fmt.Errorf("invalid session.store %q: must be one of %q, %q, %q", c.Session.Store, StoreMemory, StoreFile, StoreDatabase)
	}

	c.Session.FilePath = strings.TrimSpace(c.Session.FilePath)
	if store == StoreFile && c.Session.FilePath == "" {
		return fmt.Errorf("session.file_path is required when store is %q", StoreFile)
	}

	c.Session.CookieName = strings.TrimSpace(c.Session.CookieName)
	if c.Session.CookieName == "" {
		c.Session.CookieName = "dogmatch_session"
	}

	c.Session.CookieTTL = strings.TrimSpace(c.Session.CookieTTL)
	if c.Session.CookieTTL == "" {
		c.Session.CookieTTL = "24h"
	}
	ttl, err := time.ParseDuration(c.Session.CookieTTL)
	if err != nil {
		return fmt.Errorf("invalid session.cookie_ttl %q: %w", c.Session.CookieTTL, err)
	}
	if ttl <= 0 || ttl > MaxCookieTTL {
		return fmt.Errorf("invalid session.cookie_ttl %q: must be greater than 0 and at most %s", c.Session.CookieTTL, MaxCookieTTL)
	}

	secret := strings.TrimSpace(c.Session.CookieSecret)
	c.Session.CookieSecret = secret
	if IsPlaceholderSecret(secret) {
		if c.Server.Mode == gin.ReleaseMode {
			return fmt.Errorf("session.cookie_secret must be a non-placeholder value in release mode")
		}
		return nil
	}
	if len(secret) < 32 {
		return fmt.Errorf("invalid session.cookie_secret: must be at least 32 characters")
	}
	if c.Server.Mode == gin.ReleaseMode && CountSecretClasses(secret) < 3 {
		return fmt.Errorf("session.cookie_secret must include at least 3 character classes (lowercase, uppercase, digit, symbol) in release mode")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database.driver %q: must be one of %q, %q", c.Database.Driver, "sqlite", "postgres")
	}

	if c.Database.Driver == "sqlite" {
		sqlitePath := strings.TrimSpace(c.Database.SQLite.Path)
		if sqlitePath == "" {
			return fmt.Errorf("database.sqlite.path is required when driver is sqlite")
		}
		c.Database.SQLite.Path = sqlitePath
	}

	if c.Database.Driver == "postgres" {
		host := strings.TrimSpace(c.Database.Postgres.Host)
		if host == "" {
			return fmt.Errorf("database.postgres.host is required when driver is postgres")
		}
		if c.Database.Postgres.Port < 1 || c.Database.Postgres.Port > 65535 {
			return fmt.Errorf("invalid database.postgres.port %d: must be between 1 and 65535", c.Database.Postgres.Port)
		}
		user := strings.TrimSpace(c.Database.Postgres.User)
		if user == "" {
			return fmt.Errorf("database.postgres.user is required when driver is postgres")
		}
		dbName := strings.TrimSpace(c.Database.Postgres.DBName)
		if dbName == "" {
			return fmt.Errorf("database.postgres.dbname is required when driver is postgres")
		}
		sslMode := strings.TrimSpace(c.Database.Postgres.SSLMode)
		switch sslMode {
		case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
		default:
			return fmt.Errorf("invalid database.postgres.sslmode %q: must be one of %q, %q, %q, %q, %q, %q", c.Database.Postgres.SSLMode, "disable", "allow", "prefer", "require", "verify-ca", "verify-full")
		}
		if c.Server.Mode == gin.ReleaseMode {
			switch sslMode {
			case "require", "verify-ca", "verify-full":
			default:
				return fmt.Errorf("invalid database.postgres.sslmode %q for server.mode %q: must be one of %q, %q, %q", c.Database.Postgres.SSLMode, gin.ReleaseMode, "require", "verify-ca", "verify-full")
			}
		}

		c.Database.Postgres.Host = host
		c.Database.Postgres.User = user
		c.Database.Postgres.DBName = dbName
		c.Database.Postgres.SSLMode = sslMode
	}

	c.Database.Pool.ConnMaxLifetime = strings.TrimSpace(c.Database.Pool.ConnMaxLifetime)
	_, err := optionalDuration("database.pool.conn_max_lifetime", c.Database.Pool.ConnMaxLifetime)
	return err
}

func (c *Config) validateLog() error {
	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Log.Level = level
	default:
		return fmt.Errorf("invalid log.level %q: must be one of %q, %q, %q, %q", c.Log.Level, "debug", "info", "warn", "error")
	}

	format := strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch format {
	case "text", "json":
		c.Log.Format = format
	default:
		return fmt.Errorf("invalid log.format %q: must be one of %q, %q", c.Log.Format, "text", "json")
	}
	return nil
}

// ServerTimeout returns server.timeout, or zero when unset.
func (c *Config) ServerTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.Timeout)
	return d
}

// CatalogTimeout returns catalog.timeout, or zero when unset.
func (c *Config) CatalogTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Catalog.Timeout)
	return d
}

// CookieTTL returns the validated session.cookie_ttl.
func (c *Config) CookieTTL() time.Duration {
	d, err := time.ParseDuration(c.Session.CookieTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// IsPlaceholderSecret reports whether secret is empty or one of the sample
// values shipped in configs/config.yaml.
func IsPlaceholderSecret(secret string) bool {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return true
	}
	switch strings.ToLower(trimmed) {
	case "change-me-to-a-random-secret", "change-me-in-env":
		return true
	default:
		return false
	}
}

func validateCORS(section string, cors *CORSConfig) error {
	cors.MaxAge = strings.TrimSpace(cors.MaxAge)
	if ma := cors.MaxAge; ma != "" {
		d, err := time.ParseDuration(ma)
		if err != nil {
			return fmt.Errorf("invalid %s.max_age %q: must be a valid duration (e.g. \"24h\", \"3600s\"): %w", section, cors.MaxAge, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid %s.max_age %q: must be greater than 0", section, cors.MaxAge)
		}
	}
	for i, origin := range cors.AllowOrigins {
		cors.AllowOrigins[i] = strings.TrimSpace(origin)
		if cors.AllowOrigins[i] == "" {
			return fmt.Errorf("%s.allow_origins[%d] cannot be empty", section, i)
		}
		if cors.AllowOrigins[i] == "*" && cors.AllowCredentials {
			return fmt.Errorf("%s.allow_origins cannot contain \"*\" when allow_credentials is true", section)
		}
	}
	return nil
}

func optionalDuration(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be greater than 0", name, value)
	}
	return d, nil
}

func absoluteHTTPURL(name, raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid %s %q: must be an absolute http(s) URL", name, raw)
	}
	return strings.TrimRight(trimmed, "/"), nil
}

// CountSecretClasses counts how many character classes (lowercase, uppercase,
// digit, symbol) are present in the given secret string.
func CountSecretClasses(secret string) int {
	var lower, upper, digit, symbol bool
	for _, r := range secret {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}

	classes := 0
	for _, ok := range []bool{lower, upper, digit, symbol} {
		if ok {
			classes++
		}
	}
	return classes
}
