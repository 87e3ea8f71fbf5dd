// Package proxy forwards browser calls to the catalog host. Requests under
// the path prefix are sent to the target with the prefix removed, the Host
// and Origin headers rewritten to the target, and CORS answered locally.
package proxy

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/ginx"

	"github.com/simp-lee/dogmatch/internal/middleware"
	"github.com/simp-lee/dogmatch/internal/pkg"
)

// Options configures the proxy engine.
type Options struct {
	// Target is the absolute upstream URL, e.g. https://frontend-take-home-service.fetch.com.
	Target string
	// PathPrefix is stripped before forwarding. Defaults to "/api".
	PathPrefix string
	CORS       []ginx.Option[ginx.CORSConfig]
	// RPS and Burst enable a per-IP token bucket when RPS > 0.
	RPS    int
	Burst  int
	Logger *slog.Logger
	// Transport overrides the upstream round tripper (tests).
	Transport http.RoundTripper
}

// New returns a gin engine that forwards PathPrefix/* to Target.
func New(opts Options) (*gin.Engine, error) {
	target, err := url.Parse(strings.TrimSpace(opts.Target))
	if err != nil {
		return nil, err
	}
	if (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, errors.New("proxy target must be an absolute http(s) URL")
	}
	prefix := normalizePrefix(opts.PathPrefix)
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "proxy"))

	p := &forwarder{
		prefix: prefix,
		log:    log,
	}
	p.rp = &httputil.ReverseProxy{
		Rewrite:        p.rewrite(target),
		Transport:      opts.Transport,
		ModifyResponse: stripUpstreamCORS,
		ErrorHandler:   p.upstreamError,
		ErrorLog:       slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}

	chain := ginx.NewChain().
		WithErrorFormat(pkg.ErrorFormat).
		Use(ginx.CORS(opts.CORS...))
	if opts.RPS > 0 {
		chain = chain.Use(ginx.RateLimit(opts.RPS, max(opts.Burst, 1), ginx.WithIP()))
	}

	engine := gin.New()
	engine.Use(
		middleware.Recovery(log),
		middleware.RequestID(),
		middleware.Logger(log),
		chain.Build(),
	)
	// Every path falls through to NoRoute so a "/" prefix needs no
	// catch-all route.
	engine.NoRoute(p.forward)
	return engine, nil
}

type forwarder struct {
	prefix string
	rp     *httputil.ReverseProxy
	log    *slog.Logger
}

func (p *forwarder) forward(c *gin.Context) {
	if _, ok := p.strip(c.Request.URL.Path); !ok {
		c.JSON(http.StatusNotFound, pkg.Response{Code: http.StatusNotFound, Message: "not found"})
		return
	}
	p.rp.ServeHTTP(c.Writer, c.Request)
}

// strip removes the prefix from path. It reports false when path is outside
// the prefix.
func (p *forwarder) strip(path string) (string, bool) {
	if p.prefix == "/" {
		return path, true
	}
	if path == p.prefix {
		return "/", true
	}
	rest, ok := strings.CutPrefix(path, p.prefix+"/")
	if !ok {
		return "", false
	}
	return "/" + rest, true
}

func (p *forwarder) rewrite(target *url.URL) func(*httputil.ProxyRequest) {
	origin := target.Scheme + "://" + target.Host
	return func(pr *httputil.ProxyRequest) {
		path, _ := p.strip(pr.In.URL.Path)
		pr.Out.URL.Path = path
		pr.Out.URL.RawPath = ""
		pr.SetURL(target)
		pr.Out.Header.Set("Origin", origin)
		pr.SetXForwarded()
	}
}

func (p *forwarder) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	p.log.WarnContext(r.Context(), "upstream request failed",
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write([]byte(`{"code":502,"message":"upstream unavailable","data":null}`))
}

// stripUpstreamCORS drops the upstream's CORS headers; the proxy's own CORS
// middleware has already set the ones the browser should see.
func stripUpstreamCORS(resp *http.Response) error {
	for name := range resp.Header {
		if strings.HasPrefix(name, "Access-Control-") {
			resp.Header.Del(name)
		}
	}
	return nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "/api"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if prefix != "/" {
		prefix = strings.TrimRight(prefix, "/")
	}
	return prefix
}
