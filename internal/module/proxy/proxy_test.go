package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/simp-lee/ginx"

	"github.com/simp-lee/dogmatch/internal/pkg"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type seenRequest struct {
	Method string
	Path   string
	Query  string
	Host   string
	Origin string
	Cookie string
}

type upstream struct {
	*httptest.Server
	mu   sync.Mutex
	seen []seenRequest
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.seen = append(u.seen, seenRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Host:   r.Host,
			Origin: r.Header.Get("Origin"),
			Cookie: r.Header.Get("Cookie"),
		})
		u.mu.Unlock()
		w.Header().Set("Access-Control-Allow-Origin", "https://upstream.example")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`["Beagle","Boxer"]`))
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) last(t *testing.T) seenRequest {
	t.Helper()
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.seen) == 0 {
		t.Fatal("upstream saw no request")
	}
	return u.seen[len(u.seen)-1]
}

func (u *upstream) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.seen)
}

// newTestProxy serves the proxy engine over a real listener.
// httputil.ReverseProxy needs a writer that implements CloseNotify, which
// httptest.ResponseRecorder does not.
func newTestProxy(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	engine, err := New(opts)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv
}

type proxyResponse struct {
	Code   int
	Header http.Header
	Body   string
}

func send(t *testing.T, srv *httptest.Server, req *http.Request) proxyResponse {
	t.Helper()
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return proxyResponse{Code: resp.StatusCode, Header: resp.Header, Body: string(body)}
}

func newRequest(t *testing.T, srv *httptest.Server, method, path string, body io.Reader) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	return req
}

func TestProxy_ForwardsWithPrefixStripped(t *testing.T) {
	up := newUpstream(t)
	srv := newTestProxy(t, Options{
		Target: up.URL,
		CORS:   []ginx.Option[ginx.CORSConfig]{ginx.WithAllowOrigins("http://localhost:3000"), ginx.WithAllowCredentials(true)},
	})

	req := newRequest(t, srv, http.MethodGet, "/api/dogs/breeds?size=25", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.AddCookie(&http.Cookie{Name: "fetch-access-token", Value: "tok"})
	w := send(t, srv, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body)
	}
	if w.Body != `["Beagle","Boxer"]` {
		t.Errorf("body = %s", w.Body)
	}

	want := seenRequest{
		Method: http.MethodGet,
		Path:   "/dogs/breeds",
		Query:  "size=25",
		Host:   strings.TrimPrefix(up.URL, "http://"),
		Origin: up.URL,
		Cookie: "fetch-access-token=tok",
	}
	if diff := cmp.Diff(want, up.last(t)); diff != "" {
		t.Errorf("upstream request mismatch (-want +got):\n%s", diff)
	}

	if got := w.Header.Values("Access-Control-Allow-Origin"); !cmp.Equal(got, []string{"http://localhost:3000"}) {
		t.Errorf("Access-Control-Allow-Origin = %q, want only the proxy's value", got)
	}
	if got := w.Header.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Access-Control-Allow-Credentials = %q", got)
	}
}

func TestProxy_PathPrefixes(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		path     string
		wantCode int
		wantPath string
	}{
		{"default prefix", "", "/api/dogs/search", http.StatusOK, "/dogs/search"},
		{"prefix root", "/api", "/api", http.StatusOK, "/"},
		{"custom prefix", "/catalog/", "/catalog/dogs/match", http.StatusOK, "/dogs/match"},
		{"slash prefix", "/", "/locations", http.StatusOK, "/locations"},
		{"outside prefix", "/api", "/apis/dogs", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newUpstream(t)
			srv := newTestProxy(t, Options{Target: up.URL, PathPrefix: tt.prefix})

			w := send(t, srv, newRequest(t, srv, http.MethodPost, tt.path, strings.NewReader(`[]`)))

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				if up.count() != 0 {
					t.Error("request outside the prefix reached the upstream")
				}
				return
			}
			if got := up.last(t).Path; got != tt.wantPath {
				t.Errorf("upstream path = %q, want %q", got, tt.wantPath)
			}
		})
	}
}

func TestProxy_Preflight(t *testing.T) {
	up := newUpstream(t)
	srv := newTestProxy(t, Options{
		Target: up.URL,
		CORS: []ginx.Option[ginx.CORSConfig]{
			ginx.WithAllowOrigins("http://localhost:3000"),
			ginx.WithAllowCredentials(true),
		},
	})

	tests := []struct {
		name     string
		origin   string
		wantCode int
	}{
		{"allowed origin", "http://localhost:3000", http.StatusNoContent},
		{"unknown origin", "https://evil.example", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(t, srv, http.MethodOptions, "/api/dogs/search", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			w := send(t, srv, req)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
	if up.count() != 0 {
		t.Error("preflight requests must be answered by the proxy")
	}
}

func TestProxy_UpstreamDown(t *testing.T) {
	up := newUpstream(t)
	target := up.URL
	up.Close()

	srv := newTestProxy(t, Options{Target: target})
	w := send(t, srv, newRequest(t, srv, http.MethodGet, "/api/dogs/breeds", nil))

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	var resp pkg.Response
	if err := json.Unmarshal([]byte(w.Body), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != http.StatusBadGateway || resp.Message != "upstream unavailable" {
		t.Errorf("response = %+v", resp)
	}
}

func TestProxy_RateLimit(t *testing.T) {
	t.Cleanup(ginx.CleanupRateLimiters)
	up := newUpstream(t)
	srv := newTestProxy(t, Options{Target: up.URL, RPS: 1, Burst: 1})

	codes := make([]int, 0, 2)
	for range 2 {
		w := send(t, srv, newRequest(t, srv, http.MethodGet, "/api/dogs/breeds", nil))
		codes = append(codes, w.Code)
	}
	if diff := cmp.Diff([]int{http.StatusOK, http.StatusTooManyRequests}, codes); diff != "" {
		t.Errorf("status codes mismatch (-want +got):\n%s", diff)
	}
}

func TestNew_RejectsBadTarget(t *testing.T) {
	for _, target := range []string{"", "fetch.com", "ftp://fetch.com", "/relative"} {
		if _, err := New(Options{Target: target}); err == nil {
			t.Errorf("New(%q) error = nil, want error", target)
		}
	}
}
