package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/simp-lee/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRequestIDRouter(cfg RequestIDConfig) *gin.Engine {
	r := gin.New()
	r.Use(RequestIDWithConfig(cfg))
	r.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})
	r.GET("/ctx", func(c *gin.Context) {
		c.String(http.StatusOK, findAttrValue(logger.FromContext(c.Request.Context()), "request_id"))
	})
	return r
}

func findAttrValue(attrs []slog.Attr, key string) string {
	for _, a := range attrs {
		if a.Key == key {
			return a.Value.String()
		}
	}
	return ""
}

func TestRequestID_GeneratesUUID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	body := w.Body.String()
	if _, err := uuid.Parse(body); err != nil {
		t.Errorf("request id %q is not a UUID: %v", body, err)
	}
	if got := w.Header().Get(requestIDHeader); got != body {
		t.Errorf("response header %q = %q; want %q", requestIDHeader, got, body)
	}
}

func TestRequestID_UpstreamHeader(t *testing.T) {
	tests := []struct {
		name     string
		trust    bool
		incoming string
		reused   bool
	}{
		{"trusted valid", true, "upstream-id-123", true},
		{"trusted boundary 64", true, strings.Repeat("a", 64), true},
		{"trusted too long", true, strings.Repeat("a", 65), false},
		{"trusted bad charset", true, "bad_id", false},
		{"untrusted valid", false, "upstream-id-123", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRequestIDRouter(RequestIDConfig{TrustUpstream: tt.trust, Generator: func() string { return "generated" }})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set(requestIDHeader, tt.incoming)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			want := "generated"
			if tt.reused {
				want = tt.incoming
			}
			if got := w.Body.String(); got != want {
				t.Errorf("request id = %q; want %q", got, want)
			}
		})
	}
}

func TestRequestID_StoredInGoContext(t *testing.T) {
	r := setupRequestIDRouter(RequestIDConfig{TrustUpstream: true})

	req := httptest.NewRequest(http.MethodGet, "/ctx", nil)
	req.Header.Set(requestIDHeader, "ctx-test-456")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Body.String(); got != "ctx-test-456" {
		t.Errorf("request id in context = %q; want %q", got, "ctx-test-456")
	}
}

func TestRequestID_UniquePerRequest(t *testing.T) {
	r := setupRequestIDRouter(RequestIDConfig{})

	ids := make(map[string]bool)
	for range 100 {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		id := w.Body.String()
		if ids[id] {
			t.Fatalf("duplicate request ID generated: %q", id)
		}
		ids[id] = true
	}
}

func TestGetRequestID_Empty(t *testing.T) {
	r := gin.New()
	r.GET("/no-id", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/no-id", nil))

	if w.Body.String() != "" {
		t.Errorf("expected empty request ID, got %q", w.Body.String())
	}
}
