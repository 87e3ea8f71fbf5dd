package pkg

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"

	"github.com/simp-lee/dogmatch/internal/domain"
)

func TestToast(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	Toast(c, "No match found!", "error")

	var got map[string]map[string]string
	if err := json.Unmarshal([]byte(w.Header().Get("HX-Trigger")), &got); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}
	want := map[string]map[string]string{
		"showToast": {"message": "No match found!", "type": "error"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("HX-Trigger mismatch (-want +got):\n%s", diff)
	}
}

func TestRedirect(t *testing.T) {
	tests := []struct {
		name       string
		htmx       bool
		wantStatus int
		wantHeader string
	}{
		{"browser", false, http.StatusSeeOther, "Location"},
		{"htmx", true, http.StatusOK, "HX-Redirect"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.POST("/login", func(c *gin.Context) { Redirect(c, "/search") })

			req := httptest.NewRequest(http.MethodPost, "/login", nil)
			if tt.htmx {
				req.Header.Set("HX-Request", "true")
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get(tt.wantHeader); got != "/search" {
				t.Errorf("%s = %q, want /search", tt.wantHeader, got)
			}
		})
	}
}

func TestSafeMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", domain.NewAppError(domain.CodeValidation, "Please add some favorite dogs first!", nil), "Please add some favorite dogs first!"},
		{"not found", domain.NewAppError(domain.CodeNotFound, "No match found!", nil), "No match found!"},
		{"upstream hidden", domain.NewAppError(domain.CodeUpstream, "catalog returned 502", nil), "fallback"},
		{"plain error", errors.New("dial tcp: refused"), "fallback"},
		{"nil", nil, "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeMessage(tt.err, "fallback"); got != tt.want {
				t.Errorf("SafeMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFlash_RoundTrip(t *testing.T) {
	r := gin.New()
	r.POST("/set", func(c *gin.Context) {
		SetFlash(c, "Please add some favorite dogs first!")
		c.Status(http.StatusNoContent)
	})
	r.GET("/take", func(c *gin.Context) {
		c.String(http.StatusOK, TakeFlash(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/set", nil))
	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one flash cookie, got %d", len(cookies))
	}

	req := httptest.NewRequest(http.MethodGet, "/take", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Body.String(); got != "Please add some favorite dogs first!" {
		t.Errorf("TakeFlash() = %q", got)
	}
	cleared := w.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Errorf("expected the flash cookie to be cleared, got %+v", cleared)
	}
}

func TestTakeFlash_Empty(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if got := TakeFlash(c); got != "" {
		t.Errorf("TakeFlash() = %q, want empty", got)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("no cookie should be written without a flash")
	}
}
