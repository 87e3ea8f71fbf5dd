package auth

import (
	"encoding/json"
	"html/template"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/jwt"

	"github.com/simp-lee/dogmatch/internal/workspace"
)

const (
	testTokenSecret = "auth-test-secret-0123456789abcdefgh"
	rejectedEmail   = "nobody@example.com"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newFakeCatalog serves the catalog endpoints a login touches. Logins with
// rejectedEmail get a 401.
func newFakeCatalog(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Email == rejectedEmail {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "fetch-access-token", Value: "tok", Path: "/"})
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /dogs/search", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"resultIds":[],"total":0}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRegistry(t *testing.T) (*workspace.Registry, jwt.Service) {
	t.Helper()
	tokens, err := jwt.New(testTokenSecret, jwt.WithMaxTokenLifetime(time.Hour))
	if err != nil {
		t.Fatalf("jwt.New() error: %v", err)
	}
	catalog := newFakeCatalog(t)
	reg := workspace.NewRegistry(tokens, nil, time.Hour, workspace.Options{CatalogBaseURL: catalog.URL})
	t.Cleanup(func() {
		reg.Close()
		tokens.Close()
	})
	return reg, tokens
}

func stubTemplates() *template.Template {
	return template.Must(template.New("").Parse(
		`{{define "auth/login.html"}}login{{if .Error}}:{{.Error}}{{end}}{{end}}` +
			`{{define "errors/500.html"}}500{{end}}`,
	))
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
