package search

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/ginx"
	"github.com/simp-lee/jwt"

	"github.com/simp-lee/dogmatch/internal/domain"
	"github.com/simp-lee/dogmatch/internal/middleware"
	"github.com/simp-lee/dogmatch/internal/pkg"
	"github.com/simp-lee/dogmatch/internal/workspace"
)

const testTokenSecret = "search-test-secret-0123456789abcdef"

var testCookie = middleware.SessionCookie{Name: "dogmatch_session"}

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeCatalog is an HTTP stand-in for the dog catalog with two pages of
// results. Only ZIP 10001 resolves to a location.
type fakeCatalog struct {
	srv *httptest.Server

	mu       sync.Mutex
	queries  []url.Values
	failCity   string
	gate       chan struct{}
	matchGate  chan struct{}
	matchCalls int
}

var testDogs = map[string]domain.Dog{
	"d1": {ID: "d1", Name: "Rex", Breed: "Beagle", Age: 3, ZipCode: "10001"},
	"d2": {ID: "d2", Name: "Ace", Breed: "Poodle", Age: 5, ZipCode: "99999"},
	"d3": {ID: "d3", Name: "Bo", Breed: "Beagle", Age: 1, ZipCode: "10001"},
}

func newFakeCatalog(t *testing.T) *fakeCatalog {
	t.Helper()
	f := &fakeCatalog{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "fetch-access-token", Value: "tok", Path: "/"})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("GET /dogs/breeds", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []string{"Beagle", "Poodle"})
	})
	mux.HandleFunc("GET /dogs/search", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.queries = append(f.queries, r.URL.Query())
		gate := f.gate
		f.mu.Unlock()
		if gate != nil {
			<-gate
		}
		switch r.URL.Query().Get("from") {
		case "", "0":
			writeJSON(w, domain.SearchResult{IDs: []string{"d1", "d2"}, Total: 3, Next: "/dogs/search?size=2&from=2"})
		default:
			writeJSON(w, domain.SearchResult{IDs: []string{"d3"}, Total: 3, Prev: "/dogs/search?size=2&from=0"})
		}
	})
	mux.HandleFunc("POST /dogs", func(w http.ResponseWriter, r *http.Request) {
		var ids []string
		_ = json.NewDecoder(r.Body).Decode(&ids)
		dogs := make([]domain.Dog, 0, len(ids))
		for _, id := range ids {
			dogs = append(dogs, testDogs[id])
		}
		writeJSON(w, dogs)
	})
	mux.HandleFunc("POST /locations", func(w http.ResponseWriter, r *http.Request) {
		var zips []string
		_ = json.NewDecoder(r.Body).Decode(&zips)
		out := make([]*domain.Location, 0, len(zips))
		for _, z := range zips {
			if z == "10001" {
				out = append(out, &domain.Location{ZipCode: z, City: "New York", State: "NY"})
			} else {
				out = append(out, nil)
			}
		}
		writeJSON(w, out)
	})
	mux.HandleFunc("POST /locations/search", func(w http.ResponseWriter, r *http.Request) {
		var q domain.LocationQuery
		_ = json.NewDecoder(r.Body).Decode(&q)
		f.mu.Lock()
		fail := f.failCity != "" && q.City == f.failCity
		f.mu.Unlock()
		if fail {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		writeJSON(w, domain.LocationPage{Results: []domain.Location{{ZipCode: "10001"}}, Total: 1})
	})
	mux.HandleFunc("POST /dogs/match", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.matchCalls++
		gate := f.matchGate
		f.mu.Unlock()
		if gate != nil {
			<-gate
		}
		var ids []string
		_ = json.NewDecoder(r.Body).Decode(&ids)
		writeJSON(w, domain.Match{Match: ids[0]})
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCatalog) failLocationSearch(city string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCity = city
}

// holdMatches blocks match requests until the returned channel is closed.
func (f *fakeCatalog) holdMatches() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matchGate = make(chan struct{})
	return f.matchGate
}

func (f *fakeCatalog) matchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.matchCalls
}

// waitForMatchCall fails the test if no match request arrives in time.
func (f *fakeCatalog) waitForMatchCall(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.matchCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the match request")
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *fakeCatalog) lastQuery() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return nil
	}
	return f.queries[len(f.queries)-1]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type testEnv struct {
	catalog *fakeCatalog
	reg     *workspace.Registry
	tokens  jwt.Service
	router  *gin.Engine
}

// newTestEnv wires the search module the way the application does, minus
// CSRF, with a page size of two.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cat := newFakeCatalog(t)
	tokens, err := jwt.New(testTokenSecret, jwt.WithMaxTokenLifetime(time.Hour))
	if err != nil {
		t.Fatalf("jwt.New() error: %v", err)
	}
	reg := workspace.NewRegistry(tokens, nil, time.Hour, workspace.Options{CatalogBaseURL: cat.srv.URL, PageSize: 2})
	t.Cleanup(func() {
		reg.Close()
		tokens.Close()
	})

	r := gin.New()
	r.SetHTMLTemplate(stubTemplates())
	api := r.Group("/api/v1", ginx.NewChain().
		WithErrorFormat(pkg.ErrorFormat).
		Use(ginx.Auth(tokens)).
		Use(middleware.APIWorkspace(reg)).
		Build())
	pages := r.Group("/", middleware.PageWorkspace(reg, testCookie, nil))
	NewModule(NewHandler(), NewPageHandler(), "/").RegisterRoutes(api, pages)

	return &testEnv{catalog: cat, reg: reg, tokens: tokens, router: r}
}

// signIn creates a logged in workspace whose first page has loaded.
func (e *testEnv) signIn(t *testing.T) (*workspace.Workspace, string) {
	t.Helper()
	ws, ticket, err := e.reg.Create(context.Background())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := ws.Login(context.Background(), "Ann", "ann@example.com"); err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	ws.Search.Wait()
	return ws, ticket.Token
}

func stubTemplates() *template.Template {
	const grid = `{{range .Dogs}}{{.ID}}@{{.Location}}{{if .Favorite}}*{{end}}{{if .Matched}}!{{end}};{{end}}`
	return template.Must(template.New("").Parse(
		`{{define "search/index.html"}}index{{if .RefreshMillis}}[loading]{{end}}{{if .Flash}}[{{.Flash}}]{{end}}|` + grid + `{{end}}` +
			`{{define "search/results.html"}}results|` + grid + `{{end}}` +
			`{{define "errors/500.html"}}500{{end}}`,
	))
}
