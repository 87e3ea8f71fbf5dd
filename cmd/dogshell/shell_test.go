package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/simp-lee/dogmatch/internal/domain"
	"github.com/simp-lee/dogmatch/internal/session"
	"github.com/simp-lee/dogmatch/internal/workspace"
)

var testDogs = []domain.Dog{
	{ID: "d1", Name: "Rex", Breed: "Boxer", Age: 3, ZipCode: "10001"},
	{ID: "d2", Name: "Bella", Breed: "Beagle", Age: 1, ZipCode: "10001"},
}

// fakeCatalog serves two dogs and records the search queries it saw.
type fakeCatalog struct {
	*httptest.Server
	mu       sync.Mutex
	searches []string
	matched  []string
}

func newFakeCatalog(t *testing.T) *fakeCatalog {
	t.Helper()
	fc := &fakeCatalog{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "fetch-access-token", Value: "tok", Path: "/"})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("GET /dogs/breeds", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]string{"Beagle", "Boxer"})
	})
	mux.HandleFunc("GET /dogs/search", func(w http.ResponseWriter, r *http.Request) {
		fc.mu.Lock()
		fc.searches = append(fc.searches, r.URL.Query().Encode())
		fc.mu.Unlock()
		_ = json.NewEncoder(w).Encode(domain.SearchResult{IDs: []string{"d1", "d2"}, Total: 2})
	})
	mux.HandleFunc("POST /dogs", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(testDogs)
	})
	mux.HandleFunc("POST /locations", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]domain.Location{{ZipCode: "10001", City: "New York", State: "NY"}})
	})
	mux.HandleFunc("POST /dogs/match", func(w http.ResponseWriter, r *http.Request) {
		var ids []string
		_ = json.NewDecoder(r.Body).Decode(&ids)
		fc.mu.Lock()
		fc.matched = ids
		fc.mu.Unlock()
		_ = json.NewEncoder(w).Encode(domain.Match{Match: ids[0]})
	})
	fc.Server = httptest.NewServer(mux)
	t.Cleanup(fc.Close)
	return fc
}

func (fc *fakeCatalog) lastSearch() string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.searches) == 0 {
		return ""
	}
	return fc.searches[len(fc.searches)-1]
}

func newTestShell(t *testing.T, fc *fakeCatalog, store session.Store) (*shell, *bytes.Buffer) {
	t.Helper()
	ws, err := workspace.Open(context.Background(), shellWorkspaceID, store, workspace.Options{
		CatalogBaseURL: fc.URL,
		CatalogTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("workspace.Open() error: %v", err)
	}
	t.Cleanup(ws.Close)
	var out bytes.Buffer
	return newShell(ws, &out), &out
}

// runLines executes each line and returns the output of the last one.
func runLines(t *testing.T, sh *shell, out *bytes.Buffer, lines ...string) string {
	t.Helper()
	for _, line := range lines {
		out.Reset()
		if sh.exec(context.Background(), line) {
			t.Fatalf("%q ended the shell", line)
		}
	}
	return out.String()
}

func TestShell_RequiresLogin(t *testing.T) {
	fc := newFakeCatalog(t)
	sh, out := newTestShell(t, fc, session.NewMemoryStore())

	for _, line := range []string{"breeds", "show", "apply", "match"} {
		got := runLines(t, sh, out, line)
		if !strings.Contains(got, "Not logged in") {
			t.Errorf("%s output = %q, want a login prompt", line, got)
		}
	}
}

func TestShell_LoginShowsFirstPage(t *testing.T) {
	fc := newFakeCatalog(t)
	sh, out := newTestShell(t, fc, session.NewMemoryStore())

	got := runLines(t, sh, out, "login ann@example.com Ann Lee")
	for _, want := range []string{"Welcome, Ann Lee.", "2 dogs", "Rex", "Bella"} {
		if !strings.Contains(got, want) {
			t.Errorf("login output missing %q:\n%s", want, got)
		}
	}
}

func TestShell_StageAndApply(t *testing.T) {
	fc := newFakeCatalog(t)
	sh, out := newTestShell(t, fc, session.NewMemoryStore())
	runLines(t, sh, out, "login ann@example.com Ann")

	got := runLines(t, sh, out, "breed Boxer")
	if !strings.Contains(got, "Staged") {
		t.Errorf("breed output = %q", got)
	}
	runLines(t, sh, out, "age 2 -", "sort age desc")
	if strings.Contains(fc.lastSearch(), "Boxer") {
		t.Fatal("staged filters must not search before apply")
	}

	runLines(t, sh, out, "apply")
	q := fc.lastSearch()
	for _, want := range []string{"breeds=Boxer", "ageMin=2", "sort=age%3Adesc"} {
		if !strings.Contains(q, want) {
			t.Errorf("search query %q missing %q", q, want)
		}
	}
	if strings.Contains(q, "ageMax") {
		t.Errorf("search query %q should not carry ageMax", q)
	}
}

func TestShell_FavoritesAndMatch(t *testing.T) {
	fc := newFakeCatalog(t)
	sh, out := newTestShell(t, fc, session.NewMemoryStore())
	runLines(t, sh, out, "login ann@example.com Ann")

	if got := runLines(t, sh, out, "match"); !strings.Contains(got, "Please add some favorite dogs first!") {
		t.Errorf("match without favorites = %q", got)
	}

	if got := runLines(t, sh, out, "fav 2"); !strings.Contains(got, "Added Bella the Beagle") {
		t.Errorf("fav output = %q", got)
	}
	if got := runLines(t, sh, out, "fav 9"); !strings.Contains(got, "No dog number 9") {
		t.Errorf("fav out of range = %q", got)
	}

	got := runLines(t, sh, out, "match")
	if !strings.Contains(got, "You have a match! Bella the Beagle") {
		t.Errorf("match output = %q", got)
	}
	fc.mu.Lock()
	matched := fc.matched
	fc.mu.Unlock()
	if diff := cmp.Diff([]string{"d2"}, matched); diff != "" {
		t.Errorf("match request mismatch (-want +got):\n%s", diff)
	}

	if got := runLines(t, sh, out, "show"); !strings.Contains(got, "! ") {
		t.Errorf("show should mark the match:\n%s", got)
	}
}

func TestShell_SessionSurvivesRestart(t *testing.T) {
	fc := newFakeCatalog(t)
	store := session.NewFileStore(t.TempDir() + "/session.json")

	sh, out := newTestShell(t, fc, store)
	runLines(t, sh, out, "login ann@example.com Ann")

	reopened, out2 := newTestShell(t, fc, store)
	if got := runLines(t, reopened, out2, "breeds"); !strings.Contains(got, "Beagle, Boxer") {
		t.Errorf("breeds after restart = %q", got)
	}

	runLines(t, reopened, out2, "logout")
	third, out3 := newTestShell(t, fc, store)
	if got := runLines(t, third, out3, "breeds"); !strings.Contains(got, "Not logged in") {
		t.Errorf("breeds after logout = %q", got)
	}
}

func TestShell_ArgumentErrors(t *testing.T) {
	fc := newFakeCatalog(t)
	sh, out := newTestShell(t, fc, session.NewMemoryStore())
	runLines(t, sh, out, "login ann@example.com Ann")

	tests := []struct {
		line string
		want string
	}{
		{"login ann@example.com", "Usage: login"},
		{"age x", `invalid age "x"`},
		{"sort size", "Usage: sort"},
		{"fav", "Usage: fav"},
		{"dance", `Unknown command "dance"`},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := runLines(t, sh, out, tt.line); !strings.Contains(got, tt.want) {
				t.Errorf("output = %q, want contains %q", got, tt.want)
			}
		})
	}
}

func TestShell_Quit(t *testing.T) {
	fc := newFakeCatalog(t)
	sh, _ := newTestShell(t, fc, session.NewMemoryStore())
	for _, line := range []string{"quit", "exit", "q"} {
		if !sh.exec(context.Background(), line) {
			t.Errorf("%q did not end the shell", line)
		}
	}
}

func TestCompleter(t *testing.T) {
	if diff := cmp.Diff([]string{"match"}, completer("ma")); diff != "" {
		t.Errorf("completer mismatch (-want +got):\n%s", diff)
	}
	if got := completer("zz"); len(got) != 0 {
		t.Errorf("completer(zz) = %v, want none", got)
	}
}
