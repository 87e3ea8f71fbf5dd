package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/simp-lee/dogmatch/internal/domain"
	"github.com/simp-lee/dogmatch/internal/pkg"
	"github.com/simp-lee/dogmatch/internal/search"
	"github.com/simp-lee/dogmatch/internal/workspace"
)

var commands = []string{
	"login", "logout", "breeds", "breed", "zip", "age", "sort", "city", "states",
	"apply", "show", "next", "prev", "fav", "match", "reset", "wait", "help", "quit",
}

// shell runs commands against one workspace and writes their output to out.
type shell struct {
	ws  *workspace.Workspace
	out io.Writer
}

func newShell(ws *workspace.Workspace, out io.Writer) *shell {
	return &shell{ws: ws, out: out}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".dogshell_history")
}

// run reads commands until quit, EOF or Ctrl-C.
func (s *shell) run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(completer)

	if f, err := os.Open(historyFile()); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer saveHistory(line)

	fmt.Fprintln(s.out, "dogshell - type 'help' for commands.")
	if s.ws.Authenticated(ctx) {
		fmt.Fprintln(s.out, "Session restored.")
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		input, err := line.Prompt("dogs> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out, "Bye!")
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if s.exec(ctx, input) {
			fmt.Fprintln(s.out, "Bye!")
			return nil
		}
	}
}

func saveHistory(line *liner.State) {
	path := historyFile()
	if path == "" {
		return
	}
	if f, err := os.Create(path); err == nil {
		line.WriteHistory(f)
		f.Close()
	}
}

func completer(line string) []string {
	var out []string
	for _, c := range commands {
		if strings.HasPrefix(c, strings.ToLower(line)) {
			out = append(out, c)
		}
	}
	return out
}

// exec runs one command line. It reports true when the shell should exit.
func (s *shell) exec(ctx context.Context, input string) bool {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		s.printHelp()
		return false
	case "login":
		s.login(ctx, args)
		return false
	}

	if !s.ws.Authenticated(ctx) {
		fmt.Fprintln(s.out, "Not logged in. Use: login <email> <name>")
		return false
	}

	ctrl := s.ws.Search
	switch cmd {
	case "logout":
		if err := s.ws.Logout(ctx); err != nil {
			s.fail(err)
			return false
		}
		fmt.Fprintln(s.out, "Logged out.")
	case "breeds":
		breeds, err := ctrl.Breeds(ctx)
		if err != nil {
			s.fail(err)
			return false
		}
		fmt.Fprintln(s.out, strings.Join(breeds, ", "))
	case "breed":
		s.stage(func(f *search.StagedFilters) { f.Breed = strings.Join(args, " ") })
	case "zip":
		s.stage(func(f *search.StagedFilters) { f.ZipCode = optionalArg(args) })
	case "city":
		s.stage(func(f *search.StagedFilters) { f.City = strings.Join(args, " ") })
	case "states":
		s.stage(func(f *search.StagedFilters) { f.States = strings.Join(args, " ") })
	case "age":
		s.age(args)
	case "sort":
		s.sort(args)
	case "apply":
		if err := ctrl.Apply(ctx); err != nil {
			s.fail(err)
			return false
		}
		ctrl.Wait()
		s.show()
	case "show":
		s.show()
	case "wait":
		ctrl.Wait()
		s.show()
	case "next":
		if !ctrl.NextPage() {
			fmt.Fprintln(s.out, "No next page.")
			return false
		}
		ctrl.Wait()
		s.show()
	case "prev":
		if !ctrl.PrevPage() {
			fmt.Fprintln(s.out, "No previous page.")
			return false
		}
		ctrl.Wait()
		s.show()
	case "fav":
		s.fav(args)
	case "match":
		id, err := ctrl.GenerateMatch(ctx)
		if err != nil {
			s.fail(err)
			return false
		}
		fmt.Fprintf(s.out, "You have a match! %s\n", s.describe(id))
	case "reset":
		ctrl.ResetMatch()
		fmt.Fprintln(s.out, "Favorites and match cleared.")
	default:
		fmt.Fprintf(s.out, "Unknown command %q. Type 'help'.\n", cmd)
	}
	return false
}

func (s *shell) login(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.out, "Usage: login <email> <name>")
		return
	}
	email, name := args[0], strings.Join(args[1:], " ")
	if err := s.ws.Login(ctx, name, email); err != nil {
		s.fail(err)
		return
	}
	s.ws.Search.Wait()
	fmt.Fprintf(s.out, "Welcome, %s.\n", name)
	s.show()
}

// stage edits the staged filters. They take effect on apply.
func (s *shell) stage(edit func(*search.StagedFilters)) {
	f := s.ws.Search.Staged()
	edit(&f)
	s.ws.Search.Stage(f)
	fmt.Fprintln(s.out, "Staged. Run 'apply' to search.")
}

func (s *shell) age(args []string) {
	var lo, hi *int
	var err error
	if len(args) > 0 {
		if lo, err = parseAge(args[0]); err != nil {
			fmt.Fprintln(s.out, err)
			return
		}
	}
	if len(args) > 1 {
		if hi, err = parseAge(args[1]); err != nil {
			fmt.Fprintln(s.out, err)
			return
		}
	}
	s.stage(func(f *search.StagedFilters) { f.AgeMin, f.AgeMax = lo, hi })
}

func (s *shell) sort(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "Usage: sort <breed|name|age> [asc|desc]")
		return
	}
	field := domain.SortField(strings.ToLower(args[0]))
	order := domain.Ascending
	if len(args) > 1 {
		order = domain.SortOrder(strings.ToLower(args[1]))
	}
	if !field.Valid() || !order.Valid() {
		fmt.Fprintln(s.out, "Usage: sort <breed|name|age> [asc|desc]")
		return
	}
	s.stage(func(f *search.StagedFilters) { f.Sort, f.Order = field, order })
}

// fav toggles a dog by its position on the current page or by id.
func (s *shell) fav(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: fav <number|id>")
		return
	}
	id := args[0]
	snap := s.ws.Search.Snapshot()
	if n, err := strconv.Atoi(id); err == nil {
		if n < 1 || n > len(snap.Dogs) {
			fmt.Fprintf(s.out, "No dog number %d on this page.\n", n)
			return
		}
		id = snap.Dogs[n-1].ID
	}
	if s.ws.Search.ToggleFavorite(id) {
		fmt.Fprintf(s.out, "Added %s to favorites.\n", s.describe(id))
	} else {
		fmt.Fprintf(s.out, "Removed %s from favorites.\n", s.describe(id))
	}
}

func (s *shell) show() {
	snap := s.ws.Search.Snapshot()
	if snap.Err != nil {
		s.fail(snap.Err)
	}
	if snap.Loading {
		fmt.Fprintln(s.out, "Loading...")
		return
	}
	if len(snap.Dogs) == 0 {
		fmt.Fprintln(s.out, "No dogs match these filters.")
		return
	}
	fmt.Fprintf(s.out, "%d dogs, %d favorites\n", snap.Total, len(snap.Favorites))
	for i, d := range snap.Dogs {
		mark := " "
		switch {
		case snap.Match == d.ID:
			mark = "!"
		case snap.IsFavorite(d.ID):
			mark = "*"
		}
		fmt.Fprintf(s.out, "%s %2d. %-12s %-24s %2d  %s\n", mark, i+1, d.Name, d.Breed, d.Age, snap.LocationLabel(d.ZipCode))
	}
	var nav []string
	if snap.HasPrev {
		nav = append(nav, "prev")
	}
	if snap.HasNext {
		nav = append(nav, "next")
	}
	if len(nav) > 0 {
		fmt.Fprintf(s.out, "(%s)\n", strings.Join(nav, " | "))
	}
}

// describe names a dog on the current page, or falls back to its id.
func (s *shell) describe(id string) string {
	for _, d := range s.ws.Search.Snapshot().Dogs {
		if d.ID == id {
			return fmt.Sprintf("%s the %s", d.Name, d.Breed)
		}
	}
	return id
}

func (s *shell) fail(err error) {
	fmt.Fprintf(s.out, "Error: %s\n", pkg.SafeMessage(err, err.Error()))
}

func (s *shell) printHelp() {
	fmt.Fprint(s.out, `Commands:
  login <email> <name>       Sign in to the catalog
  logout                     Sign out
  breeds                     List every breed
  breed [name]               Stage a breed filter (empty for all)
  zip [code]                 Stage a ZIP code filter
  age [min|-] [max|-]        Stage an age range
  sort <field> [asc|desc]    Stage the sort (breed, name or age)
  city [name]                Stage a city filter
  states [TX,CA]             Stage a state filter
  apply                      Search with the staged filters
  show                       Show the current page
  next / prev                Move between pages
  fav <number|id>            Toggle a favorite
  match                      Pick a match among the favorites
  reset                      Clear favorites and match
  wait                       Wait for background loads
  help                       Show this help
  quit                       Exit
`)
}

// optionalArg returns the first argument, or "" when none or "-" is given.
func optionalArg(args []string) string {
	if len(args) == 0 || args[0] == "-" {
		return ""
	}
	return args[0]
}

func parseAge(s string) (*int, error) {
	if s == "-" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("invalid age %q", s)
	}
	return &n, nil
}
