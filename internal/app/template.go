package app

import (
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin/render"
)

const (
	templateRoot    = "templates"
	htmlContentType = "text/html; charset=utf-8"
)

// sharedDirs hold templates every page can call: the layout and partials.
var sharedDirs = []string{"layouts", "partials"}

// TemplateRenderer renders the pages under templates/. Each page is parsed
// on top of its own copy of the layouts and partials, so pages may redefine
// the same blocks. In debug mode the set is rebuilt for every render so
// edits on disk show up without a restart.
type TemplateRenderer struct {
	fsys  fs.FS
	funcs template.FuncMap
	debug bool
	pages map[string]*template.Template // nil in debug mode
}

var _ render.HTMLRender = (*TemplateRenderer)(nil)

// NewTemplateRenderer loads templates from fsys, which must contain a
// templates/ directory. Page names are paths relative to it, such as
// "search/index.html".
func NewTemplateRenderer(fsys fs.FS, debug bool) (*TemplateRenderer, error) {
	r := &TemplateRenderer{fsys: fsys, funcs: templateFuncs(), debug: debug}
	if debug {
		return r, nil
	}
	pages, err := r.load()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	r.pages = pages
	return r, nil
}

// Instance implements render.HTMLRender.
func (r *TemplateRenderer) Instance(name string, data any) render.Render {
	pages := r.pages
	if r.debug {
		var err error
		if pages, err = r.load(); err != nil {
			return &HTMLInstance{Name: name, err: err}
		}
	}
	return &HTMLInstance{Template: pages[name], Name: name, Data: data}
}

func (r *TemplateRenderer) load() (map[string]*template.Template, error) {
	shared := template.New("").Funcs(r.funcs)
	for _, dir := range sharedDirs {
		files, err := fs.Glob(r.fsys, path.Join(templateRoot, dir, "*.html"))
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			if err := parseInto(r.fsys, shared, file, file); err != nil {
				return nil, err
			}
		}
	}

	files, err := r.pageFiles()
	if err != nil {
		return nil, err
	}
	pages := make(map[string]*template.Template, len(files))
	for _, file := range files {
		page, err := shared.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone for %s: %w", file, err)
		}
		name := strings.TrimPrefix(file, templateRoot+"/")
		if err := parseInto(r.fsys, page, name, file); err != nil {
			return nil, err
		}
		pages[name] = page
	}
	return pages, nil
}

// pageFiles lists every .html file under templates/ outside the shared
// directories.
func (r *TemplateRenderer) pageFiles() ([]string, error) {
	var files []string
	err := fs.WalkDir(r.fsys, templateRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != templateRoot && isSharedDir(strings.TrimPrefix(p, templateRoot+"/")) {
				return fs.SkipDir
			}
			return nil
		}
		if path.Ext(p) == ".html" {
			files = append(files, p)
		}
		return nil
	})
	return files, err
}

func isSharedDir(rel string) bool {
	for _, dir := range sharedDirs {
		if rel == dir {
			return true
		}
	}
	return false
}

func parseInto(fsys fs.FS, set *template.Template, name, file string) error {
	src, err := fs.ReadFile(fsys, file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	if _, err := set.New(name).Parse(string(src)); err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}
	return nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		// deref prints an optional age bound, or nothing when unset.
		"deref": func(p *int) string {
			if p == nil {
				return ""
			}
			return strconv.Itoa(*p)
		},
		"years": func(age int) string {
			if age == 1 {
				return "1 year"
			}
			return strconv.Itoa(age) + " years"
		},
		"join": strings.Join,
	}
}

// HTMLInstance executes one page.
type HTMLInstance struct {
	Template *template.Template
	Name     string
	Data     any
	err      error // load failure in debug mode
}

func (h *HTMLInstance) Render(w http.ResponseWriter) error {
	h.WriteContentType(w)
	switch {
	case h.err != nil:
		return h.err
	case h.Template == nil:
		return fmt.Errorf("template %q not found", h.Name)
	}
	return h.Template.ExecuteTemplate(w, h.Name, h.Data)
}

func (h *HTMLInstance) WriteContentType(w http.ResponseWriter) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", htmlContentType)
	}
}
