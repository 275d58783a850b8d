package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/csrf"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"courtadmin/internal/adapters/http/middleware"
	"courtadmin/internal/adapters/http/perf"
	"courtadmin/internal/domain/booking"
	"courtadmin/internal/domain/export"
)

//go:embed templates/*.html static/*
var assets embed.FS

// mdRenderer is a goldmark instance configured for safe HTML output.
// Raw HTML in booking notes is omitted (no WithUnsafe).
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// standalone pages render without the console layout.
var standalone = map[string]bool{"print.html": true}

// baseFuncs are replaced per request in renderTemplate; they exist so parsing succeeds.
var baseFuncs = template.FuncMap{
	"currentEmail":   func() string { return "" },
	"isLoggedIn":     func() bool { return false },
	"csrfField":      func() template.HTML { return "" },
	"isOnline":       func() bool { return true },
	"money":          func(float64) string { return "" },
	"when":           func(time.Time) string { return "" },
	"day":            func(booking.Booking) string { return "" },
	"clock":          func(booking.Booking) string { return "" },
	"renderMarkdown": renderMarkdown,
	"statusLabel":    booking.DisplayStatus,
	"add":            func(a, b int) int { return a + b },
	"sub":            func(a, b int) int { return a - b },
	"percent":        func(f float64) float64 { return f * 100 },
	"statTable": func(title string, rows []perf.PathStat) statTable {
		return statTable{Title: title, Rows: rows}
	},
}

type statTable struct {
	Title string
	Rows  []perf.PathStat
}

var pages = parsePages(
	"login.html", "dashboard.html", "history.html", "print.html", "perf.html",
)

func parsePages(names ...string) map[string]*template.Template {
	out := make(map[string]*template.Template, len(names))
	for _, name := range names {
		if standalone[name] {
			out[name] = template.Must(template.New(name).Funcs(baseFuncs).ParseFS(assets, "templates/"+name))
			continue
		}
		out[name] = template.Must(template.New("layout.html").Funcs(baseFuncs).
			ParseFS(assets, "templates/layout.html", "templates/"+name))
	}
	return out
}

func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func newID() string {
	return uuid.NewString()
}

// renderTemplate executes a page with status 200.
func (s *server) renderTemplate(w http.ResponseWriter, r *http.Request, name string, data any) {
	s.renderStatus(w, r, http.StatusOK, name, data)
}

// renderStatus executes a page with the request's session, CSRF token and formatting helpers.
// The page is rendered to a buffer first so template errors never produce half a response.
func (s *server) renderStatus(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	base, ok := pages[name]
	if !ok {
		internalError(w, fmt.Errorf("unknown template %q", name))
		return
	}
	tpl, err := base.Clone()
	if err != nil {
		internalError(w, err)
		return
	}

	sess, loggedIn := middleware.GetSessionFromContext(r.Context())
	loc := s.location()
	tpl.Funcs(template.FuncMap{
		"currentEmail": func() string { return sess.Email },
		"isLoggedIn":   func() bool { return loggedIn },
		"csrfField":    func() template.HTML { return csrf.TemplateField(r) },
		"isOnline":     func() bool { return s.deps.Network == nil || s.deps.Network.Online() },
		"money":        func(v float64) string { return export.FormatMoney(v, s.deps.Currency) },
		"when": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.In(loc).Format("02 Jan 2006 15:04")
		},
		"day": func(b booking.Booking) string { return b.Day(loc) },
		"clock": func(b booking.Booking) string {
			if b.Start.IsZero() {
				return ""
			}
			return b.Start.In(loc).Format("15:04")
		},
	})

	root := "layout.html"
	if standalone[name] {
		root = name
	}
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, root, data); err != nil {
		internalError(w, fmt.Errorf("render %s: %w", name, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
