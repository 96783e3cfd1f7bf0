package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/intelbrief/internal/cache"
	"github.com/TobiSchelling/intelbrief/internal/database"
	"github.com/TobiSchelling/intelbrief/internal/metrics"
	"github.com/TobiSchelling/intelbrief/internal/news"
	"github.com/TobiSchelling/intelbrief/internal/pipeline"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

const historyLimit = 100

// Runner produces and stores a report run. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, periodID string, daysBack int, countries []string, focus string) *pipeline.Result
}

// Options wires optional collaborators into the server.
type Options struct {
	// Runner enables on-demand report generation. Nil hides the form.
	Runner Runner
	// Cache is invalidated when a watched country's aliases change.
	Cache *cache.ReportCache
	// DaysBack is the lookback window for on-demand runs.
	DaysBack int
}

// Server is the HTTP server for serving country reports.
type Server struct {
	db    *database.DB
	opts  Options
	pages map[string]*template.Template
	mux   *http.ServeMux
}

// New creates a new Server.
func New(db *database.DB, opts Options) (*Server, error) {
	if opts.DaysBack <= 0 {
		opts.DaysBack = 1
	}

	funcMap := template.FuncMap{
		"markdown":     renderMarkdown,
		"formatPeriod": database.FormatPeriodDisplay,
		"levelClass":   levelClass,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"join": strings.Join,
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "report.html", "history.html", "watchlist.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, opts: opts, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Pages
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/report/", s.handleReport)
	s.mux.HandleFunc("/history", s.handleHistory)
	s.mux.HandleFunc("/generate", s.handleGenerate)
	s.mux.HandleFunc("/watchlist", s.handleWatchlist)
	s.mux.HandleFunc("/watchlist/add", s.handleAddCountry)
	s.mux.HandleFunc("/watchlist/", s.handleCountryAction)

	// API
	s.mux.HandleFunc("/api/reports/latest", s.handleAPILatest)
	s.mux.HandleFunc("/api/reports", s.handleAPIReports)
	s.mux.Handle("/metrics", metrics.Handler())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	reports, err := s.db.GetLatestReports()
	if err != nil {
		log.Printf("Loading latest reports: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	runs, _ := s.db.GetRuns(1)

	data := map[string]any{
		"Reports":     reports,
		"CanGenerate": s.opts.Runner != nil,
	}
	if len(runs) > 0 {
		data["LastRun"] = runs[0]
	}
	s.render(w, "index.html", data)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/report/"), 10, 64)
	if err != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	report, err := s.db.GetReport(id)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if report == nil {
		http.NotFound(w, r)
		return
	}

	s.render(w, "report.html", map[string]any{
		"Report": report,
		"Themes": sortedThemes(report.Themes),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	filter, err := reportFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if filter.Limit == 0 {
		filter.Limit = historyLimit
	}
	reports, err := s.db.QueryReports(filter)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "history.html", map[string]any{
		"Reports": reports,
		"Country": filter.Country,
		"Level":   r.URL.Query().Get("level"),
		"Levels":  levelNames(),
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || s.opts.Runner == nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	countries := splitList(r.FormValue("countries"))
	focus := strings.TrimSpace(r.FormValue("focus"))

	result := s.opts.Runner.Run(r.Context(), database.GetToday(), s.opts.DaysBack, countries, focus)
	for _, step := range result.Steps {
		if step.Err != nil {
			log.Printf("On-demand run, %s failed: %v", step.Name, step.Err)
		}
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	items, _ := s.db.GetWatchlist()
	s.render(w, "watchlist.html", map[string]any{
		"Countries": items,
	})
}

func (s *Server) handleAddCountry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/watchlist", http.StatusFound)
		return
	}

	country := strings.TrimSpace(r.FormValue("country"))
	focus := strings.TrimSpace(r.FormValue("focus"))
	aliases := splitList(r.FormValue("aliases"))

	if country != "" {
		if _, err := s.db.InsertWatchedCountry(country, focus, aliases); err != nil {
			log.Printf("Adding %s to watchlist: %v", country, err)
		}
		s.invalidate(country)
	}

	http.Redirect(w, r, "/watchlist", http.StatusFound)
}

func (s *Server) handleCountryAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/watchlist", http.StatusFound)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/watchlist/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 {
		http.Redirect(w, r, "/watchlist", http.StatusFound)
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.Redirect(w, r, "/watchlist", http.StatusFound)
		return
	}
	item, err := s.db.GetWatchedCountry(id)
	if err != nil {
		log.Printf("Loading watched country %d: %v", id, err)
	}
	if item == nil {
		http.Redirect(w, r, "/watchlist", http.StatusFound)
		return
	}

	switch parts[1] {
	case "toggle":
		if err := s.db.ToggleWatchedCountry(id); err != nil {
			log.Printf("Toggling %s: %v", item.Country, err)
		}
	case "delete":
		if err := s.db.DeleteWatchedCountry(id); err != nil {
			log.Printf("Removing %s from watchlist: %v", item.Country, err)
			break
		}
		s.invalidate(item.Country)
	case "edit":
		focus := strings.TrimSpace(r.FormValue("focus"))
		if err := s.db.UpdateWatchedCountry(id, &focus, splitList(r.FormValue("aliases"))); err != nil {
			log.Printf("Updating %s: %v", item.Country, err)
			break
		}
		s.invalidate(item.Country)
	}

	http.Redirect(w, r, "/watchlist", http.StatusFound)
}

func (s *Server) invalidate(country string) {
	if s.opts.Cache == nil {
		return
	}
	if n := s.opts.Cache.Invalidate(country); n > 0 {
		log.Printf("Dropped %d cached reports for %s", n, country)
	}
}

func (s *Server) handleAPILatest(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.GetLatestReports()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "loading reports")
		return
	}
	out := make(map[string]*news.Report, len(rows))
	for _, row := range rows {
		out[row.Country] = row.ToNews()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIReports(w http.ResponseWriter, r *http.Request) {
	filter, err := reportFilter(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Limit == 0 {
		filter.Limit = historyLimit
	}
	rows, err := s.db.QueryReports(filter)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "loading reports")
		return
	}
	out := make([]*news.Report, len(rows))
	for i, row := range rows {
		out[i] = row.ToNews()
	}
	writeJSON(w, http.StatusOK, out)
}

// reportFilter reads country, level and limit query parameters.
func reportFilter(r *http.Request) (database.ReportFilter, error) {
	q := r.URL.Query()
	f := database.ReportFilter{
		Country: strings.TrimSpace(q.Get("country")),
		RunID:   q.Get("run"),
	}
	if level := q.Get("level"); level != "" {
		l, err := news.ParseThreatLevel(level)
		if err != nil {
			return f, err
		}
		f.MinLevel = l
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid limit %q", limit)
		}
		f.Limit = n
	}
	return f, nil
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Encoding response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

func levelClass(level string) string {
	return "level-" + strings.ToLower(level)
}

func levelNames() []string {
	names := make([]string, 0, int(news.Critical)+1)
	for l := news.Undetermined; l <= news.Critical; l++ {
		names = append(names, l.String())
	}
	return names
}

type themeCount struct {
	Name  string
	Count int
}

// sortedThemes orders themes by count, then name.
func sortedThemes(themes map[string]int) []themeCount {
	out := make([]themeCount, 0, len(themes))
	for name, n := range themes {
		out = append(out, themeCount{name, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Serve starts the HTTP server on the given port and shuts it down when ctx
// is cancelled.
func Serve(ctx context.Context, db *database.DB, port int, opts Options) error {
	srv, err := New(db, opts)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	log.Printf("Server listening on http://%s", addr)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
