package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/intelbrief/internal/cache"
	"github.com/TobiSchelling/intelbrief/internal/database"
	"github.com/TobiSchelling/intelbrief/internal/news"
	"github.com/TobiSchelling/intelbrief/internal/pipeline"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestServer(t *testing.T, db *database.DB, opts Options) *Server {
	t.Helper()
	srv, err := New(db, opts)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func do(srv *Server, method, target, form string) *httptest.ResponseRecorder {
	var req *http.Request
	if form != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(form))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func sampleReport(country string, level news.ThreatLevel) *news.Report {
	return &news.Report{
		Country:          country,
		Narrative:        "**Security Developments**\n\nGangs attacked the port.",
		NarrativeOrigin:  news.OriginFallback,
		ExecutiveSummary: "Analysis of 3 reports from 2 sources reveals significant developments in " + country + ".",
		ThreatLevel:      level,
		KeyPoints:        []string{"Gangs attack port"},
		ArticleCount:     3,
		Sources:          []string{"BBC", "DW"},
		Themes:           map[string]int{"security": 2, "political": 1},
		TopCategories:    []string{"conflict"},
		GeneratedAt:      time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC),
	}
}

func seedRun(t *testing.T, db *database.DB, runID string, reports ...*news.Report) {
	t.Helper()
	if err := db.SaveRun(runID, "2026-02-06", "", 10, reports); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
}

func TestIndexRoute(t *testing.T) {
	db := openTestDB(t)
	seedRun(t, db, "run-1", sampleReport("Haiti", news.High))
	srv := newTestServer(t, db, Options{})

	rec := do(srv, "GET", "/", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Country Reports") || !strings.Contains(body, "Haiti") {
		t.Error("expected report listing in response body")
	}
	if !strings.Contains(body, "level-high") {
		t.Error("expected threat level badge")
	}
	if strings.Contains(body, `action="/generate"`) {
		t.Error("generate form should be hidden without a runner")
	}
}

func TestIndexEmpty(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Options{})
	rec := do(srv, "GET", "/", "")
	if !strings.Contains(rec.Body.String(), "No reports yet") {
		t.Error("expected empty state")
	}
}

func TestUnknownPath(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Options{})
	if rec := do(srv, "GET", "/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestReportRoute(t *testing.T) {
	db := openTestDB(t)
	seedRun(t, db, "run-1", sampleReport("Haiti", news.High))
	latest, _ := db.GetLatestReports()
	srv := newTestServer(t, db, Options{})

	rec := do(srv, "GET", fmt.Sprintf("/report/%d", latest[0].ID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<strong>Security Developments</strong>") {
		t.Error("expected narrative rendered as markdown")
	}
	if !strings.Contains(body, "Gangs attack port") {
		t.Error("expected key point")
	}
	if !strings.Contains(body, "security: 2") {
		t.Error("expected theme counts")
	}

	if rec := do(srv, "GET", "/report/999", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown report, got %d", rec.Code)
	}
	if rec := do(srv, "GET", "/report/abc", ""); rec.Code != http.StatusFound {
		t.Errorf("expected redirect for malformed id, got %d", rec.Code)
	}
}

func TestHistoryFilter(t *testing.T) {
	db := openTestDB(t)
	seedRun(t, db, "run-1", sampleReport("Haiti", news.High), sampleReport("Japan", news.Minimal))
	srv := newTestServer(t, db, Options{})

	body := do(srv, "GET", "/history?level=MODERATE", "").Body.String()
	if !strings.Contains(body, "Haiti") || strings.Contains(body, ">Japan<") {
		t.Error("expected only reports at or above MODERATE")
	}

	if rec := do(srv, "GET", "/history?level=SEVERE", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown level, got %d", rec.Code)
	}
}

func TestAPILatest(t *testing.T) {
	db := openTestDB(t)
	seedRun(t, db, "run-1", sampleReport("Haiti", news.Moderate))
	seedRun(t, db, "run-2", sampleReport("Haiti", news.Critical), sampleReport("Sudan", news.High))
	srv := newTestServer(t, db, Options{})

	rec := do(srv, "GET", "/api/reports/latest", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got map[string]*news.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 countries, got %d", len(got))
	}
	if got["Haiti"].ThreatLevel != news.Critical {
		t.Errorf("expected latest Haiti report, got %s", got["Haiti"].ThreatLevel)
	}
}

func TestAPIReports(t *testing.T) {
	db := openTestDB(t)
	seedRun(t, db, "run-1", sampleReport("Haiti", news.Moderate))
	seedRun(t, db, "run-2", sampleReport("Haiti", news.Critical))
	srv := newTestServer(t, db, Options{})

	rec := do(srv, "GET", "/api/reports?country=haiti&limit=1", "")
	var got []*news.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 report, got %d", len(got))
	}

	if rec := do(srv, "GET", "/api/reports?limit=-1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative limit, got %d", rec.Code)
	}
}

func TestWatchlistRoutes(t *testing.T) {
	db := openTestDB(t)
	c := cache.New(8, time.Minute)
	c.Add(cache.Key("Mali", "", nil), sampleReport("Mali", news.Low))
	srv := newTestServer(t, db, Options{Cache: c})

	rec := do(srv, "POST", "/watchlist/add", "country=Mali&aliases=Bamako,+Malian&focus=jihadists")
	if rec.Code != http.StatusFound {
		t.Errorf("expected 302, got %d", rec.Code)
	}
	items, _ := db.GetWatchlist()
	if len(items) != 1 || len(items[0].Aliases) != 2 {
		t.Fatalf("expected Mali with 2 aliases, got %+v", items)
	}
	if c.Len() != 0 {
		t.Error("expected cached Mali report to be invalidated")
	}

	body := do(srv, "GET", "/watchlist", "").Body.String()
	if !strings.Contains(body, "Mali") || !strings.Contains(body, "Bamako") {
		t.Error("expected watched country in page")
	}

	do(srv, "POST", fmt.Sprintf("/watchlist/%d/toggle", items[0].ID), "")
	item, _ := db.GetWatchedCountry(items[0].ID)
	if item.IsActive {
		t.Error("expected country to be paused")
	}

	do(srv, "POST", fmt.Sprintf("/watchlist/%d/delete", items[0].ID), "")
	if item, _ := db.GetWatchedCountry(items[0].ID); item != nil {
		t.Error("expected country to be removed")
	}
}

func TestWatchlistEdit(t *testing.T) {
	db := openTestDB(t)
	id, err := db.InsertWatchedCountry("Chad", "", nil)
	if err != nil {
		t.Fatalf("InsertWatchedCountry: %v", err)
	}
	c := cache.New(8, time.Minute)
	c.Add(cache.Key("Chad", "", nil), sampleReport("Chad", news.Low))
	srv := newTestServer(t, db, Options{Cache: c})

	rec := do(srv, "POST", fmt.Sprintf("/watchlist/%d/edit", id), "focus=refugee+camps&aliases=N%27Djamena")
	if rec.Code != http.StatusFound {
		t.Errorf("expected 302, got %d", rec.Code)
	}
	item, _ := db.GetWatchedCountry(id)
	if item.Focus == nil || *item.Focus != "refugee camps" {
		t.Errorf("expected updated focus, got %v", item.Focus)
	}
	if len(item.Aliases) != 1 || item.Aliases[0] != "N'Djamena" {
		t.Errorf("expected updated aliases, got %v", item.Aliases)
	}
	if c.Len() != 0 {
		t.Error("expected cached Chad report to be invalidated")
	}
}

func TestWatchlistActionStoreFailure(t *testing.T) {
	db := openTestDB(t)
	id, err := db.InsertWatchedCountry("Chad", "", nil)
	if err != nil {
		t.Fatalf("InsertWatchedCountry: %v", err)
	}
	srv := newTestServer(t, db, Options{})

	if rec := do(srv, "POST", "/watchlist/999/toggle", ""); rec.Code != http.StatusFound {
		t.Errorf("unknown id: expected 302, got %d", rec.Code)
	}

	db.Close()
	for _, action := range []string{"toggle", "delete", "edit"} {
		rec := do(srv, "POST", fmt.Sprintf("/watchlist/%d/%s", id, action), "focus=x")
		if rec.Code != http.StatusFound {
			t.Errorf("%s on closed store: expected 302, got %d", action, rec.Code)
		}
	}
}

type fakeRunner struct {
	countries []string
	focus     string
}

func (f *fakeRunner) Run(_ context.Context, periodID string, _ int, countries []string, focus string) *pipeline.Result {
	f.countries = countries
	f.focus = focus
	return &pipeline.Result{PeriodID: periodID}
}

func TestGenerateRoute(t *testing.T) {
	runner := &fakeRunner{}
	srv := newTestServer(t, openTestDB(t), Options{Runner: runner})

	if !strings.Contains(do(srv, "GET", "/", "").Body.String(), `action="/generate"`) {
		t.Error("expected generate form with a runner")
	}

	rec := do(srv, "POST", "/generate", "countries=Haiti,+Sudan&focus=gangs")
	if rec.Code != http.StatusFound {
		t.Errorf("expected 302, got %d", rec.Code)
	}
	if strings.Join(runner.countries, "|") != "Haiti|Sudan" || runner.focus != "gangs" {
		t.Errorf("unexpected runner input %v %q", runner.countries, runner.focus)
	}
}

func TestMetricsRoute(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Options{})
	rec := do(srv, "GET", "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("expected Prometheus exposition")
	}
}

func TestStaticRoute(t *testing.T) {
	srv := newTestServer(t, openTestDB(t), Options{})

	rec := do(srv, "GET", "/static/style.css", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "font-sans") {
		t.Error("expected CSS content")
	}
}
