package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TobiSchelling/intelbrief/internal/cache"
	"github.com/TobiSchelling/intelbrief/internal/config"
	"github.com/TobiSchelling/intelbrief/internal/database"
	"github.com/TobiSchelling/intelbrief/internal/news"
)

type mockProvider struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	prompts  []string
}

func (m *mockProvider) Generate(_ context.Context, prompt string, _ int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	return m.response, m.err
}

func (m *mockProvider) IsConfigured() bool { return true }

func (m *mockProvider) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var fixedNow = func() time.Time { return time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC) }

func haitiArticles() []*news.Article {
	return []*news.Article{
		{Title: "Gang violence in Haiti leaves 12 killed", Link: "https://example.com/1", Source: "BBC"},
		{Title: "Haiti prepares for delayed election", Link: "https://example.com/2", Source: "DW"},
		{Title: "Aid convoys reach Haiti hospitals", Link: "https://example.com/3", Source: "Reuters", Summary: "Supplies arrive by road."},
	}
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Now == nil {
		opts.Now = fixedNow
	}
	e, err := NewEngine(opts)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestSynthesizeFallbackWithoutModel(t *testing.T) {
	reports, err := Synthesize(context.Background(), []string{"Haiti"}, haitiArticles(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := reports["Haiti"]
	if r == nil {
		t.Fatal("expected a Haiti report")
	}
	if r.NarrativeOrigin != news.OriginFallback {
		t.Errorf("expected fallback narrative, got %s", r.NarrativeOrigin)
	}
	if r.Narrative == "" || !strings.Contains(r.Narrative, "Haiti") || !strings.Contains(r.Narrative, "3") {
		t.Errorf("fallback narrative should name the country and article count, got %q", r.Narrative)
	}
	if r.ArticleCount != 3 {
		t.Errorf("expected 3 articles, got %d", r.ArticleCount)
	}
	if len(r.Sources) != 3 {
		t.Errorf("expected 3 sources, got %v", r.Sources)
	}
	if r.ExecutiveSummary == "" {
		t.Error("expected an executive summary")
	}
}

func TestSynthesizeEmptyCountryList(t *testing.T) {
	reports, err := Synthesize(context.Background(), nil, haitiArticles(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) != 0 {
		t.Errorf("expected no reports, got %d", len(reports))
	}
}

func TestSynthesizeRejectsMalformedCountries(t *testing.T) {
	for _, countries := range [][]string{
		{"Haiti", "  "},
		{"Haiti", "haiti"},
	} {
		if _, err := Synthesize(context.Background(), countries, haitiArticles(), ""); err == nil {
			t.Errorf("expected error for %q", countries)
		}
	}
}

func TestSynthesizePlaceholderForUnmatchedCountry(t *testing.T) {
	reports, err := Synthesize(context.Background(), []string{"Haiti", "Chad"}, haitiArticles(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := reports["Chad"]
	if r == nil {
		t.Fatal("expected a placeholder report for Chad")
	}
	if r.ThreatLevel != news.Undetermined {
		t.Errorf("expected UNDETERMINED, got %s", r.ThreatLevel)
	}
	if r.NarrativeOrigin != news.OriginNoContent {
		t.Errorf("expected no-content narrative, got %s", r.NarrativeOrigin)
	}
	if r.ArticleCount != 0 || r.Sources == nil {
		t.Errorf("expected empty but well-formed report, got %+v", r)
	}
}

func TestSynthesizeDeduplicatesBeforeGrouping(t *testing.T) {
	articles := append(haitiArticles(), &news.Article{
		Title: "GANG VIOLENCE IN HAITI LEAVES 12 KILLED", Link: "https://example.com/dup", Source: "AP",
	})
	reports, err := Synthesize(context.Background(), []string{"Haiti"}, articles, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := reports["Haiti"].ArticleCount; got != 3 {
		t.Errorf("expected duplicate title to be dropped, got %d articles", got)
	}
}

func TestSynthesizeCrossBorderArticle(t *testing.T) {
	articles := []*news.Article{
		{Title: "Ukraine and Russia exchange prisoners", Link: "https://example.com/x", Source: "BBC"},
		{Title: "Russia raises interest rates", Link: "https://example.com/y", Source: "FT"},
	}
	reports, err := Synthesize(context.Background(), []string{"Ukraine", "Russia"}, articles, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reports["Ukraine"].ArticleCount != 1 {
		t.Errorf("expected 1 Ukraine article, got %d", reports["Ukraine"].ArticleCount)
	}
	if reports["Russia"].ArticleCount != 2 {
		t.Errorf("expected 2 Russia articles, got %d", reports["Russia"].ArticleCount)
	}
}

func TestEngineUsesModel(t *testing.T) {
	p := &mockProvider{response: "```\nModel narrative.\n```"}
	e := newTestEngine(t, Options{Provider: p})

	reports, err := e.Synthesize(context.Background(), []string{"Haiti", "Chad"}, haitiArticles(), "gangs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := reports["Haiti"]
	if r.NarrativeOrigin != news.OriginModel || r.Narrative != "Model narrative." {
		t.Errorf("expected cleaned model narrative, got %s %q", r.NarrativeOrigin, r.Narrative)
	}
	if !r.GeneratedAt.Equal(fixedNow()) {
		t.Errorf("expected GeneratedAt from clock, got %v", r.GeneratedAt)
	}
	// Chad has no articles and never reaches the model.
	if p.count() != 1 {
		t.Errorf("expected 1 model call, got %d", p.count())
	}
}

func TestEngineModelFailureFallsBack(t *testing.T) {
	p := &mockProvider{err: errors.New("quota exceeded")}
	c := cache.New(8, time.Minute)
	e := newTestEngine(t, Options{Provider: p, Cache: c})

	reports, err := e.Synthesize(context.Background(), []string{"Haiti"}, haitiArticles(), "")
	if err != nil {
		t.Fatalf("model failure must not surface: %v", err)
	}
	r := reports["Haiti"]
	if r.NarrativeOrigin != news.OriginFallback || r.Note == "" {
		t.Errorf("expected fallback with note, got %s %q", r.NarrativeOrigin, r.Note)
	}
	if c.Len() != 0 {
		t.Errorf("failed model reports must not be cached, cache has %d", c.Len())
	}
}

func TestEngineCachesReports(t *testing.T) {
	p := &mockProvider{response: "Narrative"}
	c := cache.New(8, time.Minute)
	e := newTestEngine(t, Options{Provider: p, Cache: c})
	ctx := context.Background()

	first, err := e.Synthesize(ctx, []string{"Haiti"}, haitiArticles(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := e.Synthesize(ctx, []string{"Haiti"}, haitiArticles(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.count() != 1 {
		t.Errorf("expected cached second run, got %d model calls", p.count())
	}
	if first["Haiti"] != second["Haiti"] {
		t.Error("expected the cached report to be returned")
	}

	// A different focus is a different key.
	if _, err := e.Synthesize(ctx, []string{"Haiti"}, haitiArticles(), "elections"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.count() != 2 {
		t.Errorf("expected a model call for a new focus, got %d", p.count())
	}
}

func TestEngineUsesCountryFocus(t *testing.T) {
	p := &mockProvider{response: "Narrative"}
	c := cache.New(8, time.Minute)
	e := newTestEngine(t, Options{
		Provider: p,
		Cache:    c,
		Focus:    map[string]string{"haiti": "gang control of ports"},
	})
	ctx := context.Background()

	if _, err := e.Synthesize(ctx, []string{"Haiti"}, haitiArticles(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.prompts) != 1 || !strings.Contains(p.prompts[0], "USER FOCUS AREAS: gang control of ports") {
		t.Fatalf("expected the country focus in the prompt, got %v", p.prompts)
	}

	// An explicit request focus replaces the standing one.
	if _, err := e.Synthesize(ctx, []string{"Haiti"}, haitiArticles(), "elections"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.prompts) != 2 || !strings.Contains(p.prompts[1], "USER FOCUS AREAS: elections") {
		t.Errorf("expected the request focus in the prompt, got %v", p.prompts)
	}

	// The standing focus is part of the cache key, so a repeat run is a hit.
	if _, err := e.Synthesize(ctx, []string{"Haiti"}, haitiArticles(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.count() != 2 {
		t.Errorf("expected a cache hit, got %d model calls", p.count())
	}
}

func TestEngineConcurrentCountries(t *testing.T) {
	p := &mockProvider{response: "Narrative"}
	e := newTestEngine(t, Options{Provider: p, Concurrency: 3})

	countries := []string{"Haiti", "Ukraine", "Sudan", "Somalia", "Chad"}
	articles := []*news.Article{
		{Title: "Haiti gangs attack port", Link: "https://example.com/h"},
		{Title: "Ukraine reports drone strike on Kyiv", Link: "https://example.com/u"},
		{Title: "Sudan famine worsens in Darfur", Link: "https://example.com/s"},
		{Title: "Somalia election talks resume", Link: "https://example.com/so"},
	}
	reports, err := e.Synthesize(context.Background(), countries, articles, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) != len(countries) {
		t.Fatalf("expected %d reports, got %d", len(countries), len(reports))
	}
	if p.count() != 4 {
		t.Errorf("expected 4 model calls, got %d", p.count())
	}
}

func TestEngineMinRelevance(t *testing.T) {
	e := newTestEngine(t, Options{MinRelevance: 5})
	reports, err := e.Synthesize(context.Background(), []string{"Haiti"}, haitiArticles(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Only the violence headline and the election headline clear the bar.
	if got := reports["Haiti"].ArticleCount; got != 2 {
		t.Errorf("expected 2 relevant articles, got %d", got)
	}
}

func TestOrdered(t *testing.T) {
	reports := map[string]*news.Report{
		"Sudan": {Country: "Sudan"},
		"Haiti": {Country: "Haiti"},
		"Chad":  {Country: "Chad"},
	}
	got := Ordered([]string{"Haiti", "Sudan"}, reports)
	want := []string{"Haiti", "Sudan", "Chad"}
	if len(got) != len(want) {
		t.Fatalf("expected %d reports, got %d", len(want), len(got))
	}
	for i, r := range got {
		if r.Country != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], r.Country)
		}
	}
}

func TestMergeAliases(t *testing.T) {
	merged := MergeAliases(
		[]config.Country{{Name: "Haiti", Aliases: []string{"Cap-Haitien"}}},
		[]database.WatchedCountry{{Country: "Mali", Aliases: []string{"Bamako", " "}}},
	)
	if !contains(merged["haiti"], "Cap-Haitien") {
		t.Errorf("expected config alias, got %v", merged["haiti"])
	}
	if len(merged["mali"]) != 1 || merged["mali"][0] != "Bamako" {
		t.Errorf("expected watchlist alias without blanks, got %v", merged["mali"])
	}
	if len(merged["ukraine"]) == 0 {
		t.Error("expected built-in aliases to be kept")
	}
}

func TestMergeFocus(t *testing.T) {
	watchFocus := "border crossings"
	blank := " "
	merged := MergeFocus(
		[]config.Country{{Name: "Haiti", Focus: "gangs"}, {Name: "Sudan", Focus: "famine"}},
		[]database.WatchedCountry{
			{Country: "sudan", Focus: &watchFocus},
			{Country: "Chad", Focus: &blank},
			{Country: "Niger"},
		},
	)
	if merged["haiti"] != "gangs" {
		t.Errorf("expected config focus, got %q", merged["haiti"])
	}
	if merged["sudan"] != "border crossings" {
		t.Errorf("expected watchlist focus to win, got %q", merged["sudan"])
	}
	if _, ok := merged["chad"]; ok {
		t.Error("blank focus should be skipped")
	}
	if len(merged) != 2 {
		t.Errorf("expected 2 entries, got %v", merged)
	}
}

func TestResolveCountries(t *testing.T) {
	cfg := &config.Config{Countries: []config.Country{{Name: "Haiti"}, {Name: "Sudan"}}}
	watch := []database.WatchedCountry{
		{Country: "haiti", IsActive: true},
		{Country: "Mali", IsActive: true},
		{Country: "Chad", IsActive: false},
	}

	got := ResolveCountries(nil, cfg, watch)
	want := []string{"Haiti", "Sudan", "Mali"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}

	if got := ResolveCountries([]string{"Chad"}, cfg, watch); len(got) != 1 || got[0] != "Chad" {
		t.Errorf("explicit countries should win, got %v", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		Analysis: config.Analysis{
			MatchMode: "word",
			Categories: []config.KeywordGroup{
				{Name: "maritime", Weight: 8, Keywords: []string{"piracy"}},
			},
		},
		Optimizer: config.Optimizer{MaxArticles: 5, MaxTitleLength: 80, MaxSummaryLength: 120},
	}
	opts, err := OptionsFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Mode != "word" {
		t.Errorf("expected word mode, got %s", opts.Mode)
	}
	if len(opts.Categories) != 1 || opts.Categories[0].Weight != 8 {
		t.Errorf("expected custom category, got %+v", opts.Categories)
	}
	if opts.Themes != nil {
		t.Error("empty theme table should keep the defaults")
	}
	if len(opts.Focus) != 0 {
		t.Errorf("expected no focus without configured countries, got %v", opts.Focus)
	}
	if opts.Limits.MaxArticles != 5 {
		t.Errorf("expected optimizer limits, got %+v", opts.Limits)
	}

	e := newTestEngine(t, opts)
	reports, err := e.Synthesize(context.Background(), []string{"Somalia"}, []*news.Article{
		{Title: "Somalia piracy surge", Link: "https://example.com/p"},
	}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cats := reports["Somalia"].TopCategories; len(cats) != 1 || cats[0] != "maritime" {
		t.Errorf("expected maritime category, got %v", cats)
	}
}

func TestOptionsFromConfigBadMode(t *testing.T) {
	cfg := &config.Config{Analysis: config.Analysis{MatchMode: "fuzzy"}}
	if _, err := OptionsFromConfig(cfg, nil); err == nil {
		t.Error("expected error for unknown match mode")
	}
}

func TestPipelineDryRun(t *testing.T) {
	cfg := &config.Config{
		Countries:     []config.Country{{Name: "Haiti"}},
		Summarization: config.Summarization{Provider: "none"},
	}
	p := New(cfg, nil)
	r := p.DryRun("2026-02-06", nil, "elections")
	if len(r.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(r.Steps))
	}
	if !strings.Contains(r.Steps[1].Summary, "1 reports") || !strings.Contains(r.Steps[1].Summary, "elections") {
		t.Errorf("unexpected synthesize summary %q", r.Steps[1].Summary)
	}
}

func TestPipelineRunWithoutCountries(t *testing.T) {
	cfg := &config.Config{Summarization: config.Summarization{Provider: "none"}}
	r := New(cfg, nil).Run(context.Background(), "2026-02-06", 1, nil, "")
	if !r.Failed() {
		t.Error("expected run without countries to fail")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
