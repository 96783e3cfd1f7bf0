package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/intelbrief/internal/cache"
	"github.com/TobiSchelling/intelbrief/internal/collect"
	"github.com/TobiSchelling/intelbrief/internal/config"
	"github.com/TobiSchelling/intelbrief/internal/database"
	"github.com/TobiSchelling/intelbrief/internal/fetch"
	"github.com/TobiSchelling/intelbrief/internal/llm"
	"github.com/TobiSchelling/intelbrief/internal/news"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	PeriodID string
	RunID    string
	Steps    []StepResult
	Reports  map[string]*news.Report
}

// Failed reports whether any step returned an error.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Pipeline runs collect -> synthesize -> save for a set of countries.
type Pipeline struct {
	cfg       *config.Config
	db        *database.DB
	provider  llm.Provider
	extractor *fetch.Extractor
	cache     *cache.ReportCache
}

// New creates a new pipeline. The report cache lives as long as the pipeline,
// so a long-running process (scheduler, server) reuses reports across runs.
func New(cfg *config.Config, db *database.DB) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		db:       db,
		provider: llm.CreateProvider(cfg.Summarization),
	}

	ex := cfg.Extraction
	if ex.Enabled {
		opts := fetch.Options{
			Workers:       ex.Workers,
			Timeout:       time.Duration(ex.TimeoutSeconds) * time.Second,
			MaxArticles:   ex.MaxArticles,
			RatePerSecond: ex.RatePerSecond,
			CacheTTL:      time.Duration(ex.CacheHours) * time.Hour,
			Verbose:       cfg.IsDebug(),
		}
		if db != nil {
			p.extractor = fetch.NewExtractor(opts, db)
		} else {
			p.extractor = fetch.NewExtractor(opts, nil)
		}
	}

	if cfg.Cache.Size > 0 {
		p.cache = cache.New(cfg.Cache.Size, time.Duration(cfg.Cache.TTLMinutes)*time.Minute)
	}
	return p
}

// Cache returns the report cache, or nil when caching is disabled.
func (p *Pipeline) Cache() *cache.ReportCache {
	return p.cache
}

// Countries resolves the country list for a run from explicit names, the
// config and the active watchlist.
func (p *Pipeline) Countries(explicit []string) []string {
	return ResolveCountries(explicit, p.cfg, p.watchlist())
}

// Engine builds a synthesis engine from the current config and watchlist.
func (p *Pipeline) Engine() (*Engine, error) {
	opts, err := OptionsFromConfig(p.cfg, p.watchlist())
	if err != nil {
		return nil, err
	}
	opts.Provider = p.provider
	if p.extractor != nil {
		opts.Extractor = p.extractor
	}
	opts.Cache = p.cache
	return NewEngine(opts)
}

func (p *Pipeline) watchlist() []database.WatchedCountry {
	if p.db == nil {
		return nil
	}
	items, err := p.db.GetWatchlist()
	if err != nil {
		log.Printf("Failed to read watchlist: %v", err)
		return nil
	}
	return items
}

// Run collects articles for the period, synthesizes one report per country
// and stores them as a single run.
func (p *Pipeline) Run(ctx context.Context, periodID string, daysBack int, countries []string, focus string) *Result {
	r := &Result{PeriodID: periodID, RunID: uuid.NewString()}

	countries = p.Countries(countries)
	if len(countries) == 0 {
		r.Steps = append(r.Steps, StepResult{
			Name: "Collect",
			Err:  fmt.Errorf("no countries configured; pass country names or add them to the watchlist"),
		})
		return r
	}

	// Step 1: Collect
	articles, step := p.runCollect(ctx, periodID, daysBack, countries)
	r.Steps = append(r.Steps, step)

	// Step 2: Synthesize
	reports, step := p.runSynthesize(ctx, countries, articles, focus)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}
	r.Reports = reports

	// Step 3: Save
	if p.db != nil {
		r.Steps = append(r.Steps, p.runSave(r.RunID, periodID, focus, len(articles), countries, reports))
	}

	return r
}

// DryRun shows what would be done without executing.
func (p *Pipeline) DryRun(periodID string, countries []string, focus string) *Result {
	r := &Result{PeriodID: periodID}
	countries = p.Countries(countries)

	stored := 0
	if p.db != nil {
		articles, _ := p.db.GetArticlesForPeriod(periodID)
		stored = len(articles)
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Collect",
		Summary: fmt.Sprintf("[dry-run] %d articles already in DB for %s; would search %d countries", stored, periodID, len(countries)),
	})

	model := "fallback generator"
	if p.provider != nil {
		model = fmt.Sprintf("%T", p.provider)
	}
	summary := fmt.Sprintf("[dry-run] Would synthesize %d reports using %s", len(countries), model)
	if focus != "" {
		summary += fmt.Sprintf(" (focus: %s)", focus)
	}
	r.Steps = append(r.Steps, StepResult{Name: "Synthesize", Summary: summary})

	r.Steps = append(r.Steps, StepResult{
		Name:    "Save",
		Summary: fmt.Sprintf("[dry-run] Would store a run with %d reports", len(countries)),
	})
	return r
}

func (p *Pipeline) runCollect(ctx context.Context, periodID string, daysBack int, countries []string) ([]*news.Article, StepResult) {
	log.Println("Step 1/3: Collecting articles...")
	collector := collect.NewCollector(p.cfg, p.db, daysBack)
	result := collector.Collect(ctx, periodID, countries)
	return result.Articles, StepResult{
		Name:    "Collect",
		Summary: fmt.Sprintf("Found %d articles (%d new, %d duplicates)", len(result.Articles), result.NewArticles, result.Duplicates),
	}
}

func (p *Pipeline) runSynthesize(ctx context.Context, countries []string, articles []*news.Article, focus string) (map[string]*news.Report, StepResult) {
	log.Println("Step 2/3: Synthesizing reports...")
	engine, err := p.Engine()
	if err != nil {
		return nil, StepResult{Name: "Synthesize", Err: err}
	}
	reports, err := engine.Synthesize(ctx, countries, articles, focus)
	if err != nil {
		return nil, StepResult{Name: "Synthesize", Err: err}
	}

	model := 0
	for _, r := range reports {
		if r.NarrativeOrigin == news.OriginModel {
			model++
		}
	}
	return reports, StepResult{
		Name:    "Synthesize",
		Summary: fmt.Sprintf("Synthesized %d reports (%d model narratives)", len(reports), model),
	}
}

func (p *Pipeline) runSave(runID, periodID, focus string, articleCount int, countries []string, reports map[string]*news.Report) StepResult {
	log.Println("Step 3/3: Saving reports...")
	if err := p.db.SaveRun(runID, periodID, focus, articleCount, Ordered(countries, reports)); err != nil {
		return StepResult{Name: "Save", Err: err}
	}
	return StepResult{
		Name:    "Save",
		Summary: fmt.Sprintf("Stored run %s with %d reports", runID, len(reports)),
	}
}

// Ordered returns reports in the given country order. Reports for countries
// not in the list follow, sorted by name.
func Ordered(countries []string, reports map[string]*news.Report) []*news.Report {
	out := make([]*news.Report, 0, len(reports))
	seen := make(map[string]bool, len(countries))
	for _, c := range countries {
		if r, ok := reports[c]; ok && !seen[c] {
			out = append(out, r)
			seen[c] = true
		}
	}
	var rest []string
	for c := range reports {
		if !seen[c] {
			rest = append(rest, c)
		}
	}
	sort.Strings(rest)
	for _, c := range rest {
		out = append(out, reports[c])
	}
	return out
}
