package pipeline

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/intelbrief/internal/cache"
	"github.com/TobiSchelling/intelbrief/internal/compose"
	"github.com/TobiSchelling/intelbrief/internal/dedupe"
	"github.com/TobiSchelling/intelbrief/internal/group"
	"github.com/TobiSchelling/intelbrief/internal/keywords"
	"github.com/TobiSchelling/intelbrief/internal/llm"
	"github.com/TobiSchelling/intelbrief/internal/metrics"
	"github.com/TobiSchelling/intelbrief/internal/news"
	"github.com/TobiSchelling/intelbrief/internal/optimize"
	"github.com/TobiSchelling/intelbrief/internal/score"
	"github.com/TobiSchelling/intelbrief/internal/synthesize"
	"github.com/TobiSchelling/intelbrief/internal/threat"
)

const defaultConcurrency = 4

// Options configures an Engine. Nil tables select the built-in defaults.
type Options struct {
	Mode       keywords.Mode
	Categories []score.Category
	Themes     []group.Theme
	Aliases    map[string][]string
	// Focus maps a lowercase country name to its standing focus, used when a
	// request names none.
	Focus      map[string]string
	Severity   []threat.Tier
	Priority   []optimize.Tier

	Limits       optimize.Limits
	MinRelevance int
	Concurrency  int

	Provider  llm.Provider
	Extractor synthesize.Extractor
	Synth     synthesize.Options
	Cache     *cache.ReportCache

	Now     func() time.Time
	Verbose bool
}

// Engine turns a bag of articles into per-country reports.
type Engine struct {
	scorer     *score.Scorer
	grouper    *group.Grouper
	classifier *threat.Classifier
	optimizer  *optimize.Optimizer
	synth      *synthesize.Synthesizer
	cache      *cache.ReportCache
	focus      map[string]string

	limits       optimize.Limits
	minRelevance int
	concurrency  int
	now          func() time.Time
	verbose      bool
}

// NewEngine compiles the keyword tables. Errors indicate a malformed table.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Mode == "" {
		opts.Mode = keywords.Substring
	}
	if opts.Categories == nil {
		opts.Categories = score.DefaultCategories
	}
	if opts.Themes == nil {
		opts.Themes = group.DefaultThemes
	}
	if opts.Aliases == nil {
		opts.Aliases = group.DefaultAliases
	}
	if opts.Severity == nil {
		opts.Severity = threat.DefaultTiers
	}
	if opts.Priority == nil {
		opts.Priority = optimize.DefaultTiers
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Synth.Now == nil {
		opts.Synth.Now = opts.Now
	}

	scorer, err := score.New(opts.Categories, opts.Mode)
	if err != nil {
		return nil, err
	}
	grouper, err := group.New(opts.Themes, opts.Aliases, opts.Mode)
	if err != nil {
		return nil, err
	}
	classifier, err := threat.New(opts.Severity, opts.Mode)
	if err != nil {
		return nil, err
	}
	optimizer, err := optimize.New(opts.Priority, opts.Mode)
	if err != nil {
		return nil, err
	}

	return &Engine{
		scorer:       scorer,
		grouper:      grouper,
		classifier:   classifier,
		optimizer:    optimizer,
		synth:        synthesize.New(opts.Provider, opts.Extractor, opts.Synth),
		cache:        opts.Cache,
		focus:        opts.Focus,
		limits:       opts.Limits,
		minRelevance: opts.MinRelevance,
		concurrency:  opts.Concurrency,
		now:          opts.Now,
		verbose:      opts.Verbose,
	}, nil
}

// Synthesize produces a report for every requested country using the default
// keyword tables and no language model, so narratives come from the fallback
// generator.
func Synthesize(ctx context.Context, countries []string, articles []*news.Article, focus string) (map[string]*news.Report, error) {
	e, err := NewEngine(Options{})
	if err != nil {
		return nil, err
	}
	return e.Synthesize(ctx, countries, articles, focus)
}

// Synthesize deduplicates and scores articles, groups them by country, and
// builds one report per requested country. Countries without matching
// articles get a placeholder report. The only errors are a malformed country
// list; network and model failures degrade individual reports instead.
func (e *Engine) Synthesize(ctx context.Context, countries []string, articles []*news.Article, focus string) (map[string]*news.Report, error) {
	names, err := group.ValidateCountries(countries)
	if err != nil {
		return nil, err
	}
	reports := make(map[string]*news.Report, len(names))
	if len(names) == 0 {
		return reports, nil
	}

	unique := dedupe.Dedupe(articles)
	// Scoring happens once, before buckets share the article pointers.
	e.scorer.Annotate(unique)
	if e.minRelevance > 0 {
		unique = keepRelevant(unique, e.minRelevance)
	}
	log.Printf("Synthesizing %d countries from %d articles (%d after dedupe)", len(names), len(articles), len(unique))

	buckets, err := e.grouper.Group(unique, names)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, name := range names {
		b := buckets[name]
		g.Go(func() error {
			r := e.countryReport(gctx, name, b, focus)
			mu.Lock()
			reports[name] = r
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return reports, nil
}

func (e *Engine) countryReport(ctx context.Context, country string, b *news.Bucket, focus string) *news.Report {
	start := time.Now()

	if focus == "" {
		focus = e.focus[strings.ToLower(country)]
	}
	key := cache.Key(country, focus, b.Articles)
	if e.cache != nil {
		if r, ok := e.cache.Get(key); ok {
			metrics.RecordCache(true)
			log.Printf("%s: using cached report", country)
			return r
		}
		metrics.RecordCache(false)
	}

	assessment := e.classifier.Assess(b)
	items := e.optimizer.Optimize(b.Articles, e.limits)
	if e.verbose {
		stats := optimize.ComputeStats(b.Articles, items)
		log.Printf("%s: %d articles, mean severity %.2f, optimized %d -> %d (~%d -> ~%d tokens, %.0f%% reduction)",
			country, len(b.Articles), assessment.Mean, stats.OriginalArticles, stats.OptimizedArticles,
			stats.OriginalTokens, stats.OptimizedTokens, stats.ReductionPercent)
		log.Printf("%s digest:\n%s", country, optimize.Context(items))
	}

	res := e.synth.Synthesize(ctx, synthesize.Request{
		Country:  country,
		Bucket:   b,
		Articles: optimize.Articles(items),
		Focus:    focus,
	})

	report := compose.Assemble(country, b, compose.Narrative{
		Text:   res.Narrative,
		Origin: res.Origin,
		Note:   res.Note,
	}, assessment.Level)
	report.GeneratedAt = e.now()

	metrics.RecordNarrative(string(res.Origin))
	metrics.RecordReport(report.ThreatLevel.String(), time.Since(start))
	log.Printf("%s: %s, %d articles, narrative from %s", country, report.ThreatLevel, report.ArticleCount, res.Origin)

	// A failed model call is not cached so the next request retries it.
	if e.cache != nil && res.ModelErr == nil {
		e.cache.Add(key, report)
	}
	return report
}

// keepRelevant drops articles scoring below min, preserving discovery order.
func keepRelevant(articles []*news.Article, min int) []*news.Article {
	out := make([]*news.Article, 0, len(articles))
	for _, a := range articles {
		if a.RelevanceScore >= min {
			out = append(out, a)
		}
	}
	return out
}
