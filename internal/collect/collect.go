package collect

import (
	"context"
	"log"
	"time"

	"github.com/TobiSchelling/intelbrief/internal/config"
	"github.com/TobiSchelling/intelbrief/internal/database"
	"github.com/TobiSchelling/intelbrief/internal/dedupe"
	"github.com/TobiSchelling/intelbrief/internal/metrics"
	"github.com/TobiSchelling/intelbrief/internal/news"
)

// Result holds the results of a collection run.
type Result struct {
	TotalFound  int
	NewArticles int
	Duplicates  int
	Sources     map[string]int
	Articles    []*news.Article
}

// Collector gathers articles from RSS feeds, Google News and NewsAPI.
type Collector struct {
	db         *database.DB
	feedParser *FeedParser
	google     *GoogleNewsSearcher
	newsClient *NewsAPIClient
	newsQuery  string
	daysBack   int
}

// NewCollector creates a new article collector. db may be nil, in which case
// nothing is persisted.
func NewCollector(cfg *config.Config, db *database.DB, daysBack int) *Collector {
	c := &Collector{
		db:       db,
		daysBack: daysBack,
	}

	if len(cfg.Sources.Feeds) > 0 {
		feeds := make([]FeedConfig, len(cfg.Sources.Feeds))
		for i, f := range cfg.Sources.Feeds {
			feeds[i] = FeedConfig{URL: f.URL, Name: f.Name}
		}
		c.feedParser = NewFeedParser(feeds, 15*time.Second)
	}

	gn := cfg.Sources.GoogleNews
	if gn.Enabled {
		c.google = NewGoogleNewsSearcher(gn.When, gn.Language, gn.Region, gn.SecurityQuery, 15*time.Second)
	}

	apiCfg := cfg.Sources.APIs.NewsAPI
	if apiCfg.Enabled {
		c.newsClient = NewNewsAPIClient(apiCfg.APIKeyEnv)
		c.newsQuery = apiCfg.Query
	}

	return c
}

// Collect gathers articles for the given countries from every configured source.
// Source failures are logged and skipped. The returned articles are deduplicated
// by title; when a database is attached they are also stored under periodID.
func (c *Collector) Collect(ctx context.Context, periodID string, countries []string) *Result {
	r := &Result{Sources: make(map[string]int)}
	var raw []*news.Article

	if c.feedParser != nil {
		log.Println("Collecting from RSS feeds...")
		raw = append(raw, c.feedParser.ParseAll(ctx, c.daysBack)...)
	}

	if c.google != nil {
		for _, country := range countries {
			raw = append(raw, c.google.CountryNews(ctx, country)...)
		}
	}

	if c.newsClient != nil && c.newsClient.IsConfigured() && len(countries) > 0 {
		log.Println("Collecting from NewsAPI...")
		raw = append(raw, c.newsClient.SearchCountries(ctx, c.newsQuery, countries, c.daysBack)...)
	}

	r.TotalFound = len(raw)
	r.Articles = dedupe.Dedupe(raw)
	r.Duplicates = r.TotalFound - len(r.Articles)
	for _, a := range r.Articles {
		r.Sources[a.Source]++
		metrics.ArticlesCollected.WithLabelValues(a.Source).Inc()
	}

	if c.db != nil {
		n, err := c.db.SaveArticles(r.Articles, periodID)
		if err != nil {
			log.Printf("Failed to store articles: %v", err)
		}
		r.NewArticles = n
	} else {
		r.NewArticles = len(r.Articles)
	}

	log.Printf("Collection complete: %d found, %d new, %d duplicates", r.TotalFound, r.NewArticles, r.Duplicates)
	return r
}
