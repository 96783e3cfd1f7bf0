package collect

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/intelbrief/internal/news"
)

const (
	googleNewsBaseURL   = "https://news.google.com/rss/search"
	googleNewsMaxResult = 100
	googleNewsSource    = "Google News"
)

// GoogleNewsSearcher queries the Google News RSS search endpoint.
type GoogleNewsSearcher struct {
	BaseURL       string
	When          string
	Language      string
	Region        string
	SecurityQuery bool
	timeout       time.Duration
	parser        *gofeed.Parser
}

// NewGoogleNewsSearcher creates a searcher. lang is an hl code such as "en-US".
func NewGoogleNewsSearcher(when, lang, region string, securityQuery bool, timeout time.Duration) *GoogleNewsSearcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &GoogleNewsSearcher{
		BaseURL:       googleNewsBaseURL,
		When:          when,
		Language:      lang,
		Region:        region,
		SecurityQuery: securityQuery,
		timeout:       timeout,
		parser:        gofeed.NewParser(),
	}
}

// SearchURL builds the RSS search URL for a query.
func (g *GoogleNewsSearcher) SearchURL(query string) string {
	lang := g.Language
	if lang == "" {
		lang = "en-US"
	}
	region := g.Region
	if region == "" {
		region = "US"
	}
	primary := strings.SplitN(lang, "-", 2)[0]

	params := url.Values{
		"q":    {query},
		"hl":   {lang},
		"gl":   {region},
		"ceid": {fmt.Sprintf("%s:%s", region, primary)},
	}
	if g.When != "" {
		params.Set("q", query+" when:"+g.When)
	}
	return g.BaseURL + "?" + params.Encode()
}

// SecuritySearch returns the security-term query for a country.
func SecuritySearch(country string) string {
	return country + " (war OR conflict OR military OR security OR crisis OR attack OR violence)"
}

// Search runs a single query. Errors are logged and produce no results.
func (g *GoogleNewsSearcher) Search(ctx context.Context, query string) []*news.Article {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	feed, err := g.parser.ParseURLWithContext(g.SearchURL(query), ctx)
	if err != nil {
		log.Printf("Google News search failed for %q: %v", query, err)
		return nil
	}

	var articles []*news.Article
	for _, item := range feed.Items {
		if len(articles) >= googleNewsMaxResult {
			break
		}
		a := parseItem(item, googleNewsSource)
		if a == nil {
			continue
		}
		a.Title, a.Source = splitPublisher(a.Title)
		articles = append(articles, a)
	}
	return articles
}

// CountryNews runs the base country query and, if enabled, the security query,
// keeping the first article seen for each title.
func (g *GoogleNewsSearcher) CountryNews(ctx context.Context, country string) []*news.Article {
	log.Printf("Searching Google News: %s", country)
	results := g.Search(ctx, country)
	if g.SecurityQuery {
		results = append(results, g.Search(ctx, SecuritySearch(country))...)
	}

	seen := make(map[string]struct{}, len(results))
	var out []*news.Article
	for _, a := range results {
		if _, ok := seen[a.Title]; ok {
			continue
		}
		seen[a.Title] = struct{}{}
		out = append(out, a)
	}
	return out
}

// splitPublisher separates the " - Publisher" suffix Google News appends to titles.
func splitPublisher(title string) (string, string) {
	i := strings.LastIndex(title, " - ")
	if i <= 0 || i+3 >= len(title) {
		return title, googleNewsSource
	}
	return strings.TrimSpace(title[:i]), strings.TrimSpace(title[i+3:])
}
