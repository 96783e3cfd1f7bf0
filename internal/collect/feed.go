package collect

import (
	"context"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/intelbrief/internal/news"
)

const (
	maxPerFeed     = 20
	maxSummaryRune = 500
)

// FeedConfig represents a single feed configuration.
type FeedConfig struct {
	URL  string
	Name string
}

// FeedParser parses RSS/Atom feeds.
type FeedParser struct {
	feeds   []FeedConfig
	timeout time.Duration
}

// NewFeedParser creates a new FeedParser.
func NewFeedParser(feeds []FeedConfig, timeout time.Duration) *FeedParser {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &FeedParser{feeds: feeds, timeout: timeout}
}

// ParseAll parses all configured feeds and returns entries within daysBack.
// A failing feed is logged and skipped.
func (fp *FeedParser) ParseAll(ctx context.Context, daysBack int) []*news.Article {
	cutoff := time.Now().AddDate(0, 0, -daysBack)
	var all []*news.Article

	parser := gofeed.NewParser()
	for _, fc := range fp.feeds {
		name := fc.Name
		if name == "" {
			name = extractSourceName(fc.URL)
		}

		entries, err := fp.parseFeed(ctx, parser, fc.URL, name, cutoff)
		if err != nil {
			log.Printf("Failed to parse feed %s: %v", fc.URL, err)
			continue
		}
		all = append(all, entries...)
		log.Printf("Parsed %d entries from %s (within %d days)", len(entries), name, daysBack)
	}

	return all
}

func (fp *FeedParser) parseFeed(ctx context.Context, parser *gofeed.Parser, feedURL, sourceName string, cutoff time.Time) ([]*news.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, fp.timeout)
	defer cancel()

	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}
	return feedArticles(feed, sourceName, cutoff, maxPerFeed), nil
}

func feedArticles(feed *gofeed.Feed, sourceName string, cutoff time.Time, limit int) []*news.Article {
	var entries []*news.Article
	for _, item := range feed.Items {
		if len(entries) >= limit {
			break
		}

		a := parseItem(item, sourceName)
		if a == nil {
			continue
		}
		if isWithinWindow(item, cutoff) {
			entries = append(entries, a)
		}
	}
	return entries
}

func parseItem(item *gofeed.Item, source string) *news.Article {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	if itemURL == "" {
		return nil
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil
	}

	published := item.Published
	if t := itemTime(item); t != nil {
		published = t.UTC().Format(time.RFC3339)
	}

	var summary string
	if item.Description != "" {
		summary = stripHTML(item.Description)
	} else if item.Content != "" {
		summary = stripHTML(item.Content)
	}

	return &news.Article{
		Title:     title,
		Summary:   truncateRunes(summary, maxSummaryRune),
		Link:      itemURL,
		Source:    source,
		Published: published,
		Tags:      item.Categories,
	}
}

func itemTime(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}
	return item.UpdatedParsed
}

func isWithinWindow(item *gofeed.Item, cutoff time.Time) bool {
	t := itemTime(item)
	if t == nil {
		return true // benefit of the doubt
	}
	return !t.Before(cutoff)
}

// stripHTML returns the visible text of an HTML fragment with whitespace collapsed.
func stripHTML(text string) string {
	if !strings.ContainsAny(text, "<&") {
		return strings.Join(strings.Fields(text), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return strings.Join(strings.Fields(text), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max]))
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
