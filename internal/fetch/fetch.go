package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/intelbrief/internal/metrics"
	"github.com/TobiSchelling/intelbrief/internal/news"
)

const (
	maxBodyBytes   = 2 << 20
	minContentLen  = 100
	maxParagraphs  = 20
	defaultWorkers = 10
)

// contentSelectors are tried in order when readability finds too little text.
var contentSelectors = []string{
	"article",
	"div.article-content",
	"div.entry-content",
	"div.post-content",
	"main",
	"div.content",
	"div.story-body",
}

var errNoContent = errors.New("no extractable content")

// Cache stores extracted text by URL.
type Cache interface {
	GetCachedContent(url string, maxAge time.Duration) (string, bool, error)
	PutCachedContent(url, content string) error
}

// Options configures an Extractor. Zero values select defaults.
type Options struct {
	Workers       int
	Timeout       time.Duration
	MaxArticles   int
	RatePerSecond float64
	CacheTTL      time.Duration
	Verbose       bool
}

// Result holds the outcome of one extraction batch.
type Result struct {
	Articles []*news.Article
	Fetched  int
	Cached   int
	Failed   int
	Skipped  int
}

// Extractor fetches full article text with a bounded worker pool.
type Extractor struct {
	client  *http.Client
	cache   Cache
	limiter *rate.Limiter
	opts    Options
}

// NewExtractor creates an extractor. cache may be nil.
func NewExtractor(opts Options, cache Cache) *Extractor {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}

	e := &Extractor{
		cache: cache,
		opts:  opts,
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
	if opts.RatePerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Workers)
	}
	return e
}

type outcome struct {
	content string
	cached  bool
	err     error
}

// Extract returns copies of articles with full content attached where it could
// be fetched. A failed fetch leaves that copy with HasContent false; it never
// fails the batch. Results are merged back by URL.
func (e *Extractor) Extract(ctx context.Context, articles []*news.Article) *Result {
	res := &Result{Articles: make([]*news.Article, len(articles))}
	for i, a := range articles {
		cp := *a
		res.Articles[i] = &cp
	}

	var urls []string
	seen := make(map[string]struct{})
	for _, a := range res.Articles {
		if a.Link == "" || a.HasContent {
			continue
		}
		if _, ok := seen[a.Link]; ok {
			continue
		}
		if e.opts.MaxArticles > 0 && len(urls) >= e.opts.MaxArticles {
			res.Skipped++
			continue
		}
		seen[a.Link] = struct{}{}
		urls = append(urls, a.Link)
	}
	if len(urls) == 0 {
		return res
	}

	var mu sync.Mutex
	outcomes := make(map[string]outcome, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for _, u := range urls {
		g.Go(func() error {
			o := e.extractOne(gctx, u)
			mu.Lock()
			outcomes[u] = o
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	for _, a := range res.Articles {
		o, ok := outcomes[a.Link]
		if !ok {
			continue
		}
		if o.err != nil {
			a.HasContent = false
			continue
		}
		a.SetFullContent(o.content)
	}

	for _, o := range outcomes {
		switch {
		case o.err != nil:
			res.Failed++
			metrics.RecordExtraction("failed")
		case o.cached:
			res.Cached++
			metrics.RecordExtraction("cached")
		default:
			res.Fetched++
			metrics.RecordExtraction("fetched")
		}
	}

	log.Printf("Extraction complete: %d fetched, %d cached, %d failed", res.Fetched, res.Cached, res.Failed)
	return res
}

func (e *Extractor) extractOne(ctx context.Context, articleURL string) outcome {
	if e.cache != nil {
		content, ok, err := e.cache.GetCachedContent(articleURL, e.opts.CacheTTL)
		if err != nil {
			log.Printf("Content cache read failed for %s: %v", articleURL, err)
		} else if ok {
			return outcome{content: content, cached: true}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return outcome{err: err}
		}
	}

	content, err := e.fetchContent(ctx, articleURL)
	if err != nil {
		if e.opts.Verbose {
			log.Printf("Extraction failed for %s: %v", articleURL, err)
		}
		return outcome{err: err}
	}

	if e.cache != nil {
		if err := e.cache.PutCachedContent(articleURL, content); err != nil {
			log.Printf("Content cache write failed for %s: %v", articleURL, err)
		}
	}
	return outcome{content: content}
}

func (e *Extractor) fetchContent(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", articleURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; intelbrief/1.0; news aggregator)")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}

	parsedURL, _ := url.Parse(articleURL)
	return ExtractText(body, parsedURL)
}

// ExtractText pulls the main text from an HTML page, trying readability first
// and a list of common content selectors second.
func ExtractText(page []byte, pageURL *url.URL) (string, error) {
	if article, err := readability.FromReader(bytes.NewReader(page), pageURL); err == nil {
		text := collapse(article.TextContent)
		if len([]rune(text)) > minContentLen {
			return capContent(text), nil
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, nav, header, footer, aside").Remove()

	for _, sel := range contentSelectors {
		text := collapse(doc.Find(sel).First().Text())
		if len([]rune(text)) > minContentLen {
			return capContent(text), nil
		}
	}

	paragraphs := doc.Find("p")
	if paragraphs.Length() > 3 {
		var parts []string
		paragraphs.EachWithBreak(func(i int, s *goquery.Selection) bool {
			if t := collapse(s.Text()); t != "" {
				parts = append(parts, t)
			}
			return i+1 < maxParagraphs
		})
		text := strings.Join(parts, " ")
		if text != "" {
			return capContent(text), nil
		}
	}

	return "", errNoContent
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func capContent(s string) string {
	if r := []rune(s); len(r) > news.MaxContentChars {
		return string(r[:news.MaxContentChars])
	}
	return s
}
