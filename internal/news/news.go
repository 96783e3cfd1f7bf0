package news

import (
	"strings"
	"time"
)

// MaxContentChars caps extracted full-text content.
const MaxContentChars = 5000

// Article is a single collected news item.
type Article struct {
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	FullContent string   `json:"full_content,omitempty"`
	HasContent  bool     `json:"has_content"`
	Link        string   `json:"link"`
	Source      string   `json:"source"`
	Published   string   `json:"published,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	// Set once by the relevance scorer.
	RelevanceScore int               `json:"relevance_score"`
	Categories     []string          `json:"categories,omitempty"`
	Security       *SecurityAnalysis `json:"security_analysis,omitempty"`
}

// Text returns the title and summary joined for keyword matching.
func (a *Article) Text() string {
	return a.Title + " " + a.Summary
}

// Scored reports whether the relevance scorer has already annotated the article.
func (a *Article) Scored() bool {
	return a.Security != nil
}

// Body returns the best available text: full content, then summary, then title.
func (a *Article) Body() string {
	if a.FullContent != "" {
		return a.FullContent
	}
	if a.Summary != "" {
		return a.Summary
	}
	return a.Title
}

// SetFullContent stores extracted text, capped at MaxContentChars.
func (a *Article) SetFullContent(text string) {
	text = strings.TrimSpace(text)
	if r := []rune(text); len(r) > MaxContentChars {
		text = string(r[:MaxContentChars])
	}
	a.FullContent = text
	a.HasContent = text != ""
}

// SecurityAnalysis is the relevance scorer's verdict for one article.
type SecurityAnalysis struct {
	Score      int      `json:"score"`
	Categories []string `json:"categories"`
	Keywords   []string `json:"keywords"`
	IsRelevant bool     `json:"is_relevant"`
}

// Bucket groups the articles matched to one country for one report cycle.
// Themes is a view over Articles: every themed article is also in Articles.
type Bucket struct {
	Country  string
	Articles []*Article
	Themes   map[string][]*Article
	Sources  []string
}

// NewBucket returns an empty bucket for country.
func NewBucket(country string) *Bucket {
	return &Bucket{Country: country, Themes: make(map[string][]*Article)}
}

// Add appends an article and records its source.
func (b *Bucket) Add(a *Article) {
	b.Articles = append(b.Articles, a)
	if a.Source == "" {
		return
	}
	for _, s := range b.Sources {
		if s == a.Source {
			return
		}
	}
	b.Sources = append(b.Sources, a.Source)
}

// ThemeCounts returns the number of articles per theme.
func (b *Bucket) ThemeCounts() map[string]int {
	counts := make(map[string]int, len(b.Themes))
	for name, articles := range b.Themes {
		counts[name] = len(articles)
	}
	return counts
}

// NarrativeOrigin records which path produced a report's narrative.
type NarrativeOrigin string

const (
	OriginModel     NarrativeOrigin = "model"
	OriginFallback  NarrativeOrigin = "fallback"
	OriginNoContent NarrativeOrigin = "no_content"
)

// Report is the assembled per-country output.
type Report struct {
	Country          string          `json:"country"`
	Narrative        string          `json:"narrative"`
	NarrativeOrigin  NarrativeOrigin `json:"narrative_origin"`
	ExecutiveSummary string          `json:"executive_summary"`
	ThreatLevel      ThreatLevel     `json:"threat_level"`
	KeyPoints        []string        `json:"key_points"`
	ArticleCount     int             `json:"article_count"`
	Sources          []string        `json:"sources"`
	Themes           map[string]int  `json:"themes"`
	TopCategories    []string        `json:"top_categories,omitempty"`
	Note             string          `json:"note,omitempty"`
	GeneratedAt      time.Time       `json:"generated_at"`
}
