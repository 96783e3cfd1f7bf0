// Package optimize selects and trims the article subset handed to narrative
// generation so that prompts stay within a predictable size.
package optimize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/TobiSchelling/intelbrief/internal/keywords"
	"github.com/TobiSchelling/intelbrief/internal/news"
)

// Ellipsis is appended to hard-truncated text.
const Ellipsis = "..."

// Limits bounds the optimizer output.
type Limits struct {
	MaxArticles   int
	MaxTitleLen   int
	MaxSummaryLen int
}

// DefaultLimits are used for any zero field.
var DefaultLimits = Limits{MaxArticles: 15, MaxTitleLen: 100, MaxSummaryLen: 150}

func (l Limits) withDefaults() Limits {
	if l.MaxArticles <= 0 {
		l.MaxArticles = DefaultLimits.MaxArticles
	}
	if l.MaxTitleLen <= 0 {
		l.MaxTitleLen = DefaultLimits.MaxTitleLen
	}
	if l.MaxSummaryLen <= 0 {
		l.MaxSummaryLen = DefaultLimits.MaxSummaryLen
	}
	return l
}

// Tier is a priority keyword list. Each keyword found in the title adds
// TitlePoints; otherwise, found in the summary, it adds SummaryPoints.
type Tier struct {
	Name          string
	TitlePoints   int
	SummaryPoints int
	Keywords      []string
}

// DefaultTiers is the built-in priority table.
var DefaultTiers = []Tier{
	{"high", 10, 5, []string{"killed", "dead", "death", "attack", "explosion", "bombing", "crisis", "emergency", "coup", "overthrow", "assassination", "war", "invasion", "conflict", "battle", "offensive", "collapse", "failed", "violence", "massacre", "genocide"}},
	{"medium", 5, 2, []string{"protest", "tension", "dispute", "sanctions", "election", "vote", "referendum", "opposition", "unrest", "strike", "deployment", "military", "security", "threat", "warning"}},
	{"low", 2, 1, []string{"meeting", "talks", "discussion", "agreement", "signed", "visit", "diplomatic", "economic", "trade", "development"}},
}

type compiledTier struct {
	Tier
	matcher *keywords.Matcher
}

// Optimizer ranks and trims articles. It holds no mutable state.
type Optimizer struct {
	tiers []compiledTier
}

// New compiles a priority table.
func New(tiers []Tier, mode keywords.Mode) (*Optimizer, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("empty priority table")
	}
	o := &Optimizer{}
	for _, t := range tiers {
		if t.Name == "" {
			return nil, fmt.Errorf("priority tier with empty name")
		}
		if t.TitlePoints <= 0 || t.SummaryPoints < 0 {
			return nil, fmt.Errorf("tier %q: invalid points %d/%d", t.Name, t.TitlePoints, t.SummaryPoints)
		}
		m, err := keywords.NewMatcher(t.Keywords, mode)
		if err != nil {
			return nil, fmt.Errorf("tier %q: %w", t.Name, err)
		}
		o.tiers = append(o.tiers, compiledTier{Tier: t, matcher: m})
	}
	return o, nil
}

// NewDefault returns an optimizer over DefaultTiers.
func NewDefault(mode keywords.Mode) *Optimizer {
	o, err := New(DefaultTiers, mode)
	if err != nil {
		panic(err)
	}
	return o
}

// Item is an optimized article copy with its priority score.
type Item struct {
	Article  *news.Article
	Priority int
}

// Priority scores one article.
func (o *Optimizer) Priority(a *news.Article) int {
	score := 0
	for _, t := range o.tiers {
		inTitle := make(map[string]struct{})
		for _, kw := range t.matcher.Hits(a.Title) {
			inTitle[kw] = struct{}{}
			score += t.TitlePoints
		}
		for _, kw := range t.matcher.Hits(a.Summary) {
			if _, ok := inTitle[kw]; !ok {
				score += t.SummaryPoints
			}
		}
	}
	return score
}

// Optimize returns at most MaxArticles trimmed copies of the highest
// priority articles. Ties keep their input order. Inputs are not modified.
func (o *Optimizer) Optimize(articles []*news.Article, limits Limits) []Item {
	limits = limits.withDefaults()
	if len(articles) == 0 {
		return []Item{}
	}

	ranked := make([]Item, len(articles))
	for i, a := range articles {
		ranked[i] = Item{Article: a, Priority: o.Priority(a)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Priority > ranked[j].Priority })

	if len(ranked) > limits.MaxArticles {
		ranked = ranked[:limits.MaxArticles]
	}

	out := make([]Item, len(ranked))
	for i, it := range ranked {
		c := *it.Article
		c.Title = TruncateTitle(c.Title, limits.MaxTitleLen)
		c.Summary = Truncate(c.Summary, limits.MaxSummaryLen)
		out[i] = Item{Article: &c, Priority: it.Priority}
	}
	return out
}

// Articles unwraps optimized items.
func Articles(items []Item) []*news.Article {
	out := make([]*news.Article, len(items))
	for i, it := range items {
		out[i] = it.Article
	}
	return out
}

// TruncateTitle cuts a title to at most max characters, without a marker.
func TruncateTitle(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimRight(string(r[:max]), " \t\n")
}

// Truncate shortens s to at most max characters. It cuts after the last
// full sentence when that falls past 70% of max; otherwise it hard-cuts and
// appends Ellipsis, which is not counted against max.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	cut := string(r[:max])
	if idx := strings.LastIndex(cut, ". "); idx >= 0 && float64(len([]rune(cut[:idx]))) > float64(max)*0.7 {
		return cut[:idx+1]
	}
	return strings.TrimRight(cut, " \t\n") + Ellipsis
}

// Context renders a compact digest of the highest priority items.
func Context(items []Item) string {
	if len(items) == 0 {
		return "No recent articles available."
	}

	var critical, key []string
	for _, it := range items {
		switch {
		case it.Priority >= 10 && len(critical) < 5:
			critical = append(critical, "• "+it.Article.Title)
		case it.Priority >= 5 && it.Priority < 10 && len(key) < 5:
			key = append(key, "• "+it.Article.Title)
		}
	}

	var parts []string
	if len(critical) > 0 {
		parts = append(parts, "CRITICAL DEVELOPMENTS:")
		parts = append(parts, critical...)
	}
	if len(key) > 0 {
		if len(parts) > 0 {
			parts = append(parts, "")
		}
		parts = append(parts, "KEY UPDATES:")
		parts = append(parts, key...)
	}
	return strings.Join(parts, "\n")
}

// EstimateTokens approximates token count at four characters per token.
func EstimateTokens(text string) int {
	return len([]rune(text)) / 4
}

// Stats summarizes the reduction achieved by Optimize.
type Stats struct {
	OriginalArticles  int
	OptimizedArticles int
	OriginalTokens    int
	OptimizedTokens   int
	ReductionPercent  float64
}

// ComputeStats compares original articles with their optimized items.
func ComputeStats(original []*news.Article, optimized []Item) Stats {
	s := Stats{OriginalArticles: len(original), OptimizedArticles: len(optimized)}
	for _, a := range original {
		s.OriginalTokens += EstimateTokens(a.Title + a.Summary)
	}
	for _, it := range optimized {
		s.OptimizedTokens += EstimateTokens(it.Article.Title + it.Article.Summary)
	}
	if s.OriginalTokens > 0 {
		s.ReductionPercent = float64(s.OriginalTokens-s.OptimizedTokens) / float64(s.OriginalTokens) * 100
	}
	return s
}
