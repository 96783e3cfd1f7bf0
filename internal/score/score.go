// Package score assigns additive security-relevance scores to articles.
package score

import (
	"fmt"
	"sort"

	"github.com/TobiSchelling/intelbrief/internal/keywords"
	"github.com/TobiSchelling/intelbrief/internal/news"
)

// RelevantThreshold is the minimum score for an article to count as security relevant.
const RelevantThreshold = 5

// Category is a named keyword list with a weight.
type Category struct {
	Name     string
	Weight   int
	Keywords []string
}

// DefaultCategories is the built-in category table.
var DefaultCategories = []Category{
	{"conflict", 10, []string{"war", "battle", "combat", "fighting", "conflict", "clash", "attack", "strike", "offensive", "assault", "raid", "siege"}},
	{"terrorism", 10, []string{"terrorist", "terrorism", "bomb", "bombing", "explosion", "suicide", "isis", "al-qaeda", "al-shabaab", "taliban", "extremist"}},
	{"violence", 9, []string{"killed", "death", "dead", "murder", "massacre", "shooting", "violence", "violent", "casualty", "casualties", "injured", "wounded"}},
	{"security", 7, []string{"security", "military", "police", "troops", "forces", "army", "defense", "soldier", "deployment", "operation", "checkpoint"}},
	{"political_crisis", 8, []string{"coup", "overthrow", "revolution", "uprising", "protest", "unrest", "riot", "demonstration", "opposition", "crisis"}},
	{"crime", 7, []string{"crime", "gang", "cartel", "kidnap", "abduction", "trafficking", "smuggling", "corruption", "organized crime", "mafia"}},
	{"humanitarian", 6, []string{"humanitarian", "refugee", "displaced", "famine", "hunger", "disease", "outbreak", "epidemic", "emergency", "disaster"}},
	{"natural_disaster", 6, []string{"earthquake", "tsunami", "hurricane", "typhoon", "flood", "drought", "volcano", "wildfire", "storm", "cyclone"}},
	{"political", 5, []string{"election", "vote", "parliament", "president", "government", "minister", "politics", "referendum", "constitution", "sanctions"}},
	{"economic_crisis", 5, []string{"collapse", "crisis", "default", "inflation", "shortage", "poverty", "unemployment", "recession", "blockade", "embargo"}},
}

type compiled struct {
	Category
	matcher *keywords.Matcher
}

// Scorer scores articles against a category table. It holds no mutable state.
type Scorer struct {
	categories []compiled
}

// New compiles a category table. Invalid tables are rejected.
func New(categories []Category, mode keywords.Mode) (*Scorer, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("empty category table")
	}
	s := &Scorer{}
	seen := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		if c.Name == "" {
			return nil, fmt.Errorf("category with empty name")
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("duplicate category %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		if c.Weight <= 0 {
			return nil, fmt.Errorf("category %q: weight must be positive, got %d", c.Name, c.Weight)
		}
		m, err := keywords.NewMatcher(c.Keywords, mode)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", c.Name, err)
		}
		s.categories = append(s.categories, compiled{Category: c, matcher: m})
	}
	return s, nil
}

// NewDefault returns a scorer over DefaultCategories.
func NewDefault(mode keywords.Mode) *Scorer {
	s, err := New(DefaultCategories, mode)
	if err != nil {
		panic(err)
	}
	return s
}

// Score computes the relevance of one article from its title and summary.
// Each matching category adds its weight once.
func (s *Scorer) Score(a *news.Article) news.SecurityAnalysis {
	text := a.Text()
	result := news.SecurityAnalysis{Categories: []string{}, Keywords: []string{}}
	for _, c := range s.categories {
		hits := c.matcher.Hits(text)
		if len(hits) == 0 {
			continue
		}
		result.Score += c.Weight
		result.Categories = append(result.Categories, c.Name)
		for _, kw := range hits {
			result.Keywords = appendUnique(result.Keywords, kw)
		}
	}
	result.IsRelevant = result.Score >= RelevantThreshold
	return result
}

// Annotate attaches a score to each article that does not already carry one.
func (s *Scorer) Annotate(articles []*news.Article) {
	for _, a := range articles {
		if a.Scored() {
			continue
		}
		analysis := s.Score(a)
		a.Security = &analysis
		a.RelevanceScore = analysis.Score
		a.Categories = analysis.Categories
	}
}

// FilterRelevant returns the annotated articles scoring at least min,
// highest first. Ties keep their input order.
func FilterRelevant(articles []*news.Article, min int) []*news.Article {
	var out []*news.Article
	for _, a := range articles {
		if a.RelevanceScore >= min {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	return out
}

// TopCategories returns the n most frequent categories across annotated
// articles. Ties are broken by name.
func TopCategories(articles []*news.Article, n int) []string {
	counts := make(map[string]int)
	for _, a := range articles {
		for _, c := range a.Categories {
			counts[c]++
		}
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
