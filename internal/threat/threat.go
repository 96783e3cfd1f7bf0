// Package threat reduces a country bucket to an ordinal threat level.
package threat

import (
	"fmt"
	"sort"

	"github.com/TobiSchelling/intelbrief/internal/keywords"
	"github.com/TobiSchelling/intelbrief/internal/news"
)

// Tier is a severity level with the keywords that trigger it.
type Tier struct {
	Name     string
	Severity int
	Keywords []string
}

// DefaultTiers is the built-in severity table.
var DefaultTiers = []Tier{
	{"critical", 4, []string{"killed", "dead", "death toll", "massacre", "genocide", "bombing", "airstrike", "missile strike", "drone strike"}},
	{"high", 3, []string{"explosion", "attack", "war", "combat", "fighting", "terrorist", "violence", "casualties", "wounded", "injured"}},
	{"moderate", 2, []string{"conflict", "crisis", "threat", "armed", "military", "security", "insurgent", "militant", "rebel"}},
	{"low", 1, []string{"tension", "protest", "sanctions", "dispute", "unrest"}},
}

type compiledTier struct {
	Tier
	matcher *keywords.Matcher
}

// Classifier assigns severities and threat levels. It holds no mutable state.
type Classifier struct {
	tiers []compiledTier // sorted by severity, highest first
}

// New compiles a tier table.
func New(tiers []Tier, mode keywords.Mode) (*Classifier, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("empty severity table")
	}
	c := &Classifier{}
	for _, t := range tiers {
		if t.Name == "" {
			return nil, fmt.Errorf("severity tier with empty name")
		}
		if t.Severity <= 0 {
			return nil, fmt.Errorf("tier %q: severity must be positive, got %d", t.Name, t.Severity)
		}
		m, err := keywords.NewMatcher(t.Keywords, mode)
		if err != nil {
			return nil, fmt.Errorf("tier %q: %w", t.Name, err)
		}
		c.tiers = append(c.tiers, compiledTier{Tier: t, matcher: m})
	}
	sort.SliceStable(c.tiers, func(i, j int) bool { return c.tiers[i].Severity > c.tiers[j].Severity })
	return c, nil
}

// NewDefault returns a classifier over DefaultTiers.
func NewDefault(mode keywords.Mode) *Classifier {
	c, err := New(DefaultTiers, mode)
	if err != nil {
		panic(err)
	}
	return c
}

// Severity returns the highest tier severity the article matches, or 0.
func (c *Classifier) Severity(a *news.Article) int {
	text := a.Text()
	for _, t := range c.tiers {
		if t.matcher.Matches(text) {
			return t.Severity
		}
	}
	return 0
}

// Assessment is the detail behind a threat level.
type Assessment struct {
	Level      news.ThreatLevel
	Mean       float64
	Severities []int
}

// Assess computes per-article severities and their mean for a bucket.
func (c *Classifier) Assess(b *news.Bucket) Assessment {
	if b == nil || len(b.Articles) == 0 {
		return Assessment{Level: news.Undetermined}
	}
	severities := make([]int, len(b.Articles))
	total := 0
	for i, a := range b.Articles {
		severities[i] = c.Severity(a)
		total += severities[i]
	}
	mean := float64(total) / float64(len(b.Articles))
	return Assessment{Level: LevelFor(mean), Mean: mean, Severities: severities}
}

// Classify returns the threat level for a bucket. An empty bucket is Undetermined.
func (c *Classifier) Classify(b *news.Bucket) news.ThreatLevel {
	return c.Assess(b).Level
}

// LevelFor maps a mean severity to a threat level.
func LevelFor(mean float64) news.ThreatLevel {
	switch {
	case mean >= 3.0:
		return news.Critical
	case mean >= 2.0:
		return news.High
	case mean >= 1.0:
		return news.Moderate
	case mean >= 0.5:
		return news.Low
	default:
		return news.Minimal
	}
}
