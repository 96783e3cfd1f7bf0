// Package compose assembles the final per-country report.
package compose

import (
	"fmt"
	"sort"
	"strings"

	"github.com/TobiSchelling/intelbrief/internal/group"
	"github.com/TobiSchelling/intelbrief/internal/news"
	"github.com/TobiSchelling/intelbrief/internal/score"
)

const (
	// MaxKeyPoints caps the bullet list of a report.
	MaxKeyPoints = 5
	// MaxTopCategories caps the relevance categories listed on a report.
	MaxTopCategories = 3

	keyPointChars = 100
	topicKeyChars = 30
)

// Narrative is the synthesizer output carried into a report.
type Narrative struct {
	Text   string
	Origin news.NarrativeOrigin
	Note   string
}

// Assemble builds the report for one country. It is a pure function of its
// inputs; GeneratedAt is left for the caller to stamp.
func Assemble(country string, b *news.Bucket, n Narrative, level news.ThreatLevel) *news.Report {
	if b == nil {
		b = news.NewBucket(country)
	}

	sources := append([]string(nil), b.Sources...)
	if sources == nil {
		sources = []string{}
	}

	return &news.Report{
		Country:          country,
		Narrative:        n.Text,
		NarrativeOrigin:  n.Origin,
		ExecutiveSummary: ExecutiveSummary(country, b),
		ThreatLevel:      level,
		KeyPoints:        KeyPoints(b.Articles, MaxKeyPoints),
		ArticleCount:     len(b.Articles),
		Sources:          sources,
		Themes:           b.ThemeCounts(),
		TopCategories:    score.TopCategories(b.Articles, MaxTopCategories),
		Note:             n.Note,
	}
}

// ExecutiveSummary is a short template built from theme counts. It does not
// depend on the narrative.
func ExecutiveSummary(country string, b *news.Bucket) string {
	if b == nil || len(b.Articles) == 0 {
		return fmt.Sprintf("No significant intelligence available for %s in the current reporting period.", country)
	}

	parts := []string{fmt.Sprintf("Analysis of %d reports from %d sources reveals significant developments in %s.",
		len(b.Articles), len(b.Sources), country)}

	if n := len(b.Themes[group.Security]); n > 0 {
		parts = append(parts, fmt.Sprintf("Security concerns dominate with %d threat-related reports.", n))
	}
	if n := len(b.Themes[group.Political]); n > 0 {
		parts = append(parts, fmt.Sprintf("Political developments include %d significant events.", n))
	}
	if n := len(b.Themes[group.Economic]); n > 0 {
		parts = append(parts, fmt.Sprintf("Economic reporting covers %d articles.", n))
	}
	if n := len(b.Themes[group.Humanitarian]); n > 0 {
		parts = append(parts, fmt.Sprintf("Humanitarian issues reported in %d articles require attention.", n))
	}

	return strings.Join(parts, " ")
}

// KeyPoints returns up to max distinct bullet points, most relevant first.
// A point is the title, or the leading summary fragment when the title is long;
// points sharing the same lower-cased 30-character prefix are dropped.
func KeyPoints(articles []*news.Article, max int) []string {
	ranked := append([]*news.Article(nil), articles...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RelevanceScore > ranked[j].RelevanceScore
	})

	points := []string{}
	seen := make(map[string]struct{})
	for _, a := range ranked {
		if len(points) >= max {
			break
		}
		point := keyPoint(a)
		if point == "" {
			continue
		}
		key := topicKey(point)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		points = append(points, point)
	}
	return points
}

func keyPoint(a *news.Article) string {
	title := strings.TrimSpace(a.Title)
	if len([]rune(title)) < keyPointChars {
		return title
	}
	summary := strings.TrimSpace(a.Summary)
	if summary == "" {
		summary = title
	}
	if r := []rune(summary); len(r) > keyPointChars {
		return strings.TrimSpace(string(r[:keyPointChars]))
	}
	return summary
}

func topicKey(point string) string {
	r := []rune(strings.ToLower(point))
	if len(r) > topicKeyChars {
		r = r[:topicKeyChars]
	}
	return string(r)
}
