// Package dedupe collapses articles that share a title.
package dedupe

import (
	"strings"

	"github.com/TobiSchelling/intelbrief/internal/news"
)

// Key returns the dedup key for an article: its lower-cased title.
// Articles without a title all share the empty key.
func Key(a *news.Article) string {
	return strings.ToLower(a.Title)
}

// Dedupe keeps the first article seen for each key, in input order.
func Dedupe(articles []*news.Article) []*news.Article {
	seen := make(map[string]struct{}, len(articles))
	unique := make([]*news.Article, 0, len(articles))
	for _, a := range articles {
		k := Key(a)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, a)
	}
	return unique
}
