package synthesize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/TobiSchelling/intelbrief/internal/group"
	"github.com/TobiSchelling/intelbrief/internal/news"
)

const headlineChars = 100

// themeOrder fixes the section order of the fallback narrative.
var themeOrder = []string{group.Security, group.Political, group.Economic, group.Humanitarian}

var themeSections = map[string]struct {
	heading string
	lead    string
}{
	group.Security:     {"Security Developments", "%d reports indicate ongoing security concerns. Key incident: %s."},
	group.Political:    {"Political Landscape", "%d reports on political developments. Main story: %s."},
	group.Economic:     {"Economic Indicators", "%d reports on economic conditions. Key report: %s."},
	group.Humanitarian: {"Humanitarian Concerns", "%d reports document humanitarian needs. Key report: %s."},
}

// NoContentNarrative is the canned text for a country with no articles.
func NoContentNarrative(country string) string {
	return fmt.Sprintf("No significant developments in %s.", country)
}

// Fallback builds a deterministic narrative from bucket statistics. articles
// are the prompt candidates, used only to count extracted content; when nil the
// bucket's own articles are counted. The result is never empty for a bucket
// with at least one article.
func Fallback(country string, b *news.Bucket, articles []*news.Article) string {
	if b == nil || len(b.Articles) == 0 {
		return NoContentNarrative(country)
	}
	if articles == nil {
		articles = b.Articles
	}
	withContent := 0
	for _, a := range articles {
		if a.HasContent {
			withContent++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Analysis of %s based on %d reports", country, len(b.Articles))
	if withContent > 0 {
		fmt.Fprintf(&sb, " (%d with full content)", withContent)
	}
	fmt.Fprintf(&sb, " from %d sources.", len(b.Sources))

	themed := 0
	for _, name := range orderedThemes(b.Themes) {
		list := b.Themes[name]
		if len(list) == 0 {
			continue
		}
		themed++
		heading, lead := sectionFor(name)
		fmt.Fprintf(&sb, "\n\n**%s**\n\n", heading)
		fmt.Fprintf(&sb, lead, len(list), clip(representative(list).Title, headlineChars))
	}

	if themed == 0 {
		fmt.Fprintf(&sb, "\n\n**Recent Reporting**\n\nNo thematic pattern stands out. Most prominent report: %s.",
			clip(representative(b.Articles).Title, headlineChars))
	}

	sb.WriteString("\n\n**Assessment and Outlook**\n\n")
	sb.WriteString(assessment(country, b))
	return sb.String()
}

func assessment(country string, b *news.Bucket) string {
	security := float64(len(b.Themes[group.Security])) / float64(len(b.Articles))
	switch {
	case security > 0.5:
		return fmt.Sprintf("The situation in %s remains highly volatile, with security reporting dominating coverage. Close monitoring is recommended.", country)
	case security > 0.3:
		return fmt.Sprintf("Current trends in %s suggest a moderate to high risk of further deterioration. Enhanced monitoring is advised.", country)
	default:
		return fmt.Sprintf("While challenges persist in %s, reporting does not indicate an acute security crisis. Continued observation is recommended.", country)
	}
}

// representative returns the highest-scored article, earliest first on ties.
func representative(list []*news.Article) *news.Article {
	best := list[0]
	for _, a := range list[1:] {
		if a.RelevanceScore > best.RelevanceScore {
			best = a
		}
	}
	return best
}

// orderedThemes lists the well-known themes first, then any others by name.
func orderedThemes(themes map[string][]*news.Article) []string {
	known := make(map[string]bool, len(themeOrder))
	out := make([]string, 0, len(themes))
	for _, name := range themeOrder {
		known[name] = true
		if _, ok := themes[name]; ok {
			out = append(out, name)
		}
	}
	var extra []string
	for name := range themes {
		if !known[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

func sectionFor(theme string) (string, string) {
	if s, ok := themeSections[theme]; ok {
		return s.heading, s.lead
	}
	title := strings.ToUpper(theme[:1]) + theme[1:]
	return title + " Developments", "%d reports on " + theme + " developments. Key report: %s."
}
