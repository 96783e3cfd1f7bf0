package synthesize

import (
	"fmt"
	"strings"
	"time"

	"github.com/TobiSchelling/intelbrief/internal/news"
)

const (
	promptTitleChars   = 100
	promptContentChars = 500
)

const basePrompt = `You are a security intelligence analyst. Today's date is %s.
Analyze these RECENT articles about %s and write a 3-paragraph briefing.
Remember: these are current events reported in the days before %s, not historical events.

%s`

const defaultInstructions = `

Write a professional intelligence assessment:

PARAGRAPH 1: Start with the most significant security development. Include specific dates, numbers, and actors from the articles.

PARAGRAPH 2: Analyze patterns and connections. What are the underlying causes? How do events relate?

PARAGRAPH 3: Assess implications for stability and what to watch next.

Be specific. Use facts from the articles. Include dates and numbers.`

const focusInstructions = `

USER FOCUS AREAS: %s

Write a professional intelligence assessment focusing on the areas mentioned above:

PARAGRAPH 1: Start with the most significant development related to the focus areas. Include specific dates, numbers, and actors.

PARAGRAPH 2: Analyze patterns and connections within the focus areas. What are the underlying causes?

PARAGRAPH 3: Assess implications specific to the focus areas and what to watch next.

Be specific. Use facts from the articles. Include dates and numbers.`

// BuildPrompt renders the model prompt for a country. It is a pure function of
// its arguments.
func BuildPrompt(country string, articles []*news.Article, focus string, now time.Time) string {
	date := now.Format("January 02, 2006")
	prompt := fmt.Sprintf(basePrompt, date, country, date, FormatArticles(articles))

	if focus = strings.TrimSpace(focus); focus != "" {
		return prompt + fmt.Sprintf(focusInstructions, focus)
	}
	return prompt + defaultInstructions
}

// FormatArticles renders the numbered article list used in prompts.
func FormatArticles(articles []*news.Article) string {
	parts := make([]string, 0, len(articles))
	for i, a := range articles {
		content := a.Body()
		if r := []rune(content); len(r) > promptContentChars {
			content = string(r[:promptContentChars]) + "..."
		}

		parts = append(parts, fmt.Sprintf("Article %d (%s):\nTitle: %s\nContent: %s\n",
			i+1, publishedDate(a.Published), clip(a.Title, promptTitleChars), content))
	}
	return strings.Join(parts, "\n")
}

func publishedDate(published string) string {
	published = strings.TrimSpace(published)
	if published == "" {
		return "Unknown date"
	}
	return clip(published, 10)
}

func clip(s string, max int) string {
	if r := []rune(s); len(r) > max {
		return string(r[:max])
	}
	return s
}
