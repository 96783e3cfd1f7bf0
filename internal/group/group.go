// Package group partitions articles into per-country buckets and themes.
package group

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/intelbrief/internal/keywords"
	"github.com/TobiSchelling/intelbrief/internal/news"
)

// Theme names.
const (
	Security     = "security"
	Economic     = "economic"
	Political    = "political"
	Humanitarian = "humanitarian"
)

// Theme is a named keyword list used for non-exclusive topical tagging.
type Theme struct {
	Name     string
	Keywords []string
}

// DefaultThemes is the built-in theme table.
var DefaultThemes = []Theme{
	{Security, []string{"attack", "threat", "conflict", "crisis", "violence", "military", "terrorist", "bombing", "explosion", "killed", "wounded", "fighting", "sanctions", "tensions", "war", "missile", "nuclear"}},
	{Economic, []string{"economy", "economic", "trade", "sanctions", "gdp", "inflation", "currency", "market", "financial", "investment", "growth", "recession"}},
	{Political, []string{"election", "government", "president", "minister", "parliament", "policy", "diplomatic", "democracy", "protest", "opposition", "coup"}},
	{Humanitarian, []string{"humanitarian", "refugee", "aid", "crisis", "hunger", "famine", "disease", "hospital", "emergency", "disaster", "flood", "earthquake"}},
}

// DefaultAliases maps a country to extra names that identify it in headlines.
var DefaultAliases = map[string][]string{
	"United States":  {"United States", "America", "Washington", "Pentagon", "White House"},
	"China":          {"Chinese", "Beijing", "Shanghai", "Xi Jinping"},
	"Russia":         {"Russian", "Moscow", "Kremlin", "Putin"},
	"United Kingdom": {"Britain", "British", "England", "London", "Westminster"},
	"Ukraine":        {"Ukrainian", "Kyiv", "Kiev", "Zelensky"},
	"Israel":         {"Israeli", "Tel Aviv", "Jerusalem"},
	"Iran":           {"Iranian", "Tehran"},
	"North Korea":    {"DPRK", "Pyongyang", "Kim Jong"},
	"Taiwan":         {"Taiwanese", "Taipei"},
	"India":          {"Indian", "Delhi", "Mumbai", "Modi"},
	"Japan":          {"Japanese", "Tokyo"},
	"Germany":        {"German", "Berlin", "Munich"},
	"France":         {"French", "Paris", "Macron"},
	"Haiti":          {"Haitian", "Port-au-Prince"},
	"Somalia":        {"Somali", "Mogadishu", "al-Shabaab"},
	"Afghanistan":    {"Afghan", "Kabul", "Taliban"},
	"Pakistan":       {"Pakistani", "Islamabad", "Karachi"},
	"Nigeria":        {"Nigerian", "Lagos", "Abuja"},
	"South Africa":   {"South African", "Johannesburg", "Cape Town"},
	"Brazil":         {"Brazilian", "Brasilia", "São Paulo"},
	"Mexico":         {"Mexican", "Mexico City"},
	"Yemen":          {"Yemeni", "Sanaa", "Houthi"},
	"Sudan":          {"Sudanese", "Khartoum", "Darfur"},
}

type compiledTheme struct {
	name    string
	matcher *keywords.Matcher
}

// Grouper assigns articles to countries and themes. It holds no mutable state.
type Grouper struct {
	mode    keywords.Mode
	themes  []compiledTheme
	aliases map[string][]string // lower-cased country -> aliases
}

// New compiles a theme table and alias map.
func New(themes []Theme, aliases map[string][]string, mode keywords.Mode) (*Grouper, error) {
	g := &Grouper{mode: mode, aliases: make(map[string][]string, len(aliases))}
	seen := make(map[string]struct{}, len(themes))
	for _, t := range themes {
		if t.Name == "" {
			return nil, fmt.Errorf("theme with empty name")
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("duplicate theme %q", t.Name)
		}
		seen[t.Name] = struct{}{}
		m, err := keywords.NewMatcher(t.Keywords, mode)
		if err != nil {
			return nil, fmt.Errorf("theme %q: %w", t.Name, err)
		}
		g.themes = append(g.themes, compiledTheme{name: t.Name, matcher: m})
	}
	for country, list := range aliases {
		key := strings.ToLower(strings.TrimSpace(country))
		g.aliases[key] = append(g.aliases[key], list...)
	}
	return g, nil
}

// NewDefault returns a grouper over DefaultThemes and DefaultAliases.
func NewDefault(mode keywords.Mode) *Grouper {
	g, err := New(DefaultThemes, DefaultAliases, mode)
	if err != nil {
		panic(err)
	}
	return g
}

// ThemeNames returns the configured theme names in table order.
func (g *Grouper) ThemeNames() []string {
	names := make([]string, len(g.themes))
	for i, t := range g.themes {
		names[i] = t.name
	}
	return names
}

// ValidateCountries checks a requested country list and returns the
// trimmed names. Blank and duplicate names are rejected.
func ValidateCountries(countries []string) ([]string, error) {
	out := make([]string, 0, len(countries))
	seen := make(map[string]struct{}, len(countries))
	for i, c := range countries {
		name := strings.TrimSpace(c)
		if name == "" {
			return nil, fmt.Errorf("country %d is blank", i)
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate country %q", name)
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

// Group builds one bucket per requested country. An article matches a
// country when its title or summary contains the country name or one of its
// aliases; it may land in several buckets. Untitled articles are skipped.
// The input slice is not modified and buckets share the article pointers.
func (g *Grouper) Group(articles []*news.Article, countries []string) (map[string]*news.Bucket, error) {
	names, err := ValidateCountries(countries)
	if err != nil {
		return nil, err
	}

	matchers := make([]*keywords.Matcher, len(names))
	for i, name := range names {
		terms := append([]string{name}, g.aliases[strings.ToLower(name)]...)
		m, err := keywords.NewMatcher(terms, g.mode)
		if err != nil {
			return nil, fmt.Errorf("country %q: %w", name, err)
		}
		matchers[i] = m
	}

	buckets := make(map[string]*news.Bucket, len(names))
	for _, name := range names {
		buckets[name] = news.NewBucket(name)
	}

	for _, a := range articles {
		if strings.TrimSpace(a.Title) == "" {
			continue
		}
		text := a.Text()
		var themes []string
		for i, name := range names {
			if !matchers[i].Matches(text) {
				continue
			}
			if themes == nil {
				themes = g.Themes(a)
			}
			b := buckets[name]
			b.Add(a)
			for _, t := range themes {
				b.Themes[t] = append(b.Themes[t], a)
			}
		}
	}
	return buckets, nil
}

// Themes returns every theme the article matches, in table order.
func (g *Grouper) Themes(a *news.Article) []string {
	text := a.Text()
	themes := []string{}
	for _, t := range g.themes {
		if t.matcher.Matches(text) {
			themes = append(themes, t.name)
		}
	}
	return themes
}
