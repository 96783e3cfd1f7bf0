// Package keywords matches keyword lists against article text, either as raw
// substrings (Aho-Corasick) or as whole words.
package keywords

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Mode selects how keywords are matched against text.
type Mode string

const (
	// Substring matches a keyword anywhere, including inside longer words
	// ("war" matches "warranty").
	Substring Mode = "substring"
	// Word matches a keyword only on word boundaries.
	Word Mode = "word"
)

// ParseMode parses a configured match mode. Empty means Substring.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", Substring:
		return Substring, nil
	case Word:
		return Word, nil
	}
	return "", fmt.Errorf("unknown match mode %q (want %q or %q)", s, Substring, Word)
}

// Matcher tests text against a fixed keyword list, case-insensitively.
// A Matcher is safe for concurrent use.
type Matcher struct {
	mode     Mode
	keywords []string
	ac       *ahocorasick.Matcher
	re       *regexp.Regexp
}

// NewMatcher compiles keywords for the given mode. Keywords are lower-cased
// and deduplicated; an empty list or a blank keyword is an error.
func NewMatcher(words []string, mode Mode) (*Matcher, error) {
	if len(words) == 0 {
		return nil, fmt.Errorf("empty keyword list")
	}

	seen := make(map[string]struct{}, len(words))
	normalized := make([]string, 0, len(words))
	for _, w := range words {
		kw := strings.ToLower(strings.TrimSpace(w))
		if kw == "" {
			return nil, fmt.Errorf("blank keyword in list %v", words)
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		normalized = append(normalized, kw)
	}

	m := &Matcher{mode: mode, keywords: normalized}
	switch mode {
	case Substring:
		m.ac = ahocorasick.NewStringMatcher(normalized)
	case Word:
		quoted := make([]string, len(normalized))
		for i, kw := range normalized {
			quoted[i] = regexp.QuoteMeta(kw)
		}
		// Longest first so phrases win over their own prefixes.
		sort.SliceStable(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
		m.re = regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
	default:
		return nil, fmt.Errorf("unknown match mode %q", mode)
	}
	return m, nil
}

// MustMatcher is NewMatcher for built-in tables; it panics on error.
func MustMatcher(words []string, mode Mode) *Matcher {
	m, err := NewMatcher(words, mode)
	if err != nil {
		panic(err)
	}
	return m
}

// Keywords returns the normalized keyword list.
func (m *Matcher) Keywords() []string {
	return m.keywords
}

// Matches reports whether any keyword occurs in text.
func (m *Matcher) Matches(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	if m.mode == Word {
		return m.re.MatchString(lower)
	}
	return len(m.ac.MatchThreadSafe([]byte(lower))) > 0
}

// Hits returns the distinct keywords found in text, in keyword-list order.
func (m *Matcher) Hits(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	found := make(map[string]struct{})
	if m.mode == Word {
		for _, s := range m.re.FindAllString(lower, -1) {
			found[s] = struct{}{}
		}
	} else {
		for _, idx := range m.ac.MatchThreadSafe([]byte(lower)) {
			if idx < len(m.keywords) {
				found[m.keywords[idx]] = struct{}{}
			}
		}
	}

	var hits []string
	for _, kw := range m.keywords {
		if _, ok := found[kw]; ok {
			hits = append(hits, kw)
		}
	}
	return hits
}
