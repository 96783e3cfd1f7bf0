package pipeline

import (
	"strings"
	"time"

	"github.com/TobiSchelling/intelbrief/internal/config"
	"github.com/TobiSchelling/intelbrief/internal/database"
	"github.com/TobiSchelling/intelbrief/internal/group"
	"github.com/TobiSchelling/intelbrief/internal/keywords"
	"github.com/TobiSchelling/intelbrief/internal/optimize"
	"github.com/TobiSchelling/intelbrief/internal/score"
	"github.com/TobiSchelling/intelbrief/internal/synthesize"
	"github.com/TobiSchelling/intelbrief/internal/threat"
)

// OptionsFromConfig converts the analysis, optimizer and summarization
// sections into engine options. Empty keyword tables keep the built-in ones.
// Collaborators (provider, extractor, cache) are left for the caller.
func OptionsFromConfig(cfg *config.Config, watchlist []database.WatchedCountry) (Options, error) {
	mode, err := keywords.ParseMode(cfg.Analysis.MatchMode)
	if err != nil {
		return Options{}, err
	}

	opts := Options{
		Mode:         mode,
		Aliases:      MergeAliases(cfg.Countries, watchlist),
		Focus:        MergeFocus(cfg.Countries, watchlist),
		MinRelevance: cfg.Analysis.MinRelevance,
		Limits: optimize.Limits{
			MaxArticles:   cfg.Optimizer.MaxArticles,
			MaxTitleLen:   cfg.Optimizer.MaxTitleLength,
			MaxSummaryLen: cfg.Optimizer.MaxSummaryLength,
		},
		Synth: synthesize.Options{
			MaxTokens:         cfg.Summarization.MaxTokens,
			Timeout:           time.Duration(cfg.Summarization.TimeoutSeconds) * time.Second,
			MaxPromptArticles: cfg.Summarization.MaxPromptArticles,
		},
		Verbose: cfg.IsDebug(),
	}

	if len(cfg.Analysis.Categories) > 0 {
		for _, g := range cfg.Analysis.Categories {
			opts.Categories = append(opts.Categories, score.Category{Name: g.Name, Weight: g.Weight, Keywords: g.Keywords})
		}
	}
	if len(cfg.Analysis.Themes) > 0 {
		for _, g := range cfg.Analysis.Themes {
			opts.Themes = append(opts.Themes, group.Theme{Name: g.Name, Keywords: g.Keywords})
		}
	}
	if len(cfg.Analysis.Severity) > 0 {
		for _, g := range cfg.Analysis.Severity {
			opts.Severity = append(opts.Severity, threat.Tier{Name: g.Name, Severity: g.Weight, Keywords: g.Keywords})
		}
	}
	if len(cfg.Analysis.Priority) > 0 {
		for _, g := range cfg.Analysis.Priority {
			opts.Priority = append(opts.Priority, optimize.Tier{
				Name:          g.Name,
				TitlePoints:   g.Weight,
				SummaryPoints: g.SummaryWeight,
				Keywords:      g.Keywords,
			})
		}
	}
	return opts, nil
}

// MergeAliases returns the built-in alias table extended with the aliases of
// configured and watched countries. Keys are lowercase.
func MergeAliases(countries []config.Country, watchlist []database.WatchedCountry) map[string][]string {
	merged := make(map[string][]string, len(group.DefaultAliases)+len(countries)+len(watchlist))
	add := func(name string, aliases []string) {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			return
		}
		for _, alias := range aliases {
			if strings.TrimSpace(alias) != "" {
				merged[key] = append(merged[key], alias)
			}
		}
	}
	for name, aliases := range group.DefaultAliases {
		add(name, aliases)
	}
	for _, c := range countries {
		add(c.Name, c.Aliases)
	}
	for _, w := range watchlist {
		add(w.Country, w.Aliases)
	}
	return merged
}

// MergeFocus collects per-country focus areas keyed by lowercase name.
// A watchlist focus overrides the configured one.
func MergeFocus(countries []config.Country, watchlist []database.WatchedCountry) map[string]string {
	merged := make(map[string]string)
	add := func(name, focus string) {
		key := strings.ToLower(strings.TrimSpace(name))
		focus = strings.TrimSpace(focus)
		if key != "" && focus != "" {
			merged[key] = focus
		}
	}
	for _, c := range countries {
		add(c.Name, c.Focus)
	}
	for _, w := range watchlist {
		if w.Focus != nil {
			add(w.Country, *w.Focus)
		}
	}
	return merged
}

// ResolveCountries picks the countries to report on: explicit names win,
// otherwise configured countries followed by active watchlist entries, with
// case-insensitive duplicates removed.
func ResolveCountries(explicit []string, cfg *config.Config, watchlist []database.WatchedCountry) []string {
	if len(explicit) > 0 {
		return explicit
	}
	var names []string
	seen := make(map[string]bool)
	add := func(name string) {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		names = append(names, strings.TrimSpace(name))
	}
	for _, c := range cfg.Countries {
		add(c.Name)
	}
	for _, w := range watchlist {
		if w.IsActive {
			add(w.Country)
		}
	}
	return names
}
