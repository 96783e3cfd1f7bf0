package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources       Sources       `yaml:"sources"`
	Countries     []Country     `yaml:"countries"`
	Analysis      Analysis      `yaml:"analysis"`
	Optimizer     Optimizer     `yaml:"optimizer"`
	Extraction    Extraction    `yaml:"extraction"`
	Summarization Summarization `yaml:"summarization"`
	Cache         Cache         `yaml:"cache"`
	Schedule      Schedule      `yaml:"schedule"`
	Output        Output        `yaml:"output"`
	Server        Server        `yaml:"server"`
	Logging       Logging       `yaml:"logging"`
}

type Sources struct {
	Feeds      []Feed           `yaml:"feeds"`
	GoogleNews GoogleNewsConfig `yaml:"google_news"`
	APIs       APIsConfig       `yaml:"apis"`
	DaysBack   int              `yaml:"days_back"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type GoogleNewsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	When          string `yaml:"when"`
	SecurityQuery bool   `yaml:"security_query"`
	Language      string `yaml:"language"`
	Region        string `yaml:"region"`
}

type APIsConfig struct {
	NewsAPI NewsAPIConfig `yaml:"newsapi"`
}

type NewsAPIConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIKeyEnv string `yaml:"api_key_env"`
	Query     string `yaml:"query"`
}

// Country is a watched country with the aliases that identify it in headlines.
type Country struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
	Focus   string   `yaml:"focus"`
}

// KeywordGroup is one row of a keyword table. Weight is the relevance weight,
// severity, or title points depending on the table; SummaryWeight is only
// used by priority tiers.
type KeywordGroup struct {
	Name          string   `yaml:"name"`
	Weight        int      `yaml:"weight"`
	SummaryWeight int      `yaml:"summary_weight"`
	Keywords      []string `yaml:"keywords"`
}

// Analysis overrides the built-in keyword tables. Empty tables keep the defaults.
type Analysis struct {
	MatchMode    string         `yaml:"match_mode"`
	MinRelevance int            `yaml:"min_relevance"`
	Categories   []KeywordGroup `yaml:"categories"`
	Themes       []KeywordGroup `yaml:"themes"`
	Severity     []KeywordGroup `yaml:"severity"`
	Priority     []KeywordGroup `yaml:"priority"`
}

type Optimizer struct {
	MaxArticles      int `yaml:"max_articles"`
	MaxTitleLength   int `yaml:"max_title_length"`
	MaxSummaryLength int `yaml:"max_summary_length"`
}

type Extraction struct {
	Enabled        bool    `yaml:"enabled"`
	Workers        int     `yaml:"workers"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxArticles    int     `yaml:"max_articles"`
	RatePerSecond  float64 `yaml:"rate_per_second"`
	CacheHours     int     `yaml:"cache_hours"`
}

type Summarization struct {
	Provider          string `yaml:"provider"`
	Model             string `yaml:"model"`
	OllamaURL         string `yaml:"ollama_url"`
	OpenAIModel       string `yaml:"openai_model"`
	APIKeyEnv         string `yaml:"api_key_env"`
	GeminiModel       string `yaml:"gemini_model"`
	GeminiAPIKeyEnv   string `yaml:"gemini_api_key_env"`
	AnthropicModel    string `yaml:"anthropic_model"`
	AnthropicKeyEnv   string `yaml:"anthropic_api_key_env"`
	MaxTokens         int    `yaml:"max_tokens"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	MaxPromptArticles int    `yaml:"max_prompt_articles"`
}

type Cache struct {
	Size       int `yaml:"size"`
	TTLMinutes int `yaml:"ttl_minutes"`
}

type Schedule struct {
	Cron     string `yaml:"cron"`
	DaysBack int    `yaml:"days_back"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for intelbrief.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "intelbrief")
}

// DataDir returns the XDG data directory for intelbrief.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "intelbrief")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/intelbrief/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'intelbrief init' to create a default config",
		xdgConfig,
	)
}

// Load reads, parses and validates a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			GoogleNews: GoogleNewsConfig{
				Enabled:       true,
				When:          "1d",
				SecurityQuery: true,
				Language:      "en-US",
				Region:        "US",
			},
			APIs: APIsConfig{
				NewsAPI: NewsAPIConfig{
					Enabled:   true,
					APIKeyEnv: "NEWSAPI_KEY",
				},
			},
			DaysBack: 1,
		},
		Analysis: Analysis{MatchMode: "substring", MinRelevance: 0},
		Optimizer: Optimizer{
			MaxArticles:      15,
			MaxTitleLength:   100,
			MaxSummaryLength: 150,
		},
		Extraction: Extraction{
			Enabled:        true,
			Workers:        10,
			TimeoutSeconds: 3,
			MaxArticles:    20,
			RatePerSecond:  0,
			CacheHours:     24,
		},
		Summarization: Summarization{
			Provider:          "ollama",
			Model:             "qwen2.5:7b",
			OllamaURL:         "http://localhost:11434",
			OpenAIModel:       "gpt-4o-mini",
			APIKeyEnv:         "OPENAI_API_KEY",
			GeminiModel:       "gemini-1.5-flash",
			GeminiAPIKeyEnv:   "GEMINI_API_KEY",
			AnthropicModel:    "claude-3-5-haiku-latest",
			AnthropicKeyEnv:   "ANTHROPIC_API_KEY",
			MaxTokens:         1024,
			TimeoutSeconds:    60,
			MaxPromptArticles: 10,
		},
		Cache:    Cache{Size: 128, TTLMinutes: 30},
		Schedule: Schedule{Cron: "0 6 * * *", DaysBack: 1},
		Server:   Server{Port: 8000},
		Logging:  Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate rejects malformed country lists and keyword tables.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Analysis.MatchMode) {
	case "", "substring", "word":
	default:
		return fmt.Errorf("analysis.match_mode: unknown mode %q", c.Analysis.MatchMode)
	}

	seen := make(map[string]struct{}, len(c.Countries))
	for i, country := range c.Countries {
		name := strings.ToLower(strings.TrimSpace(country.Name))
		if name == "" {
			return fmt.Errorf("countries[%d]: empty name", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("countries[%d]: duplicate country %q", i, country.Name)
		}
		seen[name] = struct{}{}
	}

	tables := []struct {
		name          string
		groups        []KeywordGroup
		weighted      bool
		summaryWeight bool
	}{
		{"analysis.categories", c.Analysis.Categories, true, false},
		{"analysis.themes", c.Analysis.Themes, false, false},
		{"analysis.severity", c.Analysis.Severity, true, false},
		{"analysis.priority", c.Analysis.Priority, true, true},
	}
	for _, tbl := range tables {
		for i, g := range tbl.groups {
			if strings.TrimSpace(g.Name) == "" {
				return fmt.Errorf("%s[%d]: empty name", tbl.name, i)
			}
			if tbl.weighted && g.Weight <= 0 {
				return fmt.Errorf("%s[%d] %q: weight must be positive", tbl.name, i, g.Name)
			}
			if tbl.summaryWeight && g.SummaryWeight < 0 {
				return fmt.Errorf("%s[%d] %q: summary_weight must not be negative", tbl.name, i, g.Name)
			}
			if len(g.Keywords) == 0 {
				return fmt.Errorf("%s[%d] %q: no keywords", tbl.name, i, g.Name)
			}
			for _, kw := range g.Keywords {
				if strings.TrimSpace(kw) == "" {
					return fmt.Errorf("%s[%d] %q: blank keyword", tbl.name, i, g.Name)
				}
			}
		}
	}
	return nil
}

// CountryNames returns the configured country names in order.
func (c *Config) CountryNames() []string {
	names := make([]string, len(c.Countries))
	for i, country := range c.Countries {
		names[i] = country.Name
	}
	return names
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// IsDebug reports whether debug logging is enabled.
func (c *Config) IsDebug() bool {
	return strings.EqualFold(c.Logging.Level, "DEBUG")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
