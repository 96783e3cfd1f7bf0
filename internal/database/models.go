package database

// Article represents a collected article row.
type Article struct {
	ID            int64
	URL           string
	Title         string
	Summary       *string
	Source        *string
	PublishedDate *string
	Tags          []string
	PeriodID      *string
	CollectedAt   *string
}

// Run holds metadata about one synthesis run.
type Run struct {
	ID           int64
	RunID        string
	PeriodID     string
	Focus        *string
	CountryCount int
	ArticleCount int
	GeneratedAt  *string
}

// StoredReport is a persisted country report.
type StoredReport struct {
	ID               int64
	RunID            string
	Country          string
	PeriodID         string
	ThreatLevel      string
	Narrative        string
	NarrativeOrigin  string
	ExecutiveSummary string
	KeyPoints        []string
	Sources          []string
	Themes           map[string]int
	TopCategories    []string
	ArticleCount     int
	Note             *string
	GeneratedAt      *string
}

// WatchedCountry is a country on the user's watchlist.
type WatchedCountry struct {
	ID        int64
	Country   string
	Aliases   []string
	Focus     *string
	IsActive  bool
	CreatedAt *string
	UpdatedAt *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalArticles       int
	PeriodsWithArticles int
	Runs                int
	Reports             int
	WatchedCountries    int
	ActiveCountries     int
	CachedPages         int
}
