package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/TobiSchelling/intelbrief/internal/news"
)

const reportColumns = `id, run_id, country, period_id, threat_level, narrative, narrative_origin,
	executive_summary, key_points, sources, themes, top_categories, article_count, note, generated_at`

// SaveRun stores a run and its reports in one transaction.
func (db *DB) SaveRun(runID, periodID, focus string, articleCount int, reports []*news.Report) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO runs (run_id, period_id, focus, country_count, article_count) VALUES (?, ?, ?, ?, ?)`,
		runID, periodID, optional(focus), len(reports), articleCount,
	); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for _, r := range reports {
		if err := insertReport(tx, runID, periodID, r); err != nil {
			return fmt.Errorf("inserting report for %s: %w", r.Country, err)
		}
	}
	return tx.Commit()
}

func insertReport(tx *sql.Tx, runID, periodID string, r *news.Report) error {
	keyPoints, err := json.Marshal(r.KeyPoints)
	if err != nil {
		return err
	}
	sources, err := json.Marshal(r.Sources)
	if err != nil {
		return err
	}
	themes, err := json.Marshal(r.Themes)
	if err != nil {
		return err
	}
	categories, err := json.Marshal(r.TopCategories)
	if err != nil {
		return err
	}

	generated := r.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	_, err = tx.Exec(
		`INSERT INTO reports (run_id, country, period_id, threat_level, narrative, narrative_origin,
		executive_summary, key_points, sources, themes, top_categories, article_count, note, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, r.Country, periodID, r.ThreatLevel.String(), r.Narrative, string(r.NarrativeOrigin),
		r.ExecutiveSummary, string(keyPoints), string(sources), string(themes), string(categories),
		r.ArticleCount, optional(r.Note), generated.UTC().Format(sqliteTime),
	)
	return err
}

// ReportFilter narrows QueryReports. Zero values are ignored.
type ReportFilter struct {
	Country  string
	MinLevel news.ThreatLevel
	RunID    string
	Limit    int
}

// QueryReports returns stored reports matching the filter, newest first.
func (db *DB) QueryReports(f ReportFilter) ([]StoredReport, error) {
	q := sq.Select(reportColumns).From("reports").OrderBy("generated_at DESC", "id DESC")
	if f.Country != "" {
		q = q.Where("country = ? COLLATE NOCASE", f.Country)
	}
	if f.MinLevel > news.Undetermined {
		var levels []string
		for l := f.MinLevel; l <= news.Critical; l++ {
			levels = append(levels, l.String())
		}
		q = q.Where(sq.Eq{"threat_level": levels})
	}
	if f.RunID != "" {
		q = q.Where(sq.Eq{"run_id": f.RunID})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	return db.queryReports(query, args...)
}

// GetLatestReports returns the most recent report for every country, sorted by country.
func (db *DB) GetLatestReports() ([]StoredReport, error) {
	return db.queryReports(
		"SELECT " + reportColumns + ` FROM reports
		WHERE id IN (SELECT MAX(id) FROM reports GROUP BY country COLLATE NOCASE)
		ORDER BY country COLLATE NOCASE`,
	)
}

// GetReport returns a single report by ID.
func (db *DB) GetReport(reportID int64) (*StoredReport, error) {
	reports, err := db.queryReports("SELECT "+reportColumns+" FROM reports WHERE id = ?", reportID)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, nil
	}
	return &reports[0], nil
}

// GetRuns returns the most recent runs.
func (db *DB) GetRuns(limit int) ([]Run, error) {
	rows, err := db.conn.Query(
		`SELECT id, run_id, period_id, focus, country_count, article_count, generated_at
		FROM runs ORDER BY generated_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.RunID, &r.PeriodID, &r.Focus, &r.CountryCount,
			&r.ArticleCount, &r.GeneratedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetLastRunDate returns the end date of the most recent run's period.
// Returns empty string if no runs exist.
func (db *DB) GetLastRunDate() (string, error) {
	row := db.conn.QueryRow("SELECT period_id FROM runs ORDER BY generated_at DESC, id DESC LIMIT 1")

	var periodID string
	if err := row.Scan(&periodID); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return PeriodEndDate(periodID), nil
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM articles", &s.TotalArticles},
		{"SELECT COUNT(DISTINCT period_id) FROM articles", &s.PeriodsWithArticles},
		{"SELECT COUNT(*) FROM runs", &s.Runs},
		{"SELECT COUNT(*) FROM reports", &s.Reports},
		{"SELECT COUNT(*) FROM watchlist", &s.WatchedCountries},
		{"SELECT COUNT(*) FROM watchlist WHERE is_active = 1", &s.ActiveCountries},
		{"SELECT COUNT(*) FROM content_cache", &s.CachedPages},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (db *DB) queryReports(query string, args ...any) ([]StoredReport, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []StoredReport
	for rows.Next() {
		var r StoredReport
		var keyPoints, sources, themes, categories *string
		if err := rows.Scan(&r.ID, &r.RunID, &r.Country, &r.PeriodID, &r.ThreatLevel, &r.Narrative,
			&r.NarrativeOrigin, &r.ExecutiveSummary, &keyPoints, &sources, &themes, &categories,
			&r.ArticleCount, &r.Note, &r.GeneratedAt); err != nil {
			return nil, err
		}
		decodeJSON(keyPoints, &r.KeyPoints)
		decodeJSON(sources, &r.Sources)
		decodeJSON(themes, &r.Themes)
		decodeJSON(categories, &r.TopCategories)
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// ToNews converts a stored row back into a report.
func (r StoredReport) ToNews() *news.Report {
	level, err := news.ParseThreatLevel(r.ThreatLevel)
	if err != nil {
		level = news.Undetermined
	}
	out := &news.Report{
		Country:          r.Country,
		Narrative:        r.Narrative,
		NarrativeOrigin:  news.NarrativeOrigin(r.NarrativeOrigin),
		ExecutiveSummary: r.ExecutiveSummary,
		ThreatLevel:      level,
		KeyPoints:        r.KeyPoints,
		ArticleCount:     r.ArticleCount,
		Sources:          r.Sources,
		Themes:           r.Themes,
		TopCategories:    r.TopCategories,
		Note:             deref(r.Note),
	}
	if r.GeneratedAt != nil {
		if t, err := time.Parse(sqliteTime, *r.GeneratedAt); err == nil {
			out.GeneratedAt = t
		}
	}
	return out
}

// decodeJSON leaves dest untouched when the column is NULL or malformed.
func decodeJSON(column *string, dest any) {
	if column == nil {
		return
	}
	_ = json.Unmarshal([]byte(*column), dest)
}
