package database

import (
	"database/sql"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/TobiSchelling/intelbrief/internal/news"
)

const articleColumns = "id, url, title, summary, source, published_date, tags, period_id, collected_at"

// InsertArticle inserts an article. Returns the ID on success, 0 if duplicate.
func (db *DB) InsertArticle(url, title string, summary, source, publishedDate *string, tags []string, periodID *string) (int64, error) {
	var tagsJSON *string
	if len(tags) > 0 {
		data, err := json.Marshal(tags)
		if err != nil {
			return 0, err
		}
		s := string(data)
		tagsJSON = &s
	}

	result, err := db.conn.Exec(
		`INSERT INTO articles (url, title, summary, source, published_date, tags, period_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		url, title, summary, source, publishedDate, tagsJSON, periodID,
	)
	if err != nil {
		// Duplicate URL constraint
		return 0, nil //nolint: nilerr
	}
	return result.LastInsertId()
}

// SaveArticles stores collected articles for a period and returns how many were new.
func (db *DB) SaveArticles(articles []*news.Article, periodID string) (int, error) {
	inserted := 0
	for _, a := range articles {
		if a.Link == "" || a.Title == "" {
			continue
		}
		id, err := db.InsertArticle(a.Link, a.Title, optional(a.Summary), optional(a.Source),
			optional(a.Published), a.Tags, &periodID)
		if err != nil {
			return inserted, err
		}
		if id > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// GetArticlesForPeriod returns articles for a given period, ordered by collected_at DESC.
func (db *DB) GetArticlesForPeriod(periodID string) ([]Article, error) {
	rows, err := db.conn.Query(
		"SELECT "+articleColumns+" FROM articles WHERE period_id = ? ORDER BY collected_at DESC, id DESC",
		periodID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// ArticleFilter narrows QueryArticles. Zero values are ignored.
type ArticleFilter struct {
	Since  time.Time
	Source string
	Limit  int
}

// QueryArticles returns articles matching the filter, newest first.
func (db *DB) QueryArticles(f ArticleFilter) ([]Article, error) {
	q := sq.Select(articleColumns).From("articles").OrderBy("collected_at DESC", "id DESC")
	if !f.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"collected_at": f.Since.UTC().Format(sqliteTime)})
	}
	if f.Source != "" {
		q = q.Where(sq.Eq{"source": f.Source})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// GetArticleByID returns a single article by ID.
func (db *DB) GetArticleByID(articleID int64) (*Article, error) {
	row := db.conn.QueryRow("SELECT "+articleColumns+" FROM articles WHERE id = ?", articleID)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ToNews converts a stored row into a pipeline article.
func (a Article) ToNews() *news.Article {
	return &news.Article{
		Title:     a.Title,
		Summary:   deref(a.Summary),
		Link:      a.URL,
		Source:    deref(a.Source),
		Published: deref(a.PublishedDate),
		Tags:      a.Tags,
	}
}

// ToNewsArticles converts stored rows into pipeline articles.
func ToNewsArticles(rows []Article) []*news.Article {
	out := make([]*news.Article, 0, len(rows))
	for _, a := range rows {
		out = append(out, a.ToNews())
	}
	return out
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArticles(rows *sql.Rows) ([]Article, error) {
	var articles []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

func scanArticle(row scanner) (*Article, error) {
	var a Article
	var tagsJSON *string
	if err := row.Scan(&a.ID, &a.URL, &a.Title, &a.Summary, &a.Source, &a.PublishedDate,
		&tagsJSON, &a.PeriodID, &a.CollectedAt); err != nil {
		return nil, err
	}
	if tagsJSON != nil {
		if err := json.Unmarshal([]byte(*tagsJSON), &a.Tags); err != nil {
			a.Tags = nil
		}
	}
	return &a, nil
}

// sqliteTime matches the format of SQLite's datetime('now').
const sqliteTime = "2006-01-02 15:04:05"

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
