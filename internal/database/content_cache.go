package database

import (
	"database/sql"
	"time"
)

// GetCachedContent returns extracted text for url if it was fetched within maxAge.
func (db *DB) GetCachedContent(url string, maxAge time.Duration) (string, bool, error) {
	cutoff := time.Now().Add(-maxAge).UTC().Format(sqliteTime)
	var content string
	err := db.conn.QueryRow(
		"SELECT content FROM content_cache WHERE url = ? AND fetched_at >= ?", url, cutoff,
	).Scan(&content)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return content, true, nil
}

// PutCachedContent stores extracted text for url, replacing any previous entry.
func (db *DB) PutCachedContent(url, content string) error {
	_, err := db.conn.Exec(
		`INSERT INTO content_cache (url, content, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET content = excluded.content, fetched_at = excluded.fetched_at`,
		url, content, time.Now().UTC().Format(sqliteTime),
	)
	return err
}

// PruneContentCache deletes entries older than maxAge and returns how many were removed.
func (db *DB) PruneContentCache(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UTC().Format(sqliteTime)
	result, err := db.conn.Exec("DELETE FROM content_cache WHERE fetched_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
