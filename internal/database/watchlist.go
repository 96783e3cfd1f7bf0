package database

import (
	"encoding/json"
	"fmt"
	"strings"
)

// InsertWatchedCountry adds a country to the watchlist.
func (db *DB) InsertWatchedCountry(country, focus string, aliases []string) (int64, error) {
	var aliasJSON *string
	if aliases != nil {
		data, err := json.Marshal(aliases)
		if err != nil {
			return 0, err
		}
		s := string(data)
		aliasJSON = &s
	}

	result, err := db.conn.Exec(
		`INSERT INTO watchlist (country, aliases, focus) VALUES (?, ?, ?)`,
		country, aliasJSON, optional(focus),
	)
	if err != nil {
		return 0, fmt.Errorf("adding %s: %w", country, err)
	}
	return result.LastInsertId()
}

// GetWatchlist returns every watched country.
func (db *DB) GetWatchlist() ([]WatchedCountry, error) {
	return db.queryWatchlist("SELECT id, country, aliases, focus, is_active, created_at, updated_at FROM watchlist ORDER BY country")
}

// GetActiveWatchlist returns only active countries.
func (db *DB) GetActiveWatchlist() ([]WatchedCountry, error) {
	return db.queryWatchlist("SELECT id, country, aliases, focus, is_active, created_at, updated_at FROM watchlist WHERE is_active = 1 ORDER BY country")
}

// GetWatchedCountry returns a single entry by ID.
func (db *DB) GetWatchedCountry(id int64) (*WatchedCountry, error) {
	entries, err := db.queryWatchlist(
		"SELECT id, country, aliases, focus, is_active, created_at, updated_at FROM watchlist WHERE id = ?", id,
	)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// UpdateWatchedCountry updates specified fields of an entry.
func (db *DB) UpdateWatchedCountry(id int64, focus *string, aliases []string) error {
	var updates []string
	var args []any

	if focus != nil {
		updates = append(updates, "focus = ?")
		args = append(args, optional(*focus))
	}
	if aliases != nil {
		data, err := json.Marshal(aliases)
		if err != nil {
			return err
		}
		updates = append(updates, "aliases = ?")
		args = append(args, string(data))
	}
	if len(updates) == 0 {
		return nil
	}

	updates = append(updates, "updated_at = datetime('now')")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE watchlist SET %s WHERE id = ?", strings.Join(updates, ", "))
	_, err := db.conn.Exec(query, args...)
	return err
}

// ToggleWatchedCountry toggles the active state of an entry.
func (db *DB) ToggleWatchedCountry(id int64) error {
	_, err := db.conn.Exec(
		`UPDATE watchlist SET is_active = NOT is_active, updated_at = datetime('now') WHERE id = ?`, id,
	)
	return err
}

// DeleteWatchedCountry removes an entry.
func (db *DB) DeleteWatchedCountry(id int64) error {
	_, err := db.conn.Exec("DELETE FROM watchlist WHERE id = ?", id)
	return err
}

func (db *DB) queryWatchlist(query string, args ...any) ([]WatchedCountry, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []WatchedCountry
	for rows.Next() {
		w, err := scanWatchedCountry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *w)
	}
	return entries, rows.Err()
}

func scanWatchedCountry(row scanner) (*WatchedCountry, error) {
	var w WatchedCountry
	var aliasJSON *string
	var active int
	if err := row.Scan(&w.ID, &w.Country, &aliasJSON, &w.Focus, &active, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.IsActive = active != 0
	decodeJSON(aliasJSON, &w.Aliases)
	return &w, nil
}
