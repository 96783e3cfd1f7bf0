package database

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
)

// schemaTables are the tables every migrated database must have.
var schemaTables = []string{"articles", "runs", "reports", "watchlist", "content_cache"}

// getSchemaVersion reads PRAGMA user_version from the database.
func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// missingTables lists schemaTables entries absent from sqlite_master.
func missingTables(conn *sql.DB) ([]string, error) {
	rows, err := conn.Query("SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, name := range schemaTables {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// migrate applies every migration newer than PRAGMA user_version, then checks
// that the full table set exists. A version-0 database with stray tables is
// migrated from scratch; the idempotent DDL keeps tables that already match.
func migrate(conn *sql.DB) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		log.Printf("Applying migration %d: %s", m.Version, m.Description)

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		// modernc/sqlite does not apply user_version inside a transaction.
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			return fmt.Errorf("setting version %d: %w", m.Version, err)
		}
	}

	missing, err := missingTables(conn)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema version %d but missing tables: %s", latestVersion(), strings.Join(missing, ", "))
	}
	return nil
}
