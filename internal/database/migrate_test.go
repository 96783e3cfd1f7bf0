package database

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func rawDB(t *testing.T, path string, stmts ...string) {
	t.Helper()
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	defer raw.Close()
	for _, s := range stmts {
		if _, err := raw.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
}

func TestMigrateNewDB(t *testing.T) {
	db := openTestDB(t)

	version, err := getSchemaVersion(db.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}

	missing, err := missingTables(db.conn)
	if err != nil {
		t.Fatalf("missingTables: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("expected full schema, missing %v", missing)
	}
}

func TestMigrateUnversionedArticlesTable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "partial.db")
	// A version-0 database that already has a compatible articles table.
	rawDB(t, dbPath, `CREATE TABLE articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		summary TEXT,
		source TEXT,
		published_date TEXT,
		tags TEXT,
		period_id TEXT,
		collected_at TEXT DEFAULT (datetime('now'))
	)`)

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := db.InsertWatchedCountry("Haiti", "", nil); err != nil {
		t.Fatalf("expected watchlist table to be created: %v", err)
	}
	items, err := db.GetWatchlist()
	if err != nil || len(items) != 1 {
		t.Errorf("expected 1 watched country, got %d (%v)", len(items), err)
	}
	if _, err := db.GetRuns(10); err != nil {
		t.Errorf("expected runs table: %v", err)
	}
}

func TestMigrateRejectsForeignArticlesTable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "foreign.db")
	rawDB(t, dbPath, `CREATE TABLE articles (id INTEGER PRIMARY KEY, url TEXT, title TEXT)`)

	db, err := Open(dbPath)
	if err == nil {
		db.Close()
		t.Fatal("expected Open to fail on an incompatible articles table")
	}
}

func TestMigrateDetectsMissingTables(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "stamped.db")
	rawDB(t, dbPath, "PRAGMA user_version = 2")

	db, err := Open(dbPath)
	if err == nil {
		db.Close()
		t.Fatal("expected Open to fail when tables are missing")
	}
	if !strings.Contains(err.Error(), "watchlist") {
		t.Errorf("expected missing tables in error, got %v", err)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idem.db")

	db1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	db1.Close()

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db2.Close()

	version, err := getSchemaVersion(db2.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestGetSchemaVersionNewDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	version, err := getSchemaVersion(conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0 on new db, got %d", version)
	}
}
