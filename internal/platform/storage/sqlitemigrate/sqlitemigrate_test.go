package sqlitemigrate

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func TestApplyRecordsMigrations(t *testing.T) {
	db := openInMemoryDB(t)
	migrations := fstest.MapFS{
		"001_events.sql":    {Data: []byte("-- +migrate Up\nCREATE TABLE events(id TEXT PRIMARY KEY);\n-- +migrate Down\nDROP TABLE events;")},
		"002_snapshots.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE snapshots(id TEXT PRIMARY KEY);")},
		"README.md":         {Data: []byte("not a migration")},
	}

	applied, err := Runner{FS: migrations}.Apply(context.Background(), db)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(applied) != 2 || applied[0] != "001_events.sql" || applied[1] != "002_snapshots.sql" {
		t.Fatalf("applied = %v", applied)
	}
	if got := countRows(t, db, "SELECT COUNT(*) FROM schema_migrations"); got != 2 {
		t.Fatalf("migration rows = %d, want 2", got)
	}
	if !tableExists(t, db, "events") || !tableExists(t, db, "snapshots") {
		t.Fatal("expected migrated tables")
	}
}

func TestApplySkipsAlreadyApplied(t *testing.T) {
	db := openInMemoryDB(t)
	migrations := fstest.MapFS{
		"001_events.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE events(id TEXT PRIMARY KEY);")},
	}
	if err := ApplyMigrations(context.Background(), db, migrations, ""); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	applied, err := Runner{FS: migrations}.Apply(context.Background(), db)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected no migrations on replay, got %v", applied)
	}
}

func TestApplyDoesNotRecordFailedMigration(t *testing.T) {
	db := openInMemoryDB(t)
	migrations := fstest.MapFS{
		"001_bad.sql": {Data: []byte("-- +migrate Up\nCREATE TABL broken(;")},
	}
	if err := ApplyMigrations(context.Background(), db, migrations, ""); err == nil {
		t.Fatal("expected migration failure")
	}
	if got := countRows(t, db, "SELECT COUNT(*) FROM schema_migrations"); got != 0 {
		t.Fatalf("migration rows = %d, want 0", got)
	}
}

func TestApplyUsesRootPrefix(t *testing.T) {
	db := openInMemoryDB(t)
	migrations := fstest.MapFS{
		"migrations/001_events.sql": {Data: []byte("CREATE TABLE events(id TEXT PRIMARY KEY);")},
	}
	applied, err := Runner{FS: migrations, Root: "migrations"}.Apply(context.Background(), db)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(applied) != 1 || applied[0] != "migrations/001_events.sql" {
		t.Fatalf("applied = %v", applied)
	}
}

func TestApplyRequiresInputs(t *testing.T) {
	if _, err := (Runner{FS: fstest.MapFS{}}).Apply(context.Background(), nil); err == nil {
		t.Fatal("expected nil db error")
	}
	db := openInMemoryDB(t)
	if _, err := (Runner{}).Apply(context.Background(), db); err == nil {
		t.Fatal("expected nil fs error")
	}
}

func TestExtractUpMigration(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "no markers", content: "CREATE TABLE a(x);", want: "CREATE TABLE a(x);"},
		{name: "up only", content: "-- +migrate Up\nCREATE TABLE a(x);", want: "\nCREATE TABLE a(x);"},
		{name: "up and down", content: "-- +migrate Up\nA;\n-- +migrate Down\nB;", want: "\nA;\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractUpMigration(tt.content); got != tt.want {
				t.Fatalf("ExtractUpMigration() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsAlreadyExistsError(t *testing.T) {
	if IsAlreadyExistsError(nil) {
		t.Fatal("nil error is not an already-exists error")
	}
	if !IsAlreadyExistsError(errors.New("table events already exists")) {
		t.Fatal("expected already exists match")
	}
	if !IsAlreadyExistsError(errors.New("duplicate column name: hash")) {
		t.Fatal("expected duplicate column match")
	}
	if IsAlreadyExistsError(errors.New("syntax error")) {
		t.Fatal("unexpected match")
	}
}

func openInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func countRows(t *testing.T, db *sql.DB, query string) int64 {
	t.Helper()
	var n int64
	if err := db.QueryRow(query).Scan(&n); err != nil {
		t.Fatalf("query %q: %v", query, err)
	}
	return n
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var found string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		t.Fatalf("lookup table %s: %v", name, err)
	}
	return true
}
