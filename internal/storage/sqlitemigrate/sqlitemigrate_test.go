package sqlitemigrate

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func count(t *testing.T, db *sql.DB, query string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query).Scan(&n); err != nil {
		t.Fatalf("query %q: %v", query, err)
	}
	return n
}

func TestApplyRunsOnce(t *testing.T) {
	ctx := context.Background()
	db := openMemoryDB(t)
	fsys := fstest.MapFS{
		"001_items.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE items(id TEXT PRIMARY KEY);\n-- +migrate Down\nDROP TABLE items;")},
		"002_more.sql":  {Data: []byte("INSERT INTO items(id) VALUES ('a');")},
		"README.md":     {Data: []byte("ignored")},
	}

	if err := Apply(ctx, db, fsys, ""); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := Apply(ctx, db, fsys, "."); err != nil {
		t.Fatalf("re-apply: %v", err)
	}

	if n := count(t, db, "SELECT COUNT(*) FROM schema_migrations"); n != 2 {
		t.Fatalf("expected 2 recorded migrations, got %d", n)
	}
	if n := count(t, db, "SELECT COUNT(*) FROM items"); n != 1 {
		t.Fatalf("data migration should run once, got %d rows", n)
	}
}

func TestApplyDoesNotRecordFailure(t *testing.T) {
	ctx := context.Background()
	db := openMemoryDB(t)
	fsys := fstest.MapFS{
		"001_bad.sql": {Data: []byte("CREATE TABLE broken(")},
	}
	if err := Apply(ctx, db, fsys, ""); err == nil {
		t.Fatal("expected error for invalid SQL")
	}
	if n := count(t, db, "SELECT COUNT(*) FROM schema_migrations"); n != 0 {
		t.Fatalf("failed migration must not be recorded, got %d", n)
	}
}

func TestUpSection(t *testing.T) {
	content := "-- header\n-- +migrate Up\nCREATE TABLE x(id INT);\n-- +migrate Down\nDROP TABLE x;"
	if got := UpSection(content); got != "\nCREATE TABLE x(id INT);\n" {
		t.Fatalf("unexpected up section %q", got)
	}
	if got := UpSection("SELECT 1;"); got != "SELECT 1;" {
		t.Fatalf("content without markers should be returned whole, got %q", got)
	}
}

func TestApplyRequiresDB(t *testing.T) {
	if err := Apply(context.Background(), nil, fstest.MapFS{}, ""); err == nil {
		t.Fatal("expected error for nil db")
	}
}
