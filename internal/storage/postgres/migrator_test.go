package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrationsFromFS_SortsByVersion(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0003_indexes.up.sql": {
			Data: []byte("CREATE INDEX idx_c ON test_c (id);"),
		},
		"sql/migrations/0003_indexes.down.sql": {
			Data: []byte("DROP INDEX IF EXISTS idx_c;"),
		},
		"sql/migrations/0001_orders.up.sql": {
			Data: []byte("CREATE TABLE test_a (id INT);"),
		},
		"sql/migrations/0001_orders.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test_a;"),
		},
		"sql/migrations/0002_notifications.up.sql": {
			Data: []byte("CREATE TABLE test_b (id INT);"),
		},
		"sql/migrations/0002_notifications.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test_b;"),
		},
	}

	migrations, err := loadMigrationsFromFS(fsys)
	if err != nil {
		t.Fatalf("loadMigrationsFromFS failed: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}

	wantNames := []string{"orders", "notifications", "indexes"}
	for i, m := range migrations {
		if m.Version != int64(i+1) {
			t.Fatalf("migration %d has version %d", i, m.Version)
		}
		if m.Name != wantNames[i] {
			t.Fatalf("migration %d has name %q, want %q", i, m.Name, wantNames[i])
		}
		if m.UpSQL == "" || m.DownSQL == "" {
			t.Fatalf("migration %d is missing body: %+v", i, m)
		}
	}
}

func TestLoadMigrationsFromFS_MissingPair(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_orders.up.sql": {
			Data: []byte("CREATE TABLE test_a (id INT);"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for missing down migration")
	}
	if !strings.Contains(err.Error(), "both up and down") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadMigrationsFromFS_NameMismatch(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_orders.up.sql": {
			Data: []byte("CREATE TABLE test_a (id INT);"),
		},
		"sql/migrations/0001_payments.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test_a;"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for mismatched migration names")
	}
	if !strings.Contains(err.Error(), "name mismatch") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadMigrationsFromFS_BadFilenameAndEmptyBody(t *testing.T) {
	t.Parallel()

	if _, err := loadMigrationsFromFS(fstest.MapFS{
		"sql/migrations/README.sql": {Data: []byte("SELECT 1;")},
	}); err == nil {
		t.Fatal("expected error for invalid migration file name")
	}

	if _, err := loadMigrationsFromFS(fstest.MapFS{
		"sql/migrations/0001_orders.up.sql":   {Data: []byte("  \n\t")},
		"sql/migrations/0001_orders.down.sql": {Data: []byte("DROP TABLE IF EXISTS test_a;")},
	}); err == nil {
		t.Fatal("expected error for empty migration body")
	}
}

func TestEmbeddedMigrationsAreWellFormed(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		t.Fatalf("embedded migrations are broken: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("expected at least one embedded migration")
	}
	if migrations[0].Version != 1 || migrations[0].Name != "init" {
		t.Fatalf("unexpected first embedded migration: %+v", migrations[0])
	}
}
