package database

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"
)

const (
	readingsUp   = "CREATE TABLE readings (resource TEXT NOT NULL, value TEXT);"
	readingsDown = "DROP TABLE readings;"
	sourcesUp    = "ALTER TABLE readings ADD COLUMN source TEXT;"
)

// useMigrations registers fsys for the duration of the test.
func useMigrations(t *testing.T, fsys fstest.MapFS) {
	t.Helper()
	RegisterMigrations(fsys, "sql")
	t.Cleanup(func() { RegisterMigrations(nil, "") })
}

func file(body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(body)}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master: %v", err)
	}
	return n == 1
}

// ─── Filename Tests ─────────────────────────────────────────────────

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name    string
		version string
		label   string
		up      bool
		ok      bool
	}{
		{"20261019_120000_resource_history.up.sql", "20261019_120000", "resource_history", true, true},
		{"20261019_120000_resource_history.down.sql", "20261019_120000", "resource_history", false, true},
		{"20261019_120000.up.sql", "", "", false, false},
		{"2026_120000_x.up.sql", "", "", false, false},
		{"20261019_120000_x.sql", "", "", false, false},
		{"README.md", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, label, up, ok := parseMigrationFilename(tt.name)
			if version != tt.version || label != tt.label || up != tt.up || ok != tt.ok {
				t.Errorf("parse(%q) = %q, %q, %v, %v; want %q, %q, %v, %v",
					tt.name, version, label, up, ok, tt.version, tt.label, tt.up, tt.ok)
			}
		})
	}
}

// ─── Migrate Tests ──────────────────────────────────────────────────

func TestMigrate_AppliesInOrderOnce(t *testing.T) {
	ctx := context.Background()
	useMigrations(t, fstest.MapFS{
		"sql/20261002_090000_sources.up.sql":    file(sourcesUp),
		"sql/20261001_090000_readings.up.sql":   file(readingsUp),
		"sql/20261001_090000_readings.down.sql": file(readingsDown),
		"sql/notes.txt":                         file("ignored"),
	})
	db := openTemp(t)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// Running again is a no-op; re-adding the column would fail.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	if _, err := db.Exec("INSERT INTO readings (resource, value, source) VALUES ('r', '1', 'mqtt')"); err != nil {
		t.Errorf("schema incomplete: %v", err)
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %v, want none", pending)
	}
	if len(applied) != 2 || applied[0].Version != "20261001_090000" || applied[1].Version != "20261002_090000" {
		t.Errorf("applied = %+v", applied)
	}
	if applied[0].AppliedAt.IsZero() {
		t.Error("AppliedAt not recorded")
	}
}

func TestMigrate_FailureRollsBackThatMigration(t *testing.T) {
	ctx := context.Background()
	useMigrations(t, fstest.MapFS{
		"sql/20261001_090000_readings.up.sql": file(readingsUp),
		"sql/20261002_090000_broken.up.sql":   file("CREATE TABLE half (v TEXT); NOT SQL;"),
	})
	db := openTemp(t)

	err := db.Migrate(ctx)
	if err == nil || !strings.Contains(err.Error(), "20261002_090000") {
		t.Fatalf("Migrate() error = %v, want failure naming the broken migration", err)
	}

	if !tableExists(t, db, "readings") {
		t.Error("earlier migration should stay applied")
	}
	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(applied) != 1 || len(pending) != 1 || pending[0].Name != "broken" {
		t.Errorf("applied = %+v, pending = %+v", applied, pending)
	}
}

func TestMigrate_MissingUpFile(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"sql/20261001_090000_readings.down.sql": file(readingsDown),
	})
	db := openTemp(t)

	if err := db.Migrate(context.Background()); err == nil {
		t.Error("Migrate() with only a down file should fail")
	}
}

func TestMigrate_NothingRegistered(t *testing.T) {
	RegisterMigrations(nil, "")
	db := openTemp(t)

	if err := db.Migrate(context.Background()); err != nil {
		t.Errorf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "schema_migrations") {
		t.Error("schema_migrations should be created")
	}
}

// ─── MigrateDown Tests ──────────────────────────────────────────────

func TestMigrateDown(t *testing.T) {
	ctx := context.Background()
	useMigrations(t, fstest.MapFS{
		"sql/20261001_090000_readings.up.sql":   file(readingsUp),
		"sql/20261001_090000_readings.down.sql": file(readingsDown),
	})
	db := openTemp(t)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "readings") {
		t.Error("readings should be dropped")
	}

	_, pending, err := db.MigrationStatus(ctx)
	if err != nil || len(pending) != 1 {
		t.Errorf("pending = %v, %v; want the reverted migration", pending, err)
	}

	// Nothing applied: no-op.
	if err := db.MigrateDown(ctx); err != nil {
		t.Errorf("MigrateDown() on empty ledger error = %v", err)
	}
}

func TestMigrateDown_WithoutDownFile(t *testing.T) {
	ctx := context.Background()
	useMigrations(t, fstest.MapFS{
		"sql/20261001_090000_readings.up.sql": file(readingsUp),
	})
	db := openTemp(t)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err == nil {
		t.Error("MigrateDown() without a down file should fail")
	}
	if !tableExists(t, db, "readings") {
		t.Error("readings should survive a refused revert")
	}
}
