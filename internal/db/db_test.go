package db

import (
	"testing"
)

func TestMigrate_CreatesAllTables(t *testing.T) {
	database, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	if err := Migrate(database); err != nil {
		t.Fatal(err)
	}

	tables := []string{
		"schema_version",
		"scans",
		"forecasts",
		"bucket_snapshots",
		"opportunities",
	}

	for _, table := range tables {
		row := database.QueryRow(
			`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, table)
		var count int
		if err := row.Scan(&count); err != nil {
			t.Fatalf("checking table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s not found", table)
		}
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	database, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	if err := Migrate(database); err != nil {
		t.Fatal(err)
	}
	if err := Migrate(database); err != nil {
		t.Fatal(err)
	}

	var versions int
	if err := database.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&versions); err != nil {
		t.Fatal(err)
	}
	if versions != 1 {
		t.Errorf("expected one schema version row, got %d", versions)
	}
}

func TestMigrate_ForeignKeysEnforced(t *testing.T) {
	database, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	if err := Migrate(database); err != nil {
		t.Fatal(err)
	}

	_, err = database.Exec(`
		INSERT INTO forecasts (scan_id, city, target_date, high, low, confidence, lead_hours)
		VALUES ('missing', 'NYC', '2025-12-25', 75, 60, 'high', 30)`)
	if err == nil {
		t.Error("expected foreign key violation for unknown scan")
	}

	if _, err := database.Exec(`INSERT INTO scans (id, started_at) VALUES ('s1', '2025-12-20T12:00:00Z')`); err != nil {
		t.Fatal(err)
	}
	_, err = database.Exec(`
		INSERT INTO forecasts (scan_id, city, target_date, high, low, confidence, lead_hours)
		VALUES ('s1', 'NYC', '2025-12-25', 75, 60, 'high', 30)`)
	if err != nil {
		t.Fatal(err)
	}
}
