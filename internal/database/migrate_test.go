package database

import (
	"path/filepath"
	"testing"
)

func TestRunMigrations_CreatesTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rssd.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	for _, table := range []string{"seen_ids", "items_archive", "feeds"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("テーブル %s が作成されているべき: %v", table, err)
		}
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rssd.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if err := RunMigrations(db); err != nil {
		t.Fatalf("1回目のRunMigrations() error = %v", err)
	}
	if err := RunMigrations(db); err != nil {
		t.Fatalf("2回目のRunMigrations()はErrNoChangeを握りつぶすべき: %v", err)
	}
}
