package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"runs", "generations", "export_tags"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	checks := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1", // NORMAL
		"busy_timeout": "5000",
		"foreign_keys": "1",
		"user_version": "1",
	}
	for name, want := range checks {
		if err := s.verifyPragma(name, want); err != nil {
			t.Error(err)
		}
	}
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	s.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("Open() accepted a ledger from a newer schema")
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	if err == nil {
		t.Fatal("Open() succeeded for a path in a missing directory")
	}
}

func TestOpenDSN_Postgres(t *testing.T) {
	backing := filepath.Join(t.TempDir(), "pg.db")
	var driver string
	orig := sqlOpen
	sqlOpen = func(name, dsn string) (*sql.DB, error) {
		driver = name
		// The Postgres code path runs against SQLite, which also accepts
		// $n placeholders.
		return sql.Open("sqlite3", backing)
	}
	t.Cleanup(func() { sqlOpen = orig })

	ctx := context.Background()
	s, err := OpenDSN(ctx, "postgres://ledger@localhost/cellc?sslmode=disable")
	if err != nil {
		t.Fatalf("OpenDSN() failed: %v", err)
	}
	defer s.Close()
	if driver != "pgx" {
		t.Fatalf("driver = %q, want pgx", driver)
	}
	if s.dialect != dialectPostgres {
		t.Fatal("postgres DSN did not select the postgres dialect")
	}

	run, _, err := s.RecordRun(ctx, testRun("run-1", "0.4.0"), []Generation{
		okGeneration("hh", "Normal", "CellHH", "fp", "h1"),
		okGeneration("hh", "RushLarsen", "CellHHRushLarsen", "fp", "h2"),
	})
	if err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}
	if run.Seq != 1 {
		t.Errorf("seq = %d, want 1", run.Seq)
	}
	gens, err := s.History(ctx, "hh", "RushLarsen")
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(gens) != 1 || gens[0].Hash != "h2" {
		t.Errorf("History() = %+v", gens)
	}
}

func TestIsPostgresDSN(t *testing.T) {
	tests := map[string]bool{
		"postgres://localhost/cellc":   true,
		"postgresql://localhost/cellc": true,
		"ledger.db":                    false,
		"file:ledger.db?cache=shared":  false,
	}
	for dsn, want := range tests {
		if got := IsPostgresDSN(dsn); got != want {
			t.Errorf("IsPostgresDSN(%q) = %v, want %v", dsn, got, want)
		}
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: dialectPostgres}
	if got := pg.rebind("SELECT a FROM t WHERE b = ? AND c = ?"); got != "SELECT a FROM t WHERE b = $1 AND c = $2" {
		t.Errorf("rebind() = %q", got)
	}
	lite := &Store{dialect: dialectSQLite}
	if got := lite.rebind("x = ?"); got != "x = ?" {
		t.Errorf("sqlite rebind() = %q", got)
	}
}
