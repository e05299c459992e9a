package migrate

import (
	"database/sql"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
)

const latestVersion = 3

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunAppliesAllMigrations(t *testing.T) {
	db := openTestDB(t)
	if err := NewRunner(db).Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, table := range []string{"runs", "events", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT table_name FROM information_schema.tables WHERE table_name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db)

	if err := r.Run(); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := r.Run(); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	cur, pending, err := r.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if cur != latestVersion || pending != 0 {
		t.Errorf("version=%d pending=%d, want %d/0", cur, pending, latestVersion)
	}
}

func TestStatusBeforeRun(t *testing.T) {
	r := NewRunner(openTestDB(t))
	cur, pending, err := r.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if cur != 0 || pending != latestVersion {
		t.Errorf("version=%d pending=%d, want 0/%d", cur, pending, latestVersion)
	}
}

func TestLoad_Ordered(t *testing.T) {
	migs, err := NewRunner(nil).Load()
	if err != nil {
		t.Fatal(err)
	}
	for i, m := range migs {
		if m.Version != i+1 {
			t.Errorf("migration %d has version %d", i, m.Version)
		}
		if len(m.Statements) == 0 {
			t.Errorf("%s has no statements", m.Name)
		}
	}
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("CREATE TABLE a (x INT);\n\nCREATE INDEX i ON a (x);\n")
	if len(got) != 2 {
		t.Fatalf("statements = %q", got)
	}
	if got[1] != "CREATE INDEX i ON a (x);" {
		t.Errorf("second = %q", got[1])
	}
}
