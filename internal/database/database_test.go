package database

import (
	"os"
	"testing"
)

func TestOpenRunsMigrations(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if db.Dialect != SQLite {
		t.Errorf("dialect = %q, want %q", db.Dialect, SQLite)
	}
	for _, table := range []string{"users", "sessions", "document_fields"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s: %v", table, err)
		}
	}
}

func TestRebind(t *testing.T) {
	pg := &DB{Dialect: Postgres}
	lite := &DB{Dialect: SQLite}

	tests := []struct {
		in   string
		want string
	}{
		{`SELECT * FROM users WHERE id = ?`, `SELECT * FROM users WHERE id = $1`},
		{`INSERT INTO t (a, b, c) VALUES (?, ?, ?)`, `INSERT INTO t (a, b, c) VALUES ($1, $2, $3)`},
		{`SELECT '?' FROM t WHERE a = ?`, `SELECT '?' FROM t WHERE a = $1`},
		{`SELECT 1`, `SELECT 1`},
	}
	for _, tt := range tests {
		if got := pg.Rebind(tt.in); got != tt.want {
			t.Errorf("Rebind(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if got := lite.Rebind(tt.in); got != tt.in {
			t.Errorf("sqlite Rebind(%q) = %q, want unchanged", tt.in, got)
		}
	}
}

func TestOpenPostgres(t *testing.T) {
	dsn := os.Getenv("QUICKCART_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("QUICKCART_TEST_POSTGRES_DSN not set")
	}
	db, err := OpenPostgres(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM users WHERE email = ?`, "nobody@example.com").Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
}
