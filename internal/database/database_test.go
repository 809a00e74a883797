package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
)

func TestDSNCarriesPragmas(t *testing.T) {
	got := dsn("/data/bot.db")
	if !strings.HasPrefix(got, "/data/bot.db?") {
		t.Fatalf("dsn = %q", got)
	}
	if n := strings.Count(got, "_pragma="); n != len(connPragmas) {
		t.Errorf("dsn has %d pragmas, want %d: %q", n, len(connPragmas), got)
	}
}

func TestNew_PragmasApplyToEveryConnection(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "nested", "bot.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	// Holding the first connection forces the pool to open a second one.
	first, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("first conn: %v", err)
	}
	defer first.Close()
	second, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("second conn: %v", err)
	}
	defer second.Close()

	for name, c := range map[string]*sql.Conn{"first": first, "second": second} {
		var timeout, fk int
		if err := c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout); err != nil {
			t.Fatalf("%s busy_timeout: %v", name, err)
		}
		if err := c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatalf("%s foreign_keys: %v", name, err)
		}
		if timeout != 5000 {
			t.Errorf("%s connection busy_timeout = %d, want 5000", name, timeout)
		}
		if fk != 1 {
			t.Errorf("%s connection foreign_keys = %d, want 1", name, fk)
		}
	}
}
