package testfixtures

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/LoickBck/MediciNet/internal/db"
)

// OpenSQLite opens a fresh SQLite file under tb.TempDir and closes it when the
// test ends.
func OpenSQLite(tb testing.TB) *sql.DB {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "medicinet.db")
	conn, err := db.OpenSQLite(context.Background(), path)
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	tb.Cleanup(func() { _ = conn.Close() })
	return conn
}
