package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/onnwee/streamwatch/db"
)

// SetupTestDB connects to TEST_PG_DSN, resets the schema and runs migrations.
// It skips the test if TEST_PG_DSN is not set.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := db.Connect(context.Background(), dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	for _, stmt := range []string{`DROP TABLE IF EXISTS watchlist`, `DROP TABLE IF EXISTS schema_migrations`} {
		if _, err := database.Exec(stmt); err != nil {
			t.Fatalf("failed to reset schema: %v", err)
		}
	}
	if err := db.RunMigrations(database); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return database
}
