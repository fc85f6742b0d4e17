package testsupport

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"

	"oidworker/internal/adapters/postgres"
)

// schemaProbe must exist once migrations/postgres has been applied
const schemaProbe = "public.job_runs"

// NewTestPostgres connects using POSTGRES_* variables. The test is skipped in short mode,
// when the variables are missing, or when migrations have not been applied.
func NewTestPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	client, err := postgres.NewClient(ctx, LoadPostgresConfigFromEnv(t))
	if err != nil {
		t.Fatalf("failed to create postgres client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	var table *string
	if err := client.DB().GetContext(ctx, &table, `SELECT to_regclass($1)::text`, schemaProbe); err != nil {
		t.Fatalf("failed to probe schema: %v", err)
	}
	if table == nil {
		t.Skipf("database not migrated: %s missing, apply migrations/postgres first", schemaProbe)
	}

	return client.DB()
}

// DeleteOnCleanup removes rows of table matching where once the test and its subtests finish.
// table and where are test-controlled literals, never user input.
func DeleteOnCleanup(t *testing.T, db *sqlx.DB, table, where string, args ...interface{}) {
	t.Helper()
	t.Cleanup(func() {
		if _, err := db.ExecContext(context.Background(), `DELETE FROM `+table+` WHERE `+where, args...); err != nil {
			t.Logf("cleanup of %s failed: %v", table, err)
		}
	})
}
