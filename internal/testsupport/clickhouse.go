package testsupport

import (
	"context"
	"testing"

	"oidworker/internal/adapters/clickhouse"
)

// NewTestClickHouse connects using CLICKHOUSE_* variables. Skips when they are not set.
func NewTestClickHouse(t *testing.T) *clickhouse.Client {
	t.Helper()

	client, err := clickhouse.NewClient(context.Background(), LoadClickHouseConfigFromEnv(t))
	if err != nil {
		t.Fatalf("failed to connect to clickhouse: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}
