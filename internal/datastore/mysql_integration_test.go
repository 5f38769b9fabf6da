//go:build integration && mysql

// MySQL integration tests.
// Run with: go test -tags="integration,mysql" -v ./internal/datastore/...
//
// A MySQL container is started with testcontainers unless MYSQL_TEST_DSN
// points at an existing server.
package datastore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/kent2980/aoi-data-manager/internal/datastore/entities"
)

func mysqlDSN(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("MYSQL_TEST_DSN"); dsn != "" {
		return dsn
	}

	ctx := context.Background()
	container, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("aoi_test"),
		tcmysql.WithUsername("aoi"),
		tcmysql.WithPassword("aoi-secret"),
	)
	if err != nil {
		t.Skipf("Skipping MySQL test: container unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	dsn, err := container.ConnectionString(ctx, "charset=utf8mb4", "parseTime=True", "loc=Local")
	require.NoError(t, err)
	return dsn
}

func TestMySQL_UpsertAndDuplicate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine = EngineMySQL
	cfg.DSN = mysqlDSN(t)

	s, err := Open(cfg)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.CreateSchema())

	d := makeDefect("MY", 1, 1)
	defer func() { _, _ = s.Defects().Delete(d.ID) }()
	require.NoError(t, s.Defects().Insert(&d))
	require.ErrorIs(t, s.Defects().Insert(&d), ErrDuplicateKey)

	d.X = 0.66
	require.NoError(t, s.Defects().UpsertBatch([]entities.Defect{d}))

	got, err := s.Defects().Get(d.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 0.66, got.X, 1e-9)
}
