package datastore

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kent2980/aoi-data-manager/internal/datastore/entities"
	"github.com/kent2980/aoi-data-manager/internal/errors"
	"github.com/kent2980/aoi-data-manager/internal/observability/metrics"
)

func TestOpenCreatesMissingDirectory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dir = filepath.Join(cfg.Dir, "nested", "edge")

	s, err := Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	assert.DirExists(t, cfg.Dir)
	assert.Equal(t, filepath.Join(cfg.Dir, DefaultFileName), s.Path())
	assert.Equal(t, EngineSQLite, s.Engine())
}

func TestOpenFailsOnInvalidDirectory(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(cfg.Dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	cfg.Dir = filepath.Join(blocker, "sub")

	_, err := Open(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

func TestOpenMustExistRefusesMissingFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dir = filepath.Join(cfg.Dir, "missing")
	cfg.MustExist = true

	_, err := Open(cfg)
	require.ErrorIs(t, err, fs.ErrNotExist)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
	assert.NoDirExists(t, cfg.Dir)
}

func TestOpenMustExistAcceptsExistingFile(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, With(cfg, func(s *Store) error { return s.CreateSchema() }))

	cfg.MustExist = true
	s, err := Open(cfg)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestOpenRejectsUnsupportedEngine(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine = "oracle"

	_, err := Open(cfg)
	require.ErrorIs(t, err, ErrUnsupportedEngine)
	assert.True(t, errors.IsValidation(err))
}

func TestOpenRequiresDSNForServerEngines(t *testing.T) {
	for _, engine := range []Engine{EngineMySQL, EnginePostgres} {
		cfg := testConfig(t)
		cfg.Engine = engine

		_, err := Open(cfg)
		require.Error(t, err, engine)
		assert.True(t, errors.IsValidation(err), engine)
	}
}

func TestCustomFileName(t *testing.T) {
	cfg := testConfig(t)
	cfg.FileName = "central.db"

	s, err := Open(cfg)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.CreateSchema())
	d := makeDefect("L", 1, 1)
	require.NoError(t, s.Defects().Insert(&d))

	assert.FileExists(t, filepath.Join(cfg.Dir, "central.db"))
}

func TestCreateSchemaIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.CreateSchema())
	require.NoError(t, s.CreateSchema())
}

func TestCloseIsIdempotent(t *testing.T) {
	s, err := Open(testConfig(t))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, s.IsClosed())
}

func TestOperationsFailAfterClose(t *testing.T) {
	s, err := Open(testConfig(t))
	require.NoError(t, err)
	require.NoError(t, s.CreateSchema())
	require.NoError(t, s.Close())

	d := makeDefect("L", 1, 1)
	checks := map[string]error{
		"schema": s.CreateSchema(),
		"insert": s.Defects().Insert(&d),
		"upsert": s.Repairs().Upsert(&entities.Repair{ID: d.ID}),
		"batch":  s.Defects().InsertBatch([]entities.Defect{d}),
	}
	_, checks["get"] = s.Defects().Get(d.ID)
	_, checks["all"] = s.Repairs().All()
	_, checks["lot"] = s.Defects().ByLot("L")
	_, checks["delete"] = s.Defects().Delete(d.ID)
	_, checks["delete_batch"] = s.Repairs().DeleteBatch([]string{d.ID})
	_, checks["count"] = s.Defects().Count()

	for name, err := range checks {
		require.ErrorIs(t, err, ErrClosed, name)
		assert.True(t, errors.IsCategory(err, errors.CategoryState), name)
	}
}

func TestWithClosesOnError(t *testing.T) {
	var kept *Store
	sentinel := errors.NewStd("boom")

	err := With(testConfig(t), func(s *Store) error {
		kept = s
		return sentinel
	})

	require.ErrorIs(t, err, sentinel)
	assert.True(t, kept.IsClosed())
}

func TestWithClosesOnPanic(t *testing.T) {
	var kept *Store

	assert.Panics(t, func() {
		_ = With(testConfig(t), func(s *Store) error {
			kept = s
			panic("scanner fault")
		})
	})
	require.NotNil(t, kept)
	assert.True(t, kept.IsClosed())
}

func TestStoreReportsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.NewDatastoreMetrics(reg)
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Metrics = m
	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.CreateSchema())

	d := makeDefect("L", 1, 1)
	require.NoError(t, s.Defects().Insert(&d))
	require.Error(t, s.Defects().Insert(&d))
	require.NoError(t, s.Close())

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["aoi_datastore_operations_total"])
	assert.True(t, names["aoi_datastore_errors_total"])
}

func TestRedactDSN(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "***@tcp(db:3306)/aoi?parseTime=True",
		redactDSN("aoi:secret@tcp(db:3306)/aoi?parseTime=True"))
	assert.Equal(t, "host=db port=5432 user=aoi password=*** dbname=aoi",
		redactDSN("host=db port=5432 user=aoi password=secret dbname=aoi"))
}

func TestDSNBuilders(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "u:p@tcp(h:3306)/d?charset=utf8mb4&parseTime=True&loc=Local",
		MySQLDSN("u", "p", "h", "3306", "d"))
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=disable",
		PostgresDSN("u", "p", "h", "5432", "d"))
}
