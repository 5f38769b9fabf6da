package merge

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kent2980/aoi-data-manager/internal/datastore"
	"github.com/kent2980/aoi-data-manager/internal/datastore/entities"
	"github.com/kent2980/aoi-data-manager/internal/errors"
	"github.com/kent2980/aoi-data-manager/internal/logger"
	"github.com/kent2980/aoi-data-manager/internal/observability/metrics"
)

var quiet = logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)

func storeConfig(dir string) datastore.Config {
	return datastore.Config{Dir: dir, Logger: quiet}
}

func openStore(t *testing.T, dir string) *datastore.Store {
	t.Helper()
	s, err := datastore.Open(storeConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s.CreateSchema())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func defect(lot string, n int, x float64) entities.Defect {
	return entities.NewDefect(entities.DefectParams{
		LotNumber:         lot,
		CurrentBoardIndex: n / 10,
		DefectNumber:      n,
		X:                 x,
		Y:                 0.5,
		DefectName:        "ショート",
		InsertedAt:        time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	})
}

func seed(t *testing.T, s *datastore.Store, n int) []entities.Defect {
	t.Helper()
	out := make([]entities.Defect, 0, n)
	for i := range n {
		out = append(out, defect("LOT-A", i, float64(i)/100))
	}
	require.NoError(t, s.Defects().InsertBatch(out))
	return out
}

func opts() Options {
	return Options{Logger: quiet}
}

func TestMergeIntoEmptyTarget(t *testing.T) {
	src := openStore(t, t.TempDir())
	dst := openStore(t, t.TempDir())
	defects := seed(t, src, 20)
	require.NoError(t, src.Repairs().Upsert(&entities.Repair{ID: defects[0].ID, Repaired: true}))

	rep, err := Run(Handle(src), Handle(dst), opts())
	require.NoError(t, err)

	assert.Equal(t, 20, rep.DefectsUpserted)
	assert.Equal(t, 1, rep.RepairsUpserted)
	n, err := dst.Defects().Count()
	require.NoError(t, err)
	assert.Equal(t, int64(20), n)
	assert.False(t, src.IsClosed(), "caller-owned handles stay open")
	assert.False(t, dst.IsClosed())
}

func TestMergeIsIdempotent(t *testing.T) {
	src := openStore(t, t.TempDir())
	dst := openStore(t, t.TempDir())
	seed(t, src, 15)

	_, err := Run(Handle(src), Handle(dst), opts())
	require.NoError(t, err)
	first, err := dst.Defects().All()
	require.NoError(t, err)

	_, err = Run(Handle(src), Handle(dst), opts())
	require.NoError(t, err)
	second, err := dst.Defects().All()
	require.NoError(t, err)

	require.Len(t, second, 15)
	assert.ElementsMatch(t, first, second)
}

func TestMergeSourceWins(t *testing.T) {
	src := openStore(t, t.TempDir())
	dst := openStore(t, t.TempDir())

	old := defect("LOT-A", 1, 0.1)
	old.KintoneRecordID = "12"
	require.NoError(t, dst.Defects().Insert(&old))
	newer := defect("LOT-A", 1, 0.9)
	require.NoError(t, src.Defects().Insert(&newer))
	require.Equal(t, old.ID, newer.ID)

	_, err := Run(Handle(src), Handle(dst), opts())
	require.NoError(t, err)

	got, err := dst.Defects().Get(old.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 0.9, got.X, 1e-9)
	assert.Empty(t, got.KintoneRecordID)
}

func TestMergePrunesListedIdentities(t *testing.T) {
	src := openStore(t, t.TempDir())
	dst := openStore(t, t.TempDir())
	a, b, c := defect("L", 1, 0), defect("L", 2, 0), defect("L", 3, 0)
	require.NoError(t, dst.Defects().InsertBatch([]entities.Defect{a, b, c}))

	rep, err := Run(Handle(src), Handle(dst), Options{
		DeleteDefectIDs: []string{b.ID, c.ID, "unknown"},
		Logger:          quiet,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, rep.DefectsDeleted)
	remaining, err := dst.Defects().All()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, a.ID, remaining[0].ID)
}

func TestMergeDeletesAfterUpserts(t *testing.T) {
	src := openStore(t, t.TempDir())
	dst := openStore(t, t.TempDir())
	d := defect("L", 1, 0.3)
	require.NoError(t, src.Defects().Insert(&d))
	require.NoError(t, src.Repairs().Insert(&entities.Repair{ID: d.ID}))

	_, err := Run(Handle(src), Handle(dst), Options{
		DeleteDefectIDs: []string{d.ID},
		DeleteRepairIDs: []string{d.ID},
		Logger:          quiet,
	})
	require.NoError(t, err)

	got, err := dst.Defects().Get(d.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "deletion follows the upsert of the same identity")
	rep, err := dst.Repairs().Get(d.ID)
	require.NoError(t, err)
	assert.Nil(t, rep)
}

func TestMergeRepairDeletionKeepsDefect(t *testing.T) {
	src := openStore(t, t.TempDir())
	dst := openStore(t, t.TempDir())
	d := defect("L", 1, 0.3)
	require.NoError(t, dst.Defects().Insert(&d))
	require.NoError(t, dst.Repairs().Insert(&entities.Repair{ID: d.ID}))

	_, err := Run(Handle(src), Handle(dst), Options{DeleteRepairIDs: []string{d.ID}, Logger: quiet})
	require.NoError(t, err)

	got, err := dst.Defects().Get(d.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestMergeLocationsAreClosed(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	func() {
		src := openStore(t, srcDir)
		seed(t, src, 5)
		require.NoError(t, src.Close())
	}()

	rep, err := Run(Location(storeConfig(srcDir)), Location(storeConfig(dstDir)), opts())
	require.NoError(t, err)
	assert.Equal(t, 5, rep.DefectsUpserted)

	dst := openStore(t, dstDir)
	n, err := dst.Defects().Count()
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestMergeDirectories(t *testing.T) {
	srcDir, dstDir := t.TempDir(), t.TempDir()
	cfg := storeConfig(srcDir)
	cfg.FileName = "edge.db"
	require.NoError(t, datastore.With(cfg, func(s *datastore.Store) error {
		if err := s.CreateSchema(); err != nil {
			return err
		}
		d := defect("L", 1, 0.2)
		return s.Defects().Insert(&d)
	}))

	rep, err := Directories(srcDir, dstDir, "edge.db", opts())
	require.NoError(t, err)

	assert.Equal(t, 1, rep.DefectsUpserted)
	assert.FileExists(t, filepath.Join(dstDir, "edge.db"))
}

func TestMergeSourceFailureLeavesTargetUntouched(t *testing.T) {
	dstDir := t.TempDir()
	dst := openStore(t, dstDir)
	existing := defect("L", 1, 0.4)
	require.NoError(t, dst.Defects().Insert(&existing))

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := Run(Location(storeConfig(filepath.Join(blocker, "edge"))), Handle(dst), Options{
		DeleteDefectIDs: []string{existing.ID},
		Logger:          quiet,
	})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMerge))

	got, err := dst.Defects().Get(existing.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestMergeMissingSourceDoesNotPrune(t *testing.T) {
	dst := openStore(t, t.TempDir())
	existing := defect("L", 1, 0.4)
	require.NoError(t, dst.Defects().Insert(&existing))

	srcDir := filepath.Join(t.TempDir(), "typo", "station")
	rep, err := Run(Location(storeConfig(srcDir)), Handle(dst), Options{
		DeleteDefectIDs: []string{existing.ID},
		Logger:          quiet,
	})
	require.Error(t, err)
	require.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, Report{}, rep)

	assert.NoDirExists(t, srcDir, "a missing source must not be created")
	got, err := dst.Defects().Get(existing.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestMergeClosedTargetSurfacesError(t *testing.T) {
	src := openStore(t, t.TempDir())
	seed(t, src, 3)
	dst, err := datastore.Open(storeConfig(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, dst.Close())

	_, err = Run(Handle(src), Handle(dst), opts())
	require.ErrorIs(t, err, datastore.ErrClosed)
}

func TestMergeRecordsMetrics(t *testing.T) {
	m, err := metrics.NewDatastoreMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	src := openStore(t, t.TempDir())
	dst := openStore(t, t.TempDir())
	seed(t, src, 4)

	_, err = Run(Handle(src), Handle(dst), Options{Logger: quiet, Metrics: m})
	require.NoError(t, err)

	assert.Equal(t, 1, testutil.CollectAndCount(m, "aoi_merge_duration_seconds"))
	expected := `
# HELP aoi_merge_rows_total Rows applied to the target store by merges
# TYPE aoi_merge_rows_total counter
aoi_merge_rows_total{action="upserted",table="defect_info"} 4
`
	require.NoError(t, testutil.CollectAndCompare(m, strings.NewReader(expected), "aoi_merge_rows_total"))
}
