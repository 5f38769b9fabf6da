// Package merge synchronizes one defect store into another.
//
// A merge copies every defect and repair row of the source into the target,
// overwriting target rows with the same identity, then removes the rows the
// caller listed for pruning. It is used to fold an edge device's results into
// a central store and is idempotent for an unchanged source.
package merge

import (
	"time"

	"github.com/kent2980/aoi-data-manager/internal/datastore"
	"github.com/kent2980/aoi-data-manager/internal/datastore/entities"
	"github.com/kent2980/aoi-data-manager/internal/errors"
	"github.com/kent2980/aoi-data-manager/internal/logger"
	"github.com/kent2980/aoi-data-manager/internal/observability/metrics"
)

// Endpoint is one side of a merge: either a store the caller already holds
// open, or a location Run opens and closes itself.
type Endpoint struct {
	store *datastore.Store
	cfg   datastore.Config
}

// Handle wraps a caller-owned store. Run never closes it.
func Handle(s *datastore.Store) Endpoint {
	return Endpoint{store: s}
}

// Location describes a store Run opens for the duration of the merge. A
// source location must already exist; a target location is created.
func Location(cfg datastore.Config) Endpoint {
	return Endpoint{cfg: cfg}
}

// acquire returns an open, migrated store and the function releasing it.
func (e Endpoint) acquire(side string) (*datastore.Store, func() error, error) {
	if e.store != nil {
		if err := e.store.CreateSchema(); err != nil {
			return nil, nil, wrap(err, side, "create schema")
		}
		return e.store, func() error { return nil }, nil
	}

	cfg := e.cfg
	if side == "source" {
		cfg.MustExist = true
	}
	s, err := datastore.Open(cfg)
	if err != nil {
		return nil, nil, wrap(err, side, "open")
	}
	if err := s.CreateSchema(); err != nil {
		_ = s.Close()
		return nil, nil, wrap(err, side, "create schema")
	}
	return s, s.Close, nil
}

// Options tunes a merge.
type Options struct {
	// DeleteDefectIDs are removed from the target after defects are upserted.
	DeleteDefectIDs []string
	// DeleteRepairIDs are removed from the target after repairs are upserted.
	DeleteRepairIDs []string

	Logger  logger.Logger
	Metrics *datastore.Metrics
}

// Report summarizes what a merge applied to the target.
type Report struct {
	DefectsUpserted int
	DefectsDeleted  int
	RepairsUpserted int
	RepairsDeleted  int
	Duration        time.Duration
}

// Run merges source into target.
//
// The sequence is:
//  1. Acquire the source (a missing source database is an error), create
//     its schema, read all defects and repairs
//  2. Release the source when Run opened it
//  3. Acquire the target and create its schema
//  4. Upsert the source defects (source wins on identity conflicts)
//  5. Delete opts.DeleteDefectIDs from the target
//  6. Upsert the source repairs
//  7. Delete opts.DeleteRepairIDs from the target
//  8. Release the target when Run opened it
//
// A source failure returns before the target is touched. Each target step
// commits on its own, so a failure part way leaves the earlier steps applied;
// running the merge again completes it.
func Run(source, target Endpoint, opts Options) (rep Report, err error) {
	log := opts.Logger
	if log == nil {
		log = logger.Global().Module("merge")
	}
	start := time.Now()

	defects, repairs, err := readSource(source)
	if err != nil {
		log.Error("merge source unreadable", logger.Error(err))
		return rep, err
	}

	dst, release, err := target.acquire("target")
	if err != nil {
		log.Error("merge target unavailable", logger.Error(err))
		return rep, err
	}
	defer func() {
		if cerr := release(); cerr != nil && err == nil {
			err = wrap(cerr, "target", "close")
		}
	}()

	log = log.With(logger.String("target", dst.Path()))

	if err = dst.Defects().UpsertBatch(defects); err != nil {
		return rep, wrap(err, "target", "upsert defects")
	}
	rep.DefectsUpserted = len(defects)

	if rep.DefectsDeleted, err = dst.Defects().DeleteBatch(opts.DeleteDefectIDs); err != nil {
		return rep, wrap(err, "target", "delete defects")
	}

	if err = dst.Repairs().UpsertBatch(repairs); err != nil {
		return rep, wrap(err, "target", "upsert repairs")
	}
	rep.RepairsUpserted = len(repairs)

	if rep.RepairsDeleted, err = dst.Repairs().DeleteBatch(opts.DeleteRepairIDs); err != nil {
		return rep, wrap(err, "target", "delete repairs")
	}

	rep.Duration = time.Since(start)
	record(opts.Metrics, rep)
	log.Info("merge completed",
		logger.Int("defects_upserted", rep.DefectsUpserted),
		logger.Int("defects_deleted", rep.DefectsDeleted),
		logger.Int("repairs_upserted", rep.RepairsUpserted),
		logger.Int("repairs_deleted", rep.RepairsDeleted),
		logger.Duration("elapsed", rep.Duration))
	return rep, nil
}

// Directories merges the store named fileName in sourceDir into the one in targetDir.
func Directories(sourceDir, targetDir, fileName string, opts Options) (Report, error) {
	return Run(
		Location(datastore.Config{Dir: sourceDir, FileName: fileName, Logger: opts.Logger, Metrics: opts.Metrics}),
		Location(datastore.Config{Dir: targetDir, FileName: fileName, Logger: opts.Logger, Metrics: opts.Metrics}),
		opts,
	)
}

func readSource(source Endpoint) (defects []entities.Defect, repairs []entities.Repair, err error) {
	src, release, err := source.acquire("source")
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if cerr := release(); cerr != nil && err == nil {
			err = wrap(cerr, "source", "close")
		}
	}()

	if defects, err = src.Defects().All(); err != nil {
		return nil, nil, wrap(err, "source", "read defects")
	}
	if repairs, err = src.Repairs().All(); err != nil {
		return nil, nil, wrap(err, "source", "read repairs")
	}
	return defects, repairs, nil
}

func record(m *datastore.Metrics, rep Report) {
	if m == nil {
		return
	}
	m.RecordMergeRows(entities.Defect{}.TableName(), metrics.ActionUpserted, rep.DefectsUpserted)
	m.RecordMergeRows(entities.Defect{}.TableName(), metrics.ActionDeleted, rep.DefectsDeleted)
	m.RecordMergeRows(entities.Repair{}.TableName(), metrics.ActionUpserted, rep.RepairsUpserted)
	m.RecordMergeRows(entities.Repair{}.TableName(), metrics.ActionDeleted, rep.RepairsDeleted)
	m.RecordMergeDuration(rep.Duration.Seconds())
}

// wrap adds the merge side and step while keeping the cause reachable.
func wrap(err error, side, step string) error {
	return errors.Newf("merge %s: %s: %w", side, step, err).
		Component("merge").
		Category(errors.CategoryMerge).
		Context("side", side).
		Context("step", step).
		Build()
}
