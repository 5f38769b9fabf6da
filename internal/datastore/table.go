package datastore

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kent2980/aoi-data-manager/internal/datastore/entities"
	"github.com/kent2980/aoi-data-manager/internal/errors"
	"github.com/kent2980/aoi-data-manager/internal/logger"
	"github.com/kent2980/aoi-data-manager/internal/observability/metrics"
)

// Table provides CRUD over one record type. Every mutating call runs in its
// own transaction and rolls back on failure.
type Table[T entities.Record] struct {
	store *Store
	name  string
}

func newTable[T entities.Record](s *Store) *Table[T] {
	var zero T
	return &Table[T]{store: s, name: zero.TableName()}
}

// Name returns the table name.
func (t *Table[T]) Name() string {
	return t.name
}

// exec guards against a closed store, runs fn and records the outcome.
func (t *Table[T]) exec(operation string, fn func(db *gorm.DB) (int64, error)) (int64, error) {
	s := t.store
	if s.closed.Load() {
		return 0, closedError(operation, t.name)
	}

	start := time.Now()
	rows, err := fn(s.db)
	s.observe(operation, t.name, start, err)
	if err != nil {
		s.log.Debug("operation failed",
			logger.String("operation", operation),
			logger.String("table", t.name),
			logger.Error(err))
		return 0, dbError(err, operation, t.name)
	}
	if s.metrics != nil {
		switch operation {
		case metrics.OpInsert, metrics.OpInsertBatch, metrics.OpUpsert, metrics.OpUpsertBatch,
			metrics.OpDelete, metrics.OpDeleteBatch:
			s.metrics.RecordRows(operation, t.name, rows)
		}
	}
	return rows, nil
}

func upsertClause() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}
}

// Insert adds rec. An existing row with the same identity fails with ErrDuplicateKey.
func (t *Table[T]) Insert(rec *T) error {
	_, err := t.exec(metrics.OpInsert, func(db *gorm.DB) (int64, error) {
		res := db.Create(rec)
		return res.RowsAffected, res.Error
	})
	return err
}

// InsertBatch adds all recs in one transaction. Any failure, including a
// duplicate identity, leaves the table unchanged.
func (t *Table[T]) InsertBatch(recs []T) error {
	if len(recs) == 0 {
		return nil
	}
	_, err := t.exec(metrics.OpInsertBatch, func(db *gorm.DB) (int64, error) {
		var rows int64
		err := db.Transaction(func(tx *gorm.DB) error {
			res := tx.CreateInBatches(recs, t.store.cfg.BatchSize)
			rows = res.RowsAffected
			return res.Error
		})
		return rows, err
	})
	return err
}

// Upsert inserts rec or overwrites every column of the row with its identity.
func (t *Table[T]) Upsert(rec *T) error {
	_, err := t.exec(metrics.OpUpsert, func(db *gorm.DB) (int64, error) {
		res := db.Clauses(upsertClause()).Create(rec)
		return res.RowsAffected, res.Error
	})
	return err
}

// UpsertBatch upserts all recs in one transaction. When recs repeats an
// identity the last occurrence wins.
func (t *Table[T]) UpsertBatch(recs []T) error {
	if len(recs) == 0 {
		return nil
	}
	recs = lastByID(recs)
	_, err := t.exec(metrics.OpUpsertBatch, func(db *gorm.DB) (int64, error) {
		var rows int64
		err := db.Transaction(func(tx *gorm.DB) error {
			res := tx.Clauses(upsertClause()).CreateInBatches(recs, t.store.cfg.BatchSize)
			rows = res.RowsAffected
			return res.Error
		})
		return rows, err
	})
	return err
}

// Get returns the row with identity id, or nil with a nil error when absent.
func (t *Table[T]) Get(id string) (*T, error) {
	var rec T
	found := false
	_, err := t.exec(metrics.OpGet, func(db *gorm.DB) (int64, error) {
		err := db.Where("id = ?", id).Take(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		found = err == nil
		return 0, err
	})
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

// All returns every row. Order is unspecified.
func (t *Table[T]) All() ([]T, error) {
	var recs []T
	_, err := t.exec(metrics.OpAll, func(db *gorm.DB) (int64, error) {
		res := db.Find(&recs)
		return res.RowsAffected, res.Error
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// Delete removes the row with identity id. It reports false, without an
// error, when no such row exists.
func (t *Table[T]) Delete(id string) (bool, error) {
	rows, err := t.exec(metrics.OpDelete, func(db *gorm.DB) (int64, error) {
		res := db.Where("id = ?", id).Delete(new(T))
		return res.RowsAffected, res.Error
	})
	return rows > 0, err
}

// DeleteBatch removes every row whose identity is in ids and returns how
// many rows were removed. Unknown identities are skipped.
func (t *Table[T]) DeleteBatch(ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	rows, err := t.exec(metrics.OpDeleteBatch, func(db *gorm.DB) (int64, error) {
		var rows int64
		err := db.Transaction(func(tx *gorm.DB) error {
			for chunk := range chunkIDs(ids, t.store.cfg.BatchSize) {
				res := tx.Where("id IN ?", chunk).Delete(new(T))
				if res.Error != nil {
					return res.Error
				}
				rows += res.RowsAffected
			}
			return nil
		})
		return rows, err
	})
	return int(rows), err
}

// Count returns the number of rows.
func (t *Table[T]) Count() (int64, error) {
	var n int64
	_, err := t.exec(metrics.OpCount, func(db *gorm.DB) (int64, error) {
		return 0, db.Model(new(T)).Count(&n).Error
	})
	return n, err
}

// lastByID drops earlier duplicates of an identity, keeping input order
// otherwise. Records without an identity yet are never treated as duplicates.
func lastByID[T entities.Record](recs []T) []T {
	last := make(map[string]int, len(recs))
	dups := 0
	for i, r := range recs {
		id := r.RecordID()
		if id == "" {
			continue
		}
		if _, ok := last[id]; ok {
			dups++
		}
		last[id] = i
	}
	if dups == 0 {
		return recs
	}
	out := make([]T, 0, len(recs)-dups)
	for i, r := range recs {
		if id := r.RecordID(); id == "" || last[id] == i {
			out = append(out, r)
		}
	}
	return out
}

// chunkIDs yields ids in slices of at most size elements, skipping duplicates.
func chunkIDs(ids []string, size int) func(yield func([]string) bool) {
	return func(yield func([]string) bool) {
		seen := make(map[string]struct{}, len(ids))
		chunk := make([]string, 0, min(size, len(ids)))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			chunk = append(chunk, id)
			if len(chunk) == size {
				if !yield(chunk) {
					return
				}
				chunk = make([]string, 0, size)
			}
		}
		if len(chunk) > 0 {
			yield(chunk)
		}
	}
}
