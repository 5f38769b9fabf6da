// Package datastore persists defect and repair records in a relational
// database through GORM.
//
// A Store owns one connection pool bound to one database. It is OPEN from
// Open until Close and CLOSED afterwards; every operation on a closed store
// fails with ErrClosed. Use With for scoped acquisition:
//
//	err := datastore.With(datastore.Config{Dir: dataDir}, func(s *datastore.Store) error {
//	    return s.Defects().UpsertBatch(defects)
//	})
package datastore

import (
	"database/sql"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/kent2980/aoi-data-manager/internal/datastore/entities"
	"github.com/kent2980/aoi-data-manager/internal/errors"
	"github.com/kent2980/aoi-data-manager/internal/logger"
	"github.com/kent2980/aoi-data-manager/internal/observability/metrics"
)

// Store is an open database handle. Table operations may run from several
// goroutines at once: GORM draws connections from the database/sql pool and
// SQLite stores are limited to a single connection. Close must not run while
// operations are in flight.
type Store struct {
	db       *gorm.DB
	sqlDB    *sql.DB
	engine   Engine
	location string
	cfg      Config
	log      logger.Logger
	metrics  *Metrics

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	cleanup   runtime.Cleanup
}

// Open connects to the database described by cfg. For SQLite the directory
// is created when missing and the file itself on first write.
func Open(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()

	dialector, location, err := cfg.dialector()
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.NewGormLoggerAdapter(cfg.Logger.Module("gorm"), cfg.SlowThreshold),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("engine", string(cfg.Engine)).
			Context("location", location).
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	if cfg.Engine == EngineSQLite {
		// one writer per file
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	s := &Store{
		db:       db,
		sqlDB:    sqlDB,
		engine:   cfg.Engine,
		location: location,
		cfg:      cfg,
		log:      cfg.Logger.With(logger.String("location", location)),
		metrics:  cfg.Metrics,
	}

	// Safety net for handles dropped without Close.
	s.cleanup = runtime.AddCleanup(s, func(db *sql.DB) { _ = db.Close() }, sqlDB)

	if s.metrics != nil {
		s.metrics.StoreOpened()
	}
	s.log.Debug("store opened", logger.String("engine", string(cfg.Engine)))
	return s, nil
}

// With opens a store, passes it to fn and closes it on every exit path,
// including panics. A close failure is reported only when fn succeeded.
func With(cfg Config, fn func(*Store) error) (err error) {
	s, err := Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

// CreateSchema creates the defect and repair tables when missing. It only
// ever adds tables, columns and indexes.
func (s *Store) CreateSchema() error {
	if s.closed.Load() {
		return closedError(metrics.OpSchema, "")
	}
	start := time.Now()
	err := s.db.AutoMigrate(entities.Models()...)
	s.observe(metrics.OpSchema, "", start, err)
	if err != nil {
		return dbError(err, metrics.OpSchema, "")
	}
	return nil
}

// Close releases the connection pool. Only the first call does work; later
// calls return the first call's result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cleanup.Stop()
		if err := s.sqlDB.Close(); err != nil {
			s.closeErr = errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "close").
				Build()
		}
		if s.metrics != nil {
			s.metrics.StoreClosed()
		}
		s.log.Debug("store closed")
	})
	return s.closeErr
}

// IsClosed reports whether Close has been called.
func (s *Store) IsClosed() bool {
	return s.closed.Load()
}

// Path returns the database file path for SQLite, or a redacted DSN otherwise.
func (s *Store) Path() string {
	return s.location
}

// Engine returns the engine the store was opened with.
func (s *Store) Engine() Engine {
	return s.engine
}

// Defects returns the defect table.
func (s *Store) Defects() *DefectTable {
	return &DefectTable{Table: newTable[entities.Defect](s)}
}

// Repairs returns the repair table.
func (s *Store) Repairs() *Table[entities.Repair] {
	return newTable[entities.Repair](s)
}

func (s *Store) observe(operation, table string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		s.metrics.RecordError(operation, table, errorType(err))
	}
	s.metrics.RecordOperation(operation, table, status, time.Since(start).Seconds())
}
