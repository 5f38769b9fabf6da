package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kent2980/aoi-data-manager/internal/errors"
	"github.com/kent2980/aoi-data-manager/internal/logger"
)

// Engine selects the database driver.
type Engine string

const (
	EngineSQLite   Engine = "sqlite"
	EngineMySQL    Engine = "mysql"
	EnginePostgres Engine = "postgres"
)

const (
	// DefaultFileName is the SQLite file created inside Config.Dir.
	DefaultFileName = "aoi_data.db"

	// DefaultBatchSize bounds the rows per INSERT statement and the ids per DELETE.
	DefaultBatchSize = 500

	defaultSlowThreshold = 200 * time.Millisecond
)

// Config describes where a Store lives.
type Config struct {
	// Dir holds the SQLite database file. Created when missing.
	Dir string
	// FileName of the SQLite database inside Dir. Defaults to DefaultFileName.
	FileName string
	// Engine defaults to EngineSQLite.
	Engine Engine
	// DSN is passed verbatim to the MySQL or Postgres driver.
	DSN string
	// MustExist makes Open fail instead of creating a missing SQLite
	// directory or file. Merge sources are opened this way.
	MustExist bool

	Logger        logger.Logger
	Metrics       *Metrics
	BatchSize     int
	SlowThreshold time.Duration
}

func (c Config) withDefaults() Config {
	if c.Engine == "" {
		c.Engine = EngineSQLite
	}
	c.Engine = Engine(strings.ToLower(string(c.Engine)))
	if c.FileName == "" {
		c.FileName = DefaultFileName
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.SlowThreshold == 0 {
		c.SlowThreshold = defaultSlowThreshold
	}
	if c.Logger == nil {
		c.Logger = logger.Global().Module("datastore")
	}
	return c
}

// SQLitePath returns the database file path for the SQLite engine.
func (c Config) SQLitePath() string {
	name := c.FileName
	if name == "" {
		name = DefaultFileName
	}
	return filepath.Join(c.Dir, name)
}

// dialector builds the GORM dialector and a display location for the engine.
func (c Config) dialector() (gorm.Dialector, string, error) {
	switch c.Engine {
	case EngineSQLite:
		if c.Dir == "" {
			return nil, "", errors.New(errors.NewStd("data directory is not set")).
				Component("datastore").
				Category(errors.CategoryValidation).
				Build()
		}
		if c.MustExist {
			if _, err := os.Stat(c.SQLitePath()); err != nil {
				return nil, "", errors.New(fmt.Errorf("database file %s: %w", c.SQLitePath(), err)).
					Component("datastore").
					Category(errors.CategoryDatabase).
					FileContext(c.SQLitePath()).
					Build()
			}
		}
		if err := os.MkdirAll(c.Dir, 0o755); err != nil {
			return nil, "", errors.New(fmt.Errorf("create data directory: %w", err)).
				Component("datastore").
				Category(errors.CategoryFileIO).
				FileContext(c.Dir).
				Build()
		}
		path := c.SQLitePath()
		return sqlite.Open(path + "?_busy_timeout=5000&_journal_mode=WAL"), path, nil

	case EngineMySQL, EnginePostgres:
		if c.DSN == "" {
			return nil, "", errors.Newf("%s engine requires a DSN", c.Engine).
				Component("datastore").
				Category(errors.CategoryValidation).
				Build()
		}
		if c.Engine == EngineMySQL {
			return mysql.Open(c.DSN), redactDSN(c.DSN), nil
		}
		return postgres.Open(c.DSN), redactDSN(c.DSN), nil
	}

	return nil, "", errors.New(fmt.Errorf("%w: %q", ErrUnsupportedEngine, c.Engine)).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("engine", string(c.Engine)).
		Build()
}

// MySQLDSN formats a go-sql-driver/mysql DSN.
func MySQLDSN(user, password, host, port, database string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, database)
}

// PostgresDSN formats a pgx keyword/value DSN.
func PostgresDSN(user, password, host, port, database string) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, database)
}

// redactDSN hides credentials from the location shown in logs.
func redactDSN(dsn string) string {
	// user:pass@tcp(host)/db
	if at := strings.LastIndex(dsn, "@"); at >= 0 {
		return "***@" + dsn[at+1:]
	}
	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(f, "password=") {
			fields[i] = "password=***"
		}
	}
	return strings.Join(fields, " ")
}
