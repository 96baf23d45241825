// Package database opens the gorm and sqlx handles for the configured driver.
package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/frahmantamala/fleet-recurring/internal"
	categoryDatamodel "github.com/frahmantamala/fleet-recurring/internal/core/datamodel/category"
	recurringDatamodel "github.com/frahmantamala/fleet-recurring/internal/core/datamodel/recurring"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	// sqlDriverPgx is the database/sql name registered by pgx's stdlib package.
	sqlDriverPgx = "pgx"
)

// Open returns a gorm handle with constraint errors translated into gorm's
// sentinel errors (gorm.ErrDuplicatedKey and friends).
func Open(cfg internal.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres, "":
		dialector = postgres.Open(cfg.Source)
	case DriverSQLite:
		dialector = sqlite.Open(cfg.Source)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         newLogger(cfg.LogQueries),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql handle: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		// one connection: an in-memory database lives and dies with its connection
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
		return db, nil
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return db, nil
}

// AutoMigrate creates the schema from the gorm models. Deployments run the goose
// migrations instead; this serves sqlite runs and tests.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&categoryDatamodel.Category{},
		&recurringDatamodel.RecurringTemplate{},
		&recurringDatamodel.LedgerEntry{},
		&recurringDatamodel.GenerationRecord{},
	)
}

// SQLX wraps the connection pool behind db for raw queries such as the health
// check. Postgres gets its own pgx pool so the check does not queue behind gorm.
func SQLX(cfg internal.DatabaseConfig, db *gorm.DB) (*sqlx.DB, error) {
	if cfg.Driver == DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql handle: %w", err)
		}
		return sqlx.NewDb(sqlDB, "sqlite3"), nil
	}

	conn, err := sqlx.Connect(sqlDriverPgx, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("open pgx connection: %w", err)
	}
	conn.SetMaxOpenConns(2)
	conn.SetMaxIdleConns(1)
	return conn, nil
}

// MigrationDB opens the handle goose runs migrations on and selects the
// matching goose dialect.
func MigrationDB(cfg internal.DatabaseConfig) (*sql.DB, error) {
	if cfg.Driver == DriverSQLite {
		if err := goose.SetDialect("sqlite3"); err != nil {
			return nil, err
		}
		return sql.Open("sqlite3", cfg.Source)
	}
	return goose.OpenDBWithDriver(sqlDriverPgx, cfg.Source)
}

func newLogger(logQueries bool) gormLogger.Interface {
	if !logQueries {
		return gormLogger.Discard
	}
	return gormLogger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), gormLogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormLogger.Info,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
