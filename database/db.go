// Package database opens the relational store shared by every module.
package database

import (
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"strings"
	"time"

	zlog "github.com/rs/zerolog/log"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"supportdesk_back/config"
)

// OpenFromEnv connects using DATABASE_DSN and an optional DATABASE_DRIVER.
func OpenFromEnv() (*gorm.DB, error) {
	dsn := config.String("DATABASE_DSN", "")
	if dsn == "" {
		return nil, errors.New("database: DATABASE_DSN environment variable is required")
	}

	driver := config.String("DATABASE_DRIVER", "")
	if driver == "" {
		driver = InferDriver(dsn)
		if driver == "" {
			return nil, errors.New("database: DATABASE_DRIVER environment variable is required when DSN does not contain a scheme")
		}
	}

	return Open(driver, dsn)
}

// Open initialises gorm for the given driver. Timestamps are written in UTC.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  gormLogger(zlog.Logger),
	}

	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pg":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(strings.TrimPrefix(dsn, "mysql://"))
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", driver, err)
	}
	return db, nil
}

// gormLogger reports slow queries and errors. Missing rows are an expected
// outcome of lookups and stay silent.
func gormLogger(w io.Writer) logger.Interface {
	return logger.New(stdlog.New(w, "gorm ", 0), logger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// InferDriver guesses the driver from the DSN scheme or file suffix.
func InferDriver(dsn string) string {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(lower, "mysql://"), strings.Contains(lower, "@tcp("):
		return "mysql"
	case strings.HasPrefix(lower, "sqlite://"), strings.HasPrefix(lower, "file:"),
		strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"):
		return "sqlite"
	default:
		return ""
	}
}

// OpenMemory returns a private in-memory sqlite database for tests and local
// tooling. A single connection keeps every query on the same database.
func OpenMemory(name string) (*gorm.DB, error) {
	name = strings.NewReplacer("/", "_", " ", "_").Replace(name)
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
	db, err := Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: access pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}
