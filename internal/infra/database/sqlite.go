package database

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// NewSqlite opens a SQLite database file at path. An empty path opens a shared
// in-memory database and a "file:" URI is used as given. The pool is limited to
// one connection since SQLite serializes writers.
func NewSqlite(path string) (*gorm.DB, error) {
	var dsn string
	switch {
	case path == "":
		dsn = "file::memory:?cache=shared"
	case strings.HasPrefix(path, "file:"):
		dsn = path
	default:
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Discard,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	return db, nil
}
