package cliutil

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Opens a gorm database from a URL: "sqlite://path/to/file.db" (or "sqlite=") and "postgres://..." (or "postgresql://", "postgres=") are supported.
//
// sqlite databases are limited to a single open connection, and run in WAL mode.
func SetupDatabase(dburl string, maxConnections int, logger *slog.Logger) (*gorm.DB, error) {
	var dial gorm.Dialector
	isSqlite := false
	openConns := maxConnections
	switch {
	case strings.HasPrefix(dburl, "sqlite://") || strings.HasPrefix(dburl, "sqlite="):
		sqliteSuffix := strings.TrimPrefix(strings.TrimPrefix(dburl, "sqlite://"), "sqlite=")
		// if this isn't ":memory:", ensure that directory exists (eg, if db
		// file is being initialized)
		if !strings.Contains(sqliteSuffix, ":memory:") {
			if err := os.MkdirAll(filepath.Dir(sqliteSuffix), os.ModePerm); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		dial = sqlite.Open(sqliteSuffix)
		openConns = 1
		isSqlite = true
	case strings.HasPrefix(dburl, "postgresql://") || strings.HasPrefix(dburl, "postgres://"):
		// can pass entire URL, with prefix, to gorm driver
		dial = postgres.Open(dburl)
	case strings.HasPrefix(dburl, "postgres="):
		dial = postgres.Open(dburl[len("postgres="):])
	default:
		// only the scheme, so credentials never end up in logs
		scheme, _, _ := strings.Cut(dburl, ":")
		return nil, fmt.Errorf("unsupported or unrecognized DATABASE_URL scheme: %q", scheme)
	}

	if logger == nil {
		logger = slog.Default()
	}
	gormLogger := slogGorm.New(
		slogGorm.WithHandler(logger.With("component", "gorm").Handler()),
		slogGorm.WithSlowThreshold(500*time.Millisecond),
	)

	db, err := gorm.Open(dial, &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqldb, err := db.DB()
	if err != nil {
		return nil, err
	}
	if openConns <= 0 {
		openConns = 20
	}
	sqldb.SetMaxIdleConns(min(openConns, 10))
	sqldb.SetMaxOpenConns(openConns)
	sqldb.SetConnMaxIdleTime(time.Hour)

	if isSqlite {
		if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
			return nil, err
		}
		if err := db.Exec("PRAGMA synchronous=normal;").Error; err != nil {
			return nil, err
		}
	}
	return db, nil
}

type LogOptions struct {
	// debug|info|warn|error
	Level string
	// text|json
	Format string
}

// Builds the process logger, writing to stdout, and installs it as the slog default.
func SetupSlog(options LogOptions) (*slog.Logger, error) {
	var hopts slog.HandlerOptions
	switch strings.ToLower(options.Level) {
	case "debug":
		hopts.Level = slog.LevelDebug
	case "", "info":
		hopts.Level = slog.LevelInfo
	case "warn":
		hopts.Level = slog.LevelWarn
	case "error":
		hopts.Level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %#v", options.Level)
	}

	var handler slog.Handler
	switch strings.ToLower(options.Format) {
	case "", "json":
		handler = slog.NewJSONHandler(os.Stdout, &hopts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, &hopts)
	default:
		return nil, fmt.Errorf("unknown log format: %#v", options.Format)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
