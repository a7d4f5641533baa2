package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/maumercado/dbqueue/internal/logger"
)

// Database is the single handle through which clients and workers reach
// the coordination tables. Construct it once at process start and thread
// it into everything; there are no package-level singletons.
type Database struct {
	db          *gorm.DB
	hasRowLocks bool
}

// Open connects to the given database URL, creating the target database
// (postgres only) and both tables if they do not exist. The operation is
// idempotent. URLs with a postgres scheme use the postgres driver; any
// other value is treated as a SQLite DSN.
func Open(dbURL string) (*Database, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}

	var (
		db  *gorm.DB
		err error
	)
	isPostgres := strings.HasPrefix(dbURL, "postgres://") || strings.HasPrefix(dbURL, "postgresql://")
	if isPostgres {
		if err := createDatabaseIfMissing(dbURL, gormCfg); err != nil {
			return nil, err
		}
		db, err = gorm.Open(postgres.Open(dbURL), gormCfg)
	} else {
		db, err = gorm.Open(sqlite.Open(dbURL), gormCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if !isPostgres {
		// SQLite allows a single writer; funnel everything through one
		// connection so concurrent transactions queue instead of failing
		// with SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access connection pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&Task{}, &Worker{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Database{db: db, hasRowLocks: isPostgres}, nil
}

// createDatabaseIfMissing connects to the maintenance database and issues
// CREATE DATABASE for the target. A duplicate-database error means another
// process got there first.
func createDatabaseIfMissing(dbURL string, gormCfg *gorm.Config) error {
	u, err := url.Parse(dbURL)
	if err != nil {
		return fmt.Errorf("invalid database url: %w", err)
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return nil
	}

	admin := *u
	admin.Path = "/postgres"
	adminDB, err := gorm.Open(postgres.Open(admin.String()), gormCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to maintenance database: %w", err)
	}
	defer func() {
		if sqlDB, err := adminDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	err = adminDB.Exec(fmt.Sprintf("CREATE DATABASE %q", name)).Error
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create database %s: %w", name, err)
	}
	if err == nil {
		logger.Info().Str("database", name).Msg("created database")
	}
	return nil
}

// Transaction runs fn inside one scoped transaction: commit when fn
// returns nil, rollback when it returns an error or panics. Every
// operation against the queue runs inside exactly one of these.
func (d *Database) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return d.db.WithContext(ctx).Transaction(fn)
}

// Locked adds a SELECT ... FOR UPDATE clause on dialects that support
// row-level locks. On SQLite the single-writer connection set up in Open
// provides the same mutual exclusion, so the clause is omitted.
func (d *Database) Locked(tx *gorm.DB) *gorm.DB {
	if d.hasRowLocks {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// DB exposes the underlying gorm handle for read-only queries that do
// not need transaction scoping.
func (d *Database) DB() *gorm.DB { return d.db }

// Close releases the connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
