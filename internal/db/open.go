package db

import (
	"database/sql"
	"fmt"

	"github.com/bwise1/voteledger/internal/db/migrations"
	"github.com/bwise1/voteledger/internal/ledger"
)

type Options struct {
	Driver      string
	DSN         string
	SQLitePath  string
	AutoMigrate bool
}

// Open returns the ledger store selected by opts.Driver.
func Open(opts Options) (ledger.Store, error) {
	switch opts.Driver {
	case migrations.DriverPostgres:
		pg, err := New(opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		if opts.AutoMigrate {
			if err := migrations.MigrateUp(pg.SQLDB(), migrations.DriverPostgres); err != nil {
				pg.Close()
				return nil, err
			}
		}
		return pg, nil
	case migrations.DriverSQLite, "":
		return OpenSQLite(opts.SQLitePath, opts.AutoMigrate)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

// Migrate brings the schema of store up to date.
func Migrate(store ledger.Store) error {
	sqlDB, driver, err := sqlHandle(store)
	if err != nil {
		return err
	}
	return migrations.MigrateUp(sqlDB, driver)
}

func MigrationStatus(store ledger.Store) (migrations.Status, error) {
	sqlDB, driver, err := sqlHandle(store)
	if err != nil {
		return migrations.Status{}, err
	}
	return migrations.CurrentStatus(sqlDB, driver)
}

func sqlHandle(store ledger.Store) (*sql.DB, string, error) {
	switch s := store.(type) {
	case *DB:
		return s.SQLDB(), migrations.DriverPostgres, nil
	case *SQLiteStore:
		return s.DB(), migrations.DriverSQLite, nil
	default:
		return nil, "", fmt.Errorf("store %T has no schema", store)
	}
}
