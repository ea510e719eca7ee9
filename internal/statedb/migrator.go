package statedb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/CWorthy-ocean/C-Star-sub001/internal/clog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// migrator applies the embedded schema migrations to a sqlite3
// database handle.
type migrator struct {
	logger    clog.Logger
	srcDriver source.Driver
}

func newMigrator(logger clog.Logger) (*migrator, error) {
	d, err := iofs.New(migrationsFS, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("statedb: loading embedded migrations: %w", err)
	}
	return &migrator{logger: logger, srcDriver: d}, nil
}

func (m *migrator) apply(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("statedb: creating migration driver: %w", err)
	}

	mig, err := migrate.NewWithInstance("iofs", m.srcDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("statedb: creating migrator: %w", err)
	}

	m.logger.Info("applying state database migrations")
	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("statedb: applying migrations: %w", err)
	}

	if version, dirty, err := mig.Version(); err == nil {
		m.logger.Debug("state database migration version", "version", version, "dirty", dirty)
	}
	return nil
}
