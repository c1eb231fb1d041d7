package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"moneymanager/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator applies the embedded transactions schema to one SQLite file.
type Migrator struct {
	dbPath string
	logger *log.Logger
}

func NewMigrator(dbPath string, logger *log.Logger) *Migrator {
	if logger == nil {
		logger = log.Discard()
	}
	return &Migrator{dbPath: dbPath, logger: logger.WithComponent(log.ComponentStorage)}
}

// Up brings the schema to the latest version and returns it.
func (m *Migrator) Up() (uint, error) {
	var version uint
	err := m.with(func(mg *migrate.Migrate) error {
		if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("run migrations: %w", err)
		}
		v, dirty, err := mg.Version()
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		if dirty {
			return fmt.Errorf("schema version %d is dirty", v)
		}
		version = v
		return nil
	})
	if err != nil {
		return 0, err
	}
	m.logger.Debug("Schema up to date", "path", m.dbPath, "version", version)
	return version, nil
}

// Down drops every table the migrations created.
func (m *Migrator) Down() error {
	return m.with(func(mg *migrate.Migrate) error {
		if err := mg.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("revert migrations: %w", err)
		}
		m.logger.Info("Schema reverted", "path", m.dbPath)
		return nil
	})
}

// with runs fn on a migrate instance backed by its own connection; closing
// the instance closes that connection.
func (m *Migrator) with(fn func(*migrate.Migrate) error) error {
	db, err := sql.Open("sqlite", m.dbPath)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("create sqlite driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return fmt.Errorf("create iofs source: %w", err)
	}
	mg, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		db.Close()
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer mg.Close()

	return fn(mg)
}
