package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/matheus3301/dmsync/internal/store/migrations"
)

// SchemaVersion describes the schema state of the backend file.
type SchemaVersion struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate applies every pending migration.
func (db *DB) Migrate() (*SchemaVersion, error) {
	m, err := db.migrator()
	if err != nil {
		return nil, err
	}

	changed := true
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("migration up: %w", err)
		}
		changed = false
	}

	version, dirty, err := m.Version()
	if err != nil {
		return nil, fmt.Errorf("migration version: %w", err)
	}
	return &SchemaVersion{Version: version, Dirty: dirty, Changed: changed}, nil
}

// SchemaStatus reports the applied version without migrating. A file that
// was never migrated reports version 0.
func (db *DB) SchemaStatus() (*SchemaVersion, error) {
	m, err := db.migrator()
	if err != nil {
		return nil, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return &SchemaVersion{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("migration version: %w", err)
	}
	return &SchemaVersion{Version: version, Dirty: dirty}, nil
}

// The migrate instance is not closed: its sqlite3 driver would close db.
func (db *DB) migrator() (*migrate.Migrate, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}
	return m, nil
}
