// Package migrations embeds the schema of both stores: the device-local
// SQLite database and the remote Postgres document store.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed local/*.sql
var localFS embed.FS

//go:embed remote/*.sql
var remoteFS embed.FS

// Target names a schema.
type Target string

const (
	TargetLocal  Target = "local"
	TargetRemote Target = "remote"
)

// Source returns the embedded migration source for target.
func Source(target Target) (source.Driver, error) {
	switch target {
	case TargetLocal:
		return iofs.New(localFS, "local")
	case TargetRemote:
		return iofs.New(remoteFS, "remote")
	default:
		return nil, fmt.Errorf("unknown migration target %q", target)
	}
}

// UpLocal applies pending local migrations to an already open SQLite handle.
// The handle stays open: the migrate instance is not closed because closing
// it would close db as well.
func UpLocal(db *sql.DB) error {
	src, err := Source(TargetLocal)
	if err != nil {
		return fmt.Errorf("open local source: %w", err)
	}
	defer src.Close()

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("init local migrate: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply local migrations: %w", err)
	}
	return nil
}
