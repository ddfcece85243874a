package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stemsi/pisaprep/internal/config"
	"github.com/stemsi/pisaprep/internal/migrations"
)

func main() {
	var target string
	flag.StringVar(&target, "target", string(migrations.TargetLocal), "Schema to migrate: local or remote")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		return
	}

	cfg := config.Load()

	m, err := open(migrations.Target(target), cfg)
	if err != nil {
		log.Fatalf("Migration failed to initialize: %v", err)
	}
	defer m.Close()

	command := args[0]
	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Up failed: %v", err)
		}
		fmt.Printf("Migrated %s up successfully\n", target)
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Down failed: %v", err)
		}
		fmt.Printf("Migrated %s down successfully\n", target)
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatalf("Version failed: %v", err)
		}
		fmt.Printf("Version: %d, Dirty: %t\n", version, dirty)
	case "force":
		if len(args) < 2 {
			log.Fatal("force requires version argument")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("Invalid version: %v", err)
		}
		if err := m.Force(v); err != nil {
			log.Fatalf("Force failed: %v", err)
		}
		fmt.Printf("Forced version to %d\n", v)
	default:
		printUsage()
	}
}

func open(target migrations.Target, cfg *config.Config) (*migrate.Migrate, error) {
	src, err := migrations.Source(target)
	if err != nil {
		return nil, err
	}

	switch target {
	case migrations.TargetLocal:
		if cfg.LocalDBPath == "" {
			return nil, errors.New("LOCAL_DB_PATH is not set")
		}
		db, err := sql.Open("sqlite3", cfg.LocalDBPath+"?_foreign_keys=on")
		if err != nil {
			return nil, err
		}
		driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
		if err != nil {
			return nil, err
		}
		return migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	default:
		if cfg.RemoteDatabaseURL == "" {
			return nil, errors.New("REMOTE_DATABASE_URL is not set")
		}
		return migrate.NewWithSourceInstance("iofs", src, cfg.RemoteDatabaseURL)
	}
}

func printUsage() {
	fmt.Println("Usage: migrate [flags] <command>")
	fmt.Println("Commands: up, down, version, force <version>")
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
