// Package main provides a CLI tool for running database migrations.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/prediction-scanner/internal/config"
	"github.com/prediction-scanner/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version")
		path   = flag.String("path", "migrations/postgres", "Migrations directory")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}
	if err := cfg.RequireDatabase(); err != nil {
		log.Printf("Configuration error: %v", err)
		return 1
	}

	databaseURL := cfg.Database.URL()

	switch *action {
	case "up":
		log.Println("Running migrations...")
		if err := storage.RunMigrations(databaseURL, *path); err != nil {
			log.Printf("Migration failed: %v", err)
			return 2
		}
		log.Println("Migrations completed successfully")
	case "down":
		log.Println("Rolling back last migration...")
		if err := storage.RollbackMigrations(databaseURL, *path); err != nil {
			log.Printf("Rollback failed: %v", err)
			return 2
		}
		log.Println("Rollback completed successfully")
	case "version":
		version, dirty, err := storage.MigrationVersion(databaseURL, *path)
		if err != nil {
			log.Printf("Version lookup failed: %v", err)
			return 2
		}
		log.Printf("Current version: %d (dirty: %v)", version, dirty)
	default:
		log.Printf("Unknown action: %s", *action)
		return 1
	}
	return 0
}
