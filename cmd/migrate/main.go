package main

import (
	"fmt"
	"log"
	"os"

	"github.com/bareuptime/convcore/internal/config"
	"github.com/bareuptime/convcore/internal/db"
)

const migrationsDir = "migrations"

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate [up|version]")
	}
	command := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	database, err := db.Connect(&cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	switch command {
	case "up":
		if err := database.RunMigrations(migrationsDir); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		fmt.Println("migrations completed successfully")
	case "version":
		version, err := database.MigrationVersion(migrationsDir)
		if err != nil {
			log.Fatalf("failed to get migration version: %v", err)
		}
		fmt.Printf("current migration version: %d\n", version)
	default:
		log.Fatalf("unknown command: %s", command)
	}
}
