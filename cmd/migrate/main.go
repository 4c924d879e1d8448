package main

import (
	"fmt"
	"log"
	"os"

	"github.com/geoaware/backend/internal/config"
	"github.com/geoaware/backend/internal/database"
)

func main() {
	if !config.LoadDotEnv() {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "up":
		runMigrationsUp()
	case "check":
		runHealthCheck()
	default:
		fmt.Println("Usage: migrate [up|check]")
		fmt.Println("  up    - Create the PostGIS extension, tables and indexes")
		fmt.Println("  check - Verify the database answers")
		os.Exit(1)
	}
}

func runMigrationsUp() {
	log.Println("Connecting to database...")
	if err := database.Initialize(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Println("Running migrations...")
	if err := database.Migrate(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("All migrations completed successfully")
}

func runHealthCheck() {
	if err := database.Initialize(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.Health(); err != nil {
		log.Fatalf("Database unhealthy: %v", err)
	}
	log.Println("Database healthy")
}
