package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/geoaware/backend/internal/config"
	"github.com/geoaware/backend/internal/database"
	"github.com/geoaware/backend/internal/logger"
	"github.com/geoaware/backend/internal/seed"
	"github.com/spf13/cobra"
)

var (
	fakerSeed   uint64
	centerLat   float64
	centerLon   float64
	contentBase string
	devUsers    int
	devFences   int
	confirmed   bool
)

var rootCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the GeoAware database",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !config.LoadDotEnv() {
			fmt.Println("Warning: .env file not found, using system environment variables")
		}
		if err := logger.Initialize(os.Getenv("LOG_LEVEL"), ""); err != nil {
			return err
		}
		seedCfg, err := config.LoadSeed()
		if err != nil {
			return err
		}
		applySeedDefaults(cmd, seedCfg)
		if err := database.Initialize(); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		color.Green("Database connected")
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = database.Close()
	},
}

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Seed development data: admin, users, geofences and content",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.Migrate(); err != nil {
			return err
		}
		if err := newSeeder().SeedDev(devUsers, devFences); err != nil {
			return fmt.Errorf("seeding failed: %w", err)
		}
		color.Green("Development database seeded. Log in as admin / %s", seed.DefaultPassword)
		return nil
	},
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Seed a small fixed dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.Migrate(); err != nil {
			return err
		}
		if err := newSeeder().SeedTest(); err != nil {
			return fmt.Errorf("seeding failed: %w", err)
		}
		color.Green("Test database seeded")
		return nil
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete all users, geofences, content, events and privacy logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirmed {
			return fmt.Errorf("refusing to delete data without --yes")
		}
		if err := newSeeder().Clean(); err != nil {
			return fmt.Errorf("clean failed: %w", err)
		}
		color.Yellow("Seed data cleaned")
		return nil
	},
}

// applySeedDefaults fills flags the user did not set from the environment
func applySeedDefaults(cmd *cobra.Command, cfg *config.SeedConfig) {
	if !cmd.Flags().Changed("users") {
		devUsers = cfg.Users
	}
	if !cmd.Flags().Changed("fences") {
		devFences = cfg.Fences
	}
	if !cmd.Flags().Changed("content-url") {
		contentBase = cfg.ContentRepoURL
	}
}

func newSeeder() *seed.Seeder {
	return seed.NewSeeder(database.DB,
		seed.WithFakerSeed(fakerSeed),
		seed.WithCenter(centerLat, centerLon),
		seed.WithContentBaseURL(contentBase),
	)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.Uint64Var(&fakerSeed, "faker-seed", 0, "Seed for generated data (0 = random)")
	pf.Float64Var(&centerLat, "lat", 40.748, "Latitude fences are placed around")
	pf.Float64Var(&centerLon, "lon", -73.985, "Longitude fences are placed around")
	pf.StringVar(&contentBase, "content-url", "http://localhost:3000", "Content repository base URL")

	devCmd.Flags().IntVar(&devUsers, "users", 20, "Users to create")
	devCmd.Flags().IntVar(&devFences, "fences", 8, "Geofences to create")
	cleanCmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm deletion")

	rootCmd.AddCommand(devCmd, testCmd, cleanCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
