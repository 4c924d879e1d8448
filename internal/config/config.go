// Package config reads service settings from the environment. A .env file
// in the working directory is loaded first when present.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the API server configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Auth        AuthConfig
	Redis       RedisConfig
	Telemetry   TelemetryConfig
	Log         LogConfig

	// Base URL of the blob service, probed when it is required
	ContentRepoURL string

	// Services that must answer before the server starts
	RequiredServices []string
}

type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	// Host patterns accepted on WebSocket upgrades
	WSOrigins []string
}

type AuthConfig struct {
	JWTSecret []byte
}

type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         string
	Password     string
	AnalyticsTTL time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Endpoint     string
	SamplingRate float64
}

type LogConfig struct {
	Level string
	File  string
}

// ContentRepoConfig is the blob service configuration
type ContentRepoConfig struct {
	Port            string
	DBPath          string
	StorageDir      string
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	CleanupInterval time.Duration
	MaxUploadSize   int64
	Log             LogConfig
}

// UseS3 reports whether blobs go to S3 instead of the local directory
func (c ContentRepoConfig) UseS3() bool { return c.Bucket != "" }

// LoadDotEnv loads .env if it exists and reports whether it did
func LoadDotEnv() bool {
	return godotenv.Load() == nil
}

// Load reads the API server configuration
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:            getEnv("PORT", "8787"),
			ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
			CORSOrigins:     getSliceEnv("CORS_ORIGINS", []string{"*"}),
			WSOrigins:       getSliceEnv("WS_ORIGINS", nil),
		},
		Auth: AuthConfig{
			JWTSecret: []byte(getEnv("JWT_SECRET", "")),
		},
		Redis: RedisConfig{
			Enabled:      getBoolEnv("REDIS_ENABLED", getEnv("REDIS_HOST", "") != ""),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			AnalyticsTTL: getDurationEnv("ANALYTICS_CACHE_TTL", 60*time.Second),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "geoaware-api"),
			Endpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			SamplingRate: getFloatEnv("OTEL_SAMPLING_RATE", 1.0),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", "server.log"),
		},
		ContentRepoURL:   getEnv("CONTENT_REPO_URL", "http://localhost:3000"),
		RequiredServices: normalizeServices(getSliceEnv("REQUIRED_SERVICES", nil)),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadContentRepo reads the blob service configuration
func LoadContentRepo() (*ContentRepoConfig, error) {
	cfg := &ContentRepoConfig{
		Port:            getEnv("CONTENT_PORT", "3000"),
		DBPath:          getEnv("CONTENT_DB_PATH", "content.db"),
		StorageDir:      getEnv("CONTENT_STORAGE_DIR", "uploads"),
		Bucket:          getEnv("CONTENT_BUCKET", ""),
		Prefix:          getEnv("CONTENT_PREFIX", "content"),
		Region:          getEnv("AWS_REGION", "us-east-1"),
		Endpoint:        getEnv("S3_ENDPOINT", ""),
		CleanupInterval: getDurationEnv("CONTENT_CLEANUP_INTERVAL", 5*time.Minute),
		MaxUploadSize:   getBytesEnv("CONTENT_MAX_UPLOAD", 50<<20),
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", "content-repo.log"),
		},
	}
	if cfg.CleanupInterval <= 0 {
		return nil, fmt.Errorf("CONTENT_CLEANUP_INTERVAL must be positive, got %s", cfg.CleanupInterval)
	}
	if cfg.MaxUploadSize <= 0 {
		return nil, errors.New("CONTENT_MAX_UPLOAD must be positive")
	}
	return cfg, nil
}

// SeedConfig sizes the development dataset
type SeedConfig struct {
	Users          int
	Fences         int
	ContentRepoURL string
}

// LoadSeed reads SEED_USERS, SEED_FENCES and CONTENT_REPO_URL
func LoadSeed() (*SeedConfig, error) {
	cfg := &SeedConfig{
		Users:          getIntEnv("SEED_USERS", 20),
		Fences:         getIntEnv("SEED_FENCES", 8),
		ContentRepoURL: getEnv("CONTENT_REPO_URL", "http://localhost:3000"),
	}
	if cfg.Users < 0 || cfg.Fences < 0 {
		return nil, errors.New("SEED_USERS and SEED_FENCES must not be negative")
	}
	return cfg, nil
}

// Validate checks required settings
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) == 0 {
		return errors.New("JWT_SECRET environment variable is required")
	}
	if c.Server.Port == "" {
		return errors.New("PORT must not be empty")
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		return fmt.Errorf("OTEL_SAMPLING_RATE must be between 0 and 1, got %v", c.Telemetry.SamplingRate)
	}
	for _, s := range c.RequiredServices {
		if !knownService(s) {
			return fmt.Errorf("REQUIRED_SERVICES: unknown service %q", s)
		}
	}
	return nil
}

// IsDevelopment reports ENVIRONMENT=development
func (c *Config) IsDevelopment() bool { return c.Environment == "development" }

// Service names accepted in REQUIRED_SERVICES
const (
	ServicePostgres    = "postgres"
	ServiceRedis       = "redis"
	ServiceContentRepo = "content-repo"
)

func knownService(name string) bool {
	switch name {
	case ServicePostgres, ServiceRedis, ServiceContentRepo:
		return true
	}
	return false
}

func normalizeServices(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
