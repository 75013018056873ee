// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DataDir      string // base directory for both databases, always absolute
	Port         int
	LogLevel     string
	DevMode      bool
	Workers      int           // full-sweep worker pool size; 0 = CPU count
	SweepTimeout time.Duration // upper bound on a full-population refresh
	Backup       *BackupConfig
}

// BackupConfig holds S3-compatible backup settings. Backups are disabled
// unless both bucket and credentials are provided.
type BackupConfig struct {
	Endpoint  string // custom endpoint for S3-compatible stores, empty for AWS
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// Enabled reports whether the backup service has enough configuration
// to run.
func (b *BackupConfig) Enabled() bool {
	return b != nil && b.Bucket != "" && b.AccessKey != "" && b.SecretKey != ""
}

// Load reads configuration from environment variables, with .env support.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("FUNDLENS_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:      absDataDir,
		Port:         getEnvAsInt("FUNDLENS_PORT", 8080),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DevMode:      getEnvAsBool("DEV_MODE", false),
		Workers:      getEnvAsInt("REFRESH_WORKERS", 0),
		SweepTimeout: time.Duration(getEnvAsInt("SWEEP_TIMEOUT_MINUTES", 60)) * time.Minute,
		Backup: &BackupConfig{
			Endpoint:  getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:    getEnv("BACKUP_S3_REGION", "auto"),
			Bucket:    getEnv("BACKUP_S3_BUCKET", ""),
			AccessKey: getEnv("BACKUP_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
			Prefix:    getEnv("BACKUP_S3_PREFIX", "fundlens"),
		},
	}

	if cfg.SweepTimeout <= 0 {
		return nil, fmt.Errorf("SWEEP_TIMEOUT_MINUTES must be positive")
	}

	return cfg, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
