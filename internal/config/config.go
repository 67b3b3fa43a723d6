package config

import (
	stderrors "errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"pvcaptest/domain/frame"
	"pvcaptest/internal/errors"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Study    StudyPaths
	Run      RunConfig
	Database DatabaseConfig
	LogLevel string
}

// StudyPaths locate the study definition and its data.
type StudyPaths struct {
	StudyFile string
	DataFile  string
}

// RunConfig overrides the run section of the study file when set. Zero
// values leave the study unchanged.
type RunConfig struct {
	Period  string
	MinRows int
	Workers int
}

// DatabaseConfig selects the result store. An empty URL disables persistence.
type DatabaseConfig struct {
	Driver string
	URL    string
}

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// LoadEnvFile loads key=value pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return errors.Wrapf(err, "failed to load %s", path)
	}
	return nil
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	config := &Config{
		Study: StudyPaths{
			StudyFile: getEnvOrDefault("CAPTEST_STUDY_FILE", ""),
			DataFile:  getEnvOrDefault("CAPTEST_DATA_FILE", ""),
		},
		Run: RunConfig{
			Period:  getEnvOrDefault("CAPTEST_PERIOD", ""),
			MinRows: getEnvIntOrDefault("CAPTEST_MIN_ROWS", 0),
			Workers: getEnvIntOrDefault("CAPTEST_WORKERS", 0),
		},
		Database: DatabaseConfig{
			Driver: getEnvOrDefault("DATABASE_DRIVER", DriverSQLite),
			URL:    getEnvOrDefault("DATABASE_URL", ""),
		},
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func validateConfig(config *Config) error {
	if config.Run.Period != "" {
		if _, err := frame.ParsePeriod(config.Run.Period); err != nil {
			return errors.ConfigInvalid("CAPTEST_PERIOD: " + err.Error())
		}
	}
	if config.Run.MinRows < 0 {
		return errors.ConfigInvalid("CAPTEST_MIN_ROWS must not be negative")
	}
	if config.Run.Workers < 0 {
		return errors.ConfigInvalid("CAPTEST_WORKERS must not be negative")
	}
	switch config.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return errors.ConfigInvalid("DATABASE_DRIVER must be sqlite or postgres, got " + strconv.Quote(config.Database.Driver))
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
