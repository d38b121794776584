package corepay

import (
	"os"
	"path/filepath"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/agentpay/corepay/pkg/log"
)

// Mode is the runtime environment tag, per spec.md §6.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// StorageBackend selects which pkg/storage implementation backs the core.
type StorageBackend string

const (
	StorageMemory StorageBackend = "memory"
	StorageRedis  StorageBackend = "redis"
)

const (
	configDirPathEnv     = "COREPAY_CONFIG_DIR_PATH"
	defaultConfigDirPath = "."
)

// Config is the core's full runtime configuration, loaded once at startup
// and passed to the component constructors. Mirrors the teacher's
// config.go LoadConfig shape: .env file, then individual env vars, with
// cleanenv handling struct-tag-driven fields.
type Config struct {
	Mode           Mode
	StorageBackend StorageBackend
	RedisURL       string
	DB             DatabaseConfig
	LogLevel       string
}

// LoadConfig reads configuration from the environment, optionally loading a
// .env file first from COREPAY_CONFIG_DIR_PATH (default ".").
func LoadConfig(lg log.Logger) (*Config, error) {
	lg = lg.NewSystem("config")

	configDirPath := os.Getenv(configDirPathEnv)
	if configDirPath == "" {
		configDirPath = defaultConfigDirPath
	}

	envPath := filepath.Join(configDirPath, ".env")
	if err := godotenv.Load(envPath); err != nil {
		lg.Debug(".env file not found, continuing with process environment", "path", envPath)
	}

	mode := Mode(os.Getenv("COREPAY_MODE"))
	if mode == "" {
		mode = ModeDevelopment
	} else if mode != ModeDevelopment && mode != ModeProduction {
		return nil, Errorf(ErrConfiguration, "invalid COREPAY_MODE value %q", mode)
	}

	backend := StorageBackend(os.Getenv("COREPAY_STORAGE_BACKEND"))
	if backend == "" {
		backend = StorageMemory
	} else if backend != StorageMemory && backend != StorageRedis {
		return nil, Errorf(ErrConfiguration, "invalid COREPAY_STORAGE_BACKEND value %q", backend)
	}

	redisURL := os.Getenv("COREPAY_REDIS_URL")
	if backend == StorageRedis && redisURL == "" {
		return nil, Errorf(ErrConfiguration, "COREPAY_REDIS_URL is required when COREPAY_STORAGE_BACKEND=redis")
	}

	var dbConf DatabaseConfig
	if dbURL := os.Getenv("COREPAY_DATABASE_URL"); dbURL != "" {
		parsed, err := ParseConnectionString(dbURL)
		if err != nil {
			return nil, Errorf(ErrConfiguration, "failed to parse COREPAY_DATABASE_URL: %v", err)
		}
		dbConf = parsed
	} else if err := cleanenv.ReadEnv(&dbConf); err != nil {
		return nil, Errorf(ErrConfiguration, "failed to read database env: %v", err)
	}

	logLevel := os.Getenv("COREPAY_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	lg.Info("configuration loaded", "mode", mode, "storage_backend", backend)

	return &Config{
		Mode:           mode,
		StorageBackend: backend,
		RedisURL:       redisURL,
		DB:             dbConf,
		LogLevel:       logLevel,
	}, nil
}
