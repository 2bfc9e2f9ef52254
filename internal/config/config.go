// Package config reads docbatch settings from the environment. An optional
// .env file is loaded first; variables already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultEnvFile = ".env"

type Config struct {
	Log     LogConfig
	Workers int
	// MaxRetries bounds per-file retries of new jobs.
	MaxRetries int
	State      StateConfig
	Storage    StorageConfig
	Redis      RedisConfig
	Rabbit     RabbitConfig
	HTTPAddr   string
	Tesseract  string
}

type LogConfig struct {
	Level  string
	Format string
	// File receives log output while the progress view owns the terminal.
	File string
}

type StateConfig struct {
	Backend string
	File    string
	// TemplateFile holds saved job templates whatever the backend.
	TemplateFile string
	PostgresDSN  string
	MySQLDSN     string
}

type StorageConfig struct {
	Backend   string
	OutputDir string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	StateKey string
	// Progress enables the per-file progress hashes.
	Progress    bool
	ProgressTTL time.Duration
}

type RabbitConfig struct {
	URL      string
	Exchange string
}

// State backends.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
)

// Storage backends.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// Load reads envFiles (DefaultEnvFile when none are given), then the
// environment. Missing env files are skipped.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var p parser
	cfg := &Config{
		Log: LogConfig{
			Level:  getEnv("DOCBATCH_LOG_LEVEL", "info"),
			Format: getEnv("DOCBATCH_LOG_FORMAT", "text"),
			File:   getEnv("DOCBATCH_LOG_FILE", ""),
		},
		Workers:    p.int("DOCBATCH_WORKERS", 1),
		MaxRetries: p.int("DOCBATCH_MAX_RETRIES", 3),
		State: StateConfig{
			Backend:      strings.ToLower(getEnv("DOCBATCH_STATE_BACKEND", BackendFile)),
			File:         getEnv("DOCBATCH_STATE_FILE", "docbatch-state.json"),
			TemplateFile: getEnv("DOCBATCH_TEMPLATE_FILE", "docbatch-templates.json"),
			PostgresDSN:  getEnv("DOCBATCH_POSTGRES_DSN", ""),
			MySQLDSN:     getEnv("DOCBATCH_MYSQL_DSN", ""),
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(getEnv("DOCBATCH_STORAGE", StorageLocal)),
			OutputDir: getEnv("DOCBATCH_OUTPUT_DIR", ""),
			Endpoint:  getEnv("DOCBATCH_S3_ENDPOINT", ""),
			AccessKey: getEnv("DOCBATCH_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("DOCBATCH_S3_SECRET_KEY", ""),
			Bucket:    getEnv("DOCBATCH_S3_BUCKET", ""),
			UseSSL:    p.bool("DOCBATCH_S3_USE_SSL", true),
		},
		Redis: RedisConfig{
			Addr:        getEnv("DOCBATCH_REDIS_ADDR", "localhost:6379"),
			Password:    getEnv("DOCBATCH_REDIS_PASSWORD", ""),
			DB:          p.int("DOCBATCH_REDIS_DB", 0),
			StateKey:    getEnv("DOCBATCH_REDIS_STATE_KEY", "batch:state"),
			Progress:    p.bool("DOCBATCH_REDIS_PROGRESS", false),
			ProgressTTL: p.duration("DOCBATCH_REDIS_PROGRESS_TTL", 24*time.Hour),
		},
		Rabbit: RabbitConfig{
			URL:      getEnv("DOCBATCH_RABBITMQ_URL", ""),
			Exchange: getEnv("DOCBATCH_RABBITMQ_EXCHANGE", "docbatch"),
		},
		HTTPAddr:  getEnv("DOCBATCH_HTTP_ADDR", ":8080"),
		Tesseract: getEnv("DOCBATCH_TESSERACT", "tesseract"),
	}
	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1 (got %d)", c.Workers))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must not be negative"))
	}
	switch c.State.Backend {
	case BackendFile:
		if c.State.File == "" {
			errs = append(errs, fmt.Errorf("state file is required for the file backend"))
		}
	case BackendRedis:
	case BackendPostgres:
		if c.State.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("DOCBATCH_POSTGRES_DSN is required for the postgres backend"))
		}
	case BackendMySQL:
		if c.State.MySQLDSN == "" {
			errs = append(errs, fmt.Errorf("DOCBATCH_MYSQL_DSN is required for the mysql backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown state backend %q", c.State.Backend))
	}
	switch c.Storage.Backend {
	case StorageLocal:
	case StorageS3:
		if c.Storage.Endpoint == "" || c.Storage.Bucket == "" {
			errs = append(errs, fmt.Errorf("s3 storage needs DOCBATCH_S3_ENDPOINT and DOCBATCH_S3_BUCKET"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// parser keeps the first typed parse error.
type parser struct {
	err error
}

func (p *parser) int(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) bool(key string, fallback bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s=%q: %w", key, raw, err)
	}
}
