// Package config loads the service configuration from config.yaml, an
// optional .env file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/soochol/autoflow/internal/autoflow"
	"github.com/soochol/autoflow/internal/integrations"
)

// Config holds the top-level application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Worker       WorkerConfig       `yaml:"worker"`
	Execution    autoflow.JobPolicy `yaml:"execution"`
	Integrations IntegrationsConfig `yaml:"integrations"`
	Security     SecurityConfig     `yaml:"security"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database connection settings. An empty URL keeps
// all state in memory.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig enables the shared job queue and workflow locks. An empty
// URL selects the in-process queue.
type RedisConfig struct {
	URL      string        `yaml:"url"` // redis://[:password@]host:port/db
	QueueKey string        `yaml:"queue_key"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// SchedulerConfig holds settings for the workflow scheduler.
type SchedulerConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	GlobalMax     int           `yaml:"global_max"` // max concurrent runs system-wide (default: 10)
	// Disabled stops this process from sweeping schedules. Schedules can
	// still be managed and triggered by hand.
	Disabled bool `yaml:"disabled"`
}

// WorkerConfig sizes the job worker pool.
type WorkerConfig struct {
	Count int `yaml:"count"`
}

// IntegrationsConfig configures the built-in action executors.
type IntegrationsConfig struct {
	SMTP           integrations.SMTPSettings `yaml:"smtp"`
	DatabaseURL    string                    `yaml:"database_url"` // target of database actions; defaults to database.url
	SpreadsheetDir string                    `yaml:"spreadsheet_dir"`
	HTTPTimeout    time.Duration             `yaml:"http_timeout"`
}

// SecurityConfig holds the key sealing stored webhook secrets.
type SecurityConfig struct {
	SecretKey string `yaml:"secret_key"` // 32 bytes, hex or base64; empty stores plaintext
}

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Redis: RedisConfig{
			QueueKey: "autoflow:jobs",
			LockTTL:  30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			SweepInterval: 30 * time.Second,
			GlobalMax:     autoflow.DefaultConcurrencyLimits().GlobalMax,
		},
		Worker:    WorkerConfig{Count: 4},
		Execution: autoflow.DefaultJobPolicy(),
		Integrations: IntegrationsConfig{
			SMTP:           integrations.SMTPSettings{Port: 587},
			SpreadsheetDir: "data",
			HTTPTimeout:    30 * time.Second,
		},
	}
}

// Load reads a YAML configuration file at path, fills unset fields with
// defaults and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := mergo.Merge(cfg, defaults()); err != nil {
		return nil, fmt.Errorf("applying config defaults: %w", err)
	}
	return finish(cfg)
}

// LoadDefault loads an optional .env file, then tries "config.yaml" from
// the current directory. If the file does not exist, defaults are used.
// Any other error (e.g. permission denied, malformed YAML) is returned.
func LoadDefault() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := Load("config.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return finish(defaults())
		}
		return nil, err
	}
	return cfg, nil
}

func finish(cfg *Config) (*Config, error) {
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if cfg.Integrations.DatabaseURL == "" {
		cfg.Integrations.DatabaseURL = cfg.Database.URL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file settings with environment variables.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("AUTOFLOW_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("AUTOFLOW_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AUTOFLOW_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("AUTOFLOW_SECRET_KEY"); v != "" {
		cfg.Security.SecretKey = v
	}
	if v := os.Getenv("AUTOFLOW_SCHEDULER_DISABLED"); v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUTOFLOW_SCHEDULER_DISABLED: %w", err)
		}
		cfg.Scheduler.Disabled = disabled
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Integrations.SMTP.Password = v
	}
	return nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	case c.Worker.Count <= 0:
		return fmt.Errorf("worker.count must be positive, got %d", c.Worker.Count)
	case c.Scheduler.GlobalMax <= 0:
		return fmt.Errorf("scheduler.global_max must be positive, got %d", c.Scheduler.GlobalMax)
	case c.Execution.MaxAttempts <= 0:
		return fmt.Errorf("execution.max_attempts must be positive, got %d", c.Execution.MaxAttempts)
	case c.Execution.BackoffFactor < 1:
		return fmt.Errorf("execution.backoff_factor must be at least 1, got %g", c.Execution.BackoffFactor)
	}
	return nil
}

// ConcurrencyLimits returns the run limits derived from the scheduler section.
func (c *Config) ConcurrencyLimits() autoflow.ConcurrencyLimits {
	return autoflow.ConcurrencyLimits{GlobalMax: c.Scheduler.GlobalMax}
}
