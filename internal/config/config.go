// Package config provides unified configuration loading for PDM.
// Supports YAML files, environment variables, and programmatic defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the PDM tool.
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Import        ImportConfig        `yaml:"import"`
	Export        ExportConfig        `yaml:"export"`
	Events        EventsConfig        `yaml:"events"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ImportConfig holds import pipeline settings.
type ImportConfig struct {
	Encoding            string `yaml:"encoding"`  // iso-8859-1, windows-1252 or utf-8
	Delimiter           string `yaml:"delimiter"` // single character, default ;
	DetectNewProperties bool   `yaml:"detect_new_properties"`
	DetectionSampleSize int    `yaml:"detection_sample_size"` // 0 = full scan
}

// ExportConfig holds export pipeline settings.
type ExportConfig struct {
	Encoding    string `yaml:"encoding"`
	Delimiter   string `yaml:"delimiter"`
	IncludeHTML bool   `yaml:"include_html"`
}

// EventsConfig holds the optional redis progress publisher settings.
type EventsConfig struct {
	RedisAddr     string `yaml:"redis_addr"` // empty disables publishing
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Channel       string `yaml:"channel"`
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsAddr string `yaml:"metrics_addr"` // empty disables the listener
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path: "product_data.db",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    10,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Import: ImportConfig{
			Encoding:            "iso-8859-1",
			Delimiter:           ";",
			DetectNewProperties: true,
			DetectionSampleSize: 0,
		},
		Export: ExportConfig{
			Encoding:    "iso-8859-1",
			Delimiter:   ";",
			IncludeHTML: true,
		},
		Events: EventsConfig{
			Channel: "pdm.jobs",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.Postgres.DSN == "" {
		return fmt.Errorf("postgres driver requires a dsn")
	}
	if len(c.Import.Delimiter) != 1 {
		return fmt.Errorf("import delimiter must be a single character: %q", c.Import.Delimiter)
	}
	if len(c.Export.Delimiter) != 1 {
		return fmt.Errorf("export delimiter must be a single character: %q", c.Export.Delimiter)
	}
	if !validEncoding(c.Import.Encoding) {
		return fmt.Errorf("unsupported import encoding: %s", c.Import.Encoding)
	}
	if !validEncoding(c.Export.Encoding) {
		return fmt.Errorf("unsupported export encoding: %s", c.Export.Encoding)
	}
	if c.Import.DetectionSampleSize < 0 {
		return fmt.Errorf("detection_sample_size must not be negative")
	}
	return nil
}

func validEncoding(name string) bool {
	switch name {
	case "iso-8859-1", "windows-1252", "utf-8":
		return true
	}
	return false
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PDM_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("PDM_SQLITE_PATH"); v != "" {
		cfg.Database.SQLite.Path = v
	}
	if v := os.Getenv("PDM_POSTGRES_DSN"); v != "" {
		cfg.Database.Postgres.DSN = v
	}
	if v := os.Getenv("PDM_REDIS_ADDR"); v != "" {
		cfg.Events.RedisAddr = v
	}
	if v := os.Getenv("PDM_METRICS_ADDR"); v != "" {
		cfg.Observability.MetricsAddr = v
	}
	if v := os.Getenv("PDM_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("PDM_DETECTION_SAMPLE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Import.DetectionSampleSize = n
		}
	}
}
