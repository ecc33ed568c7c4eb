package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "product_data.db", cfg.Database.SQLite.Path)
	assert.Equal(t, "iso-8859-1", cfg.Import.Encoding)
	assert.Equal(t, ";", cfg.Import.Delimiter)
	assert.True(t, cfg.Import.DetectNewProperties)
	assert.True(t, cfg.Export.IncludeHTML)
	assert.Equal(t, "pdm.jobs", cfg.Events.Channel)
	assert.Empty(t, cfg.Events.RedisAddr)
	assert.Empty(t, cfg.Observability.MetricsAddr)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: postgres
  postgres:
    dsn: postgres://localhost/pdm?sslmode=disable
import:
  encoding: windows-1252
  detection_sample_size: 50
export:
  include_html: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "windows-1252", cfg.Import.Encoding)
	assert.Equal(t, 50, cfg.Import.DetectionSampleSize)
	assert.False(t, cfg.Export.IncludeHTML)
	// Untouched sections keep their defaults.
	assert.Equal(t, ";", cfg.Export.Delimiter)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PDM_DB_DRIVER", "postgres")
	t.Setenv("PDM_POSTGRES_DSN", "postgres://env/pdm")
	t.Setenv("PDM_LOG_LEVEL", "debug")
	t.Setenv("PDM_DETECTION_SAMPLE", "25")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://env/pdm", cfg.Database.Postgres.DSN)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, 25, cfg.Import.DetectionSampleSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, false},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }, false},
		{"multi-char delimiter", func(c *Config) { c.Import.Delimiter = ";;" }, false},
		{"empty export delimiter", func(c *Config) { c.Export.Delimiter = "" }, false},
		{"unknown encoding", func(c *Config) { c.Import.Encoding = "koi8-r" }, false},
		{"negative sample size", func(c *Config) { c.Import.DetectionSampleSize = -1 }, false},
		{"utf-8 export", func(c *Config) { c.Export.Encoding = "utf-8" }, true},
		{"tab delimiter", func(c *Config) { c.Import.Delimiter = "\t" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
