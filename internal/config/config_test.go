package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chdirTemp switches into an empty temp dir so no config.yaml is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	t.Setenv("DATAGEN_API_KEY", "")
	t.Setenv("ENGAGER_DATAGEN_KEY", "")
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.Datagen.Key)
	assert.Equal(t, "https://api.datagen.dev", cfg.Datagen.BaseURL)
	assert.InDelta(t, 5.0, cfg.Datagen.RateLimit, 0.001)
	assert.Equal(t, "0", cfg.Sheet.GID)
	assert.NotEmpty(t, cfg.Sheet.SpreadsheetID)
	assert.Contains(t, cfg.Clay.WebhookURL, "api.clay.com")
	assert.Equal(t, 50, cfg.Clay.BatchSize)
	assert.Equal(t, 60, cfg.Clay.TimeoutSecs)
	assert.Equal(t, 1000, cfg.Collect.PostDelayMs)
	assert.Equal(t, 50, cfg.Collect.MaxRepostPages)
	assert.Equal(t, 5, cfg.Enrich.MaxWorkers)
	assert.Equal(t, "json", cfg.Tracker.Driver)
	assert.Equal(t, "sent_leads.json", cfg.Tracker.Path)
	assert.Equal(t, "csv", cfg.Output.Format)
	assert.Equal(t, "engagers.csv", cfg.Output.CSVPath)
	assert.Equal(t, "0 9 * * *", cfg.Schedule.Cron)
	assert.Equal(t, "UTC", cfg.Schedule.Timezone)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
tracker:
  driver: sqlite
  path: leads.db
enrich:
  max_workers: 8
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Tracker.Driver)
	assert.Equal(t, "leads.db", cfg.Tracker.Path)
	assert.Equal(t, 8, cfg.Enrich.MaxWorkers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 50, cfg.Clay.BatchSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
tracker:
  driver: sqlite
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))
	t.Setenv("ENGAGER_TRACKER_DRIVER", "postgres")
	t.Setenv("ENGAGER_TRACKER_DATABASE_URL", "postgres://localhost/leads")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Tracker.Driver)
	assert.Equal(t, "postgres://localhost/leads", cfg.Tracker.DatabaseURL)
}

func TestLoadDatagenKeyFromSDKEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DATAGEN_API_KEY", "dg-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dg-key", cfg.Datagen.Key)
}

func TestLoadDatagenKeyPrefixedWins(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DATAGEN_API_KEY", "sdk-key")
	t.Setenv("ENGAGER_DATAGEN_KEY", "prefixed-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "prefixed-key", cfg.Datagen.Key)
}

func validConfig() *Config {
	return &Config{
		Datagen: DatagenConfig{Key: "dg-key"},
		Tracker: TrackerConfig{Driver: "json", Path: "sent_leads.json"},
		Output:  OutputConfig{Format: "csv"},
	}
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_MissingCredential(t *testing.T) {
	cfg := validConfig()
	cfg.Datagen.Key = "   "

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCredential))
	assert.Contains(t, err.Error(), "DATAGEN_API_KEY")
	assert.Contains(t, err.Error(), "config: validate")
}

func TestValidate_TrackerDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Tracker.Driver = "redis"
	assert.ErrorContains(t, cfg.Validate(), "unknown tracker driver")

	cfg.Tracker.Driver = "postgres"
	assert.ErrorContains(t, cfg.Validate(), "database_url")

	cfg.Tracker.DatabaseURL = "postgres://localhost/leads"
	assert.NoError(t, cfg.Validate())

	cfg.Tracker.Driver = "sqlite"
	cfg.Tracker.Path = ""
	assert.ErrorContains(t, cfg.Validate(), "tracker.path")
}

func TestValidate_OutputFormat(t *testing.T) {
	cfg := validConfig()
	for _, f := range []string{"csv", "xlsx", "both"} {
		cfg.Output.Format = f
		assert.NoError(t, cfg.Validate(), f)
	}
	cfg.Output.Format = "parquet"
	assert.ErrorContains(t, cfg.Validate(), "unknown output format")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
