package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrMissingCredential is returned by Validate when the Datagen API key is absent.
var ErrMissingCredential = eris.New("config: DATAGEN_API_KEY not set")

// Config holds the full application configuration.
type Config struct {
	Datagen  DatagenConfig  `yaml:"datagen" mapstructure:"datagen"`
	Sheet    SheetConfig    `yaml:"sheet" mapstructure:"sheet"`
	Clay     ClayConfig     `yaml:"clay" mapstructure:"clay"`
	Collect  CollectConfig  `yaml:"collect" mapstructure:"collect"`
	Enrich   EnrichConfig   `yaml:"enrich" mapstructure:"enrich"`
	Tracker  TrackerConfig  `yaml:"tracker" mapstructure:"tracker"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Schedule ScheduleConfig `yaml:"schedule" mapstructure:"schedule"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// DatagenConfig holds the Datagen tool API settings.
type DatagenConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// SheetConfig points at the public Google Sheet listing post URLs.
type SheetConfig struct {
	SpreadsheetID string `yaml:"spreadsheet_id" mapstructure:"spreadsheet_id"`
	GID           string `yaml:"gid" mapstructure:"gid"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
}

// ClayConfig holds the Clay webhook settings.
type ClayConfig struct {
	WebhookURL  string `yaml:"webhook_url" mapstructure:"webhook_url"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CollectConfig configures engagement collection.
type CollectConfig struct {
	PostDelayMs    int `yaml:"post_delay_ms" mapstructure:"post_delay_ms"`
	MaxRepostPages int `yaml:"max_repost_pages" mapstructure:"max_repost_pages"`
}

// EnrichConfig configures profile enrichment.
type EnrichConfig struct {
	MaxWorkers int `yaml:"max_workers" mapstructure:"max_workers"`
}

// TrackerConfig configures the sent-leads tracker backend.
type TrackerConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OutputConfig configures the end-of-run snapshot.
type OutputConfig struct {
	Format   string `yaml:"format" mapstructure:"format"`
	CSVPath  string `yaml:"csv_path" mapstructure:"csv_path"`
	XLSXPath string `yaml:"xlsx_path" mapstructure:"xlsx_path"`
}

// ScheduleConfig configures recurring runs.
type ScheduleConfig struct {
	Cron     string `yaml:"cron" mapstructure:"cron"`
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENGAGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The Datagen SDK convention is DATAGEN_API_KEY; accept both.
	if err := v.BindEnv("datagen.key", "ENGAGER_DATAGEN_KEY", "DATAGEN_API_KEY"); err != nil {
		return nil, eris.Wrap(err, "config: bind datagen key")
	}

	// Defaults
	v.SetDefault("datagen.base_url", "https://api.datagen.dev")
	v.SetDefault("datagen.rate_limit", 5.0)
	v.SetDefault("sheet.spreadsheet_id", "15-rdA0CoTX19ZncbBMUteXlFRsBUuNF9V2ztJFgVd40")
	v.SetDefault("sheet.gid", "0")
	v.SetDefault("sheet.base_url", "https://docs.google.com")
	v.SetDefault("clay.webhook_url", "https://api.clay.com/v3/sources/webhook/pull-in-data-from-a-webhook-d523bf83-f52e-4214-be06-6a17302f3511")
	v.SetDefault("clay.batch_size", 50)
	v.SetDefault("clay.timeout_secs", 60)
	v.SetDefault("collect.post_delay_ms", 1000)
	v.SetDefault("collect.max_repost_pages", 50)
	v.SetDefault("enrich.max_workers", 5)
	v.SetDefault("tracker.driver", "json")
	v.SetDefault("tracker.path", "sent_leads.json")
	v.SetDefault("tracker.database_url", "")
	v.SetDefault("output.format", "csv")
	v.SetDefault("output.csv_path", "engagers.csv")
	v.SetDefault("output.xlsx_path", "engagers.xlsx")
	v.SetDefault("schedule.cron", "0 9 * * *")
	v.SetDefault("schedule.timezone", "UTC")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a pipeline run cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Datagen.Key) == "" {
		return eris.Wrap(ErrMissingCredential, "config: validate")
	}
	switch c.Tracker.Driver {
	case "json", "sqlite":
		if c.Tracker.Path == "" {
			return eris.Errorf("config: tracker.path required for driver %q", c.Tracker.Driver)
		}
	case "postgres":
		if c.Tracker.DatabaseURL == "" {
			return eris.New("config: tracker.database_url required for driver \"postgres\"")
		}
	default:
		return eris.Errorf("config: unknown tracker driver %q", c.Tracker.Driver)
	}
	switch c.Output.Format {
	case "csv", "xlsx", "both":
	default:
		return eris.Errorf("config: unknown output format %q", c.Output.Format)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
