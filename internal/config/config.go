// Package config loads application configuration from config.yaml and
// VODSYNC_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Scan     ScanConfig     `yaml:"scan" mapstructure:"scan"`
	Tracker  TrackerConfig  `yaml:"tracker" mapstructure:"tracker"`
	Upload   UploadConfig   `yaml:"upload" mapstructure:"upload"`
	Ledger   LedgerConfig   `yaml:"ledger" mapstructure:"ledger"`
	Sheet    SheetConfig    `yaml:"sheet" mapstructure:"sheet"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// ScanConfig configures local VOD discovery and filtering.
type ScanConfig struct {
	Dir           string        `yaml:"dir" mapstructure:"dir"`
	MinDuration   time.Duration `yaml:"min_duration" mapstructure:"min_duration"`
	MaxAge        time.Duration `yaml:"max_age" mapstructure:"max_age"`
	SkewTolerance time.Duration `yaml:"skew_tolerance" mapstructure:"skew_tolerance"`
}

// TrackerConfig holds match-history API settings.
type TrackerConfig struct {
	BaseURL  string  `yaml:"base_url" mapstructure:"base_url"`
	Region   string  `yaml:"region" mapstructure:"region"`
	Name     string  `yaml:"name" mapstructure:"name"`
	Tag      string  `yaml:"tag" mapstructure:"tag"`
	Mode     string  `yaml:"mode" mapstructure:"mode"`
	PageSize int     `yaml:"page_size" mapstructure:"page_size"`
	APIKey   string  `yaml:"api_key" mapstructure:"api_key"`
	RPS      float64 `yaml:"rps" mapstructure:"rps"`
}

// UploadConfig holds video upload settings. The OAuth fields are expected
// from the environment, not the config file.
type UploadConfig struct {
	Playlist     string `yaml:"playlist" mapstructure:"playlist"`
	Privacy      string `yaml:"privacy" mapstructure:"privacy"`
	CategoryID   string `yaml:"category_id" mapstructure:"category_id"`
	MaxAttempts  int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	RefreshToken string `yaml:"refresh_token" mapstructure:"refresh_token"`
}

// LedgerConfig configures the durable processing-state store.
type LedgerConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// SheetConfig configures the spreadsheet export.
type SheetConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PipelineConfig configures orchestration behavior.
type PipelineConfig struct {
	Workers          int           `yaml:"workers" mapstructure:"workers"`
	RequestRPS       float64       `yaml:"request_rps" mapstructure:"request_rps"`
	RequestBurst     int           `yaml:"request_burst" mapstructure:"request_burst"`
	NoMatchRuns      int           `yaml:"no_match_runs" mapstructure:"no_match_runs"`
	CandidateTimeout time.Duration `yaml:"candidate_timeout" mapstructure:"candidate_timeout"`
}

// RetryConfig configures the shared backoff policy.
type RetryConfig struct {
	MaxAttempts      int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff   time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
	Multiplier       float64       `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64       `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	BreakerThreshold int           `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset" mapstructure:"breaker_reset"`
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
	v.SetEnvPrefix("VODSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("scan.dir", "")
	v.SetDefault("scan.min_duration", "20m")
	v.SetDefault("scan.max_age", "168h")
	v.SetDefault("scan.skew_tolerance", "5m")
	v.SetDefault("tracker.base_url", "https://api.henrikdev.xyz")
	v.SetDefault("tracker.region", "na")
	v.SetDefault("tracker.mode", "competitive")
	v.SetDefault("tracker.name", "")
	v.SetDefault("tracker.tag", "")
	v.SetDefault("tracker.api_key", "")
	v.SetDefault("tracker.page_size", 10)
	v.SetDefault("tracker.rps", 2)
	v.SetDefault("upload.playlist", "Valorant VODs")
	v.SetDefault("upload.privacy", "unlisted")
	v.SetDefault("upload.category_id", "20")
	v.SetDefault("upload.max_attempts", 5)
	v.SetDefault("upload.client_id", "")
	v.SetDefault("upload.client_secret", "")
	v.SetDefault("upload.refresh_token", "")
	v.SetDefault("ledger.path", "vodsync.db")
	v.SetDefault("sheet.path", "matches.xlsx")
	v.SetDefault("pipeline.workers", 3)
	v.SetDefault("pipeline.request_rps", 2)
	v.SetDefault("pipeline.request_burst", 2)
	v.SetDefault("pipeline.no_match_runs", 3)
	v.SetDefault("pipeline.candidate_timeout", "30m")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff", "500ms")
	v.SetDefault("retry.max_backoff", "30s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("retry.breaker_threshold", 5)
	v.SetDefault("retry.breaker_reset", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
