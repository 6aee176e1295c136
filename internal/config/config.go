// Package config loads and validates the application configuration from a
// YAML file with PERSONIO_* environment overrides. Secrets (client id and
// secret) come from the environment only.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Personio PersonioConfig `mapstructure:"personio"`
	Export   ExportConfig   `mapstructure:"export"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
}

// PersonioConfig identifies the API tenant.
type PersonioConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	BaseURL      string `mapstructure:"base_url"`
}

// ExportConfig controls the output artifacts.
type ExportConfig struct {
	OutputPath       string `mapstructure:"output_path"`
	IncludeDocuments bool   `mapstructure:"include_documents"`
	DocumentWorkers  int    `mapstructure:"document_workers"`
}

// HTTPConfig controls the gateway.
type HTTPConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	RetryMaxAttempts  int           `mapstructure:"retry_max_attempts"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// ScheduleConfig controls the serve-mode scheduler.
type ScheduleConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig controls the serve-mode health/metrics endpoint.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Load reads the configuration. A missing config file is not an error:
// defaults plus environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yml")

	v.SetEnvPrefix("PERSONIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets are env-only; bind them so AutomaticEnv picks them up even
	// when the keys never appear in the file. Names are explicit because a
	// bare BindEnv would prepend the prefix to the full key, yielding
	// PERSONIO_PERSONIO_CLIENT_ID instead of the documented variable.
	for key, envVar := range map[string]string{
		"personio.client_id":     "PERSONIO_CLIENT_ID",
		"personio.client_secret": "PERSONIO_CLIENT_SECRET",
		"personio.base_url":      "PERSONIO_BASE_URL",
		"export.output_path":     "PERSONIO_EXPORT_OUTPUT_PATH",
	} {
		if err := v.BindEnv(key, envVar); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A present-but-broken file is a hard error; absence is fine.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("personio.base_url", "https://api.personio.de")
	v.SetDefault("export.output_path", "./output")
	v.SetDefault("export.include_documents", true)
	v.SetDefault("export.document_workers", 4)
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.retry_max_attempts", 5)
	v.SetDefault("http.requests_per_second", 5.0)
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.cron", "0 2 * * *")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("server.port", 5000)
}

// Validate checks the configuration before the core starts; the core treats
// the config as immutable afterwards.
func (c *Config) Validate() error {
	var errs []string

	if c.Personio.ClientID == "" || c.Personio.ClientSecret == "" {
		errs = append(errs, "PERSONIO_CLIENT_ID and PERSONIO_CLIENT_SECRET are required")
	}
	if c.Personio.BaseURL == "" {
		errs = append(errs, "personio.base_url must not be empty")
	}
	if c.Export.OutputPath == "" {
		errs = append(errs, "export.output_path must not be empty")
	}
	if c.HTTP.RetryMaxAttempts < 1 {
		errs = append(errs, "http.retry_max_attempts must be >= 1")
	}
	if c.HTTP.Timeout <= 0 {
		errs = append(errs, "http.timeout must be positive")
	}
	if c.Export.DocumentWorkers < 1 {
		errs = append(errs, "export.document_workers must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}
