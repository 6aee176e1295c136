package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("PERSONIO_CLIENT_ID", "test-client")
	t.Setenv("PERSONIO_CLIENT_SECRET", "test-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setSecrets(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Personio.BaseURL != "https://api.personio.de" {
		t.Errorf("BaseURL = %q, want https://api.personio.de", cfg.Personio.BaseURL)
	}
	if cfg.Export.OutputPath != "./output" {
		t.Errorf("OutputPath = %q, want ./output", cfg.Export.OutputPath)
	}
	if !cfg.Export.IncludeDocuments {
		t.Error("IncludeDocuments = false, want true")
	}
	if cfg.Export.DocumentWorkers != 4 {
		t.Errorf("DocumentWorkers = %d, want 4", cfg.Export.DocumentWorkers)
	}
	if cfg.HTTP.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.HTTP.Timeout)
	}
	if cfg.HTTP.RetryMaxAttempts != 5 {
		t.Errorf("RetryMaxAttempts = %d, want 5", cfg.HTTP.RetryMaxAttempts)
	}
	if cfg.HTTP.RequestsPerSecond != 5.0 {
		t.Errorf("RequestsPerSecond = %v, want 5.0", cfg.HTTP.RequestsPerSecond)
	}
	if cfg.Schedule.Cron != "0 2 * * *" {
		t.Errorf("Cron = %q, want 0 2 * * *", cfg.Schedule.Cron)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want info/json", cfg.Logging)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Port = %d, want 5000", cfg.Server.Port)
	}
}

func TestLoad_SecretsFromEnvironment(t *testing.T) {
	setSecrets(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Personio.ClientID != "test-client" {
		t.Errorf("ClientID = %q, want test-client", cfg.Personio.ClientID)
	}
	if cfg.Personio.ClientSecret != "test-secret" {
		t.Errorf("ClientSecret = %q, want test-secret", cfg.Personio.ClientSecret)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	setSecrets(t)

	path := filepath.Join(t.TempDir(), "config.yml")
	content := `
export:
  output_path: /data/exports
  include_documents: false
  document_workers: 8
http:
  timeout: 10s
  retry_max_attempts: 3
schedule:
  enabled: false
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Export.OutputPath != "/data/exports" {
		t.Errorf("OutputPath = %q, want /data/exports", cfg.Export.OutputPath)
	}
	if cfg.Export.IncludeDocuments {
		t.Error("IncludeDocuments = true, want false")
	}
	if cfg.Export.DocumentWorkers != 8 {
		t.Errorf("DocumentWorkers = %d, want 8", cfg.Export.DocumentWorkers)
	}
	if cfg.HTTP.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.HTTP.Timeout)
	}
	if cfg.HTTP.RetryMaxAttempts != 3 {
		t.Errorf("RetryMaxAttempts = %d, want 3", cfg.HTTP.RetryMaxAttempts)
	}
	if cfg.Schedule.Enabled {
		t.Error("Schedule.Enabled = true, want false")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
	// Untouched keys keep their defaults.
	if cfg.Personio.BaseURL != "https://api.personio.de" {
		t.Errorf("BaseURL = %q, want default", cfg.Personio.BaseURL)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	setSecrets(t)
	t.Setenv("PERSONIO_EXPORT_OUTPUT_PATH", "/env/exports")

	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("export:\n  output_path: /file/exports\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Export.OutputPath != "/env/exports" {
		t.Errorf("OutputPath = %q, want /env/exports (env wins)", cfg.Export.OutputPath)
	}
}

func TestLoad_DocumentedEnvVarNames(t *testing.T) {
	// Every personio.* key must be readable under its documented
	// single-prefix name.
	setSecrets(t)
	t.Setenv("PERSONIO_BASE_URL", "https://api.personio.example")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Personio.ClientID != "test-client" {
		t.Errorf("ClientID = %q, want test-client", cfg.Personio.ClientID)
	}
	if cfg.Personio.ClientSecret != "test-secret" {
		t.Errorf("ClientSecret = %q, want test-secret", cfg.Personio.ClientSecret)
	}
	if cfg.Personio.BaseURL != "https://api.personio.example" {
		t.Errorf("BaseURL = %q, want https://api.personio.example", cfg.Personio.BaseURL)
	}
}

func TestLoad_MissingSecretsRejected(t *testing.T) {
	t.Setenv("PERSONIO_CLIENT_ID", "")
	t.Setenv("PERSONIO_CLIENT_SECRET", "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err == nil {
		t.Fatal("Expected error for missing credentials")
	}
	if !strings.Contains(err.Error(), "PERSONIO_CLIENT_ID") {
		t.Errorf("Error = %v, want credential hint", err)
	}
}

func TestLoad_BrokenFileRejected(t *testing.T) {
	setSecrets(t)

	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("export: [not: valid: yaml\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Expected error for malformed config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Personio: PersonioConfig{
				ClientID:     "id",
				ClientSecret: "secret",
				BaseURL:      "https://api.personio.de",
			},
			Export: ExportConfig{OutputPath: "./output", DocumentWorkers: 4},
			HTTP:   HTTPConfig{Timeout: 30 * time.Second, RetryMaxAttempts: 5},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing client id", func(c *Config) { c.Personio.ClientID = "" }, true},
		{"missing secret", func(c *Config) { c.Personio.ClientSecret = "" }, true},
		{"empty base url", func(c *Config) { c.Personio.BaseURL = "" }, true},
		{"empty output path", func(c *Config) { c.Export.OutputPath = "" }, true},
		{"zero retries", func(c *Config) { c.HTTP.RetryMaxAttempts = 0 }, true},
		{"zero timeout", func(c *Config) { c.HTTP.Timeout = 0 }, true},
		{"zero workers", func(c *Config) { c.Export.DocumentWorkers = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
