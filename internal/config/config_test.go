package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Address() != "0.0.0.0:8080" {
		t.Errorf("address = %s", cfg.Address())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
executor:
  default_timeout_seconds: 15
  max_timeout_seconds: 120
  overflow_strategy: truncate
  workdir:
    enabled: true
    allowed_roots:
      - ${HOME}/projects
security:
  rate_limit:
    enabled: true
    burst: 5
    requests_per_fill: 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Executor.DefaultTimeoutSeconds != 15 || cfg.Executor.MaxTimeoutSeconds != 120 {
		t.Errorf("timeouts = %d/%d", cfg.Executor.DefaultTimeoutSeconds, cfg.Executor.MaxTimeoutSeconds)
	}
	if cfg.Executor.OverflowStrategy != "truncate" {
		t.Errorf("strategy = %s", cfg.Executor.OverflowStrategy)
	}
	// Unset sections keep their defaults.
	if cfg.Executor.MaxConcurrent != 100 {
		t.Errorf("max_concurrent = %d, want default", cfg.Executor.MaxConcurrent)
	}

	home := os.Getenv("HOME")
	if home != "" {
		want := home + "/projects"
		if got := cfg.Executor.WorkDir.AllowedRoots[0]; got != want {
			t.Errorf("allowed root = %s, want env-expanded %s", got, want)
		}
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"zero timeout", func(c *Config) { c.Executor.DefaultTimeoutSeconds = 0 }},
		{"max below default", func(c *Config) { c.Executor.MaxTimeoutSeconds = 5 }},
		{"zero concurrency", func(c *Config) { c.Executor.MaxConcurrent = 0 }},
		{"bad strategy", func(c *Config) { c.Executor.OverflowStrategy = "explode" }},
		{"rate limit zero burst", func(c *Config) { c.Security.RateLimit.Burst = 0 }},
		{"db without dsn", func(c *Config) { c.Database.Enabled = true }},
		{"tls cert without key", func(c *Config) { c.Server.TLSCert = "cert.pem" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}
