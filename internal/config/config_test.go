package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
database:
  path: "test.db"
source:
  base_url: "https://workspace.example.com/v1"
  token: "test_token"
sync:
  max_attempts: 3
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Source.BaseURL != "https://workspace.example.com/v1" {
		t.Errorf("expected source base_url, got %s", cfg.Source.BaseURL)
	}

	if cfg.Sync.MaxAttempts != 3 {
		t.Errorf("expected max_attempts 3, got %d", cfg.Sync.MaxAttempts)
	}

	// defaults
	if cfg.Sync.BackoffFactor != 2 {
		t.Errorf("expected default backoff_factor 2, got %v", cfg.Sync.BackoffFactor)
	}
	if cfg.API.HTTP.Port != 8080 {
		t.Errorf("expected default http port 8080, got %d", cfg.API.HTTP.Port)
	}
	if cfg.API.Auth.HeaderAPIKey != "x-api-key" {
		t.Errorf("expected default api key header, got %s", cfg.API.Auth.HeaderAPIKey)
	}
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("SOURCE_TOKEN", "secret-from-env")

	yamlContent := `
database:
  path: "test.db"
source:
  base_url: "https://workspace.example.com/v1"
  token: "${SOURCE_TOKEN}"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Source.Token != "secret-from-env" {
		t.Errorf("expected token from env, got %s", cfg.Source.Token)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Source:   SourceConfig{BaseURL: "https://example.com"},
				Sync:     SyncConfig{MaxAttempts: 3, BackoffFactor: 2},
			},
			wantErr: false,
		},
		{
			name: "missing database path",
			cfg: Config{
				Source: SourceConfig{BaseURL: "https://example.com"},
				Sync:   SyncConfig{MaxAttempts: 3, BackoffFactor: 2},
			},
			wantErr: true,
		},
		{
			name: "missing source base_url",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Sync:     SyncConfig{MaxAttempts: 3, BackoffFactor: 2},
			},
			wantErr: true,
		},
		{
			name: "zero max attempts",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Source:   SourceConfig{BaseURL: "https://example.com"},
				Sync:     SyncConfig{MaxAttempts: 0, BackoffFactor: 2},
			},
			wantErr: true,
		},
		{
			name: "backoff factor below one",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
				Source:   SourceConfig{BaseURL: "https://example.com"},
				Sync:     SyncConfig{MaxAttempts: 3, BackoffFactor: 0.5},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
