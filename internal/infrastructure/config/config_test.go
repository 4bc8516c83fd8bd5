package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeConfig writes a temporary config file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
service:
  name: "clocked-test"
database:
  path: "/tmp/clocked-test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "127.0.0.1"
  port: 9090
auth:
  jwt_secret: "test-secret-key-at-least-32-chars!"
  access_token_ttl: 10
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Name != "clocked-test" {
		t.Errorf("Service.Name = %q, want %q", cfg.Service.Name, "clocked-test")
	}
	if cfg.Database.Path != "/tmp/clocked-test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/clocked-test.db")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.Auth.AccessTokenTTL != 10 {
		t.Errorf("Auth.AccessTokenTTL = %d, want 10", cfg.Auth.AccessTokenTTL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: "test-secret-key-at-least-32-chars!"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.AccessTokenTTL != 15 {
		t.Errorf("default AccessTokenTTL = %d, want 15", cfg.Auth.AccessTokenTTL)
	}
	if cfg.Auth.RefreshTokenTTL != 168 {
		t.Errorf("default RefreshTokenTTL = %d, want 168", cfg.Auth.RefreshTokenTTL)
	}
	if cfg.Auth.MagicLinkTTL != 15 {
		t.Errorf("default MagicLinkTTL = %d, want 15", cfg.Auth.MagicLinkTTL)
	}
	if cfg.WebSocket.Path != "/ws" {
		t.Errorf("default WebSocket.Path = %q, want %q", cfg.WebSocket.Path, "/ws")
	}
	if cfg.WebSocket.SendBufferSize != 256 {
		t.Errorf("default SendBufferSize = %d, want 256", cfg.WebSocket.SendBufferSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/test.db"
`)

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for missing JWT secret, got nil")
	}
}

func TestLoad_ShortJWTSecret(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: "too-short"
`)

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for short JWT secret, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  path: "/tmp/from-file.db"
auth:
  jwt_secret: "file-secret-key-at-least-32-chars!!"
`)

	t.Setenv("CLOCKED_DATABASE_PATH", "/tmp/from-env.db")
	t.Setenv("CLOCKED_JWT_SECRET", "env-secret-key-at-least-32-chars!!!")
	t.Setenv("CLOCKED_API_PORT", "7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.Auth.JWTSecret != "env-secret-key-at-least-32-chars!!!" {
		t.Error("JWT secret should come from environment")
	}
	if cfg.API.Port != 7070 {
		t.Errorf("API.Port = %d, want 7070 from environment", cfg.API.Port)
	}
}

func TestValidate_TelemetryRequiresURL(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: "test-secret-key-at-least-32-chars!"
telemetry:
  enabled: true
`)

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for enabled telemetry without URL, got nil")
	}
}

func TestAuthConfig_Durations(t *testing.T) {
	cfg := AuthConfig{
		AccessTokenTTL:  15,
		RefreshTokenTTL: 168,
		MagicLinkTTL:    15,
	}

	if got := cfg.AccessTokenDuration(); got != 15*time.Minute {
		t.Errorf("AccessTokenDuration() = %v, want 15m", got)
	}
	if got := cfg.RefreshTokenDuration(); got != 7*24*time.Hour {
		t.Errorf("RefreshTokenDuration() = %v, want 168h", got)
	}
	if got := cfg.MagicLinkDuration(); got != 15*time.Minute {
		t.Errorf("MagicLinkDuration() = %v, want 15m", got)
	}
}
