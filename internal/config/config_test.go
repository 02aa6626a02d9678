package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var managedEnv = []string{
	"ADDRESS", "LOG_LEVEL",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM",
	"SMS_API_URL", "SMS_API_KEY",
	"REDIS_ADDR", "REDIS_PASSWORD",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range managedEnv {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":8787" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if cfg.Workflow.Timeout != 2*time.Minute {
		t.Errorf("workflow timeout = %v", cfg.Workflow.Timeout)
	}
	if cfg.Workflow.MaxEmailAttempts != 3 {
		t.Errorf("max email attempts = %d", cfg.Workflow.MaxEmailAttempts)
	}
	if cfg.Idempotency.TTL != time.Hour {
		t.Errorf("idempotency ttl = %v", cfg.Idempotency.TTL)
	}
	if !cfg.Audit.Enabled {
		t.Error("audit should default to enabled")
	}
	if cfg.SMTP.Configured() {
		t.Error("smtp must not be configured by default")
	}
	if cfg.SMS.Configured() {
		t.Error("sms must not be configured by default")
	}
	if cfg.SMS.MaxLength != 160 {
		t.Errorf("sms max length = %d", cfg.SMS.MaxLength)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":8787" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "returnhub.yaml")
	data := `
server:
  address: ":9999"
log:
  level: DEBUG
workflow:
  timeout: 30s
  max_email_attempts: 5
rate_limit:
  enabled: true
  requests_per_second: 2
  burst: 4
audit:
  enabled: true
  path: /tmp/audit.jsonl
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":9999" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if cfg.Log.Level != "DEBUG" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if cfg.Workflow.Timeout != 30*time.Second {
		t.Errorf("workflow timeout = %v", cfg.Workflow.Timeout)
	}
	if cfg.Workflow.MaxEmailAttempts != 5 {
		t.Errorf("max email attempts = %d", cfg.Workflow.MaxEmailAttempts)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.Burst != 4 {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.Audit.Path != "/tmp/audit.jsonl" {
		t.Errorf("audit path = %q", cfg.Audit.Path)
	}
	// Untouched sections keep their defaults.
	if cfg.Idempotency.TTL != time.Hour {
		t.Errorf("idempotency ttl = %v", cfg.Idempotency.TTL)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [not a mapping"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADDRESS", ":7070")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SMTP_USERNAME", "mailer")
	t.Setenv("SMTP_PASSWORD", "secret")
	t.Setenv("SMS_API_URL", "https://sms.example.com/send")
	t.Setenv("SMS_API_KEY", "key")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":7070" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if !cfg.SMTP.Configured() {
		t.Error("smtp should be configured from env")
	}
	if cfg.SMTP.Port != 2525 {
		t.Errorf("smtp port = %d", cfg.SMTP.Port)
	}
	if !cfg.SMS.Configured() {
		t.Error("sms should be configured from env")
	}
	if cfg.Idempotency.RedisAddr != "localhost:6379" {
		t.Errorf("redis addr = %q", cfg.Idempotency.RedisAddr)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "returnhub.yaml")
	if err := os.WriteFile(path, []byte("server:\n  address: \":9999\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ADDRESS", ":6060")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":6060" {
		t.Errorf("env must win over file, address = %q", cfg.Server.Address)
	}
}
