package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Config represents the application configuration. It is constructed once
// at process start and passed explicitly; there is no ambient global state.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	SMTP        SMTPConfig        `yaml:"smtp"`
	SMS         SMSConfig         `yaml:"sms"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	Audit       AuditConfig       `yaml:"audit"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Workflow    WorkflowConfig    `yaml:"workflow"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// ServerConfig controls HTTP server settings.
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// SMTPConfig configures the live email transport. When host or credentials
// are absent the service runs with the deterministic stub sender.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Configured reports whether live SMTP delivery is possible.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Username != "" && c.Password != ""
}

// SMSConfig configures the live SMS transport.
type SMSConfig struct {
	APIURL    string `yaml:"api_url"`
	APIKey    string `yaml:"api_key"`
	MaxLength int    `yaml:"max_length"`
}

// Configured reports whether live SMS delivery is possible.
func (c SMSConfig) Configured() bool {
	return c.APIURL != "" && c.APIKey != ""
}

// IdempotencyConfig configures the key->result cache.
type IdempotencyConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	NumCounters int64         `yaml:"num_counters"`
	MaxCost     int64         `yaml:"max_cost"`
	BufferItems int64         `yaml:"buffer_items"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisDB     int           `yaml:"redis_db"`
	RedisPass   string        `yaml:"redis_password"`
}

// AuditConfig configures the append-only audit sink.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RateLimitConfig defines per-caller limits on the workflow surface.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// WorkflowConfig bounds workflow execution.
type WorkflowConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	MaxEmailAttempts int           `yaml:"max_email_attempts"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

// TelemetryConfig toggles tracing.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Service string `yaml:"service"`
}

// Load reads configuration from the supplied path, falling back to
// defaults when the file is absent. Secrets may always be supplied via
// environment variables, which take precedence over the file.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:      ":8787",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 2*time.Minute + 15*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Log:  LogConfig{Level: "INFO"},
		SMTP: SMTPConfig{Port: 587},
		SMS:  SMSConfig{MaxLength: 160},
		Idempotency: IdempotencyConfig{
			TTL:         time.Hour,
			NumCounters: 1e4,
			MaxCost:     1 << 26,
			BufferItems: 64,
		},
		Audit: AuditConfig{Enabled: true},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Workflow: WorkflowConfig{
			Timeout:          2 * time.Minute,
			MaxEmailAttempts: 3,
			RetryBackoff:     time.Second,
		},
		Telemetry: TelemetryConfig{Enabled: false, Service: "returnhub"},
	}
}

func applyEnv(cfg *Config) {
	cfg.Server.Address = getenv("ADDRESS", cfg.Server.Address)
	cfg.Log.Level = getenv("LOG_LEVEL", cfg.Log.Level)
	cfg.SMTP.Host = getenv("SMTP_HOST", cfg.SMTP.Host)
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.SMTP.Port = p
		}
	}
	cfg.SMTP.Username = getenv("SMTP_USERNAME", cfg.SMTP.Username)
	cfg.SMTP.Password = getenv("SMTP_PASSWORD", cfg.SMTP.Password)
	cfg.SMTP.From = getenv("SMTP_FROM", cfg.SMTP.From)
	cfg.SMS.APIURL = getenv("SMS_API_URL", cfg.SMS.APIURL)
	cfg.SMS.APIKey = getenv("SMS_API_KEY", cfg.SMS.APIKey)
	cfg.Idempotency.RedisAddr = getenv("REDIS_ADDR", cfg.Idempotency.RedisAddr)
	cfg.Idempotency.RedisPass = getenv("REDIS_PASSWORD", cfg.Idempotency.RedisPass)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
