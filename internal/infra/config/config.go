// Package config manages application configuration loading and validation.
package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cryptoport/bridge/internal/schema"
)

// Environment identifies the deployment environment.
type Environment string

const (
	EnvDev     Environment = "dev"
	EnvStaging Environment = "staging"
	EnvProd    Environment = "prod"
)

// ExchangeConfig controls connectivity to the remote exchange API.
type ExchangeConfig struct {
	BaseURL     string        `yaml:"baseUrl"`
	APIKey      string        `yaml:"apiKey"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"maxAttempts"`
}

func (c *ExchangeConfig) applyDefaults() {
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
}

// QuoteConfig tunes quoting behaviour.
type QuoteConfig struct {
	RefreshCooldown time.Duration `yaml:"refreshCooldown"`
}

func (c *QuoteConfig) applyDefaults() {
	if c.RefreshCooldown <= 0 {
		c.RefreshCooldown = schema.QuoteValidity
	}
}

// PollConfig tunes the status polling loop.
type PollConfig struct {
	TerminalDebounce time.Duration `yaml:"terminalDebounce"`
	EventBuffer      int           `yaml:"eventBuffer"`
}

func (c *PollConfig) applyDefaults() {
	if c.TerminalDebounce <= 0 {
		c.TerminalDebounce = 400 * time.Millisecond
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 16
	}
}

// DatabaseConfig controls PostgreSQL connectivity and migration behaviour.
type DatabaseConfig struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	RunMigrations     bool          `yaml:"runMigrations"`
}

func (c *DatabaseConfig) applyDefaults() {
	c.DSN = strings.TrimSpace(c.DSN)
	if c.DSN == "" {
		c.DSN = "postgresql://localhost:5432/bridge"
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 8
	}
	if c.MinConns <= 0 {
		c.MinConns = 1
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 5 * time.Minute
	}
	if c.HealthCheckPeriod <= 0 {
		c.HealthCheckPeriod = 30 * time.Second
	}
}

// TelemetryConfig configures OTLP exporters (metrics only).
type TelemetryConfig struct {
	OTLPEndpoint  string `yaml:"otlpEndpoint"`
	ServiceName   string `yaml:"serviceName"`
	OTLPInsecure  bool   `yaml:"otlpInsecure"`
	EnableMetrics bool   `yaml:"enableMetrics"`
}

// AppConfig is the root configuration document.
type AppConfig struct {
	Environment Environment     `yaml:"environment"`
	LogLevel    string          `yaml:"logLevel"`
	Exchange    ExchangeConfig  `yaml:"exchange"`
	Quote       QuoteConfig     `yaml:"quote"`
	Poll        PollConfig      `yaml:"poll"`
	Database    DatabaseConfig  `yaml:"database"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// Default returns the configuration used when no file is supplied.
func Default() AppConfig {
	cfg := AppConfig{
		Environment: EnvDev,
		LogLevel:    "info",
		Telemetry: TelemetryConfig{
			ServiceName: "bridge",
		},
	}
	cfg.Exchange.applyDefaults()
	cfg.Quote.applyDefaults()
	cfg.Poll.applyDefaults()
	cfg.Database.applyDefaults()
	return cfg
}

// Load reads and validates an AppConfig from the provided YAML file, then
// applies environment variable overrides.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	_ = ctx

	file, err := os.Open(configPath)
	if err != nil {
		return AppConfig{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.normalise()

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// FromEnv builds a configuration from defaults plus environment variables
// alone, for deployments that carry no config file.
func FromEnv() (AppConfig, error) {
	cfg := Default()
	cfg.applyEnvOverrides()
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c *AppConfig) applyEnvOverrides() {
	if v := os.Getenv("BRIDGE_ENV"); v != "" {
		c.Environment = Environment(v)
	}
	if v := os.Getenv("BRIDGE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("BRIDGE_EXCHANGE_URL"); v != "" {
		c.Exchange.BaseURL = v
	}
	if v := os.Getenv("BRIDGE_EXCHANGE_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("BRIDGE_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("BRIDGE_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.OTLPEndpoint = v
		c.Telemetry.EnableMetrics = true
	}
}

func (c *AppConfig) normalise() {
	c.Environment = Environment(strings.ToLower(strings.TrimSpace(string(c.Environment))))
	if c.Environment == "" {
		c.Environment = EnvDev
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "bridge"
	}

	c.Exchange.applyDefaults()
	c.Quote.applyDefaults()
	c.Poll.applyDefaults()
	c.Database.applyDefaults()
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}
	if c.Exchange.BaseURL == "" {
		return fmt.Errorf("exchange baseUrl required")
	}
	if !strings.HasPrefix(c.Exchange.BaseURL, "http://") && !strings.HasPrefix(c.Exchange.BaseURL, "https://") {
		return fmt.Errorf("exchange baseUrl must be an http(s) URL")
	}
	if c.Exchange.MaxAttempts < 1 {
		return fmt.Errorf("exchange maxAttempts must be >=1")
	}
	if c.Poll.TerminalDebounce < 0 {
		return fmt.Errorf("poll terminalDebounce must be >=0")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn required")
	}
	if c.Telemetry.EnableMetrics && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry otlpEndpoint required when metrics enabled")
	}
	return nil
}
