package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Sync       SyncConfig       `yaml:"sync"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type UpstreamConfig struct {
	URL      string `yaml:"url"`
	Token    string `yaml:"token"`
	PageSize int    `yaml:"page_size"`
}

type SyncConfig struct {
	Enabled     bool        `yaml:"enabled"`
	Schedule    string      `yaml:"schedule"`
	Concurrency int         `yaml:"concurrency"`
	Retry       RetryConfig `yaml:"retry"`
	RateLimit   RateConfig  `yaml:"rate_limit"`
}

type RetryConfig struct {
	MaxRetries     int     `yaml:"max_retries"`
	InitialDelayMs int     `yaml:"initial_delay_ms"`
	MaxDelayMs     int     `yaml:"max_delay_ms"`
	Multiplier     float64 `yaml:"multiplier"`
}

type RateConfig struct {
	MaxAttempts    int     `yaml:"max_attempts"`
	MaxWaitSeconds int     `yaml:"max_wait_seconds"`
	RPS            float64 `yaml:"rps"`
	Burst          int     `yaml:"burst"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type AlertsConfig struct {
	TelegramToken string  `yaml:"telegram_token"`
	ChatIDs       []int64 `yaml:"chat_ids"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML config, overlaying .env and expanding ${VAR}
// references so secrets stay out of the file itself.
func Load(configPath string) (*Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Upstream.Token == "" || c.Upstream.Token == "YOUR_API_TOKEN_HERE" {
		return errors.New("upstream api token is required")
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Sync.Enabled && c.Sync.Schedule == "" {
		return errors.New("sync.schedule is required when sync is enabled")
	}

	if len(c.Alerts.ChatIDs) > 0 && c.Alerts.TelegramToken == "" {
		return errors.New("alerts.telegram_token is required when chat_ids are set")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}

	if c.Upstream.PageSize == 0 {
		c.Upstream.PageSize = 50
	}

	if c.Sync.Schedule == "" {
		c.Sync.Schedule = "*/15 * * * *"
	}
	if c.Sync.Concurrency == 0 {
		c.Sync.Concurrency = 5
	}
	if c.Sync.Retry.MaxRetries == 0 {
		c.Sync.Retry.MaxRetries = 3
	}
	if c.Sync.Retry.InitialDelayMs == 0 {
		c.Sync.Retry.InitialDelayMs = 1000
	}
	if c.Sync.Retry.MaxDelayMs == 0 {
		c.Sync.Retry.MaxDelayMs = 8000
	}
	if c.Sync.Retry.Multiplier == 0 {
		c.Sync.Retry.Multiplier = 2
	}
	if c.Sync.RateLimit.MaxAttempts == 0 {
		c.Sync.RateLimit.MaxAttempts = 2
	}
	if c.Sync.RateLimit.MaxWaitSeconds == 0 {
		c.Sync.RateLimit.MaxWaitSeconds = 60
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
