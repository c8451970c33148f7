package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the reporting engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	SES      SESConfig      `yaml:"ses"`
	Reports  ReportsConfig  `yaml:"reports"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with ECS detection.
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the optional Redis settings for the cross-host run lock.
type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Enabled bool   `yaml:"enabled"`
}

// SESConfig holds AWS SES delivery configuration. With Enabled false the
// engine logs reports instead of sending them.
type SESConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	FromAddress    string `yaml:"from_address"`
	FromName       string `yaml:"from_name"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration.
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ReportsConfig holds report run settings.
type ReportsConfig struct {
	// Objectives maps metric names to configured targets; absent or zero
	// means no objective for that metric.
	Objectives map[string]float64 `yaml:"objectives"`

	// MaxParallel bounds concurrent recipient processing within a run.
	MaxParallel int `yaml:"max_parallel"`

	// TopPerformers is the leaderboard size for weekly/monthly bundles.
	TopPerformers int `yaml:"top_performers"`

	// Schedule enables the in-process cadence scheduler.
	Schedule ScheduleConfig `yaml:"schedule"`

	// LockTTLMinutes is how long a run lock may be held before it expires.
	LockTTLMinutes int `yaml:"lock_ttl_minutes"`
}

// ScheduleConfig controls when scheduled runs fire. All times are UTC.
type ScheduleConfig struct {
	Enabled    bool   `yaml:"enabled"`
	DailyAt    string `yaml:"daily_at"`    // "HH:MM"
	WeeklyDay  string `yaml:"weekly_day"`  // weekday name, e.g. "Monday"
	MonthlyDay int    `yaml:"monthly_day"` // day of month, 1-28
}

// LockTTL returns the run lock TTL as a duration.
func (c ReportsConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.Reports.MaxParallel == 0 {
		cfg.Reports.MaxParallel = 8
	}
	if cfg.Reports.TopPerformers == 0 {
		cfg.Reports.TopPerformers = 5
	}
	if cfg.Reports.LockTTLMinutes == 0 {
		cfg.Reports.LockTTLMinutes = 30
	}
	if cfg.Reports.Schedule.DailyAt == "" {
		cfg.Reports.Schedule.DailyAt = "06:00"
	}
	if cfg.Reports.Schedule.WeeklyDay == "" {
		cfg.Reports.Schedule.WeeklyDay = "Monday"
	}
	if cfg.Reports.Schedule.MonthlyDay == 0 {
		cfg.Reports.Schedule.MonthlyDay = 1
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file (if present) is loaded first, so secrets can live in .env
// locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if accessKey := os.Getenv("AWS_SES_ACCESS_KEY"); accessKey != "" {
		cfg.SES.AccessKey = accessKey
	}
	if secretKey := os.Getenv("AWS_SES_SECRET_KEY"); secretKey != "" {
		cfg.SES.SecretKey = secretKey
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.SES.Region = region
	}
	if from := os.Getenv("REPORT_FROM_ADDRESS"); from != "" {
		cfg.SES.FromAddress = from
	}

	return cfg, nil
}
