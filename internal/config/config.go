package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rentacar/internal/pricing"
)

// DefaultPath is used when no config path is given.
const DefaultPath = "configs/config.yaml"

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	AMQP       AMQPConfig       `yaml:"amqp"`
	Business   BusinessConfig   `yaml:"business"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Staff      StaffConfig      `yaml:"staff"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Backup     BackupConfig     `yaml:"backup"`
	Audit      AuditConfig      `yaml:"audit"`
	Reminders  RemindersConfig  `yaml:"reminders"`
	Debug      DebugConfig      `yaml:"debug"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port      int     `yaml:"port"`
	APIKey    string  `yaml:"api_key"`
	RateRPS   float64 `yaml:"rate_rps"`
	RateBurst int     `yaml:"rate_burst"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address         string `yaml:"address"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	LockTTLSeconds  int    `yaml:"lock_ttl_seconds"`
	LockWaitSeconds int    `yaml:"lock_wait_seconds"`
	// AttemptTimeoutMS bounds a single round trip to redis while locking.
	AttemptTimeoutMS int `yaml:"attempt_timeout_ms"`
}

type AMQPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type BusinessConfig struct {
	SeasonsPath           string `yaml:"seasons_path"`
	SeasonsReloadSeconds  int    `yaml:"seasons_reload_seconds"`
	HandoverBufferMinutes int    `yaml:"handover_buffer_minutes"`
}

type PricingConfig struct {
	SecondDriverDaily *int64           `yaml:"second_driver_daily"`
	ChildSeatDaily    *int64           `yaml:"child_seat_daily"`
	Insurance         map[string]int64 `yaml:"insurance"`
	StrictTiers       bool             `yaml:"strict_tiers"`
}

// StaffConfig lists users seeded as superadmins at startup. Further staff
// are managed through the access service.
type StaffConfig struct {
	Superadmins []int64 `yaml:"superadmins"`
}

type MonitoringConfig struct {
	HealthCheckPort   int  `yaml:"health_check_port"`
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ArchivePath   string `yaml:"archive_path"`
	ExportOnStart bool   `yaml:"export_on_start"`
}

// RemindersConfig drives the pickup/return reminder events.
type RemindersConfig struct {
	Enabled              bool    `yaml:"enabled"`
	LeadHours            int     `yaml:"lead_hours"`
	CheckIntervalMinutes int     `yaml:"check_interval_minutes"`
	MaxConcurrent        int     `yaml:"max_concurrent"`
	RatePerSecond        float64 `yaml:"rate_per_second"`
}

// DebugConfig selects which vehicles and days the conflict tracer logs.
type DebugConfig struct {
	TraceVehicleIDs []int64  `yaml:"trace_vehicle_ids"`
	TraceDays       []string `yaml:"trace_days"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateRPS <= 0 {
		c.Server.RateRPS = 20
	}
	if c.Server.RateBurst <= 0 {
		c.Server.RateBurst = 40
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/rentacar.db"
	}
	if c.Redis.LockTTLSeconds <= 0 {
		c.Redis.LockTTLSeconds = 10
	}
	if c.Redis.LockWaitSeconds <= 0 {
		c.Redis.LockWaitSeconds = 5
	}
	if c.Redis.AttemptTimeoutMS <= 0 {
		c.Redis.AttemptTimeoutMS = 500
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "rentacar.events"
	}
	if c.Business.SeasonsPath == "" {
		c.Business.SeasonsPath = DefaultSeasonsPath
	}
	if c.Business.SeasonsReloadSeconds <= 0 {
		c.Business.SeasonsReloadSeconds = 30
	}
	if c.Pricing.Insurance == nil {
		c.Pricing.Insurance = pricing.DefaultConfig().Insurance
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8081
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Backup.IntervalHours <= 0 {
		c.Backup.IntervalHours = 24
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "backups"
	}
	if c.Audit.ArchivePath == "" {
		c.Audit.ArchivePath = "archive"
	}
	if c.Reminders.LeadHours <= 0 {
		c.Reminders.LeadHours = 24
	}
	if c.Reminders.CheckIntervalMinutes <= 0 {
		c.Reminders.CheckIntervalMinutes = 15
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: invalid port %d", c.Server.Port)
	}
	if c.Business.HandoverBufferMinutes < 0 {
		return fmt.Errorf("business.handover_buffer_minutes: must not be negative")
	}
	if c.Pricing.SecondDriverDaily != nil && *c.Pricing.SecondDriverDaily < 0 {
		return fmt.Errorf("pricing.second_driver_daily: must not be negative")
	}
	if c.Pricing.ChildSeatDaily != nil && *c.Pricing.ChildSeatDaily < 0 {
		return fmt.Errorf("pricing.child_seat_daily: must not be negative")
	}
	for tier, rate := range c.Pricing.Insurance {
		if strings.TrimSpace(tier) == "" {
			return fmt.Errorf("pricing.insurance: empty tier name")
		}
		if rate < 0 {
			return fmt.Errorf("pricing.insurance[%s]: must not be negative", tier)
		}
	}
	for i, id := range c.Staff.Superadmins {
		if id <= 0 {
			return fmt.Errorf("staff.superadmins[%d]: invalid user id %d", i, id)
		}
	}
	if c.LockAttemptTimeout() >= c.LockWait() {
		return fmt.Errorf("redis.attempt_timeout_ms: must be shorter than lock_wait_seconds")
	}
	if c.AMQP.Enabled && c.AMQP.URL == "" {
		return fmt.Errorf("amqp.url: required when amqp is enabled")
	}
	for i, d := range c.Debug.TraceDays {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("debug.trace_days[%d]: %q is not YYYY-MM-DD", i, d)
		}
	}
	return nil
}

// PricingRates converts the pricing section into engine rates. Unset
// surcharges fall back to the engine defaults.
func (c *Config) PricingRates() pricing.Config {
	rates := pricing.DefaultConfig()
	if c.Pricing.SecondDriverDaily != nil {
		rates.SecondDriverDaily = *c.Pricing.SecondDriverDaily
	}
	if c.Pricing.ChildSeatDaily != nil {
		rates.ChildSeatDaily = *c.Pricing.ChildSeatDaily
	}
	if c.Pricing.Insurance != nil {
		rates.Insurance = c.Pricing.Insurance
	}
	rates.StrictTiers = c.Pricing.StrictTiers
	return rates
}

func (c *Config) HandoverBuffer() time.Duration {
	return time.Duration(c.Business.HandoverBufferMinutes) * time.Minute
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Redis.LockTTLSeconds) * time.Second
}

func (c *Config) LockWait() time.Duration {
	return time.Duration(c.Redis.LockWaitSeconds) * time.Second
}

func (c *Config) LockAttemptTimeout() time.Duration {
	return time.Duration(c.Redis.AttemptTimeoutMS) * time.Millisecond
}

func (c *Config) SeasonsReloadInterval() time.Duration {
	return time.Duration(c.Business.SeasonsReloadSeconds) * time.Second
}

func (c *Config) ReminderLeadTime() time.Duration {
	return time.Duration(c.Reminders.LeadHours) * time.Hour
}

func (c *Config) ReminderCheckInterval() time.Duration {
	return time.Duration(c.Reminders.CheckIntervalMinutes) * time.Minute
}
