package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v2"
)

// SourceConfig describes one configured listing source.
type SourceConfig struct {
	Type     string `yaml:"type"`
	Endpoint string `yaml:"endpoint"`
	Category string `yaml:"category"`
	MaxPages int    `yaml:"max_pages"`
}

func (c *SourceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Type, validation.Required,
			validation.In("citycalendar", "bizdirectory", "newsfeed", "icsfeed")),
		validation.Field(&c.Endpoint, validation.Required),
	)
}

// DBConfig holds MongoDB connection settings.
type DBConfig struct {
	Connection string `yaml:"connection"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

func (c *DBConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Connection, validation.Required),
		validation.Field(&c.Database, validation.Required),
		validation.Field(&c.Collection, validation.Required),
	)
}

// LogicConfig holds fetch behaviour shared by all adapters.
type LogicConfig struct {
	TimeoutSec int    `yaml:"timeout_sec"`
	DelayMS    int    `yaml:"delay_ms"`
	UserAgent  string `yaml:"user_agent"`
}

func (c *LogicConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TimeoutSec, validation.Min(1), validation.Max(60)),
	)
}

// JobConfig describes one recurring ingestion job.
type JobConfig struct {
	Interval string   `yaml:"interval"` // "daily" or "weekly"
	Hour     int      `yaml:"hour"`     // civic-time hour of day
	Weekday  string   `yaml:"weekday"`  // weekly jobs only, e.g. "monday"
	Enabled  bool     `yaml:"enabled"`
	Sources  []string `yaml:"sources"`
}

func (c *JobConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Interval, validation.Required, validation.In("daily", "weekly")),
		validation.Field(&c.Hour, validation.Min(0), validation.Max(23)),
	); err != nil {
		return err
	}
	if c.Interval == "weekly" && c.Weekday == "" {
		return fmt.Errorf("weekly job needs a weekday")
	}
	return nil
}

// CacheConfig points at the external read cache's purge endpoint. Empty URL
// means no external cache (a noop invalidator is used).
type CacheConfig struct {
	PurgeURL string `yaml:"purge_url"`
}

// Config is the top-level application configuration.
type Config struct {
	Timezone string                  `yaml:"timezone"`
	Listen   string                  `yaml:"listen"`
	LogLevel string                  `yaml:"log_level"`
	DB       DBConfig                `yaml:"db"`
	Cache    CacheConfig             `yaml:"cache"`
	Logic    LogicConfig             `yaml:"logic"`
	Sources  map[string]SourceConfig `yaml:"sources"`
	Jobs     map[string]JobConfig    `yaml:"jobs"`
}

// Validate checks the whole tree. The civic timezone must be a valid IANA
// name: clock times are never interpreted in the host's local zone.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Timezone, validation.Required),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
	); err != nil {
		return err
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %v", c.Timezone, err)
	}
	if err := c.DB.Validate(); err != nil {
		return err
	}
	if err := c.Logic.Validate(); err != nil {
		return err
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("no sources configured")
	}
	for name, sc := range c.Sources {
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("source %s: %v", name, err)
		}
	}
	for name, jc := range c.Jobs {
		if err := jc.Validate(); err != nil {
			return fmt.Errorf("job %s: %v", name, err)
		}
		for _, src := range jc.Sources {
			if _, ok := c.Sources[src]; !ok {
				return fmt.Errorf("job %s references unknown source %q", name, src)
			}
		}
	}
	return nil
}

// CivicLocation loads the configured civic timezone. Validate must have
// passed first.
func (c *Config) CivicLocation() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		// Validate rejects bad names before this point.
		panic(err)
	}
	return loc
}

// SlogLevel maps the configured log level onto slog's levels.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Logic.TimeoutSec == 0 {
		c.Logic.TimeoutSec = 15
	}
	if c.Logic.UserAgent == "" {
		c.Logic.UserAgent = "CityIngestBot/1.0"
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
