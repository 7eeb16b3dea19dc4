// Package config loads mnemo's settings from defaults, an optional YAML
// file and MNEMO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/abhisek/mnemo/internal/lock"
	"github.com/abhisek/mnemo/internal/logging"
	"github.com/abhisek/mnemo/internal/mastery"
	"github.com/abhisek/mnemo/internal/review"
	"github.com/abhisek/mnemo/internal/spacedrep"
	"github.com/abhisek/mnemo/internal/store"
)

const (
	envPrefix       = "MNEMO"
	defaultTimezone = "UTC"

	LockMemory = "memory"
	LockRedis  = "redis"
)

// ErrInvalid is returned when a loaded configuration fails validation.
var ErrInvalid = errors.New("config: invalid")

// Config holds every setting the commands need.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      logging.Config `mapstructure:"log"`
	Lock     LockConfig     `mapstructure:"lock"`
	Review   ReviewConfig   `mapstructure:"review"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Mastery  MasteryConfig  `mapstructure:"mastery"`
	Timezone string         `mapstructure:"timezone"`

	location *time.Location
}

// DatabaseConfig selects the store driver. An empty SQLite DSN resolves to
// the default database path.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string          `mapstructure:"addr"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig is the per-client token bucket.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// LockConfig picks the keyed lock backend.
type LockConfig struct {
	Backend string           `mapstructure:"backend"`
	Redis   lock.RedisConfig `mapstructure:"redis"`
}

// ReviewConfig tunes the review pipeline.
type ReviewConfig struct {
	ClockSkew time.Duration      `mapstructure:"clock_skew"`
	Retry     review.RetryConfig `mapstructure:"retry"`
}

// MemoryConfig holds the scheduler parameters. Empty weights mean the
// built-in defaults.
type MemoryConfig struct {
	Weights         []float64 `mapstructure:"weights"`
	TargetRetention float64   `mapstructure:"target_retention"`
	MaximumInterval int       `mapstructure:"maximum_interval"`
}

// MasteryConfig holds the default BKT parameters and color thresholds.
type MasteryConfig struct {
	PInit    float64 `mapstructure:"p_init"`
	PSlip    float64 `mapstructure:"p_slip"`
	PGuess   float64 `mapstructure:"p_guess"`
	PTransit float64 `mapstructure:"p_transit"`

	Thresholds struct {
		Orange float64 `mapstructure:"orange"`
		Yellow float64 `mapstructure:"yellow"`
		Green  float64 `mapstructure:"green"`
	} `mapstructure:"thresholds"`
}

// SetDefaults registers a default for every key so environment overrides
// are visible to Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", store.DriverSQLite)
	v.SetDefault("database.dsn", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.rps", 20.0)
	v.SetDefault("server.rate_limit.burst", 40)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	rc := lock.DefaultRedisConfig()
	v.SetDefault("lock.backend", LockMemory)
	v.SetDefault("lock.redis.addr", rc.Addr)
	v.SetDefault("lock.redis.password", rc.Password)
	v.SetDefault("lock.redis.db", rc.DB)
	v.SetDefault("lock.redis.key_prefix", rc.KeyPrefix)
	v.SetDefault("lock.redis.ttl", rc.TTL)
	v.SetDefault("lock.redis.retry", rc.Retry)

	retry := review.DefaultRetryConfig()
	v.SetDefault("review.clock_skew", review.DefaultClockSkew)
	v.SetDefault("review.retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("review.retry.initial_wait", retry.InitialWait)
	v.SetDefault("review.retry.max_wait", retry.MaxWait)
	v.SetDefault("review.retry.multiplier", retry.Multiplier)

	v.SetDefault("memory.weights", []float64{})
	v.SetDefault("memory.target_retention", spacedrep.DefaultTargetRetention)
	v.SetDefault("memory.maximum_interval", spacedrep.MaxIntervalDays)

	mp, th := mastery.DefaultParams(), mastery.DefaultThresholds()
	v.SetDefault("mastery.p_init", mp.PInit)
	v.SetDefault("mastery.p_slip", mp.PSlip)
	v.SetDefault("mastery.p_guess", mp.PGuess)
	v.SetDefault("mastery.p_transit", mp.PTransit)
	v.SetDefault("mastery.thresholds.orange", th.Orange)
	v.SetDefault("mastery.thresholds.yellow", th.Yellow)
	v.SetDefault("mastery.thresholds.green", th.Green)

	v.SetDefault("timezone", defaultTimezone)
}

// Load reads configuration into v and decodes it. With an empty path the
// file is looked up as mnemo.yaml in the working directory and the XDG
// config directory; a missing file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mnemo")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := configDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings and resolves the timezone.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		return fmt.Errorf("%w: database.driver %q", ErrInvalid, c.Database.Driver)
	}
	if c.Database.Driver == store.DriverPostgres && c.Database.DSN == "" {
		return fmt.Errorf("%w: database.dsn is required for postgres", ErrInvalid)
	}
	switch c.Lock.Backend {
	case LockMemory, LockRedis:
	default:
		return fmt.Errorf("%w: lock.backend %q", ErrInvalid, c.Lock.Backend)
	}
	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.RPS <= 0 || c.Server.RateLimit.Burst < 1) {
		return fmt.Errorf("%w: rate limit needs rps > 0 and burst >= 1", ErrInvalid)
	}
	if c.Review.ClockSkew < 0 {
		return fmt.Errorf("%w: review.clock_skew is negative", ErrInvalid)
	}
	if _, err := c.MemoryParams(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.MasteryConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	tz := c.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("%w: timezone %q: %w", ErrInvalid, tz, err)
	}
	c.location = loc
	return nil
}

// MemoryParams builds the scheduler parameters.
func (c *Config) MemoryParams() (spacedrep.Params, error) {
	p := spacedrep.DefaultParams()
	if n := len(c.Memory.Weights); n > 0 {
		if n != len(p.Weights) {
			return p, fmt.Errorf("memory.weights has %d values, want %d", n, len(p.Weights))
		}
		copy(p.Weights[:], c.Memory.Weights)
	}
	if c.Memory.TargetRetention != 0 {
		p.TargetRetention = c.Memory.TargetRetention
	}
	if c.Memory.MaximumInterval != 0 {
		p.MaximumInterval = c.Memory.MaximumInterval
	}
	return p, p.Validate()
}

// MasteryConfig builds the mastery model configuration.
func (c *Config) MasteryConfig() mastery.Config {
	m := c.Mastery
	return mastery.Config{
		Defaults: mastery.Params{
			PInit:    m.PInit,
			PSlip:    m.PSlip,
			PGuess:   m.PGuess,
			PTransit: m.PTransit,
		},
		Thresholds: mastery.Thresholds{
			Orange: m.Thresholds.Orange,
			Yellow: m.Thresholds.Yellow,
			Green:  m.Thresholds.Green,
		},
	}
}

// Location is the time zone used for calendar days.
func (c *Config) Location() *time.Location {
	if c.location != nil {
		return c.location
	}
	return time.UTC
}

// DSN returns the configured DSN, resolving the default SQLite path when
// none is set.
func (c *Config) DSN() (string, error) {
	if c.Database.DSN != "" || c.Database.Driver != store.DriverSQLite {
		return c.Database.DSN, nil
	}
	return store.DefaultDBPath()
}

func configDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "mnemo"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "mnemo"), nil
}
