package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/window-monitor/internal/httpserver"
	"github.com/angeloszaimis/window-monitor/internal/monitor"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type ProbeConfig struct {
	MaxTimeout string `mapstructure:"max_timeout"`
	UserAgent  string `mapstructure:"user_agent"`
}

type ScheduleConfig struct {
	Timezone string `mapstructure:"timezone"`
}

type LogStoreConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type BufferConfig struct {
	Buffer int `mapstructure:"buffer"`
}

type PersistenceConfig struct {
	SnapshotPath  string `mapstructure:"snapshot_path"`
	FlushInterval string `mapstructure:"flush_interval"`
}

// MonitorConfig is a seed monitor, used only when no snapshot exists.
type MonitorConfig struct {
	Name            string   `mapstructure:"name"`
	URL             string   `mapstructure:"url"`
	Days            []string `mapstructure:"days"`
	StartTime       string   `mapstructure:"start_time"`
	EndTime         string   `mapstructure:"end_time"`
	IntervalSeconds int      `mapstructure:"interval_seconds"`
	Enabled         bool     `mapstructure:"enabled"`
}

type Config struct {
	Server        ServerConfig      `mapstructure:"server"`
	Logging       LoggingConfig     `mapstructure:"logging"`
	Probe         ProbeConfig       `mapstructure:"probe"`
	Schedule      ScheduleConfig    `mapstructure:"schedule"`
	LogStore      LogStoreConfig    `mapstructure:"log_store"`
	Notifications BufferConfig      `mapstructure:"notifications"`
	Metrics       BufferConfig      `mapstructure:"metrics"`
	Persistence   PersistenceConfig `mapstructure:"persistence"`
	Monitors      []MonitorConfig   `mapstructure:"monitors"`
}

// Load reads config.yaml from ./config or the working directory, applying
// environment overrides such as SERVER_ADDRESS.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Info("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	return decode(v)
}

// LoadFile reads the configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("probe.max_timeout", "10s")
	v.SetDefault("probe.user_agent", "window-monitor/1.0")
	v.SetDefault("schedule.timezone", "Local")
	v.SetDefault("log_store.capacity", 10)
	v.SetDefault("notifications.buffer", 16)
	v.SetDefault("metrics.buffer", 256)
	v.SetDefault("persistence.snapshot_path", "")
	v.SetDefault("persistence.flush_interval", "30s")

	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server, validation.By(func(value interface{}) error {
			sc := value.(ServerConfig)
			return validation.ValidateStruct(&sc,
				validation.Field(&sc.Environment,
					validation.Required,
					validation.In(EnvDev, EnvStaging, EnvProd),
				),
				validation.Field(&sc.Address,
					validation.Required,
					validation.By(httpserver.ValidateAddress),
				),
			)
		})),
		validation.Field(&c.Logging, validation.By(func(value interface{}) error {
			lc := value.(LoggingConfig)
			return validation.ValidateStruct(&lc,
				validation.Field(&lc.Level,
					validation.Required,
					validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
				),
			)
		})),
		validation.Field(&c.Probe, validation.By(func(value interface{}) error {
			pc := value.(ProbeConfig)
			return validation.ValidateStruct(&pc,
				validation.Field(&pc.MaxTimeout,
					validation.Required,
					validation.By(validateDuration),
				),
			)
		})),
		validation.Field(&c.Schedule, validation.By(func(value interface{}) error {
			sc := value.(ScheduleConfig)
			return validation.ValidateStruct(&sc,
				validation.Field(&sc.Timezone,
					validation.Required,
					validation.By(validateTimezone),
				),
			)
		})),
		validation.Field(&c.LogStore, validation.By(func(value interface{}) error {
			lc := value.(LogStoreConfig)
			return validation.ValidateStruct(&lc,
				validation.Field(&lc.Capacity, validation.Required, validation.Min(1)),
			)
		})),
		validation.Field(&c.Notifications, validation.By(validateBuffer)),
		validation.Field(&c.Metrics, validation.By(validateBuffer)),
		validation.Field(&c.Persistence, validation.By(func(value interface{}) error {
			pc := value.(PersistenceConfig)
			return validation.ValidateStruct(&pc,
				validation.Field(&pc.FlushInterval,
					validation.Required,
					validation.By(validateDuration),
				),
			)
		})),
		validation.Field(&c.Monitors, validation.Each(validation.By(validateMonitorConfig))),
	)
}

// Timeout returns the parsed probe timeout ceiling.
func (p ProbeConfig) Timeout() time.Duration {
	d, _ := time.ParseDuration(p.MaxTimeout)
	return d
}

func (p PersistenceConfig) Interval() time.Duration {
	d, _ := time.ParseDuration(p.FlushInterval)
	return d
}

// Location resolves the time zone used to evaluate polling windows.
func (s ScheduleConfig) Location() (*time.Location, error) {
	if s.Timezone == "" || s.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
}

// Draft converts the seed entry into a monitor draft.
func (m MonitorConfig) Draft() (monitor.Draft, error) {
	days, err := monitor.ParseDaySet(m.Days)
	if err != nil {
		return monitor.Draft{}, err
	}
	return monitor.Draft{
		Name:            m.Name,
		URL:             m.URL,
		Days:            days,
		StartTime:       monitor.ClockTime(m.StartTime),
		EndTime:         monitor.ClockTime(m.EndTime),
		IntervalSeconds: m.IntervalSeconds,
		Enabled:         m.Enabled,
	}, nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}
	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be positive")
	}

	return nil
}

func validateTimezone(value interface{}) error {
	name, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if _, err := (ScheduleConfig{Timezone: name}).Location(); err != nil {
		return validation.NewError("validation_invalid_timezone", "must be an IANA time zone name")
	}

	return nil
}

func validateBuffer(value interface{}) error {
	bc, ok := value.(BufferConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a BufferConfig")
	}
	return validation.ValidateStruct(&bc,
		validation.Field(&bc.Buffer, validation.Required, validation.Min(1)),
	)
}

func validateMonitorConfig(value interface{}) error {
	mc, ok := value.(MonitorConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a MonitorConfig")
	}

	d, err := mc.Draft()
	if err != nil {
		return validation.NewError("validation_invalid_days", err.Error())
	}
	if err := d.Validate(); err != nil {
		return validation.NewError("validation_invalid_monitor",
			fmt.Sprintf("monitor %q: %v", mc.Name, err))
	}

	return nil
}
