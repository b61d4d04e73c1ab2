package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration of both the collector and the agent.
type Config struct {
	// Collector.
	HTTPListen        string        `mapstructure:"http_listen"`
	EnableSwagger     bool          `mapstructure:"enable_swagger"`
	EnableLocalDetect bool          `mapstructure:"enable_local_detect"`
	DatabasePath      string        `mapstructure:"database"`
	RetentionDays     int           `mapstructure:"retention_days"`
	PurgeInterval     time.Duration `mapstructure:"purge_interval"`
	PollWait          time.Duration `mapstructure:"poll_wait"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ClientSecret      string        `mapstructure:"client_secret"`
	ApiSecret         string        `mapstructure:"api_secret"`

	// Agent.
	CollectorURL string        `mapstructure:"collector_url"`
	Interval     time.Duration `mapstructure:"interval"`
	Temperature  bool          `mapstructure:"temperature"`

	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from file and environment. name is the config file
// base name searched for when cfgFile is empty.
func Load(cfgFile, name string) (*Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(name)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/tangra-cpuinfo")
	}

	v.SetDefault("http_listen", ":9560")
	v.SetDefault("enable_swagger", true)
	v.SetDefault("enable_local_detect", true)
	v.SetDefault("database", "cpuinfo.db")
	v.SetDefault("retention_days", 0)
	v.SetDefault("purge_interval", "24h")
	v.SetDefault("poll_wait", "25s")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("client_secret", "")
	v.SetDefault("api_secret", "")
	v.SetDefault("collector_url", "http://127.0.0.1:9560")
	v.SetDefault("interval", "0s")
	v.SetDefault("temperature", false)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("CPUINFO")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	if c.PurgeInterval <= 0 {
		return fmt.Errorf("purge_interval must be positive, got %s", c.PurgeInterval)
	}
	if c.PollWait <= 0 {
		return fmt.Errorf("poll_wait must be positive, got %s", c.PollWait)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative, got %d", c.RetentionDays)
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval must not be negative, got %s", c.Interval)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SetupLogging installs a slog text handler on w at the configured level as
// the process default and returns the level.
func (c *Config) SetupLogging(w io.Writer) slog.Level {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return level
}

// ParseLogLevel maps debug/info/warn/error to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return 0, fmt.Errorf("invalid log_level %q", s)
	}
	return l, nil
}
