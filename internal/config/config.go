package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const DefaultClientName = "aw-watcher-window"

// Allowed poll_time range in seconds.
const (
	MinPollTime = 0.01
	MaxPollTime = 3600.0
)

type ServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"` // 0 picks 5600, or 5666 when testing
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type QueueConfig struct {
	Path                 string `mapstructure:"path"`
	RetryIntervalSeconds int    `mapstructure:"retry_interval_seconds"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	File string `mapstructure:"file"`
}

type Config struct {
	PollTime     float64       `mapstructure:"poll_time"`
	ExcludeTitle bool          `mapstructure:"exclude_title"`
	Testing      bool          `mapstructure:"testing"`
	Verbose      bool          `mapstructure:"verbose"`
	ClientName   string        `mapstructure:"client_name"`
	SocketPath   string        `mapstructure:"socket_path"`
	Server       ServerConfig  `mapstructure:"server"`
	Queue        QueueConfig   `mapstructure:"queue"`
	Metrics      MetricsConfig `mapstructure:"metrics"`
	Log          LogConfig     `mapstructure:"log"`
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"poll-time":     "poll_time",
	"exclude-title": "exclude_title",
	"testing":       "testing",
	"verbose":       "verbose",
	"log":           "log.file",
	"metrics-addr":  "metrics.addr",
}

// LoadConfig reads configuration from, in increasing precedence: defaults,
// the config file, WINWATCH_* environment variables and flags that were set
// explicitly. flags may be nil.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/winwatch")
		v.AddConfigPath("/etc/winwatch/")
	}

	v.SetEnvPrefix("WINWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Queue.Path == "" {
		cfg.Queue.Path = defaultQueuePath(cfg.Testing)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("poll_time", 1.0)
	v.SetDefault("exclude_title", false)
	v.SetDefault("testing", false)
	v.SetDefault("verbose", false)
	v.SetDefault("client_name", DefaultClientName)
	v.SetDefault("socket_path", fmt.Sprintf("/tmp/winwatch-%d.sock", os.Getuid()))
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 0)
	v.SetDefault("server.timeout_seconds", 10)
	v.SetDefault("queue.path", "")
	v.SetDefault("queue.retry_interval_seconds", 5)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("log.file", "")
}

func defaultQueuePath(testing bool) string {
	name := "queue.db"
	if testing {
		name = "queue-testing.db"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".local", "share", "winwatch", name)
}

func (c *Config) Validate() error {
	if math.IsNaN(c.PollTime) || math.IsInf(c.PollTime, 0) {
		return fmt.Errorf("poll_time must be a finite number, got %v", c.PollTime)
	}
	if c.PollTime <= 0 {
		return fmt.Errorf("poll_time must be positive, got %v", c.PollTime)
	}
	if c.PollTime < MinPollTime || c.PollTime > MaxPollTime {
		return fmt.Errorf("poll_time must be between %v and %v seconds, got %v", MinPollTime, MaxPollTime, c.PollTime)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}
	if c.Server.TimeoutSeconds <= 0 {
		return fmt.Errorf("server.timeout_seconds must be positive, got %d", c.Server.TimeoutSeconds)
	}
	if strings.TrimSpace(c.ClientName) == "" {
		return fmt.Errorf("client_name cannot be empty")
	}
	if c.Queue.RetryIntervalSeconds <= 0 {
		return fmt.Errorf("queue.retry_interval_seconds must be positive, got %d", c.Queue.RetryIntervalSeconds)
	}
	if c.SocketPath == "" {
		return fmt.Errorf("socket_path cannot be empty")
	}
	return nil
}

// PollInterval is PollTime as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollTime * float64(time.Second))
}

func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.Queue.RetryIntervalSeconds) * time.Second
}

func (c *Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}
