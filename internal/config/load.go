package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// TASKWATCH_SERVER_BASE_URL for server.base_url.
const EnvPrefix = "TASKWATCH"

// defaults mirrors every key so environment variables are picked up by
// Unmarshal even when no config file sets them.
var defaults = map[string]any{
	"server.base_url":          "http://localhost:8080/api",
	"server.token":             "",
	"server.request_timeout":   15 * time.Second,
	"poll.monitor_interval":    5 * time.Second,
	"poll.repository_interval": 3 * time.Second,
	"poll.sync_interval":       2 * time.Second,
	"poll.recent_limit":        20,
	"stream.url_template":      "",
	"stream.tail_lines":        100,
	"log.level":                "info",
	"log.format":               "json",
}

// Loader reads configuration from defaults, an optional YAML file and
// TASKWATCH_* environment variables, in increasing order of precedence.
type Loader struct {
	v        *viper.Viper
	validate *validator.Validate
}

// NewLoader creates a Loader. When configFile is empty, taskwatch.yaml is
// looked up in the working directory and $HOME/.config/taskwatch.
func NewLoader(configFile string) *Loader {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("taskwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/taskwatch")
	}

	return &Loader{v: v, validate: validator.New()}
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Server.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Server.BaseURL), "/")

	if err := l.validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// FileUsed returns the path of the config file that was read, if any.
func (l *Loader) FileUsed() string {
	return l.v.ConfigFileUsed()
}

// Watch re-reads the config file whenever it is written and calls onChange
// with the new, validated configuration. Invalid edits are logged and
// ignored. It returns false when no config file is in use.
func (l *Loader) Watch(logger *slog.Logger, onChange func(*Config)) bool {
	if l.v.ConfigFileUsed() == "" {
		return false
	}
	if logger == nil {
		logger = slog.Default()
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			logger.Warn("ignoring invalid configuration change",
				"file", e.Name,
				"error", err)
			return
		}
		logger.Info("configuration reloaded", "file", e.Name)
		onChange(cfg)
	})
	l.v.WatchConfig()
	return true
}

// Load is a convenience wrapper around NewLoader(configFile).Load().
func Load(configFile string) (*Config, error) {
	return NewLoader(configFile).Load()
}
