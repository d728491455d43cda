package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server ServerConfig `mapstructure:"server" validate:"required"`
	Poll   PollConfig   `mapstructure:"poll"   validate:"required"`
	Stream StreamConfig `mapstructure:"stream"`
	Log    LogConfig    `mapstructure:"log"    validate:"required"`
}

// ServerConfig describes how to reach the generation server's REST API.
type ServerConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	// Token is the bearer token sent on REST calls and appended to stream URLs.
	Token          string        `mapstructure:"token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gte=100ms"`
}

// PollConfig contains the refresh cadence of each synchronizer.
type PollConfig struct {
	MonitorInterval    time.Duration `mapstructure:"monitor_interval"    validate:"gte=100ms"`
	RepositoryInterval time.Duration `mapstructure:"repository_interval" validate:"gte=100ms"`
	SyncInterval       time.Duration `mapstructure:"sync_interval"       validate:"gte=100ms"`
	// RecentLimit bounds the recent-task list shown by the monitor.
	RecentLimit int `mapstructure:"recent_limit" validate:"gte=1,lte=500"`
}

// StreamConfig contains log stream settings.
type StreamConfig struct {
	// URLTemplate may contain ${name} placeholders, e.g. ${taskId}.
	URLTemplate string `mapstructure:"url_template"`
	TailLines   int    `mapstructure:"tail_lines" validate:"gte=0"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"  validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}
