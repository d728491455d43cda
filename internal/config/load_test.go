package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupEnv sets up environment variables for testing
func setupEnv(t *testing.T, envVars map[string]string) func() {
	// Save current environment values
	originalValues := make(map[string]string)
	for name := range envVars {
		originalValues[name] = os.Getenv(name)
	}

	// Set new environment variables
	for name, value := range envVars {
		err := os.Setenv(name, value)
		require.NoError(t, err, "Failed to set environment variable %s", name)
	}

	// Return cleanup function
	return func() {
		// Restore original environment
		for name, value := range originalValues {
			if value == "" {
				os.Unsetenv(name)
			} else {
				os.Setenv(name, value)
			}
		}
	}
}

// writeConfig writes a YAML config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestLoadDefaults verifies that Load returns the documented defaults when
// neither a file nor environment variables are present.
func TestLoadDefaults(t *testing.T) {
	cleanup := setupEnv(t, map[string]string{
		"TASKWATCH_SERVER_BASE_URL":       "",
		"TASKWATCH_POLL_MONITOR_INTERVAL": "",
		"TASKWATCH_LOG_LEVEL":             "",
	})
	defer cleanup()

	// Point at a directory without a config file
	cfg, err := NewLoader("").Load()

	require.NoError(t, err, "Load() should not return an error with default values")
	require.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:8080/api", cfg.Server.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.Poll.MonitorInterval)
	assert.Equal(t, 3*time.Second, cfg.Poll.RepositoryInterval)
	assert.Equal(t, 2*time.Second, cfg.Poll.SyncInterval)
	assert.Equal(t, 20, cfg.Poll.RecentLimit)
	assert.Equal(t, 100, cfg.Stream.TailLines)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

// TestLoadFromEnv verifies that environment variables override defaults.
func TestLoadFromEnv(t *testing.T) {
	cleanup := setupEnv(t, map[string]string{
		"TASKWATCH_SERVER_BASE_URL":       "https://wiki.example.com/api/",
		"TASKWATCH_SERVER_TOKEN":          "env-token",
		"TASKWATCH_POLL_MONITOR_INTERVAL": "750ms",
		"TASKWATCH_POLL_RECENT_LIMIT":     "5",
		"TASKWATCH_LOG_LEVEL":             "debug",
	})
	defer cleanup()

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "https://wiki.example.com/api", cfg.Server.BaseURL, "trailing slash is trimmed")
	assert.Equal(t, "env-token", cfg.Server.Token)
	assert.Equal(t, 750*time.Millisecond, cfg.Poll.MonitorInterval)
	assert.Equal(t, 5, cfg.Poll.RecentLimit)
	assert.Equal(t, "debug", cfg.Log.Level)
}

// TestLoadFromFile verifies file values and env-over-file precedence.
func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  base_url: https://file.example.com/api
  token: file-token
poll:
  sync_interval: 4s
stream:
  url_template: https://file.example.com/api/tasks/${taskId}/logs
  tail_lines: 50
log:
  level: warn
  format: text
`)
	cleanup := setupEnv(t, map[string]string{
		"TASKWATCH_SERVER_TOKEN": "env-wins",
	})
	defer cleanup()

	loader := NewLoader(path)
	cfg, err := loader.Load()

	require.NoError(t, err)
	assert.Equal(t, path, loader.FileUsed())
	assert.Equal(t, "https://file.example.com/api", cfg.Server.BaseURL)
	assert.Equal(t, "env-wins", cfg.Server.Token)
	assert.Equal(t, 4*time.Second, cfg.Poll.SyncInterval)
	assert.Equal(t, 5*time.Second, cfg.Poll.MonitorInterval, "unset keys keep defaults")
	assert.Equal(t, "https://file.example.com/api/tasks/${taskId}/logs", cfg.Stream.URLTemplate)
	assert.Equal(t, 50, cfg.Stream.TailLines)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

// TestLoadValidationErrors verifies that invalid values are rejected.
func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "invalid base url",
			env:  map[string]string{"TASKWATCH_SERVER_BASE_URL": "not a url"},
		},
		{
			name: "invalid log level",
			env:  map[string]string{"TASKWATCH_LOG_LEVEL": "verbose"},
		},
		{
			name: "interval too small",
			env:  map[string]string{"TASKWATCH_POLL_SYNC_INTERVAL": "1ms"},
		},
		{
			name: "recent limit out of range",
			env:  map[string]string{"TASKWATCH_POLL_RECENT_LIMIT": "0"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cleanup := setupEnv(t, tc.env)
			defer cleanup()

			cfg, err := Load("")
			assert.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

// TestLoadMissingExplicitFile verifies that a named but missing file is an error.
func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

// TestWatchReloadsOnWrite verifies the fsnotify-driven reload path.
func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n  format: json\n")

	loader := NewLoader(path)
	_, err := loader.Load()
	require.NoError(t, err)

	var level atomic.Value
	level.Store("info")
	require.True(t, loader.Watch(nil, func(cfg *Config) {
		level.Store(cfg.Log.Level)
	}))

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n  format: json\n"), 0o600))

	assert.Eventually(t, func() bool {
		return level.Load() == "debug"
	}, 3*time.Second, 20*time.Millisecond, "config change should be observed")
}

// TestWatchWithoutFile verifies that Watch is a no-op without a config file.
func TestWatchWithoutFile(t *testing.T) {
	loader := NewLoader("")
	_, err := loader.Load()
	require.NoError(t, err)

	assert.False(t, loader.Watch(nil, func(*Config) {}))
}
