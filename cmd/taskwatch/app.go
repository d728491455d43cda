package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joho/godotenv"

	"github.com/phrazzld/taskwatch/internal/config"
	"github.com/phrazzld/taskwatch/internal/events"
	"github.com/phrazzld/taskwatch/internal/platform/auth"
	"github.com/phrazzld/taskwatch/internal/platform/deepwiki"
	"github.com/phrazzld/taskwatch/internal/platform/logger"
	"github.com/phrazzld/taskwatch/internal/task"
)

// defaultEnvFile is loaded when present; a missing file is not an error.
const defaultEnvFile = ".env"

// globalOptions holds the persistent flags.
type globalOptions struct {
	configFile string
	envFile    string
	logLevel   string
	server     string
	token      string
}

// application holds the dependencies shared by every command.
type application struct {
	config *config.Config
	loader *config.Loader
	logger *slog.Logger
	tokens *auth.StaticTokenSource
	client *deepwiki.HTTPClient

	// emitter carries controller view updates to the command renderers
	emitter *events.InMemoryEmitter
}

// newApplication loads the environment and configuration, sets up logging
// and builds the API client. Flags override configured values.
func newApplication(opts globalOptions, logOut io.Writer) (*application, error) {
	if err := loadEnvFile(opts.envFile); err != nil {
		return nil, err
	}

	loader := config.NewLoader(opts.configFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.server != "" {
		cfg.Server.BaseURL = strings.TrimRight(strings.TrimSpace(opts.server), "/")
	}
	if opts.token != "" {
		cfg.Server.Token = opts.token
	}

	appLogger, err := logger.SetupWithWriter(cfg.Log, logOut)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	tokens := auth.NewStaticTokenSource(cfg.Server.Token)
	client := deepwiki.NewHTTPClient(cfg.Server.BaseURL, tokens,
		deepwiki.WithHTTPClient(&http.Client{Timeout: cfg.Server.RequestTimeout}))

	app := &application{
		config:  cfg,
		loader:  loader,
		logger:  appLogger,
		tokens:  tokens,
		client:  client,
		emitter: events.NewInMemoryEmitter(appLogger),
	}

	if app.watchConfig(opts) {
		appLogger.Debug("watching configuration file", "file", loader.FileUsed())
	}
	appLogger.Debug("taskwatch configured",
		"base_url", cfg.Server.BaseURL,
		"token_present", cfg.Server.Token != "",
		"log_level", cfg.Log.Level)
	return app, nil
}

// watchConfig applies log level and token changes from the config file
// while a long-running command is active. Values given as flags win.
func (app *application) watchConfig(opts globalOptions) bool {
	return app.loader.Watch(app.logger, func(cfg *config.Config) {
		if opts.logLevel == "" {
			if err := logger.SetLevel(cfg.Log.Level); err != nil {
				app.logger.Warn("ignoring reloaded log level", "error", err)
			}
		}
		if opts.token == "" {
			app.tokens.Set(cfg.Server.Token)
		}
	})
}

// newMonitor builds a task monitor from the configured poll settings.
func (app *application) newMonitor() *task.Monitor {
	return task.NewMonitor(app.client, task.MonitorOptions{
		Interval:           app.config.Poll.MonitorInterval,
		RepositoryInterval: app.config.Poll.RepositoryInterval,
		RecentLimit:        app.config.Poll.RecentLimit,
		Emitter:            app.emitter,
		Logger:             app.logger,
	})
}

// cleanup logs shutdown. Controllers are stopped by the commands that own
// them.
func (app *application) cleanup() {
	app.logger.Debug("taskwatch finished")
}

// loadEnvFile loads KEY=value pairs into the process environment without
// overriding variables that are already set. Only an explicitly named file
// is required to exist.
func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}
