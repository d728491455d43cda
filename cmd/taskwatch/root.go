package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// cli is shared by the command constructors. app is set once the
// persistent pre-run has loaded configuration.
type cli struct {
	opts globalOptions
	app  *application
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:          "taskwatch",
		Short:        "Follow generation tasks, sync jobs and task logs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication(c.opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			c.app = app
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.app != nil {
				c.app.cleanup()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.opts.configFile, "config", "", "Config file (default taskwatch.yaml in . or $HOME/.config/taskwatch)")
	flags.StringVar(&c.opts.envFile, "env", "", "Env file to load (default .env when present)")
	flags.StringVar(&c.opts.logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	flags.StringVar(&c.opts.server, "server", "", "API base URL, overrides server.base_url")
	flags.StringVar(&c.opts.token, "token", "", "Bearer token, overrides server.token")

	rootCmd.AddCommand(monitorCmd(c))
	rootCmd.AddCommand(tasksCmd(c))
	rootCmd.AddCommand(syncCmd(c))
	rootCmd.AddCommand(logsCmd(c))
	rootCmd.AddCommand(docsCmd(c))

	return rootCmd
}

var errInvalidID = errors.New("invalid id")

// parseID parses a positive numeric id argument.
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidID, raw)
	}
	return id, nil
}
