package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/phrazzld/taskwatch/internal/stream"
)

// defaultLogPath is appended to the API base URL when no stream URL
// template is configured.
const defaultLogPath = "/tasks/${taskId}/logs"

func logsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Read task log streams",
	}
	cmd.AddCommand(logsTailCmd(c))
	return cmd
}

func logsTailCmd(c *cli) *cobra.Command {
	var (
		key       string
		template  string
		tailLines int
	)

	cmd := &cobra.Command{
		Use:   "tail <task-id>",
		Short: "Print a task's log stream until it ends or is interrupted",
		Long: "Print a task's log stream. http and https URLs are read as server-sent events, " +
			"ws and wss URLs as WebSocket text frames. The stream is not reopened when it ends.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			cfg := c.app.config

			if template == "" {
				template = cfg.Stream.URLTemplate
			}
			if template == "" {
				template = cfg.Server.BaseURL + defaultLogPath
			}
			if !cmd.Flags().Changed("tail") {
				tailLines = cfg.Stream.TailLines
			}
			if key == "" {
				key = "task-" + args[0]
			}

			token, err := c.app.tokens.Token(ctx)
			if err != nil {
				return err
			}
			rawURL, err := stream.BuildURL(template, map[string]string{
				"taskId": strconv.FormatInt(taskID, 10),
				"key":    key,
			}, token, tailLines)
			if err != nil {
				return err
			}

			out := &lockedWriter{w: cmd.OutOrStdout()}
			ended := make(chan stream.Status, 1)

			dialer := stream.MultiDialer{
				SSE:       &stream.SSEDialer{Client: &http.Client{}},
				WebSocket: &stream.WebSocketDialer{Client: &http.Client{}},
			}
			consumer := stream.NewConsumer(dialer, stream.ConsumerOptions{
				Logger: c.app.logger,
				OnAppend: func(line string, _ int) {
					fmt.Fprintln(out, line)
				},
				OnStatus: func(s stream.Status) {
					if s.State == stream.StateError {
						select {
						case ended <- s:
						default:
						}
					}
				},
			})
			defer consumer.Close()

			if err := consumer.Subscribe(key, rawURL); err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				return nil
			case s := <-ended:
				if s.Indicator == stream.IndicatorReconnecting {
					// The server ended the stream
					fmt.Fprintf(cmd.ErrOrStderr(), "log stream %s ended\n", s.Key)
					return nil
				}
				return fmt.Errorf("log stream %s: %s", s.Key, s.Indicator.Message())
			}
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Subscription key (default task-<id>)")
	cmd.Flags().StringVar(&template, "url", "", "Stream URL template with ${taskId} and ${key} placeholders")
	cmd.Flags().IntVar(&tailLines, "tail", 0, "Number of past lines to request (default stream.tail_lines)")
	return cmd
}
