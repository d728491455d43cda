package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/phrazzld/taskwatch/internal/events"
	"github.com/phrazzld/taskwatch/internal/task"
)

// monitorReport is the --once output.
type monitorReport struct {
	Monitor    task.MonitorView     `json:"monitor"              yaml:"monitor"`
	Repository *task.RepositoryView `json:"repository,omitempty" yaml:"repository,omitempty"`
}

func monitorCmd(c *cli) *cobra.Command {
	var (
		repoID int64
		once   bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Show the task queue with active and recent tasks",
		Long: "Show the task queue with active and recent tasks. Without --once the view " +
			"is printed again after every poll until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(output)
			if err != nil {
				return err
			}
			out := &lockedWriter{w: cmd.OutOrStdout()}

			m := c.app.newMonitor()
			defer m.Stop()
			if repoID != 0 {
				if err := m.WatchRepository(repoID); err != nil {
					return err
				}
			}

			if once {
				if err := m.Refresh(cmd.Context()); err != nil {
					return fmt.Errorf("failed to load monitor: %w", err)
				}
				report := monitorReport{Monitor: m.View()}
				if repoID != 0 {
					if view, ok := m.RepositoryView(repoID); ok {
						report.Repository = &view
					}
				}
				return render(out, format, report, func(w io.Writer) error {
					return writeMonitorText(w, report)
				})
			}

			unregister := c.app.emitter.RegisterHandler(events.HandlerFunc(
				func(ctx context.Context, ev *events.Event) error {
					switch ev.Type {
					case events.TypeMonitorUpdated:
						var view task.MonitorView
						if err := ev.UnmarshalPayload(&view); err != nil {
							return err
						}
						return render(out, format, view, func(w io.Writer) error {
							return writeMonitorText(w, monitorReport{Monitor: view})
						})
					case events.TypeRepositoryUpdated:
						var view task.RepositoryView
						if err := ev.UnmarshalPayload(&view); err != nil {
							return err
						}
						return render(out, format, view, func(w io.Writer) error {
							return writeRepositoryText(w, view)
						})
					}
					return nil
				}))
			defer unregister()

			err = m.Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().Int64Var(&repoID, "repo", 0, "Also watch the task board of this repository")
	cmd.Flags().BoolVar(&once, "once", false, "Fetch once, print and exit")
	cmd.Flags().StringVarP(&output, "output", "o", formatText, "Output format (text|json|yaml)")
	return cmd
}

func writeMonitorText(w io.Writer, report monitorReport) error {
	q := report.Monitor.QueueStatus
	fmt.Fprintf(w, "Queue: %d queued, %d priority, %d active workers, %d active repositories\n",
		q.QueueLength, q.PriorityLength, q.ActiveWorkers, q.ActiveRepos)
	if !report.Monitor.AutoRefresh {
		fmt.Fprintln(w, "Auto refresh: off")
	}

	fmt.Fprintf(w, "\nActive tasks (%d)\n", len(report.Monitor.ActiveTasks))
	if err := writeTaskTable(w, report.Monitor.ActiveTasks); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nRecent tasks (%d)\n", len(report.Monitor.RecentTasks))
	if err := writeTaskTable(w, report.Monitor.RecentTasks); err != nil {
		return err
	}

	if report.Repository != nil {
		fmt.Fprintln(w)
		return writeRepositoryText(w, *report.Repository)
	}
	return nil
}

func writeRepositoryText(w io.Writer, view task.RepositoryView) error {
	s := view.Stats
	fmt.Fprintf(w, "Repository %d: %d tasks (%d pending, %d queued, %d running, %d succeeded, %d failed, %d canceled)\n",
		view.RepositoryID, s.Total, s.Pending, s.Queued, s.Running, s.Succeeded, s.Failed, s.Canceled)
	return writeTaskTable(w, view.Tasks)
}
