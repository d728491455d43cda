package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/phrazzld/taskwatch/internal/domain"
	"github.com/phrazzld/taskwatch/internal/events"
	"github.com/phrazzld/taskwatch/internal/replication"
)

func syncCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replicate repositories between servers",
	}
	cmd.AddCommand(syncStartCmd(c), syncStatusCmd(c))
	return cmd
}

func syncStartCmd(c *cli) *cobra.Command {
	var (
		target     string
		repoID     int64
		docIDs     []int64
		clearFirst bool
		pull       bool
		detach     bool
		output     string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Push a repository to another server, or pull it with --pull",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(output)
			if err != nil {
				return err
			}
			out := &lockedWriter{w: cmd.OutOrStdout()}

			req := replication.StartRequest{
				TargetServer: target,
				RepositoryID: repoID,
				DocumentIDs:  docIDs,
				Mode:         replication.ModePush,
			}
			if pull {
				req.Mode = replication.ModePull
				req.ClearLocal = clearFirst
			} else {
				req.ClearTarget = clearFirst
			}

			ctrl := replication.NewController(c.app.client, replication.Options{
				Interval: c.app.config.Poll.SyncInterval,
				Emitter:  c.app.emitter,
				Logger:   c.app.logger,
			})
			defer ctrl.Stop()

			if format == formatText && !detach {
				progress := &progressPrinter{w: out}
				unregister := c.app.emitter.RegisterHandler(events.HandlerFunc(
					func(ctx context.Context, ev *events.Event) error {
						if ev.Type != events.TypeSyncUpdated {
							return nil
						}
						var view replication.View
						if err := ev.UnmarshalPayload(&view); err != nil {
							return err
						}
						progress.print(view)
						return nil
					}))
				defer unregister()
			}

			view, err := ctrl.Start(cmd.Context(), req)
			if err != nil {
				return err
			}
			if detach {
				return render(out, format, view, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "sync %s started (%d tasks)\n", view.Job.SyncID, view.Job.TotalTasks)
					return err
				})
			}

			final, err := ctrl.Wait(cmd.Context())
			if err != nil {
				return err
			}
			if format != formatText {
				if err := render(out, format, final, nil); err != nil {
					return err
				}
			}
			if final.Job.Status == domain.SyncStatusFailed {
				return fmt.Errorf("sync %s failed: %d of %d tasks failed",
					final.Job.SyncID, final.Job.FailedTasks, final.Job.TotalTasks)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "Target server URL (http or https)")
	cmd.Flags().Int64Var(&repoID, "repo", 0, "Repository to replicate")
	cmd.Flags().Int64SliceVar(&docIDs, "doc", nil, "Only replicate these documents (repeatable)")
	cmd.Flags().BoolVar(&clearFirst, "clear", false, "Clear the receiving side before copying")
	cmd.Flags().BoolVar(&pull, "pull", false, "Pull from the target instead of pushing to it")
	cmd.Flags().BoolVar(&detach, "detach", false, "Print the sync id and exit without waiting")
	cmd.Flags().StringVarP(&output, "output", "o", formatText, "Output format (text|json|yaml)")
	return cmd
}

// progressPrinter prints new log lines and progress changes of a sync view.
type progressPrinter struct {
	w io.Writer

	mu       sync.Mutex
	printed  int
	progress int
	started  bool
}

func (p *progressPrinter) print(view replication.View) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		p.started = true
		p.progress = view.Progress
		fmt.Fprintf(p.w, "sync %s: %d tasks\n", view.Job.SyncID, view.Job.TotalTasks)
	}
	if view.Progress != p.progress {
		p.progress = view.Progress
		fmt.Fprintf(p.w, "[%3d%%] %d/%d\n", view.Progress, view.Job.CompletedTasks, view.Job.TotalTasks)
	}
	for ; p.printed < len(view.Logs); p.printed++ {
		fmt.Fprintln(p.w, view.Logs[p.printed])
	}
}

func syncStatusCmd(c *cli) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status <sync-id>",
		Short: "Show the current snapshot of a sync job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(output)
			if err != nil {
				return err
			}
			job, err := c.app.client.SyncStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			view := replication.Advance(replication.Seed(job), job)
			return render(cmd.OutOrStdout(), format, view, func(w io.Writer) error {
				fmt.Fprintf(w, "sync %s: %s, %d/%d tasks (%d%%), %d failed\n",
					job.SyncID, statusLabel(job.Status), job.CompletedTasks, job.TotalTasks,
					view.Progress, job.FailedTasks)
				if job.CurrentTask != "" {
					fmt.Fprintf(w, "current: %s\n", job.CurrentTask)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", formatText, "Output format (text|json|yaml)")
	return cmd
}

func statusLabel(s domain.SyncStatus) string {
	if s == domain.SyncStatusUnknown {
		return "pending"
	}
	return string(s)
}
