package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phrazzld/taskwatch/internal/platform/deepwiki"
	"github.com/phrazzld/taskwatch/internal/redact"
	"github.com/phrazzld/taskwatch/internal/task"
)

func tasksCmd(c *cli) *cobra.Command {
	var repoID int64

	actionNames := make([]string, 0, len(task.Actions))
	for _, a := range task.Actions {
		actionNames = append(actionNames, string(a))
	}

	cmd := &cobra.Command{
		Use:   "tasks <" + strings.Join(actionNames, "|") + "> <task-id>",
		Short: "Run, enqueue, cancel, retry, regenerate or delete a task",
		Long: "Validate an action against the task's last known status and send it to the server. " +
			"Pending tasks are only listed on their repository board, which is looked up from " +
			"the task unless --repo is given.",
		Args:      cobra.ExactArgs(2),
		ValidArgs: actionNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := task.ParseAction(args[0])
			if err != nil {
				return err
			}
			taskID, err := parseID(args[1])
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if repoID == 0 {
				t, err := c.app.client.GetTask(ctx, taskID)
				switch {
				case err == nil:
					repoID = t.RepositoryID
				case deepwiki.IsNotFound(err):
					// Perform reports the task as unknown
				default:
					c.app.logger.Warn("failed to look up task repository",
						"task_id", taskID,
						"error", redact.Error(err))
				}
			}

			m := c.app.newMonitor()
			defer m.Stop()
			if repoID != 0 {
				if err := m.WatchRepository(repoID); err != nil {
					return err
				}
			}
			if err := m.Refresh(ctx); err != nil {
				return fmt.Errorf("failed to load task state: %w", err)
			}

			if err := m.Perform(ctx, action, taskID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %d: %s accepted\n", taskID, action)
			return nil
		},
	}

	cmd.Flags().Int64Var(&repoID, "repo", 0, "Repository the task belongs to")
	return cmd
}
