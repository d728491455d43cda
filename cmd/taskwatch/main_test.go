package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskwatch/internal/domain"
	"github.com/phrazzld/taskwatch/internal/testutils/fakeserver"
)

// runCLI executes the root command with args and returns stdout, stderr
// and the command error.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func serverArgs(srv *fakeserver.Server, args ...string) []string {
	return append(args, "--server", srv.URL(), "--log-level", "error")
}

func seedTasks(srv *fakeserver.Server) {
	started := time.Now().Add(-time.Minute)
	srv.PutTask(domain.Task{
		ID: 7, RepositoryID: 3, Title: "Architecture", Type: "page",
		Status: domain.TaskStatusRunning, StartedAt: &started,
		Repository: &domain.RepositoryRef{ID: 3, Name: "acme/api"},
	})
	srv.PutTask(domain.Task{
		ID: 8, RepositoryID: 3, Title: "Overview", Type: "page",
		Status: domain.TaskStatusFailed, ErrorMsg: "model timeout",
		StartedAt: &started, CompletedAt: &started,
		Repository: &domain.RepositoryRef{ID: 3, Name: "acme/api"},
	})
}

func TestMonitorOnce(t *testing.T) {
	srv := fakeserver.New()
	defer srv.Close()
	seedTasks(srv)
	srv.SetQueueStatus(domain.QueueStatus{QueueLength: 2, ActiveWorkers: 1})

	t.Run("json", func(t *testing.T) {
		stdout, _, err := runCLI(t, serverArgs(srv, "monitor", "--once", "-o", "json")...)
		require.NoError(t, err)

		var report struct {
			Monitor struct {
				QueueStatus domain.QueueStatus `json:"queue_status"`
				ActiveTasks []struct {
					ID      int64    `json:"id"`
					Actions []string `json:"actions"`
				} `json:"active_tasks"`
				RecentTasks []struct {
					ID    int64  `json:"id"`
					Error string `json:"error"`
				} `json:"recent_tasks"`
			} `json:"monitor"`
		}
		require.NoError(t, json.Unmarshal([]byte(stdout), &report))
		assert.Equal(t, 2, report.Monitor.QueueStatus.QueueLength)
		require.Len(t, report.Monitor.ActiveTasks, 1)
		assert.Equal(t, int64(7), report.Monitor.ActiveTasks[0].ID)
		assert.Equal(t, []string{"cancel"}, report.Monitor.ActiveTasks[0].Actions)
		require.Len(t, report.Monitor.RecentTasks, 1)
		assert.Equal(t, "model timeout", report.Monitor.RecentTasks[0].Error)
	})

	t.Run("text", func(t *testing.T) {
		stdout, _, err := runCLI(t, serverArgs(srv, "monitor", "--once")...)
		require.NoError(t, err)
		assert.Contains(t, stdout, "Queue: 2 queued, 0 priority, 1 active workers")
		assert.Contains(t, stdout, "Active tasks (1)")
		assert.Contains(t, stdout, "Architecture")
		assert.Contains(t, stdout, "error: model timeout")
	})

	t.Run("unknown output format", func(t *testing.T) {
		_, _, err := runCLI(t, serverArgs(srv, "monitor", "--once", "-o", "xml")...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown output format")
	})
}

func TestTasksCommand(t *testing.T) {
	t.Run("cancel running task", func(t *testing.T) {
		srv := fakeserver.New()
		defer srv.Close()
		seedTasks(srv)

		stdout, _, err := runCLI(t, serverArgs(srv, "tasks", "cancel", "7")...)
		require.NoError(t, err)
		assert.Equal(t, "task 7: cancel accepted\n", stdout)

		task, ok := srv.Task(7)
		require.True(t, ok)
		assert.Equal(t, domain.TaskStatusCanceled, task.Status)
	})

	t.Run("run on running task is rejected locally", func(t *testing.T) {
		srv := fakeserver.New()
		defer srv.Close()
		seedTasks(srv)

		_, _, err := runCLI(t, serverArgs(srv, "tasks", "run", "7")...)
		require.ErrorIs(t, err, domain.ErrActionNotAllowed)
		assert.Equal(t, 0, srv.Count("POST", "/tasks/7/run"))
	})

	t.Run("unknown action", func(t *testing.T) {
		srv := fakeserver.New()
		defer srv.Close()

		_, _, err := runCLI(t, serverArgs(srv, "tasks", "explode", "7")...)
		require.Error(t, err)
		assert.Empty(t, srv.Requests())
	})

	t.Run("invalid id", func(t *testing.T) {
		srv := fakeserver.New()
		defer srv.Close()

		_, _, err := runCLI(t, serverArgs(srv, "tasks", "cancel", "abc")...)
		require.ErrorIs(t, err, errInvalidID)
	})
}

func TestSyncStart(t *testing.T) {
	t.Setenv("TASKWATCH_POLL_SYNC_INTERVAL", "100ms")

	t.Run("follows the job to completion", func(t *testing.T) {
		srv := fakeserver.New()
		defer srv.Close()
		srv.ScriptSync(
			domain.SyncJob{TotalTasks: 4, CompletedTasks: 1, Status: domain.SyncStatusRunning, CurrentTask: "overview.md"},
			domain.SyncJob{TotalTasks: 4, CompletedTasks: 4, Status: domain.SyncStatusCompleted, CurrentTask: "setup.md"},
		)

		stdout, _, err := runCLI(t, serverArgs(srv,
			"sync", "start", "--target", "https://mirror.example.com", "--repo", "3", "--clear")...)
		require.NoError(t, err)

		assert.Contains(t, stdout, "sync sync-1: 4 tasks")
		assert.Contains(t, stdout, "overview.md\n")
		assert.Contains(t, stdout, "setup.md\n")
		assert.Contains(t, stdout, "[100%] 4/4")
		assert.Contains(t, stdout, "Sync completed")

		req, ok := srv.LastSyncRequest()
		require.True(t, ok)
		assert.Equal(t, "push", req.Mode)
		assert.True(t, req.ClearTarget)
		assert.False(t, req.ClearLocal)
	})

	t.Run("failed job returns an error", func(t *testing.T) {
		srv := fakeserver.New()
		defer srv.Close()
		srv.ScriptSync(
			domain.SyncJob{TotalTasks: 2, CompletedTasks: 1, FailedTasks: 1, Status: domain.SyncStatusFailed},
		)

		stdout, _, err := runCLI(t, serverArgs(srv,
			"sync", "start", "--target", "https://mirror.example.com", "--repo", "3", "--pull")...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 2 tasks failed")
		assert.Contains(t, stdout, "Sync failed")

		req, ok := srv.LastSyncRequest()
		require.True(t, ok)
		assert.Equal(t, "pull", req.Mode)
	})

	t.Run("invalid target never reaches the server", func(t *testing.T) {
		srv := fakeserver.New()
		defer srv.Close()

		_, _, err := runCLI(t, serverArgs(srv,
			"sync", "start", "--target", "ftp://mirror.example.com", "--repo", "3")...)
		require.Error(t, err)
		assert.Empty(t, srv.Requests())
	})

	t.Run("detach prints the started job", func(t *testing.T) {
		srv := fakeserver.New()
		defer srv.Close()
		srv.ScriptSync(domain.SyncJob{TotalTasks: 5, Status: domain.SyncStatusRunning})

		stdout, _, err := runCLI(t, serverArgs(srv,
			"sync", "start", "--target", "https://mirror.example.com", "--repo", "3", "--detach")...)
		require.NoError(t, err)
		assert.Equal(t, "sync sync-1 started (5 tasks)\n", stdout)
	})

	t.Run("status of a started job", func(t *testing.T) {
		srv := fakeserver.New()
		defer srv.Close()
		srv.ScriptSync(domain.SyncJob{TotalTasks: 4, CompletedTasks: 2, Status: domain.SyncStatusRunning, CurrentTask: "api.md"})

		_, _, err := runCLI(t, serverArgs(srv,
			"sync", "start", "--target", "https://mirror.example.com", "--repo", "3", "--detach")...)
		require.NoError(t, err)

		stdout, _, err := runCLI(t, serverArgs(srv, "sync", "status", "sync-1")...)
		require.NoError(t, err)
		assert.Contains(t, stdout, "sync sync-1: running, 2/4 tasks (50%), 0 failed")
		assert.Contains(t, stdout, "current: api.md")

		_, _, err = runCLI(t, serverArgs(srv, "sync", "status", "sync-9")...)
		require.Error(t, err)
	})
}

func TestLogsTail(t *testing.T) {
	srv := fakeserver.New()
	defer srv.Close()
	srv.SetLogs(7, "cloning", "planning", "writing overview.md")

	stdout, stderr, err := runCLI(t, serverArgs(srv, "logs", "tail", "7", "--tail", "2")...)
	require.NoError(t, err)
	assert.Equal(t, "planning\nwriting overview.md\n", stdout)
	assert.Contains(t, stderr, "log stream task-7 ended")
	assert.Equal(t, 1, srv.Count("GET", "/tasks/7/logs"))
}

func TestDocsCommands(t *testing.T) {
	srv := fakeserver.New()
	defer srv.Close()

	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []int64{10, 11, 12} {
		srv.PutDocument(domain.Document{
			ID: id, RepositoryID: 3, TaskID: 7,
			Title: "Overview", Filename: "overview.md",
			Content:   "version body",
			Version:   i + 1,
			IsLatest:  id == 12,
			UpdatedAt: updated.Add(time.Duration(i) * time.Hour),
		})
	}

	t.Run("show", func(t *testing.T) {
		stdout, _, err := runCLI(t, serverArgs(srv, "docs", "show", "12")...)
		require.NoError(t, err)
		assert.Contains(t, stdout, "# Overview (document 12, version 3, latest)")
		assert.Contains(t, stdout, "version body")
	})

	t.Run("versions newest first", func(t *testing.T) {
		stdout, _, err := runCLI(t, serverArgs(srv, "docs", "versions", "11", "-o", "json")...)
		require.NoError(t, err)

		var versions []domain.DocumentVersion
		require.NoError(t, json.Unmarshal([]byte(stdout), &versions))
		require.Len(t, versions, 3)
		assert.Equal(t, []int{3, 2, 1}, []int{versions[0].Version, versions[1].Version, versions[2].Version})
		assert.True(t, versions[1].Current)
		assert.True(t, versions[0].IsLatest)
	})

	t.Run("save from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "overview.md")
		require.NoError(t, os.WriteFile(path, []byte("rewritten"), 0o600))

		stdout, _, err := runCLI(t, serverArgs(srv, "docs", "save", "12", "--file", path)...)
		require.NoError(t, err)
		assert.Contains(t, stdout, "as version 4")
	})

	t.Run("save requires content", func(t *testing.T) {
		_, _, err := runCLI(t, serverArgs(srv, "docs", "save", "12")...)
		require.Error(t, err)
	})
}

func TestEnvFile(t *testing.T) {
	srv := fakeserver.New()
	defer srv.Close()
	seedTasks(srv)

	path := filepath.Join(t.TempDir(), "taskwatch.env")
	require.NoError(t, os.WriteFile(path, []byte("TASKWATCH_SERVER_BASE_URL="+srv.URL()+"\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("TASKWATCH_SERVER_BASE_URL") })

	_, _, err := runCLI(t, "monitor", "--once", "--env", path, "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Count("GET", "/tasks/monitor"))

	t.Run("missing explicit env file", func(t *testing.T) {
		_, _, err := runCLI(t, "monitor", "--once", "--env", filepath.Join(t.TempDir(), "absent.env"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load env file")
	})
}
