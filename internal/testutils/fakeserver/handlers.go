package fakeserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/taskwatch/internal/domain"
)

// idParam parses the {id} URL parameter, writing a 400 response on failure.
func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		RespondWithError(w, r, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	snapshot := domain.MonitorSnapshot{
		QueueStatus: s.queue,
		ActiveTasks: s.sortedTasks(func(t domain.Task) bool { return t.Status.IsActive() }),
		RecentTasks: s.sortedTasks(func(t domain.Task) bool { return t.Status.IsTerminal() }),
	}
	s.mu.Unlock()

	RespondWithJSON(w, r, http.StatusOK, snapshot)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	t, found := s.tasks[id]
	s.mu.Unlock()

	if !found {
		RespondWithError(w, r, http.StatusNotFound, "task not found")
		return
	}
	RespondWithJSON(w, r, http.StatusOK, t)
}

func (s *Server) handleTaskAction(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var next domain.TaskStatus
	action := chi.URLParam(r, "action")
	switch action {
	case "run":
		next = domain.TaskStatusRunning
	case "enqueue":
		next = domain.TaskStatusQueued
	case "cancel":
		next = domain.TaskStatusCanceled
	case "retry", "regenerate":
		next = domain.TaskStatusPending
	default:
		RespondWithError(w, r, http.StatusNotFound, "unknown action")
		return
	}

	s.mu.Lock()
	t, found := s.tasks[id]
	if found {
		s.applyStatus(&t, next)
		s.tasks[id] = t
	}
	s.mu.Unlock()

	if !found {
		RespondWithError(w, r, http.StatusNotFound, "task not found")
		return
	}
	RespondWithJSON(w, r, http.StatusOK, map[string]string{"message": "task " + action + " accepted"})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	_, found := s.tasks[id]
	delete(s.tasks, id)
	s.mu.Unlock()

	if !found {
		RespondWithError(w, r, http.StatusNotFound, "task not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRepositoryTasks(w http.ResponseWriter, r *http.Request) {
	repoID, ok := idParam(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	tasks := s.sortedTasks(func(t domain.Task) bool { return t.RepositoryID == repoID })
	s.mu.Unlock()

	RespondWithJSON(w, r, http.StatusOK, tasks)
}

func (s *Server) handleRepositoryStats(w http.ResponseWriter, r *http.Request) {
	repoID, ok := idParam(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	tasks := s.sortedTasks(func(t domain.Task) bool { return t.RepositoryID == repoID })
	s.mu.Unlock()

	var stats domain.TaskStats
	for _, t := range tasks {
		stats.Total++
		switch t.Status {
		case domain.TaskStatusPending:
			stats.Pending++
		case domain.TaskStatusQueued:
			stats.Queued++
		case domain.TaskStatusRunning:
			stats.Running++
		case domain.TaskStatusSucceeded, domain.TaskStatusCompleted:
			stats.Succeeded++
		case domain.TaskStatusFailed:
			stats.Failed++
		case domain.TaskStatusCanceled:
			stats.Canceled++
		}
	}
	RespondWithJSON(w, r, http.StatusOK, stats)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	lines := append([]string(nil), s.logs[id]...)
	hold := s.holdStreams
	s.mu.Unlock()

	if tail, err := strconv.Atoi(r.URL.Query().Get("tailLines")); err == nil && tail > 0 && tail < len(lines) {
		lines = lines[len(lines)-tail:]
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		RespondWithError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	for _, line := range lines {
		fmt.Fprintf(w, "data: %s\n\n", line)
	}
	flusher.Flush()

	if hold {
		select {
		case <-r.Context().Done():
		case <-s.done:
		}
	}
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	doc, found := s.documents[id]
	s.mu.Unlock()

	if !found {
		RespondWithError(w, r, http.StatusNotFound, "document not found")
		return
	}
	RespondWithJSON(w, r, http.StatusOK, doc)
}

// lineage returns every version of the document's task, oldest first.
// Caller holds mu.
func (s *Server) lineage(doc domain.Document) []domain.Document {
	var out []domain.Document
	for _, d := range s.documents {
		if d.RepositoryID == doc.RepositoryID && d.TaskID == doc.TaskID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

func (s *Server) handleDocumentVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	doc, found := s.documents[id]
	var versions []domain.Document
	if found {
		versions = s.lineage(doc)
	}
	s.mu.Unlock()

	if !found {
		RespondWithError(w, r, http.StatusNotFound, "document not found")
		return
	}
	RespondWithJSON(w, r, http.StatusOK, versions)
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		RespondWithError(w, r, http.StatusBadRequest, "content is required")
		return
	}

	s.mu.Lock()
	base, found := s.documents[id]
	var created domain.Document
	if found {
		latest := 0
		for _, d := range s.lineage(base) {
			if d.Version > latest {
				latest = d.Version
			}
			d.IsLatest = false
			s.documents[d.ID] = d
		}
		now := s.now().UTC()
		created = base
		created.ID = s.nextDocID
		created.Content = req.Content
		created.Version = latest + 1
		created.IsLatest = true
		created.CreatedAt = now
		created.UpdatedAt = now
		s.documents[created.ID] = created
		s.nextDocID++
	}
	s.mu.Unlock()

	if !found {
		RespondWithError(w, r, http.StatusNotFound, "document not found")
		return
	}
	RespondWithJSON(w, r, http.StatusOK, created)
}

func (s *Server) handleSyncStart(mode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SyncRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondWithError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.TargetServer == "" || req.RepositoryID <= 0 {
			RespondWithError(w, r, http.StatusBadRequest, "target_server and repository_id are required")
			return
		}
		req.Mode = mode

		s.mu.Lock()
		var steps []domain.SyncJob
		if len(s.scripts) > 0 {
			steps = s.scripts[0]
			s.scripts = s.scripts[1:]
		}
		syncID := fmt.Sprintf("sync-%d", len(s.syncOrder)+1)
		s.syncs[syncID] = &syncRun{request: req, steps: steps}
		s.syncOrder = append(s.syncOrder, syncID)
		s.mu.Unlock()

		total := 0
		if len(steps) > 0 {
			total = steps[0].TotalTasks
		}
		RespondWithEnvelope(w, r, domain.SyncStart{
			SyncID:       syncID,
			RepositoryID: req.RepositoryID,
			TotalTasks:   total,
			Status:       domain.SyncStatusRunning,
		})
	}
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	syncID := chi.URLParam(r, "id")

	s.mu.Lock()
	run, found := s.syncs[syncID]
	var job domain.SyncJob
	if found {
		if len(run.steps) > 0 {
			job = run.steps[run.next]
			if run.next < len(run.steps)-1 {
				run.next++
			}
		} else {
			job.Status = domain.SyncStatusRunning
		}
		job.SyncID = syncID
		job.RepositoryID = run.request.RepositoryID
	}
	s.mu.Unlock()

	if !found {
		RespondWithError(w, r, http.StatusNotFound, "sync not found")
		return
	}
	RespondWithEnvelope(w, r, job)
}
