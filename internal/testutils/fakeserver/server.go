package fakeserver

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/taskwatch/internal/domain"
)

// Request is a recorded inbound call.
type Request struct {
	Method        string
	Path          string
	RequestID     string
	Authorization string
	Query         string
}

// SyncRequest is the decoded body of a sync start or pull call.
type SyncRequest struct {
	TargetServer string  `json:"target_server"`
	RepositoryID int64   `json:"repository_id"`
	DocumentIDs  []int64 `json:"document_ids,omitempty"`
	ClearTarget  bool    `json:"clear_target,omitempty"`
	ClearLocal   bool    `json:"clear_local,omitempty"`
	// Mode is "push" for /sync/start and "pull" for /sync/pull.
	Mode string `json:"-"`
}

type failure struct {
	status     int
	message    string
	retryAfter string
}

type syncRun struct {
	request SyncRequest
	steps   []domain.SyncJob
	next    int
}

// Server is an in-memory generation server.
type Server struct {
	srv  *httptest.Server
	done chan struct{}
	once sync.Once

	mu          sync.Mutex
	token       string
	now         func() time.Time
	queue       domain.QueueStatus
	tasks       map[int64]domain.Task
	documents   map[int64]domain.Document
	nextDocID   int64
	logs        map[int64][]string
	holdStreams bool
	scripts     [][]domain.SyncJob
	syncs       map[string]*syncRun
	syncOrder   []string
	failures    map[string][]failure
	requests    []Request
}

// Option configures a Server.
type Option func(*Server)

// WithToken makes every endpoint require the bearer token, either in the
// Authorization header or as the token query parameter.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithClock overrides the time used for task timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithHeldStreams keeps log streams open after the buffered lines are sent
// until the client disconnects or the server closes.
func WithHeldStreams() Option {
	return func(s *Server) { s.holdStreams = true }
}

// New starts a fake server. Call Close when done.
func New(opts ...Option) *Server {
	s := &Server{
		done:      make(chan struct{}),
		now:       time.Now,
		tasks:     make(map[int64]domain.Task),
		documents: make(map[int64]domain.Document),
		logs:      make(map[int64][]string),
		syncs:     make(map[string]*syncRun),
		failures:  make(map[string][]failure),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.srv = httptest.NewServer(s.routes())
	return s
}

// URL returns the API base URL, e.g. http://127.0.0.1:1234/api.
func (s *Server) URL() string {
	return s.srv.URL + "/api"
}

// Client returns an HTTP client configured for the server.
func (s *Server) Client() *http.Client {
	return s.srv.Client()
}

// Close stops the server, releasing held streams first.
func (s *Server) Close() {
	s.once.Do(func() { close(s.done) })
	s.srv.Close()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.record)
	r.Use(s.authenticate)
	r.Use(s.injectFailures)

	r.Route("/api", func(r chi.Router) {
		r.Get("/tasks/monitor", s.handleMonitor)
		r.Get("/tasks/{id}", s.handleGetTask)
		r.Get("/tasks/{id}/logs", s.handleLogs)
		r.Post("/tasks/{id}/{action}", s.handleTaskAction)
		r.Delete("/tasks/{id}", s.handleDeleteTask)

		r.Get("/repositories/{id}/tasks", s.handleRepositoryTasks)
		r.Get("/repositories/{id}/tasks/stats", s.handleRepositoryStats)

		r.Get("/documents/{id}", s.handleGetDocument)
		r.Get("/documents/{id}/versions", s.handleDocumentVersions)
		r.Put("/documents/{id}", s.handleUpdateDocument)

		r.Post("/sync/start", s.handleSyncStart("push"))
		r.Post("/sync/pull", s.handleSyncStart("pull"))
		r.Get("/sync/status/{id}", s.handleSyncStatus)
	})

	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:        r.Method,
			Path:          strings.TrimPrefix(r.URL.Path, "/api"),
			RequestID:     middleware.GetReqID(r.Context()),
			Authorization: r.Header.Get("Authorization"),
			Query:         r.URL.RawQuery,
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		token := s.token
		s.mu.Unlock()

		if token != "" &&
			r.Header.Get("Authorization") != "Bearer "+token &&
			r.URL.Query().Get("token") != token {
			RespondWithError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/api")

		s.mu.Lock()
		queue := s.failures[key]
		var f *failure
		if len(queue) > 0 {
			f = &queue[0]
			s.failures[key] = queue[1:]
		}
		s.mu.Unlock()

		if f != nil {
			if f.retryAfter != "" {
				w.Header().Set("Retry-After", f.retryAfter)
			}
			RespondWithError(w, r, f.status, f.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FailNext makes the next call to method and path (relative to /api) fail
// with status and message. Calls queue up.
func (s *Server) FailNext(method, path string, status int, message string) {
	s.FailNextWithRetryAfter(method, path, status, message, "")
}

// FailNextWithRetryAfter is FailNext with a Retry-After header.
func (s *Server) FailNextWithRetryAfter(method, path string, status int, message, retryAfter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], failure{status: status, message: message, retryAfter: retryAfter})
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count returns how many requests matched method and path.
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// SetQueueStatus sets the queue counters reported by the monitor endpoint.
func (s *Server) SetQueueStatus(q domain.QueueStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = q
}

// PutTask inserts or replaces a task.
func (s *Server) PutTask(t domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
}

// Task returns the server-side copy of a task.
func (s *Server) Task(id int64) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// SetTaskStatus changes a task's status as a worker would.
func (s *Server) SetTaskStatus(id int64, status domain.TaskStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		s.applyStatus(&t, status)
		s.tasks[id] = t
	}
}

// PutDocument inserts or replaces a document.
func (s *Server) PutDocument(d domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[d.ID] = d
	if d.ID >= s.nextDocID {
		s.nextDocID = d.ID + 1
	}
}

// SetLogs sets the lines served on the task's log stream.
func (s *Server) SetLogs(taskID int64, lines ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[taskID] = append([]string(nil), lines...)
}

// ScriptSync queues the status snapshots returned for the next started
// sync job. Each status poll returns the next step and the last step repeats.
func (s *Server) ScriptSync(steps ...domain.SyncJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts = append(s.scripts, steps)
}

// LastSyncRequest returns the body of the most recent start or pull call.
func (s *Server) LastSyncRequest() (SyncRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.syncOrder) == 0 {
		return SyncRequest{}, false
	}
	return s.syncs[s.syncOrder[len(s.syncOrder)-1]].request, true
}

// applyStatus moves t to status, maintaining timestamps. Caller holds mu.
func (s *Server) applyStatus(t *domain.Task, status domain.TaskStatus) {
	now := s.now().UTC()
	t.Status = status
	t.UpdatedAt = now
	switch {
	case status == domain.TaskStatusRunning:
		t.StartedAt = &now
		t.CompletedAt = nil
	case status.IsTerminal():
		t.CompletedAt = &now
	case status == domain.TaskStatusPending:
		t.StartedAt = nil
		t.CompletedAt = nil
		t.ErrorMsg = ""
	}
}

// sortedTasks returns tasks matching keep ordered by sort order then id.
// Caller holds mu.
func (s *Server) sortedTasks(keep func(domain.Task) bool) []domain.Task {
	out := make([]domain.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}
