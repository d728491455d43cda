package deepwiki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskwatch/internal/domain"
	"github.com/phrazzld/taskwatch/internal/platform/auth"
	"github.com/phrazzld/taskwatch/internal/platform/logger"
	"github.com/phrazzld/taskwatch/internal/redact"
)

// RequestIDHeader carries the per-call correlation id.
const RequestIDHeader = "X-Request-ID"

// SyncRequest starts a push or pull replication run.
type SyncRequest struct {
	TargetServer string  `json:"target_server"`
	RepositoryID int64   `json:"repository_id"`
	DocumentIDs  []int64 `json:"document_ids,omitempty"`
	// ClearTarget wipes the repository on the remote before a push.
	ClearTarget bool `json:"clear_target,omitempty"`
	// ClearLocal wipes the local repository before a pull.
	ClearLocal bool `json:"clear_local,omitempty"`
}

// Client is the server boundary used by the controllers.
type Client interface {
	Monitor(ctx context.Context) (domain.MonitorSnapshot, error)
	RepositoryTasks(ctx context.Context, repositoryID int64) ([]domain.Task, error)
	RepositoryTaskStats(ctx context.Context, repositoryID int64) (domain.TaskStats, error)
	GetTask(ctx context.Context, taskID int64) (domain.Task, error)

	RunTask(ctx context.Context, taskID int64) error
	EnqueueTask(ctx context.Context, taskID int64) error
	RetryTask(ctx context.Context, taskID int64) error
	RegenerateTask(ctx context.Context, taskID int64) error
	CancelTask(ctx context.Context, taskID int64) error
	DeleteTask(ctx context.Context, taskID int64) error

	GetDocument(ctx context.Context, documentID int64) (domain.Document, error)
	DocumentVersions(ctx context.Context, documentID int64) ([]domain.Document, error)
	UpdateDocument(ctx context.Context, documentID int64, content string) (domain.Document, error)

	StartSync(ctx context.Context, req SyncRequest) (domain.SyncStart, error)
	PullSync(ctx context.Context, req SyncRequest) (domain.SyncStart, error)
	SyncStatus(ctx context.Context, syncID string) (domain.SyncJob, error)
}

// HTTPClient implements Client over JSON/HTTP.
type HTTPClient struct {
	baseURL    string
	tokens     auth.TokenSource
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var _ Client = (*HTTPClient)(nil)

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetry sets the retry budget for GET requests.
func WithRetry(maxRetries int, baseDelay, maxDelay time.Duration) Option {
	return func(c *HTTPClient) {
		c.maxRetries = maxRetries
		c.baseDelay = baseDelay
		c.maxDelay = maxDelay
	}
}

// NewHTTPClient creates a client for the API rooted at baseURL, e.g.
// http://localhost:8080/api. tokens may be nil for an unauthenticated server.
func NewHTTPClient(baseURL string, tokens auth.TokenSource, opts ...Option) *HTTPClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:8080/api"
	}
	if tokens == nil {
		tokens = auth.NewStaticTokenSource("")
	}
	c := &HTTPClient{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized API root.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

type envelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type requestOptions struct {
	// enveloped responses are wrapped in {code, data}
	enveloped bool
}

func (c *HTTPClient) doJSON(
	ctx context.Context,
	method, requestPath string,
	body any,
	out any,
	ro requestOptions,
) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain token: %w", err)
	}

	requestID := uuid.NewString()
	log := logger.FromContext(logger.WithRequestID(ctx, requestID)).With(
		"component", "deepwiki",
		"method", method,
		"path", requestPath,
	)
	idempotent := method == http.MethodGet

	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		req.Header.Set(RequestIDHeader, requestID)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if idempotent && attempt < c.maxRetries && ctx.Err() == nil {
				log.Debug("retrying after transport error",
					"attempt", attempt+1,
					"error", redact.Error(err))
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payloadBytes, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		log.Debug("request completed",
			"status_code", resp.StatusCode,
			"attempt", attempt+1,
			"duration_ms", time.Since(start).Milliseconds())

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return decodeSuccess(payloadBytes, out, ro, resp.StatusCode, requestID)
		}

		if idempotent && retryableStatus(resp.StatusCode) && attempt < c.maxRetries {
			log.Warn("retrying after server error",
				"status_code", resp.StatusCode,
				"attempt", attempt+1)
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		return decodeError(payloadBytes, resp.StatusCode, requestID)
	}
}

func decodeSuccess(payload []byte, out any, ro requestOptions, status int, requestID string) error {
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if !ro.enveloped {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if env.Code != "" && !strings.EqualFold(env.Code, "OK") {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("unexpected response code %q", env.Code)
		}
		return &APIError{StatusCode: status, Message: msg, RequestID: requestID}
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

func decodeError(payload []byte, status int, requestID string) error {
	var errPayload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &errPayload)

	msg := errPayload.Error
	if msg == "" {
		msg = errPayload.Message
	}
	if msg == "" {
		msg = strings.ToLower(http.StatusText(status))
	}
	return &APIError{StatusCode: status, Message: msg, RequestID: requestID}
}

func (c *HTTPClient) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := http.ParseTime(header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
