package ticktick

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/teemow/ticktick-mcp/internal/instrumentation"
)

// DefaultBaseURL is the TickTick v2 API endpoint.
const DefaultBaseURL = "https://api.ticktick.com/api/v2"

const (
	defaultTimeout          = 30 * time.Second
	defaultRateLimitRetries = 3
	defaultRetryAfter       = 1 * time.Second
	defaultBackoffInitial   = 500 * time.Millisecond
	maxErrorBodyBytes       = 2048
)

// TokenSource supplies bearer tokens for upstream calls. Refresh forces a
// new token regardless of the current one's expiry; the client calls it at
// most once per request, on the first 401.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Config holds the client configuration. All values are injected by the
// caller at construction time; the client never reads environment state.
type Config struct {
	// BaseURL overrides the API endpoint (default: DefaultBaseURL).
	BaseURL string

	// Timeout bounds each network attempt (default: 30s).
	Timeout time.Duration

	// RateLimitRetries caps how often a 429 response is retried before
	// surfacing a RateLimitError (default: 3).
	RateLimitRetries int

	// RetryAfterDefault is the wait applied to a 429 response that carries
	// no Retry-After header (default: 1s).
	RetryAfterDefault time.Duration

	// HTTPClient overrides the transport (mainly for tests).
	HTTPClient *http.Client

	// Logger receives per-call debug logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics records upstream operation metrics when set.
	Metrics *instrumentation.Metrics
}

// Client issues authenticated HTTP calls to the TickTick API. It resolves
// transient failures locally: a 401 forces exactly one token refresh and one
// retry, a 429 backs off for the advertised duration up to a bound, and a
// timeout is retried once. Everything else propagates as a typed error.
type Client struct {
	baseURL           string
	httpClient        *http.Client
	tokens            TokenSource
	timeout           time.Duration
	rateLimitRetries  int
	retryAfterDefault time.Duration
	logger            *slog.Logger
	metrics           *instrumentation.Metrics
}

// NewClient creates a new TickTick API client using the given token source.
func NewClient(tokens TokenSource, cfg Config) *Client {
	c := &Client{
		baseURL:           cfg.BaseURL,
		httpClient:        cfg.HTTPClient,
		tokens:            tokens,
		timeout:           cfg.Timeout,
		rateLimitRetries:  cfg.RateLimitRetries,
		retryAfterDefault: cfg.RetryAfterDefault,
		logger:            cfg.Logger,
		metrics:           cfg.Metrics,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.rateLimitRetries <= 0 {
		c.rateLimitRetries = defaultRateLimitRetries
	}
	if c.retryAfterDefault <= 0 {
		c.retryAfterDefault = defaultRetryAfter
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// ListTasks lists tasks, optionally filtered by project ID. An empty
// projectID lists tasks across all projects.
func (c *Client) ListTasks(ctx context.Context, projectID string) ([]Task, error) {
	path := "/tasks"
	if projectID != "" {
		path = "/project/" + url.PathEscape(projectID) + "/tasks"
	}

	var tasks []Task
	if err := c.do(ctx, "list", http.MethodGet, path, nil, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask retrieves a specific task by ID.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	if err := c.do(ctx, "get", http.MethodGet, "/task/"+url.PathEscape(taskID), nil, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTask creates a new task and returns the upstream copy, which carries
// the assigned ID.
func (c *Client) CreateTask(ctx context.Context, task Task) (*Task, error) {
	var created Task
	if err := c.do(ctx, "create", http.MethodPost, "/task", nil, task, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateTask replaces an existing task with the given state.
func (c *Client) UpdateTask(ctx context.Context, task Task) (*Task, error) {
	if task.ID == "" {
		return nil, &ValidationError{Field: "id", Reason: "must not be empty"}
	}

	var updated Task
	if err := c.do(ctx, "update", http.MethodPut, "/task/"+url.PathEscape(task.ID), nil, task, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteTask deletes a task.
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.do(ctx, "delete", http.MethodDelete, "/task/"+url.PathEscape(taskID), nil, nil, nil)
}

// ListProjects lists all projects/lists.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.do(ctx, "list_projects", http.MethodGet, "/projects", nil, nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// SearchTasks searches for tasks matching the query.
func (c *Client) SearchTasks(ctx context.Context, query string) ([]Task, error) {
	params := url.Values{}
	params.Set("query", query)

	var tasks []Task
	if err := c.do(ctx, "search", http.MethodGet, "/task/search", params, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// callState tracks the retry budget for a single logical call: at most one
// refresh-retry transition, one timeout retry, and a bounded number of
// rate-limit retries.
type callState struct {
	refreshed   bool
	timedOut    bool
	rateLimited int
}

// errRetryAfterRefresh signals the retry loop to re-issue the request with
// the refreshed token.
var errRetryAfterRefresh = errors.New("retrying with refreshed token")

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultBackoffInitial

	st := &callState{}
	start := time.Now()

	// Budget: initial attempt + one refresh retry + one timeout retry +
	// the rate-limit retries. Per-cause caps inside attempt() turn the
	// final failure of each cause into a permanent error.
	maxTries := uint(c.rateLimitRetries + 3)

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.attempt(ctx, st, method, path, query, payload, out)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxTries))

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	if c.metrics != nil {
		c.metrics.RecordAPIOperation(ctx, op, status, time.Since(start))
	}
	if err != nil {
		c.logger.Debug("upstream call failed",
			slog.String("operation", op),
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
	return err
}

func (c *Client) attempt(ctx context.Context, st *callState, method, path string, query url.Values, payload []byte, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		// The token store surfaces its own typed errors; nothing
		// transient is left to retry at this level.
		return backoff.Permanent(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(callCtx, method, u, reader)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classifyTransportError(ctx, st, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.classifyTransportError(ctx, st, method, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if st.refreshed {
			return backoff.Permanent(&AuthError{Reason: "request rejected after token refresh"})
		}
		st.refreshed = true
		c.logger.Debug("received 401, forcing token refresh", slog.String("path", path))
		if _, err := c.tokens.Refresh(ctx); err != nil {
			return backoff.Permanent(err)
		}
		return errRetryAfterRefresh

	case resp.StatusCode == http.StatusTooManyRequests:
		st.rateLimited++
		wait := c.retryAfterWait(resp.Header)
		if st.rateLimited > c.rateLimitRetries {
			return backoff.Permanent(&RateLimitError{RetryAfter: wait, Attempts: st.rateLimited})
		}
		c.logger.Debug("rate limited by upstream",
			slog.String("path", path),
			slog.Int("attempt", st.rateLimited),
			slog.Duration("retry_after", wait))
		seconds := int(wait / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		return backoff.RetryAfter(seconds)

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return backoff.Permanent(&UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(data), maxErrorBodyBytes),
		})
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return backoff.Permanent(&ParseError{Err: err})
		}
	}
	return nil
}

// classifyTransportError maps transport-level failures onto the error
// taxonomy. Timeouts are retryable once; everything else is permanent.
func (c *Client) classifyTransportError(ctx context.Context, st *callState, method, path string, err error) error {
	if ctx.Err() != nil {
		// The caller's context expired or was cancelled; propagate that
		// rather than starting another attempt.
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return backoff.Permanent(&TimeoutError{Op: method + " " + path, Err: ctx.Err()})
		}
		return backoff.Permanent(ctx.Err())
	}

	if isTimeout(err) {
		terr := &TimeoutError{Op: method + " " + path, Err: err}
		if st.timedOut {
			return backoff.Permanent(terr)
		}
		st.timedOut = true
		return terr
	}

	return backoff.Permanent(&UpstreamError{Body: err.Error()})
}

func (c *Client) retryAfterWait(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return c.retryAfterDefault
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
