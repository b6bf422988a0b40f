package ticktick

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeTokens is an in-memory TokenSource. Refresh swaps in a fresh token.
type fakeTokens struct {
	mu         sync.Mutex
	token      string
	refreshes  int
	refreshErr error
}

func (f *fakeTokens) Token(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, nil
}

func (f *fakeTokens) Refresh(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	f.token = "fresh-token"
	return f.token, nil
}

func (f *fakeTokens) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) (*Client, *fakeTokens) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens := &fakeTokens{token: "stale-token"}
	cfg.BaseURL = srv.URL
	return NewClient(tokens, cfg), tokens
}

func TestClient_ListTasks(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/project/inbox/tasks" {
			t.Errorf("path = %q, want /project/inbox/tasks", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer stale-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		fmt.Fprint(w, `[{"id":"t1","title":"Buy milk","status":0}]`)
	}, Config{})

	tasks, err := client.ListTasks(context.Background(), "inbox")
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" || tasks[0].Title != "Buy milk" {
		t.Errorf("ListTasks() = %+v, want one task t1", tasks)
	}
}

func TestClient_RefreshOn401(t *testing.T) {
	client, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `[]`)
	}, Config{})

	if _, err := client.ListTasks(context.Background(), ""); err != nil {
		t.Fatalf("ListTasks() after refresh error = %v", err)
	}
	if got := tokens.refreshCount(); got != 1 {
		t.Errorf("refresh count = %d, want 1", got)
	}
}

func TestClient_AuthErrorWhenRefreshDoesNotHelp(t *testing.T) {
	client, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, Config{})

	_, err := client.ListTasks(context.Background(), "")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("ListTasks() error = %v, want *AuthError", err)
	}
	if got := tokens.refreshCount(); got != 1 {
		t.Errorf("refresh count = %d, want exactly 1", got)
	}
}

func TestClient_RefreshFailurePropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	wantErr := &AuthError{Reason: "refresh token rejected by upstream"}
	tokens := &fakeTokens{token: "stale-token", refreshErr: wantErr}
	client := NewClient(tokens, Config{BaseURL: srv.URL})

	_, err := client.ListTasks(context.Background(), "")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("ListTasks() error = %v, want *AuthError", err)
	}
	if authErr.Reason != wantErr.Reason {
		t.Errorf("AuthError.Reason = %q, want %q", authErr.Reason, wantErr.Reason)
	}
}

func TestClient_RateLimitRetried(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `[]`)
	}, Config{})

	if _, err := client.ListTasks(context.Background(), ""); err != nil {
		t.Fatalf("ListTasks() error = %v, want retry to succeed", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}

func TestClient_RateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}, Config{RateLimitRetries: 1})

	_, err := client.ListTasks(context.Background(), "")
	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("ListTasks() error = %v, want *RateLimitError", err)
	}
	if rlErr.Attempts != 2 {
		t.Errorf("RateLimitError.Attempts = %d, want 2", rlErr.Attempts)
	}
	if rlErr.RetryAfter != time.Second {
		t.Errorf("RateLimitError.RetryAfter = %v, want 1s", rlErr.RetryAfter)
	}
}

func TestClient_UpstreamError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"errorMessage":"boom"}`)
	}, Config{})

	_, err := client.ListTasks(context.Background(), "")
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("ListTasks() error = %v, want *UpstreamError", err)
	}
	if upErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", upErr.StatusCode)
	}
	if upErr.Body == "" {
		t.Error("UpstreamError.Body is empty, want response body")
	}
}

func TestClient_ParseError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `this is not json`)
	}, Config{})

	_, err := client.ListTasks(context.Background(), "")
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("ListTasks() error = %v, want *ParseError", err)
	}
}

func TestClient_TimeoutRetriedOnce(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(300 * time.Millisecond)
	}, Config{Timeout: 50 * time.Millisecond})

	_, err := client.ListTasks(context.Background(), "")
	var toErr *TimeoutError
	if !errors.As(err, &toErr) {
		t.Fatalf("ListTasks() error = %v, want *TimeoutError", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want initial attempt plus one retry", got)
	}
}

func TestClient_UpdateTask_RequiresID(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}, Config{})

	_, err := client.UpdateTask(context.Background(), Task{Title: "no id"})
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("UpdateTask() error = %v, want *ValidationError", err)
	}
	if valErr.Field != "id" {
		t.Errorf("ValidationError.Field = %q, want id", valErr.Field)
	}
	if calls.Load() != 0 {
		t.Error("UpdateTask() without ID should not reach the upstream")
	}
}

func TestClient_DeleteTask(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %q, want DELETE", r.Method)
		}
		if r.URL.Path != "/task/t9" {
			t.Errorf("path = %q, want /task/t9", r.URL.Path)
		}
	}, Config{})

	if err := client.DeleteTask(context.Background(), "t9"); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
}

func TestClient_SearchTasks(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "milk & eggs" {
			t.Errorf("query = %q, want raw query passed through", got)
		}
		fmt.Fprint(w, `[{"id":"t1","title":"Buy milk & eggs"}]`)
	}, Config{})

	tasks, err := client.SearchTasks(context.Background(), "milk & eggs")
	if err != nil {
		t.Fatalf("SearchTasks() error = %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("SearchTasks() returned %d tasks, want 1", len(tasks))
	}
}

func TestClient_CreateTask(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		fmt.Fprint(w, `{"id":"assigned","title":"New task","status":0}`)
	}, Config{})

	created, err := client.CreateTask(context.Background(), Task{Title: "New task"})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if created.ID != "assigned" {
		t.Errorf("created.ID = %q, want upstream-assigned ID", created.ID)
	}
}
