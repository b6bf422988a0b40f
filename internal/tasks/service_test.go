package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/teemow/ticktick-mcp/internal/cache"
	"github.com/teemow/ticktick-mcp/internal/ticktick"
)

// fakeAPI records upstream calls and serves canned responses.
type fakeAPI struct {
	mu    sync.Mutex
	tasks map[string]ticktick.Task

	listCalls   atomic.Int64
	getCalls    atomic.Int64
	searchCalls atomic.Int64

	listErr error
	block   chan struct{} // when set, ListTasks waits until closed
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{tasks: make(map[string]ticktick.Task)}
}

func (f *fakeAPI) ListTasks(ctx context.Context, projectID string) ([]ticktick.Task, error) {
	f.listCalls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ticktick.Task
	for _, t := range f.tasks {
		if projectID == "" || t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeAPI) GetTask(ctx context.Context, taskID string) (*ticktick.Task, error) {
	f.getCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, &ticktick.UpstreamError{StatusCode: 404}
	}
	return &t, nil
}

func (f *fakeAPI) CreateTask(ctx context.Context, task ticktick.Task) (*ticktick.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task.ID = "task-" + task.Title
	f.tasks[task.ID] = task
	return &task, nil
}

func (f *fakeAPI) UpdateTask(ctx context.Context, task ticktick.Task) (*ticktick.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[task.ID]; !ok {
		return nil, &ticktick.UpstreamError{StatusCode: 404}
	}
	f.tasks[task.ID] = task
	return &task, nil
}

func (f *fakeAPI) DeleteTask(ctx context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, taskID)
	return nil
}

func (f *fakeAPI) ListProjects(ctx context.Context) ([]ticktick.Project, error) {
	return []ticktick.Project{{ID: "p1", Name: "Inbox"}}, nil
}

func (f *fakeAPI) SearchTasks(ctx context.Context, query string) ([]ticktick.Task, error) {
	f.searchCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ticktick.Task
	for _, t := range f.tasks {
		if t.Title == query {
			out = append(out, t)
		}
	}
	return out, nil
}

func newTestService(api API) *Service {
	return NewService(api, cache.New(), Options{})
}

func TestGetTasks_CachesResults(t *testing.T) {
	api := newFakeAPI()
	api.tasks["t1"] = ticktick.Task{ID: "t1", Title: "one"}
	svc := newTestService(api)
	ctx := context.Background()

	first, err := svc.GetTasks(ctx, "")
	if err != nil {
		t.Fatalf("GetTasks failed: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 task, got %d", len(first))
	}

	if _, err := svc.GetTasks(ctx, ""); err != nil {
		t.Fatalf("GetTasks failed: %v", err)
	}

	if got := api.listCalls.Load(); got != 1 {
		t.Errorf("expected 1 upstream list call, got %d", got)
	}
}

func TestGetTasks_PerProjectKeys(t *testing.T) {
	api := newFakeAPI()
	api.tasks["t1"] = ticktick.Task{ID: "t1", Title: "one", ProjectID: "p1"}
	api.tasks["t2"] = ticktick.Task{ID: "t2", Title: "two", ProjectID: "p2"}
	svc := newTestService(api)
	ctx := context.Background()

	p1, err := svc.GetTasks(ctx, "p1")
	if err != nil {
		t.Fatalf("GetTasks(p1) failed: %v", err)
	}
	p2, err := svc.GetTasks(ctx, "p2")
	if err != nil {
		t.Fatalf("GetTasks(p2) failed: %v", err)
	}

	if len(p1) != 1 || p1[0].ID != "t1" {
		t.Errorf("unexpected p1 tasks: %+v", p1)
	}
	if len(p2) != 1 || p2[0].ID != "t2" {
		t.Errorf("unexpected p2 tasks: %+v", p2)
	}
	if got := api.listCalls.Load(); got != 2 {
		t.Errorf("expected 2 upstream list calls, got %d", got)
	}
}

func TestGetTasks_ErrorsNotCached(t *testing.T) {
	api := newFakeAPI()
	api.listErr = errors.New("upstream down")
	svc := newTestService(api)
	ctx := context.Background()

	if _, err := svc.GetTasks(ctx, ""); err == nil {
		t.Fatal("expected error from GetTasks")
	}

	api.listErr = nil
	if _, err := svc.GetTasks(ctx, ""); err != nil {
		t.Fatalf("expected recovery after upstream error, got %v", err)
	}
	if got := api.listCalls.Load(); got != 2 {
		t.Errorf("expected 2 upstream list calls, got %d", got)
	}
}

func TestGetTasks_SingleFlight(t *testing.T) {
	api := newFakeAPI()
	api.block = make(chan struct{})
	svc := newTestService(api)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.GetTasks(ctx, "")
		}()
	}

	// Let the goroutines pile up on the in-flight fetch, then release it.
	close(api.block)
	wg.Wait()

	if got := api.listCalls.Load(); got != 1 {
		t.Errorf("expected a single shared upstream fetch, got %d", got)
	}
}

func TestCreateTask_RequiresTitle(t *testing.T) {
	api := newFakeAPI()
	svc := newTestService(api)

	_, err := svc.CreateTask(context.Background(), CreateTaskInput{})

	var verr *ticktick.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "title" {
		t.Errorf("expected field 'title', got %q", verr.Field)
	}
}

func TestCreateTask_InvalidatesTaskCache(t *testing.T) {
	api := newFakeAPI()
	svc := newTestService(api)
	ctx := context.Background()

	if _, err := svc.GetTasks(ctx, ""); err != nil {
		t.Fatalf("GetTasks failed: %v", err)
	}

	created, err := svc.CreateTask(ctx, CreateTaskInput{Title: "new task"})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	after, err := svc.GetTasks(ctx, "")
	if err != nil {
		t.Fatalf("GetTasks failed: %v", err)
	}
	if len(after) != 1 || after[0].ID != created.ID {
		t.Errorf("expected fresh listing to contain created task, got %+v", after)
	}
	if got := api.listCalls.Load(); got != 2 {
		t.Errorf("expected cache miss after create, got %d list calls", got)
	}
}

func TestUpdateTask_ReadModifyWrite(t *testing.T) {
	api := newFakeAPI()
	api.tasks["t1"] = ticktick.Task{ID: "t1", Title: "old", Content: "keep me", Priority: 3}
	svc := newTestService(api)

	updated, err := svc.UpdateTask(context.Background(), "t1", UpdateTaskInput{Title: "new"})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}

	if updated.Title != "new" {
		t.Errorf("expected updated title 'new', got %q", updated.Title)
	}
	if updated.Content != "keep me" {
		t.Errorf("expected content preserved, got %q", updated.Content)
	}
	if updated.Priority != 3 {
		t.Errorf("expected priority preserved, got %d", updated.Priority)
	}
}

func TestUpdateTask_PriorityZero(t *testing.T) {
	api := newFakeAPI()
	api.tasks["t1"] = ticktick.Task{ID: "t1", Title: "task", Priority: 5}
	svc := newTestService(api)

	zero := 0
	updated, err := svc.UpdateTask(context.Background(), "t1", UpdateTaskInput{Priority: &zero})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if updated.Priority != 0 {
		t.Errorf("expected priority 0, got %d", updated.Priority)
	}
}

func TestUpdateTask_Validation(t *testing.T) {
	svc := newTestService(newFakeAPI())
	ctx := context.Background()

	var verr *ticktick.ValidationError

	_, err := svc.UpdateTask(ctx, "", UpdateTaskInput{Title: "x"})
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for empty ID, got %v", err)
	}

	_, err = svc.UpdateTask(ctx, "t1", UpdateTaskInput{})
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError for empty input, got %v", err)
	}
}

func TestCompleteTask_SetsCompletedStatus(t *testing.T) {
	api := newFakeAPI()
	api.tasks["t1"] = ticktick.Task{ID: "t1", Title: "task", Status: ticktick.StatusActive}
	svc := newTestService(api)

	completed, err := svc.CompleteTask(context.Background(), "t1")
	if err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	if !completed.Completed() {
		t.Errorf("expected task to be completed, status %d", completed.Status)
	}
}

func TestCompleteTask_AlreadyCompleted(t *testing.T) {
	api := newFakeAPI()
	api.tasks["t1"] = ticktick.Task{ID: "t1", Title: "task", Status: ticktick.StatusCompleted}
	svc := newTestService(api)
	ctx := context.Background()

	// Warm the cache, then complete an already-completed task.
	if _, err := svc.GetTasks(ctx, ""); err != nil {
		t.Fatalf("GetTasks failed: %v", err)
	}

	completed, err := svc.CompleteTask(ctx, "t1")
	if err != nil {
		t.Fatalf("CompleteTask failed: %v", err)
	}
	if !completed.Completed() {
		t.Error("expected task to remain completed")
	}

	// No mutation happened, so the cache should still be warm.
	if _, err := svc.GetTasks(ctx, ""); err != nil {
		t.Fatalf("GetTasks failed: %v", err)
	}
	if got := api.listCalls.Load(); got != 1 {
		t.Errorf("expected cache to survive no-op completion, got %d list calls", got)
	}
}

func TestDeleteTask_InvalidatesSearchCache(t *testing.T) {
	api := newFakeAPI()
	api.tasks["t1"] = ticktick.Task{ID: "t1", Title: "findme"}
	svc := newTestService(api)
	ctx := context.Background()

	results, err := svc.SearchTasks(ctx, "findme")
	if err != nil {
		t.Fatalf("SearchTasks failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 search result, got %d", len(results))
	}

	if err := svc.DeleteTask(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}

	results, err = svc.SearchTasks(ctx, "findme")
	if err != nil {
		t.Fatalf("SearchTasks failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected deleted task gone from search results, got %+v", results)
	}
	if got := api.searchCalls.Load(); got != 2 {
		t.Errorf("expected search cache miss after delete, got %d calls", got)
	}
}

func TestSearchTasks_RequiresQuery(t *testing.T) {
	svc := newTestService(newFakeAPI())

	_, err := svc.SearchTasks(context.Background(), "")

	var verr *ticktick.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestGetProjects_Cached(t *testing.T) {
	api := newFakeAPI()
	svc := newTestService(api)
	ctx := context.Background()

	projects, err := svc.GetProjects(ctx)
	if err != nil {
		t.Fatalf("GetProjects failed: %v", err)
	}
	if len(projects) != 1 || projects[0].Name != "Inbox" {
		t.Errorf("unexpected projects: %+v", projects)
	}
}

func TestGetTask_RequiresID(t *testing.T) {
	svc := newTestService(newFakeAPI())

	_, err := svc.GetTask(context.Background(), "")

	var verr *ticktick.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
