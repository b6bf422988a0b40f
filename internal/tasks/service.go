package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/teemow/ticktick-mcp/internal/cache"
	"github.com/teemow/ticktick-mcp/internal/logging"
	"github.com/teemow/ticktick-mcp/internal/ticktick"
)

// API is the upstream surface the service depends on. It is satisfied by
// *ticktick.Client and by fakes in tests.
type API interface {
	ListTasks(ctx context.Context, projectID string) ([]ticktick.Task, error)
	GetTask(ctx context.Context, taskID string) (*ticktick.Task, error)
	CreateTask(ctx context.Context, task ticktick.Task) (*ticktick.Task, error)
	UpdateTask(ctx context.Context, task ticktick.Task) (*ticktick.Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	ListProjects(ctx context.Context) ([]ticktick.Project, error)
	SearchTasks(ctx context.Context, query string) ([]ticktick.Task, error)
}

// Options configures a Service. Zero TTLs fall back to the defaults.
type Options struct {
	TaskTTL    time.Duration
	ProjectTTL time.Duration
	SearchTTL  time.Duration
	Logger     *slog.Logger
}

// Service mediates between the tool layer and the upstream API, caching
// read results and invalidating them when a mutation succeeds.
type Service struct {
	api        API
	cache      *cache.Cache
	taskTTL    time.Duration
	projectTTL time.Duration
	searchTTL  time.Duration
	logger     *slog.Logger
}

// NewService creates a task service backed by the given API and cache.
func NewService(api API, c *cache.Cache, opts Options) *Service {
	if opts.TaskTTL <= 0 {
		opts.TaskTTL = DefaultTaskTTL
	}
	if opts.ProjectTTL <= 0 {
		opts.ProjectTTL = DefaultProjectTTL
	}
	if opts.SearchTTL <= 0 {
		opts.SearchTTL = DefaultSearchTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if c == nil {
		c = cache.New()
	}
	return &Service{
		api:        api,
		cache:      c,
		taskTTL:    opts.TaskTTL,
		projectTTL: opts.ProjectTTL,
		searchTTL:  opts.SearchTTL,
		logger:     opts.Logger,
	}
}

// GetTasks returns the tasks of a project, or all tasks when projectID is
// empty. Results are cached; concurrent callers for the same key share a
// single upstream fetch.
func (s *Service) GetTasks(ctx context.Context, projectID string) ([]ticktick.Task, error) {
	part := projectID
	if part == "" {
		part = "all"
	}
	key := cache.Key(NamespaceTasks, part)

	v, err := s.cache.GetOrCompute(ctx, key, s.taskTTL, func(ctx context.Context) (any, error) {
		return s.api.ListTasks(ctx, projectID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]ticktick.Task), nil
}

// GetTask fetches a single task by ID. Single-task reads bypass the cache
// so that callers preparing a mutation always see current state.
func (s *Service) GetTask(ctx context.Context, taskID string) (*ticktick.Task, error) {
	if taskID == "" {
		return nil, &ticktick.ValidationError{Field: "task_id", Reason: "must not be empty"}
	}
	return s.api.GetTask(ctx, taskID)
}

// GetProjects returns all projects, served from cache when fresh.
func (s *Service) GetProjects(ctx context.Context) ([]ticktick.Project, error) {
	key := cache.Key(NamespaceProjects, "all")

	v, err := s.cache.GetOrCompute(ctx, key, s.projectTTL, func(ctx context.Context) (any, error) {
		return s.api.ListProjects(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]ticktick.Project), nil
}

// SearchTasks returns tasks matching the query. The query must not be
// empty; results are cached per query string.
func (s *Service) SearchTasks(ctx context.Context, query string) ([]ticktick.Task, error) {
	if query == "" {
		return nil, &ticktick.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	key := cache.Key(NamespaceSearch, query)

	v, err := s.cache.GetOrCompute(ctx, key, s.searchTTL, func(ctx context.Context) (any, error) {
		return s.api.SearchTasks(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return v.([]ticktick.Task), nil
}

// CreateTask creates a new task. The title is required. The task caches
// are invalidated before the call returns so a follow-up read sees the
// new task.
func (s *Service) CreateTask(ctx context.Context, input CreateTaskInput) (*ticktick.Task, error) {
	if input.Title == "" {
		return nil, &ticktick.ValidationError{Field: "title", Reason: "must not be empty"}
	}

	created, err := s.api.CreateTask(ctx, input.task())
	if err != nil {
		return nil, err
	}

	s.invalidateTasks("create_task")
	return created, nil
}

// UpdateTask applies partial changes to an existing task using
// read-modify-write: the current task is fetched, the set fields are
// merged, and the merged task is written back.
func (s *Service) UpdateTask(ctx context.Context, taskID string, input UpdateTaskInput) (*ticktick.Task, error) {
	if taskID == "" {
		return nil, &ticktick.ValidationError{Field: "task_id", Reason: "must not be empty"}
	}
	if input.empty() {
		return nil, &ticktick.ValidationError{Field: "input", Reason: "at least one field must be set"}
	}

	existing, err := s.api.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	input.apply(existing)

	updated, err := s.api.UpdateTask(ctx, *existing)
	if err != nil {
		return nil, err
	}

	s.invalidateTasks("update_task")
	return updated, nil
}

// CompleteTask marks a task as completed.
func (s *Service) CompleteTask(ctx context.Context, taskID string) (*ticktick.Task, error) {
	if taskID == "" {
		return nil, &ticktick.ValidationError{Field: "task_id", Reason: "must not be empty"}
	}

	existing, err := s.api.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if existing.Completed() {
		return existing, nil
	}

	existing.Status = ticktick.StatusCompleted

	updated, err := s.api.UpdateTask(ctx, *existing)
	if err != nil {
		return nil, err
	}

	s.invalidateTasks("complete_task")
	return updated, nil
}

// DeleteTask deletes a task by ID.
func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	if taskID == "" {
		return &ticktick.ValidationError{Field: "task_id", Reason: "must not be empty"}
	}

	if err := s.api.DeleteTask(ctx, taskID); err != nil {
		return err
	}

	s.invalidateTasks("delete_task")
	return nil
}

// InvalidateAll drops all cached data. Used when credentials change.
func (s *Service) InvalidateAll() {
	s.cache.Invalidate(NamespaceTasks)
	s.cache.Invalidate(NamespaceSearch)
	s.cache.Invalidate(NamespaceProjects)
}

// invalidateTasks drops task-derived cache entries after a mutation.
// Search results are derived from tasks and go stale with them.
func (s *Service) invalidateTasks(op string) {
	s.cache.Invalidate(NamespaceTasks)
	s.cache.Invalidate(NamespaceSearch)
	s.logger.Debug("invalidated task caches", logging.Operation(op))
}
