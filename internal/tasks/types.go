package tasks

import (
	"time"

	"github.com/teemow/ticktick-mcp/internal/ticktick"
)

// Cache namespaces used by the service. Task mutations invalidate both the
// task and search namespaces since search results are derived from tasks.
const (
	NamespaceTasks    = "tasks"
	NamespaceProjects = "projects"
	NamespaceSearch   = "search"
)

// Default cache lifetimes. Task listings change frequently, project
// metadata rarely, and search results sit in between but are cheap to
// recompute.
const (
	DefaultTaskTTL    = 2 * time.Minute
	DefaultProjectTTL = 10 * time.Minute
	DefaultSearchTTL  = time.Minute
)

// CreateTaskInput holds the fields for creating a new task.
// Title is required; all other fields are optional.
type CreateTaskInput struct {
	Title     string
	Content   string
	ProjectID string
	StartDate *time.Time
	DueDate   *time.Time
	Priority  int
	Tags      []string
}

// UpdateTaskInput holds the fields to change on an existing task.
// Zero-value fields are left unchanged; Priority uses a pointer since
// zero is a valid priority value.
type UpdateTaskInput struct {
	Title     string
	Content   string
	ProjectID string
	StartDate *time.Time
	DueDate   *time.Time
	Priority  *int
	Tags      []string
}

// task builds the upstream task payload for a create operation.
func (in CreateTaskInput) task() ticktick.Task {
	return ticktick.Task{
		Title:     in.Title,
		Content:   in.Content,
		ProjectID: in.ProjectID,
		StartDate: in.StartDate,
		DueDate:   in.DueDate,
		Priority:  in.Priority,
		Tags:      in.Tags,
		Status:    ticktick.StatusActive,
	}
}

// apply merges the input into an existing task, leaving unset fields alone.
func (in UpdateTaskInput) apply(existing *ticktick.Task) {
	if in.Title != "" {
		existing.Title = in.Title
	}
	if in.Content != "" {
		existing.Content = in.Content
	}
	if in.ProjectID != "" {
		existing.ProjectID = in.ProjectID
	}
	if in.StartDate != nil {
		existing.StartDate = in.StartDate
	}
	if in.DueDate != nil {
		existing.DueDate = in.DueDate
	}
	if in.Priority != nil {
		existing.Priority = *in.Priority
	}
	if in.Tags != nil {
		existing.Tags = in.Tags
	}
}

// empty reports whether the input would change nothing.
func (in UpdateTaskInput) empty() bool {
	return in.Title == "" &&
		in.Content == "" &&
		in.ProjectID == "" &&
		in.StartDate == nil &&
		in.DueDate == nil &&
		in.Priority == nil &&
		in.Tags == nil
}
