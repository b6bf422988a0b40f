package ticktick

import "time"

// Task status values as used by the TickTick API.
const (
	StatusActive    = 0
	StatusCompleted = 2
)

// Task represents a TickTick task. The upstream service is authoritative;
// local copies are cache entries only.
type Task struct {
	ID        string     `json:"id,omitempty"`
	Title     string     `json:"title"`
	Content   string     `json:"content,omitempty"`
	ProjectID string     `json:"projectId,omitempty"`
	StartDate *time.Time `json:"startDate,omitempty"`
	DueDate   *time.Time `json:"dueDate,omitempty"`
	Status    int        `json:"status,omitempty"`
	Priority  int        `json:"priority,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
}

// Completed reports whether the task is marked complete upstream.
func (t Task) Completed() bool {
	return t.Status == StatusCompleted
}

// Project represents a TickTick project/list.
type Project struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}
