// Package queue implements the Task Queue Manager (spec.md §4.4): named
// FIFO/priority queues of free-form task descriptions, driven
// iteratively through a session, persisted to JSON.
package queue

import "time"

// Status is a QueuedTask's lifecycle state (spec.md §3).
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Task is one unit of work in a named queue.
type Task struct {
	ID          string     `json:"id"`
	Queue       string     `json:"queue"`
	Description string     `json:"description"`
	ProjectDir  string     `json:"project_dir"`
	CreatedAt   time.Time  `json:"created_at"`
	Status      Status     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	Priority    int        `json:"priority"`

	index int // heap position; unexported, never marshaled
}

func (t *Task) clone() *Task {
	c := *t
	c.index = 0
	return &c
}
