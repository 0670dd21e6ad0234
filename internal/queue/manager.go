package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sessionbridge/orchestrator/internal/config"
	"github.com/sessionbridge/orchestrator/internal/logging"
	"github.com/sessionbridge/orchestrator/internal/orcherr"
)

// SessionRunner is the subset of the Session Registry the queue
// manager needs in order to drive tasks through a session, kept as an
// interface so this package never imports the registry (spec.md §3:
// "cross-references are by value, not by pointer").
type SessionRunner interface {
	EnsureSession(ctx context.Context, projectDir, projectName string) (sessionID string, err error)
	Execute(ctx context.Context, sessionID string, text string, timeout time.Duration) (result string, err error)
}

// ProgressReporter forwards a one-line progress update to the chat
// transport (spec.md §4.4 step 3: "emit a progress line to the channel").
type ProgressReporter interface {
	Report(queueName string, line string)
}

// Manager implements the Task Queue Manager (spec.md §4.4).
type Manager struct {
	mu     sync.RWMutex
	queues map[string]*Queue

	dataDir        string
	historyLimit   int
	defaultRetries int
	taskTimeout    time.Duration
	debounce       time.Duration

	persistMu    sync.Mutex
	persistTimer *time.Timer

	runner   SessionRunner
	reporter ProgressReporter
	log      *logging.Logger
}

// New constructs a Manager and rehydrates queues.json if present.
func New(cfg config.QueueConfig, runner SessionRunner, reporter ProgressReporter, log *logging.Logger) (*Manager, error) {
	if log == nil {
		log = logging.Default()
	}
	m := &Manager{
		queues:         make(map[string]*Queue),
		dataDir:        cfg.DataDir,
		historyLimit:   cfg.HistoryLimit,
		defaultRetries: cfg.DefaultRetries,
		taskTimeout:    cfg.TaskTimeout,
		debounce:       cfg.DebounceWindow,
		runner:         runner,
		reporter:       reporter,
		log:            log,
	}
	if err := m.rehydrate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) queue(name string, createIfMissing bool) (*Queue, bool) {
	m.mu.RLock()
	q, ok := m.queues[name]
	m.mu.RUnlock()
	if ok || !createIfMissing {
		return q, ok
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[name]; ok {
		return q, true
	}
	q = newQueue(m.historyLimit)
	m.queues[name] = q
	return q, true
}

// Add enqueues a task description in the named queue, creating the
// queue if it does not exist. The project of a queue is fixed by its
// first added task (spec.md §4.4 step 2: "a session for the queue's
// target project").
func (m *Manager) Add(queueName, description, projectDir string, priority int) (string, error) {
	return m.AddForProject(queueName, description, projectDir, "", priority)
}

// AddForProject is Add with an explicit project name, used when
// creating a queue for the first time (the Command Router and Cron
// Scheduler both know the project name at enqueue time).
func (m *Manager) AddForProject(queueName, description, projectDir, projectName string, priority int) (string, error) {
	if description == "" {
		return "", fmt.Errorf("%w: task description must not be empty", orcherr.ErrInvalidTask)
	}
	q, _ := m.queue(queueName, true)
	q.setProjectIfEmpty(projectDir, projectName)
	t := &Task{
		ID:          uuid.NewString(),
		Queue:       queueName,
		Description: description,
		ProjectDir:  projectDir,
		CreatedAt:   time.Now(),
		Status:      StatusPending,
		Priority:    priority,
	}
	q.enqueue(t)
	m.markDirty()
	return t.ID, nil
}

// Summary is the status view returned by Status.
type Summary struct {
	Queue   string
	Pending int
	Running bool
	History []*Task
}

// Status returns a summary for one queue, or all queues when name is empty.
func (m *Manager) Status(name string) ([]Summary, error) {
	if name != "" {
		q, ok := m.queue(name, false)
		if !ok {
			return nil, fmt.Errorf("%w: %s", orcherr.ErrUnknownQueue, name)
		}
		return []Summary{m.summarize(name, q)}, nil
	}

	m.mu.RLock()
	names := make([]string, 0, len(m.queues))
	for n := range m.queues {
		names = append(names, n)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(names))
	for _, n := range names {
		q, _ := m.queue(n, false)
		out = append(out, m.summarize(n, q))
	}
	return out, nil
}

func (m *Manager) summarize(name string, q *Queue) Summary {
	pending, history, running := q.snapshot()
	return Summary{Queue: name, Pending: len(pending), Running: running, History: history}
}

// Clear empties the named queue's pending list.
func (m *Manager) Clear(name string) error {
	q, ok := m.queue(name, false)
	if !ok {
		return fmt.Errorf("%w: %s", orcherr.ErrUnknownQueue, name)
	}
	q.clear()
	m.markDirty()
	return nil
}

// Cancel requests cancellation of the queue's in-flight run, if any.
func (m *Manager) Cancel(name string) error {
	q, ok := m.queue(name, false)
	if !ok {
		return fmt.Errorf("%w: %s", orcherr.ErrUnknownQueue, name)
	}
	if !q.cancel() {
		return fmt.Errorf("%w: %s is not running", orcherr.ErrQueueBusy, name)
	}
	return nil
}
