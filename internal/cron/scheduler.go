// Package cron implements the Cron Scheduler (spec.md §4.5): wall-clock
// schedules that synthesize catalog task descriptions into a named
// queue when they fire.
package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	robfigcron "github.com/robfig/cron/v3"

	"github.com/sessionbridge/orchestrator/internal/logging"
	"github.com/sessionbridge/orchestrator/internal/orcherr"
)

// QueueAdder is the subset of the Task Queue Manager the scheduler
// needs; queue.Manager.AddForProject satisfies it directly.
type QueueAdder interface {
	AddForProject(queueName, description, projectDir, projectName string, priority int) (string, error)
}

type entry struct {
	CronSchedule
	compiled robfigcron.Schedule
}

// Scheduler owns CronSchedule records and the single ticker goroutine
// that fires them. Schedule state is guarded by mu: the ticker
// goroutine writes it when firing, and Schedule, Disable and Remove
// write it directly from the caller's goroutine; there is no command
// channel between them.
// Grounded on the teacher's ticker-driven Scheduler.processLoop shape.
type Scheduler struct {
	mu        sync.Mutex
	schedules map[string]*entry
	catalog   *Catalog
	queue     QueueAdder
	ceiling   time.Duration
	log       *logging.Logger

	running bool
	stopCh  chan struct{}

	wake chan struct{}

	onFired func(scheduleID, projectName string)
}

// OnFired registers a callback invoked once per schedule firing, after
// its catalog tasks have been enqueued. Used to publish an ambient
// event-bus notification without this package importing internal/eventbus.
func (s *Scheduler) OnFired(fn func(scheduleID, projectName string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFired = fn
}

// New constructs a Scheduler. ceiling bounds how long the loop sleeps
// between wakeups even with no enabled schedules (default 60s).
func New(catalog *Catalog, queue QueueAdder, ceiling time.Duration, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.Default()
	}
	if ceiling <= 0 {
		ceiling = 60 * time.Second
	}
	return &Scheduler{
		schedules: make(map[string]*entry),
		catalog:   catalog,
		queue:     queue,
		ceiling:   ceiling,
		log:       log,
		wake:      make(chan struct{}, 1),
	}
}

// Schedule validates pattern and catalog names, computes next-run, and
// stores the schedule (spec.md §4.5).
func (s *Scheduler) Schedule(pattern string, taskNames []string, projectDir, projectName string) (string, error) {
	compiled, err := parsePattern(pattern)
	if err != nil {
		return "", err
	}
	if len(taskNames) == 0 {
		return "", fmt.Errorf("%w: at least one task name is required", orcherr.ErrUnknownTaskName)
	}
	for _, name := range taskNames {
		if _, ok := s.catalog.Resolve(name); !ok {
			return "", fmt.Errorf("%w: %s", orcherr.ErrUnknownTaskName, name)
		}
	}

	now := time.Now()
	e := &entry{
		CronSchedule: CronSchedule{
			ID:          uuid.NewString(),
			Pattern:     pattern,
			TaskNames:   append([]string{}, taskNames...),
			ProjectDir:  projectDir,
			ProjectName: projectName,
			NextRun:     compiled.Next(now),
			Enabled:     true,
		},
		compiled: compiled,
	}

	s.mu.Lock()
	s.schedules[e.ID] = e
	s.mu.Unlock()
	s.nudge()
	return e.ID, nil
}

// List returns a snapshot of every stored schedule.
func (s *Scheduler) List() []CronSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CronSchedule, 0, len(s.schedules))
	for _, e := range s.schedules {
		out = append(out, e.CronSchedule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Disable marks a schedule inactive without removing it.
func (s *Scheduler) Disable(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.schedules[id]
	if !ok {
		return fmt.Errorf("%w: %s", orcherr.ErrUnknownSchedule, id)
	}
	e.Enabled = false
	return nil
}

// Remove deletes a schedule entirely.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return fmt.Errorf("%w: %s", orcherr.ErrUnknownSchedule, id)
	}
	delete(s.schedules, id)
	return nil
}

// Tick fires every enabled schedule whose next-run is <= now, in
// schedule-id order (spec.md §5), enqueueing its catalog tasks into
// the project's cron-owned queue and advancing next-run. A missed
// firing window executes once; it is not back-filled (spec.md §4.5).
func (s *Scheduler) Tick(now time.Time) []CronSchedule {
	s.mu.Lock()
	ids := make([]string, 0, len(s.schedules))
	for id := range s.schedules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var due []*entry
	for _, id := range ids {
		e := s.schedules[id]
		if e.Enabled && !e.NextRun.After(now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	fired := make([]CronSchedule, 0, len(due))
	for _, e := range due {
		s.fire(e, now)
		fired = append(fired, e.CronSchedule)
	}
	return fired
}

func (s *Scheduler) fire(e *entry, now time.Time) {
	for _, name := range e.TaskNames {
		desc, ok := s.catalog.Resolve(name)
		if !ok {
			continue
		}
		if _, err := s.queue.AddForProject(QueueName(e.ProjectName), desc, e.ProjectDir, e.ProjectName, 0); err != nil {
			s.log.WithError(err).Warn("cron firing failed to enqueue task")
		}
	}

	s.mu.Lock()
	last := now
	e.LastRun = &last
	e.NextRun = e.compiled.Next(now)
	onFired := s.onFired
	s.mu.Unlock()

	if onFired != nil {
		onFired(e.ID, e.ProjectName)
	}
}

// nextWake returns the earliest next-run across enabled schedules, or
// the ceiling if none are enabled or it would be sooner.
func (s *Scheduler) nextWake(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	wait := s.ceiling
	for _, e := range s.schedules {
		if !e.Enabled {
			continue
		}
		if d := e.NextRun.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

func (s *Scheduler) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start runs the single cooperative scheduler loop synchronously until
// ctx is done or Stop is called; it returns only then. Callers run it
// on their own goroutine (e.g. via an errgroup) so a panic inside the
// loop is observable to whatever supervises that goroutine instead of
// escaping on a detached, untracked one — see cmd/orchestrator/main.go's
// supervise helper, which restarts Start after a recovered panic.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.loop(ctx, stopCh)
	return nil
}

// Stop halts a running scheduler loop. It does not block until the
// loop has exited; callers that need that should await the goroutine
// Start was run on (an errgroup's Wait does this).
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	s.mu.Unlock()
	close(stopCh)
}

func (s *Scheduler) loop(ctx context.Context, stopCh chan struct{}) {
	for {
		wait := s.nextWake(time.Now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stopCh:
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
		s.Tick(time.Now())
	}
}
