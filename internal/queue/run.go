package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sessionbridge/orchestrator/internal/orcherr"
	"github.com/sessionbridge/orchestrator/internal/tracing"
)

// Run drives the named queue's pending tasks through a session, one
// at a time, stopping on the first failure unless retries remain
// (spec.md §4.4's queue-run algorithm). It blocks for the duration of
// the run; callers that want it to run in the background should
// invoke it from their own goroutine (the Command Router does, for
// `@@queue <name>`).
func (m *Manager) Run(ctx context.Context, queueName string) error {
	ctx, span := tracing.Tracer().Start(ctx, "queue.Run")
	defer span.End()

	q, ok := m.queue(queueName, false)
	if !ok {
		return fmt.Errorf("%w: %s", orcherr.ErrUnknownQueue, queueName)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !q.tryLockRun(cancel) {
		return fmt.Errorf("%w: %s already running", orcherr.ErrQueueBusy, queueName)
	}
	defer q.unlockRun()

	projectDir, projectName := q.project()
	sessionID, err := m.runner.EnsureSession(runCtx, projectDir, projectName)
	if err != nil {
		return err
	}

	for {
		select {
		case <-runCtx.Done():
			return runCtx.Err()
		default:
		}

		t := q.dequeue()
		if t == nil {
			return nil
		}

		t.Status = StatusRunning
		now := time.Now()
		t.StartedAt = &now
		m.markDirty()

		timeout := m.taskTimeout
		if timeout <= 0 {
			timeout = 10 * time.Minute
		}
		taskCtx, taskCancel := context.WithTimeout(runCtx, timeout)
		result, execErr := m.runner.Execute(taskCtx, sessionID, t.Description, timeout)
		taskCancel()

		completed := time.Now()
		t.CompletedAt = &completed

		if execErr != nil {
			if runCtx.Err() != nil {
				t.Status = StatusCancelled
				t.Error = "cancelled"
				q.recordHistory(t)
				m.markDirty()
				m.report(queueName, fmt.Sprintf("task %s cancelled: %s", t.ID, t.Description))
				return runCtx.Err()
			}

			if t.RetryCount < m.defaultRetries {
				t.RetryCount++
				t.Status = StatusPending
				t.StartedAt = nil
				t.CompletedAt = nil
				t.Error = ""
				q.requeueFront(t)
				m.markDirty()
				m.report(queueName, fmt.Sprintf("task %s failed (retry %d/%d): %s", t.ID, t.RetryCount, m.defaultRetries, t.Description))
				continue
			}

			t.Status = StatusFailed
			t.Error = execErr.Error()
			q.recordHistory(t)
			m.markDirty()
			m.report(queueName, fmt.Sprintf("task %s failed: %s (%s)", t.ID, t.Description, t.Error))
			if errors.Is(execErr, context.DeadlineExceeded) {
				return fmt.Errorf("%w: task %s: %v", orcherr.ErrTaskTimeout, t.ID, execErr)
			}
			return fmt.Errorf("task %s: %w", t.ID, execErr)
		}

		t.Status = StatusCompleted
		t.Result = result
		q.recordHistory(t)
		m.markDirty()
		m.report(queueName, fmt.Sprintf("task %s completed: %s", t.ID, t.Description))
	}
}

func (m *Manager) report(queueName, line string) {
	if m.reporter != nil {
		m.reporter.Report(queueName, line)
	}
}
