package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionbridge/orchestrator/internal/config"
	"github.com/sessionbridge/orchestrator/internal/orcherr"
)

type fakeRunner struct {
	mu      sync.Mutex
	order   []string
	hang    bool
	failOn  string
}

func (f *fakeRunner) EnsureSession(ctx context.Context, projectDir, projectName string) (string, error) {
	return "sess-fake", nil
}

func (f *fakeRunner) Execute(ctx context.Context, sessionID, text string, timeout time.Duration) (string, error) {
	f.mu.Lock()
	f.order = append(f.order, text)
	f.mu.Unlock()

	if f.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.failOn != "" && text == f.failOn {
		return "", fmt.Errorf("boom")
	}
	return "ok: " + text, nil
}

type fakeReporter struct {
	mu    sync.Mutex
	lines []string
}

func (r *fakeReporter) Report(queue, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func newTestManager(t *testing.T, runner SessionRunner, reporter ProgressReporter) *Manager {
	cfg := config.QueueConfig{
		DataDir:        t.TempDir(),
		HistoryLimit:   100,
		DefaultRetries: 0,
		TaskTimeout:    time.Second,
		DebounceWindow: 10 * time.Millisecond,
	}
	m, err := New(cfg, runner, reporter, nil)
	require.NoError(t, err)
	return m
}

func TestQueueAddAndRunOrdersTasks(t *testing.T) {
	runner := &fakeRunner{}
	reporter := &fakeReporter{}
	m := newTestManager(t, runner, reporter)

	_, err := m.Add("feat", "do A", "/tmp/web", 0)
	require.NoError(t, err)
	_, err = m.Add("feat", "do B", "/tmp/web", 0)
	require.NoError(t, err)

	require.NoError(t, m.Run(context.Background(), "feat"))

	assert.Equal(t, []string{"do A", "do B"}, runner.order)

	summaries, err := m.Status("feat")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 0, summaries[0].Pending)
	assert.Len(t, summaries[0].History, 2)
	for _, h := range summaries[0].History {
		assert.Equal(t, StatusCompleted, h.Status)
	}
}

func TestQueueFailureStopsRun(t *testing.T) {
	runner := &fakeRunner{failOn: "boom task"}
	reporter := &fakeReporter{}
	m := newTestManager(t, runner, reporter)

	_, err := m.Add("q1", "boom task", "/tmp/web", 0)
	require.NoError(t, err)
	_, err = m.Add("q1", "never reached", "/tmp/web", 0)
	require.NoError(t, err)

	err = m.Run(context.Background(), "q1")
	assert.Error(t, err)

	summaries, err := m.Status("q1")
	require.NoError(t, err)
	require.Len(t, summaries[0].History, 1)
	assert.Equal(t, StatusFailed, summaries[0].History[0].Status)
	assert.Equal(t, 1, summaries[0].Pending)
}

func TestOnlyOneRunPerQueue(t *testing.T) {
	runner := &fakeRunner{hang: true}
	reporter := &fakeReporter{}
	m := newTestManager(t, runner, reporter)

	_, err := m.Add("busy", "hang", "/tmp/web", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx, "busy")
	time.Sleep(50 * time.Millisecond)

	err = m.Run(context.Background(), "busy")
	assert.ErrorIs(t, err, orcherr.ErrQueueBusy)
	cancel()
}
