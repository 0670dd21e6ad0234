package cron

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu    sync.Mutex
	added []string
}

func (f *fakeQueue) AddForProject(queueName, description, projectDir, projectName string, priority int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, queueName+":"+description)
	return "task-id", nil
}

func TestScheduleAndTickFires(t *testing.T) {
	catalog, err := LoadCatalog("")
	require.NoError(t, err)
	q := &fakeQueue{}
	s := New(catalog, q, time.Minute, nil)

	id, err := s.Schedule("*/1 * * * *", []string{TaskRunTests}, "/tmp/web", "web")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	schedules := s.List()
	require.Len(t, schedules, 1)
	before := schedules[0].NextRun

	fired := s.Tick(before.Add(time.Second))
	require.Len(t, fired, 1)
	assert.NotNil(t, fired[0].LastRun)
	assert.True(t, fired[0].NextRun.After(before))

	assert.Contains(t, q.added, QueueName("web")+":"+defaultDescriptions[TaskRunTests])
}

func TestRejectsZeroStep(t *testing.T) {
	catalog, err := LoadCatalog("")
	require.NoError(t, err)
	s := New(catalog, &fakeQueue{}, time.Minute, nil)

	_, err = s.Schedule("*/0 * * * *", []string{TaskRunTests}, "/tmp/web", "web")
	assert.Error(t, err)
}

func TestUnknownTaskNameRejected(t *testing.T) {
	catalog, err := LoadCatalog("")
	require.NoError(t, err)
	s := New(catalog, &fakeQueue{}, time.Minute, nil)

	_, err = s.Schedule("*/1 * * * *", []string{"not_a_real_task"}, "/tmp/web", "web")
	assert.Error(t, err)
}

func TestDisableStopsFiring(t *testing.T) {
	catalog, err := LoadCatalog("")
	require.NoError(t, err)
	q := &fakeQueue{}
	s := New(catalog, q, time.Minute, nil)

	id, err := s.Schedule("*/1 * * * *", []string{TaskRunTests}, "/tmp/web", "web")
	require.NoError(t, err)
	require.NoError(t, s.Disable(id))

	fired := s.Tick(time.Now().Add(time.Hour))
	assert.Empty(t, fired)
}
