package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// persistedQueue is one queue's on-disk shape (spec.md §6.3).
type persistedQueue struct {
	ProjectDir  string  `json:"project_dir"`
	ProjectName string  `json:"project_name"`
	Pending     []*Task `json:"pending"`
	History     []*Task `json:"history"`
}

// persistedFile is the whole of queues.json.
type persistedFile struct {
	Version int                        `json:"version"`
	Queues  map[string]*persistedQueue `json:"queues"`
}

const persistedVersion = 1

func (m *Manager) queuesPath() string {
	return filepath.Join(m.dataDir, "queues.json")
}

// snapshotForPersist builds the on-disk representation under the
// manager's read lock.
func (m *Manager) snapshotForPersist() persistedFile {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := persistedFile{Version: persistedVersion, Queues: make(map[string]*persistedQueue, len(m.queues))}
	for name, q := range m.queues {
		pending, history, _ := q.snapshot()
		projectDir, projectName := q.project()
		out.Queues[name] = &persistedQueue{
			ProjectDir:  projectDir,
			ProjectName: projectName,
			Pending:     pending,
			History:     history,
		}
	}
	return out
}

// persistNow writes queues.json atomically (temp file + rename), per
// spec.md §6.3 and §7 (PersistenceError is logged and non-fatal; the
// next successful write heals state).
func (m *Manager) persistNow() error {
	data, err := json.MarshalIndent(m.snapshotForPersist(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal queues: %w", err)
	}

	if err := os.MkdirAll(m.dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(m.dataDir, "queues-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, m.queuesPath()); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// rehydrate loads queues.json at startup. Any task left `running` is
// forced back to `pending` (spec.md §4.4: a crash during a run is
// indistinguishable from a cancellation). Missing files are not an error.
func (m *Manager) rehydrate() error {
	data, err := os.ReadFile(m.queuesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read queues file: %w", err)
	}

	var pf persistedFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parse queues file: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for name, pq := range pf.Queues {
		q := newQueue(m.historyLimit)
		q.setProjectIfEmpty(pq.ProjectDir, pq.ProjectName)
		for _, t := range pq.Pending {
			if t.Status == StatusRunning {
				t.Status = StatusPending
				t.StartedAt = nil
			}
			q.enqueue(t)
		}
		q.history = append(q.history, pq.History...)
		m.queues[name] = q
	}
	return nil
}

// markDirty requests a debounced write. Bursts of changes coalesce
// into a single write roughly debounceWindow after the last change.
func (m *Manager) markDirty() {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	if m.persistTimer != nil {
		m.persistTimer.Stop()
	}
	m.persistTimer = time.AfterFunc(m.debounce, func() {
		if err := m.persistNow(); err != nil {
			m.log.WithError(err).Error("persisting queues.json failed")
		}
	})
}
