package queue

import (
	"container/heap"
	"sync"
)

// Queue is one named ordered sequence of pending tasks plus a bounded
// history of finished ones (spec.md §3). At most one run may be in
// flight per queue (spec.md §5, §8).
type Queue struct {
	mu      sync.Mutex
	pending taskHeap
	history []*Task

	running    bool
	cancelFunc func()

	historyLimit int

	// projectDir/projectName are set from the first task ever added, and
	// identify the queue's target project for Run (spec.md §4.4 step 2).
	projectDir  string
	projectName string
}

func newQueue(historyLimit int) *Queue {
	q := &Queue{historyLimit: historyLimit}
	heap.Init(&q.pending)
	return q
}

func (q *Queue) setProjectIfEmpty(dir, name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.projectDir == "" {
		q.projectDir = dir
		q.projectName = name
	}
}

func (q *Queue) project() (dir, name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.projectDir, q.projectName
}

func (q *Queue) enqueue(t *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.pending, t)
}

func (q *Queue) dequeue() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.pending).(*Task)
}

func (q *Queue) requeueFront(t *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.pending, t)
}

func (q *Queue) recordHistory(t *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.history = append(q.history, t)
	if q.historyLimit > 0 && len(q.history) > q.historyLimit {
		q.history = q.history[len(q.history)-q.historyLimit:]
	}
}

func (q *Queue) snapshot() (pending []*Task, history []*Task, running bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	pending = make([]*Task, len(q.pending))
	for i, t := range q.pending {
		pending[i] = t.clone()
	}
	history = make([]*Task, len(q.history))
	for i, t := range q.history {
		history[i] = t.clone()
	}
	return pending, history, q.running
}

// tryLockRun acquires the per-queue run lock, per spec.md §4.4 step 1
// and §8 ("at most one active run of q").
func (q *Queue) tryLockRun(cancel func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return false
	}
	q.running = true
	q.cancelFunc = cancel
	return true
}

func (q *Queue) unlockRun() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.running = false
	q.cancelFunc = nil
}

func (q *Queue) cancel() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running || q.cancelFunc == nil {
		return false
	}
	q.cancelFunc()
	return true
}

func (q *Queue) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = taskHeap{}
	heap.Init(&q.pending)
}
