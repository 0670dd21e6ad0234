// Package eventbus provides the ambient pub/sub fabric used to
// decouple the Cron Scheduler's firings and the Task Queue's progress
// reports from their consumers, without making either depend on NATS
// being present: an in-process bus is the default, a NATS-backed one
// is opt-in via configuration.
package eventbus

import "sync"

// Bus is the minimal pub/sub contract the core's ambient instrumentation
// needs.
type Bus interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func([]byte)) (unsubscribe func(), err error)
	Close() error
}

// Subjects used by the ambient instrumentation wiring.
const (
	SubjectScheduleFired   = "orchestrator.schedule.fired"
	SubjectQueueProgress   = "orchestrator.queue.progress"
	SubjectSessionLifecycle = "orchestrator.session.lifecycle"
)

// inprocBus is the default, dependency-free Bus: an in-memory fan-out
// keyed by exact subject match.
type inprocBus struct {
	mu   sync.RWMutex
	subs map[string][]func([]byte)
}

func newInproc() *inprocBus {
	return &inprocBus{subs: make(map[string][]func([]byte))}
}

func (b *inprocBus) Publish(subject string, data []byte) error {
	b.mu.RLock()
	handlers := append([]func([]byte){}, b.subs[subject]...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(data)
	}
	return nil
}

func (b *inprocBus) Subscribe(subject string, handler func([]byte)) (func(), error) {
	b.mu.Lock()
	b.subs[subject] = append(b.subs[subject], handler)
	idx := len(b.subs[subject]) - 1
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		handlers := b.subs[subject]
		if idx < len(handlers) {
			handlers[idx] = func([]byte) {}
		}
	}, nil
}

func (b *inprocBus) Close() error { return nil }
