package chat

import "sync"

// Loopback is an in-memory Transport for tests and single-user local
// runs: Inject feeds inbound messages, Sent drains what the core sent
// back.
type Loopback struct {
	inbox chan Message

	mu   sync.Mutex
	sent []sentMessage
}

type sentMessage struct {
	Channel string
	Text    string
}

// NewLoopback constructs a Loopback with the given inbound buffer size.
func NewLoopback(buffer int) *Loopback {
	return &Loopback{inbox: make(chan Message, buffer)}
}

func (l *Loopback) Messages() <-chan Message { return l.inbox }

// Inject enqueues an inbound message as if it arrived from the chat
// workspace.
func (l *Loopback) Inject(msg Message) {
	l.inbox <- msg
}

func (l *Loopback) Send(channel, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, sentMessage{Channel: channel, Text: text})
	return nil
}

func (l *Loopback) Typing(channel string) error { return nil }

func (l *Loopback) Close() error {
	close(l.inbox)
	return nil
}

// Sent returns every reply sent to a given channel, in order.
func (l *Loopback) Sent(channel string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, m := range l.sent {
		if m.Channel == channel {
			out = append(out, m.Text)
		}
	}
	return out
}
