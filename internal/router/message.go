// Package router implements the Command Router (spec.md §4.3): it
// classifies inbound chat lines as control commands or conversation
// and dispatches them to the Session Registry, Task Queue Manager, or
// Cron Scheduler.
package router

import (
	"strings"
	"time"
)

// controlPrefix is the two-character token distinguishing control
// commands from conversational messages (spec.md §3, §4.3).
const controlPrefix = "@@"

// Kind classifies an inbound ChatMessage.
type Kind int

const (
	KindConversation Kind = iota
	KindCommand
)

// ChatMessage is one inbound line from the chat transport (spec.md §3).
type ChatMessage struct {
	Text      string
	UserID    string
	ChannelID string
	Timestamp time.Time
	ThreadRef string
}

// Kind classifies the message: a command iff its text, after
// left-trim, begins with the control prefix.
func (m ChatMessage) Kind() Kind {
	if strings.HasPrefix(strings.TrimLeft(m.Text, " \t"), controlPrefix) {
		return KindCommand
	}
	return KindConversation
}
