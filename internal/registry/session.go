// Package registry implements the Session Registry (spec.md §4.2): the
// owner of all live Sessions and their Assistant Handlers.
package registry

import (
	"sync"
	"time"

	"github.com/sessionbridge/orchestrator/internal/handler"
)

// Role is the speaker of one conversation-log entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// LogEntry is one append-only conversation-log record (spec.md §3).
type LogEntry struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// Session is one logical conversation bound to a project directory and
// a live Assistant Handler.
type Session struct {
	ID          string
	Project     string
	ProjectDir  string
	CreatedAt   time.Time
	Handler     *handler.Handler

	mu           sync.Mutex
	lastActivity time.Time
	active       bool
	log          []LogEntry
}

func newSession(id, project, projectDir string, h *handler.Handler) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		Project:      project,
		ProjectDir:   projectDir,
		CreatedAt:    now,
		Handler:      h,
		lastActivity: now,
		active:       true,
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) appendLog(role Role, content string) {
	s.mu.Lock()
	s.log = append(s.log, LogEntry{Role: role, Content: content, Timestamp: time.Now()})
	s.mu.Unlock()
}

func (s *Session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:                s.ID,
		Project:           s.Project,
		CreatedAt:         s.CreatedAt,
		LastActivity:      s.lastActivity,
		State:             s.Handler.State(),
		ConversationLength: len(s.log),
		Active:            s.active,
	}
}

func (s *Session) isIdleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity.Before(cutoff)
}

func (s *Session) markInactive() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

func (s *Session) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Snapshot is the read-only view returned by Registry.List (spec.md §4.2).
type Snapshot struct {
	ID                 string
	Project            string
	CreatedAt          time.Time
	LastActivity       time.Time
	State              handler.State
	ConversationLength int
	Active             bool
}

// Log returns a copy of the session's conversation log.
func (s *Session) Log() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogEntry, len(s.log))
	copy(out, s.log)
	return out
}
