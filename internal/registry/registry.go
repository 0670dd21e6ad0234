package registry

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sessionbridge/orchestrator/internal/config"
	hdl "github.com/sessionbridge/orchestrator/internal/handler"
	"github.com/sessionbridge/orchestrator/internal/logging"
	"github.com/sessionbridge/orchestrator/internal/orcherr"
	"github.com/sessionbridge/orchestrator/internal/tracing"
)

// ChatForwarder delivers an Assistant Handler's streamed output to the
// chat transport for a session. Kept as an interface so this package
// never imports the chat transport (spec.md §6.1 treats it as an
// external collaborator).
type ChatForwarder interface {
	Forward(sessionID, text string)
}

// Registry implements the Session Registry (spec.md §4.2).
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	current  string

	cfg        config.SessionConfig
	handlerCfg config.HandlerConfig
	projects   []config.Project

	forwarder ChatForwarder
	log       *logging.Logger
}

// New constructs a Registry.
func New(cfg config.SessionConfig, handlerCfg config.HandlerConfig, projects []config.Project, forwarder ChatForwarder, log *logging.Logger) *Registry {
	if log == nil {
		log = logging.Default()
	}
	return &Registry{
		sessions:   make(map[string]*Session),
		cfg:        cfg,
		handlerCfg: handlerCfg,
		projects:   projects,
		forwarder:  forwarder,
		log:        log,
	}
}

func (r *Registry) activeCount() int {
	n := 0
	for _, s := range r.sessions {
		if s.isActive() {
			n++
		}
	}
	return n
}

func (r *Registry) validateProject(projectDir string) error {
	if _, err := os.Stat(projectDir); err != nil {
		return fmt.Errorf("%w: %s", orcherr.ErrInvalidProject, projectDir)
	}
	if !r.cfg.RestrictToKnown || len(r.projects) == 0 {
		return nil
	}
	for _, p := range r.projects {
		if p.Path == projectDir {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not a configured project", orcherr.ErrInvalidProject, projectDir)
}

// Create allocates a session, constructs and starts its Handler
// (spec.md §4.2).
func (r *Registry) Create(ctx context.Context, projectDir, projectName string) (*Session, error) {
	ctx, span := tracing.Tracer().Start(ctx, "registry.Create")
	defer span.End()

	if err := r.validateProject(projectDir); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.cfg.MaxSessions > 0 && r.activeCount() >= r.cfg.MaxSessions {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: max_sessions=%d reached", orcherr.ErrLimitExceeded, r.cfg.MaxSessions)
	}
	r.mu.Unlock()

	id := uuid.NewString()
	h := hdl.New(id, r.handlerCfg, r.log)
	if err := h.Start(ctx); err != nil {
		return nil, err
	}

	sess := newSession(id, projectName, projectDir, h)

	r.mu.Lock()
	r.sessions[id] = sess
	r.current = id
	r.mu.Unlock()

	go r.runForwarder(ctx, sess)

	return sess, nil
}

func (r *Registry) runForwarder(ctx context.Context, sess *Session) {
	for chunk := range sess.Handler.Stream(ctx) {
		if chunk.EndOfStream || chunk.Text == "" {
			continue
		}
		sess.appendLog(RoleAssistant, chunk.Text)
		if r.forwarder != nil {
			r.forwarder.Forward(sess.ID, chunk.Text)
		}
	}
	sess.markInactive()
}

// Switch sets the current routing target for conversational messages.
func (r *Registry) Switch(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok || !sess.isActive() {
		return fmt.Errorf("%w: %s", orcherr.ErrNoSuchSession, sessionID)
	}
	r.current = sessionID
	return nil
}

// Current returns the current session, or nil if none.
func (r *Registry) Current() *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == "" {
		return nil
	}
	return r.sessions[r.current]
}

// List returns a snapshot of every known session.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, len(sessions))
	for i, s := range sessions {
		out[i] = s.snapshot()
	}
	return out
}

// Send forwards text to a session's Handler and records the exchange
// in its conversation log.
func (r *Registry) Send(ctx context.Context, sessionID, text string) error {
	r.mu.RLock()
	sess, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok || !sess.isActive() {
		return fmt.Errorf("%w: %s", orcherr.ErrNoSuchSession, sessionID)
	}

	sess.touch()
	sess.appendLog(RoleUser, text)
	if err := sess.Handler.Send(ctx, text); err != nil {
		return err
	}
	return nil
}

// Terminate tears down a session's Handler and marks it inactive.
func (r *Registry) Terminate(ctx context.Context, sessionID string) error {
	r.mu.RLock()
	sess, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", orcherr.ErrNoSuchSession, sessionID)
	}

	err := sess.Handler.Terminate(ctx)
	sess.markInactive()

	r.mu.Lock()
	if r.current == sessionID {
		r.current = ""
	}
	r.mu.Unlock()

	return err
}

// ReapIdle terminates and removes sessions idle past the configured
// timeout (spec.md §4.2, default 60 min).
func (r *Registry) ReapIdle(ctx context.Context) int {
	timeout := r.cfg.IdleTimeout
	if timeout <= 0 {
		timeout = 60 * time.Minute
	}
	cutoff := time.Now().Add(-timeout)

	r.mu.RLock()
	var toReap []*Session
	for _, s := range r.sessions {
		if s.isActive() && s.isIdleSince(cutoff) {
			toReap = append(toReap, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range toReap {
		if err := r.Terminate(ctx, s.ID); err != nil {
			r.log.WithError(err).Warn("idle reap failed to terminate session")
		}
	}

	r.mu.Lock()
	for id, s := range r.sessions {
		if !s.isActive() {
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	return len(toReap)
}

// EnsureSession satisfies queue.SessionRunner: reuses an active session
// for the project if one exists, otherwise creates one.
func (r *Registry) EnsureSession(ctx context.Context, projectDir, projectName string) (string, error) {
	r.mu.RLock()
	for _, s := range r.sessions {
		if s.isActive() && s.ProjectDir == projectDir {
			r.mu.RUnlock()
			return s.ID, nil
		}
	}
	r.mu.RUnlock()

	sess, err := r.Create(ctx, projectDir, projectName)
	if err != nil {
		return "", err
	}
	return sess.ID, nil
}

// Execute satisfies queue.SessionRunner by running one synchronous
// exchange through an existing session's Handler.
func (r *Registry) Execute(ctx context.Context, sessionID, text string, timeout time.Duration) (string, error) {
	r.mu.RLock()
	sess, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", orcherr.ErrNoSuchSession, sessionID)
	}

	sess.touch()
	sess.appendLog(RoleUser, text)

	execCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := sess.Handler.Execute(execCtx, text)
	if err != nil {
		return result, err
	}
	sess.appendLog(RoleAssistant, result)
	return result, nil
}

// ExecuteOneShot creates a short-lived session, runs a single
// non-interactive exchange, terminates it, and returns the result
// (spec.md §4.2). Its handler is not registered in the session map, so
// it neither counts against nor is refused by the active-session cap.
func (r *Registry) ExecuteOneShot(ctx context.Context, projectDir, text string, timeout time.Duration) (string, error) {
	if err := r.validateProject(projectDir); err != nil {
		return "", err
	}

	id := uuid.NewString()
	h := hdl.New(id, r.handlerCfg, r.log)
	if err := h.Start(ctx); err != nil {
		return "", err
	}
	defer h.Terminate(ctx)

	execCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return h.Execute(execCtx, text)
}
