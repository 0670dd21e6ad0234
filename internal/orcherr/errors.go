// Package orcherr defines the error taxonomy shared by every core
// component: each kind is a sentinel that callers can match with
// errors.Is, wrapped with context via fmt.Errorf("%w: ...").
package orcherr

import "errors"

// ConfigError: missing or invalid configuration at startup. Fatal.
var ErrConfig = errors.New("config error")

// ChatTransportError: transient or permanent failure communicating
// with the channel. Recovered by transport-layer retries upstream.
var ErrChatTransport = errors.New("chat transport error")

// HandlerError subkinds. All are per-session; none terminate the process.
var (
	ErrStartupError   = errors.New("handler: startup error")
	ErrNotRunning     = errors.New("handler: not running")
	ErrInputTooLarge  = errors.New("handler: input too large")
	ErrTimeout        = errors.New("handler: timeout")
	ErrUnexpectedExit = errors.New("handler: unexpected exit")
	ErrParseError     = errors.New("handler: parse error")
)

// SessionError subkinds.
var (
	ErrNoSuchSession   = errors.New("session: no such session")
	ErrLimitExceeded   = errors.New("session: limit exceeded")
	ErrInvalidProject  = errors.New("session: invalid project")
)

// QueueError subkinds.
var (
	ErrUnknownQueue = errors.New("queue: unknown queue")
	ErrQueueBusy    = errors.New("queue: busy")
	ErrTaskTimeout  = errors.New("queue: task timeout")
	ErrQueueFull    = errors.New("queue: full")
	ErrTaskExists   = errors.New("queue: task already exists")
	ErrInvalidTask  = errors.New("queue: invalid task")
)

// ScheduleError subkinds.
var (
	ErrInvalidPattern   = errors.New("schedule: invalid pattern")
	ErrUnknownTaskName  = errors.New("schedule: unknown task name")
	ErrUnknownSchedule  = errors.New("schedule: unknown schedule")
)

// PersistenceError: I/O failure writing queues.json. Logged, non-fatal;
// the next successful write heals state.
var ErrPersistence = errors.New("persistence error")
