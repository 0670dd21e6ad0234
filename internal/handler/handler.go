// Package handler implements the Assistant Handler (spec.md §4.1): the
// lifecycle and streaming I/O wrapper around one long-lived assistant
// CLI subprocess.
package handler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sessionbridge/orchestrator/internal/cliproto"
	"github.com/sessionbridge/orchestrator/internal/config"
	"github.com/sessionbridge/orchestrator/internal/logging"
	"github.com/sessionbridge/orchestrator/internal/orcherr"
)

// Health is the snapshot returned by Handler.Health, per spec.md §6.2.
type Health struct {
	Running            bool
	ExitCode           *int
	Uptime             time.Duration
	BytesIn            int64
	BytesOut           int64
	ExternalSessionID  string
	State              State
}

// turnCollector accumulates the text produced by a single execute()
// call. It is installed via an atomic.Pointer so the background
// stdout reader can append to it without a lock shared with stream()
// consumers, and without double-consuming chunkBuffer: the reader
// pushes every chunk to both the buffer (for stream()) and, if a
// collector is installed, to the collector.
type turnCollector struct {
	mu       sync.Mutex
	sb       strings.Builder
	done     chan struct{}
	closedAt sync.Once
}

func newTurnCollector() *turnCollector {
	return &turnCollector{done: make(chan struct{})}
}

func (t *turnCollector) append(s string) {
	t.mu.Lock()
	t.sb.WriteString(s)
	t.mu.Unlock()
}

func (t *turnCollector) text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sb.String()
}

func (t *turnCollector) finish() {
	t.closedAt.Do(func() { close(t.done) })
}

// Handler owns one assistant CLI subprocess and exposes the operations
// the Session Registry drives it with: start, send, stream, execute,
// terminate, health.
type Handler struct {
	cfg    config.HandlerConfig
	log    *logging.Logger
	id     string

	mu    sync.Mutex
	state State
	proc  process
	norm  *terminalNormalizer

	chunks *chunkBuffer
	stderr *stderrRing

	turn atomic.Pointer[turnCollector]

	startedAt time.Time
	bytesIn   atomic.Int64
	bytesOut  atomic.Int64
	exitCode  atomic.Int32
	exited    atomic.Bool

	externalSessionID atomic.Pointer[string]

	wg sync.WaitGroup
}

// New constructs a Handler bound to one conversation/session id. The
// subprocess is not started until Start is called.
func New(id string, cfg config.HandlerConfig, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.Default()
	}
	return &Handler{
		id:     id,
		cfg:    cfg,
		log:    log.WithSession(id),
		state:  StateIdle,
		chunks: newChunkBuffer(cfg.OutputBufferSize),
		stderr: newStderrRing(cfg.StderrRingBytes),
	}
}

func (h *Handler) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// finishProcessing returns the handler to Running, unless reap() has
// already moved it to a terminal state concurrently (the subprocess
// exited mid-turn); a terminal state must never be clobbered back to
// Running.
func (h *Handler) finishProcessing() {
	h.mu.Lock()
	if h.state == StateProcessing {
		h.state = StateRunning
	}
	h.mu.Unlock()
}

// State returns the handler's current lifecycle state.
func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Start spawns the subprocess and begins streaming its output. It
// transitions Idle -> Starting -> Running, or Starting -> Error on
// failure (spec.md §4.1's FSM).
func (h *Handler) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.state != StateIdle {
		h.mu.Unlock()
		return fmt.Errorf("%w: handler not idle", orcherr.ErrStartupError)
	}
	h.state = StateStarting
	h.mu.Unlock()

	args := append([]string{}, h.cfg.DefaultArgs...)
	if h.cfg.Model != "" {
		args = append(args, "--model", h.cfg.Model)
	}
	if h.cfg.OutputFormat != "" {
		args = append(args, "--output-format", h.cfg.OutputFormat)
	}
	scfg := spawnConfig{Path: h.cfg.CLIPath, Args: args, Env: defaultEnv()}

	var (
		p   process
		err error
	)
	if h.cfg.UsePTY {
		p, err = newPTYProcess(scfg)
		h.norm = newTerminalNormalizer(0, 0)
	} else {
		p, err = newPipeProcess(scfg)
	}
	if err != nil {
		h.setState(StateError)
		return fmt.Errorf("%w: %v", orcherr.ErrStartupError, err)
	}
	if err := p.Start(); err != nil {
		h.setState(StateError)
		return fmt.Errorf("%w: %v", orcherr.ErrStartupError, err)
	}

	h.mu.Lock()
	h.proc = p
	h.startedAt = time.Now()
	h.state = StateRunning
	h.mu.Unlock()

	h.wg.Add(1)
	go h.readStdout()
	if p.Stderr() != nil {
		h.wg.Add(1)
		go h.readStderr()
	}
	h.wg.Add(1)
	go h.reap()

	if h.cfg.StartupProbe > 0 {
		probe, cancel := context.WithTimeout(ctx, h.cfg.StartupProbe)
		defer cancel()
		select {
		case <-probe.Done():
			if probe.Err() == context.DeadlineExceeded {
				h.log.Warn("startup probe window elapsed without confirmation")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	h.log.Info("handler started")
	return nil
}

func (h *Handler) readStdout() {
	defer h.wg.Done()
	r := h.proc.Stdout()
	if h.norm != nil {
		h.readPTY(r)
		return
	}
	h.readPipe(r)
}

func (h *Handler) readPipe(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		h.bytesOut.Add(int64(len(line)) + 1)
		h.handleLine(line)
	}
}

func (h *Handler) readPTY(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.bytesOut.Add(int64(n))
			for _, line := range h.norm.Feed(buf[:n]) {
				h.handleLine(line)
			}
		}
		if err != nil {
			return
		}
	}
}

func (h *Handler) handleLine(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	msg, err := cliproto.ParseLine([]byte(line))
	if err != nil {
		h.log.Debug("stdout line is not JSON, passing it through as text")
		h.emit(line)
		return
	}
	switch msg.Type {
	case cliproto.TypeSystem:
		if msg.SessionID != "" {
			id := msg.SessionID
			h.externalSessionID.Store(&id)
		}
	case cliproto.TypeAssistant:
		if msg.Message != nil {
			h.emit(msg.Message.GetText())
		}
	case cliproto.TypeResult:
		h.emit(cliproto.ResultText(msg.Result))
		if tc := h.turn.Load(); tc != nil {
			tc.finish()
		}
	}
}

func (h *Handler) emit(text string) {
	if text == "" {
		return
	}
	h.chunks.push(Chunk{Text: text})
	if tc := h.turn.Load(); tc != nil {
		tc.append(text)
	}
}

func (h *Handler) readStderr() {
	defer h.wg.Done()
	scanner := bufio.NewScanner(h.proc.Stderr())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		h.stderr.Write(scanner.Text())
	}
}

func (h *Handler) reap() {
	defer h.wg.Done()
	err := h.proc.Wait()
	h.exited.Store(true)
	code := 0
	if err != nil {
		code = 1
	}
	h.exitCode.Store(int32(code))
	h.chunks.push(Chunk{EndOfStream: true})
	h.chunks.close()
	if tc := h.turn.Load(); tc != nil {
		tc.finish()
	}

	h.mu.Lock()
	if h.state != StateTerminating {
		h.state = StateError
	} else {
		h.state = StateTerminated
	}
	h.mu.Unlock()
}

// Send writes text to the subprocess's stdin. It enforces the
// configured max input size (spec.md §7: ErrInputTooLarge) and
// requires the handler be Running or Processing.
func (h *Handler) Send(ctx context.Context, text string) error {
	h.mu.Lock()
	st := h.state
	h.mu.Unlock()
	if st != StateRunning && st != StateProcessing {
		return fmt.Errorf("%w: handler state is %s", orcherr.ErrNotRunning, st)
	}
	if h.cfg.MaxInputBytes > 0 && len(text) > h.cfg.MaxInputBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit %d", orcherr.ErrInputTooLarge, len(text), h.cfg.MaxInputBytes)
	}

	n, err := h.proc.Stdin().Write([]byte(text + "\n"))
	h.bytesIn.Add(int64(n))
	if err != nil {
		return fmt.Errorf("%w: %v", orcherr.ErrUnexpectedExit, err)
	}
	return nil
}

// Stream returns a channel of output chunks until the handler
// terminates. Only one concurrent stream consumer is supported; the
// Session Registry owns forwarding chunks to chat.
func (h *Handler) Stream(ctx context.Context) <-chan Chunk {
	out := make(chan Chunk)
	go func() {
		defer close(out)
		for {
			c, ok := h.chunks.pop()
			if !ok {
				return
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
			if c.EndOfStream {
				return
			}
		}
	}()
	return out
}

// Execute sends text and blocks until the assistant's turn completes,
// detected either by a result message (spec.md §6.2's stream-json
// framing) or, lacking one, an idle-quiet-window on stdout after at
// least one byte was read. It returns the full text produced during
// the turn.
func (h *Handler) Execute(ctx context.Context, text string) (string, error) {
	h.mu.Lock()
	if h.state != StateRunning {
		h.mu.Unlock()
		return "", fmt.Errorf("%w: handler state is %s", orcherr.ErrNotRunning, h.state)
	}
	h.state = StateProcessing
	h.mu.Unlock()
	defer h.finishProcessing()

	tc := newTurnCollector()
	h.turn.Store(tc)
	defer h.turn.Store(nil)

	startBytes := h.bytesOut.Load()
	if err := h.Send(ctx, text); err != nil {
		return "", err
	}

	quiet := h.cfg.QuietWindow
	if quiet <= 0 {
		quiet = 200 * time.Millisecond
	}
	timer := time.NewTimer(quiet)
	defer timer.Stop()

	lastBytes := h.bytesOut.Load()
	for {
		select {
		case <-ctx.Done():
			return tc.text(), ctx.Err()
		case <-tc.done:
			return tc.text(), nil
		case <-timer.C:
			cur := h.bytesOut.Load()
			if cur == lastBytes && cur > startBytes {
				return tc.text(), nil
			}
			lastBytes = cur
			timer.Reset(quiet)
		}
	}
}

// Terminate requests a graceful shutdown, escalating to Kill after the
// configured grace window (spec.md §4.1).
func (h *Handler) Terminate(ctx context.Context) error {
	h.mu.Lock()
	if h.state == StateTerminated || h.state == StateIdle {
		h.mu.Unlock()
		return nil
	}
	h.state = StateTerminating
	proc := h.proc
	h.mu.Unlock()

	if proc == nil {
		h.setState(StateTerminated)
		return nil
	}

	if err := proc.Signal(); err != nil {
		h.log.WithError(err).Warn("graceful signal failed, killing")
		killErr := proc.Kill()
		h.setState(StateTerminated)
		return killErr
	}

	grace := h.cfg.GraceWindow
	if grace <= 0 {
		grace = 5 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	done := make(chan struct{})
	go func() { h.wg.Wait(); close(done) }()

	select {
	case <-done:
		return nil
	case <-waitCtx.Done():
		return proc.Kill()
	}
}

// Health reports the point-in-time status used by spec.md §6.2's
// health surface.
func (h *Handler) Health() Health {
	h.mu.Lock()
	st := h.state
	started := h.startedAt
	h.mu.Unlock()

	var uptime time.Duration
	if !started.IsZero() {
		uptime = time.Since(started)
	}
	var exitCode *int
	if h.exited.Load() {
		c := int(h.exitCode.Load())
		exitCode = &c
	}
	extID := ""
	if p := h.externalSessionID.Load(); p != nil {
		extID = *p
	}
	return Health{
		Running:           st == StateRunning || st == StateProcessing,
		ExitCode:          exitCode,
		Uptime:            uptime,
		BytesIn:           h.bytesIn.Load(),
		BytesOut:          h.bytesOut.Load(),
		ExternalSessionID: extID,
		State:             st,
	}
}

// StderrTail returns the retained stderr ring, for error reports.
func (h *Handler) StderrTail() string {
	return h.stderr.String()
}
