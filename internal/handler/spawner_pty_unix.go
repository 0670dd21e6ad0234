//go:build !windows

package handler

import (
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// ptyProcess spawns the assistant CLI under a pseudo-terminal for CLIs
// that refuse non-interactive stdin/stdout pipes. A pty is a single
// duplex file descriptor, so Stdin and Stdout are the same file and
// Stderr is folded into it (callers must treat a nil Stderr as "already
// merged into Stdout", matching spec.md §4.1's stderr-is-separate
// policy only in pipe mode).
type ptyProcess struct {
	cmd *exec.Cmd
	pty *os.File
}

func newPTYProcess(cfg spawnConfig) (*ptyProcess, error) {
	cmd := exec.Command(cfg.Path, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = cfg.Env
	return &ptyProcess{cmd: cmd}, nil
}

func (p *ptyProcess) Start() error {
	f, err := pty.Start(p.cmd)
	if err != nil {
		return err
	}
	p.pty = f
	return nil
}

func (p *ptyProcess) Stdin() io.WriteCloser { return p.pty }
func (p *ptyProcess) Stdout() io.Reader     { return p.pty }
func (p *ptyProcess) Stderr() io.Reader     { return nil }

func (p *ptyProcess) Signal() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(os.Interrupt)
}

func (p *ptyProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

func (p *ptyProcess) Wait() error { return p.cmd.Wait() }

func (p *ptyProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

var _ process = (*ptyProcess)(nil)
