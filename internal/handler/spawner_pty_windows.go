//go:build windows

package handler

import (
	"io"
	"strings"

	"github.com/UserExistsError/conpty"
)

// ptyProcess is the Windows pty spawner, backed by conpty. conpty
// exposes a single ReadWriteCloser for the console, so Stdin and
// Stdout alias each other the same way the unix pty spawner's do.
type ptyProcess struct {
	cfg spawnConfig
	cp  *conpty.ConPty
}

func newPTYProcess(cfg spawnConfig) (*ptyProcess, error) {
	return &ptyProcess{cfg: cfg}, nil
}

func (p *ptyProcess) commandLine() string {
	parts := append([]string{p.cfg.Path}, p.cfg.Args...)
	return strings.Join(parts, " ")
}

func (p *ptyProcess) Start() error {
	cp, err := conpty.Start(
		p.commandLine(),
		conpty.ConPtyWorkDir(p.cfg.Dir),
		conpty.ConPtyEnv(p.cfg.Env),
	)
	if err != nil {
		return err
	}
	p.cp = cp
	return nil
}

func (p *ptyProcess) Stdin() io.WriteCloser { return p.cp }
func (p *ptyProcess) Stdout() io.Reader     { return p.cp }
func (p *ptyProcess) Stderr() io.Reader     { return nil }

func (p *ptyProcess) Signal() error {
	// conpty has no portable graceful-signal equivalent to SIGTERM;
	// closing the console handle is the closest available request.
	return p.cp.Close()
}

func (p *ptyProcess) Kill() error {
	return p.cp.Kill()
}

func (p *ptyProcess) Wait() error {
	_, err := p.cp.Wait(nil)
	return err
}

func (p *ptyProcess) Pid() int {
	return p.cp.Pid()
}

var _ process = (*ptyProcess)(nil)
