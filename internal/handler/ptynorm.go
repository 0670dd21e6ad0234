package handler

import (
	"strings"
	"sync"

	"github.com/tuzig/vt10x"
)

// terminalNormalizer feeds raw pty bytes through a virtual terminal
// screen so that ANSI cursor movement, color codes and redraws are
// resolved into plain lines before they reach cliproto.ParseLine. A
// vt10x.State models a fixed-size screen grid, not a line stream, so
// this is a pragmatic approximation: after every Write we re-render
// the grid and diff it against the previous render, emitting only
// lines that changed. CLIs that repaint the same row repeatedly
// (spinners, progress bars) will surface every repaint as a line; that
// is an accepted simplification given this spec's line/JSON framing
// doesn't care about intermediate repaints.
type terminalNormalizer struct {
	mu   sync.Mutex
	vt   vt10x.VT
	cols int
	rows int
	last []string
}

func newTerminalNormalizer(cols, rows int) *terminalNormalizer {
	if cols <= 0 {
		cols = 200
	}
	if rows <= 0 {
		rows = 50
	}
	return &terminalNormalizer{
		vt:   vt10x.New(vt10x.WithSize(cols, rows)),
		cols: cols,
		rows: rows,
	}
}

// Feed writes raw pty output into the virtual screen and returns the
// lines that changed since the previous call, in top-to-bottom order.
func (n *terminalNormalizer) Feed(p []byte) []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, err := n.vt.Write(p); err != nil {
		return nil
	}

	cur := n.render()
	var changed []string
	for i, line := range cur {
		if i >= len(n.last) || n.last[i] != line {
			trimmed := strings.TrimRight(line, " ")
			if trimmed != "" {
				changed = append(changed, trimmed)
			}
		}
	}
	n.last = cur
	return changed
}

func (n *terminalNormalizer) render() []string {
	lines := make([]string, n.rows)
	n.vt.Lock()
	defer n.vt.Unlock()
	for y := 0; y < n.rows; y++ {
		var sb strings.Builder
		for x := 0; x < n.cols; x++ {
			cell, _, _ := n.vt.Cell(x, y)
			if cell == 0 {
				sb.WriteRune(' ')
				continue
			}
			sb.WriteRune(cell)
		}
		lines[y] = sb.String()
	}
	return lines
}
