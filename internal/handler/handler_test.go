package handler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionbridge/orchestrator/internal/config"
)

// fakeCLIScript is a tiny shell program standing in for an assistant
// CLI: it emits a system message once at startup, then on each stdin
// line an assistant message and a result message in stream-json shape.
const fakeCLIScript = `
echo '{"type":"system","session_id":"ext-123"}'
while IFS= read -r line; do
  echo '{"type":"assistant","message":{"role":"assistant","content":"echo: '"$line"'"}}'
  echo '{"type":"result","result":"done"}'
done
`

func testCfg() config.HandlerConfig {
	return config.HandlerConfig{
		CLIPath:          "sh",
		DefaultArgs:      []string{"-c", fakeCLIScript},
		OutputFormat:     "",
		MaxInputBytes:    1024,
		StderrRingBytes:  4096,
		OutputBufferSize: 64,
		QuietWindow:      100 * time.Millisecond,
		GraceWindow:      2 * time.Second,
	}
}

func TestHandlerLifecycle(t *testing.T) {
	h := New("sess-1", testCfg(), nil)
	assert.Equal(t, StateIdle, h.State())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, h.Start(ctx))
	assert.Equal(t, StateRunning, h.State())

	text, err := h.Execute(ctx, "hello")
	require.NoError(t, err)
	assert.Contains(t, text, "done")
	assert.Equal(t, StateRunning, h.State())

	hh := h.Health()
	assert.True(t, hh.Running)
	assert.Equal(t, "ext-123", hh.ExternalSessionID)
	assert.Greater(t, hh.BytesOut, int64(0))

	require.NoError(t, h.Terminate(ctx))
	assert.Equal(t, StateTerminated, h.State())
}

func TestHandlerSendRejectsOversizedInput(t *testing.T) {
	cfg := testCfg()
	cfg.MaxInputBytes = 4
	h := New("sess-2", cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Start(ctx))
	defer h.Terminate(ctx)

	err := h.Send(ctx, "this is far too long")
	assert.Error(t, err)
}

func TestHandlerSendBeforeStartFails(t *testing.T) {
	h := New("sess-3", testCfg(), nil)
	err := h.Send(context.Background(), "hi")
	assert.Error(t, err)
}
