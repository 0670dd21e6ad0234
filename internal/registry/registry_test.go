package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionbridge/orchestrator/internal/config"
)

const fakeCLIScript = `
echo '{"type":"system","session_id":"ext-1"}'
while IFS= read -r line; do
  echo '{"type":"assistant","message":{"role":"assistant","content":"echo: '"$line"'"}}'
  echo '{"type":"result","result":"done"}'
done
`

func testHandlerCfg() config.HandlerConfig {
	return config.HandlerConfig{
		CLIPath:          "sh",
		DefaultArgs:      []string{"-c", fakeCLIScript},
		MaxInputBytes:    1024,
		StderrRingBytes:  4096,
		OutputBufferSize: 64,
		QuietWindow:      100 * time.Millisecond,
		GraceWindow:      2 * time.Second,
	}
}

type fakeForwarder struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeForwarder) Forward(sessionID, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, text)
}

func TestCreateSwitchSend(t *testing.T) {
	dir := t.TempDir()
	cfg := config.SessionConfig{MaxSessions: 2, IdleTimeout: time.Hour}
	fw := &fakeForwarder{}
	r := New(cfg, testHandlerCfg(), nil, fw, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := r.Create(ctx, dir, "web")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, r.Current().ID)

	require.NoError(t, r.Send(ctx, sess.ID, "hello"))
	time.Sleep(300 * time.Millisecond)

	assert.GreaterOrEqual(t, len(sess.Log()), 1)
	require.NoError(t, r.Terminate(ctx, sess.ID))
}

func TestSessionCapEnforced(t *testing.T) {
	dir := t.TempDir()
	cfg := config.SessionConfig{MaxSessions: 1}
	r := New(cfg, testHandlerCfg(), nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := r.Create(ctx, dir, "a")
	require.NoError(t, err)

	_, err = r.Create(ctx, dir, "b")
	assert.Error(t, err)
}

func TestSwitchToUnknownSessionFails(t *testing.T) {
	r := New(config.SessionConfig{MaxSessions: 2}, testHandlerCfg(), nil, nil, nil)
	err := r.Switch("does-not-exist")
	assert.Error(t, err)
}

func TestInvalidProjectDirRejected(t *testing.T) {
	r := New(config.SessionConfig{MaxSessions: 2}, testHandlerCfg(), nil, nil, nil)
	ctx := context.Background()
	_, err := r.Create(ctx, "/no/such/directory/at/all", "ghost")
	assert.Error(t, err)
}
