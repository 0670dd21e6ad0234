package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionbridge/orchestrator/internal/config"
	"github.com/sessionbridge/orchestrator/internal/cron"
	"github.com/sessionbridge/orchestrator/internal/queue"
	"github.com/sessionbridge/orchestrator/internal/registry"
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

type collectingReply struct {
	mu    sync.Mutex
	lines []string
}

func (c *collectingReply) Reply(channelID, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, text)
}

func (c *collectingReply) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) == 0 {
		return ""
	}
	return c.lines[len(c.lines)-1]
}

type noopForwarder struct{}

func (noopForwarder) Forward(sessionID, text string) {}

func newTestRouter(t *testing.T) (*Router, *collectingReply, string) {
	webDir := t.TempDir()
	projects := []config.Project{{Name: "web", Path: webDir, Description: "web app"}}

	reg := registry.New(config.SessionConfig{MaxSessions: 2}, testHandlerCfg(), projects, noopForwarder{}, nil)

	qm, err := queue.New(config.QueueConfig{
		DataDir:        t.TempDir(),
		HistoryLimit:   100,
		TaskTimeout:    2 * time.Second,
		DebounceWindow: 10 * time.Millisecond,
	}, reg, nil, nil)
	require.NoError(t, err)

	catalog, err := cron.LoadCatalog("")
	require.NoError(t, err)
	sched := cron.New(catalog, qm, time.Minute, nil)

	reply := &collectingReply{}
	return New(reg, qm, sched, projects, reply, nil), reply, webDir
}

func TestProjectSwitchAndConversation(t *testing.T) {
	r, reply, _ := newTestRouter(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r.Dispatch(ctx, ChatMessage{Text: "@@projects", ChannelID: "c1"})
	assert.Contains(t, reply.last(), "web")

	r.Dispatch(ctx, ChatMessage{Text: "@@switch web", ChannelID: "c1"})
	assert.Contains(t, reply.last(), "web")

	r.Dispatch(ctx, ChatMessage{Text: "hello", ChannelID: "c1"})
	time.Sleep(300 * time.Millisecond)

	sess := r.registry.Current()
	require.NotNil(t, sess)
	log := sess.Log()
	require.NotEmpty(t, log)
	assert.Equal(t, registry.RoleUser, log[0].Role)
	assert.Equal(t, "hello", log[0].Content)
}

func TestCommandClassification(t *testing.T) {
	assert.Equal(t, KindCommand, ChatMessage{Text: "  @@projects"}.Kind())
	assert.Equal(t, KindConversation, ChatMessage{Text: "hi there"}.Kind())
}

func TestSessionCapCommand(t *testing.T) {
	dirA, dirB, dirC := t.TempDir(), t.TempDir(), t.TempDir()
	projects := []config.Project{
		{Name: "a", Path: dirA}, {Name: "b", Path: dirB}, {Name: "c", Path: dirC},
	}
	reg := registry.New(config.SessionConfig{MaxSessions: 2}, testHandlerCfg(), projects, noopForwarder{}, nil)
	qm, err := queue.New(config.QueueConfig{DataDir: t.TempDir(), HistoryLimit: 10, DebounceWindow: time.Millisecond}, reg, nil, nil)
	require.NoError(t, err)
	catalog, err := cron.LoadCatalog("")
	require.NoError(t, err)
	sched := cron.New(catalog, qm, time.Minute, nil)
	reply := &collectingReply{}
	r := New(reg, qm, sched, projects, reply, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r.Dispatch(ctx, ChatMessage{Text: "@@new a", ChannelID: "c1"})
	r.Dispatch(ctx, ChatMessage{Text: "@@new b", ChannelID: "c1"})
	r.Dispatch(ctx, ChatMessage{Text: "@@new c", ChannelID: "c1"})
	assert.Contains(t, reply.last(), "Could not start session")
}
