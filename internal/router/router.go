package router

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sessionbridge/orchestrator/internal/config"
	"github.com/sessionbridge/orchestrator/internal/cron"
	"github.com/sessionbridge/orchestrator/internal/logging"
	"github.com/sessionbridge/orchestrator/internal/queue"
	"github.com/sessionbridge/orchestrator/internal/registry"
)

const noActiveSessionMessage = "No active session. Use @@switch <project> or @@new <project> to start one."

// Reply sends one text reply back to a chat channel.
type Reply interface {
	Reply(channelID, text string)
}

// ChannelBinder is an optional capability a Reply implementation can
// also provide, recording which chat channel a session's assistant
// output or a queue's progress lines should be forwarded to. The chat
// bridge owns this mapping since only it knows about channels;
// registry and queue do not.
type ChannelBinder interface {
	BindSession(sessionID, channel string)
	BindQueue(queueName, channel string)
}

// Router implements the Command Router (spec.md §4.3).
type Router struct {
	registry *registry.Registry
	queues   *queue.Manager
	cron     *cron.Scheduler
	projects []config.Project
	reply    Reply
	log      *logging.Logger
}

// New constructs a Router wired to the other four core components.
func New(reg *registry.Registry, queues *queue.Manager, scheduler *cron.Scheduler, projects []config.Project, reply Reply, log *logging.Logger) *Router {
	if log == nil {
		log = logging.Default()
	}
	return &Router{registry: reg, queues: queues, cron: scheduler, projects: projects, reply: reply, log: log}
}

func (r *Router) projectByName(name string) (config.Project, bool) {
	for _, p := range r.projects {
		if p.Name == name {
			return p, true
		}
	}
	return config.Project{}, false
}

// Dispatch classifies and handles one inbound chat line (spec.md §4.3).
// Errors from command handlers are converted to short channel-safe
// replies; a panic while handling the line is recovered, logged, and
// answered with a generic internal-error reply. Nothing is returned.
func (r *Router) Dispatch(ctx context.Context, msg ChatMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error(fmt.Sprintf("command handler panic: %v", rec))
			r.reply.Reply(msg.ChannelID, "Internal error handling that command.")
		}
	}()

	if msg.Kind() == KindCommand {
		r.reply.Reply(msg.ChannelID, r.handleCommand(ctx, msg))
		return
	}
	r.handleConversation(ctx, msg)
}

func (r *Router) handleConversation(ctx context.Context, msg ChatMessage) {
	sess := r.registry.Current()
	if sess == nil {
		r.reply.Reply(msg.ChannelID, noActiveSessionMessage)
		return
	}
	if err := r.registry.Send(ctx, sess.ID, msg.Text); err != nil {
		r.reply.Reply(msg.ChannelID, fmt.Sprintf("Could not deliver message: %v", err))
	}
}

func (r *Router) handleCommand(ctx context.Context, msg ChatMessage) string {
	name, args := parseCommand(msg.Text)
	switch name {
	case "projects":
		return r.cmdProjects()
	case "switch":
		return r.cmdSwitch(ctx, args, msg.ChannelID)
	case "new":
		return r.cmdNew(ctx, args, msg.ChannelID)
	case "sessions":
		return r.cmdSessions()
	case "quit", "q":
		return r.cmdQuit(ctx)
	case "help":
		return r.cmdHelp()
	case "queue_add":
		return r.cmdQueueAdd(args, msg.ChannelID)
	case "queue":
		return r.cmdQueueRun(ctx, args, msg.ChannelID)
	case "queue_status":
		return r.cmdQueueStatus(args)
	case "queue_clear":
		return r.cmdQueueClear(args)
	case "cron":
		return r.cmdCron(args)
	case "":
		return "Usage: @@help"
	default:
		return fmt.Sprintf("Unknown command: @@%s. Try @@help.", name)
	}
}

func (r *Router) cmdProjects() string {
	if len(r.projects) == 0 {
		return "No configured projects."
	}
	var sb strings.Builder
	sb.WriteString("Configured projects:\n")
	for _, p := range r.projects {
		fmt.Fprintf(&sb, "- %s: %s (%s)\n", p.Name, p.Path, p.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (r *Router) bindSessionChannel(sessionID, channel string) {
	if b, ok := r.reply.(ChannelBinder); ok && channel != "" {
		b.BindSession(sessionID, channel)
	}
}

func (r *Router) bindQueueChannel(queueName, channel string) {
	if b, ok := r.reply.(ChannelBinder); ok && channel != "" {
		b.BindQueue(queueName, channel)
	}
}

func (r *Router) cmdSwitch(ctx context.Context, args []string, channel string) string {
	if len(args) != 1 {
		return "Usage: @@switch <project>"
	}
	p, ok := r.projectByName(args[0])
	if !ok {
		return fmt.Sprintf("Unknown project: %s", args[0])
	}

	for _, s := range r.registry.List() {
		if s.Project == p.Name && s.Active {
			if err := r.registry.Switch(s.ID); err != nil {
				return fmt.Sprintf("Could not switch: %v", err)
			}
			r.bindSessionChannel(s.ID, channel)
			return fmt.Sprintf("Switched to existing session for %s.", p.Name)
		}
	}

	sess, err := r.registry.Create(ctx, p.Path, p.Name)
	if err != nil {
		return fmt.Sprintf("Could not start session: %v", err)
	}
	r.bindSessionChannel(sess.ID, channel)
	return fmt.Sprintf("Started and switched to new session for %s (%s).", p.Name, sess.ID)
}

func (r *Router) cmdNew(ctx context.Context, args []string, channel string) string {
	if len(args) != 1 {
		return "Usage: @@new <project>"
	}
	p, ok := r.projectByName(args[0])
	if !ok {
		return fmt.Sprintf("Unknown project: %s", args[0])
	}
	sess, err := r.registry.Create(ctx, p.Path, p.Name)
	if err != nil {
		return fmt.Sprintf("Could not start session: %v", err)
	}
	r.bindSessionChannel(sess.ID, channel)
	return fmt.Sprintf("Started new session for %s (%s).", p.Name, sess.ID)
}

func (r *Router) cmdSessions() string {
	snaps := r.registry.List()
	if len(snaps) == 0 {
		return "No sessions."
	}
	var sb strings.Builder
	for _, s := range snaps {
		fmt.Fprintf(&sb, "- %s [%s] project=%s active=%v last_activity=%s\n",
			s.ID, s.State, s.Project, s.Active, s.LastActivity.Format("15:04:05"))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (r *Router) cmdQuit(ctx context.Context) string {
	sess := r.registry.Current()
	if sess == nil {
		return noActiveSessionMessage
	}
	if err := r.registry.Terminate(ctx, sess.ID); err != nil {
		return fmt.Sprintf("Error terminating session: %v", err)
	}
	return "Session terminated."
}

func (r *Router) cmdHelp() string {
	return strings.TrimRight(`Recognized commands:
@@projects
@@switch <name>
@@new <name>
@@sessions
@@quit / @@q
@@help
@@queue_add <queue> <desc...>
@@queue <queue>
@@queue_status [<queue>]
@@queue_clear <queue>
@@cron <"pattern"> <task,task,...>`, "\n")
}

func (r *Router) cmdQueueAdd(args []string, channel string) string {
	if len(args) < 2 {
		return "Usage: @@queue_add <queue> <description...>"
	}
	queueName := args[0]
	desc := strings.Join(args[1:], " ")

	projectDir, projectName := "", ""
	if sess := r.registry.Current(); sess != nil {
		projectDir, projectName = sess.ProjectDir, sess.Project
	}

	id, err := r.queues.AddForProject(queueName, desc, projectDir, projectName, 0)
	if err != nil {
		return fmt.Sprintf("Could not enqueue task: %v", err)
	}
	r.bindQueueChannel(queueName, channel)
	return fmt.Sprintf("Enqueued task %s in %s.", id, queueName)
}

func (r *Router) cmdQueueRun(ctx context.Context, args []string, channel string) string {
	if len(args) != 1 {
		return "Usage: @@queue <queue>"
	}
	queueName := args[0]
	r.bindQueueChannel(queueName, channel)
	go func() {
		if err := r.queues.Run(ctx, queueName); err != nil {
			r.log.WithError(err).Warn("queue run ended with error")
		}
	}()
	return fmt.Sprintf("Running queue %s.", queueName)
}

func (r *Router) cmdQueueStatus(args []string) string {
	name := ""
	if len(args) == 1 {
		name = args[0]
	}
	summaries, err := r.queues.Status(name)
	if err != nil {
		return fmt.Sprintf("Could not get status: %v", err)
	}
	if len(summaries) == 0 {
		return "No queues."
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Queue < summaries[j].Queue })

	var sb strings.Builder
	for _, s := range summaries {
		failed := 0
		for _, h := range s.History {
			if h.Status == queue.StatusFailed {
				failed++
			}
		}
		fmt.Fprintf(&sb, "- %s: pending=%d running=%v history=%d failed=%d\n", s.Queue, s.Pending, s.Running, len(s.History), failed)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (r *Router) cmdQueueClear(args []string) string {
	if len(args) != 1 {
		return "Usage: @@queue_clear <queue>"
	}
	if err := r.queues.Clear(args[0]); err != nil {
		return fmt.Sprintf("Could not clear queue: %v", err)
	}
	return fmt.Sprintf("Cleared queue %s.", args[0])
}

func (r *Router) cmdCron(args []string) string {
	if len(args) != 2 {
		return `Usage: @@cron <"pattern"> <task,task,...>`
	}
	pattern := args[0]
	taskNames := strings.Split(args[1], ",")

	sess := r.registry.Current()
	if sess == nil {
		return "No active session to infer a target project; @@switch first."
	}

	id, err := r.cron.Schedule(pattern, taskNames, sess.ProjectDir, sess.Project)
	if err != nil {
		return fmt.Sprintf("Could not register schedule: %v", err)
	}
	return fmt.Sprintf("Registered schedule %s.", id)
}
