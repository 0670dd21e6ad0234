// Package main is the entry point for the session orchestrator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sessionbridge/orchestrator/internal/chat"
	"github.com/sessionbridge/orchestrator/internal/config"
	"github.com/sessionbridge/orchestrator/internal/cron"
	"github.com/sessionbridge/orchestrator/internal/eventbus"
	"github.com/sessionbridge/orchestrator/internal/health"
	"github.com/sessionbridge/orchestrator/internal/logging"
	"github.com/sessionbridge/orchestrator/internal/queue"
	"github.com/sessionbridge/orchestrator/internal/registry"
	"github.com/sessionbridge/orchestrator/internal/router"
	"github.com/sessionbridge/orchestrator/internal/tracing"
)

// channelRouter tracks which chat channel a session or queue's
// progress reports belong to, and fans both registry output and queue
// progress lines out through one retrying chat sender. Kept here
// rather than in internal/registry or internal/queue so neither of
// those packages needs to know about chat channels.
type channelRouter struct {
	sender chat.Transport

	mu          sync.Mutex
	sessionChan map[string]string
	queueChan   map[string]string
}

func newChannelRouter(sender chat.Transport) *channelRouter {
	return &channelRouter{
		sender:      sender,
		sessionChan: make(map[string]string),
		queueChan:   make(map[string]string),
	}
}

// BindSession and BindQueue implement router.ChannelBinder.

func (c *channelRouter) BindSession(sessionID, channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionChan[sessionID] = channel
}

func (c *channelRouter) BindQueue(queueName, channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queueChan[queueName] = channel
}

// Forward implements registry.ChatForwarder.
func (c *channelRouter) Forward(sessionID, text string) {
	c.mu.Lock()
	channel := c.sessionChan[sessionID]
	c.mu.Unlock()
	if channel == "" {
		return
	}
	_ = c.sender.Send(channel, text)
}

// Report implements queue.ProgressReporter.
func (c *channelRouter) Report(queueName, line string) {
	c.mu.Lock()
	channel := c.queueChan[queueName]
	c.mu.Unlock()
	if channel == "" {
		return
	}
	_ = c.sender.Send(channel, line)
}

// Reply implements router.Reply.
func (c *channelRouter) Reply(channelID, text string) {
	_ = c.sender.Send(channelID, text)
}

func main() {
	// 1. Load configuration.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger.
	log, err := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logging.SetDefault(log)
	log.Info("starting session orchestrator")

	// 3. Root context, cancelled on shutdown signal.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Tracing (no-op unless tracing.enabled is set).
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		log.Fatal("failed to set up tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	// 5. Event bus (in-process unless eventBus.natsUrl is set).
	bus, err := eventbus.New(cfg.EventBus, log)
	if err != nil {
		log.Fatal("failed to set up event bus", zap.Error(err))
	}
	defer bus.Close()

	// 6. Chat transport: websocket dev bridge, wrapped with retry/backoff.
	bridge := chat.NewWebSocketBridge(log)
	sender := chat.NewRetryingSender(bridge, 3, 200*time.Millisecond, log)
	channels := newChannelRouter(sender)

	// 7. Session Registry.
	reg := registry.New(cfg.Session, cfg.Handler, cfg.Projects, channels, log)

	// 8. Task Queue Manager, rehydrating queues.json if present.
	queueReporter := eventbus.NewQueueReporter(bus)
	combinedReporter := multiReporter{channels, queueReporter}
	queues, err := queue.New(cfg.Queue, reg, combinedReporter, log)
	if err != nil {
		log.Fatal("failed to initialize task queue manager", zap.Error(err))
	}

	// 9. Cron Scheduler.
	catalog, err := cron.LoadCatalog(cfg.Cron.CatalogPath)
	if err != nil {
		log.Fatal("failed to load cron catalog", zap.Error(err))
	}
	scheduler := cron.New(catalog, queues, cfg.Cron.TickCeiling, log)
	scheduler.OnFired(func(scheduleID, projectName string) {
		eventbus.PublishScheduleFired(bus, scheduleID, projectName)
	})

	// 10. Command Router.
	cmdRouter := router.New(reg, queues, scheduler, cfg.Projects, channels, log)

	// 11. Health/debug HTTP server, also hosting the dev chat bridge's
	// websocket upgrade endpoint.
	healthServer := health.New(cfg.Server, reg, queues, scheduler, bridge.Handler, log)
	healthServer.Start()

	// 12. Background supervisor: a panic in the scheduler or reaper loop
	// is recovered, logged, and the loop is restarted rather than
	// crashing the process (spec.md §7). Handlers are never
	// auto-restarted; a dead Assistant Handler surfaces as an Error
	// state, not a process-level panic.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return supervise(gctx, "scheduler", scheduler.Start, log) })
	g.Go(func() error { return supervise(gctx, "reaper", reg.RunReaper, log) })
	g.Go(func() error { return dispatchLoop(gctx, bridge, cmdRouter, log) })

	// 13. Wait for shutdown signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down session orchestrator")

	cancel()
	scheduler.Stop()
	_ = healthServer.Shutdown(context.Background())
	_ = bridge.Close()

	if err := g.Wait(); err != nil {
		log.WithError(err).Warn("background supervisor exited with error")
	}
	log.Info("session orchestrator stopped")
}

// multiReporter fans a queue progress line out to more than one
// ProgressReporter (chat forwarding and the ambient event bus).
type multiReporter struct {
	a, b interface{ Report(string, string) }
}

func (m multiReporter) Report(queue, line string) {
	m.a.Report(queue, line)
	m.b.Report(queue, line)
}

// supervise runs fn until it returns, with or without an error
// (including on ctx cancellation). A panic is recovered, logged, and fn is
// invoked again from the top rather than letting it unwind past this
// goroutine and crash the process (spec.md §7: "Panics/uncaught
// exceptions from any background task are captured by a top-level
// supervisor that logs and restarts only the scheduler and reaper").
func supervise(ctx context.Context, name string, fn func(context.Context) error, log *logging.Logger) error {
	for {
		err, panicked := runSupervised(ctx, name, fn, log)
		if !panicked {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		log.Warn(fmt.Sprintf("%s panicked, restarting", name))
	}
}

func runSupervised(ctx context.Context, name string, fn func(context.Context) error, log *logging.Logger) (err error, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(fmt.Sprintf("%s panic recovered: %v", name, r))
			panicked = true
		}
	}()
	err = fn(ctx)
	return err, false
}

func dispatchLoop(ctx context.Context, bridge *chat.WebSocketBridge, r *router.Router, log *logging.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-bridge.Messages():
			if !ok {
				return nil
			}
			r.Dispatch(ctx, router.ChatMessage{
				Text:      msg.Text,
				UserID:    msg.UserID,
				ChannelID: msg.ChannelID,
				Timestamp: msg.Timestamp,
				ThreadRef: msg.ThreadRef,
			})
		}
	}
}
