// Package health exposes the non-core debug/health HTTP surface
// (spec.md §1 lists this as out of scope for the core itself, but
// still ambient infrastructure every deployment of it needs).
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sessionbridge/orchestrator/internal/config"
	"github.com/sessionbridge/orchestrator/internal/cron"
	"github.com/sessionbridge/orchestrator/internal/logging"
	"github.com/sessionbridge/orchestrator/internal/queue"
	"github.com/sessionbridge/orchestrator/internal/registry"
)

// Server hosts the /health and /debug/* endpoints.
type Server struct {
	httpServer *http.Server
	log        *logging.Logger
}

// New builds the Gin router and wraps it in an *http.Server, following
// the teacher's gin.New + middleware + explicit http.Server shape.
// wsHandler, when non-nil, is mounted at /ws (the dev chat bridge's
// upgrade endpoint) so it shares this process's only listening port.
func New(cfg config.ServerConfig, reg *registry.Registry, queues *queue.Manager, scheduler *cron.Scheduler, wsHandler http.HandlerFunc, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())

	if wsHandler != nil {
		router.GET("/ws", gin.WrapF(wsHandler))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, reg.List())
	})

	router.GET("/debug/queues", func(c *gin.Context) {
		summaries, err := queues.Status("")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summaries)
	})

	router.GET("/debug/schedules", func(c *gin.Context) {
		c.JSON(http.StatusOK, scheduler.List())
	})

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		httpServer: &http.Server{Addr: addr, Handler: router},
		log:        log,
	}
}

// Start serves in the background; errors other than a clean shutdown
// are logged.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("health server stopped unexpectedly")
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
