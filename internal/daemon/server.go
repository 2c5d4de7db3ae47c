package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/neu-labs/neu/internal/updater"
)

const shutdownTimeout = 5 * time.Second

// Server exposes a Scheduler over HTTP.
type Server struct {
	sched    *Scheduler
	stateDir string
	metrics  *updater.Metrics
	logger   *slog.Logger
	engine   *gin.Engine
}

// NewServer builds the router. metrics may be nil, in which case /metrics
// answers 404.
func NewServer(sched *Scheduler, stateDir string, metrics *updater.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sched:    sched,
		stateDir: stateDir,
		metrics:  metrics,
		logger:   logger,
		engine:   gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.requestLog())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.healthz)
	s.engine.GET("/status", s.status)
	s.engine.POST("/trigger", s.triggerCycle)
	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("daemon listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving %s: %w", addr, err)
	}
	return nil
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"running": s.sched.Running(),
	})
}

func (s *Server) status(c *gin.Context) {
	if res, ok := s.sched.Last(); ok {
		c.JSON(http.StatusOK, updater.StatusFromResult(res))
		return
	}

	st, err := updater.LoadStatus(s.stateDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "status.unreadable",
			"message": err.Error(),
		})
		return
	}
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "status.none",
			"message": "no update cycle has run yet",
		})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) triggerCycle(c *gin.Context) {
	queued := s.sched.Trigger()
	c.JSON(http.StatusAccepted, gin.H{
		"queued":    queued,
		"running":   s.sched.Running(),
		"coalesced": !queued,
	})
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
