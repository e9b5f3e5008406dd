package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/akshaykankal/facto/internal/infrastructure/security"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router       *gin.Engine
	container    *Container
	httpServer   *http.Server
	workerCtx    context.Context
	workerCancel context.CancelFunc
	workerWG     sync.WaitGroup
}

func NewServer(container *Container) *Server {
	router := SetupRouter(container)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	return &Server{
		router:       router,
		container:    container,
		workerCtx:    workerCtx,
		workerCancel: workerCancel,
	}
}

func (s *Server) Start() error {
	if err := s.startBackgroundWorkers(); err != nil {
		return err
	}
	s.startMetricsCollector()

	cfg := s.container.Config.Server
	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:           addr,
		Handler:        s.router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	s.container.Logger.Info(s.workerCtx,
		fmt.Sprintf("Starting server on %s", addr),
		zap.String("env", cfg.Env),
		zap.String("version", Version),
		zap.Bool("audit_log_dedicated", s.container.AuditLogger.IsDedicated()),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server failed: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		s.stopWorkers()
		s.container.Close()
		return err
	case sig := <-sigChan:
		s.container.Logger.Info(s.workerCtx, "Shutdown signal received", zap.String("signal", sig.String()))
		return s.gracefulShutdown()
	}
}

// startBackgroundWorkers launches the interval sweep, the precise planner and
// the in-memory limiter janitor, each only when configured.
func (s *Server) startBackgroundWorkers() error {
	automation := s.container.Config.Automation

	if interval := automation.SweepInterval; interval > 0 {
		s.workerWG.Add(1)
		go func() {
			defer s.workerWG.Done()
			s.container.Logger.Info(s.workerCtx, "Starting attendance sweep job", zap.Duration("interval", interval))
			s.container.Scheduler.StartSweepJob(s.workerCtx, interval)
			s.container.Logger.Info(s.workerCtx, "Attendance sweep job stopped")
		}()
	}

	if s.container.Planner != nil {
		if err := s.container.Planner.Start(s.workerCtx); err != nil {
			return fmt.Errorf("start attendance planner: %w", err)
		}
	}

	if limiter, ok := s.container.GetRateLimiter().(*security.InMemoryRateLimiter); ok {
		s.workerWG.Add(1)
		go func() {
			defer s.workerWG.Done()
			limiter.Run(s.workerCtx)
		}()
	}

	return nil
}

func (s *Server) startMetricsCollector() {
	if !s.container.Config.Metrics.Enabled {
		return
	}
	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-s.workerCtx.Done():
				return
			case <-ticker.C:
				if s.workerCtx.Err() != nil {
					return
				}
				s.container.DB.RecordStats()
			}
		}
	}()
}

// stopWorkers stops the planner first so no trigger fires against a closing
// pool, then cancels the loops and waits a bounded time for them.
func (s *Server) stopWorkers() {
	if s.container.Planner != nil {
		s.container.Planner.Stop()
	}
	s.workerCancel()

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.container.Logger.Info(s.workerCtx, "Background workers finished")
	case <-time.After(10 * time.Second):
		s.container.Logger.Warn(s.workerCtx, "Background workers did not finish in time, proceeding with shutdown")
	}
}

func (s *Server) gracefulShutdown() error {
	timeout := s.container.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	s.container.Logger.Info(s.workerCtx, "Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.container.Logger.Error(s.workerCtx, "HTTP server shutdown failed", zap.Error(err))
	}

	s.container.Logger.Info(s.workerCtx, "Stopping background workers...")
	s.stopWorkers()

	s.container.Logger.Info(s.workerCtx, "Closing infrastructure connections...")
	s.container.Close()
	s.container.Logger.Info(s.workerCtx, "Server exited gracefully")
	return nil
}
