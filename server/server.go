package server

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailsync/api"
	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/internal/cron"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/services"
)

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	repositories *repository.Repositories
	cron         *cron.CronManager
	tracerCloser io.Closer
}

// NewRuntime builds the logger, tracer, repositories and services shared by
// the server and the one-shot commands.
func NewRuntime(cfg *config.Config, mailsyncDB, crmDB *gorm.DB) (logger.Logger, *repository.Repositories, *services.Services, io.Closer, error) {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	opentracing.SetGlobalTracer(tracer)

	repos := repository.InitRepositories(mailsyncDB, crmDB)
	svcs := services.InitServices(cfg, appLogger, repos)
	return appLogger, repos, svcs, closer, nil
}

func NewServer(cfg *config.Config, mailsyncDB, crmDB *gorm.DB) (*Server, error) {
	appLogger, repos, svcs, closer, err := NewRuntime(cfg, mailsyncDB, crmDB)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	return &Server{
		config:       cfg,
		log:          appLogger,
		router:       router,
		services:     svcs,
		repositories: repos,
		cron:         cron.NewCronManager(cfg.CronConfig, appLogger, svcs.Scheduler, svcs.ConnectionManager),
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:              ":" + cfg.AppConfig.APIPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *Server) Initialize(ctx context.Context) error {
	// A crashed process leaves rows in syncing that nobody owns any more
	if s.config.SyncConfig.StaleSyncingReset {
		reset, err := s.repositories.SyncStateRepository.ResetStaleSyncing(ctx)
		if err != nil {
			return err
		}
		if reset > 0 {
			s.log.Warnf("reset %d sync states left in syncing", reset)
		}
	}

	api.RegisterRoutes(s.router, s.services, s.repositories, s.log, s.config.AppConfig.APIKey)
	return nil
}

func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Initialize(ctx); err != nil {
		return err
	}

	s.log.Info("Connecting mail accounts...")
	if err := s.services.ConnectionManager.SyncAll(ctx); err != nil {
		// accounts are picked up again by the failsafe poll
		s.log.Errorf("initial account connection failed: %v", err)
	}

	if err := s.cron.StartCron(); err != nil {
		return err
	}

	go func() {
		defer tracing.RecoverAndLogToJaeger(s.log)
		s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("HTTP server error: %v", err)
		}
	}()
	s.log.Info("Mailsync is now running. Press Ctrl+C to exit.")

	return s.waitForShutdown()
}

func (s *Server) waitForShutdown() error {
	defer tracing.RecoverAndLogToJaeger(s.log)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	s.log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("HTTP server shutdown error: %v", err)
	} else {
		s.log.Info("HTTP server shut down successfully")
	}

	// running jobs finish before the sessions they use go away
	s.cron.Stop()

	stopDone := make(chan struct{})
	go func() {
		defer close(stopDone)
		defer tracing.RecoverAndLogToJaeger(s.log)
		if err := s.services.Close(); err != nil {
			s.log.Errorf("services shutdown error: %v", err)
		}
	}()

	select {
	case <-stopDone:
		s.log.Info("Mail sessions closed")
	case <-time.After(10 * time.Second):
		s.log.Warn("Mail session shutdown timed out, forcing exit")
	}

	if s.tracerCloser != nil {
		_ = s.tracerCloser.Close()
	}
	_ = s.log.Sync()
	return nil
}
