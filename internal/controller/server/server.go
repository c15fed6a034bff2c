package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hashicorp-forge/build-trigger/internal/controller/buildlist"
	"github.com/hashicorp-forge/build-trigger/internal/controller/coordinator"
	"github.com/hashicorp-forge/build-trigger/internal/controller/events"
	"github.com/hashicorp-forge/build-trigger/internal/controller/server/http"
	"github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	stateImpl "github.com/hashicorp-forge/build-trigger/internal/controller/state"
	"github.com/hashicorp-forge/build-trigger/internal/controller/trigger"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/logger"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/version"
	api "github.com/hashicorp-forge/build-trigger/pkg/api/v1"
)

type Server struct {
	baseLogger   *zap.Logger
	serverLogger *zap.Logger

	state state.State
	bus   *events.Bus

	coordinators *coordinator.Registry
	trigger      *trigger.Handler

	// buildListsCancel stops the build list watchers.
	buildLists       *buildlist.Registry
	buildListsCancel context.CancelFunc

	httpServer *http.Server
}

func NewServer(cfg *Config) (*Server, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	zapLogger, err := logger.NewZap(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	zapLogger.Info("starting server", zap.String("version", version.Get()))

	server := Server{
		baseLogger:   zapLogger,
		serverLogger: zapLogger.Named(logger.ComponentNameServer),
	}

	apiConfig, err := cfg.CI.APIConfig()
	if err != nil {
		return nil, err
	}
	client := api.NewClient(apiConfig)

	accessLogLevel, err := http.ParseAccessLogLevel(cfg.HTTP.AccessLogLevel)
	if err != nil {
		return nil, err
	}

	stateBackend, err := stateImpl.NewBackend(cfg.State, zapLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create state backend: %w", err)
	}
	server.state = stateBackend

	server.serverLogger.Info("using state backend", zap.String("backend", stateBackend.Name()))

	server.bus = events.NewBus(zapLogger)

	server.coordinators = coordinator.NewRegistry(&coordinator.Config{
		Logger:    zapLogger,
		State:     server.state,
		Client:    client,
		Publisher: server.bus,
	})

	server.trigger, err = trigger.NewHandler(&trigger.Config{
		Logger:    zapLogger,
		State:     server.state,
		Registry:  server.coordinators,
		GitHub:    cfg.GitHubWebhook,
		Schedules: cfg.Schedules,
	})
	if err != nil {
		_ = server.closeBackends()
		return nil, fmt.Errorf("failed to create trigger handler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	server.buildListsCancel = cancel
	server.buildLists = buildlist.NewRegistry(ctx, &buildlist.Config{
		Logger:     zapLogger,
		Client:     client,
		Publisher:  server.bus,
		Subscriber: server.bus,
	})

	httpServerReq := http.ServerReq{
		Logger:             zapLogger,
		HTTPAddr:           cfg.HTTP.Addr,
		HTTPAccessLogLevel: accessLogLevel,
		State:              server.state,
		Trigger:            server.trigger,
		BuildLists:         server.buildLists,
		Bus:                server.bus,
	}

	httpServer, err := http.NewServer(&httpServerReq)
	if err != nil {
		cancel()
		_ = server.closeBackends()
		return nil, fmt.Errorf("failed to create HTTP server: %w", err)
	}
	server.httpServer = httpServer

	return &server, nil
}

func (s *Server) Start() {
	s.trigger.Start()
	s.httpServer.Start()
}

// Stop shuts down the HTTP server first, then waits for in-flight trigger
// requests to publish their outcome before closing the bus and the store.
func (s *Server) Stop() {
	s.httpServer.Stop()
	s.trigger.Stop()
	s.coordinators.Wait()

	s.buildListsCancel()
	s.buildLists.Wait()

	if err := s.closeBackends(); err != nil {
		s.serverLogger.Error("failed to close backends", zap.Error(err))
	}

	_ = s.baseLogger.Sync()
}

func (s *Server) closeBackends() error {
	if err := s.bus.Close(); err != nil {
		return fmt.Errorf("failed to close event bus: %w", err)
	}
	if err := s.state.Close(); err != nil {
		return fmt.Errorf("failed to close state backend: %w", err)
	}
	return nil
}

// Addr returns the address the HTTP server is bound to.
func (s *Server) Addr() string { return s.httpServer.Addr() }

func (s *Server) WaitForSignals() {

	signalCh := make(chan os.Signal, 3)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	// Wait to receive a signal. This blocks until we are notified.
	for {
		s.serverLogger.Debug("wait for signal handler started")

		sig := <-signalCh
		s.serverLogger.Info("received signal", zap.String("signal", sig.String()))

		// SIGHUP is reserved for a config reload, which is not supported yet,
		// so it is ignored. Everything else means exit.
		switch sig {
		case syscall.SIGHUP:
		default:
			s.Stop()
			return
		}
	}
}
