package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdHTTP "net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hashicorp-forge/build-trigger/internal/controller/buildlist"
	"github.com/hashicorp-forge/build-trigger/internal/controller/events"
	"github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/controller/trigger"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/logger"
)

// shutdownTimeout bounds how long Stop waits for in-flight requests.
const shutdownTimeout = 5 * time.Second

type ServerReq struct {
	Logger             *zap.Logger
	HTTPAddr           string
	HTTPAccessLogLevel zapcore.Level
	State              state.State
	Trigger            *trigger.Handler
	BuildLists         *buildlist.Registry
	Bus                *events.Bus
}

// Server serves the agent API and the CI webhook endpoint.
type Server struct {
	logger *zap.Logger
	ln     net.Listener
	srv    *stdHTTP.Server
}

func NewServer(req *ServerReq) (*Server, error) {

	ln, err := listen(req.HTTPAddr)
	if err != nil {
		return nil, err
	}

	s := Server{
		ln: ln,
		logger: req.Logger.Named(logger.ComponentNameHTTPServer).With(
			zap.String("bind_addr", ln.Addr().String()),
		),
		srv: &stdHTTP.Server{
			Handler:           newRouter(req),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}

	s.logger.Debug("HTTP listener bound")
	return &s, nil
}

// listen accepts either a URL such as "http://127.0.0.1:8080" or a bare
// host:port pair.
func listen(addr string) (net.Listener, error) {

	hostPort := addr
	if strings.Contains(addr, "://") {
		u, err := url.Parse(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse HTTP address: %w", err)
		}
		if u.Scheme != "http" {
			return nil, fmt.Errorf("unsupported HTTP address scheme %q", u.Scheme)
		}
		hostPort = u.Host
	}

	ln, err := net.Listen("tcp", hostPort)
	if err != nil {
		return nil, fmt.Errorf("failed to setup HTTP listener: %w", err)
	}
	return ln, nil
}

// Start serves requests in the background until Stop is called.
func (s *Server) Start() {
	s.logger.Info("HTTP server listening")

	go func() {
		err := s.srv.Serve(s.ln)
		if err != nil && !errors.Is(err, stdHTTP.ErrServerClosed) {
			s.logger.Error("HTTP server exited", zap.Error(err))
		}
	}()
}

// Addr returns the address the listener is bound to.
func (s *Server) Addr() string { return s.ln.Addr().String() }

func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP server did not drain before timeout", zap.Error(err))
		_ = s.srv.Close()
		return
	}
	s.logger.Info("HTTP server stopped")
}
