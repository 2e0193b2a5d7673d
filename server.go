package fmusd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"pkt.systems/pslog"

	"pkt.systems/fmusd/internal/clock"
	"pkt.systems/fmusd/internal/httpapi"
	"pkt.systems/fmusd/internal/loggingutil"
	"pkt.systems/fmusd/internal/rms"
	"pkt.systems/fmusd/internal/session"
	"pkt.systems/fmusd/internal/smda"
)

// Server wraps the HTTP server, the session registry, and supporting
// components.
type Server struct {
	cfg          Config
	logger       pslog.Logger
	manager      *session.Manager
	handler      *httpapi.Handler
	httpSrv      *http.Server
	metricsSrv   *http.Server
	listener     net.Listener
	metricsLn    net.Listener
	socketPath   string
	clock        clock.Clock
	lastServeErr error

	mu        sync.Mutex
	shutdown  bool
	readyOnce sync.Once
	readyCh   chan struct{}
}

// Option configures server instances.
type Option func(*options)

type options struct {
	Logger  pslog.Logger
	Clock   clock.Clock
	Opener  rms.Opener
	SMDA    smda.Connector
	Manager *session.Manager
}

// WithLogger supplies a custom logger.
func WithLogger(l pslog.Logger) Option {
	return func(o *options) {
		o.Logger = l
	}
}

// WithClock injects a custom clock implementation.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.Clock = c
	}
}

// WithRMSOpener selects the backend that opens RMS projects. Without one the
// RMS endpoints report the backend as unavailable.
func WithRMSOpener(opener rms.Opener) Option {
	return func(o *options) {
		o.Opener = opener
	}
}

// WithSMDAConnector selects the backend that serves SMDA masterdata queries.
// Without one the SMDA endpoints report the backend as unavailable.
func WithSMDAConnector(conn smda.Connector) Option {
	return func(o *options) {
		o.SMDA = conn
	}
}

// WithSessionManager injects a pre-built session registry (useful for tests).
func WithSessionManager(m *session.Manager) Option {
	return func(o *options) {
		o.Manager = m
	}
}

// NewServer constructs a daemon according to cfg.
// Example:
//
//	cfg := fmusd.Config{Listen: "127.0.0.1:8001"}
//	srv, err := fmusd.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go srv.Start()
func NewServer(cfg Config, opts ...Option) (*Server, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := loggingutil.Ensure(o.Logger)
	serverClock := o.Clock
	if serverClock == nil {
		serverClock = clock.Real{}
	}

	var registry *prometheus.Registry
	var metrics *session.Metrics
	if cfg.MetricsListen != "" {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = session.NewMetrics(registry)
	}

	manager := o.Manager
	if manager == nil {
		manager = session.NewManager(
			session.WithClock(serverClock),
			session.WithTTL(cfg.SessionTTL),
			session.WithLogger(logger.With("svc", "session")),
			session.WithMetrics(metrics),
		)
	}

	handler, err := httpapi.New(httpapi.Config{
		Manager:       manager,
		Opener:        o.Opener,
		SMDA:          o.SMDA,
		Logger:        logger.With("svc", "api"),
		Clock:         serverClock,
		APIToken:      cfg.APIToken,
		UserHome:      cfg.UserHome,
		RMSVersion:    cfg.RMSVersion,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		EnableTracing: cfg.EnableTracing,
	})
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	handler.Register(mux)

	srv := &Server{
		cfg:     cfg,
		logger:  logger.With("svc", "server"),
		manager: manager,
		handler: handler,
		httpSrv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		clock:   serverClock,
		readyCh: make(chan struct{}),
	}
	if registry != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv.metricsSrv = &http.Server{
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return srv, nil
}

// Handler returns the underlying HTTP handler so the API can be mounted
// inside an existing mux when embedding the daemon into another program.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Manager exposes the session registry for embedders.
func (s *Server) Manager() *session.Manager {
	return s.manager
}

// Start begins serving requests and blocks until the server stops.
func (s *Server) Start() error {
	if s.cfg.ListenProto == "unix" {
		if err := os.Remove(s.cfg.Listen); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale unix socket: %w", err)
		}
	}
	ln, err := net.Listen(s.cfg.ListenProto, s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen (%s %s): %w", s.cfg.ListenProto, s.cfg.Listen, err)
	}
	s.listener = ln
	if s.cfg.ListenProto == "unix" {
		s.socketPath = s.cfg.Listen
	}
	if s.metricsSrv != nil {
		mln, err := net.Listen("tcp", s.cfg.MetricsListen)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("metrics listen (%s): %w", s.cfg.MetricsListen, err)
		}
		s.metricsLn = mln
		go func() {
			if err := s.metricsSrv.Serve(mln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("metrics serve failed", "error", err)
			}
		}()
		s.logger.Info("metrics listening", "address", mln.Addr().String())
	}
	s.signalReady()
	s.logger.Info("listening",
		"network", s.cfg.ListenProto,
		"address", ln.Addr().String(),
		"session_ttl", s.cfg.SessionTTL,
	)
	serveErr := s.httpSrv.Serve(ln)
	s.recordServeErr(serveErr)
	if errors.Is(serveErr, http.ErrServerClosed) {
		return nil
	}
	if serveErr != nil {
		return fmt.Errorf("http serve: %w", serveErr)
	}
	return nil
}

// Shutdown gracefully stops the server, destroying every live session so
// held directory locks are released and RMS handles closed. The returned
// error is nil for clean shutdowns.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	s.mu.Unlock()

	if err := s.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if s.metricsSrv != nil {
		if err := s.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics shutdown: %w", err)
		}
	}
	if l := s.listener; l != nil {
		_ = l.Close()
		s.listener = nil
	}
	if l := s.metricsLn; l != nil {
		_ = l.Close()
		s.metricsLn = nil
	}
	if err := s.manager.Shutdown(ctx); err != nil {
		return fmt.Errorf("session shutdown: %w", err)
	}
	if s.cfg.ListenProto == "unix" && s.socketPath != "" {
		if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	if err := s.LastServeError(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts the server down bounded by the configured shutdown
// timeout.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

func (s *Server) signalReady() {
	s.readyOnce.Do(func() {
		close(s.readyCh)
	})
}

// WaitUntilReady blocks until the server listener is initialized or context
// ends.
func (s *Server) WaitUntilReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListenerAddr returns the bound listener address once available.
func (s *Server) ListenerAddr() net.Addr {
	if l := s.listener; l != nil {
		return l.Addr()
	}
	return nil
}

// MetricsAddr returns the bound metrics listener address, or nil when
// metrics are disabled or the server has not started.
func (s *Server) MetricsAddr() net.Addr {
	if l := s.metricsLn; l != nil {
		return l.Addr()
	}
	return nil
}

func (s *Server) recordServeErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastServeErr == nil {
		s.lastServeErr = err
	}
}

// LastServeError reports the first fatal serve error, if any.
func (s *Server) LastServeError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastServeErr
}
