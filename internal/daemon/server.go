package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"go.uber.org/zap"

	"github.com/nick134920/ClaudeFlow/internal/agent"
	"github.com/nick134920/ClaudeFlow/internal/config"
	"github.com/nick134920/ClaudeFlow/internal/engine"
	"github.com/nick134920/ClaudeFlow/internal/notion"
	"github.com/nick134920/ClaudeFlow/internal/observability"
	"github.com/nick134920/ClaudeFlow/internal/store"
	"github.com/nick134920/ClaudeFlow/internal/trace"
)

// SessionRunner starts sessions. *agent.Runner implements it.
type SessionRunner interface {
	Modules() []string
	Profile(module string) (*agent.Profile, bool)
	NewSessionID(module string) string
	RunSession(ctx context.Context, req agent.Request) agent.Outcome
}

// SessionReader looks up ledger rows. *store.Store implements it.
type SessionReader interface {
	Get(ctx context.Context, id string) (store.Session, error)
}

// Server is the HTTP front door: it accepts session requests and runs them in the
// background on a context that outlives the request.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	runner  SessionRunner
	ledger  SessionReader
	metrics *observability.Metrics
	closers []func() error

	sessionsCtx    context.Context
	cancelSessions context.CancelFunc
	sessions       sync.WaitGroup
}

// NewServer wires the engine source, the Notion client, the trace sink and the
// session ledger from cfg.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if strings.TrimSpace(cfg.Notion.Token) == "" {
		return nil, errors.New("notion.token is required (CLAUDEFLOW_NOTION_TOKEN)")
	}

	metrics := observability.NewMetrics()

	source, err := engine.NewSource(cfg.Engine.Transport, cfg.Engine.BaseURL, cfg.Engine.Timeout)
	if err != nil {
		return nil, fmt.Errorf("build engine source: %w", err)
	}

	transport := notion.NewHTTPTransport(cfg.Notion.BaseURL, cfg.Notion.Token, cfg.Notion.Version, cfg.Notion.Timeout)
	publisher := notion.NewClient(transport, notion.Options{
		MaxAttempts: cfg.Notion.MaxAttempts,
		Backoff:     cfg.Notion.Backoff,
		BatchSize:   cfg.Notion.MaxBlocksPerRequest,
	}, logger.Named("notion"), metrics)

	profiles, err := agent.ProfilesFromConfig(cfg.Agents)
	if err != nil {
		return nil, err
	}

	opts := agent.Options{
		Source:    source,
		Publisher: publisher,
		Sink:      trace.FileSink{Root: cfg.Trace.Dir},
		Metrics:   metrics,
		Logger:    logger.Named("session"),
	}

	var ledger SessionReader
	var closers []func() error
	if path := strings.TrimSpace(cfg.Store.Path); path != "" {
		st, err := store.Open(context.Background(), path)
		if err != nil {
			return nil, err
		}
		opts.Ledger = st
		ledger = st
		closers = append(closers, st.Close)
	}

	s := New(cfg, logger, agent.NewRunner(profiles, opts), ledger, metrics)
	s.closers = closers
	return s, nil
}

// New constructs a server around an existing runner. ledger may be nil.
func New(cfg *config.Config, logger *zap.Logger, runner SessionRunner, ledger SessionReader, metrics *observability.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:            cfg,
		logger:         logger,
		runner:         runner,
		ledger:         ledger,
		metrics:        metrics,
		sessionsCtx:    ctx,
		cancelSessions: cancel,
	}
}

// Handler returns the routed front door with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /metrics", s.metricsHandler)
	mux.HandleFunc("GET /v1/agents", s.agentsHandler)
	mux.HandleFunc("POST /v1/agents/{module}", s.submitHandler)
	mux.HandleFunc("GET /v1/sessions/{id}", s.sessionHandler)
	return s.logRequests(mux)
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
// On shutdown it stops accepting requests, then waits for running sessions.
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting claudeflow daemon", zap.String("addr", s.cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down claudeflow daemon")
	case err := <-errCh:
		s.cancelSessions()
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	return s.Drain(shutdownCtx)
}

// Drain waits for running sessions until ctx is done, then cancels the rest and waits
// for them to record their failure.
func (s *Server) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancelSessions()
		return nil
	case <-ctx.Done():
	}

	s.logger.Warn("cancelling sessions still running at shutdown")
	s.cancelSessions()
	<-done
	return fmt.Errorf("sessions cancelled at shutdown: %w", ctx.Err())
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.Server.ShutdownTimeout > 0 {
		return s.cfg.Server.ShutdownTimeout
	}
	return 30 * time.Second
}

func (s *Server) close() {
	for _, c := range s.closers {
		if err := c(); err != nil {
			s.logger.Warn("close failed", zap.Error(err))
		}
	}
}

// startSession runs req on the server's lifetime context, detached from the request.
func (s *Server) startSession(req agent.Request) {
	s.sessions.Add(1)
	go func() {
		defer s.sessions.Done()
		s.runner.RunSession(s.sessionsCtx, req)
	}()
}
