// Package server exposes report runs over HTTP: an on-demand endpoint,
// run history, a websocket feed of run events, and Prometheus metrics.
package server

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sdzerobot/sdzerobot/config"
	"github.com/sdzerobot/sdzerobot/errors"
	"github.com/sdzerobot/sdzerobot/history"
	"github.com/sdzerobot/sdzerobot/logger"
	"github.com/sdzerobot/sdzerobot/metrics"
	"github.com/sdzerobot/sdzerobot/tabulator"
)

// MaxClients limits concurrent websocket connections
const MaxClients = 100

// PageRunner runs every report on a page
type PageRunner interface {
	RunPage(ctx context.Context, title string) ([]tabulator.Result, error)
}

// RunLister reads run history
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]history.Run, error)
	ForPage(ctx context.Context, page string, limit int) ([]history.Run, error)
}

// Server serves the web runner
type Server struct {
	cfg     config.ServerConfig
	runner  PageRunner
	runs    RunLister
	metrics *metrics.Metrics
	logger  *zap.SugaredLogger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan tabulator.Event
	mu         sync.RWMutex

	broadcastDrops atomic.Int64

	httpServer *http.Server
	handler    http.Handler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server. runs and m may be nil.
func New(cfg config.ServerConfig, runner PageRunner, runs RunLister, m *metrics.Metrics) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		runner:     runner,
		runs:       runs,
		metrics:    m,
		logger:     logger.ComponentLogger("server"),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan tabulator.Event, 256),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.handler = s.setupRoutes()

	s.wg.Add(1)
	go s.run()
	return s
}

// SetLogger replaces the server's logger
func (s *Server) SetLogger(l *zap.SugaredLogger) {
	if l != nil {
		s.logger = l
	}
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + strconv.Itoa(s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Report runs can take as long as the statement timeout
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("Listening", logger.FieldAddress, addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	s.Stop()
	if err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

// Stop closes all websocket clients and stops the broadcast loop
func (s *Server) Stop() {
	s.cancel()
	s.wg.Wait()
}
