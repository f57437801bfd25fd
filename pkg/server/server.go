package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/contextcanvas/pkg/events"
	"github.com/go-go-golems/contextcanvas/pkg/orchestrator"
	"github.com/go-go-golems/contextcanvas/pkg/store"
	"github.com/go-go-golems/contextcanvas/pkg/templates"
)

// Settings controls the embedded HTTP server.
type Settings struct {
	Addr           string
	SessionIdleTTL time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Addr:           ":3000",
		SessionIdleTTL: time.Hour,
	}
}

// Server owns the HTTP surface: chat (buffered and streaming), canvas
// persistence, templates, viewport state, and websocket event forwarding.
type Server struct {
	settings Settings

	router    *events.EventRouter
	mux       *http.ServeMux
	server    *http.Server
	orch      *orchestrator.Orchestrator
	sessions  *orchestrator.SessionStore
	canvases  store.CanvasStore
	templates *templates.Registry

	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewServer(
	settings Settings,
	router *events.EventRouter,
	orch *orchestrator.Orchestrator,
	canvases store.CanvasStore,
	tpls *templates.Registry,
) *Server {
	s := &Server{
		settings:  settings,
		router:    router,
		mux:       http.NewServeMux(),
		orch:      orch,
		sessions:  orchestrator.NewSessionStore(settings.SessionIdleTTL),
		canvases:  canvases,
		templates: tpls,
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:    log.With().Str("component", "server").Logger(),
	}
	s.registerHandlers()
	s.server = &http.Server{
		Addr:              settings.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run starts the event router and HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	eg := errgroup.Group{}
	srvCtx, srvCancel := context.WithCancel(ctx)
	defer srvCancel()

	eg.Go(func() error { return s.router.Run(srvCtx) })

	stopEviction := make(chan struct{})
	s.sessions.StartEvictionLoop(5*time.Minute, stopEviction)

	eg.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigChan:
			s.logger.Info().Msg("received interrupt signal, shutting down gracefully...")
		case <-srvCtx.Done():
		}
		close(stopEviction)
		srvCancel()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("server shutdown error")
			return err
		}
		if err := s.router.Close(); err != nil {
			s.logger.Error().Err(err).Msg("router close error")
		}
		s.logger.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		s.logger.Info().Str("addr", s.settings.Addr).Msg("starting contextcanvas server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("server listen error")
			return err
		}
		return nil
	})

	return eg.Wait()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
