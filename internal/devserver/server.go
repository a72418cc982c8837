package devserver

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/artisan-platform/live-session/internal/config"
)

// Server is the local development harness: an in-memory stand-in for the
// marketplace backend, signaling server and media provider, so watch and
// broadcast can run without the production platform.
type Server struct {
	cfg   *config.Config
	srv   *http.Server
	store *Store
	hub   *Hub
}

// NewServer wires the harness: store, hub, media relay, router.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if cfg.SimPort == "" {
		return nil, fmt.Errorf("devserver: listen port required")
	}

	store := NewStore()
	hub := NewHub(store, logger)
	urls := &URLConfig{BaseURL: "http://localhost:" + cfg.SimPort}
	relay := NewMediaRelay(store, logger)

	exhibitions := NewExhibitionHandler(store, hub, urls)
	ws := NewWSHandler(hub, store, logger)
	health := NewHealthHandler()

	r := NewRouter(exhibitions, ws, relay, health)

	srv := &http.Server{
		Addr:              cfg.SimAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{cfg: cfg, srv: srv, store: store, hub: hub}, nil
}

// Store exposes the backing store (tests and seeding).
func (s *Server) Store() *Store { return s.store }

// Run starts the HTTP server and blocks until ctx is cancelled; then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	host := s.cfg.SimHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + s.cfg.SimPort
	log.Printf("simulation server listening on %s", s.srv.Addr)
	log.Printf("  Health:      %s/health", base)
	log.Printf("  Exhibition:  %s/exhibitions/demo", base)
	log.Printf("  Signaling:   ws://%s:%s/ws/live", host, s.cfg.SimPort)
	log.Printf("  WHIP/WHEP:   %s/media/whip  %s/media/whep", base, base)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
