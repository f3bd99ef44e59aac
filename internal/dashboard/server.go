// Package dashboard serves the bot's status over HTTP: health, token lease
// state, counters, and a bounded window of recently processed alerts.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"alertbot/internal/broker"
)

type Server struct {
	router    *chi.Mux
	server    *http.Server
	broker    broker.Broker
	recorder  *Recorder
	logger    *logrus.Logger
	port      int
	authToken string
	started   time.Time
	mode      string
}

type Config struct {
	Port      int
	AuthToken string
	Mode      string // sim | live, shown verbatim in /api/status
}

func NewServer(cfg Config, b broker.Broker, recorder *Recorder, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		broker:    b,
		recorder:  recorder,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
		started:   time.Now(),
		mode:      cfg.Mode,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/status", s.handleStatus)
	s.router.Get("/api/alerts", s.handleAlerts)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	s.writeJSON(w, health)
}

type statusResponse struct {
	Mode           string    `json:"mode"`
	UptimeSeconds  int64     `json:"uptime_seconds"`
	Authenticated  bool      `json:"authenticated"`
	TokenExpiresAt time.Time `json:"token_expires_at,omitempty"`
	Counters       Counters  `json:"counters"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Mode:          s.mode,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Counters:      s.recorder.Stats(),
	}
	if s.broker != nil {
		token := s.broker.TokenStatus()
		resp.Authenticated = token.Authenticated
		resp.TokenExpiresAt = token.ExpiresAt
	}
	s.writeJSON(w, resp)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.recorder.Recent())
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
