package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/giftly/metrics-reporter/internal/domain"
	"github.com/giftly/metrics-reporter/internal/engine"
	"github.com/giftly/metrics-reporter/internal/pkg/logger"
)

// RunTrigger starts a report run. Satisfied by engine.Scheduler.
type RunTrigger interface {
	RunLocked(ctx context.Context, req engine.RunRequest) (*domain.RunResult, error)
}

// Server wires the HTTP surface: the run trigger and health probes.
type Server struct {
	runs   RunTrigger
	db     *sql.DB
	redis  *redis.Client
	router chi.Router
}

// NewServer builds the router. redisClient may be nil when Redis is not
// configured; the health probe then reports it as skipped.
func NewServer(runs RunTrigger, db *sql.DB, redisClient *redis.Client) *Server {
	s := &Server{runs: runs, db: db, redis: redisClient}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/health/live", s.handleLiveness)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/reports/run", s.handleRunReport)
	})

	s.router = r
	return s
}

// Router returns the http handler for the server.
func (s *Server) Router() http.Handler {
	return s.router
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", "error", err.Error())
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}
