package api

import (
	"context"
	"net/http"
	"time"
)

type componentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// handleHealth reports readiness: database and, when configured, Redis.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	components := map[string]componentHealth{
		"database": s.checkDatabase(ctx),
		"redis":    s.checkRedis(ctx),
	}

	status := http.StatusOK
	overall := "healthy"
	for _, c := range components {
		if c.Status == "unhealthy" {
			status = http.StatusServiceUnavailable
			overall = "unhealthy"
			break
		}
	}

	respondJSON(w, status, map[string]any{
		"status":     overall,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// handleLiveness only confirms the process is serving requests.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "alive"})
}

func (s *Server) checkDatabase(ctx context.Context) componentHealth {
	if s.db == nil {
		return componentHealth{Status: "unhealthy", Message: "database not configured"}
	}
	start := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		return componentHealth{Status: "unhealthy", Message: err.Error()}
	}
	return componentHealth{Status: "healthy", Latency: time.Since(start).String()}
}

func (s *Server) checkRedis(ctx context.Context) componentHealth {
	if s.redis == nil {
		return componentHealth{Status: "skipped", Message: "redis not configured"}
	}
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return componentHealth{Status: "unhealthy", Message: err.Error()}
	}
	return componentHealth{Status: "healthy", Latency: time.Since(start).String()}
}
