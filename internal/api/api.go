// Package api implements the management API (C6): a thin HTTP surface
// delegating to C1 (the store) and C5 (the flush engine), adding input
// validation but no business logic. Grounded on the teacher's routes
// package, generalized from two health/metrics endpoints to the full
// §6 surface and switched from a bare mux to Go 1.22's method+pattern
// routing.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/CyberwizD/notification-delivery-service/internal/flush"
	"github.com/CyberwizD/notification-delivery-service/internal/store"
	"github.com/CyberwizD/notification-delivery-service/pkg/metrics"
)

// Server wires every HTTP handler onto a ServeMux and wraps it with CORS.
type Server struct {
	store   store.EventStore
	flush   *flush.Engine
	metrics *metrics.Metrics
	logger  *slog.Logger
	started time.Time
}

// NewServer constructs the management API handler.
func NewServer(s store.EventStore, f *flush.Engine, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	srv := &Server{store: s, flush: f, metrics: m, logger: logger, started: time.Now()}
	return srv.router()
}

func (s *Server) router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("GET /users", s.handleListUsers)
	mux.HandleFunc("GET /users/{uid}/messages", s.handleListMessages)
	mux.HandleFunc("GET /users/{uid}/messages/{mid}", s.handleGetMessage)
	mux.HandleFunc("DELETE /users/{uid}/messages", s.handleDeleteUserMessages)
	mux.HandleFunc("DELETE /users/{uid}/messages/{mid}", s.handleDeleteUserMessages)

	mux.HandleFunc("GET /undelivered", s.handleListUndelivered)
	mux.HandleFunc("GET /undelivered/stats", s.handleUndeliveredStats)
	mux.HandleFunc("DELETE /undelivered", s.handleDeleteUndelivered)

	mux.HandleFunc("GET /users/{uid}/subscriptions", s.handleListSubscriptions)
	mux.HandleFunc("POST /users/{uid}/subscriptions", s.handleCreateSubscription)
	mux.HandleFunc("GET /users/{uid}/subscriptions/{sid}", s.handleGetSubscription)
	mux.HandleFunc("PUT /users/{uid}/subscriptions/{sid}", s.handleUpdateSubscription)
	mux.HandleFunc("DELETE /users/{uid}/subscriptions/{sid}", s.handleDeleteSubscription)

	mux.HandleFunc("POST /flush", s.handleFlush)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})
	recovered := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in http handler", slog.Any("panic", rec), slog.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		mux.ServeHTTP(w, r)
	})
	return corsHandler.Handler(recovered)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
