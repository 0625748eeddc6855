// Package api serves a read-only JSON view of conversations and their live state.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"chatdesk/storage"
	"chatdesk/store"
)

// Handler holds the dependencies shared by every endpoint
type Handler struct {
	storage *storage.Storage
	store   *store.Store
	log     zerolog.Logger
}

func NewHandler(s *storage.Storage, st *store.Store, log zerolog.Logger) *Handler {
	return &Handler{
		storage: s,
		store:   st,
		log:     log.With().Str("component", "api").Logger(),
	}
}

// NewRouter mounts the API with the standard middleware stack
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)
	r.Get("/search", h.Search)
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", h.ListConversations)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetConversation)
			r.Get("/messages", h.ListMessages)
			r.Get("/state", h.GetState)
			r.Get("/export", h.Export)
		})
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.store.Status()
	JSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"is_sending": status.IsSending,
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}
