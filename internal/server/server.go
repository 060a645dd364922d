// Package server is the HTTP API surface: one create endpoint, one read
// endpoint, and a health check.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/dkarali/urlmeta/internal/collector"
	"github.com/dkarali/urlmeta/internal/logging"
	"github.com/dkarali/urlmeta/internal/service"
	"github.com/dkarali/urlmeta/internal/store"
)

// Config holds the listen address and service identity.
type Config struct {
	ListenAddr  string // default ":8000"
	ServiceName string // default "metadata-collection-api"
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ListenAddr == "" {
		out.ListenAddr = ":8000"
	}
	if out.ServiceName == "" {
		out.ServiceName = "metadata-collection-api"
	}
	return out
}

// MetadataService is the surface the handlers need from the orchestrator.
type MetadataService interface {
	CreateMetadata(ctx context.Context, rawURL string) (*store.MetadataRecord, error)
	GetMetadata(ctx context.Context, rawURL string) (*store.MetadataRecord, bool, error)
}

// Server routes HTTP requests to the metadata service.
type Server struct {
	cfg    Config
	svc    MetadataService
	router chi.Router
	logger logging.Logger
}

// NewServer creates a Server with its routes wired.
func NewServer(cfg Config, svc MetadataService, logger logging.Logger) *Server {
	s := &Server{
		cfg:    cfg.withDefaults(),
		svc:    svc,
		router: chi.NewRouter(),
		logger: logger.With(logging.Field{Key: "component", Value: "server"}),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	r.Use(s.accessLog)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/metadata", s.handleCreateMetadata)
		r.Get("/metadata", s.handleGetMetadata)
	})
}

// accessLog tags every request with a generated request id and logs it on
// completion.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		start := time.Now()

		next.ServeHTTP(w, r)

		fields := []logging.Field{
			{Key: "request_id", Value: requestID},
			{Key: "method", Value: r.Method},
			{Key: "path", Value: r.URL.Path},
			{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
		}
		if q := r.URL.Query(); len(q) > 0 {
			fields = append(fields, logging.Field{Key: "query", Value: q})
		}
		s.logger.Info("http_request", fields...)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:        s.cfg.ListenAddr,
		Handler:     s,
		ReadTimeout: 15 * time.Second,
		// No write timeout: a synchronous create can take the full
		// collection timeout plus redirects.
		WriteTimeout: 0,
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}

// --- HTTP handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": s.cfg.ServiceName,
	})
}

func (s *Server) handleCreateMetadata(w http.ResponseWriter, r *http.Request) {
	var body MetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	rec, err := s.svc.CreateMetadata(r.Context(), body.URL)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(rec))
}

func (s *Server) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "missing url query parameter")
		return
	}

	rec, found, err := s.svc.GetMetadata(r.Context(), url)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if found {
		writeJSON(w, http.StatusOK, toResponse(rec))
		return
	}

	// The raw input URL goes back to the client, not the canonical form.
	writeJSON(w, http.StatusAccepted, MetadataAccepted{
		URL:     url,
		Status:  string(store.StatusPending),
		Message: scheduledMessage,
	})
}

// writeServiceError maps service errors to HTTP statuses. Collection
// failures keep their classified message; everything else stays opaque.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrInvalidURL) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var collErr *collector.Error
	if errors.As(err, &collErr) {
		s.logger.Warn("collection failed", logging.Field{Key: "error", Value: collErr.Error()})
		writeError(w, http.StatusInternalServerError, collErr.Error())
		return
	}

	s.logger.Error("request failed", logging.Field{Key: "error", Value: err.Error()})
	writeError(w, http.StatusInternalServerError, "internal server error")
}
