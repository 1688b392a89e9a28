// Package api exposes the scan pipeline over HTTP: job submission, status,
// cancellation and the results read path.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	appscanning "github.com/avelar/facetrace/internal/app/scanning"
	"github.com/avelar/facetrace/internal/domain/scanning"
	"github.com/avelar/facetrace/pkg/common/logger"
	"github.com/avelar/facetrace/pkg/common/otel"
)

// Server wires the scan endpoints onto a chi router with request tracing and
// structured request logging.
type Server struct {
	logger   *logger.Logger
	tracer   trace.Tracer
	router   *chi.Mux
	jobs     *appscanning.JobService
	validate *validator.Validate
}

// NewServer builds the HTTP server around a JobService. The returned server
// implements http.Handler.
func NewServer(log *logger.Logger, tracer trace.Tracer, jobs *appscanning.JobService) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(spanMiddleware(tracer))
	r.Use(loggerMiddleware(log))
	r.Use(middleware.Recoverer)

	s := &Server{
		logger:   log.With("component", "api_server"),
		tracer:   tracer,
		router:   r,
		jobs:     jobs,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) routes() {
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/readiness", s.handleReadiness)

		r.Route("/scans", func(r chi.Router) {
			r.Post("/", s.handleSubmitScan)
			r.Get("/{id}", s.handleGetScan)
			r.Post("/{id}/cancel", s.handleCancelScan)
			r.Get("/{id}/results", s.handleScanResults)
			r.Get("/{id}/stats", s.handleScanStats)
		})
	})
}

func spanMiddleware(tracer trace.Tracer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.target", r.URL.Path),
				),
			)
			defer span.End()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func loggerMiddleware(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				ctx := r.Context()
				log.Info(ctx, "Request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration", time.Since(start),
					"trace_id", otel.GetTraceID(ctx),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error(r.Context(), "Failed to encode response", "error", err)
	}
}

// respondError maps domain errors onto HTTP status codes and emits a uniform
// error body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, scanning.ErrJobNotFound):
		s.respond(w, r, http.StatusNotFound, errorResponse{Error: scanning.ErrJobNotFound.Error()})
	case errors.Is(err, scanning.ErrJobNotCancellable):
		s.respond(w, r, http.StatusConflict, errorResponse{Error: scanning.ErrJobNotCancellable.Error()})
	default:
		s.logger.Error(r.Context(), "Request failed", "error", err, "path", r.URL.Path)
		s.respond(w, r, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
