// Package api exposes the retrieval HTTP interface. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/retrieve for knowledge-base queries.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dia-upm/muia-rag/internal/corpus"
	"github.com/dia-upm/muia-rag/internal/index"
	"github.com/dia-upm/muia-rag/internal/logging"
)

const (
	defaultTopK    = 5
	maxTopK        = 50
	requestTimeout = 60 * time.Second
)

// Retriever answers knowledge-base queries.
type Retriever interface {
	Retrieve(ctx context.Context, query, variant, encoderName string, topK int) ([]index.Scored, error)
}

// Server wires HTTP handlers to the retriever.
type Server struct {
	router         chi.Router
	retriever      Retriever
	defaultVariant string
	defaultEncoder string
}

// NewServer constructs a Server with middleware and routes. The defaults
// fill requests that leave variant or encoder empty.
func NewServer(retriever Retriever, defaultVariant, defaultEncoder string) *Server {
	s := &Server{
		retriever:      retriever,
		defaultVariant: defaultVariant,
		defaultEncoder: defaultEncoder,
	}
	if s.defaultVariant == "" {
		s.defaultVariant = corpus.LMCleanedTextSubchunks
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(recoverMiddleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/retrieve", s.retrieve)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type retrieveRequest struct {
	Query   string `json:"query"`
	Variant string `json:"variant"`
	Encoder string `json:"encoder"`
	TopK    int    `json:"top_k"`
}

type retrieveHit struct {
	ID      uint64         `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (s *Server) retrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Variant == "" {
		req.Variant = s.defaultVariant
	}
	if req.Encoder == "" {
		req.Encoder = s.defaultEncoder
	}
	if req.TopK <= 0 {
		req.TopK = defaultTopK
	}
	if req.TopK > maxTopK {
		writeError(w, http.StatusBadRequest, "top_k too large")
		return
	}

	hits, err := s.retriever.Retrieve(r.Context(), req.Query, req.Variant, req.Encoder, req.TopK)
	if err != nil {
		logging.L.Error("retrieve failed",
			zap.String("variant", req.Variant),
			zap.String("encoder", req.Encoder),
			zap.Error(err),
		)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out := make([]retrieveHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, retrieveHit{ID: h.ID, Score: h.Score, Payload: h.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		logging.L.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.L.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.L.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
