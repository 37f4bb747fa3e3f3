// Package api exposes the HTTP interface for the tracking service: work
// distribution for the crawl worker plus price-history queries.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pricewatch-io/pricewatch/internal/config"
	"github.com/pricewatch-io/pricewatch/internal/metrics"
	"github.com/pricewatch-io/pricewatch/internal/tracker"
)

const dateLayout = "2006-01-02"

// Server wires HTTP handlers to the tracking service.
type Server struct {
	router  chi.Router
	service *tracker.Service
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The work
// distribution endpoints always require the shared-secret key; the query
// endpoints require it when auth is enabled.
func NewServer(service *tracker.Service, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: service,
		cfg:     cfg,
		logger:  logger,
	}
	if cfg.Auth.APIKey == "" {
		logger.Warn("auth.api_key is not configured, keyed endpoints will reject all requests")
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(time.Duration(cfg.Server.TimeoutSeconds) * time.Second))
	r.Use(metricsMiddleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		r.Get("/work-list", s.workList)
		r.Post("/crawl-result", s.crawlResult)
	})

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/url-status", s.urlStatus)
		r.Get("/url-data", s.urlData)
		r.Post("/collect-data", s.collectData)
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

func (s *Server) workList(w http.ResponseWriter, r *http.Request) {
	kind := tracker.WorkKind(r.URL.Query().Get("type"))
	items, err := s.service.ListWork(r.Context(), kind)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []tracker.WorkItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"urls": items})
}

type crawlResultRequest struct {
	Results []tracker.CrawlResult `json:"results"`
}

func (s *Server) crawlResult(w http.ResponseWriter, r *http.Request) {
	var req crawlResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	summary, err := s.service.ReportResults(r.Context(), req.Results)
	metrics.ObserveIngest("applied", summary.Applied)
	metrics.ObserveIngest("skipped", summary.Skipped)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("results recorded: %d applied, %d skipped", summary.Applied, summary.Skipped),
	})
}

func (s *Server) urlStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.Status(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) urlData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := time.Parse(dateLayout, q.Get("start_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "start_date must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse(dateLayout, q.Get("end_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "end_date must be YYYY-MM-DD")
		return
	}

	prices, err := s.service.PriceRange(r.Context(), q.Get("url"), start, end)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]pricePayload, 0, len(prices))
	for _, p := range prices {
		out = append(out, pricePayload{
			Date:          p.Date.Format(dateLayout),
			ReleasePrice:  p.ReleasePrice,
			EmployeePrice: p.EmployeePrice,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "prices": out})
}

type pricePayload struct {
	Date          string `json:"date"`
	ReleasePrice  int64  `json:"release_price"`
	EmployeePrice int64  `json:"employee_price"`
}

type collectRequest struct {
	URL string `json:"url"`
}

func (s *Server) collectData(w http.ResponseWriter, r *http.Request) {
	var req collectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "missing url")
		return
	}
	msg, err := s.service.Collect(r.Context(), req.URL)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Every failure path carries a structured message.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var verr *tracker.ValidationError
	var perr *tracker.PersistenceError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, tracker.ErrNotFound):
		writeError(w, http.StatusNotFound, "url is not tracked")
	case errors.As(err, &perr):
		s.logger.Error("persistence failure", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage unavailable, retry later")
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, time.Since(start))
	})
}

// apiKeyMiddleware fails closed: with no key configured every request is
// rejected, so an unconfigured deployment never exposes the keyed endpoints.
func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" || r.Header.Get("X-API-Key") != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
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
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
