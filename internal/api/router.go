package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/camps/internal/api/handlers"
	"github.com/wonny/camps/pkg/logger"
	"github.com/wonny/camps/pkg/metrics"
)

// Handlers groups every handler the router mounts.
// Jobs may be nil when the process runs without a scheduler.
type Handlers struct {
	Health *handlers.HealthHandler
	Trends *handlers.TrendHandler
	Jobs   *handlers.JobHandler
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, rec *metrics.Recorder, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", h.Health.Health).Methods("GET")

	// Admin routes sit on the root router so a method mismatch answers 405
	const admin = "/api/admin"

	// Trend admin endpoints
	r.HandleFunc(admin+"/trends/recalculate", h.Trends.Recalculate).Methods("POST")
	r.HandleFunc(admin+"/trends/runs", h.Trends.ListRuns).Methods("GET")
	r.HandleFunc(admin+"/trends/latest", h.Trends.LatestRun).Methods("GET")
	r.HandleFunc(admin+"/trends/granularity", h.Trends.Granularity).Methods("GET")

	// Scheduler endpoints
	if h.Jobs != nil {
		r.HandleFunc(admin+"/jobs", h.Jobs.ListJobs).Methods("GET")
		r.HandleFunc(admin+"/jobs/{name}/run", h.Jobs.RunJob).Methods("POST")
	}

	// Apply middleware
	r.Use(metricsMiddleware(rec))
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// statusRecorder captures the response code for logging and metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware records request counts and latency per route template
func metricsMiddleware(rec *metrics.Recorder) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sr, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			rec.HTTPRequest(route, r.Method, sr.status, time.Since(start))
		})
	}
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			// Call next handler
			next.ServeHTTP(sr, r)

			// Log request
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   sr.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
