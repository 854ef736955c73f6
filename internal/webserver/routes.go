package webserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/finxai/xai/internal/webapi"
)

// newHandler assembles the API routes and middleware chain:
// logging, then CORS, then rate limiting.
func newHandler(cfg Config) http.Handler {
	mux := http.NewServeMux()
	webapi.RegisterRoutes(mux, cfg.Explainer)
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
	}
	mux.HandleFunc("/", handleNotFound)

	var h http.Handler = mux
	if cfg.RateLimit > 0 {
		h = webapi.NewRateLimiter(cfg.RateLimit, cfg.Burst).Middleware(h)
	}
	h = webapi.CORSMiddleware(h, cfg.AllowedOrigins...)
	return logRequests(cfg.Logger, h)
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(webapi.ErrorResponse{ //nolint:errcheck
		Error: "no route for " + r.Method + " " + r.URL.Path,
		Kind:  "invalid_request",
		Code:  http.StatusNotFound,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
