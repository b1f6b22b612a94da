package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"example.com/challengeengine/internal/logging"
)

// RouterConfig holds cross-cutting HTTP middleware settings.
type RouterConfig struct {
	AllowedOrigins []string
	// RateLimitRequests per RateLimitWindow per client IP; zero disables limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration
	// Authenticate wraps every route; nil leaves requests unauthenticated.
	Authenticate func(http.Handler) http.Handler
}

// NewRouter builds the chi route tree with request ids, access logging, panic
// recovery, CORS, rate limiting and authentication.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.RateLimitRequests > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.LimitByIP(cfg.RateLimitRequests, window))
	}
	if cfg.Authenticate != nil {
		r.Use(cfg.Authenticate)
	}

	h.RegisterRoutes(r)
	return r
}

// requestLogger attaches a request-scoped zerolog logger and writes one access
// line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := logging.Component("http").With().
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Logger()
		r = r.WithContext(logging.WithContext(r.Context(), logger))

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
