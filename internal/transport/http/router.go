package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"intake/pkg/platform/middleware/admin"
	"intake/pkg/platform/middleware/metadata"
	"intake/pkg/platform/middleware/request"
)

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r chi.Router)
}

// Deps is everything the router mounts. Nil registrars are skipped.
type Deps struct {
	Logger         *slog.Logger
	RequestMetrics *request.Metrics
	Metadata       *metadata.Middleware
	// SubmitLimiter throttles the public proxy routes per client IP.
	SubmitLimiter *request.RateLimiter
	MaxBodyBytes  int64
	// ProxyReject shapes body-limit and rate-limit rejections on the proxy
	// routes. Nil falls back to the plain JSON error body.
	ProxyReject request.RejectFunc

	Health  Registrar
	Metrics http.Handler
	Proxy   Registrar
	IAP     Registrar
	Admin   Registrar
	Gate    admin.Config
}

// NewRouter builds the chi router with the shared middleware stack.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	if d.Metadata != nil {
		r.Use(d.Metadata.Handler)
	}
	r.Use(request.Recovery(logger))
	r.Use(request.Logger(logger))
	if d.RequestMetrics != nil {
		r.Use(request.LatencyMiddleware(d.RequestMetrics))
	}
	if d.Health != nil {
		d.Health.Register(r)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	// No content-type guard: malformed proxy bodies get the error envelope.
	if d.Proxy != nil {
		r.Group(func(r chi.Router) {
			if d.ProxyReject == nil {
				r.Use(request.RateLimit(d.SubmitLimiter, d.RequestMetrics))
				r.Use(bodyLimit(d.MaxBodyBytes))
			} else {
				r.Use(request.RateLimitWith(d.SubmitLimiter, d.RequestMetrics, d.ProxyReject))
				if d.MaxBodyBytes > 0 {
					r.Use(request.BodyLimitWith(d.MaxBodyBytes, d.ProxyReject))
				}
			}
			d.Proxy.Register(r)
		})
	}

	if d.IAP != nil {
		r.Group(func(r chi.Router) {
			r.Use(bodyLimit(d.MaxBodyBytes))
			r.Use(request.ContentTypeJSON)
			d.IAP.Register(r)
		})
	}

	if d.Admin != nil {
		gate := d.Gate
		if gate.Logger == nil {
			gate.Logger = logger
		}
		r.Group(func(r chi.Router) {
			r.Use(bodyLimit(d.MaxBodyBytes))
			r.Use(admin.Gate(gate))
			d.Admin.Register(r)
		})
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found","error_description":"route not found"}`)) //nolint:errcheck // headers already sent
	})

	return r
}

func bodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return request.BodyLimit(maxBytes)
}
