// Package admin gates the admin API.
package admin

import (
	"context"
	"log/slog"
	"net/http"

	"intake/pkg/requestcontext"
)

// Admission modes, in the order the gate tries them.
const (
	ModeDevToken    = "dev_token"
	ModeSession     = "session"
	ModeIAP         = "iap"
	ModeDevelopment = "development"
)

// HeaderAssertion is the header the identity-aware proxy signs.
const HeaderAssertion = "x-goog-iap-jwt-assertion"

// Authenticator is what the gate needs from the identity layer.
type Authenticator interface {
	// CheckDevToken compares a candidate against the development bypass token.
	CheckDevToken(candidate string) bool
	// IssueSession returns the cookie that keeps user admitted.
	IssueSession(ctx context.Context, user requestcontext.AdminUser) (*http.Cookie, error)
	// SessionFromRequest returns the user of a valid session cookie.
	SessionFromRequest(r *http.Request) (requestcontext.AdminUser, error)
	// VerifyAssertion checks a signed identity assertion.
	VerifyAssertion(ctx context.Context, token string) (requestcontext.AdminUser, error)
}

// Metrics counts admitted requests by mode.
type Metrics interface {
	IncAdminSession(mode string)
}

// Config wires the gate.
type Config struct {
	Auth        Authenticator
	Development bool
	Logger      *slog.Logger
	Metrics     Metrics
}

// Gate admits a request through the first matching path: the development
// bypass token in ?token= (which also issues a session cookie), a valid
// session cookie, a verified assertion header, or development mode.
// Everything else is 401.
func Gate(cfg Config) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			admit := func(user requestcontext.AdminUser) {
				if cfg.Metrics != nil {
					cfg.Metrics.IncAdminSession(user.Mode)
				}
				next.ServeHTTP(w, r.WithContext(requestcontext.WithAdminUser(ctx, user)))
			}

			if token := r.URL.Query().Get("token"); token != "" && cfg.Auth.CheckDevToken(token) {
				user := requestcontext.AdminUser{Email: "dev-token", Mode: ModeDevToken}
				cookie, err := cfg.Auth.IssueSession(ctx, user)
				if err != nil {
					logger.ErrorContext(ctx, "failed to issue admin session", "request_id", requestID, "error", err)
					writeUnauthorized(w)
					return
				}
				http.SetCookie(w, cookie)
				logger.InfoContext(ctx, "admin session issued from development token",
					"request_id", requestID,
					"device", requestcontext.Device(ctx),
				)
				admit(user)
				return
			}

			if user, err := cfg.Auth.SessionFromRequest(r); err == nil {
				user.Mode = ModeSession
				admit(user)
				return
			}

			if assertion := r.Header.Get(HeaderAssertion); assertion != "" {
				user, err := cfg.Auth.VerifyAssertion(ctx, assertion)
				if err == nil {
					user.Mode = ModeIAP
					admit(user)
					return
				}
				logger.WarnContext(ctx, "admin assertion rejected", "request_id", requestID, "error", err)
			}

			if cfg.Development {
				logger.DebugContext(ctx, "admin request admitted without identity (development)", "request_id", requestID)
				admit(requestcontext.AdminUser{Mode: ModeDevelopment})
				return
			}

			logger.WarnContext(ctx, "admin request rejected",
				"request_id", requestID,
				"path", r.URL.Path,
				"device", requestcontext.Device(ctx),
			)
			writeUnauthorized(w)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin identity required"}`)) //nolint:errcheck // headers already sent
}
