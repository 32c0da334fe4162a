package iap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "intake/pkg/domain-errors"
	"intake/pkg/requestcontext"
)

// SessionCookie is the admin session cookie name.
const SessionCookie = "iap_session"

const sessionIssuer = "intake-admin"

// SessionClaims is the payload of the admin session cookie.
type SessionClaims struct {
	Email string `json:"email,omitempty"`
	Mode  Mode   `json:"mode"`
	jwt.RegisteredClaims
}

// Sessions issues and checks HS256-signed admin session cookies.
type Sessions struct {
	signingKey []byte
	ttl        time.Duration
	secure     bool
}

// NewSessions signs with key. secure marks cookies Secure (production).
func NewSessions(key []byte, ttl time.Duration, secure bool) (*Sessions, error) {
	if len(key) < 32 {
		return nil, errors.New("session signing key must be at least 32 bytes")
	}
	return &Sessions{signingKey: key, ttl: ttl, secure: secure}, nil
}

// Issue signs a session for the given admission.
func (s *Sessions) Issue(ctx context.Context, email string, mode Mode) (string, error) {
	now := requestcontext.Now(ctx)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		Email: email,
		Mode:  mode,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// Parse validates signature, algorithm, issuer and expiry.
func (s *Sessions) Parse(token string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "session expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid session")
	}
	return claims, nil
}

// FromRequest parses the session cookie, if any.
func (s *Sessions) FromRequest(r *http.Request) (*SessionClaims, error) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "no session")
	}
	return s.Parse(c.Value)
}

// Cookie builds the Set-Cookie value for a signed session.
func (s *Sessions) Cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
