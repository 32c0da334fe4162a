package iap

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"intake/internal/platform/tracer"
	dErrors "intake/pkg/domain-errors"
)

var (
	ErrTokenRequired  = dErrors.New(dErrors.CodeBadRequest, "token required")
	ErrNotConfigured  = dErrors.New(dErrors.CodeUnauthorized, "assertion audience not configured")
	ErrInvalidIssuer  = dErrors.New(dErrors.CodeUnauthorized, "invalid token issuer")
	ErrInvalidToken   = dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	errMissingKeyID   = errors.New("assertion has no kid header")
	allowedAlgorithms = []string{jwt.SigningMethodES256.Alg(), jwt.SigningMethodRS256.Alg()}
)

// clockSkew tolerated on exp/iat/nbf.
const clockSkew = 30 * time.Second

// Metrics is the subset of platform metrics the verifier records.
type Metrics interface {
	IncIAPVerification(result string)
}

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	// Audience is "/projects/<number>/apps/<id>" or the backend service audience.
	Audience    string
	Keys        KeySource
	Development bool
	Logger      *slog.Logger
	Tracer      tracer.Tracer
	Metrics     Metrics
	Now         func() time.Time
}

// Verifier checks assertions. It holds no per-request state.
type Verifier struct {
	audience    string
	keys        KeySource
	development bool
	logger      *slog.Logger
	tracer      tracer.Tracer
	metrics     Metrics
	now         func() time.Time
}

func NewVerifier(cfg VerifierConfig) *Verifier {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracer.NewNoop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Verifier{
		audience:    cfg.Audience,
		keys:        cfg.Keys,
		development: cfg.Development,
		logger:      cfg.Logger,
		tracer:      cfg.Tracer,
		metrics:     cfg.Metrics,
		now:         cfg.Now,
	}
}

// AudienceConfigured reports whether signatures can be checked at all.
func (v *Verifier) AudienceConfigured() bool {
	return v.audience != "" && v.keys != nil
}

// Verify returns the asserted user. Without an audience it fails closed,
// except in development where the payload is decoded unverified and the
// user is reported with Verified=false.
func (v *Verifier) Verify(ctx context.Context, token string) (user *User, err error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenRequired
	}

	ctx, span := v.tracer.Start(ctx, tracer.SpanIAPVerify)
	defer func() {
		if user != nil {
			span.SetAttributes(
				tracer.String(tracer.AttrIAPMode, string(user.Mode)),
				tracer.String(tracer.AttrSubjectHash, tracer.HashSubject(user.Email)),
			)
		}
		span.End(err)
		v.record(user, err)
	}()

	if !v.AudienceConfigured() {
		if !v.development {
			v.logger.WarnContext(ctx, "assertion rejected: audience not configured")
			return nil, ErrNotConfigured
		}
		return v.decodeUnverified(ctx, token)
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(token, claims, v.keys.KeyfuncCtx(ctx),
		jwt.WithValidMethods(allowedAlgorithms),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		v.logger.WarnContext(ctx, "assertion rejected", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
	}
	if !slices.Contains(Issuers, claims.Issuer) {
		v.logger.WarnContext(ctx, "assertion rejected: unexpected issuer", "issuer", claims.Issuer)
		return nil, ErrInvalidIssuer
	}
	return userFromClaims(claims, true, ModeIAP), nil
}

func (v *Verifier) decodeUnverified(ctx context.Context, token string) (*User, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
	}
	if !slices.Contains(Issuers, claims.Issuer) {
		return nil, ErrInvalidIssuer
	}
	v.logger.WarnContext(ctx, "assertion decoded without signature check (development only)")
	return userFromClaims(claims, false, ModeUnverified), nil
}

func (v *Verifier) record(user *User, err error) {
	if v.metrics == nil {
		return
	}
	switch {
	case err == nil && user.Verified:
		v.metrics.IncIAPVerification("verified")
	case err == nil:
		v.metrics.IncIAPVerification("unverified")
	case errors.Is(err, ErrTokenRequired):
	default:
		v.metrics.IncIAPVerification("rejected")
	}
}
