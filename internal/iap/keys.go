package iap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

var ErrUnknownKey = errors.New("unknown signing key")

// KeySource hands the verifier a jwt.Keyfunc bound to ctx.
// keyfunc.Keyfunc satisfies it.
type KeySource interface {
	KeyfuncCtx(ctx context.Context) jwt.Keyfunc
}

// StaticKeys serves a fixed key set by kid.
type StaticKeys map[string]any

func (s StaticKeys) KeyfuncCtx(_ context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errMissingKeyID
		}
		if k, ok := s[kid]; ok {
			return k, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, kid)
	}
}

const (
	defaultKeyRefresh      = time.Hour
	defaultUnknownKIDEvery = time.Minute
	jwksHTTPTimeout        = 10 * time.Second
)

type jwksConfig struct {
	client          *http.Client
	logger          *slog.Logger
	refresh         time.Duration
	unknownKIDEvery time.Duration
}

type JWKSOption func(*jwksConfig)

func WithJWKSClient(c *http.Client) JWKSOption {
	return func(cfg *jwksConfig) { cfg.client = c }
}

func WithJWKSLogger(l *slog.Logger) JWKSOption {
	return func(cfg *jwksConfig) { cfg.logger = l }
}

// WithJWKSRefresh sets the background refresh interval of every key set.
func WithJWKSRefresh(d time.Duration) JWKSOption {
	return func(cfg *jwksConfig) { cfg.refresh = d }
}

// WithJWKSUnknownKIDInterval bounds how often an unknown kid may force a refetch.
func WithJWKSUnknownKIDInterval(d time.Duration) JWKSOption {
	return func(cfg *jwksConfig) { cfg.unknownKIDEvery = d }
}

// NewJWKSKeys returns a keyfunc backed by the JWK Sets at urls. Sets are
// refreshed in the background until ctx ends; an unknown kid triggers a
// rate-limited refetch. A failed first fetch is logged, not returned, so the
// process starts while the key endpoints are unreachable.
func NewJWKSKeys(ctx context.Context, urls []string, opts ...JWKSOption) (keyfunc.Keyfunc, error) {
	cfg := jwksConfig{
		client:          &http.Client{Timeout: jwksHTTPTimeout},
		logger:          slog.Default(),
		refresh:         defaultKeyRefresh,
		unknownKIDEvery: defaultUnknownKIDEvery,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(urls) == 0 {
		return nil, errors.New("jwks: no key set URLs")
	}

	sets := make(map[string]jwkset.Storage, len(urls))
	for _, url := range urls {
		storage, err := jwkset.NewStorageFromHTTP(url, jwkset.HTTPClientStorageOptions{
			Client:                    cfg.client,
			Ctx:                       ctx,
			HTTPTimeout:               jwksHTTPTimeout,
			NoErrorReturnFirstHTTPReq: true,
			RefreshErrorHandler: func(ctx context.Context, err error) {
				cfg.logger.WarnContext(ctx, "jwks refresh failed", "url", url, "error", err)
			},
			RefreshInterval: cfg.refresh,
		})
		if err != nil {
			return nil, fmt.Errorf("jwks %s: %w", url, err)
		}
		sets[url] = storage
	}

	storage, err := jwkset.NewHTTPClient(jwkset.HTTPClientOptions{
		HTTPURLs:          sets,
		RateLimitWaitMax:  jwksHTTPTimeout,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(cfg.unknownKIDEvery), 1),
	})
	if err != nil {
		return nil, fmt.Errorf("jwks client: %w", err)
	}

	kf, err := keyfunc.New(keyfunc.Options{Ctx: ctx, Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("jwks keyfunc: %w", err)
	}
	return kf, nil
}
