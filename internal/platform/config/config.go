// Package config resolves process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// DefaultJWKSURLs are Google's IAP (ES256) and OAuth (RS256) key endpoints.
var DefaultJWKSURLs = []string{
	"https://www.gstatic.com/iap/verify/public_key-jwk",
	"https://www.googleapis.com/oauth2/v3/certs",
}

// Config is the resolved process configuration.
type Config struct {
	Environment       string
	EnvironmentSource string
	LogLevel          string

	Server   Server
	Upstream Upstream
	IAP      IAP
	Admin    Admin
	Redis    RedisConfig
	Limits   Limits
}

// Server captures HTTP listener configuration.
type Server struct {
	Host           string
	Port           string
	TrustedProxies string
}

func (s Server) Addr() string {
	return s.Host + ":" + s.Port
}

// Upstream describes the credit-application API this service fronts.
type Upstream struct {
	// BaseURL is empty when no source provided one.
	BaseURL       string
	BaseURLSource string
	Version       string
	SubmitTimeout time.Duration
	ListTimeout   time.Duration
	HealthTimeout time.Duration
}

func (u Upstream) Configured() bool {
	return u.BaseURL != ""
}

type IAP struct {
	Audience string
	JWKSURLs []string
}

type Admin struct {
	DevToken          string
	SessionSigningKey []byte
	SessionTTL        time.Duration
}

// RedisConfig selects the redis-backed fallback store. Empty URL means in-memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Limits struct {
	SubmitRPS    float64
	SubmitBurst  int
	MaxBodyBytes int64
}

// IsDevelopment gates every development-only bypass.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads .env.local and .env (process env wins) and resolves the configuration.
func Load() (*Config, error) {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup resolves the configuration from an arbitrary environment.
func FromLookup(lookup LookupFunc) (*Config, error) {
	r := resolver{lookup: lookup}

	cfg := &Config{
		LogLevel: r.str("info", "LOG_LEVEL"),
		Server: Server{
			Host:           r.str("0.0.0.0", "HOSTNAME"),
			Port:           r.str("3000", "PORT"),
			TrustedProxies: r.str("", "TRUSTED_PROXIES"),
		},
		IAP: IAP{
			Audience: r.str("", "IAP_AUDIENCE"),
			JWKSURLs: r.list(DefaultJWKSURLs, "IAP_JWKS_URLS"),
		},
		Redis: RedisConfig{
			URL:          r.str("", "REDIS_URL"),
			PoolSize:     r.int("REDIS_POOL_SIZE", 10),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Limits: Limits{
			SubmitRPS:    r.float("SUBMIT_RATE_LIMIT", 5),
			SubmitBurst:  r.int("SUBMIT_RATE_BURST", 10),
			MaxBodyBytes: int64(r.int("MAX_BODY_BYTES", 10<<20)),
		},
	}

	cfg.Environment, cfg.EnvironmentSource = r.first(EnvProduction, "APP_ENV", "NODE_ENV")

	baseURL, source := r.first("", "API_URL", "NEXT_PUBLIC_API_URL")
	cfg.Upstream = Upstream{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		BaseURLSource: source,
		Version:       r.str("v1", "API_VERSION"),
		SubmitTimeout: r.duration("SUBMIT_TIMEOUT", 180*time.Second),
		ListTimeout:   r.duration("LIST_TIMEOUT", 60*time.Second),
		HealthTimeout: r.duration("HEALTH_TIMEOUT", 10*time.Second),
	}

	cfg.Admin = Admin{
		DevToken:          r.str("", "DEV_ADMIN_TOKEN"),
		SessionSigningKey: []byte(r.str("", "SESSION_SIGNING_KEY")),
		SessionTTL:        r.duration("SESSION_TTL", 7*24*time.Hour),
	}

	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}
	return cfg, nil
}

// resolver walks ordered sources; the first non-empty value wins.
type resolver struct {
	lookup LookupFunc
	errs   []error
}

func (r *resolver) first(def string, keys ...string) (value, source string) {
	for _, key := range keys {
		if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), key
		}
	}
	return def, ""
}

func (r *resolver) str(def string, keys ...string) string {
	v, _ := r.first(def, keys...)
	return v
}

func (r *resolver) list(def []string, key string) []string {
	raw, source := r.first("", key)
	if source == "" {
		return append([]string(nil), def...)
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (r *resolver) duration(key string, def time.Duration) time.Duration {
	raw, source := r.first("", key)
	if source == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return def
	}
	return d
}

func (r *resolver) int(key string, def int) int {
	raw, source := r.first("", key)
	if source == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid positive integer %q", key, raw))
		return def
	}
	return n
}

func (r *resolver) float(key string, def float64) float64 {
	raw, source := r.first("", key)
	if source == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid rate %q", key, raw))
		return def
	}
	return f
}
