package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"intake/internal/admin"
	"intake/internal/admin/store"
	"intake/internal/iap"
	"intake/internal/platform/config"
	"intake/internal/platform/health"
	"intake/internal/platform/logger"
	"intake/internal/platform/metrics"
	"intake/internal/platform/redis"
	"intake/internal/platform/tracer"
	"intake/internal/proxy"
	httptransport "intake/internal/transport/http"
	"intake/internal/upstream"
	adminmw "intake/pkg/platform/middleware/admin"
	"intake/pkg/platform/middleware/metadata"
	"intake/pkg/platform/middleware/request"
	"intake/pkg/secrets"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// run wires dependencies and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("initializing intake proxy",
		"environment", cfg.Environment,
		"environment_source", cfg.EnvironmentSource,
		"upstream_configured", cfg.Upstream.Configured(),
		"upstream_source", cfg.Upstream.BaseURLSource,
		"iap_audience_configured", cfg.IAP.Audience != "",
	)
	if !cfg.Upstream.Configured() {
		log.Warn("API_URL is not set; submissions will be answered with ConfigError")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	requestMetrics := request.NewMetrics(reg)
	tr := tracer.NewOTel()

	client := upstream.New(upstream.Config{
		BaseURL:  cfg.Upstream.BaseURL,
		Version:  cfg.Upstream.Version,
		Tracer:   tr,
		Observer: m,
	})

	admission, iapHandler, err := buildIAP(ctx, cfg, log, tr, m)
	if err != nil {
		return err
	}

	healthHandler := health.New(cfg.Environment)

	fallback, closeStore, err := buildStore(ctx, cfg, log, reg, healthHandler)
	if err != nil {
		return err
	}
	defer closeStore()

	adminService := admin.NewService(admin.Config{
		Upstream:    client,
		Store:       fallback,
		Logger:      log,
		Tracer:      tr,
		Metrics:     m,
		ListTimeout: cfg.Upstream.ListTimeout,
	})

	proxyHandler := proxy.New(proxy.Config{
		Client:        client,
		Logger:        log,
		Metrics:       m,
		Recorder:      adminService,
		SubmitTimeout: cfg.Upstream.SubmitTimeout,
		ListTimeout:   cfg.Upstream.ListTimeout,
		HealthTimeout: cfg.Upstream.HealthTimeout,
		BaseURLSource: cfg.Upstream.BaseURLSource,
	})
	healthHandler.RegisterOptionalCheck("upstream", proxyHandler.Check)

	trusted, err := metadata.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		RequestMetrics: requestMetrics,
		Metadata:       metadata.NewMiddleware(metadata.Config{TrustedProxies: trusted}),
		SubmitLimiter:  request.NewRateLimiter(cfg.Limits.SubmitRPS, cfg.Limits.SubmitBurst),
		MaxBodyBytes:   cfg.Limits.MaxBodyBytes,
		Health:         healthHandler,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Proxy:          proxyHandler,
		ProxyReject:    proxyHandler.Reject,
		IAP:            iapHandler,
		Admin:          admin.NewHandler(adminService, log),
		Gate: adminmw.Config{
			Auth:        admission,
			Development: cfg.IsDevelopment(),
			Logger:      log,
			Metrics:     m,
		},
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Writes wait on the slowest upstream call.
		WriteTimeout: cfg.Upstream.SubmitTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func buildIAP(ctx context.Context, cfg *config.Config, log *slog.Logger, tr tracer.Tracer, m *metrics.Metrics) (*iap.Admission, *iap.Handler, error) {
	keys, err := iap.NewJWKSKeys(ctx, cfg.IAP.JWKSURLs, iap.WithJWKSLogger(log))
	if err != nil {
		return nil, nil, fmt.Errorf("iap keys: %w", err)
	}
	verifier := iap.NewVerifier(iap.VerifierConfig{
		Audience:    cfg.IAP.Audience,
		Keys:        keys,
		Development: cfg.IsDevelopment(),
		Logger:      log,
		Tracer:      tr,
		Metrics:     m,
	})

	key := cfg.Admin.SessionSigningKey
	if len(key) == 0 {
		generated, err := secrets.Generate(32)
		if err != nil {
			return nil, nil, fmt.Errorf("generate session key: %w", err)
		}
		key = generated
		log.Warn("SESSION_SIGNING_KEY is not set; admin sessions will not survive a restart")
	}
	sessions, err := iap.NewSessions(key, cfg.Admin.SessionTTL, !cfg.IsDevelopment())
	if err != nil {
		return nil, nil, fmt.Errorf("admin sessions: %w", err)
	}

	var devToken *secrets.Hashed
	if cfg.IsDevelopment() && cfg.Admin.DevToken != "" {
		devToken, err = secrets.Hash(cfg.Admin.DevToken)
		if err != nil {
			return nil, nil, fmt.Errorf("hash DEV_ADMIN_TOKEN: %w", err)
		}
	} else if cfg.Admin.DevToken != "" {
		log.Warn("DEV_ADMIN_TOKEN ignored outside development")
	}

	admission := iap.NewAdmission(verifier, sessions, devToken)
	handler := iap.NewHandler(verifier, sessions, cfg.Environment, cfg.IsDevelopment(), log)
	return admission, handler, nil
}

// buildStore picks the redis fallback store when REDIS_URL is set.
func buildStore(ctx context.Context, cfg *config.Config, log *slog.Logger, reg prometheus.Registerer, h *health.Handler) (store.Store, func(), error) {
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.Info("using in-memory fallback store")
		return store.NewInMemoryStore(), func() {}, nil
	}

	reg.MustRegister(redis.NewPoolCollector(client))
	h.RegisterCheck("redis", client.Health)
	log.Info("using redis fallback store")
	return store.NewRedisStore(client.Client), func() {
		if err := client.Close(); err != nil {
			log.Error("redis close failed", "error", err)
		}
	}, nil
}
