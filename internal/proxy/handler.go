package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"intake/internal/upstream"
	"intake/pkg/platform/httputil"
	"intake/pkg/requestcontext"
)

const (
	DefaultSubmitTimeout = 180 * time.Second
	DefaultListTimeout   = 60 * time.Second
	DefaultHealthTimeout = 10 * time.Second
)

// Metrics is the subset of platform metrics the proxy records.
type Metrics interface {
	IncProxyError(kind string)
}

// Recorder receives every submission the upstream accepted.
type Recorder interface {
	RecordSubmission(ctx context.Context, payload, response []byte)
}

// Config wires a Handler.
type Config struct {
	Client        *upstream.Client
	Logger        *slog.Logger
	Metrics       Metrics
	Recorder      Recorder
	SubmitTimeout time.Duration
	ListTimeout   time.Duration
	HealthTimeout time.Duration
	// BaseURLSource names the variable the base URL came from, for diagnostics.
	BaseURLSource string
}

// Handler serves /api/solicitudes and /api/test-api.
type Handler struct {
	client        *upstream.Client
	logger        *slog.Logger
	metrics       Metrics
	recorder      Recorder
	submitTimeout time.Duration
	listTimeout   time.Duration
	healthTimeout time.Duration
	baseURLSource string
	now           func() time.Time
}

func New(cfg Config) *Handler {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultSubmitTimeout
	}
	if cfg.ListTimeout <= 0 {
		cfg.ListTimeout = DefaultListTimeout
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		client:        cfg.Client,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		recorder:      cfg.Recorder,
		submitTimeout: cfg.SubmitTimeout,
		listTimeout:   cfg.ListTimeout,
		healthTimeout: cfg.HealthTimeout,
		baseURLSource: cfg.BaseURLSource,
		now:           time.Now,
	}
}

// Register mounts the proxy routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/solicitudes", h.HandleSubmit)
	r.Get("/api/solicitudes", h.HandleList)
	r.Get("/api/test-api", h.HandleDiagnostics)
}

// HandleSubmit forwards an application to the upstream with the submit timeout.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.client.Configured() {
		h.logger.ErrorContext(ctx, "upstream base URL not configured", "request_id", requestcontext.RequestID(ctx))
		h.writeError(w, Classify(upstream.ErrNotConfigured))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		env := newErrorEnvelope(ServerError, msgInvalidBody)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			env.Error.Message = msgBodyTooLarge
			env.Error.StatusCode = http.StatusRequestEntityTooLarge
		}
		h.writeError(w, env)
		return
	}
	if !json.Valid(body) {
		h.writeError(w, newErrorEnvelope(ServerError, msgInvalidBody))
		return
	}

	h.forward(w, r, upstream.Request{
		Operation:     "submit",
		Method:        http.MethodPost,
		Body:          body,
		Authorization: r.Header.Get("Authorization"),
	}, h.submitTimeout)
}

// HandleList forwards a listing query with the list timeout.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.client.Configured() {
		h.logger.ErrorContext(ctx, "upstream base URL not configured", "request_id", requestcontext.RequestID(ctx))
		h.writeError(w, Classify(upstream.ErrNotConfigured))
		return
	}

	auth := r.Header.Get("Authorization")
	if auth == "" {
		h.logger.WarnContext(ctx, "listing requested without Authorization header",
			"request_id", requestcontext.RequestID(ctx),
		)
	}

	h.forward(w, r, upstream.Request{
		Operation:     "list",
		Method:        http.MethodGet,
		RawQuery:      r.URL.RawQuery,
		Authorization: auth,
	}, h.listTimeout)
}

// forward owns the single outbound call and its timer. Client aborts are not
// propagated: the proxy alone decides when to cancel.
func (h *Handler) forward(w http.ResponseWriter, r *http.Request, req upstream.Request, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
	defer cancel()

	start := h.now()
	requestID := requestcontext.RequestID(ctx)
	h.logger.InfoContext(ctx, "forwarding to upstream",
		"request_id", requestID,
		"method", req.Method,
		"upstream_url", h.client.SolicitudesURL(),
		"body_bytes", len(req.Body),
		"timeout", timeout.String(),
	)

	resp, err := h.client.Solicitudes(ctx, req)
	elapsed := h.now().Sub(start)
	if err != nil {
		env := Classify(err)
		h.logger.ErrorContext(ctx, "upstream call failed",
			"request_id", requestID,
			"method", req.Method,
			"upstream_url", h.client.SolicitudesURL(),
			"error", err,
			"transport_kind", string(upstream.KindOf(err)),
			"error_kind", string(env.Error.Name),
			"elapsed_ms", elapsed.Milliseconds(),
		)
		h.writeError(w, env)
		return
	}

	status, body := FromUpstream(resp)
	level := slog.LevelInfo
	if !resp.OK() {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, "upstream responded",
		"request_id", requestID,
		"method", req.Method,
		"upstream_url", h.client.SolicitudesURL(),
		"status", resp.StatusCode,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	if resp.StatusCode == http.StatusServiceUnavailable {
		h.logger.WarnContext(ctx, "upstream 503: instance restart or platform request timeout likely; the write may still have been applied",
			"request_id", requestID,
		)
	}
	if h.metrics != nil && status >= 400 && !json.Valid(resp.Body) {
		h.metrics.IncProxyError(string(synthesizedKind(resp.StatusCode)))
	}
	if h.recorder != nil && req.Method == http.MethodPost && resp.OK() {
		h.recorder.RecordSubmission(ctx, req.Body, resp.Body)
	}
	httputil.WriteRawJSON(w, status, body)
}

// Reject writes a ServerError envelope for requests refused by middleware
// in front of the proxy routes (body limit, rate limit).
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request, status int) {
	env := newErrorEnvelope(ServerError, msgServerDefault)
	env.Error.StatusCode = status
	switch status {
	case http.StatusRequestEntityTooLarge:
		env.Error.Message = msgBodyTooLarge
	case http.StatusTooManyRequests:
		env.Error.Message = msgRateLimited
	}
	h.logger.WarnContext(r.Context(), "proxy request rejected before forwarding",
		"request_id", requestcontext.RequestID(r.Context()),
		"path", r.URL.Path,
		"status", status,
	)
	h.writeError(w, env)
}

func synthesizedKind(status int) ErrorKind {
	if status == http.StatusServiceUnavailable {
		return ServiceUnavailable
	}
	return ServerError
}

func (h *Handler) writeError(w http.ResponseWriter, env ErrorEnvelope) {
	if h.metrics != nil {
		h.metrics.IncProxyError(string(env.Error.Name))
	}
	httputil.WriteJSON(w, env.Error.StatusCode, env)
}
