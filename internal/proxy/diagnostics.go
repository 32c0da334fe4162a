package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"intake/internal/upstream"
	"intake/pkg/platform/httputil"
	"intake/pkg/requestcontext"
)

const notConfigured = "no configurada"

// DiagnosticsResponse reports upstream configuration and reachability.
type DiagnosticsResponse struct {
	Success     bool              `json:"success"`
	Status      int               `json:"status,omitempty"`
	APIURL      string            `json:"apiUrl"`
	HealthCheck *HealthCheck      `json:"healthCheck,omitempty"`
	Config      DiagnosticsConfig `json:"config"`
	Timestamp   string            `json:"timestamp"`
	Error       string            `json:"error,omitempty"`
}

type HealthCheck struct {
	URL      string `json:"url"`
	Response any    `json:"response,omitempty"`
}

type DiagnosticsConfig struct {
	APIURLSet    bool   `json:"apiUrlSet"`
	APIURLSource string `json:"apiUrlSource"`
	EnvVarValue  string `json:"envVarValue"`
}

// HandleDiagnostics pings <base>/health. It always answers 200; success
// mirrors the health check.
func (h *Handler) HandleDiagnostics(w http.ResponseWriter, r *http.Request) {
	resp := DiagnosticsResponse{
		APIURL:    notConfigured,
		Config:    h.diagnosticsConfig(),
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}

	if !h.client.Configured() {
		resp.Error = "API_URL no está configurada en las variables de entorno"
		httputil.WriteJSON(w, http.StatusOK, resp)
		return
	}
	resp.APIURL = h.client.BaseURL()

	ctx, cancel := context.WithTimeout(r.Context(), h.healthTimeout)
	defer cancel()

	health, err := h.client.Health(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "upstream health check failed",
			"request_id", requestcontext.RequestID(ctx),
			"upstream_url", h.client.HealthURL(),
			"error", err,
		)
		resp.Error = err.Error()
		httputil.WriteJSON(w, http.StatusOK, resp)
		return
	}

	resp.Success = health.OK()
	resp.Status = health.StatusCode
	resp.HealthCheck = &HealthCheck{URL: h.client.HealthURL()}
	if json.Valid(health.Body) {
		resp.HealthCheck.Response = json.RawMessage(health.Body)
	} else if len(health.Body) > 0 {
		resp.HealthCheck.Response = string(health.Body)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) diagnosticsConfig() DiagnosticsConfig {
	cfg := DiagnosticsConfig{
		APIURLSet:    h.client.Configured(),
		APIURLSource: "unset",
		EnvVarValue:  notConfigured,
	}
	switch h.baseURLSource {
	case "API_URL":
		cfg.APIURLSource = "API_URL (runtime)"
	case "NEXT_PUBLIC_API_URL":
		cfg.APIURLSource = "NEXT_PUBLIC_API_URL (build)"
	}
	if cfg.APIURLSet {
		cfg.EnvVarValue = h.client.BaseURL()
	}
	return cfg
}

// Check is a health.CheckFunc reporting whether the upstream answers.
func (h *Handler) Check(ctx context.Context) error {
	if !h.client.Configured() {
		return upstream.ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, h.healthTimeout)
	defer cancel()
	resp, err := h.client.Health(ctx)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("upstream health returned %d", resp.StatusCode)
	}
	return nil
}
