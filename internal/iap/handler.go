package iap

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"intake/pkg/platform/httputil"
	"intake/pkg/requestcontext"
)

// Handler serves /api/verify-iap and /api/user-info.
type Handler struct {
	verifier    *Verifier
	sessions    *Sessions
	environment string
	development bool
	logger      *slog.Logger
}

func NewHandler(v *Verifier, s *Sessions, environment string, development bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{verifier: v, sessions: s, environment: environment, development: development, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/api/verify-iap", h.HandleVerify)
	r.Get("/api/verify-iap", h.HandleStatus)
	r.Get("/api/user-info", h.HandleUserInfo)
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	Success bool  `json:"success"`
	User    *User `json:"user"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleVerify checks a posted assertion.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "token required"})
		return
	}

	user, err := h.verifier.Verify(r.Context(), req.Token)
	if err != nil {
		httputil.WriteJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verifyResponse{Success: true, User: user})
}

type statusResponse struct {
	Message string       `json:"message"`
	Status  string       `json:"status"`
	Config  statusConfig `json:"config"`
}

type statusConfig struct {
	IAPAudienceConfigured bool   `json:"iapAudienceConfigured"`
	Environment           string `json:"environment"`
}

func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, statusResponse{
		Message: "IAP assertion verification endpoint",
		Status:  "ready",
		Config: statusConfig{
			IAPAudienceConfigured: h.verifier.AudienceConfigured(),
			Environment:           h.environment,
		},
	})
}

// HandleUserInfo answers with the caller's identity: a verified assertion
// header first, then (development only) a valid session cookie.
func (h *Handler) HandleUserInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if assertion := r.Header.Get(HeaderAssertion); assertion != "" {
		user, err := h.verifier.Verify(ctx, assertion)
		if err == nil {
			httputil.WriteJSON(w, http.StatusOK, user)
			return
		}
		h.logger.InfoContext(ctx, "user-info assertion rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}

	if h.development && h.sessions != nil {
		if _, err := h.sessions.FromRequest(r); err == nil {
			httputil.WriteJSON(w, http.StatusOK, DevelopmentUser())
			return
		}
	}

	httputil.WriteJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
}
