package admin

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"intake/internal/platform/privacy"
	"intake/internal/solicitud/models"
	"intake/pkg/platform/httputil"
	"intake/pkg/requestcontext"
)

// Handler serves the admin listing endpoints. It expects to be mounted
// behind the admin gate.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/api/admin/solicitudes", h.HandleList)
	r.Get("/api/admin/solicitudes/export", h.HandleExport)
	r.Delete("/api/admin/solicitudes/{id}", h.HandleDelete)
	r.Get("/api/admin/stats", h.HandleStats)
}

type listResponse struct {
	Success    bool                 `json:"success"`
	Data       []models.Application `json:"data"`
	Pagination Pagination           `json:"pagination"`
	Source     Source               `json:"source"`
}

// HandleList returns one page of applications.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	page, err := h.service.List(ctx, r.Header.Get("Authorization"), Query{
		Q:        query.Get("q"),
		Page:     atoiOrZero(query.Get("page")),
		PageSize: atoiOrZero(query.Get("pageSize")),
	})
	if err != nil {
		h.logFailure(r, "admin listing failed", err)
		httputil.WriteError(w, err)
		return
	}

	h.audit(r, "admin listing served",
		"source", page.Source,
		"total", page.Pagination.Total,
	)
	httputil.WriteJSON(w, http.StatusOK, listResponse{
		Success:    true,
		Data:       page.Data,
		Pagination: page.Pagination,
		Source:     page.Source,
	})
}

// HandleExport streams the filtered listing as a CSV attachment.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var buf bytes.Buffer
	source, err := h.service.Export(ctx, r.Header.Get("Authorization"), r.URL.Query().Get("q"), &buf)
	if err != nil {
		h.logFailure(r, "admin export failed", err)
		httputil.WriteError(w, err)
		return
	}

	h.audit(r, "admin export served", "source", source, "bytes", buf.Len())
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+ExportFilename(h.service.now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes()) //nolint:errcheck // headers already sent
}

// HandleStats returns totals over the whole listing.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		h.logFailure(r, "admin stats failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// HandleDelete removes one record from the fallback store.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.audit(r, "admin deleted solicitud", "id", id)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

func (h *Handler) audit(r *http.Request, msg string, attrs ...any) {
	ctx := r.Context()
	attrs = append(attrs,
		"request_id", requestcontext.RequestID(ctx),
		"device", requestcontext.Device(ctx),
	)
	if user, ok := requestcontext.GetAdminUser(ctx); ok {
		attrs = append(attrs, "admin", privacy.MaskEmail(user.Email), "admin_mode", user.Mode)
	}
	h.logger.InfoContext(ctx, msg, attrs...)
}

func (h *Handler) logFailure(r *http.Request, msg string, err error) {
	ctx := r.Context()
	h.logger.ErrorContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
