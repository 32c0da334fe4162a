// Package admin serves the back-office listing of applications. Listings
// come from the Upstream API; while it is unreachable they are served from
// the Local Fallback Store.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"intake/internal/admin/store"
	"intake/internal/platform/privacy"
	"intake/internal/platform/tracer"
	"intake/internal/solicitud/models"
	"intake/internal/upstream"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/platform/circuit"
)

const (
	DefaultListTimeout = 60 * time.Second
	DefaultPageSize    = 10
	MaxPageSize        = 100

	breakerName = "upstream_list"
)

// Lister is the part of the upstream client the listing needs.
type Lister interface {
	Solicitudes(ctx context.Context, req upstream.Request) (*upstream.Response, error)
}

// Metrics is the subset of platform metrics the service records.
type Metrics interface {
	IncAdminFallbackServed()
	SetBreakerState(name string, state int)
	SetFallbackStored(n int)
}

// Source tells where a listing came from.
type Source string

const (
	SourceUpstream Source = "upstream"
	SourceFallback Source = "fallback"
)

type Config struct {
	Upstream    Lister
	Store       store.Store
	Logger      *slog.Logger
	Tracer      tracer.Tracer
	Metrics     Metrics
	ListTimeout time.Duration
	// Breaker options; the breaker itself is owned by the service.
	BreakerOptions []circuit.Option
	Now            func() time.Time
}

// Service provides the admin listing operations.
type Service struct {
	upstream    Lister
	store       store.Store
	breaker     *circuit.Breaker
	logger      *slog.Logger
	tracer      tracer.Tracer
	metrics     Metrics
	listTimeout time.Duration
	now         func() time.Time
}

func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracer.NewNoop()
	}
	if cfg.ListTimeout <= 0 {
		cfg.ListTimeout = DefaultListTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Store == nil {
		cfg.Store = store.NewInMemoryStore()
	}
	opts := cfg.BreakerOptions
	if m := cfg.Metrics; m != nil {
		opts = append(opts, circuit.WithStateChange(func(name string, _, to circuit.State) {
			m.SetBreakerState(name, int(to))
		}))
	}
	return &Service{
		upstream:    cfg.Upstream,
		store:       cfg.Store,
		breaker:     circuit.New(breakerName, opts...),
		logger:      cfg.Logger,
		tracer:      cfg.Tracer,
		metrics:     cfg.Metrics,
		listTimeout: cfg.ListTimeout,
		now:         cfg.Now,
	}
}

// Snapshot is a full listing and where it came from.
type Snapshot struct {
	Records []models.Application
	Source  Source
}

// Fetch loads every record from the Upstream API and refreshes the fallback
// store with it. A transport failure, a 5xx or an open breaker serves the
// fallback store instead. Other upstream statuses are returned as errors.
func (s *Service) Fetch(ctx context.Context, authorization string) (snap *Snapshot, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanAdminList)
	defer func() {
		if snap != nil {
			span.SetAttributes(tracer.Bool(tracer.AttrFallbackServed, snap.Source == SourceFallback))
		}
		span.End(err)
	}()

	if s.upstream == nil {
		return s.fallback(ctx, upstream.ErrNotConfigured)
	}
	if !s.breaker.Allow() {
		return s.fallback(ctx, errors.New("circuit open"))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.listTimeout)
	defer cancel()
	resp, err := s.upstream.Solicitudes(callCtx, upstream.Request{
		Operation:     "admin_list",
		Method:        http.MethodGet,
		Authorization: authorization,
	})
	switch {
	case errors.Is(err, upstream.ErrNotConfigured):
		return s.fallback(ctx, err)
	case err != nil:
		s.breaker.RecordFailure()
		return s.fallback(ctx, err)
	case resp.StatusCode >= http.StatusInternalServerError:
		s.breaker.RecordFailure()
		return s.fallback(ctx, fmt.Errorf("upstream status %d", resp.StatusCode))
	case !resp.OK():
		s.breaker.RecordSuccess()
		return nil, upstreamStatusError(resp.StatusCode)
	}

	records, err := decodeListing(resp.Body)
	if err != nil {
		s.breaker.RecordFailure()
		return s.fallback(ctx, err)
	}
	s.breaker.RecordSuccess()

	if err := s.store.Replace(ctx, records); err != nil {
		s.logger.WarnContext(ctx, "failed to refresh fallback store", "error", err)
	} else if stored, err := s.store.List(ctx); err == nil {
		records = stored
	}
	if s.metrics != nil {
		s.metrics.SetFallbackStored(len(records))
	}
	return &Snapshot{Records: records, Source: SourceUpstream}, nil
}

func (s *Service) fallback(ctx context.Context, cause error) (*Snapshot, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "fallback store unavailable", "error", err, "cause", cause)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "listing unavailable")
	}
	s.logger.WarnContext(ctx, "serving admin listing from fallback store",
		"cause", cause,
		"records", len(records),
		"breaker", s.breaker.State().String(),
	)
	if s.metrics != nil {
		s.metrics.IncAdminFallbackServed()
	}
	return &Snapshot{Records: records, Source: SourceFallback}, nil
}

// decodeListing accepts {"data":[...]} as well as a bare array.
func decodeListing(body []byte) ([]models.Application, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var records []models.Application
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, fmt.Errorf("decode listing: %w", err)
		}
		return records, nil
	}
	var envelope struct {
		Data []models.Application `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	if envelope.Data == nil {
		return []models.Application{}, nil
	}
	return envelope.Data, nil
}

func upstreamStatusError(status int) error {
	msg := fmt.Sprintf("upstream answered %d", status)
	switch status {
	case http.StatusUnauthorized:
		return dErrors.New(dErrors.CodeUnauthorized, msg)
	case http.StatusForbidden:
		return dErrors.New(dErrors.CodeForbidden, msg)
	case http.StatusNotFound:
		return dErrors.New(dErrors.CodeNotFound, msg)
	case http.StatusTooManyRequests:
		return dErrors.New(dErrors.CodeTooManyRequests, msg)
	default:
		return dErrors.New(dErrors.CodeBadRequest, msg)
	}
}

// Query filters and pages a listing.
type Query struct {
	Q        string
	Page     int
	PageSize int
}

// Normalize applies defaults: page 1, page size 10, at most 100.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	q.Q = strings.TrimSpace(q.Q)
	return q
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type Page struct {
	Data       []models.Application
	Pagination Pagination
	Source     Source
}

// List returns one page of the filtered listing.
func (s *Service) List(ctx context.Context, authorization string, q Query) (*Page, error) {
	q = q.Normalize()
	snap, err := s.Fetch(ctx, authorization)
	if err != nil {
		return nil, err
	}
	matched := Filter(snap.Records, q.Q)

	total := len(matched)
	page := Page{
		Data: []models.Application{},
		Pagination: Pagination{
			Page:       q.Page,
			PageSize:   q.PageSize,
			Total:      total,
			TotalPages: (total + q.PageSize - 1) / q.PageSize,
		},
		Source: snap.Source,
	}
	if start := (q.Page - 1) * q.PageSize; start < total {
		page.Data = matched[start:min(start+q.PageSize, total)]
	}
	return &page, nil
}

// Filter keeps records whose name, email or id contain q (case-insensitive)
// or whose document number contains q verbatim.
func Filter(records []models.Application, q string) []models.Application {
	q = strings.TrimSpace(q)
	if q == "" {
		return records
	}
	lower := strings.ToLower(q)
	out := make([]models.Application, 0, len(records))
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.NombreCompleto), lower) ||
			strings.Contains(r.NumeroDocumento, q) ||
			strings.Contains(strings.ToLower(r.Email), lower) ||
			strings.Contains(strings.ToLower(r.ID), lower) {
			out = append(out, r)
		}
	}
	return out
}

// Stats summarizes the whole listing.
type Stats struct {
	Total            int     `json:"total"`
	Today            int     `json:"today"`
	TotalRequested   int64   `json:"totalRequested"`
	AverageRequested float64 `json:"averageRequested"`
	Source           Source  `json:"source"`
}

func (s *Service) Stats(ctx context.Context, authorization string) (*Stats, error) {
	snap, err := s.Fetch(ctx, authorization)
	if err != nil {
		return nil, err
	}
	now := s.now()
	stats := &Stats{Total: len(snap.Records), Source: snap.Source}
	for _, r := range snap.Records {
		stats.TotalRequested += r.MontoSolicitado.Int64()
		if t, ok := submittedAt(r); ok && sameDay(t.In(now.Location()), now) {
			stats.Today++
		}
	}
	if stats.Total > 0 {
		stats.AverageRequested = float64(stats.TotalRequested) / float64(stats.Total)
	}
	return stats, nil
}

// RecordSubmission mirrors an accepted submission into the fallback store.
// payload is the body sent upstream, response the upstream success body.
func (s *Service) RecordSubmission(ctx context.Context, payload, response []byte) {
	var record models.Application
	if err := json.Unmarshal(payload, &record); err != nil {
		s.logger.DebugContext(ctx, "submission not mirrored: unreadable payload", "error", err)
		return
	}
	var accepted struct {
		Data struct {
			ID             string `json:"id"`
			FechaSolicitud string `json:"fechaSolicitud"`
		} `json:"data"`
	}
	if json.Unmarshal(response, &accepted) == nil {
		record.ID = accepted.Data.ID
		record.FechaSolicitud = accepted.Data.FechaSolicitud
	}
	saved, err := s.store.Append(ctx, record)
	if err != nil {
		s.logger.WarnContext(ctx, "submission not mirrored to fallback store", "error", err)
		return
	}
	s.logger.DebugContext(ctx, "submission mirrored to fallback store",
		"id", saved.ID,
		"document", privacy.MaskDocument(saved.NumeroDocumento),
	)
}

// Delete removes a record from the fallback store.
func (s *Service) Delete(ctx context.Context, id string) error {
	removed, err := s.store.Delete(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "solicitud not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "could not delete solicitud")
	}
	s.logger.InfoContext(ctx, "solicitud deleted from fallback store",
		"id", removed.ID,
		"document", privacy.MaskDocument(removed.NumeroDocumento),
		"email", privacy.MaskEmail(removed.Email),
	)
	return nil
}

var submittedLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func submittedAt(r models.Application) (time.Time, bool) {
	for _, layout := range submittedLayouts {
		if t, err := time.Parse(layout, r.FechaSolicitud); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
