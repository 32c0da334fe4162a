package admin

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"intake/internal/admin/store"
	"intake/internal/solicitud/models"
	"intake/internal/upstream"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/platform/circuit"
)

type recordingMetrics struct {
	fallbackServed int
	breaker        map[string]int
	stored         int
}

func (m *recordingMetrics) IncAdminFallbackServed() { m.fallbackServed++ }
func (m *recordingMetrics) SetBreakerState(name string, state int) {
	m.breaker[name] = state
}
func (m *recordingMetrics) SetFallbackStored(n int) { m.stored = n }

const listing = `{"success":true,"data":[
 {"id":"SOL-1","fechaSolicitud":"2026-03-02T09:15:00Z","nombreCompleto":"Ana Ruiz","numeroDocumento":"52123456","email":"ana@example.com","montoSolicitado":"1000000","plazoMeses":"12","empresa":"Panadería Ruiz","ingresosMensuales":"2000000","telefono":"3001112233"},
 {"id":"SOL-2","fechaSolicitud":"2026-03-01T09:15:00Z","nombreCompleto":"Beto Díaz","numeroDocumento":"80987654","email":"beto@example.com","montoSolicitado":3000000,"plazoMeses":24},
 {"id":"SOL-3","fechaSolicitud":"2026-03-02T18:00:00Z","nombreCompleto":"Carla Mora","numeroDocumento":"1012345678","email":"CARLA@example.com","montoSolicitado":"2000000"}
]}`

type ServiceSuite struct {
	suite.Suite
	server  *httptest.Server
	status  atomic.Int32
	body    atomic.Value
	hits    atomic.Int32
	auth    atomic.Value
	store   *store.InMemoryStore
	metrics *recordingMetrics
	service *Service
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.status.Store(http.StatusOK)
	s.body.Store(listing)
	s.hits.Store(0)
	s.auth.Store("")
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		s.auth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(s.status.Load()))
		_, _ = io.WriteString(w, s.body.Load().(string))
	}))
	s.now = time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)
	s.store = store.NewInMemoryStore()
	s.metrics = &recordingMetrics{breaker: map[string]int{}}
	s.service = s.newService(upstream.New(upstream.Config{BaseURL: s.server.URL}))
}

func (s *ServiceSuite) TearDownTest() {
	s.server.Close()
}

func (s *ServiceSuite) newService(lister Lister) *Service {
	return NewService(Config{
		Upstream:       lister,
		Store:          s.store,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:        s.metrics,
		BreakerOptions: []circuit.Option{circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour)},
		Now:            func() time.Time { return s.now },
	})
}

func (s *ServiceSuite) TestFetchRefreshesFallbackStore() {
	snap, err := s.service.Fetch(context.Background(), "Bearer abc")
	s.Require().NoError(err)

	s.Equal(SourceUpstream, snap.Source)
	s.Len(snap.Records, 3)
	s.Equal("Bearer abc", s.auth.Load())
	s.Equal(3, s.metrics.stored)

	stored, err := s.store.List(context.Background())
	s.Require().NoError(err)
	s.Len(stored, 3)
}

func (s *ServiceSuite) TestFallbackOnUpstream5xx() {
	_, err := s.service.Fetch(context.Background(), "")
	s.Require().NoError(err)

	s.status.Store(http.StatusBadGateway)
	snap, err := s.service.Fetch(context.Background(), "")
	s.Require().NoError(err)
	s.Equal(SourceFallback, snap.Source)
	s.Len(snap.Records, 3)
	s.Equal(1, s.metrics.fallbackServed)
}

func (s *ServiceSuite) TestFallbackOnTransportFailure() {
	s.Require().NoError(s.store.Replace(context.Background(), []models.Application{{ID: "cached"}}))
	s.server.Close()

	snap, err := s.service.Fetch(context.Background(), "")
	s.Require().NoError(err)
	s.Equal(SourceFallback, snap.Source)
	s.Require().Len(snap.Records, 1)
	s.Equal("cached", snap.Records[0].ID)
}

func (s *ServiceSuite) TestFallbackWhenUnconfigured() {
	svc := s.newService(upstream.New(upstream.Config{}))
	snap, err := svc.Fetch(context.Background(), "")
	s.Require().NoError(err)
	s.Equal(SourceFallback, snap.Source)
	s.Equal(int32(0), s.hits.Load())
}

func (s *ServiceSuite) TestOpenBreakerSkipsUpstream() {
	s.status.Store(http.StatusInternalServerError)
	for range 2 {
		_, err := s.service.Fetch(context.Background(), "")
		s.Require().NoError(err)
	}
	s.Equal(int(circuit.StateOpen), s.metrics.breaker["upstream_list"])

	snap, err := s.service.Fetch(context.Background(), "")
	s.Require().NoError(err)
	s.Equal(SourceFallback, snap.Source)
	s.Equal(int32(2), s.hits.Load())
}

func (s *ServiceSuite) TestClientErrorsAreReturned() {
	s.status.Store(http.StatusUnauthorized)
	s.body.Store(`{"success":false}`)

	_, err := s.service.Fetch(context.Background(), "")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Equal(0, s.metrics.fallbackServed)
}

func (s *ServiceSuite) TestUndecodableListingFallsBack() {
	s.body.Store(`{"data": "nope"}`)
	snap, err := s.service.Fetch(context.Background(), "")
	s.Require().NoError(err)
	s.Equal(SourceFallback, snap.Source)
}

func (s *ServiceSuite) TestListFiltersAndPaginates() {
	page, err := s.service.List(context.Background(), "", Query{Q: "example.com", Page: 2, PageSize: 2})
	s.Require().NoError(err)

	s.Equal(Pagination{Page: 2, PageSize: 2, Total: 3, TotalPages: 2}, page.Pagination)
	s.Require().Len(page.Data, 1)
	s.Equal("SOL-3", page.Data[0].ID)

	page, err = s.service.List(context.Background(), "", Query{Page: 9})
	s.Require().NoError(err)
	s.Empty(page.Data)
	s.Equal(10, page.Pagination.PageSize)
}

func (s *ServiceSuite) TestStats() {
	stats, err := s.service.Stats(context.Background(), "")
	s.Require().NoError(err)

	s.Equal(3, stats.Total)
	s.Equal(2, stats.Today)
	s.Equal(int64(6000000), stats.TotalRequested)
	s.InDelta(2000000, stats.AverageRequested, 0.001)
}

func (s *ServiceSuite) TestExport() {
	var buf bytes.Buffer
	source, err := s.service.Export(context.Background(), "", "ruiz", &buf)
	s.Require().NoError(err)
	s.Equal(SourceUpstream, source)

	rows, err := csv.NewReader(&buf).ReadAll()
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	s.Equal(exportHeader, rows[0])
	s.Equal([]string{"SOL-1", "02/03/2026 09:15", "Ana Ruiz", "52123456", "ana@example.com", "3001112233", "1000000", "12", "Panadería Ruiz", "2000000"}, rows[1])
}

func (s *ServiceSuite) TestDelete() {
	_, err := s.service.Fetch(context.Background(), "")
	s.Require().NoError(err)

	s.Require().NoError(s.service.Delete(context.Background(), "SOL-2"))
	err = s.service.Delete(context.Background(), "SOL-2")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestRecordSubmission() {
	s.service.RecordSubmission(context.Background(),
		[]byte(`{"nombreCompleto":"Dora","numeroDocumento":"123456789","montoSolicitado":"500000"}`),
		[]byte(`{"success":true,"data":{"id":"UP-77","fechaSolicitud":"2026-03-02T19:00:00Z"}}`),
	)

	records, err := s.store.List(context.Background())
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal("UP-77", records[0].ID)
	s.Equal("Dora", records[0].NombreCompleto)
}

func TestFilter(t *testing.T) {
	records := []models.Application{
		{ID: "SOL-1", NombreCompleto: "Ana Ruiz", NumeroDocumento: "52123456", Email: "ana@x.co"},
		{ID: "SOL-2", NombreCompleto: "Beto", NumeroDocumento: "80987654", Email: "BETO@x.co"},
	}

	assert.Len(t, Filter(records, ""), 2)
	assert.Len(t, Filter(records, "  "), 2)
	assert.Equal(t, "SOL-1", Filter(records, "RUIZ")[0].ID)
	assert.Equal(t, "SOL-2", Filter(records, "beto@")[0].ID)
	assert.Equal(t, "SOL-2", Filter(records, "sol-2")[0].ID)
	assert.Equal(t, "SOL-1", Filter(records, "1234")[0].ID)
	assert.Empty(t, Filter(records, "zzz"))
}

func TestQueryNormalize(t *testing.T) {
	assert.Equal(t, Query{Page: 1, PageSize: 10}, Query{}.Normalize())
	assert.Equal(t, Query{Page: 3, PageSize: 100, Q: "x"}, Query{Page: 3, PageSize: 500, Q: " x "}.Normalize())
}

func TestExportFilename(t *testing.T) {
	assert.Equal(t, "solicitudes_2026-03-02.csv", ExportFilename(time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)))
}

func TestDecodeListing(t *testing.T) {
	records, err := decodeListing([]byte(`[{"id":"A"}]`))
	require.NoError(t, err)
	assert.Len(t, records, 1)

	records, err = decodeListing([]byte(`{"success":true}`))
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}
