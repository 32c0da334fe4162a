package intakeclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"intake/internal/upstream/mocks"
	"intake/pkg/validation"
)

func validApplication() ApplicationSubmission {
	return ApplicationSubmission{
		NombreCompleto:    "Juan Pérez",
		TipoDocumento:     "CC",
		NumeroDocumento:   "1234567890",
		FechaNacimiento:   time.Now().AddDate(-35, 0, 0).Format(validation.DateLayout),
		EstadoCivil:       "casado",
		Genero:            "masculino",
		Telefono:          "3001234567",
		Email:             "juan@example.com",
		Direccion:         "Calle 10 # 20-30",
		Ciudad:            "Cali",
		Departamento:      "Valle del Cauca",
		Ocupacion:         "Comerciante",
		Empresa:           "Frutas Juan",
		CargoActual:       "Propietario",
		TipoContrato:      "independiente",
		IngresosMensuales: "3.000.000",
		TiempoEmpleo:      "mas5",
		MontoSolicitado:   "8.000.000",
		PlazoMeses:        "36",
		Proposito:         "Compra de inventario",
		TieneDeudas:       "no",
		RefNombre1:        "Rosa",
		RefTelefono1:      "3000000001",
		RefRelacion1:      "Esposa",
		RefNombre2:        "Mario",
		RefTelefono2:      "3000000002",
		RefRelacion2:      "Vecino",
	}
}

func TestSubmitApplication_ConditionalDebtAmountFailsLocally(t *testing.T) {
	ctrl := gomock.NewController(t)
	doer := mocks.NewMockHTTPDoer(ctrl) // any Do call fails the test

	app := validApplication()
	app.TieneDeudas = "si"
	app.MontoDeudas = ""

	res, err := New("http://proxy.invalid", WithHTTPClient(doer)).SubmitApplication(context.Background(), app)

	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.False(t, res.Success)
	assert.Equal(t, "Error de validación", res.Message)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "montoDeudas", res.Errors[0].Field)
	assert.Contains(t, res.Errors[0].Message, `tieneDeudas is "si"`)
}

type ClientSuite struct {
	suite.Suite
	server  *httptest.Server
	handler http.HandlerFunc
	client  *Client
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.handler(w, r)
	}))
	s.client = New(s.server.URL+"/", WithHTTPClient(s.server.Client()),
		WithTokenSource(func(context.Context) (string, error) { return "id-token", nil }))
}

func (s *ClientSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientSuite) respond(status int, contentType, body string) {
	s.handler = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func (s *ClientSuite) TestSuccessSendsPreparedPayload() {
	var payload map[string]any
	var auth string
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		s.Equal(SubmitPath, r.URL.Path)
		s.Equal(http.MethodPost, r.Method)
		auth = r.Header.Get("Authorization")
		s.NoError(json.NewDecoder(r.Body).Decode(&payload))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"success":true,"data":{"id":"SOL-99"}}`)
	}

	app := validApplication()
	app.Email = " Juan@Example.com "
	res, err := s.client.SubmitApplication(context.Background(), app)

	s.Require().NoError(err)
	s.Equal(Result{Success: true, ID: "SOL-99", Message: "Solicitud enviada exitosamente", StatusCode: http.StatusCreated}, res)
	s.Equal("Bearer id-token", auth)
	s.Equal("juan@example.com", payload["email"])
	s.Equal("8000000", payload["montoSolicitado"])
	s.NotContains(payload, "montoDeudas")
}

func (s *ClientSuite) TestUpstreamValidationDetails() {
	s.respond(http.StatusUnprocessableEntity, "application/json",
		`{"success":false,"error":{"name":"ValidationError","message":"Datos inválidos","statusCode":422,"details":{"errors":[{"type":"field","field":"email","message":"Email duplicado"}]}}}`)

	res, err := s.client.SubmitApplication(context.Background(), validApplication())

	s.Require().NoError(err)
	s.False(res.Success)
	s.Equal("Datos inválidos", res.Message)
	s.Equal([]FieldError{{Field: "email", Message: "Email duplicado"}}, res.Errors)
	s.Equal(http.StatusUnprocessableEntity, res.StatusCode)
}

func (s *ClientSuite) TestProxyTimeoutEnvelope() {
	s.respond(http.StatusGatewayTimeout, "application/json",
		`{"success":false,"error":{"name":"TimeoutError","message":"La solicitud tardó demasiado","statusCode":504}}`)

	res, err := s.client.SubmitApplication(context.Background(), validApplication())

	s.Require().NoError(err)
	s.Equal("La solicitud tardó demasiado", res.Message)
	s.Equal([]FieldError{{Message: "La solicitud tardó demasiado"}}, res.Errors)
}

func (s *ClientSuite) TestStringDetailsAreIgnored() {
	s.respond(http.StatusServiceUnavailable, "application/json",
		`{"success":false,"error":{"name":"ServiceUnavailable","message":"Servicio no disponible","statusCode":503,"details":"reintente"}}`)

	res, err := s.client.SubmitApplication(context.Background(), validApplication())

	s.Require().NoError(err)
	s.Equal([]FieldError{{Message: "Servicio no disponible"}}, res.Errors)
}

func (s *ClientSuite) TestNonJSONResponse() {
	s.respond(http.StatusBadGateway, "text/html", "<h1>Bad gateway</h1>")

	res, err := s.client.SubmitApplication(context.Background(), validApplication())

	s.Require().NoError(err)
	s.Equal("Error HTTP 502: <h1>Bad gateway</h1>", res.Message)
}

func (s *ClientSuite) TestUnreachableProxy() {
	s.server.Close()

	res, err := s.client.SubmitApplication(context.Background(), validApplication())

	s.Require().Error(err)
	s.False(res.Success)
	s.Contains(res.Message, "Error de conexión")
}

func (s *ClientSuite) TestClientTimeout() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}
	client := New(s.server.URL, WithHTTPClient(s.server.Client()), WithTimeout(50*time.Millisecond))

	res, err := client.SubmitApplication(context.Background(), validApplication())

	s.Require().Error(err)
	s.Contains(res.Message, "tardando más de lo esperado")
}

func (s *ClientSuite) TestSubmitConsent() {
	var payload map[string]any
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		s.NoError(json.NewDecoder(r.Body).Decode(&payload))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true,"data":{"id":"AUT-1"},"message":"Autorización registrada"}`)
	}
	consent := ConsentSubmission{
		Email:                        "maria@example.com",
		AutorizacionTratamientoDatos: true,
		AutorizacionContacto:         true,
		NombreCompleto:               "María Gómez",
		TipoDocumento:                "CE",
		NumeroDocumento:              "E123456",
		FechaNacimiento:              time.Now().AddDate(-40, 0, 0).Format(validation.DateLayout),
		FechaExpedicionDocumento:     time.Now().AddDate(-5, 0, 0).Format(validation.DateLayout),
		CiudadNegocio:                "Bogotá",
		DireccionNegocio:             "Av. Caracas 12-34",
		CelularNegocio:               "3105551234",
	}

	res, err := s.client.SubmitConsent(context.Background(), consent)

	s.Require().NoError(err)
	s.Equal("AUT-1", res.ID)
	s.Equal("Autorización registrada", res.Message)
	s.Equal(true, payload["autorizacionContacto"])
}

func TestResultFromResponse_SuccessWithoutData(t *testing.T) {
	res := resultFromResponse(http.StatusOK, []byte(`{"success":false}`))
	assert.False(t, res.Success)
	assert.Equal(t, "Error al enviar la solicitud", res.Message)
}
