// Package proxy forwards browser calls to the upstream credit API and turns
// every failure into one JSON error envelope.
package proxy

import "net/http"

// ErrorKind names an entry of the proxy error taxonomy.
type ErrorKind string

const (
	ConfigurationError ErrorKind = "ConfigurationError"
	SSLError           ErrorKind = "SSLError"
	TimeoutError       ErrorKind = "TimeoutError"
	NetworkError       ErrorKind = "NetworkError"
	ServiceUnavailable ErrorKind = "ServiceUnavailable"
	ServerError        ErrorKind = "ServerError"
	UnknownError       ErrorKind = "UnknownError"
)

// Status is the HTTP status a locally synthesized error of this kind carries.
func (k ErrorKind) Status() int {
	switch k {
	case SSLError, NetworkError, ServiceUnavailable:
		return http.StatusServiceUnavailable
	case TimeoutError:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the "error" member of ErrorEnvelope.
type ErrorBody struct {
	Name       ErrorKind `json:"name"`
	Message    string    `json:"message"`
	StatusCode int       `json:"statusCode"`
	Details    any       `json:"details,omitempty"`
	URL        string    `json:"url,omitempty"`
	Note       string    `json:"note,omitempty"`
}

// ErrorEnvelope is written with HTTP status Error.StatusCode, always.
type ErrorEnvelope struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

type SuccessEnvelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func newErrorEnvelope(kind ErrorKind, message string) ErrorEnvelope {
	return ErrorEnvelope{Error: ErrorBody{Name: kind, Message: message, StatusCode: kind.Status()}}
}

// User-facing messages. The forms this proxy serves are in Spanish.
const (
	msgNotConfigured     = "La URL de la API no está configurada. Configura API_URL en el entorno del servidor."
	msgSSL               = "Error de conexión SSL con el servidor. Verifica que la URL de la API sea correcta y use HTTPS."
	detailsSSL           = "El servidor puede no estar respondiendo con HTTPS correctamente. Verifica la URL configurada."
	msgTimeout           = "La solicitud está tardando más de lo esperado. Es posible que se haya procesado correctamente. Por favor verifica o intenta de nuevo en unos momentos."
	noteTimeout          = "La solicitud puede haberse procesado en el backend a pesar del timeout. Verifica antes de reenviarla."
	msgNetwork           = "Error de conexión con el servidor. Verifica tu conexión a internet y que la API esté disponible."
	msgServerDefault     = "Error al procesar la solicitud"
	msgUnknown           = "Error desconocido al procesar la solicitud"
	msgUnavailable       = "El servidor no está disponible o tardó demasiado en responder. La solicitud puede haberse procesado correctamente."
	detailsUnavailable   = "El servicio puede haberse reiniciado o alcanzado el tiempo máximo de la plataforma. Revisa sus logs para más detalles."
	msgInvalidBody       = "El cuerpo de la solicitud no es JSON válido"
	msgBodyTooLarge      = "El cuerpo de la solicitud excede el tamaño permitido"
	msgResponseTooLarge  = "La respuesta de la API excede el tamaño permitido"
	msgRateLimited       = "Demasiadas solicitudes. Espera unos segundos e intenta de nuevo."
	msgProcessed         = "Solicitud procesada"
	msgInvalidUpstreamJS = "La API respondió con JSON inválido"
)
