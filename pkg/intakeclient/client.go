// Package intakeclient is the Go client used by form controllers to submit
// credit applications and data-treatment consents through the proxy.
// Submissions are validated locally first; an invalid form never reaches
// the network.
package intakeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"intake/internal/solicitud/models"
	"intake/internal/upstream"
	"intake/pkg/validation"
)

type (
	ApplicationSubmission = models.Application
	ConsentSubmission     = models.Consent
	Numeric               = models.Numeric
	FieldError            = validation.FieldError
)

// SubmitPath is the proxy route both forms are posted to.
const SubmitPath = "/api/solicitudes"

// DefaultTimeout sits just above the proxy's own submission bound, so the
// proxy answers with its timeout envelope before the client gives up.
const DefaultTimeout = 185 * time.Second

const (
	msgValidation      = "Error de validación"
	msgSubmitted       = "Solicitud enviada exitosamente"
	msgSubmitFailed    = "Error al enviar la solicitud"
	msgUnknown         = "Error desconocido"
	msgTimeout         = "La solicitud está tardando más de lo esperado. Es posible que se haya procesado correctamente en el servidor. Por favor verifica o intenta de nuevo."
	msgConnection      = "Error de conexión. Verifica tu conexión a internet y que la API esté disponible."
	msgConnectionRetry = "Error al conectar con el servidor. Por favor intenta de nuevo más tarde."
)

// Result is what a form shows after a submit.
type Result struct {
	Success    bool         `json:"success"`
	ID         string       `json:"id,omitempty"`
	Message    string       `json:"message"`
	Errors     []FieldError `json:"errors,omitempty"`
	StatusCode int          `json:"-"`
}

// TokenSource returns the bearer token of the signed-in applicant, empty
// when anonymous.
type TokenSource func(ctx context.Context) (string, error)

type Client struct {
	baseURL string
	http    upstream.HTTPDoer
	token   TokenSource
	timeout time.Duration
}

type Option func(*Client)

func WithHTTPClient(d upstream.HTTPDoer) Option {
	return func(c *Client) { c.http = d }
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New targets the proxy at baseURL (scheme and host, no path).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitApplication validates a, then posts its prepared payload. The
// returned error is non-nil when the form was invalid or the proxy could not
// be reached; Result always carries the message to show.
func (c *Client) SubmitApplication(ctx context.Context, a ApplicationSubmission) (Result, error) {
	if res, err := invalid(a.Validate()); err != nil {
		return res, err
	}
	return c.post(ctx, a.Prepare())
}

// SubmitConsent validates and posts a consent form.
func (c *Client) SubmitConsent(ctx context.Context, s ConsentSubmission) (Result, error) {
	if res, err := invalid(s.Validate()); err != nil {
		return res, err
	}
	return c.post(ctx, s.Prepare())
}

func invalid(err error) (Result, error) {
	if err == nil {
		return Result{}, nil
	}
	return Result{
		Success: false,
		Message: msgValidation,
		Errors:  validation.Fields(err),
	}, err
}

func (c *Client) post(ctx context.Context, payload any) (Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Message: msgUnknown}, fmt.Errorf("encode submission: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+SubmitPath, bytes.NewReader(body))
	if err != nil {
		return Result{Message: msgConnectionRetry}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return Result{Message: msgConnectionRetry}, fmt.Errorf("token source: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportResult(err), err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportResult(err), err
	}
	return resultFromResponse(resp.StatusCode, raw), nil
}

func transportResult(err error) Result {
	msg := msgConnection
	if upstream.Classify(err) == upstream.KindTimeout {
		msg = msgTimeout
	}
	return Result{Message: msg, Errors: []FieldError{{Message: msg}}}
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *struct {
		ID string `json:"id"`
	} `json:"data"`
	Error *struct {
		Name       string          `json:"name"`
		Message    string          `json:"message"`
		StatusCode int             `json:"statusCode"`
		Details    json.RawMessage `json:"details"`
	} `json:"error"`
}

type envelopeDetails struct {
	Errors []FieldError `json:"errors"`
}

// resultFromResponse maps a proxy envelope to a Result.
func resultFromResponse(status int, raw []byte) Result {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		text := strings.TrimSpace(string(raw))
		if text == "" {
			text = msgUnknown
		}
		msg := fmt.Sprintf("Error HTTP %d: %s", status, text)
		return Result{Message: msg, Errors: []FieldError{{Message: msg}}, StatusCode: status}
	}

	ok := status >= 200 && status < 300
	if ok && env.Success && env.Data != nil {
		msg := env.Message
		if msg == "" {
			msg = msgSubmitted
		}
		return Result{Success: true, ID: env.Data.ID, Message: msg, StatusCode: status}
	}

	msg := msgSubmitFailed
	if !ok {
		msg = fmt.Sprintf("Error HTTP %d", status)
	}
	if status == http.StatusGatewayTimeout {
		msg = msgTimeout
	}
	var fields []FieldError
	if env.Error != nil {
		if env.Error.Message != "" {
			msg = env.Error.Message
		}
		var details envelopeDetails
		if len(env.Error.Details) > 0 && json.Unmarshal(env.Error.Details, &details) == nil {
			fields = details.Errors
		}
	}
	if len(fields) == 0 {
		fields = []FieldError{{Message: msg}}
	}
	return Result{Message: msg, Errors: fields, StatusCode: status}
}

// IsValidation reports whether err came from local validation.
func IsValidation(err error) bool {
	var fields validation.Errors
	return errors.As(err, &fields)
}
