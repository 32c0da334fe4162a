// Package upstream calls the credit-application API that owns persistence.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"intake/internal/platform/tracer"
)

// DefaultMaxResponseBytes caps how much of an upstream body is buffered.
const DefaultMaxResponseBytes = 16 << 20

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Observer receives one call per finished upstream request.
type Observer interface {
	ObserveUpstream(operation, outcome string, seconds float64)
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Version    string
	HTTPClient HTTPDoer
	Tracer     tracer.Tracer
	Observer   Observer
	// MaxResponseBytes bounds a buffered reply; larger replies fail with
	// ErrResponseTooLarge. Zero means DefaultMaxResponseBytes.
	MaxResponseBytes int64
}

// Client talks to <base>/api/<version>/solicitudes and <base>/health.
type Client struct {
	baseURL  string
	version  string
	client   HTTPDoer
	tracer   tracer.Tracer
	observer Observer
	maxBody  int64
}

func New(cfg Config) *Client {
	if cfg.Version == "" {
		cfg.Version = "v1"
	}
	if cfg.HTTPClient == nil {
		// Per-call deadlines come from the caller's context.
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = tracer.NewNoop()
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		version:  cfg.Version,
		client:   cfg.HTTPClient,
		tracer:   cfg.Tracer,
		observer: cfg.Observer,
		maxBody:  cfg.MaxResponseBytes,
	}
}

// Configured reports whether a base URL is set. Callers must not issue
// requests otherwise.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) SolicitudesURL() string {
	return c.baseURL + "/api/" + c.version + "/solicitudes"
}

func (c *Client) HealthURL() string {
	return c.baseURL + "/health"
}

// Request is one call against the solicitudes collection.
type Request struct {
	// Operation labels metrics and spans ("submit", "list").
	Operation     string
	Method        string
	RawQuery      string
	Body          []byte
	Authorization string
}

// Response is a fully buffered upstream reply.
type Response struct {
	StatusCode  int
	StatusText  string
	ContentType string
	Body        []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsJSON reports whether the upstream declared a JSON media type.
func (r *Response) IsJSON() bool {
	if r.ContentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		return strings.Contains(r.ContentType, "application/json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// ErrNotConfigured is returned when a call is attempted without a base URL.
var ErrNotConfigured = errors.New("upstream base URL is not configured")

// ErrResponseTooLarge is wrapped in the TransportError of a reply whose body
// exceeds the configured limit. The body is never truncated silently.
var ErrResponseTooLarge = errors.New("upstream response exceeds size limit")

// Solicitudes performs req against the solicitudes collection. A non-nil
// error is a *TransportError or *PanicError; any HTTP status is a Response.
func (c *Client) Solicitudes(ctx context.Context, req Request) (*Response, error) {
	target := c.SolicitudesURL()
	if req.RawQuery != "" {
		target += "?" + req.RawQuery
	}
	return c.do(ctx, req.Operation, req.Method, target, req.Body, req.Authorization, tracer.SpanUpstreamRequest)
}

// Health fetches <base>/health.
func (c *Client) Health(ctx context.Context) (*Response, error) {
	return c.do(ctx, "health", http.MethodGet, c.HealthURL(), nil, "", tracer.SpanUpstreamHealth)
}

func (c *Client) do(ctx context.Context, operation, method, target string, body []byte, authorization, spanName string) (resp *Response, err error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	start := time.Now()
	ctx, span := c.tracer.Start(ctx, spanName,
		tracer.String(tracer.AttrHTTPMethod, method),
		tracer.String(tracer.AttrUpstreamURL, target),
	)
	defer func() {
		if resp != nil {
			span.SetAttributes(tracer.Int(tracer.AttrHTTPStatus, resp.StatusCode))
		}
		if kind := KindOf(err); kind != "" {
			span.SetAttributes(tracer.String(tracer.AttrTransportKind, string(kind)))
		}
		span.SetAttributes(tracer.Duration(tracer.AttrElapsed, time.Since(start)))
		span.End(err)
		c.observe(operation, resp, err, time.Since(start))
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &TransportError{Kind: KindOther, Op: method, URL: target, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if authorization != "" {
		httpReq.Header.Set("Authorization", authorization)
	}

	httpResp, err := c.send(httpReq)
	if err != nil {
		var panicErr *PanicError
		if errors.As(err, &panicErr) {
			return nil, err
		}
		return nil, &TransportError{Kind: Classify(err), Op: method, URL: target, Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, c.maxBody+1))
	if err != nil {
		return nil, &TransportError{Kind: Classify(err), Op: method, URL: target, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(data)) > c.maxBody {
		return nil, &TransportError{Kind: KindOther, Op: method, URL: target,
			Err: fmt.Errorf("read body: %w (%d bytes)", ErrResponseTooLarge, c.maxBody)}
	}

	return &Response{
		StatusCode:  httpResp.StatusCode,
		StatusText:  statusText(httpResp),
		ContentType: httpResp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}

// send runs the doer, turning a panic into an error so the caller can still
// answer with an envelope.
func (c *Client) send(req *http.Request) (resp *http.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = &PanicError{Value: r}
		}
	}()
	return c.client.Do(req)
}

func (c *Client) observe(operation string, resp *Response, err error, elapsed time.Duration) {
	if c.observer == nil {
		return
	}
	outcome := "other"
	switch {
	case resp != nil:
		outcome = strconv.Itoa(resp.StatusCode/100) + "xx"
	case KindOf(err) != "":
		outcome = string(KindOf(err))
	case err != nil:
		outcome = "panic"
	}
	c.observer.ObserveUpstream(operation, outcome, elapsed.Seconds())
}

func statusText(resp *http.Response) string {
	if text, ok := strings.CutPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); ok && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
