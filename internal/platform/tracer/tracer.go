// Package tracer is a thin tracing seam over OpenTelemetry.
//
// Call sites depend on Tracer and Span only; main wires the OTel adapter and
// tests use NewNoop.
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: int64(value)}
}

// Duration records the value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashSubject shortens an identifier (email, document number) to a stable
// correlation key so spans never carry the raw value.
func HashSubject(subject string) string {
	if subject == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(subject))
	return hex.EncodeToString(sum[:8])
}

// Span names.
const (
	SpanUpstreamRequest = "upstream.request"
	SpanUpstreamHealth  = "upstream.health"
	SpanIAPVerify       = "iap.verify"
	SpanAdminList       = "admin.solicitudes.list"
)

// Attribute keys.
const (
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatus     = "http.status_code"
	AttrUpstreamURL    = "upstream.url"
	AttrTransportKind  = "upstream.transport_error"
	AttrElapsed        = "elapsed_ms"
	AttrIAPMode        = "iap.mode"
	AttrSubjectHash    = "subject.hash"
	AttrFallbackServed = "admin.fallback"
)
