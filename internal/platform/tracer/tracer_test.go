package tracer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"intake/internal/platform/tracer"
)

func TestNoopTracer_Start(t *testing.T) {
	tr := tracer.NewNoop()
	ctx := context.Background()

	newCtx, span := tr.Start(ctx, tracer.SpanUpstreamRequest, tracer.String(tracer.AttrHTTPMethod, "POST"))

	assert.Equal(t, ctx, newCtx)
	require.NotNil(t, span)
	span.SetAttributes(tracer.Int(tracer.AttrHTTPStatus, 201))
	span.AddEvent("retry")
	span.End(errors.New("boom"))
}

func TestOTelTracer_WithInjectedTracer(t *testing.T) {
	tr := tracer.NewOTel(tracer.WithOTelTracer(noop.NewTracerProvider().Tracer("test")))

	_, span := tr.Start(context.Background(), tracer.SpanIAPVerify,
		tracer.Bool("dev", true),
		tracer.Duration(tracer.AttrElapsed, 1500*time.Millisecond),
	)
	require.NotNil(t, span)
	span.SetAttributes(tracer.String(tracer.AttrIAPMode, "iap"), tracer.Attribute{Key: "f", Value: 1.5})
	span.End(nil)
}

func TestHashSubject(t *testing.T) {
	assert.Empty(t, tracer.HashSubject(""))

	a := tracer.HashSubject("maria@example.com")
	assert.Len(t, a, 16)
	assert.Equal(t, a, tracer.HashSubject("maria@example.com"))
	assert.NotEqual(t, a, tracer.HashSubject("jose@example.com"))
}
