package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestEnsureRequestIDGeneratesOnce(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	require.NotEmpty(t, id)

	again, sameID := EnsureRequestID(ctx)
	require.Equal(t, id, sameID)
	got, ok := RequestIDFromContext(again)
	require.True(t, ok)
	require.Equal(t, id, got)
}

func TestWithRequestIDUsesProvidedID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	got, ok := RequestIDFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "req-123", got)
}

func TestRequestFields(t *testing.T) {
	require.Empty(t, RequestFields(context.Background()))

	traceID, err := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0123456789abcdef")
	require.NoError(t, err)
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(WithRequestID(context.Background(), "req-1"), spanCtx)

	fields := RequestFields(ctx)
	require.Len(t, fields, 3)
	require.Equal(t, FieldRequestID, fields[0].Key)
	require.Equal(t, "req-1", fields[0].String)
	require.Equal(t, FieldTraceID, fields[1].Key)
	require.Equal(t, traceID.String(), fields[1].String)
	require.Equal(t, FieldSpanID, fields[2].Key)
}
