package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestFromContext(t *testing.T) {
	l, _ := newObserved()

	assert.Same(t, l, FromContext(WithContext(context.Background(), l)))
	assert.NotNil(t, FromContext(context.Background()), "falls back to a no-op logger")

	wrongType := context.WithValue(context.Background(), LoggerKey, "not a logger")
	assert.NotNil(t, FromContext(wrongType))
}

func TestWithCorrelationIDs(t *testing.T) {
	base, logs := newObserved()
	ctx := context.Background()

	ctx, l := WithRequestID(ctx, base, "req-1")
	ctx, l = WithUserID(ctx, l, "user-9")
	ctx, l = WithBatchID(ctx, l, "batch-3")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "user-9", GetUserID(ctx))
	assert.Equal(t, "batch-3", GetBatchID(ctx))
	assert.Same(t, l, FromContext(ctx))

	l.Info("committed")
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "user-9", fields["user_id"])
	assert.Equal(t, "batch-3", fields["batch_id"])
}

func TestGetters_Empty(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetUserID(ctx))
	assert.Empty(t, GetBatchID(ctx))
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetSpanID(ctx))
}

func TestTraceCorrelation(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "import.commit")
	defer span.End()

	assert.Equal(t, span.SpanContext().TraceID().String(), GetTraceID(ctx))
	assert.Equal(t, span.SpanContext().SpanID().String(), GetSpanID(ctx))

	base, logs := newObserved()
	WithTraceContext(ctx, base).Info("traced")
	WithTraceContext(context.Background(), base).Info("untraced")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, GetTraceID(ctx), entries[0].ContextMap()["trace_id"])
	assert.NotContains(t, entries[1].ContextMap(), "trace_id")

	t.Run("invalid span context", func(t *testing.T) {
		invalid := trace.ContextWithSpanContext(context.Background(), trace.SpanContext{})
		assert.Empty(t, GetTraceID(invalid))
		assert.Same(t, base, WithTraceContext(invalid, base))
	})
}

func TestContextLogger(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	base, logs := newObserved()
	ctx := WithContext(context.Background(), base)
	ctx = context.WithValue(ctx, BatchIDKey, "batch-7")
	ctx, span := tp.Tracer("test").Start(ctx, "import.rollback")
	defer span.End()

	L(ctx).With(zap.String("record_kind", "lead")).Warn("lead kept")
	L(ctx).Debug("debug")
	L(ctx).Error("error")
	WithLogger(ctx, base).Info("explicit")
	L(ctx).Zap().Info("zap")

	entries := logs.All()
	require.Len(t, entries, 5)

	first := entries[0].ContextMap()
	assert.Equal(t, "batch-7", first["batch_id"])
	assert.Equal(t, "lead", first["record_kind"])
	assert.Equal(t, span.SpanContext().TraceID().String(), first["trace_id"])
	assert.NotContains(t, first, "request_id", "empty fields are not logged")

	for _, e := range entries {
		assert.Equal(t, "batch-7", e.ContextMap()["batch_id"])
	}

	t.Run("nil logger", func(t *testing.T) {
		assert.NotPanics(t, func() { WithLogger(ctx, nil).Info("dropped") })
	})
}
