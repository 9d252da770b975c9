package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"

	"github.com/salesplan/backend/internal/infrastructure/telemetry"
)

// newTestMeter returns a meter backed by a manual reader for assertions
func newTestMeter(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return mp, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	cfg := telemetry.MetricsConfig{
		CollectorEndpoint: "localhost:4317",
		ExportInterval:    time.Minute,
		ServiceName:       "salesplan-test",
	}

	mp, err := telemetry.NewMeterProvider(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.Equal(t, cfg, mp.GetConfig())
	assert.NotNil(t, mp.Meter("import"))
	assert.NoError(t, mp.ForceFlush(ctx))
	assert.NoError(t, mp.Shutdown(ctx))
}

func TestCounter(t *testing.T) {
	mp, reader := newTestMeter(t)
	ctx := context.Background()

	c, err := telemetry.NewCounter(mp.Meter("test"), "rows_total", "rows", "{rows}")
	require.NoError(t, err)

	c.Inc(ctx, telemetry.AttrMatchStatus.String("new"))
	c.Add(ctx, 4, telemetry.AttrMatchStatus.String("new"))
	c.Add(ctx, 2, telemetry.AttrMatchStatus.String("changed"))

	sum := collect(t, reader)["rows_total"].Data.(metricdata.Sum[int64])
	byStatus := map[string]int64{}
	for _, dp := range sum.DataPoints {
		status, _ := dp.Attributes.Value(telemetry.AttrMatchStatus)
		byStatus[status.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"new": 5, "changed": 2}, byStatus)
}

func TestHistogram(t *testing.T) {
	mp, reader := newTestMeter(t)
	ctx := context.Background()

	h, err := telemetry.NewHistogram(mp.Meter("test"), telemetry.HistogramOpts{
		Name:       "commit_seconds",
		Unit:       "s",
		Boundaries: telemetry.BatchDurationBuckets,
	})
	require.NoError(t, err)

	h.RecordDuration(ctx, 1500*time.Millisecond)
	h.Record(ctx, 0.2)

	hist := collect(t, reader)["commit_seconds"].Data.(metricdata.Histogram[float64])
	require.Len(t, hist.DataPoints, 1)
	dp := hist.DataPoints[0]
	assert.Equal(t, uint64(2), dp.Count)
	assert.InDelta(t, 1.7, dp.Sum, 1e-9)
	assert.Equal(t, telemetry.BatchDurationBuckets, dp.Bounds)
}

func TestGauge(t *testing.T) {
	mp, reader := newTestMeter(t)
	ctx := context.Background()

	g, err := telemetry.NewGauge(mp.Meter("test"), "open_rows", "rows", "{rows}")
	require.NoError(t, err)

	g.Record(ctx, 120)
	g.Record(ctx, 80)

	gauge := collect(t, reader)["open_rows"].Data.(metricdata.Gauge[int64])
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(80), gauge.DataPoints[0].Value)
}

func TestDurationBucketsAreSorted(t *testing.T) {
	for _, buckets := range [][]float64{telemetry.HTTPDurationBuckets, telemetry.BatchDurationBuckets} {
		for i := 1; i < len(buckets); i++ {
			assert.Less(t, buckets[i-1], buckets[i])
		}
	}
}
