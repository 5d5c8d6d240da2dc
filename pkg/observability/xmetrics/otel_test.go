package xmetrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newOTelWithReader(t *testing.T) (Observer, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	obs, err := NewOTelObserver(WithMeterProvider(provider))
	require.NoError(t, err)
	return obs, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestOTelObserverRecordsMetrics(t *testing.T) {
	obs, reader := newOTelWithReader(t)

	_, span := obs.Start(context.Background(), SpanOptions{
		Component: "xclient",
		Operation: "execute",
		Kind:      KindClient,
	})
	span.End(Result{})

	metrics := collectMetrics(t, reader)
	total, ok := metrics[metricOperationTotal]
	require.True(t, ok, "counter missing")
	sum, ok := total.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	dp := sum.DataPoints[0]
	assert.Equal(t, int64(1), dp.Value)

	comp, _ := dp.Attributes.Value(attribute.Key("component"))
	assert.Equal(t, "xclient", comp.AsString())
	status, _ := dp.Attributes.Value(attribute.Key("status"))
	assert.Equal(t, string(StatusOK), status.AsString())

	_, ok = metrics[metricOperationDuration]
	assert.True(t, ok, "histogram missing")
}

func TestOTelObserverErrorStatus(t *testing.T) {
	obs, reader := newOTelWithReader(t)

	_, span := obs.Start(context.Background(), SpanOptions{
		Component: "xsession",
		Operation: "refresh",
	})
	span.End(Result{Err: errors.New("credentials rejected")})

	metrics := collectMetrics(t, reader)
	sum := metrics[metricOperationTotal].Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
	status, _ := sum.DataPoints[0].Attributes.Value(attribute.Key("status"))
	assert.Equal(t, string(StatusError), status.AsString())
}

// End 幂等：重复调用只记录一次。
func TestOTelSpanEndIdempotent(t *testing.T) {
	obs, reader := newOTelWithReader(t)

	_, span := obs.Start(context.Background(), SpanOptions{Component: "xpin", Operation: "verify"})
	span.End(Result{})
	span.End(Result{Err: errors.New("ignored")})

	metrics := collectMetrics(t, reader)
	sum := metrics[metricOperationTotal].Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}

// 请求 context 已取消时指标仍要记录。
func TestOTelRecordsAfterContextCancel(t *testing.T) {
	obs, reader := newOTelWithReader(t)

	ctx, cancel := context.WithCancel(context.Background())
	sctx, span := obs.Start(ctx, SpanOptions{Component: "xclient", Operation: "execute"})
	cancel()
	_ = sctx
	span.End(Result{Err: context.Canceled})

	metrics := collectMetrics(t, reader)
	sum := metrics[metricOperationTotal].Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
}

func TestToKeyValueConversions(t *testing.T) {
	tests := []struct {
		name string
		attr Attr
		want attribute.KeyValue
	}{
		{"string", String("k", "v"), attribute.String("k", "v")},
		{"bool", Bool("k", true), attribute.Bool("k", true)},
		{"int", Int("k", 7), attribute.Int("k", 7)},
		{"int64", Int64("k", 7), attribute.Int64("k", 7)},
		{"float64", Float64("k", 1.5), attribute.Float64("k", 1.5)},
		{"duration", Duration("k", time.Second), attribute.Int64("k", int64(time.Second))},
		{"uint64 small", Uint64("k", 7), attribute.Int64("k", 7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toKeyValue(tt.attr))
		})
	}
}

func TestAttrsToOTelSkipsInvalid(t *testing.T) {
	got := attrsToOTel([]Attr{
		{Key: "", Value: "dropped"},
		{Key: "nil", Value: nil},
		String("kept", "v"),
	})
	require.Len(t, got, 1)
	assert.Equal(t, attribute.String("kept", "v"), got[0])
}
