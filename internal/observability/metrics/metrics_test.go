package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "stripe"),
		attribute.String("user_id", "456"),
		attribute.String("outcome", "punctual_return"),
	)
	assert.Equal(t, []attribute.KeyValue{
		attribute.String("provider", "stripe"),
		attribute.String("outcome", "punctual_return"),
	}, attrs)
}

func TestRecordersAreNilSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordRentCreated(ctx, "stripe")
		m.RecordRentReturned(ctx, "punctual_return")
		m.RecordSaleCreated(ctx)
		m.RecordPaymentEvent(ctx, "stripe", "checkout.session.completed")
		m.RecordNotification(ctx, "rent_paid", true)
		m.RecordRateLimitAllowed(ctx, "rent_it")
		m.RecordRateLimitDenied(ctx, "rent_it", "burst")
	})
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	assert.Len(t, m.counters, len(counterHelp))
}

func TestRecordRateLimitDeniedExports(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := New(Config{ServiceName: "moviestore"}, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordRateLimitDenied(ctx, "rent_it", "concurrency")
	m.RecordRateLimitDenied(ctx, "rent_it", "concurrency")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	var found bool
	for _, md := range rm.ScopeMetrics[0].Metrics {
		if md.Name != string(rateLimitDenied) {
			continue
		}
		sum, ok := md.Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.Len(t, sum.DataPoints, 1)
		assert.EqualValues(t, 2, sum.DataPoints[0].Value)
		reason, _ := sum.DataPoints[0].Attributes.Value("reason")
		assert.Equal(t, "concurrency", reason.AsString())
		found = true
	}
	assert.True(t, found)
}
