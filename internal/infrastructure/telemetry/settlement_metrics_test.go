package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func newRecordingMetrics(t *testing.T) (*telemetry.SettlementMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	sm, err := telemetry.NewSettlementMetrics(telemetry.SettlementMetricsConfig{
		Meter:  provider.Meter("test"),
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	return sm, reader
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

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNewSettlementMetrics(t *testing.T) {
	sm, err := telemetry.NewSettlementMetrics(telemetry.SettlementMetricsConfig{
		Meter: noop.NewMeterProvider().Meter("test"),
	})
	require.NoError(t, err)
	require.NotNil(t, sm)
}

func TestNewSettlementMetrics_NilMeter(t *testing.T) {
	sm, err := telemetry.NewSettlementMetrics(telemetry.SettlementMetricsConfig{
		Logger: zap.NewNop(),
	})

	require.Error(t, err)
	assert.Nil(t, sm)
	assert.Equal(t, "NewSettlementMetrics: meter cannot be nil", err.Error())
}

func TestSettlementMetrics_SessionOpened(t *testing.T) {
	sm, reader := newRecordingMetrics(t)
	tenantID := uuid.New()

	sm.SessionOpened(context.Background(), tenantID, "RECEIPT", "NEW")
	sm.SessionOpened(context.Background(), tenantID, "RECEIPT", "NEW")
	sm.SessionOpened(context.Background(), tenantID, "PAYMENT", "EDIT")

	m, ok := collect(t, reader)["settlement_session_opened_total"]
	require.True(t, ok)
	assert.Equal(t, int64(3), sumOf(t, m))

	sum := m.Data.(metricdata.Sum[int64])
	assert.Len(t, sum.DataPoints, 2)
	for _, dp := range sum.DataPoints {
		tenant, _ := dp.Attributes.Value(attribute.Key("tenant_id"))
		assert.Equal(t, tenantID.String(), tenant.AsString())
	}
}

func TestSettlementMetrics_SettlementSaved(t *testing.T) {
	sm, reader := newRecordingMetrics(t)
	tenantID := uuid.New()

	sm.SettlementSaved(context.Background(), tenantID, "RECEIPT",
		decimal.RequireFromString("199.99"), decimal.RequireFromString("0.01"))
	sm.SettlementSaved(context.Background(), tenantID, "RECEIPT",
		decimal.RequireFromString("50"), decimal.Zero)

	metrics := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, metrics["settlement_saved_total"]))
	assert.Equal(t, int64(24999), sumOf(t, metrics["settlement_applied_amount_total"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["settlement_unapplied_amount_total"]))
}

func TestSettlementMetrics_SaveRejected(t *testing.T) {
	sm, reader := newRecordingMetrics(t)

	sm.SaveRejected(context.Background(), uuid.New(), "PAYMENT", "UNBALANCED")

	m, ok := collect(t, reader)["settlement_save_rejected_total"]
	require.True(t, ok)
	sum := m.Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
	reason, _ := sum.DataPoints[0].Attributes.Value(attribute.Key("reason"))
	assert.Equal(t, "UNBALANCED", reason.AsString())
}

func TestSettlementMetrics_AutoAllocated(t *testing.T) {
	sm, reader := newRecordingMetrics(t)

	sm.AutoAllocated(context.Background(), uuid.New(), "SEQUENTIAL_FILL", "ALL", 3*time.Millisecond)

	m, ok := collect(t, reader)["settlement_auto_allocate_duration_seconds"]
	require.True(t, ok)
	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 0.003, hist.DataPoints[0].Sum, 1e-9)
}
