package telemetry

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
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newDBMetricsReader(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func singleConnTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := setupTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func collectDBMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
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

func counterByAttr(t *testing.T, m metricdata.Metrics, key attribute.Key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(key); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestRegisterDBMetrics_Disabled(t *testing.T) {
	reader, provider := newDBMetricsReader(t)
	db := singleConnTestDB(t)

	m, err := RegisterDBMetrics(db, provider.Meter("db.client"), DBMetricsConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, m)

	require.NoError(t, db.Create(&tracedNote{Text: "a"}).Error)
	assert.NotContains(t, collectDBMetrics(t, reader), "db_query_total")
}

func TestRegisterDBMetrics_Queries(t *testing.T) {
	reader, provider := newDBMetricsReader(t)
	db := singleConnTestDB(t)

	m, err := RegisterDBMetrics(db, provider.Meter("db.client"), DBMetricsConfig{
		Enabled:            true,
		SlowQueryThreshold: time.Nanosecond,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	ctx := context.Background()
	require.NoError(t, db.WithContext(ctx).Create(&tracedNote{Text: "cheque"}).Error)
	require.NoError(t, db.WithContext(ctx).Create(&tracedNote{Text: "transfer"}).Error)
	var notes []tracedNote
	require.NoError(t, db.WithContext(ctx).Find(&notes).Error)
	require.NoError(t, db.WithContext(ctx).Model(&tracedNote{}).Where("text = ?", "cheque").Update("text", "cash").Error)
	require.NoError(t, db.WithContext(ctx).Exec("DELETE FROM traced_notes WHERE text = ?", "cash").Error)

	got := collectDBMetrics(t, reader)
	require.Contains(t, got, "db_query_total")
	total := got["db_query_total"]
	assert.Equal(t, int64(2), counterByAttr(t, total, AttrDBOperation, "INSERT"))
	assert.Equal(t, int64(1), counterByAttr(t, total, AttrDBOperation, "SELECT"))
	assert.Equal(t, int64(1), counterByAttr(t, total, AttrDBOperation, "UPDATE"))
	assert.Equal(t, int64(1), counterByAttr(t, total, AttrDBOperation, "DELETE"))

	hist, ok := got["db_query_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(5), count)

	require.Contains(t, got, "db_slow_query_total")
	assert.Equal(t, int64(4), counterByAttr(t, got["db_slow_query_total"], AttrDBTable, "traced_notes"))
}

func TestRegisterDBMetrics_PoolGauges(t *testing.T) {
	reader, provider := newDBMetricsReader(t)
	db := singleConnTestDB(t)

	m, err := RegisterDBMetrics(db, provider.Meter("db.client"), DBMetricsConfig{Enabled: true}, zap.NewNop())
	require.NoError(t, err)

	got := collectDBMetrics(t, reader)
	require.Contains(t, got, "db_pool_connections_max")
	gauge, ok := got["db_pool_connections_max"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(1), gauge.DataPoints[0].Value)

	states, ok := got["db_pool_connections"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	assert.Len(t, states.DataPoints, 3)

	assert.NoError(t, m.Close())
}

func TestDBMetrics_RecordQueryErrors(t *testing.T) {
	reader, provider := newDBMetricsReader(t)
	m, err := NewDBMetrics(provider.Meter("db.client"), nil, DBMetricsConfig{}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordQuery(ctx, "SELECT", "open_items", time.Millisecond, gorm.ErrRecordNotFound)
	m.RecordQuery(ctx, "", "settlements", time.Second, errors.New("deadlock detected"))

	got := collectDBMetrics(t, reader)
	sum := got["db_query_total"].Data.(metricdata.Sum[int64])
	errorsByOp := map[string]bool{}
	for _, dp := range sum.DataPoints {
		op, _ := dp.Attributes.Value(AttrDBOperation)
		failed, _ := dp.Attributes.Value(AttrDBError)
		errorsByOp[op.AsString()] = failed.AsBool()
	}
	assert.Equal(t, map[string]bool{"SELECT": false, "OTHER": true}, errorsByOp)

	assert.Equal(t, int64(1), counterByAttr(t, got["db_slow_query_total"], AttrDBTable, "settlements"))
}

func TestNewDBMetrics_NilMeter(t *testing.T) {
	_, err := NewDBMetrics(nil, nil, DBMetricsConfig{}, zap.NewNop())
	require.Error(t, err)
}

func TestSQLOperation(t *testing.T) {
	assert.Equal(t, "DELETE", sqlOperation("  delete from traced_notes"))
	assert.Equal(t, "SELECT", sqlOperation("SELECT 1"))
	assert.Equal(t, "OTHER", sqlOperation("PRAGMA foreign_keys"))
	assert.Equal(t, "OTHER", sqlOperation(""))
}
