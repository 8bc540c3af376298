package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type tracedNote struct {
	ID   uint   `gorm:"primaryKey"`
	Text string `gorm:"size:100"`
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedNote{}))
	return db
}

func setupGlobalRecorder(t *testing.T) *tracetest.SpanRecorder {
	sr := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return sr
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := DefaultDBTracingConfig()

	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.LogFullSQL)
	assert.Equal(t, "postgresql", cfg.DBSystem)
}

func TestRegisterDBTracing_Disabled(t *testing.T) {
	sr := setupGlobalRecorder(t)
	db := setupTestDB(t)

	require.NoError(t, RegisterDBTracing(db, DefaultDBTracingConfig(), zap.NewNop()))
	require.NoError(t, db.WithContext(context.Background()).Create(&tracedNote{Text: "a"}).Error)

	assert.Empty(t, sr.Ended())
}

func TestRegisterDBTracing_Enabled(t *testing.T) {
	sr := setupGlobalRecorder(t)
	db := setupTestDB(t)

	cfg := DBTracingConfig{Enabled: true, DBSystem: "sqlite"}
	require.NoError(t, RegisterDBTracing(db, cfg, zap.NewNop()))

	ctx, parent := otel.Tracer("test").Start(context.Background(), "request")
	require.NoError(t, db.WithContext(ctx).Create(&tracedNote{Text: "cheque-7731"}).Error)
	parent.End()

	spans := sr.Ended()
	require.GreaterOrEqual(t, len(spans), 2)

	var child trace.ReadOnlySpan
	for _, s := range spans {
		if s.Parent().SpanID() == parent.SpanContext().SpanID() {
			child = s
		}
	}
	require.NotNil(t, child, "query span should be a child of the request span")

	for _, kv := range child.Attributes() {
		assert.False(t, strings.Contains(kv.Value.Emit(), "cheque-7731"),
			"bound values must not be recorded, found in %s", kv.Key)
	}
}
