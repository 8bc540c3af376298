package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	dbMetricsPluginName = "settlement:db_metrics"
	dbMetricsStartKey   = "settlement:db_metrics:start"

	defaultSlowQueryThreshold = 200 * time.Millisecond
)

// DBMetricsConfig holds configuration for database metrics
type DBMetricsConfig struct {
	Enabled bool
	// SlowQueryThreshold counts a query as slow above this duration (default 200ms)
	SlowQueryThreshold time.Duration
}

// DBMetrics records query counts, latency and slow queries through a gorm
// plugin, and observes the connection pool on every collection.
type DBMetrics struct {
	queryTotal    *Counter
	queryDuration *Histogram
	slowQueries   *Counter
	threshold     time.Duration
	registration  metric.Registration
	logger        *zap.Logger
}

// NewDBMetrics creates the instruments. sqlDB may be nil, in which case pool
// gauges are not registered.
func NewDBMetrics(meter metric.Meter, sqlDB *sql.DB, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if meter == nil {
		return nil, &MetricsError{Op: "NewDBMetrics", Err: "meter cannot be nil"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = defaultSlowQueryThreshold
	}

	queryTotal, err := NewCounter(meter, "db_query_total", "Database queries by operation", "{query}")
	if err != nil {
		return nil, err
	}
	queryDuration, err := NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	slowQueries, err := NewCounter(meter, "db_slow_query_total", "Database queries slower than the threshold, by table", "{query}")
	if err != nil {
		return nil, err
	}

	m := &DBMetrics{
		queryTotal:    queryTotal,
		queryDuration: queryDuration,
		slowQueries:   slowQueries,
		threshold:     cfg.SlowQueryThreshold,
		logger:        logger,
	}
	if sqlDB != nil {
		if err := m.observePool(meter, sqlDB); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *DBMetrics) observePool(meter metric.Meter, sqlDB *sql.DB) error {
	conns, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Pool connections by state"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return err
	}
	maxConns, err := meter.Int64ObservableGauge("db_pool_connections_max",
		metric.WithDescription("Maximum open connections, 0 when unlimited"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return err
	}

	m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sqlDB.Stats()
		o.ObserveInt64(maxConns, int64(stats.MaxOpenConnections))
		o.ObserveInt64(conns, int64(stats.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(conns, int64(stats.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(conns, int64(stats.OpenConnections), metric.WithAttributes(AttrDBState.String("open")))
		return nil
	}, conns, maxConns)
	return err
}

// RecordQuery records one finished query
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, elapsed time.Duration, err error) {
	if operation == "" {
		operation = "OTHER"
	}
	op := AttrDBOperation.String(operation)
	m.queryTotal.Inc(ctx, op, AttrDBError.Bool(err != nil && !errors.Is(err, gorm.ErrRecordNotFound)))
	m.queryDuration.RecordDuration(ctx, elapsed, op)

	if elapsed > m.threshold {
		if table == "" {
			table = "unknown"
		}
		m.slowQueries.Inc(ctx, AttrDBTable.String(table))
	}
}

// Close stops observing the pool
func (m *DBMetrics) Close() error {
	if m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}

// Name implements gorm.Plugin
func (m *DBMetrics) Name() string {
	return dbMetricsPluginName
}

// Initialize implements gorm.Plugin by timing every create, query, update,
// delete, row and raw statement
func (m *DBMetrics) Initialize(db *gorm.DB) error {
	start := func(tx *gorm.DB) {
		tx.InstanceSet(dbMetricsStartKey, time.Now())
	}
	finish := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			m.finish(tx, operation)
		}
	}

	cb := db.Callback()
	hooks := []struct {
		name          string
		before, after func(string, func(*gorm.DB)) error
		operation     string
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register, "INSERT"},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register, "SELECT"},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register, "UPDATE"},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register, "DELETE"},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register, ""},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register, ""},
	}
	for _, h := range hooks {
		if err := h.before(dbMetricsPluginName+":before_"+h.name, start); err != nil {
			return err
		}
		if err := h.after(dbMetricsPluginName+":after_"+h.name, finish(h.operation)); err != nil {
			return err
		}
	}
	return nil
}

func (m *DBMetrics) finish(tx *gorm.DB, operation string) {
	ctx := tx.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	var elapsed time.Duration
	if v, ok := tx.InstanceGet(dbMetricsStartKey); ok {
		if started, ok := v.(time.Time); ok {
			elapsed = time.Since(started)
		}
	}
	if operation == "" {
		operation = sqlOperation(tx.Statement.SQL.String())
	}
	m.RecordQuery(ctx, operation, tx.Statement.Table, elapsed, tx.Error)
}

// sqlOperation names the statement kind from its leading keyword
func sqlOperation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "OTHER"
	}
	switch kw := strings.ToUpper(fields[0]); kw {
	case "SELECT", "INSERT", "UPDATE", "DELETE":
		return kw
	}
	return "OTHER"
}

// RegisterDBMetrics installs query metrics on db and observes its pool. It
// returns nil metrics when disabled.
func RegisterDBMetrics(db *gorm.DB, meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if !cfg.Enabled {
		logger.Debug("Database metrics disabled, skipping registration")
		return nil, nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	m, err := NewDBMetrics(meter, sqlDB, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Use(m); err != nil {
		_ = m.Close()
		return nil, err
	}

	logger.Info("Database metrics enabled", zap.Duration("slow_query_threshold", m.threshold))
	return m, nil
}
