package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// SettlementMetrics records settlement session activity: sessions opened,
// auto allocation latency, saved amounts and rejected saves.
type SettlementMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	sessionsOpened   *Counter
	settlementsSaved *Counter
	appliedAmount    *Counter
	unappliedAmount  *Counter
	saveRejected     *Counter

	autoAllocateDuration *Histogram
}

// SettlementMetricsConfig holds configuration for settlement metrics.
type SettlementMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewSettlementMetrics creates the settlement instruments on cfg.Meter.
func NewSettlementMetrics(cfg SettlementMetricsConfig) (*SettlementMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &SettlementMetrics{
		meter:  cfg.Meter,
		logger: logger,
	}

	var err error
	sm.sessionsOpened, err = NewCounter(
		cfg.Meter,
		"settlement_session_opened_total",
		"Total number of settlement sessions opened",
		"{sessions}",
	)
	if err != nil {
		return nil, err
	}

	sm.settlementsSaved, err = NewCounter(
		cfg.Meter,
		"settlement_saved_total",
		"Total number of settlements saved",
		"{settlements}",
	)
	if err != nil {
		return nil, err
	}

	sm.appliedAmount, err = NewCounter(
		cfg.Meter,
		"settlement_applied_amount_total",
		"Total amount applied to open items in cents",
		"{cents}",
	)
	if err != nil {
		return nil, err
	}

	sm.unappliedAmount, err = NewCounter(
		cfg.Meter,
		"settlement_unapplied_amount_total",
		"Total amount saved without being applied, in cents",
		"{cents}",
	)
	if err != nil {
		return nil, err
	}

	sm.saveRejected, err = NewCounter(
		cfg.Meter,
		"settlement_save_rejected_total",
		"Total number of saves refused by a save policy or invariant check",
		"{saves}",
	)
	if err != nil {
		return nil, err
	}

	sm.autoAllocateDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "settlement_auto_allocate_duration_seconds",
		Description: "Time spent running an allocation strategy",
		Unit:        "s",
		Boundaries:  SmallDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	return sm, nil
}

// SessionOpened records a session start. mode is NEW, EDIT or VIEW.
func (sm *SettlementMetrics) SessionOpened(ctx context.Context, tenantID uuid.UUID, settlementType, mode string) {
	sm.sessionsOpened.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrSettlementType.String(settlementType),
		AttrSessionMode.String(mode),
	)
}

// AutoAllocated records one run of an allocation strategy.
func (sm *SettlementMetrics) AutoAllocated(ctx context.Context, tenantID uuid.UUID, strategy, scope string, elapsed time.Duration) {
	sm.autoAllocateDuration.RecordDuration(ctx, elapsed,
		AttrTenantID.String(tenantID.String()),
		AttrStrategy.String(strategy),
		AttrScope.String(scope),
	)
}

// SettlementSaved records a saved settlement and its amounts.
// Amounts are converted to cents.
func (sm *SettlementMetrics) SettlementSaved(ctx context.Context, tenantID uuid.UUID, settlementType string, applied, unapplied decimal.Decimal) {
	attrs := []attribute.KeyValue{
		AttrTenantID.String(tenantID.String()),
		AttrSettlementType.String(settlementType),
	}
	sm.settlementsSaved.Inc(ctx, attrs...)
	if cents := toCents(applied); cents > 0 {
		sm.appliedAmount.Add(ctx, cents, attrs...)
	}
	if cents := toCents(unapplied); cents > 0 {
		sm.unappliedAmount.Add(ctx, cents, attrs...)
	}
}

// SaveRejected records a save that did not go through. reason is the domain error code.
func (sm *SettlementMetrics) SaveRejected(ctx context.Context, tenantID uuid.UUID, settlementType, reason string) {
	sm.saveRejected.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrSettlementType.String(settlementType),
		AttrReason.String(reason),
	)
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewSettlementMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
