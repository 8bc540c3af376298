package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/domain/shared/strategy"
	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// DefaultDraftTTL is how long an idle session survives
	DefaultDraftTTL = 2 * time.Hour
	// DefaultReceiptTTL is how long a save can be retried under the same idempotency key
	DefaultReceiptTTL = 24 * time.Hour
	// DefaultLeaseTTL bounds how long a crashed instance can hold a session
	DefaultLeaseTTL = 30 * time.Second
	// DefaultLeaseWait is how long a request waits for another instance's lease
	DefaultLeaseWait = 5 * time.Second
)

// StrategyResolver looks up allocation strategies by name
type StrategyResolver interface {
	// GetAllocationStrategy returns the default strategy for an empty name
	GetAllocationStrategy(name string) (strategy.SettlementAllocationStrategy, error)
	ListAllocationStrategies() []strategy.SettlementAllocationStrategy
	DefaultAllocation() string
}

// MetricsRecorder receives settlement activity for monitoring
type MetricsRecorder interface {
	SessionOpened(ctx context.Context, tenantID uuid.UUID, settlementType, mode string)
	AutoAllocated(ctx context.Context, tenantID uuid.UUID, strategy, scope string, elapsed time.Duration)
	SettlementSaved(ctx context.Context, tenantID uuid.UUID, settlementType string, applied, unapplied decimal.Decimal)
	SaveRejected(ctx context.Context, tenantID uuid.UUID, settlementType, reason string)
}

type noopMetrics struct{}

func (noopMetrics) SessionOpened(context.Context, uuid.UUID, string, string) {}
func (noopMetrics) AutoAllocated(context.Context, uuid.UUID, string, string, time.Duration) {}
func (noopMetrics) SettlementSaved(context.Context, uuid.UUID, string, decimal.Decimal, decimal.Decimal) {}
func (noopMetrics) SaveRejected(context.Context, uuid.UUID, string, string) {}

// Service runs settlement sessions: a batch parked in the draft store between
// requests, edited one operation at a time and finally saved or discarded.
type Service struct {
	catalog      settlement.OpenItemCatalog
	settlements  settlement.SettlementRepository
	drafts       settlement.DraftStore
	strategies   StrategyResolver
	receipts     settlement.SaveReceiptStore
	metrics      MetricsRecorder
	locks        *sessionLocks
	lease        settlement.SessionLease
	leaseTTL     time.Duration
	leaseWait    time.Duration
	draftTTL     time.Duration
	receiptTTL   time.Duration
	reabsorb     bool
	savePolicies map[settlement.SettlementType]settlement.SavePolicy
	now          func() time.Time
}

// ServiceOption is a functional option for configuring Service
type ServiceOption func(*Service)

// WithDraftTTL sets how long an idle session survives
func WithDraftTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.draftTTL = ttl
		}
	}
}

// WithSaveReceipts makes saves carrying an idempotency key replayable for ttl
func WithSaveReceipts(store settlement.SaveReceiptStore, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.receipts = store
		if ttl > 0 {
			s.receiptTTL = ttl
		}
	}
}

// WithSessionLease serializes session edits across instances as well as
// within this one. A request gives up with a conflict after waiting wait.
func WithSessionLease(lease settlement.SessionLease, ttl, wait time.Duration) ServiceOption {
	return func(s *Service) {
		s.lease = lease
		if ttl > 0 {
			s.leaseTTL = ttl
		}
		if wait > 0 {
			s.leaseWait = wait
		}
	}
}

// WithMetrics reports session activity to m
func WithMetrics(m MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithDiscountReabsorb controls whether dropping a discount lets the row take
// unapplied money back up to its original amount
func WithDiscountReabsorb(enabled bool) ServiceOption {
	return func(s *Service) {
		s.reabsorb = enabled
	}
}

// WithSavePolicies overrides the save policy of individual settlement types
func WithSavePolicies(policies map[settlement.SettlementType]settlement.SavePolicy) ServiceOption {
	return func(s *Service) {
		for t, p := range policies {
			if t.IsValid() && p.IsValid() {
				s.savePolicies[t] = p
			}
		}
	}
}

// ParseSavePolicies converts configured policies such as {"receipt": "require_balanced"}
// into typed overrides. Keys and values are case-insensitive.
func ParseSavePolicies(raw map[string]string) (map[settlement.SettlementType]settlement.SavePolicy, error) {
	out := make(map[settlement.SettlementType]settlement.SavePolicy, len(raw))
	for k, v := range raw {
		t := settlement.SettlementType(strings.ToUpper(k))
		if !t.IsValid() {
			return nil, fmt.Errorf("%w: unknown settlement type %q", shared.ErrInvalidInput, k)
		}
		p := settlement.SavePolicy(strings.ToUpper(v))
		if !p.IsValid() {
			return nil, fmt.Errorf("%w: unknown save policy %q for %s", shared.ErrInvalidInput, v, t)
		}
		out[t] = p
	}
	return out, nil
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new settlement session service
func NewService(
	catalog settlement.OpenItemCatalog,
	settlements settlement.SettlementRepository,
	drafts settlement.DraftStore,
	strategies StrategyResolver,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		catalog:      catalog,
		settlements:  settlements,
		drafts:       drafts,
		strategies:   strategies,
		metrics:      noopMetrics{},
		locks:        newSessionLocks(),
		leaseTTL:     DefaultLeaseTTL,
		leaseWait:    DefaultLeaseWait,
		draftTTL:     DefaultDraftTTL,
		receiptTTL:   DefaultReceiptTTL,
		reabsorb:     true,
		savePolicies: make(map[settlement.SettlementType]settlement.SavePolicy),
		now:          time.Now,
	}
	for _, t := range settlement.AllSettlementTypes() {
		s.savePolicies[t] = t.DefaultSavePolicy()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SavePolicy returns the policy applied when saving a settlement of type t
func (s *Service) SavePolicy(t settlement.SettlementType) settlement.SavePolicy {
	if p, ok := s.savePolicies[t]; ok {
		return p
	}
	return t.DefaultSavePolicy()
}

// OpenSession starts a NEW session. Documents load immediately when a
// counterparty is given.
func (s *Service) OpenSession(ctx context.Context, tenantID uuid.UUID, req OpenSessionRequest) (*SessionView, error) {
	opts := []settlement.BatchOption{settlement.WithDiscountReabsorb(s.reabsorb)}
	if !req.SettlementDate.IsZero() {
		opts = append(opts, settlement.WithSettlementDate(req.SettlementDate))
	}
	b, err := settlement.NewBatch(tenantID, req.Type, opts...)
	if err != nil {
		return nil, err
	}
	if len(req.Methods) > 0 {
		if err := b.SetMethods(req.Methods); err != nil {
			return nil, err
		}
	}
	if req.CounterpartyID != uuid.Nil {
		if err := s.loadDocuments(ctx, b, req.CounterpartyID); err != nil {
			return nil, err
		}
	}

	draft, err := s.park(ctx, b)
	if err != nil {
		return nil, err
	}
	s.metrics.SessionOpened(ctx, tenantID, string(b.Type()), b.Mode().String())
	s.log(ctx, b).Info("Settlement session opened",
		zap.String("type", string(b.Type())),
		zap.Int("documents", len(b.Documents())),
	)
	return toSessionView(b, draft, s.SavePolicy(b.Type()), nil), nil
}

// ReopenSession loads a saved settlement into an EDIT or VIEW session
func (s *Service) ReopenSession(ctx context.Context, tenantID, settlementID uuid.UUID, mode string) (*SessionView, error) {
	record, err := s.settlements.FindByIDForTenant(ctx, tenantID, settlementID)
	if err != nil {
		return nil, err
	}
	if mode == "" {
		mode = string(settlement.ModeView)
	}
	b, err := settlement.ReopenBatch(record, settlement.Mode(strings.ToUpper(mode)))
	if err != nil {
		return nil, err
	}

	draft, err := s.park(ctx, b)
	if err != nil {
		return nil, err
	}
	s.metrics.SessionOpened(ctx, tenantID, string(b.Type()), b.Mode().String())
	s.log(ctx, b).Info("Settlement reopened",
		zap.String("settlement_id", settlementID.String()),
		zap.String("mode", b.Mode().String()),
	)
	return toSessionView(b, draft, s.SavePolicy(b.Type()), nil), nil
}

// GetSession returns the current state of a session and refreshes its expiry
func (s *Service) GetSession(ctx context.Context, tenantID, sessionID uuid.UUID) (*SessionView, error) {
	return s.mutate(ctx, tenantID, sessionID, func(context.Context, *settlement.Batch) (*settlement.AmountAdjustment, error) {
		return nil, nil
	})
}

// ChangeCounterparty replaces the document set with the counterparty's open items
func (s *Service) ChangeCounterparty(ctx context.Context, tenantID, sessionID, counterpartyID uuid.UUID) (*SessionView, error) {
	return s.mutate(ctx, tenantID, sessionID, func(ctx context.Context, b *settlement.Batch) (*settlement.AmountAdjustment, error) {
		if counterpartyID == uuid.Nil {
			return nil, fmt.Errorf("%w: counterparty_id is required", shared.ErrInvalidInput)
		}
		return nil, s.loadDocuments(ctx, b, counterpartyID)
	})
}

// SetMethods replaces the method rows of a NEW session
func (s *Service) SetMethods(ctx context.Context, tenantID, sessionID uuid.UUID, methods []settlement.MethodLine) (*SessionView, error) {
	return s.mutate(ctx, tenantID, sessionID, func(_ context.Context, b *settlement.Batch) (*settlement.AmountAdjustment, error) {
		return nil, b.SetMethods(methods)
	})
}

// SetPostDated flips the post-dated flag of a method row
func (s *Service) SetPostDated(ctx context.Context, tenantID, sessionID uuid.UUID, index int, postDated bool, chequeDate *time.Time) (*SessionView, error) {
	return s.mutate(ctx, tenantID, sessionID, func(_ context.Context, b *settlement.Batch) (*settlement.AmountAdjustment, error) {
		return nil, b.SetPostDated(index, postDated, chequeDate)
	})
}

// ToggleSelection checks or unchecks a document row
func (s *Service) ToggleSelection(ctx context.Context, tenantID, sessionID uuid.UUID, documentNo string, checked bool) (*SessionView, error) {
	return s.mutate(ctx, tenantID, sessionID, func(_ context.Context, b *settlement.Batch) (*settlement.AmountAdjustment, error) {
		return nil, b.ToggleSelection(documentNo, checked)
	})
}

// SetAppliedAmount applies a typed amount to a row; the view reports any clamping
func (s *Service) SetAppliedAmount(ctx context.Context, tenantID, sessionID uuid.UUID, documentNo, amount string) (*SessionView, error) {
	return s.mutate(ctx, tenantID, sessionID, func(ctx context.Context, b *settlement.Batch) (*settlement.AmountAdjustment, error) {
		adj, err := b.SetAppliedAmount(documentNo, amount)
		if err != nil {
			return nil, err
		}
		if adj.Adjusted() {
			s.log(ctx, b).Debug("Applied amount adjusted",
				zap.String("document_no", documentNo),
				zap.String("requested", adj.Requested.StringFixed(2)),
				zap.String("applied", adj.Applied.StringFixed(2)),
				zap.String("reason", string(adj.Reason)),
			)
		}
		return &adj, nil
	})
}

// SetDiscount sets the discount of a row and whether it is taken
func (s *Service) SetDiscount(ctx context.Context, tenantID, sessionID uuid.UUID, documentNo string, withDiscount bool, amount string) (*SessionView, error) {
	return s.mutate(ctx, tenantID, sessionID, func(_ context.Context, b *settlement.Batch) (*settlement.AmountAdjustment, error) {
		return nil, b.SetDiscount(documentNo, withDiscount, amount)
	})
}

// AutoAllocate distributes the remaining amount with the named strategy.
// An empty strategy name selects the configured default.
func (s *Service) AutoAllocate(ctx context.Context, tenantID, sessionID uuid.UUID, scope, strategyName string) (*SessionView, error) {
	sc, err := settlement.ParseScope(scope)
	if err != nil {
		return nil, err
	}
	strat, err := s.strategies.GetAllocationStrategy(strategyName)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown allocation strategy %q", shared.ErrInvalidInput, strategyName)
		}
		return nil, err
	}

	return s.mutate(ctx, tenantID, sessionID, func(ctx context.Context, b *settlement.Batch) (*settlement.AmountAdjustment, error) {
		started := s.now()
		if err := b.AutoAllocateWith(ctx, sc, strat); err != nil {
			return nil, err
		}
		s.metrics.AutoAllocated(ctx, tenantID, strat.Name(), string(sc), s.now().Sub(started))
		s.log(ctx, b).Info("Auto allocation applied",
			zap.String("strategy", strat.Name()),
			zap.String("scope", string(sc)),
			zap.String("remaining", b.Remaining().StringFixed(2)),
		)
		return nil, nil
	})
}

// SortDocuments reorders the document rows
func (s *Service) SortDocuments(ctx context.Context, tenantID, sessionID uuid.UUID, key, direction string) (*SessionView, error) {
	return s.mutate(ctx, tenantID, sessionID, func(_ context.Context, b *settlement.Batch) (*settlement.AmountAdjustment, error) {
		return nil, b.Sort(settlement.SortKey(strings.ToUpper(key)), settlement.SortDirection(strings.ToUpper(direction)))
	})
}

// Save persists the session. A NEW session becomes a settlement record and
// clears the open items it touches; an EDIT session stores its post-dated
// flags. The session ends on success. A request repeating the idempotency key
// of an earlier save returns that settlement instead of saving again.
func (s *Service) Save(ctx context.Context, tenantID, sessionID uuid.UUID, req SaveRequest) (*SettlementResponse, error) {
	unlock, err := s.lockSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if replay, err := s.replaySave(ctx, tenantID, req.IdempotencyKey); err != nil || replay != nil {
		return replay, err
	}

	b, err := s.restore(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	var record *settlement.SettlementRecord
	switch b.Mode() {
	case settlement.ModeNew:
		record, err = s.saveNew(ctx, b, req)
	case settlement.ModeEdit:
		record, err = s.saveEdit(ctx, b)
	default:
		err = settlement.ErrSettlementLocked
	}
	if err != nil {
		var domainErr *shared.DomainError
		if errors.As(err, &domainErr) {
			s.metrics.SaveRejected(ctx, tenantID, string(b.Type()), domainErr.Code)
		}
		return nil, err
	}

	if err := s.drafts.Delete(ctx, tenantID, sessionID); err != nil {
		s.log(ctx, b).Warn("Failed to drop saved session", zap.Error(err))
	}
	if s.receipts != nil && req.IdempotencyKey != "" {
		if err := s.receipts.Remember(ctx, tenantID, req.IdempotencyKey, record.ID, s.receiptTTL); err != nil {
			s.log(ctx, b).Warn("Failed to store save receipt", zap.Error(err))
		}
	}
	if b.Mode() == settlement.ModeNew {
		s.metrics.SettlementSaved(ctx, tenantID, string(record.Type), record.AppliedAmount, record.UnappliedAmount)
	}
	s.log(ctx, b).Info("Settlement saved",
		zap.String("settlement_id", record.ID.String()),
		zap.String("settlement_number", record.SettlementNumber),
		zap.String("mode", b.Mode().String()),
	)
	return toSettlementResponse(record), nil
}

func (s *Service) replaySave(ctx context.Context, tenantID uuid.UUID, key string) (*SettlementResponse, error) {
	if s.receipts == nil || key == "" {
		return nil, nil
	}
	settlementID, ok, err := s.receipts.Recall(ctx, tenantID, key)
	if err != nil {
		logger.L(ctx).Warn("Failed to read save receipt", zap.Error(err))
		return nil, nil
	}
	if !ok {
		return nil, nil
	}
	logger.L(ctx).Info("Replaying saved settlement",
		zap.String("idempotency_key", key),
		zap.String("settlement_id", settlementID.String()),
	)
	return s.GetSettlement(ctx, tenantID, settlementID)
}

func (s *Service) saveNew(ctx context.Context, b *settlement.Batch, req SaveRequest) (*settlement.SettlementRecord, error) {
	if err := s.SavePolicy(b.Type()).Permits(b.Remaining(), req.AcceptRemainder); err != nil {
		return nil, err
	}
	number := settlement.NewSettlementNumber(b.Type(), b.SettlementDate())
	record, err := settlement.NewSettlementRecord(b, number, req.Remark)
	if err != nil {
		return nil, err
	}
	if req.CreatedBy != nil {
		record.SetCreatedBy(*req.CreatedBy)
	}
	if err := s.settlements.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("save settlement: %w", err)
	}
	return record, nil
}

func (s *Service) saveEdit(ctx context.Context, b *settlement.Batch) (*settlement.SettlementRecord, error) {
	if b.RecordID() == nil {
		return nil, settlement.ErrSettlementLocked
	}
	record, err := s.settlements.FindByIDForTenant(ctx, b.TenantID(), *b.RecordID())
	if err != nil {
		return nil, err
	}
	if err := record.ApplyMethodFlags(b); err != nil {
		return nil, err
	}
	if err := s.settlements.UpdateMethodFlags(ctx, record); err != nil {
		return nil, fmt.Errorf("update settlement: %w", err)
	}
	return record, nil
}

// Discard ends a session without saving
func (s *Service) Discard(ctx context.Context, tenantID, sessionID uuid.UUID) error {
	unlock, err := s.lockSession(ctx, tenantID, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.drafts.Get(ctx, tenantID, sessionID); err != nil {
		return err
	}
	if err := s.drafts.Delete(ctx, tenantID, sessionID); err != nil {
		return err
	}
	logger.L(logger.WithSessionID(ctx, sessionID.String())).Info("Settlement session discarded")
	return nil
}

// GetSettlement returns a saved settlement
func (s *Service) GetSettlement(ctx context.Context, tenantID, settlementID uuid.UUID) (*SettlementResponse, error) {
	record, err := s.settlements.FindByIDForTenant(ctx, tenantID, settlementID)
	if err != nil {
		return nil, err
	}
	return toSettlementResponse(record), nil
}

// ListStrategies returns the registered allocation strategies
func (s *Service) ListStrategies() []StrategyResponse {
	def := s.strategies.DefaultAllocation()
	list := s.strategies.ListAllocationStrategies()
	out := make([]StrategyResponse, 0, len(list))
	for _, st := range list {
		out = append(out, StrategyResponse{
			Name:            st.Name(),
			Description:     st.Description(),
			SupportsPartial: st.SupportsPartialAllocation(),
			IsDefault:       st.Name() == def,
		})
	}
	return out
}

// mutate runs fn against the session's batch under the session lock. The
// batch is parked again only when fn succeeds, so a failed operation leaves
// the stored session untouched.
func (s *Service) mutate(
	ctx context.Context,
	tenantID, sessionID uuid.UUID,
	fn func(context.Context, *settlement.Batch) (*settlement.AmountAdjustment, error),
) (*SessionView, error) {
	unlock, err := s.lockSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := s.restore(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	adj, err := fn(ctx, b)
	if err != nil {
		return nil, err
	}
	if err := b.CheckInvariants(); err != nil {
		s.log(ctx, b).Error("Settlement invariant violated", zap.Error(err))
		return nil, err
	}

	draft, err := s.park(ctx, b)
	if err != nil {
		return nil, err
	}
	return toSessionView(b, draft, s.SavePolicy(b.Type()), adj), nil
}

// lockSession takes the in-process lock and, when configured, the shared
// lease. The returned func releases both.
func (s *Service) lockSession(ctx context.Context, tenantID, sessionID uuid.UUID) (func(), error) {
	unlock := s.locks.lock(sessionID)
	if s.lease == nil {
		return unlock, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.leaseWait)
	defer cancel()
	release, err := s.lease.Acquire(waitCtx, tenantID, sessionID, s.leaseTTL)
	if err != nil {
		unlock()
		return nil, err
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.L(ctx).Warn("Failed to release session lease",
				zap.String("session_id", sessionID.String()),
				zap.Error(err),
			)
		}
		unlock()
	}, nil
}

func (s *Service) restore(ctx context.Context, tenantID, sessionID uuid.UUID) (*settlement.Batch, error) {
	draft, err := s.drafts.Get(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	if draft.Expired(s.now()) {
		return nil, fmt.Errorf("%w: settlement session %s expired", shared.ErrNotFound, sessionID)
	}
	b, err := draft.Restore()
	if err != nil {
		logger.L(ctx).Error("Failed to restore settlement session",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
		return nil, err
	}
	return b, nil
}

func (s *Service) park(ctx context.Context, b *settlement.Batch) (*settlement.Draft, error) {
	draft := settlement.NewDraft(b, s.draftTTL, s.now())
	if err := s.drafts.Save(ctx, draft); err != nil {
		return nil, fmt.Errorf("store settlement session: %w", err)
	}
	return draft, nil
}

func (s *Service) loadDocuments(ctx context.Context, b *settlement.Batch, counterpartyID uuid.UUID) error {
	items, err := s.catalog.FindOpenItems(ctx, b.TenantID(), b.Ledger(), counterpartyID)
	if err != nil {
		return fmt.Errorf("load open items: %w", err)
	}
	return b.LoadDocuments(counterpartyID, items)
}

func (s *Service) log(ctx context.Context, b *settlement.Batch) *zap.Logger {
	ctx = logger.WithTenantID(ctx, b.TenantID().String())
	ctx = logger.WithSessionID(ctx, b.ID().String())
	return logger.L(ctx)
}
