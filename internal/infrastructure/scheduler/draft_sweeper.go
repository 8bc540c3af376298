package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ErrInvalidConfig is returned for an unparsable sweep schedule
var ErrInvalidConfig = errors.New("invalid draft sweeper configuration")

// DraftPurger drops expired settlement drafts
type DraftPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// DraftSweeperConfig holds configuration for the draft sweeper
type DraftSweeperConfig struct {
	// Schedule is a standard five-field cron spec, e.g. "*/10 * * * *"
	Schedule string
	// Timeout bounds a single sweep
	Timeout time.Duration
}

// DefaultDraftSweeperConfig returns default sweeper configuration
func DefaultDraftSweeperConfig() DraftSweeperConfig {
	return DraftSweeperConfig{
		Schedule: "*/10 * * * *",
		Timeout:  30 * time.Second,
	}
}

// DraftSweeper periodically purges expired settlement drafts from a store
// that does not expire entries by itself
type DraftSweeper struct {
	config DraftSweeperConfig
	store  DraftPurger
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	cron      *cron.Cron
	isRunning bool
}

// NewDraftSweeper validates the schedule and creates a sweeper
func NewDraftSweeper(config DraftSweeperConfig, store DraftPurger, logger *zap.Logger) (*DraftSweeper, error) {
	if config.Schedule == "" {
		config.Schedule = DefaultDraftSweeperConfig().Schedule
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultDraftSweeperConfig().Timeout
	}
	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %v", ErrInvalidConfig, config.Schedule, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DraftSweeper{
		config: config,
		store:  store,
		logger: logger.Named("draft_sweeper"),
		now:    time.Now,
	}, nil
}

// Start schedules the sweep. Calling Start on a running sweeper is a no-op.
func (s *DraftSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(s.config.Schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("draft sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("unable to schedule draft sweeper: %w", err)
	}
	c.Start()

	s.cron = c
	s.isRunning = true
	s.logger.Info("draft sweeper started", zap.String("schedule", s.config.Schedule))
	return nil
}

// Stop unschedules the sweep and waits for a running sweep to finish
func (s *DraftSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	<-s.cron.Stop().Done()
	s.isRunning = false
	s.logger.Info("draft sweeper stopped")
}

// IsRunning reports whether the sweep is scheduled
func (s *DraftSweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// RunOnce purges expired drafts immediately and reports how many went
func (s *DraftSweeper) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	purged, err := s.store.PurgeExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.logger.Info("expired settlement drafts purged", zap.Int("count", purged))
	}
	return purged, nil
}
