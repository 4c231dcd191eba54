package usage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionConfig controls pruning of old usage history.
type RetentionConfig struct {
	// Days of history to keep. Zero disables pruning.
	Days int

	// Schedule is a standard cron expression, e.g. "0 3 * * *".
	Schedule string
}

// Pruner deletes records older than the retention period.
type Pruner struct {
	store  HistoryStore
	config RetentionConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewPruner creates a pruner for store.
func NewPruner(store HistoryStore, config RetentionConfig) *Pruner {
	return &Pruner{
		store:  store,
		config: config,
		now:    time.Now,
		logger: slog.Default().With("component", "usage.retention"),
	}
}

// Cutoff returns the oldest timestamp that is kept.
func (p *Pruner) Cutoff() time.Time {
	return p.now().Add(-time.Duration(p.config.Days) * 24 * time.Hour)
}

// Prune deletes expired records and returns how many were removed.
// It does nothing when retention is disabled.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.config.Days <= 0 {
		return 0, nil
	}
	cutoff := p.Cutoff()
	deleted, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention [days=%d]: %w", p.config.Days, err)
	}
	p.logger.Debug("pruned usage history", "cutoff", cutoff, "deleted", deleted)
	return deleted, nil
}

// RetentionScheduler runs a Pruner on a cron schedule.
type RetentionScheduler struct {
	pruner  *Pruner
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewRetentionScheduler creates a scheduler for pruner.
func NewRetentionScheduler(pruner *Pruner) *RetentionScheduler {
	return &RetentionScheduler{
		pruner: pruner,
		cron:   cron.New(),
		logger: slog.Default().With("component", "usage.scheduler"),
	}
}

// Start schedules pruning and returns immediately. The scheduler stops when
// ctx is cancelled or Stop is called. An empty schedule or disabled
// retention leaves the scheduler idle.
func (s *RetentionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.pruner.config
	if cfg.Schedule == "" || cfg.Days <= 0 {
		s.logger.Info("usage retention disabled")
		return nil
	}
	if s.running {
		return fmt.Errorf("retention scheduler already running")
	}

	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", cfg.Schedule, err)
	}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(cfg.Schedule, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("usage retention scheduler started",
		"schedule", cfg.Schedule,
		"retention_days", cfg.Days,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *RetentionScheduler) run(ctx context.Context) {
	deleted, err := s.pruner.Prune(ctx)
	if err != nil {
		s.logger.Error("scheduled pruning failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("scheduled pruning completed", "deleted_count", deleted)
	}
}

// Stop stops the scheduler and waits for a running prune to finish.
func (s *RetentionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("usage retention scheduler stopped")
}

// IsRunning reports whether the scheduler is running.
func (s *RetentionScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled pruning time, or nil when idle.
func (s *RetentionScheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	if next.IsZero() {
		return nil
	}
	return &next
}
