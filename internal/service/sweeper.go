package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sentinelgate/policyd/internal/domain/inquiry"
)

const (
	defaultSweepInterval  = 2 * time.Hour
	defaultRetentionHours = 24
)

// CounterSweeper deletes expired rate-limit counters across every
// configured limiter. Satisfied by *ratelimit.Checker.
type CounterSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// ActiveCounterser reports the current number of live rate-limit counters
// across every configured limiter. Satisfied by *ratelimit.Checker.
type ActiveCounterser interface {
	ActiveCounters(ctx context.Context) (int, error)
}

// SweepMetricsRecorder records retention-sweep metrics. Satisfied by
// *obshttp.Metrics; nil-safe when not wired.
type SweepMetricsRecorder interface {
	RecordSweep(inquiryRecordsDeleted, countersDeleted int, duration time.Duration)
	SetActiveCounters(n int)
}

// Sweeper is the Retention Sweeper: a ticker-driven background task that
// deletes stale Inquiry Records and expired rate-limit Counters, with an
// on-demand Sweep for tests and direct callers.
type Sweeper struct {
	records        inquiry.Store
	counters       CounterSweeper
	activeCounters ActiveCounterser
	metrics        SweepMetricsRecorder
	interval       time.Duration
	retention      time.Duration
	logger         *slog.Logger
	now            func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// SweeperOption configures optional Sweeper collaborators.
type SweeperOption func(*Sweeper)

// WithActiveCounterser wires a collaborator that can report the current
// live-counter total, used to update the active-counters gauge after each
// sweep pass.
func WithActiveCounterser(ac ActiveCounterser) SweeperOption {
	return func(s *Sweeper) { s.activeCounters = ac }
}

// WithSweepMetrics wires a SweepMetricsRecorder into the sweeper.
func WithSweepMetrics(m SweepMetricsRecorder) SweeperOption {
	return func(s *Sweeper) { s.metrics = m }
}

// NewSweeper builds a Sweeper. retentionHours <= 0 falls back to the
// default 24-hour retention window.
func NewSweeper(records inquiry.Store, counters CounterSweeper, retentionHours int, logger *slog.Logger, opts ...SweeperOption) *Sweeper {
	if retentionHours <= 0 {
		retentionHours = defaultRetentionHours
	}
	s := &Sweeper{
		records:   records,
		counters:  counters,
		interval:  defaultSweepInterval,
		retention: time.Duration(retentionHours) * time.Hour,
		logger:    logger,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartCleanup starts the background ticker. It stops when ctx is
// cancelled or Stop is called.
func (s *Sweeper) StartCleanup(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.logger.ErrorContext(ctx, "retention sweep failed", "error", err)
				}
			}
		}
	}()
}

// Stop halts the background ticker and waits for it to exit. Safe to
// call multiple times.
func (s *Sweeper) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Sweep runs one retention pass immediately: deletes inquiry records
// older than the configured retention window, then expired rate-limit
// counters, and returns the total number of rows removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	start := s.now()
	cutoff := start.UTC().Add(-s.retention)

	deletedRecords, err := s.records.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return deletedRecords, fmt.Errorf("delete old inquiry records: %w", err)
	}

	deletedCounters, err := s.counters.Sweep(ctx)
	if err != nil {
		return deletedRecords, fmt.Errorf("sweep rate limit counters: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSweep(deletedRecords, deletedCounters, s.now().Sub(start))
	}

	if s.activeCounters != nil {
		if n, err := s.activeCounters.ActiveCounters(ctx); err != nil {
			s.logger.ErrorContext(ctx, "active counter count failed", "error", err)
		} else if s.metrics != nil {
			s.metrics.SetActiveCounters(n)
		}
	}

	total := deletedRecords + deletedCounters
	if total > 0 {
		s.logger.Info("retention sweep completed",
			"inquiry_records_deleted", deletedRecords,
			"counters_deleted", deletedCounters,
		)
	}
	return total, nil
}
