package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/sentinelgate/policyd/internal/domain/rule"
)

// Checker evaluates configured limiters against an inquiry's attributes.
// It holds no state of its own beyond the stores it wraps; all counter
// mutation goes through CounterStore so the same logic runs unchanged
// whether the backing adapter is memstore or sqlitestore.
type Checker struct {
	limiters LimiterLister
	counters CounterStore
	now      func() time.Time
}

// NewChecker builds a Checker. now defaults to time.Now when nil, with an
// override point for deterministic tests.
func NewChecker(limiters LimiterLister, counters CounterStore, now func() time.Time) *Checker {
	if now == nil {
		now = time.Now
	}
	return &Checker{limiters: limiters, counters: counters, now: now}
}

// Check evaluates every configured limiter against attrs, in load order.
// Every matching limiter still under its limit has its counter advanced
// (incremented or freshly started); a limiter already at its limit leaves
// its counter unchanged and reports Blocked. The first such limiter is what
// is returned as Blocked, but later limiters still have their counters
// advanced — Check never short-circuits counting, only the reported
// verdict.
func (c *Checker) Check(ctx context.Context, attrs map[string]string) (Verdict, bool, error) {
	limiters := c.limiters.List()

	var blocked Verdict
	var isBlocked bool

	for _, l := range limiters {
		value, present := attrs[l.Key]
		if !present || !rule.MatchValue(l.Match, l.Value, value) {
			continue
		}

		over, err := c.hit(ctx, l, value)
		if err != nil {
			return Verdict{}, false, fmt.Errorf("limiter %s: %w", l.ID, err)
		}

		if over && !isBlocked {
			text := l.CustomText
			if text == "" {
				text = defaultBlockedText
			}
			blocked = Verdict{LimiterID: l.ID, Blocked: true, CustomText: text}
			isBlocked = true
		}
	}

	return blocked, isBlocked, nil
}

// hit advances the fixed-window counter for (l.ID, value) and reports
// whether the limit was already reached before this hit was counted.
func (c *Checker) hit(ctx context.Context, l Limiter, value string) (bool, error) {
	now := c.now()
	window := l.Window()

	existing, ok, err := c.counters.GetCounter(ctx, l.ID, value)
	if err != nil {
		return false, err
	}

	if ok && !existing.WindowStart.Before(now.Add(-window)) {
		if existing.Count >= l.Limit {
			return true, nil
		}
		existing.Count++
		return false, c.counters.PutCounter(ctx, existing)
	}

	fresh := Counter{LimiterID: l.ID, Value: value, Count: 1, WindowStart: now}
	return false, c.counters.PutCounter(ctx, fresh)
}

// Top returns the k counters with the highest count, k clamped to [1, 50].
func (c *Checker) Top(ctx context.Context, k int) ([]CounterWithLimiter, error) {
	if k < 1 {
		k = 1
	}
	if k > 50 {
		k = 50
	}
	return c.counters.TopCounters(ctx, k)
}

// Sweep deletes counters whose window has expired as of now, per limiter
// duration. Each limiter's duration defines its own cutoff, so the sweep
// walks limiters rather than applying one global cutoff.
func (c *Checker) Sweep(ctx context.Context) (int, error) {
	limiters := c.limiters.List()

	total := 0
	now := c.now()
	for _, l := range limiters {
		cutoff := now.Add(-l.Window())
		n, err := c.counters.DeleteExpiredCounters(ctx, l.ID, cutoff)
		if err != nil {
			return total, fmt.Errorf("limiter %s: %w", l.ID, err)
		}
		total += n
	}
	return total, nil
}

// ActiveCounters sums the live counter count across every configured
// limiter, for the rate_limit_active_counters gauge.
func (c *Checker) ActiveCounters(ctx context.Context) (int, error) {
	limiters := c.limiters.List()

	total := 0
	for _, l := range limiters {
		n, err := c.counters.CountCounters(ctx, l.ID)
		if err != nil {
			return total, fmt.Errorf("limiter %s: %w", l.ID, err)
		}
		total += n
	}
	return total, nil
}
