package ratelimit

import (
	"context"
	"time"

	"github.com/sentinelgate/policyd/internal/domain/rule"
)

// defaultBlockedText is returned when a blocking limiter has no custom_text.
const defaultBlockedText = "400: Rate limit exceeded"

// LimiterStore persists configured limiters.
type LimiterStore interface {
	ListLimiters(ctx context.Context) ([]Limiter, error)
	SaveLimiter(ctx context.Context, l Limiter) error
	DeleteLimiter(ctx context.Context, id string) error
}

// LimiterLister is the read-only view Checker needs. *Registry satisfies it
// from its in-memory, lock-guarded copy of the configured limiters, so
// checking an inquiry never performs store I/O to learn what limiters
// exist — only counter reads/writes touch the store.
type LimiterLister interface {
	List() []Limiter
}

// CounterStore persists fixed-window counters, one per (limiter_id, value).
type CounterStore interface {
	// GetCounter returns the stored counter for (limiterID, value), if any.
	// The store does not judge window liveness; the caller compares
	// WindowStart against its own notion of now.
	GetCounter(ctx context.Context, limiterID, value string) (Counter, bool, error)
	// PutCounter persists c, replacing any existing counter for the same
	// (LimiterID, Value).
	PutCounter(ctx context.Context, c Counter) error
	// DeleteExpiredCounters removes every counter for limiterID whose
	// window_start is before cutoff, returning the count removed.
	DeleteExpiredCounters(ctx context.Context, limiterID string, cutoff time.Time) (int, error)
	// TopCounters returns the k counters with the highest Count, each
	// joined with its limiter's configuration fields.
	TopCounters(ctx context.Context, k int) ([]CounterWithLimiter, error)
	// CountCounters reports how many live counters exist for limiterID,
	// for the active-counters gauge the Retention Sweeper reports after
	// each pass.
	CountCounters(ctx context.Context, limiterID string) (int, error)
}

// CounterWithLimiter joins a Counter with the configuration fields of its
// Limiter, the shape top(k) reports (mirrors the original Mongo aggregation
// pipeline's $lookup join).
type CounterWithLimiter struct {
	Counter
	LimiterKey             string
	LimiterValue           string
	LimiterMatch           rule.MatchKind
	LimiterLimit           int
	LimiterDurationMinutes int
}
