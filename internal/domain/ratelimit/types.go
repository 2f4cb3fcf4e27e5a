// Package ratelimit implements fixed-window rate limiting keyed by an
// observed attribute value.
package ratelimit

import (
	"time"

	"github.com/sentinelgate/policyd/internal/domain/rule"
)

// Limiter is a configured rate limit: count occurrences of Key's value
// against Match/Value and block once Limit is exceeded within
// DurationMinutes.
type Limiter struct {
	ID              string
	Key             string
	Match           rule.MatchKind
	Value           string
	Limit           int
	DurationMinutes int
	CustomText      string
}

// Window returns the limiter's window duration.
func (l Limiter) Window() time.Duration {
	return time.Duration(l.DurationMinutes) * time.Minute
}

// Counter is the persisted fixed-window counter for one (limiter, observed
// value) pair. WindowStart is set on the first hit and held fixed until the
// window expires; Count increments on every hit within the window until it
// reaches the limiter's Limit, and later hits in that window leave it as is.
type Counter struct {
	LimiterID   string
	Value       string
	Count       int
	WindowStart time.Time
}

// Verdict describes the outcome of checking one limiter.
type Verdict struct {
	LimiterID  string
	Blocked    bool
	CustomText string
}
