package ratelimit

import (
	"fmt"

	"github.com/sentinelgate/policyd/internal/domain/rule"
)

// Validate checks a Limiter against §3's invariants: a key, a recognized
// match kind, a positive limit, and a positive duration in minutes.
func Validate(l Limiter) error {
	if l.Key == "" {
		return fmt.Errorf("limiter %q: key must not be empty", l.ID)
	}
	switch l.Match {
	case rule.MatchExact, rule.MatchRegex, rule.MatchWildcard:
	default:
		return fmt.Errorf("limiter %q: unknown condition match %q", l.ID, l.Match)
	}
	if l.Limit <= 0 {
		return fmt.Errorf("limiter %q: limit must be positive, got %d", l.ID, l.Limit)
	}
	if l.DurationMinutes <= 0 {
		return fmt.Errorf("limiter %q: duration_minutes must be positive, got %d", l.ID, l.DurationMinutes)
	}
	return nil
}
