package inquiry

import (
	"context"
	"time"

	"github.com/sentinelgate/policyd/internal/domain/rule"
)

// Record is a copy of one inquiry's attributes plus the decision made for
// it. ID is an opaque id the Decision Pipeline assigns before saving; stores
// persist it as given and do not assign ids. Retained for a configured
// window and expired by the Retention Sweeper.
type Record struct {
	ID        string
	Attrs     map[string]string
	Timestamp time.Time
	Matched   *rule.Match // nil if no rule matched
	Version   string
	Verdict   string
}

// Store persists the inquiry log.
type Store interface {
	SaveInquiry(ctx context.Context, r Record) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
