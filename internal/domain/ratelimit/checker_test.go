package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/sentinelgate/policyd/internal/domain/rule"
)

type fixedLister struct {
	limiters []Limiter
}

func (f fixedLister) List() []Limiter { return f.limiters }

type stubCounterStore struct {
	counters map[string]Counter // key: limiterID + "\x00" + value
	deleted  int
}

func newStubCounterStore() *stubCounterStore {
	return &stubCounterStore{counters: make(map[string]Counter)}
}

func counterKey(limiterID, value string) string {
	return limiterID + "\x00" + value
}

func (s *stubCounterStore) GetCounter(ctx context.Context, limiterID, value string) (Counter, bool, error) {
	c, ok := s.counters[counterKey(limiterID, value)]
	return c, ok, nil
}

func (s *stubCounterStore) PutCounter(ctx context.Context, c Counter) error {
	s.counters[counterKey(c.LimiterID, c.Value)] = c
	return nil
}

func (s *stubCounterStore) DeleteExpiredCounters(ctx context.Context, limiterID string, cutoff time.Time) (int, error) {
	n := 0
	for k, c := range s.counters {
		if c.LimiterID == limiterID && c.WindowStart.Before(cutoff) {
			delete(s.counters, k)
			n++
		}
	}
	s.deleted += n
	return n, nil
}

func (s *stubCounterStore) CountCounters(ctx context.Context, limiterID string) (int, error) {
	n := 0
	for _, c := range s.counters {
		if c.LimiterID == limiterID {
			n++
		}
	}
	return n, nil
}

func (s *stubCounterStore) TopCounters(ctx context.Context, k int) ([]CounterWithLimiter, error) {
	out := make([]CounterWithLimiter, 0, len(s.counters))
	for _, c := range s.counters {
		out = append(out, CounterWithLimiter{Counter: c})
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func TestChecker_AllowsUnderLimit(t *testing.T) {
	t.Parallel()

	lister := fixedLister{limiters: []Limiter{
		{ID: "l1", Key: "sender", Match: rule.MatchExact, Value: "a@b.com", Limit: 3, DurationMinutes: 60},
	}}
	counters := newStubCounterStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewChecker(lister, counters, func() time.Time { return now })

	for i := 0; i < 3; i++ {
		_, blocked, err := c.Check(context.Background(), map[string]string{"sender": "a@b.com"})
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if blocked {
			t.Fatalf("hit %d: expected allowed while under limit", i)
		}
	}
}

func TestChecker_BlocksAtLimit(t *testing.T) {
	t.Parallel()

	lister := fixedLister{limiters: []Limiter{
		{ID: "l1", Key: "sender", Match: rule.MatchExact, Value: "a@b.com", Limit: 2, CustomText: "too many", DurationMinutes: 60},
	}}
	counters := newStubCounterStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewChecker(lister, counters, func() time.Time { return now })

	ctx := context.Background()
	attrs := map[string]string{"sender": "a@b.com"}

	for i := 0; i < 2; i++ {
		if _, blocked, _ := c.Check(ctx, attrs); blocked {
			t.Fatalf("hit %d: expected allowed", i)
		}
	}

	verdict, blocked, err := c.Check(ctx, attrs)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !blocked {
		t.Fatal("expected the third hit to be blocked")
	}
	if verdict.CustomText != "too many" {
		t.Errorf("CustomText = %q, want %q", verdict.CustomText, "too many")
	}
}

func TestChecker_DefaultBlockedText(t *testing.T) {
	t.Parallel()

	lister := fixedLister{limiters: []Limiter{
		{ID: "l1", Key: "sender", Match: rule.MatchExact, Value: "a@b.com", Limit: 1, DurationMinutes: 60},
	}}
	counters := newStubCounterStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewChecker(lister, counters, func() time.Time { return now })

	ctx := context.Background()
	attrs := map[string]string{"sender": "a@b.com"}
	c.Check(ctx, attrs)
	verdict, blocked, _ := c.Check(ctx, attrs)
	if !blocked {
		t.Fatal("expected blocked")
	}
	if verdict.CustomText != defaultBlockedText {
		t.Errorf("CustomText = %q, want sentinel %q", verdict.CustomText, defaultBlockedText)
	}
}

func TestChecker_NewWindowAfterExpiry(t *testing.T) {
	t.Parallel()

	lister := fixedLister{limiters: []Limiter{
		{ID: "l1", Key: "sender", Match: rule.MatchExact, Value: "a@b.com", Limit: 1, DurationMinutes: 1},
	}}
	counters := newStubCounterStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewChecker(lister, counters, func() time.Time { return now })

	ctx := context.Background()
	attrs := map[string]string{"sender": "a@b.com"}

	if _, blocked, _ := c.Check(ctx, attrs); blocked {
		t.Fatal("first hit should be allowed")
	}
	// Advance past the 1-minute window: a new window should start, not stay blocked.
	now = now.Add(2 * time.Minute)
	if _, blocked, _ := c.Check(ctx, attrs); blocked {
		t.Fatal("expected a fresh window to allow the hit again")
	}
}

func TestChecker_NonMatchingLimiterSkipped(t *testing.T) {
	t.Parallel()

	lister := fixedLister{limiters: []Limiter{
		{ID: "l1", Key: "sender", Match: rule.MatchExact, Value: "a@b.com", Limit: 1, DurationMinutes: 60},
	}}
	counters := newStubCounterStore()
	c := NewChecker(lister, counters, func() time.Time { return time.Now() })

	_, blocked, err := c.Check(context.Background(), map[string]string{"sender": "other@b.com"})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if blocked {
		t.Error("a limiter whose condition does not match must be skipped entirely")
	}
	if len(counters.counters) != 0 {
		t.Error("a skipped limiter must not create a counter")
	}
}

func TestChecker_ContinuesCountingAfterBlocked(t *testing.T) {
	t.Parallel()

	lister := fixedLister{limiters: []Limiter{
		{ID: "blocker", Key: "sender", Match: rule.MatchExact, Value: "a@b.com", Limit: 1, DurationMinutes: 60},
		{ID: "other", Key: "sender", Match: rule.MatchExact, Value: "a@b.com", Limit: 100, DurationMinutes: 60},
	}}
	counters := newStubCounterStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewChecker(lister, counters, func() time.Time { return now })

	ctx := context.Background()
	attrs := map[string]string{"sender": "a@b.com"}

	c.Check(ctx, attrs) // primes both counters to count=1
	verdict, blocked, err := c.Check(ctx, attrs)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !blocked || verdict.LimiterID != "blocker" {
		t.Fatalf("expected the first blocked limiter to win, got %+v blocked=%v", verdict, blocked)
	}

	other, ok, _ := counters.GetCounter(ctx, "other", "a@b.com")
	if !ok || other.Count != 2 {
		t.Errorf("expected the non-blocking limiter's counter to keep advancing, got %+v ok=%v", other, ok)
	}
}

func TestChecker_Top_ClampsK(t *testing.T) {
	t.Parallel()

	lister := fixedLister{}
	counters := newStubCounterStore()
	counters.counters[counterKey("l1", "a")] = Counter{LimiterID: "l1", Value: "a", Count: 1}
	counters.counters[counterKey("l1", "b")] = Counter{LimiterID: "l1", Value: "b", Count: 2}
	c := NewChecker(lister, counters, nil)

	top, err := c.Top(context.Background(), 0)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 1 {
		t.Errorf("Top(0) returned %d counters, want 1 (k clamped up to 1)", len(top))
	}
}

func TestChecker_Sweep_DeletesExpiredPerLimiterDuration(t *testing.T) {
	t.Parallel()

	lister := fixedLister{limiters: []Limiter{
		{ID: "l1", Key: "sender", Match: rule.MatchExact, Value: "a@b.com", Limit: 1, DurationMinutes: 1},
	}}
	counters := newStubCounterStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	counters.counters[counterKey("l1", "a@b.com")] = Counter{LimiterID: "l1", Value: "a@b.com", Count: 1, WindowStart: now.Add(-5 * time.Minute)}

	c := NewChecker(lister, counters, func() time.Time { return now })
	n, err := c.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired counter removed, got %d", n)
	}
}

func TestChecker_ActiveCounters_SumsAcrossLimiters(t *testing.T) {
	t.Parallel()

	lister := fixedLister{limiters: []Limiter{
		{ID: "l1", Key: "sender", Match: rule.MatchExact, Value: "a@b.com", Limit: 5, DurationMinutes: 60},
		{ID: "l2", Key: "client_ip", Match: rule.MatchExact, Value: "1.2.3.4", Limit: 5, DurationMinutes: 60},
	}}
	counters := newStubCounterStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	counters.counters[counterKey("l1", "a@b.com")] = Counter{LimiterID: "l1", Value: "a@b.com", Count: 1, WindowStart: now}
	counters.counters[counterKey("l1", "c@d.com")] = Counter{LimiterID: "l1", Value: "c@d.com", Count: 1, WindowStart: now}
	counters.counters[counterKey("l2", "1.2.3.4")] = Counter{LimiterID: "l2", Value: "1.2.3.4", Count: 1, WindowStart: now}

	c := NewChecker(lister, counters, func() time.Time { return now })
	total, err := c.ActiveCounters(context.Background())
	if err != nil {
		t.Fatalf("ActiveCounters: %v", err)
	}
	if total != 3 {
		t.Errorf("ActiveCounters = %d, want 3", total)
	}
}
