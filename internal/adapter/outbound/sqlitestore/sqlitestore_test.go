package sqlitestore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/sentinelgate/policyd/internal/domain/inquiry"
	"github.com/sentinelgate/policyd/internal/domain/ratelimit"
	"github.com/sentinelgate/policyd/internal/domain/rule"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRuleStore_RoundTrip(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	s := NewRuleStore(db)
	ctx := context.Background()

	want := []rule.Rule{
		{
			ID:         1,
			Name:       "block bad sender",
			Conditions: []rule.Condition{{Key: "sender", Match: rule.MatchExact, Value: "a@b.com"}},
			ActionType: rule.ActionReject,
			Action:     "REJECT",
			CustomText: "blocked",
		},
		{
			ID:         2,
			Name:       "two conditions",
			Conditions: []rule.Condition{{Key: "a", Match: rule.MatchExact, Value: "1"}, {Key: "b", Match: rule.MatchExact, Value: "2"}},
			Operators:  []rule.Operator{rule.OpAND},
			ActionType: rule.ActionAccept,
			Action:     "OK",
		},
	}
	if err := s.SaveRules(ctx, want); err != nil {
		t.Fatalf("SaveRules: %v", err)
	}

	got, err := s.LoadRules(ctx)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(got))
	}
	if got[0].Name != "block bad sender" || got[0].CustomText != "blocked" {
		t.Errorf("rule 1 mismatch: %+v", got[0])
	}
	if len(got[1].Conditions) != 2 || len(got[1].Operators) != 1 || got[1].Operators[0] != rule.OpAND {
		t.Errorf("rule 2 conditions/operators not round-tripped: %+v", got[1])
	}
}

func TestRuleStore_SaveReplacesWholeSet(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	s := NewRuleStore(db)
	ctx := context.Background()

	s.SaveRules(ctx, []rule.Rule{{ID: 1, Name: "a", Conditions: []rule.Condition{{Key: "k", Match: rule.MatchExact, Value: "v"}}, ActionType: rule.ActionAccept, Action: "OK"}})
	s.SaveRules(ctx, []rule.Rule{{ID: 1, Name: "b", Conditions: []rule.Condition{{Key: "k", Match: rule.MatchExact, Value: "v"}}, ActionType: rule.ActionAccept, Action: "OK"}})

	got, err := s.LoadRules(ctx)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(got) != 1 || got[0].Name != "b" {
		t.Errorf("expected the second SaveRules to fully replace the first, got %+v", got)
	}
}

func TestLimiterStore_PreservesInsertPositionAcrossReload(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	s := NewLimiterStore(db)
	ctx := context.Background()

	s.SaveLimiter(ctx, ratelimit.Limiter{ID: "a", Key: "k", Match: rule.MatchExact, Value: "v", Limit: 1, DurationMinutes: 1})
	s.SaveLimiter(ctx, ratelimit.Limiter{ID: "b", Key: "k", Match: rule.MatchExact, Value: "v", Limit: 1, DurationMinutes: 1})

	got, err := s.ListLimiters(ctx)
	if err != nil {
		t.Fatalf("ListLimiters: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("expected insertion order a,b, got %+v", got)
	}
}

func TestLimiterStore_SaveUpsertsWithoutChangingPosition(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	s := NewLimiterStore(db)
	ctx := context.Background()

	s.SaveLimiter(ctx, ratelimit.Limiter{ID: "a", Key: "k1", Match: rule.MatchExact, Value: "v", Limit: 1, DurationMinutes: 1})
	s.SaveLimiter(ctx, ratelimit.Limiter{ID: "b", Key: "k2", Match: rule.MatchExact, Value: "v", Limit: 1, DurationMinutes: 1})
	s.SaveLimiter(ctx, ratelimit.Limiter{ID: "a", Key: "k1-updated", Match: rule.MatchExact, Value: "v", Limit: 9, DurationMinutes: 1})

	got, err := s.ListLimiters(ctx)
	if err != nil {
		t.Fatalf("ListLimiters: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[0].Key != "k1-updated" || got[0].Limit != 9 {
		t.Errorf("expected updated fields without reordering, got %+v", got)
	}
}

func TestLimiterStore_Delete(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	s := NewLimiterStore(db)
	ctx := context.Background()
	s.SaveLimiter(ctx, ratelimit.Limiter{ID: "a", Key: "k", Match: rule.MatchExact, Value: "v", Limit: 1, DurationMinutes: 1})

	if err := s.DeleteLimiter(ctx, "a"); err != nil {
		t.Fatalf("DeleteLimiter: %v", err)
	}
	got, _ := s.ListLimiters(ctx)
	if len(got) != 0 {
		t.Errorf("expected no limiters after delete, got %+v", got)
	}
}

func TestCounterStore_GetPutAndExpire(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	limiters := NewLimiterStore(db)
	counters := NewCounterStore(db)
	ctx := context.Background()

	limiters.SaveLimiter(ctx, ratelimit.Limiter{ID: "l1", Key: "sender", Match: rule.MatchExact, Value: "a@b.com", Limit: 5, DurationMinutes: 60})

	now := time.Now().UTC()
	if err := counters.PutCounter(ctx, ratelimit.Counter{LimiterID: "l1", Value: "a@b.com", Count: 2, WindowStart: now}); err != nil {
		t.Fatalf("PutCounter: %v", err)
	}

	c, ok, err := counters.GetCounter(ctx, "l1", "a@b.com")
	if err != nil || !ok {
		t.Fatalf("GetCounter: ok=%v err=%v", ok, err)
	}
	if c.Count != 2 {
		t.Errorf("Count = %d, want 2", c.Count)
	}

	n, err := counters.DeleteExpiredCounters(ctx, "l1", now.Add(time.Second))
	if err != nil {
		t.Fatalf("DeleteExpiredCounters: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired counter removed, got %d", n)
	}
}

func TestCounterStore_CountCounters_ScopedToLimiter(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	limiters := NewLimiterStore(db)
	counters := NewCounterStore(db)
	ctx := context.Background()

	limiters.SaveLimiter(ctx, ratelimit.Limiter{ID: "l1", Key: "sender", Match: rule.MatchExact, Value: "a@b.com", Limit: 5, DurationMinutes: 60})
	limiters.SaveLimiter(ctx, ratelimit.Limiter{ID: "l2", Key: "client_ip", Match: rule.MatchExact, Value: "1.2.3.4", Limit: 5, DurationMinutes: 60})

	now := time.Now().UTC()
	counters.PutCounter(ctx, ratelimit.Counter{LimiterID: "l1", Value: "a@b.com", Count: 1, WindowStart: now})
	counters.PutCounter(ctx, ratelimit.Counter{LimiterID: "l1", Value: "c@d.com", Count: 1, WindowStart: now})
	counters.PutCounter(ctx, ratelimit.Counter{LimiterID: "l2", Value: "1.2.3.4", Count: 1, WindowStart: now})

	n, err := counters.CountCounters(ctx, "l1")
	if err != nil {
		t.Fatalf("CountCounters: %v", err)
	}
	if n != 2 {
		t.Errorf("CountCounters(l1) = %d, want 2", n)
	}
}

func TestCounterStore_TopCounters_JoinsAndOrders(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	limiters := NewLimiterStore(db)
	counters := NewCounterStore(db)
	ctx := context.Background()

	limiters.SaveLimiter(ctx, ratelimit.Limiter{ID: "l1", Key: "sender", Match: rule.MatchExact, Value: "a@b.com", Limit: 5, DurationMinutes: 60})
	now := time.Now().UTC()
	counters.PutCounter(ctx, ratelimit.Counter{LimiterID: "l1", Value: "low", Count: 1, WindowStart: now})
	counters.PutCounter(ctx, ratelimit.Counter{LimiterID: "l1", Value: "high", Count: 9, WindowStart: now})

	top, err := counters.TopCounters(ctx, 10)
	if err != nil {
		t.Fatalf("TopCounters: %v", err)
	}
	if len(top) != 2 || top[0].Value != "high" || top[0].LimiterKey != "sender" {
		t.Errorf("expected high count first, joined with limiter fields, got %+v", top)
	}
}

func TestInquiryStore_SaveAndDeleteOlderThan(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	s := NewInquiryStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	old := inquiry.Record{ID: "old", Attrs: map[string]string{"sender": "a@b.com"}, Timestamp: now.Add(-48 * time.Hour), Version: "2.1 or earlier", Verdict: "DUNNO"}
	fresh := inquiry.Record{ID: "new", Attrs: map[string]string{"sender": "a@b.com"}, Timestamp: now, Version: "2.1 or earlier", Verdict: "DUNNO"}

	if err := s.SaveInquiry(ctx, old); err != nil {
		t.Fatalf("SaveInquiry old: %v", err)
	}
	if err := s.SaveInquiry(ctx, fresh); err != nil {
		t.Fatalf("SaveInquiry new: %v", err)
	}

	n, err := s.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}
}
