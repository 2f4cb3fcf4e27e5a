// Package memstore provides in-memory implementations of the domain Store
// ports, the dev/test default (selected when store.driver is "memory", the
// default driver, following the teacher's in-memory-adapter-as-default
// convention).
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/sentinelgate/policyd/internal/domain/inquiry"
	"github.com/sentinelgate/policyd/internal/domain/ratelimit"
	"github.com/sentinelgate/policyd/internal/domain/rule"
)

// RuleStore implements rule.Store over a plain slice guarded by a mutex.
// The whole-set replace contract means there is nothing finer-grained to
// guard than the single slice swap.
type RuleStore struct {
	mu    sync.RWMutex
	rules []rule.Rule
}

func NewRuleStore() *RuleStore {
	return &RuleStore{}
}

func (s *RuleStore) LoadRules(ctx context.Context) ([]rule.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rule.Rule, len(s.rules))
	copy(out, s.rules)
	return out, nil
}

func (s *RuleStore) SaveRules(ctx context.Context, rules []rule.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = make([]rule.Rule, len(rules))
	copy(s.rules, rules)
	return nil
}

var _ rule.Store = (*RuleStore)(nil)

// LimiterStore implements ratelimit.LimiterStore over a map keyed by
// limiter id, with a side slice preserving insertion order (ListLimiters
// must report limiters in load order, per the spec's "in the order they
// were loaded" contract).
type LimiterStore struct {
	mu    sync.RWMutex
	byID  map[string]ratelimit.Limiter
	order []string
}

func NewLimiterStore() *LimiterStore {
	return &LimiterStore{byID: make(map[string]ratelimit.Limiter)}
}

func (s *LimiterStore) ListLimiters(ctx context.Context) ([]ratelimit.Limiter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ratelimit.Limiter, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out, nil
}

func (s *LimiterStore) SaveLimiter(ctx context.Context, l ratelimit.Limiter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[l.ID]; !exists {
		s.order = append(s.order, l.ID)
	}
	s.byID[l.ID] = l
	return nil
}

func (s *LimiterStore) DeleteLimiter(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

var _ ratelimit.LimiterStore = (*LimiterStore)(nil)

// counterKey hashes (limiterID, value) into a single map key, grounded on
// the teacher's xxhash-based computeCacheKey idiom.
func counterKey(limiterID, value string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(limiterID)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(value)
	return h.Sum64()
}

// CounterStore implements ratelimit.CounterStore over a hash-keyed map
// guarded by a single mutex, mirroring the teacher's
// MemoryRateLimiter (map + sync.Mutex + periodic cleanup) shape.
type CounterStore struct {
	mu       sync.Mutex
	counters map[uint64]ratelimit.Counter
	// limiters backs the TopCounters join against the limiter's
	// configuration fields (key/value/condition/limit/duration), mirroring
	// the original Mongo aggregation's $lookup stage.
	limiters ratelimit.LimiterLister
}

// NewCounterStore builds a CounterStore that joins TopCounters results
// against limiters' current configuration via lister.
func NewCounterStore(lister ratelimit.LimiterLister) *CounterStore {
	return &CounterStore{
		counters: make(map[uint64]ratelimit.Counter),
		limiters: lister,
	}
}

func (s *CounterStore) GetCounter(ctx context.Context, limiterID, value string) (ratelimit.Counter, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[counterKey(limiterID, value)]
	return c, ok, nil
}

func (s *CounterStore) PutCounter(ctx context.Context, c ratelimit.Counter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[counterKey(c.LimiterID, c.Value)] = c
	return nil
}

func (s *CounterStore) DeleteExpiredCounters(ctx context.Context, limiterID string, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, c := range s.counters {
		if c.LimiterID == limiterID && c.WindowStart.Before(cutoff) {
			delete(s.counters, k)
			removed++
		}
	}
	return removed, nil
}

func (s *CounterStore) TopCounters(ctx context.Context, k int) ([]ratelimit.CounterWithLimiter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]ratelimit.Counter, 0, len(s.counters))
	for _, c := range s.counters {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Count > all[j].Count })
	if len(all) > k {
		all = all[:k]
	}

	byID := make(map[string]ratelimit.Limiter)
	if s.limiters != nil {
		for _, l := range s.limiters.List() {
			byID[l.ID] = l
		}
	}

	out := make([]ratelimit.CounterWithLimiter, 0, len(all))
	for _, c := range all {
		l := byID[c.LimiterID]
		out = append(out, ratelimit.CounterWithLimiter{
			Counter:                c,
			LimiterKey:             l.Key,
			LimiterValue:           l.Value,
			LimiterMatch:           l.Match,
			LimiterLimit:           l.Limit,
			LimiterDurationMinutes: l.DurationMinutes,
		})
	}
	return out, nil
}

func (s *CounterStore) CountCounters(ctx context.Context, limiterID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.counters {
		if c.LimiterID == limiterID {
			n++
		}
	}
	return n, nil
}

var _ ratelimit.CounterStore = (*CounterStore)(nil)

// InquiryStore implements inquiry.Store over an append-only slice guarded
// by a mutex. Retained records are small and short-lived (default 24h), so
// a linear scan on delete is acceptable for the in-memory adapter.
type InquiryStore struct {
	mu      sync.Mutex
	records []inquiry.Record
}

func NewInquiryStore() *InquiryStore {
	return &InquiryStore{}
}

func (s *InquiryStore) SaveInquiry(ctx context.Context, r inquiry.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *InquiryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	removed := 0
	for _, r := range s.records {
		if r.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return removed, nil
}

var _ inquiry.Store = (*InquiryStore)(nil)
