// Package sqlitestore implements the domain Store ports on top of
// modernc.org/sqlite, a pure-Go (CGO-free) sqlite driver — the
// production-grade persistence adapter, selected when store.driver is
// "sqlite" (which then requires store.dsn).
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sentinelgate/policyd/internal/domain/inquiry"
	"github.com/sentinelgate/policyd/internal/domain/ratelimit"
	"github.com/sentinelgate/policyd/internal/domain/rule"
)

const schema = `
CREATE TABLE IF NOT EXISTS rules (
	rule_id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	conditions_json TEXT NOT NULL,
	operators_json TEXT NOT NULL,
	action_type TEXT NOT NULL,
	action TEXT NOT NULL,
	custom_text TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rate_limiters (
	id TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	key TEXT NOT NULL,
	match_kind TEXT NOT NULL,
	value TEXT NOT NULL,
	limit_count INTEGER NOT NULL,
	duration_minutes INTEGER NOT NULL,
	custom_text TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rate_limit_counters (
	limiter_id TEXT NOT NULL,
	value TEXT NOT NULL,
	count INTEGER NOT NULL,
	window_start INTEGER NOT NULL,
	PRIMARY KEY (limiter_id, value)
);

CREATE TABLE IF NOT EXISTS inquiries (
	id TEXT PRIMARY KEY,
	attrs_json TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	matched_json TEXT,
	version TEXT NOT NULL,
	verdict TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_inquiries_timestamp ON inquiries(timestamp);
`

// Open opens (creating if absent) a sqlite database at dsn, enables WAL
// mode for concurrent readers alongside the single writer, and ensures the
// schema exists.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

// RuleStore implements rule.Store against the rules table. SaveRules
// replaces the entire table inside one transaction, so the density
// invariant is never observable mid-write.
type RuleStore struct {
	db *sql.DB
}

func NewRuleStore(db *sql.DB) *RuleStore {
	return &RuleStore{db: db}
}

func (s *RuleStore) LoadRules(ctx context.Context) ([]rule.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT rule_id, name, conditions_json, operators_json, action_type, action, custom_text FROM rules ORDER BY rule_id`)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []rule.Rule
	for rows.Next() {
		var r rule.Rule
		var conditionsJSON, operatorsJSON, actionType string
		if err := rows.Scan(&r.ID, &r.Name, &conditionsJSON, &operatorsJSON, &actionType, &r.Action, &r.CustomText); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.ActionType = rule.ActionType(actionType)
		if err := json.Unmarshal([]byte(conditionsJSON), &r.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions for rule %d: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(operatorsJSON), &r.Operators); err != nil {
			return nil, fmt.Errorf("decode operators for rule %d: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *RuleStore) SaveRules(ctx context.Context, rules []rule.Rule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rules`); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO rules (rule_id, name, conditions_json, operators_json, action_type, action, custom_text) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rules {
		conditionsJSON, err := json.Marshal(r.Conditions)
		if err != nil {
			return fmt.Errorf("encode conditions for rule %d: %w", r.ID, err)
		}
		operatorsJSON, err := json.Marshal(r.Operators)
		if err != nil {
			return fmt.Errorf("encode operators for rule %d: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Name, conditionsJSON, operatorsJSON, string(r.ActionType), r.Action, r.CustomText); err != nil {
			return fmt.Errorf("insert rule %d: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

var _ rule.Store = (*RuleStore)(nil)

// LimiterStore implements ratelimit.LimiterStore against the
// rate_limiters table, using a position column to preserve load order
// across restarts.
type LimiterStore struct {
	db *sql.DB
}

func NewLimiterStore(db *sql.DB) *LimiterStore {
	return &LimiterStore{db: db}
}

func (s *LimiterStore) ListLimiters(ctx context.Context) ([]ratelimit.Limiter, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, key, match_kind, value, limit_count, duration_minutes, custom_text FROM rate_limiters ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query limiters: %w", err)
	}
	defer rows.Close()

	var out []ratelimit.Limiter
	for rows.Next() {
		var l ratelimit.Limiter
		var match string
		if err := rows.Scan(&l.ID, &l.Key, &match, &l.Value, &l.Limit, &l.DurationMinutes, &l.CustomText); err != nil {
			return nil, fmt.Errorf("scan limiter: %w", err)
		}
		l.Match = rule.MatchKind(match)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *LimiterStore) SaveLimiter(ctx context.Context, l ratelimit.Limiter) error {
	var position sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT position FROM rate_limiters WHERE id = ?`, l.ID).Scan(&position)
	switch {
	case err == sql.ErrNoRows:
		var next int64
		if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM rate_limiters`).Scan(&next); err != nil {
			return fmt.Errorf("next position: %w", err)
		}
		position = sql.NullInt64{Int64: next, Valid: true}
	case err != nil:
		return fmt.Errorf("lookup limiter %s: %w", l.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rate_limiters (id, position, key, match_kind, value, limit_count, duration_minutes, custom_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			key = excluded.key, match_kind = excluded.match_kind, value = excluded.value,
			limit_count = excluded.limit_count, duration_minutes = excluded.duration_minutes,
			custom_text = excluded.custom_text`,
		l.ID, position.Int64, l.Key, string(l.Match), l.Value, l.Limit, l.DurationMinutes, l.CustomText)
	if err != nil {
		return fmt.Errorf("upsert limiter %s: %w", l.ID, err)
	}
	return nil
}

func (s *LimiterStore) DeleteLimiter(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rate_limiters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete limiter %s: %w", id, err)
	}
	return nil
}

var _ ratelimit.LimiterStore = (*LimiterStore)(nil)

// CounterStore implements ratelimit.CounterStore against the
// rate_limit_counters table.
type CounterStore struct {
	db *sql.DB
}

func NewCounterStore(db *sql.DB) *CounterStore {
	return &CounterStore{db: db}
}

func (s *CounterStore) GetCounter(ctx context.Context, limiterID, value string) (ratelimit.Counter, bool, error) {
	var c ratelimit.Counter
	var windowStart int64
	err := s.db.QueryRowContext(ctx, `SELECT limiter_id, value, count, window_start FROM rate_limit_counters WHERE limiter_id = ? AND value = ?`, limiterID, value).
		Scan(&c.LimiterID, &c.Value, &c.Count, &windowStart)
	if err == sql.ErrNoRows {
		return ratelimit.Counter{}, false, nil
	}
	if err != nil {
		return ratelimit.Counter{}, false, fmt.Errorf("query counter: %w", err)
	}
	c.WindowStart = time.Unix(0, windowStart).UTC()
	return c, true, nil
}

func (s *CounterStore) PutCounter(ctx context.Context, c ratelimit.Counter) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_limit_counters (limiter_id, value, count, window_start)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(limiter_id, value) DO UPDATE SET
			count = excluded.count, window_start = excluded.window_start`,
		c.LimiterID, c.Value, c.Count, c.WindowStart.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert counter: %w", err)
	}
	return nil
}

func (s *CounterStore) DeleteExpiredCounters(ctx context.Context, limiterID string, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_counters WHERE limiter_id = ? AND window_start < ?`, limiterID, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete expired counters: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *CounterStore) TopCounters(ctx context.Context, k int) ([]ratelimit.CounterWithLimiter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.limiter_id, c.value, c.count, c.window_start,
		       l.key, l.value, l.match_kind, l.limit_count, l.duration_minutes
		FROM rate_limit_counters c
		JOIN rate_limiters l ON l.id = c.limiter_id
		ORDER BY c.count DESC
		LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("query top counters: %w", err)
	}
	defer rows.Close()

	var out []ratelimit.CounterWithLimiter
	for rows.Next() {
		var cw ratelimit.CounterWithLimiter
		var windowStart int64
		var match string
		if err := rows.Scan(&cw.LimiterID, &cw.Value, &cw.Count, &windowStart,
			&cw.LimiterKey, &cw.LimiterValue, &match, &cw.LimiterLimit, &cw.LimiterDurationMinutes); err != nil {
			return nil, fmt.Errorf("scan top counter: %w", err)
		}
		cw.WindowStart = time.Unix(0, windowStart).UTC()
		cw.LimiterMatch = rule.MatchKind(match)
		out = append(out, cw)
	}
	return out, rows.Err()
}

func (s *CounterStore) CountCounters(ctx context.Context, limiterID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rate_limit_counters WHERE limiter_id = ?`, limiterID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count counters: %w", err)
	}
	return n, nil
}

var _ ratelimit.CounterStore = (*CounterStore)(nil)

// InquiryStore implements inquiry.Store against the inquiries table.
type InquiryStore struct {
	db *sql.DB
}

func NewInquiryStore(db *sql.DB) *InquiryStore {
	return &InquiryStore{db: db}
}

func (s *InquiryStore) SaveInquiry(ctx context.Context, r inquiry.Record) error {
	attrsJSON, err := json.Marshal(r.Attrs)
	if err != nil {
		return fmt.Errorf("encode attrs: %w", err)
	}
	var matchedJSON sql.NullString
	if r.Matched != nil {
		b, err := json.Marshal(r.Matched)
		if err != nil {
			return fmt.Errorf("encode matched rule: %w", err)
		}
		matchedJSON = sql.NullString{String: string(b), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO inquiries (id, attrs_json, timestamp, matched_json, version, verdict)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, attrsJSON, r.Timestamp.UnixNano(), matchedJSON, r.Version, r.Verdict)
	if err != nil {
		return fmt.Errorf("insert inquiry: %w", err)
	}
	return nil
}

func (s *InquiryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM inquiries WHERE timestamp < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete old inquiries: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

var _ inquiry.Store = (*InquiryStore)(nil)
