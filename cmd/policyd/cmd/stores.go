package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sentinelgate/policyd/internal/adapter/outbound/memstore"
	"github.com/sentinelgate/policyd/internal/adapter/outbound/sqlitestore"
	"github.com/sentinelgate/policyd/internal/config"
	"github.com/sentinelgate/policyd/internal/domain/inquiry"
	"github.com/sentinelgate/policyd/internal/domain/ratelimit"
	"github.com/sentinelgate/policyd/internal/domain/rule"
)

// stores bundles the per-driver Store implementations every command needs
// to wire the domain registries. db is non-nil only for the sqlite driver,
// kept around so callers can close it on shutdown.
type stores struct {
	db            *sql.DB
	ruleStore     rule.Store
	limiterStore  ratelimit.LimiterStore
	newCounterStore func(ratelimit.LimiterLister) ratelimit.CounterStore
	inquiryStore  inquiry.Store
}

// openStores builds the Store layer for cfg.Store.Driver. The memory
// driver starts empty on every run; the sqlite driver opens (and
// migrates, via sqlitestore.Open) the file at cfg.Store.DSN.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.Store.Driver {
	case "memory":
		return &stores{
			ruleStore:    memstore.NewRuleStore(),
			limiterStore: memstore.NewLimiterStore(),
			newCounterStore: func(lister ratelimit.LimiterLister) ratelimit.CounterStore {
				return memstore.NewCounterStore(lister)
			},
			inquiryStore: memstore.NewInquiryStore(),
		}, nil
	case "sqlite":
		db, err := sqlitestore.Open(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return &stores{
			db:           db,
			ruleStore:    sqlitestore.NewRuleStore(db),
			limiterStore: sqlitestore.NewLimiterStore(db),
			newCounterStore: func(ratelimit.LimiterLister) ratelimit.CounterStore {
				return sqlitestore.NewCounterStore(db)
			},
			inquiryStore: sqlitestore.NewInquiryStore(db),
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (s *stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
