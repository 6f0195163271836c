package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/model"
)

const instrumentsKey = "market:instruments"

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the market listing. Price updates go to the primary store and
// invalidate the cache. Transactions always go to the primary: the trade
// path and portfolio snapshots never read cached data.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Passthrough (not cached) ---

func (s *CachedStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.primary.RunInTx(ctx, fn)
}

func (s *CachedStore) ReadSnapshot(ctx context.Context, fn func(tx Tx) error) error {
	return s.primary.ReadSnapshot(ctx, fn)
}

// --- Write-through (write to primary, refresh cache) ---

func (s *CachedStore) UpdatePrices(ctx context.Context, next func(model.Instrument) decimal.Decimal) ([]model.Instrument, error) {
	updated, err := s.primary.UpdatePrices(ctx, next)
	if err != nil {
		// The primary may have committed before failing; drop the listing.
		s.rdb.Del(ctx, instrumentsKey)
		return nil, err
	}
	s.cacheInstruments(ctx, updated)
	return updated, nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) ListInstruments(ctx context.Context) ([]model.Instrument, error) {
	data, err := s.rdb.Get(ctx, instrumentsKey).Bytes()
	if err == nil {
		var list []model.Instrument
		if json.Unmarshal(data, &list) == nil {
			return list, nil
		}
	} else if err != redis.Nil {
		slog.Warn("redis read failed, falling back to primary", "key", instrumentsKey, "err", err)
	}

	// Cache miss: read from primary.
	list, err := s.primary.ListInstruments(ctx)
	if err != nil {
		return nil, err
	}
	s.cacheInstruments(ctx, list)
	return list, nil
}

func (s *CachedStore) cacheInstruments(ctx context.Context, list []model.Instrument) {
	if data, err := json.Marshal(list); err == nil {
		s.rdb.Set(ctx, instrumentsKey, data, s.ttl)
	}
}
