package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
)

// StateCache implements domain.StateCache.
//
// Key schema:
//
//	l2:state:{symbol}      - JSON-encoded MarketState, with TTL
//	l2:book:{symbol}:bids  - sorted set of bid prices (score = price, member = "price:size")
//	l2:book:{symbol}:asks  - sorted set of ask prices
//
// The JSON blob is the authoritative read path; the sorted sets mirror the
// book so operators can inspect depth with plain redis-cli.
type StateCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStateCache creates a StateCache backed by the given Client. ttl bounds
// how stale a cached state may get after a pipeline stops publishing.
func NewStateCache(c *Client, ttl time.Duration) *StateCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &StateCache{rdb: c.Underlying(), ttl: ttl}
}

func stateKey(symbol string) string    { return "l2:state:" + symbol }
func bookBidsKey(symbol string) string { return "l2:book:" + symbol + ":bids" }
func bookAsksKey(symbol string) string { return "l2:book:" + symbol + ":asks" }

// SetState replaces the cached state and book mirror for a symbol in one
// transactional pipeline.
func (sc *StateCache) SetState(ctx context.Context, state domain.MarketState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("redis: marshal state %s: %w", state.Symbol, err)
	}

	bidsKey := bookBidsKey(state.Symbol)
	asksKey := bookAsksKey(state.Symbol)

	pipe := sc.rdb.TxPipeline()
	pipe.Set(ctx, stateKey(state.Symbol), payload, sc.ttl)

	pipe.Del(ctx, bidsKey, asksKey)
	for _, lvl := range state.Snapshot.Bids {
		pipe.ZAdd(ctx, bidsKey, redis.Z{Score: lvl.Price, Member: levelMember(lvl)})
	}
	for _, lvl := range state.Snapshot.Asks {
		pipe.ZAdd(ctx, asksKey, redis.Z{Score: lvl.Price, Member: levelMember(lvl)})
	}
	pipe.Expire(ctx, bidsKey, sc.ttl)
	pipe.Expire(ctx, asksKey, sc.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set state %s: %w", state.Symbol, err)
	}
	return nil
}

func levelMember(lvl domain.PriceLevel) string {
	return strconv.FormatFloat(lvl.Price, 'f', -1, 64) + ":" + strconv.FormatInt(lvl.Size, 10)
}

// GetState returns the cached state for a symbol, or domain.ErrNotFound when
// the key is missing or has expired.
func (sc *StateCache) GetState(ctx context.Context, symbol string) (domain.MarketState, error) {
	payload, err := sc.rdb.Get(ctx, stateKey(symbol)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.MarketState{}, domain.ErrNotFound
		}
		return domain.MarketState{}, fmt.Errorf("redis: get state %s: %w", symbol, err)
	}

	var state domain.MarketState
	if err := json.Unmarshal(payload, &state); err != nil {
		return domain.MarketState{}, fmt.Errorf("redis: unmarshal state %s: %w", symbol, err)
	}
	return state, nil
}

// Compile-time interface check.
var _ domain.StateCache = (*StateCache)(nil)
