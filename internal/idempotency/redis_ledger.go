package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"holdem-engine/engine"
	"holdem-engine/models"
)

const keyPrefix = "idem"

// RedisLedger keeps request outcomes in Redis so they survive a restart and
// are shared by every server instance. Retention is the key TTL.
type RedisLedger struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ engine.IdempotencyLedger = (*RedisLedger)(nil)

func NewRedisLedger(client redis.UniversalClient, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = engine.DefaultLedgerTTL
	}
	return &RedisLedger{client: client, ttl: ttl}
}

func Key(key engine.LedgerKey) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, key.TableID, key.PlayerID, key.RequestID)
}

func (l *RedisLedger) Lookup(ctx context.Context, key engine.LedgerKey) (models.ActionResult, bool, error) {
	raw, err := l.client.Get(ctx, Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.ActionResult{}, false, nil
	}
	if err != nil {
		return models.ActionResult{}, false, fmt.Errorf("idempotency lookup: %w", err)
	}

	var result models.ActionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return models.ActionResult{}, false, fmt.Errorf("decode idempotency entry: %w", err)
	}
	return result, true, nil
}

// Store records the first outcome of a request; later writes for the same key
// are ignored.
func (l *RedisLedger) Store(ctx context.Context, key engine.LedgerKey, result models.ActionResult) error {
	if key.RequestID == "" {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode idempotency entry: %w", err)
	}
	if err := l.client.SetNX(ctx, Key(key), raw, l.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency store: %w", err)
	}
	return nil
}
