package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"holdem-engine/internal/logger"
)

var (
	// ErrLockTimeout occurs when lock acquisition times out
	ErrLockTimeout = errors.New("timeout acquiring lock")
	// ErrLockNotHeld occurs when trying to release a lock not held by this instance
	ErrLockNotHeld = errors.New("lock not held by this instance")
	// ErrLockAlreadyHeld occurs when lock is already held by another instance
	ErrLockAlreadyHeld = errors.New("lock already held by another instance")
)

const (
	DefaultLockTTL        = 30 * time.Second
	DefaultAcquireTimeout = 5 * time.Second
	DefaultRetryAttempts  = 3
	// OrphanedLockAge is the idle time after which a lock is force-deleted.
	OrphanedLockAge = 60 * time.Second
)

var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// LockManager hands out Redis locks that guard work which must run on one
// server instance only, such as restoring tables after a restart.
type LockManager struct {
	redis      redis.UniversalClient
	instanceID string
	log        zerolog.Logger

	// backoff between acquisition attempts
	backoff func(attempt int) time.Duration
}

// Lock is a held distributed lock.
type Lock struct {
	key        string
	value      string
	manager    *LockManager
	ttl        time.Duration
	acquiredAt time.Time
}

func NewLockManager(redisClient redis.UniversalClient) *LockManager {
	return &LockManager{
		redis:      redisClient,
		instanceID: uuid.New().String(),
		log:        logger.With("locks"),
		backoff:    calculateBackoff,
	}
}

func (lm *LockManager) InstanceID() string {
	return lm.instanceID
}

// AcquireLock takes lock:<key> with SET NX PX, retrying with exponential
// backoff and clearing locks whose holder went away.
func (lm *LockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	if ttl == 0 {
		ttl = DefaultLockTTL
	}

	acquireCtx, cancel := context.WithTimeout(ctx, DefaultAcquireTimeout)
	defer cancel()

	lockValue := fmt.Sprintf("%s:%s", lm.instanceID, uuid.New().String())
	lockKey := fmt.Sprintf("lock:%s", key)
	log := lm.log.With().Str("lock", lockKey).Logger()

	var lastErr error
	for attempt := 0; attempt < DefaultRetryAttempts; attempt++ {
		if acquireCtx.Err() != nil {
			return nil, ErrLockTimeout
		}

		acquired, err := lm.redis.SetNX(acquireCtx, lockKey, lockValue, ttl).Result()
		if err != nil {
			lastErr = fmt.Errorf("redis error: %w", err)
			log.Warn().Err(err).Int("attempt", attempt+1).Msg("lock attempt failed")
		} else if acquired {
			log.Debug().Int("attempt", attempt+1).Dur("ttl", ttl).Msg("lock acquired")
			return &Lock{
				key:        lockKey,
				value:      lockValue,
				manager:    lm,
				ttl:        ttl,
				acquiredAt: time.Now(),
			}, nil
		} else {
			if err := lm.checkAndCleanOrphanedLock(acquireCtx, lockKey); err != nil {
				log.Warn().Err(err).Msg("orphaned lock check failed")
			}
			lastErr = ErrLockAlreadyHeld
		}

		if attempt == DefaultRetryAttempts-1 {
			break
		}
		select {
		case <-acquireCtx.Done():
			return nil, ErrLockTimeout
		case <-time.After(lm.backoff(attempt)):
		}
	}

	log.Warn().Err(lastErr).Int("attempts", DefaultRetryAttempts).Msg("failed to acquire lock")
	return nil, lastErr
}

// Release deletes the lock if this instance still owns it.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return ErrLockNotHeld
	}

	result, err := releaseScript.Run(ctx, l.manager.redis, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if result == 0 {
		l.manager.log.Warn().Str("lock", l.key).Msg("lock expired before release")
		return ErrLockNotHeld
	}

	l.manager.log.Debug().Str("lock", l.key).Dur("held", time.Since(l.acquiredAt)).Msg("lock released")
	return nil
}

// Extend resets the lock's TTL to ttl if this instance still owns it.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	if l == nil {
		return ErrLockNotHeld
	}

	result, err := extendScript.Run(ctx, l.manager.redis, []string{l.key}, l.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	l.ttl = ttl
	return nil
}

func (lm *LockManager) checkAndCleanOrphanedLock(ctx context.Context, lockKey string) error {
	idle, err := lm.redis.ObjectIdleTime(ctx, lockKey).Result()
	if err != nil {
		// missing key or OBJECT not supported
		return nil
	}
	if idle <= OrphanedLockAge {
		return nil
	}

	deleted, err := lm.redis.Del(ctx, lockKey).Result()
	if err != nil {
		return fmt.Errorf("failed to delete orphaned lock: %w", err)
	}
	if deleted > 0 {
		lm.log.Warn().Str("lock", lockKey).Dur("idle", idle).Msg("removed orphaned lock")
	}
	return nil
}

// 500ms, 1s, 2s
func calculateBackoff(attempt int) time.Duration {
	backoff := time.Duration(500*(1<<attempt)) * time.Millisecond
	if backoff > 2*time.Second {
		backoff = 2 * time.Second
	}
	return backoff
}

// CleanupOrphanedLocks removes every orphaned lock. It runs once at startup.
func (lm *LockManager) CleanupOrphanedLocks(ctx context.Context) (int, error) {
	keys, err := lm.redis.Keys(ctx, "lock:*").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list locks: %w", err)
	}

	cleaned := 0
	for _, key := range keys {
		if err := lm.checkAndCleanOrphanedLock(ctx, key); err != nil {
			lm.log.Warn().Err(err).Str("lock", key).Msg("orphaned lock check failed")
			continue
		}
		if exists, _ := lm.redis.Exists(ctx, key).Result(); exists == 0 {
			cleaned++
		}
	}

	lm.log.Info().Int("cleaned", cleaned).Int("total", len(keys)).Msg("orphaned lock cleanup complete")
	return cleaned, nil
}

// Holder returns the value stored under the lock, empty when it is free.
func (lm *LockManager) Holder(ctx context.Context, key string) (string, time.Duration, error) {
	lockKey := fmt.Sprintf("lock:%s", key)
	value, err := lm.redis.Get(ctx, lockKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to get lock: %w", err)
	}
	ttl, err := lm.redis.PTTL(ctx, lockKey).Result()
	if err != nil {
		return value, 0, fmt.Errorf("failed to get lock TTL: %w", err)
	}
	return value, ttl, nil
}
