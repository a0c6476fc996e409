package engine

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"

	"holdem-engine/models"
)

const DefaultLedgerTTL = 10 * time.Minute

// LedgerKey identifies a request. The same request id sent by two players is
// two different requests, even when they held the same seat.
type LedgerKey struct {
	TableID   string
	PlayerID  string
	RequestID string
}

// IdempotencyLedger remembers the outcome of processed requests so a retry is
// answered with the original result instead of being applied twice.
type IdempotencyLedger interface {
	Lookup(ctx context.Context, key LedgerKey) (models.ActionResult, bool, error)
	Store(ctx context.Context, key LedgerKey, result models.ActionResult) error
}

type ledgerEntry struct {
	result   models.ActionResult
	storedAt time.Time
}

// MemoryLedger is an in-process ledger with time-based retention.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[LedgerKey]ledgerEntry
	clock   quartz.Clock
	ttl     time.Duration
	cancel  context.CancelFunc
}

// NewMemoryLedger starts a ledger whose entries expire after ttl. Stop must be
// called to release the sweeper.
func NewMemoryLedger(clock quartz.Clock, ttl time.Duration) *MemoryLedger {
	if ttl <= 0 {
		ttl = DefaultLedgerTTL
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &MemoryLedger{
		entries: make(map[LedgerKey]ledgerEntry),
		clock:   clock,
		ttl:     ttl,
		cancel:  cancel,
	}
	clock.TickerFunc(ctx, ttl/2, func() error {
		l.Cleanup()
		return nil
	}, "ledger", "sweep")
	return l
}

func (l *MemoryLedger) Lookup(_ context.Context, key LedgerKey) (models.ActionResult, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.entries[key]
	if !ok || l.clock.Since(entry.storedAt) > l.ttl {
		return models.ActionResult{}, false, nil
	}
	return entry.result, true, nil
}

func (l *MemoryLedger) Store(_ context.Context, key LedgerKey, result models.ActionResult) error {
	if key.RequestID == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[key] = ledgerEntry{result: result, storedAt: l.clock.Now()}
	return nil
}

// Len returns the number of retained entries.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Cleanup drops expired entries and returns how many were removed.
func (l *MemoryLedger) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, entry := range l.entries {
		if l.clock.Since(entry.storedAt) > l.ttl {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

func (l *MemoryLedger) Stop() {
	l.cancel()
}
