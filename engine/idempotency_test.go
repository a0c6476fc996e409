package engine

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holdem-engine/models"
)

func TestMemoryLedger_StoreAndLookup(t *testing.T) {
	ledger := NewMemoryLedger(quartz.NewMock(t), time.Minute)
	defer ledger.Stop()
	ctx := context.Background()

	key := LedgerKey{TableID: "t1", PlayerID: "alice", RequestID: "abc"}
	_, ok, err := ledger.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	want := models.ActionResult{Reason: models.ReasonInvalidAmount, StateVersion: 7}
	require.NoError(t, ledger.Store(ctx, key, want))

	got, ok, err := ledger.Lookup(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	other := key
	other.PlayerID = "dave"
	_, ok, _ = ledger.Lookup(ctx, other)
	assert.False(t, ok, "keys are scoped to the player")

	other = key
	other.TableID = "t2"
	_, ok, _ = ledger.Lookup(ctx, other)
	assert.False(t, ok, "keys are scoped to the table")
}

func TestMemoryLedger_EmptyRequestIDIsNotRecorded(t *testing.T) {
	ledger := NewMemoryLedger(quartz.NewMock(t), time.Minute)
	defer ledger.Stop()

	require.NoError(t, ledger.Store(context.Background(), LedgerKey{TableID: "t1"}, models.ActionResult{Accepted: true}))
	assert.Zero(t, ledger.Len())
}

func TestMemoryLedger_Expiry(t *testing.T) {
	clock := quartz.NewMock(t)
	ledger := NewMemoryLedger(clock, time.Minute)
	defer ledger.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := LedgerKey{TableID: "t1", PlayerID: "alice", RequestID: "r"}
	require.NoError(t, ledger.Store(ctx, key, models.ActionResult{Accepted: true, StateVersion: 1}))

	clock.Advance(30 * time.Second).MustWait(ctx)
	clock.Advance(30 * time.Second).MustWait(ctx)
	_, ok, _ := ledger.Lookup(ctx, key)
	assert.True(t, ok, "retained for the full ttl")
	assert.Equal(t, 1, ledger.Len())

	clock.Advance(30 * time.Second).MustWait(ctx)
	_, ok, _ = ledger.Lookup(ctx, key)
	assert.False(t, ok)
	assert.Zero(t, ledger.Len(), "sweeper dropped the entry")
}

func TestMemoryLedger_CleanupKeepsFreshEntries(t *testing.T) {
	clock := quartz.NewMock(t)
	ledger := NewMemoryLedger(clock, time.Minute)
	defer ledger.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, ledger.Store(ctx, LedgerKey{TableID: "t1", RequestID: "old"}, models.ActionResult{}))
	clock.Advance(30 * time.Second).MustWait(ctx)
	clock.Advance(30 * time.Second).MustWait(ctx)
	require.NoError(t, ledger.Store(ctx, LedgerKey{TableID: "t1", RequestID: "new"}, models.ActionResult{}))
	clock.Advance(30 * time.Second).MustWait(ctx)

	_, ok, _ := ledger.Lookup(ctx, LedgerKey{TableID: "t1", RequestID: "new"})
	assert.True(t, ok)
	assert.Equal(t, 1, ledger.Len())
	assert.Zero(t, ledger.Cleanup())
}
