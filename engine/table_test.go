package engine

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holdem-engine/models"
)

type recordingPublisher struct {
	mu     sync.Mutex
	deltas []models.TableDelta
}

func (p *recordingPublisher) PublishDelta(delta models.TableDelta) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deltas = append(p.deltas, delta)
}

func (p *recordingPublisher) all() []models.TableDelta {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.TableDelta(nil), p.deltas...)
}

func (p *recordingPublisher) last() models.TableDelta {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deltas[len(p.deltas)-1]
}

type cashOut struct {
	playerID string
	amount   int
}

type tableFixture struct {
	table    *Table
	clock    *quartz.Mock
	pub      *recordingPublisher
	ledger   *MemoryLedger
	mu       sync.Mutex
	settled  []models.HandSettled
	cashOuts []cashOut
}

func (f *tableFixture) settledHands() []models.HandSettled {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.HandSettled(nil), f.settled...)
}

func (f *tableFixture) cashedOut() []cashOut {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cashOut(nil), f.cashOuts...)
}

func testConfig() models.TableConfig {
	return models.TableConfig{
		SmallBlind: 5,
		BigBlind:   10,
		MinBuyIn:   100,
		MaxBuyIn:   2000,
		MaxSeats:   6,
	}
}

func newTableFixture(t *testing.T, cfg models.TableConfig) *tableFixture {
	t.Helper()
	f := &tableFixture{
		clock: quartz.NewMock(t),
		pub:   &recordingPublisher{},
	}
	f.ledger = NewMemoryLedger(f.clock, time.Minute)
	t.Cleanup(f.ledger.Stop)

	table, err := NewTable("t1", "Fixture", cfg, TableOptions{
		Clock:     f.clock,
		Logger:    zerolog.Nop(),
		Ledger:    f.ledger,
		Publisher: f.pub,
		NewDeck:   seededDeck(7),
		OnSettled: func(s models.HandSettled) {
			f.mu.Lock()
			f.settled = append(f.settled, s)
			f.mu.Unlock()
		},
		OnCashOut: func(playerID string, amount int) {
			f.mu.Lock()
			f.cashOuts = append(f.cashOuts, cashOut{playerID, amount})
			f.mu.Unlock()
		},
	})
	require.NoError(t, err)
	f.table = table
	t.Cleanup(table.Close)
	return f
}

func seededRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func (f *tableFixture) seat(t *testing.T, players ...string) {
	t.Helper()
	for _, p := range players {
		_, err := f.table.SeatPlayer(context.Background(), p, "Player "+p, -1, 1000)
		require.NoError(t, err)
	}
}

// inspect runs fn inside the serializer so it sees a consistent state.
func (f *tableFixture) inspect(t *testing.T, fn func(t *Table)) {
	t.Helper()
	require.NoError(t, f.table.do(context.Background(), func() { fn(f.table) }))
}

// act submits for whoever holds seat.
func (f *tableFixture) act(ctx context.Context, seat int, action models.Action, requestID string) (models.ActionResult, error) {
	var playerID string
	err := f.table.do(ctx, func() {
		if seat >= 0 && seat < len(f.table.model.Seats) {
			playerID = f.table.model.Seats[seat].PlayerID
		}
	})
	if err != nil {
		return models.ActionResult{}, err
	}
	return f.table.Submit(ctx, playerID, action, requestID)
}

func (f *tableFixture) playerAt(t *testing.T, seat int) string {
	var playerID string
	f.inspect(t, func(tb *Table) { playerID = tb.model.Seats[seat].PlayerID })
	return playerID
}

func (f *tableFixture) toAct(t *testing.T) int {
	var seat int
	f.inspect(t, func(tb *Table) { seat = tb.game.Hand().ToAct })
	return seat
}

func (f *tableFixture) version(t *testing.T) uint64 {
	var v uint64
	f.inspect(t, func(tb *Table) { v = tb.model.StateVersion })
	return v
}

func TestTable_StateVersionIncrementsByOnePerCommit(t *testing.T) {
	f := newTableFixture(t, testConfig())
	ctx := context.Background()

	f.seat(t, "alice", "bob", "carol")
	require.NoError(t, f.table.StartHand(ctx))
	res, err := f.act(ctx, f.toAct(t), models.Action{Type: models.ActionCall}, "r1")
	require.NoError(t, err)
	require.True(t, res.Accepted)

	deltas := f.pub.all()
	require.Len(t, deltas, 5)
	for i, d := range deltas {
		assert.Equal(t, uint64(i+1), d.StateVersion)
		assert.Equal(t, "t1", d.TableID)
	}
	assert.Equal(t, models.EventHandStarted, deltas[3].EventType)
	assert.Equal(t, models.EventPlayerAction, deltas[4].EventType)
	assert.Equal(t, uint64(5), res.StateVersion)
}

func TestTable_HoleCardsOnlyInPrivatePayload(t *testing.T) {
	f := newTableFixture(t, testConfig())
	f.seat(t, "alice", "bob")
	require.NoError(t, f.table.StartHand(context.Background()))

	delta := f.pub.last()
	require.Len(t, delta.Private, 2)
	for seat, payload := range delta.Private {
		assert.Len(t, payload.HoleCards, 2, "seat %d", seat)
	}
	for _, ev := range delta.Public.Events {
		if ev.Type == models.EventHoleDealt {
			assert.Empty(t, ev.Cards)
		}
	}

	spectator, err := f.table.Snapshot(context.Background(), -1)
	require.NoError(t, err)
	for _, s := range spectator.Seats {
		assert.Empty(t, s.HoleCards)
	}
	assert.Nil(t, spectator.Legal)

	player, err := f.table.Snapshot(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, player.Seats[0].HoleCards, 2)
	assert.Empty(t, player.Seats[1].HoleCards)
	require.NotNil(t, player.Legal, "heads-up button acts first")
	assert.Contains(t, player.Legal.Actions, models.ActionCall)
}

func TestTable_ConcurrentStartHand(t *testing.T) {
	f := newTableFixture(t, testConfig())
	f.seat(t, "alice", "bob", "carol")

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.table.StartHand(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	started := 0
	for err := range errs {
		if err == nil {
			started++
			continue
		}
		reason, ok := ReasonOf(err)
		require.True(t, ok)
		assert.Equal(t, models.ReasonHandInProgress, reason)
	}
	assert.Equal(t, 1, started)

	f.inspect(t, func(tb *Table) {
		assert.Equal(t, 1, tb.model.HandNumber)
	})
}

func TestTable_IdempotentSubmit(t *testing.T) {
	f := newTableFixture(t, testConfig())
	ctx := context.Background()
	f.seat(t, "alice", "bob", "carol")
	require.NoError(t, f.table.StartHand(ctx))
	seat := f.toAct(t)
	before := f.version(t)

	first, err := f.act(ctx, seat, models.Action{Type: models.ActionCall}, "req-1")
	require.NoError(t, err)
	second, err := f.act(ctx, seat, models.Action{Type: models.ActionCall}, "req-1")
	require.NoError(t, err)

	assert.True(t, first.Accepted)
	assert.Equal(t, first, second)
	assert.Equal(t, before+1, f.version(t))
}

func TestTable_IdempotentSubmitConcurrent(t *testing.T) {
	f := newTableFixture(t, testConfig())
	ctx := context.Background()
	f.seat(t, "alice", "bob", "carol")
	require.NoError(t, f.table.StartHand(ctx))
	seat := f.toAct(t)
	before := f.version(t)

	const callers = 10
	results := make([]models.ActionResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.act(ctx, seat, models.Action{Type: models.ActionRaise, Amount: 30}, "dup")
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		assert.Equal(t, results[0], res)
	}
	assert.True(t, results[0].Accepted)
	assert.Equal(t, before+1, f.version(t), "exactly one mutation")
}

func TestTable_RejectionsAreRemembered(t *testing.T) {
	f := newTableFixture(t, testConfig())
	ctx := context.Background()
	f.seat(t, "alice", "bob", "carol")
	require.NoError(t, f.table.StartHand(ctx))

	turn := f.toAct(t)
	waiting := (turn + 1) % 3
	res, err := f.act(ctx, waiting, models.Action{Type: models.ActionCall}, "early")
	require.NoError(t, err)
	assert.Equal(t, models.ReasonNotYourTurn, res.Reason)

	_, err = f.act(ctx, turn, models.Action{Type: models.ActionCall}, "t-1")
	require.NoError(t, err)
	require.Equal(t, waiting, f.toAct(t))

	// a retry of the early request gets the original answer
	res, err = f.act(ctx, waiting, models.Action{Type: models.ActionCall}, "early")
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, models.ReasonNotYourTurn, res.Reason)

	// the same request id from another player is a different request
	res, err = f.act(ctx, waiting, models.Action{Type: models.ActionCall}, "t-1")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestTable_ValidationOrder(t *testing.T) {
	f := newTableFixture(t, testConfig())
	ctx := context.Background()
	f.seat(t, "alice", "bob", "carol")

	res, err := f.act(ctx, 0, models.Action{Type: models.ActionCall}, "")
	require.NoError(t, err)
	assert.Equal(t, models.ReasonNoActiveHand, res.Reason)

	require.NoError(t, f.table.StartHand(ctx))
	turn := f.toAct(t)

	res, _ = f.act(ctx, (turn+1)%3, models.Action{Type: "bogus"}, "")
	assert.Equal(t, models.ReasonNotYourTurn, res.Reason, "turn is checked before the action type")

	res, _ = f.act(ctx, turn, models.Action{Type: models.ActionCheck}, "")
	assert.Equal(t, models.ReasonInvalidActionType, res.Reason)

	res, _ = f.act(ctx, turn, models.Action{Type: models.ActionRaise, Amount: 12}, "")
	assert.Equal(t, models.ReasonInvalidAmount, res.Reason)

	res, _ = f.act(ctx, turn, models.Action{Type: models.ActionRaise, Amount: 5000}, "")
	assert.Equal(t, models.ReasonInsufficientFunds, res.Reason)

	res, _ = f.act(ctx, 5, models.Action{Type: models.ActionFold}, "")
	assert.Equal(t, models.ReasonNotSeated, res.Reason)
}

func TestTable_RecoveryRoundTrip(t *testing.T) {
	f := newTableFixture(t, testConfig())
	ctx := context.Background()
	f.seat(t, "alice", "bob", "carol")
	require.NoError(t, f.table.StartHand(ctx))

	base, err := f.table.Snapshot(ctx, 1)
	require.NoError(t, err)
	v := base.StateVersion

	const k = 3
	for i := 0; i < k; i++ {
		seat := f.toAct(t)
		res, err := f.act(ctx, seat, models.Action{Type: models.ActionCall}, "")
		require.NoError(t, err)
		if !res.Accepted {
			res, err = f.act(ctx, seat, models.Action{Type: models.ActionCheck}, "")
			require.NoError(t, err)
		}
		require.True(t, res.Accepted)
	}

	snap, err := f.table.Recover(ctx, 1, v)
	require.NoError(t, err)
	assert.False(t, snap.UpToDate)
	assert.Equal(t, v+k, snap.StateVersion)

	live, err := f.table.Snapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, live, snap.State)
	assert.Equal(t, v+k, snap.State.StateVersion)

	current, err := f.table.Recover(ctx, 1, v+k)
	require.NoError(t, err)
	assert.True(t, current.UpToDate)
	assert.Equal(t, v+k, current.StateVersion)
}

func TestTable_SubscribeRegistersInsideSerializer(t *testing.T) {
	f := newTableFixture(t, testConfig())
	ctx := context.Background()
	f.seat(t, "alice", "bob")

	var registeredAt uint64
	snap, err := f.table.Subscribe(ctx, -1, 0, func(int) {
		registeredAt = f.table.model.StateVersion
	})
	require.NoError(t, err)
	assert.Equal(t, registeredAt, snap.StateVersion)
	assert.Equal(t, uint64(2), snap.StateVersion)
	assert.Equal(t, -1, snap.State.Viewer)
}

func TestTable_TurnTimeoutForcesFoldOrCheck(t *testing.T) {
	cfg := testConfig()
	cfg.TurnTimeout = 10 * time.Second
	f := newTableFixture(t, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f.seat(t, "alice", "bob", "carol")
	require.NoError(t, f.table.StartHand(ctx))
	first := f.toAct(t)

	view, err := f.table.Snapshot(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, view.Seats[first].TurnRemaining)

	f.clock.Advance(10 * time.Second).MustWait(ctx)

	var last models.HandEvent
	f.inspect(t, func(tb *Table) {
		events := tb.game.Hand().Events
		for i := len(events) - 1; i >= 0; i-- {
			if events[i].Type == models.EventPlayerAction {
				last = events[i]
				break
			}
		}
		assert.Equal(t, models.SeatFolded, tb.model.Seats[first].Status)
	})
	assert.Equal(t, first, last.Seat)
	assert.Equal(t, models.ActionFold, last.Action)
	assert.True(t, last.System)

	// the big blind facing no raise is checked for, not folded
	next := f.toAct(t)
	res, err := f.act(ctx, next, models.Action{Type: models.ActionCall}, "")
	require.NoError(t, err)
	require.True(t, res.Accepted)
	bb := f.toAct(t)
	f.clock.Advance(10 * time.Second).MustWait(ctx)

	f.inspect(t, func(tb *Table) {
		assert.Equal(t, models.ActionCheck, tb.model.Seats[bb].LastAction)
		assert.Equal(t, models.PhaseFlop, tb.game.Hand().Phase)
	})
}

func TestTable_StaleTimeoutIsIgnored(t *testing.T) {
	f := newTableFixture(t, testConfig())
	ctx := context.Background()
	f.seat(t, "alice", "bob", "carol")
	require.NoError(t, f.table.StartHand(ctx))

	var stale uint64
	f.inspect(t, func(tb *Table) { stale = tb.game.Hand().DecisionID })
	res, err := f.act(ctx, f.toAct(t), models.Action{Type: models.ActionCall}, "")
	require.NoError(t, err)
	require.True(t, res.Accepted)

	before := f.version(t)
	seat := f.toAct(t)
	f.inspect(t, func(tb *Table) { tb.expire(stale, tb.timer.Generation()) })
	assert.Equal(t, before, f.version(t))
	assert.Equal(t, seat, f.toAct(t))
}

func TestTable_TimeBank(t *testing.T) {
	cfg := testConfig()
	cfg.TurnTimeout = 10 * time.Second
	cfg.TimeBank = 30 * time.Second
	f := newTableFixture(t, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f.seat(t, "alice", "bob", "carol")
	require.NoError(t, f.table.StartHand(ctx))
	seat := f.toAct(t)

	player := f.playerAt(t, seat)

	_, err := f.table.UseTimeBank(ctx, f.playerAt(t, (seat+1)%3), 0)
	rejectedWith(t, err, models.ReasonNotYourTurn)

	_, err = f.table.UseTimeBank(ctx, "stranger", 0)
	rejectedWith(t, err, models.ReasonNotSeated)

	_, err = f.table.UseTimeBank(ctx, player, -5*time.Second)
	rejectedWith(t, err, models.ReasonInvalidAmount)

	granted, err := f.table.UseTimeBank(ctx, player, 20*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, granted)
	assert.Equal(t, models.EventTimeBankUsed, f.pub.last().EventType)

	_, err = f.table.UseTimeBank(ctx, player, 5*time.Second)
	rejectedWith(t, err, models.ReasonTimeBankUnavailable)

	f.clock.Advance(10 * time.Second).MustWait(ctx)
	assert.Equal(t, seat, f.toAct(t), "deadline was extended")

	f.clock.Advance(20 * time.Second).MustWait(ctx)
	f.inspect(t, func(tb *Table) {
		s := tb.model.Seats[seat]
		assert.Equal(t, models.SeatFolded, s.Status)
		assert.Equal(t, 10*time.Second, s.TimeBank)
	})
}

func TestTable_TimeBankBeatsQueuedTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.TurnTimeout = 10 * time.Second
	cfg.TimeBank = 30 * time.Second
	f := newTableFixture(t, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f.seat(t, "alice", "bob", "carol")
	require.NoError(t, f.table.StartHand(ctx))
	seat := f.toAct(t)

	// the base deadline fired but its callback is still queued behind the
	// time bank request
	var decision, generation uint64
	f.inspect(t, func(tb *Table) {
		decision, generation = tb.game.Hand().DecisionID, tb.timer.Generation()
		granted, err := tb.useTimeBank(seat, 20*time.Second)
		assert.NoError(t, err)
		assert.Equal(t, 20*time.Second, granted)
	})
	before := f.version(t)
	f.inspect(t, func(tb *Table) { tb.expire(decision, generation) })

	assert.Equal(t, before, f.version(t))
	assert.Equal(t, seat, f.toAct(t))
	f.inspect(t, func(tb *Table) {
		s := tb.model.Seats[seat]
		assert.NotEqual(t, models.SeatFolded, s.Status)
		assert.Equal(t, 10*time.Second, s.TimeBank)
	})

	f.clock.Advance(10 * time.Second).MustWait(ctx)
	assert.Equal(t, seat, f.toAct(t), "extended deadline still running")
	f.clock.Advance(20 * time.Second).MustWait(ctx)
	f.inspect(t, func(tb *Table) { assert.Equal(t, models.SeatFolded, tb.model.Seats[seat].Status) })
}

func TestTable_SubmitActsOnlyForCurrentOccupant(t *testing.T) {
	f := newTableFixture(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f.seat(t, "alice", "bob")

	// alice's fold waits in the queue while she leaves and dave takes her
	// seat for a new hand
	started, release := make(chan struct{}), make(chan struct{})
	swapped := make(chan error, 1)
	go func() {
		swapped <- f.table.do(ctx, func() {
			close(started)
			<-release
			_, err := f.table.leave("alice")
			assert.NoError(t, err)
			_, err = f.table.seatPlayer("dave", "Dave", 0, 1000, true)
			assert.NoError(t, err)
			assert.NoError(t, f.table.startHand())
		})
	}()
	<-started

	folded := make(chan models.ActionResult, 1)
	go func() {
		res, err := f.table.Submit(ctx, "alice", models.Action{Type: models.ActionFold}, "fold-1")
		assert.NoError(t, err)
		folded <- res
	}()
	require.Eventually(t, func() bool { return len(f.table.serializer.jobs) == 1 }, time.Second, time.Millisecond)
	close(release)

	require.NoError(t, <-swapped)
	res := <-folded
	assert.False(t, res.Accepted)
	assert.Equal(t, models.ReasonNotSeated, res.Reason)
	f.inspect(t, func(tb *Table) {
		s := tb.model.Seats[0]
		assert.Equal(t, "dave", s.PlayerID)
		assert.True(t, s.InHand)
		assert.NotEqual(t, models.SeatFolded, s.Status)
	})
}

func TestTable_RequestIDsAreScopedToPlayer(t *testing.T) {
	f := newTableFixture(t, testConfig())
	ctx := context.Background()
	f.seat(t, "alice", "bob")

	res, err := f.table.Submit(ctx, "alice", models.Action{Type: models.ActionFold}, "1")
	require.NoError(t, err)
	assert.Equal(t, models.ReasonNoActiveHand, res.Reason)

	_, err = f.table.Leave(ctx, "alice")
	require.NoError(t, err)
	_, err = f.table.SeatPlayer(ctx, "dave", "Dave", 0, 1000)
	require.NoError(t, err)
	require.NoError(t, f.table.StartHand(ctx))
	if f.toAct(t) != 0 {
		res, err = f.table.Submit(ctx, "bob", models.Action{Type: models.ActionCall}, "b-1")
		require.NoError(t, err)
		require.True(t, res.Accepted)
	}
	require.Equal(t, 0, f.toAct(t))

	before := f.version(t)
	res, err = f.table.Submit(ctx, "dave", models.Action{Type: models.ActionFold}, "1")
	require.NoError(t, err)
	assert.True(t, res.Accepted, "dave's request 1 is not alice's")
	assert.Greater(t, f.version(t), before)
}

func TestTable_InvariantViolationFreezes(t *testing.T) {
	f := newTableFixture(t, testConfig())
	ctx := context.Background()
	f.seat(t, "alice", "bob", "carol")
	require.NoError(t, f.table.StartHand(ctx))

	f.inspect(t, func(tb *Table) { tb.chipTotal++ })

	res, err := f.act(ctx, f.toAct(t), models.Action{Type: models.ActionCall}, "")
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, models.ReasonTableFrozen, res.Reason)
	assert.Equal(t, models.EventTableFrozen, f.pub.last().EventType)

	res, err = f.act(ctx, f.toAct(t), models.Action{Type: models.ActionFold}, "")
	require.NoError(t, err)
	assert.Equal(t, models.ReasonTableFrozen, res.Reason)
	rejectedWith(t, f.table.StartHand(ctx), models.ReasonTableFrozen)

	view, err := f.table.Snapshot(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, view.Status)
	assert.Contains(t, view.FreezeReason, "chips")

	require.NoError(t, f.table.Unfreeze(ctx))
	view, err = f.table.Snapshot(ctx, -1)
	require.NoError(t, err)
	assert.Empty(t, view.FreezeReason)
	assert.Equal(t, models.PhaseWaiting, view.Phase)
	for _, s := range view.Seats[:3] {
		assert.Equal(t, 1000, s.Stack, "voided hand is refunded")
	}
	require.NoError(t, f.table.StartHand(ctx))
}

func TestTable_PanicInJobFreezes(t *testing.T) {
	f := newTableFixture(t, testConfig())
	err := f.table.do(context.Background(), func() { panic("boom") })
	require.Error(t, err)

	view, err := f.table.Snapshot(context.Background(), -1)
	require.NoError(t, err)
	assert.Contains(t, view.FreezeReason, "boom")
}

func TestTable_PauseAndResume(t *testing.T) {
	f := newTableFixture(t, testConfig())
	ctx := context.Background()
	f.seat(t, "alice", "bob")
	require.NoError(t, f.table.StartHand(ctx))

	require.NoError(t, f.table.Pause(ctx))
	res, err := f.act(ctx, f.toAct(t), models.Action{Type: models.ActionCall}, "")
	require.NoError(t, err)
	assert.Equal(t, models.ReasonNoActiveHand, res.Reason)

	require.NoError(t, f.table.Resume(ctx))
	res, err = f.act(ctx, f.toAct(t), models.Action{Type: models.ActionCall}, "")
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestTable_SeatingRules(t *testing.T) {
	f := newTableFixture(t, testConfig())
	ctx := context.Background()

	seat, err := f.table.SeatPlayer(ctx, "alice", "Alice", 3, 500)
	require.NoError(t, err)
	assert.Equal(t, 3, seat)

	_, err = f.table.SeatPlayer(ctx, "alice", "Alice", 4, 500)
	rejectedWith(t, err, models.ReasonAlreadySeated)
	_, err = f.table.SeatPlayer(ctx, "bob", "Bob", 3, 500)
	rejectedWith(t, err, models.ReasonSeatTaken)
	_, err = f.table.SeatPlayer(ctx, "bob", "Bob", 9, 500)
	rejectedWith(t, err, models.ReasonInvalidSeat)
	_, err = f.table.SeatPlayer(ctx, "bob", "Bob", -1, 50)
	rejectedWith(t, err, models.ReasonInvalidBuyIn)
	_, err = f.table.SeatPlayer(ctx, "bob", "Bob", -1, 2001)
	rejectedWith(t, err, models.ReasonInvalidBuyIn)

	for i, p := range []string{"b", "c", "d", "e", "f"} {
		seat, err := f.table.SeatPlayer(ctx, p, p, -1, 500)
		require.NoError(t, err)
		assert.NotEqual(t, 3, seat, "player %d", i)
	}
	_, err = f.table.SeatPlayer(ctx, "g", "g", -1, 500)
	rejectedWith(t, err, models.ReasonTableFull)
}

func TestTable_AddChips(t *testing.T) {
	f := newTableFixture(t, testConfig())
	ctx := context.Background()
	f.seat(t, "alice", "bob")

	require.NoError(t, f.table.AddChips(ctx, "alice", 500))
	rejectedWith(t, f.table.AddChips(ctx, "alice", 600), models.ReasonInvalidBuyIn)
	rejectedWith(t, f.table.AddChips(ctx, "nobody", 10), models.ReasonNotSeated)

	require.NoError(t, f.table.StartHand(ctx))
	rejectedWith(t, f.table.AddChips(ctx, "bob", 10), models.ReasonHandInProgress)
}

func TestTable_LeaveDuringHand(t *testing.T) {
	f := newTableFixture(t, testConfig())
	ctx := context.Background()
	f.seat(t, "alice", "bob", "carol")
	require.NoError(t, f.table.StartHand(ctx))

	// seat 0 is on the button and first to act three-handed; bob (SB) leaves
	require.Equal(t, 0, f.toAct(t))
	res, err := f.table.Leave(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, res.Deferred)
	assert.Equal(t, 1, res.Seat)

	f.inspect(t, func(tb *Table) {
		assert.Equal(t, models.SeatFolded, tb.model.Seats[1].Status)
		assert.Equal(t, "bob", tb.model.Seats[1].PlayerID)
	})
	assert.Empty(t, f.cashedOut())

	_, err = f.act(ctx, 0, models.Action{Type: models.ActionFold}, "")
	require.NoError(t, err)

	f.inspect(t, func(tb *Table) {
		assert.True(t, tb.model.Seats[1].IsEmpty())
	})
	assert.Equal(t, []cashOut{{"bob", 995}}, f.cashedOut())
	require.Len(t, f.settledHands(), 1)
}

func TestTable_LeaveBetweenHands(t *testing.T) {
	f := newTableFixture(t, testConfig())
	f.seat(t, "alice", "bob")

	res, err := f.table.Leave(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, res.Deferred)
	assert.Equal(t, 1000, res.CashOut)
	assert.Equal(t, []cashOut{{"alice", 1000}}, f.cashedOut())

	_, err = f.table.Leave(context.Background(), "alice")
	rejectedWith(t, err, models.ReasonNotSeated)
}

func TestTable_HandEndHousekeeping(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConsecutiveTimeouts = 1
	f := newTableFixture(t, cfg)
	ctx := context.Background()
	f.seat(t, "alice", "bob", "carol", "dave")
	require.NoError(t, f.table.SitOut(ctx, "carol"))

	require.NoError(t, f.table.StartHand(ctx))
	f.inspect(t, func(tb *Table) {
		h := tb.game.Hand()
		assert.Equal(t, 2, h.BigBlindSeat)
		assert.True(t, tb.model.Seats[2].ForcedBlind)
	})

	// seat 3 times out, the others fold to the forced big blind
	f.inspect(t, func(tb *Table) { tb.timeOut() })
	_, err := f.act(ctx, f.toAct(t), models.Action{Type: models.ActionFold}, "")
	require.NoError(t, err)
	_, err = f.act(ctx, f.toAct(t), models.Action{Type: models.ActionFold}, "")
	require.NoError(t, err)

	f.inspect(t, func(tb *Table) {
		assert.False(t, tb.game.InProgress())
		seats := tb.model.Seats
		assert.Equal(t, models.SeatSittingOut, seats[2].Status, "forced blind returns to sitting out")
		assert.Equal(t, 1005, seats[2].Stack)
		assert.Equal(t, models.SeatSittingOut, seats[3].Status, "timed out seat is sat out")
		assert.Equal(t, models.SeatActive, seats[0].Status)
		assert.Equal(t, models.StatusBetweenHands, tb.model.Status)
	})

	settled := f.settledHands()
	require.Len(t, settled, 1)
	sum := 0
	for _, d := range settled[0].Deltas {
		sum += d.Delta
	}
	assert.Zero(t, sum)
	assert.Equal(t, []int{2}, settled[0].Winners)
}

func TestTable_BustedPlayerIsStoodUp(t *testing.T) {
	f := newTableFixture(t, testConfig())
	ctx := context.Background()
	_, err := f.table.SeatPlayer(ctx, "alice", "Alice", 0, 100)
	require.NoError(t, err)
	_, err = f.table.SeatPlayer(ctx, "bob", "Bob", 1, 1000)
	require.NoError(t, err)

	require.NoError(t, f.table.StartHand(ctx))
	res, err := f.act(ctx, 0, models.Action{Type: models.ActionAllIn}, "")
	require.NoError(t, err)
	require.True(t, res.Accepted)
	res, err = f.act(ctx, 1, models.Action{Type: models.ActionCall}, "")
	require.NoError(t, err)
	require.True(t, res.Accepted)

	f.inspect(t, func(tb *Table) {
		require.False(t, tb.game.InProgress())
		total := 0
		for _, s := range tb.model.Seats {
			total += s.Stack
		}
		assert.Equal(t, 1100, total)
		for _, s := range tb.model.Seats {
			if !s.IsEmpty() {
				assert.Positive(t, s.Stack)
			}
		}
	})
}

func TestTable_DisconnectedSeatsSkipNextHand(t *testing.T) {
	f := newTableFixture(t, testConfig())
	ctx := context.Background()
	f.seat(t, "alice", "bob", "carol")
	require.NoError(t, f.table.StartHand(ctx))

	require.NoError(t, f.table.SetConnected(ctx, "carol", false))
	f.inspect(t, func(tb *Table) {
		s := tb.model.Seats[2]
		assert.True(t, s.Disconnected)
		assert.True(t, s.InHand, "a dropped seat keeps playing on its timer")
	})

	for f.handRunning(t) {
		_, err := f.act(ctx, f.toAct(t), models.Action{Type: models.ActionFold}, "")
		require.NoError(t, err)
	}
	f.inspect(t, func(tb *Table) {
		assert.Equal(t, models.SeatDisconnected, tb.model.Seats[2].Status)
	})

	require.NoError(t, f.table.StartHand(ctx))
	f.inspect(t, func(tb *Table) { assert.False(t, tb.model.Seats[2].InHand) })

	require.NoError(t, f.table.SetConnected(ctx, "carol", true))
	f.inspect(t, func(tb *Table) { assert.Equal(t, models.SeatActive, tb.model.Seats[2].Status) })
}

func (f *tableFixture) handRunning(t *testing.T) bool {
	var running bool
	f.inspect(t, func(tb *Table) { running = tb.game.InProgress() })
	return running
}

func TestTable_AutoStartNextHand(t *testing.T) {
	cfg := testConfig()
	cfg.AutoStart = true
	cfg.NextHandDelay = 3 * time.Second
	f := newTableFixture(t, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f.seat(t, "alice", "bob")
	f.clock.Advance(3 * time.Second).MustWait(ctx)
	require.True(t, f.handRunning(t))

	_, err := f.act(ctx, f.toAct(t), models.Action{Type: models.ActionFold}, "")
	require.NoError(t, err)
	require.False(t, f.handRunning(t))

	f.clock.Advance(3 * time.Second).MustWait(ctx)
	f.inspect(t, func(tb *Table) {
		assert.Equal(t, 2, tb.model.HandNumber)
		assert.Equal(t, 1, tb.model.Button, "button moves each hand")
	})
}

// TestTable_ChipConservation plays many hands with random legal actions and
// checks the table total after every settlement.
func TestTable_ChipConservation(t *testing.T) {
	f := newTableFixture(t, testConfig())
	ctx := context.Background()
	f.seat(t, "a", "b", "c", "d", "e")
	const total = 5000
	rng := seededRand(11)

	for hand := 0; hand < 60; hand++ {
		if err := f.table.StartHand(ctx); err != nil {
			reason, _ := ReasonOf(err)
			require.Equal(t, models.ReasonNotEnoughPlayers, reason)
			break
		}
		for steps := 0; f.handRunning(t); steps++ {
			require.Less(t, steps, 200)
			seat := f.toAct(t)
			view, err := f.table.Snapshot(ctx, seat)
			require.NoError(t, err)
			require.NotNil(t, view.Legal)

			legal := view.Legal
			action := models.Action{Type: legal.Actions[rng.Intn(len(legal.Actions))]}
			if action.Type == models.ActionBet || action.Type == models.ActionRaise {
				action.Amount = legal.MinRaiseTo + rng.Intn(legal.MaxRaiseTo-legal.MinRaiseTo+1)
			}
			res, err := f.act(ctx, seat, action, "")
			require.NoError(t, err)
			require.True(t, res.Accepted, "%+v rejected: %s", action, res.Reason)
		}

		f.inspect(t, func(tb *Table) {
			require.Empty(t, tb.model.FreezeReason)
			sum := 0
			for _, s := range tb.model.Seats {
				sum += s.Stack
			}
			for _, c := range f.cashOuts {
				sum += c.amount
			}
			require.Equal(t, total, sum, "hand %d", hand+1)
		})
	}
	assert.NotEmpty(t, f.settledHands())
}
