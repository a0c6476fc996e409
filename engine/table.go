package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"holdem-engine/models"
)

// Publisher receives every committed delta. It is called from the table
// serializer and must not block.
type Publisher interface {
	PublishDelta(delta models.TableDelta)
}

type TableOptions struct {
	Clock     quartz.Clock
	Logger    zerolog.Logger
	Ledger    IdempotencyLedger
	Publisher Publisher
	NewDeck   func() *models.Deck
	NewHandID func() string

	// OnSettled and OnCashOut are called from the serializer and must hand
	// their work off without blocking.
	OnSettled func(models.HandSettled)
	OnCashOut func(playerID string, amount int)
}

// Table is one running table. All state lives behind its serializer; the
// exported methods queue a job and wait for it.
type Table struct {
	model      *models.Table
	game       *Game
	serializer *Serializer
	timer      *TurnTimer
	processor  *ActionProcessor

	clock     quartz.Clock
	logger    zerolog.Logger
	publisher Publisher
	newHandID func() string
	onSettled func(models.HandSettled)
	onCashOut func(playerID string, amount int)

	chipTotal  int
	handOpen   bool
	nextHand   *quartz.Timer
	lastActive time.Time
}

// ValidateConfig fills defaults and rejects unusable table configurations.
func ValidateConfig(cfg models.TableConfig) (models.TableConfig, error) {
	if cfg.MaxSeats == 0 {
		cfg.MaxSeats = 9
	}
	if cfg.MaxSeats < 2 || cfg.MaxSeats > 10 {
		return cfg, fmt.Errorf("max seats must be between 2 and 10, got %d", cfg.MaxSeats)
	}
	if cfg.BigBlind <= 0 || cfg.SmallBlind <= 0 || cfg.SmallBlind > cfg.BigBlind {
		return cfg, fmt.Errorf("invalid blinds %d/%d", cfg.SmallBlind, cfg.BigBlind)
	}
	if cfg.Ante < 0 {
		return cfg, fmt.Errorf("invalid ante %d", cfg.Ante)
	}
	if cfg.MinBuyIn == 0 {
		cfg.MinBuyIn = 20 * cfg.BigBlind
	}
	if cfg.MaxBuyIn == 0 {
		cfg.MaxBuyIn = 100 * cfg.BigBlind
	}
	if cfg.MinBuyIn < 0 || cfg.MaxBuyIn < cfg.MinBuyIn {
		return cfg, fmt.Errorf("invalid buy-in range %d-%d", cfg.MinBuyIn, cfg.MaxBuyIn)
	}
	if cfg.TurnTimeout < 0 || cfg.TimeBank < 0 || cfg.NextHandDelay < 0 {
		return cfg, errors.New("durations must not be negative")
	}
	return cfg, nil
}

func NewTable(id, name string, cfg models.TableConfig, opts TableOptions) (*Table, error) {
	cfg, err := ValidateConfig(cfg)
	if err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.NewHandID == nil {
		opts.NewHandID = uuid.NewString
	}

	model := &models.Table{
		ID:        id,
		Name:      name,
		Config:    cfg,
		Seats:     make([]*models.Seat, cfg.MaxSeats),
		Button:    -1,
		Status:    models.StatusWaiting,
		CreatedAt: opts.Clock.Now(),
	}
	for i := range model.Seats {
		model.Seats[i] = models.NewEmptySeat(i)
	}

	logger := opts.Logger.With().Str("table_id", id).Logger()
	t := &Table{
		model:      model,
		clock:      opts.Clock,
		logger:     logger,
		publisher:  opts.Publisher,
		newHandID:  opts.NewHandID,
		onSettled:  opts.OnSettled,
		onCashOut:  opts.OnCashOut,
		lastActive: model.CreatedAt,
	}
	t.game = NewGame(model, opts.NewDeck, func() time.Time { return t.clock.Now() })
	t.processor = NewActionProcessor(opts.Ledger, logger)
	t.timer = NewTurnTimer(opts.Clock, t.onTimerExpired)
	t.serializer = NewSerializer(logger, func(r interface{}) {
		t.freeze(fmt.Errorf("panic while applying mutation: %v", r))
	})
	return t, nil
}

func (t *Table) ID() string {
	return t.model.ID
}

func (t *Table) Name() string {
	return t.model.Name
}

// Config is fixed at creation and safe to read without the serializer.
func (t *Table) Config() models.TableConfig {
	return t.model.Config
}

func (t *Table) do(ctx context.Context, fn func()) error {
	return t.serializer.Do(ctx, fn)
}

// Submit runs a player's decision through the action processor. The seat is
// resolved in the same job, so the action can only land on the seat the
// player holds when it is applied.
func (t *Table) Submit(ctx context.Context, playerID string, action models.Action, requestID string) (models.ActionResult, error) {
	var result models.ActionResult
	err := t.do(ctx, func() {
		result = t.processor.Process(ctx, t, playerID, t.seatIndex(playerID), action, requestID)
	})
	return result, err
}

// StartHand deals a new hand. Of several concurrent calls exactly one
// succeeds; the others are rejected with hand-in-progress.
func (t *Table) StartHand(ctx context.Context) error {
	var err error
	if doErr := t.do(ctx, func() { err = t.startHand() }); doErr != nil {
		return doErr
	}
	return err
}

// StartHandBy deals a new hand on behalf of a seated player.
func (t *Table) StartHandBy(ctx context.Context, playerID string) error {
	var err error
	doErr := t.do(ctx, func() {
		if t.seatIndex(playerID) < 0 {
			err = reject(models.ReasonNotSeated, "%s is not seated", playerID)
			return
		}
		err = t.startHand()
	})
	if doErr != nil {
		return doErr
	}
	return err
}

func (t *Table) startHand() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if t.nextHand != nil {
		t.nextHand.Stop()
		t.nextHand = nil
	}

	err := t.game.StartNewHand(t.newHandID())
	if err != nil {
		if _, ok := ReasonOf(err); ok {
			return err
		}
		t.freeze(err)
		return reject(models.ReasonTableFrozen, "%v", err)
	}

	t.handOpen = true
	t.logger.Info().Int("hand", t.model.HandNumber).Int("button", t.model.Button).Msg("hand started")
	t.commit(models.EventHandStarted)
	return nil
}

func (t *Table) checkOpen() error {
	if t.model.FreezeReason != "" {
		return reject(models.ReasonTableFrozen, "%s", t.model.FreezeReason)
	}
	if t.model.Status == models.StatusPaused {
		return reject(models.ReasonTablePaused, "table is paused")
	}
	return nil
}

// SeatPlayer sits a player with a stack of buyIn. seat -1 picks the first
// free seat. The buy-in must already have been taken from the player's wallet.
func (t *Table) SeatPlayer(ctx context.Context, playerID, playerName string, seat, buyIn int) (int, error) {
	var err error
	if doErr := t.do(ctx, func() { seat, err = t.seatPlayer(playerID, playerName, seat, buyIn, true) }); doErr != nil {
		return -1, doErr
	}
	return seat, err
}

// RestoreProgress carries a table recreated after a restart past the state
// version, hand number and button it had reached, so no client sees the
// version go backwards. It is applied before any seat is restored and
// publishes one delta past the checkpointed version.
func (t *Table) RestoreProgress(ctx context.Context, stateVersion uint64, handNumber, button int) error {
	var err error
	doErr := t.do(ctx, func() {
		if t.game.InProgress() || t.model.SeatedCount() > 0 {
			err = reject(models.ReasonHandInProgress, "table already has players")
			return
		}
		t.model.StateVersion = max(t.model.StateVersion, stateVersion)
		t.model.HandNumber = max(t.model.HandNumber, handNumber)
		if button >= -1 && button < len(t.model.Seats) {
			t.model.Button = button
		}
		t.game.note(models.HandEvent{Type: models.EventTableRestored, Seat: -1})
		t.commit(models.EventTableRestored)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// RestoreSeat puts a player back with the stack recorded before a restart.
// Buy-in bounds do not apply.
func (t *Table) RestoreSeat(ctx context.Context, playerID, playerName string, seat, stack int) error {
	var err error
	if doErr := t.do(ctx, func() { _, err = t.seatPlayer(playerID, playerName, seat, stack, false) }); doErr != nil {
		return doErr
	}
	return err
}

func (t *Table) seatPlayer(playerID, playerName string, seat, buyIn int, checkBuyIn bool) (int, error) {
	cfg := t.model.Config
	if t.model.FreezeReason != "" {
		return -1, reject(models.ReasonTableFrozen, "%s", t.model.FreezeReason)
	}
	if existing := findSeatByPlayer(t.model.Seats, playerID); existing != nil {
		return -1, reject(models.ReasonAlreadySeated, "%s already at seat %d", playerID, existing.Index)
	}
	if buyIn <= 0 || (checkBuyIn && (buyIn < cfg.MinBuyIn || buyIn > cfg.MaxBuyIn)) {
		return -1, reject(models.ReasonInvalidBuyIn, "buy-in %d outside %d-%d", buyIn, cfg.MinBuyIn, cfg.MaxBuyIn)
	}

	if seat == -1 {
		for _, s := range t.model.Seats {
			if s.IsEmpty() {
				seat = s.Index
				break
			}
		}
		if seat == -1 {
			return -1, reject(models.ReasonTableFull, "all %d seats taken", cfg.MaxSeats)
		}
	}
	if seat < 0 || seat >= len(t.model.Seats) {
		return -1, reject(models.ReasonInvalidSeat, "seat %d out of range", seat)
	}
	s := t.model.Seats[seat]
	if !s.IsEmpty() {
		return -1, reject(models.ReasonSeatTaken, "seat %d taken", seat)
	}

	s.Occupy(playerID, playerName, buyIn, cfg.TimeBank)
	t.chipTotal += buyIn
	t.game.note(models.HandEvent{Type: models.EventPlayerSeated, Seat: seat, PlayerID: playerID, Amount: buyIn})
	t.commit(models.EventPlayerSeated)
	return seat, nil
}

// LeaveResult tells the caller where the player sat and whether the stand-up
// waits for the current hand to finish. The stack is always cashed out
// through OnCashOut.
type LeaveResult struct {
	Seat     int
	CashOut  int
	Deferred bool
}

// Leave stands a player up. A player in the current hand is folded at once
// and stood up when the hand settles.
func (t *Table) Leave(ctx context.Context, playerID string) (LeaveResult, error) {
	var (
		res LeaveResult
		err error
	)
	if doErr := t.do(ctx, func() { res, err = t.leave(playerID) }); doErr != nil {
		return res, doErr
	}
	return res, err
}

func (t *Table) leave(playerID string) (LeaveResult, error) {
	s := findSeatByPlayer(t.model.Seats, playerID)
	if s == nil {
		return LeaveResult{Seat: -1}, reject(models.ReasonNotSeated, "%s is not seated", playerID)
	}
	res := LeaveResult{Seat: s.Index}

	if t.game.InProgress() && s.InHand {
		s.LeaveAfterHand = true
		if t.model.FreezeReason == "" {
			if err := t.game.FoldOutOfTurn(s.Index); err != nil {
				t.freeze(err)
				res.Deferred = true
				return res, nil
			}
		}
		res.Deferred = t.game.InProgress()
		if !res.Deferred {
			res.CashOut = s.Stack
		}
		t.commit(models.EventPlayerLeft)
		return res, nil
	}

	res.CashOut = s.Stack
	t.standUp(s, models.EventPlayerLeft)
	t.commit(models.EventPlayerLeft)
	return res, nil
}

// standUp vacates the seat and cashes out whatever it held.
func (t *Table) standUp(s *models.Seat, reason models.EventType) {
	playerID := s.PlayerID
	stack := s.Vacate()
	t.chipTotal -= stack
	t.game.note(models.HandEvent{Type: reason, Seat: s.Index, PlayerID: playerID, Amount: stack})
	if t.onCashOut != nil && stack > 0 {
		t.onCashOut(playerID, stack)
	}
}

func (t *Table) SitOut(ctx context.Context, playerID string) error {
	return t.seatCommand(ctx, playerID, func(s *models.Seat) error {
		if s.Status == models.SeatSittingOut {
			return nil
		}
		if t.game.InProgress() && s.InHand {
			s.SitOutAfterHand = true
		} else {
			s.Status = models.SeatSittingOut
		}
		t.game.note(models.HandEvent{Type: models.EventSatOut, Seat: s.Index, PlayerID: s.PlayerID})
		t.commit(models.EventSatOut)
		return nil
	})
}

func (t *Table) SitIn(ctx context.Context, playerID string) error {
	return t.seatCommand(ctx, playerID, func(s *models.Seat) error {
		if s.Stack == 0 {
			return reject(models.ReasonInvalidBuyIn, "seat %d has no chips", s.Index)
		}
		if s.Status != models.SeatSittingOut && !s.SitOutAfterHand {
			return nil
		}
		s.SitOutAfterHand = false
		s.ConsecutiveTimeouts = 0
		if s.Status == models.SeatSittingOut {
			s.Status = models.SeatActive
		}
		t.game.note(models.HandEvent{Type: models.EventSatIn, Seat: s.Index, PlayerID: s.PlayerID})
		t.commit(models.EventSatIn)
		return nil
	})
}

// AddChips tops up a stack between hands. The chips must already have been
// taken from the player's wallet.
func (t *Table) AddChips(ctx context.Context, playerID string, amount int) error {
	return t.seatCommand(ctx, playerID, func(s *models.Seat) error {
		if t.game.InProgress() && s.InHand {
			return reject(models.ReasonHandInProgress, "cannot add chips during a hand")
		}
		if amount <= 0 || s.Stack+amount > t.model.Config.MaxBuyIn {
			return reject(models.ReasonInvalidBuyIn, "stack %d + %d exceeds max buy-in %d", s.Stack, amount, t.model.Config.MaxBuyIn)
		}
		s.Stack += amount
		t.chipTotal += amount
		t.game.note(models.HandEvent{Type: models.EventChipsAdded, Seat: s.Index, PlayerID: s.PlayerID, Amount: amount})
		t.commit(models.EventChipsAdded)
		return nil
	})
}

// SetConnected records a player's connection state. A seat that drops during
// a hand keeps playing on its timer; between hands it is not dealt in.
func (t *Table) SetConnected(ctx context.Context, playerID string, connected bool) error {
	return t.seatCommand(ctx, playerID, func(s *models.Seat) error {
		if s.Disconnected == !connected {
			return nil
		}
		s.Disconnected = !connected
		switch {
		case connected && s.Status == models.SeatDisconnected:
			s.Status = models.SeatActive
		case !connected && !s.InHand && s.Status == models.SeatActive:
			s.Status = models.SeatDisconnected
		}
		t.game.note(models.HandEvent{Type: models.EventConnection, Seat: s.Index, PlayerID: s.PlayerID, System: !connected})
		t.commit(models.EventConnection)
		return nil
	})
}

func (t *Table) seatCommand(ctx context.Context, playerID string, fn func(s *models.Seat) error) error {
	var err error
	doErr := t.do(ctx, func() {
		s := findSeatByPlayer(t.model.Seats, playerID)
		if s == nil {
			err = reject(models.ReasonNotSeated, "%s is not seated", playerID)
			return
		}
		err = fn(s)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// UseTimeBank extends the player's current decision by up to requested,
// drawing on the seat's pool. Zero requests the whole pool.
func (t *Table) UseTimeBank(ctx context.Context, playerID string, requested time.Duration) (time.Duration, error) {
	var (
		granted time.Duration
		err     error
	)
	doErr := t.do(ctx, func() {
		s := findSeatByPlayer(t.model.Seats, playerID)
		if s == nil {
			err = reject(models.ReasonNotSeated, "%s is not seated", playerID)
			return
		}
		granted, err = t.useTimeBank(s.Index, requested)
	})
	if doErr != nil {
		return 0, doErr
	}
	return granted, err
}

func (t *Table) useTimeBank(seat int, requested time.Duration) (time.Duration, error) {
	if requested < 0 {
		return 0, reject(models.ReasonInvalidAmount, "time bank request %s is negative", requested)
	}
	h := t.game.Hand()
	if err := NewTurnValidator(t.model, h).ValidateTurn(seat); err != nil {
		return 0, err
	}
	s := t.model.Seats[seat]
	if h.TimeBankUsed || s.TimeBank <= 0 {
		return 0, reject(models.ReasonTimeBankUnavailable, "time bank already used or empty")
	}
	extra := s.TimeBank
	if requested > 0 && requested < extra {
		extra = requested
	}
	deadline, ok := t.timer.Extend(h.DecisionID, extra)
	if !ok {
		return 0, reject(models.ReasonTimeBankUnavailable, "decision has no running timer")
	}

	s.TimeBank -= extra
	h.TimeBankUsed = true
	h.Deadline = deadline
	t.game.emit(models.HandEvent{
		Type:     models.EventTimeBankUsed,
		Seat:     seat,
		PlayerID: s.PlayerID,
		Amount:   int(extra / time.Millisecond),
		Phase:    h.Phase,
	})
	t.commit(models.EventTimeBankUsed)
	return extra, nil
}

func (t *Table) onTimerExpired(decision, generation uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := t.do(ctx, func() { t.expire(decision, generation) }); err != nil && !errors.Is(err, ErrTableClosed) {
		t.logger.Error().Err(err).Uint64("decision", decision).Msg("failed to apply turn timeout")
	}
}

// expire handles a fired deadline. A callback that lost the race against an
// action or a time bank extension is left alone.
func (t *Table) expire(decision, generation uint64) {
	h := t.game.Hand()
	if !t.timer.Current(decision, generation) || !t.game.InProgress() || !h.Phase.Betting() ||
		h.DecisionID != decision || t.model.Status == models.StatusPaused {
		t.logger.Debug().Uint64("decision", decision).Uint64("generation", generation).Msg("stale turn timeout ignored")
		return
	}
	t.timeOut()
}

// timeOut checks for the seat holding the turn when it may, else folds it.
func (t *Table) timeOut() {
	seat := t.game.Hand().ToAct
	action := models.Action{Type: models.ActionFold}
	for _, a := range t.game.LegalActions(seat).Actions {
		if a == models.ActionCheck {
			action.Type = models.ActionCheck
		}
	}
	t.logger.Info().Int("seat", seat).Str("action", string(action.Type)).Msg("turn timed out")

	if res := t.processor.Force(t, seat, action); !res.Accepted && res.Reason != models.ReasonTableFrozen {
		t.logger.Warn().Int("seat", seat).Str("reason", string(res.Reason)).Msg("forced action rejected")
	}
}

// Pause stops the table from dealing and from accepting decisions.
func (t *Table) Pause(ctx context.Context) error {
	var err error
	doErr := t.do(ctx, func() {
		if err = t.checkOpen(); err != nil {
			return
		}
		t.stopClocks()
		t.model.Status = models.StatusPaused
		t.game.note(models.HandEvent{Type: models.EventTablePaused, Seat: -1})
		t.commit(models.EventTablePaused)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

func (t *Table) Resume(ctx context.Context) error {
	var err error
	doErr := t.do(ctx, func() {
		if t.model.FreezeReason != "" {
			err = reject(models.ReasonTableFrozen, "%s", t.model.FreezeReason)
			return
		}
		if t.model.Status != models.StatusPaused {
			return
		}
		t.model.Status = t.runningStatus()
		t.game.note(models.HandEvent{Type: models.EventTableResumed, Seat: -1})
		t.commit(models.EventTableResumed)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Unfreeze clears a freeze after an operator reconciled the table. The hand
// in progress is voided and its contributions refunded.
func (t *Table) Unfreeze(ctx context.Context) error {
	return t.do(ctx, func() {
		if t.model.FreezeReason == "" {
			return
		}
		t.logger.Warn().Str("reason", t.model.FreezeReason).Msg("unfreezing table")
		t.game.VoidHand()
		t.handOpen = false
		t.model.FreezeReason = ""
		t.chipTotal = chipsOnTable(t.model.Seats)
		t.model.Status = t.runningStatus()
		t.game.note(models.HandEvent{Type: models.EventTableUnfrozen, Seat: -1})
		t.commit(models.EventTableUnfrozen)
	})
}

func (t *Table) runningStatus() models.TableStatus {
	if t.game.InProgress() {
		return models.StatusPlaying
	}
	if countSeats(t.model.Seats, isDealable) < 2 || t.model.HandNumber == 0 {
		return models.StatusWaiting
	}
	return models.StatusBetweenHands
}

func (t *Table) stopClocks() {
	t.timer.Stop()
	if t.nextHand != nil {
		t.nextHand.Stop()
		t.nextHand = nil
	}
}

// freeze stops all play after an invariant violation. Nothing is admitted
// until Unfreeze.
func (t *Table) freeze(cause error) {
	t.stopClocks()
	t.model.Status = models.StatusPaused
	t.model.FreezeReason = cause.Error()
	t.logger.Error().Err(cause).Int("hand", t.model.HandNumber).Uint64("state_version", t.model.StateVersion).
		Msg("table frozen")
	t.game.note(models.HandEvent{Type: models.EventTableFrozen, Seat: -1})
	t.publish(models.EventTableFrozen)
}

// checkInvariants verifies chip conservation and turn ownership after a
// mutation.
func (t *Table) checkInvariants() error {
	total := 0
	for _, s := range t.model.Seats {
		if s.IsEmpty() {
			continue
		}
		if s.Stack < 0 {
			return &InvariantError{Kind: "chips", Detail: fmt.Sprintf("seat %d has negative stack %d", s.Index, s.Stack)}
		}
		total += s.Stack
		if t.game.InProgress() {
			total += s.HandContribution
		}
	}
	if total != t.chipTotal {
		return &InvariantError{Kind: "chips", Detail: fmt.Sprintf("%d chips on table, expected %d", total, t.chipTotal)}
	}

	if h := t.game.Hand(); t.game.InProgress() && h.Phase.Betting() {
		if h.ToAct < 0 || h.ToAct >= len(t.model.Seats) || !t.game.needsAction(t.model.Seats[h.ToAct]) {
			return &InvariantError{Kind: "turn", Detail: fmt.Sprintf("seat %d holds the turn but cannot act", h.ToAct)}
		}
	}
	return nil
}

// commit closes a mutation: invariants are checked, hand-end bookkeeping and
// timers are applied, and one versioned delta is published.
func (t *Table) commit(eventType models.EventType) {
	if t.model.FreezeReason != "" {
		t.publish(eventType)
		return
	}
	if err := t.checkInvariants(); err != nil {
		t.freeze(err)
		return
	}

	if t.handOpen && !t.game.InProgress() {
		t.finishHand()
	}
	if h := t.game.Hand(); t.game.InProgress() && h.Phase.Betting() && t.model.Status != models.StatusPaused {
		if !t.timer.Armed() || t.timer.Decision() != h.DecisionID {
			h.Deadline = t.timer.Arm(h.DecisionID, t.model.Config.TurnTimeout)
		}
	}
	if !t.game.InProgress() && t.model.Status != models.StatusPaused {
		t.model.Status = t.runningStatus()
		t.scheduleNextHand()
	}
	t.publish(eventType)
}

func (t *Table) publish(eventType models.EventType) {
	t.model.StateVersion++
	t.lastActive = t.clock.Now()
	events := t.game.drain()
	if t.publisher == nil {
		return
	}

	delta := models.TableDelta{
		TableID:      t.model.ID,
		StateVersion: t.model.StateVersion,
		EventType:    eventType,
		Public: models.PublicPayload{
			Status:     t.model.Status,
			Phase:      t.phase(),
			HandNumber: t.model.HandNumber,
			ToAct:      -1,
			Events:     make([]models.HandEvent, 0, len(events)),
		},
	}
	if h := t.game.Hand(); h != nil {
		delta.Public.Pots = h.Pots
		if t.game.InProgress() {
			delta.Public.ToAct = h.ToAct
		}
	}
	for _, ev := range events {
		if ev.Type == models.EventHoleDealt {
			if delta.Private == nil {
				delta.Private = make(map[int]models.PrivatePayload)
			}
			delta.Private[ev.Seat] = models.PrivatePayload{HoleCards: ev.Cards}
			ev.Cards = nil
		}
		delta.Public.Events = append(delta.Public.Events, ev)
	}
	t.publisher.PublishDelta(delta)
}

func (t *Table) phase() models.Phase {
	if h := t.game.Hand(); h != nil {
		return h.Phase
	}
	return models.PhaseWaiting
}

// finishHand hands the settled hand to wallet and persistence and prepares
// the seats for the next deal.
func (t *Table) finishHand() {
	t.handOpen = false
	t.timer.Stop()
	h := t.game.Hand()
	cfg := t.model.Config

	settled := models.HandSettled{
		TableID:    t.model.ID,
		HandID:     h.ID,
		HandNumber: h.Number,
		Button:     h.Button,
		Community:  h.Community,
		Pots:       h.Pots,
		Winners:    t.game.Winners(),
		Payouts:    h.Payouts,
		Events:     append([]models.HandEvent(nil), h.Events...),
		StartedAt:  h.StartedAt,
		SettledAt:  t.clock.Now(),
	}
	seats := make([]int, 0, len(h.StartingStacks))
	for idx := range h.StartingStacks {
		seats = append(seats, idx)
	}
	sort.Ints(seats)
	for _, idx := range seats {
		s := t.model.Seats[idx]
		start := h.StartingStacks[idx]
		settled.Deltas = append(settled.Deltas, models.SeatDelta{
			Seat:          idx,
			PlayerID:      s.PlayerID,
			StartingStack: start,
			EndingStack:   s.Stack,
			Delta:         s.Stack - start,
		})
	}
	if t.onSettled != nil {
		t.onSettled(settled)
	}
	t.logger.Info().Int("hand", h.Number).Ints("winners", settled.Winners).Int("pot", TotalPots(h.Pots)).Msg("hand settled")

	replenish := cfg.TimeBankReplenishHands > 0 && h.Number%cfg.TimeBankReplenishHands == 0
	for _, s := range t.model.Seats {
		if s.IsEmpty() {
			continue
		}
		if s.Status == models.SeatFolded || s.Status == models.SeatAllIn {
			s.Status = models.SeatActive
		}
		if s.ForcedBlind {
			s.Status = models.SeatSittingOut
		}
		if replenish {
			s.TimeBank = min(s.TimeBank+cfg.TimeBankReplenish, cfg.TimeBank)
		}

		switch {
		case s.LeaveAfterHand:
			t.standUp(s, models.EventPlayerLeft)
			continue
		case s.Stack == 0:
			t.standUp(s, models.EventPlayerBusted)
			continue
		}

		if cfg.MaxConsecutiveTimeouts > 0 && s.ConsecutiveTimeouts >= cfg.MaxConsecutiveTimeouts {
			s.Status = models.SeatSittingOut
			s.ConsecutiveTimeouts = 0
			t.game.note(models.HandEvent{Type: models.EventSeatAutoSitOut, Seat: s.Index, PlayerID: s.PlayerID, System: true})
		}
		if s.SitOutAfterHand {
			s.SitOutAfterHand = false
			s.Status = models.SeatSittingOut
		}
		if s.Disconnected && s.Status == models.SeatActive {
			s.Status = models.SeatDisconnected
		}
		s.InHand = false
	}
}

func (t *Table) scheduleNextHand() {
	cfg := t.model.Config
	if !cfg.AutoStart || t.nextHand != nil || countSeats(t.model.Seats, isDealable) < 2 {
		return
	}
	t.nextHand = t.clock.AfterFunc(cfg.NextHandDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := t.do(ctx, func() {
			t.nextHand = nil
			if err := t.startHand(); err != nil {
				t.logger.Debug().Err(err).Msg("auto start skipped")
			}
		})
		if err != nil && !errors.Is(err, ErrTableClosed) {
			t.logger.Error().Err(err).Msg("auto start failed")
		}
	}, "table", "next-hand")
}

// Snapshot returns the full state as seen from viewer (-1 for spectators).
func (t *Table) Snapshot(ctx context.Context, viewer int) (models.TableView, error) {
	var view models.TableView
	err := t.do(ctx, func() { view = t.view(viewer) })
	return view, err
}

// SnapshotFor returns the state as playerID sees it from the seat they hold
// when the view is built, or as a spectator.
func (t *Table) SnapshotFor(ctx context.Context, playerID string) (models.TableView, error) {
	var view models.TableView
	err := t.do(ctx, func() { view = t.view(t.seatIndex(playerID)) })
	return view, err
}

// Recover answers a recovery request. A client already at the current
// version gets an up-to-date marker instead of a full state.
func (t *Table) Recover(ctx context.Context, viewer int, lastKnown uint64) (models.RecoverySnapshot, error) {
	return t.Subscribe(ctx, viewer, lastKnown, nil)
}

// RecoverFor is Recover for the seat playerID holds, resolved in the same
// job.
func (t *Table) RecoverFor(ctx context.Context, playerID string, lastKnown uint64) (models.RecoverySnapshot, error) {
	return t.SubscribeFor(ctx, playerID, lastKnown, nil)
}

// Subscribe runs register inside the serializer together with building the
// recovery answer, so the first delta the subscriber receives directly
// follows the returned version.
func (t *Table) Subscribe(ctx context.Context, viewer int, lastKnown uint64, register func(seat int)) (models.RecoverySnapshot, error) {
	return t.subscribe(ctx, func() int { return viewer }, lastKnown, register)
}

// SubscribeFor is Subscribe for the seat playerID holds. register receives
// that seat, or -1 when the player is not seated.
func (t *Table) SubscribeFor(ctx context.Context, playerID string, lastKnown uint64, register func(seat int)) (models.RecoverySnapshot, error) {
	return t.subscribe(ctx, func() int { return t.seatIndex(playerID) }, lastKnown, register)
}

func (t *Table) subscribe(ctx context.Context, viewerOf func() int, lastKnown uint64, register func(seat int)) (models.RecoverySnapshot, error) {
	var snap models.RecoverySnapshot
	err := t.do(ctx, func() {
		viewer := viewerOf()
		if register != nil {
			register(viewer)
		}
		snap.StateVersion = t.model.StateVersion
		if lastKnown == t.model.StateVersion {
			snap.UpToDate = true
			return
		}
		snap.State = t.view(viewer)
	})
	return snap, err
}

func (t *Table) seatIndex(playerID string) int {
	if s := findSeatByPlayer(t.model.Seats, playerID); s != nil {
		return s.Index
	}
	return -1
}

func (t *Table) Summary(ctx context.Context) (models.TableSummary, error) {
	var sum models.TableSummary
	err := t.do(ctx, func() {
		sum = models.TableSummary{
			TableID:      t.model.ID,
			Name:         t.model.Name,
			Config:       t.model.Config,
			Status:       t.model.Status,
			Seated:       t.model.SeatedCount(),
			HandNumber:   t.model.HandNumber,
			StateVersion: t.model.StateVersion,
			Frozen:       t.model.FreezeReason != "",
			LastActive:   t.lastActive,
		}
	})
	return sum, err
}

func (t *Table) view(viewer int) models.TableView {
	h := t.game.Hand()
	v := models.TableView{
		TableID:      t.model.ID,
		Name:         t.model.Name,
		Config:       t.model.Config,
		StateVersion: t.model.StateVersion,
		Status:       t.model.Status,
		FreezeReason: t.model.FreezeReason,
		Button:       t.model.Button,
		HandNumber:   t.model.HandNumber,
		Phase:        t.phase(),
		Community:    []models.Card{},
		Pots:         []models.Pot{},
		ToAct:        -1,
		Viewer:       viewer,
	}

	revealed := make(map[int]bool)
	if h != nil {
		v.Community = append(v.Community, h.Community...)
		v.Pots = append(v.Pots, h.Pots...)
		v.CurrentBet = h.CurrentBet
		v.MinRaise = h.MinRaise
		if t.game.InProgress() {
			v.ToAct = h.ToAct
		}
		for _, ev := range h.Events {
			if ev.Type == models.EventCardsRevealed {
				revealed[ev.Seat] = true
			}
		}
	}

	for _, s := range t.model.Seats {
		sv := models.SeatView{
			Index:            s.Index,
			PlayerID:         s.PlayerID,
			PlayerName:       s.PlayerName,
			Stack:            s.Stack,
			Status:           s.Status,
			InHand:           s.InHand,
			HasCards:         len(s.HoleCards) > 0 && s.InHand && s.Status != models.SeatFolded,
			StreetBet:        s.StreetBet,
			HandContribution: s.HandContribution,
			LastAction:       s.LastAction,
			LastActionAmount: s.LastActionAmount,
			TimeBank:         s.TimeBank,
			Disconnected:     s.Disconnected,
		}
		if s.IsEmpty() {
			sv.Status = models.SeatEmpty
		}
		if len(s.HoleCards) > 0 && (s.Index == viewer || revealed[s.Index]) {
			sv.HoleCards = append([]models.Card(nil), s.HoleCards...)
		}
		if v.ToAct == s.Index {
			sv.TurnRemaining = t.timer.Remaining()
		}
		v.Seats = append(v.Seats, sv)
	}

	if viewer >= 0 && viewer == v.ToAct && h != nil && h.Phase.Betting() && t.model.Status != models.StatusPaused {
		legal := t.game.LegalActions(viewer)
		v.Legal = &legal
	}
	return v
}

// Close stops the table's clocks and its serializer. Pending callers get
// ErrTableClosed.
func (t *Table) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = t.do(ctx, t.stopClocks)
	t.serializer.Close()
}
