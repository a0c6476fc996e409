package engine

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"holdem-engine/models"
)

// seatActions applies validated decisions to a seat and the hand's betting
// state.
type seatActions struct {
	game      *Game
	validator *BettingValidator
}

func newSeatActions(g *Game, validator *BettingValidator) *seatActions {
	return &seatActions{game: g, validator: validator}
}

func (sa *seatActions) processFold(seat *models.Seat) {
	seat.Status = models.SeatFolded
	seat.LastAction = models.ActionFold
	seat.LastActionAmount = 0
}

func (sa *seatActions) processCheck(seat *models.Seat) {
	seat.LastAction = models.ActionCheck
	seat.LastActionAmount = 0
}

func (sa *seatActions) processCall(seat *models.Seat) {
	callAmount := sa.game.hand.CurrentBet - seat.StreetBet
	if callAmount >= seat.Stack {
		sa.processAllIn(seat)
		return
	}
	seat.Commit(callAmount)
	seat.LastAction = models.ActionCall
	seat.LastActionAmount = callAmount
}

// processRaise raises the seat's street commitment to total.
func (sa *seatActions) processRaise(seat *models.Seat, action models.ActionType, total int) {
	amountToAdd := total - seat.StreetBet
	if amountToAdd >= seat.Stack {
		sa.processAllIn(seat)
		return
	}

	h := sa.game.hand
	seat.Commit(amountToAdd)
	seat.LastAction = action
	seat.LastActionAmount = amountToAdd

	h.MinRaise = max(seat.StreetBet-h.CurrentBet, sa.validator.bigBlind)
	h.CurrentBet = seat.StreetBet
	reopenBetting(sa.game.table.Seats, seat)
}

// processAllIn commits the whole stack. Only an all-in that is a full raise
// reopens the betting; a short one just lifts the bet to call.
func (sa *seatActions) processAllIn(seat *models.Seat) {
	h := sa.game.hand
	amount := seat.Commit(seat.Stack)
	seat.LastAction = models.ActionAllIn
	seat.LastActionAmount = amount

	if seat.StreetBet <= h.CurrentBet {
		return
	}
	if sa.validator.isFullRaise(seat.StreetBet) {
		h.MinRaise = max(seat.StreetBet-h.CurrentBet, sa.validator.bigBlind)
		reopenBetting(sa.game.table.Seats, seat)
	}
	h.CurrentBet = seat.StreetBet
}

// ActionProcessor runs a submitted decision through the idempotency ledger
// and the hand state machine. It is called from inside a table's serializer.
type ActionProcessor struct {
	ledger IdempotencyLedger
	logger zerolog.Logger
}

func NewActionProcessor(ledger IdempotencyLedger, logger zerolog.Logger) *ActionProcessor {
	return &ActionProcessor{ledger: ledger, logger: logger}
}

// Process returns the recorded result for a repeated request id, otherwise
// validates and applies the action and records the outcome. seat is the
// player's seat resolved in the same serializer job, or -1.
func (ap *ActionProcessor) Process(ctx context.Context, t *Table, playerID string, seat int, action models.Action, requestID string) models.ActionResult {
	key := LedgerKey{TableID: t.model.ID, PlayerID: playerID, RequestID: requestID}
	if requestID != "" && ap.ledger != nil {
		prior, ok, err := ap.ledger.Lookup(ctx, key)
		if err != nil {
			ap.logger.Warn().Err(err).Str("table_id", key.TableID).Str("player_id", playerID).Str("request_id", requestID).
				Msg("idempotency lookup failed, processing request")
		} else if ok {
			ap.logger.Debug().Str("table_id", key.TableID).Str("player_id", playerID).Str("request_id", requestID).
				Msg("duplicate request replayed")
			return prior
		}
	}

	var result models.ActionResult
	if seat < 0 {
		result = ap.rejected(t, reject(models.ReasonNotSeated, "%s is not seated", playerID))
	} else {
		result = ap.admit(t, seat, action, false)
	}

	if requestID != "" && ap.ledger != nil {
		if err := ap.ledger.Store(ctx, key, result); err != nil {
			ap.logger.Warn().Err(err).Str("table_id", key.TableID).Str("request_id", requestID).
				Msg("failed to record request outcome")
		}
	}
	return result
}

// Force applies the check or fold of an expired turn. It carries no request
// id and bypasses the ledger.
func (ap *ActionProcessor) Force(t *Table, seat int, action models.Action) models.ActionResult {
	return ap.admit(t, seat, action, true)
}

func (ap *ActionProcessor) admit(t *Table, seat int, action models.Action, system bool) models.ActionResult {
	if err := NewTurnValidator(t.model, t.game.Hand()).ValidateTurn(seat); err != nil {
		return ap.rejected(t, err)
	}

	err := t.game.ProcessAction(seat, action, system)
	if err != nil {
		if _, ok := ReasonOf(err); ok {
			return ap.rejected(t, err)
		}
		t.freeze(err)
		return models.ActionResult{Reason: models.ReasonTableFrozen, StateVersion: t.model.StateVersion}
	}

	t.commit(models.EventPlayerAction)
	if t.model.FreezeReason != "" {
		return models.ActionResult{Reason: models.ReasonTableFrozen, StateVersion: t.model.StateVersion}
	}
	return models.ActionResult{Accepted: true, StateVersion: t.model.StateVersion}
}

func (ap *ActionProcessor) rejected(t *Table, err error) models.ActionResult {
	reason, _ := ReasonOf(err)
	var rej *Rejection
	if errors.As(err, &rej) {
		ap.logger.Debug().Str("table_id", t.model.ID).Str("reason", string(reason)).Msg(rej.Detail)
	}
	return models.ActionResult{Reason: reason, StateVersion: t.model.StateVersion}
}
