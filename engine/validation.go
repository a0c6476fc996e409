package engine

import (
	"errors"
	"fmt"

	"holdem-engine/models"
)

var (
	ErrTableNotFound = errors.New("table not found")
	ErrTableClosed   = errors.New("table closed")
)

// Rejection is a recoverable refusal carrying a stable reason code. No state
// is mutated when a request is rejected.
type Rejection struct {
	Reason models.Reason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

func reject(reason models.Reason, format string, args ...interface{}) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf extracts the reason code from a rejection error.
func ReasonOf(err error) (models.Reason, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason, true
	}
	if errors.Is(err, ErrTableNotFound) {
		return models.ReasonTableNotFound, true
	}
	if errors.Is(err, ErrTableClosed) {
		return models.ReasonTableClosed, true
	}
	return "", false
}

// InvariantError reports an accounting or sequencing failure. A table that
// hits one is frozen until an operator reconciles it.
type InvariantError struct {
	Kind   string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation (%s): %s", e.Kind, e.Detail)
}

// TurnValidator checks that a seat may act on the current hand.
type TurnValidator struct {
	table *models.Table
	hand  *models.Hand
}

func NewTurnValidator(table *models.Table, hand *models.Hand) *TurnValidator {
	return &TurnValidator{table: table, hand: hand}
}

func (tv *TurnValidator) ValidateTurn(seat int) error {
	if tv.table.Status == models.StatusPaused {
		if tv.table.FreezeReason != "" {
			return reject(models.ReasonTableFrozen, "%s", tv.table.FreezeReason)
		}
		return reject(models.ReasonNoActiveHand, "table paused")
	}
	if tv.hand == nil || !tv.hand.Phase.Betting() {
		return reject(models.ReasonNoActiveHand, "no hand accepting actions")
	}
	if seat < 0 || seat >= len(tv.table.Seats) || tv.table.Seats[seat].IsEmpty() {
		return reject(models.ReasonNotSeated, "seat %d is not occupied", seat)
	}
	if tv.hand.ToAct != seat {
		return reject(models.ReasonNotYourTurn, "seat %d to act, got seat %d", tv.hand.ToAct, seat)
	}

	s := tv.table.Seats[seat]
	switch {
	case s.Status == models.SeatFolded:
		return reject(models.ReasonNotYourTurn, "seat %d folded", seat)
	case s.Status == models.SeatAllIn:
		return reject(models.ReasonNotYourTurn, "seat %d is all-in", seat)
	case !s.InHand:
		return reject(models.ReasonNotYourTurn, "seat %d is not in the hand", seat)
	}
	return nil
}
