package engine

import "holdem-engine/models"

type BettingValidator struct {
	currentBet int
	minRaise   int
	bigBlind   int
}

func NewBettingValidator(currentBet, minRaise, bigBlind int) *BettingValidator {
	return &BettingValidator{
		currentBet: currentBet,
		minRaise:   minRaise,
		bigBlind:   bigBlind,
	}
}

// legalSet derives what a seat may do. Raising is closed to a seat that has
// already acted since the last full raise, and to a seat with nobody left to
// respond.
func (bv *BettingValidator) legalSet(seat *models.Seat, othersCanAct bool) models.LegalSet {
	toCall := bv.currentBet - seat.StreetBet
	if toCall < 0 {
		toCall = 0
	}
	maxTo := seat.StreetBet + seat.Stack
	canRaise := !seat.HasActed && othersCanAct && maxTo > bv.currentBet

	legal := models.LegalSet{
		Actions:    []models.ActionType{models.ActionFold},
		ToCall:     min(toCall, seat.Stack),
		MaxRaiseTo: maxTo,
	}
	if toCall == 0 {
		legal.Actions = append(legal.Actions, models.ActionCheck)
	} else {
		legal.Actions = append(legal.Actions, models.ActionCall)
	}

	if canRaise {
		if bv.currentBet == 0 {
			legal.Actions = append(legal.Actions, models.ActionBet)
			legal.MinRaiseTo = min(bv.bigBlind, maxTo)
		} else {
			legal.Actions = append(legal.Actions, models.ActionRaise)
			legal.MinRaiseTo = min(bv.minTotalBet(), maxTo)
		}
	}
	if seat.Stack > 0 && (canRaise || maxTo <= bv.currentBet) {
		legal.Actions = append(legal.Actions, models.ActionAllIn)
	}
	if !canRaise {
		legal.MaxRaiseTo = 0
	}
	return legal
}

// validate checks an action against the legal set, in the order type then
// amount.
func (bv *BettingValidator) validate(seat *models.Seat, action models.Action, legal models.LegalSet) error {
	if !action.Type.Valid() {
		return reject(models.ReasonInvalidActionType, "unknown action %q", action.Type)
	}
	allowed := false
	for _, a := range legal.Actions {
		if a == action.Type {
			allowed = true
			break
		}
	}
	if !allowed {
		return reject(models.ReasonInvalidActionType, "%s not allowed (to call %d)", action.Type, legal.ToCall)
	}

	if action.Type == models.ActionBet || action.Type == models.ActionRaise {
		maxTo := seat.StreetBet + seat.Stack
		if action.Amount > maxTo {
			return reject(models.ReasonInsufficientFunds, "%s to %d exceeds stack (max %d)", action.Type, action.Amount, maxTo)
		}
		if action.Amount < legal.MinRaiseTo {
			return reject(models.ReasonInvalidAmount, "%s to %d below minimum %d", action.Type, action.Amount, legal.MinRaiseTo)
		}
	}
	return nil
}

func (bv *BettingValidator) minTotalBet() int {
	return bv.currentBet + bv.minRaise
}

// isFullRaise reports whether raising the street bet to total reopens the
// betting.
func (bv *BettingValidator) isFullRaise(total int) bool {
	if bv.currentBet == 0 {
		return total >= bv.bigBlind
	}
	return total >= bv.minTotalBet()
}
