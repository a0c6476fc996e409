package models

import "time"

type SeatStatus string

const (
	SeatEmpty        SeatStatus = "empty"
	SeatActive       SeatStatus = "active"
	SeatSittingOut   SeatStatus = "sitting_out"
	SeatFolded       SeatStatus = "folded"
	SeatAllIn        SeatStatus = "all_in"
	SeatDisconnected SeatStatus = "disconnected"
)

type ActionType string

const (
	ActionFold  ActionType = "fold"
	ActionCheck ActionType = "check"
	ActionCall  ActionType = "call"
	ActionBet   ActionType = "bet"
	ActionRaise ActionType = "raise"
	ActionAllIn ActionType = "all_in"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionFold, ActionCheck, ActionCall, ActionBet, ActionRaise, ActionAllIn:
		return true
	}
	return false
}

// Action is a decision submitted by a seat. Amount is the seat's total street
// commitment after a bet or raise and is ignored for the other types.
type Action struct {
	Type   ActionType `json:"type"`
	Amount int        `json:"amount,omitempty"`
}

type Seat struct {
	Index      int        `json:"index"`
	PlayerID   string     `json:"playerId,omitempty"`
	PlayerName string     `json:"playerName,omitempty"`
	Stack      int        `json:"stack"`
	Status     SeatStatus `json:"status"`
	HoleCards  []Card     `json:"holeCards,omitempty"`

	StreetBet        int        `json:"streetBet"`
	HandContribution int        `json:"handContribution"`
	HasActed         bool       `json:"-"`
	InHand           bool       `json:"inHand"`
	LastAction       ActionType `json:"lastAction,omitempty"`
	LastActionAmount int        `json:"lastActionAmount,omitempty"`

	TimeBank            time.Duration `json:"timeBank"`
	ConsecutiveTimeouts int           `json:"-"`
	Disconnected        bool          `json:"disconnected"`
	ForcedBlind         bool          `json:"-"` // sitting-out seat activated to post the big blind
	LeaveAfterHand      bool          `json:"-"`
	SitOutAfterHand     bool          `json:"-"`
}

func NewEmptySeat(index int) *Seat {
	return &Seat{Index: index, Status: SeatEmpty}
}

func (s *Seat) IsEmpty() bool {
	return s == nil || s.PlayerID == ""
}

// Occupy seats a player with the given stack.
func (s *Seat) Occupy(playerID, playerName string, stack int, timeBank time.Duration) {
	s.PlayerID = playerID
	s.PlayerName = playerName
	s.Stack = stack
	s.Status = SeatActive
	s.TimeBank = timeBank
	s.ConsecutiveTimeouts = 0
	s.Disconnected = false
	s.LeaveAfterHand = false
	s.SitOutAfterHand = false
	s.ResetForHand()
}

// Vacate clears the seat and returns the stack it held.
func (s *Seat) Vacate() int {
	stack := s.Stack
	*s = Seat{Index: s.Index, Status: SeatEmpty}
	return stack
}

func (s *Seat) ResetForHand() {
	s.HoleCards = nil
	s.StreetBet = 0
	s.HandContribution = 0
	s.HasActed = false
	s.InHand = false
	s.LastAction = ""
	s.LastActionAmount = 0
	s.ForcedBlind = false
}

// Commit moves chips from the stack into the current street. Committing the
// whole stack puts the seat all-in.
func (s *Seat) Commit(amount int) int {
	if amount >= s.Stack {
		amount = s.Stack
		s.Status = SeatAllIn
	}
	s.Stack -= amount
	s.StreetBet += amount
	s.HandContribution += amount
	return amount
}

// CanAct reports whether the seat still has decisions to make this hand.
func (s *Seat) CanAct() bool {
	return s.InHand && s.Status == SeatActive && s.Stack > 0
}

// Contesting reports whether the seat can still win a pot this hand.
func (s *Seat) Contesting() bool {
	return s.InHand && (s.Status == SeatActive || s.Status == SeatAllIn)
}
