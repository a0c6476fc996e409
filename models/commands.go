package models

import (
	"encoding/json"
	"time"
)

// Command is a newline-delimited request on the bot line protocol.
type Command struct {
	Command   string          `json:"command"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type Response struct {
	Success   bool        `json:"success"`
	RequestID string      `json:"requestId,omitempty"`
	Reason    Reason      `json:"reason,omitempty"`
	Error     string      `json:"error,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Reason is a stable rejection code clients can branch on.
type Reason string

const (
	ReasonNotYourTurn       Reason = "not-your-turn"
	ReasonInvalidActionType Reason = "invalid-action-type"
	ReasonInvalidAmount     Reason = "invalid-amount"
	ReasonNoActiveHand      Reason = "no-active-hand"
	ReasonTableNotFound     Reason = "table-not-found"
	ReasonInsufficientFunds Reason = "insufficient-funds"

	ReasonHandInProgress      Reason = "hand-in-progress"
	ReasonNotEnoughPlayers    Reason = "not-enough-players"
	ReasonTableFrozen         Reason = "table-frozen"
	ReasonTablePaused         Reason = "table-paused"
	ReasonTableClosed         Reason = "table-closed"
	ReasonTableFull           Reason = "table-full"
	ReasonSeatTaken           Reason = "seat-taken"
	ReasonInvalidSeat         Reason = "invalid-seat"
	ReasonNotSeated           Reason = "not-seated"
	ReasonAlreadySeated       Reason = "already-seated"
	ReasonInvalidBuyIn        Reason = "invalid-buy-in"
	ReasonTimeBankUnavailable Reason = "time-bank-unavailable"
)

// Resource reports whether the reason signals a client/server desync that
// should be answered with a recovery snapshot.
func (r Reason) Resource() bool {
	return r == ReasonNoActiveHand || r == ReasonTableNotFound
}

// ActionSubmitted is the inbound shape of a player or bot decision.
type ActionSubmitted struct {
	TableID   string     `json:"tableId"`
	Seat      int        `json:"seat"`
	Type      ActionType `json:"type"`
	Amount    int        `json:"amount,omitempty"`
	RequestID string     `json:"requestId"`
}

type ActionResult struct {
	Accepted     bool   `json:"accepted"`
	Reason       Reason `json:"reason,omitempty"`
	StateVersion uint64 `json:"stateVersion"`
}

// PrivatePayload carries data only the owner of a seat may see.
type PrivatePayload struct {
	HoleCards []Card `json:"holeCards,omitempty"`
}

type PublicPayload struct {
	Status     TableStatus `json:"status"`
	Phase      Phase       `json:"phase"`
	HandNumber int         `json:"handNumber"`
	ToAct      int         `json:"toAct"`
	Pots       []Pot       `json:"pots,omitempty"`
	Events     []HandEvent `json:"events"`
}

// TableDelta is broadcast for every committed table mutation.
type TableDelta struct {
	TableID      string                 `json:"tableId"`
	StateVersion uint64                 `json:"stateVersion"`
	EventType    EventType              `json:"eventType"`
	Public       PublicPayload          `json:"public"`
	Private      map[int]PrivatePayload `json:"private,omitempty"`
}

type RecoveryRequest struct {
	TableID          string `json:"tableId"`
	LastKnownVersion uint64 `json:"lastKnownVersion"`
}

type RecoverySnapshot struct {
	StateVersion uint64    `json:"stateVersion"`
	UpToDate     bool      `json:"upToDate,omitempty"`
	State        TableView `json:"state"`
}

type SeatView struct {
	Index            int           `json:"index"`
	PlayerID         string        `json:"playerId,omitempty"`
	PlayerName       string        `json:"playerName,omitempty"`
	Stack            int           `json:"stack"`
	Status           SeatStatus    `json:"status"`
	InHand           bool          `json:"inHand"`
	HasCards         bool          `json:"hasCards"`
	HoleCards        []Card        `json:"holeCards,omitempty"`
	StreetBet        int           `json:"streetBet"`
	HandContribution int           `json:"handContribution"`
	LastAction       ActionType    `json:"lastAction,omitempty"`
	LastActionAmount int           `json:"lastActionAmount,omitempty"`
	TimeBank         time.Duration `json:"timeBank"`
	TurnRemaining    time.Duration `json:"turnRemaining"`
	Disconnected     bool          `json:"disconnected"`
}

// TableView is the full state of a table as seen by one viewer. Viewer is
// -1 for spectators.
type TableView struct {
	TableID      string      `json:"tableId"`
	Name         string      `json:"name"`
	Config       TableConfig `json:"config"`
	StateVersion uint64      `json:"stateVersion"`
	Status       TableStatus `json:"status"`
	FreezeReason string      `json:"freezeReason,omitempty"`
	Button       int         `json:"button"`
	HandNumber   int         `json:"handNumber"`
	Phase        Phase       `json:"phase"`
	Community    []Card      `json:"community"`
	Pots         []Pot       `json:"pots"`
	CurrentBet   int         `json:"currentBet"`
	MinRaise     int         `json:"minRaise"`
	ToAct        int         `json:"toAct"`
	Seats        []SeatView  `json:"seats"`
	Viewer       int         `json:"viewer"`
	Legal        *LegalSet   `json:"legal,omitempty"`
}

// LegalSet describes what the viewer may do when it holds the turn.
type LegalSet struct {
	Actions    []ActionType `json:"actions"`
	ToCall     int          `json:"toCall"`
	MinRaiseTo int          `json:"minRaiseTo"`
	MaxRaiseTo int          `json:"maxRaiseTo"`
}

// HandSettled is handed to wallet and persistence collaborators at hand end.
type HandSettled struct {
	TableID    string      `json:"tableId"`
	HandID     string      `json:"handId"`
	HandNumber int         `json:"handNumber"`
	Button     int         `json:"button"`
	Community  []Card      `json:"community"`
	Pots       []Pot       `json:"pots"`
	Winners    []int       `json:"winners"`
	Payouts    []Payout    `json:"payouts"`
	Deltas     []SeatDelta `json:"deltas"`
	Events     []HandEvent `json:"events"`
	StartedAt  time.Time   `json:"startedAt"`
	SettledAt  time.Time   `json:"settledAt"`
}

// SeatDelta is the net chip change of one seat over a hand.
type SeatDelta struct {
	Seat          int    `json:"seat"`
	PlayerID      string `json:"playerId"`
	StartingStack int    `json:"startingStack"`
	EndingStack   int    `json:"endingStack"`
	Delta         int    `json:"delta"`
}

// TableSummary is the lobby listing entry of a table.
type TableSummary struct {
	TableID      string      `json:"tableId"`
	Name         string      `json:"name"`
	Config       TableConfig `json:"config"`
	Status       TableStatus `json:"status"`
	Seated       int         `json:"seated"`
	HandNumber   int         `json:"handNumber"`
	StateVersion uint64      `json:"stateVersion"`
	Frozen       bool        `json:"frozen,omitempty"`
	LastActive   time.Time   `json:"lastActive"`
}
