package models

import "time"

type TableStatus string
type Phase string

const (
	StatusWaiting      TableStatus = "waiting"
	StatusPlaying      TableStatus = "playing"
	StatusBetweenHands TableStatus = "between_hands"
	StatusPaused       TableStatus = "paused"
)

const (
	PhaseWaiting  Phase = "waiting_for_hand"
	PhasePreflop  Phase = "preflop"
	PhaseFlop     Phase = "flop"
	PhaseTurn     Phase = "turn"
	PhaseRiver    Phase = "river"
	PhaseShowdown Phase = "showdown"
	PhaseFinished Phase = "finished"
)

// Betting reports whether the phase accepts player decisions.
func (p Phase) Betting() bool {
	switch p {
	case PhasePreflop, PhaseFlop, PhaseTurn, PhaseRiver:
		return true
	}
	return false
}

type TableConfig struct {
	SmallBlind int `json:"smallBlind"`
	BigBlind   int `json:"bigBlind"`
	Ante       int `json:"ante,omitempty"`
	MinBuyIn   int `json:"minBuyIn"`
	MaxBuyIn   int `json:"maxBuyIn"`
	MaxSeats   int `json:"maxSeats"`

	TurnTimeout            time.Duration `json:"turnTimeout"`
	TimeBank               time.Duration `json:"timeBank"`
	TimeBankReplenishHands int           `json:"timeBankReplenishHands,omitempty"`
	TimeBankReplenish      time.Duration `json:"timeBankReplenish,omitempty"`
	NextHandDelay          time.Duration `json:"nextHandDelay"`
	AutoStart              bool          `json:"autoStart"`
	MaxConsecutiveTimeouts int           `json:"maxConsecutiveTimeouts,omitempty"`
}

// Pot is an amount and the seats that may win it.
type Pot struct {
	Amount   int   `json:"amount"`
	Eligible []int `json:"eligible"`
}

type Payout struct {
	Seat     int    `json:"seat"`
	PlayerID string `json:"playerId"`
	Pot      int    `json:"pot"`
	Amount   int    `json:"amount"`
	HandRank string `json:"handRank,omitempty"`
}

type EventType string

const (
	EventTableCreated   EventType = "table_created"
	EventPlayerSeated   EventType = "player_seated"
	EventPlayerLeft     EventType = "player_left"
	EventSatOut         EventType = "sat_out"
	EventSatIn          EventType = "sat_in"
	EventChipsAdded     EventType = "chips_added"
	EventConnection     EventType = "connection_changed"
	EventHandStarted    EventType = "hand_started"
	EventBlindForced    EventType = "blind_forced"
	EventAntePosted     EventType = "ante_posted"
	EventBlindPosted    EventType = "blind_posted"
	EventHoleDealt      EventType = "hole_cards_dealt"
	EventPlayerAction   EventType = "player_action"
	EventTurnChanged    EventType = "turn_changed"
	EventStreetDealt    EventType = "street_dealt"
	EventCardsRevealed  EventType = "cards_revealed"
	EventPotsUpdated    EventType = "pots_updated"
	EventHandSettled    EventType = "hand_settled"
	EventTimeBankUsed   EventType = "time_bank_used"
	EventTablePaused    EventType = "table_paused"
	EventTableResumed   EventType = "table_resumed"
	EventTableFrozen    EventType = "table_frozen"
	EventTableUnfrozen  EventType = "table_unfrozen"
	EventTableRestored  EventType = "table_restored"
	EventPlayerBusted   EventType = "player_busted"
	EventSeatAutoSitOut EventType = "seat_auto_sit_out"
)

// HandEvent is one entry of a hand's append-only event log. Fields are
// populated according to Type.
type HandEvent struct {
	Seq      int        `json:"seq"`
	Type     EventType  `json:"type"`
	Seat     int        `json:"seat"`
	PlayerID string     `json:"playerId,omitempty"`
	Action   ActionType `json:"action,omitempty"`
	Amount   int        `json:"amount,omitempty"`
	Cards    []Card     `json:"cards,omitempty"`
	Phase    Phase      `json:"phase,omitempty"`
	System   bool       `json:"system,omitempty"`
	Pots     []Pot      `json:"pots,omitempty"`
	Payouts  []Payout   `json:"payouts,omitempty"`
	At       time.Time  `json:"at"`
}

// Hand is the state of the hand currently dealt at a table.
type Hand struct {
	ID             string      `json:"id"`
	Number         int         `json:"number"`
	Button         int         `json:"button"`
	SmallBlindSeat int         `json:"smallBlindSeat"`
	BigBlindSeat   int         `json:"bigBlindSeat"`
	Phase          Phase       `json:"phase"`
	Community      []Card      `json:"community"`
	Pots           []Pot       `json:"pots"`
	CurrentBet     int         `json:"currentBet"`
	MinRaise       int         `json:"minRaise"`
	ToAct          int         `json:"toAct"`
	DecisionID     uint64      `json:"decisionId"`
	Deadline       time.Time   `json:"deadline"`
	TimeBankUsed   bool        `json:"timeBankUsed"`
	StartingStacks map[int]int `json:"startingStacks"`
	Payouts        []Payout    `json:"payouts,omitempty"`
	Events         []HandEvent `json:"events"`
	StartedAt      time.Time   `json:"startedAt"`
	Deck           *Deck       `json:"-"`
}

type Table struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Config       TableConfig `json:"config"`
	Seats        []*Seat     `json:"seats"`
	Button       int         `json:"button"`
	HandNumber   int         `json:"handNumber"`
	StateVersion uint64      `json:"stateVersion"`
	Status       TableStatus `json:"status"`
	FreezeReason string      `json:"freezeReason,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
}

func (t *Table) SeatedCount() int {
	count := 0
	for _, s := range t.Seats {
		if !s.IsEmpty() {
			count++
		}
	}
	return count
}

func (t *Table) SeatOf(playerID string) *Seat {
	for _, s := range t.Seats {
		if !s.IsEmpty() && s.PlayerID == playerID {
			return s
		}
	}
	return nil
}
