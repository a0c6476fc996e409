package engine

import (
	"fmt"
	"time"

	"holdem-engine/models"
)

// Game runs one hand at a time for a table. It is not safe for concurrent
// use; the owning Table calls it from its serializer only.
type Game struct {
	table   *models.Table
	hand    *models.Hand
	newDeck func() *models.Deck
	now     func() time.Time

	pending     []models.HandEvent
	decisionSeq uint64
}

func NewGame(table *models.Table, newDeck func() *models.Deck, now func() time.Time) *Game {
	if newDeck == nil {
		newDeck = models.NewDeck
	}
	if now == nil {
		now = time.Now
	}
	return &Game{
		table:   table,
		newDeck: newDeck,
		now:     now,
	}
}

// Hand returns the current or most recently finished hand, or nil.
func (g *Game) Hand() *models.Hand {
	return g.hand
}

// InProgress reports whether a hand has been dealt and not yet settled.
func (g *Game) InProgress() bool {
	return g.hand != nil && g.hand.Phase != models.PhaseFinished
}

// emit appends a hand event to the log and to the pending commit.
func (g *Game) emit(ev models.HandEvent) {
	ev.At = g.now()
	if g.InProgress() {
		ev.Seq = len(g.hand.Events) + 1
		g.hand.Events = append(g.hand.Events, ev)
	}
	g.pending = append(g.pending, ev)
}

// note records a table-level event that is not part of any hand log.
func (g *Game) note(ev models.HandEvent) {
	ev.At = g.now()
	g.pending = append(g.pending, ev)
}

func (g *Game) drain() []models.HandEvent {
	events := g.pending
	g.pending = nil
	return events
}

func (g *Game) StartNewHand(handID string) error {
	t := g.table
	if g.InProgress() {
		return reject(models.ReasonHandInProgress, "hand #%d in progress", g.hand.Number)
	}

	dealable := countSeats(t.Seats, isDealable)
	if dealable < 2 {
		return reject(models.ReasonNotEnoughPlayers, "%d seats ready, need 2", dealable)
	}

	pf := NewPositionFinder(t.Seats)
	button := pf.findNextDealable(t.Button)
	sbPos, bbPos, forced := pf.calculateBlindPositions(button, dealable)

	for _, s := range t.Seats {
		s.ResetForHand()
		if isDealable(s) {
			s.InHand = true
		}
	}
	if forced {
		bb := t.Seats[bbPos]
		bb.Status = models.SeatActive
		bb.ForcedBlind = true
		bb.InHand = true
	}

	hand := &models.Hand{
		ID:             handID,
		Number:         t.HandNumber + 1,
		Button:         button,
		SmallBlindSeat: sbPos,
		BigBlindSeat:   bbPos,
		Phase:          models.PhasePreflop,
		Community:      make([]models.Card, 0, 5),
		ToAct:          -1,
		MinRaise:       t.Config.BigBlind,
		StartingStacks: make(map[int]int),
		StartedAt:      g.now(),
		Deck:           g.newDeck(),
	}
	for _, s := range t.Seats {
		if s.InHand {
			hand.StartingStacks[s.Index] = s.Stack
		}
	}

	g.hand = hand
	t.Button = button
	t.HandNumber = hand.Number
	t.Status = models.StatusPlaying

	g.emit(models.HandEvent{Type: models.EventHandStarted, Seat: button, Amount: hand.Number})
	if forced {
		g.emit(models.HandEvent{Type: models.EventBlindForced, Seat: bbPos, PlayerID: t.Seats[bbPos].PlayerID})
	}

	order := pf.clockwiseFrom(button, func(s *models.Seat) bool { return s.InHand })
	if ante := t.Config.Ante; ante > 0 {
		for _, idx := range order {
			s := t.Seats[idx]
			paid := min(ante, s.Stack)
			s.Stack -= paid
			s.HandContribution += paid
			if s.Stack == 0 {
				s.Status = models.SeatAllIn
			}
			g.emit(models.HandEvent{Type: models.EventAntePosted, Seat: idx, PlayerID: s.PlayerID, Amount: paid})
		}
	}

	g.postBlind(sbPos, t.Config.SmallBlind)
	g.postBlind(bbPos, t.Config.BigBlind)
	hand.CurrentBet = t.Config.BigBlind

	for _, idx := range order {
		s := t.Seats[idx]
		cards, err := hand.Deck.DealMultiple(2)
		if err != nil {
			return &InvariantError{Kind: "deck", Detail: err.Error()}
		}
		s.HoleCards = cards
		g.emit(models.HandEvent{Type: models.EventHoleDealt, Seat: idx, PlayerID: s.PlayerID, Cards: cards})
	}

	return g.progress(bbPos)
}

func (g *Game) postBlind(pos, amount int) {
	s := g.table.Seats[pos]
	if s.Status == models.SeatAllIn {
		// ante took the whole stack
		return
	}
	paid := s.Commit(amount)
	s.LastActionAmount = paid
	g.emit(models.HandEvent{Type: models.EventBlindPosted, Seat: pos, PlayerID: s.PlayerID, Amount: paid})
}

// LegalActions returns the legal set of a seat on the current decision.
func (g *Game) LegalActions(seat int) models.LegalSet {
	if !g.InProgress() || seat < 0 || seat >= len(g.table.Seats) {
		return models.LegalSet{}
	}
	s := g.table.Seats[seat]
	bv := NewBettingValidator(g.hand.CurrentBet, g.hand.MinRaise, g.table.Config.BigBlind)
	return bv.legalSet(s, g.othersCanAct(s))
}

// ProcessAction applies a decision for the seat holding the turn. The action
// is validated against the legal set before anything is mutated.
func (g *Game) ProcessAction(seat int, action models.Action, system bool) error {
	if !g.InProgress() || !g.hand.Phase.Betting() {
		return reject(models.ReasonNoActiveHand, "no betting round open")
	}
	h := g.hand
	s := g.table.Seats[seat]
	bv := NewBettingValidator(h.CurrentBet, h.MinRaise, g.table.Config.BigBlind)
	legal := bv.legalSet(s, g.othersCanAct(s))
	if err := bv.validate(s, action, legal); err != nil {
		return err
	}

	ap := newSeatActions(g, bv)
	switch action.Type {
	case models.ActionFold:
		ap.processFold(s)
	case models.ActionCheck:
		ap.processCheck(s)
	case models.ActionCall:
		ap.processCall(s)
	case models.ActionBet, models.ActionRaise:
		ap.processRaise(s, action.Type, action.Amount)
	case models.ActionAllIn:
		ap.processAllIn(s)
	}
	s.HasActed = true
	if system {
		s.ConsecutiveTimeouts++
	} else {
		s.ConsecutiveTimeouts = 0
	}

	g.emit(models.HandEvent{
		Type:     models.EventPlayerAction,
		Seat:     seat,
		PlayerID: s.PlayerID,
		Action:   s.LastAction,
		Amount:   s.LastActionAmount,
		Phase:    h.Phase,
		System:   system,
	})
	return g.progress(seat)
}

// FoldOutOfTurn folds a seat that is leaving the table mid-hand.
func (g *Game) FoldOutOfTurn(seat int) error {
	if !g.InProgress() || !g.hand.Phase.Betting() {
		return nil
	}
	s := g.table.Seats[seat]
	if !s.InHand || s.Status != models.SeatActive {
		return nil
	}
	if g.hand.ToAct == seat {
		return g.ProcessAction(seat, models.Action{Type: models.ActionFold}, true)
	}

	s.Status = models.SeatFolded
	s.LastAction = models.ActionFold
	s.LastActionAmount = 0
	g.emit(models.HandEvent{Type: models.EventPlayerAction, Seat: seat, PlayerID: s.PlayerID, Action: models.ActionFold, Phase: g.hand.Phase, System: true})

	if countSeats(g.table.Seats, isContesting) <= 1 || g.roundComplete() {
		return g.progress(seat)
	}
	return nil
}

func (g *Game) othersCanAct(s *models.Seat) bool {
	for _, o := range g.table.Seats {
		if o != s && canAct(o) {
			return true
		}
	}
	return false
}

func (g *Game) needsAction(s *models.Seat) bool {
	return canAct(s) && (!s.HasActed || s.StreetBet < g.hand.CurrentBet)
}

// roundComplete reports whether the current betting round is closed: every
// seat able to act has acted and matched the bet, or a lone actor has nothing
// left to respond to.
func (g *Game) roundComplete() bool {
	actors := collectSeats(g.table.Seats, canAct)
	if len(actors) == 1 {
		a := actors[0]
		return a.StreetBet >= g.highestOtherBet(a)
	}
	for _, a := range actors {
		if g.needsAction(a) {
			return false
		}
	}
	return true
}

func (g *Game) highestOtherBet(except *models.Seat) int {
	highest := 0
	for _, s := range g.table.Seats {
		if s != except && isContesting(s) && s.StreetBet > highest {
			highest = s.StreetBet
		}
	}
	return highest
}

// progress moves the hand forward after a mutation made by the seat at from.
func (g *Game) progress(from int) error {
	h := g.hand
	for {
		if countSeats(g.table.Seats, isContesting) <= 1 {
			g.awardUncontested()
			return nil
		}
		if !g.roundComplete() {
			next := NewPositionFinder(g.table.Seats).findNext(from, g.needsAction)
			if next < 0 {
				return &InvariantError{Kind: "turn", Detail: "open round has no seat to act"}
			}
			g.setTurn(next)
			return nil
		}

		g.collectPots()
		if countSeats(g.table.Seats, canAct) <= 1 || h.Phase == models.PhaseRiver {
			return g.showdown()
		}
		if err := g.dealStreet(); err != nil {
			return err
		}
		resetSeatsForNewRound(g.table.Seats)
		h.CurrentBet = 0
		h.MinRaise = g.table.Config.BigBlind
		from = h.Button
	}
}

func (g *Game) setTurn(seat int) {
	g.decisionSeq++
	g.hand.ToAct = seat
	g.hand.DecisionID = g.decisionSeq
	g.hand.TimeBankUsed = false
	g.emit(models.HandEvent{Type: models.EventTurnChanged, Seat: seat, PlayerID: g.table.Seats[seat].PlayerID, Phase: g.hand.Phase})
}

func (g *Game) dealStreet() error {
	h := g.hand
	n := 1
	switch len(h.Community) {
	case 0:
		n = 3
		h.Phase = models.PhaseFlop
	case 3:
		h.Phase = models.PhaseTurn
	case 4:
		h.Phase = models.PhaseRiver
	default:
		return &InvariantError{Kind: "board", Detail: fmt.Sprintf("cannot deal past %d community cards", len(h.Community))}
	}

	cards, err := h.Deck.DealMultiple(n)
	if err != nil {
		return &InvariantError{Kind: "deck", Detail: err.Error()}
	}
	h.Community = append(h.Community, cards...)
	g.emit(models.HandEvent{Type: models.EventStreetDealt, Seat: -1, Cards: cards, Phase: h.Phase})
	return nil
}

func (g *Game) contributions() (map[int]int, map[int]bool) {
	contributions := make(map[int]int)
	contesting := make(map[int]bool)
	for _, s := range g.table.Seats {
		if s.HandContribution > 0 {
			contributions[s.Index] = s.HandContribution
		}
		if isContesting(s) {
			contesting[s.Index] = true
		}
	}
	return contributions, contesting
}

func (g *Game) collectPots() {
	contributions, contesting := g.contributions()
	g.hand.Pots = BuildPots(contributions, contesting)
	g.emit(models.HandEvent{Type: models.EventPotsUpdated, Seat: -1, Pots: g.hand.Pots, Phase: g.hand.Phase})
}

// showdown runs out the board, reveals contesting hands and settles.
func (g *Game) showdown() error {
	h := g.hand
	for len(h.Community) < 5 {
		if err := g.dealStreet(); err != nil {
			return err
		}
	}
	h.Phase = models.PhaseShowdown
	h.ToAct = -1

	evals := make(map[int]HandEvaluation)
	pf := NewPositionFinder(g.table.Seats)
	for _, idx := range pf.clockwiseFrom(h.Button, isContesting) {
		s := g.table.Seats[idx]
		evals[idx] = EvaluateHand(s.HoleCards, h.Community)
		g.emit(models.HandEvent{Type: models.EventCardsRevealed, Seat: idx, PlayerID: s.PlayerID, Cards: s.HoleCards, Phase: h.Phase})
	}
	g.settle(evals)
	return nil
}

func (g *Game) awardUncontested() {
	g.hand.ToAct = -1
	g.settle(nil)
}

func (g *Game) settle(evals map[int]HandEvaluation) {
	h := g.hand
	contributions, contesting := g.contributions()
	pots := BuildPots(contributions, contesting)
	payouts := DistributeWinnings(pots, evals, h.Button, len(g.table.Seats))

	for i := range payouts {
		s := g.table.Seats[payouts[i].Seat]
		s.Stack += payouts[i].Amount
		payouts[i].PlayerID = s.PlayerID
	}
	for _, s := range g.table.Seats {
		s.StreetBet = 0
	}

	h.Pots = pots
	h.Payouts = payouts
	g.emit(models.HandEvent{Type: models.EventHandSettled, Seat: -1, Pots: pots, Payouts: payouts, Phase: h.Phase})
	h.Phase = models.PhaseFinished
}

// Winners lists the seats that received a payout, in payout order.
func (g *Game) Winners() []int {
	if g.hand == nil {
		return nil
	}
	seen := make(map[int]bool)
	var winners []int
	for _, p := range g.hand.Payouts {
		if !seen[p.Seat] {
			seen[p.Seat] = true
			winners = append(winners, p.Seat)
		}
	}
	return winners
}

// VoidHand cancels the hand in progress and returns every contribution to
// the seat that made it.
func (g *Game) VoidHand() {
	if !g.InProgress() {
		return
	}
	for _, s := range g.table.Seats {
		if s.IsEmpty() {
			continue
		}
		s.Stack += s.HandContribution
		if s.Status == models.SeatFolded || s.Status == models.SeatAllIn {
			s.Status = models.SeatActive
		}
		if s.ForcedBlind {
			s.Status = models.SeatSittingOut
		}
		s.ResetForHand()
	}
	g.hand = nil
}
