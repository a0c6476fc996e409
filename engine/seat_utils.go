package engine

import "holdem-engine/models"

type SeatFilter func(*models.Seat) bool

// isDealable reports whether the seat is dealt into the next hand.
func isDealable(s *models.Seat) bool {
	return !s.IsEmpty() && s.Status == models.SeatActive && s.Stack > 0 && !s.Disconnected
}

// owesBlind reports whether a seat can be made to post the big blind, which
// includes sitting-out seats.
func owesBlind(s *models.Seat) bool {
	return isDealable(s) || (!s.IsEmpty() && s.Status == models.SeatSittingOut && s.Stack > 0 && !s.Disconnected)
}

func canAct(s *models.Seat) bool {
	return !s.IsEmpty() && s.CanAct()
}

func isContesting(s *models.Seat) bool {
	return !s.IsEmpty() && s.Contesting()
}

func countSeats(seats []*models.Seat, filter SeatFilter) int {
	count := 0
	for _, s := range seats {
		if filter(s) {
			count++
		}
	}
	return count
}

func collectSeats(seats []*models.Seat, filter SeatFilter) []*models.Seat {
	var out []*models.Seat
	for _, s := range seats {
		if filter(s) {
			out = append(out, s)
		}
	}
	return out
}

func findSeatByPlayer(seats []*models.Seat, playerID string) *models.Seat {
	for _, s := range seats {
		if !s.IsEmpty() && s.PlayerID == playerID {
			return s
		}
	}
	return nil
}

func resetSeatsForNewRound(seats []*models.Seat) {
	for _, s := range seats {
		s.StreetBet = 0
		if canAct(s) {
			s.HasActed = false
		}
	}
}

func reopenBetting(seats []*models.Seat, except *models.Seat) {
	for _, s := range seats {
		if s != except && canAct(s) {
			s.HasActed = false
		}
	}
}

func chipsOnTable(seats []*models.Seat) int {
	total := 0
	for _, s := range seats {
		if !s.IsEmpty() {
			total += s.Stack
		}
	}
	return total
}
