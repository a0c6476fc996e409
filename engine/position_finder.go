package engine

import "holdem-engine/models"

type PositionFinder struct {
	seats []*models.Seat
}

func NewPositionFinder(seats []*models.Seat) *PositionFinder {
	return &PositionFinder{seats: seats}
}

// findNext returns the first seat clockwise after currentPos matching the
// filter, or -1. currentPos may be -1 to start from seat 0.
func (pf *PositionFinder) findNext(currentPos int, filter SeatFilter) int {
	maxSeats := len(pf.seats)
	if maxSeats == 0 {
		return -1
	}

	for step := 1; step <= maxSeats; step++ {
		pos := ((currentPos+step)%maxSeats + maxSeats) % maxSeats
		if filter(pf.seats[pos]) {
			return pos
		}
	}
	return -1
}

func (pf *PositionFinder) findNextDealable(currentPos int) int {
	return pf.findNext(currentPos, isDealable)
}

// calculateBlindPositions returns the small and big blind seats for a hand
// dealt with the given button. Heads-up the button posts the small blind.
// A sitting-out seat in the big blind position is returned with forced set.
func (pf *PositionFinder) calculateBlindPositions(button, dealable int) (sb, bb int, forced bool) {
	if dealable == 2 {
		return button, pf.findNextDealable(button), false
	}

	sb = pf.findNextDealable(button)
	bb = pf.findNext(sb, owesBlind)
	if bb >= 0 && pf.seats[bb].Status == models.SeatSittingOut {
		forced = true
	}
	return sb, bb, forced
}

// clockwiseFrom lists seats matching filter in clockwise order starting with
// the seat after pos.
func (pf *PositionFinder) clockwiseFrom(pos int, filter SeatFilter) []int {
	maxSeats := len(pf.seats)
	out := make([]int, 0, maxSeats)
	for step := 1; step <= maxSeats; step++ {
		idx := ((pos+step)%maxSeats + maxSeats) % maxSeats
		if filter(pf.seats[idx]) {
			out = append(out, idx)
		}
	}
	return out
}
