package engine

import (
	"sort"

	"holdem-engine/models"
)

// BuildPots splits hand contributions into a main pot and side pots, one per
// distinct contribution level in ascending order. Folded seats pay into pots
// but are never eligible; contesting holds the seats still in the hand.
func BuildPots(contributions map[int]int, contesting map[int]bool) []models.Pot {
	levels := make([]int, 0, len(contributions))
	seen := make(map[int]bool)
	for _, amount := range contributions {
		if amount > 0 && !seen[amount] {
			seen[amount] = true
			levels = append(levels, amount)
		}
	}
	sort.Ints(levels)

	seats := make([]int, 0, len(contributions))
	for seat := range contributions {
		seats = append(seats, seat)
	}
	sort.Ints(seats)

	pots := make([]models.Pot, 0, len(levels))
	carry := 0
	prev := 0
	for _, level := range levels {
		pot := models.Pot{Amount: carry}
		carry = 0
		for _, seat := range seats {
			contributed := contributions[seat]
			if contributed <= prev {
				continue
			}
			pot.Amount += min(contributed, level) - prev
			if contributed >= level && contesting[seat] {
				pot.Eligible = append(pot.Eligible, seat)
			}
		}
		prev = level

		if len(pot.Eligible) == 0 {
			// nobody left to win this layer: fold it into the layer below
			if len(pots) > 0 {
				pots[len(pots)-1].Amount += pot.Amount
			} else {
				carry = pot.Amount
			}
			continue
		}
		pots = append(pots, pot)
	}
	if carry > 0 && len(pots) > 0 {
		pots[0].Amount += carry
	}
	return pots
}

// TotalPots sums the amounts of all pots.
func TotalPots(pots []models.Pot) int {
	total := 0
	for _, p := range pots {
		total += p.Amount
	}
	return total
}

// DistributeWinnings awards every pot to the best eligible hands. Split pots
// are divided evenly and remaining odd chips go one at a time to the tied
// winners in clockwise order starting left of the button.
func DistributeWinnings(pots []models.Pot, evals map[int]HandEvaluation, button, maxSeats int) []models.Payout {
	payouts := make([]models.Payout, 0, len(pots))

	for potIndex, pot := range pots {
		if pot.Amount == 0 || len(pot.Eligible) == 0 {
			continue
		}

		winners := bestHands(pot.Eligible, evals)
		orderClockwise(winners, button, maxSeats)

		share := pot.Amount / len(winners)
		remainder := pot.Amount % len(winners)
		for i, seat := range winners {
			amount := share
			if i < remainder {
				amount++
			}
			payout := models.Payout{Seat: seat, Pot: potIndex, Amount: amount}
			if eval, ok := evals[seat]; ok && len(pot.Eligible) > 1 {
				payout.HandRank = eval.Rank.String()
			}
			payouts = append(payouts, payout)
		}
	}
	return payouts
}

func bestHands(eligible []int, evals map[int]HandEvaluation) []int {
	if len(eligible) == 1 {
		return []int{eligible[0]}
	}
	var winners []int
	var best HandEvaluation
	for _, seat := range eligible {
		eval := evals[seat]
		switch {
		case winners == nil:
			winners = []int{seat}
			best = eval
		case CompareHands(eval, best) > 0:
			winners = []int{seat}
			best = eval
		case CompareHands(eval, best) == 0:
			winners = append(winners, seat)
		}
	}
	return winners
}

// orderClockwise sorts seats by distance clockwise from the seat left of the
// button.
func orderClockwise(seats []int, button, maxSeats int) {
	if maxSeats <= 0 {
		sort.Ints(seats)
		return
	}
	dist := func(seat int) int {
		return ((seat-button-1)%maxSeats + maxSeats) % maxSeats
	}
	sort.Slice(seats, func(i, j int) bool {
		return dist(seats[i]) < dist(seats[j])
	})
}
