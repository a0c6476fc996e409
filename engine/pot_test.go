package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holdem-engine/models"
)

func TestBuildPots_SingleLevel(t *testing.T) {
	pots := BuildPots(
		map[int]int{0: 100, 1: 100, 2: 100},
		map[int]bool{0: true, 1: true, 2: true},
	)

	require.Len(t, pots, 1)
	assert.Equal(t, 300, pots[0].Amount)
	assert.Equal(t, []int{0, 1, 2}, pots[0].Eligible)
}

func TestBuildPots_AllInBelowBigBlind(t *testing.T) {
	pots := BuildPots(
		map[int]int{0: 5, 1: 100, 2: 100},
		map[int]bool{0: true, 1: true, 2: true},
	)

	require.Len(t, pots, 2)
	assert.Equal(t, models.Pot{Amount: 15, Eligible: []int{0, 1, 2}}, pots[0])
	assert.Equal(t, models.Pot{Amount: 190, Eligible: []int{1, 2}}, pots[1])
}

func TestBuildPots_ThreeDistinctAllIns(t *testing.T) {
	// A:100, B:50, C:200 with A and B all-in
	contributions := map[int]int{0: 100, 1: 50, 2: 200}
	pots := BuildPots(contributions, map[int]bool{0: true, 1: true, 2: true})

	require.Len(t, pots, 3)
	assert.Equal(t, models.Pot{Amount: 150, Eligible: []int{0, 1, 2}}, pots[0])
	assert.Equal(t, models.Pot{Amount: 100, Eligible: []int{0, 2}}, pots[1])
	assert.Equal(t, models.Pot{Amount: 100, Eligible: []int{2}}, pots[2])
	assert.Equal(t, 350, TotalPots(pots))
}

func TestBuildPots_FoldedChipsNeverEligible(t *testing.T) {
	pots := BuildPots(
		map[int]int{0: 200, 1: 50, 2: 200, 3: 120},
		map[int]bool{0: true, 1: true, 2: true},
	)

	// seat 3 folded after putting in 120; its chips stay in the pots it reached
	require.Len(t, pots, 3)
	assert.Equal(t, models.Pot{Amount: 200, Eligible: []int{0, 1, 2}}, pots[0])
	assert.Equal(t, models.Pot{Amount: 210, Eligible: []int{0, 2}}, pots[1])
	assert.Equal(t, models.Pot{Amount: 160, Eligible: []int{0, 2}}, pots[2])
	assert.Equal(t, 570, TotalPots(pots))
	for _, p := range pots {
		assert.NotContains(t, p.Eligible, 3)
	}
}

func TestBuildPots_EmptyLevelMergesDown(t *testing.T) {
	// the big folder contributed more than anyone still in the hand
	pots := BuildPots(
		map[int]int{0: 300, 1: 100, 2: 100},
		map[int]bool{1: true, 2: true},
	)

	require.Len(t, pots, 1)
	assert.Equal(t, 500, pots[0].Amount)
	assert.Equal(t, []int{1, 2}, pots[0].Eligible)
}

func TestBuildPots_NoContributions(t *testing.T) {
	assert.Empty(t, BuildPots(map[int]int{}, map[int]bool{0: true}))
}

func TestDistributeWinnings_SidePotWinners(t *testing.T) {
	pots := BuildPots(map[int]int{0: 100, 1: 50, 2: 200}, map[int]bool{0: true, 1: true, 2: true})
	board := cards("2c 7d 9h Jc 4s")

	t.Run("biggest stack wins everything", func(t *testing.T) {
		evals := map[int]HandEvaluation{
			0: EvaluateHand(cards("3c 5d"), board),
			1: EvaluateHand(cards("3d 6h"), board),
			2: EvaluateHand(cards("As Ad"), board),
		}
		payouts := DistributeWinnings(pots, evals, 0, 3)
		total := map[int]int{}
		for _, p := range payouts {
			total[p.Seat] += p.Amount
		}
		assert.Equal(t, map[int]int{2: 350}, total)
	})

	t.Run("short stack wins main only", func(t *testing.T) {
		evals := map[int]HandEvaluation{
			0: EvaluateHand(cards("3c 5d"), board),
			1: EvaluateHand(cards("Ks Kd"), board),
			2: EvaluateHand(cards("Qs Qd"), board),
		}
		payouts := DistributeWinnings(pots, evals, 0, 3)
		total := map[int]int{}
		for _, p := range payouts {
			total[p.Seat] += p.Amount
		}
		assert.Equal(t, map[int]int{1: 150, 2: 200}, total)
	})
}

func TestDistributeWinnings_OddChipsClockwiseFromButton(t *testing.T) {
	board := cards("Ah Kh Qd Jc Ts")
	evals := map[int]HandEvaluation{
		1: EvaluateHand(cards("2c 3d"), board),
		4: EvaluateHand(cards("2d 3c"), board),
		7: EvaluateHand(cards("2h 3s"), board),
	}
	pots := []models.Pot{{Amount: 101, Eligible: []int{1, 4, 7}}}

	// button on 5: clockwise order from seat 6 is 7, 1, 4
	payouts := DistributeWinnings(pots, evals, 5, 9)
	require.Len(t, payouts, 3)
	assert.Equal(t, 7, payouts[0].Seat)
	assert.Equal(t, 34, payouts[0].Amount)
	assert.Equal(t, 1, payouts[1].Seat)
	assert.Equal(t, 34, payouts[1].Amount)
	assert.Equal(t, 4, payouts[2].Seat)
	assert.Equal(t, 33, payouts[2].Amount)

	// same hands with the button on 0: 1 then 4 get the odd chips
	payouts = DistributeWinnings(pots, evals, 0, 9)
	assert.Equal(t, []int{1, 4, 7}, []int{payouts[0].Seat, payouts[1].Seat, payouts[2].Seat})
	assert.Equal(t, []int{34, 34, 33}, []int{payouts[0].Amount, payouts[1].Amount, payouts[2].Amount})
}

func TestDistributeWinnings_UncontestedPot(t *testing.T) {
	pots := []models.Pot{{Amount: 30, Eligible: []int{2}}}
	payouts := DistributeWinnings(pots, nil, 0, 3)

	require.Len(t, payouts, 1)
	assert.Equal(t, models.Payout{Seat: 2, Pot: 0, Amount: 30}, payouts[0])
}
