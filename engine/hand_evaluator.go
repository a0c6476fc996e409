package engine

import (
	"sort"

	"holdem-engine/models"
)

type HandRank int

const (
	HighCard HandRank = iota
	OnePair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
	RoyalFlush
)

func (hr HandRank) String() string {
	names := []string{"High Card", "One Pair", "Two Pair", "Three of a Kind", "Straight", "Flush", "Full House", "Four of a Kind", "Straight Flush", "Royal Flush"}
	if hr < HighCard || hr > RoyalFlush {
		return "Unknown"
	}
	return names[hr]
}

// HandEvaluation is the best five-card hand found in a set of cards. Two
// evaluations of the same Rank are ordered by Key, compared element by element.
type HandEvaluation struct {
	Rank  HandRank
	Key   [5]int
	Cards []models.Card
}

func (e HandEvaluation) String() string {
	return e.Rank.String()
}

// EvaluateHand returns the best hand made from the hole cards and any number
// of community cards.
func EvaluateHand(playerCards []models.Card, communityCards []models.Card) HandEvaluation {
	allCards := make([]models.Card, 0, len(playerCards)+len(communityCards))
	allCards = append(allCards, playerCards...)
	allCards = append(allCards, communityCards...)

	sort.Slice(allCards, func(i, j int) bool {
		if allCards[i].Rank != allCards[j].Rank {
			return allCards[i].Rank > allCards[j].Rank
		}
		return allCards[i].Suit < allCards[j].Suit
	})

	if eval, ok := checkStraightFlush(allCards); ok {
		return eval
	}
	if eval, ok := checkFourOfAKind(allCards); ok {
		return eval
	}
	if eval, ok := checkFullHouse(allCards); ok {
		return eval
	}
	if eval, ok := checkFlush(allCards); ok {
		return eval
	}
	if eval, ok := checkStraight(allCards); ok {
		return eval
	}
	if eval, ok := checkThreeOfAKind(allCards); ok {
		return eval
	}
	if eval, ok := checkTwoPair(allCards); ok {
		return eval
	}
	if eval, ok := checkOnePair(allCards); ok {
		return eval
	}
	return checkHighCard(allCards)
}

// CompareHands returns 1 if eval1 wins, -1 if eval2 wins and 0 on a tie.
func CompareHands(eval1, eval2 HandEvaluation) int {
	if eval1.Rank != eval2.Rank {
		if eval1.Rank > eval2.Rank {
			return 1
		}
		return -1
	}
	for i := range eval1.Key {
		if eval1.Key[i] > eval2.Key[i] {
			return 1
		}
		if eval1.Key[i] < eval2.Key[i] {
			return -1
		}
	}
	return 0
}

// groupByRank returns cards grouped by rank, largest groups first and higher
// ranks first within the same group size. Input must be sorted by rank desc.
func groupByRank(cards []models.Card) [][]models.Card {
	var groups [][]models.Card
	for _, c := range cards {
		n := len(groups)
		if n > 0 && groups[n-1][0].Rank == c.Rank {
			groups[n-1] = append(groups[n-1], c)
			continue
		}
		groups = append(groups, []models.Card{c})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return len(groups[i]) > len(groups[j])
	})
	return groups
}

// findStraight returns the five cards of the highest straight and its top
// rank. The wheel A-2-3-4-5 counts as five-high.
func findStraight(cards []models.Card) ([]models.Card, int) {
	byRank := make(map[models.Rank]models.Card)
	for _, c := range cards {
		if _, ok := byRank[c.Rank]; !ok {
			byRank[c.Rank] = c
		}
	}
	for high := models.Ace; high >= models.Five; high-- {
		run := make([]models.Card, 0, 5)
		for r := high; r > high-5; r-- {
			rank := r
			if rank == models.Ace-13 {
				rank = models.Ace
			}
			c, ok := byRank[rank]
			if !ok {
				break
			}
			run = append(run, c)
		}
		if len(run) == 5 {
			return run, int(high)
		}
	}
	return nil, 0
}

func checkStraightFlush(cards []models.Card) (HandEvaluation, bool) {
	suitMap := make(map[models.Suit][]models.Card)
	for _, card := range cards {
		suitMap[card.Suit] = append(suitMap[card.Suit], card)
	}

	best := HandEvaluation{}
	found := false
	for _, suitCards := range suitMap {
		if len(suitCards) < 5 {
			continue
		}
		straight, high := findStraight(suitCards)
		if straight == nil {
			continue
		}
		if !found || high > best.Key[0] {
			rank := StraightFlush
			if high == int(models.Ace) {
				rank = RoyalFlush
			}
			best = HandEvaluation{Rank: rank, Key: [5]int{high}, Cards: straight}
			found = true
		}
	}
	return best, found
}

func checkFourOfAKind(cards []models.Card) (HandEvaluation, bool) {
	groups := groupByRank(cards)
	if len(groups) == 0 || len(groups[0]) != 4 {
		return HandEvaluation{}, false
	}
	quad := groups[0]
	best := append([]models.Card{}, quad...)
	key := [5]int{quad[0].Value()}
	if kicker, ok := highestExcluding(cards, quad[0].Rank); ok {
		best = append(best, kicker)
		key[1] = kicker.Value()
	}
	return HandEvaluation{Rank: FourOfAKind, Key: key, Cards: best}, true
}

func checkFullHouse(cards []models.Card) (HandEvaluation, bool) {
	groups := groupByRank(cards)
	if len(groups) < 2 || len(groups[0]) < 3 {
		return HandEvaluation{}, false
	}
	trips := groups[0]
	var pair []models.Card
	for _, g := range groups[1:] {
		if len(g) >= 2 && (pair == nil || g[0].Rank > pair[0].Rank) {
			pair = g[:2]
		}
	}
	if pair == nil {
		return HandEvaluation{}, false
	}
	best := append(append([]models.Card{}, trips[:3]...), pair...)
	return HandEvaluation{Rank: FullHouse, Key: [5]int{trips[0].Value(), pair[0].Value()}, Cards: best}, true
}

func checkFlush(cards []models.Card) (HandEvaluation, bool) {
	suitMap := make(map[models.Suit][]models.Card)
	for _, card := range cards {
		suitMap[card.Suit] = append(suitMap[card.Suit], card)
	}

	best := HandEvaluation{}
	found := false
	for _, suitCards := range suitMap {
		if len(suitCards) < 5 {
			continue
		}
		eval := HandEvaluation{Rank: Flush, Cards: suitCards[:5]}
		for i, c := range suitCards[:5] {
			eval.Key[i] = c.Value()
		}
		if !found || CompareHands(eval, best) > 0 {
			best = eval
			found = true
		}
	}
	return best, found
}

func checkStraight(cards []models.Card) (HandEvaluation, bool) {
	straight, high := findStraight(cards)
	if straight == nil {
		return HandEvaluation{}, false
	}
	return HandEvaluation{Rank: Straight, Key: [5]int{high}, Cards: straight}, true
}

func checkThreeOfAKind(cards []models.Card) (HandEvaluation, bool) {
	groups := groupByRank(cards)
	if len(groups) == 0 || len(groups[0]) != 3 {
		return HandEvaluation{}, false
	}
	return withKickers(ThreeOfAKind, groups[0], cards), true
}

func checkTwoPair(cards []models.Card) (HandEvaluation, bool) {
	groups := groupByRank(cards)
	if len(groups) < 2 || len(groups[0]) != 2 || len(groups[1]) != 2 {
		return HandEvaluation{}, false
	}
	made := append(append([]models.Card{}, groups[0]...), groups[1]...)
	return withKickers(TwoPair, made, cards), true
}

func checkOnePair(cards []models.Card) (HandEvaluation, bool) {
	groups := groupByRank(cards)
	if len(groups) == 0 || len(groups[0]) != 2 {
		return HandEvaluation{}, false
	}
	return withKickers(OnePair, groups[0], cards), true
}

func checkHighCard(cards []models.Card) HandEvaluation {
	return withKickers(HighCard, nil, cards)
}

// withKickers fills the made cards up to five with the highest remaining
// cards. The key lists made ranks (one entry per group) followed by kickers.
func withKickers(rank HandRank, made []models.Card, cards []models.Card) HandEvaluation {
	eval := HandEvaluation{Rank: rank, Cards: append([]models.Card{}, made...)}
	used := make(map[models.Card]bool, len(made))
	k := 0
	for i, c := range made {
		used[c] = true
		if i == 0 || made[i-1].Rank != c.Rank {
			eval.Key[k] = c.Value()
			k++
		}
	}
	for _, c := range cards {
		if len(eval.Cards) == 5 {
			break
		}
		if used[c] {
			continue
		}
		eval.Cards = append(eval.Cards, c)
		eval.Key[k] = c.Value()
		k++
	}
	return eval
}

func highestExcluding(cards []models.Card, rank models.Rank) (models.Card, bool) {
	for _, c := range cards {
		if c.Rank != rank {
			return c, true
		}
	}
	return models.Card{}, false
}
