package models

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

type Suit string
type Rank int

const (
	Hearts   Suit = "h"
	Diamonds Suit = "d"
	Clubs    Suit = "c"
	Spades   Suit = "s"
)

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

var rankSymbols = "23456789TJQKA"

func (r Rank) String() string {
	if r < Two || r > Ace {
		return "?"
	}
	return string(rankSymbols[r-Two])
}

// Card is an immutable playing card. Ace is high (14).
type Card struct {
	Rank Rank `json:"rank"`
	Suit Suit `json:"suit"`
}

func (c Card) String() string {
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}

func (c Card) Value() int {
	return int(c.Rank)
}

// ParseCard parses the two-character form produced by Card.String, e.g. "As" or "Td".
func ParseCard(s string) (Card, error) {
	if len(s) != 2 {
		return Card{}, fmt.Errorf("invalid card %q", s)
	}
	idx := strings.IndexByte(rankSymbols, s[0])
	if idx < 0 {
		return Card{}, fmt.Errorf("invalid rank in card %q", s)
	}
	suit := Suit(s[1:])
	switch suit {
	case Hearts, Diamonds, Clubs, Spades:
	default:
		return Card{}, fmt.Errorf("invalid suit in card %q", s)
	}
	return Card{Rank: Two + Rank(idx), Suit: suit}, nil
}

// MustParseCards parses a space separated card list and panics on error.
func MustParseCards(s string) []Card {
	fields := strings.Fields(s)
	cards := make([]Card, 0, len(fields))
	for _, f := range fields {
		c, err := ParseCard(f)
		if err != nil {
			panic(err)
		}
		cards = append(cards, c)
	}
	return cards
}

type Deck struct {
	cards []Card
	rng   *rand.Rand
}

// NewDeck returns a shuffled deck seeded from crypto/rand.
func NewDeck() *Deck {
	var seed int64
	if err := binary.Read(crand.Reader, binary.LittleEndian, &seed); err != nil {
		seed = time.Now().UnixNano()
	}
	return NewDeckWithRand(rand.New(rand.NewSource(seed)))
}

func NewDeckWithRand(rng *rand.Rand) *Deck {
	deck := &Deck{
		cards: make([]Card, 0, 52),
		rng:   rng,
	}
	deck.Reset()
	return deck
}

// NewDeckFromCards returns a deck that deals exactly the given cards in order.
func NewDeckFromCards(cards []Card) *Deck {
	return &Deck{cards: append([]Card(nil), cards...)}
}

func (d *Deck) Reset() {
	d.cards = make([]Card, 0, 52)
	suits := []Suit{Hearts, Diamonds, Clubs, Spades}

	for _, suit := range suits {
		for rank := Two; rank <= Ace; rank++ {
			d.cards = append(d.cards, Card{Rank: rank, Suit: suit})
		}
	}
	d.Shuffle()
}

func (d *Deck) Shuffle() {
	if d.rng == nil {
		return
	}
	d.rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

func (d *Deck) Deal() (Card, error) {
	if len(d.cards) == 0 {
		return Card{}, fmt.Errorf("deck is empty - no more cards to deal")
	}
	card := d.cards[0]
	d.cards = d.cards[1:]
	return card, nil
}

func (d *Deck) DealMultiple(n int) ([]Card, error) {
	if len(d.cards) < n {
		return nil, fmt.Errorf("not enough cards in deck: requested %d, available %d", n, len(d.cards))
	}
	cards := make([]Card, n)
	copy(cards, d.cards[:n])
	d.cards = d.cards[n:]
	return cards, nil
}

func (d *Deck) CardsRemaining() int {
	return len(d.cards)
}
