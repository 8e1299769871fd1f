package bingo

import (
	"encoding/json"
	"math/rand/v2"
)

// Free is the sentinel stored in the centre cell. It is always marked.
const Free = 0

// cardSeedSalt is the second PCG seed word. Changing it changes every card.
const cardSeedSalt uint64 = 0x62696e676f2d3735 // "bingo-75"

// Card is a 5x5 bingo card indexed as Card[column][row].
// Columns follow Letters; Card[2][2] is Free.
type Card [5][5]int

// GenerateCard builds the card for a card number.
//
// The derivation is fixed so cards never need to be stored:
// a PCG generator seeded with (uint64(cardNumber), cardSeedSalt) is created
// for the call, and for each column B..O a partial Fisher-Yates shuffle over
// the column's 15 numbers (ascending) picks 5 values, swapping position i with
// i + Uint64()%(15-i). The centre of N is then overwritten with Free.
// No shared random source is touched.
func GenerateCard(cardNumber int) Card {
	rng := rand.New(rand.NewPCG(uint64(cardNumber), cardSeedSalt))

	var card Card
	for col := range len(Letters) {
		var values [ColumnSize]int
		for i := range values {
			values[i] = col*ColumnSize + i + 1
		}
		for i := range 5 {
			j := i + int(rng.Uint64()%uint64(ColumnSize-i))
			values[i], values[j] = values[j], values[i]
			card[col][i] = values[i]
		}
	}
	card[2][2] = Free
	return card
}

// Contains reports whether the token's number sits in the token's column.
func (c Card) Contains(token string) bool {
	col, n, err := ParseToken(token)
	if err != nil {
		return false
	}
	for _, v := range c[col] {
		if v == n {
			return true
		}
	}
	return false
}

// Tokens lists the card's numbered cells as tokens, column by column.
func (c Card) Tokens() []string {
	tokens := make([]string, 0, 24)
	for col := range c {
		for _, v := range c[col] {
			if v != Free {
				tokens = append(tokens, Token(v))
			}
		}
	}
	return tokens
}

// cardJSON keeps the B, I, N, G, O key order on the wire.
type cardJSON struct {
	B []any `json:"B"`
	I []any `json:"I"`
	N []any `json:"N"`
	G []any `json:"G"`
	O []any `json:"O"`
}

// MarshalJSON renders the card as {"B":[...],...} with "FREE" in the centre.
func (c Card) MarshalJSON() ([]byte, error) {
	cols := make([][]any, len(c))
	for col := range c {
		cols[col] = make([]any, len(c[col]))
		for row, v := range c[col] {
			if v == Free {
				cols[col][row] = "FREE"
			} else {
				cols[col][row] = v
			}
		}
	}
	return json.Marshal(cardJSON{B: cols[0], I: cols[1], N: cols[2], G: cols[3], O: cols[4]})
}
