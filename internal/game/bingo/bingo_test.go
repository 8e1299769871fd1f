package bingo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken(t *testing.T) {
	tests := []struct {
		n        int
		expected string
	}{
		{1, "B-1"},
		{15, "B-15"},
		{16, "I-16"},
		{31, "N-31"},
		{45, "N-45"},
		{46, "G-46"},
		{60, "G-60"},
		{75, "O-75"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, Token(tt.n))
		})
	}
}

func TestParseToken(t *testing.T) {
	col, n, err := ParseToken("G-52")
	require.NoError(t, err)
	assert.Equal(t, 3, col)
	assert.Equal(t, 52, n)

	invalid := []string{"", "B", "B-", "B-16", "X-3", "BB-3", "O-60", "N-abc", "B7"}
	for _, tok := range invalid {
		_, _, err := ParseToken(tok)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", tok)
	}
}

func TestAllTokensAndRemaining(t *testing.T) {
	all := AllTokens()
	require.Len(t, all, MaxNumber)
	assert.Equal(t, "B-1", all[0])
	assert.Equal(t, "O-75", all[74])

	pool := Remaining([]string{"B-1", "O-75", "N-40"})
	assert.Len(t, pool, 72)
	assert.NotContains(t, pool, "B-1")
	assert.NotContains(t, pool, "N-40")
	assert.Contains(t, pool, "B-2")

	assert.Empty(t, Remaining(all))
}

func TestGenerateCard_Deterministic(t *testing.T) {
	a := GenerateCard(145)
	b := GenerateCard(145)
	assert.Equal(t, a, b)

	// Interleaving other generations must not change the result.
	_ = GenerateCard(300)
	assert.Equal(t, a, GenerateCard(145))

	assert.NotEqual(t, GenerateCard(145), GenerateCard(146))
}

func TestGenerateCard_FreeCentre(t *testing.T) {
	card := GenerateCard(200)
	assert.Equal(t, Free, card[2][2])
	assert.Len(t, card.Tokens(), 24)
}

func TestCard_Contains(t *testing.T) {
	card := GenerateCard(512)
	for _, tok := range card.Tokens() {
		assert.True(t, card.Contains(tok), tok)
	}
	assert.False(t, card.Contains("garbage"))

	onCard := NewMarkSet(card.Tokens()...)
	for _, tok := range AllTokens() {
		assert.Equal(t, onCard.Has(tok), card.Contains(tok), tok)
	}
}

func TestCard_MarshalJSON(t *testing.T) {
	card := GenerateCard(145)
	data, err := json.Marshal(card)
	require.NoError(t, err)

	var decoded map[string][]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 5)
	assert.Equal(t, "FREE", decoded["N"][2])
	assert.Equal(t, float64(card[0][0]), decoded["B"][0])
	assert.Equal(t, float64(card[4][4]), decoded["O"][4])
}

// literalCard is a hand-built card with B = 1..5 and the four corners at 1, 61, 5, 65.
func literalCard() Card {
	return Card{
		{1, 2, 3, 4, 5},
		{16, 17, 18, 19, 20},
		{31, 32, Free, 34, 35},
		{46, 47, 48, 49, 50},
		{61, 62, 63, 64, 65},
	}
}

func TestCheckWin_Line(t *testing.T) {
	card := literalCard()

	// Full B column.
	assert.True(t, CheckWin(card, NewMarkSet("B-1", "B-2", "B-3", "B-4", "B-5"), PatternLine))

	// Top row across columns.
	assert.True(t, CheckWin(card, NewMarkSet("B-1", "I-16", "N-31", "G-46", "O-61"), PatternLine))

	// Middle row uses the free centre.
	assert.True(t, CheckWin(card, NewMarkSet("B-3", "I-18", "G-48", "O-63"), PatternLine))

	// Diagonals.
	assert.True(t, CheckWin(card, NewMarkSet("B-1", "I-17", "G-49", "O-65"), PatternLine))
	assert.True(t, CheckWin(card, NewMarkSet("B-5", "I-19", "G-47", "O-61"), PatternLine))

	// Four of five is not a line.
	assert.False(t, CheckWin(card, NewMarkSet("B-1", "B-2", "B-3", "B-4"), PatternLine))
	assert.False(t, CheckWin(card, NewMarkSet(), PatternLine))
}

func TestCheckWin_FourCorners(t *testing.T) {
	card := literalCard()

	// Column I fully marked does not satisfy the corners.
	assert.False(t, CheckWin(card, NewMarkSet("I-16", "I-17", "I-18", "I-19", "I-20"), PatternFourCorners))

	assert.False(t, CheckWin(card, NewMarkSet("B-1", "O-61", "B-5"), PatternFourCorners))
	assert.True(t, CheckWin(card, NewMarkSet("B-1", "O-61", "B-5", "O-65"), PatternFourCorners))
}

func TestCheckWin_X(t *testing.T) {
	card := literalCard()
	one := []string{"B-1", "I-17", "G-49", "O-65"}
	other := []string{"B-5", "I-19", "G-47", "O-61"}

	assert.False(t, CheckWin(card, NewMarkSet(one...), PatternX))
	assert.True(t, CheckWin(card, NewMarkSet(append(one, other...)...), PatternX))
}

func TestCheckWin_FullHouse(t *testing.T) {
	card := literalCard()
	tokens := card.Tokens()

	assert.True(t, CheckWin(card, NewMarkSet(tokens...), PatternFullHouse))
	assert.False(t, CheckWin(card, NewMarkSet(tokens[1:]...), PatternFullHouse))
}

func TestCheckWin_UnknownPattern(t *testing.T) {
	card := literalCard()
	assert.False(t, CheckWin(card, NewMarkSet(card.Tokens()...), Pattern("blackout")))
}

func TestParsePattern(t *testing.T) {
	for _, p := range Patterns() {
		got, ok := ParsePattern(string(p))
		assert.True(t, ok)
		assert.Equal(t, p, got)
	}
	_, ok := ParsePattern("x")
	assert.False(t, ok)
}
