// Package bingo implements the 75-ball bingo rules: number tokens,
// deterministic card generation and win pattern evaluation.
package bingo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Letters holds the column letters in card order.
const Letters = "BINGO"

const (
	// ColumnSize is how many numbers belong to each letter.
	ColumnSize = 15
	// MaxNumber is the highest ball number.
	MaxNumber = len(Letters) * ColumnSize
)

// ErrInvalidToken is returned when a called-number token cannot be parsed.
var ErrInvalidToken = errors.New("invalid bingo token")

// Token formats a called number as "LETTER-number", e.g. "B-7".
// The letter is derived from the number's column range.
func Token(n int) string {
	return fmt.Sprintf("%c-%d", Letters[(n-1)/ColumnSize], n)
}

// ParseToken splits a "LETTER-number" token into its column index and number.
// The letter must match the number's column range.
func ParseToken(token string) (col int, n int, err error) {
	letter, num, ok := strings.Cut(token, "-")
	if !ok || len(letter) != 1 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}
	col = strings.IndexByte(Letters, letter[0])
	if col < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}
	n, err = strconv.Atoi(num)
	if err != nil || n < col*ColumnSize+1 || n > (col+1)*ColumnSize {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}
	return col, n, nil
}

// AllTokens returns every token in ball order, B-1 through O-75.
func AllTokens() []string {
	tokens := make([]string, 0, MaxNumber)
	for n := 1; n <= MaxNumber; n++ {
		tokens = append(tokens, Token(n))
	}
	return tokens
}

// Remaining returns the tokens not yet present in called, in ball order.
func Remaining(called []string) []string {
	seen := make(map[string]struct{}, len(called))
	for _, t := range called {
		seen[t] = struct{}{}
	}
	pool := make([]string, 0, MaxNumber-len(seen))
	for n := 1; n <= MaxNumber; n++ {
		t := Token(n)
		if _, ok := seen[t]; !ok {
			pool = append(pool, t)
		}
	}
	return pool
}
