package bingo

// Pattern names a winning shape on the card.
type Pattern string

// Supported win patterns.
const (
	PatternLine        Pattern = "line"         // any row, column or diagonal
	PatternFullHouse   Pattern = "full_house"   // all 25 cells
	PatternFourCorners Pattern = "four_corners" // B and O on the first and last rows
	PatternX           Pattern = "X"            // both diagonals
)

// Patterns returns every supported pattern.
func Patterns() []Pattern {
	return []Pattern{PatternLine, PatternFullHouse, PatternFourCorners, PatternX}
}

// ParsePattern reports whether s names a supported pattern.
func ParsePattern(s string) (Pattern, bool) {
	for _, p := range Patterns() {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// MarkSet is the set of called tokens marked on a card.
type MarkSet map[string]struct{}

// NewMarkSet builds a MarkSet from tokens.
func NewMarkSet(tokens ...string) MarkSet {
	m := make(MarkSet, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// Has reports whether token is marked.
func (m MarkSet) Has(token string) bool {
	_, ok := m[token]
	return ok
}

// grid is the satisfied-cell view of a card, indexed [column][row].
type grid [5][5]bool

func satisfied(card Card, marked MarkSet) grid {
	var g grid
	for col := range card {
		for row, v := range card[col] {
			g[col][row] = v == Free || marked.Has(Token(v))
		}
	}
	return g
}

func (g grid) row(r int) bool {
	for c := range 5 {
		if !g[c][r] {
			return false
		}
	}
	return true
}

func (g grid) column(c int) bool {
	for r := range 5 {
		if !g[c][r] {
			return false
		}
	}
	return true
}

func (g grid) diagonal() bool {
	for i := range 5 {
		if !g[i][i] {
			return false
		}
	}
	return true
}

func (g grid) antiDiagonal() bool {
	for i := range 5 {
		if !g[i][4-i] {
			return false
		}
	}
	return true
}

// CheckWin reports whether the card satisfies pattern given the marked tokens.
// Unknown patterns never win.
func CheckWin(card Card, marked MarkSet, pattern Pattern) bool {
	g := satisfied(card, marked)

	switch pattern {
	case PatternLine:
		for i := range 5 {
			if g.row(i) || g.column(i) {
				return true
			}
		}
		return g.diagonal() || g.antiDiagonal()
	case PatternFullHouse:
		for i := range 5 {
			if !g.column(i) {
				return false
			}
		}
		return true
	case PatternFourCorners:
		return g[0][0] && g[4][0] && g[0][4] && g[4][4]
	case PatternX:
		return g.diagonal() && g.antiDiagonal()
	default:
		return false
	}
}
