package board

import (
	"fmt"
	"strings"
)

// Piece is a FEN piece letter. Upper case is white, lower case is black.
type Piece byte

const NoPiece Piece = 0

const pieceLetters = "KQRBNPkqrbnp"

// ParsePiece converts a FEN letter into a Piece.
func ParsePiece(c rune) (Piece, bool) {
	if c > 0x7f || !strings.ContainsRune(pieceLetters, c) {
		return NoPiece, false
	}
	return Piece(c), true
}

// ParsePieceString accepts a single letter, or "", "-" and "empty" for an
// empty square.
func ParsePieceString(s string) (Piece, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "-", "empty":
		return NoPiece, nil
	}
	if len(s) != 1 {
		return NoPiece, fmt.Errorf("invalid piece %q", s)
	}
	p, ok := ParsePiece(rune(s[0]))
	if !ok {
		return NoPiece, fmt.Errorf("invalid piece %q", s)
	}
	return p, nil
}

func (p Piece) String() string {
	if p == NoPiece {
		return ""
	}
	return string(rune(p))
}

func (p Piece) IsWhite() bool { return p >= 'A' && p <= 'Z' }

// Square addresses a grid cell. Rank 0 is FEN rank 8.
type Square struct {
	Rank int
	File int
}

// ParseSquare parses algebraic coordinates such as "e4".
func ParseSquare(s string) (Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return Square{}, fmt.Errorf("invalid square %q", s)
	}
	return Square{Rank: 7 - int(s[1]-'1'), File: int(s[0] - 'a')}, nil
}

func (s Square) String() string {
	return fmt.Sprintf("%c%d", 'a'+s.File, 8-s.Rank)
}

func (s Square) Valid() bool {
	return s.Rank >= 0 && s.Rank < 8 && s.File >= 0 && s.File < 8
}
