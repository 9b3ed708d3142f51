package board

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// StartPlacement is the placement field of the standard opening position.
	StartPlacement = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR"
	// DefaultTail is used when no prior position supplies the non-placement fields.
	DefaultTail = "w KQkq - 0 1"
	// StartFEN is the full FEN string for the starting position.
	StartFEN = StartPlacement + " " + DefaultTail
)

// Grid holds an 8x8 board. Row 0 is FEN rank 8, column 0 is file a.
type Grid [8][8]Piece

// DecodeError reports a malformed placement field. Rank and Column are
// zero-based grid coordinates; Column is -1 when the whole rank is at fault.
type DecodeError struct {
	Placement string
	Rank      int
	Column    int
	Reason    string
}

func (e *DecodeError) Error() string {
	if e.Rank < 0 {
		return fmt.Sprintf("decode placement %q: %s", e.Placement, e.Reason)
	}
	if e.Column < 0 {
		return fmt.Sprintf("decode placement %q: rank %d: %s", e.Placement, 8-e.Rank, e.Reason)
	}
	return fmt.Sprintf("decode placement %q: rank %d col %d: %s", e.Placement, 8-e.Rank, e.Column, e.Reason)
}

// Decode parses the placement field of fen into a Grid. Only the first
// whitespace-separated field is read, so full FEN strings are accepted.
func Decode(fen string) (Grid, error) {
	var g Grid
	placement, _ := Split(fen)
	if placement == "" {
		return g, &DecodeError{Placement: fen, Rank: -1, Column: -1, Reason: "empty placement"}
	}

	ranks := strings.Split(placement, "/")
	if len(ranks) != 8 {
		return g, &DecodeError{Placement: placement, Rank: -1, Column: -1, Reason: fmt.Sprintf("need 8 ranks, got %d", len(ranks))}
	}

	for r, desc := range ranks {
		file := 0
		for _, c := range desc {
			if file > 7 {
				return g, &DecodeError{Placement: placement, Rank: r, Column: file, Reason: "too many squares"}
			}
			switch {
			case c >= '1' && c <= '8':
				file += int(c - '0')
			default:
				p, ok := ParsePiece(c)
				if !ok {
					return g, &DecodeError{Placement: placement, Rank: r, Column: file, Reason: fmt.Sprintf("invalid character %q", c)}
				}
				g[r][file] = p
				file++
			}
		}
		if file != 8 {
			return g, &DecodeError{Placement: placement, Rank: r, Column: -1, Reason: fmt.Sprintf("rank covers %d files", file)}
		}
	}
	return g, nil
}

// Encode renders g as a placement field followed by a single space and tail.
// A blank tail is replaced by DefaultTail.
func Encode(g Grid, tail string) string {
	var sb strings.Builder
	sb.Grow(90)
	sb.WriteString(g.Placement())
	sb.WriteByte(' ')
	tail = strings.TrimSpace(tail)
	if tail == "" {
		tail = DefaultTail
	}
	sb.WriteString(tail)
	return sb.String()
}

// Placement returns the run-length encoded placement field of g.
func (g Grid) Placement() string {
	var sb strings.Builder
	for r := 0; r < 8; r++ {
		empty := 0
		for f := 0; f < 8; f++ {
			p := g[r][f]
			if p == NoPiece {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			sb.WriteByte(byte(p))
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if r < 7 {
			sb.WriteByte('/')
		}
	}
	return sb.String()
}

// At returns the piece on sq.
func (g *Grid) At(sq Square) Piece { return g[sq.Rank][sq.File] }

// Set places p (or NoPiece) on sq.
func (g *Grid) Set(sq Square, p Piece) { g[sq.Rank][sq.File] = p }

// Count returns the number of occupied cells.
func (g Grid) Count() int {
	n := 0
	for r := range g {
		for f := range g[r] {
			if g[r][f] != NoPiece {
				n++
			}
		}
	}
	return n
}

// Split separates a FEN string into its placement field and the remaining
// tail fields. The tail is empty when fen carries only a placement.
func Split(fen string) (placement, tail string) {
	fields := strings.Fields(fen)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

// TailOf returns the tail fields of fen, or DefaultTail when it has none.
func TailOf(fen string) string {
	if _, tail := Split(fen); tail != "" {
		return tail
	}
	return DefaultTail
}

// Normalize returns fen with a tail, defaulting it when absent.
func Normalize(fen string) string {
	placement, tail := Split(fen)
	if tail == "" {
		tail = DefaultTail
	}
	return placement + " " + tail
}

// SamePlacement reports whether two FEN strings describe the same piece
// arrangement, ignoring the tail fields.
func SamePlacement(a, b string) bool {
	pa, _ := Split(a)
	pb, _ := Split(b)
	if pa == "" || pb == "" {
		return false
	}
	return pa == pb
}
