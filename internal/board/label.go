package board

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Labeler derives the optional move label for a new history record.
// ordinal is the 1-based position of the new record; prev is empty for the
// first record.
type Labeler interface {
	Label(prev, next string, ordinal int) string
}

// PlaceholderLabeler numbers changed positions as "Move N". It never
// consults chess rules.
type PlaceholderLabeler struct{}

func (PlaceholderLabeler) Label(prev, next string, ordinal int) string {
	if strings.TrimSpace(prev) == "" || SamePlacement(prev, next) {
		return ""
	}
	return fmt.Sprintf("Move %d", ordinal)
}

// SANLabeler looks for a single legal move that turns prev into next and
// labels it in SAN. Detected positions rarely carry a reliable side to move,
// so both colors are tried. Anything it cannot explain falls back to the
// placeholder label.
type SANLabeler struct{}

func (SANLabeler) Label(prev, next string, ordinal int) string {
	if strings.TrimSpace(prev) == "" || SamePlacement(prev, next) {
		return ""
	}
	want, _ := Split(next)
	for _, side := range sideOrder(prev) {
		if san := inferSAN(withSide(prev, side), want); san != "" {
			return san
		}
	}
	return PlaceholderLabeler{}.Label(prev, next, ordinal)
}

// LabelerFor maps a config value to a Labeler.
func LabelerFor(mode string) Labeler {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "san":
		return SANLabeler{}
	default:
		return PlaceholderLabeler{}
	}
}

// inferSAN returns the SAN of the only legal move from fromFEN that yields
// wantPlacement, or "" when no move or more than one move does.
func inferSAN(fromFEN, wantPlacement string) string {
	opt, err := nchess.FEN(fromFEN)
	if err != nil {
		return ""
	}
	base := nchess.NewGame(opt)
	var found []string
	for _, mv := range base.ValidMoves() {
		uci := mv.String()
		replay, err := nchess.FEN(fromFEN)
		if err != nil {
			return ""
		}
		game := nchess.NewGame(replay)
		pos := game.Position()
		if err := game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
			continue
		}
		if got, _ := Split(game.FEN()); got != wantPlacement {
			continue
		}
		moves := game.Moves()
		if len(moves) == 0 {
			continue
		}
		found = append(found, nchess.AlgebraicNotation{}.Encode(pos, moves[len(moves)-1]))
	}
	return uniqueSAN(found)
}

// uniqueSAN returns the candidate when all candidates agree on one move.
func uniqueSAN(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	for _, c := range candidates[1:] {
		if c != candidates[0] {
			return ""
		}
	}
	return candidates[0]
}

func sideOrder(fen string) []string {
	fields := strings.Fields(TailOf(fen))
	if len(fields) > 0 && fields[0] == "b" {
		return []string{"b", "w"}
	}
	return []string{"w", "b"}
}

// withSide rewrites the active color and drops the en passant square, which
// is meaningless once the side is forced.
func withSide(fen, side string) string {
	placement, _ := Split(fen)
	fields := strings.Fields(TailOf(fen))
	for len(fields) < 5 {
		fields = append(fields, strings.Fields(DefaultTail)[len(fields)])
	}
	fields[0] = side
	fields[2] = "-"
	return placement + " " + strings.Join(fields, " ")
}
