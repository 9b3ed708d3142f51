package board

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
)

func TestDecodeStartPosition(t *testing.T) {
	g, err := Decode(StartPlacement)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	back := []Piece{'r', 'n', 'b', 'q', 'k', 'b', 'n', 'r'}
	for f, want := range back {
		if g[0][f] != want {
			t.Fatalf("rank0 file%d: want %c got %q", f, want, g[0][f])
		}
	}
	for r := 2; r <= 5; r++ {
		for f := 0; f < 8; f++ {
			if g[r][f] != NoPiece {
				t.Fatalf("expected empty at %d,%d got %c", r, f, g[r][f])
			}
		}
	}
	for f := 0; f < 8; f++ {
		if g[6][f] != 'P' {
			t.Fatalf("rank6 file%d: want P got %q", f, g[6][f])
		}
	}
	if got := g.At(Square{Rank: 7, File: 4}); got != 'K' {
		t.Fatalf("e1: want K got %q", got)
	}
	if g.Count() != 32 {
		t.Fatalf("count: want 32 got %d", g.Count())
	}
}

func TestDecodeAcceptsFullFEN(t *testing.T) {
	g, err := Decode(StartFEN)
	if err != nil {
		t.Fatalf("Decode full FEN: %v", err)
	}
	if g.Placement() != StartPlacement {
		t.Fatalf("placement mismatch: %s", g.Placement())
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"seven ranks":    "8/8/8/8/8/8/8",
		"short rank":     "8/8/8/8/8/8/8/7",
		"long rank":      "8/8/8/8/8/8/8/ppppppppp",
		"digit overflow": "8/8/8/8/8/8/8/44p",
		"bad letter":     "8/8/8/8/8/8/8/7x",
		"zero digit":     "8/8/8/8/8/8/8/08",
		"nine digit":     "9/8/8/8/8/8/8/8",
	}
	for name, in := range cases {
		_, err := Decode(in)
		if err == nil {
			t.Fatalf("%s: expected error for %q", name, in)
		}
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("%s: expected *DecodeError, got %T", name, err)
		}
	}
}

func TestEncodeEmptyGrid(t *testing.T) {
	var g Grid
	if got := Encode(g, "w - - 0 1"); got != "8/8/8/8/8/8/8/8 w - - 0 1" {
		t.Fatalf("unexpected encoding: %q", got)
	}
	if got := Encode(g, ""); got != "8/8/8/8/8/8/8/8 "+DefaultTail {
		t.Fatalf("default tail not applied: %q", got)
	}
}

func TestEncodeRunLength(t *testing.T) {
	var g Grid
	for f := 0; f < 8; f++ {
		g[0][f] = 'p'
	}
	g[3][2] = 'Q'
	g[3][7] = 'k'
	placement := g.Placement()
	ranks := strings.Split(placement, "/")
	if strings.ContainsAny(ranks[0], "12345678") {
		t.Fatalf("full rank must not contain digits: %q", ranks[0])
	}
	if ranks[1] != "8" {
		t.Fatalf("empty rank must be 8, got %q", ranks[1])
	}
	if ranks[3] != "2Q4k" {
		t.Fatalf("rank 5: want 2Q4k got %q", ranks[3])
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		StartPlacement,
		"8/8/8/8/8/8/8/8",
		"r3k2r/p1ppqpb1/bn2pnp1/3PN3/1p2P3/2N2Q1p/PPPBBPPP/R3K2R",
		// illegal arrangements still round-trip
		"KKKKKKKK/kkkkkkkk/8/8/8/8/pppppppp/PPPPPPPP",
		"7P/p7/8/3nN3/8/8/8/8",
	}
	for _, in := range inputs {
		g, err := Decode(in)
		if err != nil {
			t.Fatalf("Decode(%q): %v", in, err)
		}
		out := Encode(g, "b - - 3 9")
		g2, err := Decode(out)
		if err != nil {
			t.Fatalf("Decode(Encode): %v", err)
		}
		if g2 != g {
			t.Fatalf("round trip mismatch for %q: %q", in, out)
		}
		if p, tail := Split(out); p != in || tail != "b - - 3 9" {
			t.Fatalf("split mismatch: %q %q", p, tail)
		}
	}
}

func TestRoundTripRandomGrids(t *testing.T) {
	const pieces = "KQRBNPkqrbnp"
	rng := rand.New(rand.NewSource(20251019))
	for i := 0; i < 500; i++ {
		var g Grid
		for r := 0; r < 8; r++ {
			for f := 0; f < 8; f++ {
				if n := rng.Intn(len(pieces) + 4); n < len(pieces) {
					g[r][f] = Piece(pieces[n])
				}
			}
		}
		out := Encode(g, "w - - 0 1")
		back, err := Decode(out)
		if err != nil {
			t.Fatalf("iteration %d: Decode(%q): %v", i, out, err)
		}
		if back != g {
			t.Fatalf("iteration %d: round trip mismatch for %q", i, out)
		}
	}
}

func TestSetAndSquare(t *testing.T) {
	g, _ := Decode(StartFEN)
	sq, err := ParseSquare("e4")
	if err != nil {
		t.Fatalf("ParseSquare: %v", err)
	}
	if sq.Rank != 4 || sq.File != 4 || sq.String() != "e4" {
		t.Fatalf("unexpected square: %+v %s", sq, sq)
	}
	e2, _ := ParseSquare("e2")
	g.Set(e2, NoPiece)
	g.Set(sq, 'P')
	want := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR"
	if g.Placement() != want {
		t.Fatalf("want %s got %s", want, g.Placement())
	}
	if _, err := ParseSquare("i9"); err == nil {
		t.Fatalf("expected error for i9")
	}
}

func TestParsePieceString(t *testing.T) {
	for _, s := range []string{"", "-", "empty"} {
		p, err := ParsePieceString(s)
		if err != nil || p != NoPiece {
			t.Fatalf("%q: want empty, got %q %v", s, p, err)
		}
	}
	if p, err := ParsePieceString("q"); err != nil || p != 'q' || p.IsWhite() {
		t.Fatalf("q: got %q %v", p, err)
	}
	if _, err := ParsePieceString("X"); err == nil {
		t.Fatalf("expected error for X")
	}
}

func TestSamePlacementAndTail(t *testing.T) {
	if !SamePlacement(StartFEN, StartPlacement+" b - - 0 1") {
		t.Fatalf("tails must be ignored")
	}
	if SamePlacement(StartFEN, "8/8/8/8/8/8/8/8 w - - 0 1") {
		t.Fatalf("different placements reported equal")
	}
	if SamePlacement("", StartFEN) {
		t.Fatalf("empty FEN must never match")
	}
	if TailOf(StartPlacement) != DefaultTail {
		t.Fatalf("TailOf default")
	}
	if Normalize(StartPlacement) != StartFEN {
		t.Fatalf("Normalize: %q", Normalize(StartPlacement))
	}
}
