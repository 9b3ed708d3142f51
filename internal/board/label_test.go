package board

import "testing"

const afterE4 = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR"

func TestPlaceholderLabeler(t *testing.T) {
	l := PlaceholderLabeler{}
	if got := l.Label("", StartFEN, 1); got != "" {
		t.Fatalf("first record must be unlabeled, got %q", got)
	}
	if got := l.Label(StartFEN, StartPlacement+" b - - 0 1", 2); got != "" {
		t.Fatalf("unchanged placement must be unlabeled, got %q", got)
	}
	if got := l.Label(StartFEN, afterE4+" w KQkq - 0 1", 2); got != "Move 2" {
		t.Fatalf("want Move 2, got %q", got)
	}
}

func TestSANLabelerInfersBothSides(t *testing.T) {
	l := SANLabeler{}
	if got := l.Label(StartFEN, afterE4+" w KQkq - 0 1", 2); got != "e4" {
		t.Fatalf("white move: want e4, got %q", got)
	}
	// detector output keeps claiming white to move; black's reply must still resolve
	afterE5 := "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR"
	if got := l.Label(afterE4+" w KQkq - 0 1", afterE5+" w KQkq - 0 1", 3); got != "e5" {
		t.Fatalf("black move: want e5, got %q", got)
	}
}

func TestSANLabelerFallsBack(t *testing.T) {
	l := SANLabeler{}
	if got := l.Label(StartFEN, "8/8/8/8/8/8/8/8 w - - 0 1", 4); got != "Move 4" {
		t.Fatalf("want placeholder fallback, got %q", got)
	}
}

func TestLabelerFor(t *testing.T) {
	if _, ok := LabelerFor("SAN").(SANLabeler); !ok {
		t.Fatalf("san mode")
	}
	if _, ok := LabelerFor("").(PlaceholderLabeler); !ok {
		t.Fatalf("default mode")
	}
}

func TestSANLabelerDisambiguatesKnights(t *testing.T) {
	// knights on b1 and f3 can both reach d2
	prev := "rnbqkbnr/pppppppp/8/8/3P4/5N2/PPP1PPPP/RNBQKB1R w KQkq - 0 1"
	next := "rnbqkbnr/pppppppp/8/8/3P4/5N2/PPPNPPPP/R1BQKB1R w KQkq - 0 1"
	if got := (SANLabeler{}).Label(prev, next, 5); got != "Nbd2" {
		t.Fatalf("want Nbd2, got %q", got)
	}
}

func TestUniqueSAN(t *testing.T) {
	cases := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{"e4"}, "e4"},
		{[]string{"Nf3", "Nf3"}, "Nf3"},
		{[]string{"Kaa2", "Kba2"}, ""},
	}
	for _, c := range cases {
		if got := uniqueSAN(c.in); got != c.want {
			t.Fatalf("uniqueSAN(%v): want %q got %q", c.in, c.want, got)
		}
	}
}
