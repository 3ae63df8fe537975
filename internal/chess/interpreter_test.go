package chess

import (
	"testing"

	"github.com/park285/cheese-arena/internal/domain"
)

func mustPosition(t *testing.T, moves ...string) *Position {
	t.Helper()
	p, err := PositionFromMoves(moves)
	if err != nil {
		t.Fatalf("PositionFromMoves(%v): %v", moves, err)
	}
	return p
}

func TestInterpretOpeningPawnMove(t *testing.T) {
	in := NewInterpreter()
	pos := NewPosition()
	got := in.Interpret("e4", pos)
	if got.Kind != KindAccepted || got.UsedFallback {
		t.Fatalf("expected accepted, got %+v", got)
	}
	if got.Move.UCI != "e2e4" || got.Notation != "e4" {
		t.Fatalf("unexpected move %+v", got.Move)
	}
}

func TestInterpretExtractsFromSentence(t *testing.T) {
	in := NewInterpreter()
	got := in.Interpret("I think I'll play Nf3 to develop.", NewPosition())
	if got.Kind != KindAccepted {
		t.Fatalf("expected accepted, got %+v", got)
	}
	if got.Candidate != "Nf3" || got.Move.UCI != "g1f3" {
		t.Fatalf("candidate=%q move=%+v", got.Candidate, got.Move)
	}
}

func TestInterpretCoordinateNotation(t *testing.T) {
	in := NewInterpreter()
	pos := mustPosition(t, "e2e4")
	for _, raw := range []string{"e7e5", "My move: e7e5", "E7E5", "My move: E7E5"} {
		got := in.Interpret(raw, pos)
		if got.Kind != KindAccepted || got.Notation != "e5" {
			t.Fatalf("%q: expected e5, got %+v", raw, got)
		}
	}
}

func TestInterpretIllegalCoordinateIsInvalid(t *testing.T) {
	in := NewInterpreter()
	got := in.Interpret("I'll play e7e5", NewPosition())
	if got.Kind != KindInvalid || got.OK() {
		t.Fatalf("expected invalid, got %+v", got)
	}
	if got.Candidate != "e7e5" {
		t.Fatalf("candidate=%q", got.Candidate)
	}
}

func TestInterpretCastlingSpellings(t *testing.T) {
	in := NewInterpreter()
	pos := mustPosition(t, "e2e4", "e7e5", "g1f3", "b8c6", "f1c4", "f8c5")
	for _, raw := range []string{"O-O", "0-0", "oo", "I castle: O-O"} {
		got := in.Interpret(raw, pos)
		if got.Kind != KindAccepted || got.Move.UCI != "e1g1" {
			t.Fatalf("%q: expected kingside castle, got %+v", raw, got)
		}
	}
}

func TestInterpretGarbageFallsBackToFirstLegal(t *testing.T) {
	in := NewInterpreter()
	pos := NewPosition()
	got := in.Interpret("xyz123", pos)
	if got.Kind != KindInvalid {
		t.Fatalf("expected invalid, got %+v", got)
	}
	fb, err := in.Fallback(got.Candidate, pos)
	if err != nil {
		t.Fatalf("Fallback: %v", err)
	}
	first := LegalMoves(pos)[0]
	if fb.Kind != KindFallback || !fb.UsedFallback || fb.Move.UCI != first.UCI {
		t.Fatalf("expected first legal %s, got %+v", first.UCI, fb)
	}

	again, _ := in.Fallback(got.Candidate, pos)
	if again.Move.UCI != fb.Move.UCI {
		t.Fatalf("fallback not deterministic: %s vs %s", again.Move.UCI, fb.Move.UCI)
	}
}

func TestFallbackPrefersCaptureOnQueenTarget(t *testing.T) {
	in := NewInterpreter()
	pos := mustPosition(t, "e2e4", "d7d5")
	got := in.Interpret("Qxd5", pos)
	if got.Kind != KindInvalid {
		t.Fatalf("queen is blocked, expected invalid: %+v", got)
	}
	fb, err := in.Fallback(got.Candidate, pos)
	if err != nil {
		t.Fatalf("Fallback: %v", err)
	}
	if fb.Move.UCI != "e4d5" || fb.Notation != "exd5" {
		t.Fatalf("expected exd5, got %+v", fb.Move)
	}
}

func TestFallbackQueenCaptureWithoutTargetCapture(t *testing.T) {
	in := NewInterpreter()
	pos := NewPosition()
	fb, err := in.Fallback("Qxh7+", pos)
	if err != nil {
		t.Fatalf("Fallback: %v", err)
	}
	if fb.Move.UCI != LegalMoves(pos)[0].UCI {
		t.Fatalf("expected first legal move, got %+v", fb.Move)
	}
}

func TestFallbackWithoutLegalMoves(t *testing.T) {
	in := NewInterpreter()
	pos := mustPosition(t, "f2f3", "e7e5", "g2g4", "d8h4")
	if _, err := in.Fallback("anything", pos); err != ErrNoLegalMoves {
		t.Fatalf("expected ErrNoLegalMoves, got %v", err)
	}
}

func TestInterpretNeverMutatesAndStaysLegal(t *testing.T) {
	in := NewInterpreter()
	pos := mustPosition(t, "e2e4", "e7e5", "g1f3")
	before := pos.FEN()
	inputs := []string{"", "   ", "Nc6", "nc6", "b8c6", "Qxe4", "resign", "1. e4 e5", "Kxx", "O-O-O", "a6!?", "bxc3", "exd4 is best"}
	legal := map[string]bool{}
	for _, m := range LegalMoves(pos) {
		legal[m.UCI] = true
	}
	for _, raw := range inputs {
		got := in.Interpret(raw, pos)
		if !got.OK() {
			got, _ = in.Fallback(got.Candidate, pos)
		}
		if !legal[got.Move.UCI] {
			t.Fatalf("%q produced non-legal move %+v", raw, got.Move)
		}
		if pos.FEN() != before {
			t.Fatalf("%q mutated the position", raw)
		}
	}
}

func TestQueenCaptureTarget(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Qxd5", "d5", true},
		{"Qhxd5+", "d5", true},
		{"Qxz9", "", false},
		{"Rxd5", "", false},
		{"Qd5", "", false},
		{"Qx", "", false},
	}
	for _, c := range cases {
		got, ok := queenCaptureTarget(c.in)
		if got != c.want || ok != c.ok {
			t.Fatalf("queenCaptureTarget(%q) = %q,%v want %q,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestSideToMoveAfterMoves(t *testing.T) {
	if NewPosition().SideToMove() != domain.White {
		t.Fatalf("white moves first")
	}
	if mustPosition(t, "e2e4").SideToMove() != domain.Black {
		t.Fatalf("black to move after e4")
	}
}
