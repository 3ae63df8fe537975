package chess

import (
	"errors"
	"testing"

	"github.com/park285/cheese-arena/internal/domain"
)

func TestApplyReturnsNewPosition(t *testing.T) {
	pos := NewPosition()
	mv, err := ParseAlgebraic(pos, "e4")
	if err != nil {
		t.Fatalf("ParseAlgebraic: %v", err)
	}
	next, err := Apply(pos, mv)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if pos.FEN() == next.FEN() {
		t.Fatalf("expected a different position after apply")
	}
	if len(pos.History()) != 0 || len(next.History()) != 1 {
		t.Fatalf("history leak: %v / %v", pos.History(), next.History())
	}
	if next.SideToMove() != domain.Black {
		t.Fatalf("expected black to move")
	}
}

func TestApplyRejectsIllegal(t *testing.T) {
	_, err := Apply(NewPosition(), Move{UCI: "e2e5"})
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
}

func TestLegalMovesInitialPosition(t *testing.T) {
	moves := LegalMoves(NewPosition())
	if len(moves) != 20 {
		t.Fatalf("expected 20 legal moves, got %d", len(moves))
	}
	sans := LegalMovesSAN(NewPosition())
	if len(sans) != len(moves) {
		t.Fatalf("SAN list length mismatch")
	}
	for i := range moves {
		if moves[i].SAN != sans[i] {
			t.Fatalf("order mismatch at %d: %s vs %s", i, moves[i].SAN, sans[i])
		}
	}
	again := LegalMoves(NewPosition())
	for i := range moves {
		if moves[i].UCI != again[i].UCI {
			t.Fatalf("enumeration order is not stable")
		}
	}
}

func TestParseCoordinate(t *testing.T) {
	if uci, err := ParseCoordinate(" E2E4 "); err != nil || uci != "e2e4" {
		t.Fatalf("got %q, %v", uci, err)
	}
	if uci, err := ParseCoordinate("e7e8q"); err != nil || uci != "e7e8q" {
		t.Fatalf("promotion: got %q, %v", uci, err)
	}
	if _, err := ParseCoordinate("Nf3"); !errors.Is(err, ErrBadNotation) {
		t.Fatalf("expected ErrBadNotation, got %v", err)
	}
}

func TestToAlgebraic(t *testing.T) {
	pos := NewPosition()
	if san := ToAlgebraic(pos, Move{UCI: "g1f3"}); san != "Nf3" {
		t.Fatalf("ToAlgebraic = %q", san)
	}
}

func TestCheckmateByBlack(t *testing.T) {
	pos := mustPosition(t, "f2f3", "e7e5", "g2g4", "d8h4")
	if !IsCheckmate(pos) || !IsTerminal(pos) {
		t.Fatalf("expected checkmate")
	}
	if pos.SideToMove() != domain.White {
		t.Fatalf("mated side should be to move")
	}
	if Outcome(pos) != domain.ResultBlackWins {
		t.Fatalf("Outcome = %q", Outcome(pos))
	}
	if Method(pos) != "checkmate" {
		t.Fatalf("Method = %q", Method(pos))
	}
}

func TestCheckmateByWhite(t *testing.T) {
	pos := mustPosition(t, "e2e4", "e7e5", "d1h5", "b8c6", "f1c4", "g8f6", "h5f7")
	if !IsCheckmate(pos) {
		t.Fatalf("expected checkmate")
	}
	if Outcome(pos) != domain.ResultWhiteWins {
		t.Fatalf("Outcome = %q", Outcome(pos))
	}
}

func TestStalemate(t *testing.T) {
	pos := mustPosition(t,
		"e2e3", "a7a5", "d1h5", "a8a6", "h5a5", "h7h5", "h2h4", "a6h6",
		"a5c7", "f7f6", "c7d7", "e8f7", "d7b7", "d8d3", "b7b8", "d3h7",
		"b8c8", "f7g6", "c8e6",
	)
	if !IsStalemate(pos) || IsCheckmate(pos) || !IsTerminal(pos) {
		t.Fatalf("expected stalemate, method=%q", Method(pos))
	}
	if Outcome(pos) != domain.ResultDraw {
		t.Fatalf("Outcome = %q", Outcome(pos))
	}
	if len(LegalMoves(pos)) != 0 {
		t.Fatalf("stalemate must have no legal moves")
	}
}

func TestNormalizeCastlingIdempotent(t *testing.T) {
	for _, in := range []string{"OO", "o-o", "0-0", "OOO", "0-0-0", "o-o-o", "e4", "Nf3"} {
		once := NormalizeCastling(in)
		if twice := NormalizeCastling(once); twice != once {
			t.Fatalf("NormalizeCastling not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
	if NormalizeCastling("0-0-0") != CastleQueenside || NormalizeCastling("oo") != CastleKingside {
		t.Fatalf("unexpected castling normalization")
	}
}

func TestExtractCandidate(t *testing.T) {
	cases := map[string]string{
		"e4":                           "e4",
		"  Nf3  ":                      "Nf3",
		"I will play Bb5 here":         "Bb5",
		"Taking: Bxe5!":                "Bxe5",
		"let's castle O-O-O now":       "O-O-O",
		"move g1f3 please":             "g1f3",
		"nothing useful in this reply": "nothing useful in this reply",
		"next move":                    "next",
		"xyz123":                       "xyz123",
		"My move: E7E5":                "E7E5",
		"pawn to E4 then":              "E4",
		"knight nf3 it is":             "nf3",
	}
	for in, want := range cases {
		if got := ExtractCandidate(in); got != want {
			t.Fatalf("ExtractCandidate(%q) = %q, want %q", in, got, want)
		}
	}
}
