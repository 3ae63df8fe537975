package chess

import (
	"strings"
)

type Kind int

const (
	KindAccepted Kind = iota
	KindInvalid
	KindFallback
)

func (k Kind) String() string {
	switch k {
	case KindAccepted:
		return "accepted"
	case KindInvalid:
		return "invalid"
	case KindFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Interpretation is the outcome of reading one agent reply.
// Move is only set for KindAccepted and KindFallback.
type Interpretation struct {
	Kind      Kind
	Candidate string
	Move      Move
	// Notation is the SAN of Move in the position it was read against.
	Notation     string
	UsedFallback bool
}

func (i Interpretation) OK() bool { return i.Kind != KindInvalid }

// Interpreter turns free-text replies into legal moves. It is stateless and
// never modifies the positions it reads.
type Interpreter struct{}

func NewInterpreter() *Interpreter { return &Interpreter{} }

func (in *Interpreter) Interpret(raw string, pos *Position) Interpretation {
	candidate := NormalizeCastling(ExtractCandidate(raw))

	if mv, err := ParseAlgebraic(pos, candidate); err == nil {
		return Interpretation{Kind: KindAccepted, Candidate: candidate, Move: mv, Notation: mv.SAN}
	}
	if mv, err := ParseCoordinateMove(pos, candidate); err == nil {
		return Interpretation{Kind: KindAccepted, Candidate: candidate, Move: mv, Notation: mv.SAN}
	}
	return Interpretation{Kind: KindInvalid, Candidate: candidate}
}

// Fallback selects a replacement move for a rejected candidate. A queen
// capture prefers any capture on the same square; otherwise the first legal
// move is used.
func (in *Interpreter) Fallback(candidate string, pos *Position) (Interpretation, error) {
	legal := LegalMoves(pos)
	if len(legal) == 0 {
		return Interpretation{Kind: KindInvalid, Candidate: candidate}, ErrNoLegalMoves
	}

	chosen := legal[0]
	if target, ok := queenCaptureTarget(candidate); ok {
		for _, m := range legal {
			if m.Capture && m.To == target {
				chosen = m
				break
			}
		}
	}
	return Interpretation{
		Kind:         KindFallback,
		Candidate:    candidate,
		Move:         chosen,
		Notation:     chosen.SAN,
		UsedFallback: true,
	}, nil
}

// queenCaptureTarget extracts the destination of "Q...x<square>".
func queenCaptureTarget(candidate string) (string, bool) {
	if !strings.HasPrefix(candidate, "Q") {
		return "", false
	}
	_, after, found := strings.Cut(candidate, "x")
	if !found || len(after) < 2 {
		return "", false
	}
	if !isFile(after[0]) || !isRank(after[1]) {
		return "", false
	}
	return after[:2], true
}
