package chess

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-arena/internal/domain"
)

var (
	ErrIllegalMove  = errors.New("illegal move")
	ErrBadNotation  = errors.New("unrecognized move notation")
	ErrNoLegalMoves = errors.New("no legal moves available")
)

var coordinatePattern = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbn]?$`)

// Move is a legal move in a specific position.
type Move struct {
	UCI  string
	SAN  string
	From string
	To   string
	// Capture is derived from the SAN text.
	Capture bool
}

// Position is an immutable board state. Apply returns a new Position.
type Position struct {
	game  *nchess.Game
	moves []string
}

func NewPosition() *Position {
	return &Position{game: nchess.NewGame(), moves: []string{}}
}

// PositionFromMoves replays UCI moves from the initial position.
func PositionFromMoves(uciMoves []string) (*Position, error) {
	game := nchess.NewGame()
	for _, mv := range uciMoves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay %s: %w", mv, err)
		}
	}
	return &Position{game: game, moves: append([]string(nil), uciMoves...)}, nil
}

func (p *Position) FEN() string { return p.game.FEN() }

// History returns the UCI moves that led to this position.
func (p *Position) History() []string { return append([]string(nil), p.moves...) }

func (p *Position) SideToMove() domain.Color {
	if p.game.Position().Turn() == nchess.Black {
		return domain.Black
	}
	return domain.White
}

// Draw returns an ASCII diagram of the board.
func (p *Position) Draw() string {
	return p.game.Position().Board().Draw()
}

// PGN returns the engine's own PGN rendering of the moves so far.
func (p *Position) PGN() string { return p.game.String() }

// LegalMoves lists legal moves in the engine's enumeration order.
func LegalMoves(p *Position) []Move {
	pos := p.game.Position()
	valid := p.game.ValidMoves()
	out := make([]Move, 0, len(valid))
	for i := range valid {
		uci := valid[i].String()
		mv, err := nchess.UCINotation{}.Decode(pos, uci)
		if err != nil {
			continue
		}
		out = append(out, toMove(pos, mv))
	}
	return out
}

// LegalMovesSAN lists the SAN of every legal move, same order as LegalMoves.
func LegalMovesSAN(p *Position) []string {
	moves := LegalMoves(p)
	out := make([]string, 0, len(moves))
	for _, m := range moves {
		out = append(out, m.SAN)
	}
	return out
}

// ParseAlgebraic resolves standard algebraic notation in the given position.
func ParseAlgebraic(p *Position, text string) (Move, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Move{}, ErrBadNotation
	}
	pos := p.game.Position()
	mv, err := nchess.AlgebraicNotation{}.Decode(pos, text)
	if err != nil || mv == nil {
		return Move{}, fmt.Errorf("%w: %q", ErrBadNotation, text)
	}
	return findLegal(p, mv.String())
}

// ParseCoordinate normalizes a coordinate (from-square, to-square, optional
// promotion) token without checking legality.
func ParseCoordinate(text string) (string, error) {
	uci := strings.ToLower(strings.TrimSpace(text))
	if !coordinatePattern.MatchString(uci) {
		return "", fmt.Errorf("%w: %q", ErrBadNotation, text)
	}
	return uci, nil
}

// ParseCoordinateMove resolves a coordinate token to a legal move.
func ParseCoordinateMove(p *Position, text string) (Move, error) {
	uci, err := ParseCoordinate(text)
	if err != nil {
		return Move{}, err
	}
	return findLegal(p, uci)
}

// Apply plays move and returns the resulting position.
func Apply(p *Position, m Move) (*Position, error) {
	if _, err := findLegal(p, m.UCI); err != nil {
		return nil, err
	}
	next, err := PositionFromMoves(p.moves)
	if err != nil {
		return nil, err
	}
	if err := next.game.PushNotationMove(m.UCI, nchess.UCINotation{}, nil); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIllegalMove, m.UCI, err)
	}
	next.moves = append(next.moves, m.UCI)
	return next, nil
}

// ToAlgebraic encodes m as SAN in position p.
func ToAlgebraic(p *Position, m Move) string {
	pos := p.game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, m.UCI)
	if err != nil {
		return m.SAN
	}
	return nchess.AlgebraicNotation{}.Encode(pos, mv)
}

func IsCheckmate(p *Position) bool { return p.game.Method() == nchess.Checkmate }

func IsStalemate(p *Position) bool { return p.game.Method() == nchess.Stalemate }

func IsInsufficientMaterial(p *Position) bool {
	return p.game.Method() == nchess.InsufficientMaterial
}

// IsTerminal reports whether the engine has declared an outcome.
func IsTerminal(p *Position) bool { return p.game.Outcome() != nchess.NoOutcome }

// Outcome returns the engine's result string ("1-0", "0-1", "1/2-1/2" or "*").
func Outcome(p *Position) string { return string(p.game.Outcome()) }

// Method names how the engine ended the game; empty while in progress.
func Method(p *Position) string {
	switch p.game.Method() {
	case nchess.Checkmate:
		return "checkmate"
	case nchess.Stalemate:
		return "stalemate"
	case nchess.InsufficientMaterial:
		return "insufficient_material"
	case nchess.FivefoldRepetition:
		return "fivefold_repetition"
	case nchess.SeventyFiveMoveRule:
		return "seventy_five_move_rule"
	case nchess.ThreefoldRepetition:
		return "threefold_repetition"
	case nchess.FiftyMoveRule:
		return "fifty_move_rule"
	case nchess.NoMethod:
		return ""
	default:
		return "other"
	}
}

func findLegal(p *Position, uci string) (Move, error) {
	for _, m := range LegalMoves(p) {
		if m.UCI == uci {
			return m, nil
		}
	}
	return Move{}, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
}

func toMove(pos *nchess.Position, mv *nchess.Move) Move {
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	return Move{
		UCI:     mv.String(),
		SAN:     san,
		From:    mv.S1().String(),
		To:      mv.S2().String(),
		Capture: strings.Contains(san, "x"),
	}
}
