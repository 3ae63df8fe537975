package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrAlreadyConcluded는 결과가 이미 기록된 게임에 다시 결과를 쓰려 할 때 반환.
var ErrAlreadyConcluded = errors.New("game already concluded")

// GameIDLayout formats game identifiers (second resolution).
const GameIDLayout = "20060102_150405"

type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Title returns "White"/"Black" for prompts and narration.
func (c Color) Title() string {
	if c == Black {
		return "Black"
	}
	return "White"
}

const (
	ResultWhiteWins = "1-0"
	ResultBlackWins = "0-1"
	ResultDraw      = "1/2-1/2"
	// ResultError marks games aborted by an unrecoverable state.
	ResultError = "ERR"
)

const (
	ReasonCheckmate            = "Checkmate"
	ReasonStalemate            = "Stalemate"
	ReasonInsufficientMaterial = "Insufficient material"
	ReasonOtherDraw            = "Other draw"
	reasonErrorPrefix          = "Error processing move: "
)

// AgentDescriptor identifies one external text-generating agent.
type AgentDescriptor struct {
	Name       string `json:"name"`
	Credential string `json:"-"`
	Endpoint   string `json:"endpoint"`
	Provider   string `json:"provider,omitempty"`
}

type MoveRecord struct {
	Color    Color  `json:"color"`
	Agent    string `json:"model"`
	SAN      string `json:"move"`
	UCI      string `json:"uci,omitempty"`
	FEN      string `json:"fen"`
	Fallback bool   `json:"fallback,omitempty"`
}

type GameRecord struct {
	ID                string       `json:"game_id"`
	SessionUUID       string       `json:"session_uuid"`
	StartedAt         time.Time    `json:"date"`
	EndedAt           time.Time    `json:"ended_at"`
	WhiteAgent        string       `json:"white_model"`
	BlackAgent        string       `json:"black_model"`
	Moves             []MoveRecord `json:"moves"`
	Result            string       `json:"result"`
	Winner            string       `json:"winner"`
	TerminationReason string       `json:"termination_reason"`
	InvalidMoveCount  int          `json:"invalid_moves"`
}

func NewGameRecord(id, sessionUUID, white, black string, startedAt time.Time) *GameRecord {
	return &GameRecord{
		ID:          id,
		SessionUUID: sessionUUID,
		StartedAt:   startedAt,
		WhiteAgent:  white,
		BlackAgent:  black,
		Moves:       []MoveRecord{},
	}
}

// AgentFor returns the agent name playing the given color.
func (g *GameRecord) AgentFor(c Color) string {
	if c == Black {
		return g.BlackAgent
	}
	return g.WhiteAgent
}

func (g *GameRecord) AppendMove(m MoveRecord) {
	g.Moves = append(g.Moves, m)
}

func (g *GameRecord) NoteInvalidMove() {
	g.InvalidMoveCount++
}

// SANHistory returns the played moves in order.
func (g *GameRecord) SANHistory() []string {
	out := make([]string, 0, len(g.Moves))
	for _, m := range g.Moves {
		out = append(out, m.SAN)
	}
	return out
}

func (g *GameRecord) Concluded() bool {
	return g.Result != ""
}

// Conclude records a decisive or drawn outcome. winner is empty for draws.
func (g *GameRecord) Conclude(result, winner, reason string, at time.Time) error {
	if g.Concluded() {
		return ErrAlreadyConcluded
	}
	g.Result = result
	g.Winner = winner
	g.TerminationReason = reason
	g.EndedAt = at
	return nil
}

// Abort marks the game error-terminated.
func (g *GameRecord) Abort(detail string, at time.Time) error {
	return g.Conclude(ResultError, "", reasonErrorPrefix+strings.TrimSpace(detail), at)
}

func (g *GameRecord) IsDraw() bool  { return g.Result == ResultDraw }
func (g *GameRecord) IsError() bool { return g.Result == ResultError }

// Decisive reports a win for either side.
func (g *GameRecord) Decisive() bool {
	return g.Result == ResultWhiteWins || g.Result == ResultBlackWins
}
