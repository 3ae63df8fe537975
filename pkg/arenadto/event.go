package arenadto

import "time"

type EventType string

const (
	EventGameStart EventType = "game_start"
	EventMove      EventType = "move"
	EventGameEnd   EventType = "game_end"
)

// Event is what spectators receive over the websocket feed.
type Event struct {
	Type   EventType `json:"type"`
	GameID string    `json:"game_id"`
	At     time.Time `json:"at"`

	White string `json:"white,omitempty"`
	Black string `json:"black,omitempty"`

	Ply      int    `json:"ply,omitempty"`
	Color    string `json:"color,omitempty"`
	Agent    string `json:"model,omitempty"`
	SAN      string `json:"move,omitempty"`
	UCI      string `json:"uci,omitempty"`
	FEN      string `json:"fen,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`

	Result       string `json:"result,omitempty"`
	Winner       string `json:"winner,omitempty"`
	Reason       string `json:"termination_reason,omitempty"`
	InvalidMoves int    `json:"invalid_moves,omitempty"`
}
