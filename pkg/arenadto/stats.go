package arenadto

import "time"

// Count is one labelled bar of a chart.
type Count struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

type ModelAverage struct {
	Model   string  `json:"model"`
	Average float64 `json:"average"`
}

type RecentGame struct {
	ID           string    `json:"game_id"`
	Date         time.Time `json:"date"`
	White        string    `json:"white"`
	Black        string    `json:"black"`
	Result       string    `json:"result"`
	Winner       string    `json:"winner"`
	Termination  string    `json:"termination"`
	InvalidMoves int       `json:"invalid_moves"`
}

// Summary is the dashboard view over a set of stored games.
type Summary struct {
	TotalGames         int            `json:"total_games"`
	TotalDraws         int            `json:"total_draws"`
	AvgInvalidMoves    float64        `json:"avg_invalid_moves"`
	WhiteWinRate       float64        `json:"white_win_rate"`
	ModelWins          []Count        `json:"model_wins"`
	ColorWins          []Count        `json:"color_wins"`
	TerminationReasons []Count        `json:"termination_reasons"`
	InvalidByModel     []ModelAverage `json:"invalid_by_model"`
	RecentGames        []RecentGame   `json:"recent_games"`
}
