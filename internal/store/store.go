package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cheese-arena/internal/domain"
)

var (
	ErrDuplicateGame = errors.New("game record already exists")
	ErrNotFound      = errors.New("game record not found")
)

// Repository persists finished games. InsertGame is called once per game.
type Repository interface {
	InsertGame(ctx context.Context, rec *domain.GameRecord) error
	GetGame(ctx context.Context, id string) (*domain.GameRecord, error)
	ListGames(ctx context.Context, f Filter) ([]*domain.GameRecord, error)
	Close() error
}

const (
	ResultAll  = "all"
	ResultWin  = "win"
	ResultDraw = "draw"
)

// Filter narrows ListGames. Zero value matches everything.
type Filter struct {
	Since  time.Time
	Model  string
	Result string // all | win | draw
	Limit  int
}

// Match applies the filter to a single record.
func (f Filter) Match(rec *domain.GameRecord) bool {
	if rec == nil {
		return false
	}
	if !f.Since.IsZero() && rec.StartedAt.Before(f.Since) {
		return false
	}
	if m := strings.TrimSpace(f.Model); m != "" && rec.WhiteAgent != m && rec.BlackAgent != m {
		return false
	}
	switch f.result() {
	case ResultWin:
		return rec.Decisive()
	case ResultDraw:
		return rec.IsDraw()
	}
	return true
}

func (f Filter) result() string {
	r := strings.ToLower(strings.TrimSpace(f.Result))
	if r == "" {
		return ResultAll
	}
	return r
}

// CacheKey is a stable identifier for the filter, used by StatsCache.
func (f Filter) CacheKey() string {
	since := "-"
	if !f.Since.IsZero() {
		since = strconv.FormatInt(f.Since.UTC().Unix(), 10)
	}
	model := strings.TrimSpace(f.Model)
	if model == "" {
		model = "-"
	}
	return since + ":" + model + ":" + f.result()
}
