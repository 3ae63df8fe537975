// Package stats computes the dashboard aggregates over stored games.
package stats

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"go.uber.org/zap"
)

const (
	DefaultRecentLimit = 10
	maxInvalidModels   = 10
)

// Summarize builds the summary; recent is the recent-games limit (<=0 uses the default).
func Summarize(games []*domain.GameRecord, recent int) arenadto.Summary {
	s := arenadto.Summary{
		ModelWins:          []arenadto.Count{},
		ColorWins:          []arenadto.Count{{Label: "White"}, {Label: "Black"}, {Label: "Draw"}},
		TerminationReasons: []arenadto.Count{},
		InvalidByModel:     []arenadto.ModelAverage{},
		RecentGames:        []arenadto.RecentGame{},
	}
	if len(games) == 0 {
		return s
	}

	var (
		invalidTotal int
		whiteWins    int
		wins         = map[string]int{}
		reasons      = map[string]int{}
		invalidSum   = map[string]float64{}
		played       = map[string]int{}
	)
	for _, g := range games {
		invalidTotal += g.InvalidMoveCount
		switch g.Result {
		case domain.ResultWhiteWins:
			whiteWins++
			s.ColorWins[0].Value++
		case domain.ResultBlackWins:
			s.ColorWins[1].Value++
		case domain.ResultDraw:
			s.TotalDraws++
			s.ColorWins[2].Value++
		}
		if g.Winner != "" && g.Decisive() {
			wins[g.Winner]++
		}
		if g.TerminationReason != "" {
			reasons[g.TerminationReason]++
		}
		// 어느 쪽이 틀렸는지 기록이 없으므로 반씩 나눈다
		half := float64(g.InvalidMoveCount) / 2
		for _, m := range []string{g.WhiteAgent, g.BlackAgent} {
			if m == "" {
				continue
			}
			played[m]++
			invalidSum[m] += half
		}
	}

	s.TotalGames = len(games)
	s.AvgInvalidMoves = round(float64(invalidTotal)/float64(len(games)), 2)
	s.WhiteWinRate = round(float64(whiteWins)*100/float64(len(games)), 1)
	s.ModelWins = sortedCounts(wins)
	s.TerminationReasons = sortedCounts(reasons)

	for m, sum := range invalidSum {
		s.InvalidByModel = append(s.InvalidByModel, arenadto.ModelAverage{Model: m, Average: sum / float64(played[m])})
	}
	sort.Slice(s.InvalidByModel, func(i, j int) bool {
		a, b := s.InvalidByModel[i], s.InvalidByModel[j]
		if a.Average != b.Average {
			return a.Average > b.Average
		}
		return a.Model < b.Model
	})
	if len(s.InvalidByModel) > maxInvalidModels {
		s.InvalidByModel = s.InvalidByModel[:maxInvalidModels]
	}
	for i := range s.InvalidByModel {
		s.InvalidByModel[i].Average = round(s.InvalidByModel[i].Average, 2)
	}

	s.RecentGames = Recent(games, recent)
	return s
}

// Recent returns up to limit games, newest first.
func Recent(games []*domain.GameRecord, limit int) []arenadto.RecentGame {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	items := append([]*domain.GameRecord(nil), games...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].StartedAt.After(items[j].StartedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]arenadto.RecentGame, 0, len(items))
	for _, g := range items {
		out = append(out, arenadto.RecentGame{
			ID:           g.ID,
			Date:         g.StartedAt,
			White:        orDefault(g.WhiteAgent, "Unknown"),
			Black:        orDefault(g.BlackAgent, "Unknown"),
			Result:       orDefault(g.Result, "Unknown"),
			Winner:       orDefault(g.Winner, "N/A"),
			Termination:  orDefault(g.TerminationReason, "Unknown"),
			InvalidMoves: g.InvalidMoveCount,
		})
	}
	return out
}

// Models lists every agent name seen, sorted.
func Models(games []*domain.GameRecord) []string {
	seen := map[string]struct{}{}
	for _, g := range games {
		for _, m := range []string{g.WhiteAgent, g.BlackAgent} {
			if m != "" {
				seen[m] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func sortedCounts(m map[string]int) []arenadto.Count {
	out := make([]arenadto.Count, 0, len(m))
	for k, v := range m {
		out = append(out, arenadto.Count{Label: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Service reads games from the repository and caches summaries in redis when available.
type Service struct {
	repo   store.Repository
	cache  *store.StatsCache
	logger *zap.Logger
	recent int
}

func NewService(repo store.Repository, cache *store.StatsCache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, cache: cache, logger: logger, recent: DefaultRecentLimit}
}

func (s *Service) Summary(ctx context.Context, f store.Filter) (arenadto.Summary, error) {
	var out arenadto.Summary
	if s.cache != nil {
		hit, err := s.cache.Get(ctx, f, &out)
		if err != nil {
			s.logger.Warn("stats_cache_get_failed", zap.Error(err))
		} else if hit {
			return out, nil
		}
	}
	// Limit applies to the recent-games table only.
	f.Limit = 0
	games, err := s.repo.ListGames(ctx, f)
	if err != nil {
		return arenadto.Summary{}, fmt.Errorf("list games: %w", err)
	}
	out = Summarize(games, s.recent)
	if s.cache != nil {
		if err := s.cache.Set(ctx, f, out); err != nil {
			s.logger.Warn("stats_cache_set_failed", zap.Error(err))
		}
	}
	return out, nil
}

func (s *Service) Models(ctx context.Context) ([]string, error) {
	games, err := s.repo.ListGames(ctx, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return Models(games), nil
}
