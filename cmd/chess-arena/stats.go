package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/park285/cheese-arena/internal/arenabuilder"
	"github.com/park285/cheese-arena/internal/store"
	"github.com/park285/cheese-arena/pkg/arenadto"
	"github.com/spf13/cobra"
)

type statsFlags struct {
	since      string
	model      string
	result     string
	recent     int
	asJSON     bool
	listModels bool
}

func newStatsCmd(a *app) *cobra.Command {
	var fl statsFlags
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize stored games",
		Long: heredoc.Doc(`
			stats reads the games stored in DATABASE_URL and prints win
			counts per model and color, termination reasons, average invalid
			moves per model and the most recent games. Summaries are cached
			in redis for five minutes when REDIS_URL is set.`),
		Example: heredoc.Doc(`
			$ chess-arena stats --since 7d --result win
			$ chess-arena stats --model gpt-4o --json`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// 분 단위로 잘라 같은 --since 값이 캐시를 공유하게 한다
			since, err := parseSince(fl.since, time.Now().Truncate(time.Minute))
			if err != nil {
				return err
			}
			switch r := strings.ToLower(fl.result); r {
			case store.ResultAll, store.ResultWin, store.ResultDraw:
			default:
				return fmt.Errorf("--result must be all, win or draw (got %q)", fl.result)
			}

			deps, err := arenabuilder.NewStats(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer deps.Close()

			out := cmd.OutOrStdout()
			if fl.listModels {
				models, err := deps.Stats.Models(cmd.Context())
				if err != nil {
					return err
				}
				if fl.asJSON {
					return writeJSON(out, models)
				}
				for _, m := range models {
					fmt.Fprintln(out, m)
				}
				return nil
			}

			sum, err := deps.Stats.Summary(cmd.Context(), store.Filter{Since: since, Model: fl.model, Result: fl.result})
			if err != nil {
				return err
			}
			if fl.recent >= 0 && len(sum.RecentGames) > fl.recent {
				sum.RecentGames = sum.RecentGames[:fl.recent]
			}
			if fl.asJSON {
				return writeJSON(out, sum)
			}
			return printSummary(out, sum)
		},
	}
	f := cmd.Flags()
	f.StringVar(&fl.since, "since", "", "only games started after this date (2006-01-02) or age (72h, 7d)")
	f.StringVar(&fl.model, "model", "", "only games played by this model")
	f.StringVar(&fl.result, "result", store.ResultAll, "all | win | draw")
	f.IntVar(&fl.recent, "recent", 10, "number of recent games to list")
	f.BoolVar(&fl.asJSON, "json", false, "print JSON instead of tables")
	f.BoolVar(&fl.listModels, "models", false, "list the models found in stored games")
	return cmd
}

// parseSince accepts a calendar date, a Go duration or a day count ("7d").
func parseSince(v string, now time.Time) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", v, time.Local); err == nil {
		return t, nil
	}
	if days, ok := strings.CutSuffix(v, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil && n >= 0 {
			return now.AddDate(0, 0, -n), nil
		}
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("invalid --since %q", v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(w io.Writer, s arenadto.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Total games\t%d\n", s.TotalGames)
	fmt.Fprintf(tw, "Draws\t%d\n", s.TotalDraws)
	fmt.Fprintf(tw, "Avg invalid moves\t%.2f\n", s.AvgInvalidMoves)
	fmt.Fprintf(tw, "White win rate\t%.1f%%\n", s.WhiteWinRate)

	section := func(title string, rows []arenadto.Count) {
		fmt.Fprintf(tw, "\n%s\t\n", title)
		for _, r := range rows {
			fmt.Fprintf(tw, "  %s\t%d\n", r.Label, r.Value)
		}
	}
	section("Wins by model", s.ModelWins)
	section("Wins by color", s.ColorWins)
	section("Termination reasons", s.TerminationReasons)

	fmt.Fprintf(tw, "\nAvg invalid moves by model\t\n")
	for _, m := range s.InvalidByModel {
		fmt.Fprintf(tw, "  %s\t%.2f\n", m.Model, m.Average)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(s.RecentGames) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nRecent games")
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GAME\tDATE\tWHITE\tBLACK\tRESULT\tWINNER\tTERMINATION\tINVALID")
	for _, g := range s.RecentGames {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			g.ID, g.Date.Format("2006-01-02 15:04"), g.White, g.Black, g.Result, g.Winner, g.Termination, g.InvalidMoves)
	}
	return tw.Flush()
}
