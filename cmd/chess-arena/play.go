package main

import (
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/park285/cheese-arena/internal/arenabuilder"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newPlayCmd(a *app) *cobra.Command {
	var games int
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play one or more games between MODEL1 and MODEL2",
		Long: heredoc.Doc(`
			play runs complete games between the two configured agents.
			Colors are drawn at random for every game. Results are stored in
			DATABASE_URL; when that fails the game is written as JSON to
			ARENA_FALLBACK_DIR instead.`),
		Example: heredoc.Doc(`
			$ chess-arena play
			$ chess-arena play --games 5`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateForPlay(); err != nil {
				return err
			}
			if !cmd.Flags().Changed("games") {
				games = a.cfg.Games
			}
			out := cmd.OutOrStdout()
			deps, err := arenabuilder.New(cmd.Context(), a.cfg, a.logger, arenabuilder.Options{Out: out, Spinner: isTerminal(out)})
			if err != nil {
				return err
			}
			defer deps.Close()

			recs, err := deps.Controller.PlayMatch(cmd.Context(), a.cfg.Agents[0], a.cfg.Agents[1], games)
			a.logger.Info("arena_match_done", zap.Int("played", len(recs)), zap.Int("requested", games))
			if err != nil {
				return fmt.Errorf("match stopped after %d of %d games: %w", len(recs), games, err)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&games, "games", "n", 1, "number of games to play (default ARENA_GAMES or 1)")
	return cmd
}
