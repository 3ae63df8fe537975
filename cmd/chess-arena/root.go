package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app carries what PersistentPreRunE resolved to the subcommands.
type app struct {
	envFiles []string
	cfg      *config.AppConfig
	logger   *zap.Logger
}

func Run(ctx context.Context, args []string) int {
	return run(ctx, args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(Version)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	obslog.Sync()
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func newRootCmd(version string) *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "chess-arena",
		Short: "Let two language models play chess against each other",
		Long: heredoc.Doc(`
			chess-arena pits two text-generating agents against each other in
			a game of chess. Every reply is read as a move; unreadable or
			illegal replies are counted and replaced by a legal fallback move.

			Agents and storage are configured through the environment
			(MODEL1_*, MODEL2_*, DATABASE_URL, REDIS_URL, ARENA_*). A .env
			file in the working directory is loaded first when present.`),
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(a.envFiles...); err != nil {
				return err
			}
			if err := obslog.InitFromEnv(); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			a.cfg = cfg
			a.logger = obslog.L()
			return nil
		},
	}
	cmd.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, "dotenv files to load (default .env)")

	cmd.AddCommand(newPlayCmd(a))
	cmd.AddCommand(newStatsCmd(a))
	cmd.AddCommand(newCheckCmd(a))

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version == "" {
		version = "dev"
	}
	cmd.Version = version
	return cmd
}

// isTerminal reports whether w is an interactive character device.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	st, err := f.Stat()
	return err == nil && st.Mode()&os.ModeCharDevice != 0
}
