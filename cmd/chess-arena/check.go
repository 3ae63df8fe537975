package main

import (
	"context"
	"fmt"
	"time"

	"github.com/park285/cheese-arena/internal/agent"
	"github.com/park285/cheese-arena/internal/chess"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/spf13/cobra"
)

// newCheckCmd sends the opening prompt once to each agent and reports
// whether the reply reads as a legal first move.
func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Send one opening prompt to each agent without playing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := msgcat.New(a.cfg.PromptDir)
			if err != nil {
				return err
			}
			prompt, err := catalog.Opening("White")
			if err != nil {
				return err
			}
			client := agent.NewClient(agent.WithTimeout(a.cfg.AgentTimeout), agent.WithLogger(a.logger))
			defer client.Close()

			out := cmd.OutOrStdout()
			interp := chess.NewInterpreter()
			var failed int
			for i, ag := range a.cfg.Agents {
				if ag.Name == "" {
					fmt.Fprintf(out, "MODEL%d: not configured\n", i+1)
					failed++
					continue
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.AgentTimeout+5*time.Second)
				start := time.Now()
				reply, err := client.Check(ctx, ag, prompt)
				cancel()
				if err != nil {
					fmt.Fprintf(out, "MODEL%d %s (%s): error: %v\n", i+1, ag.Name, agent.ResolveProvider(ag), err)
					failed++
					continue
				}
				verdict := "legal"
				if in := interp.Interpret(reply, chess.NewPosition()); !in.OK() {
					verdict = "not a legal move"
				}
				fmt.Fprintf(out, "MODEL%d %s (%s): %q in %s, %s\n", i+1, ag.Name, agent.ResolveProvider(ag), reply, time.Since(start).Round(time.Millisecond), verdict)
			}
			if failed > 0 {
				return fmt.Errorf("%d agent(s) failed the check", failed)
			}
			return nil
		},
	}
}
