package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/devloop/internal/analytics"
	"github.com/lucasnoah/devloop/internal/config"
	"github.com/lucasnoah/devloop/internal/db"
)

var historyCmd = &cobra.Command{
	Use:          "history",
	Short:        "Show recorded run history and convergence stats",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("no database_url configured; run history requires Postgres")
		}
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := cmd.Context()
		store, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}

		runs, err := store.ListRuns(ctx, limit)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(w, "No runs recorded.")
			return nil
		}

		fmt.Fprintf(w, "%-6s %-20s %-10s %-6s %s\n", "ID", "STARTED", "DURATION", "ITERS", "RESULT")
		fmt.Fprintf(w, "%-6s %-20s %-10s %-6s %s\n",
			strings.Repeat("-", 6),
			strings.Repeat("-", 20),
			strings.Repeat("-", 10),
			strings.Repeat("-", 6),
			strings.Repeat("-", 9))
		for _, r := range runs {
			result := "converged"
			if !r.Converged {
				result = "exhausted"
			}
			fmt.Fprintf(w, "%-6d %-20s %-10s %-6d %s\n",
				r.ID,
				r.StartedAt.Format(time.DateTime),
				fmt.Sprintf("%.1fs", r.DurationS),
				r.Iterations,
				result)
		}

		summary := analytics.Summarize(runs)
		fmt.Fprintf(w, "\n%d runs: %.1f%% converged, avg %.1f iterations, avg %.1fs (p50 %.1fs, p95 %.1fs)\n",
			summary.Total, summary.ConvergedPct, summary.AvgIterations,
			summary.AvgDurationS, summary.P50DurationS, summary.P95DurationS)

		var iters []db.IterationRecord
		for _, r := range runs {
			ri, err := store.ListIterations(ctx, r.ID)
			if err != nil {
				return err
			}
			iters = append(iters, ri...)
		}
		dist := analytics.OutcomeDistribution(iters)
		fmt.Fprintf(w, "%d iterations: %.1f%% pass, %.1f%% gate failures, %.1f%% verification failures\n",
			dist.Total, dist.PassPct, dist.GateFailPct, dist.VerifyFailPct)

		gateRecords, err := store.ListGateRecords(ctx, limit)
		if err != nil {
			return err
		}
		stats := analytics.GateBreakdown(gateRecords)
		if len(stats) > 0 {
			fmt.Fprintf(w, "\n%-20s %-6s %-8s %-8s %s\n", "GATE", "RUNS", "FAIL%", "BLOCK%", "AVG")
			for _, g := range stats {
				fmt.Fprintf(w, "%-20s %-6d %-8.1f %-8.1f %.1fs\n",
					g.Name, g.Total, g.FailPct, g.BlockedPct, g.AvgDurationS)
			}
		}
		return nil
	},
}

func init() {
	f := historyCmd.Flags()
	f.Int("limit", 20, "Number of recent runs to show")
	f.String("config", "", "Explicit config file")
}
