package cli

import (
	"context"
	"fmt"

	"github.com/sbenjam1n/hlsopt/internal/db"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [app]",
	Short: "List recorded optimization runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		pool, err := connectDB(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		app := ""
		if len(args) == 1 {
			app = args[0]
		}
		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := db.NewStore(pool).ListRuns(ctx, app, limit)
		if err != nil {
			return err
		}

		fmt.Println("Runs:")
		if len(runs) == 0 {
			fmt.Println("  (none)")
		}
		for _, r := range runs {
			cluster := "-"
			if r.Cluster != nil {
				cluster = fmt.Sprint(*r.Cluster)
			}
			fmt.Printf("  %s  %-20s %-16s cluster=%-2s attempts=%-3d %s\n",
				r.ID, r.App, r.State, cluster, r.Attempts, r.Started.Format("2006-01-02 15:04"))
			if r.BestQoR != nil {
				fmt.Printf("      best %s: %s\n", r.Best, formatQoR(*r.BestQoR))
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum number of runs")
}
