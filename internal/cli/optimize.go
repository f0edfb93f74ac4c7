package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sbenjam1n/hlsopt/internal/db"
	"github.com/sbenjam1n/hlsopt/internal/optimizer"
	"github.com/sbenjam1n/hlsopt/internal/oracle"
	"github.com/spf13/cobra"
)

// synthesisLockName keys the advisory lock shared by every process that
// synthesizes against the same license.
const synthesisLockName = "hlsopt/vitis"

var optimizeCmd = &cobra.Command{
	Use:   "optimize [app]",
	Short: "Propose, apply, synthesize and repair directives for an application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opt, err := newOptimizer()
		if err != nil {
			return err
		}

		record, _ := cmd.Flags().GetBool("record")
		lockDB, _ := cmd.Flags().GetBool("lock-db")
		if record || lockDB {
			pool, err := connectDB(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			if record {
				opt.Recorder = db.NewStore(pool)
			}
			var locker oracle.Locker
			if lockDB {
				locker = db.NewAdvisoryLock(pool, synthesisLockName)
			}
			opt.Oracle = oracle.NewExclusive(opt.Oracle, locker)
		}

		p := paramsFromFlags(cmd)
		res, err := opt.Run(ctx, args[0], p)
		if err != nil {
			return err
		}
		fmt.Println(renderResult(res))
		fmt.Printf("Output written to %s\n", optimizer.NewLayout(cfg.Output, args[0]).Root)
		return nil
	},
}

func init() {
	addAnalysisFlags(optimizeCmd)
	addSynthesisFlags(optimizeCmd)
	optimizeCmd.Flags().Bool("record", false, "Record the run in PostgreSQL")
	optimizeCmd.Flags().Bool("lock-db", false, "Serialize synthesis with other processes through a PostgreSQL advisory lock")
}
