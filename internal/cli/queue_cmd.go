package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/sbenjam1n/hlsopt/internal/queue"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Queue management",
}

var queueEnqueueCmd = &cobra.Command{
	Use:   "enqueue [app...]",
	Short: "Queue optimization jobs for one or more applications",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := paramsFromFlags(cmd)
		if err := p.Validate(); err != nil {
			return err
		}
		rdb, err := queue.ConnectRedis(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()

		ctx := context.Background()
		q := queue.New(rdb)
		if err := q.EnsureStreams(ctx); err != nil {
			return err
		}
		for _, app := range args {
			id, err := q.PushJob(ctx, queue.JobMessage{App: app, Params: p})
			if err != nil {
				return err
			}
			fmt.Printf("Queued %s as job %s\n", app, id)
		}
		return nil
	},
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queued jobs and results in Redis",
	RunE: func(cmd *cobra.Command, args []string) error {
		rdb, err := queue.ConnectRedis(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()

		ctx := context.Background()
		q := queue.New(rdb)

		jobs, results, err := q.Status(ctx)
		if err != nil {
			return fmt.Errorf("queue status: %w", err)
		}

		fmt.Printf("Queue Status:\n")
		fmt.Printf("  %s:    %d entries\n", queue.StreamJobs, jobs)
		fmt.Printf("  %s: %d entries\n", queue.StreamResults, results)
		return nil
	},
}

var queueResultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Print finished jobs until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		rdb, err := queue.ConnectRedis(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()

		follow, _ := cmd.Flags().GetBool("follow")
		ctx := context.Background()
		q := queue.New(rdb)
		if err := q.EnsureStreams(ctx); err != nil {
			return err
		}
		for {
			msg, id, err := q.ReadResult(ctx, "cli", time.Second)
			if err == queue.ErrNoMessages {
				if follow {
					continue
				}
				return nil
			}
			if err != nil {
				return err
			}
			if msg.Error != "" {
				fmt.Printf("  %s  %-20s error: %s\n", msg.JobID, msg.App, msg.Error)
			} else {
				fmt.Printf("  %s  %-20s %s  run=%s\n", msg.JobID, msg.App, msg.State, msg.RunID)
			}
			q.AckResult(ctx, id)
		}
	},
}

func init() {
	addAnalysisFlags(queueEnqueueCmd)
	addSynthesisFlags(queueEnqueueCmd)
	queueResultsCmd.Flags().Bool("follow", false, "Keep waiting for new results")

	queueCmd.AddCommand(queueEnqueueCmd)
	queueCmd.AddCommand(queueStatusCmd)
	queueCmd.AddCommand(queueResultsCmd)
}
