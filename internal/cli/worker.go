package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sbenjam1n/hlsopt/internal/db"
	"github.com/sbenjam1n/hlsopt/internal/metrics"
	"github.com/sbenjam1n/hlsopt/internal/oracle"
	"github.com/sbenjam1n/hlsopt/internal/queue"
	"github.com/sbenjam1n/hlsopt/internal/worker"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume optimization jobs from Redis",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rdb, err := queue.ConnectRedis(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()

		opt, err := newOptimizer()
		if err != nil {
			return err
		}

		// Workers always record and share the synthesis lock.
		pool, err := connectDB(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		opt.Recorder = db.NewStore(pool)

		m := metrics.New(prometheus.NewRegistry())
		opt.Oracle = oracle.NewExclusive(m.Oracle(opt.Oracle), db.NewAdvisoryLock(pool, synthesisLockName))

		consumer, _ := cmd.Flags().GetString("consumer")
		if consumer == "" {
			host, _ := os.Hostname()
			consumer = host + "-" + uuid.NewString()[:8]
		}
		w := &worker.Worker{
			Jobs:     queue.New(rdb),
			Runner:   opt,
			Metrics:  m,
			Consumer: consumer,
			Logger:   logger,
		}

		g, ctx := errgroup.WithContext(ctx)
		addr, _ := cmd.Flags().GetString("metrics-addr")
		if addr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())
			srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			g.Go(func() error {
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve metrics: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				return srv.Shutdown(context.Background())
			})
		}
		g.Go(func() error { return w.Run(ctx) })

		fmt.Printf("Worker %s running. Consuming jobs from Redis...\n", consumer)
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	workerCmd.Flags().String("consumer", "", "Consumer name in the worker group (default host-random)")
	workerCmd.Flags().String("metrics-addr", ":9464", "Address of the Prometheus /metrics endpoint, empty to disable")
}
