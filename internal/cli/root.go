package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sbenjam1n/hlsopt/internal/config"
	"github.com/sbenjam1n/hlsopt/internal/db"
	"github.com/sbenjam1n/hlsopt/internal/hls"
	"github.com/sbenjam1n/hlsopt/internal/kb"
	"github.com/sbenjam1n/hlsopt/internal/optimizer"
	"github.com/sbenjam1n/hlsopt/internal/oracle"
	"github.com/spf13/cobra"
)

var (
	cfg     *config.Config
	logger  *slog.Logger
	rootCmd = &cobra.Command{
		Use:   "hlsopt",
		Short: "hlsopt: HLS directive recommendation from clustered synthesis history",
		Long: `hlsopt proposes HLS optimization directives for an unseen application by
clustering it with previously explored applications, taking a vote over the
Pareto-optimal designs of its cluster, and repairing the proposal until the
synthesized design fits the device.

Typical session:
  hlsopt init
  hlsopt markers check <app>
  hlsopt optimize <app>

Paths, device and database settings come from HLSOPT_* environment
variables or a .env file.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(proposeCmd)
	rootCmd.AddCommand(markersCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(browseCmd)
}

func initConfig() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
}

func connectDB(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w\nSet HLSOPT_DATABASE_URL environment variable", err)
	}
	return pool, nil
}

func projectRoot() string {
	return cfg.ProjectRoot
}

func migrationsDir() string {
	return filepath.Join(projectRoot(), "migrations")
}

// loadCatalog returns the built-in catalog unless HLSOPT_CATALOG names a
// YAML override.
func loadCatalog() (*hls.Catalog, error) {
	return hls.LoadCatalog(cfg.Catalog)
}

// newOptimizer builds an optimizer over the configured directories and the
// Vitis backend. The caller adds a Recorder or wraps the Oracle as needed.
func newOptimizer() (*optimizer.Optimizer, error) {
	catalog, err := loadCatalog()
	if err != nil {
		return nil, err
	}
	return &optimizer.Optimizer{
		Catalog: catalog,
		KB:      kb.New(kb.Layout{Root: cfg.KnowledgeBase}, catalog, logger),
		AppsDir: cfg.Applications,
		Output:  cfg.Output,
		Oracle:  oracle.NewVitis(cfg.VitisBinary, logger),
		Logger:  logger,
	}, nil
}

// paramsFromFlags starts from the configured device settings and applies
// the algorithm flags shared by optimize, propose and queue enqueue.
func paramsFromFlags(cmd *cobra.Command) optimizer.Params {
	p := optimizer.DefaultParams()
	p.Device = cfg.DeviceID
	p.ClockPeriod = cfg.ClockPeriod
	p.Timeout = cfg.Timeout

	f := cmd.Flags()
	p.Components, _ = f.GetInt("pcs")
	p.Clusters, _ = f.GetInt("clusters")
	p.Threshold, _ = f.GetFloat64("threshold")
	p.Seed, _ = f.GetInt64("seed")
	p.CountAbsent, _ = f.GetBool("count-absent")
	if f.Lookup("repair") != nil {
		p.Repair, _ = f.GetBool("repair")
		p.MaxRepair, _ = f.GetInt("max-repair")
		p.VendorOptimizations, _ = f.GetBool("vendor-opts")
	}
	return p
}

func addAnalysisFlags(cmd *cobra.Command) {
	d := optimizer.DefaultParams()
	cmd.Flags().Int("pcs", d.Components, "Principal components kept after standardization")
	cmd.Flags().Int("clusters", d.Clusters, "Number of k-means clusters")
	cmd.Flags().Float64("threshold", d.Threshold, "Minimum share of the majority directive at an action point")
	cmd.Flags().Int64("seed", d.Seed, "Clustering seed")
	cmd.Flags().Bool("count-absent", false, "Count NDIR entries in the majority denominator")
}

func addSynthesisFlags(cmd *cobra.Command) {
	d := optimizer.DefaultParams()
	cmd.Flags().Bool("repair", d.Repair, "Repair infeasible proposals")
	cmd.Flags().Int("max-repair", d.MaxRepair, "Maximum repair iterations")
	cmd.Flags().Bool("vendor-opts", false, "Keep the synthesis tool's automatic pipelining and partitioning")
}
