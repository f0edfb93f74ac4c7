package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/sbenjam1n/hlsopt/internal/db"
	"github.com/sbenjam1n/hlsopt/internal/hls"
	"github.com/sbenjam1n/hlsopt/internal/kb"
	"github.com/sbenjam1n/hlsopt/internal/queue"
	"github.com/spf13/cobra"
)

var minimal bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize an hlsopt project",
	Long:  "Initialize project: knowledge-base and application directories, PostgreSQL schema, Redis streams",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		layout := kb.Layout{Root: cfg.KnowledgeBase}
		for _, dir := range []string{layout.ParetoDir(), cfg.Applications, cfg.Output} {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
		}
		fmt.Println("Created KnowledgeBase/, Applications/ and output/")

		if cfg.Catalog != "" {
			if _, err := os.Stat(cfg.Catalog); os.IsNotExist(err) {
				if err := hls.WriteCatalog(cfg.Catalog, hls.DefaultCatalog()); err != nil {
					return err
				}
				fmt.Printf("Created %s with the default action points\n", cfg.Catalog)
			}
		}

		if minimal {
			fmt.Println("\nMinimal init complete. Run 'hlsopt init' (without --minimal) to set up PostgreSQL and Redis.")
			return nil
		}

		fmt.Println("Connecting to PostgreSQL...")
		pool, err := connectDB(ctx)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer pool.Close()

		fmt.Println("Running migrations...")
		if err := db.Migrate(ctx, pool, migrationsDir()); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		fmt.Println("PostgreSQL schema created")

		fmt.Println("Connecting to Redis...")
		rdb, err := queue.ConnectRedis(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer rdb.Close()

		q := queue.New(rdb)
		if err := q.EnsureStreams(ctx); err != nil {
			return fmt.Errorf("redis stream setup failed: %w", err)
		}
		fmt.Println("Redis streams created")

		fmt.Println("\nhlsopt project initialized successfully.")
		fmt.Println("Next steps:")
		fmt.Println("  1. Add Source_Code_Feature_Vectors.csv and ParetoFrontiers/ to KnowledgeBase/")
		fmt.Println("  2. Add Applications/<app>/ with Kernel-Info.txt and ActionPoint-Label-Mapping.txt")
		fmt.Println("  3. Run: hlsopt markers check <app>")
		fmt.Println("  4. Run: hlsopt optimize <app>")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&minimal, "minimal", false, "Minimal init: directories only")
}
