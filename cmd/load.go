package cmd

import (
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/addrjoin/internal/loader"
	"github.com/wegman-software/addrjoin/internal/logger"
	"github.com/wegman-software/addrjoin/internal/pipeline"
)

var (
	loadFootprints string
	loadMatches    string
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load footprint and match Parquet files into PostgreSQL",
	Long: `Bulk load Parquet exports into PostgreSQL/PostGIS.

This stage:
  1. Creates the footprint and match tables
  2. Uses COPY for high-speed bulk loading
  3. Optionally creates spatial and identifier indexes

Missing input files are skipped.`,
	Args: cobra.NoArgs,
	Run:  runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().StringVar(&loadFootprints, "footprints", "", "Footprint Parquet file (default <output-dir>/footprints.parquet)")
	loadCmd.Flags().StringVar(&loadMatches, "matches", "", "Match Parquet file (default <output-dir>/matches.parquet)")
	loadCmd.Flags().BoolVar(&createIndexes, "create-indexes", true, "Create indexes after loading")
	loadCmd.Flags().BoolVar(&dropExisting, "drop-existing", false, "Drop existing tables before loading")
}

func runLoad(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if loadFootprints == "" {
		loadFootprints = cfg.FootprintsPath()
	}
	if loadMatches == "" {
		loadMatches = cfg.MatchesPath()
	}

	log.Info("Starting PostgreSQL load",
		zap.String("footprints", loadFootprints),
		zap.String("matches", loadMatches),
		zap.String("database", cfg.DBName),
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("user", cfg.DBUser),
		zap.String("schema", cfg.DBSchema),
	)

	ctx, stop := signalContext()
	defer stop()

	start := time.Now()

	ldr, err := loader.NewLoader(ctx, cfg, dropExisting, createIndexes)
	if err != nil {
		exitWithError("failed to create loader", err)
	}
	defer ldr.Close()

	stats, err := ldr.Run(ctx, loadFootprints, loadMatches)
	if err != nil {
		exitWithError("load failed", err)
	}

	elapsed := time.Since(start)
	rows := stats.Footprints + stats.Matches

	log.Info("Load complete",
		zap.String("duration", pipeline.FormatDuration(elapsed)),
		zap.Int64("footprints", stats.Footprints),
		zap.Int64("matches", stats.Matches),
		zap.String("throughput", pipeline.FormatThroughput(pipeline.Throughput(int(rows), elapsed))),
	)
}
