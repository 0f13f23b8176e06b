package cmd

import (
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/addrjoin/internal/logger"
	"github.com/wegman-software/addrjoin/internal/pipeline"
)

var footprintsOut string

var extractCmd = &cobra.Command{
	Use:   "extract <buildings.json>",
	Short: "Extract building footprints to a Parquet file",
	Long: `Resolve the footprint of every building and write it to Parquet:

  - building_id  (CityJSON object id)
  - geom_wkb     (EWKB polygon tagged with the building projection)

The output can be loaded into PostgreSQL with the load command.`,
	Args: cobra.ExactArgs(1),
	Run:  runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVarP(&footprintsOut, "output", "o", "", "Footprint Parquet file (default <output-dir>/footprints.parquet)")
}

func runExtract(cmd *cobra.Command, args []string) {
	cfg.BuildingFile = args[0]
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	out := footprintsOut
	if out == "" {
		out = cfg.FootprintsPath()
	}

	log.Info("Starting footprint extraction",
		zap.String("input", cfg.BuildingFile),
		zap.String("output", out),
		zap.Int("workers", cfg.Workers),
	)

	ctx, stop := signalContext()
	defer stop()

	start := time.Now()
	stats, err := pipeline.NewCoordinator(cfg, pipeline.CoordinatorConfig{}).RunExtract(ctx, out)
	if err != nil {
		exitWithError("extraction failed", err)
	}

	elapsed := time.Since(start)
	log.Info("Extraction summary",
		zap.String("duration", pipeline.FormatDuration(elapsed)),
		zap.Int64("footprints", stats.Rows),
		zap.String("throughput", pipeline.FormatThroughput(pipeline.Throughput(stats.Buildings, elapsed))),
	)
}
