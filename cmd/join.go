package cmd

import (
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/addrjoin/internal/config"
	"github.com/wegman-software/addrjoin/internal/logger"
	"github.com/wegman-software/addrjoin/internal/pipeline"
)

var (
	bboxStr       string
	createIndexes bool
	dropExisting  bool
)

var joinCmd = &cobra.Command{
	Use:   "join <addresses.csv|addresses.osm.pbf> <buildings.json>",
	Short: "Attach matching address identifiers to every building",
	Long: `Run the full join:

  1. Read address points (CSV, or nodes with addr:* tags from an OSM PBF)
  2. Reproject them from EPSG:4326 to the building projection
  3. Resolve each building's footprint from its first MultiSurface geometry
  4. Match every address to the buildings whose footprint contains it
  5. Write the document with the matches in a building attribute

Points on a footprint edge do not match. Every building receives the
attribute, with an empty list when nothing matched.`,
	Args: cobra.ExactArgs(2),
	Run:  runJoin,
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&cfg.OutputFile, "output", "o", cfg.OutputFile, "Output CityJSON file")
	joinCmd.Flags().IntVar(&cfg.Indent, "indent", cfg.Indent, "Indent output by this many spaces (0 = compact, byte-preserving)")
	joinCmd.Flags().StringVarP(&cfg.Attribute, "attribute", "a", cfg.Attribute, "Building attribute receiving the matched identifiers")
	joinCmd.Flags().StringVar(&cfg.Columns.ID, "id-column", cfg.Columns.ID, "Address identifier column")
	joinCmd.Flags().StringVar(&cfg.Columns.Lon, "lon-column", cfg.Columns.Lon, "Address longitude column")
	joinCmd.Flags().StringVar(&cfg.Columns.Lat, "lat-column", cfg.Columns.Lat, "Address latitude column")
	joinCmd.Flags().StringVar(&cfg.Delimiter, "delimiter", cfg.Delimiter, "CSV field delimiter")
	joinCmd.Flags().StringVarP(&bboxStr, "bbox", "b", "", "Address bounding box filter: minlon,minlat,maxlon,maxlat")
	joinCmd.Flags().StringVar(&cfg.FilterScript, "filter", cfg.FilterScript, "Lua script defining filter_address(id, lon, lat)")
	joinCmd.Flags().StringVar(&cfg.Index, "index", cfg.Index, "Spatial index strategy (rtree or brute)")

	joinCmd.Flags().StringVar(&cfg.MatchesFile, "matches-parquet", cfg.MatchesFile, "Also write matches to this Parquet file")
	joinCmd.Flags().BoolVar(&cfg.ExportDB, "export-db", cfg.ExportDB, "Load footprints and matches into PostgreSQL")
	joinCmd.Flags().BoolVar(&createIndexes, "create-indexes", true, "Create indexes after loading (with --export-db)")
	joinCmd.Flags().BoolVar(&dropExisting, "drop-existing", false, "Drop existing tables before loading (with --export-db)")
}

func runJoin(cmd *cobra.Command, args []string) {
	cfg.AddressFile = args[0]
	cfg.BuildingFile = args[1]
	log := logger.Get()

	if cmd.Flags().Changed("bbox") {
		bbox, err := config.ParseBBox(bboxStr)
		if err != nil {
			exitWithError("invalid bbox", err)
		}
		cfg.BBox = bbox
	}

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	logFields := []zap.Field{
		zap.String("addresses", cfg.AddressFile),
		zap.String("buildings", cfg.BuildingFile),
		zap.String("output", cfg.OutputFile),
		zap.String("attribute", cfg.Attribute),
		zap.Int("projection", cfg.Projection),
		zap.String("index", cfg.Index),
		zap.Int("workers", cfg.Workers),
	}
	if cfg.BBox != nil && cfg.BBox.IsSet {
		logFields = append(logFields, zap.String("bbox", cfg.BBox.String()))
	}
	if cfg.FilterScript != "" {
		logFields = append(logFields, zap.String("filter", cfg.FilterScript))
	}
	log.Info("Starting address join", logFields...)

	ctx, stop := signalContext()
	defer stop()

	start := time.Now()
	coordinator := pipeline.NewCoordinator(cfg, pipeline.CoordinatorConfig{
		DropExisting:  dropExisting,
		CreateIndexes: createIndexes,
	})

	stats, err := coordinator.RunJoin(ctx)
	if err != nil {
		exitWithError("join failed", err)
	}

	fields := []zap.Field{zap.String("total_time", pipeline.FormatDuration(time.Since(start)))}
	for _, t := range stats.Timings {
		fields = append(fields, zap.String(t.Stage, pipeline.FormatDuration(t.Duration)))
	}
	if cfg.ExportDB {
		fields = append(fields, zap.Int64("rows_exported", stats.RowsExported))
	}
	log.Info("Timing summary", fields...)
}
