package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/wegman-software/addrjoin/internal/config"
	"github.com/wegman-software/addrjoin/internal/logger"
	"github.com/wegman-software/addrjoin/internal/proj"
)

var (
	cfg           = config.DefaultConfig()
	configFile    string
	projectionStr string
)

var rootCmd = &cobra.Command{
	Use:   "addrjoin",
	Short: "Attach address identifiers to CityJSON buildings",
	Long: `addrjoin matches address points to the buildings that contain them and
writes the matched identifiers into each building's attributes.

Features:
  - CSV or OSM PBF address input, reprojected from WGS84 to Web Mercator
  - R-tree accelerated point-in-polygon join across parallel workers
  - Order-preserving CityJSON rewrite with atomic output
  - Parquet export and PostgreSQL/PostGIS bulk loading`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := applyConfigFile(cmd.Flags()); err != nil {
			return err
		}

		if cmd.Flags().Changed("projection") {
			srid, err := proj.ParseSRID(projectionStr)
			if err != nil {
				return fmt.Errorf("invalid projection: %w", err)
			}
			cfg.Projection = srid
		}

		logger.Init(logger.Options{Debug: cfg.Verbose, File: cfg.LogFile})
		return nil
	},
}

// applyConfigFile loads --config on top of the defaults, then re-applies
// every flag given on the command line so flags win over the file.
func applyConfigFile(flags *pflag.FlagSet) error {
	if configFile == "" {
		return nil
	}

	changed := make(map[string]string)
	flags.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	if err := config.LoadFile(configFile, cfg); err != nil {
		return err
	}

	for name, value := range changed {
		if err := flags.Set(name, value); err != nil {
			return fmt.Errorf("flag --%s: %w", name, err)
		}
	}
	return nil
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (flags override its values)")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Directory for Parquet exports")
	rootCmd.PersistentFlags().IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of parallel workers")
	rootCmd.PersistentFlags().StringVarP(&projectionStr, "projection", "E", "3857", "SRID of the building vertices (4326 or 3857)")
	rootCmd.PersistentFlags().StringVar(&cfg.GeometryType, "geometry-type", cfg.GeometryType, "Geometry type every building must carry")
	rootCmd.PersistentFlags().IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Rows per Parquet row group")

	// Logging and metrics flags
	rootCmd.PersistentFlags().StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&cfg.MetricsInterval, "metrics-interval", cfg.MetricsInterval, "Interval for system metrics logging (e.g., 10s, 1m; 0 disables)")

	// Database flags (persistent so they're available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "PostgreSQL host")
	rootCmd.PersistentFlags().IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "PostgreSQL port")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBName, "db-name", "d", cfg.DBName, "PostgreSQL database name")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBUser, "db-user", "U", cfg.DBUser, "PostgreSQL user")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBPassword, "db-password", "W", cfg.DBPassword, "PostgreSQL password")
	rootCmd.PersistentFlags().StringVar(&cfg.DBSchema, "db-schema", cfg.DBSchema, "PostgreSQL schema")
	rootCmd.PersistentFlags().StringVar(&cfg.FootprintsTable, "footprints-table", cfg.FootprintsTable, "Table receiving building footprints")
	rootCmd.PersistentFlags().StringVar(&cfg.MatchesTable, "matches-table", cfg.MatchesTable, "Table receiving building/address matches")
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	logger.Sync()
	os.Exit(1)
}
