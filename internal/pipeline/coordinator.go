package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/addrjoin/internal/address"
	"github.com/wegman-software/addrjoin/internal/cityjson"
	"github.com/wegman-software/addrjoin/internal/config"
	"github.com/wegman-software/addrjoin/internal/footprint"
	"github.com/wegman-software/addrjoin/internal/loader"
	"github.com/wegman-software/addrjoin/internal/logger"
	"github.com/wegman-software/addrjoin/internal/metrics"
	"github.com/wegman-software/addrjoin/internal/parquet"
	"github.com/wegman-software/addrjoin/internal/proj"
	"github.com/wegman-software/addrjoin/internal/spatial"
	"github.com/wegman-software/addrjoin/internal/wkb"
)

// CoordinatorConfig holds database export options
type CoordinatorConfig struct {
	DropExisting  bool
	CreateIndexes bool
}

// Coordinator runs the join stages in order:
// addresses -> document -> extract -> join -> merge -> save -> export.
type Coordinator struct {
	cfg       *config.Config
	pipeCfg   CoordinatorConfig
	collector *metrics.Collector
	timings   []StageTiming
}

// NewCoordinator creates a new pipeline coordinator
func NewCoordinator(cfg *config.Config, pipeCfg CoordinatorConfig) *Coordinator {
	return &Coordinator{cfg: cfg, pipeCfg: pipeCfg}
}

// startMetrics runs the metrics collector until the returned func is called
func (c *Coordinator) startMetrics(ctx context.Context) context.CancelFunc {
	if c.cfg.MetricsInterval <= 0 {
		return func() {}
	}

	log := logger.Get()
	metricsCtx, cancel := context.WithCancel(ctx)
	c.collector = metrics.NewCollector(c.cfg.MetricsInterval, log)
	go c.collector.Start(metricsCtx)
	log.Info("System metrics collection started",
		zap.Duration("interval", c.cfg.MetricsInterval))
	return cancel
}

// stage runs fn, records its duration and prefixes errors with the stage name
func (c *Coordinator) stage(name string, fn func() error) error {
	log := logger.Get()
	if c.collector != nil {
		c.collector.SetStage(name)
	}

	start := time.Now()
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	elapsed := time.Since(start)
	c.timings = append(c.timings, StageTiming{Stage: name, Duration: elapsed})
	log.Debug("Stage complete", zap.String("stage", name), zap.String("duration", FormatDuration(elapsed)))
	return nil
}

// RunJoin loads addresses and buildings, matches them and writes the
// enriched document. The output file is only replaced when every stage
// before it succeeds.
func (c *Coordinator) RunJoin(ctx context.Context) (*JoinStats, error) {
	log := logger.Get()
	defer c.startMetrics(ctx)()
	c.timings = nil
	stats := &JoinStats{}

	var addrs []address.Address
	err := c.stage(StageAddresses, func() error {
		var err error
		addrs, err = c.loadAddresses(ctx, stats)
		return err
	})
	if err != nil {
		return nil, err
	}

	var doc *cityjson.Document
	err = c.stage(StageDocument, func() error {
		var err error
		if doc, err = cityjson.Load(c.cfg.BuildingFile); err != nil {
			return err
		}
		stats.Buildings = len(doc.Buildings())
		log.Info("Loaded buildings",
			zap.String("file", c.cfg.BuildingFile),
			zap.String("version", doc.Version()),
			zap.Int("buildings", stats.Buildings),
			zap.Int("vertices", len(doc.Vertices())))
		return doc.SetReferenceSystem(c.cfg.Projection)
	})
	if err != nil {
		return nil, err
	}

	var footprints []footprint.Footprint
	err = c.stage(StageExtract, func() error {
		var err error
		footprints, err = footprint.Extract(ctx, doc, footprint.Options{
			GeometryType: c.cfg.GeometryType,
			Workers:      c.cfg.Workers,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	var result *spatial.Result
	err = c.stage(StageJoin, func() error {
		start := time.Now()
		var err error
		result, err = spatial.Join(ctx, address.Points(addrs), Polygons(footprints), spatial.Options{
			Index:   c.cfg.Index,
			Workers: c.cfg.Workers,
		})
		if err != nil {
			return err
		}
		log.Info("Joined addresses to buildings",
			zap.String("index", c.cfg.Index),
			zap.Int("matched", result.MatchedPoints()),
			zap.String("rate", FormatThroughput(Throughput(len(addrs), time.Since(start)))))
		return nil
	})
	if err != nil {
		return nil, err
	}
	stats.MatchedAddresses = result.MatchedPoints()
	stats.UnmatchedAddresses = len(addrs) - result.MatchedPoints()
	stats.BuildingsWithMatches = result.Len()

	err = c.stage(StageMerge, func() error {
		return doc.ApplyMatches(c.cfg.Attribute, result)
	})
	if err != nil {
		return nil, err
	}

	err = c.stage(StageSave, func() error {
		if err := doc.Save(c.cfg.OutputFile, strings.Repeat(" ", c.cfg.Indent)); err != nil {
			return err
		}
		if fi, err := os.Stat(c.cfg.OutputFile); err == nil {
			log.Info("Wrote output",
				zap.String("file", c.cfg.OutputFile),
				zap.String("size", FormatBytes(fi.Size())))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if c.cfg.MatchesFile != "" || c.cfg.ExportDB {
		err = c.stage(StageExport, func() error {
			return c.export(ctx, result, footprints, stats)
		})
		if err != nil {
			return nil, err
		}
	}

	stats.Timings = c.timings
	log.Info("Join complete",
		zap.Int("addresses", stats.AddressesSelected),
		zap.Int("buildings", stats.Buildings),
		zap.Int("matched_addresses", stats.MatchedAddresses),
		zap.Int("unmatched_addresses", stats.UnmatchedAddresses),
		zap.Int("buildings_with_matches", stats.BuildingsWithMatches))
	return stats, nil
}

func (c *Coordinator) loadAddresses(ctx context.Context, stats *JoinStats) ([]address.Address, error) {
	log := logger.Get()

	all, err := address.Load(ctx, c.cfg.AddressFile, address.LoadOptions{
		Columns: c.cfg.Columns,
		Comma:   c.cfg.Comma(),
		Workers: c.cfg.Workers,
	})
	if err != nil {
		return nil, err
	}
	stats.AddressesRead = len(all)

	var filters []address.Filter
	if c.cfg.BBox != nil && c.cfg.BBox.IsSet {
		filters = append(filters, address.BBoxFilter{BBox: c.cfg.BBox})
	}
	if c.cfg.FilterScript != "" {
		lf, err := address.NewLuaFilter(c.cfg.FilterScript)
		if err != nil {
			return nil, err
		}
		defer lf.Close()
		filters = append(filters, lf)
	}

	addrs, err := address.Select(all, filters...)
	if err != nil {
		return nil, err
	}
	stats.AddressesSelected = len(addrs)

	tr, err := proj.NewTransformer(proj.SRID4326, c.cfg.Projection)
	if err != nil {
		return nil, err
	}
	address.Reproject(addrs, tr)

	log.Info("Loaded addresses",
		zap.String("file", c.cfg.AddressFile),
		zap.Int("read", stats.AddressesRead),
		zap.Int("selected", stats.AddressesSelected),
		zap.Int("srid", tr.TargetSRID))
	return addrs, nil
}

// export writes the match table and, when enabled, loads it with the
// footprints into PostgreSQL.
func (c *Coordinator) export(ctx context.Context, result *spatial.Result, footprints []footprint.Footprint, stats *JoinStats) error {
	log := logger.Get()

	matchesPath := c.cfg.MatchesPath()
	rows, err := WriteMatches(matchesPath, result, c.cfg.BatchSize)
	if err != nil {
		return err
	}
	stats.MatchRows = rows
	log.Info("Wrote matches", zap.String("file", matchesPath), zap.Int64("rows", rows))

	if !c.cfg.ExportDB {
		return nil
	}

	footprintsPath := c.cfg.FootprintsPath()
	if _, err := WriteFootprints(footprintsPath, footprints, c.cfg.Projection, c.cfg.BatchSize); err != nil {
		return err
	}

	l, err := loader.NewLoader(ctx, c.cfg, c.pipeCfg.DropExisting, c.pipeCfg.CreateIndexes)
	if err != nil {
		return err
	}
	defer l.Close()

	loadStats, err := l.Run(ctx, footprintsPath, matchesPath)
	if err != nil {
		return err
	}
	stats.RowsExported = loadStats.Footprints + loadStats.Matches
	return nil
}

// RunExtract resolves every building footprint and writes them to a
// Parquet file as EWKB.
func (c *Coordinator) RunExtract(ctx context.Context, outPath string) (*ExtractStats, error) {
	log := logger.Get()
	defer c.startMetrics(ctx)()
	c.timings = nil
	stats := &ExtractStats{}

	var doc *cityjson.Document
	err := c.stage(StageDocument, func() error {
		var err error
		doc, err = cityjson.Load(c.cfg.BuildingFile)
		return err
	})
	if err != nil {
		return nil, err
	}
	stats.Buildings = len(doc.Buildings())

	var footprints []footprint.Footprint
	err = c.stage(StageExtract, func() error {
		var err error
		footprints, err = footprint.Extract(ctx, doc, footprint.Options{
			GeometryType: c.cfg.GeometryType,
			Workers:      c.cfg.Workers,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	err = c.stage(StageExport, func() error {
		var err error
		stats.Rows, err = WriteFootprints(outPath, footprints, c.cfg.Projection, c.cfg.BatchSize)
		return err
	})
	if err != nil {
		return nil, err
	}

	stats.Timings = c.timings
	log.Info("Extraction complete",
		zap.Int("buildings", stats.Buildings),
		zap.Int64("rows", stats.Rows),
		zap.String("file", outPath))
	return stats, nil
}

// Polygons converts footprints into join input, keeping document order
func Polygons(footprints []footprint.Footprint) []spatial.Polygon {
	polygons := make([]spatial.Polygon, len(footprints))
	for i, fp := range footprints {
		polygons[i] = spatial.Polygon{ID: fp.BuildingID, Ring: fp.Ring}
	}
	return polygons
}

// WriteMatches writes one row per matched (building, address) pair in
// building order, then address order.
func WriteMatches(path string, result *spatial.Result, batchSize int) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	w, err := parquet.NewMatchWriter(path, batchSize)
	if err != nil {
		return 0, err
	}
	if err := result.Each(w.WriteBuilding); err != nil {
		w.Close()
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return w.Rows(), nil
}

// WriteFootprints writes each footprint as an EWKB polygon tagged with srid
func WriteFootprints(path string, footprints []footprint.Footprint, srid, batchSize int) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	w, err := parquet.NewFootprintWriter(path, batchSize)
	if err != nil {
		return 0, err
	}

	enc := wkb.NewEncoder(256, srid)
	for _, fp := range footprints {
		if err := w.Write(fp.BuildingID, enc.EncodePolygon(fp.Ring)); err != nil {
			w.Close()
			return 0, err
		}
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return w.Rows(), nil
}
