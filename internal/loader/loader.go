package loader

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/addrjoin/internal/config"
	"github.com/wegman-software/addrjoin/internal/logger"
	"github.com/wegman-software/addrjoin/internal/parquet"
)

// Stats holds loader statistics
type Stats struct {
	Footprints int64
	Matches    int64
}

// Loader loads footprint and match Parquet files into PostgreSQL/PostGIS
type Loader struct {
	cfg           *config.Config
	pool          *pgxpool.Pool
	dropExisting  bool
	createIndexes bool
}

// NewLoader creates a new PostgreSQL loader
func NewLoader(ctx context.Context, cfg *config.Config, dropExisting, createIndexes bool) (*Loader, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// one connection per table plus headroom for index builds
	poolConfig.MaxConns = int32(max(cfg.Workers, 2))

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	return &Loader{
		cfg:           cfg,
		pool:          pool,
		dropExisting:  dropExisting,
		createIndexes: createIndexes,
	}, nil
}

// Close closes connections
func (l *Loader) Close() error {
	l.pool.Close()
	return nil
}

// Run loads the footprints and matches files, skipping any that do not
// exist. Both tables load concurrently.
func (l *Loader) Run(ctx context.Context, footprintsPath, matchesPath string) (*Stats, error) {
	log := logger.Get()
	stats := &Stats{}

	if _, err := l.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return nil, fmt.Errorf("failed to create PostGIS extension: %w", err)
	}

	if l.cfg.DBSchema != "public" {
		sql := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{l.cfg.DBSchema}.Sanitize())
		if _, err := l.pool.Exec(ctx, sql); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	tables := []struct {
		def    tableDef
		source string
		rows   *int64
	}{
		{footprintsTable(l.cfg.DBSchema, l.cfg.FootprintsTable, l.cfg.Projection), footprintsPath, &stats.Footprints},
		{matchesTable(l.cfg.DBSchema, l.cfg.MatchesTable), matchesPath, &stats.Matches},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, table := range tables {
		if table.source == "" {
			continue
		}
		if _, err := os.Stat(table.source); os.IsNotExist(err) {
			log.Debug("Skipping table (no source file)", zap.String("table", table.def.name.Sanitize()))
			continue
		}

		table := table
		g.Go(func() error {
			start := time.Now()
			log.Info("Loading table", zap.String("table", table.def.name.Sanitize()))
			count, err := l.loadTable(gctx, table.def, table.source)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", table.def.name.Sanitize(), err)
			}
			*table.rows = count
			log.Info("Table loaded",
				zap.String("table", table.def.name.Sanitize()),
				zap.Int64("rows", count),
				zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return stats, nil
}

// loadTable creates the target table, copies the Parquet rows through a
// temp table and builds indexes.
func (l *Loader) loadTable(ctx context.Context, def tableDef, parquetPath string) (int64, error) {
	tbl, err := parquet.ReadTable(ctx, parquetPath, def.schema)
	if err != nil {
		return 0, err
	}
	defer tbl.Release()

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if l.dropExisting {
		if _, err := conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", def.name.Sanitize())); err != nil {
			return 0, fmt.Errorf("failed to drop table: %w", err)
		}
	}
	if _, err := conn.Exec(ctx, def.createSQL()); err != nil {
		return 0, fmt.Errorf("failed to create table: %w", err)
	}

	count, err := copyTable(ctx, conn.Conn(), def, tbl)
	if err != nil {
		return 0, err
	}

	if l.createIndexes {
		for _, sql := range def.indexSQL() {
			if _, err := conn.Exec(ctx, sql); err != nil {
				return 0, fmt.Errorf("failed to create index: %w", err)
			}
		}
		if _, err := conn.Exec(ctx, "ANALYZE "+def.name.Sanitize()); err != nil {
			return 0, err
		}
	}

	return count, nil
}

// copyTable replaces the table contents in one transaction
func copyTable(ctx context.Context, conn *pgx.Conn, def tableDef, tbl arrow.Table) (int64, error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "TRUNCATE "+def.name.Sanitize()); err != nil {
		return 0, fmt.Errorf("failed to truncate table: %w", err)
	}
	if _, err := tx.Exec(ctx, def.tempSQL()); err != nil {
		return 0, fmt.Errorf("failed to create temp table: %w", err)
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{def.temp}, def.copyColumns, newTableSource(tbl))
	if err != nil {
		return 0, fmt.Errorf("COPY failed: %w", err)
	}

	if _, err := tx.Exec(ctx, def.insertSQL()); err != nil {
		return 0, fmt.Errorf("failed to insert from temp table: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return copyCount, nil
}
