package loader

import (
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/jackc/pgx/v5"

	"github.com/wegman-software/addrjoin/internal/parquet"
)

// tableDef describes how one Parquet file maps onto a PostgreSQL table
type tableDef struct {
	name   pgx.Identifier
	schema *arrow.Schema

	// columns of the final table
	columns []string
	// temp table receiving the COPY, and its columns
	temp        string
	tempColumns []string
	copyColumns []string
	// select list turning temp rows into final rows
	selectList string
	where      string

	indexes []indexDef
}

type indexDef struct {
	suffix string
	using  string
	column string
}

func footprintsTable(schema, name string, srid int) tableDef {
	return tableDef{
		name:   pgx.Identifier{schema, name},
		schema: parquet.FootprintSchema,
		columns: []string{
			"building_id TEXT NOT NULL",
			fmt.Sprintf("geom GEOMETRY(Polygon, %d)", srid),
		},
		temp:        "footprint_load_tmp",
		tempColumns: []string{"building_id TEXT", "geom_wkb BYTEA"},
		copyColumns: []string{parquet.ColBuildingID, parquet.ColGeomWKB},
		// WKB already includes SRID (EWKB format)
		selectList: "building_id, ST_GeomFromEWKB(geom_wkb)",
		where:      "geom_wkb IS NOT NULL",
		indexes: []indexDef{
			{suffix: "geom_idx", using: "GIST", column: "geom"},
			{suffix: "building_id_idx", using: "BTREE", column: "building_id"},
		},
	}
}

func matchesTable(schema, name string) tableDef {
	return tableDef{
		name:   pgx.Identifier{schema, name},
		schema: parquet.MatchSchema,
		columns: []string{
			"building_id TEXT NOT NULL",
			"address_id TEXT NOT NULL",
			"seq INTEGER NOT NULL",
		},
		temp:        "match_load_tmp",
		tempColumns: []string{"building_id TEXT", "address_id TEXT", "seq INTEGER"},
		copyColumns: []string{parquet.ColBuildingID, parquet.ColAddressID, parquet.ColSeq},
		selectList:  "building_id, address_id, seq",
		indexes: []indexDef{
			{suffix: "building_id_idx", using: "BTREE", column: "building_id"},
			{suffix: "address_id_idx", using: "BTREE", column: "address_id"},
		},
	}
}

func (d tableDef) shortName() string {
	return d.name[len(d.name)-1]
}

func (d tableDef) columnNames() []string {
	names := make([]string, len(d.columns))
	for i, c := range d.columns {
		names[i] = strings.Fields(c)[0]
	}
	return names
}

func (d tableDef) createSQL() string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		d.name.Sanitize(), strings.Join(d.columns, ",\n\t"))
}

func (d tableDef) tempSQL() string {
	return fmt.Sprintf("CREATE TEMP TABLE %s (%s) ON COMMIT DROP",
		pgx.Identifier{d.temp}.Sanitize(), strings.Join(d.tempColumns, ", "))
}

func (d tableDef) insertSQL() string {
	sql := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		d.name.Sanitize(), strings.Join(d.columnNames(), ", "), d.selectList, pgx.Identifier{d.temp}.Sanitize())
	if d.where != "" {
		sql += " WHERE " + d.where
	}
	return sql
}

func (d tableDef) indexSQL() []string {
	stmts := make([]string, len(d.indexes))
	for i, idx := range d.indexes {
		stmts[i] = fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING %s (%s)",
			pgx.Identifier{d.shortName() + "_" + idx.suffix}.Sanitize(), d.name.Sanitize(), idx.using, idx.column)
	}
	return stmts
}
