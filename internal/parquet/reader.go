package parquet

import (
	"context"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
)

// ReadTable reads a whole Parquet file into an Arrow table and checks that
// it has the expected schema. The caller releases the table.
func ReadTable(ctx context.Context, path string, want *arrow.Schema) (arrow.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer pf.Close()

	arrowReader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow reader: %w", err)
	}

	tbl, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}

	if err := checkSchema(tbl.Schema(), want); err != nil {
		tbl.Release()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tbl, nil
}

func checkSchema(got, want *arrow.Schema) error {
	if got.NumFields() != want.NumFields() {
		return fmt.Errorf("expected %d columns, found %d", want.NumFields(), got.NumFields())
	}
	for i, f := range want.Fields() {
		g := got.Field(i)
		if g.Name != f.Name || !arrow.TypeEqual(g.Type, f.Type) {
			return fmt.Errorf("column %d: expected %s %s, found %s %s", i, f.Name, f.Type, g.Name, g.Type)
		}
	}
	return nil
}

// EachMatch calls fn for every row of a table with MatchSchema
func EachMatch(tbl arrow.Table, fn func(buildingID, addressID string, seq int32) error) error {
	buildings := tbl.Column(0).Data()
	addresses := tbl.Column(1).Data()
	seqs := tbl.Column(2).Data()

	for c := range buildings.Chunks() {
		b := buildings.Chunk(c).(*array.String)
		a := addresses.Chunk(c).(*array.String)
		s := seqs.Chunk(c).(*array.Int32)
		for i := 0; i < b.Len(); i++ {
			if err := fn(b.Value(i), a.Value(i), s.Value(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// EachFootprint calls fn for every row of a table with FootprintSchema.
// geomWKB is only valid during the call.
func EachFootprint(tbl arrow.Table, fn func(buildingID string, geomWKB []byte) error) error {
	buildings := tbl.Column(0).Data()
	geoms := tbl.Column(1).Data()

	for c := range buildings.Chunks() {
		b := buildings.Chunk(c).(*array.String)
		g := geoms.Chunk(c).(*array.Binary)
		for i := 0; i < b.Len(); i++ {
			if err := fn(b.Value(i), g.Value(i)); err != nil {
				return err
			}
		}
	}
	return nil
}
