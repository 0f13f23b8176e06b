package parquet

import (
	"errors"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
)

// Column names shared with the database loader
const (
	ColBuildingID = "building_id"
	ColAddressID  = "address_id"
	ColSeq        = "seq"
	ColGeomWKB    = "geom_wkb"
)

// MatchSchema is one row per (building, address) pair; seq is the
// address position within the building's list.
var MatchSchema = arrow.NewSchema([]arrow.Field{
	{Name: ColBuildingID, Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: ColAddressID, Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: ColSeq, Type: arrow.PrimitiveTypes.Int32, Nullable: false},
}, nil)

// FootprintSchema is one row per building with its footprint as EWKB
var FootprintSchema = arrow.NewSchema([]arrow.Field{
	{Name: ColBuildingID, Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: ColGeomWKB, Type: arrow.BinaryTypes.Binary, Nullable: false},
}, nil)

// tableWriter buffers rows in a record builder and writes a row group
// every batchSize rows.
type tableWriter struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
	total     int64
}

func newTableWriter(path string, schema *arrow.Schema, batchSize int) (*tableWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(schema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, err
	}

	if batchSize < 1 {
		batchSize = 1
	}

	return &tableWriter{
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, schema),
		batchSize: batchSize,
	}, nil
}

func (w *tableWriter) rowAdded() error {
	w.count++
	w.total++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

func (w *tableWriter) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.count = 0
	return err
}

// Rows returns the number of rows written so far
func (w *tableWriter) Rows() int64 {
	return w.total
}

// Close flushes pending rows and closes the file
func (w *tableWriter) Close() error {
	defer w.builder.Release()
	if err := w.flush(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return err
	}
	// the parquet writer may already have closed the file
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// MatchWriter writes building/address pairs to Parquet
type MatchWriter struct {
	*tableWriter
}

// NewMatchWriter creates a new match Parquet writer
func NewMatchWriter(path string, batchSize int) (*MatchWriter, error) {
	tw, err := newTableWriter(path, MatchSchema, batchSize)
	if err != nil {
		return nil, err
	}
	return &MatchWriter{tableWriter: tw}, nil
}

// Write writes one building/address pair
func (w *MatchWriter) Write(buildingID, addressID string, seq int32) error {
	w.builder.Field(0).(*array.StringBuilder).Append(buildingID)
	w.builder.Field(1).(*array.StringBuilder).Append(addressID)
	w.builder.Field(2).(*array.Int32Builder).Append(seq)
	return w.rowAdded()
}

// WriteBuilding writes every address matched to a building, in order
func (w *MatchWriter) WriteBuilding(buildingID string, addressIDs []string) error {
	for i, id := range addressIDs {
		if err := w.Write(buildingID, id, int32(i)); err != nil {
			return err
		}
	}
	return nil
}

// FootprintWriter writes building footprints as EWKB to Parquet
type FootprintWriter struct {
	*tableWriter
}

// NewFootprintWriter creates a new footprint Parquet writer
func NewFootprintWriter(path string, batchSize int) (*FootprintWriter, error) {
	tw, err := newTableWriter(path, FootprintSchema, batchSize)
	if err != nil {
		return nil, err
	}
	return &FootprintWriter{tableWriter: tw}, nil
}

// Write writes one footprint. geomWKB is copied.
func (w *FootprintWriter) Write(buildingID string, geomWKB []byte) error {
	w.builder.Field(0).(*array.StringBuilder).Append(buildingID)
	w.builder.Field(1).(*array.BinaryBuilder).Append(geomWKB)
	return w.rowAdded()
}
