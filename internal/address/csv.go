package address

import (
	"bufio"
	"bytes"
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/csv"
)

// csvChunkRows is the number of rows decoded per arrow record
const csvChunkRows = 16384

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoadCSV reads addresses from a headed CSV file. Only the configured
// identifier, longitude and latitude columns are decoded; every row must
// carry a non-empty identifier and numeric coordinates.
func LoadCSV(path string, opts LoadOptions) ([]Address, error) {
	cols := opts.Columns
	comma := opts.Comma
	if comma == 0 {
		comma = ','
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open address file: %w", err)
	}
	defer f.Close()

	hasRows, err := checkHeader(skipBOM(f), comma, cols.ID, cols.Lon, cols.Lat)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	// arrow's inferring reader cannot build a record without a data row
	if !hasRows {
		return []Address{}, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	reader := csv.NewInferringReader(skipBOM(f),
		csv.WithHeader(true),
		csv.WithComma(comma),
		csv.WithChunk(csvChunkRows),
		csv.WithIncludeColumns([]string{cols.ID, cols.Lon, cols.Lat}),
		csv.WithColumnTypes(map[string]arrow.DataType{
			cols.ID:  arrow.BinaryTypes.String,
			cols.Lon: arrow.PrimitiveTypes.Float64,
			cols.Lat: arrow.PrimitiveTypes.Float64,
		}),
	)
	defer reader.Release()

	var addrs []Address
	row := 0
	for reader.Next() {
		rec := reader.Record()
		schema := rec.Schema()

		ids, ok := column[*array.String](rec, schema, cols.ID)
		if !ok {
			return nil, fmt.Errorf("%s: %w: %s", path, ErrMissingColumn, cols.ID)
		}
		lons, ok := column[*array.Float64](rec, schema, cols.Lon)
		if !ok {
			return nil, fmt.Errorf("%s: %w: %s", path, ErrMissingColumn, cols.Lon)
		}
		lats, ok := column[*array.Float64](rec, schema, cols.Lat)
		if !ok {
			return nil, fmt.Errorf("%s: %w: %s", path, ErrMissingColumn, cols.Lat)
		}

		for i := 0; i < int(rec.NumRows()); i++ {
			row++
			if ids.IsNull(i) || lons.IsNull(i) || lats.IsNull(i) {
				return nil, fmt.Errorf("%s: row %d: %w: empty field", path, row, ErrInvalidRow)
			}
			id := strings.TrimSpace(ids.Value(i))
			if id == "" {
				return nil, fmt.Errorf("%s: row %d: %w: empty identifier", path, row, ErrInvalidRow)
			}
			addrs = append(addrs, Address{
				// arrow reuses the record buffers
				ID:  strings.Clone(id),
				Lon: lons.Value(i),
				Lat: lats.Value(i),
			})
		}
	}
	if err := reader.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrInvalidRow, err)
	}

	return addrs, nil
}

// skipBOM drops a leading UTF-8 byte order mark, as written by spreadsheet
// exports.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// checkHeader verifies the header row names every required column and
// reports whether at least one record follows it.
func checkHeader(r io.Reader, comma rune, required ...string) (bool, error) {
	cr := stdcsv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, fmt.Errorf("%w: file has no header row", ErrMissingColumn)
		}
		return false, fmt.Errorf("failed to read header: %w", err)
	}

	present := make(map[string]bool, len(header))
	for _, name := range header {
		present[name] = true
	}
	for _, name := range required {
		if !present[name] {
			return false, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	// malformed rows are reported by the arrow reader
	if _, err := cr.Read(); errors.Is(err, io.EOF) {
		return false, nil
	}
	return true, nil
}

func column[T arrow.Array](rec arrow.Record, schema *arrow.Schema, name string) (T, bool) {
	var zero T
	indices := schema.FieldIndices(name)
	if len(indices) == 0 {
		return zero, false
	}
	arr, ok := rec.Column(indices[0]).(T)
	return arr, ok
}
