package loader

import (
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
)

// tableSource implements pgx.CopyFromSource over an Arrow table. Columns
// must be string, binary or int32 and share chunk boundaries.
type tableSource struct {
	columns []*arrow.Chunked
	chunk   int
	row     int
	values  []any
	err     error
}

func newTableSource(tbl arrow.Table) *tableSource {
	cols := make([]*arrow.Chunked, tbl.NumCols())
	for i := range cols {
		cols[i] = tbl.Column(i).Data()
	}
	return &tableSource{columns: cols, row: -1, values: make([]any, len(cols))}
}

func (s *tableSource) Next() bool {
	if s.err != nil || len(s.columns) == 0 {
		return false
	}
	s.row++
	for s.chunk < len(s.columns[0].Chunks()) && s.row >= s.columns[0].Chunk(s.chunk).Len() {
		s.chunk++
		s.row = 0
	}
	if s.chunk >= len(s.columns[0].Chunks()) {
		return false
	}

	for i, col := range s.columns {
		switch arr := col.Chunk(s.chunk).(type) {
		case *array.String:
			s.values[i] = arr.Value(s.row)
		case *array.Binary:
			s.values[i] = arr.Value(s.row)
		case *array.Int32:
			s.values[i] = arr.Value(s.row)
		default:
			s.err = fmt.Errorf("unsupported column type %s", arr.DataType())
			return false
		}
	}
	return true
}

func (s *tableSource) Values() ([]any, error) {
	return s.values, nil
}

func (s *tableSource) Err() error {
	return s.err
}
