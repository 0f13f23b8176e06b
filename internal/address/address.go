package address

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"

	"github.com/wegman-software/addrjoin/internal/config"
	"github.com/wegman-software/addrjoin/internal/proj"
	"github.com/wegman-software/addrjoin/internal/spatial"
)

// Input-format errors
var (
	ErrMissingColumn = errors.New("missing required column")
	ErrInvalidRow    = errors.New("invalid address row")
	ErrDuplicateID   = errors.New("duplicate address identifier")
)

// Address is one input row. Projected is filled by Reproject.
type Address struct {
	ID        string
	Lon       float64
	Lat       float64
	Projected orb.Point
}

// LoadOptions controls how addresses are read
type LoadOptions struct {
	Columns config.Columns
	// Comma is the CSV field delimiter (default ',')
	Comma rune
	// Workers decoding PBF blocks
	Workers int
}

// Load reads addresses from a CSV file, or from an OSM PBF file when path
// ends in .pbf. Identifiers must be unique.
func Load(ctx context.Context, path string, opts LoadOptions) ([]Address, error) {
	var (
		addrs []Address
		err   error
	)
	if strings.EqualFold(filepath.Ext(path), ".pbf") {
		addrs, err = LoadPBF(ctx, path, opts.Workers)
	} else {
		addrs, err = LoadCSV(path, opts)
	}
	if err != nil {
		return nil, err
	}

	if err := checkUnique(addrs); err != nil {
		return nil, err
	}
	return addrs, nil
}

func checkUnique(addrs []Address) error {
	seen := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	return nil
}

// Filter decides whether an address takes part in the join
type Filter interface {
	Accept(a *Address) (bool, error)
}

// BBoxFilter keeps addresses inside a geographic bounding box
type BBoxFilter struct {
	BBox *config.BBox
}

func (f BBoxFilter) Accept(a *Address) (bool, error) {
	return f.BBox.Contains(a.Lat, a.Lon), nil
}

// Select returns the addresses every filter accepts, in input order.
func Select(addrs []Address, filters ...Filter) ([]Address, error) {
	if len(filters) == 0 {
		return addrs, nil
	}

	kept := addrs[:0:0]
	for i := range addrs {
		keep := true
		for _, f := range filters {
			ok, err := f.Accept(&addrs[i])
			if err != nil {
				return nil, fmt.Errorf("address %s: %w", addrs[i].ID, err)
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, addrs[i])
		}
	}
	return kept, nil
}

// Reproject fills Projected for every address with the same transform.
func Reproject(addrs []Address, t *proj.Transformer) {
	for i := range addrs {
		addrs[i].Projected = t.TransformPoint(orb.Point{addrs[i].Lon, addrs[i].Lat})
	}
}

// Points converts projected addresses into join input, keeping order.
func Points(addrs []Address) []spatial.Point {
	points := make([]spatial.Point, len(addrs))
	for i, a := range addrs {
		points[i] = spatial.Point{ID: a.ID, Loc: a.Projected}
	}
	return points
}
