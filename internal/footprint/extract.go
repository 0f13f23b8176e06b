package footprint

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/addrjoin/internal/cityjson"
)

// DefaultGeometryType is the only geometry type the extraction accepts by default.
const DefaultGeometryType = "MultiSurface"

// Footprint is the planar exterior ring of one city object.
type Footprint struct {
	BuildingID string
	Ring       orb.Ring
}

// Options controls extraction
type Options struct {
	// GeometryType every city object's first geometry must carry
	GeometryType string
	// Workers resolving objects concurrently (<= 1 means sequential)
	Workers int
}

// Extract resolves one footprint per city object, in document order. The
// first object with an unexpected geometry type, missing geometry or broken
// boundary aborts the whole extraction.
func Extract(ctx context.Context, doc *cityjson.Document, opts Options) ([]Footprint, error) {
	if opts.GeometryType == "" {
		opts.GeometryType = DefaultGeometryType
	}

	buildings := doc.Buildings()
	vertices := doc.Vertices()
	footprints := make([]Footprint, len(buildings))

	if opts.Workers <= 1 {
		for i, b := range buildings {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			fp, err := extractOne(vertices, b, opts.GeometryType)
			if err != nil {
				return nil, err
			}
			footprints[i] = fp
		}
		return footprints, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for i, b := range buildings {
		if gctx.Err() != nil {
			break
		}
		i, b := i, b
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fp, err := extractOne(vertices, b, opts.GeometryType)
			if err != nil {
				return err
			}
			footprints[i] = fp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return footprints, nil
}

func extractOne(vertices []orb.Point, b *cityjson.Building, geometryType string) (Footprint, error) {
	geom, err := b.FirstGeometry()
	if err != nil {
		return Footprint{}, &cityjson.ObjectError{ID: b.ID, Err: err}
	}
	if geom.Type != geometryType {
		return Footprint{}, &cityjson.ObjectError{
			ID:  b.ID,
			Err: fmt.Errorf("%w: %q (expected %q)", cityjson.ErrUnsupportedGeometry, geom.Type, geometryType),
		}
	}

	ring, err := cityjson.Resolve(vertices, geom.Boundaries)
	if err != nil {
		return Footprint{}, &cityjson.ObjectError{ID: b.ID, Err: err}
	}
	return Footprint{BuildingID: b.ID, Ring: ring}, nil
}
