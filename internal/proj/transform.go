package proj

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// SRID constants for the supported projections
const (
	SRID4326 = 4326 // WGS84 (lat/lon)
	SRID3857 = 3857 // Web Mercator
)

// maxLatitude is the latitude at which the Web Mercator world becomes square.
const maxLatitude = 85.0511287798066

// Transformer handles coordinate transformations between projections
type Transformer struct {
	SourceSRID int
	TargetSRID int
}

// NewTransformer creates a transformer from source to target SRID
func NewTransformer(sourceSRID, targetSRID int) (*Transformer, error) {
	if sourceSRID != SRID4326 {
		return nil, fmt.Errorf("unsupported source SRID: %d (only 4326 supported)", sourceSRID)
	}
	if targetSRID != SRID4326 && targetSRID != SRID3857 {
		return nil, fmt.Errorf("unsupported target SRID: %d (only 4326 and 3857 supported)", targetSRID)
	}

	return &Transformer{
		SourceSRID: sourceSRID,
		TargetSRID: targetSRID,
	}, nil
}

// Transform converts a coordinate from source to target projection.
// Input is lon, lat in that axis order; output is x, y.
func (t *Transformer) Transform(lon, lat float64) (x, y float64) {
	if !t.NeedsTransform() {
		return lon, lat
	}

	if lat > maxLatitude {
		lat = maxLatitude
	} else if lat < -maxLatitude {
		lat = -maxLatitude
	}

	p := project.WGS84.ToMercator(orb.Point{lon, lat})
	return p[0], p[1]
}

// Inverse converts a coordinate in the target projection back to lon, lat.
func (t *Transformer) Inverse(x, y float64) (lon, lat float64) {
	if !t.NeedsTransform() {
		return x, y
	}

	p := project.Mercator.ToWGS84(orb.Point{x, y})
	return p[0], p[1]
}

// TransformPoint is Transform for orb points.
func (t *Transformer) TransformPoint(p orb.Point) orb.Point {
	x, y := t.Transform(p[0], p[1])
	return orb.Point{x, y}
}

// NeedsTransform returns true if transformation is required
func (t *Transformer) NeedsTransform() bool {
	return t.SourceSRID != t.TargetSRID
}

// ParseSRID parses a coordinate reference system identifier into an EPSG code.
// Accepts bare codes ("3857"), "EPSG:3857", OGC URNs ("urn:ogc:def:crs:EPSG::3857")
// and OGC URLs ("https://www.opengis.net/def/crs/EPSG/0/3857").
func ParseSRID(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty projection")
	}

	code := s
	if i := strings.LastIndexAny(s, ":/"); i >= 0 {
		if !strings.Contains(strings.ToUpper(s), "EPSG") {
			return 0, fmt.Errorf("unsupported projection: %s (only EPSG codes supported)", s)
		}
		code = s[i+1:]
	}

	srid, err := strconv.Atoi(code)
	if err != nil || srid <= 0 {
		return 0, fmt.Errorf("invalid EPSG code in projection %q", s)
	}
	return srid, nil
}
