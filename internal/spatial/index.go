package spatial

import (
	"fmt"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Index strategies
const (
	StrategyRTree = "rtree"
	StrategyBrute = "brute"
)

// Polygon is a ring tagged with the identifier of the record it came from.
type Polygon struct {
	ID   string
	Ring orb.Ring
}

// Point is a location tagged with the identifier of the record it came from.
type Point struct {
	ID  string
	Loc orb.Point
}

// Index answers containment queries against a fixed set of polygons.
// Implementations must be safe for concurrent queries.
type Index interface {
	// Containing appends to dst the positions of every polygon that
	// contains p in its interior, in ascending order.
	Containing(dst []int, p orb.Point) []int
}

// NewIndex builds an index over polygons using the named strategy.
func NewIndex(strategy string, polygons []Polygon) (Index, error) {
	switch strategy {
	case "", StrategyRTree:
		return NewRTreeIndex(polygons), nil
	case StrategyBrute:
		return NewBruteIndex(polygons), nil
	default:
		return nil, fmt.Errorf("unknown index strategy %q (supported: %s, %s)", strategy, StrategyRTree, StrategyBrute)
	}
}

// Within reports whether p lies in the interior of ring. The ring may be
// open or closed. Points on an edge or a vertex are not within.
func Within(ring orb.Ring, p orb.Point) bool {
	return within(ring, ring.Bound(), p)
}

func within(ring orb.Ring, bound orb.Bound, p orb.Point) bool {
	if len(ring) < 3 || !bound.Contains(p) {
		return false
	}
	if onBoundary(ring, p) {
		return false
	}
	return planar.RingContains(ring, p)
}

// onBoundary reports whether p lies exactly on any edge of ring, including
// the closing edge of an open ring.
func onBoundary(ring orb.Ring, p orb.Point) bool {
	n := len(ring)
	for i := 0; i < n; i++ {
		if onSegment(ring[i], ring[(i+1)%n], p) {
			return true
		}
	}
	return false
}

func onSegment(a, b, p orb.Point) bool {
	cross := (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
	if cross != 0 {
		return false
	}
	return p[0] >= min(a[0], b[0]) && p[0] <= max(a[0], b[0]) &&
		p[1] >= min(a[1], b[1]) && p[1] <= max(a[1], b[1])
}

// BruteIndex tests every polygon for every query.
type BruteIndex struct {
	polygons []Polygon
	bounds   []orb.Bound
}

// NewBruteIndex creates a linear-scan index
func NewBruteIndex(polygons []Polygon) *BruteIndex {
	bounds := make([]orb.Bound, len(polygons))
	for i, poly := range polygons {
		bounds[i] = poly.Ring.Bound()
	}
	return &BruteIndex{polygons: polygons, bounds: bounds}
}

func (idx *BruteIndex) Containing(dst []int, p orb.Point) []int {
	for i, poly := range idx.polygons {
		if within(poly.Ring, idx.bounds[i], p) {
			dst = append(dst, i)
		}
	}
	return dst
}

// boundsPadding widens zero-width bounding boxes, which rtreego rejects.
const boundsPadding = 1e-9

// queryTolerance is the half-size of the box used to look up a point.
const queryTolerance = 1e-9

// RTreeIndex finds candidate polygons by bounding box in an R-tree and
// confirms them with the exact ring test.
type RTreeIndex struct {
	tree     *rtreego.Rtree
	polygons []Polygon
	bounds   []orb.Bound
}

type treeEntry struct {
	pos  int
	rect rtreego.Rect
}

func (e *treeEntry) Bounds() rtreego.Rect {
	return e.rect
}

// NewRTreeIndex bulk-loads an R-tree over the polygon bounding boxes
func NewRTreeIndex(polygons []Polygon) *RTreeIndex {
	idx := &RTreeIndex{
		polygons: polygons,
		bounds:   make([]orb.Bound, len(polygons)),
	}

	entries := make([]rtreego.Spatial, 0, len(polygons))
	for i, poly := range polygons {
		b := poly.Ring.Bound()
		idx.bounds[i] = b
		if len(poly.Ring) == 0 {
			continue
		}

		width := max(b.Max[0]-b.Min[0], boundsPadding)
		height := max(b.Max[1]-b.Min[1], boundsPadding)
		rect, err := rtreego.NewRect(rtreego.Point{b.Min[0], b.Min[1]}, []float64{width, height})
		if err != nil {
			continue
		}
		entries = append(entries, &treeEntry{pos: i, rect: rect})
	}

	// 2D, min=25 children, max=50 children
	idx.tree = rtreego.NewTree(2, 25, 50, entries...)
	return idx
}

func (idx *RTreeIndex) Containing(dst []int, p orb.Point) []int {
	query := rtreego.Point{p[0], p[1]}.ToRect(queryTolerance)
	candidates := idx.tree.SearchIntersect(query)
	if len(candidates) == 0 {
		return dst
	}

	start := len(dst)
	for _, c := range candidates {
		pos := c.(*treeEntry).pos
		if within(idx.polygons[pos].Ring, idx.bounds[pos], p) {
			dst = append(dst, pos)
		}
	}
	sort.Ints(dst[start:])
	return dst
}
