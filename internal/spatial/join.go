package spatial

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// cancelCheckInterval is how many points a worker tests between context checks.
const cancelCheckInterval = 4096

// Options controls the containment join
type Options struct {
	// Index strategy ("rtree" or "brute")
	Index string
	// Workers testing point partitions concurrently (<= 1 means sequential)
	Workers int
}

// Result maps polygon identifiers to the identifiers of the points they
// contain, in the order the points were supplied. Polygons without points
// have no entry; Get returns an empty list for them.
type Result struct {
	matches map[string][]string
	order   []string
	matched int
}

// Get returns the point identifiers matched to a polygon. It never returns nil.
func (r *Result) Get(polygonID string) []string {
	if ids, ok := r.matches[polygonID]; ok {
		return ids
	}
	return []string{}
}

// Len returns the number of polygons with at least one point.
func (r *Result) Len() int {
	return len(r.order)
}

// MatchedPoints returns the number of points inside at least one polygon.
func (r *Result) MatchedPoints() int {
	return r.matched
}

// Each calls fn for every polygon with matches, in polygon order.
func (r *Result) Each(fn func(polygonID string, pointIDs []string) error) error {
	for _, id := range r.order {
		if err := fn(id, r.matches[id]); err != nil {
			return err
		}
	}
	return nil
}

// hit records that the point at position point lies in polygon poly.
type hit struct {
	point int
	poly  int
}

// Join matches every point to every polygon that contains it. Points are
// split into contiguous partitions, tested concurrently, and reduced in
// partition order so the output does not depend on Workers.
func Join(ctx context.Context, points []Point, polygons []Polygon, opts Options) (*Result, error) {
	idx, err := NewIndex(opts.Index, polygons)
	if err != nil {
		return nil, err
	}
	return JoinWithIndex(ctx, points, polygons, idx, opts.Workers)
}

// JoinWithIndex is Join with a prebuilt index over polygons.
func JoinWithIndex(ctx context.Context, points []Point, polygons []Polygon, idx Index, workers int) (*Result, error) {
	if workers < 1 {
		workers = 1
	}
	if workers > len(points) {
		workers = max(len(points), 1)
	}

	chunk := (len(points) + workers - 1) / workers
	partitions := make([][]hit, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := min(start+chunk, len(points))
		if start >= end {
			continue
		}
		w := w
		g.Go(func() error {
			var hits []hit
			var buf []int
			for i := start; i < end; i++ {
				if (i-start)%cancelCheckInterval == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				buf = idx.Containing(buf[:0], points[i].Loc)
				for _, pos := range buf {
					hits = append(hits, hit{point: i, poly: pos})
				}
			}
			partitions[w] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return reduce(points, polygons, partitions), nil
}

// reduce appends point ids per polygon. Partitions cover ascending point
// ranges and hits within a partition ascend by point, so per-polygon lists
// come out in supply order.
func reduce(points []Point, polygons []Polygon, partitions [][]hit) *Result {
	perPoly := make([][]string, len(polygons))
	matched := 0
	lastPoint := -1
	for _, hits := range partitions {
		for _, h := range hits {
			perPoly[h.poly] = append(perPoly[h.poly], points[h.point].ID)
			if h.point != lastPoint {
				matched++
				lastPoint = h.point
			}
		}
	}

	res := &Result{matches: make(map[string][]string), matched: matched}
	for i, ids := range perPoly {
		if len(ids) == 0 {
			continue
		}
		id := polygons[i].ID
		if _, seen := res.matches[id]; !seen {
			res.order = append(res.order, id)
		}
		res.matches[id] = append(res.matches[id], ids...)
	}
	return res
}
