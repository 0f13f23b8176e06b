package spatial

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"strconv"
	"testing"

	"github.com/paulmach/orb"
)

var unitSquare = orb.Ring{{0, 0}, {0, 2}, {2, 2}, {2, 0}}

var strategies = []string{StrategyRTree, StrategyBrute}

func mustJoin(t *testing.T, points []Point, polygons []Polygon, opts Options) *Result {
	t.Helper()
	res, err := Join(context.Background(), points, polygons, opts)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	return res
}

func TestJoinPointInside(t *testing.T) {
	for _, s := range strategies {
		res := mustJoin(t,
			[]Point{{ID: "U1", Loc: orb.Point{1, 1}}},
			[]Polygon{{ID: "B1", Ring: unitSquare}},
			Options{Index: s})

		if got := res.Get("B1"); !reflect.DeepEqual(got, []string{"U1"}) {
			t.Errorf("%s: expected [U1], got %v", s, got)
		}
	}
}

func TestJoinPointOutside(t *testing.T) {
	for _, s := range strategies {
		res := mustJoin(t,
			[]Point{{ID: "U2", Loc: orb.Point{5, 5}}},
			[]Polygon{{ID: "B1", Ring: unitSquare}},
			Options{Index: s})

		got := res.Get("B1")
		if got == nil || len(got) != 0 {
			t.Errorf("%s: expected empty non-nil list, got %#v", s, got)
		}
		if res.Len() != 0 {
			t.Errorf("%s: expected no polygons with matches, got %d", s, res.Len())
		}
	}
}

func TestJoinPreservesSupplyOrder(t *testing.T) {
	points := []Point{
		{ID: "P1", Loc: orb.Point{1.5, 1.5}},
		{ID: "X", Loc: orb.Point{9, 9}},
		{ID: "P2", Loc: orb.Point{0.5, 0.5}},
		{ID: "P3", Loc: orb.Point{1, 1}},
	}
	for _, s := range strategies {
		for _, workers := range []int{1, 2, 3, 8} {
			res := mustJoin(t, points, []Polygon{{ID: "B", Ring: unitSquare}}, Options{Index: s, Workers: workers})
			if got := res.Get("B"); !reflect.DeepEqual(got, []string{"P1", "P2", "P3"}) {
				t.Errorf("%s/workers=%d: expected [P1 P2 P3], got %v", s, workers, got)
			}
		}
	}
}

func TestJoinOverlappingPolygons(t *testing.T) {
	polygons := []Polygon{
		{ID: "left", Ring: orb.Ring{{0, 0}, {0, 4}, {3, 4}, {3, 0}}},
		{ID: "right", Ring: orb.Ring{{2, 0}, {2, 4}, {5, 4}, {5, 0}}},
	}
	points := []Point{
		{ID: "both", Loc: orb.Point{2.5, 2}},
		{ID: "l", Loc: orb.Point{1, 1}},
		{ID: "r", Loc: orb.Point{4, 1}},
	}

	for _, s := range strategies {
		res := mustJoin(t, points, polygons, Options{Index: s})
		if got := res.Get("left"); !reflect.DeepEqual(got, []string{"both", "l"}) {
			t.Errorf("%s: left = %v", s, got)
		}
		if got := res.Get("right"); !reflect.DeepEqual(got, []string{"both", "r"}) {
			t.Errorf("%s: right = %v", s, got)
		}
		if res.MatchedPoints() != 3 {
			t.Errorf("%s: expected 3 matched points, got %d", s, res.MatchedPoints())
		}
	}
}

func TestJoinBoundaryIsExcluded(t *testing.T) {
	tests := []struct {
		name string
		loc  orb.Point
	}{
		{name: "on edge", loc: orb.Point{0, 1}},
		{name: "on top edge", loc: orb.Point{1, 2}},
		{name: "on vertex", loc: orb.Point{2, 2}},
		{name: "on closing edge", loc: orb.Point{1, 0}},
	}

	for _, s := range strategies {
		for _, tt := range tests {
			res := mustJoin(t, []Point{{ID: "e", Loc: tt.loc}}, []Polygon{{ID: "B", Ring: unitSquare}}, Options{Index: s})
			if got := res.Get("B"); len(got) != 0 {
				t.Errorf("%s/%s: boundary point matched: %v", s, tt.name, got)
			}
		}
	}
}

func TestWithinClosedAndOpenRings(t *testing.T) {
	closed := append(append(orb.Ring{}, unitSquare...), unitSquare[0])
	for _, ring := range []orb.Ring{unitSquare, closed} {
		if !Within(ring, orb.Point{1, 1}) {
			t.Errorf("expected (1,1) within %v", ring)
		}
		if Within(ring, orb.Point{2, 1}) {
			t.Errorf("expected (2,1) on boundary of %v", ring)
		}
		if Within(ring, orb.Point{3, 1}) {
			t.Errorf("expected (3,1) outside %v", ring)
		}
	}
}

func TestWithinConcaveRing(t *testing.T) {
	// U shape opening to the top
	ring := orb.Ring{{0, 0}, {0, 3}, {1, 3}, {1, 1}, {2, 1}, {2, 3}, {3, 3}, {3, 0}}

	if !Within(ring, orb.Point{0.5, 2}) {
		t.Error("expected left arm to contain point")
	}
	if Within(ring, orb.Point{1.5, 2}) {
		t.Error("expected notch to be outside")
	}
	if !Within(ring, orb.Point{1.5, 0.5}) {
		t.Error("expected base to contain point")
	}
}

func TestStrategiesAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	var polygons []Polygon
	for i := 0; i < 200; i++ {
		x, y := rng.Float64()*1000, rng.Float64()*1000
		w, h := 1+rng.Float64()*20, 1+rng.Float64()*20
		polygons = append(polygons, Polygon{
			ID:   "b" + strconv.Itoa(i),
			Ring: orb.Ring{{x, y}, {x, y + h}, {x + w, y + h/2}, {x + w, y}},
		})
	}
	var points []Point
	for i := 0; i < 5000; i++ {
		points = append(points, Point{
			ID:  strconv.Itoa(i),
			Loc: orb.Point{rng.Float64() * 1000, rng.Float64() * 1000},
		})
	}

	want := mustJoin(t, points, polygons, Options{Index: StrategyBrute, Workers: 1})
	for _, workers := range []int{1, 4, 7} {
		got := mustJoin(t, points, polygons, Options{Index: StrategyRTree, Workers: workers})
		if got.Len() != want.Len() || got.MatchedPoints() != want.MatchedPoints() {
			t.Fatalf("workers=%d: rtree found %d polygons/%d points, brute %d/%d",
				workers, got.Len(), got.MatchedPoints(), want.Len(), want.MatchedPoints())
		}
		for _, poly := range polygons {
			if !reflect.DeepEqual(got.Get(poly.ID), want.Get(poly.ID)) {
				t.Errorf("workers=%d: polygon %s: rtree %v, brute %v", workers, poly.ID, got.Get(poly.ID), want.Get(poly.ID))
			}
		}
	}
}

func TestEachInPolygonOrder(t *testing.T) {
	polygons := []Polygon{
		{ID: "first", Ring: orb.Ring{{0, 0}, {0, 1}, {1, 1}, {1, 0}}},
		{ID: "empty", Ring: orb.Ring{{5, 5}, {5, 6}, {6, 6}, {6, 5}}},
		{ID: "second", Ring: orb.Ring{{2, 0}, {2, 1}, {3, 1}, {3, 0}}},
	}
	points := []Point{
		{ID: "s", Loc: orb.Point{2.5, 0.5}},
		{ID: "f", Loc: orb.Point{0.5, 0.5}},
	}

	res := mustJoin(t, points, polygons, Options{})

	var got []string
	err := res.Each(func(polygonID string, pointIDs []string) error {
		got = append(got, fmt.Sprintf("%s=%v", polygonID, pointIDs))
		return nil
	})
	if err != nil {
		t.Fatalf("Each: %v", err)
	}
	want := []string{"first=[f]", "second=[s]"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Each visited %v, want %v", got, want)
	}
}

func TestJoinEmptyInputs(t *testing.T) {
	res := mustJoin(t, nil, []Polygon{{ID: "B", Ring: unitSquare}}, Options{Workers: 4})
	if res.Len() != 0 {
		t.Errorf("expected no matches, got %d", res.Len())
	}

	res = mustJoin(t, []Point{{ID: "p", Loc: orb.Point{1, 1}}}, nil, Options{})
	if res.MatchedPoints() != 0 {
		t.Errorf("expected no matched points, got %d", res.MatchedPoints())
	}
}

func TestJoinUnknownStrategy(t *testing.T) {
	if _, err := Join(context.Background(), nil, nil, Options{Index: "grid"}); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestJoinCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	points := []Point{{ID: "p", Loc: orb.Point{1, 1}}}
	_, err := Join(ctx, points, []Polygon{{ID: "B", Ring: unitSquare}}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
