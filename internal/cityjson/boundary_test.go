package cityjson

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/paulmach/orb"
)

var square = []orb.Point{{0, 0}, {0, 2}, {2, 2}, {2, 0}}

func TestResolveLeafKeepsOrder(t *testing.T) {
	vertices := []orb.Point{{10, 10}, {0, 0}, {5, 1}, {3, 7}, {9, 9}}
	ring, err := Resolve(vertices, Leaf(3, 1, 2, 4))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	want := orb.Ring{{3, 7}, {0, 0}, {5, 1}, {9, 9}}
	if len(ring) != len(want) {
		t.Fatalf("expected %d vertices, got %d", len(want), len(ring))
	}
	for i := range want {
		if ring[i] != want[i] {
			t.Errorf("vertex %d = %v, want %v", i, ring[i], want[i])
		}
	}
}

func TestResolveNestingInvariance(t *testing.T) {
	base := Leaf(0, 1, 2, 3)
	want, err := Resolve(square, base)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	b := base
	for depth := 1; depth <= 6; depth++ {
		b = Nested(b)
		got, err := Resolve(square, b)
		if err != nil {
			t.Fatalf("depth %d: %v", depth, err)
		}
		if !got.Equal(want) {
			t.Errorf("depth %d: got %v, want %v", depth, got, want)
		}
	}
}

func TestResolveIgnoresSiblings(t *testing.T) {
	vertices := append(append([]orb.Point{}, square...), orb.Point{1, 1}, orb.Point{1, 1.5}, orb.Point{1.5, 1})

	b := Nested(
		Nested(Leaf(0, 1, 2, 3), Leaf(4, 5, 6)),
		Nested(Leaf(6, 5, 4)),
	)
	ring, err := Resolve(vertices, b)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !ring.Equal(orb.Ring(square)) {
		t.Errorf("expected exterior ring of first surface, got %v", ring)
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name    string
		b       Boundary
		wantErr error
	}{
		{name: "empty leaf", b: Leaf(), wantErr: ErrEmptyBoundary},
		{name: "empty nested", b: Nested(), wantErr: ErrEmptyBoundary},
		{name: "empty first child", b: Nested(Nested(), Leaf(0, 1, 2)), wantErr: ErrEmptyBoundary},
		{name: "index past end", b: Leaf(0, 1, 4), wantErr: ErrVertexIndex},
		{name: "negative index", b: Leaf(0, -1, 2), wantErr: ErrVertexIndex},
		{name: "two vertices", b: Leaf(0, 1), wantErr: ErrDegenerateRing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(square, tt.b)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Resolve error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBoundaryUnmarshal(t *testing.T) {
	var flat, deep Boundary
	if err := json.Unmarshal([]byte(`[0,1,2,3]`), &flat); err != nil {
		t.Fatalf("unmarshal flat: %v", err)
	}
	if err := json.Unmarshal([]byte(`[[[0, 1, 2, 3]]]`), &deep); err != nil {
		t.Fatalf("unmarshal nested: %v", err)
	}

	if !flat.IsLeaf() {
		t.Error("expected flat boundary to be a leaf")
	}
	if deep.IsLeaf() || len(deep.Children()) != 1 {
		t.Fatalf("expected nested boundary with one child, got %+v", deep)
	}

	a, err := Resolve(square, flat)
	if err != nil {
		t.Fatalf("Resolve flat: %v", err)
	}
	b, err := Resolve(square, deep)
	if err != nil {
		t.Fatalf("Resolve nested: %v", err)
	}
	if !a.Equal(b) {
		t.Errorf("[[[0,1,2,3]]] resolved to %v, [0,1,2,3] to %v", b, a)
	}
}

func TestBoundaryUnmarshalRejectsMixed(t *testing.T) {
	var b Boundary
	if err := json.Unmarshal([]byte(`[[0,1,2],3]`), &b); err == nil {
		t.Error("expected error for mixed nesting")
	}
	if err := json.Unmarshal([]byte(`[0,1.5,2]`), &b); err == nil {
		t.Error("expected error for fractional index")
	}
}

func TestBoundaryMarshalRoundTrip(t *testing.T) {
	in := `[[[0,1,2,3],[4,5,6]],[[7,8,9]]]`
	var b Boundary
	if err := json.Unmarshal([]byte(in), &b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != in {
		t.Errorf("got %s, want %s", out, in)
	}
}
