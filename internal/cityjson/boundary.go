package cityjson

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
)

// Boundary is a CityJSON boundary array. A leaf holds vertex indices forming
// one ring; a nested boundary holds further boundaries (rings of a surface,
// surfaces of a multi-surface, shells of a solid, and so on).
type Boundary struct {
	nested   bool
	indices  []int
	children []Boundary
}

// Leaf returns a boundary naming vertex indices directly.
func Leaf(indices ...int) Boundary {
	return Boundary{indices: indices}
}

// Nested returns a boundary made of child boundaries.
func Nested(children ...Boundary) Boundary {
	return Boundary{nested: true, children: children}
}

// IsLeaf reports whether b holds vertex indices.
func (b Boundary) IsLeaf() bool {
	return !b.nested
}

// Indices returns the vertex indices of a leaf boundary.
func (b Boundary) Indices() []int {
	return b.indices
}

// Children returns the child boundaries of a nested boundary.
func (b Boundary) Children() []Boundary {
	return b.children
}

// UnmarshalJSON decides leaf or nested by the first element of the array.
func (b *Boundary) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("boundary: %w", err)
	}

	*b = Boundary{}
	if len(items) == 0 {
		return nil
	}

	if !isArray(items[0]) {
		indices := make([]int, len(items))
		for i, item := range items {
			if err := json.Unmarshal(item, &indices[i]); err != nil {
				return fmt.Errorf("boundary: element %d is not a vertex index: %s", i, item)
			}
		}
		b.indices = indices
		return nil
	}

	b.nested = true
	b.children = make([]Boundary, len(items))
	for i, item := range items {
		if !isArray(item) {
			return fmt.Errorf("boundary: element %d mixes indices with nested arrays", i)
		}
		if err := b.children[i].UnmarshalJSON(item); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON writes the boundary back as nested integer arrays.
func (b Boundary) MarshalJSON() ([]byte, error) {
	if !b.nested {
		if b.indices == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(b.indices)
	}
	children := b.children
	if children == nil {
		children = []Boundary{}
	}
	return json.Marshal(children)
}

// Resolve returns the exterior ring of the first surface of b: it descends
// into element 0 until it reaches a list of vertex indices and looks each one
// up in vertices. Sibling boundaries at every level are ignored.
func Resolve(vertices []orb.Point, b Boundary) (orb.Ring, error) {
	for !b.IsLeaf() {
		children := b.Children()
		if len(children) == 0 {
			return nil, ErrEmptyBoundary
		}
		b = children[0]
	}

	indices := b.Indices()
	switch n := len(indices); {
	case n == 0:
		return nil, ErrEmptyBoundary
	case n < 3:
		return nil, fmt.Errorf("%w: got %d", ErrDegenerateRing, n)
	}

	ring := make(orb.Ring, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(vertices) {
			return nil, fmt.Errorf("%w: %d (table has %d vertices)", ErrVertexIndex, idx, len(vertices))
		}
		ring[i] = vertices[idx]
	}
	return ring, nil
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}
