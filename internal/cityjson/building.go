package cityjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Building is one entry of CityObjects. Its members stay raw except for the
// attribute bag, which the merge step rewrites.
type Building struct {
	ID     string
	fields object
}

// Geometry is the part of a geometry entry the footprint extraction reads.
type Geometry struct {
	Type       string   `json:"type"`
	Boundaries Boundary `json:"boundaries"`
}

// FirstGeometry decodes the first entry of the object's geometry array.
func (b *Building) FirstGeometry() (*Geometry, error) {
	raw, ok := b.fields.get("geometry")
	if !ok {
		return nil, ErrMissingGeometry
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: geometry: %v", ErrMalformedDocument, err)
	}
	if len(entries) == 0 {
		return nil, ErrMissingGeometry
	}

	var g Geometry
	if err := json.Unmarshal(entries[0], &g); err != nil {
		return nil, fmt.Errorf("%w: geometry[0]: %v", ErrMalformedDocument, err)
	}
	return &g, nil
}

// Attribute returns the raw value of an attribute.
func (b *Building) Attribute(name string) (json.RawMessage, bool) {
	attrs, err := b.attributes()
	if err != nil {
		return nil, false
	}
	return attrs.get(name)
}

// SetAttribute sets one attribute, creating the attribute bag if the object
// has none. Other attributes keep their order and bytes.
func (b *Building) SetAttribute(name string, value json.RawMessage) error {
	attrs, err := b.attributes()
	if err != nil {
		return err
	}
	attrs.set(name, value)

	raw, err := attrs.MarshalJSON()
	if err != nil {
		return err
	}
	b.fields.set("attributes", raw)
	return nil
}

func (b *Building) attributes() (*object, error) {
	var attrs object
	raw, ok := b.fields.get("attributes")
	if !ok {
		return &attrs, nil
	}
	if err := attrs.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("%w: attributes of %q: %v", ErrMalformedDocument, b.ID, err)
	}
	return &attrs, nil
}

// Matches supplies the address identifiers matched to a building. Get must
// return an empty list, not an error, for buildings without matches.
type Matches interface {
	Get(buildingID string) []string
}

// ApplyMatches sets attr on every city object to its matched identifiers,
// writing an empty list when there are none. No object is skipped.
func (d *Document) ApplyMatches(attr string, matches Matches) error {
	for _, b := range d.buildings {
		if err := b.SetAttribute(attr, encodeIDs(matches.Get(b.ID))); err != nil {
			return &ObjectError{ID: b.ID, Err: err}
		}
	}
	return nil
}

// encodeIDs writes identifiers as a JSON array. Canonical integers are
// written as numbers, anything else as strings.
func encodeIDs(ids []string) json.RawMessage {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, id := range ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		if isCanonicalInt(id) {
			buf.WriteString(id)
			continue
		}
		quoted, _ := json.Marshal(id)
		buf.Write(quoted)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

func isCanonicalInt(s string) bool {
	n, err := strconv.ParseInt(s, 10, 64)
	return err == nil && strconv.FormatInt(n, 10) == s
}
