package cityjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/edsrzf/mmap-go"
	"github.com/paulmach/orb"
)

// Document is a parsed CityJSON file. Only the members the join needs are
// interpreted; everything else is carried as raw JSON and written back as read.
type Document struct {
	root      object
	version   string
	buildings []*Building
	vertices  []orb.Point
}

type transform struct {
	Scale     []float64 `json:"scale"`
	Translate []float64 `json:"translate"`
}

// Load memory-maps path read-only and parses it.
func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CityJSON file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat CityJSON file: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrMalformedDocument, path)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to map CityJSON file: %w", err)
	}
	defer data.Unmap()

	return Parse(data)
}

// Parse decodes a CityJSON document. Raw member values are copied out of data.
func Parse(data []byte) (*Document, error) {
	doc := &Document{}
	if err := doc.root.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	var typ string
	if err := doc.decodeMember("type", &typ, true); err != nil {
		return nil, err
	}
	if typ != "CityJSON" {
		return nil, fmt.Errorf("%w: type is %q, want \"CityJSON\"", ErrMalformedDocument, typ)
	}

	if err := doc.decodeMember("version", &doc.version, true); err != nil {
		return nil, err
	}

	raw, ok := doc.root.get("CityObjects")
	if !ok {
		return nil, fmt.Errorf("%w: missing CityObjects", ErrMalformedDocument)
	}
	var objects object
	if err := objects.UnmarshalJSON(raw); err != nil {
		return nil, fmt.Errorf("%w: CityObjects: %v", ErrMalformedDocument, err)
	}
	doc.buildings = make([]*Building, 0, objects.len())
	for _, m := range objects.members {
		b := &Building{ID: m.key}
		if err := b.fields.UnmarshalJSON(m.value); err != nil {
			return nil, fmt.Errorf("%w: city object %q: %v", ErrMalformedDocument, m.key, err)
		}
		doc.buildings = append(doc.buildings, b)
	}

	if err := doc.decodeVertices(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (d *Document) decodeMember(key string, v any, required bool) error {
	raw, ok := d.root.get(key)
	if !ok {
		if required {
			return fmt.Errorf("%w: missing %q", ErrMalformedDocument, key)
		}
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedDocument, key, err)
	}
	return nil
}

// decodeVertices reads the shared vertex table and applies the optional
// "transform" member, giving real-world coordinates. The stored vertices
// are left as they are.
func (d *Document) decodeVertices() error {
	var raw [][]float64
	if err := d.decodeMember("vertices", &raw, true); err != nil {
		return err
	}

	var tf *transform
	if err := d.decodeMember("transform", &tf, false); err != nil {
		return err
	}
	if tf != nil && (len(tf.Scale) < 2 || len(tf.Translate) < 2) {
		return fmt.Errorf("%w: transform needs scale and translate for x and y", ErrMalformedDocument)
	}

	d.vertices = make([]orb.Point, len(raw))
	for i, v := range raw {
		if len(v) < 2 {
			return fmt.Errorf("%w: vertex %d has %d coordinates", ErrMalformedDocument, i, len(v))
		}
		x, y := v[0], v[1]
		if tf != nil {
			x = x*tf.Scale[0] + tf.Translate[0]
			y = y*tf.Scale[1] + tf.Translate[1]
		}
		d.vertices[i] = orb.Point{x, y}
	}
	return nil
}

// Version returns the CityJSON version string of the document.
func (d *Document) Version() string {
	return d.version
}

// Vertices returns the shared vertex table as planar points. Callers must
// not modify the returned slice.
func (d *Document) Vertices() []orb.Point {
	return d.vertices
}

// Buildings returns the city objects in document order.
func (d *Document) Buildings() []*Building {
	return d.buildings
}

// Building looks up a city object by id.
func (d *Document) Building(id string) (*Building, bool) {
	for _, b := range d.buildings {
		if b.ID == id {
			return b, true
		}
	}
	return nil, false
}

// ReferenceSystem returns the metadata.referenceSystem value, if any.
func (d *Document) ReferenceSystem() (string, bool) {
	raw, ok := d.root.get("metadata")
	if !ok {
		return "", false
	}
	var meta struct {
		ReferenceSystem string `json:"referenceSystem"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil || meta.ReferenceSystem == "" {
		return "", false
	}
	return meta.ReferenceSystem, true
}

// SetReferenceSystem tags the document with an EPSG code in the notation its
// version expects. Vertices are not transformed.
func (d *Document) SetReferenceSystem(srid int) error {
	value, err := referenceSystemString(d.version, srid)
	if err != nil {
		return err
	}

	var meta object
	if raw, ok := d.root.get("metadata"); ok {
		if err := meta.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("%w: metadata: %v", ErrMalformedDocument, err)
		}
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	meta.set("referenceSystem", encoded)

	rawMeta, err := meta.MarshalJSON()
	if err != nil {
		return err
	}
	d.root.set("metadata", rawMeta)
	return nil
}

func referenceSystemString(version string, srid int) (string, error) {
	code := strconv.Itoa(srid)
	switch version {
	case "1.0":
		return "urn:ogc:def:crs:EPSG::" + code, nil
	case "1.1", "2.0":
		return "https://www.opengis.net/def/crs/EPSG/0/" + code, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
	}
}

// Encode writes the document to w. With an empty indent the output is
// compact and every untouched value is byte-identical to the input.
func (d *Document) Encode(w io.Writer, indent string) error {
	objects := object{members: make([]member, 0, len(d.buildings))}
	for _, b := range d.buildings {
		raw, err := b.fields.MarshalJSON()
		if err != nil {
			return fmt.Errorf("city object %q: %w", b.ID, err)
		}
		objects.members = append(objects.members, member{key: b.ID, value: raw})
	}
	rawObjects, err := objects.MarshalJSON()
	if err != nil {
		return err
	}
	d.root.set("CityObjects", rawObjects)

	out, err := d.root.MarshalJSON()
	if err != nil {
		return err
	}

	if indent != "" {
		var buf bytes.Buffer
		if err := json.Indent(&buf, out, "", indent); err != nil {
			return fmt.Errorf("failed to indent output: %w", err)
		}
		out = buf.Bytes()
	}

	_, err = w.Write(out)
	return err
}

// Save writes the document to a temporary file next to path and renames it
// into place, so a failed run never leaves a partial output.
func (d *Document) Save(path, indent string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := d.Encode(tmp, indent); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}
