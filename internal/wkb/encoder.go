package wkb

import (
	"encoding/binary"
	"math"

	"github.com/paulmach/orb"
)

// WKB type constants (ISO SQL/MM specification)
const (
	wkbPolygon = 3

	// SRID flag for EWKB (PostGIS extended WKB)
	wkbSRIDFlag = 0x20000000
)

// Common SRID constants
const (
	SRID4326 = 4326 // WGS84
	SRID3857 = 3857 // Web Mercator
)

// Encoder encodes geometries to EWKB: little-endian with an embedded SRID.
// The returned slices alias an internal buffer that the next call reuses.
type Encoder struct {
	buf  []byte
	srid uint32
}

// NewEncoder creates an encoder for the given SRID with a pre-allocated buffer
func NewEncoder(initialSize int, srid int) *Encoder {
	return &Encoder{
		buf:  make([]byte, 0, initialSize),
		srid: uint32(srid),
	}
}

// SRID returns the encoder's SRID
func (e *Encoder) SRID() int {
	return int(e.srid)
}

// Bytes returns the last encoded geometry
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// EncodePolygon encodes a ring as a single-ring polygon. Open rings are
// closed by repeating the first vertex.
func (e *Encoder) EncodePolygon(ring orb.Ring) []byte {
	n := len(ring)
	closeRing := n > 0 && !ring.Closed()
	if closeRing {
		n++
	}

	// header + ring count + point count + points
	e.reset(17 + n*16)
	e.header(wkbPolygon)
	e.appendUint32(1)
	e.appendUint32(uint32(n))
	for _, p := range ring {
		e.appendPoint(p)
	}
	if closeRing {
		e.appendPoint(ring[0])
	}
	return e.buf
}

func (e *Encoder) reset(n int) {
	if cap(e.buf) < n {
		e.buf = make([]byte, 0, n)
	}
	e.buf = e.buf[:0]
}

func (e *Encoder) header(geomType uint32) {
	e.buf = append(e.buf, 0x01)
	e.appendUint32(geomType | wkbSRIDFlag)
	e.appendUint32(e.srid)
}

func (e *Encoder) appendPoint(p orb.Point) {
	e.appendFloat64(p[0])
	e.appendFloat64(p[1])
}

func (e *Encoder) appendUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) appendFloat64(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}
