package wkb

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
)

func TestEncodePolygonBytes(t *testing.T) {
	enc := NewEncoder(128, SRID3857)
	got := enc.EncodePolygon(orb.Ring{{0, 0}, {0, 1}, {1, 1}})

	// little-endian, Polygon|SRID flag, 3857, 1 ring, 4 points
	want, _ := hex.DecodeString("0103000020110f000001000000040000000000000000000000" +
		"0000000000000000" + "0000000000000000000000000000f03f" +
		"000000000000f03f000000000000f03f" + "00000000000000000000000000000000")
	if !bytes.Equal(got, want) {
		t.Errorf("EncodePolygon = %x, want %x", got, want)
	}
}

func TestEncodePolygonClosesRing(t *testing.T) {
	enc := NewEncoder(0, SRID3857)
	open := orb.Ring{{0, 0}, {0, 2}, {2, 2}, {2, 0}}

	geom, srid, err := ewkb.Unmarshal(enc.EncodePolygon(open))
	if err != nil {
		t.Fatalf("ewkb.Unmarshal: %v", err)
	}
	if srid != SRID3857 {
		t.Errorf("srid = %d, want %d", srid, SRID3857)
	}

	poly, ok := geom.(orb.Polygon)
	if !ok {
		t.Fatalf("decoded %T, want orb.Polygon", geom)
	}
	want := orb.Ring{{0, 0}, {0, 2}, {2, 2}, {2, 0}, {0, 0}}
	if len(poly) != 1 || !poly[0].Equal(want) {
		t.Errorf("decoded %v, want [%v]", poly, want)
	}
}

func TestEncodePolygonKeepsClosedRing(t *testing.T) {
	enc := NewEncoder(0, SRID3857)
	closed := orb.Ring{{0, 0}, {0, 1}, {1, 1}, {0, 0}}

	geom, _, err := ewkb.Unmarshal(enc.EncodePolygon(closed))
	if err != nil {
		t.Fatalf("ewkb.Unmarshal: %v", err)
	}
	if poly := geom.(orb.Polygon); len(poly[0]) != 4 {
		t.Errorf("expected 4 vertices, got %d", len(poly[0]))
	}
}

func TestEncoderReusesBuffer(t *testing.T) {
	enc := NewEncoder(256, SRID3857)
	first := enc.EncodePolygon(orb.Ring{{0, 0}, {0, 1}, {1, 1}})
	size := len(first)

	enc.EncodePolygon(orb.Ring{{0, 0}, {0, 5}, {5, 5}, {5, 0}, {0, 0}})
	if len(enc.Bytes()) != 17+5*16 {
		t.Errorf("second encoding length = %d, want %d", len(enc.Bytes()), 17+5*16)
	}
	if size != 17+4*16 {
		t.Errorf("polygon encoding length = %d, want %d", size, 17+4*16)
	}
	if enc.SRID() != SRID3857 {
		t.Errorf("SRID() = %d", enc.SRID())
	}
}
