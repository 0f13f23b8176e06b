package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseBBox(t *testing.T) {
	tests := []struct {
		in      string
		wantSet bool
		wantErr bool
	}{
		{in: "", wantSet: false},
		{in: "-1.5,50,1.5,52.25", wantSet: true},
		{in: " -1 , 50 , 1 , 52 ", wantSet: true},
		{in: "1,2,3", wantErr: true},
		{in: "a,2,3,4", wantErr: true},
		{in: "2,0,1,1", wantErr: true},
		{in: "0,2,1,1", wantErr: true},
	}

	for _, tt := range tests {
		bbox, err := ParseBBox(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseBBox(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseBBox(%q): %v", tt.in, err)
			continue
		}
		if bbox.IsSet != tt.wantSet {
			t.Errorf("ParseBBox(%q).IsSet = %v, want %v", tt.in, bbox.IsSet, tt.wantSet)
		}
	}
}

func TestBBoxContains(t *testing.T) {
	bbox, err := ParseBBox("-1,50,1,52")
	if err != nil {
		t.Fatalf("ParseBBox: %v", err)
	}

	tests := []struct {
		lat, lon float64
		want     bool
	}{
		{lat: 51, lon: 0, want: true},
		{lat: 52, lon: 1, want: true},
		{lat: 53, lon: 0, want: false},
		{lat: 51, lon: -2, want: false},
	}
	for _, tt := range tests {
		if got := bbox.Contains(tt.lat, tt.lon); got != tt.want {
			t.Errorf("Contains(%v, %v) = %v, want %v", tt.lat, tt.lon, got, tt.want)
		}
	}

	var unset *BBox
	if !unset.Contains(89, 179) || !(&BBox{}).Contains(-89, -179) {
		t.Error("unset bbox should contain everything")
	}
}

func TestBBoxString(t *testing.T) {
	bbox, _ := ParseBBox("-1.5,50,1.5,52.25")
	if got := bbox.String(); got != "-1.5,50,1.5,52.25" {
		t.Errorf("String() = %q", got)
	}
	if got := (&BBox{}).String(); got != "" {
		t.Errorf("unset String() = %q, want empty", got)
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Attribute != "uprn" {
		t.Errorf("Attribute = %q, want uprn", cfg.Attribute)
	}
	if cfg.Projection != 3857 {
		t.Errorf("Projection = %d, want 3857", cfg.Projection)
	}
	if cfg.Comma() != ',' {
		t.Errorf("Comma() = %q, want ','", cfg.Comma())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{name: "no id column", modify: func(c *Config) { c.Columns.ID = "" }},
		{name: "long delimiter", modify: func(c *Config) { c.Delimiter = ";;" }},
		{name: "empty delimiter", modify: func(c *Config) { c.Delimiter = "" }},
		{name: "no attribute", modify: func(c *Config) { c.Attribute = "" }},
		{name: "no geometry type", modify: func(c *Config) { c.GeometryType = "" }},
		{name: "projection", modify: func(c *Config) { c.Projection = 27700 }},
		{name: "negative indent", modify: func(c *Config) { c.Indent = -1 }},
		{name: "index", modify: func(c *Config) { c.Index = "quadtree" }},
		{name: "workers", modify: func(c *Config) { c.Workers = 0 }},
		{name: "batch size", modify: func(c *Config) { c.BatchSize = 10 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestOutputPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputDir = "out"

	if got := cfg.FootprintsPath(); got != filepath.Join("out", "footprints.parquet") {
		t.Errorf("FootprintsPath() = %q", got)
	}
	if got := cfg.MatchesPath(); got != filepath.Join("out", "matches.parquet") {
		t.Errorf("MatchesPath() = %q", got)
	}
	cfg.MatchesFile = "m.parquet"
	if got := cfg.MatchesPath(); got != "m.parquet" {
		t.Errorf("MatchesPath() = %q, want m.parquet", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addrjoin.yaml")
	content := `
columns:
  id: ADDRESS_ID
  lon: X
  lat: Y
attribute: addresses
bbox: "-1,50,1,52"
index: brute
workers: 3
metrics_interval: 5s
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := DefaultConfig()
	if err := LoadFile(path, cfg); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Columns != (Columns{ID: "ADDRESS_ID", Lon: "X", Lat: "Y"}) {
		t.Errorf("Columns = %+v", cfg.Columns)
	}
	if cfg.Attribute != "addresses" {
		t.Errorf("Attribute = %q", cfg.Attribute)
	}
	if !cfg.BBox.IsSet || cfg.BBox.MinLat != 50 || cfg.BBox.MaxLon != 1 {
		t.Errorf("BBox = %+v", cfg.BBox)
	}
	if cfg.Index != "brute" || cfg.Workers != 3 {
		t.Errorf("Index = %q, Workers = %d", cfg.Index, cfg.Workers)
	}
	if cfg.MetricsInterval != 5*time.Second {
		t.Errorf("MetricsInterval = %v", cfg.MetricsInterval)
	}

	// Keys absent from the file keep their defaults
	if cfg.OutputFile != "answer.json" || cfg.Projection != 3857 {
		t.Errorf("defaults overwritten: output=%q projection=%d", cfg.OutputFile, cfg.Projection)
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	if err := LoadFile(filepath.Join(dir, "missing.yaml"), DefaultConfig()); err == nil {
		t.Error("expected error for missing file")
	}

	tests := map[string]string{
		"unknown key": "colour: blue\n",
		"bad bbox":    "bbox: \"1,2\"\n",
		"bad type":    "workers: many\n",
	}
	for name, content := range tests {
		path := filepath.Join(dir, "cfg.yaml")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if err := LoadFile(path, DefaultConfig()); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg := DefaultConfig()
	if err := LoadFile(path, cfg); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Attribute != "uprn" {
		t.Errorf("Attribute = %q, want uprn", cfg.Attribute)
	}
}
