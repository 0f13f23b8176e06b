package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// BBox represents a geographic bounding box
type BBox struct {
	MinLon, MinLat, MaxLon, MaxLat float64
	IsSet                          bool
}

// Contains checks if a point is within the bounding box
func (b *BBox) Contains(lat, lon float64) bool {
	if b == nil || !b.IsSet {
		return true
	}
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// String formats the box the way ParseBBox reads it
func (b *BBox) String() string {
	if b == nil || !b.IsSet {
		return ""
	}
	return strings.Join([]string{
		strconv.FormatFloat(b.MinLon, 'f', -1, 64),
		strconv.FormatFloat(b.MinLat, 'f', -1, 64),
		strconv.FormatFloat(b.MaxLon, 'f', -1, 64),
		strconv.FormatFloat(b.MaxLat, 'f', -1, 64),
	}, ",")
}

// UnmarshalYAML reads a bbox written as "minlon,minlat,maxlon,maxlat"
func (b *BBox) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseBBox(s)
	if err != nil {
		return err
	}
	*b = *parsed
	return nil
}

// ParseBBox parses a bbox string in format "minlon,minlat,maxlon,maxlat"
func ParseBBox(s string) (*BBox, error) {
	if s == "" {
		return &BBox{IsSet: false}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values: minlon,minlat,maxlon,maxlat")
	}

	var coords [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox coordinate %q: %w", p, err)
		}
		coords[i] = v
	}

	bbox := &BBox{
		MinLon: coords[0],
		MinLat: coords[1],
		MaxLon: coords[2],
		MaxLat: coords[3],
		IsSet:  true,
	}

	// Validate
	if bbox.MinLon > bbox.MaxLon {
		return nil, fmt.Errorf("minlon (%f) must be <= maxlon (%f)", bbox.MinLon, bbox.MaxLon)
	}
	if bbox.MinLat > bbox.MaxLat {
		return nil, fmt.Errorf("minlat (%f) must be <= maxlat (%f)", bbox.MinLat, bbox.MaxLat)
	}

	return bbox, nil
}

// Columns names the address CSV columns
type Columns struct {
	ID  string `yaml:"id"`
	Lon string `yaml:"lon"`
	Lat string `yaml:"lat"`
}

// Index strategies accepted by Validate
var indexStrategies = []string{"rtree", "brute"}

// Config holds the global configuration for a join run. Field tags name
// the keys of the optional YAML config file.
type Config struct {
	// Input settings
	AddressFile  string  `yaml:"-"`
	BuildingFile string  `yaml:"-"`
	Columns      Columns `yaml:"columns"`
	Delimiter    string  `yaml:"delimiter"`
	BBox         *BBox   `yaml:"bbox"`          // Geographic bounding box filter
	FilterScript string  `yaml:"filter_script"` // Lua script defining filter_address
	GeometryType string  `yaml:"geometry_type"` // Geometry type a building must carry

	// Output settings
	OutputFile  string `yaml:"output"`
	OutputDir   string `yaml:"output_dir"` // Directory for Parquet exports
	MatchesFile string `yaml:"matches_parquet"`
	Attribute   string `yaml:"attribute"`  // Building attribute receiving the matches
	Projection  int    `yaml:"projection"` // SRID of the building vertices
	Indent      int    `yaml:"indent"`

	// Database settings
	ExportDB        bool   `yaml:"export_db"`
	DBHost          string `yaml:"db_host"`
	DBPort          int    `yaml:"db_port"`
	DBName          string `yaml:"db_name"`
	DBUser          string `yaml:"db_user"`
	DBPassword      string `yaml:"db_password"`
	DBSchema        string `yaml:"db_schema"`
	FootprintsTable string `yaml:"footprints_table"`
	MatchesTable    string `yaml:"matches_table"`

	// Processing settings
	Workers   int    `yaml:"workers"`
	Index     string `yaml:"index"` // Spatial index strategy
	BatchSize int    `yaml:"batch_size"`

	// Logging and metrics
	Verbose         bool          `yaml:"verbose"`
	LogFile         string        `yaml:"log_file"`         // Path to log file (empty = no file logging)
	MetricsInterval time.Duration `yaml:"metrics_interval"` // Interval for system metrics logging
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Columns:         Columns{ID: "UPRN", Lon: "LONGITUDE", Lat: "LATITUDE"},
		Delimiter:       ",",
		BBox:            &BBox{},
		GeometryType:    "MultiSurface",
		OutputFile:      "answer.json",
		OutputDir:       "./addrjoin_data",
		Attribute:       "uprn",
		Projection:      3857, // Web Mercator
		DBHost:          "localhost",
		DBPort:          5432,
		DBName:          "addrjoin",
		DBUser:          "postgres",
		DBPassword:      "",
		DBSchema:        "public",
		FootprintsTable: "building_footprints",
		MatchesTable:    "building_addresses",
		Workers:         runtime.NumCPU(),
		Index:           "rtree",
		BatchSize:       100000,
		Verbose:         false,
		LogFile:         "",               // No file logging by default
		MetricsInterval: 30 * time.Second, // Log system metrics every 30 seconds
	}
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// Comma returns the CSV delimiter as a rune
func (c *Config) Comma() rune {
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}

// FootprintsPath is where footprints are written for the database export
func (c *Config) FootprintsPath() string {
	return filepath.Join(c.OutputDir, "footprints.parquet")
}

// MatchesPath is where matches are written: MatchesFile when set,
// otherwise a file in OutputDir.
func (c *Config) MatchesPath() string {
	if c.MatchesFile != "" {
		return c.MatchesFile
	}
	return filepath.Join(c.OutputDir, "matches.parquet")
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Columns.ID == "" || c.Columns.Lon == "" || c.Columns.Lat == "" {
		return fmt.Errorf("id, lon and lat column names are required")
	}
	if utf8.RuneCountInString(c.Delimiter) != 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", c.Delimiter)
	}
	if c.Attribute == "" {
		return fmt.Errorf("attribute name is required")
	}
	if c.GeometryType == "" {
		return fmt.Errorf("geometry type is required")
	}
	if c.Projection != 4326 && c.Projection != 3857 {
		return fmt.Errorf("unsupported projection %d (only 4326 and 3857 supported)", c.Projection)
	}
	if c.Indent < 0 {
		return fmt.Errorf("indent must not be negative")
	}
	if !validIndex(c.Index) {
		return fmt.Errorf("unknown index strategy %q (supported: %s)", c.Index, strings.Join(indexStrategies, ", "))
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.BatchSize < 1000 {
		return fmt.Errorf("batch size must be at least 1000")
	}
	return nil
}

func validIndex(name string) bool {
	for _, s := range indexStrategies {
		if s == name {
			return true
		}
	}
	return false
}
