package pipeline

import "time"

// Stage names, used for log lines and metrics labels
const (
	StageAddresses = "addresses"
	StageDocument  = "document"
	StageExtract   = "extract"
	StageJoin      = "join"
	StageMerge     = "merge"
	StageSave      = "save"
	StageExport    = "export"
)

// StageTiming records how long one stage took
type StageTiming struct {
	Stage    string
	Duration time.Duration
}

// JoinStats holds the counts of a join run
type JoinStats struct {
	AddressesRead        int
	AddressesSelected    int
	Buildings            int
	MatchedAddresses     int
	UnmatchedAddresses   int
	BuildingsWithMatches int
	MatchRows            int64
	RowsExported         int64
	Timings              []StageTiming
}

// ExtractStats holds the counts of a footprint export
type ExtractStats struct {
	Buildings int
	Rows      int64
	Timings   []StageTiming
}
