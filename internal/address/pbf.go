package address

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"go.uber.org/zap"

	"github.com/wegman-software/addrjoin/internal/logger"
)

// addrTagPrefix marks OSM tags that describe an address
const addrTagPrefix = "addr:"

// LoadPBF reads address points from an OSM PBF extract. Every node with at
// least one addr:* tag becomes an address identified by its node id.
// Ways and relations are skipped.
func LoadPBF(ctx context.Context, path string, workers int) ([]Address, error) {
	log := logger.Get()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open address file: %w", err)
	}
	defer f.Close()

	if workers < 1 {
		workers = runtime.NumCPU()
	}

	// The osmpbf scanner already decodes in parallel
	scanner := osmpbf.New(ctx, f, workers)
	defer scanner.Close()
	scanner.SkipWays = true
	scanner.SkipRelations = true

	var (
		addrs   []Address
		scanned int64
	)
	for scanner.Scan() {
		node, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		scanned++
		if !hasAddress(node.Tags) {
			continue
		}
		addrs = append(addrs, Address{
			ID:  strconv.FormatInt(int64(node.ID), 10),
			Lon: node.Lon,
			Lat: node.Lat,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", path, err)
	}

	log.Debug("Scanned PBF nodes",
		zap.Int64("nodes", scanned),
		zap.Int("addresses", len(addrs)))
	return addrs, nil
}

func hasAddress(tags osm.Tags) bool {
	for _, t := range tags {
		if strings.HasPrefix(t.Key, addrTagPrefix) {
			return true
		}
	}
	return false
}
