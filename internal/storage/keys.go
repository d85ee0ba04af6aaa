package storage

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
)

// Prefixes for the three artifact families a chunk store holds.
const (
	RawPrefix       = "raw/"
	ProcessedPrefix = "processed/"
	SessionsPrefix  = "sessions/"
)

// RawKey is the key of an incoming raw log chunk.
func RawKey(chunk int) string {
	return fmt.Sprintf("%schunk_%06d.log.gz", RawPrefix, chunk)
}

// ProcessedKey is the key of a chunk's classified batch.
func ProcessedKey(chunk int) string {
	return fmt.Sprintf("%schunk_%06d.jsonl.gz", ProcessedPrefix, chunk)
}

// SessionsKey is the key of a chunk's navigation-event batch.
func SessionsKey(chunk int) string {
	return fmt.Sprintf("%ssessions_%06d.jsonl.gz", SessionsPrefix, chunk)
}

// CollatedKey is the key of the unified, cross-chunk session dataset.
func CollatedKey() string {
	return SessionsPrefix + "sessions_full.jsonl.gz"
}

var chunkNumberRE = regexp.MustCompile(`_(\d+)\.`)

// ChunkNumbers extracts the chunk numbers embedded in a list of keys,
// sorted ascending. Keys without a number (e.g. the collated dataset) are
// skipped.
func ChunkNumbers(keys []string) []int {
	var out []int
	for _, key := range keys {
		m := chunkNumberRE.FindStringSubmatch(path.Base(key))
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
