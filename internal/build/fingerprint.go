package build

import (
	"fmt"
	"hash/crc32"
	"os"
	"sync"
	"sync/atomic"
)

// Fingerprints computes CRC32 Castagnoli content hashes. A metadata cache
// keyed on path, mtime and size avoids reading files that have not changed
// since they were last hashed.
type Fingerprints struct {
	table *crc32.Table

	mu    sync.RWMutex
	cache map[string]metaEntry

	hits   atomic.Int64
	misses atomic.Int64
}

type metaEntry struct {
	key string
	sum uint32
}

// FingerprintStats provides cache performance counters.
type FingerprintStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Entries int     `json:"entries"`
	Ratio   float64 `json:"hit_ratio"`
}

// NewFingerprints returns an empty fingerprint cache.
func NewFingerprints() *Fingerprints {
	return &Fingerprints{
		table: crc32.MakeTable(crc32.Castagnoli),
		cache: make(map[string]metaEntry),
	}
}

// Bytes hashes b.
func (f *Fingerprints) Bytes(b []byte) uint32 {
	return crc32.Checksum(b, f.table)
}

// File returns the content hash of the file at path.
func (f *Fingerprints) File(path string) (uint32, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return 0, err
	}

	key := fmt.Sprintf("%d:%d", stat.ModTime().UnixNano(), stat.Size())

	f.mu.RLock()
	entry, ok := f.cache[path]
	f.mu.RUnlock()
	if ok && entry.key == key {
		f.hits.Add(1)
		return entry.sum, nil
	}
	f.misses.Add(1)

	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	sum := f.Bytes(content)

	f.mu.Lock()
	f.cache[path] = metaEntry{key: key, sum: sum}
	f.mu.Unlock()

	return sum, nil
}

// Invalidate drops the cached hash for path.
func (f *Fingerprints) Invalidate(path string) {
	f.mu.Lock()
	delete(f.cache, path)
	f.mu.Unlock()
}

// Stats returns cache statistics for monitoring.
func (f *Fingerprints) Stats() FingerprintStats {
	f.mu.RLock()
	entries := len(f.cache)
	f.mu.RUnlock()

	hits, misses := f.hits.Load(), f.misses.Load()
	stats := FingerprintStats{Hits: hits, Misses: misses, Entries: entries}
	if total := hits + misses; total > 0 {
		stats.Ratio = float64(hits) / float64(total)
	}
	return stats
}
