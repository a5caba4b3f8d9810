package server

import (
	"encoding/json"

	lru "github.com/hashicorp/golang-lru/v2"

	"overmind/internal/timeline"
)

const defaultCacheEntries = 16

// snapshotCache memoizes marshaled snapshots keyed by store version. The
// store bumps its version only on visible changes, so a hit is always
// byte-identical to a fresh marshal.
type snapshotCache struct {
	entries *lru.Cache[uint64, []byte]
}

func newSnapshotCache(size int) (*snapshotCache, error) {
	if size <= 0 {
		size = defaultCacheEntries
	}
	entries, err := lru.New[uint64, []byte](size)
	if err != nil {
		return nil, err
	}
	return &snapshotCache{entries: entries}, nil
}

// snapshotJSON returns the JSON encoding of the store's current snapshot and
// whether it came from the cache.
func (c *snapshotCache) snapshotJSON(store *timeline.Store) ([]byte, bool, error) {
	version := store.Version()
	if body, ok := c.entries.Get(version); ok {
		return body, true, nil
	}

	snapshot := store.Snapshot()
	body, err := json.Marshal(snapshot)
	if err != nil {
		return nil, false, err
	}
	// The snapshot may be newer than the version we looked up; key by what
	// we actually serialized.
	c.entries.Add(snapshot.Version, body)
	return body, false, nil
}
