package export

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const snapshotFile = "bookmarks.json"

// Cache is the single-slot durable home of the latest snapshot. Writes are
// last-wins overwrites of one well-known file; no history is kept.
type Cache struct {
	dir string
}

func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

func (c *Cache) Path() string {
	return filepath.Join(c.dir, snapshotFile)
}

func (c *Cache) Save(snapshot *Snapshot) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create export dir")
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshal snapshot")
	}
	path := c.Path()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrap(err, "write snapshot")
	}
	return path, nil
}

// Load returns false when no usable snapshot exists; a missing or corrupt
// file is an ordinary cache miss, not an error.
func (c *Cache) Load() (*Snapshot, bool) {
	data, err := os.ReadFile(c.Path())
	if err != nil {
		return nil, false
	}
	snapshot := Snapshot{}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, false
	}
	return &snapshot, true
}
