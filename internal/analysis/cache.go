package analysis

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"github.com/vmihailenco/msgpack/v5"
)

// bump when the cached FileAnalysis layout changes
const diskCacheSchemaVersion uint16 = 1

// Digest identifies one cached analysis: path, options and source content
type Digest [32]byte

// DiskCache persists analyses in a directory so later processes can skip
// parsing unchanged sources. Safe for concurrent use.
type DiskCache struct {
	mu  sync.RWMutex
	fs  afero.Fs
	dir string
}

type diskPayload struct {
	Schema   uint16
	Analysis *FileAnalysis
}

// OpenDiskCache creates dir if needed and returns a cache rooted there
func OpenDiskCache(fs afero.Fs, dir string) (*DiskCache, error) {
	if info, err := fs.Stat(dir); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("cache path %s exists but is not a directory", dir)
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return &DiskCache{fs: fs, dir: dir}, nil
}

func (c *DiskCache) pathFor(key Digest) string {
	return filepath.Join(c.dir, hex.EncodeToString(key[:])+".mp")
}

// Put serializes and writes an analysis under key
func (c *DiskCache) Put(key Digest, fa *FileAnalysis) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := msgpack.Marshal(&diskPayload{Schema: diskCacheSchemaVersion, Analysis: fa})
	if err != nil {
		return err
	}
	// other caches on the same directory may write the same key
	tmp, err := afero.TempFile(c.fs, c.dir, "*.tmp")
	if err != nil {
		return err
	}
	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = c.fs.Rename(tmp.Name(), c.pathFor(key))
	}
	if err != nil {
		_ = c.fs.Remove(tmp.Name())
	}
	return err
}

// Get reads the analysis stored under key. A missing entry or one written
// by another schema version reports ok=false.
func (c *DiskCache) Get(key Digest) (*FileAnalysis, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := afero.ReadFile(c.fs, c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var payload diskPayload
	if err := msgpack.Unmarshal(data, &payload); err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry: %w", err)
	}
	if payload.Schema != diskCacheSchemaVersion || payload.Analysis == nil {
		return nil, false, nil
	}
	return payload.Analysis, true, nil
}
