// Package cache persists content digests between scans.
//
// Video files are large and rarely change, so re-hashing an unchanged
// library is the dominant cost of a repeat scan. Entries are keyed by
// (path, size, inode, mtime): any change to the file is a cache miss.
package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ivoronin/dupevid/internal/logging"
	"github.com/ivoronin/dupevid/internal/types"
)

const (
	bucketName = "digests"
	hashSize   = 32
)

var logger = logging.Get("cache")

// Cache provides persistent caching of file digests using BoltDB.
// Implements self-cleaning: each run creates a new database, only entries
// looked up or stored during the run survive.
// A nil *Cache behaves as a disabled cache.
type Cache struct {
	readDB  *bolt.DB // Existing cache (read-only)
	writeDB *bolt.DB // New cache (write), locked by BoltDB
	path    string   // Final path for the atomic swap
	enabled bool

	hits   atomic.Int64
	misses atomic.Int64
}

// Open opens an existing cache for reading and creates a new cache for writing.
// BoltDB's file lock on the .new file prevents concurrent instances.
// Returns a disabled cache if path is empty.
func Open(path string) (*Cache, error) {
	if path == "" {
		return &Cache{enabled: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &Cache{path: path, enabled: true}
	var err error

	if _, statErr := os.Stat(path); statErr == nil {
		c.readDB, err = bolt.Open(path, 0o600, &bolt.Options{
			ReadOnly: true,
			Timeout:  1 * time.Second,
		})
		if err != nil {
			logger.Warn("ignoring unreadable cache", "path", path, "err", err)
			c.readDB = nil
		}
	}

	c.writeDB, err = bolt.Open(path+".new", 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create new cache (locked by another instance?): %w", err)
	}

	if err := c.writeDB.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// Enabled reports whether the cache is backed by a file.
func (c *Cache) Enabled() bool { return c != nil && c.enabled }

// Close closes both databases and atomically replaces old with new.
// Only replaces if the write database closed cleanly.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.readDB != nil {
		if err := c.readDB.Close(); err != nil {
			errs = append(errs, err)
		}
		c.readDB = nil
	}
	if c.writeDB != nil {
		if err := c.writeDB.Close(); err != nil {
			errs = append(errs, err)
		} else if err := os.Rename(c.path+".new", c.path); err != nil {
			errs = append(errs, err)
		}
		c.writeDB = nil
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

const keyVersion byte = 1 // Increment when key format changes

// makeKey builds the lookup key.
// Key = ver(1) + path + NUL + size(8) + ino(8) + mtime(8)
func makeKey(rec types.FileRecord) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(keyVersion)
	buf.WriteString(rec.Path)
	buf.WriteByte(0)
	_ = binary.Write(buf, binary.BigEndian, rec.Size)
	_ = binary.Write(buf, binary.BigEndian, rec.Ino)
	_ = binary.Write(buf, binary.BigEndian, rec.ModTime.UnixNano())
	return buf.Bytes()
}

// Lookup retrieves a cached digest for rec.
// On hit the entry is copied to the new database.
// Returns (nil, nil) if not found.
func (c *Cache) Lookup(rec types.FileRecord) ([]byte, error) {
	if !c.Enabled() {
		return nil, nil
	}
	if c.readDB == nil {
		c.misses.Add(1)
		return nil, nil
	}

	var hash []byte
	err := c.readDB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		if data := b.Get(makeKey(rec)); len(data) == hashSize {
			hash = bytes.Clone(data)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}
	if hash == nil {
		c.misses.Add(1)
		return nil, nil
	}
	c.hits.Add(1)

	if err := c.Store(rec, hash); err != nil {
		logger.Debug("cache carry-over failed", "path", rec.Path, "err", err)
	}
	return hash, nil
}

// Hits returns the number of lookups answered from the previous run.
func (c *Cache) Hits() int64 {
	if c == nil {
		return 0
	}
	return c.hits.Load()
}

// Misses returns the number of lookups that required hashing.
func (c *Cache) Misses() int64 {
	if c == nil {
		return 0
	}
	return c.misses.Load()
}

func (c *Cache) String() string {
	if !c.Enabled() {
		return "cache disabled"
	}
	return fmt.Sprintf("cache: %d hits, %d misses", c.Hits(), c.Misses())
}

// Store saves a digest to the new database. Hashes of the wrong length are ignored.
func (c *Cache) Store(rec types.FileRecord, hash []byte) error {
	if !c.Enabled() || c.writeDB == nil || len(hash) != hashSize {
		return nil
	}

	err := c.writeDB.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put(makeKey(rec), hash)
	})
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}
