// Package gencache is an on-disk cache of generation results, keyed by a
// digest of everything that influences the generated output.
package gencache

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// schemaVersion is written into every record. Records with another version
// are treated as misses.
const schemaVersion uint16 = 1

// Key identifies one cache record.
type Key [32]byte

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// KeyOf digests parts into a Key. Each part is length-prefixed, so
// ("ab", "c") and ("a", "bc") produce different keys.
func KeyOf(parts ...[]byte) Key {
	h := sha256.New()
	var length [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(length[:], uint64(len(p)))
		h.Write(length[:])
		h.Write(p)
	}
	var k Key
	h.Sum(k[:0])
	return k
}

type header struct {
	Schema uint16 `msgpack:"schema"`
	Key    string `msgpack:"key"`
}

// Cache stores records as files named by their key. A nil *Cache is valid
// and never hits.
type Cache struct {
	dir        string
	serializer Serializer
	pool       *bufferPool
	mu         sync.RWMutex
}

// DefaultDir is the cache directory used when none is configured.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "snakebind"), nil
}

// Open creates dir if needed and returns a cache rooted there.
func Open(dir string) (*Cache, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultDir(); err != nil {
			return nil, fmt.Errorf("locating cache directory: %w", err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Cache{
		dir:        dir,
		serializer: MsgpackSerializer{},
		pool:       newBufferPool(16<<10, 8),
	}, nil
}

// Dir returns the directory the cache writes to.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *Cache) pathFor(k Key) string {
	s := k.String()
	return filepath.Join(c.dir, s[:2], s+".mp")
}

// Put stores v under k. The record is written to a temporary file and
// renamed into place, so readers never see a partial record.
func (c *Cache) Put(k Key, v any) error {
	if c == nil {
		return nil
	}
	hdr, err := c.serializer.Marshal(header{Schema: schemaVersion, Key: k.String()})
	if err != nil {
		return err
	}
	payload, err := c.serializer.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache record: %w", err)
	}

	path := c.pathFor(k)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(path), "rec-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := writeFrame(w, hdr); err != nil {
		tmp.Close()
		return err
	}
	if err := writeFrame(w, payload); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Get decodes the record stored under k into out. It reports false with a
// nil error when there is no usable record. A record that exists but
// cannot be read reports false with the error.
func (c *Cache) Get(k Key, out any) (bool, error) {
	if c == nil {
		return false, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(k))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	raw, err := readFrame(r, c.pool)
	if err != nil {
		return false, fmt.Errorf("reading cache record %s: %w", k, err)
	}
	var hdr header
	if err := c.serializer.Unmarshal(raw, &hdr); err != nil {
		return false, fmt.Errorf("decoding cache record %s: %w", k, err)
	}
	if hdr.Schema != schemaVersion || hdr.Key != k.String() {
		return false, nil
	}

	payload, err := readFrame(r, c.pool)
	if err != nil {
		return false, fmt.Errorf("reading cache record %s: %w", k, err)
	}
	if err := c.serializer.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("decoding cache record %s: %w", k, err)
	}
	return true, nil
}

// Clear removes every record.
func (c *Cache) Clear() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(c.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
