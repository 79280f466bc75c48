package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

var ErrDuplicateKey = errors.New("storage: duplicate key")

// Collection is a keyed record set persisted as one JSON file. Every Insert
// rewrites the file through a synced temp file and rename, so an
// acknowledged write survives a crash.
type Collection[T any] struct {
	mu       sync.RWMutex
	filePath string
	records  map[string]T
}

// OpenCollection loads dataDir/filename, creating the directory if needed.
// A missing file is an empty collection.
func OpenCollection[T any](dataDir, filename string) (*Collection[T], error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	c := &Collection[T]{
		filePath: filepath.Join(dataDir, filename),
		records:  make(map[string]T),
	}

	file, err := os.Open(c.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&c.records); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", c.filePath, err)
	}
	if c.records == nil {
		c.records = make(map[string]T)
	}
	return c, nil
}

// Insert adds rec under key and persists the collection. The in-memory
// entry is rolled back if the write fails.
func (c *Collection[T]) Insert(key string, rec T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.records[key]; exists {
		return ErrDuplicateKey
	}
	c.records[key] = rec
	if err := c.flush(); err != nil {
		delete(c.records, key)
		return err
	}
	return nil
}

// Delete removes key and persists the collection. Deleting a missing key is
// a no-op. The entry is restored if the write fails.
func (c *Collection[T]) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, exists := c.records[key]
	if !exists {
		return nil
	}
	delete(c.records, key)
	if err := c.flush(); err != nil {
		c.records[key] = rec
		return err
	}
	return nil
}

func (c *Collection[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.records[key]
	return rec, ok
}

// All returns a snapshot of every record, ordered by key.
func (c *Collection[T]) All() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.records))
	for k := range c.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.records[k])
	}
	return out
}

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// flush must be called with c.mu held.
func (c *Collection[T]) flush() error {
	tempFile := c.filePath + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(c.records); err != nil {
		file.Close()
		os.Remove(tempFile)
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempFile)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}

	return os.Rename(tempFile, c.filePath)
}
