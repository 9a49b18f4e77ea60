// Package kvtable implements the opaque key-value table collaborator:
// an in-memory map from opaque byte keys to opaque byte values, with
// whole-table export/import for the snapshot pipeline in internal/engine.
package kvtable

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"sync"
)

// Table is a byte-key to byte-value map. It is safe for concurrent use.
type Table struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an empty Table.
func New() *Table {
	return &Table{data: make(map[string][]byte)}
}

// Put stores value under key, overwriting any existing value. Put is an
// upsert by construction, which makes it idempotent on WAL replay.
func (t *Table) Put(key, value []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data[string(key)] = append([]byte(nil), value...)
}

// Get returns a copy of the value stored under key, and whether it was found.
func (t *Table) Get(key []byte) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.data[string(key)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Del removes key. It reports whether the key existed, but the caller
// treats del of an absent key as a no-op success rather than an error,
// which is what makes replay of a DEL record idempotent.
func (t *Table) Del(key []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, existed := t.data[string(key)]
	delete(t.data, string(key))
	return existed
}

// Size returns the number of keys currently stored.
func (t *Table) Size() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return uint64(len(t.data))
}

// Close releases table resources. The in-memory map needs no teardown;
// Close exists so Table satisfies the same create/destroy shape as the
// vector index collaborator.
func (t *Table) Close() error {
	return nil
}

// snapshotEntry is the gob-encoded shape of one key-value pair.
type snapshotEntry struct {
	Key   []byte
	Value []byte
}

// Export serialises the whole table to path, overwriting any existing file.
func (t *Table) Export(path string) error {
	t.mu.RLock()
	entries := make([]snapshotEntry, 0, len(t.data))
	for k, v := range t.data {
		entries = append(entries, snapshotEntry{Key: []byte(k), Value: v})
	}
	t.mu.RUnlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return fmt.Errorf("kvtable: encode snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("kvtable: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("kvtable: rename snapshot: %w", err)
	}
	return nil
}

// Import loads path into the table with overwrite semantics: the table is
// emptied first, then every entry from the snapshot is inserted.
func (t *Table) Import(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("kvtable: read snapshot: %w", err)
	}

	var entries []snapshotEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		return fmt.Errorf("kvtable: decode snapshot: %w", err)
	}

	fresh := make(map[string][]byte, len(entries))
	for _, e := range entries {
		fresh[string(e.Key)] = e.Value
	}

	t.mu.Lock()
	t.data = fresh
	t.mu.Unlock()
	return nil
}
