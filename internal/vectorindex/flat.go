package vectorindex

import (
	"bytes"
	"encoding/gob"
	"os"
	"sort"
	"sync"
)

// flatIndex is the exact brute-force Index: search scans every stored
// vector. Correct by construction, O(n) per search.
type flatIndex struct {
	mu   sync.RWMutex
	sim  Similarity
	dims int
	vecs map[uint64][]float32
}

func newFlat(sim Similarity, dims int) *flatIndex {
	return &flatIndex{sim: sim, dims: dims, vecs: make(map[uint64][]float32)}
}

// Insert is an upsert: inserting an id that already exists replaces its
// vector, which is what makes WAL replay idempotent.
func (f *flatIndex) Insert(id uint64, vec []float32) error {
	if err := validateDims(f.dims, vec); err != nil {
		return err
	}
	cp := append([]float32(nil), vec...)
	f.mu.Lock()
	f.vecs[id] = cp
	f.mu.Unlock()
	return nil
}

// Delete is a no-op on an absent id, reporting existed=false rather
// than an error, so replaying a DELETE twice (e.g. after a crash
// between snapshot export and WAL truncation) stays idempotent.
func (f *flatIndex) Delete(id uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, existed := f.vecs[id]
	delete(f.vecs, id)
	return existed, nil
}

func (f *flatIndex) Search(vec []float32, n int) ([]Match, error) {
	if err := validateDims(f.dims, vec); err != nil {
		return nil, err
	}
	if n == 0 {
		return []Match{}, nil
	}
	f.mu.RLock()
	matches := make([]Match, 0, len(f.vecs))
	for id, v := range f.vecs {
		matches = append(matches, Match{ID: id, Distance: distance(f.sim, vec, v)})
	}
	f.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})
	if n < len(matches) {
		matches = matches[:n]
	}
	return matches, nil
}

func (f *flatIndex) Size() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return uint64(len(f.vecs))
}

func (f *flatIndex) Close() error { return nil }

type flatSnapshot struct {
	Dims int
	Sim  Similarity
	IDs  []uint64
	Vecs [][]float32
}

// Export writes the index to path via a write-to-temp-then-rename
// pattern, so a crash mid-export leaves the previous snapshot file
// intact.
func (f *flatIndex) Export(path string) error {
	f.mu.RLock()
	snap := flatSnapshot{Dims: f.dims, Sim: f.sim, IDs: make([]uint64, 0, len(f.vecs)), Vecs: make([][]float32, 0, len(f.vecs))}
	for id, v := range f.vecs {
		snap.IDs = append(snap.IDs, id)
		snap.Vecs = append(snap.Vecs, v)
	}
	f.mu.RUnlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Import replaces the index's contents wholesale from path.
func (f *flatIndex) Import(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var snap flatSnapshot
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&snap); err != nil {
		return err
	}
	vecs := make(map[uint64][]float32, len(snap.IDs))
	for i, id := range snap.IDs {
		vecs[id] = snap.Vecs[i]
	}
	f.mu.Lock()
	f.dims = snap.Dims
	f.sim = snap.Sim
	f.vecs = vecs
	f.mu.Unlock()
	return nil
}
