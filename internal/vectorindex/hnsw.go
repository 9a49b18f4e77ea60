package vectorindex

import (
	"bytes"
	"encoding/gob"
	"math"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"
)

// Tuning constants for the approximate graph, chosen from the published
// HNSW construction (Malkov & Yashunin): M caps the per-layer neighbor
// count (doubled at layer 0, where most traffic concentrates),
// efConstruction bounds the candidate list built while wiring a new
// node, efSearch is the default candidate list size for a query when
// the caller asks for fewer results than that.
const (
	hnswM              = 16
	hnswEfConstruction = 200
	hnswEfSearch       = 64
)

type candidate struct {
	id   uint64
	dist float32
}

// hnswIndex is a small multi-layer proximity graph: each node is
// assigned a random top layer, and is linked to its approximate
// nearest neighbors at every layer from 0 up to its own. Search
// descends greedily from a single entry point at the top layer,
// widening to a beam search only once it reaches layer 0.
type hnswIndex struct {
	mu   sync.RWMutex
	sim  Similarity
	dims int
	rng  *rand.Rand

	vecs      map[uint64][]float32
	levels    map[uint64]int
	neighbors map[uint64][][]uint64 // neighbors[id][layer] = neighbor ids at that layer

	hasEntry bool
	entry    uint64
	maxLevel int
}

func newHNSW(sim Similarity, dims int) *hnswIndex {
	return &hnswIndex{
		sim:       sim,
		dims:      dims,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		vecs:      make(map[uint64][]float32),
		levels:    make(map[uint64]int),
		neighbors: make(map[uint64][][]uint64),
	}
}

func (h *hnswIndex) randomLevel() int {
	levelMult := 1.0 / math.Log(float64(hnswM))
	lvl := int(math.Floor(-math.Log(h.rng.Float64()+1e-12) * levelMult))
	if lvl < 0 {
		lvl = 0
	}
	return lvl
}

func maxConnAt(layer int) int {
	if layer == 0 {
		return hnswM * 2
	}
	return hnswM
}

// Insert upserts id: a pre-existing id is fully unwired and reinserted
// fresh, which keeps WAL replay idempotent without needing an in-place
// graph update.
func (h *hnswIndex) Insert(id uint64, vec []float32) error {
	if err := validateDims(h.dims, vec); err != nil {
		return err
	}
	cp := append([]float32(nil), vec...)

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.vecs[id]; exists {
		h.removeLocked(id)
	}

	level := h.randomLevel()
	h.vecs[id] = cp
	h.levels[id] = level
	h.neighbors[id] = make([][]uint64, level+1)

	if !h.hasEntry {
		h.hasEntry = true
		h.entry = id
		h.maxLevel = level
		return nil
	}

	entryPoint := h.entry
	for lc := h.maxLevel; lc > level; lc-- {
		if res := h.searchLayer(cp, []uint64{entryPoint}, 1, lc); len(res) > 0 {
			entryPoint = res[0].id
		}
	}

	eps := []uint64{entryPoint}
	top := min(level, h.maxLevel)
	for lc := top; lc >= 0; lc-- {
		found := h.searchLayer(cp, eps, hnswEfConstruction, lc)
		conn := maxConnAt(lc)
		selected := found
		if len(selected) > conn {
			selected = selected[:conn]
		}
		for _, c := range selected {
			h.addNeighborLocked(id, lc, c.id)
			h.addNeighborLocked(c.id, lc, id)
			h.pruneNeighborsLocked(c.id, lc, maxConnAt(lc))
		}
		if len(found) > 0 {
			eps = idsOf(found)
		}
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entry = id
	}
	return nil
}

func idsOf(cs []candidate) []uint64 {
	out := make([]uint64, len(cs))
	for i, c := range cs {
		out[i] = c.id
	}
	return out
}

func (h *hnswIndex) addNeighborLocked(id uint64, layer int, nbr uint64) {
	if layer >= len(h.neighbors[id]) {
		return // nbr's own layer is shallower than id's; no edge slot exists there
	}
	for _, existing := range h.neighbors[id][layer] {
		if existing == nbr {
			return
		}
	}
	h.neighbors[id][layer] = append(h.neighbors[id][layer], nbr)
}

func (h *hnswIndex) pruneNeighborsLocked(id uint64, layer, maxConn int) {
	nbrs := h.neighbors[id][layer]
	if len(nbrs) <= maxConn {
		return
	}
	base, ok := h.vecs[id]
	if !ok {
		return
	}
	sort.Slice(nbrs, func(i, j int) bool {
		vi, oki := h.vecs[nbrs[i]]
		vj, okj := h.vecs[nbrs[j]]
		if !oki || !okj {
			return oki
		}
		return distance(h.sim, base, vi) < distance(h.sim, base, vj)
	})
	h.neighbors[id][layer] = append([]uint64(nil), nbrs[:maxConn]...)
}

// removeLocked unwires id from the graph and forgets its vector.
// Stray references to id left in other nodes' neighbor lists are
// tolerated: searchLayer skips any id no longer present in h.vecs.
func (h *hnswIndex) removeLocked(id uint64) {
	delete(h.vecs, id)
	delete(h.levels, id)
	delete(h.neighbors, id)
	if h.hasEntry && h.entry == id {
		h.reassignEntryLocked()
	}
}

func (h *hnswIndex) reassignEntryLocked() {
	best := uint64(0)
	bestLevel := -1
	found := false
	for candidateID, lvl := range h.levels {
		if !found || lvl > bestLevel {
			best, bestLevel, found = candidateID, lvl, true
		}
	}
	if !found {
		h.hasEntry = false
		h.entry = 0
		h.maxLevel = 0
		return
	}
	h.entry = best
	h.maxLevel = bestLevel
}

// Delete is a no-op (existed=false, nil error) on an absent id, which
// keeps WAL replay idempotent.
func (h *hnswIndex) Delete(id uint64) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, existed := h.vecs[id]
	if existed {
		h.removeLocked(id)
	}
	return existed, nil
}

func (h *hnswIndex) Search(vec []float32, n int) ([]Match, error) {
	if err := validateDims(h.dims, vec); err != nil {
		return nil, err
	}
	if n == 0 {
		return []Match{}, nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.hasEntry {
		return []Match{}, nil
	}

	entryPoint := h.entry
	for lc := h.maxLevel; lc > 0; lc-- {
		if res := h.searchLayer(vec, []uint64{entryPoint}, 1, lc); len(res) > 0 {
			entryPoint = res[0].id
		}
	}

	ef := n
	if ef < hnswEfSearch {
		ef = hnswEfSearch
	}
	found := h.searchLayer(vec, []uint64{entryPoint}, ef, 0)
	if n < len(found) {
		found = found[:n]
	}
	matches := make([]Match, len(found))
	for i, c := range found {
		matches[i] = Match{ID: c.id, Distance: c.dist}
	}
	return matches, nil
}

// searchLayer runs a bounded beam search at one graph layer starting
// from entryPoints, returning up to ef candidates sorted by ascending
// distance. Called with h.mu held (read or write) by every caller.
func (h *hnswIndex) searchLayer(query []float32, entryPoints []uint64, ef, layer int) []candidate {
	visited := make(map[uint64]bool)
	var frontier []candidate
	var result []candidate

	for _, ep := range entryPoints {
		v, ok := h.vecs[ep]
		if !ok || visited[ep] {
			continue
		}
		visited[ep] = true
		c := candidate{id: ep, dist: distance(h.sim, query, v)}
		frontier = append(frontier, c)
		result = append(result, c)
	}
	sortCandidates(frontier)
	sortCandidates(result)

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		if len(result) >= ef && cur.dist > result[len(result)-1].dist {
			break
		}
		if layer >= len(h.neighbors[cur.id]) {
			continue
		}
		for _, nbr := range h.neighbors[cur.id][layer] {
			if visited[nbr] {
				continue
			}
			visited[nbr] = true
			v, ok := h.vecs[nbr]
			if !ok {
				continue
			}
			d := distance(h.sim, query, v)
			if len(result) < ef || d < result[len(result)-1].dist {
				frontier = append(frontier, candidate{id: nbr, dist: d})
				sortCandidates(frontier)
				result = append(result, candidate{id: nbr, dist: d})
				sortCandidates(result)
				if len(result) > ef {
					result = result[:ef]
				}
			}
		}
	}
	return result
}

func sortCandidates(cs []candidate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].dist != cs[j].dist {
			return cs[i].dist < cs[j].dist
		}
		return cs[i].id < cs[j].id
	})
}

func (h *hnswIndex) Size() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return uint64(len(h.vecs))
}

func (h *hnswIndex) Close() error { return nil }

type hnswSnapshot struct {
	Dims      int
	Sim       Similarity
	HasEntry  bool
	Entry     uint64
	MaxLevel  int
	IDs       []uint64
	Vecs      [][]float32
	Levels    []int
	Neighbors [][][]uint64
}

// Export serializes the full graph (vectors, levels, and adjacency
// lists), not just the vectors, so a restart-from-snapshot preserves
// search quality rather than rebuilding a fresh graph from an
// insertion order that no longer matches the original.
func (h *hnswIndex) Export(path string) error {
	h.mu.RLock()
	snap := hnswSnapshot{
		Dims:     h.dims,
		Sim:      h.sim,
		HasEntry: h.hasEntry,
		Entry:    h.entry,
		MaxLevel: h.maxLevel,
	}
	for id, v := range h.vecs {
		snap.IDs = append(snap.IDs, id)
		snap.Vecs = append(snap.Vecs, v)
		snap.Levels = append(snap.Levels, h.levels[id])
		snap.Neighbors = append(snap.Neighbors, h.neighbors[id])
	}
	h.mu.RUnlock()

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

// Import replaces the graph wholesale from path: the previous contents
// are discarded and the snapshot's vectors, levels, adjacency lists and
// entry point are restored as stored, without rebuilding the graph.
func (h *hnswIndex) Import(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var snap hnswSnapshot
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&snap); err != nil {
		return err
	}

	vecs := make(map[uint64][]float32, len(snap.IDs))
	levels := make(map[uint64]int, len(snap.IDs))
	neighbors := make(map[uint64][][]uint64, len(snap.IDs))
	for i, id := range snap.IDs {
		vecs[id] = snap.Vecs[i]
		levels[id] = snap.Levels[i]
		neighbors[id] = snap.Neighbors[i]
	}

	h.mu.Lock()
	h.dims = snap.Dims
	h.sim = snap.Sim
	h.hasEntry = snap.HasEntry
	h.entry = snap.Entry
	h.maxLevel = snap.MaxLevel
	h.vecs = vecs
	h.levels = levels
	h.neighbors = neighbors
	h.mu.Unlock()
	return nil
}
