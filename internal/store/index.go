package store

import (
	"math"

	"github.com/coder/hnsw"
)

// vectorIndex wraps an HNSW graph with a mapping between entry keys and the
// graph's uint64 node keys. Removal is lazy: the node's mapping is orphaned
// and searches skip it, which sidesteps graph corruption when deleting the
// last node.
type vectorIndex struct {
	graph   *hnsw.Graph[uint64]
	keyOf   map[string]uint64
	entryOf map[uint64]string
	nextKey uint64
	dims    int
}

func newVectorIndex(dims int) *vectorIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 40
	graph.Ml = 0.25

	return &vectorIndex{
		graph:   graph,
		keyOf:   make(map[string]uint64),
		entryOf: make(map[uint64]string),
		dims:    dims,
	}
}

// add indexes a unit-normalized vector under entryKey.
func (ix *vectorIndex) add(entryKey string, vec []float32) error {
	if len(vec) != ix.dims {
		return ErrDimensionMismatch{Expected: ix.dims, Got: len(vec)}
	}
	if old, ok := ix.keyOf[entryKey]; ok {
		delete(ix.entryOf, old)
	}
	key := ix.nextKey
	ix.nextKey++
	ix.graph.Add(hnsw.MakeNode(key, vec))
	ix.keyOf[entryKey] = key
	ix.entryOf[key] = entryKey
	return nil
}

// remove orphans the node for entryKey.
func (ix *vectorIndex) remove(entryKey string) {
	if key, ok := ix.keyOf[entryKey]; ok {
		delete(ix.entryOf, key)
		delete(ix.keyOf, entryKey)
	}
}

// indexHit is one nearest neighbor from the graph.
type indexHit struct {
	entryKey string
	score    float32
}

// search returns up to k live entries nearest to the unit-normalized query.
// The graph is over-queried to compensate for orphaned nodes.
func (ix *vectorIndex) search(query []float32, k int) []indexHit {
	if len(ix.keyOf) == 0 || k <= 0 {
		return nil
	}

	orphans := ix.graph.Len() - len(ix.keyOf)
	nodes := ix.graph.Search(query, k+orphans)

	hits := make([]indexHit, 0, k)
	for _, node := range nodes {
		entryKey, ok := ix.entryOf[node.Key]
		if !ok {
			continue
		}
		hits = append(hits, indexHit{
			entryKey: entryKey,
			score:    1 - ix.graph.Distance(query, node.Value),
		})
		if len(hits) == k {
			break
		}
	}
	return hits
}

// normalizeVector scales v to unit length in place. Zero vectors are left
// unchanged.
func normalizeVector(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
