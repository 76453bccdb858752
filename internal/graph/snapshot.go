// Package graph maintains an immutable in-memory knowledge graph over ready
// resources. A snapshot is built in one pass and swapped atomically; readers
// never see a half-built graph.
package graph

import (
	"time"

	"github.com/google/uuid"

	types "github.com/neoalexandria/backend/internal/domain"
)

// Layer mixing weights. Fused edge weight over the type set T is
// 1 - prod(1 - w_t * alpha_t).
type Alphas struct {
	Vector         float64
	Tags           float64
	Classification float64
}

func (a Alphas) For(edgeType string) float64 {
	switch edgeType {
	case types.EdgeContentSimilarity:
		return a.Vector
	case types.EdgeSubjectSimilarity:
		return a.Tags
	default:
		// citation, co_authorship and temporal share the structural slot.
		return a.Classification
	}
}

// Node is the snapshot's view of one ready resource.
type Node struct {
	ID             uuid.UUID
	Title          string
	QualityOverall float64
	Subjects       []string
	Creators       []string
	Classification string
	Embedding      []float32
	Year           *int
}

// Edge is an undirected pair with per-layer weights and their fusion.
// Weights are post-override and clamped to [0,1].
type Edge struct {
	A, B   int
	Layers map[string]float64
	Fused  float64
}

type Snapshot struct {
	BuiltAt time.Time
	Nodes   []Node
	Edges   []Edge

	index map[uuid.UUID]int
	adj   [][]int
}

func emptySnapshot() *Snapshot {
	return &Snapshot{BuiltAt: time.Now().UTC(), index: map[uuid.UUID]int{}}
}

func (s *Snapshot) NodeIndex(id uuid.UUID) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}

// Degree counts distinct graph neighbors of node i.
func (s *Snapshot) Degree(i int) int {
	if i < 0 || i >= len(s.adj) {
		return 0
	}
	return len(s.adj[i])
}

// EdgesOf returns the edge indexes incident to node i.
func (s *Snapshot) EdgesOf(i int) []int {
	if i < 0 || i >= len(s.adj) {
		return nil
	}
	return s.adj[i]
}

// Other returns the peer of node i on edge e.
func (e Edge) Other(i int) int {
	if e.A == i {
		return e.B
	}
	return e.A
}

// FusedOver recomputes the fusion restricted to allowed layer types.
// A nil filter means all layers.
func (e Edge) FusedOver(allowed map[string]struct{}, alphas Alphas) float64 {
	if allowed == nil {
		return e.Fused
	}
	keep := 1.0
	for t, w := range e.Layers {
		if _, ok := allowed[t]; !ok {
			continue
		}
		keep *= 1 - w*alphas.For(t)
	}
	return 1 - keep
}

// EdgeBetween returns the edge joining nodes i and j, if any.
func (s *Snapshot) EdgeBetween(i, j int) (Edge, bool) {
	for _, ei := range s.EdgesOf(i) {
		if s.Edges[ei].Other(i) == j {
			return s.Edges[ei], true
		}
	}
	return Edge{}, false
}
