package graph

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/neoalexandria/backend/internal/platform/apierr"
)

// maxFanOut bounds how many incident edges a single node contributes during
// traversal. Hubs beyond this keep only their strongest edges.
const maxFanOut = 64

// Rank mix for neighbor ordering.
const (
	rankPathWeight    = 0.5
	rankQualityWeight = 0.3
	rankNoveltyWeight = 0.2
)

type NeighborsRequest struct {
	Start     uuid.UUID
	Hops      int
	EdgeTypes []string
	MinWeight float64
	Limit     int
}

type Neighbor struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	Hops         int       `json:"hops"`
	Via          uuid.UUID `json:"via,omitempty"`
	PathStrength float64   `json:"path_strength"`
	Quality      float64   `json:"quality"`
	Novelty      float64   `json:"novelty"`
	Rank         float64   `json:"rank"`
	EdgeTypes    []string  `json:"edge_types"`
}

// Neighbors walks 1 or 2 hops out from the start node. Each reachable node is
// reported once with its strongest path; the start node itself never appears.
func Neighbors(s *Snapshot, alphas Alphas, req NeighborsRequest) ([]Neighbor, error) {
	if req.Hops == 0 {
		req.Hops = 1
	}
	if req.Hops < 1 || req.Hops > 2 {
		return nil, apierr.Newf(apierr.KindValidation, "hops must be 1 or 2, got %d", req.Hops)
	}
	if req.Limit <= 0 {
		req.Limit = 7
	}
	start, ok := s.NodeIndex(req.Start)
	if !ok {
		return nil, apierr.Newf(apierr.KindNotFound, "resource %s is not in the graph", req.Start)
	}

	allowed := typeFilter(req.EdgeTypes)

	type pathState struct {
		strength float64
		hops     int
		via      int
		types    map[string]struct{}
	}
	best := map[int]pathState{}

	firstHop := fanOut(s, start, allowed, alphas, req.MinWeight)
	for _, step := range firstHop {
		best[step.peer] = pathState{
			strength: step.weight,
			hops:     1,
			via:      -1,
			types:    step.types,
		}
	}
	if req.Hops == 2 {
		for _, step := range firstHop {
			for _, next := range fanOut(s, step.peer, allowed, alphas, req.MinWeight) {
				if next.peer == start {
					continue
				}
				strength := step.weight * next.weight
				cur, seen := best[next.peer]
				if seen && cur.strength >= strength {
					continue
				}
				merged := map[string]struct{}{}
				for t := range step.types {
					merged[t] = struct{}{}
				}
				for t := range next.types {
					merged[t] = struct{}{}
				}
				state := pathState{strength: strength, hops: 2, via: step.peer, types: merged}
				if seen && cur.hops == 1 {
					// A direct edge stays a direct edge; only the
					// strength may improve through a bridge.
					state.hops = 1
					state.via = -1
				}
				best[next.peer] = state
			}
		}
	}

	out := make([]Neighbor, 0, len(best))
	for idx, st := range best {
		node := s.Nodes[idx]
		novelty := 1 / (1 + math.Log(1+float64(s.Degree(idx))))
		n := Neighbor{
			ID:           node.ID,
			Title:        node.Title,
			Hops:         st.hops,
			PathStrength: st.strength,
			Quality:      node.QualityOverall,
			Novelty:      novelty,
			Rank:         rankPathWeight*st.strength + rankQualityWeight*node.QualityOverall + rankNoveltyWeight*novelty,
			EdgeTypes:    sortedTypeSet(st.types),
		}
		if st.via >= 0 {
			n.Via = s.Nodes[st.via].ID
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

type hopStep struct {
	peer   int
	weight float64
	types  map[string]struct{}
}

// fanOut lists the usable edges out of node i, strongest first, capped at
// maxFanOut.
func fanOut(s *Snapshot, i int, allowed map[string]struct{}, alphas Alphas, minWeight float64) []hopStep {
	steps := make([]hopStep, 0, len(s.EdgesOf(i)))
	for _, ei := range s.EdgesOf(i) {
		e := s.Edges[ei]
		w := e.FusedOver(allowed, alphas)
		if w <= 0 || w < minWeight {
			continue
		}
		ts := map[string]struct{}{}
		for t := range e.Layers {
			if allowed != nil {
				if _, ok := allowed[t]; !ok {
					continue
				}
			}
			ts[t] = struct{}{}
		}
		steps = append(steps, hopStep{peer: e.Other(i), weight: w, types: ts})
	}
	sort.SliceStable(steps, func(a, b int) bool { return steps[a].weight > steps[b].weight })
	if len(steps) > maxFanOut {
		steps = steps[:maxFanOut]
	}
	return steps
}

func typeFilter(edgeTypes []string) map[string]struct{} {
	if len(edgeTypes) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(edgeTypes))
	for _, t := range edgeTypes {
		out[t] = struct{}{}
	}
	return out
}

func sortedTypeSet(ts map[string]struct{}) []string {
	out := make([]string, 0, len(ts))
	for t := range ts {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

type OverviewNode struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	Quality        float64   `json:"quality"`
	Classification string    `json:"classification,omitempty"`
	Degree         int       `json:"degree"`
}

type OverviewEdge struct {
	Source    uuid.UUID `json:"source"`
	Target    uuid.UUID `json:"target"`
	Weight    float64   `json:"weight"`
	EdgeTypes []string  `json:"edge_types"`
}

type OverviewResult struct {
	Nodes   []OverviewNode `json:"nodes"`
	Edges   []OverviewEdge `json:"edges"`
	BuiltAt string         `json:"built_at"`
}

// Overview returns the strongest edges of the whole graph plus the nodes they
// touch, for the bird's-eye visualization.
func Overview(s *Snapshot, limitEdges int) *OverviewResult {
	if limitEdges <= 0 {
		limitEdges = 50
	}
	order := make([]int, len(s.Edges))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return s.Edges[order[a]].Fused > s.Edges[order[b]].Fused
	})
	if len(order) > limitEdges {
		order = order[:limitEdges]
	}

	out := &OverviewResult{
		Nodes:   []OverviewNode{},
		Edges:   make([]OverviewEdge, 0, len(order)),
		BuiltAt: s.BuiltAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	seen := map[int]struct{}{}
	addNode := func(i int) {
		if _, ok := seen[i]; ok {
			return
		}
		seen[i] = struct{}{}
		n := s.Nodes[i]
		out.Nodes = append(out.Nodes, OverviewNode{
			ID:             n.ID,
			Title:          n.Title,
			Quality:        n.QualityOverall,
			Classification: n.Classification,
			Degree:         s.Degree(i),
		})
	}
	for _, ei := range order {
		e := s.Edges[ei]
		addNode(e.A)
		addNode(e.B)
		ts := make([]string, 0, len(e.Layers))
		for t := range e.Layers {
			ts = append(ts, t)
		}
		sort.Strings(ts)
		out.Edges = append(out.Edges, OverviewEdge{
			Source:    s.Nodes[e.A].ID,
			Target:    s.Nodes[e.B].ID,
			Weight:    e.Fused,
			EdgeTypes: ts,
		})
	}
	return out
}
