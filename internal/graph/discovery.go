package graph

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/neoalexandria/backend/internal/pkg/vecmath"
	"github.com/neoalexandria/backend/internal/platform/apierr"
)

// Plausibility mix for open discovery candidates.
const (
	plausPathWeight     = 0.4
	plausCommonWeight   = 0.3
	plausSemanticWeight = 0.3

	// Common-neighbor counts saturate here.
	commonNeighborCap = 5
)

// Closed discovery path limits. Scores decay with path length so short
// explanations dominate.
const (
	closedMinEdges     = 2
	closedMaxEdges     = 4
	closedSearchBudget = 20000
)

var closedLengthPenalty = map[int]float64{2: 1.0, 3: 0.5, 4: 0.25}

// OpenCandidate is one A-B-C pattern: the anchor connects to the candidate
// only through bridge resources, never directly. PathStrength multiplies
// fused edge weights, so it is on the fused scale.
type OpenCandidate struct {
	CandidateID        uuid.UUID   `json:"candidate_id"`
	Title              string      `json:"title"`
	Bridges            []uuid.UUID `json:"bridges"`
	PathStrength       float64     `json:"path_strength"`
	CommonNeighbors    int         `json:"common_neighbors"`
	SemanticSimilarity float64     `json:"semantic_similarity"`
	Plausibility       float64     `json:"plausibility"`
}

// OpenDiscovery proposes indirect connections for the anchor. Candidates two
// hops out with no direct edge are scored by path strength, shared
// neighborhood and embedding similarity.
func OpenDiscovery(s *Snapshot, alphas Alphas, anchor uuid.UUID, limit int, minPlausibility float64) ([]OpenCandidate, error) {
	a, ok := s.NodeIndex(anchor)
	if !ok {
		return nil, apierr.Newf(apierr.KindNotFound, "resource %s is not in the graph", anchor)
	}
	if limit <= 0 {
		limit = 10
	}

	direct := map[int]float64{}
	for _, step := range fanOut(s, a, nil, alphas, 0) {
		direct[step.peer] = step.weight
	}

	type acc struct {
		bridges  []int
		strength float64
	}
	candidates := map[int]*acc{}
	for b, wAB := range direct {
		for _, next := range fanOut(s, b, nil, alphas, 0) {
			c := next.peer
			if c == a {
				continue
			}
			if _, connected := direct[c]; connected {
				continue
			}
			strength := wAB * next.weight
			cur, ok := candidates[c]
			if !ok {
				cur = &acc{}
				candidates[c] = cur
			}
			cur.bridges = append(cur.bridges, b)
			if strength > cur.strength {
				cur.strength = strength
			}
		}
	}

	out := make([]OpenCandidate, 0, len(candidates))
	for c, cur := range candidates {
		common := commonNeighborCount(s, a, c)
		sem := math.Max(0, vecmath.Cosine(s.Nodes[a].Embedding, s.Nodes[c].Embedding))
		plaus := plausPathWeight*cur.strength +
			plausCommonWeight*math.Min(1, float64(common)/commonNeighborCap) +
			plausSemanticWeight*sem
		if plaus < minPlausibility {
			continue
		}
		sort.Ints(cur.bridges)
		bridges := make([]uuid.UUID, 0, len(cur.bridges))
		prev := -1
		for _, b := range cur.bridges {
			if b == prev {
				continue
			}
			prev = b
			bridges = append(bridges, s.Nodes[b].ID)
		}
		out = append(out, OpenCandidate{
			CandidateID:        s.Nodes[c].ID,
			Title:              s.Nodes[c].Title,
			Bridges:            bridges,
			PathStrength:       cur.strength,
			CommonNeighbors:    common,
			SemanticSimilarity: sem,
			Plausibility:       plaus,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Plausibility != out[j].Plausibility {
			return out[i].Plausibility > out[j].Plausibility
		}
		return out[i].CandidateID.String() < out[j].CandidateID.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func commonNeighborCount(s *Snapshot, a, c int) int {
	seen := map[int]struct{}{}
	for _, ei := range s.EdgesOf(a) {
		seen[s.Edges[ei].Other(a)] = struct{}{}
	}
	count := 0
	for _, ei := range s.EdgesOf(c) {
		if _, ok := seen[s.Edges[ei].Other(c)]; ok {
			count++
		}
	}
	return count
}

// ClosedPath is one bridge chain explaining an A-C connection. Score is the
// product of fused edge weights along the path times the length penalty, so
// it lives on the fused scale, not the raw per-layer weight scale.
type ClosedPath struct {
	Bridges []uuid.UUID `json:"bridges"`
	Length  int         `json:"length"`
	Score   float64     `json:"score"`
}

type ClosedResult struct {
	Paths              []ClosedPath `json:"paths"`
	SemanticSimilarity float64      `json:"semantic_similarity"`
	CommonNeighbors    int          `json:"common_neighbors"`
}

// ClosedDiscovery enumerates bridge paths between two chosen endpoints,
// 2 to 4 edges long. Paths sharing the same bridge set collapse into the
// strongest one. The search carries a step budget so dense graphs terminate.
func ClosedDiscovery(s *Snapshot, alphas Alphas, from, to uuid.UUID, maxPaths int) (*ClosedResult, error) {
	a, ok := s.NodeIndex(from)
	if !ok {
		return nil, apierr.Newf(apierr.KindNotFound, "resource %s is not in the graph", from)
	}
	c, ok := s.NodeIndex(to)
	if !ok {
		return nil, apierr.Newf(apierr.KindNotFound, "resource %s is not in the graph", to)
	}
	if a == c {
		return nil, apierr.Newf(apierr.KindValidation, "endpoints must differ")
	}
	if maxPaths <= 0 {
		maxPaths = 10
	}

	byBridges := map[string]ClosedPath{}
	budget := closedSearchBudget
	onPath := map[int]bool{a: true}
	var walk func(node int, depth int, strength float64, bridges []int)
	walk = func(node int, depth int, strength float64, bridges []int) {
		if budget <= 0 || depth >= closedMaxEdges {
			return
		}
		for _, step := range fanOut(s, node, nil, alphas, 0) {
			if budget <= 0 {
				return
			}
			budget--
			next := step.peer
			if next == c {
				length := depth + 1
				if length < closedMinEdges {
					continue
				}
				score := strength * step.weight * closedLengthPenalty[length]
				key := bridgeKey(s, bridges)
				if cur, ok := byBridges[key]; !ok || score > cur.Score {
					ids := make([]uuid.UUID, len(bridges))
					for i, b := range bridges {
						ids[i] = s.Nodes[b].ID
					}
					byBridges[key] = ClosedPath{Bridges: ids, Length: length, Score: score}
				}
				continue
			}
			if onPath[next] {
				continue
			}
			onPath[next] = true
			walk(next, depth+1, strength*step.weight, append(bridges, next))
			delete(onPath, next)
		}
	}
	walk(a, 0, 1.0, nil)

	result := &ClosedResult{
		Paths:              make([]ClosedPath, 0, len(byBridges)),
		SemanticSimilarity: math.Max(0, vecmath.Cosine(s.Nodes[a].Embedding, s.Nodes[c].Embedding)),
		CommonNeighbors:    commonNeighborCount(s, a, c),
	}
	for _, p := range byBridges {
		result.Paths = append(result.Paths, p)
	}
	sort.SliceStable(result.Paths, func(i, j int) bool {
		if result.Paths[i].Score != result.Paths[j].Score {
			return result.Paths[i].Score > result.Paths[j].Score
		}
		return len(result.Paths[i].Bridges) < len(result.Paths[j].Bridges)
	})
	if len(result.Paths) > maxPaths {
		result.Paths = result.Paths[:maxPaths]
	}
	return result, nil
}

func bridgeKey(s *Snapshot, bridges []int) string {
	ids := make([]string, len(bridges))
	for i, b := range bridges {
		ids[i] = s.Nodes[b].ID.String()
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}
