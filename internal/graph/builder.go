package graph

import (
	"sort"
	"time"

	"github.com/neoalexandria/backend/internal/data/repos"
	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/pkg/vecmath"
	"github.com/neoalexandria/backend/internal/platform/envutil"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

// Fixed layer weights. content_similarity carries the raw cosine instead.
const (
	weightCitation          = 1.0
	weightSubjectSimilarity = 0.5
	weightTemporal          = 0.3

	subjectJaccardMin = 0.3
	temporalYearSpan  = 1
)

type BuildOptions struct {
	Alphas       Alphas
	VectorMinSim float64
}

func BuildOptionsFromEnv() BuildOptions {
	return BuildOptions{
		Alphas: Alphas{
			Vector:         envutil.Float("GRAPH_WEIGHT_VECTOR", 0.6),
			Tags:           envutil.Float("GRAPH_WEIGHT_TAGS", 0.3),
			Classification: envutil.Float("GRAPH_WEIGHT_CLASSIFICATION", 0.1),
		},
		VectorMinSim: envutil.Float("GRAPH_VECTOR_MIN_SIM_THRESHOLD", 0.85),
	}
}

type Builder struct {
	log  *logger.Logger
	set  repos.Set
	opts BuildOptions
}

func NewBuilder(log *logger.Logger, set repos.Set, opts BuildOptions) *Builder {
	if opts.Alphas.Vector <= 0 {
		opts.Alphas.Vector = 0.6
	}
	if opts.Alphas.Tags <= 0 {
		opts.Alphas.Tags = 0.3
	}
	if opts.Alphas.Classification <= 0 {
		opts.Alphas.Classification = 0.1
	}
	if opts.VectorMinSim <= 0 {
		opts.VectorMinSim = 0.85
	}
	return &Builder{log: log.With("component", "GraphBuilder"), set: set, opts: opts}
}

type pairKey struct{ a, b int }

func orderedPair(i, j int) pairKey {
	if i < j {
		return pairKey{i, j}
	}
	return pairKey{j, i}
}

// Build computes every edge layer from scratch and returns a fresh snapshot.
func (b *Builder) Build(dbc dbctx.Context) (*Snapshot, error) {
	start := time.Now()

	all, err := b.set.Resources.ListAll(dbc)
	if err != nil {
		return nil, err
	}

	snap := emptySnapshot()
	for _, r := range all {
		if r.IngestionStatus != types.IngestionReady {
			continue
		}
		snap.index[r.ID] = len(snap.Nodes)
		snap.Nodes = append(snap.Nodes, Node{
			ID:             r.ID,
			Title:          r.Title,
			QualityOverall: r.QualityOverall,
			Subjects:       r.SubjectList(),
			Creators:       r.CreatorList(),
			Classification: r.ClassificationCode,
			Embedding:      types.DecodeVector(r.Embedding),
			Year:           r.PublicationYear,
		})
	}

	layers := map[pairKey]map[string]float64{}
	addLayer := func(i, j int, edgeType string, w float64) {
		if i == j || w <= 0 {
			return
		}
		key := orderedPair(i, j)
		m, ok := layers[key]
		if !ok {
			m = map[string]float64{}
			layers[key] = m
		}
		// Parallel contributions within one layer keep the strongest.
		if w > m[edgeType] {
			m[edgeType] = w
		}
	}

	if err := b.citationLayer(dbc, snap, addLayer); err != nil {
		return nil, err
	}
	b.coAuthorshipLayer(snap, addLayer)
	b.subjectLayer(snap, addLayer)
	b.temporalLayer(snap, addLayer)
	b.contentLayer(snap, addLayer)

	overrides, err := b.overrideIndex(dbc, snap)
	if err != nil {
		return nil, err
	}

	snap.adj = make([][]int, len(snap.Nodes))
	keys := make([]pairKey, 0, len(layers))
	for k := range layers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].a != keys[j].a {
			return keys[i].a < keys[j].a
		}
		return keys[i].b < keys[j].b
	})

	for _, key := range keys {
		layerSet := layers[key]
		keep := 1.0
		for t, w := range layerSet {
			if delta, ok := overrides[overrideKey{key, t}]; ok {
				w *= delta
			}
			if w > 1 {
				w = 1
			}
			layerSet[t] = w
			keep *= 1 - w*b.opts.Alphas.For(t)
		}
		edge := Edge{A: key.a, B: key.b, Layers: layerSet, Fused: 1 - keep}
		snap.Edges = append(snap.Edges, edge)
		ei := len(snap.Edges) - 1
		snap.adj[key.a] = append(snap.adj[key.a], ei)
		snap.adj[key.b] = append(snap.adj[key.b], ei)
	}

	snap.BuiltAt = time.Now().UTC()
	b.log.Info("graph snapshot built",
		"nodes", len(snap.Nodes), "edges", len(snap.Edges),
		"took_ms", time.Since(start).Milliseconds())
	return snap, nil
}

func (b *Builder) citationLayer(dbc dbctx.Context, snap *Snapshot, add func(i, j int, t string, w float64)) error {
	resolved, err := b.set.Citations.ListResolved(dbc)
	if err != nil {
		return err
	}
	for _, c := range resolved {
		if c.TargetResourceID == nil {
			continue
		}
		si, ok := snap.index[c.SourceResourceID]
		if !ok {
			continue
		}
		ti, ok := snap.index[*c.TargetResourceID]
		if !ok {
			continue
		}
		add(si, ti, types.EdgeCitation, weightCitation)
	}
	return nil
}

// coAuthorshipLayer links resources sharing creators; more prolific authors
// contribute weaker edges (1/n over the author's resource count).
func (b *Builder) coAuthorshipLayer(snap *Snapshot, add func(i, j int, t string, w float64)) {
	byCreator := map[string][]int{}
	for i, n := range snap.Nodes {
		for _, c := range n.Creators {
			byCreator[c] = append(byCreator[c], i)
		}
	}
	for _, members := range byCreator {
		if len(members) < 2 {
			continue
		}
		w := 1 / float64(len(members))
		for x := 0; x < len(members); x++ {
			for y := x + 1; y < len(members); y++ {
				add(members[x], members[y], types.EdgeCoAuthorship, w)
			}
		}
	}
}

// subjectLayer links pairs whose canonical subject sets overlap enough.
// Candidate pairs come from an inverted index so disjoint resources are
// never compared.
func (b *Builder) subjectLayer(snap *Snapshot, add func(i, j int, t string, w float64)) {
	bySubject := map[string][]int{}
	sets := make([]map[string]struct{}, len(snap.Nodes))
	for i, n := range snap.Nodes {
		sets[i] = make(map[string]struct{}, len(n.Subjects))
		for _, s := range n.Subjects {
			bySubject[s] = append(bySubject[s], i)
			sets[i][s] = struct{}{}
		}
	}
	seen := map[pairKey]struct{}{}
	for _, members := range bySubject {
		for x := 0; x < len(members); x++ {
			for y := x + 1; y < len(members); y++ {
				key := orderedPair(members[x], members[y])
				if _, done := seen[key]; done {
					continue
				}
				seen[key] = struct{}{}
				if vecmath.Jaccard(sets[key.a], sets[key.b]) >= subjectJaccardMin {
					add(key.a, key.b, types.EdgeSubjectSimilarity, weightSubjectSimilarity)
				}
			}
		}
	}
}

func (b *Builder) temporalLayer(snap *Snapshot, add func(i, j int, t string, w float64)) {
	byYear := map[int][]int{}
	for i, n := range snap.Nodes {
		if n.Year != nil {
			byYear[*n.Year] = append(byYear[*n.Year], i)
		}
	}
	for year, members := range byYear {
		// Same year plus adjacent years within the span.
		for off := 0; off <= temporalYearSpan; off++ {
			peers := members
			if off > 0 {
				peers = byYear[year+off]
			}
			for _, i := range members {
				for _, j := range peers {
					if off == 0 && j <= i {
						continue
					}
					add(i, j, types.EdgeTemporal, weightTemporal)
				}
			}
		}
	}
}

func (b *Builder) contentLayer(snap *Snapshot, add func(i, j int, t string, w float64)) {
	for i := 0; i < len(snap.Nodes); i++ {
		if snap.Nodes[i].Embedding == nil {
			continue
		}
		for j := i + 1; j < len(snap.Nodes); j++ {
			if snap.Nodes[j].Embedding == nil {
				continue
			}
			sim := vecmath.Cosine(snap.Nodes[i].Embedding, snap.Nodes[j].Embedding)
			if sim >= b.opts.VectorMinSim {
				add(i, j, types.EdgeContentSimilarity, sim)
			}
		}
	}
}

type overrideKey struct {
	pair pairKey
	typ  string
}

func (b *Builder) overrideIndex(dbc dbctx.Context, snap *Snapshot) (map[overrideKey]float64, error) {
	rows, err := b.set.Overrides.All(dbc)
	if err != nil {
		return nil, err
	}
	out := make(map[overrideKey]float64, len(rows))
	for _, o := range rows {
		si, ok := snap.index[o.SourceID]
		if !ok {
			continue
		}
		ti, ok := snap.index[o.TargetID]
		if !ok {
			continue
		}
		out[overrideKey{orderedPair(si, ti), o.EdgeType}] = o.Delta
	}
	return out, nil
}
