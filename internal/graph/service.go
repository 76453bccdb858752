package graph

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/neoalexandria/backend/internal/data/repos"
	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/events"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/platform/apierr"
	"github.com/neoalexandria/backend/internal/platform/envutil"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

// Validation feedback factors applied to every layer of the primary path.
const (
	validFeedbackFactor   = 1.10
	invalidFeedbackFactor = 0.95
)

type Options struct {
	Build            BuildOptions
	DefaultNeighbors int
	OverviewMaxEdges int
	MinPlausibility  float64
	RebuildDebounce  time.Duration
}

func OptionsFromEnv() Options {
	return Options{
		Build:            BuildOptionsFromEnv(),
		DefaultNeighbors: envutil.Int("DEFAULT_GRAPH_NEIGHBORS", 7),
		OverviewMaxEdges: envutil.Int("GRAPH_OVERVIEW_MAX_EDGES", 50),
		MinPlausibility:  envutil.Float("GRAPH_MIN_PLAUSIBILITY", 0.5),
		RebuildDebounce:  envutil.Duration("GRAPH_REBUILD_DEBOUNCE", 2*time.Second),
	}
}

// Service owns the current snapshot and the single-writer rebuild loop.
// Reads are lock-free through an atomic pointer; at most one rebuild runs at
// a time, and bursts of invalidations collapse into one build.
type Service struct {
	log     *logger.Logger
	set     repos.Set
	bus     events.Bus
	builder *Builder
	opts    Options

	snap  atomic.Pointer[Snapshot]
	dirty chan struct{}

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewService(log *logger.Logger, set repos.Set, bus events.Bus, opts Options) *Service {
	if opts.DefaultNeighbors <= 0 {
		opts.DefaultNeighbors = 7
	}
	if opts.OverviewMaxEdges <= 0 {
		opts.OverviewMaxEdges = 50
	}
	if opts.MinPlausibility <= 0 {
		opts.MinPlausibility = 0.5
	}
	if opts.RebuildDebounce <= 0 {
		opts.RebuildDebounce = 2 * time.Second
	}
	s := &Service{
		log:     log.With("service", "GraphService"),
		set:     set,
		bus:     bus,
		builder: NewBuilder(log, set, opts.Build),
		opts:    opts,
		dirty:   make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.snap.Store(emptySnapshot())

	if bus != nil {
		invalidate := func(ctx context.Context, _ events.Payload) { s.Invalidate() }
		bus.SubscribeAsync(events.GraphInvalidated, invalidate)
		bus.SubscribeAsync(events.ResourceReady, invalidate)
		bus.SubscribeAsync(events.CitationResolved, invalidate)
	}
	return s
}

// Start launches the rebuild worker and performs the initial build.
func (s *Service) Start(ctx context.Context) error {
	if err := s.Rebuild(ctx); err != nil {
		return err
	}
	go s.rebuildLoop()
	return nil
}

func (s *Service) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// Current returns the live snapshot. Never nil.
func (s *Service) Current() *Snapshot {
	return s.snap.Load()
}

// Invalidate schedules a rebuild. Duplicate signals while one is pending are
// dropped.
func (s *Service) Invalidate() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// Rebuild builds synchronously and swaps the snapshot.
func (s *Service) Rebuild(ctx context.Context) error {
	snap, err := s.builder.Build(dbctx.Context{Ctx: ctx})
	if err != nil {
		return err
	}
	s.snap.Store(snap)
	return nil
}

func (s *Service) rebuildLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-s.dirty:
		}
		// Debounce: let a burst of invalidations settle into one build.
		timer := time.NewTimer(s.opts.RebuildDebounce)
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
		}
		select {
		case <-s.dirty:
		default:
		}
		if err := s.Rebuild(context.Background()); err != nil {
			s.log.Error("graph rebuild failed", "error", err)
		}
	}
}

func (s *Service) Neighbors(req NeighborsRequest) ([]Neighbor, error) {
	if req.Limit <= 0 {
		req.Limit = s.opts.DefaultNeighbors
	}
	return Neighbors(s.Current(), s.opts.Build.Alphas, req)
}

func (s *Service) Overview(limitEdges int) *OverviewResult {
	if limitEdges <= 0 || limitEdges > s.opts.OverviewMaxEdges {
		limitEdges = s.opts.OverviewMaxEdges
	}
	return Overview(s.Current(), limitEdges)
}

// DiscoverOpen runs open discovery from an anchor and persists each
// candidate as a hypothesis row.
func (s *Service) DiscoverOpen(dbc dbctx.Context, anchor uuid.UUID, limit int) ([]*types.DiscoveryHypothesis, error) {
	candidates, err := OpenDiscovery(s.Current(), s.opts.Build.Alphas, anchor, limit, s.opts.MinPlausibility)
	if err != nil {
		return nil, err
	}
	out := make([]*types.DiscoveryHypothesis, 0, len(candidates))
	for _, cand := range candidates {
		h := &types.DiscoveryHypothesis{
			AResourceID:        anchor,
			CResourceID:        cand.CandidateID,
			Type:               types.DiscoveryOpen,
			PathStrength:       cand.PathStrength,
			SemanticSimilarity: cand.SemanticSimilarity,
			CommonNeighbors:    cand.CommonNeighbors,
			PlausibilityScore:  cand.Plausibility,
		}
		h.SetBridgeIDs(cand.Bridges)
		if err := s.set.Hypotheses.Create(dbc, h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// DiscoverClosed scores bridge paths between two endpoints and persists the
// best one as a hypothesis. No path at all is a valid, empty result.
func (s *Service) DiscoverClosed(dbc dbctx.Context, from, to uuid.UUID, maxPaths int) (*ClosedResult, *types.DiscoveryHypothesis, error) {
	result, err := ClosedDiscovery(s.Current(), s.opts.Build.Alphas, from, to, maxPaths)
	if err != nil {
		return nil, nil, err
	}
	if len(result.Paths) == 0 {
		return result, nil, nil
	}
	best := result.Paths[0]
	plaus := plausPathWeight*best.Score +
		plausCommonWeight*minf(1, float64(result.CommonNeighbors)/commonNeighborCap) +
		plausSemanticWeight*result.SemanticSimilarity
	h := &types.DiscoveryHypothesis{
		AResourceID:        from,
		CResourceID:        to,
		Type:               types.DiscoveryClosed,
		PathStrength:       best.Score,
		SemanticSimilarity: result.SemanticSimilarity,
		CommonNeighbors:    result.CommonNeighbors,
		PlausibilityScore:  plaus,
	}
	h.SetBridgeIDs(best.Bridges)
	if err := s.set.Hypotheses.Create(dbc, h); err != nil {
		return nil, nil, err
	}
	return result, h, nil
}

// Validate records curator feedback on a hypothesis and nudges the weight of
// every edge on its primary path: up when confirmed, down when rejected.
// The adjusted weights land on the next snapshot rebuild.
func (s *Service) Validate(dbc dbctx.Context, id uuid.UUID, valid bool, notes string) (*types.DiscoveryHypothesis, error) {
	h, err := s.set.Hypotheses.GetByID(dbc, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.Newf(apierr.KindNotFound, "hypothesis %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if h.Stale {
		return nil, apierr.Newf(apierr.KindConflict, "hypothesis %s is stale and cannot be validated", id)
	}

	factor := invalidFeedbackFactor
	if valid {
		factor = validFeedbackFactor
	}
	snap := s.Current()
	path := append([]uuid.UUID{h.AResourceID}, h.BridgeIDs()...)
	path = append(path, h.CResourceID)
	for i := 0; i+1 < len(path); i++ {
		ui, ok := snap.NodeIndex(path[i])
		if !ok {
			continue
		}
		vi, ok := snap.NodeIndex(path[i+1])
		if !ok {
			continue
		}
		edge, ok := snap.EdgeBetween(ui, vi)
		if !ok {
			continue
		}
		for edgeType := range edge.Layers {
			if err := s.set.Overrides.MultiplyDelta(dbc, path[i], path[i+1], edgeType, factor); err != nil {
				return nil, err
			}
		}
	}

	if err := s.set.Hypotheses.UpdateFields(dbc, id, map[string]interface{}{
		"is_validated": valid,
		"notes":        notes,
	}); err != nil {
		return nil, err
	}
	if s.bus != nil {
		s.bus.Emit(dbc.Ctx, events.GraphValidated, events.Payload{
			"hypothesis_id": id.String(),
			"valid":         valid,
		})
		s.bus.Emit(dbc.Ctx, events.GraphInvalidated, events.Payload{"reason": "hypothesis_validated"})
	}
	return s.set.Hypotheses.GetByID(dbc, id)
}

// Hypotheses lists stored hypotheses anchored at a resource.
func (s *Service) Hypotheses(dbc dbctx.Context, anchor uuid.UUID, limit int) ([]*types.DiscoveryHypothesis, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.set.Hypotheses.ListByAnchor(dbc, anchor, limit)
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
