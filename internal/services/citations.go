package services

import (
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/neoalexandria/backend/internal/data/repos"
	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/events"
	"github.com/neoalexandria/backend/internal/extract"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/pkg/urlnorm"
	"github.com/neoalexandria/backend/internal/pkg/vecmath"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

const (
	maxCitationsPerResource = 50
	contextSnippetMax       = 100
	anchorContextWindow     = 50
)

// PageRank parameters for citation importance.
const (
	pageRankDamping   = 0.85
	pageRankMaxIters  = 100
	pageRankThreshold = 1e-6
)

type CitationService struct {
	log       *logger.Logger
	citations repos.CitationRepo
	resources repos.ResourceRepo
	bus       events.Bus
}

func NewCitationService(log *logger.Logger, c repos.CitationRepo, r repos.ResourceRepo, bus events.Bus) *CitationService {
	return &CitationService{
		log:       log.With("service", "CitationService"),
		citations: c,
		resources: r,
		bus:       bus,
	}
}

// markdownLink matches [text](url).
var markdownLink = regexp.MustCompile(`\[([^\]]*)\]\((https?://[^)\s]+)\)`)

// ExtractFromResource parses citations out of raw bytes per detected format
// and persists them unresolved. Re-extraction is a no-op thanks to the
// (source, target_url, position) unique index.
func (s *CitationService) ExtractFromResource(dbc dbctx.Context, res *types.Resource, raw []byte) (int, error) {
	var found []*types.Citation
	switch res.Format {
	case types.FormatHTML:
		found = s.fromHTML(res, raw)
	case types.FormatMarkdown:
		found = s.fromMarkdown(res, string(raw))
	case types.FormatPDF:
		found = s.fromText(res, res.ContentText)
		found = s.appendLinkCitations(res, found, extract.PDFAnnotationURLs(raw))
	default:
		// Plain text: bare URL scan over extracted text.
		found = s.fromText(res, res.ContentText)
	}

	if len(found) > maxCitationsPerResource {
		found = found[:maxCitationsPerResource]
	}
	if err := s.citations.CreateBatch(dbc, found); err != nil {
		return 0, err
	}
	return len(found), nil
}

func (s *CitationService) fromHTML(res *types.Resource, raw []byte) []*types.Citation {
	anchors := extract.ExtractAnchors(raw, anchorContextWindow)
	out := make([]*types.Citation, 0, len(anchors))
	seen := map[string]struct{}{}
	for _, a := range anchors {
		target := urlnorm.Canonical(a.Href)
		if target == "" || target == res.SourceURL {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, &types.Citation{
			SourceResourceID: res.ID,
			TargetURL:        target,
			CitationType:     ClassifyCitationTarget(target),
			ContextSnippet:   snippet(a.Context),
			Position:         len(out),
		})
	}
	return out
}

func (s *CitationService) fromMarkdown(res *types.Resource, text string) []*types.Citation {
	out := make([]*types.Citation, 0)
	seen := map[string]struct{}{}
	add := func(rawURL, context string) {
		target := urlnorm.Canonical(rawURL)
		if target == "" || target == res.SourceURL {
			return
		}
		if _, dup := seen[target]; dup {
			return
		}
		seen[target] = struct{}{}
		out = append(out, &types.Citation{
			SourceResourceID: res.ID,
			TargetURL:        target,
			CitationType:     ClassifyCitationTarget(target),
			ContextSnippet:   snippet(context),
			Position:         len(out),
		})
	}
	for _, m := range markdownLink.FindAllStringSubmatchIndex(text, -1) {
		rawURL := text[m[4]:m[5]]
		add(rawURL, surrounding(text, m[0], m[1]))
	}
	for _, u := range extract.ScanURLs(text) {
		add(u, "")
	}
	return out
}

func (s *CitationService) fromText(res *types.Resource, text string) []*types.Citation {
	out := make([]*types.Citation, 0)
	seen := map[string]struct{}{}
	for _, u := range extract.ScanURLs(text) {
		target := urlnorm.Canonical(u)
		if target == "" || target == res.SourceURL {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		idx := strings.Index(text, u)
		context := ""
		if idx >= 0 {
			context = surrounding(text, idx, idx+len(u))
		}
		out = append(out, &types.Citation{
			SourceResourceID: res.ID,
			TargetURL:        target,
			CitationType:     ClassifyCitationTarget(target),
			ContextSnippet:   snippet(context),
			Position:         len(out),
		})
	}
	return out
}

// appendLinkCitations merges URL-only targets (PDF link annotations) into an
// extracted set, keeping dedupe and position numbering consistent.
func (s *CitationService) appendLinkCitations(res *types.Resource, found []*types.Citation, urls []string) []*types.Citation {
	seen := make(map[string]struct{}, len(found))
	for _, c := range found {
		seen[c.TargetURL] = struct{}{}
	}
	for _, u := range urls {
		target := urlnorm.Canonical(u)
		if target == "" || target == res.SourceURL {
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		found = append(found, &types.Citation{
			SourceResourceID: res.ID,
			TargetURL:        target,
			CitationType:     ClassifyCitationTarget(target),
			Position:         len(found),
		})
	}
	return found
}

func surrounding(text string, start, end int) string {
	lo := start - anchorContextWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + anchorContextWindow
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > contextSnippetMax {
		s = s[:contextSnippetMax]
	}
	return s
}

// ClassifyCitationTarget picks a citation type from domain/path heuristics.
func ClassifyCitationTarget(target string) string {
	host := urlnorm.Host(target)
	lower := strings.ToLower(target)
	switch {
	case host == "github.com" || host == "gitlab.com" || strings.Contains(lower, "/archive/"):
		return types.CitationTypeCode
	case host == "zenodo.org" || strings.Contains(lower, "dataset"):
		return types.CitationTypeDataset
	case host == "arxiv.org" || host == "doi.org" || strings.HasSuffix(host, ".doi.org"):
		return types.CitationTypeReference
	default:
		return types.CitationTypeGeneral
	}
}

// ResolveBatch matches unresolved citations against library resources by
// canonical URL. Returns the number resolved.
func (s *CitationService) ResolveBatch(dbc dbctx.Context, limit int) (int, error) {
	unresolved, err := s.citations.ListUnresolved(dbc, limit)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, c := range unresolved {
		target, err := s.resources.GetBySourceURL(dbc, urlnorm.Canonical(c.TargetURL))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return resolved, err
		}
		if target.ID == c.SourceResourceID {
			continue
		}
		if err := s.citations.Resolve(dbc, c.ID, target.ID); err != nil {
			return resolved, err
		}
		resolved++
		if s.bus != nil {
			s.bus.Emit(dbc.Ctx, events.CitationResolved, events.Payload{
				"citation_id": c.ID.String(),
				"source_id":   c.SourceResourceID.String(),
				"target_id":   target.ID.String(),
			})
		}
	}
	if resolved > 0 {
		s.log.Info("citation resolution pass", "resolved", resolved, "checked", len(unresolved))
	}
	return resolved, nil
}

// ComputeImportance runs PageRank over the resolved citation graph and
// stores each citation's importance as its source node's score, min-max
// scaled to [0,1].
func (s *CitationService) ComputeImportance(dbc dbctx.Context) (int, error) {
	resolved, err := s.citations.ListResolved(dbc)
	if err != nil {
		return 0, err
	}
	if len(resolved) == 0 {
		return 0, nil
	}

	// Node set: every resource participating in ≥1 resolved citation.
	index := map[uuid.UUID]int{}
	var ids []uuid.UUID
	nodeOf := func(id uuid.UUID) int {
		if i, ok := index[id]; ok {
			return i
		}
		i := len(ids)
		index[id] = i
		ids = append(ids, id)
		return i
	}
	edges := make([]citEdge, 0, len(resolved))
	for _, c := range resolved {
		edges = append(edges, citEdge{nodeOf(c.SourceResourceID), nodeOf(*c.TargetResourceID)})
	}

	ranks := pageRank(len(ids), edges, pageRankDamping, pageRankMaxIters, pageRankThreshold)
	scaled := vecmath.MinMax(ranks)

	updated := 0
	for _, c := range resolved {
		score := scaled[index[c.SourceResourceID]]
		if math.Abs(score-c.ImportanceScore) < 1e-12 {
			continue
		}
		if err := s.citations.UpdateImportance(dbc, c.ID, score); err != nil {
			return updated, err
		}
		updated++
	}
	if s.bus != nil && updated > 0 {
		s.bus.Emit(dbc.Ctx, events.CitationImportanceUpdated, events.Payload{"updated": updated})
	}
	s.log.Info("citation importance recomputed", "nodes", len(ids), "edges", len(edges), "updated", updated)
	return updated, nil
}

type citEdge struct{ from, to int }

// pageRank is standard power iteration with damping. Dangling mass is
// redistributed uniformly each round so the distribution keeps summing to 1.
func pageRank(n int, edges []citEdge, damping float64, maxIters int, threshold float64) []float64 {
	if n == 0 {
		return nil
	}
	outDeg := make([]int, n)
	for _, e := range edges {
		outDeg[e.from]++
	}

	rank := make([]float64, n)
	next := make([]float64, n)
	for i := range rank {
		rank[i] = 1 / float64(n)
	}

	for iter := 0; iter < maxIters; iter++ {
		base := (1 - damping) / float64(n)
		dangling := 0.0
		for i := 0; i < n; i++ {
			next[i] = base
			if outDeg[i] == 0 {
				dangling += rank[i]
			}
		}
		share := damping * dangling / float64(n)
		for i := range next {
			next[i] += share
		}
		for _, e := range edges {
			next[e.to] += damping * rank[e.from] / float64(outDeg[e.from])
		}

		delta := 0.0
		for i := range rank {
			delta += math.Abs(next[i] - rank[i])
		}
		rank, next = next, rank
		if delta < threshold {
			break
		}
	}
	return rank
}

// ListForResource returns citations in the requested direction with their
// resolution state, outbound ordered by position.
func (s *CitationService) ListForResource(dbc dbctx.Context, resourceID uuid.UUID, direction string) (outbound, inbound []*types.Citation, err error) {
	switch direction {
	case "outbound":
		outbound, err = s.citations.ListBySource(dbc, resourceID)
	case "inbound":
		inbound, err = s.citations.ListByTarget(dbc, resourceID)
	default:
		outbound, err = s.citations.ListBySource(dbc, resourceID)
		if err == nil {
			inbound, err = s.citations.ListByTarget(dbc, resourceID)
		}
	}
	if err != nil {
		return nil, nil, err
	}
	sort.SliceStable(inbound, func(i, j int) bool {
		return inbound[i].CreatedAt.Before(inbound[j].CreatedAt)
	})
	return outbound, inbound, nil
}
