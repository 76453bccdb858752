package services

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/neoalexandria/backend/internal/data/repos"
	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/events"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/pkg/urlnorm"
	"github.com/neoalexandria/backend/internal/platform/apierr"
	"github.com/neoalexandria/backend/internal/platform/envutil"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

// ResourceService owns the resource lifecycle outside the ingest pipeline:
// submission, curator patches, deletion with cascades.
type ResourceService struct {
	log        *logger.Logger
	repos      repos.Set
	bus        events.Bus
	maxRetries int
}

func NewResourceService(log *logger.Logger, set repos.Set, bus events.Bus) *ResourceService {
	return &ResourceService{
		log:        log.With("service", "ResourceService"),
		repos:      set,
		bus:        bus,
		maxRetries: envutil.Int("INGESTION_MAX_RETRIES", 5),
	}
}

// Submit creates a pending resource for a URL and enqueues its ingest job.
// Idempotent: an existing resource with the same canonical URL is returned
// as-is with no new job.
func (s *ResourceService) Submit(dbc dbctx.Context, rawURL string) (*types.Resource, error) {
	canonical := urlnorm.Canonical(rawURL)
	if canonical == "" || !strings.Contains(canonical, "://") {
		return nil, apierr.Newf(apierr.KindValidation, "invalid url %q", rawURL)
	}

	existing, err := s.repos.Resources.GetBySourceURL(dbc, canonical)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	res := &types.Resource{
		ID:              uuid.New(),
		SourceURL:       canonical,
		IngestionStatus: types.IngestionPending,
	}
	if err := s.repos.Resources.Create(dbc, res); err != nil {
		// Concurrent submit of the same URL: surface the winner.
		if winner, getErr := s.repos.Resources.GetBySourceURL(dbc, canonical); getErr == nil {
			return winner, nil
		}
		return nil, apierr.New(apierr.KindConflict, err)
	}

	_, err = s.repos.JobRuns.Enqueue(dbc, types.JobIngestResource, map[string]any{
		"resource_id": res.ID.String(),
	}, time.Now().UTC(), s.maxRetries)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *ResourceService) Get(dbc dbctx.Context, id uuid.UUID) (*types.Resource, error) {
	res, err := s.repos.Resources.GetByID(dbc, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.Newf(apierr.KindNotFound, "resource %s not found", id)
	}
	return res, err
}

// Patchable fields for curator updates.
var patchableFields = map[string]struct{}{
	"title": {}, "description": {}, "language": {}, "summary": {},
	"creators": {}, "subjects": {}, "publication_year": {}, "doi": {},
	"journal": {}, "needs_review": {}, "review_reason": {},
}

// Patch applies a partial curator update. Touching subjects re-canonicalizes
// them; content fields are off limits outside re-ingestion.
func (s *ResourceService) Patch(dbc dbctx.Context, id uuid.UUID, patch map[string]any, authority *AuthorityService) (*types.Resource, error) {
	res, err := s.Get(dbc, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	for k, v := range patch {
		if _, ok := patchableFields[k]; !ok {
			return nil, apierr.Newf(apierr.KindValidation, "field %q is not patchable", k)
		}
		updates[k] = v
	}

	if rawSubjects, ok := patch["subjects"]; ok {
		labels, ok := toStringSlice(rawSubjects)
		if !ok {
			return nil, apierr.Newf(apierr.KindValidation, "subjects must be a string list")
		}
		if err := s.repos.Subjects.UnlinkResource(dbc, id); err != nil {
			return nil, err
		}
		canonical, err := authority.ResolveAll(dbc, id, labels)
		if err != nil {
			return nil, err
		}
		res.SetSubjects(canonical)
		updates["subjects"] = res.Subjects
	}
	if rawCreators, ok := patch["creators"]; ok {
		creators, ok := toStringSlice(rawCreators)
		if !ok {
			return nil, apierr.Newf(apierr.KindValidation, "creators must be a string list")
		}
		res.SetCreators(creators)
		updates["creators"] = res.Creators
	}

	if err := s.repos.Resources.UpdateFields(dbc, id, updates); err != nil {
		return nil, err
	}
	if s.bus != nil {
		s.bus.Emit(dbc.Ctx, events.ResourceUpdated, events.Payload{"resource_id": id.String()})
		s.bus.Emit(dbc.Ctx, events.GraphInvalidated, events.Payload{"reason": "resource_updated"})
	}
	return s.Get(dbc, id)
}

// Delete removes a resource and every row that depends on it: outbound
// citations, inbound resolution links, taxonomy assignments, subject links.
// Hypotheses referencing it are weak references and go stale instead.
func (s *ResourceService) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if _, err := s.Get(dbc, id); err != nil {
		return err
	}

	if err := s.repos.Citations.DeleteBySource(dbc, id); err != nil {
		return err
	}
	if err := s.repos.Citations.ClearTarget(dbc, id); err != nil {
		return err
	}
	if err := s.repos.Taxonomy.DeleteAssignmentsByResource(dbc, id); err != nil {
		return err
	}
	if err := s.repos.Subjects.UnlinkResource(dbc, id); err != nil {
		return err
	}
	if err := s.repos.Hypotheses.MarkStaleForResource(dbc, id); err != nil {
		return err
	}
	if err := s.repos.Resources.Delete(dbc, id); err != nil {
		return err
	}

	if s.bus != nil {
		s.bus.Emit(dbc.Ctx, events.ResourceDeleted, events.Payload{"resource_id": id.String()})
		s.bus.Emit(dbc.Ctx, events.GraphInvalidated, events.Payload{"reason": "resource_deleted"})
	}
	return nil
}

// Reingest resets a failed or stale resource and queues a fresh ingest job.
func (s *ResourceService) Reingest(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	res, err := s.Get(dbc, id)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Resources.UpdateFields(dbc, res.ID, map[string]interface{}{
		"ingestion_status": types.IngestionPending,
		"ingestion_error":  "",
	}); err != nil {
		return nil, err
	}
	return s.repos.JobRuns.Enqueue(dbc, types.JobIngestResource, map[string]any{
		"resource_id": res.ID.String(),
	}, time.Now().UTC(), s.maxRetries)
}

func toStringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			str, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	default:
		return nil, false
	}
}
