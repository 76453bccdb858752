package services

import (
	_ "embed"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/data/repos"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

//go:embed config/synonyms.yaml
var synonymsYAML []byte

var (
	synonymOnce  sync.Once
	synonymTable map[string]string
)

func synonyms() map[string]string {
	synonymOnce.Do(func() {
		synonymTable = map[string]string{}
		_ = yaml.Unmarshal(synonymsYAML, &synonymTable)
	})
	return synonymTable
}

// SeedSubjectLabels returns the distinct canonical labels of the synonym
// table, sorted. The ingest pipeline uses them as the zero-shot label set
// when a resource arrives with no subjects of its own.
func SeedSubjectLabels() []string {
	seen := map[string]struct{}{}
	for _, canon := range synonyms() {
		seen[titleCase(canon)] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for label := range seen {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// AuthorityService maintains the canonical subject vocabulary. Equivalent
// surface forms always resolve to one authority entry.
type AuthorityService struct {
	log      *logger.Logger
	subjects repos.SubjectRepo
}

func NewAuthorityService(log *logger.Logger, subjects repos.SubjectRepo) *AuthorityService {
	return &AuthorityService{
		log:      log.With("service", "AuthorityService"),
		subjects: subjects,
	}
}

// Canonicalize maps a raw subject string to its canonical form: trim,
// collapse whitespace, case-fold, resolve synonyms, then title-case for
// display. Idempotent.
func Canonicalize(raw string) string {
	s := strings.Join(strings.Fields(raw), " ")
	s = strings.ToLower(s)
	if canon, ok := synonyms()[s]; ok {
		s = canon
	}
	return titleCase(s)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Resolve returns the authority subject for a raw label, creating the entry
// on first sight. Lookup order: canonical match, variant match, create.
// Usage count increments on every resolution; the raw form is recorded as a
// variant when it differs from the canonical.
func (s *AuthorityService) Resolve(dbc dbctx.Context, raw string) (*types.AuthoritySubject, error) {
	canonical := Canonicalize(raw)
	if canonical == "" {
		return nil, nil
	}
	variant := strings.Join(strings.Fields(strings.ToLower(raw)), " ")

	subject, err := s.subjects.GetByCanonical(dbc, canonical)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		subject, err = s.subjects.GetByVariant(dbc, variant)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		subject = &types.AuthoritySubject{CanonicalForm: canonical}
		if createErr := s.subjects.Create(dbc, subject); createErr != nil {
			// Lost a create race; the row exists now.
			subject, err = s.subjects.GetByCanonical(dbc, canonical)
			if err != nil {
				return nil, createErr
			}
		} else {
			err = nil
		}
	}
	if err != nil {
		return nil, err
	}

	if variant != "" && variant != strings.ToLower(subject.CanonicalForm) {
		if err := s.subjects.AddVariant(dbc, subject.ID, variant); err != nil {
			s.log.Warn("variant record failed", "variant", variant, "error", err)
		}
	}
	if err := s.subjects.IncrementUsage(dbc, subject.ID, 1); err != nil {
		s.log.Warn("usage increment failed", "subject_id", subject.ID, "error", err)
	}
	return subject, nil
}

// ResolveAll canonicalizes a batch of raw labels, links each to the
// resource, and returns the deduplicated canonical forms in first-seen
// order.
func (s *AuthorityService) ResolveAll(dbc dbctx.Context, resourceID uuid.UUID, raws []string) ([]string, error) {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		subject, err := s.Resolve(dbc, raw)
		if err != nil {
			return nil, err
		}
		if subject == nil {
			continue
		}
		if _, dup := seen[subject.CanonicalForm]; dup {
			continue
		}
		seen[subject.CanonicalForm] = struct{}{}
		out = append(out, subject.CanonicalForm)
		if resourceID != uuid.Nil {
			if err := s.subjects.LinkResource(dbc, resourceID, subject.ID); err != nil {
				s.log.Warn("subject link failed", "resource_id", resourceID, "subject_id", subject.ID, "error", err)
			}
		}
	}
	return out, nil
}
