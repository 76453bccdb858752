// Package ai wraps model backends behind a degradable enrichment service.
// Every operation returns a usable result: when the backend is down the
// service answers from deterministic fallbacks and flags the output as
// degraded so callers can record partial enrichment.
package ai

import (
	"container/list"
	"context"
	"crypto/sha256"
	"strings"
	"sync"
	"time"

	"github.com/neoalexandria/backend/internal/platform/apierr"
	"github.com/neoalexandria/backend/internal/platform/envutil"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

const initRetryTTL = 5 * time.Minute

type Options struct {
	// Backend selects the engine: "openai" or "stub".
	Backend string
	// EmbedDim is the fallback/stub vector width.
	EmbedDim int
	// CacheSize bounds the embedding LRU. Zero disables caching.
	CacheSize int
}

func OptionsFromEnv() Options {
	return Options{
		Backend:   envutil.Str("AI_BACKEND", "openai"),
		EmbedDim:  envutil.Int("EMBEDDING_DIMENSION", 768),
		CacheSize: envutil.Int("EMBEDDING_CACHE_SIZE", 1000),
	}
}

type Status struct {
	Backend   string `json:"backend"`
	Ready     bool   `json:"ready"`
	Degraded  bool   `json:"degraded"`
	LastError string `json:"last_error,omitempty"`
}

// Service lazily initializes its engine on first use. A failed init is
// sticky for a TTL so a misconfigured provider doesn't add per-request
// connection attempts to every ingest.
type Service struct {
	log  *logger.Logger
	opts Options

	newEngine func() (Engine, error)

	mu      sync.Mutex
	engine  Engine
	initErr error
	retryAt time.Time

	cache *embedCache
}

func NewService(log *logger.Logger, opts Options) *Service {
	s := &Service{
		log:   log.With("service", "AIService"),
		opts:  opts,
		cache: newEmbedCache(opts.CacheSize),
	}
	s.newEngine = func() (Engine, error) {
		switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
		case "stub":
			return newStubEngine(opts.EmbedDim), nil
		default:
			return newOpenAIEngine(log)
		}
	}
	return s
}

func (s *Service) acquire() (Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine != nil {
		return s.engine, nil
	}
	if s.initErr != nil && time.Now().Before(s.retryAt) {
		return nil, s.initErr
	}

	eng, err := s.newEngine()
	if err != nil {
		s.initErr = apierr.New(apierr.KindModelUnavailable, err)
		s.retryAt = time.Now().Add(initRetryTTL)
		s.log.Warn("model backend init failed; degraded until retry",
			"backend", s.opts.Backend, "retry_at", s.retryAt, "error", err)
		return nil, s.initErr
	}
	s.engine = eng
	s.initErr = nil
	s.log.Info("model backend ready", "backend", eng.Name())
	return eng, nil
}

func (s *Service) Health() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Backend: s.opts.Backend}
	switch {
	case s.engine != nil:
		st.Ready = true
		st.Backend = s.engine.Name()
	case s.initErr != nil:
		st.Degraded = true
		st.LastError = s.initErr.Error()
	}
	return st
}

// Embed returns an embedding for text and whether it came from the
// deterministic fallback rather than the model backend.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, bool) {
	key := sha256.Sum256([]byte(text))
	if vec, ok := s.cache.get(key); ok {
		return vec, false
	}

	eng, err := s.acquire()
	if err == nil {
		vecs, embErr := eng.Embed(ctx, []string{text})
		if embErr == nil && len(vecs) == 1 && len(vecs[0]) > 0 {
			s.cache.put(key, vecs[0])
			return vecs[0], false
		}
		err = embErr
	}
	if err != nil {
		s.log.Warn("embedding fell back to hashed bag-of-words", "error", err)
	}
	return hashedBagOfWords(text, s.opts.EmbedDim), true
}

// EmbedQuery is Embed without fallback: search callers prefer an explicit
// dependency_degraded error over mixing vector spaces mid-query when the
// library embeddings came from the real backend.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := sha256.Sum256([]byte(text))
	if vec, ok := s.cache.get(key); ok {
		return vec, nil
	}
	eng, err := s.acquire()
	if err != nil {
		return nil, err
	}
	vecs, err := eng.Embed(ctx, []string{text})
	if err != nil {
		return nil, apierr.New(apierr.KindDependencyDegraded, err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, apierr.Newf(apierr.KindDependencyDegraded, "backend returned no embedding")
	}
	s.cache.put(key, vecs[0])
	return vecs[0], nil
}

// Summarize returns an abstract for the document and whether it came from
// the first-sentences fallback.
func (s *Service) Summarize(ctx context.Context, title, text string) (string, bool) {
	eng, err := s.acquire()
	if err == nil {
		out, sumErr := eng.Summarize(ctx, title, text)
		if sumErr == nil && strings.TrimSpace(out) != "" {
			return out, false
		}
		err = sumErr
	}
	if err != nil {
		s.log.Warn("summary fell back to leading sentences", "error", err)
	}
	return firstSentences(text, 3), true
}

// Classify scores each label in [0,1]. On backend failure it returns an
// empty map and degraded=true; classification has no meaningful offline
// approximation beyond the rule table callers already apply.
func (s *Service) Classify(ctx context.Context, text string, labels []string) (map[string]float64, bool) {
	if len(labels) == 0 {
		return map[string]float64{}, false
	}
	eng, err := s.acquire()
	if err == nil {
		scores, clsErr := eng.Classify(ctx, text, labels)
		if clsErr == nil {
			s.log.Debug("classified", "labels", sortedLabels(scores))
			return scores, false
		}
		err = clsErr
	}
	s.log.Warn("classification unavailable", "error", err)
	return map[string]float64{}, true
}

// ---------------- embedding LRU ----------------

type embedCache struct {
	mu    sync.Mutex
	max   int
	order *list.List
	items map[[32]byte]*list.Element
}

type embedEntry struct {
	key [32]byte
	vec []float32
}

func newEmbedCache(max int) *embedCache {
	return &embedCache{max: max, order: list.New(), items: map[[32]byte]*list.Element{}}
}

func (c *embedCache) get(key [32]byte) ([]float32, bool) {
	if c.max <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*embedEntry).vec, true
}

func (c *embedCache) put(key [32]byte, vec []float32) {
	if c.max <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*embedEntry).vec = vec
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&embedEntry{key: key, vec: vec})
	for len(c.items) > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*embedEntry).key)
	}
}
