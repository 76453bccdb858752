package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neoalexandria/backend/internal/pkg/vecmath"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New("test")
	require.NoError(t, err)
	return l
}

type countingEngine struct {
	Engine
	embedCalls int
}

func (c *countingEngine) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.embedCalls++
	return c.Engine.Embed(ctx, texts)
}

func newTestService(t *testing.T, eng Engine) *Service {
	t.Helper()
	s := NewService(testLogger(t), Options{Backend: "stub", EmbedDim: 64, CacheSize: 8})
	s.newEngine = func() (Engine, error) { return eng, nil }
	return s
}

func TestEmbedDeterministicAndCached(t *testing.T) {
	eng := &countingEngine{Engine: newStubEngine(64)}
	s := newTestService(t, eng)
	ctx := context.Background()

	v1, degraded := s.Embed(ctx, "vector clocks in distributed systems")
	assert.False(t, degraded)
	v2, _ := s.Embed(ctx, "vector clocks in distributed systems")
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, eng.embedCalls, "second call should hit the cache")
	assert.InDelta(t, 1.0, vecmath.Norm(v1), 1e-5)
}

func TestEmbedFallbackOnBackendFailure(t *testing.T) {
	s := NewService(testLogger(t), Options{Backend: "stub", EmbedDim: 64, CacheSize: 8})
	s.newEngine = func() (Engine, error) { return nil, errors.New("no credentials") }

	vec, degraded := s.Embed(context.Background(), "fallback text")
	assert.True(t, degraded)
	assert.Len(t, vec, 64)
	assert.InDelta(t, 1.0, vecmath.Norm(vec), 1e-5)

	// Identical text yields an identical fallback vector.
	vec2, _ := s.Embed(context.Background(), "fallback text")
	assert.Equal(t, vec, vec2)
}

func TestInitFailureIsStickyUntilTTL(t *testing.T) {
	attempts := 0
	s := NewService(testLogger(t), Options{Backend: "stub", EmbedDim: 32, CacheSize: 0})
	s.newEngine = func() (Engine, error) {
		attempts++
		return nil, errors.New("down")
	}

	s.Embed(context.Background(), "a")
	s.Embed(context.Background(), "b")
	assert.Equal(t, 1, attempts, "second call within TTL must not re-dial")

	s.mu.Lock()
	s.retryAt = time.Now().Add(-time.Second)
	s.mu.Unlock()
	s.Embed(context.Background(), "c")
	assert.Equal(t, 2, attempts, "expired TTL allows another init attempt")
}

func TestEmbedQueryErrorsInsteadOfFallback(t *testing.T) {
	s := NewService(testLogger(t), Options{Backend: "stub", EmbedDim: 32, CacheSize: 0})
	s.newEngine = func() (Engine, error) { return nil, errors.New("down") }

	_, err := s.EmbedQuery(context.Background(), "query")
	require.Error(t, err)
}

func TestSummarizeFallback(t *testing.T) {
	s := NewService(testLogger(t), Options{Backend: "stub", EmbedDim: 32, CacheSize: 0})
	s.newEngine = func() (Engine, error) { return nil, errors.New("down") }

	text := "First point. Second point. Third point. Fourth point."
	sum, degraded := s.Summarize(context.Background(), "T", text)
	assert.True(t, degraded)
	assert.Equal(t, "First point. Second point. Third point.", sum)
}

func TestClassifyFallbackEmpty(t *testing.T) {
	s := NewService(testLogger(t), Options{Backend: "stub", EmbedDim: 32, CacheSize: 0})
	s.newEngine = func() (Engine, error) { return nil, errors.New("down") }

	scores, degraded := s.Classify(context.Background(), "text", []string{"math", "art"})
	assert.True(t, degraded)
	assert.Empty(t, scores)
}

func TestStubClassifyScoresOverlap(t *testing.T) {
	s := newTestService(t, newStubEngine(32))
	scores, degraded := s.Classify(context.Background(), "machine learning and neural networks for machine translation", []string{"machine learning", "poetry"})
	assert.False(t, degraded)
	assert.Greater(t, scores["machine learning"], scores["poetry"])
}

func TestFirstSentences(t *testing.T) {
	assert.Equal(t, "A. B.", firstSentences("A. B. C.", 2))
	assert.Equal(t, "Wait... done.", firstSentences("Wait... done. more", 2))
	assert.Equal(t, "no terminator at all", firstSentences("no terminator at all", 3))
	assert.Equal(t, "", firstSentences("   ", 3))
}

func TestEmbedCacheEviction(t *testing.T) {
	c := newEmbedCache(2)
	k1, k2, k3 := [32]byte{1}, [32]byte{2}, [32]byte{3}
	c.put(k1, []float32{1})
	c.put(k2, []float32{2})
	c.put(k3, []float32{3})
	_, ok := c.get(k1)
	assert.False(t, ok, "oldest entry evicted")
	_, ok = c.get(k3)
	assert.True(t, ok)
}
