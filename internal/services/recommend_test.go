package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/clients/websearch"
)

type fakeProvider struct {
	results map[string][]websearch.Result
	calls   []string
	err     error
}

func (p *fakeProvider) Search(_ context.Context, query string, _ int) ([]websearch.Result, error) {
	p.calls = append(p.calls, query)
	if p.err != nil {
		return nil, p.err
	}
	return p.results[query], nil
}

func newRecommendService(d *testDeps, provider websearch.Provider) *RecommendService {
	return NewRecommendService(d.log, d.ai, d.set.Resources, d.set.Subjects, provider, RecommendOptions{
		ProfileSize:  10,
		KeywordCount: 2,
	})
}

// seedLibrary inserts ready resources with embeddings plus linked authority
// subjects so both the profile vector and the seed keywords exist.
func seedLibrary(t *testing.T, d *testDeps, subject string, n int) {
	t.Helper()
	authority := NewAuthorityService(d.log, d.set.Subjects)
	for i := 0; i < n; i++ {
		res := addReadyResource(t, d,
			withTitle(fmt.Sprintf("%s volume %d", subject, i)),
			withQuality(0.8),
		)
		vec, degraded := d.ai.Embed(d.dbc.Ctx, subject)
		require.False(t, degraded)
		require.NoError(t, d.set.Resources.UpdateFields(d.dbc, res.ID, map[string]interface{}{
			"embedding": types.EncodeVector(vec),
		}))
		_, err := authority.ResolveAll(d.dbc, res.ID, []string{subject})
		require.NoError(t, err)
	}
}

func TestRecommendInsufficientLibrary(t *testing.T) {
	d := newTestDeps(t)
	provider := &fakeProvider{}
	svc := newRecommendService(d, provider)

	result, err := svc.Recommend(d.dbc, 10)
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Equal(t, ReasonInsufficientLibrary, result.Reason)
	assert.Empty(t, provider.calls)
}

func TestRecommendRanksByProfileSimilarity(t *testing.T) {
	d := newTestDeps(t)
	seedLibrary(t, d, "machine learning", 4)

	provider := &fakeProvider{results: map[string][]websearch.Result{
		"Machine Learning": {
			{Title: "machine learning overview", URL: "https://candidates.example.org/ml", Snippet: "machine learning"},
			{Title: "gardening tips", URL: "https://candidates.example.org/garden", Snippet: "soil and compost"},
		},
	}}
	svc := newRecommendService(d, provider)

	result, err := svc.Recommend(d.dbc, 10)
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "https://candidates.example.org/ml", result.Items[0].URL)
	assert.Greater(t, result.Items[0].Score, result.Items[1].Score)
	assert.Contains(t, result.Items[0].Reason, "Machine Learning")
}

func TestRecommendExcludesLibraryMembers(t *testing.T) {
	d := newTestDeps(t)
	seedLibrary(t, d, "machine learning", 4)

	held := addReadyResource(t, d, withTitle("already ingested"))

	provider := &fakeProvider{results: map[string][]websearch.Result{
		"Machine Learning": {
			{Title: "already ingested", URL: held.SourceURL, Snippet: ""},
			{Title: "new find", URL: "https://candidates.example.org/new", Snippet: ""},
		},
	}}
	svc := newRecommendService(d, provider)

	result, err := svc.Recommend(d.dbc, 10)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "https://candidates.example.org/new", result.Items[0].URL)
}

func TestRecommendProviderFailureIsPartial(t *testing.T) {
	d := newTestDeps(t)
	seedLibrary(t, d, "machine learning", 4)

	provider := &fakeProvider{err: fmt.Errorf("provider down")}
	svc := newRecommendService(d, provider)

	result, err := svc.Recommend(d.dbc, 10)
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.True(t, result.Partial)
}
