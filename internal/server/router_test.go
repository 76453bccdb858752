package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neoalexandria/backend/internal/ai"
	"github.com/neoalexandria/backend/internal/data/repos"
	"github.com/neoalexandria/backend/internal/data/repos/testutil"
	types "github.com/neoalexandria/backend/internal/domain"
	"github.com/neoalexandria/backend/internal/graph"
	"github.com/neoalexandria/backend/internal/http/handlers"
	"github.com/neoalexandria/backend/internal/pkg/dbctx"
	"github.com/neoalexandria/backend/internal/services"
)

type apiHarness struct {
	router *gin.Engine
	set    repos.Set
	dbc    dbctx.Context
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := testutil.Logger(t)
	gdb := testutil.DB(t)
	set := repos.NewSet(gdb, log)
	aiSvc := ai.NewService(log, ai.Options{Backend: "stub", EmbedDim: 64, CacheSize: 16})

	authority := services.NewAuthorityService(log, set.Subjects)
	citations := services.NewCitationService(log, set.Citations, set.Resources, nil)
	search := services.NewSearchService(log, aiSvc, set.Resources, nil)
	resources := services.NewResourceService(log, set, nil)
	graphSvc := graph.NewService(log, set, nil, graph.Options{})
	require.NoError(t, graphSvc.Rebuild(context.Background()))

	router := NewRouter(RouterConfig{
		HealthHandler:   handlers.NewHealthHandler(gdb, aiSvc),
		ResourceHandler: handlers.NewResourceHandler(log, resources, authority),
		SearchHandler:   handlers.NewSearchHandler(log, search),
		GraphHandler:    handlers.NewGraphHandler(log, graphSvc),
		CitationHandler: handlers.NewCitationHandler(log, citations, set.JobRuns),
	})
	return &apiHarness{router: router, set: set, dbc: dbctx.Context{Ctx: context.Background()}}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestResourceLifecycleRoutes(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(t, http.MethodPost, "/resources", gin.H{"url": "https://example.org/paper"})
	require.Equal(t, http.StatusAccepted, w.Code)
	created := decode(t, w)
	id := created["id"].(string)
	assert.Equal(t, types.IngestionPending, created["ingestion_status"])

	w = h.do(t, http.MethodGet, "/resources/"+id+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.IngestionPending, decode(t, w)["ingestion_status"])

	w = h.do(t, http.MethodPut, "/resources/"+id, gin.H{"title": "Renamed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Renamed", decode(t, w)["title"])

	w = h.do(t, http.MethodDelete, "/resources/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(t, http.MethodGet, "/resources/"+id, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	envelope := decode(t, w)
	errObj := envelope["error"].(map[string]any)
	assert.Equal(t, "not_found", errObj["kind"])
}

func TestResourceContentProjection(t *testing.T) {
	h := newAPIHarness(t)

	res := &types.Resource{
		ID:              uuid.New(),
		SourceURL:       "https://example.org/full",
		Title:           "with content",
		ContentText:     "the full body text",
		IngestionStatus: types.IngestionReady,
	}
	require.NoError(t, h.set.Resources.Create(h.dbc, res))

	w := h.do(t, http.MethodGet, "/resources/"+res.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, hasContent := decode(t, w)["content_text"]
	assert.False(t, hasContent)

	w = h.do(t, http.MethodGet, "/resources/"+res.ID.String()+"?include=content", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "the full body text", decode(t, w)["content_text"])
}

func TestValidationEnvelope(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(t, http.MethodGet, "/resources/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	errObj := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "validation_error", errObj["kind"])

	w = h.do(t, http.MethodPost, "/search", gin.H{"text": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchRoute(t *testing.T) {
	h := newAPIHarness(t)

	res := &types.Resource{
		ID:              uuid.New(),
		SourceURL:       "https://example.org/search-me",
		Title:           "Streaming dataflow engines",
		ContentText:     "Dataflow and stream processing engines.",
		IngestionStatus: types.IngestionReady,
	}
	require.NoError(t, h.set.Resources.Create(h.dbc, res))

	w := h.do(t, http.MethodPost, "/search", gin.H{"text": "dataflow"})
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.EqualValues(t, 1, out["total"])
}

func TestGraphRoutes(t *testing.T) {
	h := newAPIHarness(t)

	w := h.do(t, http.MethodGet, "/graph/overview", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/graph/resource/"+uuid.NewString()+"/neighbors", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodGet, "/graph/resource/"+uuid.NewString()+"/neighbors?hops=9", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPost, "/graph/discovery/closed", gin.H{"from_id": uuid.New(), "to_id": uuid.New()})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodPost, "/graph/hypotheses/"+uuid.NewString()+"/validate", gin.H{"notes": "missing is_valid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCitationRoutes(t *testing.T) {
	h := newAPIHarness(t)

	res := &types.Resource{
		ID:              uuid.New(),
		SourceURL:       "https://example.org/cites",
		Title:           "citing",
		IngestionStatus: types.IngestionReady,
	}
	require.NoError(t, h.set.Resources.Create(h.dbc, res))

	w := h.do(t, http.MethodGet, "/citations/resources/"+res.ID.String()+"/citations?direction=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodGet, "/citations/resources/"+res.ID.String()+"/citations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Contains(t, out, "outbound")
	assert.Contains(t, out, "inbound")

	w = h.do(t, http.MethodPost, "/citations/resolve", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.NotEmpty(t, decode(t, w)["task_id"])

	w = h.do(t, http.MethodPost, "/citations/importance/compute", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	pending, err := h.set.JobRuns.PendingCount(h.dbc, types.JobCitationResolve)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)
}

func TestHealthcheck(t *testing.T) {
	h := newAPIHarness(t)
	w := h.do(t, http.MethodGet, "/healthcheck", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, true, out["database"])
}
