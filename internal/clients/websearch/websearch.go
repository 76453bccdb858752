// Package websearch wraps an external search provider used to source
// recommendation candidates. Results are cached briefly so repeated
// recommendation calls during a session don't hammer the provider.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/neoalexandria/backend/internal/pkg/httpx"
	"github.com/neoalexandria/backend/internal/platform/apierr"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

const cacheTTL = 5 * time.Minute

type cacheEntry struct {
	results []Result
	expires time.Time
}

// Client fronts an HTTP search API with retries plus a TTL result cache.
type Client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewClient(log *logger.Logger) (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("WEBSEARCH_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.duckduckgo.com"
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Client{
		log:        log.With("service", "WebSearchClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(os.Getenv("WEBSEARCH_API_KEY")),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      map[string]cacheEntry{},
	}, nil
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Snippet string `json:"snippet"`
	} `json:"results"`
	// DuckDuckGo instant-answer shape.
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apierr.Newf(apierr.KindValidation, "empty search query")
	}
	if limit <= 0 {
		limit = 10
	}

	key := fmt.Sprintf("%s|%d", strings.ToLower(query), limit)
	c.mu.Lock()
	if entry, ok := c.cache[key]; ok && time.Now().Before(entry.expires) {
		results := entry.results
		c.mu.Unlock()
		return results, nil
	}
	c.mu.Unlock()

	results, err := c.search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{results: results, expires: time.Now().Add(cacheTTL)}
	c.mu.Unlock()
	return results, nil
}

func (c *Client) search(ctx context.Context, query string, limit int) ([]Result, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/?"+q.Encode(), nil)
	if err != nil {
		return nil, apierr.New(apierr.KindValidation, err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apierr.New(apierr.KindTimeout, err)
		}
		return nil, apierr.New(apierr.KindDependencyDegraded, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.New(apierr.KindDependencyDegraded, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := apierr.KindDependencyDegraded
		if !httpx.IsRetryableHTTPStatus(resp.StatusCode) {
			kind = apierr.KindValidation
		}
		return nil, apierr.Newf(kind, "search provider returned %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, apierr.New(apierr.KindDependencyDegraded, fmt.Errorf("search decode: %w", err))
	}

	out := make([]Result, 0, limit)
	for _, r := range sr.Results {
		if r.URL == "" {
			continue
		}
		out = append(out, Result{Title: r.Title, URL: r.URL, Snippet: r.Snippet})
		if len(out) >= limit {
			return out, nil
		}
	}
	for _, t := range sr.RelatedTopics {
		if t.FirstURL == "" {
			continue
		}
		out = append(out, Result{Title: t.Text, URL: t.FirstURL, Snippet: t.Text})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
