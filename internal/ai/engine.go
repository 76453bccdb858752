package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neoalexandria/backend/internal/clients/openai"
	"github.com/neoalexandria/backend/internal/pkg/vecmath"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

// Engine is a concrete model backend. Engines may fail; the Service wraps
// them with caching and deterministic fallbacks.
type Engine interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Summarize(ctx context.Context, title, text string) (string, error)
	Classify(ctx context.Context, text string, labels []string) (map[string]float64, error)
}

// ---------------- OpenAI backend ----------------

type openaiEngine struct {
	client openai.Client
}

func newOpenAIEngine(log *logger.Logger) (Engine, error) {
	c, err := openai.NewClient(log)
	if err != nil {
		return nil, err
	}
	return &openaiEngine{client: c}, nil
}

func (e *openaiEngine) Name() string { return "openai" }

func (e *openaiEngine) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.client.Embed(ctx, texts)
}

const summarySystem = "You summarize archived documents. Reply with a 2-4 sentence abstract of the document. No preamble, no markdown."

func (e *openaiEngine) Summarize(ctx context.Context, title, text string) (string, error) {
	user := text
	if title != "" {
		user = "Title: " + title + "\n\n" + text
	}
	out, err := e.client.GenerateText(ctx, summarySystem, user)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

const classifySystem = "You assign relevance scores in [0,1] to candidate topic labels for a document. Score every label."

func (e *openaiEngine) Classify(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	if len(labels) == 0 {
		return map[string]float64{}, nil
	}

	props := map[string]any{}
	for _, l := range labels {
		props[l] = map[string]any{"type": "number", "minimum": 0, "maximum": 1}
	}
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"scores": map[string]any{
				"type":                 "object",
				"properties":           props,
				"required":             labels,
				"additionalProperties": false,
			},
		},
		"required":             []string{"scores"},
		"additionalProperties": false,
	}

	user := fmt.Sprintf("Labels: %s\n\nDocument:\n%s", strings.Join(labels, ", "), clipText(text, 8000))
	obj, err := e.client.GenerateJSON(ctx, classifySystem, user, "label_scores", schema)
	if err != nil {
		return nil, err
	}

	scores, _ := obj["scores"].(map[string]any)
	out := make(map[string]float64, len(labels))
	for _, l := range labels {
		if v, ok := scores[l].(float64); ok {
			out[l] = clamp01(v)
		}
	}
	return out, nil
}

// ---------------- Stub backend ----------------

// stubEngine is fully deterministic and offline. It powers tests and
// development setups without provider credentials.
type stubEngine struct {
	dim int
}

func newStubEngine(dim int) Engine { return &stubEngine{dim: dim} }

func (e *stubEngine) Name() string { return "stub" }

func (e *stubEngine) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashedBagOfWords(t, e.dim)
	}
	return out, nil
}

func (e *stubEngine) Summarize(_ context.Context, _ string, text string) (string, error) {
	return firstSentences(text, 3), nil
}

func (e *stubEngine) Classify(_ context.Context, text string, labels []string) (map[string]float64, error) {
	tokens := map[string]int{}
	for _, tok := range tokenize(text) {
		tokens[tok]++
	}
	total := 0
	for _, n := range tokens {
		total += n
	}
	out := make(map[string]float64, len(labels))
	for _, l := range labels {
		hits := 0
		for _, tok := range tokenize(l) {
			hits += tokens[tok]
		}
		if total > 0 {
			out[l] = clamp01(float64(hits) / float64(total) * 20)
		} else {
			out[l] = 0
		}
	}
	return out, nil
}

// ---------------- shared helpers ----------------

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clipText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

// hashedBagOfWords folds token counts into a fixed-width unit vector. The
// same text always maps to the same vector, so cached cosine comparisons
// remain stable across restarts.
func hashedBagOfWords(text string, dim int) []float32 {
	if dim <= 0 {
		dim = 256
	}
	vec := make([]float32, dim)
	for _, tok := range tokenize(text) {
		h := fnv32(tok)
		idx := int(h % uint32(dim))
		// Half the hash bits decide the sign so antonymous buckets cancel
		// instead of saturating.
		if (h>>16)&1 == 1 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}
	vecmath.NormalizeInPlace(vec)
	return vec
}

func fnv32(s string) uint32 {
	const prime = 16777619
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

var sentenceEnders = ".!?"

// firstSentences returns up to n leading sentences of text.
func firstSentences(text string, n int) string {
	text = strings.TrimSpace(text)
	if text == "" || n <= 0 {
		return ""
	}
	count := 0
	for i := 0; i < len(text); i++ {
		if strings.IndexByte(sentenceEnders, text[i]) < 0 {
			continue
		}
		// Skip runs like "..." or "?!".
		for i+1 < len(text) && strings.IndexByte(sentenceEnders, text[i+1]) >= 0 {
			i++
		}
		count++
		if count >= n {
			return strings.TrimSpace(text[:i+1])
		}
	}
	return text
}

// sortedLabels gives deterministic iteration for logging and tests.
func sortedLabels(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
