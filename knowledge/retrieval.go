package knowledge

import (
	"context"
	"fmt"
	"strings"

	"supportdesk_back/config"
	"supportdesk_back/metrics"
)

// Retrieval tiers.
const (
	TierHigh   = "HIGH"
	TierMedium = "MEDIUM"
	TierLow    = "LOW"
)

// ContextSeparator joins selected chunk contents into one grounding block.
const ContextSeparator = "\n\n---\n\n"

// Thresholds tunes tiering. High must exceed Medium.
type Thresholds struct {
	High       float64
	Medium     float64
	MatchCount int
	ResultCap  int
}

func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.6, Medium: 0.4, MatchCount: 10, ResultCap: 5}
}

// ThresholdsFromEnv reads RETRIEVAL_* overrides. An inverted pair falls back
// to the defaults.
func ThresholdsFromEnv() Thresholds {
	defaults := DefaultThresholds()
	t := Thresholds{
		High:       config.Float("RETRIEVAL_HIGH_THRESHOLD", defaults.High),
		Medium:     config.Float("RETRIEVAL_MEDIUM_THRESHOLD", defaults.Medium),
		MatchCount: config.Int("RETRIEVAL_MATCH_COUNT", defaults.MatchCount),
		ResultCap:  config.Int("RETRIEVAL_RESULT_CAP", defaults.ResultCap),
	}
	if t.High <= t.Medium {
		t.High, t.Medium = defaults.High, defaults.Medium
	}
	return t
}

// Source identifies a chunk used as grounding.
type Source struct {
	DocumentID string  `json:"documentId"`
	ChunkID    string  `json:"chunkId"`
	ChunkIndex int     `json:"chunkIndex"`
	Similarity float64 `json:"similarity"`
}

// Retrieval is the outcome of one knowledge lookup.
type Retrieval struct {
	Selected      []ScoredChunk
	TopSimilarity float64
	Tier          string
}

// Used reports whether any knowledge was selected.
func (r Retrieval) Used() bool { return len(r.Selected) > 0 }

// Context concatenates the selected contents.
func (r Retrieval) Context() string {
	parts := make([]string, 0, len(r.Selected))
	for _, chunk := range r.Selected {
		parts = append(parts, chunk.Content)
	}
	return strings.Join(parts, ContextSeparator)
}

func (r Retrieval) Sources() []Source {
	sources := make([]Source, 0, len(r.Selected))
	for _, chunk := range r.Selected {
		sources = append(sources, Source{
			DocumentID: chunk.DocumentID,
			ChunkID:    chunk.ID,
			ChunkIndex: chunk.ChunkIndex,
			Similarity: chunk.Score,
		})
	}
	return sources
}

// SelectContext buckets candidates by threshold and picks the context set:
// up to cap HIGH matches, otherwise up to cap MEDIUM matches, otherwise none.
func SelectContext(candidates []ScoredChunk, t Thresholds) Retrieval {
	sorted := make([]ScoredChunk, len(candidates))
	copy(sorted, candidates)
	sortByScore(sorted)

	result := Retrieval{Tier: TierLow}
	if len(sorted) > 0 {
		result.TopSimilarity = sorted[0].Score
	}

	var high, medium []ScoredChunk
	for _, chunk := range sorted {
		switch {
		case chunk.Score >= t.High:
			high = append(high, chunk)
		case chunk.Score >= t.Medium:
			medium = append(medium, chunk)
		}
	}

	limit := t.ResultCap
	switch {
	case len(high) > 0:
		result.Selected, result.Tier = capChunks(high, limit), TierHigh
	case len(medium) > 0:
		result.Selected, result.Tier = capChunks(medium, limit), TierMedium
	}
	return result
}

func capChunks(chunks []ScoredChunk, limit int) []ScoredChunk {
	if limit > 0 && len(chunks) > limit {
		return chunks[:limit]
	}
	return chunks
}

// Retriever embeds a query and selects grounding chunks.
type Retriever struct {
	embedder   Embedder
	chunks     ChunkStore
	thresholds Thresholds
	metrics    *metrics.Metrics
}

func NewRetriever(embedder Embedder, chunks ChunkStore, thresholds Thresholds, m *metrics.Metrics) *Retriever {
	return &Retriever{embedder: embedder, chunks: chunks, thresholds: thresholds, metrics: m}
}

// Retrieve searches the chunks visible in scope. Candidates below the
// MEDIUM threshold are never fetched.
func (r *Retriever) Retrieve(ctx context.Context, scope Scope, query string) (Retrieval, error) {
	if strings.TrimSpace(query) == "" {
		return Retrieval{Tier: TierLow}, nil
	}
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.metrics.ObserveProviderFailure("embedding")
		return Retrieval{}, fmt.Errorf("knowledge: embed query: %w", err)
	}

	candidates, err := r.chunks.SearchBySimilarity(ctx, scope, vector, r.thresholds.Medium, r.thresholds.MatchCount)
	if err != nil {
		return Retrieval{}, fmt.Errorf("knowledge: search chunks: %w", err)
	}

	result := SelectContext(candidates, r.thresholds)
	r.metrics.ObserveTier(result.Tier)
	return result, nil
}
