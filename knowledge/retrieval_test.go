package knowledge

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scored(scores ...float64) []ScoredChunk {
	chunks := make([]ScoredChunk, 0, len(scores))
	for i, score := range scores {
		chunks = append(chunks, ScoredChunk{
			Chunk: Chunk{ID: fmt.Sprintf("c%d", i), DocumentID: "d1", ChunkIndex: i, Content: fmt.Sprintf("chunk %d", i)},
			Score: score,
		})
	}
	return chunks
}

func TestSelectContextTiers(t *testing.T) {
	thresholds := DefaultThresholds()

	tests := []struct {
		name     string
		scores   []float64
		wantIDs  []string
		wantTier string
		wantTop  float64
	}{
		{"high matches only", []float64{0.9, 0.65, 0.5, 0.3}, []string{"c0", "c1"}, TierHigh, 0.9},
		{"medium when no high", []float64{0.55, 0.45}, []string{"c0", "c1"}, TierMedium, 0.55},
		{"low when all below medium", []float64{0.39, 0.2}, nil, TierLow, 0.39},
		{"empty", nil, nil, TierLow, 0},
		{"unsorted input", []float64{0.5, 0.7}, []string{"c1"}, TierHigh, 0.7},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := SelectContext(scored(tc.scores...), thresholds)
			var ids []string
			for _, chunk := range result.Selected {
				ids = append(ids, chunk.ID)
			}
			assert.Equal(t, tc.wantIDs, ids)
			assert.Equal(t, tc.wantTier, result.Tier)
			assert.InDelta(t, tc.wantTop, result.TopSimilarity, 1e-9)
			assert.Equal(t, len(tc.wantIDs) > 0, result.Used())
		})
	}
}

func TestSelectContextCapsResults(t *testing.T) {
	result := SelectContext(scored(0.99, 0.98, 0.97, 0.96, 0.95, 0.94, 0.93), DefaultThresholds())
	assert.Len(t, result.Selected, 5)
	assert.Equal(t, "c0", result.Selected[0].ID)
}

func TestRetrievalContextJoinsChunks(t *testing.T) {
	result := SelectContext(scored(0.9, 0.8), DefaultThresholds())
	assert.Equal(t, "chunk 0\n\n---\n\nchunk 1", result.Context())
	sources := result.Sources()
	require.Len(t, sources, 2)
	assert.Equal(t, "d1", sources[0].DocumentID)
	assert.Equal(t, "c0", sources[0].ChunkID)
}

func TestThresholdsFromEnvRejectsInvertedPair(t *testing.T) {
	t.Setenv("RETRIEVAL_HIGH_THRESHOLD", "0.3")
	t.Setenv("RETRIEVAL_MEDIUM_THRESHOLD", "0.5")
	got := ThresholdsFromEnv()
	assert.Equal(t, 0.6, got.High)
	assert.Equal(t, 0.4, got.Medium)
}

func TestRetrieverScopesSearch(t *testing.T) {
	db := newTestDB(t)
	store := NewGormChunkStore(db)
	ctx := context.Background()

	tenantA, tenantB := "tenant-a", "tenant-b"
	insertChunk(t, store, Document{ID: "doc-a", TenantID: &tenantA, Category: CategoryPolicy}, "returns for a", []float32{1, 0, 0})
	insertChunk(t, store, Document{ID: "doc-b", TenantID: &tenantB, Category: CategoryPolicy}, "returns for b", []float32{1, 0, 0})
	insertChunk(t, store, Document{ID: "doc-p", Category: CategoryPlatform}, "platform returns", []float32{0.9, 0.1, 0})

	embedder := &fakeEmbedder{vectors: map[string][]float32{"returns?": {1, 0, 0}}}
	retriever := NewRetriever(embedder, store, DefaultThresholds(), nil)

	result, err := retriever.Retrieve(ctx, TenantScope(tenantA), "returns?")
	require.NoError(t, err)
	require.Len(t, result.Selected, 2)
	for _, chunk := range result.Selected {
		assert.NotEqual(t, "doc-b", chunk.DocumentID)
	}
	assert.Equal(t, TierHigh, result.Tier)
	assert.InDelta(t, 1.0, result.TopSimilarity, 1e-9)

	platformOnly, err := retriever.Retrieve(ctx, PlatformScope(), "returns?")
	require.NoError(t, err)
	require.Len(t, platformOnly.Selected, 1)
	assert.Equal(t, "doc-p", platformOnly.Selected[0].DocumentID)
}

func TestRetrieverPropagatesEmbeddingFailure(t *testing.T) {
	retriever := NewRetriever(&fakeEmbedder{err: assert.AnError}, NewGormChunkStore(newTestDB(t)), DefaultThresholds(), nil)
	_, err := retriever.Retrieve(context.Background(), PlatformScope(), "anything")
	assert.ErrorIs(t, err, assert.AnError)
}

func TestSearchSkipsUnscorableChunks(t *testing.T) {
	db := newTestDB(t)
	store := NewGormChunkStore(db)
	ctx := context.Background()

	tenantA, tenantB := "tenant-a", "tenant-b"
	good := insertChunk(t, store, Document{ID: "doc-good", TenantID: &tenantA, Category: CategoryPolicy}, "good", []float32{1, 0, 0})
	insertChunk(t, store, Document{ID: "doc-zero", TenantID: &tenantA, Category: CategoryPolicy}, "zero", []float32{0, 0, 0})
	insertChunk(t, store, Document{ID: "doc-old", Category: CategoryPlatform}, "old model", []float32{1, 0})
	insertChunk(t, store, Document{ID: "doc-b", TenantID: &tenantB, Category: CategoryPolicy}, "b", []float32{0, 1, 0})

	hits, err := store.SearchBySimilarity(ctx, TenantScope(tenantA), []float32{1, 0, 0}, 0.4, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, good.ID, hits[0].ID)

	hits, err = store.SearchBySimilarity(ctx, TenantScope(tenantB), []float32{0, 1, 0}, 0.4, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-b", hits[0].DocumentID)
}

func TestSearchRejectsZeroQuery(t *testing.T) {
	store := NewGormChunkStore(newTestDB(t))
	_, err := store.SearchBySimilarity(context.Background(), PlatformScope(), []float32{0, 0, 0}, 0.4, 10)
	assert.ErrorIs(t, err, ErrZeroVector)
}

func TestIndexDimensions(t *testing.T) {
	store := NewGormChunkStore(newTestDB(t))
	ctx := context.Background()

	dims, err := store.IndexDimensions(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, dims)

	insertChunk(t, store, Document{ID: "doc-1", Category: CategoryPlatform}, "one", []float32{1, 0, 0})
	dims, err = store.IndexDimensions(ctx, "doc-2")
	require.NoError(t, err)
	assert.Equal(t, 3, dims)

	dims, err = store.IndexDimensions(ctx, "doc-1")
	require.NoError(t, err)
	assert.Zero(t, dims)
}
