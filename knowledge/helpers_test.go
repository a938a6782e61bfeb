package knowledge

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"supportdesk_back/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenMemory(t.Name())
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func insertChunk(t *testing.T, store ChunkStore, doc Document, content string, vector []float32) Chunk {
	t.Helper()
	chunk, err := NewChunk(doc, 0, content, vector)
	require.NoError(t, err)
	require.NoError(t, store.InsertMany(context.Background(), []Chunk{chunk}))
	return chunk
}

// fakeEmbedder returns fixed vectors for known texts and a constant
// three-dimensional vector otherwise. failOn > 0 fails that call (1-based).
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	failOn  int

	mu    sync.Mutex
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.err != nil && (f.failOn == 0 || f.failOn == call) {
		return nil, f.err
	}
	if vector, ok := f.vectors[text]; ok {
		return vector, nil
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
