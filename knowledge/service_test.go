package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportdesk_back/apperr"
	"supportdesk_back/storage"
)

type serviceFixture struct {
	service  *Service
	blobs    *storage.MemoryStore
	embedder *fakeEmbedder
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db := newTestDB(t)
	f := &serviceFixture{
		blobs:    storage.NewMemoryStore(),
		embedder: &fakeEmbedder{vectors: map[string][]float32{"hello world": {0.3, 0.3, 0.9}}},
	}
	f.service = NewService(db, Deps{
		Blobs:     f.blobs,
		Embedder:  f.embedder,
		Extractor: NewExtractorWithRunner(&mockRunner{}),
	}, PipelineOptions{}, NewGormJobQueue(db, 0), 2)
	return f
}

var (
	adminActor   = Actor{Admin: true}
	tenantAActor = Actor{TenantID: "tenant-a"}
	tenantBActor = Actor{TenantID: "tenant-b"}
)

func textUpload(category, name, body string) UploadInput {
	return UploadInput{Filename: name, MimeType: "text/plain", Category: category, Data: []byte(body)}
}

func TestUploadQueuesAndWorkerIngests(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	result, err := f.service.Upload(ctx, tenantAActor, textUpload(CategoryPolicy, "hello.txt", "hello world"))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, result.Status)
	assert.NotEmpty(t, result.JobID)

	doc, err := f.service.Get(ctx, tenantAActor, result.DocumentID)
	require.NoError(t, err)
	require.NotNil(t, doc.TenantID)
	assert.Equal(t, "tenant-a", *doc.TenantID)
	assert.Equal(t, "hello.txt", doc.Title)
	assert.True(t, f.blobs.Has(doc.BlobPath()))

	run := f.service.RunWorker(ctx)
	assert.Equal(t, WorkerResult{Processed: 1}, run)

	doc, err = f.service.Get(ctx, tenantAActor, result.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, doc.Status)
	assert.Equal(t, 1, doc.ChunkCount)

	retriever := f.service.Retriever(DefaultThresholds())
	found, err := retriever.Retrieve(ctx, TenantScope("tenant-a"), "hello world")
	require.NoError(t, err)
	require.Len(t, found.Selected, 1)
	assert.Equal(t, "hello world", found.Selected[0].Content)
	assert.InDelta(t, 1.0, found.TopSimilarity, 1e-6)
	assert.Equal(t, TierHigh, found.Tier)
}

func TestUploadSyncIngestsInline(t *testing.T) {
	f := newServiceFixture(t)
	input := textUpload(CategoryTraining, "tone.txt", "Be friendly.")
	input.Sync = true

	result, err := f.service.Upload(context.Background(), tenantAActor, input)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, result.Status)
	assert.Empty(t, result.JobID)
}

func TestUploadSyncFailureReportsError(t *testing.T) {
	f := newServiceFixture(t)
	input := textUpload(CategoryPolicy, "blank.txt", "   ")
	input.Sync = true

	result, err := f.service.Upload(context.Background(), tenantAActor, input)
	assert.ErrorIs(t, err, apperr.ErrExtraction)
	require.NotNil(t, result)
	assert.Equal(t, StatusError, result.Status)

	doc, getErr := f.service.Get(context.Background(), tenantAActor, result.DocumentID)
	require.NoError(t, getErr)
	assert.Equal(t, StatusError, doc.Status)
}

func TestUploadValidation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.Upload(ctx, tenantAActor, textUpload("faq", "a.txt", "x"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.service.Upload(ctx, tenantAActor, textUpload(CategoryPolicy, "", "x"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.service.Upload(ctx, tenantAActor, textUpload(CategoryPolicy, "a.txt", ""))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.service.Upload(ctx, tenantAActor, textUpload(CategoryPlatform, "a.txt", "x"))
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.service.Upload(ctx, Actor{}, textUpload(CategoryPolicy, "a.txt", "x"))
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestUploadAdminTenantSelection(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	input := textUpload(CategoryPlatform, "global.txt", "shipping rules")
	input.TenantID = "tenant-a"
	platform, err := f.service.Upload(ctx, adminActor, input)
	require.NoError(t, err)
	doc, err := f.service.Get(ctx, adminActor, platform.DocumentID)
	require.NoError(t, err)
	assert.Nil(t, doc.TenantID, "platform documents are never tenant-owned")

	input = textUpload(CategoryPolicy, "returns.txt", "30 days")
	input.TenantID = "tenant-b"
	owned, err := f.service.Upload(ctx, adminActor, input)
	require.NoError(t, err)
	_, err = f.service.Get(ctx, tenantBActor, owned.DocumentID)
	assert.NoError(t, err)
}

func TestUploadRollsBackOnBlobFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.blobs.FailUploads = true
	ctx := context.Background()

	_, err := f.service.Upload(ctx, tenantAActor, textUpload(CategoryPolicy, "a.txt", "x"))
	require.Error(t, err)

	docs, err := f.service.List(ctx, adminActor, "")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestListVisibility(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.Upload(ctx, tenantAActor, textUpload(CategoryPolicy, "a.txt", "a"))
	require.NoError(t, err)
	_, err = f.service.Upload(ctx, tenantBActor, textUpload(CategoryTraining, "b.txt", "b"))
	require.NoError(t, err)
	_, err = f.service.Upload(ctx, adminActor, textUpload(CategoryPlatform, "p.txt", "p"))
	require.NoError(t, err)

	all, err := f.service.List(ctx, adminActor, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	platform, err := f.service.List(ctx, adminActor, CategoryPlatform)
	require.NoError(t, err)
	require.Len(t, platform, 1)
	assert.Equal(t, "p.txt", platform[0].Source)

	own, err := f.service.List(ctx, tenantAActor, "")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "a.txt", own[0].Source)

	hidden, err := f.service.List(ctx, tenantAActor, CategoryPlatform)
	require.NoError(t, err)
	assert.Empty(t, hidden)

	_, err = f.service.List(ctx, tenantAActor, "bogus")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestGetForbidsOtherTenants(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	owned, err := f.service.Upload(ctx, tenantAActor, textUpload(CategoryPolicy, "a.txt", "a"))
	require.NoError(t, err)
	platform, err := f.service.Upload(ctx, adminActor, textUpload(CategoryPlatform, "p.txt", "p"))
	require.NoError(t, err)

	_, err = f.service.Get(ctx, tenantBActor, owned.DocumentID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.service.Get(ctx, tenantAActor, platform.DocumentID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.service.Get(ctx, tenantAActor, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReindexQueuesFreshJob(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	input := textUpload(CategoryPolicy, "a.txt", "hello world")
	input.Sync = true
	uploaded, err := f.service.Upload(ctx, tenantAActor, input)
	require.NoError(t, err)

	result, err := f.service.Reindex(ctx, tenantAActor, uploaded.DocumentID, false)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, result.Status)
	assert.NotEmpty(t, result.JobID)

	doc, err := f.service.Get(ctx, tenantAActor, uploaded.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, doc.Status)

	assert.Equal(t, WorkerResult{Processed: 1}, f.service.RunWorker(ctx))

	synced, err := f.service.Reindex(ctx, tenantAActor, uploaded.DocumentID, true)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, synced.Status)

	_, err = f.service.Reindex(ctx, tenantBActor, uploaded.DocumentID, false)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestDeleteRemovesEverything(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	input := textUpload(CategoryPolicy, "a.txt", "hello world")
	input.Sync = true
	uploaded, err := f.service.Upload(ctx, tenantAActor, input)
	require.NoError(t, err)
	doc, err := f.service.Get(ctx, tenantAActor, uploaded.DocumentID)
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(ctx, tenantAActor, doc.ID))

	assert.False(t, f.blobs.Has(doc.BlobPath()))
	_, err = f.service.Get(ctx, adminActor, doc.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	hits, err := f.service.Chunks().SearchBySimilarity(ctx, TenantScope("tenant-a"), []float32{0.3, 0.3, 0.9}, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
