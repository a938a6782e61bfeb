package knowledge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"supportdesk_back/apperr"
	"supportdesk_back/config"
	"supportdesk_back/metrics"
	"supportdesk_back/storage"
)

// Actor is the caller identity resolved from the session.
type Actor struct {
	Admin    bool
	TenantID string
}

// UploadInput is one accepted file.
type UploadInput struct {
	Filename string
	MimeType string
	Category string
	Title    string
	// TenantID is honoured for admins only; clients always upload into their
	// own tenant.
	TenantID string
	Data     []byte
	// Sync ingests inline using Data instead of queueing a job.
	Sync bool
}

type UploadResult struct {
	DocumentID string `json:"documentId"`
	JobID      string `json:"jobId,omitempty"`
	Status     string `json:"status"`
}

type ReindexResult struct {
	DocumentID string `json:"documentId"`
	JobID      string `json:"jobId,omitempty"`
	Status     string `json:"status"`
}

// Service is the document-facing API of the knowledge library.
type Service struct {
	db       *gorm.DB
	docs     DocumentStore
	chunks   ChunkStore
	blobs    storage.BlobStore
	queue    JobQueue
	pipeline *Pipeline
	worker   *Worker
	embedder Embedder
	metrics  *metrics.Metrics
}

// Deps lets callers override individual collaborators. Nil fields are built
// from the database or the environment.
type Deps struct {
	Chunks    ChunkStore
	Blobs     storage.BlobStore
	Embedder  Embedder
	Extractor TextExtractor
	Metrics   *metrics.Metrics
}

// NewServiceFromEnv wires the gorm stores with the embedder, blob store and
// optional Qdrant index configured in the environment.
func NewServiceFromEnv(db *gorm.DB, deps Deps) (*Service, error) {
	if db == nil {
		return nil, errors.New("knowledge: database connection is required")
	}

	if deps.Embedder == nil {
		embedder, err := NewHTTPEmbedderFromEnv()
		if err != nil {
			return nil, err
		}
		deps.Embedder = embedder
	}
	if deps.Blobs == nil {
		blobs, err := storage.NewMinioStoreFromEnv()
		if err != nil {
			return nil, err
		}
		if blobs == nil {
			log.Warn().Msg("MINIO_* not configured, using in-memory blob store")
			deps.Blobs = storage.NewMemoryStore()
		} else {
			deps.Blobs = blobs
		}
	}
	if deps.Chunks == nil {
		qdrant, err := NewQdrantChunkStoreFromEnv(db)
		if err != nil {
			return nil, err
		}
		if qdrant != nil {
			deps.Chunks = qdrant
		} else {
			deps.Chunks = NewGormChunkStore(db)
		}
	}
	if deps.Extractor == nil {
		deps.Extractor = NewExtractor()
	}

	return NewService(db, deps, PipelineOptions{
		ChunkSize:    config.Int("KNOWLEDGE_CHUNK_SIZE", defaultChunkSize),
		ChunkOverlap: config.Int("KNOWLEDGE_CHUNK_OVERLAP", defaultChunkOverlap),
	}, NewGormJobQueue(db, config.Duration("WORKER_STALE_AFTER", defaultStaleAfter)),
		config.Int("WORKER_MAX_JOBS", DefaultMaxJobsPerRun)), nil
}

// NewService assembles a Service from explicit collaborators.
func NewService(db *gorm.DB, deps Deps, opts PipelineOptions, queue JobQueue, maxJobs int) *Service {
	docs := NewGormDocumentStore(db)
	chunks := deps.Chunks
	if chunks == nil {
		chunks = NewGormChunkStore(db)
	}
	pipeline := NewPipeline(docs, chunks, deps.Blobs, deps.Extractor, deps.Embedder, opts, deps.Metrics)
	return &Service{
		db:       db,
		docs:     docs,
		chunks:   chunks,
		blobs:    deps.Blobs,
		queue:    queue,
		pipeline: pipeline,
		worker:   NewWorker(queue, pipeline, maxJobs, deps.Metrics),
		embedder: deps.Embedder,
		metrics:  deps.Metrics,
	}
}

// AutoMigrate creates the knowledge tables.
func (s *Service) AutoMigrate() error {
	if s == nil || s.db == nil {
		return errors.New("knowledge: service not initialised")
	}
	return AutoMigrate(s.db)
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Document{}, &Chunk{}, &IngestJob{}); err != nil {
		return fmt.Errorf("knowledge: migrate models: %w", err)
	}
	return nil
}

func (s *Service) Chunks() ChunkStore  { return s.chunks }
func (s *Service) Pipeline() *Pipeline { return s.pipeline }
func (s *Service) Worker() *Worker     { return s.worker }

// Retriever searches the service's chunk store with its embedder.
func (s *Service) Retriever(thresholds Thresholds) *Retriever {
	return NewRetriever(s.embedder, s.chunks, thresholds, s.metrics)
}

// Upload stores the file and its document row, then queues ingestion. A
// failed blob upload removes the row again; a failed enqueue is only logged.
func (s *Service) Upload(ctx context.Context, actor Actor, input UploadInput) (*UploadResult, error) {
	category := strings.ToLower(strings.TrimSpace(input.Category))
	if !ValidCategory(category) {
		return nil, fmt.Errorf("knowledge: invalid document type %q: %w", input.Category, apperr.ErrValidation)
	}
	filename := filepath.Base(strings.TrimSpace(input.Filename))
	if filename == "" || filename == "." || filename == "/" {
		return nil, fmt.Errorf("knowledge: file name is required: %w", apperr.ErrValidation)
	}
	if len(input.Data) == 0 {
		return nil, fmt.Errorf("knowledge: file is empty: %w", apperr.ErrValidation)
	}
	if int64(len(input.Data)) > storage.MaxUploadBytes {
		return nil, fmt.Errorf("knowledge: file exceeds %d bytes: %w", storage.MaxUploadBytes, apperr.ErrValidation)
	}

	tenantID, err := uploadTenant(actor, category, input.TenantID)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = filename
	}
	doc := &Document{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Category: category,
		Title:    title,
		Source:   filename,
		MimeType: strings.TrimSpace(input.MimeType),
		Status:   StatusPending,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}

	if err := s.blobs.Upload(ctx, doc.BlobPath(), input.Data, doc.MimeType); err != nil {
		if delErr := s.docs.Delete(ctx, doc.ID); delErr != nil {
			log.Error().Err(delErr).Str("document_id", doc.ID).Msg("roll back document after failed upload")
		}
		return nil, err
	}

	result := &UploadResult{DocumentID: doc.ID, Status: StatusPending}
	if input.Sync {
		if err := s.pipeline.Ingest(ctx, doc.ID, input.Data); err != nil {
			result.Status = StatusError
			return result, err
		}
		result.Status = StatusReady
		return result, nil
	}

	job, err := s.queue.Enqueue(ctx, doc.ID)
	if err != nil {
		log.Warn().Err(err).Str("document_id", doc.ID).Msg("enqueue ingest job")
		return result, nil
	}
	result.JobID = job.ID
	return result, nil
}

func uploadTenant(actor Actor, category string, requested string) (*string, error) {
	if !actor.Admin {
		if category == CategoryPlatform {
			return nil, fmt.Errorf("knowledge: platform documents are managed by admins: %w", apperr.ErrForbidden)
		}
		if actor.TenantID == "" {
			return nil, fmt.Errorf("knowledge: session has no tenant: %w", apperr.ErrForbidden)
		}
		tenant := actor.TenantID
		return &tenant, nil
	}
	requested = strings.TrimSpace(requested)
	if category == CategoryPlatform || requested == "" {
		return nil, nil
	}
	return &requested, nil
}

// List returns the documents the actor may see, newest first.
func (s *Service) List(ctx context.Context, actor Actor, category string) ([]Document, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category != "" && !ValidCategory(category) {
		return nil, fmt.Errorf("knowledge: invalid document type %q: %w", category, apperr.ErrValidation)
	}
	if actor.Admin {
		return s.docs.ListByTenantAndCategory(ctx, ListFilter{AllTenants: true, Category: category})
	}
	if category == CategoryPlatform || actor.TenantID == "" {
		return []Document{}, nil
	}
	return s.docs.ListByTenantAndCategory(ctx, ListFilter{TenantID: actor.TenantID, Category: category})
}

// Get loads a document the actor may manage.
func (s *Service) Get(ctx context.Context, actor Actor, documentID string) (*Document, error) {
	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Reindex resets the document to pending and queues it, or ingests it
// inline when sync is set.
func (s *Service) Reindex(ctx context.Context, actor Actor, documentID string, sync bool) (*ReindexResult, error) {
	doc, err := s.Get(ctx, actor, documentID)
	if err != nil {
		return nil, err
	}

	result := &ReindexResult{DocumentID: doc.ID}
	if sync {
		if err := s.pipeline.Ingest(ctx, doc.ID, nil); err != nil {
			result.Status = StatusError
			return result, err
		}
		result.Status = StatusReady
		return result, nil
	}

	if err := s.docs.UpdateStatus(ctx, doc.ID, StatusUpdate{Status: StatusPending, ClearError: true}); err != nil {
		return nil, err
	}
	job, err := s.queue.Enqueue(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	result.JobID = job.ID
	result.Status = StatusPending
	return result, nil
}

// Delete removes the blob, the chunks and the document row.
func (s *Service) Delete(ctx context.Context, actor Actor, documentID string) error {
	doc, err := s.Get(ctx, actor, documentID)
	if err != nil {
		return err
	}
	if err := s.blobs.Remove(ctx, doc.BlobPath()); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		log.Warn().Err(err).Str("document_id", doc.ID).Msg("remove document blob")
	}
	if err := s.chunks.DeleteAllForDocument(ctx, doc.ID); err != nil {
		return err
	}
	return s.docs.Delete(ctx, doc.ID)
}

// RunWorker processes one bounded batch of ingest jobs.
func (s *Service) RunWorker(ctx context.Context) WorkerResult {
	return s.worker.RunOnce(ctx)
}

func authorize(actor Actor, doc *Document) error {
	if actor.Admin {
		return nil
	}
	if doc.Category == CategoryPlatform || doc.TenantID == nil || *doc.TenantID != actor.TenantID {
		return fmt.Errorf("knowledge: document %s: %w", doc.ID, apperr.ErrForbidden)
	}
	return nil
}
