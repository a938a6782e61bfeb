package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"supportdesk_back/metrics"
	"supportdesk_back/storage"
)

// terminalWriteTimeout bounds the status write that follows a failure. It
// runs on a context detached from the caller's cancellation.
const terminalWriteTimeout = 5 * time.Second

// Pipeline turns uploaded bytes into searchable chunks.
type Pipeline struct {
	docs      DocumentStore
	chunks    ChunkStore
	blobs     storage.BlobStore
	extractor TextExtractor
	embedder  Embedder
	chunker   *chunker
	metrics   *metrics.Metrics
}

// PipelineOptions carries chunking parameters; zero values use 1000/200.
type PipelineOptions struct {
	ChunkSize    int
	ChunkOverlap int
}

func NewPipeline(docs DocumentStore, chunks ChunkStore, blobs storage.BlobStore, extractor TextExtractor, embedder Embedder, opts PipelineOptions, m *metrics.Metrics) *Pipeline {
	size, overlap := opts.ChunkSize, opts.ChunkOverlap
	if size <= 0 {
		size, overlap = defaultChunkSize, defaultChunkOverlap
	}
	return &Pipeline{
		docs:      docs,
		chunks:    chunks,
		blobs:     blobs,
		extractor: extractor,
		embedder:  embedder,
		chunker:   newChunker(size, overlap),
		metrics:   m,
	}
}

// Ingest (re)builds the chunks of one document. raw is the fresh-upload
// buffer; nil downloads the stored blob. On return the document is either
// ready or error, and any failure is returned to the caller.
func (p *Pipeline) Ingest(ctx context.Context, documentID string, raw []byte) error {
	doc, err := p.docs.Get(ctx, documentID)
	if err != nil {
		return err
	}

	if err := p.docs.UpdateStatus(ctx, documentID, StatusUpdate{Status: StatusProcessing}); err != nil {
		return err
	}

	started := time.Now()
	chunkCount, charCount, err := p.build(ctx, *doc, raw)
	if err != nil {
		p.fail(ctx, documentID, err)
		p.metrics.ObserveIngest(StatusError, 0, time.Since(started))
		return err
	}

	writeCtx, cancel := detached(ctx)
	defer cancel()
	if err := p.docs.UpdateStatus(writeCtx, documentID, StatusUpdate{
		Status:     StatusReady,
		ChunkCount: &chunkCount,
		CharCount:  &charCount,
		ClearError: true,
	}); err != nil {
		p.fail(ctx, documentID, err)
		return err
	}

	p.metrics.ObserveIngest(StatusReady, chunkCount, time.Since(started))
	log.Info().
		Str("document_id", documentID).
		Str("type", doc.Category).
		Int("chunks", chunkCount).
		Dur("elapsed", time.Since(started)).
		Msg("document ingested")
	return nil
}

func (p *Pipeline) build(ctx context.Context, doc Document, raw []byte) (int, int, error) {
	if raw == nil {
		if p.blobs == nil {
			return 0, 0, errors.New("knowledge: blob store is not configured")
		}
		downloaded, err := p.blobs.Download(ctx, doc.BlobPath())
		if err != nil {
			return 0, 0, fmt.Errorf("knowledge: failed to download file: %w", err)
		}
		raw = downloaded
	}

	mimeType := doc.MimeType
	if mimeType == "" {
		mimeType = "text/plain"
	}
	text, err := p.extractor.Extract(ctx, raw, mimeType, doc.Source)
	if err != nil {
		return 0, 0, err
	}

	if err := p.chunks.DeleteAllForDocument(ctx, doc.ID); err != nil {
		return 0, 0, err
	}

	pieces := p.chunker.split(text)
	dimensions := 0
	for i, piece := range pieces {
		vector, err := p.embedder.Embed(ctx, piece)
		if err != nil {
			p.metrics.ObserveProviderFailure("embedding")
			return 0, 0, fmt.Errorf("knowledge: embed chunk %d: %w", i, err)
		}
		if dimensions == 0 {
			dimensions = len(vector)
			indexed, err := p.chunks.IndexDimensions(ctx, doc.ID)
			if err != nil {
				return 0, 0, err
			}
			if indexed > 0 && indexed != dimensions {
				return 0, 0, fmt.Errorf("knowledge: chunk %d: %w: %d vs index %d", i, ErrDimensionMismatch, dimensions, indexed)
			}
		} else if len(vector) != dimensions {
			return 0, 0, fmt.Errorf("knowledge: chunk %d: %w: %d vs %d", i, ErrDimensionMismatch, len(vector), dimensions)
		}

		chunk, err := NewChunk(doc, i, piece, vector)
		if err != nil {
			return 0, 0, err
		}
		if err := p.chunks.InsertMany(ctx, []Chunk{chunk}); err != nil {
			return 0, 0, fmt.Errorf("knowledge: failed to insert chunk %d: %w", i, err)
		}
	}
	return len(pieces), len([]rune(text)), nil
}

func (p *Pipeline) fail(ctx context.Context, documentID string, cause error) {
	message := cause.Error()
	writeCtx, cancel := detached(ctx)
	defer cancel()
	if err := p.docs.UpdateStatus(writeCtx, documentID, StatusUpdate{Status: StatusError, Error: &message}); err != nil {
		log.Error().Err(err).Str("document_id", documentID).Msg("record ingest failure")
	}
	log.Warn().Err(cause).Str("document_id", documentID).Msg("document ingest failed")
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
}
