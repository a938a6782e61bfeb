package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChunkStore persists chunks and answers similarity queries. Every search
// takes a Scope; there is no unscoped read path.
type ChunkStore interface {
	DeleteAllForDocument(ctx context.Context, documentID string) error
	InsertMany(ctx context.Context, chunks []Chunk) error
	SearchBySimilarity(ctx context.Context, scope Scope, vector []float32, threshold float64, limit int) ([]ScoredChunk, error)
	// IndexDimensions reports the vector length of chunks outside
	// excludeDocumentID, or 0 when there are none.
	IndexDimensions(ctx context.Context, excludeDocumentID string) (int, error)
}

// NewChunk builds a chunk row for doc with an encoded embedding.
func NewChunk(doc Document, index int, content string, vector []float32) (Chunk, error) {
	encoded, err := json.Marshal(vector)
	if err != nil {
		return Chunk{}, fmt.Errorf("knowledge: encode embedding: %w", err)
	}
	return Chunk{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		TenantID:   doc.TenantID,
		Category:   doc.Category,
		ChunkIndex: index,
		Content:    content,
		Embedding:  datatypes.JSON(encoded),
		Dimensions: len(vector),
	}, nil
}

// Vector decodes the stored embedding.
func (c Chunk) Vector() ([]float32, error) {
	var vector []float32
	if err := json.Unmarshal(c.Embedding, &vector); err != nil {
		return nil, fmt.Errorf("knowledge: decode embedding of chunk %s: %w", c.ID, err)
	}
	return vector, nil
}

// scopeCondition restricts a chunk or document query to the rows visible in
// scope: platform rows always, tenant rows only for that tenant.
func scopeCondition(db *gorm.DB, scope Scope) *gorm.DB {
	if scope.IsPlatform() {
		return db.Where("tenant_id IS NULL")
	}
	return db.Where("(tenant_id = ? OR tenant_id IS NULL)", scope.TenantID)
}

const searchBatchSize = 500

type gormChunkStore struct {
	db *gorm.DB
}

// NewGormChunkStore keeps vectors in the relational store and scores them
// in-process.
func NewGormChunkStore(db *gorm.DB) ChunkStore {
	return &gormChunkStore{db: db}
}

func (s *gormChunkStore) DeleteAllForDocument(ctx context.Context, documentID string) error {
	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&Chunk{}).Error; err != nil {
		return fmt.Errorf("knowledge: delete chunks: %w", err)
	}
	return nil
}

func (s *gormChunkStore) InsertMany(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&chunks).Error; err != nil {
		return fmt.Errorf("knowledge: insert chunks: %w", err)
	}
	return nil
}

func (s *gormChunkStore) IndexDimensions(ctx context.Context, excludeDocumentID string) (int, error) {
	return indexDimensions(s.db.WithContext(ctx), excludeDocumentID)
}

func indexDimensions(db *gorm.DB, excludeDocumentID string) (int, error) {
	var dims []int
	err := db.Model(&Chunk{}).
		Where("document_id <> ? AND dimensions > 0", excludeDocumentID).
		Order("created_at DESC").
		Limit(1).
		Pluck("dimensions", &dims).Error
	if err != nil {
		return 0, fmt.Errorf("knowledge: read index dimensions: %w", err)
	}
	if len(dims) == 0 {
		return 0, nil
	}
	return dims[0], nil
}

// SearchBySimilarity scores every chunk in scope. Chunks whose stored
// vector cannot be compared with the query are skipped and logged.
func (s *gormChunkStore) SearchBySimilarity(ctx context.Context, scope Scope, vector []float32, threshold float64, limit int) ([]ScoredChunk, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	if zeroMagnitude(vector) {
		return nil, ErrZeroVector
	}

	var (
		batch      []Chunk
		candidates []ScoredChunk
	)
	query := scopeCondition(s.db.WithContext(ctx).Model(&Chunk{}), scope)
	result := query.FindInBatches(&batch, searchBatchSize, func(tx *gorm.DB, _ int) error {
		for _, chunk := range batch {
			stored, err := chunk.Vector()
			if err == nil {
				var score float64
				score, err = CosineSimilarity(vector, stored)
				if err == nil && score >= threshold {
					candidates = append(candidates, ScoredChunk{Chunk: chunk, Score: score})
				}
			}
			if err != nil {
				log.Warn().Err(err).Str("chunk_id", chunk.ID).Str("document_id", chunk.DocumentID).Msg("skip unscorable chunk")
			}
		}
		return nil
	})
	if result.Error != nil {
		return nil, fmt.Errorf("knowledge: scan chunks: %w", result.Error)
	}

	sortByScore(candidates)
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func sortByScore(chunks []ScoredChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
}
