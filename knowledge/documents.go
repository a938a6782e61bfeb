package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"supportdesk_back/apperr"
)

// DocumentStore persists Document rows.
type DocumentStore interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	ListByTenantAndCategory(ctx context.Context, filter ListFilter) ([]Document, error)
	UpdateStatus(ctx context.Context, id string, update StatusUpdate) error
	Delete(ctx context.Context, id string) error
}

// ListFilter selects documents. With AllTenants unset, TenantID "" selects
// platform-wide documents only.
type ListFilter struct {
	AllTenants bool
	TenantID   string
	Category   string
}

// StatusUpdate is a lifecycle transition. Nil fields are left untouched.
type StatusUpdate struct {
	Status     string
	ChunkCount *int
	CharCount  *int
	Error      *string
	ClearError bool
}

type gormDocumentStore struct {
	db *gorm.DB
}

func NewGormDocumentStore(db *gorm.DB) DocumentStore {
	return &gormDocumentStore{db: db}
}

func (s *gormDocumentStore) Create(ctx context.Context, doc *Document) error {
	if doc == nil {
		return errors.New("knowledge: document is nil")
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("knowledge: create document: %w", err)
	}
	return nil
}

func (s *gormDocumentStore) Get(ctx context.Context, id string) (*Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("knowledge: document %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("knowledge: load document: %w", err)
	}
	return &doc, nil
}

func (s *gormDocumentStore) ListByTenantAndCategory(ctx context.Context, filter ListFilter) ([]Document, error) {
	query := s.db.WithContext(ctx).Model(&Document{})
	if !filter.AllTenants {
		if filter.TenantID == "" {
			query = query.Where("tenant_id IS NULL")
		} else {
			query = query.Where("tenant_id = ?", filter.TenantID)
		}
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}

	var docs []Document
	if err := query.Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("knowledge: list documents: %w", err)
	}
	return docs, nil
}

func (s *gormDocumentStore) UpdateStatus(ctx context.Context, id string, update StatusUpdate) error {
	updates := map[string]interface{}{
		"status":     update.Status,
		"updated_at": time.Now().UTC(),
	}
	if update.ChunkCount != nil {
		updates["chunk_count"] = *update.ChunkCount
	}
	if update.CharCount != nil {
		updates["char_count"] = *update.CharCount
	}
	if update.Error != nil {
		updates["error"] = *update.Error
	} else if update.ClearError {
		updates["error"] = nil
	}

	result := s.db.WithContext(ctx).Model(&Document{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("knowledge: update document status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("knowledge: document %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// Delete removes the document together with its chunks and jobs.
func (s *gormDocumentStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&Chunk{}).Error; err != nil {
			return fmt.Errorf("knowledge: delete chunks: %w", err)
		}
		if err := tx.Where("document_id = ?", id).Delete(&IngestJob{}).Error; err != nil {
			return fmt.Errorf("knowledge: delete jobs: %w", err)
		}
		result := tx.Where("id = ?", id).Delete(&Document{})
		if result.Error != nil {
			return fmt.Errorf("knowledge: delete document: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("knowledge: document %s: %w", id, apperr.ErrNotFound)
		}
		return nil
	})
}
