package knowledge

import (
	"time"

	"gorm.io/datatypes"
)

// Document lifecycle statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusError      = "error"
)

// Document categories.
const (
	CategoryPolicy   = "policy"
	CategoryTraining = "training"
	CategoryPlatform = "platform"
)

// Ingest job statuses.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobDone       = "done"
	JobError      = "error"
)

// ValidCategory reports whether category belongs to the closed set.
func ValidCategory(category string) bool {
	switch category {
	case CategoryPolicy, CategoryTraining, CategoryPlatform:
		return true
	default:
		return false
	}
}

// Document is one uploaded knowledge file. A nil TenantID marks a
// platform-wide document.
type Document struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID   *string   `gorm:"size:64;index:idx_document_tenant_category" json:"tenantId"`
	Category   string    `gorm:"size:16;not null;index:idx_document_tenant_category" json:"type"`
	Title      string    `gorm:"size:200;not null" json:"title"`
	Source     string    `gorm:"size:255;not null" json:"source"`
	MimeType   string    `gorm:"size:128" json:"mimeType"`
	Status     string    `gorm:"size:16;not null;default:'pending'" json:"status"`
	ChunkCount int       `gorm:"not null;default:0" json:"chunkCount"`
	CharCount  int       `gorm:"not null;default:0" json:"charCount"`
	Error      *string   `gorm:"type:text" json:"error"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (Document) TableName() string {
	return "knowledge_documents"
}

// BlobPath is the object key of the raw upload.
func (d Document) BlobPath() string {
	owner := "platform"
	if d.TenantID != nil && *d.TenantID != "" {
		owner = *d.TenantID
	}
	return owner + "/" + d.ID + "/" + d.Source
}

// Chunk is a slice of a document's text with its embedding. TenantID and
// Category are copied from the owning document.
type Chunk struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	DocumentID string         `gorm:"size:36;not null;index:idx_chunk_document_seq" json:"documentId"`
	TenantID   *string        `gorm:"size:64;index" json:"tenantId"`
	Category   string         `gorm:"size:16;not null" json:"type"`
	ChunkIndex int            `gorm:"not null;index:idx_chunk_document_seq" json:"chunkIndex"`
	Content    string         `gorm:"type:text;not null" json:"content"`
	Embedding  datatypes.JSON `gorm:"type:json;not null" json:"-"`
	Dimensions int            `gorm:"not null" json:"dimensions"`
	CreatedAt  time.Time      `json:"createdAt"`
}

func (Chunk) TableName() string {
	return "knowledge_chunks"
}

// ScoredChunk is a search candidate.
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// IngestJob asks the worker loop to (re)process one document.
type IngestJob struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	DocumentID string    `gorm:"size:36;not null;index" json:"documentId"`
	Status     string    `gorm:"size:16;not null;index:idx_job_status_created" json:"status"`
	Attempts   int       `gorm:"not null;default:0" json:"attempts"`
	LastError  *string   `gorm:"type:text" json:"lastError"`
	CreatedAt  time.Time `gorm:"index:idx_job_status_created" json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (IngestJob) TableName() string {
	return "knowledge_ingest_jobs"
}

// Scope is the mandatory visibility filter for chunk access. The zero value
// is the platform-wide scope.
type Scope struct {
	TenantID string
}

func PlatformScope() Scope { return Scope{} }

func TenantScope(tenantID string) Scope { return Scope{TenantID: tenantID} }

func (s Scope) IsPlatform() bool { return s.TenantID == "" }
