package support

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const subjectPreviewRunes = 120

// Event records one generate call for the dashboard. Customer emails are
// stored masked.
type Event struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	TenantID      string    `gorm:"size:64;index;not null" json:"tenantId"`
	RequestID     string    `gorm:"size:64;index" json:"requestId"`
	Source        string    `gorm:"size:32" json:"source"`
	Channel       string    `gorm:"size:16" json:"channel,omitempty"`
	Subject       string    `gorm:"size:512" json:"subject"`
	Intent        *string   `gorm:"size:32" json:"intent"`
	Confidence    *float64  `json:"confidence"`
	TemplateID    *string   `gorm:"size:64" json:"templateId"`
	LatencyMs     int64     `json:"latencyMs"`
	DraftText     *string   `gorm:"type:text" json:"draftText"`
	Outcome       string    `gorm:"size:16;index;not null" json:"outcome"`
	Tier          string    `gorm:"size:8" json:"tier,omitempty"`
	Model         string    `gorm:"size:128" json:"model,omitempty"`
	CustomerEmail string    `gorm:"size:320" json:"customerEmail"`
	Error         string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt     time.Time `gorm:"index" json:"createdAt"`
}

func (Event) TableName() string {
	return "support_events"
}

// EventSink persists events.
type EventSink interface {
	Append(ctx context.Context, event *Event) error
}

type gormEventSink struct {
	db *gorm.DB
}

func NewGormEventSink(db *gorm.DB) EventSink {
	return &gormEventSink{db: db}
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Event{}); err != nil {
		return fmt.Errorf("support: migrate models: %w", err)
	}
	return nil
}

func (s *gormEventSink) Append(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("support: append event: %w", err)
	}
	return nil
}

// MaskEmail keeps the first two characters of the local part and the
// domain. Short local parts are hidden entirely.
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" {
		return "***"
	}
	runes := []rune(local)
	if len(runes) <= 2 {
		return "***@" + domain
	}
	return string(runes[:2]) + "***@" + domain
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
