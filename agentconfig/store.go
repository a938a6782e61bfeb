package agentconfig

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"supportdesk_back/apperr"
)

// Store reads and saves tenant configs. Get fails with apperr.ErrNotFound
// for a tenant that never saved one.
type Store interface {
	Get(ctx context.Context, tenantID string) (*Config, error)
	Put(ctx context.Context, cfg *Config) error
}

type gormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// AutoMigrate creates the config table.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Config{}); err != nil {
		return fmt.Errorf("agentconfig: migrate models: %w", err)
	}
	return nil
}

func (s *gormStore) Get(ctx context.Context, tenantID string) (*Config, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("agentconfig: tenant id is required: %w", apperr.ErrValidation)
	}
	var cfg Config
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("agentconfig: tenant %s: %w", tenantID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("agentconfig: load config: %w", err)
	}
	return &cfg, nil
}

// Put normalizes, validates and upserts cfg.
func (s *gormStore) Put(ctx context.Context, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("agentconfig: config is nil: %w", apperr.ErrValidation)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"schema_version", "company_name", "tone", "empathy_enabled", "allow_discount",
			"max_discount_amount", "signature", "default_language", "updated_at",
		}),
	}).Create(cfg).Error
	if err != nil {
		return fmt.Errorf("agentconfig: save config: %w", err)
	}
	return nil
}
