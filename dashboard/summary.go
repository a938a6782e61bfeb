// Package dashboard aggregates knowledge and support activity per tenant.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gorm.io/gorm"

	"supportdesk_back/knowledge"
	"supportdesk_back/support"
)

// Status reports which optional engines are live.
type Status struct {
	KnowledgeEngine bool `json:"knowledgeEngine"`
	PDFExtraction   bool `json:"pdfExtraction"`
	VectorIndex     bool `json:"vectorIndex"`
}

// Summary is the dashboard payload. Averages are nil without events.
type Summary struct {
	DocumentCount     int64            `json:"documentCount"`
	ReadyDocuments    int64            `json:"readyDocuments"`
	TotalChars        int64            `json:"totalChars"`
	EventCount        int64            `json:"eventCount"`
	AverageConfidence *float64         `json:"avgConfidence"`
	AverageLatencyMs  *float64         `json:"avgLatencyMs"`
	Outcomes          map[string]int64 `json:"outcomes"`
	Status            Status           `json:"status"`
}

// Service computes summaries. probe is called once per summary.
type Service struct {
	db    *gorm.DB
	probe func() Status
}

func NewService(db *gorm.DB, probe func() Status) *Service {
	return &Service{db: db, probe: probe}
}

// Summary aggregates over tenantID, or over everything when it is empty.
// Platform documents count only in the global view.
func (s *Service) Summary(ctx context.Context, tenantID string) (*Summary, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("dashboard: service not initialised")
	}

	summary := &Summary{Outcomes: map[string]int64{}}
	if s.probe != nil {
		summary.Status = s.probe()
	}

	scoped := func(model interface{}) *gorm.DB {
		query := s.db.WithContext(ctx).Model(model)
		if tenantID != "" {
			query = query.Where("tenant_id = ?", tenantID)
		}
		return query
	}

	var docs struct {
		Total int64
		Ready int64
		Chars int64
	}
	err := scoped(&knowledge.Document{}).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS ready, COALESCE(SUM(char_count), 0) AS chars", knowledge.StatusReady).
		Scan(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("dashboard: document stats: %w", err)
	}
	summary.DocumentCount = docs.Total
	summary.ReadyDocuments = docs.Ready
	summary.TotalChars = docs.Chars

	var events struct {
		Total         int64
		AvgConfidence *float64
		AvgLatency    *float64
	}
	err = scoped(&support.Event{}).
		Select("COUNT(*) AS total, AVG(confidence) AS avg_confidence, AVG(latency_ms) AS avg_latency").
		Scan(&events).Error
	if err != nil {
		return nil, fmt.Errorf("dashboard: event stats: %w", err)
	}
	summary.EventCount = events.Total
	summary.AverageConfidence = round(events.AvgConfidence, 100)
	summary.AverageLatencyMs = round(events.AvgLatency, 1)

	var outcomes []struct {
		Outcome string
		Count   int64
	}
	err = scoped(&support.Event{}).
		Select("outcome, COUNT(*) AS count").
		Group("outcome").
		Scan(&outcomes).Error
	if err != nil {
		return nil, fmt.Errorf("dashboard: outcome counts: %w", err)
	}
	for _, row := range outcomes {
		summary.Outcomes[row.Outcome] = row.Count
	}
	return summary, nil
}

func round(value *float64, scale float64) *float64 {
	if value == nil || math.IsNaN(*value) || math.IsInf(*value, 0) {
		return nil
	}
	rounded := math.Round(*value*scale) / scale
	return &rounded
}
