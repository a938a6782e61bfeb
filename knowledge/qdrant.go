package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"supportdesk_back/config"
)

const (
	defaultCollection = "knowledge_chunks"
	// platformTenantKey stands in for a NULL tenant in point payloads.
	platformTenantKey = "platform"
)

type QdrantPoint struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

type QdrantSearchResult struct {
	ID      string                 `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

type qdrantClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// newQdrantClientFromEnv returns nil when QDRANT_URL is unset.
func newQdrantClientFromEnv() (*qdrantClient, error) {
	baseURL := config.String("QDRANT_URL", "")
	if baseURL == "" {
		return nil, nil
	}
	return newQdrantClient(baseURL, config.String("QDRANT_API_KEY", ""))
}

func newQdrantClient(baseURL, apiKey string) (*qdrantClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("knowledge: invalid Qdrant URL %q", baseURL)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("knowledge: parse Qdrant URL: %w", err)
	}
	return &qdrantClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}, nil
}

func (c *qdrantClient) do(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	if c == nil {
		return errors.New("knowledge: qdrant client is not configured")
	}
	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return fmt.Errorf("knowledge: encode qdrant payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("knowledge: create qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("knowledge: qdrant %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("knowledge: qdrant %s %s status %s: %s", method, path, resp.Status, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("knowledge: decode qdrant response: %w", err)
	}
	return nil
}

func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

func (c *qdrantClient) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	if vectorSize <= 0 {
		return errors.New("knowledge: vector size must be positive")
	}
	payload := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	err := c.do(ctx, http.MethodPut, collectionPath(name), payload, nil)
	if err != nil && strings.Contains(err.Error(), "already exists") {
		return nil
	}
	return err
}

func (c *qdrantClient) UpsertPoints(ctx context.Context, collection string, points []QdrantPoint) error {
	if len(points) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPut, collectionPath(collection)+"/points?wait=true", map[string]interface{}{"points": points}, nil)
}

func (c *qdrantClient) DeleteByFilter(ctx context.Context, collection string, filter map[string]interface{}) error {
	return c.do(ctx, http.MethodPost, collectionPath(collection)+"/points/delete?wait=true", map[string]interface{}{"filter": filter}, nil)
}

func (c *qdrantClient) Search(ctx context.Context, collection string, vector []float32, threshold float64, limit int, filter map[string]interface{}) ([]QdrantSearchResult, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	payload := map[string]interface{}{
		"vector":          vector,
		"limit":           limit,
		"with_payload":    true,
		"score_threshold": threshold,
	}
	if filter != nil {
		payload["filter"] = filter
	}

	var decoded struct {
		Result []struct {
			ID      interface{}            `json:"id"`
			Score   float64                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, collectionPath(collection)+"/points/search", payload, &decoded); err != nil {
		return nil, err
	}

	results := make([]QdrantSearchResult, 0, len(decoded.Result))
	for _, item := range decoded.Result {
		results = append(results, QdrantSearchResult{
			ID:      stringifyQdrantID(item.ID),
			Score:   item.Score,
			Payload: item.Payload,
		})
	}
	return results, nil
}

func stringifyQdrantID(id interface{}) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func matchField(key string, value string) map[string]interface{} {
	return map[string]interface{}{"key": key, "match": map[string]interface{}{"value": value}}
}

// qdrantScopeFilter mirrors scopeCondition for point payloads.
func qdrantScopeFilter(scope Scope) map[string]interface{} {
	if scope.IsPlatform() {
		return map[string]interface{}{"must": []interface{}{matchField("tenant_id", platformTenantKey)}}
	}
	return map[string]interface{}{
		"should": []interface{}{
			matchField("tenant_id", scope.TenantID),
			matchField("tenant_id", platformTenantKey),
		},
	}
}

// qdrantChunkStore keeps chunk rows in the relational store and delegates
// vector search to Qdrant.
type qdrantChunkStore struct {
	rows       *gormChunkStore
	db         *gorm.DB
	client     *qdrantClient
	collection string

	ensureMu sync.Mutex
	ensured  bool
}

// NewQdrantChunkStoreFromEnv returns nil when Qdrant is not configured.
func NewQdrantChunkStoreFromEnv(db *gorm.DB) (ChunkStore, error) {
	client, err := newQdrantClientFromEnv()
	if err != nil || client == nil {
		return nil, err
	}
	return newQdrantChunkStore(db, client, config.String("QDRANT_COLLECTION", defaultCollection)), nil
}

func newQdrantChunkStore(db *gorm.DB, client *qdrantClient, collection string) *qdrantChunkStore {
	return &qdrantChunkStore{
		rows:       &gormChunkStore{db: db},
		db:         db,
		client:     client,
		collection: collection,
	}
}

func (s *qdrantChunkStore) ensure(ctx context.Context, size int) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.ensured {
		return nil
	}
	if err := s.client.EnsureCollection(ctx, s.collection, size); err != nil {
		return err
	}
	s.ensured = true
	return nil
}

func (s *qdrantChunkStore) DeleteAllForDocument(ctx context.Context, documentID string) error {
	filter := map[string]interface{}{"must": []interface{}{matchField("document_id", documentID)}}
	if err := s.client.DeleteByFilter(ctx, s.collection, filter); err != nil {
		return err
	}
	return s.rows.DeleteAllForDocument(ctx, documentID)
}

func (s *qdrantChunkStore) InsertMany(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]QdrantPoint, 0, len(chunks))
	for _, chunk := range chunks {
		vector, err := chunk.Vector()
		if err != nil {
			return err
		}
		tenant := platformTenantKey
		if chunk.TenantID != nil && *chunk.TenantID != "" {
			tenant = *chunk.TenantID
		}
		points = append(points, QdrantPoint{
			ID:     chunk.ID,
			Vector: vector,
			Payload: map[string]interface{}{
				"tenant_id":   tenant,
				"document_id": chunk.DocumentID,
				"category":    chunk.Category,
				"chunk_index": chunk.ChunkIndex,
			},
		})
	}

	if err := s.ensure(ctx, len(points[0].Vector)); err != nil {
		return err
	}
	if err := s.rows.InsertMany(ctx, chunks); err != nil {
		return err
	}
	return s.client.UpsertPoints(ctx, s.collection, points)
}

func (s *qdrantChunkStore) IndexDimensions(ctx context.Context, excludeDocumentID string) (int, error) {
	return s.rows.IndexDimensions(ctx, excludeDocumentID)
}

func (s *qdrantChunkStore) SearchBySimilarity(ctx context.Context, scope Scope, vector []float32, threshold float64, limit int) ([]ScoredChunk, error) {
	hits, err := s.client.Search(ctx, s.collection, vector, threshold, limit, qdrantScopeFilter(scope))
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		ids = append(ids, hit.ID)
	}
	var rows []Chunk
	// the scope is applied again so a stale payload can never leak rows
	query := scopeCondition(s.db.WithContext(ctx).Model(&Chunk{}), scope)
	if err := query.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("knowledge: load chunks for search hits: %w", err)
	}
	byID := make(map[string]Chunk, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	results := make([]ScoredChunk, 0, len(hits))
	for _, hit := range hits {
		row, ok := byID[hit.ID]
		if !ok {
			continue
		}
		results = append(results, ScoredChunk{Chunk: row, Score: hit.Score})
	}
	sortByScore(results)
	return results, nil
}
