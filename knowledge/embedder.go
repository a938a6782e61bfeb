package knowledge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"supportdesk_back/apperr"
	"supportdesk_back/config"
)

// Embedder turns text into a fixed-length vector. Implementations fail with
// apperr.ErrProvider rather than returning placeholder vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type openAIEmbedder struct {
	client     *openai.Client
	modelID    string
	expectDim  int
	dimensions int
	limiter    *rate.Limiter
}

// EmbedderOptions configures an OpenAI-compatible embedding endpoint.
type EmbedderOptions struct {
	BaseURL string
	APIKey  string
	ModelID string
	// ExpectDim rejects vectors of any other length when positive.
	ExpectDim int
	// Dimensions is forwarded to providers that can shorten vectors.
	Dimensions int
	// RequestsPerSecond throttles calls; zero disables throttling.
	RequestsPerSecond float64
	Timeout           time.Duration
	HTTPClient        *http.Client
}

// NewHTTPEmbedderFromEnv reads EMBEDDING_* variables, falling back to the
// OpenAI key used by the chat client.
func NewHTTPEmbedderFromEnv() (Embedder, error) {
	apiKey := config.String("EMBEDDING_API_KEY", config.String("OPENAI_API_KEY", config.String("LLM_API_KEY", "")))
	if apiKey == "" {
		return nil, errors.New("knowledge: embedding API key is required")
	}
	expectDim := config.Int("EMBEDDING_VECTOR_DIM", config.Int("QDRANT_VECTOR_DIM", 0))

	return NewHTTPEmbedder(EmbedderOptions{
		BaseURL:           config.String("EMBEDDING_BASE_URL", config.String("OPENAI_BASE_URL", "https://api.openai.com/v1")),
		APIKey:            apiKey,
		ModelID:           config.String("EMBEDDING_MODEL_ID", "text-embedding-3-small"),
		ExpectDim:         expectDim,
		Dimensions:        config.Int("EMBEDDING_DIMENSIONS", expectDim),
		RequestsPerSecond: config.Float("EMBEDDING_RPS", 5),
		Timeout:           config.Duration("EMBEDDING_TIMEOUT", 30*time.Second),
	})
}

func NewHTTPEmbedder(opts EmbedderOptions) (Embedder, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("knowledge: invalid embedding base URL %q", baseURL)
	}
	if strings.TrimSpace(opts.ModelID) == "" {
		return nil, errors.New("knowledge: embedding model is required")
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = baseURL
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	cfg.HTTPClient = httpClient

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &openAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		modelID:    strings.TrimSpace(opts.ModelID),
		expectDim:  opts.ExpectDim,
		dimensions: opts.Dimensions,
		limiter:    limiter,
	}, nil
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e == nil || e.client == nil {
		return nil, fmt.Errorf("knowledge: embedder is not configured: %w", apperr.ErrProvider)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("knowledge: cannot embed blank text: %w", apperr.ErrValidation)
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("knowledge: embedding rate limiter: %w", err)
		}
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      openai.EmbeddingModel(e.modelID),
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("knowledge: embedding request failed: %w: %w", apperr.ErrProvider, err)
	}
	if len(resp.Data) != 1 {
		return nil, fmt.Errorf("knowledge: embedding response count mismatch (expected 1, got %d): %w", len(resp.Data), apperr.ErrProvider)
	}

	vector := resp.Data[0].Embedding
	if len(vector) == 0 {
		return nil, fmt.Errorf("knowledge: embedding response is empty: %w", apperr.ErrProvider)
	}
	if e.expectDim > 0 && len(vector) != e.expectDim {
		return nil, fmt.Errorf("knowledge: embedding length %d does not match expected %d: %w", len(vector), e.expectDim, apperr.ErrProvider)
	}
	if zeroMagnitude(vector) {
		return nil, fmt.Errorf("knowledge: embedding has zero magnitude: %w", apperr.ErrProvider)
	}
	return vector, nil
}

func zeroMagnitude(vector []float32) bool {
	for _, value := range vector {
		if value != 0 {
			return false
		}
	}
	return true
}
