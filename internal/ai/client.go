package ai

import (
	"context"
	"crypto/sha256"
	"errors"
)

// Client is the embedding provider boundary. The orchestrator owns all
// batching, retry and backoff; implementations only translate one batch into
// one provider call.
type Client interface {
	// EmbedBatch embeds document texts. The result has one vector per input,
	// in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a search query into the same vector space as the
	// documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dim() int
}

// Provider is enumeration of supported embedding providers
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderVertexAI Provider = "vertexai"
	ProviderStub     Provider = "stub"
)

// ClientConfig holds configuration for embedding clients
type ClientConfig struct {
	APIKey     string
	EmbedModel string
	Dim        int
	ProjectID  string
	Provider   Provider
	Location   string
}

// NewClient creates a new embedding client based on configuration
func NewClient(ctx context.Context, config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderVertexAI:
		return NewVertexAIClient(ctx, config)
	case ProviderStub:
		return NewStubClient(config.Dim), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// StubClient produces deterministic embeddings without network calls, for
// tests and local development.
type StubClient struct {
	dim int
}

// NewStubClient creates a new StubClient
func NewStubClient(dim int) *StubClient {
	if dim <= 0 {
		dim = 8
	}
	return &StubClient{dim: dim}
}

// EmbedBatch derives one vector per text from its content hash.
func (s *StubClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = s.vector(t)
	}
	return out, nil
}

// EmbedQuery embeds a query the same way as documents.
func (s *StubClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.vector(text), nil
}

// Dim returns the embedding dimension
func (s *StubClient) Dim() int { return s.dim }

func (s *StubClient) vector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, s.dim)
	for i := range vec {
		vec[i] = float32(sum[i%len(sum)])/255.0 - 0.5
	}
	return vec
}
