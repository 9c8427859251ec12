package openai

import (
	"context"
	"fmt"
	"math"

	"github.com/pgvector/pgvector-go"
	openai "github.com/sashabaranov/go-openai"

	"concierge-api/internal/domain/entity"
)

// EmbeddingClient wraps the embedding backend. One instance serves both the
// ingestion and query paths so indexed vectors and query vectors always come
// from the same model; its Model() tag is stored alongside every vector.
type EmbeddingClient struct {
	client    *openai.Client
	model     string
	dimension int
}

// NewEmbeddingClient creates an embedding client for a fixed model and
// output dimensionality.
func NewEmbeddingClient(apiKey, model string, dimension int) *EmbeddingClient {
	return &EmbeddingClient{
		client:    openai.NewClient(apiKey),
		model:     model,
		dimension: dimension,
	}
}

// Model returns the model tag stored with every vector this client produces.
func (c *EmbeddingClient) Model() string { return c.model }

// Dimension returns the fixed output dimensionality.
func (c *EmbeddingClient) Dimension() int { return c.dimension }

// EmbedTexts embeds a batch of texts. Vectors are L2-normalized so cosine
// similarity and dot product are interchangeable downstream.
func (c *EmbeddingClient) EmbedTexts(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(c.model),
		Dimensions: c.dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrEmbeddingUnavailable, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", entity.ErrEmbeddingUnavailable, len(resp.Data), len(texts))
	}

	vectors := make([]pgvector.Vector, len(resp.Data))
	for i, data := range resp.Data {
		embedding := make([]float32, len(data.Embedding))
		copy(embedding, data.Embedding)
		vectors[i] = pgvector.NewVector(l2Normalize(embedding))
	}

	return vectors, nil
}

func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		v[i] = float32(float64(x) / norm)
	}
	return v
}
