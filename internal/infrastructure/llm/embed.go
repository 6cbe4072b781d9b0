package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"aidigest/internal/ports"
	"aidigest/internal/retry"
)

// EmbedClient wraps the embeddings endpoint with strict vector
// validation: every vector must match the expected dimension and carry
// only finite components.
type EmbedClient struct {
	client *Client
	dim    int
}

var _ ports.Embedder = (*EmbedClient)(nil)

// NewEmbedClient wraps an existing API client.
func NewEmbedClient(client *Client, dim int) *EmbedClient {
	return &EmbedClient{client: client, dim: dim}
}

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input text, in input order.
func (e *EmbedClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{
		Model:      e.client.embedModel,
		Input:      texts,
		Dimensions: e.dim,
	})
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}

	var vectors [][]float32
	err = e.client.policy.Do(ctx, func() error {
		raw, err := e.client.post(ctx, "/embeddings", body)
		if err != nil {
			return err
		}

		var decoded embedResponse
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return &retry.MalformedError{Err: fmt.Errorf("decode embed response: %w", err)}
		}

		validated, err := e.validate(decoded, len(texts))
		if err != nil {
			return &retry.MalformedError{Err: err}
		}
		vectors = validated
		return nil
	})
	return vectors, err
}

// validate enforces count, dimension and finiteness. A violation fails
// the whole batch rather than storing a partial or corrupt vector.
func (e *EmbedClient) validate(decoded embedResponse, want int) ([][]float32, error) {
	if len(decoded.Data) != want {
		return nil, fmt.Errorf("embedding count mismatch: want %d, got %d", want, len(decoded.Data))
	}

	vectors := make([][]float32, want)
	for _, item := range decoded.Data {
		if item.Index < 0 || item.Index >= want {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		if len(item.Embedding) != e.dim {
			return nil, fmt.Errorf("embedding dimension mismatch: want %d, got %d", e.dim, len(item.Embedding))
		}
		for i, v := range item.Embedding {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return nil, fmt.Errorf("embedding component %d is not finite", i)
			}
		}
		vectors[item.Index] = item.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("embedding for input %d is missing", i)
		}
	}
	return vectors, nil
}
