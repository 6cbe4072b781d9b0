package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newEmbedTestClient(endpoint string, httpClient *http.Client, dim int) *EmbedClient {
	return NewEmbedClient(testClient(endpoint, httpClient), dim)
}

func TestEmbedReturnsVectorsInInputOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "test-embed" || req.Dimensions != 2 {
			t.Errorf("unexpected request: %+v", req)
		}
		// Deliberately out of order: the index field drives placement.
		fmt.Fprint(w, `{"data":[
			{"index":1,"embedding":[0.0,1.0]},
			{"index":0,"embedding":[1.0,0.0]}
		]}`)
	}))
	defer server.Close()

	vectors, err := newEmbedTestClient(server.URL, server.Client(), 2).
		Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Errorf("vectors out of order: %v", vectors)
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	vectors, err := newEmbedTestClient("http://unused", nil, 2).Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil, got %v", vectors)
	}
}

func TestValidateRejectsDimensionMismatch(t *testing.T) {
	client := &EmbedClient{dim: 3}
	_, err := client.validate(embedResponse{Data: []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}{{Index: 0, Embedding: []float32{1, 2}}}}, 1)

	if err == nil || !strings.Contains(err.Error(), "dimension mismatch") {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestValidateRejectsCountMismatch(t *testing.T) {
	client := &EmbedClient{dim: 2}
	_, err := client.validate(embedResponse{}, 2)
	if err == nil || !strings.Contains(err.Error(), "count mismatch") {
		t.Fatalf("expected count mismatch, got %v", err)
	}
}

func TestValidateRejectsNonFiniteComponents(t *testing.T) {
	client := &EmbedClient{dim: 2}
	_, err := client.validate(embedResponse{Data: []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}{{Index: 0, Embedding: []float32{1, float32(math.NaN())}}}}, 1)

	if err == nil || !strings.Contains(err.Error(), "not finite") {
		t.Fatalf("expected finiteness error, got %v", err)
	}
}
