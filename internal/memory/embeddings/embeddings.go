// Package embeddings computes vector embeddings for memory storage and
// semantic retrieval.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/haasonsaas/agentdesk/pkg/models"
	"github.com/sashabaranov/go-openai"
)

// ErrEmptyEmbedding is returned when the upstream answers without a vector.
var ErrEmptyEmbedding = errors.New("embeddings: empty embedding returned")

// DefaultModel is used when credentials name no model.
const DefaultModel = "text-embedding-3-small"

// DefaultBaseURL is used when credentials name no endpoint.
const DefaultBaseURL = "https://api.openai.com/v1"

// Embedder turns text into a vector using the caller's credentials.
type Embedder interface {
	Embed(ctx context.Context, creds models.EmbeddingCredentials, text string) ([]float32, error)
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	httpClient *http.Client
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder; nil httpClient uses http.DefaultClient.
func NewOpenAIEmbedder(httpClient *http.Client) *OpenAIEmbedder {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAIEmbedder{httpClient: httpClient}
}

// Embed generates an embedding for a single text. Any upstream failure or a
// response without a vector is an error.
func (e *OpenAIEmbedder) Embed(ctx context.Context, creds models.EmbeddingCredentials, text string) ([]float32, error) {
	if strings.TrimSpace(creds.APIKey) == "" {
		return nil, errors.New("embeddings: api key is required")
	}
	model := strings.TrimSpace(creds.Model)
	if model == "" {
		model = DefaultModel
	}
	config := openai.DefaultConfig(creds.APIKey)
	config.BaseURL = DefaultBaseURL
	if base := strings.TrimSpace(creds.BaseURL); base != "" {
		config.BaseURL = strings.TrimRight(base, "/")
	}
	config.HTTPClient = e.httpClient

	resp, err := openai.NewClientWithConfig(config).CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings: create: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp.Data[0].Embedding, nil
}
