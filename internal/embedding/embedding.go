// Package embedding provides pluggable text embedding providers for the
// dense scorer.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/rcliao/evicted-rag/internal/model"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dims() int
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider string // "ollama" | "openai" | "" (disabled)
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

// New creates an embedder from cfg. A blank provider returns nil, nil:
// embeddings are disabled.
func New(cfg Config) (Embedder, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	switch cfg.Provider {
	case "":
		return nil, nil
	case "ollama":
		return NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Timeout), nil
	case "openai":
		return NewOpenAIEmbedder(cfg.BaseURL, cfg.APIKey, cfg.Model, 0, cfg.Timeout), nil
	default:
		return nil, model.Configurationf("unknown embedding provider %q (valid: ollama, openai)", cfg.Provider)
	}
}

// CosineSimilarity computes cosine similarity between two vectors.
// Mismatched or empty vectors score 0.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// postJSON sends body to url and decodes the JSON response into out.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// --- Ollama ---

// OllamaEmbedder uses a local Ollama instance.
type OllamaEmbedder struct {
	baseURL string
	model   string
	dims    int
	client  *http.Client
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllamaEmbedder creates an Ollama embedder. Default model is
// nomic-embed-text (768 dims); all-minilm has 384.
func NewOllamaEmbedder(baseURL, model string, timeout time.Duration) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	dims := 768
	if model == "all-minilm" {
		dims = 384
	}
	return &OllamaEmbedder{
		baseURL: baseURL,
		model:   model,
		dims:    dims,
		client:  &http.Client{Timeout: timeout},
	}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	var result ollamaResponse
	err := postJSON(ctx, e.client, e.baseURL+"/api/embeddings", nil,
		ollamaRequest{Model: e.model, Prompt: text}, &result)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama embed: empty embedding")
	}
	return result.Embedding, nil
}

func (e *OllamaEmbedder) Dims() int { return e.dims }

// --- OpenAI-compatible ---

// OpenAIEmbedder uses any OpenAI-compatible embedding API.
type OpenAIEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	dims    int
	client  *http.Client
}

type openaiEmbedRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewOpenAIEmbedder creates an embedder using an OpenAI-compatible API.
func NewOpenAIEmbedder(baseURL, apiKey, model string, dims int, timeout time.Duration) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dims == 0 {
		dims = 1536
	}
	return &OpenAIEmbedder{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		dims:    dims,
		client:  &http.Client{Timeout: timeout},
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	var headers map[string]string
	if e.apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + e.apiKey}
	}
	var result openaiEmbedResponse
	err := postJSON(ctx, e.client, e.baseURL+"/embeddings", headers,
		openaiEmbedRequest{Input: text, Model: e.model}, &result)
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai embed: no embedding returned")
	}
	return result.Data[0].Embedding, nil
}

func (e *OpenAIEmbedder) Dims() int { return e.dims }
