// Package embed provides the HTTP embedding clients the MlBridge
// adapter delegates to: Ollama-style local inference and the OpenAI
// embeddings API, behind one Embedder interface. The substrate core
// never calls this package directly — embedding generation is a
// collaborator concern, reached only through pkg/mlbridge.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Embedder turns text into a fixed-dimensionality vector.
type Embedder interface {
	// Embed generates the embedding for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for several texts in one call
	// where the provider supports it.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimensionality this embedder
	// produces.
	Dimensions() int

	// Model returns the embedding model name.
	Model() string
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider   string        // "ollama" or "openai"
	APIURL     string        // e.g. http://localhost:11434
	APIPath    string        // e.g. /api/embeddings or /v1/embeddings
	APIKey     string        // OpenAI only
	Model      string        // e.g. mxbai-embed-large
	Dimensions int           // expected dimensionality, validated on every response
	Timeout    time.Duration
}

// DefaultOllamaConfig targets a local Ollama instance with
// mxbai-embed-large (1024 dimensions).
func DefaultOllamaConfig() *Config {
	return &Config{
		Provider:   "ollama",
		APIURL:     "http://localhost:11434",
		APIPath:    "/api/embeddings",
		Model:      "mxbai-embed-large",
		Dimensions: 1024,
		Timeout:    30 * time.Second,
	}
}

// DefaultOpenAIConfig targets text-embedding-3-small (1536 dimensions).
func DefaultOpenAIConfig(apiKey string) *Config {
	return &Config{
		Provider:   "openai",
		APIURL:     "https://api.openai.com",
		APIPath:    "/v1/embeddings",
		APIKey:     apiKey,
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    30 * time.Second,
	}
}

// NewEmbedder builds the Embedder config names.
func NewEmbedder(config *Config) (Embedder, error) {
	if config == nil {
		config = DefaultOllamaConfig()
	}
	switch config.Provider {
	case "ollama", "":
		return NewOllama(config), nil
	case "openai":
		if config.APIKey == "" {
			return nil, fmt.Errorf("embed: openai provider requires an API key")
		}
		return NewOpenAI(config), nil
	default:
		return nil, fmt.Errorf("embed: unknown provider %q", config.Provider)
	}
}

// checkDimensions rejects a response vector of the wrong size before
// it can poison the vector index.
func checkDimensions(got, want int, model string) error {
	if want > 0 && got != want {
		return fmt.Errorf("embed: model %s returned %d dimensions, expected %d", model, got, want)
	}
	return nil
}

// OllamaEmbedder calls a local Ollama-compatible /api/embeddings
// endpoint, one text per request (the API has no batch form).
type OllamaEmbedder struct {
	config *Config
	client *http.Client
}

// NewOllama builds an OllamaEmbedder; a nil config uses the defaults.
func NewOllama(config *Config) *OllamaEmbedder {
	if config == nil {
		config = DefaultOllamaConfig()
	}
	return &OllamaEmbedder{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaRequest{Model: e.config.Model, Prompt: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.APIURL+e.config.APIPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: ollama request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed: ollama status %d: %s", resp.StatusCode, string(respBody))
	}

	var out ollamaResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("embed: ollama response: %w", err)
	}
	if err := checkDimensions(len(out.Embedding), e.config.Dimensions, e.config.Model); err != nil {
		return nil, err
	}
	return out.Embedding, nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (e *OllamaEmbedder) Dimensions() int { return e.config.Dimensions }

func (e *OllamaEmbedder) Model() string { return e.config.Model }

// OpenAIEmbedder calls the OpenAI embeddings API, batching natively.
type OpenAIEmbedder struct {
	config *Config
	client *http.Client
}

// NewOpenAI builds an OpenAIEmbedder over config.
func NewOpenAI(config *Config) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

type openaiRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(openaiRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.APIURL+e.config.APIPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: openai request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var out openaiResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("embed: openai response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if out.Error != nil {
			msg = out.Error.Message
		}
		return nil, fmt.Errorf("embed: openai status %d: %s", resp.StatusCode, msg)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("embed: openai returned %d embeddings for %d inputs", len(out.Data), len(texts))
	}

	// The API documents order-matching but indexes defensively.
	vectors := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embed: openai returned out-of-range index %d", d.Index)
		}
		if err := checkDimensions(len(d.Embedding), e.config.Dimensions, e.config.Model); err != nil {
			return nil, err
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return e.config.Dimensions }

func (e *OpenAIEmbedder) Model() string { return e.config.Model }
