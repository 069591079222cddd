package mlbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tabagent/nornicsubstrate/pkg/dberr"
	"github.com/tabagent/nornicsubstrate/pkg/embed"
)

// EntityExtractorConfig configures Adapter's entity-extraction HTTP
// call, mirroring pkg/embed.Config's provider/URL/path/timeout shape
// (same "local inference service over HTTP" idiom, different route).
type EntityExtractorConfig struct {
	APIURL  string
	APIPath string
	Timeout time.Duration
}

// DefaultEntityExtractorConfig points at a local NER service the way
// embed.DefaultOllamaConfig points at a local embedding service.
func DefaultEntityExtractorConfig() *EntityExtractorConfig {
	return &EntityExtractorConfig{
		APIURL:  "http://localhost:11434",
		APIPath: "/api/extract-entities",
		Timeout: 30 * time.Second,
	}
}

// Adapter implements MlBridge on top of an embed.Embedder for
// GenerateEmbedding plus a small HTTP JSON client for entity
// extraction and summarization, using the same request/response
// shape as embed.OllamaEmbedder.Embed.
type Adapter struct {
	embedder embed.Embedder
	entCfg   *EntityExtractorConfig
	client   *http.Client
}

// NewAdapter wraps embedder (as returned by embed.NewEmbedder) and an
// entity-extraction endpoint config into an MlBridge.
func NewAdapter(embedder embed.Embedder, entCfg *EntityExtractorConfig) *Adapter {
	if entCfg == nil {
		entCfg = DefaultEntityExtractorConfig()
	}
	return &Adapter{
		embedder: embedder,
		entCfg:   entCfg,
		client:   &http.Client{Timeout: entCfg.Timeout},
	}
}

// GenerateEmbedding delegates to the wrapped embed.Embedder.
func (a *Adapter) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec, err := a.embedder.Embed(ctx, text)
	if err != nil {
		return nil, dberr.NewBackend(dberr.BackendUnavailable, "embed: "+err.Error())
	}
	return vec, nil
}

// GetEmbeddingModelName names the wrapped embedder's model.
func (a *Adapter) GetEmbeddingModelName() string {
	return a.embedder.Model()
}

type extractEntitiesRequest struct {
	Text string `json:"text"`
}

type extractEntitiesResponse struct {
	Entities []ExtractedEntity `json:"entities"`
}

// ExtractEntities POSTs text to the configured NER endpoint.
func (a *Adapter) ExtractEntities(ctx context.Context, text string) ([]ExtractedEntity, error) {
	body, err := json.Marshal(extractEntitiesRequest{Text: text})
	if err != nil {
		return nil, dberr.ErrSerialization
	}

	url := a.entCfg.APIURL + a.entCfg.APIPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, dberr.NewBackend(dberr.BackendUnavailable, "extract-entities: "+err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, dberr.NewBackend(dberr.BackendUnavailable, fmt.Sprintf("extract-entities: status %d: %s", resp.StatusCode, string(respBody)))
	}

	var out extractEntitiesResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, dberr.ErrSerialization
	}
	return out.Entities, nil
}

type summarizeRequest struct {
	Texts []string `json:"texts"`
}

type summarizeResponse struct {
	Summary string `json:"summary"`
}

// Summarize POSTs texts to a sibling /api/summarize endpoint on the
// same entity-extraction host.
func (a *Adapter) Summarize(ctx context.Context, texts []string) (string, error) {
	body, err := json.Marshal(summarizeRequest{Texts: texts})
	if err != nil {
		return "", dberr.ErrSerialization
	}

	url := a.entCfg.APIURL + "/api/summarize"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", dberr.NewBackend(dberr.BackendUnavailable, "summarize: "+err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", dberr.NewBackend(dberr.BackendUnavailable, fmt.Sprintf("summarize: status %d", resp.StatusCode))
	}

	var out summarizeResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", dberr.ErrSerialization
	}
	return out.Summary, nil
}

// HealthCheck probes the entity-extraction host's /health route as a
// cheap liveness signal; the embedder is not contacted.
func (a *Adapter) HealthCheck(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.entCfg.APIURL+"/health", nil)
	if err != nil {
		return false, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false, nil
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}
