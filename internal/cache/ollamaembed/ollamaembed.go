// Package ollamaembed implements internal/cache's EmbeddingProvider over a
// local Ollama server, adapted from
// internal/infra/memory.OllamaEmbedder in the retrieved pack (an
// embedding provider for that repo's own semantic memory store). Ported
// onto this module's EmbeddingProvider interface rather than recreated
// from scratch, so the prompt cache's semantic-similarity fallback has a
// concrete, runnable backend instead of only a test fake.
package ollamaembed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "http://localhost:11434"

// Embedder implements internal/cache.EmbeddingProvider using Ollama's
// embedding API, preferring the batch /api/embed endpoint and falling back
// to the older per-text /api/embeddings endpoint for servers that predate
// it.
type Embedder struct {
	baseURL string
	model   string
	client  *http.Client
}

// New constructs an Embedder for the given model, talking to baseURL (or
// the default local Ollama address if baseURL is empty).
func New(model, baseURL string) *Embedder {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return &Embedder{
		baseURL: baseURL,
		model:   strings.TrimSpace(model),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Embed generates embeddings for a batch of texts.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if e.model == "" {
		return nil, fmt.Errorf("ollamaembed: embedder requires a model name")
	}

	embeddings, fallback, err := e.embedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if !fallback {
		return embeddings, nil
	}
	return e.embedFallback(ctx, texts)
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, bool, error) {
	status, body, err := e.postJSON(ctx, "/api/embed", map[string]any{
		"model": e.model,
		"input": texts,
	})
	if err != nil {
		return nil, false, err
	}
	if status == http.StatusNotFound {
		return nil, true, nil
	}
	if status != http.StatusOK {
		return nil, false, fmt.Errorf("ollamaembed: /api/embed failed: %s", strings.TrimSpace(body))
	}
	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
		Error      string      `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return nil, false, err
	}
	if resp.Error != "" {
		return nil, false, fmt.Errorf("ollamaembed: /api/embed error: %s", resp.Error)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, false, fmt.Errorf("ollamaembed: /api/embed returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, false, nil
}

func (e *Embedder) embedFallback(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		status, body, err := e.postJSON(ctx, "/api/embeddings", map[string]any{
			"model":  e.model,
			"prompt": text,
		})
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("ollamaembed: /api/embeddings failed: %s", strings.TrimSpace(body))
		}
		var resp struct {
			Embedding []float32 `json:"embedding"`
			Error     string    `json:"error"`
		}
		if err := json.Unmarshal([]byte(body), &resp); err != nil {
			return nil, err
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("ollamaembed: /api/embeddings error: %s", resp.Error)
		}
		out = append(out, resp.Embedding)
	}
	return out, nil
}

func (e *Embedder) postJSON(ctx context.Context, path string, payload any) (int, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("ollamaembed: request failed: %w (try `ollama serve`)", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(respBody), nil
}
