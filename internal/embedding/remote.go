package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"muninn/internal/logging"
)

// maxRemoteChars is generous relative to maxLocalChars; remote providers
// typically front a larger-context model.
const maxRemoteChars = 4000

// RemoteEngine is the remote-HTTP-model variant: an arbitrary JSON endpoint
// accepting {model, input} and returning {embedding}; the dimension count
// is taken from the returned vector's length.
type RemoteEngine struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
	dims     int
}

// NewRemoteEngine builds the client. dimensions are learned from the first
// successful response and cached; until then Dimensions() reports 0.
func NewRemoteEngine(endpoint, model, apiKey string) (*RemoteEngine, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("remote embedding endpoint is required")
	}
	return &RemoteEngine{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (e *RemoteEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "Remote.Embed")
	defer timer.Stop()

	text = truncate(text, maxRemoteChars)

	body, err := json.Marshal(remoteEmbedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal remote request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build remote request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		logging.EmbeddingWarn("remote embedding request failed, caller should fall back to FTS: %v", err)
		return nil, fmt.Errorf("remote request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("remote embedding endpoint returned status %d: %s", resp.StatusCode, string(b))
	}

	var result remoteEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode remote response: %w", err)
	}
	if len(result.Embedding) > 0 {
		e.dims = len(result.Embedding)
	}
	return result.Embedding, nil
}

// EmbedBatch posts the whole batch in one request when the endpoint
// supports it, falling back to sequential Embed calls on a non-2xx reply
// (some remote providers don't implement batch input).
func (e *RemoteEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	capped := make([]string, len(texts))
	for i, t := range texts {
		capped[i] = truncate(t, maxRemoteChars)
	}

	body, err := json.Marshal(remoteEmbedBatchRequest{Model: e.model, Input: capped})
	if err == nil {
		if vectors, ok := e.tryBatch(ctx, body); ok {
			return vectors, nil
		}
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			logging.EmbeddingWarn("Remote.EmbedBatch: text %d failed: %v", i, err)
			continue
		}
		out[i] = vec
	}
	return out, nil
}

func (e *RemoteEngine) tryBatch(ctx context.Context, body []byte) ([][]float32, bool) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	var result remoteEmbedBatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, false
	}
	if len(result.Embeddings) > 0 && len(result.Embeddings[0]) > 0 {
		e.dims = len(result.Embeddings[0])
	}
	return result.Embeddings, true
}

func (e *RemoteEngine) Dimensions() int { return e.dims }

func (e *RemoteEngine) Name() string { return fmt.Sprintf("remote:%s", e.model) }

func (e *RemoteEngine) HealthCheck(ctx context.Context) error {
	_, err := e.Embed(ctx, "health check")
	return err
}

type remoteEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type remoteEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

type remoteEmbedBatchRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type remoteEmbedBatchResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}
