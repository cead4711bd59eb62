// Package embedding generates vector embeddings for semantic search.
// Two variants share the EmbeddingEngine contract: a local model reached over
// a localhost HTTP daemon (Ollama), loaded lazily on first use, and a remote
// HTTP model reached over an arbitrary endpoint. Both truncate oversized
// inputs and report failure as a nil vector rather than a hard stop -- the
// context assembler always has FTS5 to fall back on.
package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"muninn/internal/logging"
)

// maxLocalChars is the character cap applied before sending text to the
// local model; embeddinggemma's effective token window is well under this
// in the worst case (non-ASCII-heavy code comments).
const maxLocalChars = 512

// EmbeddingEngine generates vector embeddings for text.
type EmbeddingEngine interface {
	// Embed generates an embedding for a single text. On failure it returns
	// a nil vector and an error; callers fall back to FTS.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. Individual
	// failures surface as a nil entry at that index, not a hard error.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings this engine
	// produces. Stable for a project's lifetime; changing it requires
	// a full reindex.
	Dimensions() int

	// Name returns a human-readable engine identifier for logging.
	Name() string
}

// HealthChecker is an optional interface embedding engines can implement to
// let callers probe availability before a batch operation.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// IsAvailable reports whether engine can currently serve requests. Engines
// that don't implement HealthChecker are assumed available.
func IsAvailable(ctx context.Context, engine EmbeddingEngine) bool {
	hc, ok := engine.(HealthChecker)
	if !ok {
		return true
	}
	return hc.HealthCheck(ctx) == nil
}

// Config holds embedding engine configuration.
type Config struct {
	// Provider selects the backend: "ollama" (local daemon) or "remote"
	// (arbitrary HTTP JSON embedding endpoint).
	Provider string `json:"provider"`

	OllamaEndpoint string `json:"ollama_endpoint"`
	OllamaModel    string `json:"ollama_model"`

	RemoteEndpoint string `json:"remote_endpoint"`
	RemoteModel    string `json:"remote_model"`
	RemoteAPIKey   string `json:"remote_api_key"`

	TimeoutSec int `json:"timeout_sec"`
}

// DefaultConfig returns sensible defaults: local Ollama, 30s timeout.
func DefaultConfig() Config {
	return Config{
		Provider:       "ollama",
		OllamaEndpoint: "http://localhost:11434",
		OllamaModel:    "embeddinggemma",
		TimeoutSec:     30,
	}
}

// FromFields builds an engine Config from the flat fields carried by
// internal/config.EmbeddingConfig, keeping this package free of a direct
// dependency on the config package.
func FromFields(provider, endpoint, model, apiKey string, timeoutSec int) Config {
	cfg := DefaultConfig()
	if provider != "" {
		cfg.Provider = provider
	}
	switch cfg.Provider {
	case "remote":
		cfg.RemoteEndpoint = endpoint
		cfg.RemoteModel = model
		cfg.RemoteAPIKey = apiKey
	default:
		if endpoint != "" {
			cfg.OllamaEndpoint = endpoint
		}
		if model != "" {
			cfg.OllamaModel = model
		}
	}
	if timeoutSec > 0 {
		cfg.TimeoutSec = timeoutSec
	}
	return cfg
}

// NewEngine creates an embedding engine based on configuration, wrapped in
// a singleflight collapser so concurrent duplicate requests for the same
// text share one round trip.
func NewEngine(cfg Config) (EmbeddingEngine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	logging.Embedding("creating embedding engine with provider=%s", cfg.Provider)

	var engine EmbeddingEngine
	var err error

	switch cfg.Provider {
	case "ollama", "":
		logging.Embedding("initializing ollama embedding engine: endpoint=%s model=%s", cfg.OllamaEndpoint, cfg.OllamaModel)
		engine, err = NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "remote":
		logging.Embedding("initializing remote embedding engine: endpoint=%s model=%s", cfg.RemoteEndpoint, cfg.RemoteModel)
		engine, err = NewRemoteEngine(cfg.RemoteEndpoint, cfg.RemoteModel, cfg.RemoteAPIKey)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'ollama' or 'remote')", cfg.Provider)
	}
	if err != nil {
		logging.EmbeddingError("failed to create embedding engine: %v", err)
		return nil, err
	}

	logging.Embedding("embedding engine created: name=%s dimensions=%d", engine.Name(), engine.Dimensions())
	return &singleflightEngine{inner: engine}, nil
}

// singleflightEngine collapses concurrent Embed calls for identical text
// into a single in-flight request, per the embedder's duplicate-collapsing
// contract.
type singleflightEngine struct {
	inner EmbeddingEngine
	group singleflight.Group
}

func (e *singleflightEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err, _ := e.group.Do(text, func() (interface{}, error) {
		return e.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	vec, _ := v.([]float32)
	return vec, nil
}

func (e *singleflightEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.inner.EmbedBatch(ctx, texts)
}

func (e *singleflightEngine) Dimensions() int { return e.inner.Dimensions() }
func (e *singleflightEngine) Name() string    { return e.inner.Name() }

func (e *singleflightEngine) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// truncate caps text at max runes, matching the provider's effective
// token-window limit.
func truncate(text string, max int) string {
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max])
}

// CosineSimilarity calculates the cosine similarity between two vectors.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dotProduct, aMagnitude, bMagnitude float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i] * b[i])
		aMagnitude += float64(a[i] * a[i])
		bMagnitude += float64(b[i] * b[i])
	}

	if aMagnitude == 0 || bMagnitude == 0 {
		return 0, nil
	}
	return dotProduct / (math.Sqrt(aMagnitude) * math.Sqrt(bMagnitude)), nil
}

// SimilarityResult represents a similarity search result.
type SimilarityResult struct {
	Index      int
	Similarity float64
}

// FindTopK returns the indices of the top K most similar vectors to the
// query, by cosine similarity. Dimension-mismatched corpus entries are
// skipped rather than failing the whole search.
func FindTopK(query []float32, corpus [][]float32, k int) ([]SimilarityResult, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "FindTopK")
	defer timer.Stop()

	if k <= 0 {
		k = 10
	}

	results := make([]SimilarityResult, 0, len(corpus))
	skipped := 0
	for i, vec := range corpus {
		sim, err := CosineSimilarity(query, vec)
		if err != nil {
			skipped++
			continue
		}
		results = append(results, SimilarityResult{Index: i, Similarity: sim})
	}
	if skipped > 0 {
		logging.EmbeddingDebug("FindTopK: skipped %d dimension-mismatched vectors", skipped)
	}

	sortStart := time.Now()
	for i := 0; i < len(results) && i < k; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Similarity > results[i].Similarity {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
	logging.EmbeddingDebug("FindTopK: sort completed in %v", time.Since(sortStart))

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
