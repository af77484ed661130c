// Package embedding backs the Ranker's semantic score and the Skill
// Store's vector index with swappable engines: Ollama (local) and Google
// GenAI (cloud). spec.md §4.2 treats semantic scoring as optional, so every
// engine here is expected to work (or be absent) without the rest of PRISM
// caring which one is configured.
package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/antigravity-dev/prism/internal/logging"
)

// =============================================================================
// EMBEDDING ENGINE INTERFACE
// =============================================================================

// EmbeddingEngine turns Skill bodies and Ranker queries into vectors.
type EmbeddingEngine interface {
	// Embed generates an embedding for one Skill body or query string.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds multiple Skill bodies in one call, for backends
	// that batch more efficiently than one Embed call per text.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector length this engine produces.
	Dimensions() int

	// Name returns the engine's identifier, logged and recorded by the Store.
	Name() string
}

// HealthChecker is an optional interface for embedding engines that support
// health checks. If an engine implements this interface, the system can
// verify availability before attempting batch operations.
type HealthChecker interface {
	// HealthCheck verifies the embedding service is reachable.
	// Returns nil if healthy, error otherwise.
	HealthCheck(ctx context.Context) error
}

// TaskTypeAwareEngine is an optional interface for engines that can project
// a Skill body and a Ranker query differently even though both share one
// vector space (spec.md §4.2, §4.3). embedDocument/embedQuery in
// internal/store prefer this over plain Embed when the configured engine
// implements it, and fall back to Embed for engines (like Ollama) that
// don't.
type TaskTypeAwareEngine interface {
	EmbedWithTask(ctx context.Context, text string, taskType TaskType) ([]float32, error)
}

// =============================================================================
// EMBEDDING CONFIGURATION
// =============================================================================

// Config selects and configures one embedding engine.
type Config struct {
	// Provider: "ollama" or "genai"
	Provider string `json:"provider"`

	// Ollama configuration.
	OllamaEndpoint string `json:"ollama_endpoint"` // Default: "http://localhost:11434"
	OllamaModel    string `json:"ollama_model"`    // Default: "embeddinggemma"

	// GenAI configuration.
	GenAIAPIKey string `json:"genai_api_key"`
	GenAIModel  string `json:"genai_model"` // Default: "gemini-embedding-001"

	// DefaultTaskType is the GenAI task type used by plain Embed calls,
	// before SelectTaskType's per-call document/query override applies.
	DefaultTaskType TaskType `json:"task_type"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider:        "ollama", // Default to local Ollama
		OllamaEndpoint:  "http://localhost:11434",
		OllamaModel:     "embeddinggemma",
		GenAIModel:      "gemini-embedding-001",
		DefaultTaskType: TaskDocument,
	}
}

// =============================================================================
// FACTORY
// =============================================================================

// NewEngine builds the engine named by cfg.Provider.
func NewEngine(cfg Config) (EmbeddingEngine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	logging.Embedding("embedding: building engine provider=%s", cfg.Provider)

	var engine EmbeddingEngine
	var err error

	switch cfg.Provider {
	case "ollama":
		engine, err = NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "genai":
		engine, err = NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.DefaultTaskType)
	default:
		err = fmt.Errorf("unsupported embedding provider: %s (use 'ollama' or 'genai')", cfg.Provider)
		logging.Get(logging.CategoryEmbedding).Error("embedding: %v", err)
		return nil, err
	}

	if err != nil {
		logging.Get(logging.CategoryEmbedding).Error("embedding: failed to build %s engine: %v", cfg.Provider, err)
		return nil, err
	}

	logging.Embedding("embedding: engine ready name=%s dimensions=%d", engine.Name(), engine.Dimensions())
	return engine, nil
}

// =============================================================================
// COSINE SIMILARITY UTILITY
// =============================================================================

// CosineSimilarity is the Ranker's semantic-score term (spec.md §4.3):
// 1 means identical direction, 0 orthogonal, -1 opposite.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		logging.Get(logging.CategoryEmbedding).Error("CosineSimilarity: dimension mismatch: %d != %d", len(a), len(b))
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dotProduct, aMagnitude, bMagnitude float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i] * b[i])
		aMagnitude += float64(a[i] * a[i])
		bMagnitude += float64(b[i] * b[i])
	}

	if aMagnitude == 0 || bMagnitude == 0 {
		logging.Get(logging.CategoryEmbedding).Warn("CosineSimilarity: zero magnitude vector detected")
		return 0, nil
	}

	result := dotProduct / (math.Sqrt(aMagnitude) * math.Sqrt(bMagnitude))
	logging.EmbeddingDebug("CosineSimilarity result: %.6f", result)
	return result, nil
}

// FindTopK returns the indices of the top K most similar vectors to the query.
// Uses cosine similarity.
func FindTopK(query []float32, corpus [][]float32, k int) ([]SimilarityResult, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "FindTopK")
	defer timer.Stop()

	if k <= 0 {
		k = 10
	}

	logging.EmbeddingDebug("FindTopK: searching for top %d results in corpus of %d vectors (query dim=%d)",
		k, len(corpus), len(query))

	results := make([]SimilarityResult, 0, len(corpus))
	skippedCount := 0

	for i, vec := range corpus {
		similarity, err := CosineSimilarity(query, vec)
		if err != nil {
			skippedCount++
			continue
		}

		results = append(results, SimilarityResult{
			Index:      i,
			Similarity: similarity,
		})
	}

	if skippedCount > 0 {
		logging.Get(logging.CategoryEmbedding).Warn("FindTopK: skipped %d vectors due to dimension mismatch", skippedCount)
	}

	// Sort by similarity descending
	// Use simple bubble sort for small K
	sortStart := time.Now()
	for i := 0; i < len(results) && i < k; i++ {
		for j := i + 1; j < len(results); j++ {
			if results[j].Similarity > results[i].Similarity {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
	logging.EmbeddingDebug("FindTopK: sorting completed in %v", time.Since(sortStart))

	// Return top K
	if len(results) > k {
		results = results[:k]
	}

	logging.EmbeddingDebug("FindTopK: returning %d results (top similarity=%.4f, bottom similarity=%.4f)",
		len(results),
		func() float64 {
			if len(results) > 0 {
				return results[0].Similarity
			}
			return 0
		}(),
		func() float64 {
			if len(results) > 0 {
				return results[len(results)-1].Similarity
			}
			return 0
		}())

	return results, nil
}

// SimilarityResult represents a similarity search result.
type SimilarityResult struct {
	Index      int
	Similarity float64
}
