package main

import (
	"context"

	"github.com/antigravity-dev/prism/internal/embedding"
	"github.com/antigravity-dev/prism/internal/logging"
	"github.com/antigravity-dev/prism/internal/store"
)

// openStore opens the Skill Store at cfg.Memory.Root and wires an embedding
// engine onto it when embeddings are enabled and a provider is configured.
// A failure to build the embedding engine degrades to lexical-only search
// rather than failing the command outright (spec.md §4.1's "semantic search
// is best-effort").
func openStore(cfg appContext) (*store.Store, error) {
	st, err := store.Open(cfg.Config.Memory.Root)
	if err != nil {
		return nil, err
	}

	if cfg.Config.Memory.EmbeddingsEnabled {
		engine, err := embedding.NewEngine(embedding.Config{
			Provider:        cfg.Config.Embedding.Provider,
			OllamaEndpoint:  cfg.Config.Embedding.OllamaEndpoint,
			OllamaModel:     cfg.Config.Embedding.OllamaModel,
			GenAIAPIKey:     cfg.Config.Embedding.GenAIAPIKey,
			GenAIModel:      cfg.Config.Embedding.GenAIModel,
			DefaultTaskType: embedding.TaskDocument,
		})
		if err == nil {
			st.SetEmbeddingEngine(engine)
		} else {
			logging.Get(logging.CategoryEmbedding).Warn("openStore: embedding engine unavailable, falling back to lexical-only: %v", err)
		}
	}

	return st, nil
}

func cmdTimeoutCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, timeout)
}
