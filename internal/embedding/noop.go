package embedding

import "context"

// NoopEngine disables semantic search. The Store falls back to lexical-only
// ranking (Ranker's sem component pinned at 0) whenever this engine, or no
// engine at all, is configured — see SPEC_FULL.md §4.1.
type NoopEngine struct{}

func (NoopEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}

func (NoopEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func (NoopEngine) Dimensions() int { return 0 }

func (NoopEngine) Name() string { return "noop" }
