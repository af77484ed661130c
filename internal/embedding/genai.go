package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/antigravity-dev/prism/internal/logging"

	"google.golang.org/genai"
)

// =============================================================================
// GOOGLE GENAI EMBEDDING ENGINE
// =============================================================================

// maxBatchSize is the most Skill bodies GenAI's EmbedContent accepts in one
// request; it returns a 400 above this.
const maxBatchSize = 100

// embeddingDimensions is gemini-embedding-001's output width. Google moved
// this family from 768 to 3072 dimensions; every vector the Store persists
// must come from an engine reporting the same Dimensions(), so changing
// GenAIModel to a differently-sized model requires rebuilding the index.
const embeddingDimensions = 3072

func int32Ptr(i int32) *int32 {
	return &i
}

// GenAIEngine embeds Skill bodies and Ranker queries through Google's
// Gemini embedding API. defaultTaskType is the TaskType plain Embed calls
// use; EmbedWithTask overrides it per call without touching engine state,
// so concurrent Store writes and Ranker queries against the same engine
// never race on which task type a given call actually used.
type GenAIEngine struct {
	client          *genai.Client
	model           string
	defaultTaskType TaskType
}

// NewGenAIEngine builds an engine against model, defaulting plain Embed
// calls to defaultTaskType (typically TaskDocument, since the Store backfill
// is GenAIEngine's heaviest caller).
func NewGenAIEngine(apiKey, model string, defaultTaskType TaskType) (*GenAIEngine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewGenAIEngine")
	defer timer.Stop()

	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	if model == "" {
		model = "gemini-embedding-001"
	}
	if defaultTaskType == "" {
		defaultTaskType = TaskDocument
	}

	logging.Embedding("embedding: building GenAI engine model=%s default_task_type=%s", model, defaultTaskType)

	ctx := context.Background()
	clientStart := time.Now()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	logging.EmbeddingDebug("embedding: GenAI client ready in %v", time.Since(clientStart))

	return &GenAIEngine{
		client:          client,
		model:           model,
		defaultTaskType: defaultTaskType,
	}, nil
}

// Embed embeds text with the engine's default task type.
func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.embedWithTaskType(ctx, text, e.defaultTaskType)
}

// EmbedWithTask embeds text with an explicit task type, overriding
// defaultTaskType for this call only — the Ranker embeds a query with
// TaskQuery while the Store embeds Skill bodies with TaskDocument, so the
// two sides of a cosine comparison are each correctly projected without
// either caller fighting over engine-wide state.
func (e *GenAIEngine) EmbedWithTask(ctx context.Context, text string, taskType TaskType) ([]float32, error) {
	return e.embedWithTaskType(ctx, text, taskType)
}

func (e *GenAIEngine) embedWithTaskType(ctx context.Context, text string, taskType TaskType) ([]float32, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "GenAI.Embed")
	defer timer.Stop()

	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		contents,
		&genai.EmbedContentConfig{
			OutputDimensionality: int32Ptr(embeddingDimensions),
			TaskType:             string(taskType),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}

	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	return result.Embeddings[0].Values, nil
}

// EmbedBatch embeds multiple Skill bodies in as few EmbedContent calls as
// GenAI's batch limit allows, chunking and concatenating above maxBatchSize.
// Every text in a batch shares the engine's default task type — callers
// embedding a mix of documents and queries should call EmbedWithTask/Embed
// per item instead.
func (e *GenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "GenAI.EmbedBatch")
	defer timer.Stop()

	if len(texts) == 0 {
		return nil, nil
	}

	if len(texts) <= maxBatchSize {
		return e.embedBatchChunk(ctx, texts)
	}

	numBatches := (len(texts) + maxBatchSize - 1) / maxBatchSize
	logging.Embedding("embedding: GenAI.EmbedBatch chunking %d skills into %d batches of up to %d", len(texts), numBatches, maxBatchSize)

	allEmbeddings := make([][]float32, 0, len(texts))
	for batchIdx := 0; batchIdx < numBatches; batchIdx++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		start := batchIdx * maxBatchSize
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		chunkEmbeddings, err := e.embedBatchChunk(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d/%d failed: %w", batchIdx+1, numBatches, err)
		}
		allEmbeddings = append(allEmbeddings, chunkEmbeddings...)
	}

	return allEmbeddings, nil
}

// embedBatchChunk processes a single batch (must be <= maxBatchSize),
// using the engine's default task type.
func (e *GenAIEngine) embedBatchChunk(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		contents,
		&genai.EmbedContentConfig{
			OutputDimensionality: int32Ptr(embeddingDimensions),
			TaskType:             string(e.defaultTaskType),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("GenAI batch embed failed: %w", err)
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		embeddings[i] = emb.Values
	}
	return embeddings, nil
}

// Dimensions reports the vector width gemini-embedding-001 produces.
func (e *GenAIEngine) Dimensions() int {
	return embeddingDimensions
}

// Name identifies the engine and the underlying model, e.g. for log lines
// and the Store's recorded embedding model.
func (e *GenAIEngine) Name() string {
	return fmt.Sprintf("genai:%s", e.model)
}

// Close is a no-op; the GenAI client holds no resources that need releasing.
func (e *GenAIEngine) Close() error {
	return nil
}
