package store

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/antigravity-dev/prism/internal/embedding"
	"github.com/antigravity-dev/prism/internal/logging"
	"github.com/antigravity-dev/prism/internal/prismerr"
)

// LexicalHit is one FTS5 bm25-ranked result. Score is the inverted bm25
// value (higher is better), matching the sign convention the Ranker expects.
type LexicalHit struct {
	SkillID string
	Score   float64
}

// SemanticHit is one cosine-similarity result against the vector index.
type SemanticHit struct {
	SkillID string
	Score   float64
}

// LexicalSearch returns up to limit candidates ranked by FTS5 bm25 over
// title, key_insight, body, and domain_tags (spec.md §4.1's indexing rule).
func (s *Store) LexicalSearch(query string, limit int) ([]LexicalHit, error) {
	if limit <= 0 {
		limit = 20
	}
	if query == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT skill_id, bm25(skills_fts) FROM skills_fts WHERE skills_fts MATCH ? ORDER BY bm25(skills_fts) LIMIT ?`,
		query, limit,
	)
	if err != nil {
		// FTS5 MATCH can reject malformed query syntax (bare operators, unbalanced
		// quotes); treat that as "no lexical hits" rather than a hard failure so
		// the Ranker still gets semantic results.
		logging.Get(logging.CategoryStore).Warn("LexicalSearch: query %q rejected by FTS5: %v", query, err)
		return nil, nil
	}
	defer rows.Close()

	var hits []LexicalHit
	for rows.Next() {
		var id string
		var bm25 float64
		if err := rows.Scan(&id, &bm25); err != nil {
			return nil, err
		}
		// bm25() returns lower-is-better; invert so higher is better everywhere.
		hits = append(hits, LexicalHit{SkillID: id, Score: -bm25})
	}
	return hits, rows.Err()
}

// SemanticSearch embeds query and returns up to limit candidates by cosine
// similarity against the stored embedding BLOBs. Returns (nil, nil) when no
// embedding engine is configured — semantic mode degrades cleanly rather
// than erroring (Design Notes §9 "optional embeddings").
func (s *Store) SemanticSearch(ctx context.Context, query string, limit int) ([]SemanticHit, error) {
	s.mu.RLock()
	engine := s.embeddingEngine
	s.mu.RUnlock()

	if engine == nil || query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	queryVec, err := embedQuery(ctx, engine, query)
	if err != nil {
		return nil, prismerr.ExternalUnavailable(err, "embed search query")
	}

	s.mu.RLock()
	rows, err := s.db.QueryContext(ctx, `SELECT skill_id, embedding FROM skills WHERE embedding IS NOT NULL`)
	s.mu.RUnlock()
	if err != nil {
		return nil, prismerr.Wrap(prismerr.KindInvalidInput, err, "scan embeddings")
	}
	defer rows.Close()

	var ids []string
	var vecs [][]float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		ids = append(ids, id)
		vecs = append(vecs, decodeVector(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	top, err := embedding.FindTopK(queryVec, vecs, limit)
	if err != nil {
		return nil, prismerr.Wrap(prismerr.KindInvalidInput, err, "rank embeddings")
	}

	hits := make([]SemanticHit, 0, len(top))
	for _, t := range top {
		hits = append(hits, SemanticHit{SkillID: ids[t.Index], Score: t.Similarity})
	}
	return hits, nil
}

// Search is a convenience union of lexical and (if enabled) semantic hits,
// ordered lexical-first then any semantic-only hits appended, deduplicated
// by skill_id (spec.md §4.1). The Ranker computes its own normalized
// per-candidate component scores directly from LexicalSearch/SemanticSearch
// rather than calling this method.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}

	lex, err := s.LexicalSearch(query, limit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(lex))
	ids := make([]string, 0, limit)
	for _, h := range lex {
		if !seen[h.SkillID] {
			seen[h.SkillID] = true
			ids = append(ids, h.SkillID)
		}
	}

	sem, err := s.SemanticSearch(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	for _, h := range sem {
		if !seen[h.SkillID] {
			seen[h.SkillID] = true
			ids = append(ids, h.SkillID)
		}
	}

	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// SetEmbeddingEngine attaches an embedding engine, records its identity in
// store_meta, and triggers a RebuildIndex if the recorded model differs from
// the one now configured (spec.md §4.1: "embedding model name recorded...a
// model change forces a rebuild"). Backfilling existing skills runs in the
// background so this call does not block the caller (mirrors the teacher's
// SetEmbeddingEngine background-backfill behavior, SPEC_FULL.md §7).
func (s *Store) SetEmbeddingEngine(engine embedding.EmbeddingEngine) {
	s.mu.Lock()
	s.embeddingEngine = engine
	s.mu.Unlock()

	if engine == nil {
		return
	}

	modelKey := engine.Name()
	changed, err := s.recordModelIfChanged(modelKey)
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("SetEmbeddingEngine: failed to record model: %v", err)
	}

	logging.Store("SetEmbeddingEngine: engine=%s dimensions=%d model_changed=%v", modelKey, engine.Dimensions(), changed)
	go func() {
		ctx := context.Background()
		if changed {
			if err := s.RebuildIndex(ctx); err != nil {
				logging.Get(logging.CategoryStore).Error("SetEmbeddingEngine: rebuild after model change failed: %v", err)
			}
			return
		}
		if err := s.backfillMissingEmbeddings(ctx); err != nil {
			logging.Get(logging.CategoryStore).Error("SetEmbeddingEngine: backfill failed: %v", err)
		}
	}()
}

func (s *Store) recordModelIfChanged(modelKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prior string
	err := s.db.QueryRow(`SELECT value FROM store_meta WHERE key = 'embedding_model'`).Scan(&prior)
	if err != nil && err.Error() != "sql: no rows in result set" {
		return false, err
	}

	if _, err := s.db.Exec(
		`INSERT INTO store_meta(key, value) VALUES ('embedding_model', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, modelKey,
	); err != nil {
		return false, err
	}

	return prior != "" && prior != modelKey, nil
}

// backfillMissingEmbeddings embeds every skill currently missing a vector.
func (s *Store) backfillMissingEmbeddings(ctx context.Context) error {
	s.mu.RLock()
	rows, err := s.db.QueryContext(ctx, `SELECT skill_id FROM skills WHERE embedding IS NULL`)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		_, sk, found := s.locate(id)
		if !found {
			continue
		}
		if err := s.embedAndStore(ctx, id, renderForEmbedding(sk)); err != nil {
			logging.Get(logging.CategoryStore).Warn("backfill: embedding failed for %s: %v", id, err)
		}
	}
	logging.Store("backfillMissingEmbeddings: processed %d skills", len(ids))
	return nil
}

// embedAndStore computes an embedding for text and writes it to skillID's
// row. Used by callers (backfill, SetEmbeddingEngine) that do not already
// hold s.mu.
func (s *Store) embedAndStore(ctx context.Context, skillID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.embedAndStoreLocked(ctx, skillID, text)
}

// embedAndStoreLocked is embedAndStore's lock-free core. The caller must
// already hold s.mu — indexSkill uses this because Put/RebuildIndex hold the
// write lock for the entire operation, and sync.RWMutex is not reentrant.
func (s *Store) embedAndStoreLocked(ctx context.Context, skillID, text string) error {
	engine := s.embeddingEngine
	if engine == nil {
		return nil
	}

	vec, err := embedDocument(ctx, engine, text)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `UPDATE skills SET embedding = ? WHERE skill_id = ?`, encodeVector(vec), skillID)
	return err
}

func embedQuery(ctx context.Context, engine embedding.EmbeddingEngine, text string) ([]float32, error) {
	if aware, ok := engine.(embedding.TaskTypeAwareEngine); ok {
		return aware.EmbedWithTask(ctx, text, embedding.SelectTaskType(true))
	}
	return engine.Embed(ctx, text)
}

func embedDocument(ctx context.Context, engine embedding.EmbeddingEngine, text string) ([]float32, error) {
	if aware, ok := engine.(embedding.TaskTypeAwareEngine); ok {
		return aware.EmbedWithTask(ctx, text, embedding.SelectTaskType(false))
	}
	return engine.Embed(ctx, text)
}

// encodeVector/decodeVector store embeddings as little-endian float32 BLOBs
// (spec.md §4.1's "one fixed-dimension embedding per skill").
func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}
