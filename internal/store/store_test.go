package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/prism/internal/embedding"
	"github.com/antigravity-dev/prism/internal/prismerr"
	"github.com/antigravity-dev/prism/internal/skill"
)

// fakeEngine is a deterministic, dimension-3 embedding engine for tests: it
// hashes the text into a vector instead of calling a real backend, so
// SemanticSearch results are reproducible without network access.
type fakeEngine struct{}

func (fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	return fakeEngine{}.EmbedWithTask(ctx, text, embedding.TaskDocument)
}

func (fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := fakeEngine{}.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (fakeEngine) EmbedWithTask(ctx context.Context, text string, _ embedding.TaskType) ([]float32, error) {
	var a, b, c float32
	for i, r := range text {
		switch i % 3 {
		case 0:
			a += float32(r)
		case 1:
			b += float32(r)
		case 2:
			c += float32(r)
		}
	}
	return []float32{a, b, c}, nil
}

func (fakeEngine) Dimensions() int { return 3 }
func (fakeEngine) Name() string    { return "fake" }

func validSkill(id, title, body string, tags ...string) *skill.Skill {
	return &skill.Skill{
		Header: skill.Header{
			SkillID:    id,
			Type:       skill.TypeSkill,
			Title:      title,
			KeyInsight: title,
			DomainTags: tags,
			Scope:      skill.ScopeGlobal,
			Created:    "2026-01-01",
			LastUsed:   "2026-01-01",
			Status:     skill.StatusActive,
			VerifiedBy: skill.VerifiedByHuman,
		},
		Body: body,
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sk := validSkill("jwt-refresh-race", "JWT refresh race", "Body text here.", "auth", "jwt")
	require.NoError(t, s.Put(ctx, sk))

	got, err := s.Get("jwt-refresh-race")
	require.NoError(t, err)
	assert.Equal(t, "JWT refresh race", got.Header.Title)
	assert.Equal(t, "Body text here.", got.Body)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get("does-not-exist")
	require.Error(t, err)
	assert.True(t, prismerr.Is(err, prismerr.KindNotFound))
}

func TestPutRejectsCrossTypeCollision(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sk := validSkill("retry-budget", "Retry budget", "body", "infra")
	require.NoError(t, s.Put(ctx, sk))

	gotcha := validSkill("retry-budget", "Retry budget gotcha", "other body", "infra")
	gotcha.Header.Type = skill.TypeGotcha

	err := s.Put(ctx, gotcha)
	require.Error(t, err)
	assert.True(t, prismerr.Is(err, prismerr.KindConflict))
}

func TestPutRejectsInvalidSkill(t *testing.T) {
	s := openTestStore(t)
	sk := validSkill("bad", "Bad", "body")
	sk.Header.DomainTags = nil

	err := s.Put(context.Background(), sk)
	require.Error(t, err)
	assert.True(t, prismerr.Is(err, prismerr.KindInvalidInput))
}

func TestListFiltersByStatusTypeAndTag(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	active := validSkill("active-one", "Active", "body", "go", "testing")
	deprecated := validSkill("deprecated-one", "Deprecated", "body", "go")
	deprecated.Header.Status = skill.StatusDeprecated
	gotcha := validSkill("gotcha-one", "Gotcha", "body", "python")
	gotcha.Header.Type = skill.TypeGotcha

	require.NoError(t, s.Put(ctx, active))
	require.NoError(t, s.Put(ctx, deprecated))
	require.NoError(t, s.Put(ctx, gotcha))

	activeOnly, err := s.List(Filter{Status: "active"})
	require.NoError(t, err)
	var activeIDs []string
	for _, sk := range activeOnly {
		activeIDs = append(activeIDs, sk.Header.SkillID)
	}
	assert.ElementsMatch(t, []string{"active-one", "gotcha-one"}, activeIDs)

	byType, err := s.List(Filter{Type: skill.TypeGotcha})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "gotcha-one", byType[0].Header.SkillID)

	byTag, err := s.List(Filter{Tag: "testing"})
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, "active-one", byTag[0].Header.SkillID)

	all, err := s.List(Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestIncrementReuseIsMonotonicAndBumpsLastUsed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sk := validSkill("idempotent-put", "Idempotent put", "body", "api")
	sk.Header.LastUsed = "2020-01-01"
	sk.Header.Created = "2020-01-01"
	require.NoError(t, s.Put(ctx, sk))

	require.NoError(t, s.IncrementReuse("idempotent-put"))
	first, err := s.Get("idempotent-put")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Header.ReuseCount)
	assert.NotEqual(t, "2020-01-01", first.Header.LastUsed)
	assert.False(t, first.Header.LastUsed < first.Header.Created)

	require.NoError(t, s.IncrementReuse("idempotent-put"))
	second, err := s.Get("idempotent-put")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Header.ReuseCount)
}

func TestIncrementReuseMissingReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	err := s.IncrementReuse("nope")
	require.Error(t, err)
	assert.True(t, prismerr.Is(err, prismerr.KindNotFound))
}

func TestLexicalSearchRanksBM25Matches(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, validSkill("race-condition-fix", "Race condition fix",
		"Mutex around the shared counter fixes the race condition in the worker pool.", "concurrency")))
	require.NoError(t, s.Put(ctx, validSkill("unrelated-topic", "Unrelated topic",
		"Notes about deployment pipelines and release cadence.", "deploy")))

	hits, err := s.LexicalSearch("race condition", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "race-condition-fix", hits[0].SkillID)
}

func TestLexicalSearchMalformedQueryReturnsNoHitsNotError(t *testing.T) {
	s := openTestStore(t)
	hits, err := s.LexicalSearch(`"unterminated`, 10)
	require.NoError(t, err)
	assert.Nil(t, hits)
}

func TestSemanticSearchWithNoEngineReturnsNil(t *testing.T) {
	s := openTestStore(t)
	hits, err := s.SemanticSearch(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Nil(t, hits)
}

func TestSemanticSearchFindsClosestVector(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.SetEmbeddingEngine(fakeEngine{})

	require.NoError(t, s.Put(ctx, validSkill("alpha-skill", "Alpha", "alpha alpha alpha content", "x")))
	require.NoError(t, s.Put(ctx, validSkill("beta-skill", "Beta", "zzz zzz zzz totally different", "x")))

	hits, err := s.SemanticSearch(ctx, "alpha alpha alpha content", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "alpha-skill", hits[0].SkillID)
}

func TestSearchUnionsLexicalThenSemanticDeduplicated(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.SetEmbeddingEngine(fakeEngine{})

	require.NoError(t, s.Put(ctx, validSkill("lexical-hit", "Lexical hit",
		"distinctive lexical phrase appears here", "x")))
	require.NoError(t, s.Put(ctx, validSkill("other-skill", "Other", "something else entirely", "y")))

	ids, err := s.Search(ctx, "distinctive lexical phrase", 10)
	require.NoError(t, err)
	require.NotEmpty(t, ids)
	assert.Equal(t, "lexical-hit", ids[0])

	seen := map[string]int{}
	for _, id := range ids {
		seen[id]++
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "skill_id %s must appear at most once", id)
	}
}

func TestRebuildIndexIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, validSkill("reindex-me", "Reindex me", "content about caching strategies", "cache")))

	require.NoError(t, s.RebuildIndex(ctx))
	first, err := s.Search(ctx, "caching", 10)
	require.NoError(t, err)

	require.NoError(t, s.RebuildIndex(ctx))
	second, err := s.Search(ctx, "caching", 10)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, first, "reindex-me")
}

func TestRebuildIndexSkipsUnparseableFiles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, validSkill("good-one", "Good one", "valid body", "ok")))

	badPath := filepath.Join(s.root, "skills", "broken.md")
	require.NoError(t, writeDoc(badPath, []byte("not a valid skill document at all")))

	require.NoError(t, s.RebuildIndex(ctx))

	all, err := s.List(Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "good-one", all[0].Header.SkillID)
}

func TestRecordModelIfChangedDetectsModelChange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, validSkill("migrate-me", "Migrate me", "some content", "x")))

	changed, err := s.recordModelIfChanged("model-a")
	require.NoError(t, err)
	assert.False(t, changed, "first recorded model is never a change")

	changed, err = s.recordModelIfChanged("model-b")
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestEncodeDecodeVectorRoundTrip(t *testing.T) {
	vec := []float32{1.5, -2.25, 0, 3.125}
	buf := encodeVector(vec)
	require.Len(t, buf, len(vec)*4)
	decoded := decodeVector(buf)
	assert.Equal(t, vec, decoded)
}

func TestRenderForEmbeddingIncludesTitleInsightAndBody(t *testing.T) {
	sk := validSkill("render-check", "Title here", "Body here", "x")
	sk.Header.KeyInsight = "Insight here"
	out := renderForEmbedding(sk)
	assert.True(t, strings.Contains(out, "Title here"))
	assert.True(t, strings.Contains(out, "Insight here"))
	assert.True(t, strings.Contains(out, "Body here"))
}
