package ranker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/prism/internal/prismerr"
	"github.com/antigravity-dev/prism/internal/skill"
	"github.com/antigravity-dev/prism/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func daysAgo(n int) string {
	return time.Now().UTC().AddDate(0, 0, -n).Format("2006-01-02")
}

func putSkill(t *testing.T, s *store.Store, id, body string, reuse int, lastUsedDaysAgo int, status skill.Status, tags ...string) {
	t.Helper()
	sk := &skill.Skill{
		Header: skill.Header{
			SkillID:    id,
			Type:       skill.TypeSkill,
			Title:      id,
			KeyInsight: id,
			DomainTags: tags,
			Scope:      skill.ScopeGlobal,
			Created:    daysAgo(lastUsedDaysAgo + 30),
			LastUsed:   daysAgo(lastUsedDaysAgo),
			ReuseCount: reuse,
			Status:     status,
			VerifiedBy: skill.VerifiedByHuman,
		},
		Body: body,
	}
	require.NoError(t, s.Put(context.Background(), sk))
}

func TestRankFiltersDeprecatedAndConflicted(t *testing.T) {
	s := openTestStore(t)
	putSkill(t, s, "keep-me", "distinctive retry logic content", 1, 1, skill.StatusActive, "retry")
	putSkill(t, s, "drop-deprecated", "distinctive retry logic content too", 1, 1, skill.StatusDeprecated, "retry")
	putSkill(t, s, "drop-conflicted", "distinctive retry logic content too", 1, 1, skill.StatusConflicted, "retry")

	entries, err := Rank(context.Background(), s, Query{Text: "retry logic"}, DefaultWeights())
	require.NoError(t, err)

	var ids []string
	for _, e := range entries {
		ids = append(ids, e.Skill.Header.SkillID)
	}
	assert.Contains(t, ids, "keep-me")
	assert.NotContains(t, ids, "drop-deprecated")
	assert.NotContains(t, ids, "drop-conflicted")
}

func TestRankRespectsTypeFilter(t *testing.T) {
	s := openTestStore(t)
	putSkill(t, s, "skill-type", "caching layer notes", 0, 5, skill.StatusActive, "cache")

	gotcha := &skill.Skill{
		Header: skill.Header{
			SkillID: "gotcha-type", Type: skill.TypeGotcha, Title: "gotcha-type", KeyInsight: "gotcha-type",
			DomainTags: []string{"cache"}, Scope: skill.ScopeGlobal,
			Created: daysAgo(30), LastUsed: daysAgo(5), Status: skill.StatusActive, VerifiedBy: skill.VerifiedByHuman,
		},
		Body: "caching layer notes too",
	}
	require.NoError(t, s.Put(context.Background(), gotcha))

	entries, err := Rank(context.Background(), s, Query{Text: "caching layer", Type: skill.TypeGotcha}, DefaultWeights())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "gotcha-type", entries[0].Skill.Header.SkillID)
}

func TestRankTieBreaksByReuseThenSkillID(t *testing.T) {
	s := openTestStore(t)
	const body = "shared identical body text about widgets"
	putSkill(t, s, "zeta-skill", body, 5, 10, skill.StatusActive, "shared")
	putSkill(t, s, "alpha-skill", body, 5, 10, skill.StatusActive, "shared")
	putSkill(t, s, "low-reuse-skill", body, 1, 10, skill.StatusActive, "shared")

	// Zero out lex/sem/recency so only the tag score (identical across all
	// three) and reuse_count can influence the combined score — this isolates
	// the tie-break rule from any incidental bm25 scoring asymmetry between
	// documents with different-length titles.
	weights := Weights{Lex: 0, Sem: 0, Tag: 1, Reuse: 2, Recency: 0}

	entries, err := Rank(context.Background(), s, Query{Text: "shared identical body widgets", Tags: []string{"shared"}}, weights)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "alpha-skill", entries[0].Skill.Header.SkillID)
	assert.Equal(t, "zeta-skill", entries[1].Skill.Header.SkillID)
	assert.Equal(t, "low-reuse-skill", entries[2].Skill.Header.SkillID)
}

func TestRankRejectsNegativeWeights(t *testing.T) {
	s := openTestStore(t)
	bad := DefaultWeights()
	bad.Tag = -1

	_, err := Rank(context.Background(), s, Query{Text: "anything"}, bad)
	require.Error(t, err)
	assert.True(t, prismerr.Is(err, prismerr.KindInvalidInput))
}

func TestRankIsDeterministicAcrossRepeatedCalls(t *testing.T) {
	s := openTestStore(t)
	putSkill(t, s, "one", "distinctive phrase about deadlocks", 2, 3, skill.StatusActive, "concurrency")
	putSkill(t, s, "two", "distinctive phrase about deadlocks as well", 4, 20, skill.StatusActive, "concurrency")
	putSkill(t, s, "three", "totally unrelated text about icons", 0, 100, skill.StatusActive, "design")

	first, err := Rank(context.Background(), s, Query{Text: "distinctive phrase deadlocks", Tags: []string{"concurrency"}}, DefaultWeights())
	require.NoError(t, err)
	second, err := Rank(context.Background(), s, Query{Text: "distinctive phrase deadlocks", Tags: []string{"concurrency"}}, DefaultWeights())
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Skill.Header.SkillID, second[i].Skill.Header.SkillID)
		assert.Equal(t, first[i].Score, second[i].Score)
	}
}

func TestRankEmptyStoreReturnsEmpty(t *testing.T) {
	s := openTestStore(t)
	entries, err := Rank(context.Background(), s, Query{Text: "jwt auth"}, DefaultWeights())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTagAffinityFraction(t *testing.T) {
	sk := &skill.Skill{Header: skill.Header{DomainTags: []string{"Go", "HTTP"}, StackContext: []string{"postgres"}}}
	assert.Equal(t, 1.0, tagAffinity([]string{"go"}, sk))
	assert.Equal(t, 0.5, tagAffinity([]string{"go", "redis"}, sk))
	assert.Equal(t, 0.0, tagAffinity(nil, sk))
}

func TestReuseScoreZeroWhenNoMax(t *testing.T) {
	assert.Equal(t, 0.0, reuseScore(0, 0))
	assert.Greater(t, reuseScore(3, 10), 0.0)
	assert.Less(t, reuseScore(3, 10), 1.0)
	assert.Equal(t, 1.0, reuseScore(10, 10))
}

func TestRecencyScoreDecaysToZeroAtWindowEdge(t *testing.T) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	assert.Equal(t, 1.0, recencyScore(today.Format(dateLayout), today))

	past := today.AddDate(0, 0, -recencyWindowDays).Format(dateLayout)
	assert.Equal(t, 0.0, recencyScore(past, today))

	wayPast := today.AddDate(0, 0, -1000).Format(dateLayout)
	assert.Equal(t, 0.0, recencyScore(wayPast, today))
}

func TestRecencyScoreInvalidDateReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, recencyScore("not-a-date", time.Now().UTC()))
}

func TestNormalizeBestHitIsOne(t *testing.T) {
	raw := map[string]float64{"a": 2.0, "b": 1.0, "c": 0.5}
	norm := normalize(raw)
	assert.Equal(t, 1.0, norm["a"])
	assert.Equal(t, 0.5, norm["b"])
	assert.Equal(t, 0.25, norm["c"])
}

func TestNormalizeEmptyInput(t *testing.T) {
	assert.Empty(t, normalize(nil))
}
