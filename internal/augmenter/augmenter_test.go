package augmenter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/prism/internal/prismerr"
	"github.com/antigravity-dev/prism/internal/ranker"
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

func putSkill(t *testing.T, s *store.Store, id, body string, tags ...string) {
	t.Helper()
	today := time.Now().UTC().Format("2006-01-02")
	sk := &skill.Skill{
		Header: skill.Header{
			SkillID:    id,
			Type:       skill.TypeSkill,
			Title:      id,
			KeyInsight: id,
			DomainTags: tags,
			Scope:      skill.ScopeGlobal,
			Created:    today,
			LastUsed:   today,
			Status:     skill.StatusActive,
			VerifiedBy: skill.VerifiedByHuman,
		},
		Body: body,
	}
	require.NoError(t, s.Put(context.Background(), sk))
}

func writeTaskList(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseGroupsTasksUnderExplicitEpic(t *testing.T) {
	data := []byte(`## Epic: Authentication

### Task 1: Add login endpoint
Implement a POST /login handler.

- [ ] Returns 200 on valid credentials
- [ ] Returns 401 on invalid credentials

### Task 2: Add logout endpoint
Invalidate the session.
`)
	tasks := Parse(data)
	require.Len(t, tasks, 2)

	assert.Equal(t, "Authentication", tasks[0].Epic)
	assert.Equal(t, "1", tasks[0].Number)
	assert.Equal(t, "Add login endpoint", tasks[0].Title)
	assert.Equal(t, "Implement a POST /login handler.", tasks[0].Body)
	assert.Equal(t, []string{"Returns 200 on valid credentials", "Returns 401 on invalid credentials"}, tasks[0].Criteria)

	assert.Equal(t, "Authentication", tasks[1].Epic)
	assert.Equal(t, "Add logout endpoint", tasks[1].Title)
}

func TestParseTasksWithNoEpicGetImplicitUncategorized(t *testing.T) {
	data := []byte("### Task 1: Standalone task\nJust do it.\n")
	tasks := Parse(data)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Uncategorized", tasks[0].Epic)
}

func TestParseTolerateBlankLinesAndTrailingWhitespace(t *testing.T) {
	data := []byte("## Epic: Widgets   \n\n\n### Task 1: Build widget   \n\nLine one.\n\nLine two.\n\n\n- [ ] Criterion one   \n")
	tasks := Parse(data)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Widgets", tasks[0].Epic)
	assert.Equal(t, "Build widget", tasks[0].Title)
	assert.Equal(t, "Line one.\n\nLine two.", tasks[0].Body)
	assert.Equal(t, []string{"Criterion one"}, tasks[0].Criteria)
}

func TestParsePreservesBodyCharacterContentVerbatim(t *testing.T) {
	body := "A paragraph with   irregular   spacing.\n  Indented continuation.\nTrailing punctuation!!"
	data := []byte("### Task 1: Exact body\n" + body + "\n")
	tasks := Parse(data)
	require.Len(t, tasks, 1)
	assert.Equal(t, body, tasks[0].Body)
}

func TestAugmentWritesSiblingWithoutModifyingInput(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t)
	putSkill(t, s, "login-flow", "handle user login and session creation", "auth")

	original := "## Epic: Auth\n\n### Task 1: Add login\nWire up the login handler.\n\n- [ ] Works end to end\n"
	inputPath := writeTaskList(t, dir, "tasks.md", original)

	ctx := context.Background()
	err := Augment(ctx, s, inputPath, []string{"auth"}, ranker.DefaultWeights(), DefaultPerTaskBudget, false)
	require.NoError(t, err)

	inputAfter, err := os.ReadFile(inputPath)
	require.NoError(t, err)
	assert.Equal(t, original, string(inputAfter))

	outPath := OutputPath(inputPath)
	out, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(out), "### PRISM Context"))
	assert.True(t, strings.Contains(string(out), "login-flow"))
	assert.True(t, strings.Contains(string(out), "- [ ] Works end to end"))
	assert.True(t, strings.HasPrefix(string(out), hashMarkerPrefix))
}

func TestAugmentIsIdempotentWhenStoreUnchanged(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t)
	putSkill(t, s, "retry-pattern", "exponential backoff retry helper", "net")

	inputPath := writeTaskList(t, dir, "tasks.md", "### Task 1: Harden client\nAdd retries.\n")
	ctx := context.Background()

	require.NoError(t, Augment(ctx, s, inputPath, []string{"net"}, ranker.DefaultWeights(), DefaultPerTaskBudget, false))
	first, err := os.ReadFile(OutputPath(inputPath))
	require.NoError(t, err)

	require.NoError(t, Augment(ctx, s, inputPath, []string{"net"}, ranker.DefaultWeights(), DefaultPerTaskBudget, false))
	second, err := os.ReadFile(OutputPath(inputPath))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestAugmentForceReRendersEvenWhenUpToDate(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t)
	putSkill(t, s, "cache-pattern", "layered cache invalidation notes", "cache")

	inputPath := writeTaskList(t, dir, "tasks.md", "### Task 1: Add caching\nIntroduce a cache layer.\n")
	ctx := context.Background()

	require.NoError(t, Augment(ctx, s, inputPath, []string{"cache"}, ranker.DefaultWeights(), DefaultPerTaskBudget, false))
	require.NoError(t, Augment(ctx, s, inputPath, []string{"cache"}, ranker.DefaultWeights(), DefaultPerTaskBudget, true))

	out, err := os.ReadFile(OutputPath(inputPath))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(out), "cache-pattern"))
}

func TestAugmentRefusesToOverwriteManuallyEditedSibling(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t)
	putSkill(t, s, "queue-pattern", "durable queue consumer notes", "queue")

	inputPath := writeTaskList(t, dir, "tasks.md", "### Task 1: Add queue consumer\nConsume messages reliably.\n")
	ctx := context.Background()

	require.NoError(t, Augment(ctx, s, inputPath, []string{"queue"}, ranker.DefaultWeights(), DefaultPerTaskBudget, false))

	outPath := OutputPath(inputPath)
	existing, err := os.ReadFile(outPath)
	require.NoError(t, err)
	tampered := string(existing) + "\nmanually added note\n"
	require.NoError(t, os.WriteFile(outPath, []byte(tampered), 0o644))

	err = Augment(ctx, s, inputPath, []string{"queue"}, ranker.DefaultWeights(), DefaultPerTaskBudget, false)
	require.Error(t, err)
	assert.True(t, prismerr.Is(err, prismerr.KindConflict))

	err = Augment(ctx, s, inputPath, []string{"queue"}, ranker.DefaultWeights(), DefaultPerTaskBudget, true)
	require.Error(t, err)
	assert.True(t, prismerr.Is(err, prismerr.KindConflict), "force must not bypass the conflict check")
}

func TestAugmentNoMatchingSkillsStillProducesContextBlock(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t)
	inputPath := writeTaskList(t, dir, "tasks.md", "### Task 1: Lonely task\nNothing in the store matches this.\n")

	require.NoError(t, Augment(context.Background(), s, inputPath, nil, ranker.DefaultWeights(), DefaultPerTaskBudget, false))

	out, err := os.ReadFile(OutputPath(inputPath))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(out), "No Skills matched this task"))
}

func TestOutputPathDerivesPrismMdSibling(t *testing.T) {
	assert.Equal(t, "/tmp/tasks.prism.md", OutputPath("/tmp/tasks.md"))
}
