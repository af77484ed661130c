package router

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/prism/internal/board"
	"github.com/antigravity-dev/prism/internal/ranker"
	"github.com/antigravity-dev/prism/internal/skill"
	"github.com/antigravity-dev/prism/internal/store"
)

type fakeBoardClient struct {
	tasks map[string]board.TaskRecord
}

func (f *fakeBoardClient) ListTasks(ctx context.Context, projectID string) ([]board.TaskRecord, error) {
	return nil, nil
}

func (f *fakeBoardClient) CreateTask(ctx context.Context, projectID, title, body string) (string, error) {
	return "", nil
}

func (f *fakeBoardClient) GetTask(ctx context.Context, boardID string) (board.TaskRecord, error) {
	return f.tasks[boardID], nil
}

func (f *fakeBoardClient) UpdateTaskStatus(ctx context.Context, boardID, status string) error {
	return nil
}

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

func TestRouterHandlesInProgressTransitionByWritingCurrentTask(t *testing.T) {
	projectRoot := t.TempDir()
	s := openTestStore(t)
	putSkill(t, s, "login-flow", "handle user login and session creation", "auth")

	fb := &fakeBoardClient{tasks: map[string]board.TaskRecord{
		"board-1": {BoardID: "board-1", Title: "Add login", Body: "Wire up the login handler.", Status: "in-progress", Criteria: []string{"Session cookie is httpOnly", "Failed login shows an error message"}},
	}}

	rt := New(Deps{
		Store:       s,
		Board:       fb,
		Weights:     ranker.DefaultWeights(),
		ProjectTags: []string{"auth"},
		ProjectRoot: projectRoot,
	}, 1, 8)
	rt.Start(context.Background())
	defer rt.Stop()

	require.True(t, rt.Submit(BoardEvent{EventType: EventTaskMoved, BoardID: "board-1", ProjectID: "proj-1", FromColumn: "todo", ToColumn: "in-progress"}))

	path := CurrentTaskPath(projectRoot)
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "# Add login")
	assert.Contains(t, string(content), "login-flow")
	assert.Contains(t, string(content), "## Acceptance Criteria")
	assert.Contains(t, string(content), "- [ ] Session cookie is httpOnly")
	assert.Contains(t, string(content), "- [ ] Failed login shows an error message")
	assert.Contains(t, string(content), "## Definition of Done")
	assert.Contains(t, string(content), "## Output")
}

func TestRouterDoneTransitionFiresMemoryCaptureCallback(t *testing.T) {
	s := openTestStore(t)
	fb := &fakeBoardClient{tasks: map[string]board.TaskRecord{}}

	var capturedProject, capturedBoardID string
	done := make(chan struct{})

	rt := New(Deps{
		Store:       s,
		Board:       fb,
		Weights:     ranker.DefaultWeights(),
		ProjectRoot: t.TempDir(),
		OnMemoryCaptureRequested: func(projectID, boardTaskID string) {
			capturedProject = projectID
			capturedBoardID = boardTaskID
			close(done)
		},
	}, 1, 8)
	rt.Start(context.Background())
	defer rt.Stop()

	require.True(t, rt.Submit(BoardEvent{EventType: EventTaskMoved, BoardID: "board-9", ProjectID: "proj-2", FromColumn: "in-progress", ToColumn: "done"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("memory-capture callback was never invoked")
	}
	assert.Equal(t, "proj-2", capturedProject)
	assert.Equal(t, "board-9", capturedBoardID)
}

func TestRouterIgnoresTransitionToUnrelatedColumn(t *testing.T) {
	s := openTestStore(t)
	fb := &fakeBoardClient{tasks: map[string]board.TaskRecord{}}
	projectRoot := t.TempDir()

	rt := New(Deps{Store: s, Board: fb, Weights: ranker.DefaultWeights(), ProjectRoot: projectRoot}, 1, 8)
	rt.Start(context.Background())
	defer rt.Stop()

	require.True(t, rt.Submit(BoardEvent{EventType: EventTaskMoved, BoardID: "board-3", ProjectID: "proj-1", FromColumn: "todo", ToColumn: "blocked"}))

	time.Sleep(50 * time.Millisecond)
	_, err := os.Stat(CurrentTaskPath(projectRoot))
	assert.True(t, os.IsNotExist(err))
}

func TestRouterTaskCreatedAndDeletedEventsDoNotWriteCurrentTask(t *testing.T) {
	s := openTestStore(t)
	fb := &fakeBoardClient{tasks: map[string]board.TaskRecord{}}
	projectRoot := t.TempDir()

	rt := New(Deps{Store: s, Board: fb, Weights: ranker.DefaultWeights(), ProjectRoot: projectRoot}, 1, 8)
	rt.Start(context.Background())
	defer rt.Stop()

	require.True(t, rt.Submit(BoardEvent{EventType: EventTaskCreated, BoardID: "board-4", ProjectID: "proj-1"}))
	require.True(t, rt.Submit(BoardEvent{EventType: EventTaskDeleted, BoardID: "board-5", ProjectID: "proj-1"}))

	time.Sleep(50 * time.Millisecond)
	_, err := os.Stat(CurrentTaskPath(projectRoot))
	assert.True(t, os.IsNotExist(err))
}

func TestRouterFileWatcherTriggersAugmentation(t *testing.T) {
	projectRoot := t.TempDir()
	s := openTestStore(t)
	putSkill(t, s, "retry-pattern", "exponential backoff retry helper", "net")

	fb := &fakeBoardClient{}
	rt := New(Deps{
		Store:       s,
		Board:       fb,
		Weights:     ranker.DefaultWeights(),
		ProjectTags: []string{"net"},
		ProjectRoot: projectRoot,
	}, 1, 8)
	rt.Start(context.Background())
	defer rt.Stop()

	require.NoError(t, rt.WatchSpecsDir(projectRoot, 30*time.Millisecond))

	taskPath := projectRoot + "/tasks.md"
	require.NoError(t, os.WriteFile(taskPath, []byte("### Task 1: Harden client\nAdd retries.\n"), 0o644))

	outPath := taskPath[:len(taskPath)-3] + ".prism.md"
	require.Eventually(t, func() bool {
		_, err := os.Stat(outPath)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
}
