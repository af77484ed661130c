package board

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	created     []TaskInput
	nextID      int
	failOnTitle string
}

func (f *fakeClient) ListTasks(ctx context.Context, projectID string) ([]TaskRecord, error) {
	return nil, nil
}

func (f *fakeClient) CreateTask(ctx context.Context, projectID, title, body string) (string, error) {
	if title == f.failOnTitle {
		return "", errors.New("simulated create failure")
	}
	f.nextID++
	f.created = append(f.created, TaskInput{Title: title, Body: body})
	return fmt.Sprintf("board-%d", f.nextID), nil
}

func (f *fakeClient) GetTask(ctx context.Context, boardID string) (TaskRecord, error) {
	return TaskRecord{BoardID: boardID}, nil
}

func (f *fakeClient) UpdateTaskStatus(ctx context.Context, boardID, status string) error {
	return nil
}

func TestSyncTasksOnlyCreatesMissingKeys(t *testing.T) {
	client := &fakeClient{}
	taskMap := map[string]string{"epic-1/task-1": "board-existing"}
	tasks := []TaskInput{
		{Key: "epic-1/task-1", Title: "Already synced"},
		{Key: "epic-1/task-2", Title: "New task", Body: "body"},
	}

	plan, err := SyncTasks(context.Background(), client, "proj-1", tasks, taskMap, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"epic-1/task-1"}, plan.AlreadySynced)
	require.Len(t, plan.ToCreate, 1)
	assert.Equal(t, "New task", plan.ToCreate[0].Title)

	assert.Equal(t, "board-existing", taskMap["epic-1/task-1"])
	assert.Equal(t, "board-1", taskMap["epic-1/task-2"])
	require.Len(t, client.created, 1)
	assert.Equal(t, "New task", client.created[0].Title)
}

func TestSyncTasksDryRunMutatesNeitherMapNorRemote(t *testing.T) {
	client := &fakeClient{}
	taskMap := map[string]string{}
	tasks := []TaskInput{{Key: "epic-1/task-1", Title: "Dry run task"}}

	plan, err := SyncTasks(context.Background(), client, "proj-1", tasks, taskMap, true)
	require.NoError(t, err)

	require.Len(t, plan.ToCreate, 1)
	assert.Empty(t, taskMap)
	assert.Empty(t, client.created)
}

func TestSyncTasksStopsAtFirstFailureButKeepsEarlierSuccesses(t *testing.T) {
	client := &fakeClient{failOnTitle: "Boom"}
	taskMap := map[string]string{}
	tasks := []TaskInput{
		{Key: "k1", Title: "Fine one"},
		{Key: "k2", Title: "Boom"},
		{Key: "k3", Title: "Never reached"},
	}

	_, err := SyncTasks(context.Background(), client, "proj-1", tasks, taskMap, false)
	require.Error(t, err)

	assert.Contains(t, taskMap, "k1")
	assert.NotContains(t, taskMap, "k2")
	assert.NotContains(t, taskMap, "k3")
}

func TestPlanSyncIsPureAndDoesNotMutateInputs(t *testing.T) {
	taskMap := map[string]string{"k1": "board-1"}
	tasks := []TaskInput{{Key: "k1", Title: "A"}, {Key: "k2", Title: "B"}}

	plan := PlanSync(tasks, taskMap)
	assert.Equal(t, []string{"k1"}, plan.AlreadySynced)
	require.Len(t, plan.ToCreate, 1)
	assert.Equal(t, "k2", plan.ToCreate[0].Key)
	assert.Len(t, taskMap, 1)
}
