package board

import (
	"context"

	"github.com/antigravity-dev/prism/internal/logging"
)

// TaskInput is one task a caller wants mirrored onto the board. Key is a
// stable internal identifier (e.g. derived from a task list's epic, task
// number, and title) used to decide whether this task has already been
// synced — it is never sent to the board itself.
type TaskInput struct {
	Key   string
	Title string
	Body  string
}

// SyncPlan is what SyncTasks would do (or did): which tasks still need a
// board-side task created, and which keys were already present in the map.
type SyncPlan struct {
	ToCreate      []TaskInput
	AlreadySynced []string
}

// PlanSync computes which tasks are missing from taskMap, without touching
// the board or the map.
func PlanSync(tasks []TaskInput, taskMap map[string]string) SyncPlan {
	var plan SyncPlan
	for _, t := range tasks {
		if _, ok := taskMap[t.Key]; ok {
			plan.AlreadySynced = append(plan.AlreadySynced, t.Key)
			continue
		}
		plan.ToCreate = append(plan.ToCreate, t)
	}
	return plan
}

// SyncTasks implements spec.md §4.5's idempotent sync: it creates a board
// task only for keys absent from taskMap, updating taskMap after each
// successful create so a later failure never re-creates an earlier
// success. In dryRun mode it returns the plan without calling CreateTask or
// mutating taskMap at all.
func SyncTasks(ctx context.Context, client Client, projectID string, tasks []TaskInput, taskMap map[string]string, dryRun bool) (SyncPlan, error) {
	plan := PlanSync(tasks, taskMap)
	if dryRun {
		return plan, nil
	}

	for _, t := range plan.ToCreate {
		boardID, err := client.CreateTask(ctx, projectID, t.Title, t.Body)
		if err != nil {
			return plan, err
		}
		taskMap[t.Key] = boardID
		logging.Board("SyncTasks: created board task %s for key %q", boardID, t.Key)
	}
	return plan, nil
}
