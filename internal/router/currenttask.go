package router

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/antigravity-dev/prism/internal/board"
	"github.com/antigravity-dev/prism/internal/prismerr"
	"github.com/antigravity-dev/prism/internal/ranker"
	"github.com/antigravity-dev/prism/internal/skill"
)

// DefaultCurrentTaskBudget is the token budget for the ranked Skills listed
// in current-task.md (spec.md §4.6's "3-4k tokens").
const DefaultCurrentTaskBudget = 3500

// renderCurrentTask builds current-task.md's content: the task's title,
// description, and acceptance criteria, the ranked Skills packed under
// budget, a Definition-of-Done checklist, and an empty Output block for the
// agent to fill in (spec.md §4.6).
func renderCurrentTask(task board.TaskRecord, entries []ranker.RankedEntry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", task.Title)
	if task.Body != "" {
		b.WriteString(task.Body)
		b.WriteString("\n\n")
	}

	b.WriteString("## Acceptance Criteria\n\n")
	if len(task.Criteria) == 0 {
		b.WriteString("_No acceptance criteria recorded for this task._\n\n")
	} else {
		for _, c := range task.Criteria {
			fmt.Fprintf(&b, "- [ ] %s\n", c)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Skills\n\n")
	if len(entries) == 0 {
		b.WriteString("_No Skills matched this task._\n\n")
	} else {
		for _, e := range entries {
			b.WriteString(skill.Render(e.Skill))
			b.WriteString("\n\n")
		}
	}

	b.WriteString("## Definition of Done\n\n")
	b.WriteString("- [ ] Implementation matches the task description\n")
	b.WriteString("- [ ] Tests cover the change\n")
	b.WriteString("- [ ] No regressions in adjacent functionality\n\n")

	b.WriteString("## Output\n\n")

	return b.String()
}

// writeCurrentTask writes content to path, a temp-file-then-rename so a
// reader never observes a partially written file.
func writeCurrentTask(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "create directory for current-task.md")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "write temp current-task.md")
	}
	if err := os.Rename(tmp, path); err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "rename temp current-task.md into place")
	}
	return nil
}

// CurrentTaskPath returns the fixed current-task.md location under a
// project root.
func CurrentTaskPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".prism", "current-task.md")
}
