// Package augmenter is PRISM's Task Augmenter: it parses a task-list
// Markdown file, ranks Skills per task, and emits an augmented sibling copy
// without ever touching the input file (spec.md §4.4).
package augmenter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/antigravity-dev/prism/internal/injector"
	"github.com/antigravity-dev/prism/internal/logging"
	"github.com/antigravity-dev/prism/internal/prismerr"
	"github.com/antigravity-dev/prism/internal/ranker"
	"github.com/antigravity-dev/prism/internal/store"
)

// DefaultPerTaskBudget is spec.md §4.4's "small per-task budget" default.
const DefaultPerTaskBudget = 500

// MaxCandidatesPerTask caps how many Skills are listed per task, per
// spec.md §4.4's "request up to 5 candidates".
const MaxCandidatesPerTask = 5

// Task is one parsed (epic, task_title, task_body, acceptance_criteria[])
// record from a task-list Markdown file.
type Task struct {
	Epic     string
	Number   string
	Title    string
	Body     string
	Criteria []string
}

var (
	epicHeadingRe = regexp.MustCompile(`^##\s+Epic:\s*(.+?)\s*$`)
	taskHeadingRe = regexp.MustCompile(`^###\s+Task\s+(\S+)\s*:\s*(.*?)\s*$`)
	criterionRe   = regexp.MustCompile(`^\s*-\s*\[[ xX]\]\s*(.*?)\s*$`)
)

// Parse reads a task-list Markdown file into a stream of Task records. It
// tolerates tasks with no enclosing epic (they belong to an implicit
// "Uncategorized" epic), blank lines, and trailing whitespace, and
// preserves each task body's original character content verbatim — minus
// the acceptance-criteria bullets, which are extracted into Criteria.
func Parse(data []byte) []Task {
	lines := strings.Split(string(data), "\n")

	var tasks []Task
	currentEpic := "Uncategorized"
	var current *Task
	var bodyLines []string

	flush := func() {
		if current == nil {
			return
		}
		current.Body = strings.Trim(strings.Join(bodyLines, "\n"), "\n")
		tasks = append(tasks, *current)
		current = nil
		bodyLines = nil
	}

	for _, line := range lines {
		if m := epicHeadingRe.FindStringSubmatch(line); m != nil {
			flush()
			currentEpic = m[1]
			continue
		}
		if m := taskHeadingRe.FindStringSubmatch(line); m != nil {
			flush()
			current = &Task{Epic: currentEpic, Number: m[1], Title: m[2]}
			continue
		}
		if current == nil {
			// Free text before the first task heading has no record to
			// attach to; the grammar has no place for it.
			continue
		}
		if m := criterionRe.FindStringSubmatch(line); m != nil {
			current.Criteria = append(current.Criteria, m[1])
			continue
		}
		bodyLines = append(bodyLines, line)
	}
	flush()

	return tasks
}

// candidatesForTask runs the Ranker for one task, then applies the
// Injector's budget-packing rule so the listed Skills are ones a later
// full injection could actually afford, and finally caps the count at
// MaxCandidatesPerTask.
func candidatesForTask(ctx context.Context, st *store.Store, t Task, tags []string, weights ranker.Weights, budget int) ([]ranker.RankedEntry, error) {
	q := ranker.Query{
		Text:  strings.TrimSpace(t.Title + "\n" + t.Body),
		Tags:  tags,
		Limit: MaxCandidatesPerTask,
	}
	entries, err := ranker.Rank(ctx, st, q, weights)
	if err != nil {
		return nil, err
	}
	entries = injector.Pack(entries, budget)
	if len(entries) > MaxCandidatesPerTask {
		entries = entries[:MaxCandidatesPerTask]
	}
	return entries, nil
}

func renderContext(entries []ranker.RankedEntry) string {
	var b strings.Builder
	b.WriteString("### PRISM Context\n\n")
	if len(entries) == 0 {
		b.WriteString("_No Skills matched this task._\n")
		return b.String()
	}
	for _, e := range entries {
		title := e.Skill.Header.Title
		if title == "" {
			title = e.Skill.Header.SkillID
		}
		fmt.Fprintf(&b, "- `%s` (%s): %s\n", e.Skill.Header.SkillID, e.Skill.Header.Type, title)
	}
	return b.String()
}

// renderDocument re-emits the full task-list structure — epic headings,
// task headings with their original numbers, bodies, then the injected
// PRISM Context block, then the acceptance criteria.
func renderDocument(tasks []Task, perTask [][]ranker.RankedEntry) string {
	var b strings.Builder
	prevEpic := ""
	for i, t := range tasks {
		if t.Epic != prevEpic {
			if prevEpic != "" {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "## Epic: %s\n\n", t.Epic)
			prevEpic = t.Epic
		}

		fmt.Fprintf(&b, "### Task %s: %s\n", t.Number, t.Title)
		if t.Body != "" {
			b.WriteString(t.Body)
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(renderContext(perTask[i]))
		b.WriteString("\n")
		for _, c := range t.Criteria {
			fmt.Fprintf(&b, "- [ ] %s\n", c)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

const hashMarkerPrefix = "<!-- prism-render-hash: "
const hashMarkerSuffix = " -->"

// OutputPath derives the sibling `.prism.md` path for inputPath, per
// spec.md §4.4.
func OutputPath(inputPath string) string {
	base := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))
	return base + ".prism.md"
}

func contentHash(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// splitMarker extracts a leading hash-marker comment line, if present.
func splitMarker(data []byte) (hash string, rest string, ok bool) {
	text := string(data)
	nl := strings.IndexByte(text, '\n')
	if nl < 0 {
		return "", text, false
	}
	firstLine := text[:nl]
	if !strings.HasPrefix(firstLine, hashMarkerPrefix) || !strings.HasSuffix(firstLine, hashMarkerSuffix) {
		return "", text, false
	}
	hash = strings.TrimSuffix(strings.TrimPrefix(firstLine, hashMarkerPrefix), hashMarkerSuffix)
	return hash, text[nl+1:], true
}

// Augment parses inputPath's task list, ranks Skills per task against st,
// and writes the augmented sibling file (spec.md §4.4). It never modifies
// inputPath. force re-renders even when the sibling is already up to date,
// but never bypasses the manual-edit conflict check: if the sibling exists
// and its content doesn't match the hash of the last PRISM-owned render,
// Augment refuses with Conflict rather than overwriting what looks like a
// hand edit (SPEC_FULL.md §4.4's resolution of the stated Open Question).
func Augment(ctx context.Context, st *store.Store, inputPath string, projectTags []string, weights ranker.Weights, perTaskBudget int, force bool) error {
	timer := logging.StartTimer(logging.CategoryAugmenter, "Augment")
	defer timer.Stop()

	if perTaskBudget <= 0 {
		perTaskBudget = DefaultPerTaskBudget
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "read task list %s", inputPath)
	}

	tasks := Parse(data)

	perTask := make([][]ranker.RankedEntry, len(tasks))
	for i, t := range tasks {
		entries, err := candidatesForTask(ctx, st, t, projectTags, weights, perTaskBudget)
		if err != nil {
			return err
		}
		perTask[i] = entries
	}

	rendered := renderDocument(tasks, perTask)
	newHash := contentHash(rendered)

	outputPath := OutputPath(inputPath)
	existing, readErr := os.ReadFile(outputPath)
	switch {
	case readErr == nil:
		storedHash, rest, ok := splitMarker(existing)
		if !ok || storedHash != contentHash(rest) {
			return prismerr.Conflict("sibling %s was modified outside of PRISM; refusing to overwrite", outputPath)
		}
		if !force && rest == rendered {
			logging.AugmenterDebug("Augment: %s already up to date, skipping write", outputPath)
			return nil
		}
	case !os.IsNotExist(readErr):
		return prismerr.Wrap(prismerr.KindInvalidInput, readErr, "read existing sibling %s", outputPath)
	}

	out := hashMarkerPrefix + newHash + hashMarkerSuffix + "\n" + rendered
	if err := writeSibling(outputPath, []byte(out)); err != nil {
		return err
	}

	logging.Augmenter("Augment: wrote %s for %d tasks", outputPath, len(tasks))
	return nil
}

func writeSibling(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "create sibling directory")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "write temp sibling file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "rename temp sibling file into place")
	}
	return nil
}
