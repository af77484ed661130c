// Package memsync is PRISM's Memory Sync: it stages, commits, pushes, and
// pulls changes under a project's memory directory through the external
// `git` binary (spec.md §4.7).
package memsync

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"text/template"
	"time"

	"github.com/antigravity-dev/prism/internal/logging"
	"github.com/antigravity-dev/prism/internal/prismerr"
)

// DefaultCommitMessageTemplate is the templated commit message used when a
// caller doesn't supply its own (spec.md §4.7's "commit messages are
// templated; callers may override").
const DefaultCommitMessageTemplate = "prism: sync memory ({{.SkillCount}} skills, {{.Timestamp}})"

// CommitData is the data available to a commit message template.
type CommitData struct {
	SkillCount int
	Timestamp  string
}

// Status reports the working tree state of the memory directory, per
// `git status --porcelain`'s three buckets.
type Status struct {
	Staged    []string
	Unstaged  []string
	Untracked []string
}

// Clean reports whether there is nothing to commit.
func (s Status) Clean() bool {
	return len(s.Staged) == 0 && len(s.Unstaged) == 0 && len(s.Untracked) == 0
}

// Repo is a git-backed memory directory.
type Repo struct {
	Dir string
}

// Open returns a Repo rooted at dir. It does not verify dir is a git
// repository — that surfaces as an error from the first operation
// performed against it.
func Open(dir string) *Repo {
	return &Repo{Dir: dir}
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", prismerr.ExternalUnavailable(err, "git %s failed: %s", strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// IsRepo reports whether Dir is inside a git working tree.
func (r *Repo) IsRepo(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = r.Dir
	return cmd.Run() == nil
}

// Stage runs `git add` over paths (relative to Dir); an empty paths stages
// everything under Dir.
func (r *Repo) Stage(ctx context.Context, paths ...string) error {
	args := append([]string{"add"}, paths...)
	if len(paths) == 0 {
		args = []string{"add", "."}
	}
	_, err := r.run(ctx, args...)
	if err == nil {
		logging.SyncDebug("memsync: staged %v", paths)
	}
	return err
}

// Status reports the working tree's staged, unstaged, and untracked files.
func (r *Repo) Status(ctx context.Context) (Status, error) {
	out, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return Status{}, err
	}

	var st Status
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 3 {
			continue
		}
		indexState, workTreeState, path := line[0], line[1], strings.TrimSpace(line[2:])
		switch {
		case indexState == '?' && workTreeState == '?':
			st.Untracked = append(st.Untracked, path)
		case indexState != ' ':
			st.Staged = append(st.Staged, path)
		case workTreeState != ' ':
			st.Unstaged = append(st.Unstaged, path)
		}
	}
	return st, nil
}

// Commit commits currently staged changes with message. It returns nil
// without committing if there is nothing staged — committing an empty
// tree is never useful and `git commit` would otherwise fail anyway.
func (r *Repo) Commit(ctx context.Context, message string) error {
	st, err := r.Status(ctx)
	if err != nil {
		return err
	}
	if len(st.Staged) == 0 {
		logging.SyncDebug("memsync: nothing staged, skipping commit")
		return nil
	}

	_, err = r.run(ctx, "commit", "-m", message)
	if err == nil {
		logging.Sync("memsync: committed %d files", len(st.Staged))
	}
	return err
}

// Push pushes the current branch to remote.
func (r *Repo) Push(ctx context.Context, remote, branch string) error {
	_, err := r.run(ctx, "push", remote, branch)
	if err == nil {
		logging.Sync("memsync: pushed %s/%s", remote, branch)
	}
	return err
}

// Pull fetches and merges remote/branch into the current branch.
func (r *Repo) Pull(ctx context.Context, remote, branch string) error {
	_, err := r.run(ctx, "pull", remote, branch)
	if err == nil {
		logging.Sync("memsync: pulled %s/%s", remote, branch)
	}
	return err
}

// RenderCommitMessage executes tmpl (a text/template source string) with
// data, falling back to DefaultCommitMessageTemplate when tmpl is empty.
func RenderCommitMessage(tmpl string, data CommitData) (string, error) {
	if tmpl == "" {
		tmpl = DefaultCommitMessageTemplate
	}
	t, err := template.New("commit-message").Parse(tmpl)
	if err != nil {
		return "", prismerr.InvalidInput("parse commit message template: %v", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", prismerr.InvalidInput("render commit message template: %v", err)
	}
	return buf.String(), nil
}

// Sync is the high-level spec.md §4.7 operation: stage everything under
// the repo, commit with a templated message if there's anything staged,
// and push. remote/branch are passed through to Push; an empty remote
// skips the push (useful for local-only memory directories).
func Sync(ctx context.Context, r *Repo, skillCount int, commitTemplate, remote, branch string) error {
	timer := logging.StartTimer(logging.CategorySync, "Sync")
	defer timer.Stop()

	if err := r.Stage(ctx); err != nil {
		return err
	}

	message, err := RenderCommitMessage(commitTemplate, CommitData{
		SkillCount: skillCount,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	if err := r.Commit(ctx, message); err != nil {
		return err
	}

	if remote == "" {
		return nil
	}
	return r.Push(ctx, remote, branch)
}
