// Package injector is PRISM's Context Injector: it turns a ranked Skill
// sequence into a deterministic, token-budgeted Markdown artifact
// (spec.md §4.3).
package injector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/antigravity-dev/prism/internal/logging"
	"github.com/antigravity-dev/prism/internal/prismerr"
	"github.com/antigravity-dev/prism/internal/ranker"
	"github.com/antigravity-dev/prism/internal/skill"
	"github.com/antigravity-dev/prism/internal/store"
)

// CharsPerToken is the estimator ratio used for budget accounting
// throughout PRISM (spec.md §4.3): 4 characters ≈ 1 token, rounded up.
const CharsPerToken = 4.0

// Pack selects entries — already in rank order — into budgetTokens using
// spec.md §4.3's greedy rule: skip a candidate that would overflow the
// remaining budget and keep going (never stop at the first overflow), so a
// large, highly-ranked skill can be passed over in favor of several
// smaller, lower-ranked ones. A skill whose rendered size alone exceeds the
// full budget is always skipped, never just when the remaining budget has
// shrunk. The "always include a skill ≤20% of budget if rank permits" rule
// from spec.md §4.3 falls out of this loop automatically: such a skill
// only gets skipped if the budget is already exhausted by the time its
// turn comes, which is exactly what "if rank permits" means.
func Pack(entries []ranker.RankedEntry, budgetTokens int) []ranker.RankedEntry {
	var selected []ranker.RankedEntry
	remaining := budgetTokens

	for _, e := range entries {
		size := skill.RenderedSize(e.Skill, CharsPerToken)
		if size > budgetTokens || size > remaining {
			continue
		}
		selected = append(selected, e)
		remaining -= size
	}
	return selected
}

// Render produces the artifact's full Markdown text for an already-packed
// selection. now is the generation timestamp printed in the banner — the
// spec explicitly excludes it from the byte-identical comparison, so tests
// should pass a fixed value rather than time.Now().
func Render(selected []ranker.RankedEntry, query string, budgetTokens int, now time.Time) string {
	var b strings.Builder
	b.WriteString("<!-- Generated by PRISM. Do not edit by hand. -->\n")
	b.WriteString("# PRISM Context\n\n")
	fmt.Fprintf(&b, "- generated: %s\n", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- query: %s\n", query)
	fmt.Fprintf(&b, "- budget_tokens: %d\n\n", budgetTokens)

	if len(selected) == 0 {
		b.WriteString("_No Skills matched this query._\n")
		return b.String()
	}

	for _, e := range selected {
		b.WriteString(skill.Render(e.Skill))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// Inject packs entries into budgetTokens, writes the resulting artifact to
// path via write-temp-then-rename, and — on success only — calls
// IncrementReuse for every emitted Skill in rank order (spec.md §4.3's
// side-effect rule: reuse only counts once a Skill actually lands in an
// artifact, never on mere retrieval).
func Inject(ctx context.Context, st *store.Store, entries []ranker.RankedEntry, query string, budgetTokens int, path string, now time.Time) error {
	timer := logging.StartTimer(logging.CategoryInjector, "Inject")
	defer timer.Stop()

	selected := Pack(entries, budgetTokens)
	artifact := Render(selected, query, budgetTokens, now)

	if err := writeArtifact(path, []byte(artifact)); err != nil {
		return err
	}

	for _, e := range selected {
		if err := st.IncrementReuse(e.Skill.Header.SkillID); err != nil {
			logging.Get(logging.CategoryInjector).Warn("Inject: IncrementReuse failed for %s: %v", e.Skill.Header.SkillID, err)
		}
	}

	logging.Injector("Inject: wrote %s with %d of %d candidates (budget=%d)", path, len(selected), len(entries), budgetTokens)
	return nil
}

func writeArtifact(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "create artifact directory")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "write temp artifact file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "rename temp artifact file into place")
	}
	return nil
}
