package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/antigravity-dev/prism/internal/injector"
	"github.com/antigravity-dev/prism/internal/ranker"
	"github.com/antigravity-dev/prism/internal/skill"
)

var (
	injectText   string
	injectTags   []string
	injectLimit  int
	injectType   string
	injectBudget int
	injectPath   string
)

var injectCmd = &cobra.Command{
	Use:   "inject",
	Short: "Rank and pack Skills into a token-budgeted context artifact (spec.md §4.3)",
	RunE:  runInject,
}

func init() {
	injectCmd.Flags().StringVar(&injectText, "text", "", "Query text")
	injectCmd.Flags().StringSliceVar(&injectTags, "tag", nil, "Context tag (repeatable)")
	injectCmd.Flags().IntVar(&injectLimit, "limit", 20, "Maximum candidates to rank before packing")
	injectCmd.Flags().StringVar(&injectType, "type", "", "Restrict to one Skill type")
	injectCmd.Flags().IntVar(&injectBudget, "budget", 0, "Token budget (defaults to config's injector.default_budget_tokens)")
	injectCmd.Flags().StringVar(&injectPath, "out", "", "Output path (default <workspace>/.prism/injected-context.md)")
}

func runInject(cmd *cobra.Command, args []string) error {
	st, err := openStore(app)
	if err != nil {
		return err
	}
	defer st.Close()

	budget := injectBudget
	if budget <= 0 {
		budget = app.Config.Injector.DefaultBudgetTokens
	}
	out := injectPath
	if out == "" {
		out = filepath.Join(app.Workspace, ".prism", "injected-context.md")
	}

	ctx, cancel := cmdTimeoutCtx(cmd.Context())
	defer cancel()

	entries, err := ranker.Rank(ctx, st, ranker.Query{
		Text:  injectText,
		Tags:  append(injectTags, app.Project.Stack...),
		Limit: injectLimit,
		Type:  skill.Type(injectType),
	}, weightsFromConfig(app.Config.Ranker))
	if err != nil {
		return err
	}

	if err := injector.Inject(ctx, st, entries, injectText, budget, out, time.Now()); err != nil {
		return err
	}

	fmt.Printf("wrote %s\n", out)
	return nil
}
