package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/antigravity-dev/prism/internal/augmenter"
)

var (
	augmentTags  []string
	augmentBudget int
	augmentForce bool
)

var augmentCmd = &cobra.Command{
	Use:   "augment <task-list.md>",
	Short: "Rank Skills for each task in a task-list file and write an augmented sibling (spec.md §4.4)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAugment,
}

func init() {
	augmentCmd.Flags().StringSliceVar(&augmentTags, "tag", nil, "Context tag (repeatable)")
	augmentCmd.Flags().IntVar(&augmentBudget, "budget", 0, "Per-task token budget (defaults to config's injector.default_per_task_budget_tokens)")
	augmentCmd.Flags().BoolVar(&augmentForce, "force", false, "Re-render even when the sibling is already up to date")
}

func runAugment(cmd *cobra.Command, args []string) error {
	st, err := openStore(app)
	if err != nil {
		return err
	}
	defer st.Close()

	budget := augmentBudget
	if budget <= 0 {
		budget = app.Config.Injector.DefaultPerTaskBudget
	}

	ctx, cancel := cmdTimeoutCtx(cmd.Context())
	defer cancel()

	inputPath := args[0]
	if err := augmenter.Augment(ctx, st, inputPath, append(augmentTags, app.Project.Stack...), weightsFromConfig(app.Config.Ranker), budget, augmentForce); err != nil {
		return err
	}

	fmt.Printf("wrote %s\n", augmenter.OutputPath(inputPath))
	return nil
}
