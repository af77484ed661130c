package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/antigravity-dev/prism/internal/evaluator"
	"github.com/antigravity-dev/prism/internal/ranker"
	"github.com/antigravity-dev/prism/internal/skill"
)

var evaluateModel string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <skill_id>",
	Short: "Ask the configured LLM whether a candidate Skill should be added, merged, or retired (spec.md §4.8)",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateModel, "model", "", "Override the evaluator model")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	eval, err := evaluator.New(app.Config.Embedding.GenAIAPIKey, evaluateModel)
	if err != nil {
		return err
	}

	st, err := openStore(app)
	if err != nil {
		return err
	}
	defer st.Close()

	candidate, err := st.Get(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := cmdTimeoutCtx(cmd.Context())
	defer cancel()

	entries, err := ranker.Rank(ctx, st, ranker.Query{
		Text:  candidate.Header.Title + " " + candidate.Header.KeyInsight,
		Tags:  candidate.Header.DomainTags,
		Limit: 5,
		Type:  candidate.Header.Type,
	}, weightsFromConfig(app.Config.Ranker))
	if err != nil {
		return err
	}

	neighborSkills := make([]*skill.Skill, 0, len(entries))
	for _, e := range entries {
		if e.Skill.Header.SkillID == candidate.Header.SkillID {
			continue
		}
		neighborSkills = append(neighborSkills, e.Skill)
	}

	result, err := eval.Evaluate(ctx, candidate, neighborSkills)
	if err != nil {
		return err
	}

	fmt.Printf("verdict=%s target=%s reason=%s\n", result.Verdict, result.TargetSkillID, result.Reason)
	return nil
}
