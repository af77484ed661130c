package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/antigravity-dev/prism/internal/config"
	"github.com/antigravity-dev/prism/internal/ranker"
	"github.com/antigravity-dev/prism/internal/skill"
)

var (
	rankText  string
	rankTags  []string
	rankLimit int
	rankType  string
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank Skills against a query (spec.md §4.2)",
	RunE:  runRank,
}

func init() {
	rankCmd.Flags().StringVar(&rankText, "text", "", "Query text")
	rankCmd.Flags().StringSliceVar(&rankTags, "tag", nil, "Context tag (repeatable)")
	rankCmd.Flags().IntVar(&rankLimit, "limit", 20, "Maximum results")
	rankCmd.Flags().StringVar(&rankType, "type", "", "Restrict to one Skill type")
}

func runRank(cmd *cobra.Command, args []string) error {
	st, err := openStore(app)
	if err != nil {
		return err
	}
	defer st.Close()

	weights := weightsFromConfig(app.Config.Ranker)

	ctx, cancel := cmdTimeoutCtx(cmd.Context())
	defer cancel()

	entries, err := ranker.Rank(ctx, st, ranker.Query{
		Text:  rankText,
		Tags:  append(rankTags, app.Project.Stack...),
		Limit: rankLimit,
		Type:  skill.Type(rankType),
	}, weights)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No Skills matched.")
		return nil
	}

	for _, e := range entries {
		fmt.Printf("%-30s score=%6.3f lex=%5.3f sem=%5.3f tag=%5.3f reuse=%5.3f recency=%5.3f\n",
			e.Skill.Header.SkillID, e.Score,
			e.Components.Lex, e.Components.Sem, e.Components.Tag, e.Components.Reuse, e.Components.Recency)
	}
	return nil
}

func weightsFromConfig(rc config.RankerConfig) ranker.Weights {
	w := ranker.Weights{Lex: rc.WeightLex, Sem: rc.WeightSem, Tag: rc.WeightTag, Reuse: rc.WeightReuse, Recency: rc.WeightRecency}
	if w.Validate() != nil {
		return ranker.DefaultWeights()
	}
	return w
}
