package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/antigravity-dev/prism/internal/prismerr"
	"github.com/antigravity-dev/prism/internal/skill"
	"github.com/antigravity-dev/prism/internal/store"
)

var (
	addType          string
	addTitle         string
	addKeyInsight    string
	addBody          string
	addDomainTags    []string
	addStackContext  []string
	addScope         string
	addProjectOrigin string
	addVerifiedBy    string

	listStatus string
	listType   string
	listTag    string
)

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Manage Skills in the Skill Store",
}

var skillAddCmd = &cobra.Command{
	Use:   "add <skill_id>",
	Short: "Add or update a Skill",
	Args:  cobra.ExactArgs(1),
	RunE:  runSkillAdd,
}

var skillGetCmd = &cobra.Command{
	Use:   "get <skill_id>",
	Short: "Print a single Skill document",
	Args:  cobra.ExactArgs(1),
	RunE:  runSkillGet,
}

var skillListCmd = &cobra.Command{
	Use:   "list",
	Short: "List Skills, optionally filtered",
	RunE:  runSkillList,
}

var skillBumpCmd = &cobra.Command{
	Use:   "bump <skill_id>",
	Short: "Increment a Skill's reuse_count and refresh last_used",
	Args:  cobra.ExactArgs(1),
	RunE:  runSkillBump,
}

var skillReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the Skill Store's index from the on-disk corpus",
	RunE:  runSkillReindex,
}

func init() {
	skillAddCmd.Flags().StringVar(&addType, "type", string(skill.TypeSkill), "skill|pattern|gotcha|decision")
	skillAddCmd.Flags().StringVar(&addTitle, "title", "", "Short title")
	skillAddCmd.Flags().StringVar(&addKeyInsight, "key-insight", "", "One-sentence key insight")
	skillAddCmd.Flags().StringVar(&addBody, "body", "", "Full Markdown body")
	skillAddCmd.Flags().StringSliceVar(&addDomainTags, "tag", nil, "Domain tag (repeatable)")
	skillAddCmd.Flags().StringSliceVar(&addStackContext, "stack", nil, "Stack context entry (repeatable)")
	skillAddCmd.Flags().StringVar(&addScope, "scope", string(skill.ScopeGlobal), "global|project")
	skillAddCmd.Flags().StringVar(&addProjectOrigin, "project-origin", "", "Required when --scope=project")
	skillAddCmd.Flags().StringVar(&addVerifiedBy, "verified-by", string(skill.VerifiedByHuman), "human|agent")

	skillListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (active, deprecated, conflicted, needs_review, or empty for all)")
	skillListCmd.Flags().StringVar(&listType, "type", "", "Filter by type")
	skillListCmd.Flags().StringVar(&listTag, "tag", "", "Filter by domain tag")

	skillCmd.AddCommand(skillAddCmd, skillGetCmd, skillListCmd, skillBumpCmd, skillReindexCmd)
}

func runSkillAdd(cmd *cobra.Command, args []string) error {
	skillID := args[0]

	st, err := openStore(app)
	if err != nil {
		return err
	}
	defer st.Close()

	today := time.Now().UTC().Format("2006-01-02")
	created := today
	if existing, err := st.Get(skillID); err == nil {
		created = existing.Header.Created
	}

	sk := &skill.Skill{
		Header: skill.Header{
			SkillID:       skillID,
			Type:          skill.Type(addType),
			Title:         addTitle,
			KeyInsight:    addKeyInsight,
			DomainTags:    addDomainTags,
			Scope:         skill.Scope(addScope),
			StackContext:  addStackContext,
			Created:       created,
			LastUsed:      today,
			ProjectOrigin: addProjectOrigin,
			Status:        skill.StatusActive,
			VerifiedBy:    skill.VerifiedBy(addVerifiedBy),
		},
		Body: addBody,
	}

	ctx, cancel := cmdTimeoutCtx(cmd.Context())
	defer cancel()
	if err := st.Put(ctx, sk); err != nil {
		return err
	}

	fmt.Printf("stored %s (%s)\n", sk.Header.SkillID, sk.Header.Type)
	return nil
}

func runSkillGet(cmd *cobra.Command, args []string) error {
	st, err := openStore(app)
	if err != nil {
		return err
	}
	defer st.Close()

	sk, err := st.Get(args[0])
	if err != nil {
		return err
	}

	data, err := skill.Marshal(sk)
	if err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "render %s", sk.Header.SkillID)
	}
	fmt.Print(string(data))
	return nil
}

func runSkillList(cmd *cobra.Command, args []string) error {
	st, err := openStore(app)
	if err != nil {
		return err
	}
	defer st.Close()

	skills, err := st.List(store.Filter{Status: listStatus, Type: skill.Type(listType), Tag: listTag})
	if err != nil {
		return err
	}

	if len(skills) == 0 {
		fmt.Println("No Skills found.")
		return nil
	}

	for _, sk := range skills {
		fmt.Printf("%-30s %-10s %-10s reuse=%-4d %s\n",
			sk.Header.SkillID, sk.Header.Type, sk.Header.Status, sk.Header.ReuseCount,
			strings.Join(sk.Header.DomainTags, ","))
	}
	return nil
}

func runSkillBump(cmd *cobra.Command, args []string) error {
	st, err := openStore(app)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.IncrementReuse(args[0]); err != nil {
		return err
	}
	fmt.Printf("bumped %s\n", args[0])
	return nil
}

func runSkillReindex(cmd *cobra.Command, args []string) error {
	st, err := openStore(app)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := cmdTimeoutCtx(cmd.Context())
	defer cancel()
	if err := st.RebuildIndex(ctx); err != nil {
		return err
	}
	fmt.Println("index rebuilt")
	return nil
}
