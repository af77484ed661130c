package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/antigravity-dev/prism/internal/augmenter"
	"github.com/antigravity-dev/prism/internal/board"
	"github.com/antigravity-dev/prism/internal/prismerr"
)

var (
	boardProjectID string
	boardDryRun    bool
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Mirror a project's tasks onto an external board",
}

var boardSyncCmd = &cobra.Command{
	Use:   "sync <task-list.md>",
	Short: "Create a board task for every task not yet in the project's board task map (spec.md §4.5)",
	Args:  cobra.ExactArgs(1),
	RunE:  runBoardSync,
}

func init() {
	boardSyncCmd.Flags().StringVar(&boardProjectID, "project-id", "", "Board-side project identifier (required)")
	boardSyncCmd.Flags().BoolVar(&boardDryRun, "dry-run", false, "Print the plan without calling the board or saving")
	boardSyncCmd.MarkFlagRequired("project-id")

	boardCmd.AddCommand(boardSyncCmd)
}

func runBoardSync(cmd *cobra.Command, args []string) error {
	if app.Config.Board.BaseURL == "" {
		return prismerr.ConfigurationMissing("board sync requires config.board.base_url to be set")
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return prismerr.Wrap(prismerr.KindInvalidInput, err, "read task list %s", args[0])
	}

	var inputs []board.TaskInput
	for _, t := range augmenter.Parse(data) {
		inputs = append(inputs, board.TaskInput{
			Key:   t.Epic + "/" + t.Number + ":" + t.Title,
			Title: t.Title,
			Body:  t.Body,
		})
	}

	client := board.NewHTTPClient(
		app.Config.Board.BaseURL,
		app.Config.Board.Token,
		time.Duration(app.Config.Board.TimeoutSecond)*time.Second,
		board.DefaultRetryPolicy(),
	)

	ctx, cancel := cmdTimeoutCtx(cmd.Context())
	defer cancel()

	plan, err := board.SyncTasks(ctx, client, boardProjectID, inputs, app.Project.BoardTaskMap, boardDryRun)
	if err != nil {
		return err
	}

	fmt.Printf("created %d, already synced %d\n", len(plan.ToCreate), len(plan.AlreadySynced))
	for _, t := range plan.ToCreate {
		fmt.Printf("  created: %s\n", t.Key)
	}

	if boardDryRun {
		return nil
	}
	return app.Project.Save()
}
