package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/antigravity-dev/prism/internal/memsync"
	"github.com/antigravity-dev/prism/internal/prismerr"
	"github.com/antigravity-dev/prism/internal/store"
)

var syncBranch string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Stage, commit, and push the memory root (spec.md §4.7)",
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncBranch, "branch", "main", "Branch to push")
}

func runSync(cmd *cobra.Command, args []string) error {
	st, err := openStore(app)
	if err != nil {
		return err
	}
	skills, err := st.List(store.Filter{})
	st.Close()
	if err != nil {
		return err
	}

	repo := memsync.Open(app.Config.Memory.Root)
	if !repo.IsRepo(cmd.Context()) {
		return prismerr.InvalidInput("%s is not a git repository; run git init there first", app.Config.Memory.Root)
	}

	ctx, cancel := cmdTimeoutCtx(cmd.Context())
	defer cancel()

	if err := memsync.Sync(ctx, repo, len(skills), "", app.Config.Memory.GitRemote, syncBranch); err != nil {
		return err
	}

	fmt.Println("memory synced")
	return nil
}
