// Package main implements the prism CLI - the command-line entry point into
// PRISM's Skill Store, Ranker, Context Injector, Task Augmenter, Board
// Adapter, Event Router, Memory Sync, and Evaluator.
//
// This file is the entry point and command registration hub. The actual
// command implementations are split across cmd_*.go files by concern.
//
// # File Index
//
//   - main.go        - entry point, rootCmd, global flags, appContext, init()
//   - cmd_skill.go   - skillCmd (add/get/list/bump/reindex)
//   - cmd_rank.go    - rankCmd
//   - cmd_inject.go  - injectCmd
//   - cmd_augment.go - augmentCmd
//   - cmd_board.go   - boardCmd (sync)
//   - cmd_serve.go   - serveCmd (webhook + file watcher + worker pool)
//   - cmd_sync.go    - syncCmd (memory sync)
//   - cmd_evaluate.go - evaluateCmd
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/antigravity-dev/prism/internal/config"
	"github.com/antigravity-dev/prism/internal/logging"
	"github.com/antigravity-dev/prism/internal/prismerr"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	timeout    time.Duration
	llmAPIKey  string
	boardToken string

	// logger is the CLI-facing structured logger (distinct from the
	// categorized file logger in internal/logging, which records
	// subsystem telemetry under .prism/logs/).
	logger *zap.Logger

	// app is the resolved configuration + project for the current
	// invocation, built once in PersistentPreRunE.
	app appContext
)

// appContext bundles what every subcommand needs: the effective config
// (global defaults merged with the project's override, spec.md §6), the
// project itself (for BoardTaskMap persistence), and the workspace root.
type appContext struct {
	Workspace string
	Project   *config.Project
	Config    config.Config
}

var rootCmd = &cobra.Command{
	Use:   "prism",
	Short: "PRISM - an agent-agnostic orchestration layer for Skills, tasks, and boards",
	Long: `PRISM stores reusable engineering Skills, ranks them against a task or
query, injects them into agent context under a token budget, augments task
lists with matched Skills, mirrors tasks onto an external board, and reacts
to board transitions and task-list edits via an event router.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		} else if abs, err := filepath.Abs(ws); err == nil {
			ws = abs
		}

		if err := logging.Initialize(ws, logging.Options{DebugMode: verbose, Level: levelName(verbose)}); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}

		cfg, err := config.Load(config.DefaultGlobalPath())
		if err != nil {
			return err
		}
		if llmAPIKey != "" {
			cfg.Embedding.GenAIAPIKey = llmAPIKey
		}
		if boardToken != "" {
			cfg.Board.Token = boardToken
		}

		project, err := config.LoadProject(ws)
		if err != nil {
			return err
		}
		cfg = project.Merge(cfg)

		app = appContext{Workspace: ws, Project: project, Config: cfg}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		_ = logging.Close()
	},
}

func levelName(verbose bool) string {
	if verbose {
		return "debug"
	}
	return "info"
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "Operation timeout")
	rootCmd.PersistentFlags().StringVar(&llmAPIKey, "llm-api-key", "", "LLM API key (or set PRISM_LLM_API_KEY env)")
	rootCmd.PersistentFlags().StringVar(&boardToken, "board-token", "", "Board API token (or set PRISM_BOARD_TOKEN env)")

	rootCmd.AddCommand(
		skillCmd,
		rankCmd,
		injectCmd,
		augmentCmd,
		boardCmd,
		serveCmd,
		syncCmd,
		evaluateCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(prismerr.KindOf(err).ExitCode())
	}
}
