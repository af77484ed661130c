package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/antigravity-dev/prism/internal/board"
	"github.com/antigravity-dev/prism/internal/memsync"
	"github.com/antigravity-dev/prism/internal/prismerr"
	"github.com/antigravity-dev/prism/internal/router"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Event Router's webhook listener and file watcher (spec.md §4.6)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if app.Config.Board.BaseURL == "" {
		return prismerr.ConfigurationMissing("serve requires config.board.base_url to be set")
	}

	st, err := openStore(app)
	if err != nil {
		return err
	}
	defer st.Close()

	client := board.NewHTTPClient(
		app.Config.Board.BaseURL,
		app.Config.Board.Token,
		time.Duration(app.Config.Board.TimeoutSecond)*time.Second,
		board.DefaultRetryPolicy(),
	)

	rt := router.New(router.Deps{
		Store:             st,
		Board:             client,
		Weights:           weightsFromConfig(app.Config.Ranker),
		ProjectTags:       app.Project.Stack,
		ProjectRoot:       app.Workspace,
		PerTaskBudget:     app.Config.Injector.DefaultPerTaskBudget,
		CurrentTaskBudget: router.DefaultCurrentTaskBudget,
		OnMemoryCaptureRequested: onMemoryCaptureRequested,
	}, app.Config.Router.Workers, app.Config.Router.QueueCapacity)

	if app.Config.Router.SpecsDir != "" {
		debounce := time.Duration(app.Config.Router.DebounceSeconds) * time.Second
		if err := rt.WatchSpecsDir(app.Config.Router.SpecsDir, debounce); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.Start(ctx)
	defer rt.Stop()

	mux := chi.NewRouter()
	mux.Mount(app.Config.Router.WebhookPath, rt.Handler())

	addr := fmt.Sprintf(":%d", app.Config.Router.WebhookPort)
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("serving webhook at %s%s\n", addr, app.Config.Router.WebhookPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return prismerr.ExternalUnavailable(err, "webhook server failed")
	case <-sigCh:
		fmt.Println("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// onMemoryCaptureRequested is the any -> done transition's memory-capture
// hook, run after a board task has moved to done: when the memory root is a
// git repository and memory.auto_commit is set, it commits and pushes
// whatever has accumulated there; otherwise it does nothing. Parsing the completed task's body into a Skill document is left to
// the caller that files the capture (spec.md §4.6's "actual memory capture
// is out of the Router's scope").
func onMemoryCaptureRequested(projectID, boardTaskID string) {
	repo := memsync.Open(app.Config.Memory.Root)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if !repo.IsRepo(ctx) || !app.Config.Memory.AutoCommit {
		return
	}

	if err := memsync.Sync(ctx, repo, 1, "", app.Config.Memory.GitRemote, "main"); err != nil {
		fmt.Fprintf(os.Stderr, "memory sync after capture for project=%s board_task=%s failed: %v\n", projectID, boardTaskID, err)
	}
}
