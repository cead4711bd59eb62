package main

import (
	"context"
	"fmt"
	"os"

	"muninn/internal/config"
	"muninn/internal/embedding"
	"muninn/internal/outcomes"
	"muninn/internal/project"
	"muninn/internal/queue"
	"muninn/internal/store"
)

// app bundles the opened resources a command needs: the store, an
// embedding engine (best-effort; nil when no provider is reachable), the
// resolved project row, and a dispatcher with the outcomes/codeintel
// handlers already registered.
type app struct {
	store      store.Store
	engine     embedding.EmbeddingEngine
	project    *store.Project
	dispatcher *queue.Dispatcher
	repoRoot   string
}

// resolveWorkspace returns the absolute project root: --workspace if set,
// else the current directory.
func resolveWorkspace() (string, error) {
	if workspace != "" {
		return workspace, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return wd, nil
}

// openApp resolves config, opens the store (project-local if --project-db,
// else the shared home database), resolves/creates the project row, and
// wires an embedding engine and a handler-registered dispatcher. Every
// CLI command that touches the store funnels through this.
func openApp(ctx context.Context) (*app, error) {
	repoRoot, err := resolveWorkspace()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dbPath := config.DBPath(cfg.Home)
	if projectDB {
		dbPath = config.ProjectDBPath(repoRoot)
	}

	ls, err := store.NewLocalStore(store.DefaultDriverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	proj, err := project.GetOrCreate(ctx, ls, repoRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project: %w", err)
	}

	engineCfg := embedding.FromFields(cfg.Embedding.Provider, cfg.Embedding.Endpoint, cfg.Embedding.Model, "", cfg.Embedding.TimeoutSec)
	engine, err := embedding.NewEngine(engineCfg)
	if err != nil {
		engine = nil
	}

	dispatcher := queue.NewDispatcher(ls)
	outcomes.RegisterHandlers(dispatcher, proj.ID, repoRoot)

	return &app{store: ls, engine: engine, project: proj, dispatcher: dispatcher, repoRoot: repoRoot}, nil
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}
