package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/blob"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/config"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/jobs"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/logging"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/store"
	"github.com/MetropolisTHEMA/MetropolisWebInterface-sub000/internal/workflow"
)

// app holds everything a command needs to reach the store and run jobs.
type app struct {
	root     string
	stateDir string
	cfg      *config.MetrosimConfig
	logger   *slog.Logger
	jobLog   *logging.JobLog
	repo     *store.SQLiteStore
	runner   *jobs.Runner
	svc      *workflow.Service
}

// loadConfig resolves --config, then <root>/.metrosim/config.yaml, then the
// user-level file.
func loadConfig(cmd *cobra.Command) (*config.MetrosimConfig, string, error) {
	root, _ := cmd.Flags().GetString("root")
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		local := filepath.Join(store.LocalPath(root), "config.yaml")
		if _, err := os.Stat(local); err == nil {
			path = local
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, root, nil
}

// openApp wires configuration, logging, the SQLite store, the document
// store and the job runner. Callers must Close the result.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, root, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	stateDir := store.LocalPath(root)
	logger := logging.NewLogger(cfg.Logging.Level, os.Stderr)

	repo, err := store.NewSQLiteStore(cfg.DatabasePath(root))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	docs, err := blob.NewFileStore(cfg.DocumentsDir(root))
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}

	jobLog := logging.NewJobLog(stateDir, cfg.Logging.Level)
	runner := jobs.NewRunner(logger, jobLog, cfg.Jobs.Timeout,
		jobs.WithRetention(cfg.Jobs.Retention),
		jobs.WithMaxFinished(cfg.Jobs.MaxFinished))
	svc := workflow.NewService(repo, docs, runner, workflow.Options{
		Compress: cfg.Documents.Compress,
		Logger:   logger,
	})

	return &app{
		root:     root,
		stateDir: stateDir,
		cfg:      cfg,
		logger:   logger,
		jobLog:   jobLog,
		repo:     repo,
		runner:   runner,
		svc:      svc,
	}, nil
}

// Close waits for running jobs, then releases the store and the job log.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if err := a.runner.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop jobs: %w", err))
	}
	a.jobLog.Close()
	if err := a.repo.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}
	return errors.Join(errs...)
}
