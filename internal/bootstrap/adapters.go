package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/fimiwatch/tweetvault/config"
	"github.com/fimiwatch/tweetvault/internal/adapters/archiverunner"
	"github.com/fimiwatch/tweetvault/internal/adapters/reaper"
	"github.com/fimiwatch/tweetvault/internal/core"
	"github.com/fimiwatch/tweetvault/internal/observability/statsd"
	"github.com/fimiwatch/tweetvault/internal/service"
	"github.com/fimiwatch/tweetvault/internal/service/failurenotifier"
)

// ArchiveRunnerConfig contains configuration for the archive task runner.
type ArchiveRunnerConfig struct {
	DB              *sql.DB
	Logger          *slog.Logger
	Config          config.RunnerConfig
	Source          core.SourceGateway
	Sink            core.SinkGateway
	Credentials     core.CredentialStore
	RootFolder      string
	TaskService     *service.TaskService
	Metrics         statsd.Sink
	FailureNotifier *failurenotifier.Service
}

// RunArchiveRunner starts the archive task runner service.
func RunArchiveRunner(ctx context.Context, cfg ArchiveRunnerConfig) error {
	runner, err := archiverunner.NewRunner(archiverunner.RunnerOptions{
		DB:           cfg.DB,
		Logger:       cfg.Logger,
		Lease:        cfg.Config.TaskLease,
		Concurrency:  cfg.Config.Concurrency,
		TaskTimeout:  cfg.Config.TaskTimeout,
		PollInterval: cfg.Config.PollInterval,
		Source:       cfg.Source,
		Sink:         cfg.Sink,
		Credentials:  cfg.Credentials,
		RootFolder:   cfg.RootFolder,
		TaskService:  cfg.TaskService,
		Metrics:      cfg.Metrics,
		Notifier:     cfg.FailureNotifier,
	})
	if err != nil {
		return fmt.Errorf("create archive runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
