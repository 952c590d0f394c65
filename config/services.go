package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeArchiveRunner runs the archive task worker.
	ServiceModeArchiveRunner ServiceMode = "archive-runner"
	// ServiceModeReaper runs the task reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeArchiveRunner,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeArchiveRunner, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, archive-runner, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// RunnerConfig contains archive runner service configuration.
type RunnerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"RUNNER_CONCURRENCY" envDefault:"2"`

	// TaskLease is the duration to lease an archive task. Workers extend the
	// lease by heartbeat while a task runs.
	TaskLease time.Duration `env:"RUNNER_TASK_LEASE" envDefault:"30s"`

	// TaskTimeout is the wall-clock ceiling for one task. Tasks over the
	// ceiling keep their completed pair summaries and gain a timeout error.
	TaskTimeout time.Duration `env:"RUNNER_TASK_TIMEOUT" envDefault:"30m"`

	// PollInterval is the fallback reserve interval when no notifications
	// arrive. Requeued tasks only surface through a reserve attempt.
	PollInterval time.Duration `env:"RUNNER_POLL_INTERVAL" envDefault:"30s"`

	// MaxAttempts bounds how often a task is requeued after lease expiry
	// before it is failed outright.
	MaxAttempts int `env:"RUNNER_MAX_ATTEMPTS" envDefault:"3"`

	// DedupeInflight rejects submissions whose spec fingerprint matches a
	// task that is already pending or running.
	DedupeInflight bool `env:"RUNNER_DEDUPE_INFLIGHT" envDefault:"false"`
}

// Sanitize applies guardrails to runner configuration values.
func (r *RunnerConfig) Sanitize() {
	if r.Concurrency < 1 {
		r.Concurrency = 1
	}
	if r.TaskLease < 5*time.Second {
		r.TaskLease = 5 * time.Second
	}
	if r.TaskTimeout < time.Minute {
		r.TaskTimeout = time.Minute
	}
	if r.PollInterval < time.Second {
		r.PollInterval = time.Second
	}
	if r.MaxAttempts < 1 {
		r.MaxAttempts = 1
	}
}

// ReaperConfig contains task reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// RunningMaxAge is how long a running task's lease may stay expired
	// before the task is failed. This catches tasks abandoned by runners
	// that are out of attempts or gone for good.
	RunningMaxAge time.Duration `env:"REAPER_RUNNING_MAX_AGE" envDefault:"1h"`

	// SuccessMaxAge is the maximum age for successful tasks before deletion.
	SuccessMaxAge time.Duration `env:"REAPER_SUCCESS_MAX_AGE" envDefault:"168h"` // 7 days

	// PartialMaxAge is the maximum age for partially failed tasks before deletion.
	PartialMaxAge time.Duration `env:"REAPER_PARTIAL_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed tasks before deletion.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"168h"` // 7 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.RunningMaxAge < 5*time.Minute {
		r.RunningMaxAge = 5 * time.Minute
	}
	if r.SuccessMaxAge < 1*time.Hour {
		r.SuccessMaxAge = 1 * time.Hour
	}
	if r.PartialMaxAge < 1*time.Hour {
		r.PartialMaxAge = 1 * time.Hour
	}
	if r.FailedMaxAge < 1*time.Hour {
		r.FailedMaxAge = 1 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
