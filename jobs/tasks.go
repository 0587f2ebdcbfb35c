// Package jobs runs background work through Asynq: scheduled consolidation
// runs and queue observability.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atlas-ledger/atlas-ledger/internal/consol"
	jobmetrics "github.com/atlas-ledger/atlas-ledger/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskConsolRun executes a consolidation run for one group and period.
	TaskConsolRun = "consol:run"
)

// ConsolRunPayload configures one queued consolidation run.
type ConsolRunPayload struct {
	GroupID            int64  `json:"group_id"`
	Period             string `json:"period"`
	ContinueOnWarnings bool   `json:"continue_on_warnings"`
	ForceRegeneration  bool   `json:"force_regeneration"`
}

// NewConsolRunTask constructs an Asynq task for a consolidation run.
func NewConsolRunTask(payload ConsolRunPayload) (*asynq.Task, error) {
	if payload.GroupID <= 0 {
		return nil, errors.New("jobs: group id required")
	}
	if payload.Period == "" {
		return nil, errors.New("jobs: period required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConsolRun, body, asynq.Queue(QueueDefault)), nil
}

// RunStarter is the slice of the consolidation service the job needs.
type RunStarter interface {
	StartRun(ctx context.Context, groupID int64, period string, opts consol.Options, actorID int64) (consol.Run, error)
}

// ConsolRunJob executes queued consolidation runs.
type ConsolRunJob struct {
	service RunStarter
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewConsolRunJob constructs the job handler.
func NewConsolRunJob(service RunStarter, logger *slog.Logger, metrics *jobmetrics.Metrics) *ConsolRunJob {
	return &ConsolRunJob{service: service, logger: logger, metrics: metrics}
}

// Handle executes one queued consolidation run. A conflicting or locked run
// is terminal for the task: retrying would conflict again.
func (j *ConsolRunJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.service == nil {
		return errors.New("consol run job: dependencies not configured")
	}
	var payload ConsolRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics.Track(TaskConsolRun)
	started := time.Now()
	run, err := j.service.StartRun(ctx, payload.GroupID, payload.Period, consol.Options{
		ContinueOnWarnings: payload.ContinueOnWarnings,
		ForceRegeneration:  payload.ForceRegeneration,
	}, 0)
	err = tracker.End(err)

	logger := j.log().With(
		slog.Int64("group_id", payload.GroupID),
		slog.String("period", payload.Period),
		slog.Duration("elapsed", time.Since(started)))

	switch {
	case err == nil:
		logger.Info("scheduled consolidation run finished",
			slog.String("run_id", run.ID.String()),
			slog.String("status", string(run.Status)))
		return nil
	case errors.Is(err, consol.ErrRunConflict), errors.Is(err, consol.ErrRunLocked):
		logger.Info("scheduled consolidation run skipped", slog.Any("reason", err))
		return asynq.SkipRetry
	case errors.Is(err, consol.ErrValidationFailed):
		logger.Warn("scheduled consolidation run failed validation",
			slog.String("run_id", run.ID.String()))
		return asynq.SkipRetry
	default:
		logger.Error("scheduled consolidation run failed", slog.Any("error", err))
		return err
	}
}

func (j *ConsolRunJob) log() *slog.Logger {
	if j.logger != nil {
		return j.logger
	}
	return slog.Default()
}
