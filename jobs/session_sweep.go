package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/br7tech/billdesk/internal/jobs"
)

// SessionSweeper clears stale login tokens.
type SessionSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// SessionSweepJob frees accounts whose holder walked away, so a new login is
// not refused by a session nobody is using.
type SessionSweepJob struct {
	Sweeper SessionSweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSessionSweepJob initialises the sweep handler.
func NewSessionSweepJob(sweeper SessionSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionSweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics}
}

// Handle runs one sweep.
func (j *SessionSweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sweeper == nil {
		return errors.New("session sweep: handler not configured")
	}
	var payload SweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskSessionSweep)
	defer func() {
		err = tracker.End(err)
	}()

	cleared, err := j.Sweeper.SweepExpired(ctx)
	if err != nil {
		j.Logger.Error("session sweep failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddCleared(TaskSessionSweep, cleared)
	if cleared > 0 {
		j.Logger.Info("stale sessions cleared", slog.Int64("count", cleared))
	}
	return nil
}
