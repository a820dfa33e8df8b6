package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionSweep clears login tokens that expired or went idle.
	TaskSessionSweep = "auth:session_sweep"
	// TaskIdempotencyCleanup drops submission keys past their retention.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// SweepPayload carries scheduling metadata for the session sweep.
type SweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// CleanupPayload sets how long idempotency keys are kept.
type CleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// DefaultKeyRetention is how long a submitted draft key blocks resubmission.
const DefaultKeyRetention = 7 * 24 * time.Hour

// NewSessionSweepTask constructs the sweep task.
func NewSessionSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionSweep, body, asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	if retention <= 0 {
		retention = DefaultKeyRetention
	}
	body, err := json.Marshal(CleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
