package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCodeIntegritySweep re-derives document codes and repairs drift.
	TaskCodeIntegritySweep = "pipeline:code_integrity_sweep"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "pipeline:idempotency_cleanup"
)

// CodeIntegrityPayload scopes a sweep run.
type CodeIntegrityPayload struct {
	RequestedAt time.Time `json:"requested_at"`
	DryRun      bool      `json:"dry_run"`
}

// NewCodeIntegrityTask constructs the sweep task.
func NewCodeIntegrityTask(payload CodeIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCodeIntegritySweep, data), nil
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskIdempotencyCleanup, nil), nil
}
