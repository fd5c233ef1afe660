package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStatsWarmup precomputes the monthly stats of every active user.
	TaskStatsWarmup = "stats:warmup"
)

// StatsWarmupPayload selects the year to warm. A zero year means the current
// year in the stats location; a nil RunID is assigned when the task runs.
type StatsWarmupPayload struct {
	Year  int       `json:"year,omitempty"`
	RunID uuid.UUID `json:"run_id"`
}

// NewStatsWarmupTask constructs an Asynq task for the warm-up job.
func NewStatsWarmupTask(year int, runID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(StatsWarmupPayload{Year: year, RunID: runID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStatsWarmup, data, asynq.Queue(QueueDefault), asynq.Timeout(15*time.Minute)), nil
}
