package jobs

import (
	"context"
	"log"
	"time"

	"mosaic/internal/services"
)

// TaskReaperJob fails analysis tasks stuck in processing, usually left
// behind by a crash or deploy mid-pipeline. Failed tasks are terminal;
// users retry by resubmitting the upload.
type TaskReaperJob struct {
	tasks    *services.TaskStore
	interval time.Duration
	maxAge   time.Duration
	lastRun  time.Time
}

// NewTaskReaperJob creates a reaper that runs every interval and fails
// tasks processing for longer than maxAge
func NewTaskReaperJob(tasks *services.TaskStore, interval, maxAge time.Duration) *TaskReaperJob {
	return &TaskReaperJob{
		tasks:    tasks,
		interval: interval,
		maxAge:   maxAge,
	}
}

// Run reaps stale tasks
func (j *TaskReaperJob) Run(ctx context.Context) error {
	j.lastRun = time.Now()

	cutoff := time.Now().Add(-j.maxAge)
	reaped, err := j.tasks.ReapStale(ctx, cutoff)
	if err != nil {
		log.Printf("❌ [TASK-REAPER] Reap failed: %v", err)
		return err
	}
	if reaped > 0 {
		log.Printf("🧹 [TASK-REAPER] Failed %d stale tasks (started before %s)",
			reaped, cutoff.Format(time.RFC3339))
	}
	return nil
}

// GetNextRunTime returns when this job should next execute
func (j *TaskReaperJob) GetNextRunTime() time.Time {
	if j.lastRun.IsZero() {
		// First run shortly after startup to clear crash leftovers
		return time.Now().Add(1 * time.Minute)
	}
	return j.lastRun.Add(j.interval)
}
