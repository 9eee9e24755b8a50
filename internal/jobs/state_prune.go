package jobs

import (
	"context"
	"log"
	"time"
)

type statePruner interface {
	PruneIdle(maxAge time.Duration) int
}

// StatePruneJob drops per-caller feature state that has sat idle longer than
// maxAge. Submissions still waiting on the model are never pruned.
type StatePruneJob struct {
	controllers statePruner
	interval    time.Duration
	maxAge      time.Duration
}

// NewStatePruneJob creates a new state prune job
func NewStatePruneJob(controllers statePruner, interval, maxAge time.Duration) *StatePruneJob {
	return &StatePruneJob{
		controllers: controllers,
		interval:    interval,
		maxAge:      maxAge,
	}
}

// Run prunes idle state
func (j *StatePruneJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if pruned := j.controllers.PruneIdle(j.maxAge); pruned > 0 {
		log.Printf("[STATE-PRUNE] Dropped %d idle feature states", pruned)
	}
	return nil
}

// Interval returns how often the job runs
func (j *StatePruneJob) Interval() time.Duration {
	return j.interval
}
