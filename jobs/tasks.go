package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReservationSweep cancels orders that sat reserved past the TTL.
	TaskReservationSweep = "reservation:sweep"
)

// NewReservationSweepTask constructs the sweep task. The task carries no
// payload; the sweep always works from the current database state.
func NewReservationSweepTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskReservationSweep, nil), nil
}
