package tasks

import (
	"github.com/hibiken/asynq"
)

// Task types for the settlement sweeps.
const (
	TypeAuthorizationSweep = "payments:authorization_sweep"
	TypeCaptureSweep       = "payments:capture_sweep"
	TypeReversalSweep      = "payments:reversal_sweep"
)

// NewAuthorizationSweepTask enqueues one pass of authorization scheduling.
func NewAuthorizationSweepTask() *asynq.Task {
	return asynq.NewTask(TypeAuthorizationSweep, nil)
}

// NewCaptureSweepTask enqueues one pass of lesson-completion capture.
func NewCaptureSweepTask() *asynq.Task {
	return asynq.NewTask(TypeCaptureSweep, nil)
}

// NewReversalSweepTask enqueues one pass of failed-reversal retries.
func NewReversalSweepTask() *asynq.Task {
	return asynq.NewTask(TypeReversalSweep, nil)
}
