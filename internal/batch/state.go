package batch

import (
	"fmt"
	"time"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobPending:    {JobQueued, JobProcessing, JobCancelled},
	JobQueued:     {JobProcessing, JobCancelled},
	JobProcessing: {JobCompleted, JobFailed, JobCancelled, JobPaused, JobQueued},
	JobPaused:     {JobQueued, JobCancelled},
	JobFailed:     {JobQueued, JobCancelled},
	JobCompleted:  {JobQueued},
	JobCancelled:  {JobQueued},
}

// CanTransition reports whether a job may move from one status to another.
// Terminal states only leave through an explicit retry (back to queued), and a
// failed job may still be cancelled.
func CanTransition(from, to JobStatus) bool {
	for _, s := range jobTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves job to status, stamping StartedAt on the first entry into
// processing and CompletedAt on the first entry into a terminal state.
func Transition(job *BatchJob, to JobStatus, now time.Time) error {
	if job.Status == to {
		return nil
	}
	if !CanTransition(job.Status, to) {
		return fmt.Errorf("job %s: illegal transition %s -> %s", job.ID, job.Status, to)
	}
	job.Status = to
	if to == JobProcessing && job.StartedAt == nil {
		t := now
		job.StartedAt = &t
	}
	if to.Terminal() && job.CompletedAt == nil {
		t := now
		job.CompletedAt = &t
	}
	return nil
}
