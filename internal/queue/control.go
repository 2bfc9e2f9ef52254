package queue

import (
	"docbatch/internal/batch"
)

func (q *Queue) ChangePriority(id string, priority batch.JobPriority) bool {
	if !priority.Valid() {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return false
	}
	job.Priority = priority
	q.reindex(id)
	return true
}

// PauseJob stops a processing job from being handed out again and aborts its
// dispatch. The executor stops at its next between-file check.
func (q *Queue) PauseJob(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.Status != batch.JobProcessing {
		return false
	}
	if err := batch.Transition(job, batch.JobPaused, q.now()); err != nil {
		return false
	}
	q.abort(id)
	q.reindex(id)
	return true
}

func (q *Queue) ResumeJob(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.Status != batch.JobPaused {
		return false
	}
	if err := batch.Transition(job, batch.JobQueued, q.now()); err != nil {
		return false
	}
	q.reindex(id)
	return true
}

// CancelJob cancels every pending or queued file and the job itself. Files
// already processing, completed or failed are left alone.
func (q *Queue) CancelJob(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.Status == batch.JobCompleted || job.Status == batch.JobCancelled {
		return false
	}
	now := q.now()
	if err := batch.Transition(job, batch.JobCancelled, now); err != nil {
		return false
	}
	for _, f := range job.Files {
		if f.Status.Runnable() {
			f.Status = batch.FileCancelled
		}
	}
	job.Progress = batch.ComputeProgress(job.Progress, now)
	q.abort(id)
	q.reindex(id)
	return true
}

// RetryFailedFiles resets failed files that still have retries left and
// re-queues the job. It reports false, changing nothing, when no file
// qualifies or the job is running.
func (q *Queue) RetryFailedFiles(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.Status == batch.JobProcessing {
		return false
	}
	if job.Status != batch.JobQueued && !batch.CanTransition(job.Status, batch.JobQueued) {
		return false
	}

	var retry []*batch.BatchFile
	for _, f := range job.Files {
		if f.Status == batch.FileFailed && f.RetryCount < job.Options.MaxRetries {
			retry = append(retry, f)
		}
	}
	if len(retry) == 0 {
		return false
	}

	for _, f := range retry {
		f.Status = batch.FilePending
		f.Error = ""
		f.Progress = 0
		f.RetryCount++
	}
	job.Progress.FailedFiles -= len(retry)
	if job.Progress.FailedFiles < 0 {
		job.Progress.FailedFiles = 0
	}
	now := q.now()
	job.Progress = batch.ComputeProgress(job.Progress, now)
	job.Error = ""
	_ = batch.Transition(job, batch.JobQueued, now)
	q.reindex(id)
	return true
}
