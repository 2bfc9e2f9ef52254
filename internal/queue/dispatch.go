package queue

import (
	"context"

	"docbatch/internal/batch"
)

// StartJob moves a runnable job to processing and returns a copy for the
// executor to work on. The copy's file entries belong to the executor; the
// queue's own job only changes through Apply and FinishJob. A job is handed
// out once until FinishJob settles that dispatch, even if it was paused and
// resumed in between.
func (q *Queue) StartJob(id string) (*batch.BatchJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || !job.Status.Runnable() || q.running[id] {
		return nil, false
	}
	now := q.now()
	if err := batch.Transition(job, batch.JobProcessing, now); err != nil {
		return nil, false
	}
	if job.Progress.StartTime == nil {
		t := now
		job.Progress.StartTime = &t
	}
	job.Error = ""
	q.running[id] = true
	q.reindex(id)
	return batch.Clone(job), true
}

// BindAbort registers the cancel func of a running dispatch. PauseJob,
// CancelJob and RemoveJob call it. A job paused, cancelled or removed before
// the bind is aborted at once.
func (q *Queue) BindAbort(id string, cancel context.CancelFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok || !q.running[id] || job.Status != batch.JobProcessing {
		cancel()
		return
	}
	q.aborts[id] = cancel
}

func (q *Queue) UnbindAbort(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.aborts, id)
}

// Apply records an executor event on the stored job. Events for unknown jobs
// or files, and events that would move a file backwards, are ignored.
func (q *Queue) Apply(ev batch.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[ev.JobID]
	if !ok {
		return
	}
	f := batch.FindFile(job, ev.FileID)
	if f == nil {
		return
	}
	now := q.now()

	switch ev.Kind {
	case batch.EventFileStarted:
		if !f.Status.Runnable() {
			return
		}
		f.Status = batch.FileProcessing
		f.Progress = 0
		batch.UpdateProgress(job, 0, now)
	case batch.EventFileProgress:
		if f.Status != batch.FileProcessing {
			return
		}
		if ev.Percent > f.Progress {
			f.Progress = min(ev.Percent, 100)
		}
		batch.UpdateProgress(job, f.Progress, now)
	case batch.EventFileCompleted:
		if f.Status != batch.FileProcessing && !f.Status.Runnable() {
			return
		}
		f.Status = batch.FileCompleted
		f.Progress = 100
		f.Error = ""
		if n := ev.Pages; n > 0 && f.PageCount == nil {
			f.PageCount = &n
		}
		batch.UpdateProgress(job, 0, now)
	case batch.EventFileFailed:
		if f.Status != batch.FileProcessing && !f.Status.Runnable() {
			return
		}
		f.Status = batch.FileFailed
		f.Error = ev.Err
		batch.UpdateProgress(job, 0, now)
	}
}

// FinishJob settles a job after its executor returned. A job-level error
// fails the job; a job whose files are all terminal completes or fails by
// batch.Outcome; anything else was stopped early and goes back to queued.
// Jobs paused or cancelled during the run keep that status; a file they
// interrupted goes back to pending, or to cancelled for a cancelled job.
//
// Only a dispatch handed out by StartJob can be finished; other calls report
// false and change nothing.
func (q *Queue) FinishJob(id string, runErr error) (batch.JobStatus, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running[id] {
		if job, ok := q.jobs[id]; ok {
			return job.Status, false
		}
		return "", false
	}
	delete(q.running, id)
	delete(q.aborts, id)
	job, ok := q.jobs[id]
	if !ok {
		return "", false
	}
	if job.Status != batch.JobProcessing {
		settle := batch.FilePending
		if job.Status == batch.JobCancelled {
			settle = batch.FileCancelled
		}
		for _, f := range job.Files {
			if f.Status == batch.FileProcessing {
				f.Status = settle
				f.Progress = 0
			}
		}
		batch.UpdateProgress(job, 0, q.now())
		q.reindex(id)
		return job.Status, true
	}

	now := q.now()
	next := batch.JobQueued
	switch {
	case runErr != nil:
		job.Error = runErr.Error()
		next = batch.JobFailed
	case batch.IsJobComplete(job):
		next = batch.Outcome(job)
		if next == batch.JobFailed {
			job.Error = "one or more files failed"
		}
	}
	for _, f := range job.Files {
		if f.Status == batch.FileProcessing {
			f.Status = batch.FilePending
			f.Progress = 0
		}
	}
	_ = batch.Transition(job, next, now)
	batch.UpdateProgress(job, 0, now)
	q.reindex(id)
	return job.Status, true
}
