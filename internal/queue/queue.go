// Package queue holds batch jobs and hands them out in priority order.
//
// Ordering is by priority weight (critical first), then by creation time
// (oldest first), then by admission order. Runnable jobs live in a binary heap
// so admission, removal and priority changes cost O(log n). Every method takes
// the queue lock, so several workers may pull from one Queue.
package queue

import (
	"context"
	"sync"
	"time"

	"docbatch/internal/batch"
)

type Queue struct {
	mu     sync.Mutex
	jobs   map[string]*batch.BatchJob
	keys   map[string]*entry
	ready  readyHeap
	seq    uint64
	aborts map[string]context.CancelFunc
	// running holds ids handed out by StartJob; only FinishJob clears them.
	running map[string]bool
	now     func() time.Time
}

type Option func(*Queue)

// WithClock overrides time.Now for timestamps and ETA.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func New(opts ...Option) *Queue {
	q := &Queue{
		jobs:    make(map[string]*batch.BatchJob),
		keys:    make(map[string]*entry),
		aborts:  make(map[string]context.CancelFunc),
		running: make(map[string]bool),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// AddJob admits a copy of job with status queued. Re-adding an id replaces the
// stored job but keeps its place among equal keys.
func (q *Queue) AddJob(job *batch.BatchJob) {
	if job == nil || job.ID == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	stored := batch.Clone(job)
	stored.Status = batch.JobQueued
	batch.UpdateProgress(stored, 0, q.now())
	q.jobs[stored.ID] = stored
	q.reindex(stored.ID)
}

// RemoveJob deletes the job and reports whether it existed. A running
// dispatch of the job is aborted.
func (q *Queue) RemoveJob(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.remove(id)
}

func (q *Queue) remove(id string) bool {
	if _, ok := q.jobs[id]; !ok {
		return false
	}
	q.abort(id)
	if e := q.keys[id]; e != nil {
		q.ready.place(e, false)
	}
	delete(q.keys, id)
	delete(q.jobs, id)
	return true
}

// NextJob returns a copy of the first runnable job in priority order, or nil.
// It does not change the job's status; dispatch goes through StartJob.
func (q *Queue) NextJob() *batch.BatchJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		top := q.ready.peek()
		if top == nil {
			return nil
		}
		job := q.jobs[top.id]
		if job != nil && job.Status.Runnable() && !q.running[top.id] {
			return batch.Clone(job)
		}
		q.ready.place(top, false)
	}
}

func (q *Queue) GetJob(id string) (*batch.BatchJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, false
	}
	return batch.Clone(job), true
}

// Jobs returns copies of every job in priority order.
func (q *Queue) Jobs() []*batch.BatchJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := sortedIDs(q.keys)
	out := make([]*batch.BatchJob, 0, len(ids))
	for _, id := range ids {
		out = append(out, batch.Clone(q.jobs[id]))
	}
	return out
}

func (q *Queue) JobsByStatus(status batch.JobStatus) []*batch.BatchJob {
	var out []*batch.BatchJob
	for _, job := range q.Jobs() {
		if job.Status == status {
			out = append(out, job)
		}
	}
	return out
}

// PriorityOrder returns every job id in dispatch order.
func (q *Queue) PriorityOrder() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return sortedIDs(q.keys)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *Queue) Stats() batch.Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := batch.Stats{ByStatus: make(map[batch.JobStatus]int)}
	for _, job := range q.jobs {
		stats.Total++
		stats.ByStatus[job.Status]++
		stats.TotalFiles += len(job.Files)
		stats.Completed += batch.CountFiles(job, batch.FileCompleted)
		stats.Failed += batch.CountFiles(job, batch.FileFailed)
	}
	return stats
}

// ClearCompletedJobs removes every completed job and returns how many.
func (q *Queue) ClearCompletedJobs() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for id, job := range q.jobs {
		if job.Status == batch.JobCompleted && q.remove(id) {
			n++
		}
	}
	return n
}

// ClearAllJobs removes every job, aborting running dispatches.
func (q *Queue) ClearAllJobs() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for id := range q.jobs {
		if q.remove(id) {
			n++
		}
	}
	q.ready = nil
	return n
}

// reindex refreshes the ordering key of id after a mutation. A job with a
// live dispatch stays out of the ready heap until FinishJob.
func (q *Queue) reindex(id string) {
	job := q.jobs[id]
	e, ok := q.keys[id]
	if !ok {
		q.seq++
		e = &entry{id: id, seq: q.seq, pos: -1}
		q.keys[id] = e
	}
	e.weight = job.Priority.Weight()
	e.createdAt = job.CreatedAt
	q.ready.place(e, job.Status.Runnable() && !q.running[id])
}

func (q *Queue) abort(id string) {
	if cancel, ok := q.aborts[id]; ok {
		cancel()
		delete(q.aborts, id)
	}
}
