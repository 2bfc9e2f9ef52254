package queue

import (
	"context"
	"sort"

	"docbatch/internal/batch"
)

// State is the persisted form of a queue.
type State struct {
	Jobs          []*batch.BatchJob `json:"jobs"`
	PriorityOrder []string          `json:"priorityOrder"`
}

// Store persists queue state between runs. Load returns an empty State when
// nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, state State) error
}

// ExportState copies every job, in priority order, with the order itself.
func (q *Queue) ExportState() State {
	q.mu.Lock()
	defer q.mu.Unlock()

	order := sortedIDs(q.keys)
	state := State{
		Jobs:          make([]*batch.BatchJob, 0, len(order)),
		PriorityOrder: order,
	}
	for _, id := range order {
		state.Jobs = append(state.Jobs, batch.Clone(q.jobs[id]))
	}
	return state
}

// ImportState replaces the queue contents with state. Order ids without a
// matching job are dropped. Admission order follows the persisted order, so
// ties resolve as they did when the state was exported; jobs missing from
// the order are admitted after it.
func (q *Queue) ImportState(state State) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id := range q.aborts {
		q.abort(id)
	}
	q.jobs = make(map[string]*batch.BatchJob, len(state.Jobs))
	q.keys = make(map[string]*entry, len(state.Jobs))
	q.ready = nil
	q.seq = 0

	for _, job := range state.Jobs {
		if job == nil || job.ID == "" {
			continue
		}
		q.jobs[job.ID] = batch.Clone(job)
	}

	for _, id := range state.PriorityOrder {
		if _, ok := q.jobs[id]; !ok {
			continue
		}
		if _, seen := q.keys[id]; seen {
			continue
		}
		q.reindex(id)
	}

	var rest []*batch.BatchJob
	for id, job := range q.jobs {
		if _, ok := q.keys[id]; !ok {
			rest = append(rest, job)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		a, b := rest[i], rest[j]
		if a.Priority.Weight() != b.Priority.Weight() {
			return a.Priority.Weight() > b.Priority.Weight()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	for _, job := range rest {
		q.reindex(job.ID)
	}
}

// RecoverInterrupted re-queues jobs that were processing when the state was
// saved. Their in-flight files go back to pending. It returns the ids moved.
func (q *Queue) RecoverInterrupted() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var moved []string
	now := q.now()
	for id, job := range q.jobs {
		if job.Status != batch.JobProcessing {
			continue
		}
		if q.running[id] {
			continue
		}
		for _, f := range job.Files {
			if f.Status == batch.FileProcessing {
				f.Status = batch.FilePending
				f.Progress = 0
			}
		}
		_ = batch.Transition(job, batch.JobQueued, now)
		batch.UpdateProgress(job, 0, now)
		q.reindex(id)
		moved = append(moved, id)
	}
	sort.Strings(moved)
	return moved
}
