// Package repository holds the row layout shared by the SQL state stores.
// Each job is one row; its position in the priority order is a column, and
// jobs outside the order carry position -1.
package repository

import (
	"encoding/json"
	"fmt"
	"sort"

	"docbatch/internal/batch"
	"docbatch/internal/queue"
)

// Table is the SQL table every state store writes to.
const Table = "batch_jobs"

// Unordered marks a job that is not part of the persisted priority order.
const Unordered = -1

type Row struct {
	ID       string
	Position int
	Status   string
	Priority string
	Data     []byte
}

// Rows flattens state into one row per job.
func Rows(state queue.State) ([]Row, error) {
	position := make(map[string]int, len(state.PriorityOrder))
	for i, id := range state.PriorityOrder {
		if _, seen := position[id]; !seen {
			position[id] = i
		}
	}

	rows := make([]Row, 0, len(state.Jobs))
	for _, job := range state.Jobs {
		if job == nil || job.ID == "" {
			continue
		}
		data, err := json.Marshal(job)
		if err != nil {
			return nil, fmt.Errorf("encode job %s: %w", job.ID, err)
		}
		pos, ok := position[job.ID]
		if !ok {
			pos = Unordered
		}
		rows = append(rows, Row{
			ID:       job.ID,
			Position: pos,
			Status:   string(job.Status),
			Priority: string(job.Priority),
			Data:     data,
		})
	}
	return rows, nil
}

// StateFromRows rebuilds state from rows in any order.
func StateFromRows(rows []Row) (queue.State, error) {
	sorted := append([]Row(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Position, sorted[j].Position
		if (a == Unordered) != (b == Unordered) {
			return b == Unordered
		}
		return a < b
	})

	state := queue.State{Jobs: make([]*batch.BatchJob, 0, len(sorted)), PriorityOrder: []string{}}
	for _, row := range sorted {
		var job batch.BatchJob
		if err := json.Unmarshal(row.Data, &job); err != nil {
			return queue.State{}, fmt.Errorf("decode job %s: %w", row.ID, err)
		}
		state.Jobs = append(state.Jobs, &job)
		if row.Position != Unordered {
			state.PriorityOrder = append(state.PriorityOrder, row.ID)
		}
	}
	return state, nil
}
