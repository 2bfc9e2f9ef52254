package queue

import (
	"container/heap"
	"sort"
	"time"
)

// entry is the ordering key of one job.
type entry struct {
	id        string
	weight    int
	createdAt time.Time
	seq       uint64
	pos       int // position in readyHeap, -1 when absent
}

func less(a, b *entry) bool {
	if a.weight != b.weight {
		return a.weight > b.weight
	}
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.seq < b.seq
}

// readyHeap is a min-heap of runnable jobs; the root is the next job to run.
type readyHeap []*entry

func (h readyHeap) Len() int           { return len(h) }
func (h readyHeap) Less(i, j int) bool { return less(h[i], h[j]) }

func (h readyHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *readyHeap) Push(x any) {
	e := x.(*entry)
	e.pos = len(*h)
	*h = append(*h, e)
}

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.pos = -1
	*h = old[:n-1]
	return e
}

// place puts e into or out of the heap depending on runnable, fixing its
// position when the key changed.
func (h *readyHeap) place(e *entry, runnable bool) {
	switch {
	case runnable && e.pos >= 0:
		heap.Fix(h, e.pos)
	case runnable:
		heap.Push(h, e)
	case e.pos >= 0:
		heap.Remove(h, e.pos)
	}
}

func (h readyHeap) peek() *entry {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

func sortedIDs(keys map[string]*entry) []string {
	entries := make([]*entry, 0, len(keys))
	for _, e := range keys {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return less(entries[i], entries[j]) })

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids
}
