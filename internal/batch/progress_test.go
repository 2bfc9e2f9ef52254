package batch

import (
	"testing"
	"time"
)

func TestComputeProgressFormula(t *testing.T) {
	cases := []struct {
		name                     string
		total, done, failed, cur int
		want                     int
	}{
		{"empty", 0, 0, 0, 0, 0},
		{"nothing yet", 4, 0, 0, 0, 0},
		{"half of first", 4, 0, 0, 50, 13},
		{"one done", 4, 1, 0, 0, 25},
		{"failed counts", 4, 1, 1, 0, 50},
		{"all done", 3, 2, 1, 0, 100},
		{"clamped", 1, 1, 0, 100, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := ComputeProgress(BatchJobProgress{
				TotalFiles:          tc.total,
				CompletedFiles:      tc.done,
				FailedFiles:         tc.failed,
				CurrentFileProgress: tc.cur,
			}, time.Now())
			if p.OverallProgress != tc.want {
				t.Fatalf("overall = %d, want %d", p.OverallProgress, tc.want)
			}
		})
	}
}

func TestComputeProgressETA(t *testing.T) {
	start := time.Unix(1000, 0)
	now := start.Add(10 * time.Second)

	p := ComputeProgress(BatchJobProgress{TotalFiles: 4, StartTime: &start}, now)
	if p.EstimatedTimeRemaining != nil || p.ProcessingSpeed != nil {
		t.Fatalf("ETA before first completed file should be unset: %+v", p)
	}

	p = ComputeProgress(BatchJobProgress{TotalFiles: 4, CompletedFiles: 2, FailedFiles: 1}, now)
	if p.EstimatedTimeRemaining != nil {
		t.Fatalf("ETA without start time should be unset")
	}

	p = ComputeProgress(BatchJobProgress{TotalFiles: 4, CompletedFiles: 2, FailedFiles: 1, StartTime: &start}, now)
	if p.EstimatedTimeRemaining == nil || *p.EstimatedTimeRemaining != 5*time.Second {
		t.Fatalf("ETA = %v, want 5s", p.EstimatedTimeRemaining)
	}
	if p.ProcessingSpeed == nil || *p.ProcessingSpeed != 0.2 {
		t.Fatalf("speed = %v, want 0.2", p.ProcessingSpeed)
	}
}

func TestOverallProgressMonotonic(t *testing.T) {
	type step struct{ done, failed, cur int }
	steps := []step{
		{0, 0, 0}, {0, 0, 10}, {0, 0, 90}, {1, 0, 0}, {1, 0, 50},
		{1, 1, 0}, {1, 1, 99}, {2, 1, 0}, {2, 1, 40}, {3, 1, 0},
	}
	last := -1
	for i, s := range steps {
		p := ComputeProgress(BatchJobProgress{TotalFiles: 4, CompletedFiles: s.done, FailedFiles: s.failed, CurrentFileProgress: s.cur}, time.Now())
		if p.OverallProgress < last {
			t.Fatalf("step %d: overall went from %d to %d", i, last, p.OverallProgress)
		}
		last = p.OverallProgress
	}
	if last != 100 {
		t.Fatalf("final overall = %d, want 100", last)
	}
}

func TestUpdateProgressRecountsFiles(t *testing.T) {
	job := jobWithStatuses(FileCompleted, FileFailed, FilePending, FileCancelled)
	UpdateProgress(job, 150, time.Now())
	p := job.Progress
	if p.TotalFiles != 4 || p.CompletedFiles != 1 || p.FailedFiles != 1 || p.CurrentFileProgress != 100 {
		t.Fatalf("unexpected counters: %+v", p)
	}
	if p.OverallProgress != 75 {
		t.Fatalf("overall = %d, want 75", p.OverallProgress)
	}
}
