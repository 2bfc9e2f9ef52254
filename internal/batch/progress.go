package batch

import (
	"math"
	"time"
)

// ComputeProgress derives the overall percentage, ETA and speed from the
// counters in p. It never modifies the counters.
func ComputeProgress(p BatchJobProgress, now time.Time) BatchJobProgress {
	out := p
	out.EstimatedTimeRemaining = nil
	out.ProcessingSpeed = nil

	if p.TotalFiles <= 0 {
		out.OverallProgress = 0
		return out
	}

	total := float64(p.TotalFiles)
	done := float64(p.CompletedFiles + p.FailedFiles)
	current := float64(clampPercent(p.CurrentFileProgress))
	overall := math.Round((done/total + current/100/total) * 100)
	out.OverallProgress = clampPercent(int(overall))

	if p.StartTime == nil || p.CompletedFiles <= 0 {
		return out
	}

	elapsed := now.Sub(*p.StartTime)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := p.TotalFiles - p.CompletedFiles - p.FailedFiles
	if remaining < 0 {
		remaining = 0
	}
	avg := elapsed / time.Duration(p.CompletedFiles)
	eta := avg * time.Duration(remaining)
	out.EstimatedTimeRemaining = &eta

	if secs := elapsed.Seconds(); secs > 0 {
		speed := float64(p.CompletedFiles) / secs
		out.ProcessingSpeed = &speed
	}
	return out
}

// UpdateProgress recounts the job's files and recomputes derived progress.
// currentFileProgress is the percentage of the file in flight, 0 if none.
func UpdateProgress(job *BatchJob, currentFileProgress int, now time.Time) {
	job.Progress.TotalFiles = len(job.Files)
	job.Progress.CompletedFiles = CountFiles(job, FileCompleted)
	job.Progress.FailedFiles = CountFiles(job, FileFailed)
	job.Progress.CurrentFileProgress = clampPercent(currentFileProgress)
	job.Progress = ComputeProgress(job.Progress, now)
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
