package batch

import (
	"errors"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// NewFile describes an input document. Files start pending.
func NewFile(path string, size int64) *BatchFile {
	return &BatchFile{
		ID:     uuid.NewString(),
		Name:   filepath.Base(path),
		Path:   path,
		Size:   size,
		Status: FilePending,
	}
}

// NewJob builds a pending job over files. A zero MaxRetries is replaced by
// DefaultMaxRetries and an empty priority by normal.
func NewJob(t JobType, name string, files []*BatchFile, opts JobOptions, priority JobPriority, now time.Time) *BatchJob {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if priority == "" {
		priority = PriorityNormal
	}
	if name == "" {
		name = string(t) + " " + now.Format("2006-01-02 15:04:05")
	}
	return &BatchJob{
		ID:        uuid.NewString(),
		Type:      t,
		Name:      name,
		Files:     files,
		Options:   opts,
		Status:    JobPending,
		Priority:  priority,
		Progress:  BatchJobProgress{TotalFiles: len(files)},
		CreatedAt: now,
	}
}

// IsJobComplete reports whether every file reached a terminal state.
func IsJobComplete(job *BatchJob) bool {
	for _, f := range job.Files {
		if !f.Status.Terminal() {
			return false
		}
	}
	return true
}

// HasFailures reports whether any file failed.
func HasFailures(job *BatchJob) bool {
	return CountFiles(job, FileFailed) > 0
}

func CountFiles(job *BatchJob, status FileStatus) int {
	n := 0
	for _, f := range job.Files {
		if f.Status == status {
			n++
		}
	}
	return n
}

// PendingFiles returns the files an executor would process, in order.
func PendingFiles(job *BatchJob) []*BatchFile {
	var out []*BatchFile
	for _, f := range job.Files {
		if f.Status.Runnable() {
			out = append(out, f)
		}
	}
	return out
}

// FindFile returns the file with id, or nil.
func FindFile(job *BatchJob, id string) *BatchFile {
	for _, f := range job.Files {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// Outcome decides the final status of a job whose files are all terminal.
func Outcome(job *BatchJob) JobStatus {
	if HasFailures(job) {
		return JobFailed
	}
	return JobCompleted
}

// Clone returns a deep copy of job.
func Clone(job *BatchJob) *BatchJob {
	if job == nil {
		return nil
	}
	c := *job
	c.Files = make([]*BatchFile, len(job.Files))
	for i, f := range job.Files {
		fc := *f
		if f.PageCount != nil {
			n := *f.PageCount
			fc.PageCount = &n
		}
		c.Files[i] = &fc
	}
	c.Options = job.Options.Clone()
	c.StartedAt = copyTime(job.StartedAt)
	c.CompletedAt = copyTime(job.CompletedAt)
	c.Progress.StartTime = copyTime(job.Progress.StartTime)
	if job.Progress.EstimatedTimeRemaining != nil {
		d := *job.Progress.EstimatedTimeRemaining
		c.Progress.EstimatedTimeRemaining = &d
	}
	if job.Progress.ProcessingSpeed != nil {
		s := *job.Progress.ProcessingSpeed
		c.Progress.ProcessingSpeed = &s
	}
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ErrTemplateNotFound is returned by template stores for an unknown id or name.
var ErrTemplateNotFound = errors.New("template not found")

// Template is a saved job shape that new jobs can be stamped from.
type Template struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Type     JobType     `json:"type"`
	Options  JobOptions  `json:"options"`
	Priority JobPriority `json:"priority"`
}

func NewTemplate(name string, opts JobOptions, priority JobPriority) *Template {
	t := &Template{ID: uuid.NewString(), Name: name, Options: opts, Priority: priority}
	if opts.Operation != nil {
		t.Type = opts.Operation.Type()
	}
	return t
}

// NewJobFromTemplate creates a pending job carrying the template's options.
func NewJobFromTemplate(tpl *Template, name string, files []*BatchFile, now time.Time) *BatchJob {
	job := NewJob(tpl.Type, name, files, tpl.Options.Clone(), tpl.Priority, now)
	job.TemplateID = tpl.ID
	return job
}
