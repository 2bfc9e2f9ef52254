package batch

import "time"

// JobType names the operation a job runs.
type JobType string

const (
	TypeCompress  JobType = "compress"
	TypeMerge     JobType = "merge"
	TypeSplit     JobType = "split"
	TypeWatermark JobType = "watermark"
	TypeOCR       JobType = "ocr"
)

// JobTypes lists every operation in a stable order.
var JobTypes = []JobType{TypeCompress, TypeMerge, TypeSplit, TypeWatermark, TypeOCR}

func (t JobType) Valid() bool {
	switch t {
	case TypeCompress, TypeMerge, TypeSplit, TypeWatermark, TypeOCR:
		return true
	default:
		return false
	}
}

type FileStatus string

const (
	FilePending    FileStatus = "pending"
	FileQueued     FileStatus = "queued"
	FileProcessing FileStatus = "processing"
	FileCompleted  FileStatus = "completed"
	FileFailed     FileStatus = "failed"
	FileCancelled  FileStatus = "cancelled"
)

// Terminal reports whether no further automatic transition happens.
func (s FileStatus) Terminal() bool {
	return s == FileCompleted || s == FileFailed || s == FileCancelled
}

// Runnable reports whether an executor should pick the file up.
func (s FileStatus) Runnable() bool {
	return s == FilePending || s == FileQueued
}

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobPaused     JobStatus = "paused"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

func (s JobStatus) Runnable() bool {
	return s == JobQueued || s == JobPending
}

// JobPriority orders dispatch and nothing else.
type JobPriority string

const (
	PriorityLow      JobPriority = "low"
	PriorityNormal   JobPriority = "normal"
	PriorityHigh     JobPriority = "high"
	PriorityCritical JobPriority = "critical"
)

// Weight maps a priority to its ordinal. Unknown priorities sort as normal.
func (p JobPriority) Weight() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityLow:
		return 1
	default:
		return 2
	}
}

func (p JobPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

type BatchFile struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Path       string     `json:"path"`
	Size       int64      `json:"size"`
	PageCount  *int       `json:"pageCount,omitempty"`
	Status     FileStatus `json:"status"`
	Progress   int        `json:"progress"`
	RetryCount int        `json:"retryCount"`
	Error      string     `json:"error,omitempty"`
}

type BatchJobProgress struct {
	TotalFiles             int            `json:"totalFiles"`
	CompletedFiles         int            `json:"completedFiles"`
	FailedFiles            int            `json:"failedFiles"`
	CurrentFileProgress    int            `json:"currentFileProgress"`
	OverallProgress        int            `json:"overallProgress"`
	EstimatedTimeRemaining *time.Duration `json:"estimatedTimeRemaining,omitempty"`
	ProcessingSpeed        *float64       `json:"processingSpeed,omitempty"`
	StartTime              *time.Time     `json:"startTime,omitempty"`
}

type BatchJob struct {
	ID          string           `json:"id"`
	Type        JobType          `json:"type"`
	Name        string           `json:"name"`
	Files       []*BatchFile     `json:"files"`
	Options     JobOptions       `json:"options"`
	Status      JobStatus        `json:"status"`
	Priority    JobPriority      `json:"priority"`
	Progress    BatchJobProgress `json:"progress"`
	CreatedAt   time.Time        `json:"createdAt"`
	StartedAt   *time.Time       `json:"startedAt,omitempty"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
	Error       string           `json:"error,omitempty"`
	TemplateID  string           `json:"templateId,omitempty"`
}

// OutputFileInfo describes one file written by an executor.
type OutputFileInfo struct {
	FileID          string        `json:"fileId,omitempty"`
	InputPath       string        `json:"inputPath"`
	Sources         []string      `json:"sources,omitempty"`
	OutputPath      string        `json:"outputPath"`
	InputSize       int64         `json:"inputSize"`
	OutputSize      int64         `json:"outputSize"`
	ProcessingTime  time.Duration `json:"processingTime"`
	PageCount       int           `json:"pageCount,omitempty"`
	MetadataRemoved int           `json:"metadataRemoved,omitempty"`
}

// Stats summarises the jobs held by a queue.
type Stats struct {
	Total      int               `json:"total"`
	ByStatus   map[JobStatus]int `json:"byStatus"`
	TotalFiles int               `json:"totalFiles"`
	Completed  int               `json:"completedFiles"`
	Failed     int               `json:"failedFiles"`
}
