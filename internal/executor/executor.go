// Package executor runs one job's operation over its files.
//
// Executors work file by file in array order, skipping files that are not
// pending or queued. Cancellation of ctx is observed between files: the loop
// stops and the remaining files are left untouched. A failing file is
// recorded and reported as an event, and the loop moves on. Only job-level
// preconditions (bad options, nothing to do) return an error.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"docbatch/internal/batch"
	"docbatch/internal/ocr"
	"docbatch/internal/pdf"
)

var (
	ErrNoPendingFiles = errors.New("no pending files")
	ErrInvalidOptions = errors.New("invalid options")
	ErrTypeMismatch   = errors.New("options do not match job type")
	ErrUnknownType    = errors.New("no executor for job type")
	// ErrUnsupportedInput marks a per-file failure on a document format the
	// operation cannot handle.
	ErrUnsupportedInput = errors.New("unsupported input")
)

// FileAccess is the storage collaborator. Paths are opaque to executors.
type FileAccess interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	// OutputPath derives an output location from an input path by inserting
	// suffix before the extension; ext, when set, replaces the extension.
	OutputPath(input, suffix, ext string) string
}

// Env carries the collaborators of one execution.
type Env struct {
	Files      FileAccess
	Documents  pdf.Engine
	Recognizer ocr.Recognizer
	Sink       batch.Sink
	Now        func() time.Time
	Log        logrus.FieldLogger
}

func (e Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e Env) emit(ev batch.Event) {
	ev.At = e.now()
	if e.Sink != nil {
		e.Sink.Emit(ev)
	}
}

func (e Env) log() logrus.FieldLogger {
	if e.Log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		return l
	}
	return e.Log
}

// Executor processes the pending files of a job. The job passed in is the
// executor's own copy: it updates file statuses on it and reports every
// change through env.Sink.
type Executor interface {
	Type() batch.JobType
	Process(ctx context.Context, job *batch.BatchJob, env Env) ([]batch.OutputFileInfo, error)
}

type Registry struct {
	executors map[batch.JobType]Executor
}

func NewRegistry(executors ...Executor) *Registry {
	r := &Registry{executors: make(map[batch.JobType]Executor)}
	for _, e := range executors {
		r.Register(e)
	}
	return r
}

// Default registers every built-in operation.
func Default() *Registry {
	return NewRegistry(Compress{}, Merge{}, Split{}, Watermark{}, OCR{})
}

func (r *Registry) Register(e Executor) {
	r.executors[e.Type()] = e
}

func (r *Registry) Lookup(t batch.JobType) (Executor, bool) {
	e, ok := r.executors[t]
	return e, ok
}

// Process dispatches job to the executor registered for its type.
func (r *Registry) Process(ctx context.Context, job *batch.BatchJob, env Env) ([]batch.OutputFileInfo, error) {
	e, ok := r.Lookup(job.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, job.Type)
	}
	return e.Process(ctx, job, env)
}

// optionsFor extracts the operation options of job as T.
func optionsFor[T batch.Operation](job *batch.BatchJob, want batch.JobType) (T, error) {
	var zero T
	if job.Type != want {
		return zero, fmt.Errorf("%w: %s executor got a %s job", ErrTypeMismatch, want, job.Type)
	}
	op, ok := job.Options.Operation.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s job carries %T", ErrTypeMismatch, job.Type, job.Options.Operation)
	}
	return op, nil
}

func invalid(res ValidationResult) error {
	return fmt.Errorf("%w: %s", ErrInvalidOptions, res.Error())
}
