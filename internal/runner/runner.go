// Package runner drives a queue: a pool of workers pulls jobs in priority
// order, runs the matching executor and settles the job when it returns.
package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"docbatch/internal/batch"
	"docbatch/internal/executor"
	"docbatch/internal/queue"
)

// JobObserver hears about every job a worker settles.
type JobObserver interface {
	JobFinished(job *batch.BatchJob, at time.Time)
}

type ObserverFunc func(job *batch.BatchJob, at time.Time)

func (f ObserverFunc) JobFinished(job *batch.BatchJob, at time.Time) { f(job, at) }

type Options struct {
	Workers int
	// Drain makes Run return once no job is runnable and no worker is busy.
	Drain bool
	// PollInterval is how often an idle runner looks for new jobs.
	PollInterval time.Duration
}

type Runner struct {
	queue     *queue.Queue
	registry  *executor.Registry
	env       executor.Env
	store     queue.Store
	sinks     []batch.Sink
	observers []JobObserver
	opts      Options
	log       logrus.FieldLogger
	now       func() time.Time

	saveMu sync.Mutex
}

type Option func(*Runner)

func WithStore(s queue.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithSink adds a receiver for every file event, after the queue itself.
func WithSink(s batch.Sink) Option {
	return func(r *Runner) { r.sinks = append(r.sinks, s) }
}

func WithObserver(o JobObserver) Option {
	return func(r *Runner) { r.observers = append(r.observers, o) }
}

func WithOptions(o Options) Option {
	return func(r *Runner) { r.opts = o }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Runner) { r.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New builds a runner over q. env supplies the executor collaborators; its
// Sink is replaced per job.
func New(q *queue.Queue, registry *executor.Registry, env executor.Env, opts ...Option) *Runner {
	r := &Runner{
		queue:    q,
		registry: registry,
		env:      env,
		opts:     Options{Workers: 1, PollInterval: 500 * time.Millisecond},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.opts.Workers < 1 {
		r.opts.Workers = 1
	}
	if r.opts.PollInterval <= 0 {
		r.opts.PollInterval = 500 * time.Millisecond
	}
	if r.log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		r.log = l
	}
	if r.env.Log == nil {
		r.env.Log = r.log
	}
	return r
}

// Summary totals one Run.
type Summary struct {
	Jobs       int
	Completed  int
	Failed     int
	Requeued   int
	Stopped    int
	Files      int
	Outputs    int
	BytesSaved int64
}

type result struct {
	jobID   string
	status  batch.JobStatus
	outputs []batch.OutputFileInfo
	files   int
	err     error
}

// Restore loads saved state into the queue and re-queues jobs that were
// interrupted mid-run. It returns the ids it re-queued.
func (r *Runner) Restore(ctx context.Context) ([]string, error) {
	if r.store == nil {
		return nil, nil
	}
	state, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	r.queue.ImportState(state)
	moved := r.queue.RecoverInterrupted()
	if len(moved) > 0 {
		r.log.WithField("jobs", moved).Info("re-queued interrupted jobs")
	}
	return moved, nil
}

// Save persists the queue, when a store is configured.
func (r *Runner) Save(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	r.saveMu.Lock()
	defer r.saveMu.Unlock()
	return r.store.Save(ctx, r.queue.ExportState())
}

// Run dispatches jobs until ctx is done, or with Drain until the queue has
// nothing left to run. Jobs interrupted by ctx go back to queued. State is
// saved after every job and once more before Run returns.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	summary := Summary{}
	workers := r.opts.Workers

	jobs := make(chan *batch.BatchJob)
	results := make(chan result)
	finished := make(chan struct{}, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(id int) {
			defer wg.Done()
			r.worker(ctx, id, jobs, results, finished)
		}(i + 1)
	}

	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for res := range results {
			summary.Jobs++
			summary.Files += res.files
			summary.Outputs += len(res.outputs)
			for _, o := range res.outputs {
				summary.BytesSaved += o.InputSize - o.OutputSize
			}
			switch res.status {
			case batch.JobCompleted:
				summary.Completed++
			case batch.JobFailed:
				summary.Failed++
			case batch.JobQueued:
				summary.Requeued++
			default:
				summary.Stopped++
			}
		}
	}()

	r.dispatch(ctx, jobs, finished)
	close(jobs)
	wg.Wait()
	close(results)
	<-collectorDone

	// ctx may already be done; the final save must still happen.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.Save(saveCtx); err != nil {
		return summary, err
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return summary, err
	}
	return summary, nil
}

// dispatch claims runnable jobs while a worker is free.
func (r *Runner) dispatch(ctx context.Context, jobs chan<- *batch.BatchJob, finished <-chan struct{}) {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	busy := 0
	for {
		for busy < r.opts.Workers && ctx.Err() == nil {
			next := r.queue.NextJob()
			if next == nil {
				break
			}
			snap, ok := r.queue.StartJob(next.ID)
			if !ok {
				continue
			}
			select {
			case jobs <- snap:
				busy++
			case <-ctx.Done():
				r.queue.FinishJob(snap.ID, nil)
				return
			}
		}

		if r.opts.Drain && busy == 0 && r.queue.NextJob() == nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-finished:
			busy--
		case <-ticker.C:
		}
	}
}

func (r *Runner) worker(ctx context.Context, id int, jobs <-chan *batch.BatchJob, results chan<- result, finished chan<- struct{}) {
	for job := range jobs {
		results <- r.process(ctx, id, job)
		finished <- struct{}{}
	}
}

func (r *Runner) process(ctx context.Context, workerID int, job *batch.BatchJob) result {
	log := r.log.WithFields(logrus.Fields{"worker": workerID, "job_id": job.ID, "type": job.Type})
	log.WithField("files", len(batch.PendingFiles(job))).Info("job started")
	began := r.now()

	jobCtx, cancel := context.WithCancel(ctx)
	r.queue.BindAbort(job.ID, cancel)

	env := r.env
	env.Sink = r.fanOut()
	env.Log = log
	outputs, err := r.registry.Process(jobCtx, job, env)

	r.queue.UnbindAbort(job.ID)
	cancel()

	runErr := err
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// shutdown, not a failure of the job
		runErr = nil
	}
	status, _ := r.queue.FinishJob(job.ID, runErr)

	fields := logrus.Fields{"status": status, "outputs": len(outputs), "elapsed": r.now().Sub(began).Round(time.Millisecond)}
	if runErr != nil {
		log.WithFields(fields).WithError(runErr).Warn("job failed")
	} else {
		log.WithFields(fields).Info("job settled")
	}

	if settled, ok := r.queue.GetJob(job.ID); ok {
		at := r.now()
		for _, o := range r.observers {
			o.JobFinished(settled, at)
		}
	}

	saveCtx, cancelSave := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	if err := r.Save(saveCtx); err != nil {
		log.WithError(err).Error("save state")
	}
	cancelSave()

	return result{jobID: job.ID, status: status, outputs: outputs, files: len(job.Files), err: runErr}
}

// fanOut stamps each event and forwards it to the queue, then every sink.
func (r *Runner) fanOut() batch.Sink {
	sinks := append(batch.MultiSink{batch.SinkFunc(r.queue.Apply)}, r.sinks...)
	return batch.SinkFunc(func(ev batch.Event) {
		if ev.At.IsZero() {
			ev.At = r.now()
		}
		sinks.Emit(ev)
	})
}
