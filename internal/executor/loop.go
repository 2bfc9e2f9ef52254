package executor

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"docbatch/internal/batch"
)

// Progress bands of a single file.
const (
	bandRead      = 10
	bandTransform = 90
	bandWrite     = 100
)

// fileFunc handles one file. index is 0-based among the files being
// processed in this run; total is their count.
type fileFunc func(ctx context.Context, f *batch.BatchFile, index, total int, rep *reporter) ([]batch.OutputFileInfo, error)

// eachFile runs fn over the pending files of job in order.
func eachFile(ctx context.Context, job *batch.BatchJob, env Env, fn fileFunc) ([]batch.OutputFileInfo, error) {
	pending := batch.PendingFiles(job)
	if len(pending) == 0 {
		return nil, ErrNoPendingFiles
	}

	log := env.log().WithFields(logrus.Fields{"job_id": job.ID, "type": job.Type})
	var outputs []batch.OutputFileInfo
	for i, f := range pending {
		if ctx.Err() != nil {
			log.WithField("remaining", len(pending)-i).Info("run stopped")
			break
		}

		rep := start(env, job, f)
		began := env.now()
		outs, err := fn(ctx, f, i, len(pending), rep)
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// stopped mid-file; the file goes back to the queue
			f.Status = batch.FilePending
			f.Progress = 0
			break
		}
		if err != nil {
			rep.fail(err)
			log.WithFields(logrus.Fields{"file": f.Name, "error": err}).Warn("file failed")
			continue
		}

		elapsed := env.now().Sub(began)
		for j := range outs {
			outs[j].ProcessingTime = elapsed
		}
		rep.complete(outs)
		outputs = append(outputs, outs...)
	}
	return outputs, nil
}

// reporter tracks one file's progress and emits its events. Reported
// percentages never go down.
type reporter struct {
	env  Env
	job  *batch.BatchJob
	file *batch.BatchFile
}

func start(env Env, job *batch.BatchJob, f *batch.BatchFile) *reporter {
	f.Status = batch.FileProcessing
	f.Progress = 0
	f.Error = ""
	env.emit(batch.Event{Kind: batch.EventFileStarted, JobID: job.ID, FileID: f.ID})
	return &reporter{env: env, job: job, file: f}
}

func (r *reporter) report(pct int) {
	pct = min(max(pct, 0), 100)
	if pct <= r.file.Progress {
		return
	}
	r.file.Progress = pct
	r.env.emit(batch.Event{Kind: batch.EventFileProgress, JobID: r.job.ID, FileID: r.file.ID, Percent: pct})
}

// within reports a fraction of the span between two band edges.
func (r *reporter) within(lo, hi int, frac float64) {
	frac = min(max(frac, 0), 1)
	r.report(lo + int(float64(hi-lo)*frac))
}

func (r *reporter) pages(n int) {
	if n > 0 {
		r.file.PageCount = &n
	}
}

func (r *reporter) complete(outs []batch.OutputFileInfo) {
	r.report(bandWrite)
	r.file.Status = batch.FileCompleted
	ev := batch.Event{Kind: batch.EventFileCompleted, JobID: r.job.ID, FileID: r.file.ID, Percent: 100, Outputs: outs}
	if r.file.PageCount != nil {
		ev.Pages = *r.file.PageCount
	}
	r.env.emit(ev)
}

func (r *reporter) fail(err error) {
	r.file.Status = batch.FileFailed
	r.file.Error = err.Error()
	r.env.emit(batch.Event{Kind: batch.EventFileFailed, JobID: r.job.ID, FileID: r.file.ID, Percent: r.file.Progress, Err: err.Error()})
}

// read loads the file and reports the end of the read band.
func (r *reporter) read(ctx context.Context, path string) ([]byte, error) {
	data, err := r.env.Files.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	r.report(bandRead)
	return data, nil
}

// write stores data at path, reporting the transform band as done first.
func (r *reporter) write(ctx context.Context, path string, data []byte) error {
	r.report(bandTransform)
	return r.env.Files.WriteFile(ctx, path, data)
}
