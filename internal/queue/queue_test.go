package queue

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"docbatch/internal/batch"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	return func() time.Time { return epoch.Add(time.Hour) }
}

func makeJob(id string, priority batch.JobPriority, created time.Time, files int) *batch.BatchJob {
	fs := make([]*batch.BatchFile, files)
	for i := range fs {
		fs[i] = batch.NewFile("doc.pdf", 100)
	}
	job := batch.NewJob(batch.TypeCompress, id, fs, batch.JobOptions{Operation: &batch.CompressOptions{Quality: batch.QualityMedium}}, priority, created)
	job.ID = id
	return job
}

func TestPriorityThenCreationOrder(t *testing.T) {
	q := New(WithClock(fixedClock()))
	q.AddJob(makeJob("a", batch.PriorityNormal, epoch, 1))
	q.AddJob(makeJob("b", batch.PriorityCritical, epoch.Add(time.Second), 1))
	q.AddJob(makeJob("c", batch.PriorityNormal, epoch.Add(2*time.Second), 1))

	want := []string{"b", "a", "c"}
	if got := q.PriorityOrder(); !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if next := q.NextJob(); next == nil || next.ID != "b" {
		t.Fatalf("next = %v, want b", next)
	}
}

func TestEqualKeysKeepAdmissionOrder(t *testing.T) {
	q := New(WithClock(fixedClock()))
	for _, id := range []string{"x", "y", "z"} {
		q.AddJob(makeJob(id, batch.PriorityHigh, epoch, 1))
	}
	want := []string{"x", "y", "z"}
	if got := q.PriorityOrder(); !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}

	// re-adding keeps the original place
	q.AddJob(makeJob("x", batch.PriorityHigh, epoch, 2))
	if got := q.PriorityOrder(); !reflect.DeepEqual(got, want) {
		t.Fatalf("order after re-add = %v, want %v", got, want)
	}
	job, _ := q.GetJob("x")
	if len(job.Files) != 2 {
		t.Fatalf("re-add did not replace the job")
	}
}

func TestAddJobStoresCopyAsQueued(t *testing.T) {
	q := New(WithClock(fixedClock()))
	job := makeJob("a", batch.PriorityNormal, epoch, 1)
	q.AddJob(job)
	job.Name = "mutated"

	got, ok := q.GetJob("a")
	if !ok || got.Status != batch.JobQueued || got.Name != "a" {
		t.Fatalf("stored job = %+v", got)
	}
	got.Files[0].Status = batch.FileFailed
	again, _ := q.GetJob("a")
	if again.Files[0].Status != batch.FilePending {
		t.Fatalf("GetJob returned shared state")
	}
}

func TestChangePriorityReorders(t *testing.T) {
	q := New(WithClock(fixedClock()))
	q.AddJob(makeJob("a", batch.PriorityNormal, epoch, 1))
	q.AddJob(makeJob("b", batch.PriorityNormal, epoch.Add(time.Second), 1))

	if !q.ChangePriority("b", batch.PriorityCritical) {
		t.Fatalf("ChangePriority failed")
	}
	if got := q.PriorityOrder(); got[0] != "b" {
		t.Fatalf("order = %v, want b first", got)
	}
	if q.ChangePriority("b", "urgent") {
		t.Fatalf("invalid priority accepted")
	}
	if q.ChangePriority("missing", batch.PriorityLow) {
		t.Fatalf("unknown id accepted")
	}
}

func TestNextJobSkipsNonRunnable(t *testing.T) {
	q := New(WithClock(fixedClock()))
	q.AddJob(makeJob("a", batch.PriorityCritical, epoch, 1))
	q.AddJob(makeJob("b", batch.PriorityLow, epoch, 1))

	if _, ok := q.StartJob("a"); !ok {
		t.Fatalf("StartJob failed")
	}
	if next := q.NextJob(); next == nil || next.ID != "b" {
		t.Fatalf("next = %v, want b", next)
	}
	if _, ok := q.StartJob("a"); ok {
		t.Fatalf("processing job started twice")
	}
}

func TestRemoveAndClear(t *testing.T) {
	q := New(WithClock(fixedClock()))
	q.AddJob(makeJob("a", batch.PriorityNormal, epoch, 1))
	q.AddJob(makeJob("b", batch.PriorityNormal, epoch, 1))
	q.AddJob(makeJob("c", batch.PriorityNormal, epoch, 1))

	if !q.RemoveJob("b") || q.RemoveJob("b") {
		t.Fatalf("RemoveJob should succeed once")
	}

	runToEnd(t, q, "a", batch.FileCompleted)
	if n := q.ClearCompletedJobs(); n != 1 {
		t.Fatalf("cleared %d, want 1", n)
	}
	if got := q.PriorityOrder(); !reflect.DeepEqual(got, []string{"c"}) {
		t.Fatalf("order = %v, want [c]", got)
	}
	if n := q.ClearAllJobs(); n != 1 || q.Len() != 0 || q.NextJob() != nil {
		t.Fatalf("ClearAllJobs left jobs behind")
	}
}

// runToEnd dispatches id and settles every file with status.
func runToEnd(t *testing.T, q *Queue, id string, status batch.FileStatus) batch.JobStatus {
	t.Helper()
	snap, ok := q.StartJob(id)
	if !ok {
		t.Fatalf("StartJob(%s) failed", id)
	}
	for _, f := range snap.Files {
		q.Apply(batch.Event{Kind: batch.EventFileStarted, JobID: id, FileID: f.ID})
		kind := batch.EventFileCompleted
		if status == batch.FileFailed {
			kind = batch.EventFileFailed
		}
		q.Apply(batch.Event{Kind: kind, JobID: id, FileID: f.ID, Err: "boom"})
	}
	got, _ := q.FinishJob(id, nil)
	return got
}

func TestFinishJobOutcome(t *testing.T) {
	q := New(WithClock(fixedClock()))
	q.AddJob(makeJob("ok", batch.PriorityNormal, epoch, 2))
	q.AddJob(makeJob("bad", batch.PriorityNormal, epoch, 2))

	if got := runToEnd(t, q, "ok", batch.FileCompleted); got != batch.JobCompleted {
		t.Fatalf("ok job = %s, want completed", got)
	}
	if got := runToEnd(t, q, "bad", batch.FileFailed); got != batch.JobFailed {
		t.Fatalf("bad job = %s, want failed", got)
	}
	job, _ := q.GetJob("ok")
	if job.Progress.OverallProgress != 100 || job.CompletedAt == nil || job.StartedAt == nil {
		t.Fatalf("completed job progress = %+v", job.Progress)
	}
}

func TestFinishJobWithRunError(t *testing.T) {
	q := New(WithClock(fixedClock()))
	q.AddJob(makeJob("m", batch.PriorityNormal, epoch, 1))
	q.StartJob("m")
	status, _ := q.FinishJob("m", errors.New("need two files"))
	job, _ := q.GetJob("m")
	if status != batch.JobFailed || job.Error != "need two files" {
		t.Fatalf("status = %s error = %q", status, job.Error)
	}
	if job.Files[0].Status != batch.FilePending {
		t.Fatalf("untouched file changed to %s", job.Files[0].Status)
	}
}

func TestFinishJobRequeuesUnfinished(t *testing.T) {
	q := New(WithClock(fixedClock()))
	q.AddJob(makeJob("a", batch.PriorityNormal, epoch, 3))
	snap, _ := q.StartJob("a")
	q.Apply(batch.Event{Kind: batch.EventFileStarted, JobID: "a", FileID: snap.Files[0].ID})
	q.Apply(batch.Event{Kind: batch.EventFileCompleted, JobID: "a", FileID: snap.Files[0].ID})
	q.Apply(batch.Event{Kind: batch.EventFileStarted, JobID: "a", FileID: snap.Files[1].ID})

	status, _ := q.FinishJob("a", nil)
	job, _ := q.GetJob("a")
	if status != batch.JobQueued {
		t.Fatalf("status = %s, want queued", status)
	}
	if job.Files[0].Status != batch.FileCompleted || job.Files[1].Status != batch.FilePending {
		t.Fatalf("files = %s %s, want completed pending", job.Files[0].Status, job.Files[1].Status)
	}
	if next := q.NextJob(); next == nil || next.ID != "a" {
		t.Fatalf("unfinished job not runnable")
	}
}

func TestApplyProgressIsMonotonic(t *testing.T) {
	q := New(WithClock(fixedClock()))
	q.AddJob(makeJob("a", batch.PriorityNormal, epoch, 2))
	snap, _ := q.StartJob("a")
	fid := snap.Files[0].ID

	q.Apply(batch.Event{Kind: batch.EventFileStarted, JobID: "a", FileID: fid})
	last := 0
	for _, pct := range []int{10, 50, 30, 90, 120} {
		q.Apply(batch.Event{Kind: batch.EventFileProgress, JobID: "a", FileID: fid, Percent: pct})
		job, _ := q.GetJob("a")
		if job.Progress.OverallProgress < last {
			t.Fatalf("overall went back from %d to %d", last, job.Progress.OverallProgress)
		}
		last = job.Progress.OverallProgress
		if job.Files[0].Progress > 100 {
			t.Fatalf("file progress %d over 100", job.Files[0].Progress)
		}
	}
	if last != 50 {
		t.Fatalf("overall = %d, want 50", last)
	}

	// a failure after completion is ignored
	q.Apply(batch.Event{Kind: batch.EventFileCompleted, JobID: "a", FileID: fid})
	q.Apply(batch.Event{Kind: batch.EventFileFailed, JobID: "a", FileID: fid, Err: "late"})
	job, _ := q.GetJob("a")
	if job.Files[0].Status != batch.FileCompleted {
		t.Fatalf("file = %s, want completed", job.Files[0].Status)
	}
}

func TestPauseResume(t *testing.T) {
	q := New(WithClock(fixedClock()))
	q.AddJob(makeJob("a", batch.PriorityNormal, epoch, 2))
	if q.PauseJob("a") {
		t.Fatalf("queued job paused")
	}

	snap, _ := q.StartJob("a")
	ctx, cancel := context.WithCancel(context.Background())
	q.BindAbort("a", cancel)
	q.Apply(batch.Event{Kind: batch.EventFileStarted, JobID: "a", FileID: snap.Files[0].ID})
	if !q.PauseJob("a") {
		t.Fatalf("PauseJob failed")
	}
	if ctx.Err() == nil {
		t.Fatalf("pause did not abort the dispatch")
	}
	if q.NextJob() != nil {
		t.Fatalf("paused job is still runnable")
	}
	if status, _ := q.FinishJob("a", nil); status != batch.JobPaused {
		t.Fatalf("finish overrode pause: %s", status)
	}
	if job, _ := q.GetJob("a"); job.Files[0].Status != batch.FilePending {
		t.Fatalf("interrupted file = %s after pause", job.Files[0].Status)
	}
	if !q.ResumeJob("a") || q.ResumeJob("a") {
		t.Fatalf("ResumeJob should succeed once")
	}
	if next := q.NextJob(); next == nil || next.ID != "a" {
		t.Fatalf("resumed job not runnable")
	}
}

func TestCancelJob(t *testing.T) {
	q := New(WithClock(fixedClock()))
	q.AddJob(makeJob("a", batch.PriorityNormal, epoch, 4))
	snap, _ := q.StartJob("a")
	ctx, cancel := context.WithCancel(context.Background())
	q.BindAbort("a", cancel)

	q.Apply(batch.Event{Kind: batch.EventFileStarted, JobID: "a", FileID: snap.Files[0].ID})
	q.Apply(batch.Event{Kind: batch.EventFileCompleted, JobID: "a", FileID: snap.Files[0].ID})
	q.Apply(batch.Event{Kind: batch.EventFileStarted, JobID: "a", FileID: snap.Files[1].ID})
	q.Apply(batch.Event{Kind: batch.EventFileFailed, JobID: "a", FileID: snap.Files[1].ID, Err: "x"})
	q.Apply(batch.Event{Kind: batch.EventFileStarted, JobID: "a", FileID: snap.Files[2].ID})

	if !q.CancelJob("a") {
		t.Fatalf("CancelJob failed")
	}
	if ctx.Err() == nil {
		t.Fatalf("cancel did not abort the dispatch")
	}
	job, _ := q.GetJob("a")
	want := []batch.FileStatus{batch.FileCompleted, batch.FileFailed, batch.FileProcessing, batch.FileCancelled}
	for i, f := range job.Files {
		if f.Status != want[i] {
			t.Fatalf("file %d = %s, want %s", i, f.Status, want[i])
		}
	}
	if job.Status != batch.JobCancelled {
		t.Fatalf("job = %s, want cancelled", job.Status)
	}
	if q.CancelJob("a") {
		t.Fatalf("cancelled job cancelled again")
	}
	if status, _ := q.FinishJob("a", nil); status != batch.JobCancelled {
		t.Fatalf("finish overrode cancel: %s", status)
	}
	job, _ = q.GetJob("a")
	if job.Files[2].Status != batch.FileCancelled || !batch.IsJobComplete(job) {
		t.Fatalf("interrupted file = %s after cancel", job.Files[2].Status)
	}

	q.AddJob(makeJob("done", batch.PriorityNormal, epoch, 1))
	runToEnd(t, q, "done", batch.FileCompleted)
	if q.CancelJob("done") {
		t.Fatalf("completed job cancelled")
	}
}

func TestRetryFailedFilesRespectsBound(t *testing.T) {
	q := New(WithClock(fixedClock()))
	job := makeJob("a", batch.PriorityNormal, epoch, 2)
	job.Options.MaxRetries = 1
	q.AddJob(job)

	if q.RetryFailedFiles("a") {
		t.Fatalf("retry without failed files")
	}

	snap, _ := q.StartJob("a")
	q.Apply(batch.Event{Kind: batch.EventFileCompleted, JobID: "a", FileID: snap.Files[0].ID})
	q.Apply(batch.Event{Kind: batch.EventFileFailed, JobID: "a", FileID: snap.Files[1].ID, Err: "bad"})
	if status, _ := q.FinishJob("a", nil); status != batch.JobFailed {
		t.Fatalf("status = %s, want failed", status)
	}

	if !q.RetryFailedFiles("a") {
		t.Fatalf("first retry refused")
	}
	got, _ := q.GetJob("a")
	f := got.Files[1]
	if got.Status != batch.JobQueued || f.Status != batch.FilePending || f.RetryCount != 1 || f.Error != "" {
		t.Fatalf("after retry job=%s file=%+v", got.Status, f)
	}
	if got.Progress.FailedFiles != 0 || got.Progress.OverallProgress != 50 || got.Error != "" {
		t.Fatalf("progress after retry = %+v", got.Progress)
	}

	q.StartJob("a")
	q.Apply(batch.Event{Kind: batch.EventFileFailed, JobID: "a", FileID: f.ID, Err: "bad again"})
	q.FinishJob("a", nil)
	if q.RetryFailedFiles("a") {
		t.Fatalf("retry beyond max retries")
	}
	got, _ = q.GetJob("a")
	if got.Files[1].RetryCount != 1 || got.Status != batch.JobFailed {
		t.Fatalf("exhausted retry changed the job: %+v", got.Files[1])
	}
}

func TestStatsAndByStatus(t *testing.T) {
	q := New(WithClock(fixedClock()))
	q.AddJob(makeJob("a", batch.PriorityNormal, epoch, 2))
	q.AddJob(makeJob("b", batch.PriorityNormal, epoch, 3))
	runToEnd(t, q, "a", batch.FileFailed)

	st := q.Stats()
	if st.Total != 2 || st.TotalFiles != 5 || st.Failed != 2 || st.ByStatus[batch.JobQueued] != 1 || st.ByStatus[batch.JobFailed] != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if got := q.JobsByStatus(batch.JobQueued); len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("JobsByStatus(queued) = %v", got)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	q := New(WithClock(fixedClock()))
	q.AddJob(makeJob("a", batch.PriorityLow, epoch, 1))
	q.AddJob(makeJob("b", batch.PriorityHigh, epoch, 1))
	q.AddJob(makeJob("c", batch.PriorityHigh, epoch, 1))
	q.AddJob(makeJob("d", batch.PriorityNormal, epoch, 1))
	runToEnd(t, q, "d", batch.FileCompleted)

	data, err := json.Marshal(q.ExportState())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	r := New(WithClock(fixedClock()))
	r.ImportState(state)
	if got, want := r.PriorityOrder(), q.PriorityOrder(); !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for _, job := range q.Jobs() {
		other, ok := r.GetJob(job.ID)
		if !ok || other.Status != job.Status || len(other.Files) != len(job.Files) {
			t.Fatalf("job %s not restored: %+v", job.ID, other)
		}
	}
	if next := r.NextJob(); next == nil || next.ID != "b" {
		t.Fatalf("next after import = %v, want b", next)
	}
}

func TestImportDropsUnknownAndRepairsOrder(t *testing.T) {
	state := State{
		Jobs: []*batch.BatchJob{
			makeJob("low", batch.PriorityLow, epoch, 1),
			makeJob("crit", batch.PriorityCritical, epoch, 1),
			makeJob("tie2", batch.PriorityNormal, epoch, 1),
			makeJob("tie1", batch.PriorityNormal, epoch, 1),
			nil,
		},
		PriorityOrder: []string{"ghost", "low", "tie1", "crit", "tie1"},
	}

	q := New(WithClock(fixedClock()))
	q.ImportState(state)

	want := []string{"crit", "tie1", "tie2", "low"}
	if got := q.PriorityOrder(); !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if q.Len() != 4 {
		t.Fatalf("len = %d, want 4", q.Len())
	}
}

func TestRecoverInterrupted(t *testing.T) {
	q := New(WithClock(fixedClock()))
	q.AddJob(makeJob("a", batch.PriorityNormal, epoch, 2))
	q.AddJob(makeJob("b", batch.PriorityNormal, epoch, 1))
	snap, _ := q.StartJob("a")
	q.Apply(batch.Event{Kind: batch.EventFileStarted, JobID: "a", FileID: snap.Files[0].ID})
	q.StartJob("b")
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.BindAbort("b", cancel)

	restored := New(WithClock(fixedClock()))
	restored.ImportState(q.ExportState())
	if moved := restored.RecoverInterrupted(); !reflect.DeepEqual(moved, []string{"a", "b"}) {
		t.Fatalf("moved = %v", moved)
	}
	job, _ := restored.GetJob("a")
	if job.Status != batch.JobQueued || job.Files[0].Status != batch.FilePending {
		t.Fatalf("job not recovered: %s %s", job.Status, job.Files[0].Status)
	}

	if moved := q.RecoverInterrupted(); len(moved) != 0 {
		t.Fatalf("live dispatch recovered: %v", moved)
	}
}

func TestResumedJobWaitsForLiveDispatch(t *testing.T) {
	q := New(WithClock(fixedClock()))
	q.AddJob(makeJob("a", batch.PriorityNormal, epoch, 3))

	first, _ := q.StartJob("a")
	firstCtx, firstCancel := context.WithCancel(context.Background())
	defer firstCancel()
	q.BindAbort("a", firstCancel)
	q.Apply(batch.Event{Kind: batch.EventFileStarted, JobID: "a", FileID: first.Files[0].ID})

	if !q.PauseJob("a") || !q.ResumeJob("a") {
		t.Fatalf("pause and resume should succeed")
	}
	if firstCtx.Err() == nil {
		t.Fatalf("pause did not abort the first dispatch")
	}
	if next := q.NextJob(); next != nil {
		t.Fatalf("job handed out while its dispatch is live: %s", next.ID)
	}
	if _, ok := q.StartJob("a"); ok {
		t.Fatalf("second dispatch started while the first is live")
	}

	// the first executor finishes its current file before it sees the abort
	q.Apply(batch.Event{Kind: batch.EventFileCompleted, JobID: "a", FileID: first.Files[0].ID})
	q.UnbindAbort("a")
	if status, ok := q.FinishJob("a", nil); !ok || status != batch.JobQueued {
		t.Fatalf("finish = %s %v, want queued", status, ok)
	}
	if _, ok := q.FinishJob("a", nil); ok {
		t.Fatalf("dispatch finished twice")
	}

	if next := q.NextJob(); next == nil || next.ID != "a" {
		t.Fatalf("resumed job not runnable after the first dispatch ended")
	}
	second, ok := q.StartJob("a")
	if !ok {
		t.Fatalf("second dispatch refused")
	}
	secondCtx, secondCancel := context.WithCancel(context.Background())
	defer secondCancel()
	q.BindAbort("a", secondCancel)
	if _, ok := q.StartJob("a"); ok {
		t.Fatalf("third dispatch started")
	}
	q.Apply(batch.Event{Kind: batch.EventFileStarted, JobID: "a", FileID: second.Files[1].ID})

	if !q.PauseJob("a") || secondCtx.Err() == nil {
		t.Fatalf("pause did not reach the second dispatch")
	}
	job, _ := q.GetJob("a")
	if job.Files[0].Status != batch.FileCompleted || job.Files[1].Status != batch.FileProcessing {
		t.Fatalf("files = %s %s", job.Files[0].Status, job.Files[1].Status)
	}
}

func TestBindAbortAfterPauseCancelsAtOnce(t *testing.T) {
	q := New(WithClock(fixedClock()))
	q.AddJob(makeJob("a", batch.PriorityNormal, epoch, 1))
	q.StartJob("a")
	q.PauseJob("a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.BindAbort("a", cancel)
	if ctx.Err() == nil {
		t.Fatalf("dispatch of a paused job was not aborted")
	}
	if status, ok := q.FinishJob("a", nil); !ok || status != batch.JobPaused {
		t.Fatalf("finish = %s %v", status, ok)
	}
}
