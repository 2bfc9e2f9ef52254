package tui

import (
	"strings"
	"testing"
	"time"

	"docbatch/internal/batch"
)

func sampleJob(name string, files int) *batch.BatchJob {
	fs := make([]*batch.BatchFile, files)
	for i := range fs {
		fs[i] = batch.NewFile(name+".pdf", 1)
	}
	job := batch.NewJob(batch.TypeCompress, name, fs,
		batch.JobOptions{Operation: &batch.CompressOptions{Quality: batch.QualityLow}}, batch.PriorityHigh, time.Now())
	job.Status = batch.JobQueued
	return job
}

func TestModelCountsEvents(t *testing.T) {
	a, b := sampleJob("alpha", 2), sampleJob("beta", 1)
	m := NewModel(nil, []*batch.BatchJob{a, b})
	if m.total != 3 {
		t.Fatalf("total = %d", m.total)
	}

	feed := []Update{
		{Event: &batch.Event{Kind: batch.EventFileStarted, JobID: a.ID}},
		{Event: &batch.Event{Kind: batch.EventFileProgress, JobID: a.ID, Percent: 50}},
		{Event: &batch.Event{Kind: batch.EventFileCompleted, JobID: a.ID, Outputs: []batch.OutputFileInfo{{}, {}}}},
		{Event: &batch.Event{Kind: batch.EventFileStarted, JobID: a.ID}},
		{Event: &batch.Event{Kind: batch.EventFileFailed, JobID: a.ID}},
	}
	var model = m
	for _, u := range feed {
		next, _ := model.Update(updateMsg(u))
		model = next.(Model)
	}
	if model.done != 2 || model.failed != 1 || model.outputs != 2 {
		t.Fatalf("done=%d failed=%d outputs=%d", model.done, model.failed, model.outputs)
	}
	view := model.View()
	if !strings.Contains(view, "Files: 2/3") || !strings.Contains(view, "alpha") {
		t.Fatalf("view = %q", view)
	}

	a.Status = batch.JobFailed
	next, _ := model.Update(updateMsg(Update{Finished: a}))
	model = next.(Model)
	if strings.Contains(model.View(), "alpha") {
		t.Fatalf("settled job still shown as running")
	}

	next, cmd := model.Update(doneMsg{})
	if cmd == nil || next.(Model).View() != "" {
		t.Fatalf("done did not quit")
	}
}

func TestFeed(t *testing.T) {
	ch := make(chan Update, 2)
	feed := Feed(ch)
	feed.Emit(batch.Event{Kind: batch.EventFileStarted, JobID: "j"})
	feed.JobFinished(&batch.BatchJob{ID: "j"}, time.Now())
	if u := <-ch; u.Event == nil || u.Event.JobID != "j" {
		t.Fatalf("event update = %+v", u)
	}
	if u := <-ch; u.Finished == nil {
		t.Fatalf("finished update = %+v", u)
	}
}

func TestRenderJobs(t *testing.T) {
	job := sampleJob("quarterly-report", 2)
	job.ID = "0123456789abcdef"
	job.Progress.CompletedFiles = 1
	job.Progress.OverallProgress = 50

	out := RenderJobs([]*batch.BatchJob{job})
	for _, want := range []string{"PRIORITY", "01234567", "quarterly-report", "compress", "high", "1/2", "50%"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "89abcdef") {
		t.Fatalf("id not shortened:\n%s", out)
	}
	if RenderJobs(nil) == "" {
		t.Fatalf("empty table rendered nothing")
	}
}

func TestRenderJob(t *testing.T) {
	job := sampleJob("scan", 1)
	job.Files[0].Status = batch.FileFailed
	job.Files[0].Error = "not a pdf"
	job.Files[0].RetryCount = 2
	out := RenderJob(job)
	for _, want := range []string{"Priority", "failed", "not a pdf", "retries 2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("detail missing %q:\n%s", want, out)
		}
	}
}

func TestRenderTemplates(t *testing.T) {
	tpl := batch.NewTemplate("nightly-archive", batch.JobOptions{MaxRetries: 4, Operation: &batch.CompressOptions{Quality: batch.QualityHigh}}, batch.PriorityLow)
	out := RenderTemplates([]*batch.Template{tpl})
	for _, want := range []string{"RETRIES", tpl.ID[:8], "nightly-archive", "compress", "low", "4"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(RenderTemplates(nil), "no templates") {
		t.Fatalf("empty list not reported")
	}
}
