package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"docbatch/internal/batch"
	"docbatch/internal/queue"
)

func TestLoadMissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state.json"))
	state, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(state.Jobs) != 0 || len(state.PriorityOrder) != 0 {
		t.Fatalf("state = %+v", state)
	}
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	s := New(filepath.Join(t.TempDir(), "nested", "state.json"))

	q := queue.New()
	job := batch.NewJob(batch.TypeCompress, "scans", []*batch.BatchFile{batch.NewFile("a.pdf", 3)},
		batch.JobOptions{MaxRetries: 1, Operation: &batch.CompressOptions{Quality: batch.QualityHigh}}, batch.PriorityHigh, time.Now())
	q.AddJob(job)

	if err := s.Save(ctx, q.ExportState()); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Jobs) != 1 || loaded.Jobs[0].ID != job.ID || loaded.PriorityOrder[0] != job.ID {
		t.Fatalf("loaded = %+v", loaded)
	}

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(path).Load(context.Background()); err == nil {
		t.Fatalf("corrupt state accepted")
	}
}

func TestTemplates(t *testing.T) {
	ctx := context.Background()
	s := NewTemplates(filepath.Join(t.TempDir(), "templates.json"))

	all, err := s.List(ctx)
	if err != nil || len(all) != 0 {
		t.Fatalf("empty list = %v, %v", all, err)
	}

	scans := batch.NewTemplate("scans", batch.JobOptions{MaxRetries: 2, Operation: &batch.OCROptions{Language: "eng", OutputFormat: batch.OCRText, Accuracy: batch.AccuracyFast}}, batch.PriorityHigh)
	archive := batch.NewTemplate("archive", batch.JobOptions{MaxRetries: 1, Operation: &batch.CompressOptions{Quality: batch.QualityMaximum}}, batch.PriorityLow)
	for _, tpl := range []*batch.Template{scans, archive} {
		if err := s.Put(ctx, tpl); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	all, err = s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Name != "archive" || all[1].Name != "scans" {
		t.Fatalf("list = %+v", all)
	}
	ocr, ok := all[1].Options.Operation.(*batch.OCROptions)
	if !ok || ocr.Accuracy != batch.AccuracyFast || all[1].Type != batch.TypeOCR {
		t.Fatalf("scans options = %#v", all[1].Options.Operation)
	}

	replaced := batch.NewTemplate("scans", batch.JobOptions{MaxRetries: 5, Operation: &batch.CompressOptions{Quality: batch.QualityLow}}, batch.PriorityNormal)
	if err := s.Put(ctx, replaced); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, scans.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.Type != batch.TypeCompress || got.Options.MaxRetries != 5 {
		t.Fatalf("replaced template = %+v", got)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, batch.ErrTemplateNotFound) {
		t.Fatalf("get missing: %v", err)
	}
	if ok, err := s.Delete(ctx, "archive"); !ok || err != nil {
		t.Fatalf("delete = %v, %v", ok, err)
	}
	if ok, _ := s.Delete(ctx, "archive"); ok {
		t.Fatalf("second delete reported a template")
	}
	if all, _ := s.List(ctx); len(all) != 1 {
		t.Fatalf("after delete = %d templates", len(all))
	}
}
