package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"docbatch/internal/batch"
	"docbatch/internal/ocr"
	"docbatch/internal/pdf"
	"docbatch/internal/storage"
)

// fakeEngine models a document as a header line followed by one line per
// page ("p:<label>"). Bookmarks and watermarks are appended as marker lines.
type fakeEngine struct {
	mu          sync.Mutex
	watermarks  []pdf.Watermark
	bookmarks   [][]pdf.Bookmark
	optimizeErr error
}

const fakeHeader = "%PDF-fake"

func fakeDoc(labels ...string) []byte {
	var b strings.Builder
	b.WriteString(fakeHeader + "\n")
	for _, l := range labels {
		b.WriteString("p:" + l + "\n")
	}
	return []byte(b.String())
}

func fakePages(doc []byte) []string {
	var pages []string
	for _, line := range strings.Split(string(doc), "\n") {
		if strings.HasPrefix(line, "p:") {
			pages = append(pages, strings.TrimPrefix(line, "p:"))
		}
	}
	return pages
}

func (e *fakeEngine) PageCount(ctx context.Context, doc []byte) (int, error) {
	if !strings.HasPrefix(string(doc), fakeHeader) {
		return 0, errors.New("not a fake pdf")
	}
	return len(fakePages(doc)), nil
}

func (e *fakeEngine) Optimize(ctx context.Context, doc []byte, opts pdf.OptimizeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.optimizeErr != nil {
		return nil, e.optimizeErr
	}
	return append(append([]byte(nil), doc...), []byte("opt:"+string(opts.Level)+"\n")...), nil
}

func (e *fakeEngine) Merge(ctx context.Context, docs [][]byte) ([]byte, error) {
	var labels []string
	for _, d := range docs {
		labels = append(labels, fakePages(d)...)
	}
	return fakeDoc(labels...), nil
}

func (e *fakeEngine) SelectPages(ctx context.Context, doc []byte, pages []int) ([]byte, error) {
	all := fakePages(doc)
	labels := make([]string, 0, len(pages))
	for _, p := range pages {
		if p < 1 || p > len(all) {
			return nil, fmt.Errorf("page %d out of range", p)
		}
		labels = append(labels, all[p-1])
	}
	return fakeDoc(labels...), nil
}

func (e *fakeEngine) AddBookmarks(ctx context.Context, doc []byte, marks []pdf.Bookmark) ([]byte, error) {
	e.mu.Lock()
	e.bookmarks = append(e.bookmarks, marks)
	e.mu.Unlock()
	return doc, nil
}

func (e *fakeEngine) Watermark(ctx context.Context, doc []byte, wm pdf.Watermark) ([]byte, error) {
	e.mu.Lock()
	e.watermarks = append(e.watermarks, wm)
	e.mu.Unlock()
	return append(append([]byte(nil), doc...), []byte("wm:"+wm.Text+"\n")...), nil
}

type fakeRecognizer struct {
	mu       sync.Mutex
	requests []ocr.Request
}

func (r *fakeRecognizer) Recognize(ctx context.Context, image []byte, req ocr.Request) ([]byte, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	return []byte("recognised text"), nil
}

type harness struct {
	files  *storage.Memory
	engine *fakeEngine
	ocr    *fakeRecognizer
	events *batch.Recorder
}

func newHarness() *harness {
	return &harness{
		files:  storage.NewMemory(),
		engine: &fakeEngine{},
		ocr:    &fakeRecognizer{},
		events: &batch.Recorder{},
	}
}

func (h *harness) env(extra ...batch.Sink) Env {
	sinks := batch.MultiSink{h.events}
	sinks = append(sinks, extra...)
	return Env{
		Files:      h.files,
		Documents:  h.engine,
		Recognizer: h.ocr,
		Sink:       sinks,
		Now:        func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) },
	}
}

func newTestJob(t batch.JobType, op batch.Operation, paths ...string) *batch.BatchJob {
	files := make([]*batch.BatchFile, len(paths))
	for i, p := range paths {
		files[i] = batch.NewFile(p, 0)
	}
	return batch.NewJob(t, "test", files, batch.JobOptions{Operation: op}, batch.PriorityNormal, time.Unix(0, 0))
}
