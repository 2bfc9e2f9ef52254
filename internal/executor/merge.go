package executor

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"docbatch/internal/batch"
	"docbatch/internal/pdf"
	"docbatch/pkg/docutil"
)

// ErrTooFewFiles is returned when a merge has fewer than two usable inputs.
var ErrTooFewFiles = errors.New("merge needs at least two documents")

// Merge combines the pending files of a job into one document named by
// OutputName, written beside the first input. Unreadable inputs fail on their
// own; the rest are merged as long as two remain.
type Merge struct{}

func (Merge) Type() batch.JobType { return batch.TypeMerge }

type mergeSource struct {
	file  *batch.BatchFile
	rep   *reporter
	doc   []byte
	pages int
}

func (Merge) Process(ctx context.Context, job *batch.BatchJob, env Env) ([]batch.OutputFileInfo, error) {
	opts, err := optionsFor[*batch.MergeOptions](job, batch.TypeMerge)
	if err != nil {
		return nil, err
	}
	if res := ValidateMergeOptions(opts); !res.Valid {
		return nil, invalid(res)
	}
	pending := batch.PendingFiles(job)
	if len(pending) == 0 {
		return nil, ErrNoPendingFiles
	}
	if len(pending) < 2 {
		return nil, fmt.Errorf("%w: %d pending", ErrTooFewFiles, len(pending))
	}
	if env.Documents == nil {
		return nil, fmt.Errorf("merge: no document engine configured")
	}

	log := env.log().WithFields(logrus.Fields{"job_id": job.ID, "type": job.Type})
	began := env.now()

	var sources []mergeSource
	for _, f := range pending {
		if ctx.Err() != nil {
			return nil, nil
		}
		rep := start(env, job, f)
		doc, pages, err := loadMergeSource(ctx, env, rep, f)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil, nil
			}
			rep.fail(err)
			log.WithFields(logrus.Fields{"file": f.Name, "error": err}).Warn("merge input failed")
			continue
		}
		sources = append(sources, mergeSource{file: f, rep: rep, doc: doc, pages: pages})
	}
	if len(sources) < 2 {
		return nil, fmt.Errorf("%w: %d readable", ErrTooFewFiles, len(sources))
	}

	docs := make([][]byte, len(sources))
	for i, s := range sources {
		docs[i] = s.doc
	}
	merged, err := env.Documents.Merge(ctx, docs)
	if err != nil {
		return nil, mergeAbort(ctx, err)
	}

	starts := make([]int, len(sources))
	if opts.Strategy == batch.MergeInterleave {
		order := interleaveOrder(sources)
		if merged, err = env.Documents.SelectPages(ctx, merged, order); err != nil {
			return nil, mergeAbort(ctx, err)
		}
		starts = firstPositions(order, sources)
	} else {
		next := 1
		for i, s := range sources {
			starts[i] = next
			next += s.pages
		}
	}

	if opts.AddBookmarks || opts.Strategy == batch.MergeByBookmark {
		marks := mergeBookmarks(opts, sources, starts)
		if merged, err = env.Documents.AddBookmarks(ctx, merged, marks); err != nil {
			return nil, mergeAbort(ctx, err)
		}
	}

	total := 0
	info := batch.OutputFileInfo{
		InputPath:  sources[0].file.Path,
		OutputPath: env.Files.OutputPath(sibling(sources[0].file.Path, opts.OutputName), "", ".pdf"),
		OutputSize: int64(len(merged)),
	}
	for _, s := range sources {
		info.Sources = append(info.Sources, s.file.Path)
		info.InputSize += int64(len(s.doc))
		total += s.pages
		s.rep.report(bandTransform)
	}
	info.PageCount = total

	if err := env.Files.WriteFile(ctx, info.OutputPath, merged); err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		for _, s := range sources {
			s.rep.fail(fmt.Errorf("write merged document: %w", err))
		}
		return nil, nil
	}
	info.ProcessingTime = env.now().Sub(began)

	for _, s := range sources {
		s.rep.complete([]batch.OutputFileInfo{info})
	}
	log.WithFields(logrus.Fields{"output": info.OutputPath, "sources": len(sources)}).Info("merged")
	return []batch.OutputFileInfo{info}, nil
}

func loadMergeSource(ctx context.Context, env Env, rep *reporter, f *batch.BatchFile) ([]byte, int, error) {
	doc, err := rep.read(ctx, f.Path)
	if err != nil {
		return nil, 0, err
	}
	if kind := docutil.Detect(doc); kind != docutil.KindPDF {
		return nil, 0, fmt.Errorf("%w: cannot merge %s", ErrUnsupportedInput, kind)
	}
	pages, err := env.Documents.PageCount(ctx, doc)
	if err != nil {
		return nil, 0, err
	}
	if pages < 1 {
		return nil, 0, fmt.Errorf("document has no pages")
	}
	rep.pages(pages)
	rep.report(bandTransform / 2)
	return doc, pages, nil
}

// mergeAbort turns an engine failure into a job error unless the run was
// stopped.
func mergeAbort(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("merge: %w", err)
}

// interleaveOrder lists pages of the concatenated document taking page i of
// every source before page i+1 of any.
func interleaveOrder(sources []mergeSource) []int {
	offsets := make([]int, len(sources))
	longest, next := 0, 0
	for i, s := range sources {
		offsets[i] = next
		next += s.pages
		longest = max(longest, s.pages)
	}
	order := make([]int, 0, next)
	for p := 0; p < longest; p++ {
		for i, s := range sources {
			if p < s.pages {
				order = append(order, offsets[i]+p+1)
			}
		}
	}
	return order
}

// firstPositions returns, per source, the 1-based position of its first page
// in order.
func firstPositions(order []int, sources []mergeSource) []int {
	pos := make([]int, len(sources))
	offset := 0
	for i, s := range sources {
		first := offset + 1
		for j, p := range order {
			if p == first {
				pos[i] = j + 1
				break
			}
		}
		offset += s.pages
	}
	return pos
}

func mergeBookmarks(opts *batch.MergeOptions, sources []mergeSource, starts []int) []pdf.Bookmark {
	level := max(opts.BookmarkLevel, 1)
	var marks []pdf.Bookmark
	if level > 1 {
		marks = append(marks, pdf.Bookmark{Title: stem(opts.OutputName), Page: 1, Level: 1})
	}
	for i, s := range sources {
		marks = append(marks, pdf.Bookmark{Title: stem(s.file.Name), Page: starts[i], Level: level})
	}
	return marks
}

// sibling replaces the last element of p with name, keeping p's separator
// style.
func sibling(p, name string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[:i+1] + name
	}
	return name
}

func stem(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, path.Ext(name))
}
