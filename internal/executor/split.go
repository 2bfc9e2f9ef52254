package executor

import (
	"context"
	"fmt"

	"docbatch/internal/batch"
	"docbatch/pkg/docutil"
)

// Split cuts every pending PDF into parts named <input>_part<N>.pdf.
type Split struct{}

func (Split) Type() batch.JobType { return batch.TypeSplit }

func (Split) Process(ctx context.Context, job *batch.BatchJob, env Env) ([]batch.OutputFileInfo, error) {
	opts, err := optionsFor[*batch.SplitOptions](job, batch.TypeSplit)
	if err != nil {
		return nil, err
	}
	if res := ValidateSplitOptions(opts); !res.Valid {
		return nil, invalid(res)
	}

	return eachFile(ctx, job, env, func(ctx context.Context, f *batch.BatchFile, _, _ int, rep *reporter) ([]batch.OutputFileInfo, error) {
		doc, err := rep.read(ctx, f.Path)
		if err != nil {
			return nil, err
		}
		if kind := docutil.Detect(doc); kind != docutil.KindPDF {
			return nil, fmt.Errorf("%w: cannot split %s", ErrUnsupportedInput, kind)
		}
		if env.Documents == nil {
			return nil, fmt.Errorf("%w: no document engine configured", ErrUnsupportedInput)
		}
		pages, err := env.Documents.PageCount(ctx, doc)
		if err != nil {
			return nil, err
		}
		rep.pages(pages)

		parts, err := splitPlan(opts, pages)
		if err != nil {
			return nil, err
		}

		outs := make([]batch.OutputFileInfo, 0, len(parts))
		for i, r := range parts {
			part, err := env.Documents.SelectPages(ctx, doc, pageSpan(r))
			if err != nil {
				return nil, fmt.Errorf("part %d: %w", i+1, err)
			}
			out := env.Files.OutputPath(f.Path, fmt.Sprintf("_part%d", i+1), ".pdf")
			if err := env.Files.WriteFile(ctx, out, part); err != nil {
				return nil, fmt.Errorf("part %d: %w", i+1, err)
			}
			outs = append(outs, batch.OutputFileInfo{
				FileID:     f.ID,
				InputPath:  f.Path,
				OutputPath: out,
				InputSize:  int64(len(doc)),
				OutputSize: int64(len(part)),
				PageCount:  r.To - r.From + 1,
			})
			rep.within(bandRead, bandTransform, float64(i+1)/float64(len(parts)))
		}
		return outs, nil
	})
}

// splitPlan turns the options into page ranges of a document with n pages.
func splitPlan(opts *batch.SplitOptions, n int) ([]batch.PageRange, error) {
	if n < 1 {
		return nil, fmt.Errorf("document has no pages")
	}
	var parts []batch.PageRange
	switch opts.Mode {
	case batch.SplitSingle:
		for p := 1; p <= n; p++ {
			parts = append(parts, batch.PageRange{From: p, To: p})
		}
	case batch.SplitEvery:
		for p := 1; p <= n; p += opts.PagesPerFile {
			parts = append(parts, batch.PageRange{From: p, To: min(p+opts.PagesPerFile-1, n)})
		}
	case batch.SplitRanges:
		for _, r := range opts.Ranges {
			if r.To > n {
				return nil, fmt.Errorf("range %d-%d exceeds the document's %d pages", r.From, r.To, n)
			}
			parts = append(parts, r)
		}
	default:
		return nil, fmt.Errorf("unknown split mode %q", opts.Mode)
	}
	return parts, nil
}

func pageSpan(r batch.PageRange) []int {
	pages := make([]int, 0, r.To-r.From+1)
	for p := r.From; p <= r.To; p++ {
		pages = append(pages, p)
	}
	return pages
}
