package executor

import (
	"context"
	"fmt"

	"docbatch/internal/batch"
	"docbatch/internal/imagemeta"
	"docbatch/internal/pdf"
	"docbatch/pkg/docutil"
)

// Compress rewrites PDFs through the document engine and strips metadata
// from scanned JPEG and PNG pages. Outputs carry the _compressed suffix.
type Compress struct{}

func (Compress) Type() batch.JobType { return batch.TypeCompress }

func (Compress) Process(ctx context.Context, job *batch.BatchJob, env Env) ([]batch.OutputFileInfo, error) {
	opts, err := optionsFor[*batch.CompressOptions](job, batch.TypeCompress)
	if err != nil {
		return nil, err
	}
	if res := ValidateCompressOptions(opts); !res.Valid {
		return nil, invalid(res)
	}

	return eachFile(ctx, job, env, func(ctx context.Context, f *batch.BatchFile, _, _ int, rep *reporter) ([]batch.OutputFileInfo, error) {
		data, err := rep.read(ctx, f.Path)
		if err != nil {
			return nil, err
		}

		info := batch.OutputFileInfo{FileID: f.ID, InputPath: f.Path, InputSize: int64(len(data))}
		var out []byte
		switch kind := docutil.Detect(data); kind {
		case docutil.KindPDF:
			if env.Documents == nil {
				return nil, fmt.Errorf("%w: no document engine configured", ErrUnsupportedInput)
			}
			out, err = env.Documents.Optimize(ctx, data, pdf.OptimizeOptions{
				Level:          pdf.Level(opts.Quality),
				RemoveMetadata: opts.RemoveMetadata,
			})
			if err != nil {
				return nil, err
			}
			if n, err := env.Documents.PageCount(ctx, out); err == nil {
				info.PageCount = n
			}
		case docutil.KindJPEG, docutil.KindPNG:
			out = data
			if opts.RemoveMetadata {
				removed, cleaned, err := stripImage(data, kind, opts.PreserveICC)
				if err != nil {
					return nil, err
				}
				out = cleaned
				info.MetadataRemoved = removed
			}
			info.PageCount = 1
		default:
			return nil, fmt.Errorf("%w: cannot compress %s", ErrUnsupportedInput, kind)
		}
		rep.pages(info.PageCount)

		info.OutputPath = env.Files.OutputPath(f.Path, "_compressed", "")
		if err := rep.write(ctx, info.OutputPath, out); err != nil {
			return nil, err
		}
		info.OutputSize = int64(len(out))
		return []batch.OutputFileInfo{info}, nil
	})
}

// stripImage removes metadata and returns how many tags went with it.
func stripImage(data []byte, kind docutil.Kind, preserveICC bool) (int, []byte, error) {
	cleaned, dropped, err := imagemeta.Strip(data, kind, preserveICC)
	if err != nil {
		return 0, nil, err
	}
	removed := dropped
	if a, err := imagemeta.Analyze(data, kind); err == nil && a.Tags > removed {
		removed = a.Tags
	}
	return removed, cleaned, nil
}
