package executor

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"docbatch/internal/batch"
	"docbatch/internal/imagemeta"
	"docbatch/internal/ocr"
	"docbatch/pkg/docutil"
)

// OCR recognises text on scanned page images. Output extension follows the
// requested format: .txt, .pdf or .hocr.
type OCR struct{}

func (OCR) Type() batch.JobType { return batch.TypeOCR }

func (OCR) Process(ctx context.Context, job *batch.BatchJob, env Env) ([]batch.OutputFileInfo, error) {
	opts, err := optionsFor[*batch.OCROptions](job, batch.TypeOCR)
	if err != nil {
		return nil, err
	}
	if res := ValidateOCROptions(opts); !res.Valid {
		return nil, invalid(res)
	}
	if len(batch.PendingFiles(job)) == 0 {
		return nil, ErrNoPendingFiles
	}
	if env.Recognizer == nil {
		return nil, ocr.ErrUnavailable
	}

	format := ocr.Format(opts.OutputFormat)
	return eachFile(ctx, job, env, func(ctx context.Context, f *batch.BatchFile, _, _ int, rep *reporter) ([]batch.OutputFileInfo, error) {
		img, err := rep.read(ctx, f.Path)
		if err != nil {
			return nil, err
		}
		kind := docutil.Detect(img)
		if !kind.Image() {
			return nil, fmt.Errorf("%w: ocr needs a scanned image, got %s", ErrUnsupportedInput, kind)
		}

		req := ocr.Request{
			Language:          opts.Language,
			Format:            format,
			Accuracy:          ocr.Accuracy(opts.Accuracy),
			DetectOrientation: opts.Preprocessing.Deskew,
		}
		info := batch.OutputFileInfo{FileID: f.ID, InputPath: f.Path, InputSize: int64(len(img)), PageCount: 1}

		if opts.Preprocessing.AutoRotate {
			if a, err := imagemeta.Analyze(img, kind); err == nil && a.Rotation() != 0 {
				req.DetectOrientation = true
				env.log().WithFields(logrus.Fields{"file": f.Name, "rotation": a.Rotation()}).Debug("page is rotated")
			}
		}
		if opts.Preprocessing.StripMetadata && (kind == docutil.KindJPEG || kind == docutil.KindPNG) {
			removed, cleaned, err := stripImage(img, kind, false)
			if err != nil {
				return nil, fmt.Errorf("preprocess: %w", err)
			}
			img = cleaned
			info.MetadataRemoved = removed
		}
		rep.within(bandRead, bandTransform, 0.25)

		out, err := env.Recognizer.Recognize(ctx, img, req)
		if err != nil {
			return nil, err
		}
		rep.pages(1)

		info.OutputPath = env.Files.OutputPath(f.Path, "_ocr", format.Ext())
		if err := rep.write(ctx, info.OutputPath, out); err != nil {
			return nil, err
		}
		info.OutputSize = int64(len(out))
		return []batch.OutputFileInfo{info}, nil
	})
}
