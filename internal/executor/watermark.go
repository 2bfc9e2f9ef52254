package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"docbatch/internal/batch"
	"docbatch/internal/pdf"
	"docbatch/pkg/docutil"
)

// Watermark stamps text or an image on every page of each pending PDF.
// Text may carry {filename}, {date}, {index} and {total}.
type Watermark struct{}

func (Watermark) Type() batch.JobType { return batch.TypeWatermark }

var anchors = map[batch.WatermarkPosition]pdf.Anchor{
	batch.PositionCenter:       pdf.AnchorCenter,
	batch.PositionTopLeft:      pdf.AnchorTopLeft,
	batch.PositionTopCenter:    pdf.AnchorTopCenter,
	batch.PositionTopRight:     pdf.AnchorTopRight,
	batch.PositionBottomLeft:   pdf.AnchorBottomLeft,
	batch.PositionBottomCenter: pdf.AnchorBottomCenter,
	batch.PositionBottomRight:  pdf.AnchorBottomRight,
	batch.PositionCustom:       pdf.AnchorBottomLeft,
}

func (Watermark) Process(ctx context.Context, job *batch.BatchJob, env Env) ([]batch.OutputFileInfo, error) {
	opts, err := optionsFor[*batch.WatermarkOptions](job, batch.TypeWatermark)
	if err != nil {
		return nil, err
	}
	if res := ValidateWatermarkOptions(opts); !res.Valid {
		return nil, invalid(res)
	}
	if len(batch.PendingFiles(job)) == 0 {
		return nil, ErrNoPendingFiles
	}
	if env.Documents == nil {
		return nil, fmt.Errorf("watermark: no document engine configured")
	}

	base := pdf.Watermark{
		Anchor:   anchors[opts.Position],
		Opacity:  opts.Opacity,
		Rotation: opts.Rotation,
		Scale:    opts.Scale,
		FontSize: opts.FontSize,
		Color:    opts.FontColor,
	}
	if opts.Position == batch.PositionCustom {
		base.OffsetX = opts.CustomPosition.X
		base.OffsetY = opts.CustomPosition.Y
	}
	if opts.Kind == batch.WatermarkImage {
		img, err := env.Files.ReadFile(ctx, opts.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: watermark image: %v", ErrInvalidOptions, err)
		}
		if kind := docutil.Detect(img); kind != docutil.KindPNG && kind != docutil.KindJPEG {
			return nil, fmt.Errorf("%w: watermark image must be PNG or JPEG, got %s", ErrInvalidOptions, kind)
		}
		base.Image = img
	}
	today := env.now().Format("2006-01-02")

	return eachFile(ctx, job, env, func(ctx context.Context, f *batch.BatchFile, index, total int, rep *reporter) ([]batch.OutputFileInfo, error) {
		doc, err := rep.read(ctx, f.Path)
		if err != nil {
			return nil, err
		}
		if kind := docutil.Detect(doc); kind != docutil.KindPDF {
			return nil, fmt.Errorf("%w: cannot watermark %s", ErrUnsupportedInput, kind)
		}

		wm := base
		if opts.Kind == batch.WatermarkText {
			wm.Text = expandTokens(opts.Content, map[string]string{
				"filename": stem(f.Name),
				"date":     today,
				"index":    strconv.Itoa(index + 1),
				"total":    strconv.Itoa(total),
			})
		}
		out, err := env.Documents.Watermark(ctx, doc, wm)
		if err != nil {
			return nil, err
		}
		info := batch.OutputFileInfo{FileID: f.ID, InputPath: f.Path, InputSize: int64(len(doc))}
		if n, err := env.Documents.PageCount(ctx, out); err == nil {
			info.PageCount = n
			rep.pages(n)
		}

		info.OutputPath = env.Files.OutputPath(f.Path, "_watermarked", "")
		if err := rep.write(ctx, info.OutputPath, out); err != nil {
			return nil, err
		}
		info.OutputSize = int64(len(out))
		return []batch.OutputFileInfo{info}, nil
	})
}

// expandTokens replaces {name} tokens with values. Unknown tokens stay.
func expandTokens(text string, values map[string]string) string {
	pairs := make([]string, 0, 2*len(values))
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
