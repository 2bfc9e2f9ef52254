package executor

import (
	"fmt"
	"strings"

	"docbatch/internal/batch"
	"docbatch/pkg/docutil"
)

// ValidationResult lists every problem found in a set of options.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

func (r ValidationResult) Error() string {
	return strings.Join(r.Errors, "; ")
}

type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

func (p problems) result() ValidationResult {
	return ValidationResult{Valid: len(p) == 0, Errors: p}
}

const maxBookmarkLevel = 3

func ValidateCompressOptions(o *batch.CompressOptions) ValidationResult {
	var errs problems
	if o == nil {
		errs.addf("compress options are required")
		return errs.result()
	}
	switch o.Quality {
	case batch.QualityLow, batch.QualityMedium, batch.QualityHigh, batch.QualityMaximum:
	default:
		errs.addf("quality must be one of low, medium, high, maximum (got %q)", o.Quality)
	}
	return errs.result()
}

func ValidateMergeOptions(o *batch.MergeOptions) ValidationResult {
	var errs problems
	if o == nil {
		errs.addf("merge options are required")
		return errs.result()
	}
	switch o.Strategy {
	case batch.MergeAppend, batch.MergeInterleave, batch.MergeByBookmark:
	default:
		errs.addf("strategy must be one of append, interleave, by-bookmark (got %q)", o.Strategy)
	}
	name := strings.TrimSpace(o.OutputName)
	switch {
	case name == "":
		errs.addf("output name is required")
	case strings.ContainsAny(name, `/\`):
		errs.addf("output name must not contain path separators")
	}
	if o.BookmarkLevel < 1 || o.BookmarkLevel > maxBookmarkLevel {
		errs.addf("bookmark level must be between 1 and %d", maxBookmarkLevel)
	}
	return errs.result()
}

func ValidateSplitOptions(o *batch.SplitOptions) ValidationResult {
	var errs problems
	if o == nil {
		errs.addf("split options are required")
		return errs.result()
	}
	switch o.Mode {
	case batch.SplitSingle:
	case batch.SplitEvery:
		if o.PagesPerFile < 1 {
			errs.addf("pages per file must be at least 1")
		}
	case batch.SplitRanges:
		if len(o.Ranges) == 0 {
			errs.addf("at least one page range is required")
		}
		for i, r := range o.Ranges {
			if r.From < 1 || r.To < r.From {
				errs.addf("range %d (%d-%d) must satisfy 1 <= from <= to", i+1, r.From, r.To)
			}
		}
	default:
		errs.addf("mode must be one of single, every, ranges (got %q)", o.Mode)
	}
	return errs.result()
}

func ValidateWatermarkOptions(o *batch.WatermarkOptions) ValidationResult {
	var errs problems
	if o == nil {
		errs.addf("watermark options are required")
		return errs.result()
	}
	switch o.Kind {
	case batch.WatermarkText, batch.WatermarkImage:
	default:
		errs.addf("type must be text or image (got %q)", o.Kind)
	}
	if strings.TrimSpace(o.Content) == "" {
		if o.Kind == batch.WatermarkImage {
			errs.addf("image path is required")
		} else {
			errs.addf("watermark text is required")
		}
	}
	switch o.Position {
	case batch.PositionCenter, batch.PositionTopLeft, batch.PositionTopCenter, batch.PositionTopRight,
		batch.PositionBottomLeft, batch.PositionBottomCenter, batch.PositionBottomRight:
	case batch.PositionCustom:
		if o.CustomPosition == nil {
			errs.addf("custom position requires x and y")
		}
	default:
		errs.addf("unknown position %q", o.Position)
	}
	if o.Opacity < 0 || o.Opacity > 1 {
		errs.addf("opacity must be between 0 and 1")
	}
	if o.Rotation < -360 || o.Rotation > 360 {
		errs.addf("rotation must be between -360 and 360")
	}
	if o.Scale <= 0 {
		errs.addf("scale must be positive")
	}
	if o.Kind == batch.WatermarkText {
		if o.FontSize < 1 || o.FontSize > 500 {
			errs.addf("font size must be between 1 and 500")
		}
		if o.FontColor != "" && !isHexColor(o.FontColor) {
			errs.addf("font color must look like #rrggbb (got %q)", o.FontColor)
		}
	}
	return errs.result()
}

func isHexColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for _, c := range s[1:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

func ValidateOCROptions(o *batch.OCROptions) ValidationResult {
	var errs problems
	if o == nil {
		errs.addf("ocr options are required")
		return errs.result()
	}
	if o.Language == "" {
		errs.addf("language is required")
	} else {
		for _, lang := range strings.Split(o.Language, "+") {
			if !isLangCode(lang) {
				errs.addf("invalid language code %q", lang)
			}
		}
	}
	switch o.OutputFormat {
	case batch.OCRText, batch.OCRPDF, batch.OCRHOCR:
	default:
		errs.addf("output format must be one of text, pdf, hocr (got %q)", o.OutputFormat)
	}
	switch o.Accuracy {
	case batch.AccuracyFast, batch.AccuracyBalanced, batch.AccuracyAccurate:
	default:
		errs.addf("accuracy must be one of fast, balanced, accurate (got %q)", o.Accuracy)
	}
	return errs.result()
}

func isLangCode(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < 'a' || c > 'z') && c != '_' {
			return false
		}
	}
	return true
}

// ValidateJob checks that a job's options match its type and are valid.
func ValidateJob(job *batch.BatchJob) ValidationResult {
	var errs problems
	if !job.Type.Valid() {
		errs.addf("unknown job type %q", job.Type)
		return errs.result()
	}
	op := job.Options.Operation
	if op == nil {
		errs.addf("%s options are required", job.Type)
		return errs.result()
	}
	if op.Type() != job.Type {
		errs.addf("%s job carries %s options", job.Type, op.Type())
		return errs.result()
	}
	if job.Options.MaxRetries < 0 {
		errs.addf("max retries must not be negative")
	}

	var res ValidationResult
	switch o := op.(type) {
	case *batch.CompressOptions:
		res = ValidateCompressOptions(o)
	case *batch.MergeOptions:
		res = ValidateMergeOptions(o)
	case *batch.SplitOptions:
		res = ValidateSplitOptions(o)
	case *batch.WatermarkOptions:
		res = ValidateWatermarkOptions(o)
	case *batch.OCROptions:
		res = ValidateOCROptions(o)
	}
	errs = append(errs, res.Errors...)
	return errs.result()
}

// AcceptsInput reports whether a job of type t can process a document of
// kind k. It mirrors the checks each executor makes after reading a file.
func AcceptsInput(t batch.JobType, k docutil.Kind) bool {
	switch t {
	case batch.TypeCompress:
		return k == docutil.KindPDF || k == docutil.KindJPEG || k == docutil.KindPNG
	case batch.TypeMerge, batch.TypeSplit, batch.TypeWatermark:
		return k == docutil.KindPDF
	case batch.TypeOCR:
		return k.Image()
	}
	return false
}
