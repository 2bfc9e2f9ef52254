package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"docbatch/internal/batch"
	"docbatch/internal/executor"
	"docbatch/internal/tui"
	"docbatch/pkg/docutil"
)

type addFlags struct {
	name       string
	priority   string
	maxRetries int

	template     string
	saveTemplate string

	quality        string
	removeMetadata bool
	preserveICC    bool

	strategy      string
	outputName    string
	bookmarks     bool
	bookmarkLevel int

	splitMode    string
	pagesPerFile int
	ranges       string

	wmType    string
	content   string
	position  string
	opacity   float64
	rotation  float64
	scale     float64
	fontSize  int
	fontColor string
	x, y      float64

	language   string
	format     string
	accuracy   string
	autoRotate bool
	stripMeta  bool
	deskew     bool
}

var add addFlags

var addCmd = &cobra.Command{
	Use:   "add <compress|merge|split|watermark|ocr> <file>...",
	Short: "Queue a job over one or more files",
	Long: `Queue a job over one or more files.

With --template the job type and options come from a saved template and every
argument is a file. --save-template stores the queued job's shape under a name.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if add.template == "" && len(args) < 2 {
			return errors.New("add needs a job type and at least one file")
		}
		a, err := openApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		var job *batch.BatchJob
		if add.template != "" {
			tpl, err := a.templates().Get(ctx, add.template)
			if err != nil {
				return err
			}
			job, err = add.fromTemplate(tpl, args, time.Now())
			if err != nil {
				return err
			}
		} else {
			job, err = add.job(batch.JobType(args[0]), args[1:], time.Now())
			if err != nil {
				return err
			}
		}
		if res := executor.ValidateJob(job); !res.Valid {
			return fmt.Errorf("invalid job: %s", strings.Join(res.Errors, "; "))
		}

		if add.saveTemplate != "" {
			tpl := batch.NewTemplate(add.saveTemplate, job.Options.Clone(), job.Priority)
			if err := a.templates().Put(ctx, tpl); err != nil {
				return fmt.Errorf("save template: %w", err)
			}
			a.log.WithField("template", tpl.Name).Debug("template saved")
		}

		a.queue.AddJob(job)
		if err := a.save(ctx); err != nil {
			return err
		}
		a.log.WithField("job_id", job.ID).Debug("job added")
		stored, _ := a.queue.GetJob(job.ID)
		fmt.Fprintln(os.Stdout, tui.RenderJobs([]*batch.BatchJob{stored}))
		return nil
	},
}

// job builds a job from the flags.
func (f addFlags) job(t batch.JobType, paths []string, now time.Time) (*batch.BatchJob, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown job type %q", t)
	}
	priority := batch.JobPriority(f.priority)
	if !priority.Valid() {
		return nil, fmt.Errorf("unknown priority %q", f.priority)
	}
	op, err := f.operation(t)
	if err != nil {
		return nil, err
	}
	files, err := inputs(t, paths)
	if err != nil {
		return nil, err
	}
	return batch.NewJob(t, f.jobName(t, paths), files, batch.JobOptions{MaxRetries: f.maxRetries, Operation: op}, priority, now), nil
}

// fromTemplate builds a job over paths carrying tpl's options and priority.
func (f addFlags) fromTemplate(tpl *batch.Template, paths []string, now time.Time) (*batch.BatchJob, error) {
	files, err := inputs(tpl.Type, paths)
	if err != nil {
		return nil, err
	}
	return batch.NewJobFromTemplate(tpl, f.jobName(tpl.Type, paths), files, now), nil
}

func (f addFlags) jobName(t batch.JobType, paths []string) string {
	if f.name != "" {
		return f.name
	}
	return fmt.Sprintf("%s %d files", t, len(paths))
}

// inputs describes paths as job files. Paths that exist on the local
// filesystem are sized and sniffed; a document t cannot take is refused.
func inputs(t batch.JobType, paths []string) ([]*batch.BatchFile, error) {
	files := make([]*batch.BatchFile, len(paths))
	for i, p := range paths {
		var size int64
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			size = info.Size()
			if err := checkInput(t, p); err != nil {
				return nil, err
			}
		}
		files[i] = batch.NewFile(p, size)
	}
	return files, nil
}

func checkInput(t batch.JobType, path string) error {
	kind, err := docutil.SniffFile(path)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("sniff %s: %w", path, err)
	}
	if !executor.AcceptsInput(t, kind) {
		return fmt.Errorf("%s: %s jobs cannot take %s input", path, t, kind)
	}
	return nil
}

func (f addFlags) operation(t batch.JobType) (batch.Operation, error) {
	switch t {
	case batch.TypeCompress:
		return &batch.CompressOptions{
			Quality:        batch.CompressQuality(f.quality),
			RemoveMetadata: f.removeMetadata,
			PreserveICC:    f.preserveICC,
		}, nil
	case batch.TypeMerge:
		return &batch.MergeOptions{
			Strategy:      batch.MergeStrategy(f.strategy),
			OutputName:    f.outputName,
			AddBookmarks:  f.bookmarks,
			BookmarkLevel: f.bookmarkLevel,
		}, nil
	case batch.TypeSplit:
		opts := &batch.SplitOptions{Mode: batch.SplitMode(f.splitMode), PagesPerFile: f.pagesPerFile}
		if f.ranges != "" {
			ranges, err := parseRanges(f.ranges)
			if err != nil {
				return nil, err
			}
			opts.Ranges = ranges
		}
		return opts, nil
	case batch.TypeWatermark:
		opts := &batch.WatermarkOptions{
			Kind:      batch.WatermarkType(f.wmType),
			Content:   f.content,
			Position:  batch.WatermarkPosition(f.position),
			Opacity:   f.opacity,
			Rotation:  f.rotation,
			Scale:     f.scale,
			FontSize:  f.fontSize,
			FontColor: f.fontColor,
		}
		if opts.Position == batch.PositionCustom {
			opts.CustomPosition = &batch.Point{X: f.x, Y: f.y}
		}
		return opts, nil
	case batch.TypeOCR:
		return &batch.OCROptions{
			Language:     f.language,
			OutputFormat: batch.OCRFormat(f.format),
			Accuracy:     batch.OCRAccuracy(f.accuracy),
			Preprocessing: batch.OCRPreprocessing{
				AutoRotate:    f.autoRotate,
				StripMetadata: f.stripMeta,
				Deskew:        f.deskew,
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown job type %q", t)
}

// parseRanges reads "1-3,5,7-9" into inclusive page ranges.
func parseRanges(s string) ([]batch.PageRange, error) {
	var out []batch.PageRange
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, found := strings.Cut(part, "-")
		a, err := strconv.Atoi(strings.TrimSpace(from))
		if err != nil {
			return nil, fmt.Errorf("page range %q: %w", part, err)
		}
		b := a
		if found {
			if b, err = strconv.Atoi(strings.TrimSpace(to)); err != nil {
				return nil, fmt.Errorf("page range %q: %w", part, err)
			}
		}
		out = append(out, batch.PageRange{From: a, To: b})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no page ranges in %q", s)
	}
	return out, nil
}

func init() {
	f := addCmd.Flags()
	f.StringVarP(&add.name, "name", "n", "", "job name")
	f.StringVarP(&add.priority, "priority", "p", string(batch.PriorityNormal), "low, normal, high or critical")
	f.IntVar(&add.maxRetries, "max-retries", batch.DefaultMaxRetries, "retries allowed per file")
	f.StringVarP(&add.template, "template", "t", "", "take type, options and priority from a saved template")
	f.StringVar(&add.saveTemplate, "save-template", "", "save the job's options and priority as a template")

	f.StringVar(&add.quality, "quality", string(batch.QualityMedium), "compress: low, medium, high or maximum")
	f.BoolVar(&add.removeMetadata, "remove-metadata", false, "compress: drop document and image metadata")
	f.BoolVar(&add.preserveICC, "preserve-icc", false, "compress: keep ICC profiles when stripping images")

	f.StringVar(&add.strategy, "strategy", string(batch.MergeAppend), "merge: append, interleave or by-bookmark")
	f.StringVar(&add.outputName, "output-name", "merged", "merge: output file name")
	f.BoolVar(&add.bookmarks, "bookmarks", false, "merge: add a bookmark per input")
	f.IntVar(&add.bookmarkLevel, "bookmark-level", 1, "merge: bookmark depth, 1 to 3")

	f.StringVar(&add.splitMode, "mode", string(batch.SplitSingle), "split: single, every or ranges")
	f.IntVar(&add.pagesPerFile, "pages-per-file", 0, "split: pages per part in every mode")
	f.StringVar(&add.ranges, "ranges", "", `split: page ranges such as "1-3,5"`)

	f.StringVar(&add.wmType, "wm-type", string(batch.WatermarkText), "watermark: text or image")
	f.StringVar(&add.content, "content", "", "watermark: text with {filename} {date} {index} {total}, or image path")
	f.StringVar(&add.position, "position", string(batch.PositionCenter), "watermark: anchor or custom")
	f.Float64Var(&add.opacity, "opacity", 0.3, "watermark: opacity from 0 to 1")
	f.Float64Var(&add.rotation, "rotation", 0, "watermark: rotation in degrees")
	f.Float64Var(&add.scale, "scale", 1, "watermark: scale factor")
	f.IntVar(&add.fontSize, "font-size", 48, "watermark: font size")
	f.StringVar(&add.fontColor, "font-color", "#808080", "watermark: hex color")
	f.Float64Var(&add.x, "x", 0, "watermark: custom x offset")
	f.Float64Var(&add.y, "y", 0, "watermark: custom y offset")

	f.StringVar(&add.language, "lang", "eng", "ocr: tesseract languages joined by +")
	f.StringVar(&add.format, "format", string(batch.OCRText), "ocr: text, pdf or hocr")
	f.StringVar(&add.accuracy, "accuracy", string(batch.AccuracyBalanced), "ocr: fast, balanced or accurate")
	f.BoolVar(&add.autoRotate, "auto-rotate", false, "ocr: follow EXIF orientation")
	f.BoolVar(&add.stripMeta, "strip-metadata", false, "ocr: strip image metadata first")
	f.BoolVar(&add.deskew, "deskew", false, "ocr: detect page orientation")

	rootCmd.AddCommand(addCmd)
}
