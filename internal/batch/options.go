package batch

import (
	"encoding/json"
	"fmt"
)

// DefaultMaxRetries applies when a job is created without an explicit bound.
const DefaultMaxRetries = 3

// Operation is the per-type option set carried by a job. Exactly one of the
// option structs in this file implements it.
type Operation interface {
	Type() JobType
	clone() Operation
}

// JobOptions is a tagged union: shared settings plus the options of one
// operation.
type JobOptions struct {
	MaxRetries int
	Operation  Operation
}

type CompressQuality string

const (
	QualityLow     CompressQuality = "low"
	QualityMedium  CompressQuality = "medium"
	QualityHigh    CompressQuality = "high"
	QualityMaximum CompressQuality = "maximum"
)

type CompressOptions struct {
	Quality        CompressQuality `json:"quality"`
	RemoveMetadata bool            `json:"removeMetadata"`
	PreserveICC    bool            `json:"preserveIcc,omitempty"`
}

func (*CompressOptions) Type() JobType { return TypeCompress }

func (o *CompressOptions) clone() Operation {
	c := *o
	return &c
}

type MergeStrategy string

const (
	MergeAppend     MergeStrategy = "append"
	MergeInterleave MergeStrategy = "interleave"
	MergeByBookmark MergeStrategy = "by-bookmark"
)

type MergeOptions struct {
	Strategy      MergeStrategy `json:"strategy"`
	OutputName    string        `json:"outputName"`
	AddBookmarks  bool          `json:"addBookmarks"`
	BookmarkLevel int           `json:"bookmarkLevel"`
}

func (*MergeOptions) Type() JobType { return TypeMerge }

func (o *MergeOptions) clone() Operation {
	c := *o
	return &c
}

type SplitMode string

const (
	SplitSingle SplitMode = "single"
	SplitEvery  SplitMode = "every"
	SplitRanges SplitMode = "ranges"
)

// PageRange is an inclusive, 1-based page span.
type PageRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type SplitOptions struct {
	Mode         SplitMode   `json:"mode"`
	PagesPerFile int         `json:"pagesPerFile,omitempty"`
	Ranges       []PageRange `json:"ranges,omitempty"`
}

func (*SplitOptions) Type() JobType { return TypeSplit }

func (o *SplitOptions) clone() Operation {
	c := *o
	c.Ranges = append([]PageRange(nil), o.Ranges...)
	return &c
}

type WatermarkType string

const (
	WatermarkText  WatermarkType = "text"
	WatermarkImage WatermarkType = "image"
)

type WatermarkPosition string

const (
	PositionCenter       WatermarkPosition = "center"
	PositionTopLeft      WatermarkPosition = "top-left"
	PositionTopCenter    WatermarkPosition = "top-center"
	PositionTopRight     WatermarkPosition = "top-right"
	PositionBottomLeft   WatermarkPosition = "bottom-left"
	PositionBottomCenter WatermarkPosition = "bottom-center"
	PositionBottomRight  WatermarkPosition = "bottom-right"
	PositionCustom       WatermarkPosition = "custom"
)

// Point is an offset in PDF points from the bottom-left page corner.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type WatermarkOptions struct {
	Kind           WatermarkType     `json:"type"`
	Content        string            `json:"content"`
	Position       WatermarkPosition `json:"position"`
	Opacity        float64           `json:"opacity"`
	Rotation       float64           `json:"rotation"`
	Scale          float64           `json:"scale"`
	FontSize       int               `json:"fontSize"`
	FontColor      string            `json:"fontColor"`
	CustomPosition *Point            `json:"customPosition,omitempty"`
}

var _ Operation = (*WatermarkOptions)(nil)

func (*WatermarkOptions) Type() JobType { return TypeWatermark }

func (o *WatermarkOptions) clone() Operation {
	c := *o
	if o.CustomPosition != nil {
		p := *o.CustomPosition
		c.CustomPosition = &p
	}
	return &c
}

type OCRFormat string

const (
	OCRText OCRFormat = "text"
	OCRPDF  OCRFormat = "pdf"
	OCRHOCR OCRFormat = "hocr"
)

type OCRAccuracy string

const (
	AccuracyFast     OCRAccuracy = "fast"
	AccuracyBalanced OCRAccuracy = "balanced"
	AccuracyAccurate OCRAccuracy = "accurate"
)

type OCRPreprocessing struct {
	AutoRotate    bool `json:"autoRotate"`
	StripMetadata bool `json:"stripMetadata"`
	Deskew        bool `json:"deskew"`
}

type OCROptions struct {
	Language      string           `json:"language"`
	OutputFormat  OCRFormat        `json:"outputFormat"`
	Accuracy      OCRAccuracy      `json:"accuracy"`
	Preprocessing OCRPreprocessing `json:"preprocessing"`
}

func (*OCROptions) Type() JobType { return TypeOCR }

func (o *OCROptions) clone() Operation {
	c := *o
	return &c
}

// Clone returns a deep copy of the options.
func (o JobOptions) Clone() JobOptions {
	out := JobOptions{MaxRetries: o.MaxRetries}
	if o.Operation != nil {
		out.Operation = o.Operation.clone()
	}
	return out
}

type optionsEnvelope struct {
	MaxRetries int             `json:"maxRetries"`
	Type       JobType         `json:"type,omitempty"`
	Settings   json.RawMessage `json:"settings,omitempty"`
}

func (o JobOptions) MarshalJSON() ([]byte, error) {
	env := optionsEnvelope{MaxRetries: o.MaxRetries}
	if o.Operation != nil {
		settings, err := json.Marshal(o.Operation)
		if err != nil {
			return nil, err
		}
		env.Type = o.Operation.Type()
		env.Settings = settings
	}
	return json.Marshal(env)
}

func (o *JobOptions) UnmarshalJSON(data []byte) error {
	var env optionsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	o.MaxRetries = env.MaxRetries
	o.Operation = nil
	if env.Type == "" {
		return nil
	}

	op, err := NewOperation(env.Type)
	if err != nil {
		return err
	}
	if len(env.Settings) > 0 {
		if err := json.Unmarshal(env.Settings, op); err != nil {
			return fmt.Errorf("decode %s options: %w", env.Type, err)
		}
	}
	o.Operation = op
	return nil
}

// NewOperation returns zero-valued options for t.
func NewOperation(t JobType) (Operation, error) {
	switch t {
	case TypeCompress:
		return &CompressOptions{}, nil
	case TypeMerge:
		return &MergeOptions{}, nil
	case TypeSplit:
		return &SplitOptions{}, nil
	case TypeWatermark:
		return &WatermarkOptions{}, nil
	case TypeOCR:
		return &OCROptions{}, nil
	default:
		return nil, fmt.Errorf("unknown job type %q", t)
	}
}
