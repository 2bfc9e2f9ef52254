// Package ocr turns scanned page images into text, hOCR or searchable PDF.
package ocr

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no recognition backend is installed.
var ErrUnavailable = errors.New("ocr: recognizer unavailable")

type Format string

const (
	FormatText Format = "text"
	FormatPDF  Format = "pdf"
	FormatHOCR Format = "hocr"
)

// Ext returns the output file extension for f.
func (f Format) Ext() string {
	switch f {
	case FormatPDF:
		return ".pdf"
	case FormatHOCR:
		return ".hocr"
	default:
		return ".txt"
	}
}

type Accuracy string

const (
	AccuracyFast     Accuracy = "fast"
	AccuracyBalanced Accuracy = "balanced"
	AccuracyAccurate Accuracy = "accurate"
)

type Request struct {
	// Language is a tesseract language code, "eng" or "deu+eng".
	Language string
	Format   Format
	Accuracy Accuracy
	// DetectOrientation asks the backend to find page rotation and skew
	// before reading text.
	DetectOrientation bool
}

type Recognizer interface {
	Recognize(ctx context.Context, image []byte, req Request) ([]byte, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, image []byte, req Request) ([]byte, error)

func (f RecognizerFunc) Recognize(ctx context.Context, image []byte, req Request) ([]byte, error) {
	return f(ctx, image, req)
}
