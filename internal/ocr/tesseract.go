package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Tesseract runs the tesseract command line tool once per image.
type Tesseract struct {
	// Binary defaults to "tesseract" on PATH.
	Binary string
	// TempDir holds the per-call scratch directory. Empty means os.TempDir.
	TempDir string
}

var _ Recognizer = (*Tesseract)(nil)

func (t *Tesseract) binary() string {
	if t.Binary == "" {
		return "tesseract"
	}
	return t.Binary
}

// Available reports whether the binary can be found.
func (t *Tesseract) Available() bool {
	_, err := exec.LookPath(t.binary())
	return err == nil
}

func (t *Tesseract) Recognize(ctx context.Context, image []byte, req Request) ([]byte, error) {
	bin, err := exec.LookPath(t.binary())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	dir, err := os.MkdirTemp(t.TempDir, "docbatch-ocr-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "page")
	if err := os.WriteFile(input, image, 0o600); err != nil {
		return nil, err
	}
	outBase := filepath.Join(dir, "out")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, tesseractArgs(input, outBase, req)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("tesseract: %w", err)
		}
		return nil, fmt.Errorf("tesseract: %w: %s", err, lastLine(msg))
	}

	out, err := os.ReadFile(outBase + req.Format.Ext())
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("tesseract produced no %s output", req.Format)
	}
	return out, err
}

func tesseractArgs(input, outBase string, req Request) []string {
	lang := req.Language
	if lang == "" {
		lang = "eng"
	}
	args := []string{input, outBase, "-l", lang}

	switch req.Accuracy {
	case AccuracyFast:
		args = append(args, "--oem", "1")
	case AccuracyAccurate:
		args = append(args, "--oem", "2")
	default:
		args = append(args, "--oem", "3")
	}
	if req.DetectOrientation {
		args = append(args, "--psm", "1")
	} else {
		args = append(args, "--psm", "3")
	}

	switch req.Format {
	case FormatPDF:
		args = append(args, "pdf")
	case FormatHOCR:
		args = append(args, "hocr")
	}
	return args
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
