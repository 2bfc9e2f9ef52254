// Package pdfcpu implements pdf.Engine on top of github.com/pdfcpu/pdfcpu.
package pdfcpu

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfc "github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"docbatch/internal/pdf"
)

type Engine struct {
	// Font is used for text watermarks. Defaults to Helvetica.
	Font string
}

var _ pdf.Engine = (*Engine)(nil)

func New() *Engine {
	return &Engine{Font: "Helvetica"}
}

func (e *Engine) conf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func (e *Engine) PageCount(ctx context.Context, doc []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := api.PageCount(bytes.NewReader(doc), e.conf())
	if err != nil {
		return 0, wrap("page count", err)
	}
	return n, nil
}

func (e *Engine) Optimize(ctx context.Context, doc []byte, opts pdf.OptimizeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conf := e.conf()
	switch opts.Level {
	case pdf.LevelLow:
		conf.WriteObjectStream = false
		conf.WriteXRefStream = false
	case pdf.LevelMaximum:
		conf.OptimizeDuplicateContentStreams = true
	}

	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(doc), &out, conf); err != nil {
		return nil, wrap("optimize", err)
	}
	if !opts.RemoveMetadata {
		return out.Bytes(), nil
	}

	var stripped bytes.Buffer
	if err := api.RemoveProperties(bytes.NewReader(out.Bytes()), &stripped, nil, e.conf()); err != nil {
		return nil, wrap("remove properties", err)
	}
	return stripped.Bytes(), nil
}

func (e *Engine) Merge(ctx context.Context, docs [][]byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	readers := make([]io.ReadSeeker, len(docs))
	for i, d := range docs {
		readers[i] = bytes.NewReader(d)
	}
	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, e.conf()); err != nil {
		return nil, wrap("merge", err)
	}
	return out.Bytes(), nil
}

func (e *Engine) SelectPages(ctx context.Context, doc []byte, pages []int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("pdfcpu: no pages selected")
	}
	selected := make([]string, len(pages))
	for i, p := range pages {
		selected[i] = strconv.Itoa(p)
	}
	var out bytes.Buffer
	if err := api.Collect(bytes.NewReader(doc), &out, selected, e.conf()); err != nil {
		return nil, wrap("collect", err)
	}
	return out.Bytes(), nil
}

func (e *Engine) AddBookmarks(ctx context.Context, doc []byte, marks []pdf.Bookmark) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := api.AddBookmarks(bytes.NewReader(doc), &out, outline(marks), true, e.conf()); err != nil {
		return nil, wrap("bookmarks", err)
	}
	return out.Bytes(), nil
}

// outline nests every entry deeper than level 1 under the closest preceding
// level-1 entry.
func outline(marks []pdf.Bookmark) []pdfc.Bookmark {
	var roots []pdfc.Bookmark
	for _, m := range marks {
		bm := pdfc.Bookmark{Title: m.Title, PageFrom: m.Page}
		if m.Level > 1 && len(roots) > 0 {
			last := &roots[len(roots)-1]
			last.Kids = append(last.Kids, bm)
			continue
		}
		roots = append(roots, bm)
	}
	return roots
}

func (e *Engine) Watermark(ctx context.Context, doc []byte, wm pdf.Watermark) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		stamp *model.Watermark
		err   error
	)
	if len(wm.Image) > 0 {
		stamp, err = api.ImageWatermarkForReader(bytes.NewReader(wm.Image), e.description(wm, false), true, false, types.POINTS)
	} else {
		stamp, err = api.TextWatermark(wm.Text, e.description(wm, true), true, false, types.POINTS)
	}
	if err != nil {
		return nil, wrap("watermark", err)
	}

	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(doc), &out, nil, stamp, e.conf()); err != nil {
		return nil, wrap("watermark", err)
	}
	return out.Bytes(), nil
}

// description renders wm in pdfcpu's watermark description syntax.
func (e *Engine) description(wm pdf.Watermark, text bool) string {
	parts := []string{
		"position:" + string(anchorOrCenter(wm.Anchor)),
		fmt.Sprintf("offset:%g %g", wm.OffsetX, wm.OffsetY),
		"rotation:" + strconv.FormatFloat(wm.Rotation, 'f', -1, 64),
		"opacity:" + strconv.FormatFloat(wm.Opacity, 'f', -1, 64),
	}
	if wm.Scale > 0 && wm.Scale <= 1 {
		parts = append(parts, "scalefactor:"+strconv.FormatFloat(wm.Scale, 'f', -1, 64)+" rel")
	} else if wm.Scale > 1 {
		parts = append(parts, "scalefactor:"+strconv.FormatFloat(wm.Scale, 'f', -1, 64)+" abs")
	}
	if text {
		font := e.Font
		if font == "" {
			font = "Helvetica"
		}
		parts = append(parts, "fontname:"+font)
		if wm.FontSize > 0 {
			parts = append(parts, "points:"+strconv.Itoa(wm.FontSize))
		}
		if wm.Color != "" {
			parts = append(parts, "fillcolor:"+wm.Color)
		}
	}
	return strings.Join(parts, ", ")
}

func anchorOrCenter(a pdf.Anchor) pdf.Anchor {
	if a == "" {
		return pdf.AnchorCenter
	}
	return a
}

func wrap(op string, err error) error {
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "encrypt") || strings.Contains(lower, "password") {
		return fmt.Errorf("pdfcpu %s: %w", op, pdf.ErrEncrypted)
	}
	return fmt.Errorf("pdfcpu %s: %w", op, err)
}
