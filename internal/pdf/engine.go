// Package pdf defines the document operations executors need. Documents
// travel as whole byte slices; implementations must not retain them.
package pdf

import (
	"context"
	"errors"
)

// ErrEncrypted is returned for documents the engine cannot open without a
// password.
var ErrEncrypted = errors.New("pdf: document is encrypted")

type Level string

const (
	LevelLow     Level = "low"
	LevelMedium  Level = "medium"
	LevelHigh    Level = "high"
	LevelMaximum Level = "maximum"
)

type OptimizeOptions struct {
	Level          Level
	RemoveMetadata bool
}

// Bookmark is a top-level outline entry pointing at a 1-based page.
type Bookmark struct {
	Title string
	Page  int
	Level int
}

type Anchor string

const (
	AnchorCenter       Anchor = "c"
	AnchorTopLeft      Anchor = "tl"
	AnchorTopCenter    Anchor = "tc"
	AnchorTopRight     Anchor = "tr"
	AnchorBottomLeft   Anchor = "bl"
	AnchorBottomCenter Anchor = "bc"
	AnchorBottomRight  Anchor = "br"
)

// Watermark is a stamp applied to every page. Exactly one of Text and Image
// is set.
type Watermark struct {
	Text     string
	Image    []byte
	Anchor   Anchor
	OffsetX  float64
	OffsetY  float64
	Opacity  float64
	Rotation float64
	Scale    float64
	FontSize int
	Color    string
}

type Engine interface {
	PageCount(ctx context.Context, doc []byte) (int, error)
	Optimize(ctx context.Context, doc []byte, opts OptimizeOptions) ([]byte, error)
	// Merge concatenates docs in order.
	Merge(ctx context.Context, docs [][]byte) ([]byte, error)
	// SelectPages builds a document from the given 1-based pages, in the
	// order listed. Pages may repeat.
	SelectPages(ctx context.Context, doc []byte, pages []int) ([]byte, error)
	AddBookmarks(ctx context.Context, doc []byte, marks []Bookmark) ([]byte, error)
	Watermark(ctx context.Context, doc []byte, wm Watermark) ([]byte, error)
}
