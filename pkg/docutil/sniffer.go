// Package docutil identifies input documents by their leading bytes.
package docutil

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// Kind identifies a supported document type.
type Kind int

const (
	KindUnknown Kind = iota
	KindPDF
	KindJPEG
	KindPNG
	KindTIFF
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindJPEG:
		return "jpeg"
	case KindPNG:
		return "png"
	case KindTIFF:
		return "tiff"
	default:
		return "unknown"
	}
}

// Image reports whether k is a raster image format.
func (k Kind) Image() bool {
	return k == KindJPEG || k == KindPNG || k == KindTIFF
}

// Ext returns the canonical file extension for k, with the leading dot.
func (k Kind) Ext() string {
	switch k {
	case KindPDF:
		return ".pdf"
	case KindJPEG:
		return ".jpg"
	case KindPNG:
		return ".png"
	case KindTIFF:
		return ".tif"
	default:
		return ""
	}
}

var (
	pdfSig    = []byte("%PDF-")
	pngSig    = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	jpegSig   = []byte{0xff, 0xd8, 0xff}
	tiffSigLE = []byte{0x49, 0x49, 0x2a, 0x00}
	tiffSigBE = []byte{0x4d, 0x4d, 0x00, 0x2a}
)

// HeaderSize is the number of leading bytes DetectHeader needs.
const HeaderSize = 8

// DetectHeader inspects the first 8 bytes of a file for known signatures.
func DetectHeader(header []byte) (Kind, error) {
	if len(header) < HeaderSize {
		return KindUnknown, errors.New("header too short")
	}
	return Detect(header), nil
}

// Detect classifies data by prefix. Short or unrecognised input is
// KindUnknown.
func Detect(data []byte) Kind {
	switch {
	case bytes.HasPrefix(data, pdfSig):
		return KindPDF
	case bytes.HasPrefix(data, jpegSig):
		return KindJPEG
	case bytes.HasPrefix(data, pngSig):
		return KindPNG
	case bytes.HasPrefix(data, tiffSigLE), bytes.HasPrefix(data, tiffSigBE):
		return KindTIFF
	default:
		return KindUnknown
	}
}

// SniffFile reads the first 8 bytes of a file to determine its type.
func SniffFile(path string) (Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return KindUnknown, err
	}
	defer f.Close()

	return SniffReader(f)
}

// SniffReader reads the first 8 bytes from r and determines its type.
func SniffReader(r io.Reader) (Kind, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return KindUnknown, err
	}

	return DetectHeader(header)
}
