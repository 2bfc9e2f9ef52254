// Package imagemeta reads and removes metadata from scanned-page images.
package imagemeta

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"

	"docbatch/pkg/docutil"
)

// Analysis summarises the metadata found in one image.
type Analysis struct {
	// Tags is the number of EXIF tags (JPEG, TIFF) or metadata chunks (PNG).
	Tags         int
	GPSCount     int
	SerialCount  int
	HasModel     bool
	HasTimestamp bool
	// Orientation is the EXIF orientation, 1-8, or 0 when absent.
	Orientation int
}

// Categories names the kinds of identifying metadata present.
func (a Analysis) Categories() []string {
	cats := []string{}
	if a.GPSCount > 0 {
		cats = append(cats, "GPS")
	}
	if a.HasModel {
		cats = append(cats, "Device Model")
	}
	if a.HasTimestamp {
		cats = append(cats, "Timestamp")
	}
	return cats
}

// Rotation returns the clockwise rotation in degrees that makes the image
// upright according to its orientation tag. Mirrored orientations report the
// rotation part only.
func (a Analysis) Rotation() int {
	switch a.Orientation {
	case 3, 4:
		return 180
	case 5, 6:
		return 90
	case 7, 8:
		return 270
	default:
		return 0
	}
}

// Analyze inspects data as an image of the given kind.
func Analyze(data []byte, kind docutil.Kind) (Analysis, error) {
	switch kind {
	case docutil.KindJPEG, docutil.KindTIFF:
		return analyzeExif(data)
	case docutil.KindPNG:
		return scanPNG(bytes.NewReader(data))
	default:
		return Analysis{}, fmt.Errorf("metadata analysis not supported for %s", kind)
	}
}

func analyzeExif(data []byte) (Analysis, error) {
	analysis := Analysis{}

	raw, err := exif.SearchAndExtractExif(data)
	if err != nil {
		if isNoExif(err) {
			return analysis, nil
		}
		return analysis, err
	}
	tags, _, err := exif.GetFlatExifData(raw, nil)
	if err != nil {
		return analysis, fmt.Errorf("read exif: %w", err)
	}

	for _, tag := range tags {
		analysis.Tags++
		name := tag.TagName

		switch {
		case strings.HasPrefix(name, "GPS") || strings.Contains(tag.IfdPath, "GPS"):
			analysis.GPSCount++
		case name == "Model" || name == "CameraModelName":
			analysis.HasModel = true
		case name == "DateTimeOriginal" || name == "DateTimeDigitized" || name == "DateTime":
			analysis.HasTimestamp = true
		case name == "Orientation":
			analysis.Orientation = orientationValue(tag.Value)
		}
		if strings.Contains(strings.ToLower(name), "serial") {
			analysis.SerialCount++
		}
	}

	return analysis, nil
}

func orientationValue(v interface{}) int {
	var o int
	switch val := v.(type) {
	case []uint16:
		if len(val) > 0 {
			o = int(val[0])
		}
	case uint16:
		o = int(val)
	case []uint32:
		if len(val) > 0 {
			o = int(val[0])
		}
	}
	if o < 1 || o > 8 {
		return 0
	}
	return o
}

func isNoExif(err error) bool {
	if errors.Is(err, exif.ErrNoExif) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no exif")
}
