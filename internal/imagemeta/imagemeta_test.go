package imagemeta

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"docbatch/pkg/docutil"
)

func TestAnalyzeStripJPEG(t *testing.T) {
	src := buildJPEGWithExif(6)

	before, err := Analyze(src, docutil.KindJPEG)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !before.HasModel || !before.HasTimestamp {
		t.Fatalf("expected model and timestamp, got: %#v", before)
	}
	if before.Orientation != 6 || before.Rotation() != 90 {
		t.Fatalf("orientation = %d rotation = %d, want 6/90", before.Orientation, before.Rotation())
	}
	if before.Tags != 3 {
		t.Fatalf("tags = %d, want 3", before.Tags)
	}

	cleaned, dropped, err := Strip(src, docutil.KindJPEG, false)
	if err != nil {
		t.Fatalf("strip: %v", err)
	}
	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
	if len(cleaned) >= len(src) {
		t.Fatalf("cleaned image not smaller: %d >= %d", len(cleaned), len(src))
	}

	after, err := Analyze(cleaned, docutil.KindJPEG)
	if err != nil {
		t.Fatalf("analyze cleaned: %v", err)
	}
	if len(after.Categories()) != 0 || after.Tags != 0 {
		t.Fatalf("expected no metadata after strip, got: %#v", after)
	}
}

func TestAnalyzeEncodedJPEG(t *testing.T) {
	var enc bytes.Buffer
	if err := jpeg.Encode(&enc, image.NewGray(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	src := withApp1(enc.Bytes(), buildExifTIFF(8))

	a, err := Analyze(src, docutil.KindJPEG)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if a.Tags != 3 || !a.HasModel || a.Orientation != 8 || a.Rotation() != 270 {
		t.Fatalf("analysis = %#v", a)
	}

	plain, err := Analyze(enc.Bytes(), docutil.KindJPEG)
	if err != nil || plain.Tags != 0 {
		t.Fatalf("plain jpeg: %#v, %v", plain, err)
	}
}

func TestAnalyzeStripPNG(t *testing.T) {
	src, err := buildPNGWithMetadata()
	if err != nil {
		t.Fatalf("build PNG: %v", err)
	}

	before, err := Analyze(src, docutil.KindPNG)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !before.HasModel || !before.HasTimestamp || before.Tags != 3 {
		t.Fatalf("unexpected analysis: %#v", before)
	}

	cleaned, dropped, err := Strip(src, docutil.KindPNG, false)
	if err != nil {
		t.Fatalf("strip: %v", err)
	}
	if dropped != 3 {
		t.Fatalf("dropped = %d, want 3", dropped)
	}
	if _, err := png.Decode(bytes.NewReader(cleaned)); err != nil {
		t.Fatalf("cleaned PNG does not decode: %v", err)
	}

	after, err := Analyze(cleaned, docutil.KindPNG)
	if err != nil {
		t.Fatalf("analyze cleaned: %v", err)
	}
	if len(after.Categories()) != 0 || after.Tags != 0 {
		t.Fatalf("expected no metadata after strip, got: %#v", after)
	}
}

func TestStripKeepsICCWhenAsked(t *testing.T) {
	icc := append([]byte("ICC_PROFILE\x00"), 1, 1, 0, 0)
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xd8, 0xff, 0xe2})
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(icc)+2))
	buf.Write(icc)
	buf.Write([]byte{0xff, 0xd9})

	kept, dropped, err := Strip(buf.Bytes(), docutil.KindJPEG, true)
	if err != nil || dropped != 0 || !bytes.Equal(kept, buf.Bytes()) {
		t.Fatalf("preserveICC: dropped=%d err=%v", dropped, err)
	}
	_, dropped, err = Strip(buf.Bytes(), docutil.KindJPEG, false)
	if err != nil || dropped != 1 {
		t.Fatalf("strip ICC: dropped=%d err=%v", dropped, err)
	}
}

func TestStripRejectsTIFF(t *testing.T) {
	if _, _, err := Strip(buildExifTIFF(1), docutil.KindTIFF, false); err == nil {
		t.Fatalf("expected error for TIFF")
	}
}

func buildJPEGWithExif(orientation uint16) []byte {
	exifData := buildExifTIFF(orientation)
	exif := append([]byte("Exif\x00\x00"), exifData...)

	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xd8})
	buf.Write([]byte{0xff, 0xe1})
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(exif)+2))
	buf.Write(exif)
	buf.Write([]byte{0xff, 0xd9})
	return buf.Bytes()
}

// withApp1 inserts an EXIF APP1 segment right after the SOI marker.
func withApp1(jpg, tiff []byte) []byte {
	payload := append([]byte("Exif\x00\x00"), tiff...)
	var buf bytes.Buffer
	buf.Write(jpg[:2])
	buf.Write([]byte{0xff, 0xe1})
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(payload)+2))
	buf.Write(payload)
	buf.Write(jpg[2:])
	return buf.Bytes()
}

// buildExifTIFF writes a little-endian IFD0 with Model, Orientation and
// DateTime.
func buildExifTIFF(orientation uint16) []byte {
	const dataStart = 8 + 2 + 3*12 + 4

	var tiff bytes.Buffer
	le := binary.LittleEndian
	tiff.Write([]byte{0x49, 0x49, 0x2a, 0x00})
	_ = binary.Write(&tiff, le, uint32(8))
	_ = binary.Write(&tiff, le, uint16(3))

	_ = binary.Write(&tiff, le, uint16(0x0110))
	_ = binary.Write(&tiff, le, uint16(2))
	_ = binary.Write(&tiff, le, uint32(8))
	_ = binary.Write(&tiff, le, uint32(dataStart))

	_ = binary.Write(&tiff, le, uint16(0x0112))
	_ = binary.Write(&tiff, le, uint16(3))
	_ = binary.Write(&tiff, le, uint32(1))
	_ = binary.Write(&tiff, le, orientation)
	_ = binary.Write(&tiff, le, uint16(0))

	_ = binary.Write(&tiff, le, uint16(0x0132))
	_ = binary.Write(&tiff, le, uint16(2))
	_ = binary.Write(&tiff, le, uint32(20))
	_ = binary.Write(&tiff, le, uint32(dataStart+8))

	_ = binary.Write(&tiff, le, uint32(0))
	tiff.Write([]byte("TestCam\x00"))
	tiff.Write([]byte("2024:01:02 03:04:05\x00"))
	return tiff.Bytes()
}

func buildPNGWithMetadata() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 0xff, A: 0xff})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	data := buf.Bytes()

	textChunk := buildPNGChunk("tEXt", []byte("Model\x00TestCam"))
	timeChunk := buildPNGChunk("tIME", []byte{0x07, 0xE8, 0x01, 0x02, 0x03, 0x04, 0x05})
	exifChunk := buildPNGChunk("eXIf", buildExifTIFF(1))

	insertAt := len(data) - 12
	out := append([]byte{}, data[:insertAt]...)
	out = append(out, textChunk...)
	out = append(out, timeChunk...)
	out = append(out, exifChunk...)
	out = append(out, data[insertAt:]...)
	return out, nil
}

func buildPNGChunk(chunkType string, data []byte) []byte {
	chunk := make([]byte, 8, 12+len(data))
	binary.BigEndian.PutUint32(chunk[:4], uint32(len(data)))
	copy(chunk[4:], chunkType)
	chunk = append(chunk, data...)
	crc := crc32.ChecksumIEEE(chunk[4:])
	return binary.BigEndian.AppendUint32(chunk, crc)
}
