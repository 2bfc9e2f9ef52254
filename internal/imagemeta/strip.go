package imagemeta

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"docbatch/pkg/docutil"
)

// Strip removes EXIF, XMP, Photoshop and text metadata from a JPEG or PNG and
// returns the cleaned image with the number of segments or chunks dropped.
// ICC colour profiles survive when preserveICC is set.
func Strip(data []byte, kind docutil.Kind, preserveICC bool) ([]byte, int, error) {
	var out bytes.Buffer
	out.Grow(len(data))

	var dropped int
	var err error
	switch kind {
	case docutil.KindJPEG:
		dropped, err = stripJPEG(bytes.NewReader(data), &out, preserveICC)
	case docutil.KindPNG:
		dropped, err = stripPNG(bytes.NewReader(data), &out, preserveICC)
	default:
		return nil, 0, fmt.Errorf("metadata stripping not supported for %s", kind)
	}
	if err != nil {
		return nil, 0, err
	}
	return out.Bytes(), dropped, nil
}

var (
	jpegExifHeader = []byte("Exif\x00\x00")
	jpegXmpHeader  = []byte("http://ns.adobe.com/xap/1.0/\x00")
	jpegPhotoshop  = []byte("Photoshop 3.0\x00")
	jpegICCHeader  = []byte("ICC_PROFILE\x00")
)

const (
	markerSOS  = 0xda
	markerEOI  = 0xd9
	markerTEM  = 0x01
	markerAPP1 = 0xe1
	markerAPP2 = 0xe2
	markerAPPD = 0xed
)

func stripJPEG(r io.Reader, w io.Writer, preserveICC bool) (int, error) {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)
	dropped := 0

	soi := make([]byte, 2)
	if _, err := io.ReadFull(br, soi); err != nil {
		return 0, err
	}
	if soi[0] != 0xff || soi[1] != 0xd8 {
		return 0, errors.New("invalid JPEG SOI")
	}
	if _, err := bw.Write(soi); err != nil {
		return 0, err
	}

	for {
		marker, err := nextJPEGMarker(br)
		if err != nil {
			return dropped, err
		}

		switch {
		case marker == markerEOI:
			if _, err := bw.Write([]byte{0xff, markerEOI}); err != nil {
				return dropped, err
			}
			return dropped, bw.Flush()
		case marker == markerSOS:
			// entropy-coded data runs to the end; copy it untouched
			if _, err := bw.Write([]byte{0xff, marker}); err != nil {
				return dropped, err
			}
			if _, err := io.Copy(bw, br); err != nil {
				return dropped, err
			}
			return dropped, bw.Flush()
		case marker == markerTEM || (marker >= 0xd0 && marker <= 0xd7):
			if _, err := bw.Write([]byte{0xff, marker}); err != nil {
				return dropped, err
			}
			continue
		}

		lenBuf := make([]byte, 2)
		if _, err := io.ReadFull(br, lenBuf); err != nil {
			return dropped, err
		}
		segLen := int(binary.BigEndian.Uint16(lenBuf))
		if segLen < 2 {
			return dropped, errors.New("invalid JPEG segment length")
		}
		payload := make([]byte, segLen-2)
		if _, err := io.ReadFull(br, payload); err != nil {
			return dropped, err
		}

		if dropJPEGSegment(marker, payload, preserveICC) {
			dropped++
			continue
		}
		for _, part := range [][]byte{{0xff, marker}, lenBuf, payload} {
			if _, err := bw.Write(part); err != nil {
				return dropped, err
			}
		}
	}
}

// nextJPEGMarker skips fill bytes and returns the next marker code.
func nextJPEGMarker(br *bufio.Reader) (byte, error) {
	b, err := br.ReadByte()
	if err != nil {
		return 0, err
	}
	for b != 0xff {
		if b, err = br.ReadByte(); err != nil {
			return 0, err
		}
	}
	for b == 0xff {
		if b, err = br.ReadByte(); err != nil {
			return 0, err
		}
	}
	return b, nil
}

func dropJPEGSegment(marker byte, payload []byte, preserveICC bool) bool {
	switch marker {
	case markerAPP1:
		return bytes.HasPrefix(payload, jpegExifHeader) || bytes.HasPrefix(payload, jpegXmpHeader)
	case markerAPPD:
		return bytes.HasPrefix(payload, jpegPhotoshop)
	case markerAPP2:
		return !preserveICC && bytes.HasPrefix(payload, jpegICCHeader)
	default:
		return false
	}
}

func stripPNG(r io.Reader, w io.Writer, preserveICC bool) (int, error) {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)
	dropped := 0

	if err := readPNGSignature(br); err != nil {
		return 0, err
	}
	if _, err := bw.Write(pngSignature); err != nil {
		return 0, err
	}

	for {
		c, err := readPNGChunk(br)
		if err != nil {
			if err == io.EOF {
				break
			}
			return dropped, err
		}

		if dropPNGChunk(c.name, preserveICC) {
			dropped++
			if _, err := io.CopyN(io.Discard, br, int64(c.length)+4); err != nil {
				return dropped, err
			}
			continue
		}

		if _, err := bw.Write(c.header[:]); err != nil {
			return dropped, err
		}
		if _, err := io.CopyN(bw, br, int64(c.length)+4); err != nil {
			return dropped, err
		}
		if c.name == "IEND" {
			break
		}
	}

	return dropped, bw.Flush()
}

func dropPNGChunk(name string, preserveICC bool) bool {
	switch name {
	case "tEXt", "zTXt", "iTXt", "eXIf", "tIME":
		return true
	case "iCCP":
		return !preserveICC
	default:
		return false
	}
}
