package imagemeta

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
)

var pngSignature = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}

// pngChunk is one chunk header; the body and CRC follow in the stream.
type pngChunk struct {
	length uint32
	name   string
	header [8]byte
}

func readPNGChunk(br *bufio.Reader) (pngChunk, error) {
	var c pngChunk
	if _, err := io.ReadFull(br, c.header[:]); err != nil {
		return c, err
	}
	c.length = binary.BigEndian.Uint32(c.header[:4])
	c.name = string(c.header[4:])
	return c, nil
}

func readPNGSignature(br *bufio.Reader) error {
	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(br, sig); err != nil {
		return err
	}
	if !bytes.Equal(sig, pngSignature) {
		return errors.New("invalid PNG signature")
	}
	return nil
}

func scanPNG(r io.Reader) (Analysis, error) {
	analysis := Analysis{}
	br := bufio.NewReader(r)
	if err := readPNGSignature(br); err != nil {
		return analysis, err
	}

	for {
		c, err := readPNGChunk(br)
		if err != nil {
			if err == io.EOF {
				return analysis, nil
			}
			return analysis, err
		}

		switch c.name {
		case "tEXt", "zTXt", "iTXt":
			analysis.Tags++
			data := make([]byte, c.length)
			if _, err := io.ReadFull(br, data); err != nil {
				return analysis, err
			}
			if _, err := br.Discard(4); err != nil {
				return analysis, err
			}
			if key := pngTextKey(data); key != "" {
				applyPNGKey(&analysis, key)
			}
			continue
		case "tIME":
			analysis.Tags++
			analysis.HasTimestamp = true
		case "eXIf":
			analysis.Tags++
		}

		if _, err := io.CopyN(io.Discard, br, int64(c.length)+4); err != nil {
			return analysis, err
		}
		if c.name == "IEND" {
			return analysis, nil
		}
	}
}

func pngTextKey(data []byte) string {
	idx := bytes.IndexByte(data, 0)
	if idx <= 0 {
		return ""
	}
	return string(data[:idx])
}

func applyPNGKey(analysis *Analysis, key string) {
	lower := strings.ToLower(key)
	if strings.Contains(lower, "gps") || strings.Contains(lower, "latitude") || strings.Contains(lower, "longitude") {
		analysis.GPSCount++
	}
	if strings.Contains(lower, "model") || strings.Contains(lower, "make") {
		analysis.HasModel = true
	}
	if strings.Contains(lower, "date") || strings.Contains(lower, "time") {
		analysis.HasTimestamp = true
	}
	if strings.Contains(lower, "serial") {
		analysis.SerialCount++
	}
}
