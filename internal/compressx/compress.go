// Package compressx provides tiny zstd helpers shared by the object
// pipeline: stream writer/reader construction with a numeric level knob,
// frame detection for stored payloads, and bounded decompression.
package compressx

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// frameMagic starts every zstd frame (RFC 8878). Stored compressed payloads
// are bare zstd frames, so this is also how legacy rows are probed.
var frameMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// NewFrameWriter returns a zstd stream encoder writing one frame to w.
// The level is on the zstd 1–22 scale; out-of-range values are clamped by
// the codec. The caller must Close the encoder to flush the frame.
func NewFrameWriter(w io.Writer, level int) (*zstd.Encoder, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	return enc, nil
}

// NewFrameReader returns a zstd stream decoder over r. The caller must call
// Close when done to release decoder resources.
func NewFrameReader(r io.Reader) (*zstd.Decoder, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return dec, nil
}

// HasFrameMagic reports whether prefix starts with the zstd frame magic.
func HasFrameMagic(prefix []byte) bool {
	return len(prefix) >= len(frameMagic) && bytes.Equal(prefix[:len(frameMagic)], frameMagic)
}

// Decompress inflates a zstd frame from r, refusing to produce more than max
// bytes. The cap bounds memory on corrupted or hostile frames whose declared
// content size cannot be trusted.
func Decompress(r io.Reader, max int64) ([]byte, error) {
	dec, err := NewFrameReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(dec, max+1))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if n > max {
		return nil, fmt.Errorf("zstd decompress: payload exceeds %d bytes", max)
	}

	return buf.Bytes(), nil
}
