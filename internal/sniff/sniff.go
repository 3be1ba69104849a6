// Package sniff implements lightweight content-type detection over the
// leading bytes of an object. The result is advisory metadata: it is stored
// alongside the object and checked against the service allow-list, but the
// payload itself is never altered based on it.
package sniff

import (
	"bytes"
	"strings"
)

// Limit is how many leading plaintext bytes the writer captures for
// detection. Detection never needs more.
const Limit = 512

// textProbeLimit bounds the printable-ASCII scan.
const textProbeLimit = 128

var (
	pdfMagic  = []byte("%PDF")
	pngMagic  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	jpegMagic = []byte{0xff, 0xd8}
	gifMagic  = []byte("GIF8")
)

// allowedPrefixes is the MIME allow-list enforced at commit time. Detected
// types outside it are refused storage.
var allowedPrefixes = []string{"image/", "text/", "application/pdf"}

// ContentType detects a MIME type from the first bytes of a payload.
// Unrecognized binary data reports application/octet-stream; an empty
// payload counts as text.
func ContentType(prefix []byte) string {
	switch {
	case bytes.HasPrefix(prefix, pdfMagic):
		return "application/pdf"
	case bytes.HasPrefix(prefix, pngMagic):
		return "image/png"
	case bytes.HasPrefix(prefix, jpegMagic):
		return "image/jpeg"
	case bytes.HasPrefix(prefix, gifMagic):
		return "image/gif"
	}

	if isPrintableASCII(prefix) {
		return "text/plain"
	}

	return "application/octet-stream"
}

// IsImage reports whether ct names an image type. Image payloads skip the
// compression stage: their containers are already entropy-coded.
func IsImage(ct string) bool {
	return strings.HasPrefix(ct, "image/")
}

// Allowed reports whether a detected type may be stored.
func Allowed(ct string) bool {
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(ct, p) {
			return true
		}
	}
	return false
}

// isPrintableASCII checks the first textProbeLimit bytes for printable ASCII
// plus TAB/LF/CR. Multi-byte encodings intentionally fail this probe and
// fall through to application/octet-stream.
func isPrintableASCII(b []byte) bool {
	if len(b) > textProbeLimit {
		b = b[:textProbeLimit]
	}
	for _, c := range b {
		if c >= 32 && c <= 126 {
			continue
		}
		if c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		return false
	}
	return true
}
