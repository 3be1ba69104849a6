package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/mosaicedu/notevault/internal/common"
	"github.com/mosaicedu/notevault/internal/compressx"
	"github.com/mosaicedu/notevault/internal/cryptox"
	"github.com/mosaicedu/notevault/internal/server/models"
)

// Open returns the plaintext of obj as a ReadCloser, reversing whatever
// transformations the object's metadata records. The plaintext checksum is
// re-verified on every read: buffered paths verify before returning,
// streaming paths turn a final mismatch into an error instead of a clean
// EOF. Callers cannot tell a buffered reader from a streaming one.
func (s *Store) Open(ctx context.Context, obj *models.StoredObject) (io.ReadCloser, error) {
	switch models.FormatOf(obj) {
	case models.FormatSealed, models.FormatSealedCompressed:
		return s.openSealed(obj)
	case models.FormatCompressed:
		return s.openCompressed(obj)
	case models.FormatPlain:
		return s.openPlain(obj)
	default:
		return s.openLegacy(ctx, obj)
	}
}

// plaintextBound caps how many bytes decompression may produce. The
// recorded size is exact for modern rows; legacy rows fall back to the
// store-wide object cap.
func (s *Store) plaintextBound(obj *models.StoredObject) int64 {
	if obj.SizeKnown {
		return obj.Size
	}
	return s.maxObjectSize
}

func (s *Store) readArtifact(obj *models.StoredObject) ([]byte, error) {
	data, err := os.ReadFile(s.path(obj.StorageName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact %s missing: %w", obj.StorageName, common.ErrStorage)
		}
		return nil, fmt.Errorf("%w: read artifact: %v", common.ErrStorage, err)
	}
	return data, nil
}

func (s *Store) openArtifact(obj *models.StoredObject) (*os.File, error) {
	f, err := os.Open(s.path(obj.StorageName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact %s missing: %w", obj.StorageName, common.ErrStorage)
		}
		return nil, fmt.Errorf("%w: open artifact: %v", common.ErrStorage, err)
	}
	return f, nil
}

// unseal strips the nonce prefix and authenticates the remainder.
// Decryption runs over the whole payload at once; sealed objects are
// bounded by the object cap, so the buffering has a known ceiling.
func (s *Store) unseal(obj *models.StoredObject, data []byte) ([]byte, error) {
	if len(s.key) == 0 {
		return nil, fmt.Errorf("no encryption key configured: %w", common.ErrCannotDecrypt)
	}
	if len(data) < cryptox.NonceSize+cryptox.Overhead {
		return nil, fmt.Errorf("sealed payload truncated: %w", common.ErrCannotDecrypt)
	}
	nonce := data[:cryptox.NonceSize]
	if len(obj.Nonce) > 0 && !bytes.Equal(nonce, obj.Nonce) {
		return nil, fmt.Errorf("nonce mismatch between metadata and artifact: %w", common.ErrCannotDecrypt)
	}
	plain, err := cryptox.Open(s.key, nonce, data[cryptox.NonceSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCannotDecrypt, err)
	}
	return plain, nil
}

// inflate reverses the compression stage. An undecodable frame means the
// stored bytes no longer reproduce the plaintext, which is an integrity
// failure, not a confidentiality one.
func (s *Store) inflate(frame []byte, bound int64) ([]byte, error) {
	plain, err := compressx.Decompress(bytes.NewReader(frame), bound)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, common.ErrChecksumMismatch)
	}
	return plain, nil
}

func verifyChecksum(plain []byte, wantHex string) error {
	sum := sha256.Sum256(plain)
	if hex.EncodeToString(sum[:]) != wantHex {
		return fmt.Errorf("stored payload does not match recorded digest: %w", common.ErrChecksumMismatch)
	}
	return nil
}

func (s *Store) openSealed(obj *models.StoredObject) (io.ReadCloser, error) {
	data, err := s.readArtifact(obj)
	if err != nil {
		return nil, err
	}
	plain, err := s.unseal(obj, data)
	if err != nil {
		return nil, err
	}
	if obj.Compressed {
		plain, err = s.inflate(plain, s.plaintextBound(obj))
		if err != nil {
			return nil, err
		}
	}
	if err := verifyChecksum(plain, obj.ChecksumSHA256); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(plain)), nil
}

func (s *Store) openCompressed(obj *models.StoredObject) (io.ReadCloser, error) {
	f, err := s.openArtifact(obj)
	if err != nil {
		return nil, err
	}
	dec, err := compressx.NewFrameReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%v: %w", err, common.ErrChecksumMismatch)
	}
	// Closing the decoder's reader releases its goroutines; the file is
	// closed separately.
	rc := dec.IOReadCloser()
	return newChecksumReader(frameErrorReader{rc}, obj.ChecksumSHA256, rc, f), nil
}

func (s *Store) openPlain(obj *models.StoredObject) (io.ReadCloser, error) {
	fi, err := os.Stat(s.path(obj.StorageName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact %s missing: %w", obj.StorageName, common.ErrStorage)
		}
		return nil, fmt.Errorf("%w: stat artifact: %v", common.ErrStorage, err)
	}

	if fi.Size() <= bufferThreshold {
		data, err := s.readArtifact(obj)
		if err != nil {
			return nil, err
		}
		if err := verifyChecksum(data, obj.ChecksumSHA256); err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}

	f, err := s.openArtifact(obj)
	if err != nil {
		return nil, err
	}
	return newChecksumReader(f, obj.ChecksumSHA256, f), nil
}

// openLegacy handles rows predating pipeline-flag recording. The layout is
// probed: decryption first (an authenticated success cannot be a false
// positive), then the zstd frame magic. Both probes are skipped naturally
// for payloads that were stored plain.
func (s *Store) openLegacy(ctx context.Context, obj *models.StoredObject) (io.ReadCloser, error) {
	data, err := s.readArtifact(obj)
	if err != nil {
		return nil, err
	}

	if len(s.key) > 0 && len(data) >= cryptox.NonceSize+cryptox.Overhead {
		if plain, oerr := cryptox.Open(s.key, data[:cryptox.NonceSize], data[cryptox.NonceSize:]); oerr == nil {
			s.log.Debug(ctx, "legacy probe: payload was encrypted", "object", obj.ID)
			data = plain
		}
	}

	if compressx.HasFrameMagic(data) {
		inflated, ierr := s.inflate(data, s.plaintextBound(obj))
		if ierr != nil {
			return nil, ierr
		}
		s.log.Debug(ctx, "legacy probe: payload was compressed", "object", obj.ID)
		data = inflated
	}

	if err := verifyChecksum(data, obj.ChecksumSHA256); err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// frameErrorReader maps mid-stream decode failures onto the integrity error
// class: a frame that stops decoding no longer reproduces the plaintext.
type frameErrorReader struct {
	r io.Reader
}

func (f frameErrorReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%v: %w", err, common.ErrChecksumMismatch)
	}
	return n, err
}

// checksumReader re-hashes plaintext as it streams and refuses to end the
// stream cleanly when the digest disagrees with the recorded one. Callers
// that drain the reader are guaranteed to have seen either the original
// bytes or an error.
type checksumReader struct {
	r       io.Reader
	hash    hash.Hash
	want    string
	closers []io.Closer
	sticky  error
}

func newChecksumReader(r io.Reader, wantHex string, closers ...io.Closer) *checksumReader {
	return &checksumReader{r: r, hash: sha256.New(), want: wantHex, closers: closers}
}

func (c *checksumReader) Read(p []byte) (int, error) {
	if c.sticky != nil {
		return 0, c.sticky
	}
	n, err := c.r.Read(p)
	if n > 0 {
		c.hash.Write(p[:n])
	}
	if err == io.EOF {
		if hex.EncodeToString(c.hash.Sum(nil)) != c.want {
			c.sticky = fmt.Errorf("stored payload does not match recorded digest: %w", common.ErrChecksumMismatch)
			return n, c.sticky
		}
		c.sticky = io.EOF
	}
	return n, err
}

func (c *checksumReader) Close() error {
	var first error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
