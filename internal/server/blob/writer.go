package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mosaicedu/notevault/internal/common"
	"github.com/mosaicedu/notevault/internal/compressx"
	"github.com/mosaicedu/notevault/internal/cryptox"
	"github.com/mosaicedu/notevault/internal/sniff"
)

// WriteResult describes a committed payload: facts about the plaintext and
// the transformations that were applied on the way to disk.
type WriteResult struct {
	StorageName    string
	Size           int64
	ContentType    string
	ChecksumSHA256 string
	Compressed     bool
	Encrypted      bool
	Nonce          []byte
}

// tempFile stages one write inside the payload directory, which keeps the
// final rename on a single filesystem. Exactly one of Commit or Discard
// ends a write; Discard after Commit is a no-op, so callers defer Discard
// unconditionally.
type tempFile struct {
	f         *os.File
	dir       string
	committed bool
}

func (s *Store) newTempFile() (*tempFile, error) {
	// CreateTemp opens with mode 0600, which is also the final mode.
	f, err := os.CreateTemp(s.dir, "upload-*.tmp")
	if err != nil {
		return nil, err
	}
	return &tempFile{f: f, dir: s.dir}, nil
}

func (t *tempFile) Write(p []byte) (int, error) {
	return t.f.Write(p)
}

// Size reports how many bytes are staged so far.
func (t *tempFile) Size() (int64, error) {
	fi, err := t.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// ReadAll rewinds the staging file and returns its full content.
func (t *tempFile) ReadAll() ([]byte, error) {
	if _, err := t.f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(t.f)
}

// Rewrite replaces the staged content with the given parts in order.
func (t *tempFile) Rewrite(parts ...[]byte) error {
	if err := t.f.Truncate(0); err != nil {
		return err
	}
	if _, err := t.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	for _, p := range parts {
		if _, err := t.f.Write(p); err != nil {
			return err
		}
	}
	return nil
}

// Commit makes the staged bytes durable under storageName: fsync, close,
// rename into place. The rename is the commit point; before it the object
// does not exist at any reachable name.
func (t *tempFile) Commit(storageName string) error {
	if err := t.f.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	name := t.f.Name()
	if err := t.f.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(name, filepath.Join(t.dir, storageName)); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	t.committed = true
	return nil
}

// Discard aborts the write and removes the staging file. Safe to call more
// than once and after Commit.
func (t *tempFile) Discard() {
	if t.committed {
		return
	}
	_ = t.f.Close()
	_ = os.Remove(t.f.Name())
}

// Write streams src through the configured pipeline into a staging file and
// atomically commits it under a random storage name with ext appended. The
// checksum and size in the result always describe the plaintext, whatever
// transformations were applied after it.
//
// On any error, including a canceled context, nothing remains on disk.
func (s *Store) Write(ctx context.Context, src io.Reader, ext string) (*WriteResult, error) {
	if strings.ContainsAny(ext, `/\`) {
		return nil, fmt.Errorf("%w: bad extension %q", common.ErrExtensionNotAllowed, ext)
	}

	t, err := s.newTempFile()
	if err != nil {
		return nil, fmt.Errorf("%w: create staging file: %v", common.ErrStorage, err)
	}
	defer t.Discard()

	hasher := sha256.New()
	var size int64

	// The sniff prefix is the first bytes of plaintext; it is shorter than
	// sniff.Limit only when the whole payload is.
	prefixBuf := make([]byte, sniff.Limit)
	pn, rerr := io.ReadFull(src, prefixBuf)
	if rerr != nil && rerr != io.EOF && rerr != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read source: %w", rerr)
	}
	prefix := prefixBuf[:pn]
	contentType := sniff.ContentType(prefix)

	size += int64(pn)
	if size > s.maxObjectSize {
		return nil, fmt.Errorf("payload exceeds %d bytes: %w", s.maxObjectSize, common.ErrObjectTooLarge)
	}
	hasher.Write(prefix)

	// raw retains the whole plaintext while it still fits one chunk, so a
	// compression attempt that did not pay off can be undone.
	raw := make([]byte, 0, common.ChunkSize)
	rawOK := true
	appendRaw := func(p []byte) {
		if !rawOK {
			return
		}
		if len(raw)+len(p) > common.ChunkSize {
			rawOK = false
			raw = nil
			return
		}
		raw = append(raw, p...)
	}

	compressed := false
	var sink io.Writer = t
	var enc io.WriteCloser
	closeEnc := func() error {
		if enc == nil {
			return nil
		}
		cerr := enc.Close()
		enc = nil
		return cerr
	}
	defer func() { _ = closeEnc() }()

	if s.compression && !sniff.IsImage(contentType) {
		fw, ferr := compressx.NewFrameWriter(t, s.zstdLevel)
		if ferr != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrStorage, ferr)
		}
		enc = fw
		sink = fw
		compressed = true
	}

	if len(prefix) > 0 {
		appendRaw(prefix)
		if _, werr := sink.Write(prefix); werr != nil {
			return nil, fmt.Errorf("%w: stage payload: %v", common.ErrStorage, werr)
		}
	}

	buf := make([]byte, common.ChunkSize)
	for rerr != io.EOF {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}

		var n int
		n, rerr = src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			size += int64(n)
			if size > s.maxObjectSize {
				// Abort without draining the rest of the source.
				return nil, fmt.Errorf("payload exceeds %d bytes: %w", s.maxObjectSize, common.ErrObjectTooLarge)
			}
			hasher.Write(chunk)
			appendRaw(chunk)
			if _, werr := sink.Write(chunk); werr != nil {
				return nil, fmt.Errorf("%w: stage payload: %v", common.ErrStorage, werr)
			}
		}
		if rerr != nil && rerr != io.EOF {
			return nil, fmt.Errorf("read source: %w", rerr)
		}
	}

	if cerr := closeEnc(); cerr != nil {
		return nil, fmt.Errorf("%w: close codec: %v", common.ErrStorage, cerr)
	}

	// Small payloads that the codec failed to shrink are stored raw.
	if compressed && rawOK {
		staged, serr := t.Size()
		if serr != nil {
			return nil, fmt.Errorf("%w: stat staging file: %v", common.ErrStorage, serr)
		}
		if staged >= size {
			if werr := t.Rewrite(raw); werr != nil {
				return nil, fmt.Errorf("%w: rewrite staging file: %v", common.ErrStorage, werr)
			}
			compressed = false
			s.log.Debug(ctx, "compression not favorable, storing raw", "size", size, "frame_size", staged)
		}
	}

	// The type gate runs before any name becomes reachable: a disallowed
	// payload must leave no trace.
	if !sniff.Allowed(contentType) {
		return nil, fmt.Errorf("%w: detected %s", common.ErrContentTypeNotAllowed, contentType)
	}

	encrypted := false
	var nonce []byte
	if len(s.key) > 0 {
		staged, rerr2 := t.ReadAll()
		if rerr2 != nil {
			return nil, fmt.Errorf("%w: reread staging file: %v", common.ErrStorage, rerr2)
		}
		n, sealed, serr := cryptox.Seal(s.key, staged)
		if serr != nil {
			return nil, fmt.Errorf("%w: seal payload: %v", common.ErrStorage, serr)
		}
		if werr := t.Rewrite(n, sealed); werr != nil {
			return nil, fmt.Errorf("%w: rewrite staging file: %v", common.ErrStorage, werr)
		}
		nonce = n
		encrypted = true
	}

	token, terr := common.MakeRandHexString(storageTokenBytes)
	if terr != nil {
		return nil, fmt.Errorf("%w: storage name: %v", common.ErrStorage, terr)
	}
	storageName := token + ext

	if cerr := t.Commit(storageName); cerr != nil {
		return nil, fmt.Errorf("%w: commit %s: %v", common.ErrStorage, storageName, cerr)
	}

	res := &WriteResult{
		StorageName:    storageName,
		Size:           size,
		ContentType:    contentType,
		ChecksumSHA256: hex.EncodeToString(hasher.Sum(nil)),
		Compressed:     compressed,
		Encrypted:      encrypted,
		Nonce:          nonce,
	}

	s.log.Debug(ctx, "object committed",
		"storage_name", res.StorageName,
		"size", res.Size,
		"content_type", res.ContentType,
		"compressed", res.Compressed,
		"encrypted", res.Encrypted,
	)

	return res, nil
}
