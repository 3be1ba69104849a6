// Package blob implements the on-disk object store: a streaming write path
// that applies content sniffing, compression, checksumming and encryption
// before an atomic commit, and a read path that reverses whatever
// transformations were recorded for an object.
//
// Payload files live flat in one directory under random names. The store
// never trusts a payload that fails verification: a read either yields the
// exact original bytes or an error.
package blob

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mosaicedu/notevault/internal/cryptox"
	"github.com/mosaicedu/notevault/internal/filex"
	"github.com/mosaicedu/notevault/internal/logging"
)

// bufferThreshold is the largest plaintext the reader serves from memory.
// Larger plain payloads are streamed from disk in chunks.
const bufferThreshold = 4 * 1024 * 1024

// storageTokenBytes is the entropy of a storage name (hex doubles it).
const storageTokenBytes = 16

// Options configures a Store.
type Options struct {
	// Dir is the payload directory; created 0700 if absent.
	Dir string
	// Key enables AES-256-GCM encryption of new objects when non-nil.
	// Must be cryptox.KeySize bytes. Reads of encrypted objects require it
	// regardless of whether new writes encrypt.
	Key []byte
	// Compression enables zstd for new non-image objects.
	Compression bool
	// ZstdLevel is the encoder level on the zstd 1–22 scale.
	ZstdLevel int
	// MaxObjectSize caps the plaintext size of a single object.
	MaxObjectSize int64
}

// Store is the payload half of the vault: metadata lives in the repository,
// bytes live here.
type Store struct {
	dir           string
	key           []byte
	compression   bool
	zstdLevel     int
	maxObjectSize int64
	log           logging.Logger
}

// NewStore validates opts, ensures the payload directory exists with
// owner-only permissions, and returns a ready Store.
func NewStore(opts Options, log logging.Logger) (*Store, error) {
	if opts.MaxObjectSize <= 0 {
		return nil, fmt.Errorf("blob store: max object size must be positive, got %d", opts.MaxObjectSize)
	}
	if len(opts.Key) != 0 && len(opts.Key) != cryptox.KeySize {
		return nil, fmt.Errorf("blob store: encryption key must be %d bytes, got %d", cryptox.KeySize, len(opts.Key))
	}

	dir, err := filex.EnsurePrivateDir(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}

	return &Store{
		dir:           dir,
		key:           opts.Key,
		compression:   opts.Compression,
		zstdLevel:     opts.ZstdLevel,
		maxObjectSize: opts.MaxObjectSize,
		log:           log,
	}, nil
}

// Dir returns the payload directory.
func (s *Store) Dir() string {
	return s.dir
}

// path resolves a storage name inside the payload directory. Storage names
// are generated by this package, never taken from user input.
func (s *Store) path(storageName string) string {
	return filepath.Join(s.dir, storageName)
}

// Remove deletes an object's payload file. A missing file is not an error:
// metadata is always removed first, so a crash between the two steps leaves
// at worst an orphan payload which later removal tolerates.
func (s *Store) Remove(storageName string) error {
	err := os.Remove(s.path(storageName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", storageName, err)
	}
	return nil
}

// StatSize reports the on-disk size of an object's payload. Used only as
// the quota fallback for legacy rows whose plaintext size was never
// recorded.
func (s *Store) StatSize(storageName string) (int64, error) {
	fi, err := os.Stat(s.path(storageName))
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
