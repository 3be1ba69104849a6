// Package models defines server-side data models persisted in the database.
package models

import "time"

// Visibility controls who may read an object.
type Visibility string

const (
	VisibilityPrivate  Visibility = "private"
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
)

// ParseVisibility maps a request string onto a known visibility. Anything
// unrecognized collapses to private, the safe default.
func ParseVisibility(s string) Visibility {
	switch Visibility(s) {
	case VisibilityPublic:
		return VisibilityPublic
	case VisibilityUnlisted:
		return VisibilityUnlisted
	default:
		return VisibilityPrivate
	}
}

// StoredObject describes one committed payload: the logical identity the
// owner sees, the physical artifact on disk, and the pipeline facts needed
// to reverse storage transformations on read.
type StoredObject struct {
	ID      string
	OwnerID string
	// Name is the logical filename as the owner supplied it; never a path.
	Name string
	// StorageName is the on-disk artifact name: a random token plus the
	// original extension. Unrelated to Name by construction.
	StorageName string
	// Size is the original plaintext length in bytes, recorded at commit.
	// SizeKnown is false only for legacy rows whose size column is NULL.
	Size      int64
	SizeKnown bool
	// ChecksumSHA256 is the hex SHA-256 of the plaintext, computed before
	// compression and encryption.
	ChecksumSHA256 string
	ContentType    string
	Compressed     bool
	Encrypted      bool
	// Nonce is the AEAD nonce, present iff Encrypted. Unique per object.
	Nonce      []byte
	Visibility Visibility
	// GroupID optionally ties the object to a containing note; objects in
	// a group are deleted with it.
	GroupID   string
	CreatedAt time.Time

	// LegacyFormat marks rows predating pipeline-flag recording: their
	// compressed/encrypted columns are NULL and the payload layout must be
	// probed on read.
	LegacyFormat bool
}

// ObjectFormat names the combination of storage transformations applied to
// a payload. The reader dispatches on it; there is no other source of truth
// for how to reverse the pipeline.
type ObjectFormat int

const (
	FormatPlain ObjectFormat = iota
	FormatCompressed
	FormatSealed
	FormatSealedCompressed
	FormatLegacyUnknown
)

func (f ObjectFormat) String() string {
	switch f {
	case FormatPlain:
		return "plain"
	case FormatCompressed:
		return "compressed"
	case FormatSealed:
		return "sealed"
	case FormatSealedCompressed:
		return "sealed+compressed"
	case FormatLegacyUnknown:
		return "legacy-unknown"
	default:
		return "invalid"
	}
}

// FormatOf derives the read-path dispatch tag for an object.
func FormatOf(obj *StoredObject) ObjectFormat {
	if obj.LegacyFormat {
		return FormatLegacyUnknown
	}
	switch {
	case obj.Encrypted && obj.Compressed:
		return FormatSealedCompressed
	case obj.Encrypted:
		return FormatSealed
	case obj.Compressed:
		return FormatCompressed
	default:
		return FormatPlain
	}
}
