// Package common defines shared constants and sentinel errors used across
// notevault components. Callers should use errors.Is to match these values:
// layers above wrap them with fmt.Errorf("...: %w", err) and never invent
// parallel error values of their own.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Input rejection: the request itself is unacceptable and nothing
	// was stored.
	ErrInvalidName           = errors.New("invalid object name")
	ErrExtensionNotAllowed   = errors.New("extension not allowed")
	ErrContentTypeNotAllowed = errors.New("content type not allowed")
	ErrObjectTooLarge        = errors.New("object too large")
	ErrQuotaExceeded         = errors.New("storage quota exceeded")

	// Integrity failure: stored bytes no longer match the recorded
	// plaintext digest.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// Confidentiality failure: authenticated decryption failed (wrong key,
	// truncated payload, or tampered ciphertext).
	ErrCannotDecrypt = errors.New("cannot decrypt")

	// Storage failure: the environment (disk, database) misbehaved.
	ErrStorage = errors.New("storage failure")

	// Policy errors.
	ErrAccessDenied = errors.New("access denied")
)
