// Package cryptox implements the vault's authenticated encryption: AES-256-GCM
// over raw object payloads, with keys supplied as hex or derived from a
// passphrase via argon2id.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes. Every sealed object starts
	// with a nonce of exactly this size.
	NonceSize = 12
	// Overhead is the GCM authentication tag length appended to ciphertext.
	Overhead = 16
)

// ParseKeyHex decodes a hex-encoded AES-256 key. The input must be exactly
// KeySize*2 hex characters.
func ParseKeyHex(s string) ([]byte, error) {
	if len(s) != KeySize*2 {
		return nil, fmt.Errorf("encryption key must be %d hex characters, got %d", KeySize*2, len(s))
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid hex: %w", err)
	}
	return key, nil
}

// DeriveKey derives an AES-256 key from a passphrase and salt using argon2id
// (1 pass, 64 MiB, 4 lanes). Same inputs always produce the same key, so a
// vault can be reopened with the passphrase alone.
func DeriveKey(passphrase []byte, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}

// Seal encrypts plaintext with AES-256-GCM under key. A fresh random nonce is
// generated for each call and returned separately; the authentication tag is
// embedded in sealed. Callers persist the pair as nonce || sealed.
//
// The key must be KeySize bytes. Nonce reuse under one key voids GCM's
// guarantees, so there is deliberately no way to supply a nonce.
func Seal(key, plaintext []byte) (nonce, sealed []byte, err error) {
	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	sealed = aesgcm.Seal(nil, nonce, plaintext, nil)

	return nonce, sealed, nil
}

// Open decrypts a payload produced by Seal. Any modification of sealed, a
// wrong key, or a wrong nonce makes the GCM tag check fail and an error is
// returned with no plaintext.
func Open(key, nonce, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return aesgcm.Open(nil, nonce, sealed, nil)
}
