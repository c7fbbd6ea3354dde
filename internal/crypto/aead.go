// Package crypto contains the vault's cryptographic primitives: authenticated
// encryption, key derivation and wrapping, and HMAC-based OTP derivation.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/sirrivault/sirrivault/internal/errs"
)

// Params
const (
	KeyLen  = 32
	SaltLen = 16

	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
)

// RandBytes returns n bytes from the OS CSPRNG. A failing random source is a
// hard error, never a fallback.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("secure random source unavailable: %w", err)
	}
	return b, nil
}

// NewKey generates a fresh random data-encryption key.
func NewKey() ([]byte, error) {
	return RandBytes(KeyLen)
}

// DeriveKEK derives a key-encryption key from a passphrase and salt using Argon2id.
func DeriveKEK(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, KeyLen)
}

// WrapKey encrypts dek with kek using XChaCha20-Poly1305 and a random nonce.
func WrapKey(kek, dek []byte) ([]byte, error) {
	return Seal(kek, dek, nil)
}

// UnwrapKey decrypts a wrapped DEK using kek.
func UnwrapKey(kek, wrapped []byte) ([]byte, error) {
	return Open(kek, wrapped, nil)
}

// DeriveItemKey derives a per-item key via HKDF-SHA256 using itemID as info,
// so corrupting one item's key material cannot affect another's.
func DeriveItemKey(dek, itemID []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, dek, nil, itemID)
	key := make([]byte, KeyLen)
	if _, err := r.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal encrypts plaintext under key with a fresh random nonce and returns
// nonce||ciphertext. aad, when non-nil, is bound into the authentication tag.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrEncryption, err)
	}
	nonce, err := RandBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrEncryption, err)
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, plaintext, aad)...)
	return out, nil
}

// Open decrypts a nonce-prefixed blob produced by Seal. Any tampering, wrong
// key, or truncation yields ErrIntegrity; partial plaintext is never returned.
func Open(key, blob, aad []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: blob too short", errs.ErrIntegrity)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := blob[:chacha20poly1305.NonceSizeX]
	ct := blob[chacha20poly1305.NonceSizeX:]
	pt, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, errs.ErrIntegrity
	}
	return pt, nil
}

// Zero wipes b in place.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
