// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across store/manager layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a uniqueness violation (e.g., duplicate id).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed caller input; stored state is untouched.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidSecret indicates a shared secret that is not valid base32
	// or decodes to fewer bytes than the minimum.
	ErrInvalidSecret = errors.New("invalid shared secret")

	// ErrEncryption indicates the encryption step failed; nothing was persisted.
	ErrEncryption = errors.New("encryption failed")

	// ErrIntegrity indicates AEAD authentication failure on decrypt:
	// tampering, corruption, or a wrong key. Never downgraded to plaintext.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrStorage indicates a persistence failure surfaced verbatim from the store.
	ErrStorage = errors.New("storage failure")

	// ErrNoTrustedContacts indicates emergency activation without any contact.
	ErrNoTrustedContacts = errors.New("no trusted contacts")

	// ErrNotActive indicates a revoke while emergency mode is already inactive.
	ErrNotActive = errors.New("emergency mode not active")

	// ErrLocked indicates a temporary unlock lockout after repeated failures.
	ErrLocked = errors.New("temporarily locked")
)
