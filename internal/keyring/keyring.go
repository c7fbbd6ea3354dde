// Package keyring owns the vault key lifecycle: a random data-encryption key
// (DEK) wrapped under an Argon2id key derived from the owner's passphrase.
// Only the wrapped form and the salt ever touch persistent storage.
package keyring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirrivault/sirrivault/internal/crypto"
	"github.com/sirrivault/sirrivault/internal/errs"
	"github.com/sirrivault/sirrivault/internal/kvstore"
	"github.com/sirrivault/sirrivault/internal/limiter"
)

const (
	recordKey   = "master"
	unlockScope = "unlock"
)

type record struct {
	KEKSalt    []byte    `json:"kek_salt"`
	WrappedDEK []byte    `json:"wrapped_dek"`
	CreatedAt  time.Time `json:"created_at"`
}

// Keyring manages the owner's vault key.
type Keyring struct {
	store kvstore.Store
	lim   limiter.Limiter
}

// New constructs a Keyring. The limiter throttles failed unlock attempts.
func New(store kvstore.Store, lim limiter.Limiter) *Keyring {
	return &Keyring{store: store, lim: lim}
}

// Initialized reports whether a vault key already exists.
func (k *Keyring) Initialized(ctx context.Context) (bool, error) {
	_, err := k.store.Get(ctx, kvstore.NamespaceKeyring, recordKey)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Initialize generates a fresh DEK, wraps it under the passphrase-derived KEK
// and persists salt + wrapped DEK. It fails if a key already exists.
func (k *Keyring) Initialize(ctx context.Context, passphrase []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("%w: empty passphrase", errs.ErrValidation)
	}
	if ok, err := k.Initialized(ctx); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: keyring", errs.ErrAlreadyExists)
	}

	salt, err := crypto.RandBytes(crypto.SaltLen)
	if err != nil {
		return nil, err
	}
	dek, err := crypto.NewKey()
	if err != nil {
		return nil, err
	}
	kek := crypto.DeriveKEK(passphrase, salt)
	defer crypto.Zero(kek)

	wrapped, err := crypto.WrapKey(kek, dek)
	if err != nil {
		return nil, err
	}
	if err := k.put(ctx, record{KEKSalt: salt, WrappedDEK: wrapped, CreatedAt: time.Now().UTC()}); err != nil {
		return nil, err
	}
	return dek, nil
}

// Unlock derives the KEK from the passphrase and unwraps the DEK. Repeated
// failures trip the limiter and surface as ErrLocked.
func (k *Keyring) Unlock(ctx context.Context, passphrase []byte) ([]byte, error) {
	allowed, retry, err := k.lim.Allow(ctx, unlockScope)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, fmt.Errorf("%w: retry in %s", errs.ErrLocked, retry.Round(time.Second))
	}

	rec, err := k.get(ctx)
	if err != nil {
		return nil, err
	}
	kek := crypto.DeriveKEK(passphrase, rec.KEKSalt)
	defer crypto.Zero(kek)

	dek, err := crypto.UnwrapKey(kek, rec.WrappedDEK)
	if err != nil {
		if blocked, blockFor, ferr := k.lim.Failure(ctx, unlockScope); ferr == nil && blocked {
			return nil, fmt.Errorf("%w: retry in %s", errs.ErrLocked, blockFor.Round(time.Second))
		}
		return nil, err
	}
	_ = k.lim.Success(ctx, unlockScope)
	return dek, nil
}

// ChangePassphrase re-wraps the existing DEK under a new passphrase. The DEK
// itself is unchanged, so stored items stay readable.
func (k *Keyring) ChangePassphrase(ctx context.Context, oldPass, newPass []byte) error {
	if len(newPass) == 0 {
		return fmt.Errorf("%w: empty passphrase", errs.ErrValidation)
	}
	dek, err := k.Unlock(ctx, oldPass)
	if err != nil {
		return err
	}
	defer crypto.Zero(dek)

	salt, err := crypto.RandBytes(crypto.SaltLen)
	if err != nil {
		return err
	}
	kek := crypto.DeriveKEK(newPass, salt)
	defer crypto.Zero(kek)

	wrapped, err := crypto.WrapKey(kek, dek)
	if err != nil {
		return err
	}
	return k.put(ctx, record{KEKSalt: salt, WrappedDEK: wrapped, CreatedAt: time.Now().UTC()})
}

func (k *Keyring) get(ctx context.Context) (*record, error) {
	b, err := k.store.Get(ctx, kvstore.NamespaceKeyring, recordKey)
	if err != nil {
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("%w: corrupt keyring record: %w", errs.ErrStorage, err)
	}
	return &rec, nil
}

func (k *Keyring) put(ctx context.Context, rec record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return k.store.Put(ctx, kvstore.NamespaceKeyring, recordKey, b)
}
