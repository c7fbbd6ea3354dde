// Package authenticator implements the TOTP account registry. Codes and
// countdowns are pure functions of wall-clock time and stored state, so a
// missed refresh tick can never desynchronize them.
package authenticator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/sirrivault/sirrivault/internal/crypto"
	"github.com/sirrivault/sirrivault/internal/errs"
	"github.com/sirrivault/sirrivault/internal/kvstore"
	"github.com/sirrivault/sirrivault/internal/model"
	"github.com/sirrivault/sirrivault/internal/notify"
)

// Registry owns linked TOTP accounts.
type Registry struct {
	store kvstore.Store
	sink  notify.Sink
	now   func() time.Time
}

// New constructs a Registry.
func New(store kvstore.Store, sink notify.Sink) *Registry {
	return &Registry{store: store, sink: sink, now: time.Now}
}

// AddAccount links a new account. The shared secret must be valid base32 and
// decode to at least 10 bytes; it is never shown again after creation.
func (r *Registry) AddAccount(ctx context.Context, label, issuer, sharedSecret string) (*model.AuthenticatorAccount, error) {
	if label == "" {
		return nil, fmt.Errorf("%w: empty label", errs.ErrValidation)
	}
	if _, err := crypto.DecodeSecret(sharedSecret); err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	acc := &model.AuthenticatorAccount{
		ID:           id,
		Label:        label,
		Issuer:       issuer,
		SharedSecret: sharedSecret,
		LastUsedAt:   r.now().UTC(),
	}
	if err := r.put(ctx, acc); err != nil {
		return nil, err
	}
	r.sink.Notify(fmt.Sprintf("Account %q added successfully", label), notify.Success)
	return acc, nil
}

// RemoveAccount deletes an account after owner confirmation at the caller.
func (r *Registry) RemoveAccount(ctx context.Context, id uuid.UUID) error {
	acc, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, kvstore.NamespaceAuthenticator, id.String()); err != nil {
		return err
	}
	r.sink.Notify(fmt.Sprintf("Account %q deleted", acc.Label), notify.Warning)
	return nil
}

// ListAccounts returns every account with its code for the current time step
// and the seconds left in the step, ordered by label.
func (r *Registry) ListAccounts(ctx context.Context) ([]model.AccountCode, error) {
	keys, err := r.store.ListKeys(ctx, kvstore.NamespaceAuthenticator)
	if err != nil {
		return nil, err
	}
	now := r.now()
	remaining := crypto.SecondsRemaining(now, crypto.DefaultTimeStep)

	out := make([]model.AccountCode, 0, len(keys))
	for _, k := range keys {
		id, err := uuid.FromString(k)
		if err != nil {
			continue
		}
		acc, err := r.get(ctx, id)
		if err != nil {
			return nil, err
		}
		secret, err := crypto.DecodeSecret(acc.SharedSecret)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", id, err)
		}
		out = append(out, model.AccountCode{
			Account:          *acc,
			Code:             crypto.DeriveOTP(secret, now, crypto.DefaultTimeStep, 0),
			SecondsRemaining: remaining,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account.Label < out[j].Account.Label })
	return out, nil
}

// CurrentCodeFor derives the code for one account and stamps its last use.
func (r *Registry) CurrentCodeFor(ctx context.Context, id uuid.UUID) (string, error) {
	acc, err := r.get(ctx, id)
	if err != nil {
		return "", err
	}
	secret, err := crypto.DecodeSecret(acc.SharedSecret)
	if err != nil {
		return "", fmt.Errorf("account %s: %w", id, err)
	}
	code := crypto.DeriveOTP(secret, r.now(), crypto.DefaultTimeStep, 0)

	acc.LastUsedAt = r.now().UTC()
	if err := r.put(ctx, acc); err != nil {
		return "", err
	}
	return code, nil
}

// ProvisionURIFor renders the otpauth:// URI for export to another device.
func (r *Registry) ProvisionURIFor(ctx context.Context, id uuid.UUID) (string, error) {
	acc, err := r.get(ctx, id)
	if err != nil {
		return "", err
	}
	return crypto.ProvisionURI(acc.Label, acc.Issuer, acc.SharedSecret), nil
}

// Stats reports account totals; RecentlyUsed counts use within 24h.
func (r *Registry) Stats(ctx context.Context) (model.AuthenticatorStats, error) {
	keys, err := r.store.ListKeys(ctx, kvstore.NamespaceAuthenticator)
	if err != nil {
		return model.AuthenticatorStats{}, err
	}
	cutoff := r.now().Add(-24 * time.Hour)
	stats := model.AuthenticatorStats{}
	for _, k := range keys {
		id, err := uuid.FromString(k)
		if err != nil {
			continue
		}
		acc, err := r.get(ctx, id)
		if err != nil {
			return model.AuthenticatorStats{}, err
		}
		stats.Total++
		if acc.LastUsedAt.After(cutoff) {
			stats.RecentlyUsed++
		}
	}
	return stats, nil
}

func (r *Registry) get(ctx context.Context, id uuid.UUID) (*model.AuthenticatorAccount, error) {
	b, err := r.store.Get(ctx, kvstore.NamespaceAuthenticator, id.String())
	if err != nil {
		return nil, err
	}
	var acc model.AuthenticatorAccount
	if err := json.Unmarshal(b, &acc); err != nil {
		return nil, fmt.Errorf("%w: corrupt account record %s: %w", errs.ErrStorage, id, err)
	}
	return &acc, nil
}

func (r *Registry) put(ctx context.Context, acc *model.AuthenticatorAccount) error {
	b, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	return r.store.Put(ctx, kvstore.NamespaceAuthenticator, acc.ID.String(), b)
}
