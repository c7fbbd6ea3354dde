// Package vault implements the encrypted item store: encrypt-on-add,
// decrypt-on-read-with-audit, irreversible delete.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/sirrivault/sirrivault/internal/crypto"
	"github.com/sirrivault/sirrivault/internal/errs"
	"github.com/sirrivault/sirrivault/internal/kvstore"
	"github.com/sirrivault/sirrivault/internal/model"
	"github.com/sirrivault/sirrivault/internal/notify"
)

// AlertRecorder receives security-relevant events. Satisfied by *alerts.Log.
type AlertRecorder interface {
	Record(ctx context.Context, severity model.AlertSeverity, title, detail string)
}

// Store owns encrypted vault items. Item payloads are sealed under per-item
// keys derived from the vault DEK, so plaintext never reaches the kvstore.
type Store struct {
	store  kvstore.Store
	dek    []byte
	sink   notify.Sink
	alerts AlertRecorder
	now    func() time.Time
}

// New constructs a Store around an unlocked vault key. alerts may be nil.
func New(store kvstore.Store, dek []byte, sink notify.Sink, alerts AlertRecorder) *Store {
	return &Store{store: store, dek: dek, sink: sink, alerts: alerts, now: time.Now}
}

// AddItemParams carries the caller-supplied metadata for a new item.
type AddItemParams struct {
	DisplayName string
	Kind        model.ItemKind
}

// AddItem encrypts payload and persists the resulting item. The record
// becomes visible only after both encryption and persistence succeed.
func (s *Store) AddItem(ctx context.Context, payload []byte, p AddItemParams) (*model.VaultItem, error) {
	if p.DisplayName == "" {
		return nil, fmt.Errorf("%w: empty display name", errs.ErrValidation)
	}
	if !p.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", errs.ErrValidation, p.Kind)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", errs.ErrValidation)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrEncryption, err)
	}
	key, err := crypto.DeriveItemKey(s.dek, id.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrEncryption, err)
	}
	defer crypto.Zero(key)

	ct, err := crypto.Seal(key, payload, id.Bytes())
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	item := &model.VaultItem{
		ID:             id,
		DisplayName:    p.DisplayName,
		Kind:           p.Kind,
		SizeBytes:      int64(len(payload)),
		Ciphertext:     ct,
		UploadedAt:     now,
		LastAccessedAt: now,
	}
	if err := s.put(ctx, item); err != nil {
		return nil, err
	}
	s.sink.Notify(fmt.Sprintf("File %q encrypted and stored securely", p.DisplayName), notify.Success)
	return item, nil
}

// ReadItem decrypts an item and stamps its access time. An authentication
// failure is surfaced as ErrIntegrity, distinct from ErrNotFound, so the
// owner can tell tampering from data loss.
func (s *Store) ReadItem(ctx context.Context, id uuid.UUID) ([]byte, error) {
	item, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	key, err := crypto.DeriveItemKey(s.dek, id.Bytes())
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(key)

	pt, err := crypto.Open(key, item.Ciphertext, id.Bytes())
	if err != nil {
		if errors.Is(err, errs.ErrIntegrity) && s.alerts != nil {
			s.alerts.Record(ctx, model.AlertCritical, "vault item failed integrity check",
				fmt.Sprintf("item %s (%s) could not be authenticated; possible tampering or corruption", id, item.DisplayName))
		}
		return nil, fmt.Errorf("item %s: %w", id, err)
	}

	item.LastAccessedAt = s.now().UTC()
	if err := s.put(ctx, item); err != nil {
		return nil, err
	}
	return pt, nil
}

// DeleteItem removes an item and its ciphertext for good. Deleting an absent
// id is ErrNotFound, not a no-op.
func (s *Store) DeleteItem(ctx context.Context, id uuid.UUID) error {
	item, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, kvstore.NamespaceFiles, id.String()); err != nil {
		return err
	}
	s.sink.Notify(fmt.Sprintf("File %q permanently deleted", item.DisplayName), notify.Warning)
	return nil
}

// ListItems returns ciphertext-free metadata, most recently uploaded first.
// A non-empty filter keeps items whose name or kind contains it.
func (s *Store) ListItems(ctx context.Context, filter string) ([]model.ItemMeta, error) {
	keys, err := s.store.ListKeys(ctx, kvstore.NamespaceFiles)
	if err != nil {
		return nil, err
	}
	filter = strings.ToLower(filter)

	out := make([]model.ItemMeta, 0, len(keys))
	for _, k := range keys {
		id, err := uuid.FromString(k)
		if err != nil {
			continue // foreign key in the namespace
		}
		item, err := s.get(ctx, id)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				continue // deleted between list and get
			}
			return nil, err
		}
		if filter != "" &&
			!strings.Contains(strings.ToLower(item.DisplayName), filter) &&
			!strings.Contains(strings.ToLower(string(item.Kind)), filter) {
			continue
		}
		out = append(out, item.Meta())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// UsageSummary aggregates plaintext sizes across all items.
func (s *Store) UsageSummary(ctx context.Context) (model.UsageSummary, error) {
	items, err := s.ListItems(ctx, "")
	if err != nil {
		return model.UsageSummary{}, err
	}
	sum := model.UsageSummary{ItemCount: len(items)}
	for _, it := range items {
		sum.TotalBytes += it.SizeBytes
	}
	return sum, nil
}

// ClearAll deletes every item and reports how many were removed.
func (s *Store) ClearAll(ctx context.Context) (int, error) {
	items, err := s.ListItems(ctx, "")
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		s.sink.Notify("Vault is already empty", notify.Info)
		return 0, nil
	}
	deleted := 0
	for _, it := range items {
		if err := s.store.Delete(ctx, kvstore.NamespaceFiles, it.ID.String()); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				continue
			}
			return deleted, err
		}
		deleted++
	}
	s.sink.Notify(fmt.Sprintf("All %d files deleted from vault", deleted), notify.Warning)
	return deleted, nil
}

func (s *Store) get(ctx context.Context, id uuid.UUID) (*model.VaultItem, error) {
	b, err := s.store.Get(ctx, kvstore.NamespaceFiles, id.String())
	if err != nil {
		return nil, err
	}
	var item model.VaultItem
	if err := json.Unmarshal(b, &item); err != nil {
		return nil, fmt.Errorf("%w: corrupt item record %s: %w", errs.ErrStorage, id, err)
	}
	return &item, nil
}

func (s *Store) put(ctx context.Context, item *model.VaultItem) error {
	b, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, kvstore.NamespaceFiles, item.ID.String(), b)
}
