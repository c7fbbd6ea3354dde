// Package kvstore defines the persistence contract shared by all managers:
// a durable mapping from namespaced string keys to serialized records.
//
// Writes are atomic per key; no reader ever observes a torn record. If
// multiple processes share one store the consistency model is last-writer-wins.
package kvstore

import "context"

// Namespaces used by the vault subsystems.
const (
	NamespaceFiles         = "files"
	NamespaceAuthenticator = "authenticator"
	NamespaceContacts      = "contacts"
	NamespaceEmergency     = "emergency"
	NamespaceAlerts        = "alerts"
	NamespaceKeyring       = "keyring"
)

// Store is the sole persistence primitive. Implementations must be durable
// across process restarts (the in-memory store is the explicit exception) and
// must surface quota/size failures as errors, never by truncating writes.
type Store interface {
	// Get returns the record under (namespace, key), or errs.ErrNotFound.
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	// Put atomically replaces the record under (namespace, key).
	Put(ctx context.Context, namespace, key string, value []byte) error
	// Delete removes the record; deleting an absent key is errs.ErrNotFound.
	Delete(ctx context.Context, namespace, key string) error
	// ListKeys returns all keys present in the namespace, in no defined order.
	ListKeys(ctx context.Context, namespace string) ([]string, error)
}
