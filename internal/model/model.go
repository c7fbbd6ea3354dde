// Package model defines domain entities used by managers and stores.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// ItemKind classifies a vault item's payload for display and filtering.
type ItemKind string

const (
	KindDocument ItemKind = "document"
	KindPhoto    ItemKind = "photo"
	KindVideo    ItemKind = "video"
	KindAudio    ItemKind = "audio"
)

// Valid reports whether k is one of the known kinds.
func (k ItemKind) Valid() bool {
	switch k {
	case KindDocument, KindPhoto, KindVideo, KindAudio:
		return true
	}
	return false
}

// EncryptedBlob is an opaque AEAD ciphertext (nonce-prefixed).
type EncryptedBlob []byte

// VaultItem is a single stored record. Ciphertext is opaque to everything
// except the crypto package; plaintext never leaves the encrypt/decrypt scope.
type VaultItem struct {
	ID             uuid.UUID     `json:"id"`
	DisplayName    string        `json:"display_name"`
	Kind           ItemKind      `json:"kind"`
	SizeBytes      int64         `json:"size_bytes"` // plaintext size
	Ciphertext     EncryptedBlob `json:"ciphertext"`
	UploadedAt     time.Time     `json:"uploaded_at"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
}

// ItemMeta is a ciphertext-free view of a VaultItem used by listings.
type ItemMeta struct {
	ID             uuid.UUID `json:"id"`
	DisplayName    string    `json:"display_name"`
	Kind           ItemKind  `json:"kind"`
	SizeBytes      int64     `json:"size_bytes"`
	UploadedAt     time.Time `json:"uploaded_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// Meta strips the ciphertext.
func (v *VaultItem) Meta() ItemMeta {
	return ItemMeta{
		ID:             v.ID,
		DisplayName:    v.DisplayName,
		Kind:           v.Kind,
		SizeBytes:      v.SizeBytes,
		UploadedAt:     v.UploadedAt,
		LastAccessedAt: v.LastAccessedAt,
	}
}

// UsageSummary aggregates vault contents.
type UsageSummary struct {
	ItemCount  int   `json:"item_count"`
	TotalBytes int64 `json:"total_bytes"`
}

// AuthenticatorAccount is a linked TOTP account. SharedSecret is base32 and
// immutable after creation; rotation is delete + recreate.
type AuthenticatorAccount struct {
	ID           uuid.UUID `json:"id"`
	Label        string    `json:"label"`
	Issuer       string    `json:"issuer"`
	SharedSecret string    `json:"shared_secret"`
	LastUsedAt   time.Time `json:"last_used_at"`
}

// AccountCode pairs an account with its code for the current time step.
// Code and SecondsRemaining are derived, never persisted.
type AccountCode struct {
	Account          AuthenticatorAccount
	Code             string
	SecondsRemaining int
}

// AuthenticatorStats summarizes the registry.
type AuthenticatorStats struct {
	Total        int
	RecentlyUsed int // used within the last 24h
}

// Channel is how a trusted contact is reached.
type Channel string

const (
	ChannelPhone Channel = "phone"
	ChannelEmail Channel = "email"
)

// TrustLevel is advisory metadata on a contact; it does not gate access.
type TrustLevel string

const (
	TrustLow    TrustLevel = "low"
	TrustMedium TrustLevel = "medium"
	TrustHigh   TrustLevel = "high"
)

// TrustedContact is a third party eligible to request emergency access.
// Verified flips true only through an external verification flow.
type TrustedContact struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Relationship string     `json:"relationship"`
	Channel      Channel    `json:"channel"`
	Address      string     `json:"address"`
	TrustLevel   TrustLevel `json:"trust_level"`
	AddedAt      time.Time  `json:"added_at"`
	Verified     bool       `json:"verified"`
}

// EmergencyMode is the stored emergency-access state.
type EmergencyMode string

const (
	ModeInactive EmergencyMode = "inactive"
	ModePending  EmergencyMode = "pending"
	ModeActive   EmergencyMode = "active"
)

// EmergencySettings is the singleton emergency-access record.
// ActivatedAt is non-zero iff Mode is pending or active.
type EmergencySettings struct {
	RecoveryDelayHours   int           `json:"recovery_delay_hours"`
	LawEnforcementAccess bool          `json:"law_enforcement_access"`
	Mode                 EmergencyMode `json:"mode"`
	ActivatedAt          time.Time     `json:"activated_at,omitzero"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// AccessDecision is the outcome of an emergency access request.
type AccessDecision struct {
	Granted   bool
	Remaining time.Duration // wait left when denied mid-countdown
	Grant     string        // signed grant token when granted
}

// EmergencyStats summarizes the controller.
type EmergencyStats struct {
	TotalContacts    int
	VerifiedContacts int
	Mode             EmergencyMode
	RecoveryDelay    int
}

// AlertSeverity classifies a security alert.
type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "info"
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// SecurityAlert is one persisted entry of the security event log.
type SecurityAlert struct {
	ID         uuid.UUID     `json:"id"`
	Severity   AlertSeverity `json:"severity"`
	Title      string        `json:"title"`
	Detail     string        `json:"detail"`
	OccurredAt time.Time     `json:"occurred_at"`
	Read       bool          `json:"read"`
}
