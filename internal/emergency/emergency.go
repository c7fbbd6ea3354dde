// Package emergency implements the dead-man's-switch access controller:
// trusted contacts, the recovery state machine, and time-gated access grants.
//
// Effective activeness is always computed from stored state and the clock,
// never cached: the controller is active for access decisions as soon as
// now >= activatedAt + recoveryDelay, even if the stored mode still reads
// pending until the next evaluation.
package emergency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/sirrivault/sirrivault/internal/errs"
	"github.com/sirrivault/sirrivault/internal/kvstore"
	"github.com/sirrivault/sirrivault/internal/model"
	"github.com/sirrivault/sirrivault/internal/notify"
)

const (
	settingsKey = "settings"

	defaultRecoveryDelayHours = 48
	grantTTL                  = time.Hour
)

// AlertRecorder receives security-relevant events. Satisfied by *alerts.Log.
type AlertRecorder interface {
	Record(ctx context.Context, severity model.AlertSeverity, title, detail string)
}

// Controller owns trusted contacts and the emergency settings singleton.
type Controller struct {
	store   kvstore.Store
	sink    notify.Sink
	alerts  AlertRecorder
	signKey []byte
	now     func() time.Time
}

// New constructs a Controller. signKey signs access grant tokens; alerts may
// be nil.
func New(store kvstore.Store, sink notify.Sink, alerts AlertRecorder, signKey []byte) *Controller {
	return &Controller{store: store, sink: sink, alerts: alerts, signKey: signKey, now: time.Now}
}

// ContactParams carries caller input for a new trusted contact.
type ContactParams struct {
	Name         string
	Relationship string
	Channel      model.Channel
	Address      string
	TrustLevel   model.TrustLevel
}

// AddContact validates and persists a trusted contact. Verified starts false
// and only the external verification flow flips it.
func (c *Controller) AddContact(ctx context.Context, p ContactParams) (*model.TrustedContact, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("%w: empty name", errs.ErrValidation)
	}
	if err := validateAddress(p.Channel, p.Address); err != nil {
		return nil, err
	}
	switch p.TrustLevel {
	case model.TrustLow, model.TrustMedium, model.TrustHigh:
	case "":
		p.TrustLevel = model.TrustMedium
	default:
		return nil, fmt.Errorf("%w: unknown trust level %q", errs.ErrValidation, p.TrustLevel)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	contact := &model.TrustedContact{
		ID:           id,
		Name:         p.Name,
		Relationship: p.Relationship,
		Channel:      p.Channel,
		Address:      p.Address,
		TrustLevel:   p.TrustLevel,
		AddedAt:      c.now().UTC(),
		Verified:     false,
	}
	if err := c.putContact(ctx, contact); err != nil {
		return nil, err
	}
	c.sink.Notify(fmt.Sprintf("Trusted contact %q added successfully", p.Name), notify.Success)
	return contact, nil
}

// RemoveContact deletes a contact. Emergency settings reference contacts only
// by copied id, so nothing dangles.
func (c *Controller) RemoveContact(ctx context.Context, id uuid.UUID) error {
	contact, err := c.getContact(ctx, id)
	if err != nil {
		return err
	}
	if err := c.store.Delete(ctx, kvstore.NamespaceContacts, id.String()); err != nil {
		return err
	}
	c.sink.Notify(fmt.Sprintf("Contact %q removed from trusted contacts", contact.Name), notify.Warning)
	return nil
}

// MarkVerified records the outcome of the external verification flow.
func (c *Controller) MarkVerified(ctx context.Context, id uuid.UUID) error {
	contact, err := c.getContact(ctx, id)
	if err != nil {
		return err
	}
	contact.Verified = true
	return c.putContact(ctx, contact)
}

// ListContacts returns contacts ordered oldest first.
func (c *Controller) ListContacts(ctx context.Context) ([]model.TrustedContact, error) {
	keys, err := c.store.ListKeys(ctx, kvstore.NamespaceContacts)
	if err != nil {
		return nil, err
	}
	out := make([]model.TrustedContact, 0, len(keys))
	for _, k := range keys {
		id, err := uuid.FromString(k)
		if err != nil {
			continue
		}
		contact, err := c.getContact(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *contact)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.Before(out[j].AddedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// Settings returns the singleton, synthesizing defaults on first use.
func (c *Controller) Settings(ctx context.Context) (model.EmergencySettings, error) {
	b, err := c.store.Get(ctx, kvstore.NamespaceEmergency, settingsKey)
	if errors.Is(err, errs.ErrNotFound) {
		return model.EmergencySettings{
			RecoveryDelayHours:   defaultRecoveryDelayHours,
			LawEnforcementAccess: true,
			Mode:                 model.ModeInactive,
			UpdatedAt:            c.now().UTC(),
		}, nil
	}
	if err != nil {
		return model.EmergencySettings{}, err
	}
	var s model.EmergencySettings
	if err := json.Unmarshal(b, &s); err != nil {
		return model.EmergencySettings{}, fmt.Errorf("%w: corrupt settings record: %w", errs.ErrStorage, err)
	}
	return s, nil
}

// Activate moves the machine from inactive to pending, stamps activation
// time, and notifies every trusted contact. It requires at least one contact.
func (c *Controller) Activate(ctx context.Context) error {
	contacts, err := c.ListContacts(ctx)
	if err != nil {
		return err
	}
	if len(contacts) == 0 {
		return errs.ErrNoTrustedContacts
	}
	s, err := c.Settings(ctx)
	if err != nil {
		return err
	}
	if s.Mode != model.ModeInactive {
		return fmt.Errorf("%w: emergency mode", errs.ErrAlreadyExists)
	}
	s.Mode = model.ModePending
	s.ActivatedAt = c.now().UTC()
	s.UpdatedAt = s.ActivatedAt
	if err := c.putSettings(ctx, s); err != nil {
		return err
	}

	c.sink.Notify("Emergency mode activated! Trusted contacts will be notified.", notify.Success)
	for _, contact := range contacts {
		c.sink.Notify(fmt.Sprintf("Notifying %s (%s %s) about emergency mode activation", contact.Name, contact.Channel, contact.Address), notify.Info)
	}
	if c.alerts != nil {
		c.alerts.Record(ctx, model.AlertWarning, "emergency mode activated",
			fmt.Sprintf("access unlocks after %dh for %d trusted contacts", s.RecoveryDelayHours, len(contacts)))
	}
	return nil
}

// Revoke returns the machine to inactive and clears the activation time.
// It is the only way back from pending or active.
func (c *Controller) Revoke(ctx context.Context) error {
	s, err := c.Settings(ctx)
	if err != nil {
		return err
	}
	if s.Mode == model.ModeInactive {
		return errs.ErrNotActive
	}
	s.Mode = model.ModeInactive
	s.ActivatedAt = time.Time{}
	s.UpdatedAt = c.now().UTC()
	if err := c.putSettings(ctx, s); err != nil {
		return err
	}
	c.sink.Notify("Emergency mode revoked", notify.Warning)
	if c.alerts != nil {
		c.alerts.Record(ctx, model.AlertInfo, "emergency mode revoked", "owner revoked emergency access")
	}
	return nil
}

// SetRecoveryDelay changes the delay. Mid-countdown the new value applies to
// the already-recorded activation time: the wait is a pure function of stored
// state, not a scheduled timer, so the change is retroactive by design.
func (c *Controller) SetRecoveryDelay(ctx context.Context, hours int) error {
	if hours <= 0 {
		return fmt.Errorf("%w: recovery delay must be positive, got %d", errs.ErrValidation, hours)
	}
	s, err := c.Settings(ctx)
	if err != nil {
		return err
	}
	s.RecoveryDelayHours = hours
	s.UpdatedAt = c.now().UTC()
	if err := c.putSettings(ctx, s); err != nil {
		return err
	}
	c.sink.Notify(fmt.Sprintf("Recovery delay updated to %d hours", hours), notify.Success)
	return nil
}

// SetLawEnforcementAccess toggles the law-enforcement access policy flag.
func (c *Controller) SetLawEnforcementAccess(ctx context.Context, enabled bool) error {
	s, err := c.Settings(ctx)
	if err != nil {
		return err
	}
	s.LawEnforcementAccess = enabled
	s.UpdatedAt = c.now().UTC()
	if err := c.putSettings(ctx, s); err != nil {
		return err
	}
	if enabled {
		c.sink.Notify("Law enforcement access enabled", notify.Success)
	} else {
		c.sink.Notify("Law enforcement access disabled", notify.Warning)
	}
	return nil
}

// accessGranted is the computed activeness predicate; it is never cached.
func accessGranted(s model.EmergencySettings, now time.Time) bool {
	if s.Mode == model.ModeInactive {
		return false
	}
	return !now.Before(s.ActivatedAt.Add(time.Duration(s.RecoveryDelayHours) * time.Hour))
}

// EffectiveMode evaluates the machine as of now and persists the
// pending-to-active transition when the delay has elapsed.
func (c *Controller) EffectiveMode(ctx context.Context, now time.Time) (model.EmergencyMode, error) {
	s, err := c.Settings(ctx)
	if err != nil {
		return "", err
	}
	if s.Mode == model.ModeInactive {
		return model.ModeInactive, nil
	}
	if !accessGranted(s, now) {
		return model.ModePending, nil
	}
	if s.Mode == model.ModePending {
		s.Mode = model.ModeActive
		s.UpdatedAt = now.UTC()
		if err := c.putSettings(ctx, s); err != nil {
			return "", err
		}
	}
	return model.ModeActive, nil
}

// RequestAccess decides an emergency access request from a trusted contact as
// of now. Trust level is advisory metadata and does not gate the decision.
// On grant it returns a signed token the contact presents to the vault.
func (c *Controller) RequestAccess(ctx context.Context, contactID uuid.UUID, now time.Time) (model.AccessDecision, error) {
	contact, err := c.getContact(ctx, contactID)
	if err != nil {
		return model.AccessDecision{}, err
	}
	s, err := c.Settings(ctx)
	if err != nil {
		return model.AccessDecision{}, err
	}
	if s.Mode == model.ModeInactive {
		return model.AccessDecision{}, errs.ErrNotActive
	}

	if !accessGranted(s, now) {
		remaining := s.ActivatedAt.Add(time.Duration(s.RecoveryDelayHours) * time.Hour).Sub(now)
		if c.alerts != nil {
			c.alerts.Record(ctx, model.AlertInfo, "emergency access requested early",
				fmt.Sprintf("%s must wait another %s", contact.Name, remaining.Round(time.Minute)))
		}
		return model.AccessDecision{Granted: false, Remaining: remaining}, nil
	}

	grant, err := c.issueGrant(contact.ID, now)
	if err != nil {
		return model.AccessDecision{}, err
	}
	c.sink.Notify(fmt.Sprintf("Emergency access granted to %s", contact.Name), notify.Success)
	if c.alerts != nil {
		c.alerts.Record(ctx, model.AlertCritical, "emergency access granted",
			fmt.Sprintf("vault opened for trusted contact %s (%s)", contact.Name, contact.ID))
	}
	return model.AccessDecision{Granted: true, Grant: grant}, nil
}

// issueGrant creates a signed HS256 token for the given contact.
func (c *Controller) issueGrant(contactID uuid.UUID, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   contactID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(grantTTL)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(c.signKey)
}

// VerifyGrant checks a grant token and returns the contact id it was issued to.
func (c *Controller) VerifyGrant(grant string, now time.Time) (uuid.UUID, error) {
	tok, err := jwt.ParseWithClaims(grant, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return c.signKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", errs.ErrValidation, err)
	}
	claims, ok := tok.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: unexpected claims", errs.ErrValidation)
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject: %w", errs.ErrValidation, err)
	}
	return id, nil
}

// Stats summarizes contacts and settings for the dashboard.
func (c *Controller) Stats(ctx context.Context) (model.EmergencyStats, error) {
	contacts, err := c.ListContacts(ctx)
	if err != nil {
		return model.EmergencyStats{}, err
	}
	s, err := c.Settings(ctx)
	if err != nil {
		return model.EmergencyStats{}, err
	}
	stats := model.EmergencyStats{
		TotalContacts: len(contacts),
		Mode:          s.Mode,
		RecoveryDelay: s.RecoveryDelayHours,
	}
	for _, contact := range contacts {
		if contact.Verified {
			stats.VerifiedContacts++
		}
	}
	return stats, nil
}

// ExportSnapshot is the backup format produced by Export.
type ExportSnapshot struct {
	Contacts   []model.TrustedContact  `json:"trusted_contacts"`
	Settings   model.EmergencySettings `json:"emergency_settings"`
	ExportedAt time.Time               `json:"exported_at"`
	Version    string                  `json:"version"`
}

// Export returns a versioned JSON snapshot of contacts and settings.
func (c *Controller) Export(ctx context.Context) ([]byte, error) {
	contacts, err := c.ListContacts(ctx)
	if err != nil {
		return nil, err
	}
	s, err := c.Settings(ctx)
	if err != nil {
		return nil, err
	}
	b, err := json.MarshalIndent(ExportSnapshot{
		Contacts:   contacts,
		Settings:   s,
		ExportedAt: c.now().UTC(),
		Version:    "1.0",
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	c.sink.Notify("Legacy data exported successfully", notify.Success)
	return b, nil
}

func validateAddress(channel model.Channel, address string) error {
	switch channel {
	case model.ChannelEmail:
		if _, err := mail.ParseAddress(address); err != nil {
			return fmt.Errorf("%w: invalid email address %q", errs.ErrValidation, address)
		}
	case model.ChannelPhone:
		digits := 0
		for i, r := range address {
			switch {
			case r >= '0' && r <= '9':
				digits++
			case r == '+' && i == 0:
			case r == ' ' || r == '-' || r == '(' || r == ')':
			default:
				return fmt.Errorf("%w: invalid phone number %q", errs.ErrValidation, address)
			}
		}
		if digits < 7 {
			return fmt.Errorf("%w: phone number too short %q", errs.ErrValidation, address)
		}
	default:
		return fmt.Errorf("%w: unknown channel %q", errs.ErrValidation, channel)
	}
	return nil
}

func (c *Controller) getContact(ctx context.Context, id uuid.UUID) (*model.TrustedContact, error) {
	b, err := c.store.Get(ctx, kvstore.NamespaceContacts, id.String())
	if err != nil {
		return nil, err
	}
	var contact model.TrustedContact
	if err := json.Unmarshal(b, &contact); err != nil {
		return nil, fmt.Errorf("%w: corrupt contact record %s: %w", errs.ErrStorage, id, err)
	}
	return &contact, nil
}

func (c *Controller) putContact(ctx context.Context, contact *model.TrustedContact) error {
	b, err := json.Marshal(contact)
	if err != nil {
		return err
	}
	return c.store.Put(ctx, kvstore.NamespaceContacts, contact.ID.String(), b)
}

func (c *Controller) putSettings(ctx context.Context, s model.EmergencySettings) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.store.Put(ctx, kvstore.NamespaceEmergency, settingsKey, b)
}
