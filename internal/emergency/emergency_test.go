package emergency

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/sirrivault/sirrivault/internal/errs"
	"github.com/sirrivault/sirrivault/internal/kvstore"
	"github.com/sirrivault/sirrivault/internal/model"
	"github.com/sirrivault/sirrivault/internal/notify"
)

type captureAlerts struct {
	titles []string
}

func (a *captureAlerts) Record(_ context.Context, _ model.AlertSeverity, title, _ string) {
	a.titles = append(a.titles, title)
}

func newTestController(t *testing.T) (*Controller, *captureAlerts) {
	t.Helper()
	alerts := &captureAlerts{}
	c := New(kvstore.NewMemory(), notify.Noop{}, alerts, []byte("test-grant-key"))
	return c, alerts
}

func addContact(t *testing.T, c *Controller, name string) *model.TrustedContact {
	t.Helper()
	contact, err := c.AddContact(context.Background(), ContactParams{
		Name:       name,
		Channel:    model.ChannelEmail,
		Address:    name + "@example.com",
		TrustLevel: model.TrustHigh,
	})
	if err != nil {
		t.Fatalf("AddContact: %v", err)
	}
	return contact
}

func TestAddContact_Validation(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)
	ctx := context.Background()

	cases := []struct {
		name string
		p    ContactParams
	}{
		{"empty name", ContactParams{Channel: model.ChannelEmail, Address: "a@b.com"}},
		{"bad email", ContactParams{Name: "x", Channel: model.ChannelEmail, Address: "not-an-email"}},
		{"bad phone chars", ContactParams{Name: "x", Channel: model.ChannelPhone, Address: "+1 (555) CALL-ME"}},
		{"short phone", ContactParams{Name: "x", Channel: model.ChannelPhone, Address: "+1 23"}},
		{"unknown channel", ContactParams{Name: "x", Channel: "pigeon", Address: "roof"}},
		{"unknown trust", ContactParams{Name: "x", Channel: model.ChannelEmail, Address: "a@b.com", TrustLevel: "absolute"}},
	}
	for _, tc := range cases {
		if _, err := c.AddContact(ctx, tc.p); !errors.Is(err, errs.ErrValidation) {
			t.Errorf("%s: want ErrValidation, got %v", tc.name, err)
		}
	}

	contacts, err := c.ListContacts(ctx)
	if err != nil {
		t.Fatalf("ListContacts: %v", err)
	}
	if len(contacts) != 0 {
		t.Fatalf("rejected contacts were persisted: %d", len(contacts))
	}
}

func TestAddContact_DefaultsAndPhone(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)
	ctx := context.Background()

	contact, err := c.AddContact(ctx, ContactParams{
		Name:    "Maya",
		Channel: model.ChannelPhone,
		Address: "+1 (555) 010-2233",
	})
	if err != nil {
		t.Fatalf("AddContact: %v", err)
	}
	if contact.TrustLevel != model.TrustMedium {
		t.Errorf("default trust level = %q, want %q", contact.TrustLevel, model.TrustMedium)
	}
	if contact.Verified {
		t.Error("new contact must start unverified")
	}
}

func TestActivate_RequiresContacts(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)
	ctx := context.Background()

	if err := c.Activate(ctx); !errors.Is(err, errs.ErrNoTrustedContacts) {
		t.Fatalf("Activate with no contacts: got %v, want ErrNoTrustedContacts", err)
	}
	s, err := c.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if s.Mode != model.ModeInactive {
		t.Fatalf("failed activation changed mode to %q", s.Mode)
	}
}

func TestActivate_And_AccessWindow(t *testing.T) {
	t.Parallel()
	c, alerts := newTestController(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	contact := addContact(t, c, "ada")
	if err := c.Activate(ctx); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if err := c.Activate(ctx); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("second Activate: got %v, want ErrAlreadyExists", err)
	}

	// One minute short of the 48h default delay: denied, with the wait left.
	almost := base.Add(48*time.Hour - time.Minute)
	dec, err := c.RequestAccess(ctx, contact.ID, almost)
	if err != nil {
		t.Fatalf("RequestAccess before delay: %v", err)
	}
	if dec.Granted {
		t.Fatal("access granted before recovery delay elapsed")
	}
	if dec.Remaining != time.Minute {
		t.Errorf("Remaining = %v, want 1m", dec.Remaining)
	}

	// Exactly at the boundary: granted, with a verifiable token.
	at := base.Add(48 * time.Hour)
	dec, err = c.RequestAccess(ctx, contact.ID, at)
	if err != nil {
		t.Fatalf("RequestAccess at boundary: %v", err)
	}
	if !dec.Granted {
		t.Fatal("access denied at recovery delay boundary")
	}
	if dec.Grant == "" {
		t.Fatal("granted decision carries no token")
	}
	subject, err := c.VerifyGrant(dec.Grant, at)
	if err != nil {
		t.Fatalf("VerifyGrant: %v", err)
	}
	if subject != contact.ID {
		t.Errorf("grant subject = %s, want %s", subject, contact.ID)
	}
	if _, err := c.VerifyGrant(dec.Grant, at.Add(2*time.Hour)); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("expired grant: got %v, want ErrValidation", err)
	}

	var granted int
	for _, title := range alerts.titles {
		if strings.Contains(title, "granted") {
			granted++
		}
	}
	if granted != 1 {
		t.Errorf("granted alerts = %d, want 1", granted)
	}
}

func TestEffectiveMode_PersistsTransition(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	addContact(t, c, "ada")
	if err := c.Activate(ctx); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	mode, err := c.EffectiveMode(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("EffectiveMode: %v", err)
	}
	if mode != model.ModePending {
		t.Fatalf("mode mid-countdown = %q, want pending", mode)
	}

	mode, err = c.EffectiveMode(ctx, base.Add(49*time.Hour))
	if err != nil {
		t.Fatalf("EffectiveMode: %v", err)
	}
	if mode != model.ModeActive {
		t.Fatalf("mode after delay = %q, want active", mode)
	}
	s, err := c.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if s.Mode != model.ModeActive {
		t.Fatalf("stored mode = %q, evaluation did not persist the transition", s.Mode)
	}
}

func TestRevoke(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)
	ctx := context.Background()

	if err := c.Revoke(ctx); !errors.Is(err, errs.ErrNotActive) {
		t.Fatalf("Revoke while inactive: got %v, want ErrNotActive", err)
	}

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	contact := addContact(t, c, "ada")
	if err := c.Activate(ctx); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if err := c.Revoke(ctx); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	// Even long after the original delay would have elapsed, nothing opens.
	if _, err := c.RequestAccess(ctx, contact.ID, base.Add(1000*time.Hour)); !errors.Is(err, errs.ErrNotActive) {
		t.Fatalf("RequestAccess after revoke: got %v, want ErrNotActive", err)
	}
	s, err := c.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if !s.ActivatedAt.IsZero() {
		t.Error("revoke left ActivatedAt set")
	}
}

func TestSetRecoveryDelay_RetroactiveMidCountdown(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	contact := addContact(t, c, "ada")
	if err := c.Activate(ctx); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	if err := c.SetRecoveryDelay(ctx, 0); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("zero delay: got %v, want ErrValidation", err)
	}
	if err := c.SetRecoveryDelay(ctx, 24); err != nil {
		t.Fatalf("SetRecoveryDelay: %v", err)
	}

	// Shortening the delay mid-countdown applies against the original
	// activation time, so 25h in the request is already past the gate.
	dec, err := c.RequestAccess(ctx, contact.ID, base.Add(25*time.Hour))
	if err != nil {
		t.Fatalf("RequestAccess: %v", err)
	}
	if !dec.Granted {
		t.Fatal("shortened delay did not apply retroactively")
	}
}

func TestRequestAccess_UnknownContact(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)
	ctx := context.Background()

	addContact(t, c, "ada")
	if err := c.Activate(ctx); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	id, _ := uuid.NewV4()
	if _, err := c.RequestAccess(ctx, id, time.Now()); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("unknown contact: got %v, want ErrNotFound", err)
	}
}

func TestRemoveContact(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)
	ctx := context.Background()

	contact := addContact(t, c, "ada")
	if err := c.RemoveContact(ctx, contact.ID); err != nil {
		t.Fatalf("RemoveContact: %v", err)
	}
	if err := c.RemoveContact(ctx, contact.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("second remove: got %v, want ErrNotFound", err)
	}
}

func TestMarkVerified_And_Stats(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)
	ctx := context.Background()

	first := addContact(t, c, "ada")
	addContact(t, c, "linus")
	if err := c.MarkVerified(ctx, first.ID); err != nil {
		t.Fatalf("MarkVerified: %v", err)
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalContacts != 2 || stats.VerifiedContacts != 1 {
		t.Errorf("stats = %+v, want 2 total / 1 verified", stats)
	}
	if stats.Mode != model.ModeInactive || stats.RecoveryDelay != defaultRecoveryDelayHours {
		t.Errorf("stats settings = %+v", stats)
	}
}

func TestSetLawEnforcementAccess(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)
	ctx := context.Background()

	s, err := c.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if !s.LawEnforcementAccess {
		t.Fatal("law enforcement access should default to enabled")
	}
	if err := c.SetLawEnforcementAccess(ctx, false); err != nil {
		t.Fatalf("SetLawEnforcementAccess: %v", err)
	}
	s, err = c.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if s.LawEnforcementAccess {
		t.Fatal("toggle did not persist")
	}
}

func TestExport(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)
	ctx := context.Background()

	contact := addContact(t, c, "ada")
	b, err := c.Export(ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	out := string(b)
	for _, want := range []string{`"version": "1.0"`, contact.ID.String(), `"recovery_delay_hours": 48`} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q:\n%s", want, out)
		}
	}
}
