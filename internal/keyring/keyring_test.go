package keyring

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirrivault/sirrivault/internal/errs"
	"github.com/sirrivault/sirrivault/internal/kvstore"
	"github.com/sirrivault/sirrivault/internal/limiter"
)

func newKeyring() *Keyring {
	return New(kvstore.NewMemory(), limiter.NewMemory(time.Minute, 3, time.Hour))
}

func TestInitializeAndUnlock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	k := newKeyring()

	ok, err := k.Initialized(ctx)
	if err != nil || ok {
		t.Fatalf("Initialized on empty store: ok=%v err=%v", ok, err)
	}

	dek, err := k.Initialize(ctx, []byte("correct horse"))
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if len(dek) != 32 {
		t.Fatalf("dek length %d", len(dek))
	}

	got, err := k.Unlock(ctx, []byte("correct horse"))
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if !bytes.Equal(dek, got) {
		t.Fatalf("unlocked DEK differs from initialized DEK")
	}
}

func TestInitialize_Twice(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	k := newKeyring()
	if _, err := k.Initialize(ctx, []byte("p")); err != nil {
		t.Fatalf("first Initialize: %v", err)
	}
	if _, err := k.Initialize(ctx, []byte("p")); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("second Initialize: err=%v, want ErrAlreadyExists", err)
	}
}

func TestInitialize_EmptyPassphrase(t *testing.T) {
	t.Parallel()
	k := newKeyring()
	if _, err := k.Initialize(context.Background(), nil); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestUnlock_WrongPassphrase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	k := newKeyring()
	_, _ = k.Initialize(ctx, []byte("right"))

	if _, err := k.Unlock(ctx, []byte("wrong")); !errors.Is(err, errs.ErrIntegrity) {
		t.Fatalf("wrong passphrase: err=%v, want ErrIntegrity", err)
	}
	// right passphrase still works after a failure
	if _, err := k.Unlock(ctx, []byte("right")); err != nil {
		t.Fatalf("Unlock after failure: %v", err)
	}
}

func TestUnlock_LockoutAfterRepeatedFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	k := New(kvstore.NewMemory(), limiter.NewMemory(time.Minute, 2, time.Hour))
	_, _ = k.Initialize(ctx, []byte("right"))

	if _, err := k.Unlock(ctx, []byte("wrong")); errors.Is(err, errs.ErrLocked) {
		t.Fatalf("locked too early: %v", err)
	}
	if _, err := k.Unlock(ctx, []byte("wrong")); !errors.Is(err, errs.ErrLocked) {
		t.Fatalf("second failure should lock: %v", err)
	}
	// even the right passphrase is rejected while locked
	if _, err := k.Unlock(ctx, []byte("right")); !errors.Is(err, errs.ErrLocked) {
		t.Fatalf("locked unlock: err=%v, want ErrLocked", err)
	}
}

func TestChangePassphrase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	k := newKeyring()
	dek, _ := k.Initialize(ctx, []byte("old"))

	if err := k.ChangePassphrase(ctx, []byte("old"), []byte("new")); err != nil {
		t.Fatalf("ChangePassphrase: %v", err)
	}
	got, err := k.Unlock(ctx, []byte("new"))
	if err != nil {
		t.Fatalf("Unlock with new passphrase: %v", err)
	}
	if !bytes.Equal(dek, got) {
		t.Fatalf("DEK must survive a passphrase change")
	}
	if _, err := k.Unlock(ctx, []byte("old")); err == nil {
		t.Fatalf("old passphrase must stop working")
	}
}

func TestUnlock_NoKeyring(t *testing.T) {
	t.Parallel()
	k := newKeyring()
	if _, err := k.Unlock(context.Background(), []byte("p")); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
