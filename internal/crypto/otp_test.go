package crypto

import (
	"errors"
	"testing"
	"time"

	"github.com/sirrivault/sirrivault/internal/errs"
)

// RFC 6238 appendix B reference vectors (SHA-1 secret "12345678901234567890"),
// truncated to 6 digits.
func TestDeriveOTP_ReferenceVectors(t *testing.T) {
	t.Parallel()
	secret, err := DecodeSecret("GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ")
	if err != nil {
		t.Fatalf("DecodeSecret: %v", err)
	}
	vectors := []struct {
		unix int64
		want string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
		{20000000000, "353130"},
	}
	for _, v := range vectors {
		got := DeriveOTP(secret, time.Unix(v.unix, 0), 30, 0)
		if got != v.want {
			t.Fatalf("t=%d: got %s, want %s", v.unix, got, v.want)
		}
	}
}

func TestDeriveOTP_StableWithinStep(t *testing.T) {
	t.Parallel()
	secret, _ := DecodeSecret("GEZDGNBVGY3TQOJQ")

	base := time.Unix(1_700_000_010, 0) // second 0 of a step
	a := DeriveOTP(secret, base, 30, 0)
	b := DeriveOTP(secret, base.Add(29*time.Second), 30, 0)
	if a != b {
		t.Fatalf("code changed inside one step: %s vs %s", a, b)
	}
	next := DeriveOTP(secret, base.Add(30*time.Second), 30, 0)
	if next == a {
		t.Fatalf("code should change across steps (collision is ~1e-6, suspicious)")
	}
	if len(a) != OTPDigits {
		t.Fatalf("code length %d, want %d", len(a), OTPDigits)
	}
}

func TestDeriveOTP_SkewSteps(t *testing.T) {
	t.Parallel()
	secret, _ := DecodeSecret("GEZDGNBVGY3TQOJQ")
	now := time.Unix(1_700_000_010, 0)
	prev := DeriveOTP(secret, now, 30, -1)
	same := DeriveOTP(secret, now.Add(-30*time.Second), 30, 0)
	if prev != same {
		t.Fatalf("skew -1 at T must equal skew 0 at T-step: %s vs %s", prev, same)
	}
}

func TestSecondsRemaining(t *testing.T) {
	t.Parallel()
	if got := SecondsRemaining(time.Unix(90, 0), 30); got != 30 {
		t.Fatalf("at step boundary: got %d, want 30", got)
	}
	if got := SecondsRemaining(time.Unix(119, 0), 30); got != 1 {
		t.Fatalf("one second left: got %d, want 1", got)
	}
	if got := SecondsRemaining(time.Unix(100, 0), 0); got != 20 {
		t.Fatalf("zero step defaults to 30: got %d, want 20", got)
	}
}

func TestDecodeSecret(t *testing.T) {
	t.Parallel()
	// lowercase, spaces and padding are tolerated
	if _, err := DecodeSecret("gezd gnbv gy3t qojq"); err != nil {
		t.Fatalf("normalized secret rejected: %v", err)
	}
	if _, err := DecodeSecret("GEZDGNBVGY3TQOJQ======"); err != nil {
		t.Fatalf("padded secret rejected: %v", err)
	}
	// not base32
	if _, err := DecodeSecret("not!base32"); !errors.Is(err, errs.ErrInvalidSecret) {
		t.Fatalf("want ErrInvalidSecret, got %v", err)
	}
	// too short: 8 bytes decoded
	if _, err := DecodeSecret("GEZDGNBVGY3TQ"); !errors.Is(err, errs.ErrInvalidSecret) {
		t.Fatalf("short secret: want ErrInvalidSecret, got %v", err)
	}
}

func TestProvisionURI(t *testing.T) {
	t.Parallel()
	uri := ProvisionURI("user@example.com", "Sirri Vault", "GEZDGNBVGY3TQOJQ")
	want := "otpauth://totp/Sirri%20Vault:user@example.com?secret=GEZDGNBVGY3TQOJQ&issuer=Sirri+Vault&algorithm=SHA1&digits=6&period=30"
	if uri != want {
		t.Fatalf("uri mismatch:\n got %s\nwant %s", uri, want)
	}
}
