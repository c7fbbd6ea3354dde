package crypto

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirrivault/sirrivault/internal/errs"
)

// TOTP parameters. SHA-1 and 6 digits are what the authenticator ecosystem
// interoperates on (RFC 4226 / RFC 6238).
const (
	OTPDigits       = 6
	DefaultTimeStep = 30 // seconds
	MinSecretBytes  = 10 // 80 bits
	otpModulo       = 1_000_000
)

// DecodeSecret validates and decodes a base32 shared secret. Padding is
// optional and case is ignored, matching what provisioning QR codes emit.
func DecodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(secret), " ", ""))
	dec := base32.StdEncoding.WithPadding(base32.NoPadding)
	b, err := dec.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: not base32", errs.ErrInvalidSecret)
	}
	if len(b) < MinSecretBytes {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", errs.ErrInvalidSecret, len(b), MinSecretBytes)
	}
	return b, nil
}

// DeriveOTP computes the HMAC-SHA1 code for the time counter
// floor(unix/timeStepSeconds)+skewSteps, truncated to 6 decimal digits via
// dynamic truncation and left-padded with zeros.
func DeriveOTP(sharedSecret []byte, now time.Time, timeStepSeconds uint32, skewSteps int32) string {
	if timeStepSeconds == 0 {
		timeStepSeconds = DefaultTimeStep
	}
	counter := now.Unix()/int64(timeStepSeconds) + int64(skewSteps)
	return hotp(sharedSecret, uint64(counter))
}

// SecondsRemaining reports how long the current code stays valid. It is a
// pure function of wall-clock time, so a delayed refresh tick can never
// desynchronize the countdown from the actual validity window.
func SecondsRemaining(now time.Time, timeStepSeconds uint32) int {
	if timeStepSeconds == 0 {
		timeStepSeconds = DefaultTimeStep
	}
	return int(int64(timeStepSeconds) - now.Unix()%int64(timeStepSeconds))
}

// hotp implements RFC 4226 dynamic truncation over a big-endian counter.
func hotp(secret []byte, counter uint64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)

	mac := hmac.New(sha1.New, secret)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0F
	trunc := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7FFFFFFF
	return fmt.Sprintf("%0*d", OTPDigits, trunc%otpModulo)
}

// ProvisionURI renders the otpauth:// URI understood by authenticator apps.
func ProvisionURI(label, issuer, secret string) string {
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s&algorithm=SHA1&digits=%d&period=%d",
		url.PathEscape(issuer), url.PathEscape(label), secret, url.QueryEscape(issuer), OTPDigits, DefaultTimeStep)
}
