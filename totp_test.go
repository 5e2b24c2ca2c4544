package authcore

import (
	"strings"
	"testing"
	"time"
)

// Test vectors from RFC 6238, Appendix B (SHA-1, 8 digits).
func TestHOTPReferenceVectors(t *testing.T) {
	secret := []byte("12345678901234567890")

	vectors := []struct {
		unix int64
		code string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
		{20000000000, "65353130"},
	}

	for _, v := range vectors {
		got, err := hotpCode(secret, v.unix/30, 8, "SHA1")
		if err != nil {
			t.Fatalf("hotp at %d: %v", v.unix, err)
		}
		if got != v.code {
			t.Fatalf("code at %d = %s, want %s", v.unix, got, v.code)
		}
	}
}

func TestVerifyCodeSkew(t *testing.T) {
	m := newTOTPManager(TwoFactorConfig{Digits: 6, Period: 30, Algorithm: "SHA1", Skew: 2})
	secret, _, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}

	now := time.Unix(1_700_000_000, 0)

	for _, offset := range []time.Duration{0, -30 * time.Second, 60 * time.Second} {
		code := totpNow(t, secret, now.Add(offset))
		ok, err := m.VerifyCode(secret, code, now)
		if err != nil {
			t.Fatalf("verify offset %v: %v", offset, err)
		}
		if !ok {
			t.Fatalf("code at offset %v rejected inside skew window", offset)
		}
	}

	// Three periods away is outside skew 2.
	code := totpNow(t, secret, now.Add(-90*time.Second))
	ok, err := m.VerifyCode(secret, code, now)
	if err != nil {
		t.Fatalf("verify outside window: %v", err)
	}
	if ok {
		t.Fatal("code outside skew window accepted")
	}
}

func TestVerifyCodeInputHygiene(t *testing.T) {
	m := newTOTPManager(TwoFactorConfig{Digits: 6, Period: 30, Skew: 1})
	secret, _, err := m.GenerateSecret()
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}

	for _, code := range []string{"", "12345", "1234567", "12a456", "      "} {
		ok, err := m.VerifyCode(secret, code, time.Now())
		if err != nil {
			t.Fatalf("verify %q: %v", code, err)
		}
		if ok {
			t.Fatalf("malformed code %q accepted", code)
		}
	}

	// Surrounding whitespace on an otherwise valid code is tolerated.
	valid := totpNow(t, secret, time.Now())
	ok, err := m.VerifyCode(secret, " "+valid+" ", time.Now())
	if err != nil {
		t.Fatalf("verify trimmed: %v", err)
	}
	if !ok {
		t.Fatal("whitespace-padded valid code rejected")
	}

	if _, err := m.VerifyCode(nil, valid, time.Now()); err == nil {
		t.Fatal("empty secret must error")
	}
}

func TestProvisionURIFormat(t *testing.T) {
	m := newTOTPManager(TwoFactorConfig{Issuer: "authcore-test", Digits: 6, Period: 30, Algorithm: "SHA1"})

	uri := m.ProvisionURI("JBSWY3DPEHPK3PXP", "alice@example.com")

	for _, want := range []string{
		"otpauth://totp/",
		"secret=JBSWY3DPEHPK3PXP",
		"issuer=authcore-test",
		"digits=6",
		"period=30",
		"algorithm=SHA1",
	} {
		if !strings.Contains(uri, want) {
			t.Fatalf("uri %q missing %q", uri, want)
		}
	}
}
