package security

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

func TestGenerateNumericCode(t *testing.T) {
	for _, length := range []int{4, 6, 8} {
		code, err := GenerateNumericCode(length)
		if err != nil {
			t.Fatalf("GenerateNumericCode(%d) error = %v", length, err)
		}
		if len(code) != length {
			t.Fatalf("expected %d digits, got %q", length, code)
		}
		if strings.Trim(code, "0123456789") != "" {
			t.Fatalf("expected only digits, got %q", code)
		}
	}

	if _, err := GenerateNumericCode(0); err == nil {
		t.Fatalf("expected error for zero length")
	}
}

func TestGenerateSessionTokenIsURLSafeAndUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		token, err := GenerateSessionToken()
		if err != nil {
			t.Fatalf("GenerateSessionToken() error = %v", err)
		}
		raw, err := base64.RawURLEncoding.DecodeString(token)
		if err != nil {
			t.Fatalf("token %q is not raw url base64: %v", token, err)
		}
		if len(raw) != SessionTokenBytes {
			t.Fatalf("expected %d bytes of entropy, got %d", SessionTokenBytes, len(raw))
		}
		if _, dup := seen[token]; dup {
			t.Fatalf("duplicate token generated")
		}
		seen[token] = struct{}{}
	}
}

func TestEqualCodes(t *testing.T) {
	if !EqualCodes("123456", "123456") {
		t.Fatalf("expected equal codes to match")
	}
	if EqualCodes("123456", "123457") {
		t.Fatalf("expected different codes not to match")
	}
	if EqualCodes("123456", "12345") {
		t.Fatalf("expected codes of different length not to match")
	}
}

func TestTOTPRoundTrip(t *testing.T) {
	enrollment, err := NewTOTPEnrollment("FineVerse", "alice", 6)
	if err != nil {
		t.Fatalf("NewTOTPEnrollment() error = %v", err)
	}
	if enrollment.Secret == "" || !strings.HasPrefix(enrollment.ProvisioningURI, "otpauth://totp/") {
		t.Fatalf("unexpected enrollment %+v", enrollment)
	}

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	code, err := GenerateTOTP(enrollment.Secret, at, 6)
	if err != nil {
		t.Fatalf("GenerateTOTP() error = %v", err)
	}

	ok, err := ValidateTOTP(enrollment.Secret, code, at.Add(20*time.Second), 6)
	if err != nil || !ok {
		t.Fatalf("expected code to validate within skew, ok=%v err=%v", ok, err)
	}

	ok, err = ValidateTOTP(enrollment.Secret, code, at.Add(10*time.Minute), 6)
	if err != nil {
		t.Fatalf("ValidateTOTP() error = %v", err)
	}
	if ok {
		t.Fatalf("expected stale code to be rejected")
	}
}

func TestTOTPRequiresSecret(t *testing.T) {
	if _, err := ValidateTOTP("", "123456", time.Now(), 6); err != ErrMissingSecret {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
	if _, err := NewTOTPEnrollment("FineVerse", " ", 6); err == nil {
		t.Fatalf("expected error for blank account")
	}
}
