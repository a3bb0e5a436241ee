package internal

import (
	"strings"
	"testing"
)

func TestNewCode(t *testing.T) {
	for _, digits := range []int{6, 8, 10} {
		code, err := NewCode(digits)
		if err != nil {
			t.Fatalf("NewCode(%d) failed: %v", digits, err)
		}
		if len(code) != digits {
			t.Fatalf("NewCode(%d) returned %q, want %d digits", digits, code, digits)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("NewCode(%d) returned non-digit %q", digits, code)
			}
		}
	}

	for _, digits := range []int{0, 5, 11, -1} {
		if _, err := NewCode(digits); err == nil {
			t.Fatalf("NewCode(%d) should have failed", digits)
		}
	}
}

func TestNewCodeCoversLeadingZeros(t *testing.T) {
	// each digit is drawn independently, so leading zeros must appear
	seen := false
	for i := 0; i < 200; i++ {
		code, err := NewCode(6)
		if err != nil {
			t.Fatalf("NewCode failed: %v", err)
		}
		if code[0] == '0' {
			seen = true
			break
		}
	}
	if !seen {
		t.Fatal("no code with a leading zero in 200 draws")
	}
}

func TestTokenIDRoundTrip(t *testing.T) {
	id, err := NewTokenID()
	if err != nil {
		t.Fatalf("NewTokenID failed: %v", err)
	}

	parsed, err := ParseTokenID(id.String())
	if err != nil {
		t.Fatalf("ParseTokenID failed: %v", err)
	}
	if parsed != id {
		t.Fatalf("round trip mismatch: got %v want %v", parsed, id)
	}
	if strings.ContainsAny(id.String(), "+/=") {
		t.Fatalf("token id %q is not raw base64url", id.String())
	}
}

func TestParseTokenIDRejectsBadInput(t *testing.T) {
	if _, err := ParseTokenID("not base64!!"); err == nil {
		t.Fatal("expected invalid encoding to be rejected")
	}
	if _, err := ParseTokenID("c2hvcnQ"); err == nil {
		t.Fatal("expected wrong-size input to be rejected")
	}
}

func TestRegistrationTokenRoundTrip(t *testing.T) {
	id, err := NewTokenID()
	if err != nil {
		t.Fatalf("NewTokenID failed: %v", err)
	}
	secret, err := NewRegistrationSecret()
	if err != nil {
		t.Fatalf("NewRegistrationSecret failed: %v", err)
	}

	token := EncodeRegistrationToken(id, secret)

	gotID, gotSecret, err := DecodeRegistrationToken(token)
	if err != nil {
		t.Fatalf("DecodeRegistrationToken failed: %v", err)
	}
	if gotID != id {
		t.Fatal("token id did not survive the round trip")
	}
	if gotSecret != secret {
		t.Fatal("secret did not survive the round trip")
	}
}

func TestDecodeRegistrationTokenRejectsBadInput(t *testing.T) {
	if _, _, err := DecodeRegistrationToken("###"); err == nil {
		t.Fatal("expected invalid encoding to be rejected")
	}

	id, err := NewTokenID()
	if err != nil {
		t.Fatalf("NewTokenID failed: %v", err)
	}
	// a bare token id is too short to carry the secret
	if _, _, err := DecodeRegistrationToken(id.String()); err == nil {
		t.Fatal("expected wrong-size input to be rejected")
	}
}

func TestHashRegistrationSecretIsDeterministic(t *testing.T) {
	secret, err := NewRegistrationSecret()
	if err != nil {
		t.Fatalf("NewRegistrationSecret failed: %v", err)
	}
	if HashRegistrationSecret(secret) != HashRegistrationSecret(secret) {
		t.Fatal("digest must be deterministic")
	}

	other, err := NewRegistrationSecret()
	if err != nil {
		t.Fatalf("NewRegistrationSecret failed: %v", err)
	}
	if HashRegistrationSecret(secret) == HashRegistrationSecret(other) {
		t.Fatal("distinct secrets must not collide")
	}
}
