package tokens

import (
	"strings"
	"testing"
)

func TestRandomString_Alphabet(t *testing.T) {
	s, err := RandomString(64, RecoveryAlphabet)
	if err != nil {
		t.Fatalf("RandomString err: %v", err)
	}
	if len(s) != 64 {
		t.Fatalf("len = %d", len(s))
	}
	for _, r := range s {
		if !strings.ContainsRune(RecoveryAlphabet, r) {
			t.Fatalf("unexpected rune %q", r)
		}
	}
	if _, err := RandomString(0, RecoveryAlphabet); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestRandomDigits(t *testing.T) {
	s, err := RandomDigits(6)
	if err != nil {
		t.Fatal(err)
	}
	if len(s) != 6 || strings.Trim(s, "0123456789") != "" {
		t.Fatalf("not six digits: %q", s)
	}
}

func TestRecoveryCodes_Distinct(t *testing.T) {
	codes, err := RecoveryCodes(2, 16)
	if err != nil {
		t.Fatal(err)
	}
	if len(codes) != 2 || codes[0] == codes[1] {
		t.Fatalf("codes = %v", codes)
	}
}

func TestHashVerify(t *testing.T) {
	phc, err := Hash(Default, "ABCD2345EFGH")
	if err != nil {
		t.Fatalf("Hash err: %v", err)
	}
	if !strings.HasPrefix(phc, "$argon2id$v=19$m=19456,t=2,p=1$") {
		t.Fatalf("unexpected PHC: %s", phc)
	}
	if !Verify("ABCD2345EFGH", phc) {
		t.Fatal("expected match")
	}
	if Verify("ABCD2345EFGX", phc) {
		t.Fatal("expected mismatch")
	}
	if Verify("ABCD2345EFGH", "$argon2id$v=19$garbage") {
		t.Fatal("malformed PHC must not verify")
	}
	if _, err := Hash(Default, ""); err == nil {
		t.Fatal("expected error for empty code")
	}
}
