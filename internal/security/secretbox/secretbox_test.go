package secretbox

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
)

func testKey() []byte {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	return raw
}

func TestSealOpen_RoundTrip(t *testing.T) {
	t.Parallel()
	b, err := New(base64.StdEncoding.EncodeToString(testKey()))
	if err != nil {
		t.Fatalf("New err: %v", err)
	}

	msg := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"
	ct, err := b.Seal(msg)
	if err != nil {
		t.Fatalf("Seal err: %v", err)
	}
	if !IsSealed(ct) || IsSealed(msg) {
		t.Fatalf("IsSealed mismatch for %q / %q", ct, msg)
	}
	pt, err := b.Open(ct)
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	if pt != msg {
		t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
	}
}

func TestOpen_DetectsTamper(t *testing.T) {
	t.Parallel()
	b, err := New(hex.EncodeToString(testKey()))
	if err != nil {
		t.Fatalf("New err: %v", err)
	}

	ct, err := b.Seal("top secret")
	if err != nil {
		t.Fatalf("Seal err: %v", err)
	}
	parts := strings.Split(ct, "|")
	bs, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatal(err)
	}
	bs[0] ^= 0x01 // flip
	corrupted := parts[0] + "|" + base64.StdEncoding.EncodeToString(bs)

	if _, err := b.Open(corrupted); err == nil {
		t.Fatalf("expected auth error, got nil")
	}
	if _, err := b.Open("no-separator"); err != ErrFormat {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}

func TestNew_RejectsShortKey(t *testing.T) {
	t.Parallel()
	if _, err := New("short"); err == nil {
		t.Fatalf("expected error for short key")
	}
	if _, err := New(strings.Repeat("k", 32)); err != nil {
		t.Fatalf("raw 32-byte key: %v", err)
	}
}
