package totp

import (
	"testing"
	"time"
)

// RFC 6238 appendix B vectors (8 digits).
func TestGenerate_RFC6238Vectors(t *testing.T) {
	seeds := map[string]string{
		"SHA1":   "12345678901234567890",
		"SHA256": "12345678901234567890123456789012",
		"SHA512": "1234567890123456789012345678901234567890123456789012345678901234",
	}
	cases := []struct {
		unix int64
		alg  string
		want string
	}{
		{59, "SHA1", "94287082"},
		{59, "SHA256", "46119246"},
		{59, "SHA512", "90693936"},
		{1111111109, "SHA1", "07081804"},
		{1234567890, "SHA256", "91819424"},
		{2000000000, "SHA512", "38618901"},
	}
	for _, tc := range cases {
		p := Params{Algorithm: tc.alg, Digits: 8, Period: 30}
		got, err := p.Generate([]byte(seeds[tc.alg]), time.Unix(tc.unix, 0))
		if err != nil {
			t.Fatalf("%s@%d: %v", tc.alg, tc.unix, err)
		}
		if got != tc.want {
			t.Errorf("%s@%d = %s, want %s", tc.alg, tc.unix, got, tc.want)
		}
	}
}

func TestVerify_WindowAndReplay(t *testing.T) {
	raw, _, err := GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	now := time.Unix(1_700_000_000, 0)
	prev, _ := Default.Generate(raw, now.Add(-30*time.Second))
	far, _ := Default.Generate(raw, now.Add(-90*time.Second))

	ok, step := Default.Verify(raw, prev, now, 1, nil)
	if !ok || step != Default.Counter(now)-1 {
		t.Fatalf("previous step should verify: ok=%v step=%d", ok, step)
	}
	if ok, _ := Default.Verify(raw, far, now, 1, nil); ok {
		t.Fatal("code three steps old must not verify")
	}
	if ok, _ := Default.Verify(raw, prev, now, 1, &step); ok {
		t.Fatal("replayed step must not verify")
	}
	if ok, _ := Default.Verify(raw, "12345", now, 1, nil); ok {
		t.Fatal("wrong length must not verify")
	}
}

func TestDecodeSecret(t *testing.T) {
	raw, s, err := GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeSecret(" " + s + "====")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(raw) {
		t.Fatal("decoded secret mismatch")
	}
	if _, err := DecodeSecret("not base32!"); err == nil {
		t.Fatal("expected error")
	}
	if !ValidAlgorithm("sha256") || ValidAlgorithm("MD5") {
		t.Fatal("ValidAlgorithm mismatch")
	}
}
