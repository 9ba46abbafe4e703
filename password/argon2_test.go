package password

import (
	"strings"
	"testing"
)

// Small params keep the Argon2 work factor test-friendly.
func newTestHasher(t *testing.T) *Hasher {
	t.Helper()

	h, err := NewHasher(Params{
		MemoryKB:    8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	return h
}

func TestNewHasherRejectsWeakParams(t *testing.T) {
	cases := []Params{
		{MemoryKB: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		{MemoryKB: 8192, Iterations: 0, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		{MemoryKB: 8192, Iterations: 1, Parallelism: 0, SaltLength: 16, KeyLength: 32},
		{MemoryKB: 8192, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 32},
		{MemoryKB: 8192, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 8},
	}
	for i, params := range cases {
		if _, err := NewHasher(params); err == nil {
			t.Fatalf("case %d: expected error for params %+v", i, params)
		}
	}
}

func TestHashVerifyRoundTrip(t *testing.T) {
	h := newTestHasher(t)

	encoded, err := h.Hash("StrongPass1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected encoding: %s", encoded)
	}

	ok, err := h.Verify("StrongPass1", encoded)
	if err != nil || !ok {
		t.Fatalf("expected verification to pass, ok=%v err=%v", ok, err)
	}
}

func TestHashIsSalted(t *testing.T) {
	h := newTestHasher(t)

	first, err := h.Hash("StrongPass1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	second, err := h.Hash("StrongPass1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if first == second {
		t.Fatal("hashing the same password twice produced identical encodings")
	}

	// Both still verify.
	for _, encoded := range []string{first, second} {
		if ok, err := h.Verify("StrongPass1", encoded); err != nil || !ok {
			t.Fatalf("expected verification to pass, ok=%v err=%v", ok, err)
		}
	}
}

func TestVerifyRejectsAlteredPassword(t *testing.T) {
	h := newTestHasher(t)

	encoded, err := h.Hash("StrongPass1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	for _, wrong := range []string{"StrongPass2", "strongPass1", "StrongPass1 ", "trongPass1"} {
		ok, err := h.Verify(wrong, encoded)
		if err != nil {
			t.Fatalf("Verify errored for %q: %v", wrong, err)
		}
		if ok {
			t.Fatalf("altered password %q verified", wrong)
		}
	}
}

func TestVerifyHonorsEmbeddedParams(t *testing.T) {
	weak := newTestHasher(t)
	encoded, err := weak.Hash("StrongPass1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	// A hasher configured with stronger params still verifies older hashes.
	strong, err := NewHasher(DefaultParams())
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	ok, err := strong.Verify("StrongPass1", encoded)
	if err != nil || !ok {
		t.Fatalf("expected cross-param verification to pass, ok=%v err=%v", ok, err)
	}
}

func TestVerifyRejectsMalformedEncodings(t *testing.T) {
	h := newTestHasher(t)

	cases := []string{
		"",
		"plaintext",
		"$bcrypt$v=19$m=65536,t=3,p=1$AAAA$AAAA",
		"$argon2id$v=18$m=65536,t=3,p=1$AAAA$AAAA",
		"$argon2id$v=19$m=65536,t=3$AAAA$AAAA",
		"$argon2id$v=19$m=65536,t=3,p=1$!!$AAAA",
	}
	for _, encoded := range cases {
		if _, err := h.Verify("anything", encoded); err == nil {
			t.Fatalf("expected error for %q", encoded)
		}
	}
}

func TestDummyHashIsWellFormed(t *testing.T) {
	h := newTestHasher(t)

	ok, err := h.Verify("dummy", DummyHash)
	if err != nil {
		t.Fatalf("DummyHash must parse cleanly: %v", err)
	}
	if ok {
		t.Fatal("DummyHash must never verify")
	}

	// The burn path must not panic and must not care about outcome.
	h.VerifyDummy()
}
