package authcore

import (
	"strings"
	"testing"
)

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"alice@example.com":     "alice@example.com",
		"  Alice@Example.COM  ": "alice@example.com",
		"\tBOB@X.IO\n":          "bob@x.io",
	}
	for in, want := range cases {
		if got := normalizeEmail(in); got != want {
			t.Fatalf("normalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidEmail(t *testing.T) {
	valid := []string{"a@b.co", "alice+tag@example.com", "x.y@sub.example.org"}
	for _, email := range valid {
		if !validEmail(email) {
			t.Fatalf("expected %q to be valid", email)
		}
	}

	invalid := []string{
		"",
		"plain",
		"a@b",
		"a@@b.co",
		"a b@c.com",
		"a@b c.com",
		"@example.com",
		"a@" + strings.Repeat("x", 250) + ".com",
	}
	for _, email := range invalid {
		if validEmail(email) {
			t.Fatalf("expected %q to be invalid", email)
		}
	}
}

func TestValidPassword(t *testing.T) {
	valid := []string{"StrongPass1", "Aa345678", "Xx" + strings.Repeat("1", 126)}
	for _, pw := range valid {
		if !validPassword(pw) {
			t.Fatalf("expected %q to pass policy", pw)
		}
	}

	invalid := []string{
		"",
		"Aa1",                           // too short
		"Xx" + strings.Repeat("1", 127), // too long
		"alllowercase1",
		"ALLUPPERCASE1",
		"NoDigitsAtAll",
	}
	for _, pw := range invalid {
		if validPassword(pw) {
			t.Fatalf("expected %q to fail policy", pw)
		}
	}
}

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"alice@example.com": "al***@example.com",
		"ab@x.io":           "ab***@x.io",
		"a@x.io":            "a***@x.io",
		"no-at-sign":        "***",
	}
	for in, want := range cases {
		if got := maskEmail(in); got != want {
			t.Fatalf("maskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
